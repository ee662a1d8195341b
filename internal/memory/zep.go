package memory

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	zep "github.com/getzep/zep-go/v2"
	zepclient "github.com/getzep/zep-go/v2/client"
	"github.com/getzep/zep-go/v2/option"
	"github.com/xaenox/slack-recall/internal/models"
	"go.uber.org/zap"
)

const DefaultZepBaseURL = "https://api.getzep.com/api/v2"

// ZepClient talks to the Zep memory service. Threads map to Zep sessions.
type ZepClient struct {
	client *zepclient.Client
	logger *zap.Logger
}

func NewZepClient(httpClient *http.Client, baseURL, apiKey string, logger *zap.Logger) *ZepClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = DefaultZepBaseURL
	}
	return &ZepClient{
		client: zepclient.NewClient(
			option.WithAPIKey(strings.TrimSpace(apiKey)),
			option.WithBaseURL(baseURL),
			option.WithHTTPClient(httpClient),
			option.WithMaxAttempts(1),
		),
		logger: logger,
	}
}

func isNotFound(err error) bool {
	var nf *zep.NotFoundError
	return errors.As(err, &nf)
}

func (c *ZepClient) EnsureUser(ctx context.Context, userID string) error {
	_, err := c.client.User.Get(ctx, userID)
	if err == nil {
		return nil
	}
	if !isNotFound(err) {
		return fmt.Errorf("get user: %w", err)
	}

	c.logger.Info("Creating memory user", zap.String("user_id", userID))
	if _, err := c.client.User.Add(ctx, &zep.CreateUserRequest{UserID: zep.String(userID)}); err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func (c *ZepClient) CreateThread(ctx context.Context, userID, threadID string) error {
	_, err := c.client.Memory.AddSession(ctx, &zep.CreateSessionRequest{
		SessionID: threadID,
		UserID:    userID,
	})
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

func (c *ZepClient) Context(ctx context.Context, userID, threadID string) (string, error) {
	mem, err := c.client.Memory.Get(ctx, threadID, &zep.MemoryGetRequest{})
	if isNotFound(err) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get memory: %w", err)
	}
	if mem == nil || mem.Context == nil {
		return "", nil
	}
	return strings.TrimSpace(*mem.Context), nil
}

// History reads the session memory with lastn, which Zep answers with the
// newest messages in chronological order.
func (c *ZepClient) History(ctx context.Context, threadID string, limit int) ([]models.HistoryMessage, error) {
	req := &zep.MemoryGetRequest{}
	if limit > 0 {
		req.Lastn = zep.Int(limit)
	}

	mem, err := c.client.Memory.Get(ctx, threadID, req)
	if isNotFound(err) {
		return []models.HistoryMessage{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get memory: %w", err)
	}
	if mem == nil {
		return []models.HistoryMessage{}, nil
	}

	messages := mem.Messages
	if limit > 0 && len(messages) > limit {
		messages = messages[len(messages)-limit:]
	}

	history := make([]models.HistoryMessage, 0, len(messages))
	for _, m := range messages {
		if m == nil {
			continue
		}
		hm := models.HistoryMessage{
			RoleType: string(m.RoleType),
			Content:  m.Content,
		}
		if m.Role != nil {
			hm.Role = *m.Role
		}
		if m.CreatedAt != nil {
			hm.CreatedAt, _ = time.Parse(time.RFC3339Nano, *m.CreatedAt)
		}
		history = append(history, hm)
	}
	return history, nil
}

func (c *ZepClient) AddInteraction(ctx context.Context, threadID string, in models.Interaction) error {
	msgs := interactionMessages(in)
	payload := make([]*zep.Message, 0, len(msgs))
	for _, m := range msgs {
		payload = append(payload, &zep.Message{
			Role:     zep.String(m.Role),
			RoleType: zep.RoleType(m.RoleType),
			Content:  m.Content,
		})
	}

	if _, err := c.client.Memory.Add(ctx, threadID, &zep.AddMemoryRequest{Messages: payload}); err != nil {
		return fmt.Errorf("add memory: %w", err)
	}
	return nil
}

func (c *ZepClient) Close() error {
	return nil
}
