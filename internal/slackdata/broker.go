package slackdata

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"github.com/xaenox/slack-recall/internal/models"
	"go.uber.org/zap"
)

const (
	DefaultBrokerURL = "https://backend.composio.dev/api/v2"

	ActionListChannels = "SLACK_LIST_ALL_SLACK_TEAM_CHANNELS_WITH_VARIOUS_FILTERS"
	ActionFetchHistory = "SLACK_FETCH_CONVERSATION_HISTORY"
)

// BrokerClient executes Slack read actions through the Composio tool broker.
type BrokerClient struct {
	http               *http.Client
	baseURL            string
	apiKey             string
	connectedAccountID string
	logger             *zap.Logger
}

func NewBrokerClient(httpClient *http.Client, baseURL, apiKey, connectedAccountID string, logger *zap.Logger) *BrokerClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBrokerURL
	}
	return &BrokerClient{
		http:               httpClient,
		baseURL:            baseURL,
		apiKey:             apiKey,
		connectedAccountID: connectedAccountID,
		logger:             logger,
	}
}

type executeRequest struct {
	ConnectedAccountID string         `json:"connectedAccountId,omitempty"`
	Input              map[string]any `json:"input"`
}

// Execute runs one broker action and returns the raw response body.
func (c *BrokerClient) Execute(ctx context.Context, action string, input map[string]any) ([]byte, error) {
	jsonData, err := json.Marshal(executeRequest{
		ConnectedAccountID: c.connectedAccountID,
		Input:              input,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/actions/"+action+"/execute", bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.apiKey)

	c.logger.Debug("Executing broker action", zap.String("action", action))

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		c.logger.Error("Broker API error",
			zap.String("action", action),
			zap.Int("status", resp.StatusCode),
			zap.String("body", string(respBody)))
		return nil, fmt.Errorf("broker API error (status %d) for %s", resp.StatusCode, action)
	}

	if ok := gjson.GetBytes(respBody, "successful"); ok.Exists() && !ok.Bool() {
		msg := gjson.GetBytes(respBody, "error").String()
		if msg == "" {
			msg = "unknown_error"
		}
		return nil, fmt.Errorf("broker action %s failed: %s", action, msg)
	}
	return respBody, nil
}

// dataArray finds an array under data.<name>, also accepting the older
// data.response_data.<name> nesting.
func dataArray(body []byte, name string) []gjson.Result {
	for _, path := range []string{"data." + name, "data.response_data." + name} {
		if r := gjson.GetBytes(body, path); r.IsArray() {
			return r.Array()
		}
	}
	return nil
}

func (c *BrokerClient) ListChannels(ctx context.Context, limit int) ([]models.Channel, error) {
	body, err := c.Execute(ctx, ActionListChannels, map[string]any{
		"limit":            limit,
		"exclude_archived": true,
	})
	if err != nil {
		return nil, err
	}

	items := dataArray(body, "channels")
	channels := make([]models.Channel, 0, len(items))
	for _, item := range items {
		if limit > 0 && len(channels) >= limit {
			break
		}
		channels = append(channels, models.Channel{
			ID:      item.Get("id").String(),
			Name:    item.Get("name").String(),
			Purpose: item.Get("purpose.value").String(),
			Topic:   item.Get("topic.value").String(),
		})
	}
	return channels, nil
}

func (c *BrokerClient) FetchHistory(ctx context.Context, channelID string, window models.TimeWindow) ([]models.Message, error) {
	body, err := c.Execute(ctx, ActionFetchHistory, map[string]any{
		"channel": channelID,
		"oldest":  strconv.FormatInt(window.Oldest, 10),
		"latest":  strconv.FormatInt(window.Latest, 10),
		"limit":   window.Limit,
	})
	if err != nil {
		return nil, err
	}

	items := dataArray(body, "messages")
	messages := make([]models.Message, 0, len(items))
	for _, item := range items {
		msg := models.Message{
			Text:        item.Get("text").String(),
			TS:          item.Get("ts").String(),
			User:        item.Get("user").String(),
			Attachments: []models.Attachment{},
		}
		for _, a := range item.Get("attachments").Array() {
			msg.Attachments = append(msg.Attachments, models.Attachment{
				Title:       a.Get("title").String(),
				OriginalURL: a.Get("original_url").String(),
			})
		}
		messages = append(messages, msg)
	}
	return messages, nil
}
