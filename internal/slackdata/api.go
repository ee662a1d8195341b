package slackdata

import (
	"context"
	"fmt"
	"strconv"

	"github.com/slack-go/slack"
	"github.com/xaenox/slack-recall/internal/models"
)

// APISource reads channels and history with the bot token directly.
type APISource struct {
	client *slack.Client
}

func NewAPISource(client *slack.Client) *APISource {
	return &APISource{client: client}
}

func (s *APISource) ListChannels(ctx context.Context, limit int) ([]models.Channel, error) {
	channels, _, err := s.client.GetConversationsContext(ctx, &slack.GetConversationsParameters{
		Limit:           limit,
		ExcludeArchived: true,
		Types:           []string{"public_channel"},
	})
	if err != nil {
		return nil, fmt.Errorf("conversations.list: %w", err)
	}

	out := make([]models.Channel, 0, len(channels))
	for _, ch := range channels {
		out = append(out, models.Channel{
			ID:      ch.ID,
			Name:    ch.Name,
			Purpose: ch.Purpose.Value,
			Topic:   ch.Topic.Value,
		})
	}
	return out, nil
}

func (s *APISource) FetchHistory(ctx context.Context, channelID string, window models.TimeWindow) ([]models.Message, error) {
	resp, err := s.client.GetConversationHistoryContext(ctx, &slack.GetConversationHistoryParameters{
		ChannelID: channelID,
		Oldest:    strconv.FormatInt(window.Oldest, 10),
		Latest:    strconv.FormatInt(window.Latest, 10),
		Limit:     window.Limit,
		Inclusive: true,
	})
	if err != nil {
		return nil, fmt.Errorf("conversations.history: %w", err)
	}

	out := make([]models.Message, 0, len(resp.Messages))
	for _, m := range resp.Messages {
		msg := models.Message{
			Text:        m.Text,
			TS:          m.Timestamp,
			User:        m.User,
			Attachments: make([]models.Attachment, 0, len(m.Attachments)),
		}
		for _, a := range m.Attachments {
			msg.Attachments = append(msg.Attachments, models.Attachment{
				Title:       a.Title,
				OriginalURL: a.OriginalURL,
			})
		}
		out = append(out, msg)
	}
	return out, nil
}
