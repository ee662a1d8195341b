// Package search selects relevant Slack channels and the relevant messages
// within them.
package search

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/xaenox/slack-recall/internal/llm"
	"github.com/xaenox/slack-recall/internal/models"
	"go.uber.org/zap"
)

const (
	directoryLimit = 100
	maxChannels    = 3
)

// ErrNoChannels is returned when the channel directory is empty.
var ErrNoChannels = errors.New("no channels found in the workspace")

type ChannelLister interface {
	ListChannels(ctx context.Context, limit int) ([]models.Channel, error)
}

type ChannelSelector struct {
	channels ChannelLister
	llm      llm.Completer
	logger   *zap.Logger
}

func NewChannelSelector(channels ChannelLister, completer llm.Completer, logger *zap.Logger) *ChannelSelector {
	return &ChannelSelector{channels: channels, llm: completer, logger: logger}
}

// Select returns up to three channels likely to hold an answer. When the
// model reply cannot be parsed, the first three directory channels are used.
func (s *ChannelSelector) Select(ctx context.Context, instructions string) ([]models.Channel, error) {
	directory, err := s.channels.ListChannels(ctx, directoryLimit)
	if err != nil {
		return nil, fmt.Errorf("list channels: %w", err)
	}
	if len(directory) == 0 {
		return nil, ErrNoChannels
	}

	listing, err := json.MarshalIndent(directory, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal channels: %w", err)
	}

	prompt := fmt.Sprintf(`You pick the Slack channels most likely to contain the answer to a search.

Channels:
%s

Search instructions: %s

Select at most %d channels, most relevant first. Return only a JSON array of the selected
channel objects, copied from the list above with their "id" and "name" fields, for example:
[{"id": "C123", "name": "general"}]
Return [] if no channel is relevant.`, listing, instructions, maxChannels)

	reply, err := s.llm.Complete(ctx, llm.Request{Prompt: prompt})
	if err != nil {
		return nil, fmt.Errorf("select channels: %w", err)
	}

	var picked []models.Channel
	if err := llm.Unmarshal(reply, &picked); err != nil {
		s.logger.Warn("Failed to parse channel selection, using first channels",
			zap.Error(err),
			zap.String("response", reply))
		return firstN(directory, maxChannels), nil
	}

	selected := make([]models.Channel, 0, maxChannels)
	for _, ch := range picked {
		if ch.ID == "" {
			continue
		}
		selected = append(selected, ch)
		if len(selected) == maxChannels {
			break
		}
	}

	s.logger.Info("Selected channels",
		zap.Int("directory_size", len(directory)),
		zap.Int("selected", len(selected)))
	return selected, nil
}

func firstN(channels []models.Channel, n int) []models.Channel {
	if len(channels) > n {
		channels = channels[:n]
	}
	return append([]models.Channel(nil), channels...)
}
