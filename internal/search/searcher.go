package search

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/xaenox/slack-recall/internal/dates"
	"github.com/xaenox/slack-recall/internal/llm"
	"github.com/xaenox/slack-recall/internal/models"
	"github.com/xaenox/slack-recall/internal/slackdata"
	"go.uber.org/zap"
)

const (
	rankWindow  = 50
	maxRelevant = 5
)

type HistoryFetcher interface {
	FetchHistory(ctx context.Context, channelID string, window models.TimeWindow) ([]models.Message, error)
}

type HistorySearcher struct {
	history      HistoryFetcher
	dates        *dates.Extractor
	llm          llm.Completer
	loc          *time.Location
	now          func() time.Time
	workspaceURL string
	logger       *zap.Logger
}

// NewHistorySearcher builds a searcher. Dates are interpreted in loc; a
// non-empty workspaceURL adds permalinks to returned messages.
func NewHistorySearcher(history HistoryFetcher, completer llm.Completer, loc *time.Location, workspaceURL string, logger *zap.Logger) *HistorySearcher {
	if loc == nil {
		loc = time.UTC
	}
	return &HistorySearcher{
		history:      history,
		dates:        dates.NewExtractor(completer, logger),
		llm:          completer,
		loc:          loc,
		now:          time.Now,
		workspaceURL: workspaceURL,
		logger:       logger,
	}
}

// Search returns at most five messages of the channel judged relevant to the
// instructions, in the order the model ranked them.
func (s *HistorySearcher) Search(ctx context.Context, channel models.Channel, instructions string) ([]models.Message, error) {
	today := dates.Today(s.now().In(s.loc))
	dateRange := s.dates.Extract(ctx, instructions, today)
	window, err := dates.ToWindow(dateRange, s.loc)
	if err != nil {
		return nil, fmt.Errorf("build time window: %w", err)
	}

	s.logger.Debug("Searching channel history",
		zap.String("channel_id", channel.ID),
		zap.String("start_date", dateRange.StartDate),
		zap.String("end_date", dateRange.EndDate),
		zap.Int("limit", window.Limit))

	messages, err := s.history.FetchHistory(ctx, channel.ID, window)
	if err != nil {
		return nil, fmt.Errorf("fetch history of %s: %w", channel.ID, err)
	}
	if len(messages) == 0 {
		return []models.Message{}, nil
	}
	for i := range messages {
		messages[i].Permalink = slackdata.Permalink(s.workspaceURL, channel.ID, messages[i].TS)
	}

	prompt := fmt.Sprintf(`You filter Slack messages from channel #%s for relevance to a search.

Search instructions: %s

Messages:
%s

Return only a JSON array with the indices of at most %d messages that are relevant,
most relevant first, for example [3, 0]. Return [] if none are relevant.`,
		channel.Name, instructions, formatMessages(messages), maxRelevant)

	reply, err := s.llm.Complete(ctx, llm.Request{Prompt: prompt})
	if err != nil {
		return nil, fmt.Errorf("rank messages: %w", err)
	}

	var indices []int
	if err := llm.Unmarshal(reply, &indices); err != nil {
		s.logger.Warn("Failed to parse relevant message indices",
			zap.Error(err),
			zap.String("channel_id", channel.ID),
			zap.String("response", reply))
		return []models.Message{}, nil
	}

	return pick(messages, indices, s.logger), nil
}

// formatMessages renders the first rankWindow messages with their indices.
func formatMessages(messages []models.Message) string {
	if len(messages) > rankWindow {
		messages = messages[:rankWindow]
	}

	var b strings.Builder
	for i, m := range messages {
		fmt.Fprintf(&b, "[%d] ts=%s user=%s: %s", i, m.TS, m.User, m.Text)
		for _, a := range m.Attachments {
			fmt.Fprintf(&b, " (attachment: %s %s)", a.Title, a.OriginalURL)
		}
		b.WriteByte('\n')
	}
	return b.String()
}

// pick maps model-chosen indices to messages, skipping out-of-range and
// repeated indices.
func pick(messages []models.Message, indices []int, logger *zap.Logger) []models.Message {
	relevant := make([]models.Message, 0, maxRelevant)
	seen := make(map[int]bool, len(indices))
	for _, idx := range indices {
		if idx < 0 || idx >= len(messages) {
			logger.Debug("Ignoring out-of-range message index", zap.Int("index", idx))
			continue
		}
		if seen[idx] {
			continue
		}
		seen[idx] = true
		relevant = append(relevant, messages[idx])
		if len(relevant) == maxRelevant {
			break
		}
	}
	return relevant
}
