// Package slackdata reads Slack channels and channel history, either through
// the tool-execution broker or directly from the Slack Web API.
package slackdata

import (
	"context"
	"strings"

	"github.com/xaenox/slack-recall/internal/models"
)

// Source lists channels and fetches channel history.
type Source interface {
	ListChannels(ctx context.Context, limit int) ([]models.Channel, error)
	FetchHistory(ctx context.Context, channelID string, window models.TimeWindow) ([]models.Message, error)
}

// Permalink builds the web link of a message, or "" without a workspace URL.
func Permalink(workspaceURL, channelID, ts string) string {
	workspaceURL = strings.TrimRight(strings.TrimSpace(workspaceURL), "/")
	if workspaceURL == "" || channelID == "" || ts == "" {
		return ""
	}
	return workspaceURL + "/archives/" + channelID + "/p" + strings.ReplaceAll(ts, ".", "")
}
