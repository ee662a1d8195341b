// Package memory adapts the conversation memory service: per-thread context
// summaries, message history and interaction write-back.
package memory

import (
	"context"

	"github.com/xaenox/slack-recall/internal/models"
)

// Store is implemented by the hosted Zep service client and by the local
// SQLite store.
type Store interface {
	// EnsureUser creates the user record if it does not exist yet.
	EnsureUser(ctx context.Context, userID string) error
	CreateThread(ctx context.Context, userID, threadID string) error
	// Context returns a text summary of facts relevant to the thread.
	Context(ctx context.Context, userID, threadID string) (string, error)
	// History returns up to limit of the thread's latest messages, oldest first.
	History(ctx context.Context, threadID string, limit int) ([]models.HistoryMessage, error)
	AddInteraction(ctx context.Context, threadID string, in models.Interaction) error
	Close() error
}

const (
	RoleTypeUser      = "user"
	RoleTypeAssistant = "assistant"
	assistantRole     = "assistant"
)

// interactionMessages expands an interaction into its two stored messages.
func interactionMessages(in models.Interaction) []models.HistoryMessage {
	role := in.UserName
	if role == "" {
		role = in.UserID
	}
	return []models.HistoryMessage{
		{Role: role, RoleType: RoleTypeUser, Content: in.UserMessage},
		{Role: assistantRole, RoleType: RoleTypeAssistant, Content: in.AssistantMessage},
	}
}
