package memory

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xaenox/slack-recall/internal/models"
	"go.uber.org/zap/zaptest"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "memory.db"), zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLiteStoreThreadLifecycle(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.EnsureUser(ctx, "U1"))
	require.NoError(t, s.EnsureUser(ctx, "U1"))
	require.NoError(t, s.CreateThread(ctx, "U1", "thread-a"))

	var owner string
	require.NoError(t, s.db.QueryRowContext(ctx, `SELECT user_id FROM threads WHERE id = ?`, "thread-a").Scan(&owner))
	assert.Equal(t, "U1", owner)
}

func TestSQLiteStoreInteractions(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	require.NoError(t, s.CreateThread(ctx, "U1", "thread-a"))

	got, err := s.Context(ctx, "U1", "thread-a")
	require.NoError(t, err)
	assert.Empty(t, got)

	require.NoError(t, s.AddInteraction(ctx, "thread-a", models.Interaction{
		UserID:           "U1",
		UserName:         "alice",
		UserMessage:      "when is the launch?",
		AssistantMessage: "The launch is on Friday.",
	}))
	require.NoError(t, s.AddInteraction(ctx, "thread-a", models.Interaction{
		UserID:           "U1",
		UserMessage:      "who owns it?",
		AssistantMessage: "<@U42> owns the launch.",
	}))

	history, err := s.History(ctx, "thread-a", 0)
	require.NoError(t, err)
	require.Len(t, history, 4)
	assert.Equal(t, "alice", history[0].Role)
	assert.Equal(t, RoleTypeUser, history[0].RoleType)
	assert.Equal(t, "The launch is on Friday.", history[1].Content)
	assert.Equal(t, RoleTypeAssistant, history[1].RoleType)
	assert.Equal(t, "U1", history[2].Role)
	assert.False(t, history[3].CreatedAt.IsZero())

	latest, err := s.History(ctx, "thread-a", 2)
	require.NoError(t, err)
	require.Len(t, latest, 2)
	assert.Equal(t, "who owns it?", latest[0].Content)
	assert.Equal(t, "<@U42> owns the launch.", latest[1].Content)

	summary, err := s.Context(ctx, "U1", "thread-a")
	require.NoError(t, err)
	assert.Contains(t, summary, "- alice (user): when is the launch?")
	assert.Contains(t, summary, "- assistant (assistant): <@U42> owns the launch.")

	other, err := s.History(ctx, "thread-b", 10)
	require.NoError(t, err)
	assert.Empty(t, other)
}
