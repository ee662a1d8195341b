package commands

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

const usage = `Usage:
~thread -c        Create a new thread and switch to it
~thread -l        List your threads
~thread -s <id>   Switch to one of your threads
~help             Show this message`

// Threads is the thread lifecycle the handler drives.
type Threads interface {
	Create(ctx context.Context, userID string) (string, error)
	List(ctx context.Context, userID string) ([]string, error)
	Switch(ctx context.Context, userID, threadID string) (bool, error)
}

type Handler struct {
	threads Threads
	logger  *zap.Logger
}

func NewHandler(threads Threads, logger *zap.Logger) *Handler {
	return &Handler{threads: threads, logger: logger}
}

// Handle executes a command line for userID and returns the reply text.
// It never returns an error: failures become reply text.
func (h *Handler) Handle(ctx context.Context, userID, input string) string {
	cmd := Parse(input)

	switch cmd.Kind {
	case KindHelp:
		return usage
	case KindError:
		return cmd.Message
	case KindCreate:
		return h.handleCreate(ctx, userID)
	case KindList:
		return h.handleList(ctx, userID)
	case KindSwitch:
		return h.handleSwitch(ctx, userID, cmd.ThreadID)
	default:
		return msgInvalidCommand
	}
}

func (h *Handler) handleCreate(ctx context.Context, userID string) string {
	threadID, err := h.threads.Create(ctx, userID)
	if err != nil {
		h.logger.Error("Failed to create thread", zap.Error(err), zap.String("user_id", userID))
		return "Failed to create thread. Please try again."
	}
	return fmt.Sprintf("Created thread: %s", threadID)
}

func (h *Handler) handleList(ctx context.Context, userID string) string {
	threads, err := h.threads.List(ctx, userID)
	if err != nil {
		h.logger.Error("Failed to list threads", zap.Error(err), zap.String("user_id", userID))
		return "Failed to list threads. Please try again."
	}
	if len(threads) == 0 {
		return "No threads found."
	}

	var b strings.Builder
	b.WriteString("Threads:\n")
	for i, id := range threads {
		fmt.Fprintf(&b, "%d. %s\n", i+1, id)
	}
	return b.String()
}

func (h *Handler) handleSwitch(ctx context.Context, userID, threadID string) string {
	ok, err := h.threads.Switch(ctx, userID, threadID)
	if err != nil {
		h.logger.Error("Failed to switch thread",
			zap.Error(err),
			zap.String("user_id", userID),
			zap.String("thread_id", threadID))
		return "Failed to switch thread. Please try again."
	}
	if !ok {
		return fmt.Sprintf("Thread %s not found in your threads.", threadID)
	}
	return fmt.Sprintf("Switched to thread: %s", threadID)
}
