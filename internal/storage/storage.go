package storage

import "context"

// Storage is the per-user thread directory: the ordered list of a user's
// thread ids and a pointer to the current one.
type Storage interface {
	ThreadStorage
	Close() error
}

type ThreadStorage interface {
	// GetCurrentThread returns "" when the user has no current thread.
	GetCurrentThread(ctx context.Context, userID string) (string, error)
	SetCurrentThread(ctx context.Context, userID, threadID string) error
	// GetThreads returns the user's thread ids, most recent first.
	GetThreads(ctx context.Context, userID string) ([]string, error)
	SetThreads(ctx context.Context, userID string, threadIDs []string) error
}
