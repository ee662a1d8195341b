// Package threads manages a user's conversation threads: the persisted
// directory entry and the matching session in the memory service.
package threads

import (
	"context"
	"fmt"
	"slices"

	"github.com/google/uuid"
	"github.com/xaenox/slack-recall/internal/memory"
	"github.com/xaenox/slack-recall/internal/storage"
	"go.uber.org/zap"
)

type Service struct {
	storage storage.ThreadStorage
	memory  memory.Store
	newID   func() string
	logger  *zap.Logger
}

func NewService(store storage.ThreadStorage, mem memory.Store, logger *zap.Logger) *Service {
	return &Service{
		storage: store,
		memory:  mem,
		newID:   uuid.NewString,
		logger:  logger,
	}
}

// Create registers a new thread for the user, puts it first in the
// user's list and makes it current.
func (s *Service) Create(ctx context.Context, userID string) (string, error) {
	threadID := s.newID()

	if err := s.memory.EnsureUser(ctx, userID); err != nil {
		return "", fmt.Errorf("ensure memory user: %w", err)
	}
	if err := s.memory.CreateThread(ctx, userID, threadID); err != nil {
		return "", fmt.Errorf("register thread: %w", err)
	}

	existing, err := s.storage.GetThreads(ctx, userID)
	if err != nil {
		s.warnOrphaned(userID, threadID, err)
		return "", fmt.Errorf("load threads: %w", err)
	}
	if err := s.storage.SetThreads(ctx, userID, append([]string{threadID}, existing...)); err != nil {
		s.warnOrphaned(userID, threadID, err)
		return "", fmt.Errorf("save threads: %w", err)
	}
	if err := s.storage.SetCurrentThread(ctx, userID, threadID); err != nil {
		s.warnOrphaned(userID, threadID, err)
		return "", fmt.Errorf("set current thread: %w", err)
	}

	s.logger.Info("Created thread",
		zap.String("user_id", userID),
		zap.String("thread_id", threadID))
	return threadID, nil
}

// warnOrphaned records a memory session that exists without a directory
// entry.
func (s *Service) warnOrphaned(userID, threadID string, err error) {
	s.logger.Warn("Memory session left without directory entry",
		zap.Error(err),
		zap.String("user_id", userID),
		zap.String("thread_id", threadID))
}

func (s *Service) List(ctx context.Context, userID string) ([]string, error) {
	threads, err := s.storage.GetThreads(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load threads: %w", err)
	}
	return threads, nil
}

// Switch makes threadID current. It reports false, without touching any
// state, when the thread is not in the user's list.
func (s *Service) Switch(ctx context.Context, userID, threadID string) (bool, error) {
	threads, err := s.storage.GetThreads(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("load threads: %w", err)
	}
	if !slices.Contains(threads, threadID) {
		return false, nil
	}
	if err := s.storage.SetCurrentThread(ctx, userID, threadID); err != nil {
		return false, fmt.Errorf("set current thread: %w", err)
	}
	return true, nil
}

// Current returns the user's current thread, or "" when none is set or the
// pointer no longer matches a thread in the user's list.
func (s *Service) Current(ctx context.Context, userID string) (string, error) {
	current, err := s.storage.GetCurrentThread(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("load current thread: %w", err)
	}
	if current == "" {
		return "", nil
	}

	threads, err := s.storage.GetThreads(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("load threads: %w", err)
	}
	if !slices.Contains(threads, current) {
		s.logger.Warn("Current thread missing from thread list",
			zap.String("user_id", userID),
			zap.String("thread_id", current))
		return "", nil
	}
	return current, nil
}
