package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/slack-go/slack"
	"github.com/xaenox/slack-recall/internal/assistant"
	"github.com/xaenox/slack-recall/internal/commands"
	"github.com/xaenox/slack-recall/internal/llm"
	"github.com/xaenox/slack-recall/internal/memory"
	"github.com/xaenox/slack-recall/internal/search"
	"github.com/xaenox/slack-recall/internal/slackdata"
	"github.com/xaenox/slack-recall/internal/storage"
	"github.com/xaenox/slack-recall/internal/threads"
	"github.com/xaenox/slack-recall/pkg/config"
	"go.uber.org/zap"
)

// app holds the wired components shared by serve and ask.
type app struct {
	store     storage.Storage
	memory    memory.Store
	slack     *slack.Client
	assistant *assistant.Orchestrator
}

func (a *app) Close() error {
	return errors.Join(a.store.Close(), a.memory.Close())
}

func buildApp(cfg *config.Config, logger *zap.Logger) (*app, error) {
	loc, err := time.LoadLocation(cfg.Assistant.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid assistant.timezone %q: %w", cfg.Assistant.Timezone, err)
	}

	store, err := newThreadStorage(cfg, logger)
	if err != nil {
		return nil, err
	}

	mem, err := newMemoryStore(cfg, logger)
	if err != nil {
		store.Close()
		return nil, err
	}

	slackClient := slack.New(cfg.Slack.BotToken)
	source := newSource(cfg, slackClient, logger)

	completer := llm.NewGPTClient(
		cfg.OpenAI.APIKey,
		cfg.OpenAI.BaseURL,
		cfg.OpenAI.Model,
		cfg.OpenAI.MaxTokens,
		cfg.OpenAI.Temperature,
		logger,
	)

	threadSvc := threads.NewService(store, mem, logger)
	orchestrator := assistant.New(
		commands.NewHandler(threadSvc, logger),
		threadSvc,
		mem,
		search.NewChannelSelector(source, completer, logger),
		search.NewHistorySearcher(source, completer, loc, cfg.Slack.WorkspaceURL, logger),
		completer,
		assistant.Options{
			IncludeThreadHistory: cfg.Assistant.IncludeThreadHistory,
			HistoryLimit:         cfg.Memory.HistoryLimit,
		},
		logger,
	)

	return &app{
		store:     store,
		memory:    mem,
		slack:     slackClient,
		assistant: orchestrator,
	}, nil
}

func newThreadStorage(cfg *config.Config, logger *zap.Logger) (storage.Storage, error) {
	switch cfg.Storage.Backend {
	case "postgres":
		logger.Info("Using PostgreSQL thread storage")
		store, err := storage.NewPostgresStorage(storage.DatabaseConfig{
			Host:     cfg.Database.Host,
			Port:     cfg.Database.Port,
			User:     cfg.Database.User,
			Password: cfg.Database.Password,
			DBName:   cfg.Database.DBName,
			SSLMode:  cfg.Database.SSLMode,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize storage: %w", err)
		}
		return store, nil
	case "redis":
		logger.Info("Using Redis thread storage")
		store, err := storage.NewRedisStorage(cfg.Redis.URL, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize storage: %w", err)
		}
		return store, nil
	default:
		logger.Info("Using in-memory thread storage")
		return storage.NewMemoryStorage(), nil
	}
}

func newMemoryStore(cfg *config.Config, logger *zap.Logger) (memory.Store, error) {
	if cfg.Memory.Backend == "sqlite" {
		logger.Info("Using local SQLite memory", zap.String("path", cfg.Memory.SQLitePath))
		store, err := memory.NewSQLiteStore(cfg.Memory.SQLitePath, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to open memory store: %w", err)
		}
		return store, nil
	}
	logger.Info("Using Zep memory service", zap.String("base_url", cfg.Memory.ZepBaseURL))
	return memory.NewZepClient(nil, cfg.Memory.ZepBaseURL, cfg.Memory.ZepAPIKey, logger), nil
}

func newSource(cfg *config.Config, client *slack.Client, logger *zap.Logger) slackdata.Source {
	if cfg.Slack.Source == "api" {
		logger.Info("Reading Slack through the Web API")
		return slackdata.NewAPISource(client)
	}
	logger.Info("Reading Slack through the tool broker")
	return slackdata.NewBrokerClient(nil, cfg.Broker.BaseURL, cfg.Broker.APIKey, cfg.Broker.ConnectedAccountID, logger)
}
