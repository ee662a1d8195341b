package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/xaenox/slack-recall/internal/assistant"
	"github.com/xaenox/slack-recall/internal/bot"
	"github.com/xaenox/slack-recall/pkg/config"
	"go.uber.org/zap"
)

var (
	configPath string
	debug      bool
)

var rootCmd = &cobra.Command{
	Use:           "slack-recall",
	Short:         "Answer questions from Slack history",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Listen for Slack mentions and reply in thread",
	RunE:  runServe,
}

var askCmd = &cobra.Command{
	Use:   "ask [query]",
	Short: "Ask one question or run a ~thread command from the terminal",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runAsk,
}

var askUser string

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "Path to the YAML config file (optional)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable development logging")
	askCmd.Flags().StringVarP(&askUser, "user", "u", "", "Slack user id to act as (default: assistant.default_user_id)")

	rootCmd.AddCommand(serveCmd, askCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newLogger() (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func setup() (*config.Config, *zap.Logger, error) {
	logger, err := newLogger()
	if err != nil {
		return nil, nil, fmt.Errorf("init logger: %w", err)
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.Warn("Failed to load .env file", zap.Error(err))
	}

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		logger.Error("Failed to load config", zap.Error(err), zap.String("path", configPath))
		return nil, nil, err
	}
	return cfg, logger, nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer logger.Sync()

	app, err := buildApp(cfg, logger)
	if err != nil {
		return err
	}
	defer app.Close()

	b := bot.New(app.assistant, bot.NewSlackPoster(app.slack), cfg.Slack.SigningSecret, logger)
	if cfg.Slack.SigningSecret == "" {
		logger.Warn("slack.signing_secret is empty, requests are not verified")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- b.Start(cfg.Slack.ListenAddr)
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server: %w", err)
		}
	case <-ctx.Done():
		logger.Info("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := b.Shutdown(shutdownCtx); err != nil {
			logger.Error("Failed to stop server", zap.Error(err))
		}
	}

	b.Wait()
	return nil
}

func runAsk(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer logger.Sync()

	app, err := buildApp(cfg, logger)
	if err != nil {
		return err
	}
	defer app.Close()

	userID := askUser
	if userID == "" {
		userID = cfg.Assistant.DefaultUserID
	}

	answer, err := app.assistant.Handle(cmd.Context(), assistant.Request{
		UserID: userID,
		Query:  strings.Join(args, " "),
	})
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), answer)
	return nil
}
