package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"go.uber.org/zap"
)

//go:embed migrations.sql
var migrations embed.FS

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// DSN renders the lib/pq connection string.
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
}

type PostgresStorage struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewPostgresStorage(config DatabaseConfig, logger *zap.Logger) (*PostgresStorage, error) {
	db, err := sql.Open("postgres", config.DSN())
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}

	// Test the connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("error connecting to the database: %w", err)
	}

	storage := &PostgresStorage{db: db, logger: logger}

	if err := storage.initializeSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("error initializing database schema: %w", err)
	}

	logger.Info("Connected to PostgreSQL",
		zap.String("host", config.Host),
		zap.String("dbname", config.DBName))
	return storage, nil
}

func (s *PostgresStorage) initializeSchema() error {
	migrationSQL, err := migrations.ReadFile("migrations.sql")
	if err != nil {
		return fmt.Errorf("error reading migrations file: %w", err)
	}

	if _, err := s.db.Exec(string(migrationSQL)); err != nil {
		return fmt.Errorf("error executing migrations: %w", err)
	}
	return nil
}

func (s *PostgresStorage) GetCurrentThread(ctx context.Context, userID string) (string, error) {
	var current string
	err := s.db.QueryRowContext(ctx,
		`SELECT current_thread FROM user_threads WHERE user_id = $1`, userID).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("error querying current thread: %w", err)
	}
	return current, nil
}

func (s *PostgresStorage) SetCurrentThread(ctx context.Context, userID, threadID string) error {
	query := `
		INSERT INTO user_threads (user_id, current_thread)
		VALUES ($1, $2)
		ON CONFLICT (user_id) DO UPDATE
		SET current_thread = EXCLUDED.current_thread, updated_at = NOW()`

	if _, err := s.db.ExecContext(ctx, query, userID, threadID); err != nil {
		return fmt.Errorf("error updating current thread: %w", err)
	}
	return nil
}

func (s *PostgresStorage) GetThreads(ctx context.Context, userID string) ([]string, error) {
	var threads []string
	err := s.db.QueryRowContext(ctx,
		`SELECT threads FROM user_threads WHERE user_id = $1`, userID).Scan(pq.Array(&threads))
	if errors.Is(err, sql.ErrNoRows) {
		return []string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("error querying threads: %w", err)
	}
	if threads == nil {
		threads = []string{}
	}
	return threads, nil
}

func (s *PostgresStorage) SetThreads(ctx context.Context, userID string, threadIDs []string) error {
	query := `
		INSERT INTO user_threads (user_id, threads)
		VALUES ($1, $2)
		ON CONFLICT (user_id) DO UPDATE
		SET threads = EXCLUDED.threads, updated_at = NOW()`

	if _, err := s.db.ExecContext(ctx, query, userID, pq.Array(threadIDs)); err != nil {
		return fmt.Errorf("error updating threads: %w", err)
	}
	return nil
}

func (s *PostgresStorage) Close() error {
	return s.db.Close()
}
