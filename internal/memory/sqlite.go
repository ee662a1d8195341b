package memory

import (
	"context"
	"database/sql"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/xaenox/slack-recall/internal/models"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// contextMessages is how many recent thread messages make up a context summary.
const contextMessages = 6

// SQLiteStore keeps memory locally for deployments without a hosted memory service.
type SQLiteStore struct {
	db     *sql.DB
	logger *zap.Logger

	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
}

// NewSQLiteStore opens or creates a SQLite database at the given path.
func NewSQLiteStore(dbPath string, logger *zap.Logger) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=foreign_keys(on)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	s := &SQLiteStore{
		db:      db,
		logger:  logger,
		entropy: ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0),
	}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) newID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), s.entropy).String()
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id         TEXT PRIMARY KEY,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS threads (
		id         TEXT PRIMARY KEY,
		user_id    TEXT NOT NULL REFERENCES users(id),
		created_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_threads_user ON threads(user_id);

	CREATE TABLE IF NOT EXISTS messages (
		id         TEXT PRIMARY KEY,
		thread_id  TEXT NOT NULL,
		role       TEXT NOT NULL,
		role_type  TEXT NOT NULL,
		content    TEXT NOT NULL,
		created_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_messages_thread ON messages(thread_id, id);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteStore) EnsureUser(ctx context.Context, userID string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO users (id, created_at) VALUES (?, ?)`,
		userID, time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *SQLiteStore) CreateThread(ctx context.Context, userID, threadID string) error {
	if err := s.EnsureUser(ctx, userID); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO threads (id, user_id, created_at) VALUES (?, ?, ?)`,
		threadID, userID, time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("insert thread: %w", err)
	}
	return nil
}

// Context summarizes the latest messages of the thread as a bullet list.
func (s *SQLiteStore) Context(ctx context.Context, userID, threadID string) (string, error) {
	history, err := s.History(ctx, threadID, contextMessages)
	if err != nil {
		return "", err
	}
	if len(history) == 0 {
		return "", nil
	}

	var b strings.Builder
	b.WriteString("Recent conversation:\n")
	for _, m := range history {
		fmt.Fprintf(&b, "- %s (%s): %s\n", m.Role, m.RoleType, m.Content)
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

func (s *SQLiteStore) History(ctx context.Context, threadID string, limit int) ([]models.HistoryMessage, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT role, role_type, content, created_at FROM (
			SELECT id, role, role_type, content, created_at FROM messages
			WHERE thread_id = ? ORDER BY id DESC LIMIT ?
		) ORDER BY id ASC`, threadID, limit)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	history := []models.HistoryMessage{}
	for rows.Next() {
		var m models.HistoryMessage
		var created string
		if err := rows.Scan(&m.Role, &m.RoleType, &m.Content, &created); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
		history = append(history, m)
	}
	return history, rows.Err()
}

func (s *SQLiteStore) AddInteraction(ctx context.Context, threadID string, in models.Interaction) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	now := time.Now().UTC().Format(time.RFC3339Nano)
	for _, m := range interactionMessages(in) {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO messages (id, thread_id, role, role_type, content, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
			s.newID(), threadID, m.Role, m.RoleType, m.Content, now)
		if err != nil {
			return fmt.Errorf("insert message: %w", err)
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
