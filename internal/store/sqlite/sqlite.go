package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/robceliesius/plugin-ably/internal/store"
)

// Schema is the history schema applied by New.
const Schema = `
	CREATE TABLE IF NOT EXISTS messages (
		seq           INTEGER PRIMARY KEY AUTOINCREMENT,
		id            TEXT NOT NULL UNIQUE,
		channel       TEXT NOT NULL,
		name          TEXT NOT NULL,
		client_id     TEXT NOT NULL DEFAULT '',
		connection_id TEXT NOT NULL DEFAULT '',
		data          BLOB,
		created_at_ms INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_messages_channel ON messages(channel, created_at_ms, seq);
`

// SQLiteStore implements store.HistoryStore for SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// New opens the database at dbPath and applies the history schema.
func New(dbPath string) (*SQLiteStore, error) {
	return NewWithSetup(dbPath, func(db *sql.DB) error {
		_, err := db.Exec(Schema)
		return err
	})
}

// NewWithSetup creates a new SQLite store and runs a setup function.
// Useful for tests to apply a custom schema.
func NewWithSetup(dbPath string, setup func(*sql.DB) error) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// SQLite works best with a single connection; it also keeps :memory: databases alive.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if setup != nil {
		if err := setup(db); err != nil {
			db.Close()
			return nil, fmt.Errorf("setup: %w", err)
		}
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// SaveMessage persists a message to storage.
func (s *SQLiteStore) SaveMessage(ctx context.Context, msg *store.Message) error {
	query := `
		INSERT INTO messages (id, channel, name, client_id, connection_id, data, created_at_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	result, err := s.db.ExecContext(ctx, query,
		msg.ID, msg.Channel, msg.Name, msg.ClientID, msg.ConnectionID, msg.Data, msg.CreatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}

	seq, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("get last insert id: %w", err)
	}

	msg.Seq = seq
	return nil
}

// ListMessages retrieves a page of channel messages.
// Backwards returns newest first, forwards oldest first; ties on timestamp
// are broken by insertion order.
func (s *SQLiteStore) ListMessages(ctx context.Context, channel string, q store.HistoryQuery) ([]*store.Message, error) {
	order := "DESC"
	if q.Direction == store.DirectionForwards {
		order = "ASC"
	}

	query := `
		SELECT seq, id, channel, name, client_id, connection_id, data, created_at_ms
		FROM messages
		WHERE channel = ?`
	args := []interface{}{channel}

	if !q.Start.IsZero() {
		query += ` AND created_at_ms >= ?`
		args = append(args, q.Start.UnixMilli())
	}
	if !q.End.IsZero() {
		query += ` AND created_at_ms <= ?`
		args = append(args, q.End.UnixMilli())
	}

	query += fmt.Sprintf(` ORDER BY created_at_ms %s, seq %s`, order, order)
	if q.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, q.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var messages []*store.Message
	for rows.Next() {
		var (
			msg       store.Message
			createdMs int64
		)
		if err := rows.Scan(&msg.Seq, &msg.ID, &msg.Channel, &msg.Name, &msg.ClientID, &msg.ConnectionID, &msg.Data, &createdMs); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		msg.CreatedAt = time.UnixMilli(createdMs)
		messages = append(messages, &msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}

	return messages, nil
}

var _ store.HistoryStore = (*SQLiteStore)(nil)
