// ABOUTME: SQLite implementation of MessageStore using modernc.org/sqlite
// ABOUTME: Persists conversation messages and tool call audit rows with automatic schema creation

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/x6nux/linkclaw-sub000/internal/conversation"
)

// timeLayout is fixed width so that text order matches time order.
// RFC3339Nano drops trailing zeros and would sort 05Z after 05.5Z.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// SQLiteStore implements MessageStore using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Enable WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS messages (
			id TEXT PRIMARY KEY,
			chat_kind TEXT NOT NULL,
			chat_ref TEXT NOT NULL,
			sender_id TEXT NOT NULL,
			sender_label TEXT NOT NULL DEFAULT '',
			content TEXT NOT NULL,
			origin TEXT NOT NULL DEFAULT 'confirmed',
			created_at TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_messages_chat_created
			ON messages(chat_kind, chat_ref, created_at);

		CREATE TABLE IF NOT EXISTS tool_calls (
			id TEXT PRIMARY KEY,
			tool TEXT NOT NULL,
			arguments TEXT NOT NULL DEFAULT '',
			result TEXT NOT NULL DEFAULT '',
			is_error INTEGER NOT NULL DEFAULT 0,
			duration_ms INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_tool_calls_created
			ON tool_calls(created_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// SaveMessage inserts msg or, if its id exists, updates it in place.
func (s *SQLiteStore) SaveMessage(ctx context.Context, msg conversation.Message) error {
	if msg.ID == "" {
		return errors.New("message id is required")
	}
	if msg.Chat == nil {
		return errors.New("message chat is required")
	}
	createdAt := msg.Timestamp
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	query := `
		INSERT INTO messages (id, chat_kind, chat_ref, sender_id, sender_label, content, origin, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			sender_label = excluded.sender_label,
			content = excluded.content,
			origin = excluded.origin,
			created_at = excluded.created_at
	`

	_, err := s.db.ExecContext(ctx, query,
		msg.ID,
		msg.Chat.Kind(),
		msg.Chat.Ref(),
		msg.SenderID,
		msg.SenderLabel,
		msg.Content,
		msg.Origin.String(),
		createdAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("saving message: %w", err)
	}

	s.logger.Debug("saved message", "id", msg.ID, "chat", conversation.Key(msg.Chat), "origin", msg.Origin.String())
	return nil
}

// DeleteMessage removes a message. Returns ErrNotFound if it does not exist.
func (s *SQLiteStore) DeleteMessage(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM messages WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting message: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListMessages returns the most recent `limit` messages of chat in
// chronological order (oldest first). If limit is 0 or negative, all
// messages are returned.
func (s *SQLiteStore) ListMessages(ctx context.Context, chat conversation.ChatID, limit int) ([]conversation.Message, error) {
	var query string
	args := []any{chat.Kind(), chat.Ref()}

	if limit > 0 {
		query = `
			SELECT id, sender_id, sender_label, content, origin, created_at
			FROM (
				SELECT id, sender_id, sender_label, content, origin, created_at
				FROM messages
				WHERE chat_kind = ? AND chat_ref = ?
				ORDER BY created_at DESC, id DESC
				LIMIT ?
			)
			ORDER BY created_at ASC, id ASC
		`
		args = append(args, limit)
	} else {
		query = `
			SELECT id, sender_id, sender_label, content, origin, created_at
			FROM messages
			WHERE chat_kind = ? AND chat_ref = ?
			ORDER BY created_at ASC, id ASC
		`
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying messages: %w", err)
	}
	defer rows.Close()

	var messages []conversation.Message
	for rows.Next() {
		msg := conversation.Message{Chat: chat}
		var origin, createdAtStr string

		if err := rows.Scan(&msg.ID, &msg.SenderID, &msg.SenderLabel, &msg.Content, &origin, &createdAtStr); err != nil {
			return nil, fmt.Errorf("scanning message row: %w", err)
		}

		msg.Timestamp, err = time.Parse(time.RFC3339Nano, createdAtStr)
		if err != nil {
			return nil, fmt.Errorf("parsing message created_at: %w", err)
		}
		if origin == conversation.Optimistic.String() {
			msg.Origin = conversation.Optimistic
		} else {
			msg.Origin = conversation.Confirmed
		}

		messages = append(messages, msg)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating message rows: %w", err)
	}

	return messages, nil
}

// ListChats returns every chat with messages, most recently active first.
func (s *SQLiteStore) ListChats(ctx context.Context) ([]ChatSummary, error) {
	query := `
		SELECT chat_kind, chat_ref, COUNT(*), MAX(created_at)
		FROM messages
		GROUP BY chat_kind, chat_ref
		ORDER BY MAX(created_at) DESC
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying chats: %w", err)
	}
	defer rows.Close()

	var chats []ChatSummary
	for rows.Next() {
		var kind, ref, lastStr string
		var summary ChatSummary

		if err := rows.Scan(&kind, &ref, &summary.MessageCount, &lastStr); err != nil {
			return nil, fmt.Errorf("scanning chat row: %w", err)
		}

		summary.Chat, err = conversation.FromParts(kind, ref)
		if err != nil {
			s.logger.Warn("skipping unreadable chat row", "chat_kind", kind, "chat_ref", ref, "error", err)
			continue
		}
		summary.LastActivity, err = time.Parse(time.RFC3339Nano, lastStr)
		if err != nil {
			return nil, fmt.Errorf("parsing last activity: %w", err)
		}

		chats = append(chats, summary)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating chat rows: %w", err)
	}

	return chats, nil
}

// SaveToolCall records a tool invocation. ID and CreatedAt are filled in when
// empty.
func (s *SQLiteStore) SaveToolCall(ctx context.Context, call *ToolCall) error {
	if call.ID == "" {
		call.ID = uuid.New().String()
	}
	if call.CreatedAt.IsZero() {
		call.CreatedAt = time.Now()
	}

	query := `
		INSERT INTO tool_calls (id, tool, arguments, result, is_error, duration_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		call.ID,
		call.Tool,
		call.Arguments,
		call.Result,
		call.IsError,
		call.Duration.Milliseconds(),
		call.CreatedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("inserting tool call: %w", err)
	}

	s.logger.Debug("saved tool call", "id", call.ID, "tool", call.Tool, "is_error", call.IsError)
	return nil
}

// ListToolCalls returns the most recent tool calls, newest first.
// If limit is 0 or negative, a default limit of 100 is used.
func (s *SQLiteStore) ListToolCalls(ctx context.Context, limit int) ([]*ToolCall, error) {
	if limit <= 0 {
		limit = 100
	}
	if limit > 1000 {
		limit = 1000
	}

	query := `
		SELECT id, tool, arguments, result, is_error, duration_ms, created_at
		FROM tool_calls
		ORDER BY created_at DESC
		LIMIT ?
	`

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("querying tool calls: %w", err)
	}
	defer rows.Close()

	var calls []*ToolCall
	for rows.Next() {
		var call ToolCall
		var durationMS int64
		var createdAtStr string

		if err := rows.Scan(&call.ID, &call.Tool, &call.Arguments, &call.Result, &call.IsError, &durationMS, &createdAtStr); err != nil {
			return nil, fmt.Errorf("scanning tool call row: %w", err)
		}

		call.Duration = time.Duration(durationMS) * time.Millisecond
		call.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAtStr)
		if err != nil {
			return nil, fmt.Errorf("parsing tool call created_at: %w", err)
		}

		calls = append(calls, &call)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating tool call rows: %w", err)
	}

	return calls, nil
}
