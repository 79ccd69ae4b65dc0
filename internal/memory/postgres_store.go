package memory

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// PostgresStore persists conversation history and memory entries to PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a durable store over an open database handle.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	if db == nil {
		panic("memory: db cannot be nil")
	}
	return &PostgresStore{db: db}
}

// Append inserts a message into the conversation history.
func (s *PostgresStore) Append(ctx context.Context, conversationID string, msg Message) error {
	if strings.TrimSpace(conversationID) == "" {
		return fmt.Errorf("memory: conversation id required")
	}

	msgID := uuid.New()
	if msg.ID != "" {
		if parsed, err := uuid.Parse(msg.ID); err == nil {
			msgID = parsed
		}
	}
	timestamp := msg.Timestamp
	if timestamp.IsZero() {
		timestamp = time.Now().UTC()
	}

	var sender string
	if msg.Metadata != nil {
		sender = msg.Metadata["sender"]
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO conversation_messages (
			id, conversation_id, role, content, sender, created_at
		) VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO NOTHING
	`, msgID, conversationID, msg.Role, msg.Content, sender, timestamp)
	if err != nil {
		return fmt.Errorf("memory: failed to insert message: %w", err)
	}
	return nil
}

// GetRecent returns the last limit messages in chronological order.
func (s *PostgresStore) GetRecent(ctx context.Context, conversationID string, limit int, filter MessageFilter) ([]Message, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, role, content, COALESCE(sender, ''), created_at
		FROM conversation_messages
		WHERE conversation_id = $1
	`
	args := []any{conversationID}
	if filter.Role != "" {
		query += ` AND role = $2`
		args = append(args, filter.Role)
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT %d`, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("memory: failed to query messages: %w", err)
	}
	defer rows.Close()

	var reversed []Message
	for rows.Next() {
		var msg Message
		var id uuid.UUID
		var sender string
		if err := rows.Scan(&id, &msg.Role, &msg.Content, &sender, &msg.Timestamp); err != nil {
			return nil, fmt.Errorf("memory: failed to scan message: %w", err)
		}
		msg.ID = id.String()
		if sender != "" {
			msg.Metadata = map[string]string{"sender": sender}
		}
		reversed = append(reversed, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("memory: message rows: %w", err)
	}

	// Query returns newest-first; callers expect chronological order.
	messages := make([]Message, 0, len(reversed))
	for i := len(reversed) - 1; i >= 0; i-- {
		messages = append(messages, reversed[i])
	}
	return messages, nil
}

// SetValue upserts a memory entry. The most recent write wins.
func (s *PostgresStore) SetValue(ctx context.Context, conversationID, key, value, category string) error {
	if strings.TrimSpace(conversationID) == "" || strings.TrimSpace(key) == "" {
		return fmt.Errorf("memory: conversation id and key required")
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO memory_entries (conversation_id, key, category, value, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (conversation_id, category, key)
		DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at
	`, conversationID, key, category, value, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("memory: failed to set value: %w", err)
	}
	return nil
}

// GetLatest returns the most recently written entry in the category.
func (s *PostgresStore) GetLatest(ctx context.Context, conversationID, category string) (*Entry, error) {
	var entry Entry
	err := s.db.QueryRowContext(ctx, `
		SELECT key, category, value, updated_at
		FROM memory_entries
		WHERE conversation_id = $1 AND category = $2
		ORDER BY updated_at DESC
		LIMIT 1
	`, conversationID, category).Scan(&entry.Key, &entry.Category, &entry.Value, &entry.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("memory: failed to get latest entry: %w", err)
	}
	return &entry, nil
}

// GetAll returns every entry for the conversation, optionally filtered by category.
func (s *PostgresStore) GetAll(ctx context.Context, conversationID string, filter EntryFilter) ([]Entry, error) {
	query := `
		SELECT key, category, value, updated_at
		FROM memory_entries
		WHERE conversation_id = $1
	`
	args := []any{conversationID}
	if filter.Category != "" {
		query += ` AND category = $2`
		args = append(args, filter.Category)
	}
	query += ` ORDER BY updated_at ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("memory: failed to query entries: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var entry Entry
		if err := rows.Scan(&entry.Key, &entry.Category, &entry.Value, &entry.UpdatedAt); err != nil {
			return nil, fmt.Errorf("memory: failed to scan entry: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("memory: entry rows: %w", err)
	}
	return entries, nil
}

// Delete removes a memory entry. Deleting a missing entry is not an error.
func (s *PostgresStore) Delete(ctx context.Context, conversationID, key, category string) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM memory_entries
		WHERE conversation_id = $1 AND key = $2 AND category = $3
	`, conversationID, key, category)
	if err != nil {
		return fmt.Errorf("memory: failed to delete entry: %w", err)
	}
	return nil
}
