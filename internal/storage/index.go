package storage

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/kindcoach/kindcoach/internal/types"
)

// Index is the SQLite summary table over the JSON record store. The JSON
// files stay authoritative; the index only serves fast listings.
type Index struct {
	db *sql.DB
}

// IndexEntry is one row of the conversation index.
type IndexEntry struct {
	ConversationID string    `json:"conversation_id"`
	Username       string    `json:"username"`
	ChildName      string    `json:"child_name"`
	SituationType  string    `json:"situation_type"`
	CreatedAt      time.Time `json:"created_at"`
	DurationMs     int64     `json:"duration_ms"`
	WordCount      int       `json:"word_count"`
	Status         string    `json:"status"`
}

// NewIndex opens (or creates) the index database.
func NewIndex(dbPath string) (*Index, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %v", err)
	}

	createTableSQL := `
	CREATE TABLE IF NOT EXISTS conversations (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		conversation_id TEXT NOT NULL UNIQUE,
		username TEXT NOT NULL,
		child_name TEXT NOT NULL,
		situation_type TEXT,
		created_at DATETIME NOT NULL,
		duration_ms INTEGER,
		word_count INTEGER,
		status TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_conversations_created_at ON conversations(created_at);
	CREATE INDEX IF NOT EXISTS idx_conversations_username ON conversations(username);
	`

	if _, err := db.Exec(createTableSQL); err != nil {
		return nil, fmt.Errorf("failed to create table: %v", err)
	}

	return &Index{db: db}, nil
}

// Save upserts one conversation summary row.
func (ix *Index) Save(rec *types.ConversationRecord) error {
	var durationMs int64
	var wordCount int
	if rec.Transcription != nil {
		durationMs = rec.Transcription.AudioDurationMs
		wordCount = rec.Transcription.WordCount
	}

	query := `
	INSERT INTO conversations (conversation_id, username, child_name, situation_type, created_at, duration_ms, word_count, status)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(conversation_id) DO UPDATE SET
		child_name = excluded.child_name,
		situation_type = excluded.situation_type,
		duration_ms = excluded.duration_ms,
		word_count = excluded.word_count,
		status = excluded.status
	`

	_, err := ix.db.Exec(query, rec.ConversationID, rec.Username, rec.Metadata.ChildName,
		rec.Metadata.SituationType, rec.CreatedAt, durationMs, wordCount, types.StatusCompleted)
	if err != nil {
		return fmt.Errorf("failed to index conversation: %v", err)
	}
	return nil
}

// Get retrieves one index entry by conversation id.
func (ix *Index) Get(conversationID string) (*IndexEntry, error) {
	query := `
	SELECT conversation_id, username, child_name, situation_type, created_at, duration_ms, word_count, status
	FROM conversations WHERE conversation_id = ?
	`

	var e IndexEntry
	err := ix.db.QueryRow(query, conversationID).Scan(&e.ConversationID, &e.Username,
		&e.ChildName, &e.SituationType, &e.CreatedAt, &e.DurationMs, &e.WordCount, &e.Status)
	if err != nil {
		return nil, fmt.Errorf("failed to get conversation: %v", err)
	}
	return &e, nil
}

// List returns the newest index entries for a user.
func (ix *Index) List(username string, limit int) ([]IndexEntry, error) {
	query := `
	SELECT conversation_id, username, child_name, situation_type, created_at, duration_ms, word_count, status
	FROM conversations WHERE username = ? ORDER BY created_at DESC LIMIT ?
	`

	rows, err := ix.db.Query(query, username, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %v", err)
	}
	defer rows.Close()

	var entries []IndexEntry
	for rows.Next() {
		var e IndexEntry
		if err := rows.Scan(&e.ConversationID, &e.Username, &e.ChildName, &e.SituationType,
			&e.CreatedAt, &e.DurationMs, &e.WordCount, &e.Status); err != nil {
			continue
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Delete removes one conversation from the index.
func (ix *Index) Delete(conversationID string) error {
	_, err := ix.db.Exec(`DELETE FROM conversations WHERE conversation_id = ?`, conversationID)
	return err
}

// Close closes the database connection.
func (ix *Index) Close() error {
	return ix.db.Close()
}
