package sessions

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lumenworks/gemgate/pkg/protocol"

	_ "modernc.org/sqlite" // pure-Go SQLite driver
)

// SQLiteStore persists session records in a local SQLite file. All
// goroutines serialize through one connection so concurrent writers
// never hit SQLITE_BUSY.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		messages TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create sessions table: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Save(rec SessionRecord) error {
	data, err := json.Marshal(rec.Messages)
	if err != nil {
		return fmt.Errorf("marshal messages: %w", err)
	}
	_, err = s.db.Exec(
		`INSERT OR REPLACE INTO sessions (id, messages, created_at, updated_at)
		 VALUES (?, ?, ?, ?)`,
		rec.ID, string(data), rec.CreatedAt.UnixMilli(), rec.UpdatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

func (s *SQLiteStore) LoadAll() ([]SessionRecord, error) {
	rows, err := s.db.Query(`SELECT id, messages, created_at, updated_at FROM sessions`)
	if err != nil {
		return nil, fmt.Errorf("load sessions: %w", err)
	}
	defer rows.Close()

	var out []SessionRecord
	for rows.Next() {
		var rec SessionRecord
		var msgJSON string
		var created, updated int64
		if err := rows.Scan(&rec.ID, &msgJSON, &created, &updated); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		var msgs []protocol.ChatMessage
		if err := json.Unmarshal([]byte(msgJSON), &msgs); err != nil {
			// Corrupt row, skip rather than refuse startup.
			continue
		}
		rec.Messages = msgs
		rec.CreatedAt = time.UnixMilli(created)
		rec.UpdatedAt = time.UnixMilli(updated)
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Delete(id string) error {
	_, err := s.db.Exec(`DELETE FROM sessions WHERE id = ?`, id)
	return err
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
