package sessions

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/lumenworks/gemgate/pkg/protocol"
)

// SessionRecord is the persisted shape of a session. Runtime-only
// state (queue, cancellation handle) is deliberately not part of it.
type SessionRecord struct {
	ID        string                 `json:"id"`
	Messages  []protocol.ChatMessage `json:"messages"`
	CreatedAt time.Time              `json:"createdAt"`
	UpdatedAt time.Time              `json:"updatedAt"`
}

func (r SessionRecord) snapshot() SessionRecord {
	out := r
	out.Messages = append([]protocol.ChatMessage(nil), r.Messages...)
	return out
}

// Store persists session records across restarts.
type Store interface {
	Save(rec SessionRecord) error
	LoadAll() ([]SessionRecord, error)
	Delete(id string) error
}

// NopStore discards everything; used when persistence is disabled.
type NopStore struct{}

func (NopStore) Save(SessionRecord) error          { return nil }
func (NopStore) LoadAll() ([]SessionRecord, error) { return nil, nil }
func (NopStore) Delete(string) error               { return nil }

// DirStore writes one JSON file per session under a directory.
type DirStore struct {
	dir string
}

func NewDirStore(dir string) (*DirStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create session dir: %w", err)
	}
	return &DirStore{dir: dir}, nil
}

// Save writes atomically: temp file in the same directory, sync,
// rename over the target.
func (d *DirStore) Save(rec SessionRecord) error {
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal session %s: %w", rec.ID, err)
	}

	tmp, err := os.CreateTemp(d.dir, "session-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}

	if err := os.Rename(tmpPath, d.path(rec.ID)); err != nil {
		return fmt.Errorf("rename session file: %w", err)
	}
	return nil
}

func (d *DirStore) LoadAll() ([]SessionRecord, error) {
	entries, err := os.ReadDir(d.dir)
	if err != nil {
		return nil, fmt.Errorf("read session dir: %w", err)
	}

	var out []SessionRecord
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(d.dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", entry.Name(), err)
		}
		var rec SessionRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			// Corrupt file, skip rather than refuse startup.
			continue
		}
		if rec.ID == "" {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

func (d *DirStore) Delete(id string) error {
	err := os.Remove(d.path(id))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

func (d *DirStore) path(id string) string {
	return filepath.Join(d.dir, sanitizeFilename(id)+".json")
}

// sanitizeFilename keeps session IDs safe as file names.
func sanitizeFilename(id string) string {
	replacer := strings.NewReplacer(
		":", "_",
		"/", "_",
		"\\", "_",
		"..", "_",
	)
	return replacer.Replace(id)
}
