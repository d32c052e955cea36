// Package vault persists captured memories in a local SQLite database. It is
// the storage collaborator behind the queue: writes are idempotent by content
// hash so at-least-once delivery never produces duplicates.
package vault

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"emma/internal/queue"
)

// Vault is a SQLite-backed memory store.
type Vault struct {
	db     *sql.DB
	dbPath string
	log    *zap.Logger
}

// Open creates or opens the vault database at path, initializing the schema.
func Open(path string, log *zap.Logger) (*Vault, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create vault directory: %w", err)
	}
	if log == nil {
		log = zap.NewNop()
	}

	db, err := sql.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open vault database: %w", err)
	}

	v := &Vault{db: db, dbPath: path, log: log}
	if err := v.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize vault schema: %w", err)
	}
	return v, nil
}

// Close closes the database connection.
func (v *Vault) Close() error {
	return v.db.Close()
}

// Path returns the database file path.
func (v *Vault) Path() string {
	return v.dbPath
}

func (v *Vault) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS memories (
		id TEXT PRIMARY KEY,
		content TEXT NOT NULL,
		content_hash TEXT NOT NULL UNIQUE,
		role TEXT,
		type TEXT NOT NULL,
		source TEXT,
		capture_type TEXT,
		url TEXT,
		domain TEXT,
		captured_at DATETIME NOT NULL,
		metadata_json TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_memories_domain ON memories(domain);
	CREATE INDEX IF NOT EXISTS idx_memories_type ON memories(type);
	CREATE INDEX IF NOT EXISTS idx_memories_captured ON memories(captured_at);

	CREATE TABLE IF NOT EXISTS attachments (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		memory_id TEXT NOT NULL,
		technique TEXT NOT NULL,
		mime TEXT NOT NULL,
		bytes BLOB NOT NULL,
		FOREIGN KEY (memory_id) REFERENCES memories(id)
	);
	CREATE INDEX IF NOT EXISTS idx_attachments_memory ON attachments(memory_id);
	`
	_, err := v.db.Exec(schema)
	return err
}

// contentHash is the deduplication key: same text from the same page is the
// same memory, no matter how many flush retries deliver it.
func contentHash(m queue.Memory) string {
	h := sha256.New()
	h.Write([]byte(m.Content))
	h.Write([]byte{0})
	h.Write([]byte(m.URL))
	h.Write([]byte{0})
	h.Write([]byte(m.Role))
	return hex.EncodeToString(h.Sum(nil))
}

// AddMemory stores one memory and its attachments. Re-delivery of an already
// stored memory returns the existing id without writing anything.
func (v *Vault) AddMemory(ctx context.Context, m queue.Memory) (string, error) {
	hash := contentHash(m)

	tx, err := v.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin vault write: %w", err)
	}
	defer tx.Rollback()

	var existing string
	err = tx.QueryRowContext(ctx, `SELECT id FROM memories WHERE content_hash = ?`, hash).Scan(&existing)
	switch {
	case err == nil:
		v.log.Debug("duplicate memory skipped", zap.String("id", existing))
		return existing, nil
	case err != sql.ErrNoRows:
		return "", fmt.Errorf("check duplicate: %w", err)
	}

	id := m.ID
	if id == "" {
		id = uuid.NewString()
	}
	capturedAt := m.CapturedAt
	if capturedAt.IsZero() {
		capturedAt = time.Now().UTC()
	}

	var metadataJSON []byte
	if len(m.Metadata) > 0 {
		metadataJSON, err = json.Marshal(m.Metadata)
		if err != nil {
			return "", fmt.Errorf("encode metadata: %w", err)
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO memories (id, content, content_hash, role, type, source, capture_type, url, domain, captured_at, metadata_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, m.Content, hash, m.Role, m.Type, m.Source, m.CaptureType, m.URL, m.Domain,
		capturedAt.UTC().Format(time.RFC3339Nano), string(metadataJSON))
	if err != nil {
		return "", fmt.Errorf("insert memory: %w", err)
	}

	for _, a := range m.Attachments {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO attachments (memory_id, technique, mime, bytes)
			VALUES (?, ?, ?, ?)`,
			id, a.Technique, a.MIME, a.Bytes)
		if err != nil {
			return "", fmt.Errorf("insert attachment: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit vault write: %w", err)
	}

	v.log.Debug("memory stored",
		zap.String("id", id),
		zap.String("type", m.Type),
		zap.Int("attachments", len(m.Attachments)))
	return id, nil
}

// Stats summarizes vault contents.
type Stats struct {
	Memories    int
	Attachments int
	ByType      map[string]int
	ByDomain    map[string]int
}

// Stats counts stored memories by type and domain.
func (v *Vault) Stats(ctx context.Context) (Stats, error) {
	stats := Stats{
		ByType:   make(map[string]int),
		ByDomain: make(map[string]int),
	}

	if err := v.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM memories`).Scan(&stats.Memories); err != nil {
		return stats, fmt.Errorf("count memories: %w", err)
	}
	if err := v.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM attachments`).Scan(&stats.Attachments); err != nil {
		return stats, fmt.Errorf("count attachments: %w", err)
	}

	rows, err := v.db.QueryContext(ctx, `SELECT type, COUNT(*) FROM memories GROUP BY type`)
	if err != nil {
		return stats, fmt.Errorf("count by type: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var typ string
		var n int
		if err := rows.Scan(&typ, &n); err != nil {
			return stats, err
		}
		stats.ByType[typ] = n
	}
	if err := rows.Err(); err != nil {
		return stats, err
	}

	domainRows, err := v.db.QueryContext(ctx, `SELECT domain, COUNT(*) FROM memories WHERE domain != '' GROUP BY domain`)
	if err != nil {
		return stats, fmt.Errorf("count by domain: %w", err)
	}
	defer domainRows.Close()
	for domainRows.Next() {
		var domain string
		var n int
		if err := domainRows.Scan(&domain, &n); err != nil {
			return stats, err
		}
		stats.ByDomain[domain] = n
	}
	return stats, domainRows.Err()
}

// List returns the most recent memories, newest first, without attachment
// payloads. limit <= 0 returns everything.
func (v *Vault) List(ctx context.Context, limit int) ([]queue.Memory, error) {
	q := `SELECT id, content, role, type, source, capture_type, url, domain, captured_at, metadata_json
		FROM memories ORDER BY captured_at DESC`
	args := []any{}
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := v.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list memories: %w", err)
	}
	defer rows.Close()

	var out []queue.Memory
	for rows.Next() {
		var m queue.Memory
		var capturedAt, metadataJSON string
		if err := rows.Scan(&m.ID, &m.Content, &m.Role, &m.Type, &m.Source,
			&m.CaptureType, &m.URL, &m.Domain, &capturedAt, &metadataJSON); err != nil {
			return nil, err
		}
		if t, err := time.Parse(time.RFC3339Nano, capturedAt); err == nil {
			m.CapturedAt = t
		}
		if metadataJSON != "" {
			if err := json.Unmarshal([]byte(metadataJSON), &m.Metadata); err != nil {
				return nil, fmt.Errorf("decode metadata for %s: %w", m.ID, err)
			}
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
