// Package backuplog keeps a best-effort relational log of every stored
// interaction. Failures here are logged, never propagated: the vector store
// is the source of truth, this log is the recovery and inspection surface.
package backuplog

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/dialogkit/convmem/core"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Entry is one logged interaction row.
type Entry struct {
	ID           int64
	ClientID     string
	UserText     string
	BotText      string
	Intent       string
	Extracted    core.Extracted
	Tone         string
	HourBucket   int
	Satisfaction float64
	CreatedAt    time.Time
}

// Store wraps the SQLite interaction log.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the log database in dataDir and applies pending
// migrations. Pass ":memory:" as dataDir for an in-memory database.
func Open(dataDir string) (*Store, error) {
	var dsn string
	if dataDir == ":memory:" {
		dsn = ":memory:"
	} else {
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		dsn = filepath.Join(dataDir, "convmem.db")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	// Single connection avoids "database is locked" under concurrent writes.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting journal mode: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error { return s.db.Close() }

// LogInteraction inserts one interaction row.
func (s *Store) LogInteraction(ctx context.Context, turn core.ConversationTurn, tone string, satisfaction float64) error {
	extracted, err := json.Marshal(turn.Extracted)
	if err != nil {
		extracted = []byte("{}")
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO interactions (client_id, user_text, bot_text, intent, extracted_json, tone, hour_bucket, satisfaction)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		turn.ClientID, turn.UserText, turn.BotText, turn.Intent,
		string(extracted), tone, turn.Timestamp.Hour(), satisfaction,
	)
	if err != nil {
		return fmt.Errorf("inserting interaction: %w", err)
	}
	return nil
}

// RecentInteractions returns a client's latest rows, newest first. Operator
// and debugging surface; nothing on the hot path depends on it.
func (s *Store) RecentInteractions(ctx context.Context, clientID string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, client_id, user_text, bot_text, intent, extracted_json, tone, hour_bucket, satisfaction, created_at
		FROM interactions WHERE client_id = ? ORDER BY created_at DESC, id DESC LIMIT ?`,
		clientID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying interactions: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var extracted string
		if err := rows.Scan(&e.ID, &e.ClientID, &e.UserText, &e.BotText, &e.Intent,
			&extracted, &e.Tone, &e.HourBucket, &e.Satisfaction, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning interaction: %w", err)
		}
		_ = json.Unmarshal([]byte(extracted), &e.Extracted)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// migrate applies embedded SQL migrations in filename order.
func (s *Store) migrate() error {
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		version, err := parseMigrationVersion(entry.Name())
		if err != nil {
			return err
		}

		var applied int
		if err := s.db.QueryRow("SELECT COUNT(*) FROM schema_version WHERE version = ?", version).Scan(&applied); err != nil {
			return fmt.Errorf("checking migration %d: %w", version, err)
		}
		if applied > 0 {
			continue
		}

		content, err := migrationsFS.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", entry.Name(), err)
		}
		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("beginning migration %d: %w", version, err)
		}
		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("applying migration %d: %w", version, err)
		}
		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", version); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %d: %w", version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %d: %w", version, err)
		}
	}
	return nil
}

// parseMigrationVersion extracts the numeric prefix from "NNN_name.sql".
func parseMigrationVersion(name string) (int, error) {
	idx := strings.Index(name, "_")
	if idx <= 0 {
		return 0, fmt.Errorf("malformed migration filename: %s", name)
	}
	version, err := strconv.Atoi(name[:idx])
	if err != nil {
		return 0, fmt.Errorf("malformed migration version in %s: %w", name, err)
	}
	return version, nil
}
