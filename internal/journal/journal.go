package journal

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/glebarez/sqlite"
	"github.com/hashicorp/go-hclog"
)

const schema = `CREATE TABLE IF NOT EXISTS messages (
	id        INTEGER PRIMARY KEY AUTOINCREMENT,
	time      INTEGER NOT NULL,
	direction TEXT    NOT NULL,
	channel   TEXT    NOT NULL,
	payload   TEXT    NOT NULL
)`

// Entry is one message that crossed the bridge.
type Entry struct {
	ID        int64
	Time      time.Time
	Direction string
	Channel   string
	Payload   string
}

// Journal persists bridge traffic to a SQLite file.
type Journal struct {
	db  *sql.DB
	log hclog.Logger
}

// Open opens (or creates) the journal at path.
func Open(path string, logger hclog.Logger) (*Journal, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating journal directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening journal %q: %w", path, err)
	}
	// Enable WAL mode for better concurrent access.
	_, _ = db.Exec("PRAGMA journal_mode=WAL")
	return initJournal(db, logger)
}

// OpenMemory creates an in-memory journal for testing.
func OpenMemory(logger hclog.Logger) (*Journal, error) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("opening in-memory journal: %w", err)
	}
	// Each connection to :memory: is a separate database.
	db.SetMaxOpenConns(1)
	return initJournal(db, logger)
}

func initJournal(db *sql.DB, logger hclog.Logger) (*Journal, error) {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating journal schema: %w", err)
	}
	return &Journal{db: db, log: logger}, nil
}

// Append stores one message.
func (j *Journal) Append(ctx context.Context, direction, channel string, payload []byte) error {
	_, err := j.db.ExecContext(ctx,
		"INSERT INTO messages (time, direction, channel, payload) VALUES (?, ?, ?, ?)",
		time.Now().UnixNano(), direction, channel, string(payload))
	if err != nil {
		return fmt.Errorf("journal insert: %w", err)
	}
	return nil
}

// Record stores a message, logging instead of returning failures.
func (j *Journal) Record(direction, channel string, payload []byte) {
	if err := j.Append(context.Background(), direction, channel, payload); err != nil {
		j.log.Warn("journal write failed", "channel", channel, "error", err)
	}
}

// List returns the newest limit entries, oldest first. A limit of 0 or less
// returns everything.
func (j *Journal) List(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := j.db.QueryContext(ctx, `SELECT id, time, direction, channel, payload FROM (
		SELECT * FROM messages ORDER BY id DESC LIMIT ?
	) ORDER BY id ASC`, limit)
	if err != nil {
		return nil, fmt.Errorf("journal query: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var ns int64
		if err := rows.Scan(&e.ID, &ns, &e.Direction, &e.Channel, &e.Payload); err != nil {
			return nil, fmt.Errorf("journal scan: %w", err)
		}
		e.Time = time.Unix(0, ns)
		out = append(out, e)
	}
	return out, rows.Err()
}

// Close closes the underlying database connection.
func (j *Journal) Close() error {
	return j.db.Close()
}
