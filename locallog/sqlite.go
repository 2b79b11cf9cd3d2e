package locallog

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"time"

	"github.com/m-mizutani/goerr/v2"
	_ "github.com/mattn/go-sqlite3"

	"github.com/becomeliminal/nim-memory/core"
)

const schema = `
CREATE TABLE IF NOT EXISTS messages (
	seq          INTEGER PRIMARY KEY AUTOINCREMENT,
	id           TEXT NOT NULL UNIQUE,
	text         TEXT NOT NULL,
	sender       TEXT NOT NULL,
	timestamp_ms INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_messages_timestamp ON messages(timestamp_ms);
`

// SQLite is a Log persisted to a SQLite file, so history survives restarts.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite creates or opens the database at path. ":memory:" is accepted
// for tests.
func OpenSQLite(path string) (*SQLite, error) {
	dsn := ":memory:"
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, goerr.Wrap(err, "failed to create log directory", goerr.V("path", path))
		}
		dsn = path + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000"
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to open sqlite", goerr.V("path", path))
	}
	// SQLite handles one writer at a time; one connection also keeps a
	// :memory: database alive across calls.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, goerr.Wrap(err, "failed to init schema", goerr.V("path", path))
	}
	return &SQLite{db: db}, nil
}

// Append validates and records msg. Re-appending an existing ID is a no-op.
func (s *SQLite) Append(ctx context.Context, msg core.Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	if msg.ID == "" {
		return goerr.New("message id is empty", goerr.T(core.ErrTagInvalidArgument))
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO messages (id, text, sender, timestamp_ms) VALUES (?, ?, ?, ?)`,
		msg.ID, msg.Text, string(msg.Sender), msg.Timestamp.UnixMilli())
	if err != nil {
		return goerr.Wrap(err, "failed to append message", goerr.V("id", msg.ID))
	}
	return nil
}

// ReadAll returns the history in append order.
func (s *SQLite) ReadAll(ctx context.Context) ([]core.Message, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, text, sender, timestamp_ms FROM messages ORDER BY seq`)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read messages")
	}
	defer rows.Close()

	var out []core.Message
	for rows.Next() {
		var (
			m      core.Message
			sender string
			ts     int64
		)
		if err := rows.Scan(&m.ID, &m.Text, &sender, &ts); err != nil {
			return nil, goerr.Wrap(err, "failed to scan message")
		}
		m.Sender = core.Sender(sender)
		m.Timestamp = time.UnixMilli(ts).UTC()
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, goerr.Wrap(err, "failed to iterate messages")
	}
	return out, nil
}

// Close closes the database.
func (s *SQLite) Close() error {
	return s.db.Close()
}

var _ Log = (*SQLite)(nil)
