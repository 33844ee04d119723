// Package audit persists trust and engine events to an append-only
// SQLite log. Each event carries the hash of its predecessor, so any
// retroactive edit breaks the chain and is detectable with Verify.
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/planguard-io/planguard/pkg/canonical"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS audit_events (
	seq        INTEGER PRIMARY KEY AUTOINCREMENT,
	id         TEXT NOT NULL UNIQUE,
	timestamp  TEXT NOT NULL,
	actor      TEXT NOT NULL,
	action     TEXT NOT NULL,
	payload    TEXT NOT NULL,
	prev_hash  TEXT NOT NULL,
	hash       TEXT NOT NULL
);
`

// genesisHash anchors the first event of every log.
const genesisHash = "0000000000000000000000000000000000000000000000000000000000000000"

// Event is one audit log entry.
type Event struct {
	Seq       int64  `json:"seq"`
	ID        string `json:"id"`
	Timestamp string `json:"timestamp"`
	Actor     string `json:"actor"`
	Action    string `json:"action"`
	Payload   string `json:"payload"`
	PrevHash  string `json:"prev_hash"`
	Hash      string `json:"hash"`
}

// Log is a hash-chained audit log backed by SQLite. It satisfies the
// AuditSink interface consumed by the trust package.
type Log struct {
	mu     sync.Mutex
	db     *sql.DB
	now    func() time.Time
	logger *slog.Logger
}

// Open creates or opens an audit log at path and ensures the schema.
func Open(path string) (*Log, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("audit: storage path is required")
	}
	dsn := filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("audit: open sqlite db: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("audit: ping sqlite db: %w", err)
	}
	log, err := NewWithDB(db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return log, nil
}

// NewWithDB wraps an existing database handle. The caller keeps
// ownership of the handle only until Close is called on the log.
func NewWithDB(db *sql.DB) (*Log, error) {
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("audit: ensure schema: %w", err)
	}
	return &Log{
		db:     db,
		now:    time.Now,
		logger: slog.Default().With("component", "audit"),
	}, nil
}

// Close releases the underlying database.
func (l *Log) Close() error {
	if l == nil || l.db == nil {
		return nil
	}
	return l.db.Close()
}

// Append records one event, chaining it to the previous entry. The
// payload is canonically serialized so the chained hash is stable.
func (l *Log) Append(actor, action string, payload any) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	raw, err := canonical.MarshalCanonical(payload)
	if err != nil {
		return fmt.Errorf("audit: serialize payload: %w", err)
	}

	prev, err := l.headHash()
	if err != nil {
		return err
	}

	ts := l.now().UTC().Format(time.RFC3339Nano)
	id := uuid.NewString()
	hash := chainHash(prev, ts, actor, action, string(raw))

	_, err = l.db.Exec(
		`INSERT INTO audit_events (id, timestamp, actor, action, payload, prev_hash, hash)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, ts, actor, action, string(raw), prev, hash,
	)
	if err != nil {
		return fmt.Errorf("audit: insert event: %w", err)
	}
	l.logger.Debug("event appended", "actor", actor, "action", action, "id", id)
	return nil
}

// Tail returns the most recent n events in chronological order.
func (l *Log) Tail(ctx context.Context, n int) ([]Event, error) {
	if n < 1 {
		return nil, nil
	}
	rows, err := l.db.QueryContext(ctx,
		`SELECT seq, id, timestamp, actor, action, payload, prev_hash, hash
		 FROM (SELECT * FROM audit_events ORDER BY seq DESC LIMIT ?)
		 ORDER BY seq ASC`, n)
	if err != nil {
		return nil, fmt.Errorf("audit: query tail: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return scanEvents(rows)
}

// Verify walks the whole chain and reports the first break, if any.
func (l *Log) Verify(ctx context.Context) error {
	rows, err := l.db.QueryContext(ctx,
		`SELECT seq, id, timestamp, actor, action, payload, prev_hash, hash
		 FROM audit_events ORDER BY seq ASC`)
	if err != nil {
		return fmt.Errorf("audit: query chain: %w", err)
	}
	defer func() { _ = rows.Close() }()

	events, err := scanEvents(rows)
	if err != nil {
		return err
	}

	prev := genesisHash
	for _, ev := range events {
		if ev.PrevHash != prev {
			return fmt.Errorf("audit: chain break at seq %d: prev_hash mismatch", ev.Seq)
		}
		if chainHash(ev.PrevHash, ev.Timestamp, ev.Actor, ev.Action, ev.Payload) != ev.Hash {
			return fmt.Errorf("audit: chain break at seq %d: event hash mismatch", ev.Seq)
		}
		prev = ev.Hash
	}
	return nil
}

func (l *Log) headHash() (string, error) {
	var hash string
	err := l.db.QueryRow(`SELECT hash FROM audit_events ORDER BY seq DESC LIMIT 1`).Scan(&hash)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return genesisHash, nil
	case err != nil:
		return "", fmt.Errorf("audit: read chain head: %w", err)
	default:
		return hash, nil
	}
}

func chainHash(prev, ts, actor, action, payload string) string {
	link, _ := json.Marshal([]string{prev, ts, actor, action, payload})
	return canonical.HashBytes(link)
}

func scanEvents(rows *sql.Rows) ([]Event, error) {
	var events []Event
	for rows.Next() {
		var ev Event
		if err := rows.Scan(&ev.Seq, &ev.ID, &ev.Timestamp, &ev.Actor, &ev.Action,
			&ev.Payload, &ev.PrevHash, &ev.Hash); err != nil {
			return nil, fmt.Errorf("audit: scan event: %w", err)
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("audit: iterate events: %w", err)
	}
	return events, nil
}
