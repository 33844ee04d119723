package audit_test

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/planguard-io/planguard/pkg/audit"
	"github.com/planguard-io/planguard/pkg/trust"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

func openTestLog(t *testing.T) *audit.Log {
	t.Helper()
	log, err := audit.Open(filepath.Join(t.TempDir(), "audit.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = log.Close() })
	return log
}

func TestLog_AppendAndTail(t *testing.T) {
	log := openTestLog(t)

	require.NoError(t, log.Append("license", "check", map[string]any{"edition": "pro", "reason": "valid"}))
	require.NoError(t, log.Append("module", "load", map[string]any{"code": "SIGNATURE_INVALID"}))
	require.NoError(t, log.Append("engine", "run", map[string]any{"resources": 12}))

	events, err := log.Tail(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, events, 2)

	// Chronological order, most recent last.
	assert.Equal(t, "module", events[0].Actor)
	assert.Equal(t, "engine", events[1].Actor)
	assert.Equal(t, events[0].Hash, events[1].PrevHash)
	assert.NotEmpty(t, events[0].ID)
	assert.NotEqual(t, events[0].ID, events[1].ID)
}

func TestLog_TailLargerThanLog(t *testing.T) {
	log := openTestLog(t)
	require.NoError(t, log.Append("license", "check", map[string]any{"edition": "free"}))

	events, err := log.Tail(context.Background(), 50)
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestLog_VerifyDetectsTampering(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.db")
	log, err := audit.Open(path)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		require.NoError(t, log.Append("license", "check", map[string]any{"n": i}))
	}
	require.NoError(t, log.Verify(context.Background()))
	require.NoError(t, log.Close())

	// Rewrite one payload behind the log's back.
	raw, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	_, err = raw.Exec(`UPDATE audit_events SET payload = '{"n":99}' WHERE seq = 3`)
	require.NoError(t, err)
	require.NoError(t, raw.Close())

	tampered, err := audit.Open(path)
	require.NoError(t, err)
	defer func() { _ = tampered.Close() }()

	err = tampered.Verify(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "seq 3")
}

// WAL persists in the database file, so a fresh plain connection
// reports the mode Open configured.
func TestOpen_ConfiguresWALJournalMode(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.db")
	log, err := audit.Open(path)
	require.NoError(t, err)
	require.NoError(t, log.Append("license", "check", map[string]any{"edition": "free"}))
	require.NoError(t, log.Close())

	raw, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	defer func() { _ = raw.Close() }()

	var mode string
	require.NoError(t, raw.QueryRow("PRAGMA journal_mode").Scan(&mode))
	assert.Equal(t, "wal", mode)
}

func TestLog_SatisfiesTrustSink(t *testing.T) {
	var _ trust.AuditSink = openTestLog(t)
}

func TestLog_PayloadSerializationIsStable(t *testing.T) {
	log := openTestLog(t)
	require.NoError(t, log.Append("engine", "run", map[string]any{"b": 2, "a": 1}))

	events, err := log.Tail(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, `{"a":1,"b":2}`, events[0].Payload)

	ts, err := time.Parse(time.RFC3339Nano, events[0].Timestamp)
	require.NoError(t, err)
	assert.Equal(t, time.UTC, ts.Location())
}

// An insert failure must surface to the caller instead of silently
// dropping the event.
func TestLog_AppendSurfacesInsertFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS audit_events").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT hash FROM audit_events").
		WillReturnRows(sqlmock.NewRows([]string{"hash"}))
	mock.ExpectExec("INSERT INTO audit_events").
		WillReturnError(assert.AnError)

	log, err := audit.NewWithDB(db)
	require.NoError(t, err)

	err = log.Append("license", "check", map[string]any{"edition": "pro"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insert event")
	require.NoError(t, mock.ExpectationsWereMet())
}
