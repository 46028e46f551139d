package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/harun/recall/internal/observability"
	"github.com/harun/recall/internal/tracing"
	"github.com/harun/recall/pkg/trace"
)

// The FTS index is maintained by triggers inside the writer's transaction,
// so traces and traces_fts commit or roll back as one unit.
const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	id TEXT PRIMARY KEY,
	summary TEXT,
	updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS traces (
	id TEXT PRIMARY KEY,
	session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
	role TEXT NOT NULL,
	content TEXT NOT NULL,
	metadata TEXT NOT NULL DEFAULT '{}',
	created_at TEXT NOT NULL,
	embedding TEXT
);

CREATE INDEX IF NOT EXISTS idx_traces_session ON traces(session_id);
CREATE INDEX IF NOT EXISTS idx_traces_created ON traces(created_at);

CREATE VIRTUAL TABLE IF NOT EXISTS traces_fts USING fts5(
	role, content, metadata,
	content=traces,
	content_rowid=rowid,
	tokenize='porter unicode61'
);

CREATE TRIGGER IF NOT EXISTS traces_ai AFTER INSERT ON traces BEGIN
	INSERT INTO traces_fts(rowid, role, content, metadata)
	VALUES (new.rowid, new.role, new.content, new.metadata);
END;

CREATE TRIGGER IF NOT EXISTS traces_ad AFTER DELETE ON traces BEGIN
	INSERT INTO traces_fts(traces_fts, rowid, role, content, metadata)
	VALUES ('delete', old.rowid, old.role, old.content, old.metadata);
END;

CREATE TRIGGER IF NOT EXISTS traces_au AFTER UPDATE ON traces BEGIN
	INSERT INTO traces_fts(traces_fts, rowid, role, content, metadata)
	VALUES ('delete', old.rowid, old.role, old.content, old.metadata);
	INSERT INTO traces_fts(rowid, role, content, metadata)
	VALUES (new.rowid, new.role, new.content, new.metadata);
END;
`

// timeLayout is fixed-width (unlike RFC3339Nano, which drops trailing
// zeros) so that lexical order of stored timestamps matches temporal order.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Store is the persistent trace store backed by SQLite with FTS5
type Store struct {
	db     *sql.DB
	logger zerolog.Logger
}

// Config holds store configuration
type Config struct {
	// Path to the SQLite database file
	Path string

	// BusyTimeoutMS is how long a writer waits on a locked database
	BusyTimeoutMS int

	// MaxOpenConns bounds the connection pool (WAL allows one writer,
	// many readers)
	MaxOpenConns int

	Logger zerolog.Logger
}

// Open opens the database, applies the schema idempotently, and returns a
// ready Store. The pool is process-wide shared state: open once, pass the
// Store by handle, Close at shutdown.
//
// The schema uses FTS5, so the binary must be built with
// "-tags sqlite_fts5"; without it Open fails with "no such module: fts5".
func Open(cfg Config) (*Store, error) {
	observability.EnsureRegistered()

	if cfg.Path == "" {
		return nil, fmt.Errorf("database path is required")
	}
	if cfg.BusyTimeoutMS <= 0 {
		cfg.BusyTimeoutMS = 5000
	}
	if cfg.MaxOpenConns <= 0 {
		cfg.MaxOpenConns = 4
	}

	dsn := fmt.Sprintf("%s?_fts5=1&_foreign_keys=1&_busy_timeout=%d", cfg.Path, cfg.BusyTimeoutMS)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)

	// WAL gives single-writer/multi-reader without readers blocking writes
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	// IF NOT EXISTS makes concurrent first-time initializers safe
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	s := &Store{
		db:     db,
		logger: cfg.Logger,
	}

	s.logger.Info().Str("path", cfg.Path).Msg("Trace store opened")
	s.refreshGauges(context.Background())

	return s, nil
}

// Close drains in-flight operations and closes the connection pool
func (s *Store) Close() error {
	s.logger.Info().Msg("Closing trace store")
	return s.db.Close()
}

// LogTurn persists one conversation turn. The trace ID and created_at are
// assigned here, at the write boundary, so ordering tracks commit order.
// The session row is created implicitly if absent.
func (s *Store) LogTurn(ctx context.Context, sessionID, role, content string, md trace.Metadata) (*trace.Trace, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, span := tracing.StartSpan(
		ctx,
		"recall.history",
		"history.log_turn",
		attribute.String("session_id", sessionID),
		attribute.String("role", role),
	)
	defer span.End()

	logger := tracing.LoggerFromContext(ctx, s.logger)
	start := time.Now()
	defer func() {
		observability.RecordTraceWrite(time.Since(start))
	}()

	if sessionID == "" {
		return nil, ErrEmptySessionID
	}
	if role == "" {
		return nil, ErrEmptyRole
	}
	if md == nil {
		md = trace.Metadata{}
	}

	metadataJSON, err := json.Marshal(md)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to encode metadata: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	tr := &trace.Trace{
		ID:        newTraceID(now),
		SessionID: sessionID,
		Role:      role,
		Content:   content,
		Metadata:  md,
		CreatedAt: now,
	}

	nowStr := now.Format(timeLayout)
	if _, err := tx.ExecContext(ctx,
		"INSERT OR IGNORE INTO sessions (id, updated_at) VALUES (?, ?)",
		sessionID, nowStr,
	); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to ensure session: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO traces (id, session_id, role, content, metadata, created_at, embedding)
		 VALUES (?, ?, ?, ?, ?, ?, NULL)`,
		tr.ID, tr.SessionID, tr.Role, tr.Content, string(metadataJSON), nowStr,
	); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to insert trace: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		"UPDATE sessions SET updated_at = ? WHERE id = ?",
		nowStr, sessionID,
	); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to touch session: %w", err)
	}

	if err := tx.Commit(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to commit trace: %w", err)
	}

	logger.Debug().
		Str("trace_id", tr.ID).
		Str("session_id", sessionID).
		Str("role", role).
		Msg("Turn logged")

	return tr, nil
}

// Recent returns up to n traces newest first. A non-empty sessionID scopes
// the result to that session; an empty one spans all sessions. Asking for
// more traces than exist is not an error.
func (s *Store) Recent(ctx context.Context, sessionID string, n int) ([]trace.Trace, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if n <= 0 {
		return []trace.Trace{}, nil
	}

	query := `
		SELECT id, session_id, role, content, metadata, created_at, embedding
		FROM traces`
	args := []interface{}{}
	if sessionID != "" {
		query += " WHERE session_id = ?"
		args = append(args, sessionID)
	}
	query += " ORDER BY created_at DESC, id DESC LIMIT ?"
	args = append(args, n)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent traces: %w", err)
	}
	defer rows.Close()

	return scanTraces(rows)
}

// DeleteSession removes a session, its traces, and their index entries as
// one atomic unit. Deleting an absent session returns ErrSessionNotFound.
func (s *Store) DeleteSession(ctx context.Context, sessionID string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, span := tracing.StartSpan(
		ctx,
		"recall.history",
		"history.delete_session",
		attribute.String("session_id", sessionID),
	)
	defer span.End()
	logger := tracing.LoggerFromContext(ctx, s.logger)

	if sessionID == "" {
		return ErrEmptySessionID
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, "DELETE FROM sessions WHERE id = ?", sessionID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to delete session: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check delete result: %w", err)
	}
	if affected == 0 {
		return ErrSessionNotFound
	}

	if err := tx.Commit(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to commit session delete: %w", err)
	}

	observability.RecordSessionDeleted()
	s.refreshGauges(ctx)

	logger.Info().Str("session_id", sessionID).Msg("Session deleted")
	return nil
}

// SessionInfo describes a stored session
type SessionInfo struct {
	ID         string    `json:"id"`
	Summary    string    `json:"summary,omitempty"`
	UpdatedAt  time.Time `json:"updated_at"`
	TraceCount int       `json:"trace_count"`
}

// Sessions lists all stored sessions, most recently updated first
func (s *Store) Sessions(ctx context.Context) ([]SessionInfo, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT s.id, COALESCE(s.summary, ''), s.updated_at, COUNT(t.id)
		FROM sessions s
		LEFT JOIN traces t ON t.session_id = s.id
		GROUP BY s.id
		ORDER BY s.updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	var sessions []SessionInfo
	for rows.Next() {
		var info SessionInfo
		var updatedAt string
		if err := rows.Scan(&info.ID, &info.Summary, &updatedAt, &info.TraceCount); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		info.UpdatedAt, err = time.Parse(timeLayout, updatedAt)
		if err != nil {
			return nil, fmt.Errorf("invalid session timestamp: %w", err)
		}
		sessions = append(sessions, info)
	}

	return sessions, rows.Err()
}

// Session returns one session's info, or ErrSessionNotFound
func (s *Store) Session(ctx context.Context, sessionID string) (*SessionInfo, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if sessionID == "" {
		return nil, ErrEmptySessionID
	}

	var info SessionInfo
	var updatedAt string
	err := s.db.QueryRowContext(ctx, `
		SELECT s.id, COALESCE(s.summary, ''), s.updated_at,
		       (SELECT COUNT(*) FROM traces t WHERE t.session_id = s.id)
		FROM sessions s WHERE s.id = ?`, sessionID).
		Scan(&info.ID, &info.Summary, &updatedAt, &info.TraceCount)
	if err == sql.ErrNoRows {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query session: %w", err)
	}

	info.UpdatedAt, err = time.Parse(timeLayout, updatedAt)
	if err != nil {
		return nil, fmt.Errorf("invalid session timestamp: %w", err)
	}

	return &info, nil
}

// newTraceID builds a time-sortable identifier: a zero-padded unix-nano
// prefix keeps lexical order aligned with temporal order, the nanoid suffix
// disambiguates same-nanosecond writers.
func newTraceID(t time.Time) string {
	suffix, err := gonanoid.New(8)
	if err != nil {
		// gonanoid only fails if the system entropy source does
		suffix = fmt.Sprintf("%08x", t.Nanosecond())
	}
	return fmt.Sprintf("%020d-%s", t.UnixNano(), suffix)
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTrace(row rowScanner) (trace.Trace, error) {
	var tr trace.Trace
	var metadataStr, createdAt string
	if err := row.Scan(&tr.ID, &tr.SessionID, &tr.Role, &tr.Content, &metadataStr, &createdAt, &tr.Embedding); err != nil {
		return tr, err
	}

	if err := json.Unmarshal([]byte(metadataStr), &tr.Metadata); err != nil {
		return tr, fmt.Errorf("failed to decode metadata for trace %s: %w", tr.ID, err)
	}

	parsed, err := time.Parse(timeLayout, createdAt)
	if err != nil {
		return tr, fmt.Errorf("invalid created_at for trace %s: %w", tr.ID, err)
	}
	tr.CreatedAt = parsed

	return tr, nil
}

func scanTraces(rows *sql.Rows) ([]trace.Trace, error) {
	traces := []trace.Trace{}
	for rows.Next() {
		tr, err := scanTrace(rows)
		if err != nil {
			return nil, err
		}
		traces = append(traces, tr)
	}
	return traces, rows.Err()
}

func (s *Store) refreshGauges(ctx context.Context) {
	var sessions, traces int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM sessions").Scan(&sessions); err == nil {
		observability.SetActiveSessions(sessions)
	}
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM traces").Scan(&traces); err == nil {
		observability.SetTracesTotal(traces)
	}
}

// successCondition is the SQL filter for success_only queries: an absent
// success field counts as success, matching trace.Trace.IsSuccess.
const successCondition = `COALESCE(json_extract(t.metadata, '$.success'), 1) NOT IN (0, '0', 'false', '')`
