// Package journal keeps a write-only SQLite transcript of accepted
// thinking steps. Each server run is one session. The transcript is
// never loaded back into the live store.
package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"seqthink/internal/logging"
	"seqthink/internal/thinking"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

var (
	// ErrNoSession is returned by RecordStep before StartSession.
	ErrNoSession = errors.New("journal has no active session")

	// ErrSessionNotFound is returned when a session id or prefix matches nothing.
	ErrSessionNotFound = errors.New("session not found")

	// ErrAmbiguousSession is returned when a prefix matches several sessions.
	ErrAmbiguousSession = errors.New("session prefix is ambiguous")
)

// timeLayout is fixed width so stored timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// Session summarizes one server run.
type Session struct {
	ID        string
	Server    string
	Version   string
	Transport string
	StartedAt time.Time
	Steps     int
	LastStep  time.Time // Zero when no steps were recorded
}

// Journal is the SQLite transcript store.
type Journal struct {
	mu      sync.Mutex
	db      *sql.DB
	dbPath  string
	session string
}

// Open opens or creates the journal database at path.
func Open(path string) (*Journal, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One writer keeps SQLite from returning SQLITE_BUSY under concurrent steps.
	db.SetMaxOpenConns(1)

	j := &Journal{db: db, dbPath: path}
	if err := j.initialize(); err != nil {
		db.Close()
		return nil, err
	}

	logging.Get(logging.CategoryJournal).Info("Journal opened at %s", path)
	return j, nil
}

// initialize creates the schema.
func (j *Journal) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		session_id TEXT PRIMARY KEY,
		server TEXT NOT NULL,
		version TEXT NOT NULL,
		transport TEXT NOT NULL,
		started_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS steps (
		session_id TEXT NOT NULL REFERENCES sessions(session_id),
		seq INTEGER NOT NULL,
		thought TEXT NOT NULL,
		thought_number INTEGER NOT NULL,
		total_thoughts INTEGER NOT NULL,
		next_thought_needed INTEGER NOT NULL,
		is_revision INTEGER,
		revises_thought INTEGER,
		branch_from_thought INTEGER,
		branch_id TEXT,
		needs_more_thoughts INTEGER,
		recorded_at TEXT NOT NULL,
		PRIMARY KEY (session_id, seq)
	);
	CREATE INDEX IF NOT EXISTS idx_steps_branch ON steps(session_id, branch_id);
	`
	if _, err := j.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create journal schema: %w", err)
	}
	return nil
}

// Path returns the database path.
func (j *Journal) Path() string {
	return j.dbPath
}

// StartSession opens a new session and makes it the target of RecordStep.
func (j *Journal) StartSession(ctx context.Context, server, version, transport string) (string, error) {
	id := uuid.NewString()
	now := time.Now().UTC().Format(timeLayout)

	_, err := j.db.ExecContext(ctx,
		`INSERT INTO sessions (session_id, server, version, transport, started_at) VALUES (?, ?, ?, ?, ?)`,
		id, server, version, transport, now)
	if err != nil {
		return "", fmt.Errorf("failed to start session: %w", err)
	}

	j.mu.Lock()
	j.session = id
	j.mu.Unlock()

	logging.Get(logging.CategoryJournal).Info("Journal session %s started", id)
	return id, nil
}

// SessionID returns the active session id, or "".
func (j *Journal) SessionID() string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.session
}

// RecordStep appends step to the active session at position seq.
func (j *Journal) RecordStep(ctx context.Context, seq int, step thinking.Step) error {
	session := j.SessionID()
	if session == "" {
		return ErrNoSession
	}

	_, err := j.db.ExecContext(ctx, `
		INSERT INTO steps (
			session_id, seq, thought, thought_number, total_thoughts, next_thought_needed,
			is_revision, revises_thought, branch_from_thought, branch_id, needs_more_thoughts,
			recorded_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		session, seq, step.Thought, step.ThoughtNumber, step.TotalThoughts, step.NextThoughtNeeded,
		nullBool(step.IsRevision), nullInt(step.RevisesThought), nullInt(step.BranchFromThought),
		nullString(step.BranchID), nullBool(step.NeedsMoreThoughts),
		time.Now().UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("failed to record step %d: %w", seq, err)
	}

	logging.Get(logging.CategoryJournal).Debug("Recorded step %d in session %s", seq, session)
	return nil
}

// Sessions lists all sessions, newest first.
func (j *Journal) Sessions(ctx context.Context) ([]Session, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT s.session_id, s.server, s.version, s.transport, s.started_at,
		       COUNT(st.seq), COALESCE(MAX(st.recorded_at), '')
		FROM sessions s
		LEFT JOIN steps st ON st.session_id = s.session_id
		GROUP BY s.session_id
		ORDER BY s.started_at DESC, s.rowid DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		var s Session
		var started, last string
		if err := rows.Scan(&s.ID, &s.Server, &s.Version, &s.Transport, &started, &s.Steps, &last); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		s.StartedAt = parseTime(started)
		s.LastStep = parseTime(last)
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

// ResolveSession expands a full id or unique prefix to a session id.
func (j *Journal) ResolveSession(ctx context.Context, prefix string) (string, error) {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		return "", ErrSessionNotFound
	}

	rows, err := j.db.QueryContext(ctx,
		`SELECT session_id FROM sessions WHERE session_id = ? OR substr(session_id, 1, ?) = ? LIMIT 2`,
		prefix, len(prefix), prefix)
	if err != nil {
		return "", fmt.Errorf("failed to resolve session: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return "", err
		}
		if id == prefix {
			return id, nil
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return "", err
	}

	switch len(ids) {
	case 0:
		return "", fmt.Errorf("%w: %s", ErrSessionNotFound, prefix)
	case 1:
		return ids[0], nil
	default:
		return "", fmt.Errorf("%w: %s", ErrAmbiguousSession, prefix)
	}
}

// Steps returns the steps of a session in the order they were accepted.
func (j *Journal) Steps(ctx context.Context, sessionID string) ([]thinking.Step, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT thought, thought_number, total_thoughts, next_thought_needed,
		       is_revision, revises_thought, branch_from_thought, branch_id, needs_more_thoughts
		FROM steps
		WHERE session_id = ?
		ORDER BY seq
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query steps: %w", err)
	}
	defer rows.Close()

	steps := []thinking.Step{}
	for rows.Next() {
		var (
			s                     thinking.Step
			isRevision, needsMore sql.NullBool
			revises, branchFrom   sql.NullInt64
			branchID              sql.NullString
		)
		if err := rows.Scan(&s.Thought, &s.ThoughtNumber, &s.TotalThoughts, &s.NextThoughtNeeded,
			&isRevision, &revises, &branchFrom, &branchID, &needsMore); err != nil {
			return nil, fmt.Errorf("failed to scan step: %w", err)
		}
		s.IsRevision = fromNullBool(isRevision)
		s.RevisesThought = fromNullInt(revises)
		s.BranchFromThought = fromNullInt(branchFrom)
		s.BranchID = fromNullString(branchID)
		s.NeedsMoreThoughts = fromNullBool(needsMore)
		steps = append(steps, s)
	}
	return steps, rows.Err()
}

// Close closes the database.
func (j *Journal) Close() error {
	return j.db.Close()
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func nullBool(b *bool) sql.NullBool {
	if b == nil {
		return sql.NullBool{}
	}
	return sql.NullBool{Bool: *b, Valid: true}
}

func nullInt(i *int) sql.NullInt64 {
	if i == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*i), Valid: true}
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func fromNullBool(n sql.NullBool) *bool {
	if !n.Valid {
		return nil
	}
	v := n.Bool
	return &v
}

func fromNullInt(n sql.NullInt64) *int {
	if !n.Valid {
		return nil
	}
	v := int(n.Int64)
	return &v
}

func fromNullString(n sql.NullString) *string {
	if !n.Valid {
		return nil
	}
	v := n.String
	return &v
}
