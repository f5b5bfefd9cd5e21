package sessionstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-go-golems/supportbot/pkg/support/capability"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
)

type SQLiteStore struct {
	db *sql.DB
}

var _ Store = &SQLiteStore{}

// SQLiteDSNForFile builds a DSN with WAL and a busy timeout so the HTTP
// server's concurrent sessions do not trip SQLITE_BUSY.
func SQLiteDSNForFile(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", errors.New("sqlite session store: empty path")
	}
	return fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on", path), nil
}

func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, errors.New("sqlite session store: empty dsn")
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}
	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) migrate() error {
	if s == nil || s.db == nil {
		return errors.New("sqlite session store: db is nil")
	}
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			session_id TEXT PRIMARY KEY,
			status TEXT NOT NULL,
			position TEXT NOT NULL DEFAULT '',
			runs INTEGER NOT NULL DEFAULT 0,
			state_json TEXT NOT NULL DEFAULT '{}',
			created_at_ms INTEGER NOT NULL,
			updated_at_ms INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS sessions_by_status ON sessions(status, updated_at_ms DESC);`,
		`CREATE TABLE IF NOT EXISTS escalation_tickets (
			ticket_id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			priority TEXT NOT NULL DEFAULT '',
			description TEXT NOT NULL DEFAULT '',
			transcript TEXT NOT NULL DEFAULT '',
			created_at_ms INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS escalation_tickets_by_session ON escalation_tickets(session_id, created_at_ms DESC);`,
	}
	for _, st := range stmts {
		if _, err := s.db.Exec(st); err != nil {
			return errors.Wrap(err, "sqlite session store: migrate")
		}
	}
	return nil
}

func (s *SQLiteStore) Load(ctx context.Context, sessionID string) (*capability.Checkpoint, bool, error) {
	if s == nil || s.db == nil {
		return nil, false, errors.New("sqlite session store: db is nil")
	}
	if ctx == nil {
		return nil, false, errors.New("sqlite session store: ctx is nil")
	}
	row := s.db.QueryRowContext(ctx, `
		SELECT session_id, status, position, runs, state_json, created_at_ms, updated_at_ms
		FROM sessions WHERE session_id = ?
	`, sessionID)
	cp, err := scanCheckpoint(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.Wrap(err, "sqlite session store: load")
	}
	return cp, true, nil
}

func (s *SQLiteStore) Save(ctx context.Context, cp *capability.Checkpoint) error {
	if s == nil || s.db == nil {
		return errors.New("sqlite session store: db is nil")
	}
	if ctx == nil {
		return errors.New("sqlite session store: ctx is nil")
	}
	if err := validateCheckpoint("sqlite session store", cp); err != nil {
		return err
	}
	stateJSON, err := json.Marshal(cp.State)
	if err != nil {
		return errors.Wrap(err, "sqlite session store: marshal state")
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sessions(session_id, status, position, runs, state_json, created_at_ms, updated_at_ms)
		VALUES(?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET
			status = excluded.status,
			position = excluded.position,
			runs = excluded.runs,
			state_json = excluded.state_json,
			updated_at_ms = excluded.updated_at_ms
	`, cp.SessionID, string(cp.Status), cp.Position, cp.Runs, string(stateJSON), toMs(cp.CreatedAt), toMs(cp.UpdatedAt))
	if err != nil {
		return errors.Wrap(err, "sqlite session store: upsert")
	}
	return nil
}

func (s *SQLiteStore) List(ctx context.Context, q ListQuery) ([]*capability.Checkpoint, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("sqlite session store: db is nil")
	}
	if ctx == nil {
		return nil, errors.New("sqlite session store: ctx is nil")
	}
	where := ""
	args := []any{}
	if q.Status != "" {
		where = "WHERE status = ?"
		args = append(args, string(q.Status))
	}
	args = append(args, limitOrDefault(q.Limit))
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT session_id, status, position, runs, state_json, created_at_ms, updated_at_ms
		FROM sessions %s
		ORDER BY updated_at_ms DESC, session_id ASC
		LIMIT ?
	`, where), args...)
	if err != nil {
		return nil, errors.Wrap(err, "sqlite session store: list")
	}
	defer func() { _ = rows.Close() }()

	out := []*capability.Checkpoint{}
	for rows.Next() {
		cp, err := scanCheckpoint(rows)
		if err != nil {
			return nil, errors.Wrap(err, "sqlite session store: scan")
		}
		out = append(out, cp)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "sqlite session store: rows")
	}
	return out, nil
}

func (s *SQLiteStore) Raise(ctx context.Context, t capability.Ticket) error {
	if s == nil || s.db == nil {
		return errors.New("sqlite session store: db is nil")
	}
	if ctx == nil {
		return errors.New("sqlite session store: ctx is nil")
	}
	if err := validateTicket("sqlite session store", t); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO escalation_tickets(ticket_id, session_id, priority, description, transcript, created_at_ms)
		VALUES(?, ?, ?, ?, ?, ?)
	`, t.ID, t.SessionID, t.Priority, t.Description, t.Transcript, toMs(t.CreatedAt))
	if err != nil {
		return errors.Wrap(err, "sqlite session store: insert ticket")
	}
	return nil
}

func (s *SQLiteStore) Tickets(ctx context.Context, q TicketQuery) ([]capability.Ticket, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("sqlite session store: db is nil")
	}
	if ctx == nil {
		return nil, errors.New("sqlite session store: ctx is nil")
	}
	clauses := []string{}
	args := []any{}
	if q.SessionID != "" {
		clauses = append(clauses, "session_id = ?")
		args = append(args, q.SessionID)
	}
	if q.Priority != "" {
		clauses = append(clauses, "priority = ? COLLATE NOCASE")
		args = append(args, q.Priority)
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	args = append(args, limitOrDefault(q.Limit))

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT ticket_id, session_id, priority, description, transcript, created_at_ms
		FROM escalation_tickets %s
		ORDER BY created_at_ms DESC, rowid DESC
		LIMIT ?
	`, where), args...)
	if err != nil {
		return nil, errors.Wrap(err, "sqlite session store: list tickets")
	}
	defer func() { _ = rows.Close() }()

	out := []capability.Ticket{}
	for rows.Next() {
		var t capability.Ticket
		var createdAtMs int64
		if err := rows.Scan(&t.ID, &t.SessionID, &t.Priority, &t.Description, &t.Transcript, &createdAtMs); err != nil {
			return nil, errors.Wrap(err, "sqlite session store: scan ticket")
		}
		t.CreatedAt = fromMs(createdAtMs)
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "sqlite session store: rows")
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanCheckpoint(sc scanner) (*capability.Checkpoint, error) {
	var (
		cp                       capability.Checkpoint
		status, stateJSON        string
		createdAtMs, updatedAtMs int64
	)
	if err := sc.Scan(&cp.SessionID, &status, &cp.Position, &cp.Runs, &stateJSON, &createdAtMs, &updatedAtMs); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(stateJSON), &cp.State); err != nil {
		return nil, errors.Wrap(err, "unmarshal state")
	}
	cp.Status = capability.CheckpointStatus(status)
	cp.CreatedAt = fromMs(createdAtMs)
	cp.UpdatedAt = fromMs(updatedAtMs)
	return &cp, nil
}
