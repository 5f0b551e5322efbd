// Package history persists the final outcome of every released session.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/siddhiyadav363/Ecourt-Cause-List-WebScrapping/internal/failure"
	"github.com/siddhiyadav363/Ecourt-Cause-List-WebScrapping/internal/session"
	"go.uber.org/zap"
)

const (
	DefaultListLimit = 50
	MaxListLimit     = 500
	writeTimeout     = 5 * time.Second
)

// Outcome is the persisted record of one finished session.
type Outcome struct {
	SessionID  string           `json:"session_id"`
	Kind       session.Kind     `json:"kind"`
	State      session.State    `json:"state"`
	Params     session.Params   `json:"params"`
	Results    *session.Results `json:"results,omitempty"`
	ErrorKind  failure.Kind     `json:"error_kind,omitempty"`
	Error      string           `json:"error,omitempty"`
	CreatedAt  time.Time        `json:"created_at"`
	ReleasedAt time.Time        `json:"released_at"`
}

// SQLiteStore stores outcomes in SQLite. It implements session.Observer.
type SQLiteStore struct {
	db  *sql.DB
	log *zap.Logger
}

// NewSQLiteStore opens dsn and runs migrations.
func NewSQLiteStore(dsn string, log *zap.Logger) (*SQLiteStore, error) {
	if log == nil {
		log = zap.NewNop()
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// Each connection to an in-memory database is a separate database.
	if dsn == ":memory:" || strings.Contains(dsn, "mode=memory") {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	}

	store := &SQLiteStore{db: db, log: log}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS outcomes (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL,
			kind TEXT NOT NULL,
			state TEXT NOT NULL,
			params TEXT,
			results TEXT,
			error_kind TEXT,
			error TEXT,
			created_at INTEGER NOT NULL,
			released_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_outcomes_session ON outcomes(session_id, released_at)`,
		`CREATE INDEX IF NOT EXISTS idx_outcomes_released ON outcomes(released_at)`,
	}
	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w\n%s", err, m)
		}
	}
	return nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Save inserts an outcome.
func (s *SQLiteStore) Save(ctx context.Context, o *Outcome) error {
	params, err := json.Marshal(o.Params)
	if err != nil {
		return fmt.Errorf("encode params: %w", err)
	}
	var results sql.NullString
	if o.Results != nil {
		raw, err := json.Marshal(o.Results)
		if err != nil {
			return fmt.Errorf("encode results: %w", err)
		}
		results = sql.NullString{String: string(raw), Valid: true}
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO outcomes (session_id, kind, state, params, results, error_kind, error, created_at, released_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		o.SessionID, string(o.Kind), string(o.State), string(params), results,
		nullString(string(o.ErrorKind)), nullString(o.Error),
		o.CreatedAt.UnixMilli(), o.ReleasedAt.UnixMilli())
	return err
}

// Get returns the most recent outcome for sessionID, or nil if none.
func (s *SQLiteStore) Get(ctx context.Context, sessionID string) (*Outcome, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT session_id, kind, state, params, results, error_kind, error, created_at, released_at
		 FROM outcomes WHERE session_id = ? ORDER BY released_at DESC, id DESC LIMIT 1`, sessionID)
	o, err := scanOutcome(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return o, nil
}

// List returns up to limit outcomes, newest first, optionally filtered by kind.
func (s *SQLiteStore) List(ctx context.Context, kind session.Kind, limit int) ([]Outcome, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}

	query := `SELECT session_id, kind, state, params, results, error_kind, error, created_at, released_at FROM outcomes`
	args := []interface{}{}
	if kind != "" {
		query += ` WHERE kind = ?`
		args = append(args, string(kind))
	}
	query += ` ORDER BY released_at DESC, id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Outcome, 0)
	for rows.Next() {
		o, err := scanOutcome(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *o)
	}
	return out, rows.Err()
}

// Observe persists Released events.
func (s *SQLiteStore) Observe(e session.Event) {
	if e.Type != session.Released || e.Final == nil {
		return
	}
	o := &Outcome{
		SessionID:  e.SessionID,
		Kind:       e.Kind,
		State:      e.Final.State,
		Params:     e.Final.Params,
		Results:    e.Results,
		ErrorKind:  e.Final.ErrorKind,
		Error:      e.Final.Error,
		CreatedAt:  e.Final.CreatedAt,
		ReleasedAt: e.At,
	}
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if err := s.Save(ctx, o); err != nil {
		s.log.Error("history write failed", zap.String("session_id", e.SessionID), zap.Error(err))
	}
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanOutcome(sc scanner) (*Outcome, error) {
	var (
		o                     Outcome
		kind, state           string
		params                sql.NullString
		results               sql.NullString
		errorKind, errMessage sql.NullString
		createdAt, releasedAt int64
	)
	if err := sc.Scan(&o.SessionID, &kind, &state, &params, &results, &errorKind, &errMessage, &createdAt, &releasedAt); err != nil {
		return nil, err
	}
	o.Kind = session.Kind(kind)
	o.State = session.State(state)
	if params.Valid && params.String != "" {
		if err := json.Unmarshal([]byte(params.String), &o.Params); err != nil {
			return nil, fmt.Errorf("decode params: %w", err)
		}
	}
	if results.Valid && results.String != "" {
		o.Results = &session.Results{}
		if err := json.Unmarshal([]byte(results.String), o.Results); err != nil {
			return nil, fmt.Errorf("decode results: %w", err)
		}
	}
	o.ErrorKind = failure.Kind(errorKind.String)
	o.Error = errMessage.String
	o.CreatedAt = time.UnixMilli(createdAt).UTC()
	o.ReleasedAt = time.UnixMilli(releasedAt).UTC()
	return &o, nil
}

func nullString(v string) sql.NullString {
	return sql.NullString{String: v, Valid: v != ""}
}
