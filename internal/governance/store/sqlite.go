package store

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/novapact/gcu-go/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS run_status (
	run_id            TEXT PRIMARY KEY,
	status            TEXT NOT NULL,
	hitl_required     INTEGER NOT NULL,
	approval_required INTEGER NOT NULL,
	approval_provided INTEGER NOT NULL,
	updated_at        TEXT NOT NULL
);`

// Open opens (creating if absent) the single-file SQLite database at
// path and ensures the run_status table exists. The connection pool is
// sized down for a single-file database: SQLite serializes writers
// internally, so a small open-connection cap just bounds concurrent
// readers rather than providing real write concurrency.
func Open(ctx context.Context, path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(4)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create run_status table: %w", err)
	}
	return db, nil
}

// SQLiteStore persists the flat run_status summary to a single-file
// SQLite database, per spec §4.3. The full transition history is not a
// column of that table by design (see the design-notes open-question
// decision); it is kept in an in-memory cache for the life of the
// process and is otherwise recoverable only from the C7 audit journal.
type SQLiteStore struct {
	db *sql.DB

	mu      sync.Mutex
	history map[string][]domain.TransitionRecord
}

func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db, history: make(map[string][]domain.TransitionRecord)}
}

func (s *SQLiteStore) Save(ctx context.Context, state domain.RunState) error {
	if err := state.Validate(); err != nil {
		return err
	}
	updatedAt := state.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO run_status (run_id, status, hitl_required, approval_required, approval_provided, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id) DO UPDATE SET
			status=excluded.status,
			hitl_required=excluded.hitl_required,
			approval_required=excluded.approval_required,
			approval_provided=excluded.approval_provided,
			updated_at=excluded.updated_at`,
		state.RunID, state.CurrentStatus.String(), boolToInt(state.HITLRequired),
		boolToInt(state.ApprovalRequired), boolToInt(state.ApprovalProvided),
		updatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("save run_status: %w", err)
	}

	s.mu.Lock()
	history := make([]domain.TransitionRecord, len(state.History))
	copy(history, state.History)
	s.history[state.RunID] = history
	s.mu.Unlock()
	return nil
}

func (s *SQLiteStore) Load(ctx context.Context, runID string) (domain.RunState, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT status, hitl_required, approval_required, approval_provided, updated_at
		FROM run_status WHERE run_id = ?`, runID)

	var rawStatus, rawUpdatedAt string
	var hitlRequired, approvalRequired, approvalProvided int
	switch err := row.Scan(&rawStatus, &hitlRequired, &approvalRequired, &approvalProvided, &rawUpdatedAt); err {
	case sql.ErrNoRows:
		return domain.RunState{}, false, nil
	case nil:
		// fall through
	default:
		return domain.RunState{}, false, fmt.Errorf("load run_status: %w", err)
	}

	status, err := domain.ParseStatus(rawStatus)
	if err != nil {
		return domain.RunState{}, false, err
	}
	updatedAt, err := time.Parse(time.RFC3339Nano, rawUpdatedAt)
	if err != nil {
		return domain.RunState{}, false, fmt.Errorf("%w: parse updated_at: %v", domain.ErrCorruptedState, err)
	}

	s.mu.Lock()
	history := make([]domain.TransitionRecord, len(s.history[runID]))
	copy(history, s.history[runID])
	s.mu.Unlock()

	return domain.RunState{
		RunID:            runID,
		CurrentStatus:    status,
		History:          history,
		HITLRequired:     hitlRequired != 0,
		ApprovalRequired: approvalRequired != 0,
		ApprovalProvided: approvalProvided != 0,
		UpdatedAt:        updatedAt,
	}, true, nil
}

func (s *SQLiteStore) Delete(ctx context.Context, runID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM run_status WHERE run_id = ?`, runID); err != nil {
		return fmt.Errorf("delete run_status: %w", err)
	}
	s.mu.Lock()
	delete(s.history, runID)
	s.mu.Unlock()
	return nil
}

func (s *SQLiteStore) Exists(ctx context.Context, runID string) (bool, error) {
	row := s.db.QueryRowContext(ctx, `SELECT 1 FROM run_status WHERE run_id = ?`, runID)
	var found int
	switch err := row.Scan(&found); err {
	case sql.ErrNoRows:
		return false, nil
	case nil:
		return true, nil
	default:
		return false, fmt.Errorf("exists run_status: %w", err)
	}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
