// Package store persists runs, project aggregates, and the usage audit
// log in SQLite.
//
// DESIGN: Counter updates are single "UPDATE ... SET c = c + ?"
// statements executed inside one transaction — the atomic increment
// happens at the persistence boundary, never as a read-modify-write in
// the application process. Concurrent calls for the same run serialize
// on the row; project rollups only grow; usage records are append-only
// and never mutated after insert.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Run statuses. Only StatusRunning may use the proxy.
const (
	StatusPending   = "pending"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"
)

// ErrRunNotFound is returned when a run identifier does not resolve.
var ErrRunNotFound = errors.New("run not found")

// Run is one unit of agent work in progress.
type Run struct {
	ID           string
	ProjectID    string
	Status       string
	Credential   string // opaque per-run proxy credential; "" = not provisioned
	TokensInput  int64
	TokensOutput int64
	CostCents    int64
	TokenCeiling int64 // 0 = use the platform default
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// UsageRecord is one append-only audit entry for a billable upstream call.
type UsageRecord struct {
	ID           int64
	RunID        string
	ProjectID    string
	Provider     string
	Model        string
	InputTokens  int64
	OutputTokens int64
	CostCents    int64
	CreatedAt    time.Time
}

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id               TEXT PRIMARY KEY,
	project_id       TEXT NOT NULL,
	status           TEXT NOT NULL DEFAULT 'pending',
	proxy_credential TEXT,
	tokens_input     INTEGER NOT NULL DEFAULT 0,
	tokens_output    INTEGER NOT NULL DEFAULT 0,
	cost_cents       INTEGER NOT NULL DEFAULT 0,
	token_ceiling    INTEGER,
	created_at       TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at       TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS projects (
	id           TEXT PRIMARY KEY,
	total_tokens INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS usage_records (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id        TEXT NOT NULL,
	project_id    TEXT NOT NULL,
	provider      TEXT NOT NULL,
	model         TEXT,
	input_tokens  INTEGER NOT NULL,
	output_tokens INTEGER NOT NULL,
	cost_cents    INTEGER NOT NULL,
	created_at    TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_usage_records_run ON usage_records(run_id);
CREATE INDEX IF NOT EXISTS idx_runs_project ON runs(project_id);
`

// Store is the SQLite-backed run/project/usage store.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the store at path. WAL mode keeps
// readers unblocked during recorder writes; busy_timeout serializes
// concurrent writers instead of failing them.
func Open(path string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate store: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping verifies the store is reachable (health endpoint).
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// CreateRun inserts a new run record. Called by the orchestrator when
// agent execution begins; exposed here for provisioning tooling and
// tests.
func (s *Store) CreateRun(ctx context.Context, run Run) error {
	if run.Status == "" {
		run.Status = StatusPending
	}
	var cred sql.NullString
	if run.Credential != "" {
		cred = sql.NullString{String: run.Credential, Valid: true}
	}
	var ceiling sql.NullInt64
	if run.TokenCeiling > 0 {
		ceiling = sql.NullInt64{Int64: run.TokenCeiling, Valid: true}
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (id, project_id, status, proxy_credential, tokens_input, tokens_output, cost_cents, token_ceiling)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.ProjectID, run.Status, cred,
		run.TokensInput, run.TokensOutput, run.CostCents, ceiling)
	if err != nil {
		return fmt.Errorf("create run %s: %w", run.ID, err)
	}
	return nil
}

// GetRun looks up a run by identifier.
func (s *Store) GetRun(ctx context.Context, id string) (Run, error) {
	var run Run
	var cred sql.NullString
	var ceiling sql.NullInt64
	err := s.db.QueryRowContext(ctx, `
		SELECT id, project_id, status, proxy_credential, tokens_input, tokens_output, cost_cents, token_ceiling, created_at, updated_at
		FROM runs WHERE id = ?`, id).Scan(
		&run.ID, &run.ProjectID, &run.Status, &cred,
		&run.TokensInput, &run.TokensOutput, &run.CostCents, &ceiling,
		&run.CreatedAt, &run.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, ErrRunNotFound
	}
	if err != nil {
		return Run{}, fmt.Errorf("get run %s: %w", id, err)
	}
	run.Credential = cred.String
	run.TokenCeiling = ceiling.Int64
	return run, nil
}

// SetRunStatus transitions a run's status. Status transitions belong to
// the owning orchestrator, not the proxy pipeline.
func (s *Store) SetRunStatus(ctx context.Context, id, status string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`, status, id)
	if err != nil {
		return fmt.Errorf("set run %s status: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrRunNotFound
	}
	return nil
}

// ProvisionCredential persists a credential for a run that has none.
// The guard on proxy_credential IS NULL makes concurrent provisioning a
// no-op for the loser; the caller denies the request either way.
func (s *Store) ProvisionCredential(ctx context.Context, runID, credential string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE runs SET proxy_credential = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND proxy_credential IS NULL`, credential, runID)
	if err != nil {
		return fmt.Errorf("provision credential for run %s: %w", runID, err)
	}
	return nil
}

// RecordUsage atomically applies one successful upstream call: run
// counters, project rollup, and the audit record commit or roll back
// together. Invoked exactly once per successful upstream response.
func (s *Store) RecordUsage(ctx context.Context, rec UsageRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("record usage: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		UPDATE runs SET
			tokens_input  = tokens_input + ?,
			tokens_output = tokens_output + ?,
			cost_cents    = cost_cents + ?,
			updated_at    = CURRENT_TIMESTAMP
		WHERE id = ?`,
		rec.InputTokens, rec.OutputTokens, rec.CostCents, rec.RunID)
	if err != nil {
		return fmt.Errorf("record usage: run counters: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrRunNotFound
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO projects (id, total_tokens) VALUES (?, ?)
		ON CONFLICT(id) DO UPDATE SET total_tokens = total_tokens + excluded.total_tokens`,
		rec.ProjectID, rec.InputTokens+rec.OutputTokens)
	if err != nil {
		return fmt.Errorf("record usage: project rollup: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO usage_records (run_id, project_id, provider, model, input_tokens, output_tokens, cost_cents)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.RunID, rec.ProjectID, rec.Provider, rec.Model,
		rec.InputTokens, rec.OutputTokens, rec.CostCents)
	if err != nil {
		return fmt.Errorf("record usage: audit record: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("record usage: commit: %w", err)
	}
	return nil
}

// ProjectTokens returns a project's rollup counter. Projects with no
// recorded usage report zero.
func (s *Store) ProjectTokens(ctx context.Context, projectID string) (int64, error) {
	var total int64
	err := s.db.QueryRowContext(ctx,
		`SELECT total_tokens FROM projects WHERE id = ?`, projectID).Scan(&total)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("project tokens %s: %w", projectID, err)
	}
	return total, nil
}

// UsageRecords returns the audit entries for a run, oldest first.
func (s *Store) UsageRecords(ctx context.Context, runID string) ([]UsageRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, run_id, project_id, provider, model, input_tokens, output_tokens, cost_cents, created_at
		FROM usage_records WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, fmt.Errorf("usage records %s: %w", runID, err)
	}
	defer func() { _ = rows.Close() }()

	var records []UsageRecord
	for rows.Next() {
		var rec UsageRecord
		var model sql.NullString
		if err := rows.Scan(&rec.ID, &rec.RunID, &rec.ProjectID, &rec.Provider, &model,
			&rec.InputTokens, &rec.OutputTokens, &rec.CostCents, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("usage records %s: scan: %w", runID, err)
		}
		rec.Model = model.String
		records = append(records, rec)
	}
	return records, rows.Err()
}
