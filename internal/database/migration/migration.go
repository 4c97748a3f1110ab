// Package migration evolves the database schema in two explicit steps:
// Plan describes the steps the database has not seen yet, Apply runs them and
// records each one in the schema_migrations ledger. Re-running Apply with no
// new steps is a no-op.
package migration

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"hxnotes/internal/database"
)

// ErrChecksumMismatch is returned when an applied step no longer matches its definition.
var ErrChecksumMismatch = errors.New("applied migration changed")

// Step is one named, ordered schema change.
type Step struct {
	Name string
	SQL  string
}

// Checksum identifies the step's SQL so edits to applied steps are detected.
func (s Step) Checksum() string {
	sum := sha256.Sum256([]byte(s.SQL))
	return hex.EncodeToString(sum[:])
}

// StepStatus reports whether a step has been applied and when.
type StepStatus struct {
	Step
	Applied   bool
	AppliedAt time.Time
}

// Steps is the current model definition. New changes are appended, never edited in place.
var Steps = []Step{
	{
		Name: "0001_create_table_notes",
		SQL: `CREATE TABLE IF NOT EXISTS notes (
  id         UUID        PRIMARY KEY,
  title      TEXT        NOT NULL CHECK (char_length(title) BETWEEN 1 AND 200),
  body       TEXT        NOT NULL DEFAULT '',
  pinned     BOOLEAN     NOT NULL DEFAULT false,
  created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
  updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);`,
	},
	{
		Name: "0002_create_index_notes_listing",
		SQL:  `CREATE INDEX IF NOT EXISTS idx_notes_listing ON notes (pinned DESC, updated_at DESC, id DESC);`,
	},
	{
		Name: "0003_create_index_notes_title_lower",
		SQL:  `CREATE INDEX IF NOT EXISTS idx_notes_title_lower ON notes (lower(title));`,
	},
	{
		Name: "0004_create_table_attachments",
		SQL: `CREATE TABLE IF NOT EXISTS attachments (
  id           UUID        PRIMARY KEY,
  note_id      UUID        NOT NULL REFERENCES notes (id) ON DELETE CASCADE,
  filename     TEXT        NOT NULL,
  storage_path TEXT        NOT NULL UNIQUE,
  size         BIGINT      NOT NULL CHECK (size >= 0),
  content_type TEXT        NOT NULL,
  created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);`,
	},
	{
		Name: "0005_create_index_attachments_note_id",
		SQL:  `CREATE INDEX IF NOT EXISTS idx_attachments_note_id ON attachments (note_id, created_at);`,
	},
}

const (
	ledgerExistsQuery = `SELECT to_regclass('public.schema_migrations') IS NOT NULL`
	createLedgerSQL   = `CREATE TABLE IF NOT EXISTS schema_migrations (
  name       TEXT        PRIMARY KEY,
  checksum   TEXT        NOT NULL,
  applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
);`
	selectLedgerQuery = `SELECT name, checksum, applied_at FROM schema_migrations`
	insertLedgerSQL   = `INSERT INTO schema_migrations (name, checksum, applied_at) VALUES ($1, $2, $3)`

	lockSQL   = `SELECT pg_advisory_lock($1)`
	unlockSQL = `SELECT pg_advisory_unlock($1)`
)

// LockKey is the session advisory lock held while Apply plans and runs steps.
const LockKey int64 = 0x68786e6f746573

// querier is the subset of *sql.DB and *sql.Conn the ledger reads need.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type ledgerRow struct {
	checksum  string
	appliedAt time.Time
}

// Migrator plans and applies Steps against a database.
type Migrator struct {
	db     *sql.DB
	steps  []Step
	log    *zap.Logger
	dbHost string
	now    func() time.Time
}

// New returns a Migrator for the package Steps.
func New(db *sql.DB, log *zap.Logger, dbHost string) *Migrator {
	return &Migrator{db: db, steps: Steps, log: log, dbHost: dbHost, now: time.Now}
}

// WithSteps replaces the step list.
func (m *Migrator) WithSteps(steps []Step) *Migrator {
	m.steps = steps
	return m
}

func ledger(ctx context.Context, q querier) (map[string]ledgerRow, error) {
	var exists bool
	if err := q.QueryRowContext(ctx, ledgerExistsQuery).Scan(&exists); err != nil {
		return nil, fmt.Errorf("check ledger table: %w", err)
	}
	out := make(map[string]ledgerRow)
	if !exists {
		return out, nil
	}

	rows, err := q.QueryContext(ctx, selectLedgerQuery)
	if err != nil {
		return nil, fmt.Errorf("read ledger: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var name string
		var r ledgerRow
		if err := rows.Scan(&name, &r.checksum, &r.appliedAt); err != nil {
			return nil, fmt.Errorf("scan ledger: %w", err)
		}
		out[name] = r
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read ledger: %w", err)
	}
	return out, nil
}

// Plan returns the steps that have not been applied, in order. It does not write anything.
func (m *Migrator) Plan(ctx context.Context) ([]Step, error) {
	return m.plan(ctx, m.db)
}

func (m *Migrator) plan(ctx context.Context, q querier) ([]Step, error) {
	applied, err := ledger(ctx, q)
	if err != nil {
		return nil, err
	}
	pending := make([]Step, 0, len(m.steps))
	for _, s := range m.steps {
		row, ok := applied[s.Name]
		if !ok {
			pending = append(pending, s)
			continue
		}
		if row.checksum != s.Checksum() {
			return nil, fmt.Errorf("%w: %s", ErrChecksumMismatch, s.Name)
		}
	}
	return pending, nil
}

// Status lists every known step with its applied state.
func (m *Migrator) Status(ctx context.Context) ([]StepStatus, error) {
	applied, err := ledger(ctx, m.db)
	if err != nil {
		return nil, err
	}
	out := make([]StepStatus, 0, len(m.steps))
	for _, s := range m.steps {
		row, ok := applied[s.Name]
		out = append(out, StepStatus{Step: s, Applied: ok, AppliedAt: row.appliedAt})
	}
	return out, nil
}

// Apply runs every pending step in its own transaction and records it in the ledger.
// It returns the number of steps applied; zero means the schema was already current.
// Planning and applying happen on one connection holding the LockKey advisory lock,
// so concurrent Apply calls from other processes wait and then find nothing pending.
func (m *Migrator) Apply(ctx context.Context) (int, error) {
	start := time.Now()
	m.log.Info("db migration check",
		zap.String("component", "database"),
		zap.String("event", "db_migration_check"),
		zap.String("db_host", m.dbHost),
	)

	conn, err := m.db.Conn(ctx)
	if err != nil {
		err = fmt.Errorf("acquire migration connection: %w", err)
		m.failed(start, "", err)
		return 0, err
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, lockSQL, LockKey); err != nil {
		err = fmt.Errorf("acquire migration lock: %w", err)
		m.failed(start, "", err)
		return 0, err
	}
	defer func() {
		if _, err := conn.ExecContext(context.WithoutCancel(ctx), unlockSQL, LockKey); err != nil {
			m.log.Warn("release migration lock",
				zap.String("component", "database"),
				zap.String("db_host", m.dbHost),
				zap.Error(err),
			)
		}
	}()

	return m.apply(ctx, conn, start)
}

func (m *Migrator) apply(ctx context.Context, conn *sql.Conn, start time.Time) (int, error) {
	pending, err := m.plan(ctx, conn)
	if err != nil {
		m.failed(start, "", err)
		return 0, err
	}
	if len(pending) == 0 {
		m.log.Info("schema up to date, skipping migration",
			zap.String("component", "database"),
			zap.String("event", "db_migration_skip"),
			zap.String("db_host", m.dbHost),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
		)
		return 0, nil
	}

	if _, err := conn.ExecContext(ctx, createLedgerSQL); err != nil {
		err = fmt.Errorf("create ledger table: %w", err)
		m.failed(start, "", err)
		return 0, err
	}

	for i, step := range pending {
		stepStart := time.Now()
		err := database.InTx(ctx, conn, func(tx *sql.Tx) error {
			if _, err := tx.ExecContext(ctx, step.SQL); err != nil {
				return err
			}
			_, err := tx.ExecContext(ctx, insertLedgerSQL, step.Name, step.Checksum(), m.now().UTC())
			return err
		})
		if err != nil {
			err = fmt.Errorf("migration step %s failed: %w", step.Name, err)
			m.failed(start, step.Name, err)
			return i, err
		}
		m.log.Info("db migration step applied",
			zap.String("component", "database"),
			zap.String("event", "db_migration_step"),
			zap.String("migration_step", step.Name),
			zap.Int64("step_duration_ms", time.Since(stepStart).Milliseconds()),
		)
	}

	m.log.Info("db migration finished",
		zap.String("component", "database"),
		zap.String("event", "db_migration_success"),
		zap.String("db_host", m.dbHost),
		zap.Int("applied", len(pending)),
		zap.Int64("duration_ms", time.Since(start).Milliseconds()),
	)
	return len(pending), nil
}

func (m *Migrator) failed(start time.Time, step string, err error) {
	m.log.Error("db migration failed",
		zap.String("component", "database"),
		zap.String("event", "db_migration_failed"),
		zap.String("migration_step", step),
		zap.String("db_host", m.dbHost),
		zap.Int64("duration_ms", time.Since(start).Milliseconds()),
		zap.Error(err),
	)
}

// EnsureMigrated applies pending steps at startup.
func EnsureMigrated(ctx context.Context, db *sql.DB, log *zap.Logger, dbHost string) error {
	_, err := New(db, log, dbHost).Apply(ctx)
	return err
}
