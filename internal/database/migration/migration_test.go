package migration

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var testSteps = []Step{
	{Name: "0001_create_table_widgets", SQL: "CREATE TABLE IF NOT EXISTS widgets (id UUID PRIMARY KEY);"},
	{Name: "0002_create_index_widgets", SQL: "CREATE INDEX IF NOT EXISTS idx_widgets ON widgets (id);"},
}

func ledgerRows(steps ...Step) *sqlmock.Rows {
	rows := sqlmock.NewRows([]string{"name", "checksum", "applied_at"})
	for _, s := range steps {
		rows.AddRow(s.Name, s.Checksum(), time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	}
	return rows
}

func expectLedger(mock sqlmock.Sqlmock, exists bool, applied ...Step) {
	mock.ExpectQuery(regexp.QuoteMeta(ledgerExistsQuery)).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(exists))
	if exists {
		mock.ExpectQuery(regexp.QuoteMeta(selectLedgerQuery)).WillReturnRows(ledgerRows(applied...))
	}
}

func expectLock(mock sqlmock.Sqlmock) {
	mock.ExpectExec(regexp.QuoteMeta(lockSQL)).WithArgs(LockKey).WillReturnResult(sqlmock.NewResult(0, 0))
}

func expectUnlock(mock sqlmock.Sqlmock) {
	mock.ExpectExec(regexp.QuoteMeta(unlockSQL)).WithArgs(LockKey).WillReturnResult(sqlmock.NewResult(0, 0))
}

func newMigrator(t *testing.T) (*Migrator, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return New(db, zap.NewNop(), "localhost").WithSteps(testSteps), mock
}

func TestStepChecksum(t *testing.T) {
	a := Step{Name: "a", SQL: "SELECT 1"}
	b := Step{Name: "b", SQL: "SELECT 1"}
	c := Step{Name: "a", SQL: "SELECT 2"}
	assert.Equal(t, a.Checksum(), b.Checksum(), "checksum covers SQL only")
	assert.NotEqual(t, a.Checksum(), c.Checksum())
}

func TestStepsAreUniqueAndOrdered(t *testing.T) {
	seen := make(map[string]bool)
	prev := ""
	for _, s := range Steps {
		assert.False(t, seen[s.Name], "duplicate step %s", s.Name)
		assert.Greater(t, s.Name, prev, "steps must be ordered by name")
		assert.NotEmpty(t, s.SQL)
		seen[s.Name] = true
		prev = s.Name
	}
}

func TestMigrator_Plan(t *testing.T) {
	ctx := context.Background()

	t.Run("fresh database has every step pending", func(t *testing.T) {
		m, mock := newMigrator(t)
		expectLedger(mock, false)

		pending, err := m.Plan(ctx)
		require.NoError(t, err)
		assert.Equal(t, testSteps, pending)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("partially applied", func(t *testing.T) {
		m, mock := newMigrator(t)
		expectLedger(mock, true, testSteps[0])

		pending, err := m.Plan(ctx)
		require.NoError(t, err)
		assert.Equal(t, testSteps[1:], pending)
	})

	t.Run("edited applied step is reported", func(t *testing.T) {
		m, mock := newMigrator(t)
		edited := testSteps[0]
		edited.SQL = "CREATE TABLE widgets_v2 ();"
		expectLedger(mock, true, edited)

		_, err := m.Plan(ctx)
		assert.ErrorIs(t, err, ErrChecksumMismatch)
	})

	t.Run("ledger check error", func(t *testing.T) {
		m, mock := newMigrator(t)
		mock.ExpectQuery(regexp.QuoteMeta(ledgerExistsQuery)).WillReturnError(errors.New("conn refused"))

		_, err := m.Plan(ctx)
		assert.ErrorContains(t, err, "check ledger table: conn refused")
	})
}

func TestMigrator_Apply(t *testing.T) {
	ctx := context.Background()

	t.Run("applies pending steps then becomes a no-op", func(t *testing.T) {
		m, mock := newMigrator(t)

		expectLock(mock)
		expectLedger(mock, false)
		mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS schema_migrations")).
			WillReturnResult(sqlmock.NewResult(0, 0))
		for _, s := range testSteps {
			mock.ExpectBegin()
			mock.ExpectExec(regexp.QuoteMeta(s.SQL)).WillReturnResult(sqlmock.NewResult(0, 0))
			mock.ExpectExec(regexp.QuoteMeta("INSERT INTO schema_migrations")).
				WithArgs(s.Name, s.Checksum(), sqlmock.AnyArg()).
				WillReturnResult(sqlmock.NewResult(0, 1))
			mock.ExpectCommit()
		}
		expectUnlock(mock)

		n, err := m.Apply(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, n)

		// second run: everything is in the ledger, nothing is executed
		expectLock(mock)
		expectLedger(mock, true, testSteps...)
		expectUnlock(mock)
		n, err = m.Apply(ctx)
		require.NoError(t, err)
		assert.Equal(t, 0, n)

		expectLedger(mock, true, testSteps...)
		pending, err := m.Plan(ctx)
		require.NoError(t, err)
		assert.Empty(t, pending)

		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("failed step rolls back and stops", func(t *testing.T) {
		m, mock := newMigrator(t)

		expectLock(mock)
		expectLedger(mock, true, testSteps[0])
		mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS schema_migrations")).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta(testSteps[1].SQL)).WillReturnError(errors.New("syntax error"))
		mock.ExpectRollback()
		expectUnlock(mock)

		n, err := m.Apply(ctx)
		assert.Equal(t, 0, n)
		assert.ErrorContains(t, err, "migration step 0002_create_index_widgets failed: syntax error")
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("plans only after taking the lock", func(t *testing.T) {
		m, mock := newMigrator(t)

		// another process finished both steps while this one waited on the lock
		expectLock(mock)
		expectLedger(mock, true, testSteps...)
		expectUnlock(mock)

		n, err := m.Apply(ctx)
		require.NoError(t, err)
		assert.Equal(t, 0, n)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("lock failure runs nothing", func(t *testing.T) {
		m, mock := newMigrator(t)

		mock.ExpectExec(regexp.QuoteMeta(lockSQL)).WithArgs(LockKey).
			WillReturnError(errors.New("canceling statement due to lock timeout"))

		n, err := m.Apply(ctx)
		assert.Equal(t, 0, n)
		assert.ErrorContains(t, err, "acquire migration lock: canceling statement")
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unlock failure is logged, not returned", func(t *testing.T) {
		m, mock := newMigrator(t)

		expectLock(mock)
		expectLedger(mock, true, testSteps...)
		mock.ExpectExec(regexp.QuoteMeta(unlockSQL)).WithArgs(LockKey).WillReturnError(errors.New("conn reset"))

		n, err := m.Apply(ctx)
		require.NoError(t, err)
		assert.Equal(t, 0, n)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestMigrator_Status(t *testing.T) {
	m, mock := newMigrator(t)
	expectLedger(mock, true, testSteps[0])

	status, err := m.Status(context.Background())
	require.NoError(t, err)
	require.Len(t, status, 2)
	assert.True(t, status[0].Applied)
	assert.False(t, status[0].AppliedAt.IsZero())
	assert.False(t, status[1].Applied)
	assert.True(t, status[1].AppliedAt.IsZero())
}

func TestEnsureMigrated_UpToDate(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	expectLock(mock)
	expectLedger(mock, true, Steps...)
	expectUnlock(mock)
	require.NoError(t, EnsureMigrated(context.Background(), db, zap.NewNop(), "localhost"))
	assert.NoError(t, mock.ExpectationsWereMet())
}
