package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"

	"proctrack/pkg/platform/sentinel"
)

func TestClassify(t *testing.T) {
	t.Run("no rows is not found", func(t *testing.T) {
		assert.ErrorIs(t, Classify(sql.ErrNoRows), sentinel.ErrNotFound)
	})

	t.Run("lock not available is a lock timeout", func(t *testing.T) {
		err := fmt.Errorf("upsert: %w", &pgconn.PgError{Code: codeLockNotAvailable})
		assert.ErrorIs(t, Classify(err), sentinel.ErrLockTimeout)
	})

	t.Run("unique violation is a conflict", func(t *testing.T) {
		assert.ErrorIs(t, Classify(&pgconn.PgError{Code: codeUniqueViolation}), sentinel.ErrConflict)
	})

	t.Run("foreign key violation is a missing reference", func(t *testing.T) {
		err := Classify(fmt.Errorf("update transaction: %w", &pgconn.PgError{Code: codeForeignKeyViolation, ConstraintName: "transactions_current_office_id_fkey"}))
		assert.ErrorIs(t, err, sentinel.ErrMissingReference)
		assert.NotErrorIs(t, err, sentinel.ErrConflict)
	})

	t.Run("deadline exceeded is a lock timeout", func(t *testing.T) {
		assert.ErrorIs(t, Classify(context.DeadlineExceeded), sentinel.ErrLockTimeout)
	})

	t.Run("other errors pass through", func(t *testing.T) {
		base := errors.New("syntax error")
		assert.Equal(t, base, Classify(base))
		assert.NoError(t, Classify(nil))
	})
}
