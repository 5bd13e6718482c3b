package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"proctrack/internal/platform/postgres"
	"proctrack/internal/refnum/models"
	txcontext "proctrack/pkg/platform/tx"
)

// PostgresStore keeps one counter row per key in reference_sequences.
//
// The increment is a single INSERT .. ON CONFLICT DO UPDATE .. RETURNING, so
// the row lock taken by the upsert serializes callers on the same key while
// callers on other keys touch other rows. When the caller's context carries a
// transaction the increment joins it and is rolled back with it, so a failed
// document creation never burns a number.
type PostgresStore struct {
	db          *sql.DB
	lockTimeout time.Duration
}

func NewPostgres(db *sql.DB, lockTimeout time.Duration) *PostgresStore {
	return &PostgresStore{db: db, lockTimeout: lockTimeout}
}

const nextQuery = `
	INSERT INTO reference_sequences (category, fund_type, year, month, last_value, updated_at)
	VALUES ($1, $2, $3, $4, 1, NOW())
	ON CONFLICT (category, fund_type, year, month) DO UPDATE SET
		last_value = reference_sequences.last_value + 1,
		updated_at = NOW()
	RETURNING last_value
`

func (s *PostgresStore) Next(ctx context.Context, key models.Key) (int64, error) {
	if tx, ok := txcontext.From(ctx); ok {
		return s.next(ctx, tx, key)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin sequence tx: %w", postgres.Classify(err))
	}
	defer func() {
		_ = tx.Rollback()
	}()

	value, err := s.next(ctx, tx, key)
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit sequence tx: %w", postgres.Classify(err))
	}
	return value, nil
}

func (s *PostgresStore) next(ctx context.Context, tx *sql.Tx, key models.Key) (int64, error) {
	if err := postgres.SetLocalLockTimeout(ctx, tx, s.lockTimeout); err != nil {
		return 0, fmt.Errorf("set lock timeout: %w", postgres.Classify(err))
	}
	var value int64
	err := tx.QueryRowContext(ctx, nextQuery, string(key.Category), key.FundType, key.Year, key.Month).Scan(&value)
	if err != nil {
		return 0, fmt.Errorf("increment sequence %s: %w", key, postgres.Classify(err))
	}
	return value, nil
}
