package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"proctrack/internal/platform/postgres"
	"proctrack/internal/tracking/models"
	id "proctrack/pkg/domain"
	"proctrack/pkg/platform/sentinel"
	txcontext "proctrack/pkg/platform/tx"
)

// PostgresStore persists transactions and the action ledger. Every method
// joins the transaction carried in the context when there is one.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const transactionColumns = `
	id, category, reference_number, fund_type, workflow_id, current_step_id,
	current_office_id, current_user_id, status, received_at, created_by_user_id,
	created_by_office_id, requesting_office_id, is_legacy, remarks, created_at,
	updated_at, last_overdue_notified_at`

func (s *PostgresStore) Create(ctx context.Context, txn *models.Transaction) error {
	_, err := txcontext.ExecutorFrom(ctx, s.db).ExecContext(ctx, `
		INSERT INTO transactions (`+transactionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
	`,
		uuid.UUID(txn.ID),
		string(txn.Category),
		txn.ReferenceNumber,
		txn.FundType,
		nullUUID(txn.WorkflowID),
		nullUUID(txn.CurrentStepID),
		nullUUID(txn.CurrentOfficeID),
		nullUUID(txn.CurrentUserID),
		string(txn.Status),
		nullTime(txn.ReceivedAt),
		uuid.UUID(txn.CreatedByUserID),
		nullUUID(txn.CreatedByOfficeID),
		nullUUID(txn.RequestingOfficeID),
		txn.IsLegacy,
		txn.Remarks,
		txn.CreatedAt,
		txn.UpdatedAt,
		nullTime(txn.LastOverdueNotifiedAt),
	)
	if err != nil {
		return fmt.Errorf("insert transaction: %w", postgres.Classify(err))
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, txnID id.TransactionID) (*models.Transaction, error) {
	return s.find(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE id = $1`, uuid.UUID(txnID))
}

// FindByIDForUpdate locks the row until the surrounding transaction ends.
// It must run inside a transaction.
func (s *PostgresStore) FindByIDForUpdate(ctx context.Context, txnID id.TransactionID) (*models.Transaction, error) {
	if _, ok := txcontext.From(ctx); !ok {
		return nil, fmt.Errorf("select for update outside a transaction: %w", sentinel.ErrInvalidState)
	}
	return s.find(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE id = $1 FOR UPDATE`, uuid.UUID(txnID))
}

func (s *PostgresStore) FindByReference(ctx context.Context, ref string) (*models.Transaction, error) {
	return s.find(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE reference_number = $1`, ref)
}

func (s *PostgresStore) find(ctx context.Context, query string, args ...any) (*models.Transaction, error) {
	row := txcontext.ExecutorFrom(ctx, s.db).QueryRowContext(ctx, query, args...)
	txn, err := scanTransaction(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find transaction: %w", postgres.Classify(err))
	}
	return txn, nil
}

func (s *PostgresStore) Update(ctx context.Context, txn *models.Transaction) error {
	res, err := txcontext.ExecutorFrom(ctx, s.db).ExecContext(ctx, `
		UPDATE transactions SET
			workflow_id = $2,
			current_step_id = $3,
			current_office_id = $4,
			current_user_id = $5,
			status = $6,
			received_at = $7,
			remarks = $8,
			updated_at = $9,
			last_overdue_notified_at = $10
		WHERE id = $1
	`,
		uuid.UUID(txn.ID),
		nullUUID(txn.WorkflowID),
		nullUUID(txn.CurrentStepID),
		nullUUID(txn.CurrentOfficeID),
		nullUUID(txn.CurrentUserID),
		string(txn.Status),
		nullTime(txn.ReceivedAt),
		txn.Remarks,
		txn.UpdatedAt,
		nullTime(txn.LastOverdueNotifiedAt),
	)
	if err != nil {
		return fmt.Errorf("update transaction: %w", postgres.Classify(err))
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update transaction rows: %w", err)
	}
	if rows == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) Append(ctx context.Context, action *models.Action) error {
	_, err := txcontext.ExecutorFrom(ctx, s.db).ExecContext(ctx, `
		INSERT INTO transaction_actions (id, transaction_id, action_type, from_office_id, to_office_id, actor_user_id, remarks, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`,
		uuid.UUID(action.ID),
		uuid.UUID(action.TransactionID),
		string(action.Type),
		nullUUID(action.FromOfficeID),
		nullUUID(action.ToOfficeID),
		uuid.UUID(action.ActorUserID),
		action.Remarks,
		action.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("append action: %w", postgres.Classify(err))
	}
	return nil
}

func (s *PostgresStore) ListByTransaction(ctx context.Context, txnID id.TransactionID) ([]*models.Action, error) {
	rows, err := txcontext.ExecutorFrom(ctx, s.db).QueryContext(ctx, `
		SELECT id, transaction_id, action_type, from_office_id, to_office_id, actor_user_id, remarks, created_at
		FROM transaction_actions
		WHERE transaction_id = $1
		ORDER BY seq
	`, uuid.UUID(txnID))
	if err != nil {
		return nil, fmt.Errorf("list actions: %w", postgres.Classify(err))
	}
	defer rows.Close()

	var out []*models.Action
	for rows.Next() {
		var (
			actionID, txID, actor uuid.UUID
			actionType            string
			from, to              uuid.NullUUID
			a                     models.Action
		)
		if err := rows.Scan(&actionID, &txID, &actionType, &from, &to, &actor, &a.Remarks, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan action: %w", err)
		}
		a.ID = id.ActionID(actionID)
		a.TransactionID = id.TransactionID(txID)
		a.Type = models.ActionType(actionType)
		a.FromOfficeID = officePtr(from)
		a.ToOfficeID = officePtr(to)
		a.ActorUserID = id.UserID(actor)
		out = append(out, &a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate actions: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) LatestEndorseDestination(ctx context.Context, txnID id.TransactionID) (*id.OfficeID, error) {
	var to uuid.NullUUID
	err := txcontext.ExecutorFrom(ctx, s.db).QueryRowContext(ctx, `
		SELECT to_office_id FROM transaction_actions
		WHERE transaction_id = $1 AND action_type = 'endorse' AND to_office_id IS NOT NULL
		ORDER BY seq DESC
		LIMIT 1
	`, uuid.UUID(txnID)).Scan(&to)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest endorsement: %w", postgres.Classify(err))
	}
	return officePtr(to), nil
}

func (s *PostgresStore) ListOverdueCandidates(ctx context.Context, notifiedBefore time.Time, after id.TransactionID, limit int) ([]*models.Transaction, error) {
	return s.list(ctx, `
		SELECT `+transactionColumns+` FROM transactions
		WHERE status = $3
		  AND current_step_id IS NOT NULL
		  AND (last_overdue_notified_at IS NULL OR last_overdue_notified_at < $4)
		  AND id > $1
		ORDER BY id
		LIMIT $2
	`, after, limit, string(models.StatusInProgress), notifiedBefore)
}

func (s *PostgresStore) ListLegacyWithoutOffice(ctx context.Context, after id.TransactionID, limit int) ([]*models.Transaction, error) {
	return s.list(ctx, `
		SELECT `+transactionColumns+` FROM transactions
		WHERE is_legacy AND current_office_id IS NULL AND id > $1
		ORDER BY id
		LIMIT $2
	`, after, limit)
}

func (s *PostgresStore) ListWithoutWorkflow(ctx context.Context, after id.TransactionID, limit int) ([]*models.Transaction, error) {
	return s.list(ctx, `
		SELECT `+transactionColumns+` FROM transactions
		WHERE workflow_id IS NULL AND id > $1
		ORDER BY id
		LIMIT $2
	`, after, limit)
}

func (s *PostgresStore) list(ctx context.Context, query string, after id.TransactionID, limit int, args ...any) ([]*models.Transaction, error) {
	if limit <= 0 {
		limit = 500
	}
	all := append([]any{uuid.UUID(after), limit}, args...)
	rows, err := txcontext.ExecutorFrom(ctx, s.db).QueryContext(ctx, query, all...)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", postgres.Classify(err))
	}
	defer rows.Close()

	var out []*models.Transaction
	for rows.Next() {
		txn, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		out = append(out, txn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transactions: %w", err)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row scanner) (*models.Transaction, error) {
	var (
		txnID, creator                  uuid.UUID
		category, status                string
		workflow, step, office, holder  uuid.NullUUID
		creatorOffice, requestingOffice uuid.NullUUID
		receivedAt, lastNotified        sql.NullTime
		t                               models.Transaction
	)
	err := row.Scan(
		&txnID, &category, &t.ReferenceNumber, &t.FundType, &workflow, &step,
		&office, &holder, &status, &receivedAt, &creator,
		&creatorOffice, &requestingOffice, &t.IsLegacy, &t.Remarks, &t.CreatedAt,
		&t.UpdatedAt, &lastNotified,
	)
	if err != nil {
		return nil, err
	}
	t.ID = id.TransactionID(txnID)
	t.Category = id.Category(category)
	t.Status = models.Status(status)
	t.CreatedByUserID = id.UserID(creator)
	if workflow.Valid {
		v := id.WorkflowID(workflow.UUID)
		t.WorkflowID = &v
	}
	if step.Valid {
		v := id.StepID(step.UUID)
		t.CurrentStepID = &v
	}
	if holder.Valid {
		v := id.UserID(holder.UUID)
		t.CurrentUserID = &v
	}
	t.CurrentOfficeID = officePtr(office)
	t.CreatedByOfficeID = officePtr(creatorOffice)
	t.RequestingOfficeID = officePtr(requestingOffice)
	t.ReceivedAt = timePtr(receivedAt)
	t.LastOverdueNotifiedAt = timePtr(lastNotified)
	return &t, nil
}

func officePtr(n uuid.NullUUID) *id.OfficeID {
	if !n.Valid {
		return nil
	}
	v := id.OfficeID(n.UUID)
	return &v
}

func timePtr(n sql.NullTime) *time.Time {
	if !n.Valid {
		return nil
	}
	v := n.Time
	return &v
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

// nullUUID converts an optional typed id into a nullable query argument.
func nullUUID[T ~[16]byte](v *T) uuid.NullUUID {
	if v == nil {
		return uuid.NullUUID{}
	}
	return uuid.NullUUID{UUID: uuid.UUID(*v), Valid: true}
}
