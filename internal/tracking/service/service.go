package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel"

	catalogmodels "proctrack/internal/catalog/models"
	"proctrack/internal/notify"
	"proctrack/internal/tracking/metrics"
	"proctrack/internal/tracking/models"
	id "proctrack/pkg/domain"
	dErrors "proctrack/pkg/domain-errors"
	"proctrack/pkg/platform/sentinel"
)

var tracer = otel.Tracer("proctrack/tracking")

// Store persists transactions. FindByIDForUpdate must hold an exclusive lock
// on the row until the surrounding transaction ends.
type Store interface {
	Create(ctx context.Context, txn *models.Transaction) error
	FindByID(ctx context.Context, txnID id.TransactionID) (*models.Transaction, error)
	FindByIDForUpdate(ctx context.Context, txnID id.TransactionID) (*models.Transaction, error)
	FindByReference(ctx context.Context, ref string) (*models.Transaction, error)
	Update(ctx context.Context, txn *models.Transaction) error
}

// ActionStore is the append-only ledger.
type ActionStore interface {
	Append(ctx context.Context, action *models.Action) error
	ListByTransaction(ctx context.Context, txnID id.TransactionID) ([]*models.Action, error)
}

// ReferenceGenerator issues reference numbers.
type ReferenceGenerator interface {
	Generate(ctx context.Context, category id.Category, fundType string, continuation bool) (string, error)
}

// Catalog loads the workflow a transaction is bound to.
type Catalog interface {
	Workflow(ctx context.Context, workflowID id.WorkflowID) (*catalogmodels.Workflow, error)
	Office(ctx context.Context, officeID id.OfficeID) (*catalogmodels.Office, error)
}

// Assigner attaches a new transaction to its category's active workflow.
type Assigner interface {
	Assign(ctx context.Context, txn *models.Transaction, creator id.Actor) (*catalogmodels.Workflow, error)
}

// Engine validates and applies transaction transitions.
//
// Every transition runs in one transaction: lock the row, evaluate the
// policy, mutate, write the ledger entry. Notifications go out after commit
// and never affect the result.
type Engine struct {
	store    Store
	actions  ActionStore
	refs     ReferenceGenerator
	catalog  Catalog
	assigner Assigner
	tx       TxRunner
	notifier notify.Notifier
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

type Option func(*Engine)

func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

func WithNotifier(n notify.Notifier) Option {
	return func(e *Engine) {
		e.notifier = n
	}
}

// WithTx sets the transactional boundary. Defaults to in-memory sharded locks.
func WithTx(tx TxRunner) Option {
	return func(e *Engine) {
		e.tx = tx
	}
}

func New(store Store, actions ActionStore, refs ReferenceGenerator, catalog Catalog, assigner Assigner, opts ...Option) (*Engine, error) {
	switch {
	case store == nil:
		return nil, errors.New("transaction store is required")
	case actions == nil:
		return nil, errors.New("action store is required")
	case refs == nil:
		return nil, errors.New("reference generator is required")
	case catalog == nil:
		return nil, errors.New("catalog is required")
	case assigner == nil:
		return nil, errors.New("assigner is required")
	}
	e := &Engine{
		store:    store,
		actions:  actions,
		refs:     refs,
		catalog:  catalog,
		assigner: assigner,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	if e.notifier == nil {
		e.notifier = notify.NewLogNotifier(e.logger)
	}
	if e.tx == nil {
		e.tx = NewShardedTx(defaultTxTimeout)
	}
	return e, nil
}

// Get returns a transaction.
func (e *Engine) Get(ctx context.Context, txnID id.TransactionID) (*models.Transaction, error) {
	txn, err := e.store.FindByID(ctx, txnID)
	if err != nil {
		return nil, wrapStoreErr(err, "failed to load transaction")
	}
	return txn, nil
}

// GetByReference looks a transaction up by its printed reference number.
// Case and surrounding whitespace are ignored.
func (e *Engine) GetByReference(ctx context.Context, ref string) (*models.Transaction, error) {
	ref = strings.ToUpper(strings.TrimSpace(ref))
	if ref == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "reference number is required")
	}
	txn, err := e.store.FindByReference(ctx, ref)
	if err != nil {
		return nil, wrapStoreErr(err, "failed to load transaction")
	}
	return txn, nil
}

// Timeline returns the ledger of a transaction in the order it was written.
func (e *Engine) Timeline(ctx context.Context, txnID id.TransactionID) ([]*models.Action, error) {
	if _, err := e.Get(ctx, txnID); err != nil {
		return nil, err
	}
	actions, err := e.actions.ListByTransaction(ctx, txnID)
	if err != nil {
		return nil, wrapStoreErr(err, "failed to load timeline")
	}
	return actions, nil
}

// Workflow returns the workflow a transaction follows, nil if unassigned.
func (e *Engine) Workflow(ctx context.Context, txn *models.Transaction) (*catalogmodels.Workflow, error) {
	if txn.WorkflowID == nil {
		return nil, nil
	}
	return e.catalog.Workflow(ctx, *txn.WorkflowID)
}

// ReasonUnknownOffice marks input naming an office the catalog does not have.
const ReasonUnknownOffice = "unknown_office"

// requireOffice turns a catalog miss into invalid input. role names the
// office in the message.
func (e *Engine) requireOffice(ctx context.Context, officeID id.OfficeID, role string) error {
	if _, err := e.catalog.Office(ctx, officeID); err != nil {
		if dErrors.HasCode(err, dErrors.CodeNotFound) {
			return dErrors.NewWithReason(dErrors.CodeInvalidInput, ReasonUnknownOffice,
				fmt.Sprintf("%s office %s does not exist", role, officeID))
		}
		return err
	}
	return nil
}

func wrapStoreErr(err error, msg string) error {
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, "transaction not found")
	case errors.Is(err, sentinel.ErrLockTimeout):
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction is busy, retry shortly")
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.Wrap(err, dErrors.CodeConflict, "transaction already exists")
	case errors.Is(err, sentinel.ErrMissingReference):
		return dErrors.NewWithReason(dErrors.CodeInvalidInput, ReasonUnknownOffice, "transaction references an office that does not exist")
	}
	if _, ok := dErrors.As(err); ok {
		return err
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, msg)
}
