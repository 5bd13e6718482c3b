// Package assignment binds transactions to the workflow of their category
// and to the step matching their office, for new documents and for legacy
// records repaired in bulk.
package assignment

import (
	"context"
	"errors"
	"log/slog"

	catalogmodels "proctrack/internal/catalog/models"
	"proctrack/internal/tracking/models"
	trackingservice "proctrack/internal/tracking/service"
	id "proctrack/pkg/domain"
	dErrors "proctrack/pkg/domain-errors"
)

// Catalog resolves the single active workflow of a category.
type Catalog interface {
	ActiveWorkflow(ctx context.Context, category id.Category) (*catalogmodels.Workflow, error)
}

// Store is the part of the transaction store backfill needs.
type Store interface {
	FindByIDForUpdate(ctx context.Context, txnID id.TransactionID) (*models.Transaction, error)
	Update(ctx context.Context, txn *models.Transaction) error
	LatestEndorseDestination(ctx context.Context, txnID id.TransactionID) (*id.OfficeID, error)
	ListLegacyWithoutOffice(ctx context.Context, after id.TransactionID, limit int) ([]*models.Transaction, error)
	ListWithoutWorkflow(ctx context.Context, after id.TransactionID, limit int) ([]*models.Transaction, error)
}

const defaultBatchSize = 200

// Resolver assigns workflows and steps.
type Resolver struct {
	catalog   Catalog
	store     Store
	tx        trackingservice.TxRunner
	logger    *slog.Logger
	batchSize int
}

type Option func(*Resolver)

func WithLogger(logger *slog.Logger) Option {
	return func(r *Resolver) {
		r.logger = logger
	}
}

// WithBackfill enables the backfill entry points.
func WithBackfill(store Store, tx trackingservice.TxRunner) Option {
	return func(r *Resolver) {
		r.store = store
		r.tx = tx
	}
}

func WithBatchSize(n int) Option {
	return func(r *Resolver) {
		if n > 0 {
			r.batchSize = n
		}
	}
}

func New(catalog Catalog, opts ...Option) (*Resolver, error) {
	if catalog == nil {
		return nil, errors.New("catalog is required")
	}
	r := &Resolver{catalog: catalog, batchSize: defaultBatchSize}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	return r, nil
}

// Assign binds a new transaction to its category's active workflow at the
// first step. The creator is presumed to hold the document already, so it
// starts at the creator's office, received at creation time.
func (r *Resolver) Assign(ctx context.Context, txn *models.Transaction, creator id.Actor) (*catalogmodels.Workflow, error) {
	if creator.OfficeID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "creator office is required")
	}
	wf, err := r.catalog.ActiveWorkflow(ctx, txn.Category)
	if err != nil {
		return nil, err
	}
	first := wf.FirstStep()
	if first == nil {
		r.logger.WarnContext(ctx, "active workflow has no steps",
			"category", string(txn.Category),
			"workflow_id", wf.ID.String(),
		)
		return nil, dErrors.NewWithReason(dErrors.CodeWorkflowMisconfigured, "no_first_step", "active workflow has no first step")
	}
	stepID := first.ID
	holder := creator.UserID
	received := txn.CreatedAt
	txn.ApplyAssignment(wf.ID, &stepID, creator.OfficeID, &holder, &received, txn.CreatedAt)
	return wf, nil
}

// Reassign returns the step of wf bound to the transaction's current office,
// lowest order first, or nil when the office is not on the route or unknown.
func (r *Resolver) Reassign(txn *models.Transaction, wf *catalogmodels.Workflow) *catalogmodels.Step {
	if wf == nil || txn.CurrentOfficeID == nil {
		return nil
	}
	return wf.StepForOffice(*txn.CurrentOfficeID)
}
