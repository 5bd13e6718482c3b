package service

import (
	"context"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	catalogmodels "proctrack/internal/catalog/models"
	"proctrack/internal/notify"
	"proctrack/internal/tracking/models"
	"proctrack/internal/tracking/policy"
	id "proctrack/pkg/domain"
	dErrors "proctrack/pkg/domain-errors"
	"proctrack/pkg/requestcontext"
)

const maxRemarksLength = 2000

// CreateRequest describes a new document.
type CreateRequest struct {
	Category           id.Category
	FundType           string
	Continuation       bool
	RequestingOfficeID *id.OfficeID
	Remarks            string
}

// EndorseResult carries the updated transaction, its ledger entry, and the
// route deviation when the destination was not the expected office.
type EndorseResult struct {
	Transaction   *models.Transaction
	Action        *models.Action
	OutOfWorkflow *policy.Deviation
}

// Create registers a document, binds it to the active workflow of its
// category and issues its reference number, all in one transaction. A
// missing or ambiguous active workflow aborts creation before a number is
// issued.
func (e *Engine) Create(ctx context.Context, actor id.Actor, req CreateRequest) (*models.Transaction, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	remarks, err := normalizeRemarks(req.Remarks)
	if err != nil {
		return nil, err
	}
	if err := e.requireOffice(ctx, actor.OfficeID, "creator"); err != nil {
		return nil, err
	}
	if req.RequestingOfficeID != nil {
		if err := e.requireOffice(ctx, *req.RequestingOfficeID, "requesting"); err != nil {
			return nil, err
		}
	}
	txnID := id.NewTransactionID()
	ctx, span := tracer.Start(ctx, "tracking.Create")
	defer span.End()
	span.SetAttributes(attribute.String("transaction.category", string(req.Category)))

	var created *models.Transaction
	err = e.tx.RunInTx(WithLockKey(ctx, txnID.String()), func(txCtx context.Context) error {
		now := requestcontext.Now(txCtx)
		txn, err := models.NewTransaction(txnID, req.Category, strings.ToUpper(strings.TrimSpace(req.FundType)), actor, req.RequestingOfficeID, now)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInvalidInput, "invalid transaction")
		}
		txn.Remarks = remarks
		if _, err := e.assigner.Assign(txCtx, txn, actor); err != nil {
			return err
		}
		ref, err := e.refs.Generate(txCtx, req.Category, req.FundType, req.Continuation)
		if err != nil {
			return err
		}
		if err := txn.AttachReferenceNumber(ref); err != nil {
			return err
		}
		if err := e.store.Create(txCtx, txn); err != nil {
			return wrapStoreErr(err, "failed to create transaction")
		}
		created = txn
		return nil
	})
	if err != nil {
		e.recordFailure(ctx, span, "create", err)
		return nil, err
	}
	e.metrics.IncrementCreated(string(created.Category))
	e.logger.InfoContext(ctx, "transaction created",
		"transaction_id", created.ID.String(),
		"reference_number", created.ReferenceNumber,
	)
	return created, nil
}

// Endorse hands the document to toOffice. An endorsement is never blocked on
// workflow conformance; a deviation is returned and reported instead.
func (e *Engine) Endorse(ctx context.Context, actor id.Actor, txnID id.TransactionID, toOffice id.OfficeID, remarks string) (*EndorseResult, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if toOffice.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "destination office is required")
	}
	remarks, err := normalizeRemarks(remarks)
	if err != nil {
		return nil, err
	}
	if err := e.requireOffice(ctx, toOffice, "destination"); err != nil {
		return nil, err
	}

	var deviation *policy.Deviation
	txn, action, err := e.transition(ctx, "endorse", txnID, func(txn *models.Transaction, wf *catalogmodels.Workflow, now func() time.Time) (*models.Action, error) {
		if err := policy.CanEndorse(txn, actor, wf).Err(); err != nil {
			return nil, err
		}
		deviation = policy.CheckRoute(txn, wf, toOffice)
		action := models.NewAction(txn, models.ActionEndorse, actor.UserID, &toOffice, remarks, now())
		txn.ApplyEndorsement(toOffice, now())
		return action, nil
	})
	if err != nil {
		return nil, err
	}

	if deviation != nil {
		e.metrics.IncrementOutOfWorkflow()
		e.logger.InfoContext(ctx, "out of workflow endorsement",
			"transaction_id", txn.ID.String(),
			"actual_office_id", deviation.Actual.String(),
			"expected_known", deviation.Expected != nil,
		)
		e.notifier.OutOfWorkflow(ctx, notify.OutOfWorkflowEvent{
			TransactionID:    txn.ID,
			ReferenceNumber:  txn.ReferenceNumber,
			ActionID:         action.ID,
			ActorUserID:      actor.UserID,
			FromOfficeID:     action.FromOfficeID,
			ActualOfficeID:   deviation.Actual,
			ExpectedOfficeID: deviation.Expected,
			OccurredAt:       action.CreatedAt,
		})
	}
	return &EndorseResult{Transaction: txn, Action: action, OutOfWorkflow: deviation}, nil
}

// Receive records that actor took the document at its current office and
// moves it onto the step that office corresponds to, if any.
func (e *Engine) Receive(ctx context.Context, actor id.Actor, txnID id.TransactionID, remarks string) (*models.Transaction, *models.Action, error) {
	if err := requireActor(actor); err != nil {
		return nil, nil, err
	}
	remarks, err := normalizeRemarks(remarks)
	if err != nil {
		return nil, nil, err
	}

	txn, action, err := e.transition(ctx, "receive", txnID, func(txn *models.Transaction, wf *catalogmodels.Workflow, now func() time.Time) (*models.Action, error) {
		if err := policy.CanReceive(txn, actor).Err(); err != nil {
			return nil, err
		}
		office := *txn.CurrentOfficeID
		var stepID *id.StepID
		if step := policy.StepOnReceipt(txn, wf, office); step != nil {
			s := step.ID
			stepID = &s
		}
		action := models.NewAction(txn, models.ActionReceive, actor.UserID, &office, remarks, now())
		txn.ApplyReceipt(actor.UserID, stepID, now())
		return action, nil
	})
	if err != nil {
		return nil, nil, err
	}

	e.notifier.Received(ctx, notify.ReceivedEvent{
		TransactionID:   txn.ID,
		ReferenceNumber: txn.ReferenceNumber,
		ActionID:        action.ID,
		ReceiverUserID:  actor.UserID,
		OfficeID:        *txn.CurrentOfficeID,
		CreatorUserID:   txn.CreatedByUserID,
		OccurredAt:      action.CreatedAt,
	})
	return txn, action, nil
}

// Complete closes the document at the final step of its workflow.
func (e *Engine) Complete(ctx context.Context, actor id.Actor, txnID id.TransactionID, remarks string) (*models.Transaction, *models.Action, error) {
	if err := requireActor(actor); err != nil {
		return nil, nil, err
	}
	remarks, err := normalizeRemarks(remarks)
	if err != nil {
		return nil, nil, err
	}

	txn, action, err := e.transition(ctx, "complete", txnID, func(txn *models.Transaction, wf *catalogmodels.Workflow, now func() time.Time) (*models.Action, error) {
		if err := policy.CanComplete(txn, actor, wf).Err(); err != nil {
			return nil, err
		}
		action := models.NewAction(txn, models.ActionComplete, actor.UserID, nil, remarks, now())
		txn.ApplyCompletion(now())
		return action, nil
	})
	if err != nil {
		return nil, nil, err
	}

	e.notifier.Completed(ctx, notify.CompletedEvent{
		TransactionID:     txn.ID,
		ReferenceNumber:   txn.ReferenceNumber,
		CompletedByUserID: actor.UserID,
		CreatorUserID:     txn.CreatedByUserID,
		OccurredAt:        action.CreatedAt,
	})
	return txn, action, nil
}

// Hold pauses an In Progress document. Status changes only; the ledger
// records routing events, not pauses.
func (e *Engine) Hold(ctx context.Context, actor id.Actor, txnID id.TransactionID) (*models.Transaction, error) {
	return e.statusChange(ctx, actor, txnID, "hold", policy.CanHold, (*models.Transaction).ApplyHold)
}

// Resume returns a paused document to In Progress.
func (e *Engine) Resume(ctx context.Context, actor id.Actor, txnID id.TransactionID) (*models.Transaction, error) {
	return e.statusChange(ctx, actor, txnID, "resume", policy.CanResume, (*models.Transaction).ApplyResume)
}

// Cancel terminates a document.
func (e *Engine) Cancel(ctx context.Context, actor id.Actor, txnID id.TransactionID) (*models.Transaction, error) {
	return e.statusChange(ctx, actor, txnID, "cancel", policy.CanCancel, (*models.Transaction).ApplyCancellation)
}

func (e *Engine) statusChange(
	ctx context.Context,
	actor id.Actor,
	txnID id.TransactionID,
	op string,
	check func(*models.Transaction, id.Actor) policy.Decision,
	apply func(*models.Transaction, time.Time),
) (*models.Transaction, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	txn, _, err := e.transition(ctx, op, txnID, func(txn *models.Transaction, _ *catalogmodels.Workflow, now func() time.Time) (*models.Action, error) {
		if err := check(txn, actor).Err(); err != nil {
			return nil, err
		}
		apply(txn, now())
		return nil, nil
	})
	return txn, err
}

// transition runs mutate under the row lock of txnID and persists the
// result. mutate returns the ledger entry to append, or nil.
func (e *Engine) transition(
	ctx context.Context,
	op string,
	txnID id.TransactionID,
	mutate func(txn *models.Transaction, wf *catalogmodels.Workflow, now func() time.Time) (*models.Action, error),
) (*models.Transaction, *models.Action, error) {
	ctx, span := tracer.Start(ctx, "tracking."+op)
	defer span.End()
	span.SetAttributes(attribute.String("transaction.id", txnID.String()))

	var (
		updated *models.Transaction
		action  *models.Action
	)
	err := e.tx.RunInTx(WithLockKey(ctx, txnID.String()), func(txCtx context.Context) error {
		txn, err := e.store.FindByIDForUpdate(txCtx, txnID)
		if err != nil {
			return wrapStoreErr(err, "failed to load transaction")
		}
		wf, err := e.Workflow(txCtx, txn)
		if err != nil {
			return err
		}
		now := func() time.Time { return requestcontext.Now(txCtx) }
		action, err = mutate(txn, wf, now)
		if err != nil {
			return err
		}
		if err := e.store.Update(txCtx, txn); err != nil {
			return wrapStoreErr(err, "failed to update transaction")
		}
		if action != nil {
			if err := e.actions.Append(txCtx, action); err != nil {
				return wrapStoreErr(err, "failed to record action")
			}
		}
		updated = txn
		return nil
	})
	if err != nil {
		e.recordFailure(ctx, span, op, err)
		return nil, nil, err
	}
	e.metrics.IncrementTransition(op)
	return updated, action, nil
}

func (e *Engine) recordFailure(ctx context.Context, span trace.Span, op string, err error) {
	code := dErrors.CodeOf(err)
	switch code {
	case dErrors.CodeForbidden, dErrors.CodeInvalidTransition:
		e.metrics.IncrementDenial(op, dErrors.ReasonOf(err))
		return
	case dErrors.CodeNotFound, dErrors.CodeInvalidInput, dErrors.CodeBadRequest:
		return
	case dErrors.CodeWorkflowMisconfigured:
		e.logger.WarnContext(ctx, "workflow misconfigured",
			"operation", op,
			"reason", dErrors.ReasonOf(err),
			"error", err,
		)
	default:
		e.logger.ErrorContext(ctx, "transition failed",
			"operation", op,
			"code", string(code),
			"error", err,
		)
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, string(code))
}

func requireActor(actor id.Actor) error {
	if actor.IsZero() {
		return dErrors.New(dErrors.CodeUnauthorized, "an authenticated actor is required")
	}
	return nil
}

func normalizeRemarks(remarks string) (string, error) {
	remarks = strings.TrimSpace(remarks)
	if len(remarks) > maxRemarksLength {
		return "", dErrors.New(dErrors.CodeInvalidInput, "remarks are too long")
	}
	return remarks, nil
}
