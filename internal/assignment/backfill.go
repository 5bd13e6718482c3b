package assignment

import (
	"context"
	"errors"

	catalogmodels "proctrack/internal/catalog/models"
	"proctrack/internal/tracking/models"
	trackingservice "proctrack/internal/tracking/service"
	id "proctrack/pkg/domain"
	dErrors "proctrack/pkg/domain-errors"
	"proctrack/pkg/requestcontext"
)

// BackfillReport tallies a backfill run. A record that cannot be repaired is
// counted, never fatal to the batch.
type BackfillReport struct {
	Updated int `json:"updated"`
	Skipped int `json:"skipped"`
	NoMatch int `json:"no_match"`
	Failed  int `json:"failed"`
}

type outcome int

const (
	outcomeUpdated outcome = iota
	outcomeSkipped
	outcomeNoMatch
)

// result is what repairing one record did. changed is false when nothing
// needs writing.
type result struct {
	outcome outcome
	changed bool
}

var (
	updated   = result{outcome: outcomeUpdated, changed: true}
	skipped   = result{outcome: outcomeSkipped}
	noMatch   = result{outcome: outcomeNoMatch}
	boundOnly = result{outcome: outcomeNoMatch, changed: true}
)

func (b *BackfillReport) add(o outcome) {
	switch o {
	case outcomeUpdated:
		b.Updated++
	case outcomeSkipped:
		b.Skipped++
	case outcomeNoMatch:
		b.NoMatch++
	}
}

var errBackfillDisabled = dErrors.New(dErrors.CodeInternal, "backfill is not configured")

// BackfillOffices locates legacy documents that have no current office: the
// destination of their latest endorsement, else the requesting office. A
// document with neither is skipped.
func (r *Resolver) BackfillOffices(ctx context.Context) (BackfillReport, error) {
	if r.store == nil || r.tx == nil {
		return BackfillReport{}, errBackfillDisabled
	}
	report, err := r.backfill(ctx, "offices", r.store.ListLegacyWithoutOffice, func(txCtx context.Context, txn *models.Transaction) (result, error) {
		if txn.CurrentOfficeID != nil {
			return skipped, nil
		}
		office, err := r.store.LatestEndorseDestination(txCtx, txn.ID)
		if err != nil {
			return result{}, err
		}
		if office == nil {
			office = txn.RequestingOfficeID
		}
		if office == nil {
			return skipped, nil
		}
		txn.LocateAt(*office, requestcontext.Now(txCtx))
		return updated, nil
	})
	return report, err
}

// BackfillWorkflows binds documents that have no workflow to the active
// workflow of their category and, when their office is on the route, to the
// matching step. Documents already bound are never touched, so reruns are
// no-ops. A document left step-less is still bound and counted as no match.
func (r *Resolver) BackfillWorkflows(ctx context.Context) (BackfillReport, error) {
	if r.store == nil || r.tx == nil {
		return BackfillReport{}, errBackfillDisabled
	}
	active := make(map[id.Category]*catalogmodels.Workflow)
	missing := make(map[id.Category]bool)

	report, err := r.backfill(ctx, "workflows", r.store.ListWithoutWorkflow, func(txCtx context.Context, txn *models.Transaction) (result, error) {
		if txn.WorkflowID != nil {
			return skipped, nil
		}
		if missing[txn.Category] {
			return noMatch, nil
		}
		wf, ok := active[txn.Category]
		if !ok {
			found, err := r.catalog.ActiveWorkflow(txCtx, txn.Category)
			if dErrors.HasCode(err, dErrors.CodeWorkflowMisconfigured) || dErrors.HasCode(err, dErrors.CodeInvalidInput) {
				missing[txn.Category] = true
				return noMatch, nil
			}
			if err != nil {
				return result{}, err
			}
			active[txn.Category] = found
			wf = found
		}
		if txn.CurrentOfficeID == nil {
			return skipped, nil
		}
		step := r.Reassign(txn, wf)
		var stepID *id.StepID
		if step != nil {
			s := step.ID
			stepID = &s
		}
		txn.ApplyAssignment(wf.ID, stepID, *txn.CurrentOfficeID, txn.CurrentUserID, txn.ReceivedAt, requestcontext.Now(txCtx))
		if stepID == nil {
			return boundOnly, nil
		}
		return updated, nil
	})
	return report, err
}

type repairFunc func(txCtx context.Context, txn *models.Transaction) (result, error)

type listFunc func(ctx context.Context, after id.TransactionID, limit int) ([]*models.Transaction, error)

// backfill pages through candidates and repairs each one under its row lock.
// Only a failure to list candidates aborts the run.
func (r *Resolver) backfill(ctx context.Context, kind string, list listFunc, repair repairFunc) (BackfillReport, error) {
	var (
		report BackfillReport
		after  id.TransactionID
	)
	for {
		if err := ctx.Err(); err != nil {
			return report, dErrors.Wrap(err, dErrors.CodeTimeout, "backfill interrupted")
		}
		page, err := list(ctx, after, r.batchSize)
		if err != nil {
			return report, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list backfill candidates")
		}
		if len(page) == 0 {
			break
		}
		for _, candidate := range page {
			o, err := r.repairOne(ctx, candidate.ID, repair)
			if err != nil {
				report.Failed++
				r.logger.ErrorContext(ctx, "backfill record failed",
					"kind", kind,
					"transaction_id", candidate.ID.String(),
					"error", err,
				)
				continue
			}
			report.add(o)
		}
		after = page[len(page)-1].ID
		if len(page) < r.batchSize {
			break
		}
	}
	r.logger.InfoContext(ctx, "backfill finished",
		"kind", kind,
		"updated", report.Updated,
		"skipped", report.Skipped,
		"no_match", report.NoMatch,
		"failed", report.Failed,
	)
	return report, nil
}

var errNoChange = errors.New("no change")

func (r *Resolver) repairOne(ctx context.Context, txnID id.TransactionID, repair repairFunc) (outcome, error) {
	var res result
	err := r.tx.RunInTx(trackingservice.WithLockKey(ctx, txnID.String()), func(txCtx context.Context) error {
		txn, err := r.store.FindByIDForUpdate(txCtx, txnID)
		if err != nil {
			return err
		}
		res, err = repair(txCtx, txn)
		if err != nil {
			return err
		}
		if !res.changed {
			return errNoChange
		}
		return r.store.Update(txCtx, txn)
	})
	if errors.Is(err, errNoChange) {
		return res.outcome, nil
	}
	return res.outcome, err
}
