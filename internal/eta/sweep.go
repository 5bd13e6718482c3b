package eta

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	catalogmodels "proctrack/internal/catalog/models"
	"proctrack/internal/eta/metrics"
	"proctrack/internal/notify"
	"proctrack/internal/tracking/models"
	trackingservice "proctrack/internal/tracking/service"
	id "proctrack/pkg/domain"
	dErrors "proctrack/pkg/domain-errors"
	"proctrack/pkg/requestcontext"
)

var tracer = otel.Tracer("proctrack/eta")

// DefaultCooldown keeps a late document from being reported more than once a day.
const DefaultCooldown = 24 * time.Hour

const defaultSweepBatch = 200

// Store is the part of the transaction store the sweep needs.
type Store interface {
	ListOverdueCandidates(ctx context.Context, notifiedBefore time.Time, after id.TransactionID, limit int) ([]*models.Transaction, error)
	FindByIDForUpdate(ctx context.Context, txnID id.TransactionID) (*models.Transaction, error)
	Update(ctx context.Context, txn *models.Transaction) error
}

// Catalog loads workflow definitions.
type Catalog interface {
	Workflow(ctx context.Context, workflowID id.WorkflowID) (*catalogmodels.Workflow, error)
}

// SweepReport tallies one sweep. Scanned counts candidates examined.
type SweepReport struct {
	Scanned    int `json:"scanned"`
	Notified   int `json:"notified"`
	NotOverdue int `json:"not_overdue"`
	Failed     int `json:"failed"`
}

// Sweeper finds In Progress documents past their due step and notifies their
// holder and every administrator, at most once per cooldown window.
type Sweeper struct {
	store      Store
	catalog    Catalog
	directory  notify.Directory
	notifier   notify.Notifier
	tx         trackingservice.TxRunner
	calculator *Calculator
	severity   SeverityPolicy
	cooldown   time.Duration
	batchSize  int
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

type SweeperOption func(*Sweeper)

func WithSweepLogger(logger *slog.Logger) SweeperOption {
	return func(s *Sweeper) {
		s.logger = logger
	}
}

func WithSweepMetrics(m *metrics.Metrics) SweeperOption {
	return func(s *Sweeper) {
		s.metrics = m
	}
}

func WithCooldown(d time.Duration) SweeperOption {
	return func(s *Sweeper) {
		if d > 0 {
			s.cooldown = d
		}
	}
}

func WithSeverityPolicy(p SeverityPolicy) SweeperOption {
	return func(s *Sweeper) {
		s.severity = p
	}
}

func WithSweepBatchSize(n int) SweeperOption {
	return func(s *Sweeper) {
		if n > 0 {
			s.batchSize = n
		}
	}
}

func NewSweeper(
	store Store,
	catalog Catalog,
	directory notify.Directory,
	notifier notify.Notifier,
	tx trackingservice.TxRunner,
	calculator *Calculator,
	opts ...SweeperOption,
) (*Sweeper, error) {
	switch {
	case store == nil:
		return nil, errors.New("transaction store is required")
	case catalog == nil:
		return nil, errors.New("catalog is required")
	case directory == nil:
		return nil, errors.New("directory is required")
	case notifier == nil:
		return nil, errors.New("notifier is required")
	case tx == nil:
		return nil, errors.New("tx runner is required")
	case calculator == nil:
		return nil, errors.New("calculator is required")
	}
	s := &Sweeper{
		store:      store,
		catalog:    catalog,
		directory:  directory,
		notifier:   notifier,
		tx:         tx,
		calculator: calculator,
		severity:   SeverityPolicy{WarningMaxDays: DefaultWarningMaxDays},
		cooldown:   DefaultCooldown,
		batchSize:  defaultSweepBatch,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s, nil
}

type sweepOutcome int

const (
	sweepNotified sweepOutcome = iota
	sweepNotOverdue
)

// Run performs one sweep. Per-record failures are tallied; only failing to
// list candidates or to resolve administrators aborts the run.
func (s *Sweeper) Run(ctx context.Context) (SweepReport, error) {
	ctx, span := tracer.Start(ctx, "eta.Sweep")
	defer span.End()
	start := time.Now()
	now := requestcontext.Now(ctx)
	ctx = requestcontext.WithTime(ctx, now)

	var report SweepReport
	admins, err := s.directory.Administrators(ctx)
	if err != nil {
		return report, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load administrators")
	}

	workflows := make(map[id.WorkflowID]*catalogmodels.Workflow)
	notifiedBefore := now.Add(-s.cooldown)
	var after id.TransactionID
	for {
		if err := ctx.Err(); err != nil {
			return report, dErrors.Wrap(err, dErrors.CodeTimeout, "sweep interrupted")
		}
		page, err := s.store.ListOverdueCandidates(ctx, notifiedBefore, after, s.batchSize)
		if err != nil {
			return report, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list overdue candidates")
		}
		if len(page) == 0 {
			break
		}
		for _, candidate := range page {
			report.Scanned++
			outcome, err := s.sweepOne(ctx, candidate.ID, notifiedBefore, now, admins, workflows)
			if err != nil {
				report.Failed++
				s.logger.ErrorContext(ctx, "overdue check failed",
					"transaction_id", candidate.ID.String(),
					"error", err,
				)
				continue
			}
			switch outcome {
			case sweepNotified:
				report.Notified++
			case sweepNotOverdue:
				report.NotOverdue++
			}
		}
		after = page[len(page)-1].ID
		if len(page) < s.batchSize {
			break
		}
	}

	span.SetAttributes(
		attribute.Int("sweep.scanned", report.Scanned),
		attribute.Int("sweep.notified", report.Notified),
		attribute.Int("sweep.failed", report.Failed),
	)
	s.metrics.ObserveSweep(start, report.Notified, report.NotOverdue, report.Failed)
	s.logger.InfoContext(ctx, "overdue sweep finished",
		"scanned", report.Scanned,
		"notified", report.Notified,
		"not_overdue", report.NotOverdue,
		"failed", report.Failed,
	)
	return report, nil
}

// sweepOne re-reads the candidate under its row lock so a concurrent
// transition or a second sweep cannot double-report it. The stamp is written
// only after the dispatcher accepted the event; a failed publish leaves the
// row unstamped for the next run, and a crash before commit repeats it.
func (s *Sweeper) sweepOne(
	ctx context.Context,
	txnID id.TransactionID,
	notifiedBefore, now time.Time,
	admins []id.UserID,
	workflows map[id.WorkflowID]*catalogmodels.Workflow,
) (sweepOutcome, error) {
	outcome := sweepNotOverdue
	err := s.tx.RunInTx(trackingservice.WithLockKey(ctx, txnID.String()), func(txCtx context.Context) error {
		txn, err := s.store.FindByIDForUpdate(txCtx, txnID)
		if err != nil {
			return err
		}
		if txn.Status != models.StatusInProgress || txn.CurrentStepID == nil || txn.WorkflowID == nil {
			return nil
		}
		if txn.LastOverdueNotifiedAt != nil && !txn.LastOverdueNotifiedAt.Before(notifiedBefore) {
			return nil
		}
		wf, ok := workflows[*txn.WorkflowID]
		if !ok {
			wf, err = s.catalog.Workflow(txCtx, *txn.WorkflowID)
			if err != nil {
				return err
			}
			workflows[wf.ID] = wf
		}
		step := wf.StepByID(*txn.CurrentStepID)
		delay := s.calculator.DelayDays(txn, step, now)
		if delay <= 0 {
			return nil
		}

		err = s.notifier.Overdue(txCtx, notify.OverdueEvent{
			TransactionID:   txn.ID,
			ReferenceNumber: txn.ReferenceNumber,
			OfficeID:        txn.CurrentOfficeID,
			StepID:          txn.CurrentStepID,
			DelayDays:       delay,
			Severity:        string(s.severity.Classify(delay)),
			Recipients:      notify.Recipients(txn.CurrentUserID, admins),
			OccurredAt:      now,
		})
		if err != nil {
			return err
		}
		txn.StampOverdueNotified(now)
		if err := s.store.Update(txCtx, txn); err != nil {
			return err
		}
		outcome = sweepNotified
		return nil
	})
	return outcome, err
}
