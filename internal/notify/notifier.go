package notify

import (
	"context"
	"log/slog"
)

// Notifier receives engine events. Transition events are fire-and-forget and
// must not block or fail the caller. Overdue returns once the dispatcher has
// accepted the event; on error the sweep leaves the document unstamped so the
// next run retries it.
type Notifier interface {
	OutOfWorkflow(ctx context.Context, event OutOfWorkflowEvent)
	Received(ctx context.Context, event ReceivedEvent)
	Completed(ctx context.Context, event CompletedEvent)
	Overdue(ctx context.Context, event OverdueEvent) error
}

// LogNotifier writes events to the log. Used when no broker is configured.
type LogNotifier struct {
	logger *slog.Logger
}

func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) OutOfWorkflow(ctx context.Context, event OutOfWorkflowEvent) {
	expected := "unknown"
	if event.ExpectedOfficeID != nil {
		expected = event.ExpectedOfficeID.String()
	}
	n.logger.InfoContext(ctx, "out of workflow endorsement",
		"transaction_id", event.TransactionID.String(),
		"reference_number", event.ReferenceNumber,
		"actual_office_id", event.ActualOfficeID.String(),
		"expected_office_id", expected,
	)
}

func (n *LogNotifier) Received(ctx context.Context, event ReceivedEvent) {
	n.logger.InfoContext(ctx, "transaction received",
		"transaction_id", event.TransactionID.String(),
		"reference_number", event.ReferenceNumber,
		"office_id", event.OfficeID.String(),
	)
}

func (n *LogNotifier) Completed(ctx context.Context, event CompletedEvent) {
	n.logger.InfoContext(ctx, "transaction completed",
		"transaction_id", event.TransactionID.String(),
		"reference_number", event.ReferenceNumber,
	)
}

func (n *LogNotifier) Overdue(ctx context.Context, event OverdueEvent) error {
	n.logger.WarnContext(ctx, "transaction overdue",
		"transaction_id", event.TransactionID.String(),
		"reference_number", event.ReferenceNumber,
		"delay_days", event.DelayDays,
		"severity", event.Severity,
		"recipients", len(event.Recipients),
	)
	return nil
}
