// Package notify carries engine events to the notification dispatcher.
//
// Delivery is fire-and-forget and at-least-once: publish failures are logged
// and never returned to the engine, and duplicates are acceptable. The
// overdue stamp on a transaction is the only de-duplication mechanism.
package notify

import (
	"time"

	id "proctrack/pkg/domain"
)

// EventType names an event on the wire.
type EventType string

const (
	EventOutOfWorkflow EventType = "transaction.out_of_workflow"
	EventReceived      EventType = "transaction.received"
	EventCompleted     EventType = "transaction.completed"
	EventOverdue       EventType = "transaction.overdue"
)

// OutOfWorkflowEvent reports an endorsement that left the workflow route.
// ExpectedOfficeID is nil when no single office was expected.
type OutOfWorkflowEvent struct {
	TransactionID    id.TransactionID `json:"transaction_id"`
	ReferenceNumber  string           `json:"reference_number"`
	ActionID         id.ActionID      `json:"action_id"`
	ActorUserID      id.UserID        `json:"actor_user_id"`
	FromOfficeID     *id.OfficeID     `json:"from_office_id,omitempty"`
	ActualOfficeID   id.OfficeID      `json:"actual_office_id"`
	ExpectedOfficeID *id.OfficeID     `json:"expected_office_id,omitempty"`
	OccurredAt       time.Time        `json:"occurred_at"`
}

// ReceivedEvent tells the creator where the document was picked up.
type ReceivedEvent struct {
	TransactionID   id.TransactionID `json:"transaction_id"`
	ReferenceNumber string           `json:"reference_number"`
	ActionID        id.ActionID      `json:"action_id"`
	ReceiverUserID  id.UserID        `json:"receiver_user_id"`
	OfficeID        id.OfficeID      `json:"office_id"`
	CreatorUserID   id.UserID        `json:"creator_user_id"`
	OccurredAt      time.Time        `json:"occurred_at"`
}

// CompletedEvent tells the creator the document finished its route.
type CompletedEvent struct {
	TransactionID     id.TransactionID `json:"transaction_id"`
	ReferenceNumber   string           `json:"reference_number"`
	CompletedByUserID id.UserID        `json:"completed_by_user_id"`
	CreatorUserID     id.UserID        `json:"creator_user_id"`
	OccurredAt        time.Time        `json:"occurred_at"`
}

// OverdueEvent lists who must hear that a document is late.
type OverdueEvent struct {
	TransactionID   id.TransactionID `json:"transaction_id"`
	ReferenceNumber string           `json:"reference_number"`
	OfficeID        *id.OfficeID     `json:"office_id,omitempty"`
	StepID          *id.StepID       `json:"step_id,omitempty"`
	DelayDays       int              `json:"delay_days"`
	Severity        string           `json:"severity"`
	Recipients      []id.UserID      `json:"recipients"`
	OccurredAt      time.Time        `json:"occurred_at"`
}

// Envelope is the JSON document published for every event.
type Envelope struct {
	Type          EventType        `json:"type"`
	TransactionID id.TransactionID `json:"transaction_id"`
	OccurredAt    time.Time        `json:"occurred_at"`
	Payload       any              `json:"payload"`
}
