package models

import (
	"time"

	id "proctrack/pkg/domain"
	dErrors "proctrack/pkg/domain-errors"
)

// Transaction is a procurement document moving between offices.
//
// Invariants:
//   - ReferenceNumber is unique and never changes
//   - CurrentStepID is only set together with WorkflowID
//   - CurrentOfficeID and CurrentStepID are independent: a document may sit at
//     an office no step of its workflow names (see Location)
//   - ReceivedAt is nil while the document is awaiting receipt
//   - CurrentUserID is nil until someone at the current office receives it
type Transaction struct {
	ID                    id.TransactionID `json:"id"`
	Category              id.Category      `json:"category"`
	ReferenceNumber       string           `json:"reference_number"`
	FundType              string           `json:"fund_type,omitempty"`
	WorkflowID            *id.WorkflowID   `json:"workflow_id,omitempty"`
	CurrentStepID         *id.StepID       `json:"current_step_id,omitempty"`
	CurrentOfficeID       *id.OfficeID     `json:"current_office_id,omitempty"`
	CurrentUserID         *id.UserID       `json:"current_user_id,omitempty"`
	Status                Status           `json:"status"`
	ReceivedAt            *time.Time       `json:"received_at,omitempty"`
	CreatedByUserID       id.UserID        `json:"created_by_user_id"`
	CreatedByOfficeID     *id.OfficeID     `json:"created_by_office_id,omitempty"`
	RequestingOfficeID    *id.OfficeID     `json:"requesting_office_id,omitempty"`
	IsLegacy              bool             `json:"is_legacy"`
	Remarks               string           `json:"remarks,omitempty"`
	CreatedAt             time.Time        `json:"created_at"`
	UpdatedAt             time.Time        `json:"updated_at"`
	LastOverdueNotifiedAt *time.Time       `json:"last_overdue_notified_at,omitempty"`
}

// NewTransaction builds an unassigned transaction in the Created state. The
// reference number is attached once the workflow is known.
func NewTransaction(txnID id.TransactionID, category id.Category, fundType string, creator id.Actor, requestingOffice *id.OfficeID, now time.Time) (*Transaction, error) {
	if !category.IsValid() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "transaction category is invalid")
	}
	if creator.UserID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "creator is required")
	}
	t := &Transaction{
		ID:                 txnID,
		Category:           category,
		FundType:           fundType,
		Status:             StatusCreated,
		CreatedByUserID:    creator.UserID,
		RequestingOfficeID: requestingOffice,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if !creator.OfficeID.IsNil() {
		office := creator.OfficeID
		t.CreatedByOfficeID = &office
	}
	return t, nil
}

// AttachReferenceNumber sets the reference number. It is set exactly once.
func (t *Transaction) AttachReferenceNumber(ref string) error {
	if ref == "" {
		return dErrors.New(dErrors.CodeInvariantViolation, "reference number is required")
	}
	if t.ReferenceNumber != "" {
		return dErrors.New(dErrors.CodeInvariantViolation, "reference number is already set")
	}
	t.ReferenceNumber = ref
	return nil
}

// HeldBy reports whether actor currently holds the document: the recorded
// holder, or anyone at the current office when the document was received
// without a recorded holder.
func (t *Transaction) HeldBy(actor id.Actor) bool {
	if t.ReceivedAt == nil {
		return false
	}
	if t.CurrentUserID != nil {
		return *t.CurrentUserID == actor.UserID
	}
	return t.CurrentOfficeID != nil && *t.CurrentOfficeID == actor.OfficeID
}

// IsAt reports whether the document is physically at officeID.
func (t *Transaction) IsAt(officeID id.OfficeID) bool {
	return t.CurrentOfficeID != nil && *t.CurrentOfficeID == officeID
}

// ApplyAssignment binds the document to a workflow step at an office.
// holder may be nil for backfilled documents.
func (t *Transaction) ApplyAssignment(workflowID id.WorkflowID, stepID *id.StepID, officeID id.OfficeID, holder *id.UserID, receivedAt *time.Time, now time.Time) {
	t.WorkflowID = &workflowID
	t.CurrentStepID = stepID
	t.CurrentOfficeID = &officeID
	t.CurrentUserID = holder
	t.ReceivedAt = receivedAt
	t.UpdatedAt = now
}

// LocateAt records where a document physically is without touching its
// workflow binding. Used when repairing legacy records.
func (t *Transaction) LocateAt(officeID id.OfficeID, now time.Time) {
	t.CurrentOfficeID = &officeID
	t.UpdatedAt = now
}

// ApplyEndorsement hands the document to toOffice. Nobody holds it until it
// is received there.
func (t *Transaction) ApplyEndorsement(toOffice id.OfficeID, now time.Time) {
	if t.Status == StatusCreated {
		t.Status = StatusInProgress
	}
	t.CurrentOfficeID = &toOffice
	t.CurrentUserID = nil
	t.ReceivedAt = nil
	t.UpdatedAt = now
}

// ApplyReceipt records that actor took the document at the current office.
// stepID is the step the office corresponds to, or nil when out of workflow.
func (t *Transaction) ApplyReceipt(actor id.UserID, stepID *id.StepID, now time.Time) {
	t.CurrentUserID = &actor
	t.CurrentStepID = stepID
	received := now
	t.ReceivedAt = &received
	t.UpdatedAt = now
}

func (t *Transaction) ApplyCompletion(now time.Time) {
	t.Status = StatusCompleted
	t.UpdatedAt = now
}

func (t *Transaction) ApplyHold(now time.Time) {
	t.Status = StatusOnHold
	t.UpdatedAt = now
}

func (t *Transaction) ApplyResume(now time.Time) {
	t.Status = StatusInProgress
	t.UpdatedAt = now
}

func (t *Transaction) ApplyCancellation(now time.Time) {
	t.Status = StatusCancelled
	t.UpdatedAt = now
}

// StampOverdueNotified records when holders were last told the document is late.
func (t *Transaction) StampOverdueNotified(now time.Time) {
	stamped := now
	t.LastOverdueNotifiedAt = &stamped
}

// Clone returns a deep copy safe to hand across store boundaries.
func (t *Transaction) Clone() *Transaction {
	c := *t
	c.WorkflowID = clonePtr(t.WorkflowID)
	c.CurrentStepID = clonePtr(t.CurrentStepID)
	c.CurrentOfficeID = clonePtr(t.CurrentOfficeID)
	c.CurrentUserID = clonePtr(t.CurrentUserID)
	c.ReceivedAt = clonePtr(t.ReceivedAt)
	c.CreatedByOfficeID = clonePtr(t.CreatedByOfficeID)
	c.RequestingOfficeID = clonePtr(t.RequestingOfficeID)
	c.LastOverdueNotifiedAt = clonePtr(t.LastOverdueNotifiedAt)
	return &c
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
