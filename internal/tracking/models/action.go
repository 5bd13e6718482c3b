package models

import (
	"time"

	id "proctrack/pkg/domain"
)

// Action is an append-only ledger entry. Actions are never updated or
// deleted; the ledger is the timeline of the document.
type Action struct {
	ID            id.ActionID      `json:"id"`
	TransactionID id.TransactionID `json:"transaction_id"`
	Type          ActionType       `json:"action_type"`
	FromOfficeID  *id.OfficeID     `json:"from_office_id,omitempty"`
	ToOfficeID    *id.OfficeID     `json:"to_office_id,omitempty"`
	ActorUserID   id.UserID        `json:"actor_user_id"`
	Remarks       string           `json:"remarks,omitempty"`
	CreatedAt     time.Time        `json:"created_at"`
}

// NewAction builds a ledger entry for txn with its current office as origin.
func NewAction(txn *Transaction, actionType ActionType, actor id.UserID, to *id.OfficeID, remarks string, now time.Time) *Action {
	return &Action{
		ID:            id.NewActionID(),
		TransactionID: txn.ID,
		Type:          actionType,
		FromOfficeID:  clonePtr(txn.CurrentOfficeID),
		ToOfficeID:    clonePtr(to),
		ActorUserID:   actor,
		Remarks:       remarks,
		CreatedAt:     now,
	}
}
