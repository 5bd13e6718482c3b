package models

import (
	"strings"

	dErrors "proctrack/pkg/domain-errors"
)

// Status is the lifecycle state of a transaction.
//
// Transitions:
//
//	Created ──endorse──▶ In Progress ──complete──▶ Completed
//	                     In Progress ◀──resume── On Hold ◀──hold── In Progress
//	any non-terminal ──cancel──▶ Cancelled
type Status string

const (
	StatusCreated    Status = "Created"
	StatusInProgress Status = "In Progress"
	StatusCompleted  Status = "Completed"
	StatusOnHold     Status = "On Hold"
	StatusCancelled  Status = "Cancelled"
)

func (s Status) IsValid() bool {
	switch s {
	case StatusCreated, StatusInProgress, StatusCompleted, StatusOnHold, StatusCancelled:
		return true
	}
	return false
}

// IsTerminal reports whether no further transition is possible.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

func (s Status) String() string {
	return string(s)
}

// ParseStatus accepts the stored form and a snake_case form used in filters.
func ParseStatus(s string) (Status, error) {
	normalized := strings.ToLower(strings.TrimSpace(s))
	switch normalized {
	case "created":
		return StatusCreated, nil
	case "in progress", "in_progress":
		return StatusInProgress, nil
	case "completed":
		return StatusCompleted, nil
	case "on hold", "on_hold":
		return StatusOnHold, nil
	case "cancelled":
		return StatusCancelled, nil
	}
	return "", dErrors.New(dErrors.CodeInvalidInput, "invalid status")
}

// ActionType names a ledger entry.
type ActionType string

const (
	ActionEndorse  ActionType = "endorse"
	ActionReceive  ActionType = "receive"
	ActionComplete ActionType = "complete"
)

func (a ActionType) IsValid() bool {
	return a == ActionEndorse || a == ActionReceive || a == ActionComplete
}
