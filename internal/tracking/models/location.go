package models

import id "proctrack/pkg/domain"

// LocationKind tags where a document sits relative to its workflow.
type LocationKind int

const (
	// Unassigned: no office is recorded (fresh or legacy rows).
	Unassigned LocationKind = iota
	// Located: at an office, but no step of the workflow matches. This is the
	// out-of-workflow state.
	Located
	// OnStep: at an office on a known workflow step.
	OnStep
)

func (k LocationKind) String() string {
	switch k {
	case Located:
		return "located"
	case OnStep:
		return "on_step"
	default:
		return "unassigned"
	}
}

// Location is the explicit form of the nullable office and step columns.
type Location struct {
	Kind     LocationKind
	OfficeID id.OfficeID
	StepID   id.StepID
}

// OutOfWorkflow reports whether the document is at an office its workflow
// does not expect.
func (l Location) OutOfWorkflow() bool {
	return l.Kind == Located
}

func (t *Transaction) Location() Location {
	if t.CurrentOfficeID == nil {
		return Location{Kind: Unassigned}
	}
	if t.CurrentStepID == nil {
		return Location{Kind: Located, OfficeID: *t.CurrentOfficeID}
	}
	return Location{Kind: OnStep, OfficeID: *t.CurrentOfficeID, StepID: *t.CurrentStepID}
}

// Stage is the per-step micro-state.
type Stage string

const (
	StageAwaitingReceipt Stage = "awaiting_receipt"
	StageHeld            Stage = "held"
	StageClosed          Stage = "closed"
)

func (t *Transaction) Stage() Stage {
	if t.Status.IsTerminal() {
		return StageClosed
	}
	if t.ReceivedAt == nil {
		return StageAwaitingReceipt
	}
	return StageHeld
}
