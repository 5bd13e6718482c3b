package models

import (
	"fmt"
	"slices"
	"strings"
	"time"

	id "proctrack/pkg/domain"
	dErrors "proctrack/pkg/domain-errors"
)

// Office is an organizational unit that holds and forwards documents.
type Office struct {
	ID           id.OfficeID `json:"id"`
	Name         string      `json:"name"`
	Abbreviation string      `json:"abbreviation"`
}

// Step is one position in a workflow. Steps are immutable once their
// workflow is saved.
type Step struct {
	ID           id.StepID     `json:"id"`
	WorkflowID   id.WorkflowID `json:"workflow_id"`
	StepOrder    int           `json:"step_order"`
	OfficeID     id.OfficeID   `json:"office_id"`
	ExpectedDays int           `json:"expected_days"`
	Name         string        `json:"name,omitempty"`
}

// Workflow is the ordered route a document of one category is expected to
// follow.
//
// Invariants:
//   - Steps are sorted by StepOrder, which runs 1..N without gaps
//   - Every step names exactly one office and a positive ExpectedDays
//   - An office may appear at more than one step
type Workflow struct {
	ID        id.WorkflowID `json:"id"`
	Category  id.Category   `json:"category"`
	Name      string        `json:"name"`
	Active    bool          `json:"active"`
	Steps     []Step        `json:"steps"`
	CreatedAt time.Time     `json:"created_at"`
}

// StepSpec describes a step before it has an identity.
type StepSpec struct {
	OfficeID     id.OfficeID
	ExpectedDays int
	Name         string
}

// NewWorkflow builds a workflow from steps given in route order.
func NewWorkflow(workflowID id.WorkflowID, category id.Category, name string, active bool, specs []StepSpec, now time.Time) (*Workflow, error) {
	if !category.IsValid() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "workflow category is invalid")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "workflow name cannot be empty")
	}
	steps := make([]Step, 0, len(specs))
	for i, spec := range specs {
		steps = append(steps, Step{
			ID:           id.NewStepID(),
			WorkflowID:   workflowID,
			StepOrder:    i + 1,
			OfficeID:     spec.OfficeID,
			ExpectedDays: spec.ExpectedDays,
			Name:         strings.TrimSpace(spec.Name),
		})
	}
	wf := &Workflow{
		ID:        workflowID,
		Category:  category,
		Name:      name,
		Active:    active,
		Steps:     steps,
		CreatedAt: now,
	}
	if err := wf.Validate(); err != nil {
		return nil, err
	}
	return wf, nil
}

// Validate checks the step invariants. Stores call it on load so a
// hand-edited workflow is reported instead of silently misrouting documents.
func (w *Workflow) Validate() error {
	if len(w.Steps) == 0 {
		return dErrors.New(dErrors.CodeInvariantViolation, "workflow must have at least one step")
	}
	for i, step := range w.Steps {
		if step.StepOrder != i+1 {
			return dErrors.New(dErrors.CodeInvariantViolation,
				fmt.Sprintf("step orders must run 1..%d without gaps, found %d at position %d", len(w.Steps), step.StepOrder, i+1))
		}
		if step.OfficeID.IsNil() {
			return dErrors.New(dErrors.CodeInvariantViolation, fmt.Sprintf("step %d has no office", step.StepOrder))
		}
		if step.ExpectedDays <= 0 {
			return dErrors.New(dErrors.CodeInvariantViolation, fmt.Sprintf("step %d must expect at least one day", step.StepOrder))
		}
		if step.WorkflowID != w.ID {
			return dErrors.New(dErrors.CodeInvariantViolation, fmt.Sprintf("step %d belongs to another workflow", step.StepOrder))
		}
	}
	return nil
}

// SortSteps orders steps by StepOrder. Used by stores after loading rows.
func (w *Workflow) SortSteps() {
	slices.SortFunc(w.Steps, func(a, b Step) int { return a.StepOrder - b.StepOrder })
}

func (w *Workflow) FirstStep() *Step {
	if len(w.Steps) == 0 {
		return nil
	}
	return &w.Steps[0]
}

func (w *Workflow) FinalStep() *Step {
	if len(w.Steps) == 0 {
		return nil
	}
	return &w.Steps[len(w.Steps)-1]
}

func (w *Workflow) StepByID(stepID id.StepID) *Step {
	for i := range w.Steps {
		if w.Steps[i].ID == stepID {
			return &w.Steps[i]
		}
	}
	return nil
}

// NextStep returns the successor of stepID, or nil at the final step or
// when stepID is not part of the workflow.
func (w *Workflow) NextStep(stepID id.StepID) *Step {
	for i := range w.Steps {
		if w.Steps[i].ID == stepID {
			if i+1 < len(w.Steps) {
				return &w.Steps[i+1]
			}
			return nil
		}
	}
	return nil
}

// StepForOffice returns the lowest-order step bound to officeID.
func (w *Workflow) StepForOffice(officeID id.OfficeID) *Step {
	for i := range w.Steps {
		if w.Steps[i].OfficeID == officeID {
			return &w.Steps[i]
		}
	}
	return nil
}

func (w *Workflow) IsFinal(stepID id.StepID) bool {
	final := w.FinalStep()
	return final != nil && final.ID == stepID
}

// StepsFrom returns stepID and every step after it, in order.
func (w *Workflow) StepsFrom(stepID id.StepID) []Step {
	for i := range w.Steps {
		if w.Steps[i].ID == stepID {
			return w.Steps[i:]
		}
	}
	return nil
}

func (w *Workflow) HasOffice(officeID id.OfficeID) bool {
	return w.StepForOffice(officeID) != nil
}
