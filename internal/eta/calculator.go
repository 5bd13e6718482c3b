// Package eta derives delay, projected dates and severity from a
// transaction's position on its workflow, and sweeps for overdue documents.
package eta

import (
	"time"

	"proctrack/internal/calendar"
	catalogmodels "proctrack/internal/catalog/models"
	"proctrack/internal/tracking/models"
)

// DefaultIdleThresholdDays is the grace period before a step counts as stagnant.
const DefaultIdleThresholdDays = 2

// Calculator computes business-day delays. Estimates are derived on read and
// never persisted.
type Calculator struct {
	calendar *calendar.Calendar
	idle     int
}

func NewCalculator(cal *calendar.Calendar, idleThresholdDays int) *Calculator {
	if cal == nil {
		cal = calendar.New(time.UTC)
	}
	if idleThresholdDays < 0 {
		idleThresholdDays = 0
	}
	return &Calculator{calendar: cal, idle: idleThresholdDays}
}

// Anchor is the moment the document entered its current step: when it was
// received there, else when it was last moved, else when it was created.
func (c *Calculator) Anchor(txn *models.Transaction) time.Time {
	switch {
	case txn.ReceivedAt != nil:
		return *txn.ReceivedAt
	case !txn.UpdatedAt.IsZero():
		return txn.UpdatedAt
	default:
		return txn.CreatedAt
	}
}

// ElapsedDays counts business days spent at the current step.
func (c *Calculator) ElapsedDays(txn *models.Transaction, now time.Time) int {
	return c.calendar.BusinessDaysBetween(c.Anchor(txn), now)
}

// DelayDays is how far past expected days plus the idle threshold the
// document is at step. Only moving documents accrue delay.
func (c *Calculator) DelayDays(txn *models.Transaction, step *catalogmodels.Step, now time.Time) int {
	if step == nil || !accruesDelay(txn.Status) {
		return 0
	}
	delay := c.ElapsedDays(txn, now) - step.ExpectedDays - c.idle
	if delay < 0 {
		return 0
	}
	return delay
}

// StepETA is when the current step is due: the anchor plus the step's
// expected business days.
func (c *Calculator) StepETA(txn *models.Transaction, step *catalogmodels.Step) *time.Time {
	if step == nil || !accruesDelay(txn.Status) {
		return nil
	}
	due := c.calendar.AddBusinessDays(c.Anchor(txn), step.ExpectedDays)
	return &due
}

// StepProjection is the estimated due date of one step.
type StepProjection struct {
	StepID    string    `json:"step_id"`
	StepOrder int       `json:"step_order"`
	OfficeID  string    `json:"office_id"`
	DueAt     time.Time `json:"due_at"`
}

// Projection estimates due dates from the current step to the final one,
// each step seeded from the previous step's estimate.
func (c *Calculator) Projection(txn *models.Transaction, wf *catalogmodels.Workflow) []StepProjection {
	if wf == nil || txn.CurrentStepID == nil {
		return nil
	}
	current := wf.StepByID(*txn.CurrentStepID)
	due := c.StepETA(txn, current)
	if due == nil {
		return nil
	}
	steps := wf.StepsFrom(current.ID)
	out := make([]StepProjection, 0, len(steps))
	at := *due
	for i, step := range steps {
		if i > 0 {
			at = c.calendar.AddBusinessDays(at, step.ExpectedDays)
		}
		out = append(out, StepProjection{
			StepID:    step.ID.String(),
			StepOrder: step.StepOrder,
			OfficeID:  step.OfficeID.String(),
			DueAt:     at,
		})
	}
	return out
}

// CompletionETA is the projected due date of the final step.
func (c *Calculator) CompletionETA(txn *models.Transaction, wf *catalogmodels.Workflow) *time.Time {
	projection := c.Projection(txn, wf)
	if len(projection) == 0 {
		return nil
	}
	last := projection[len(projection)-1].DueAt
	return &last
}

// Summary is everything a reader needs to judge a document's timeliness.
type Summary struct {
	ElapsedDays   int              `json:"elapsed_days"`
	DelayDays     int              `json:"delay_days"`
	Severity      Severity         `json:"severity"`
	StepETA       *time.Time       `json:"step_eta,omitempty"`
	CompletionETA *time.Time       `json:"completion_eta,omitempty"`
	Projection    []StepProjection `json:"projection,omitempty"`
}

// Summarize computes the delay picture of txn at now.
func (c *Calculator) Summarize(txn *models.Transaction, wf *catalogmodels.Workflow, severity SeverityPolicy, now time.Time) Summary {
	var step *catalogmodels.Step
	if wf != nil && txn.CurrentStepID != nil {
		step = wf.StepByID(*txn.CurrentStepID)
	}
	delay := c.DelayDays(txn, step, now)
	projection := c.Projection(txn, wf)
	s := Summary{
		DelayDays:  delay,
		Severity:   severity.Classify(delay),
		StepETA:    c.StepETA(txn, step),
		Projection: projection,
	}
	if accruesDelay(txn.Status) {
		s.ElapsedDays = c.ElapsedDays(txn, now)
	}
	if n := len(projection); n > 0 {
		last := projection[n-1].DueAt
		s.CompletionETA = &last
	}
	return s
}

func accruesDelay(status models.Status) bool {
	return status == models.StatusCreated || status == models.StatusInProgress
}
