package policy

import (
	catalogmodels "proctrack/internal/catalog/models"
	"proctrack/internal/tracking/models"
	id "proctrack/pkg/domain"
)

// Deviation describes an endorsement that left the workflow's route.
// Expected is nil when the route gives no single expected office, which is
// the case for a document that is already off its workflow.
type Deviation struct {
	Actual   id.OfficeID
	Expected *id.OfficeID
}

// CheckRoute compares an endorsement destination with the workflow route.
//
// On a known step the expected office is the one bound to the successor
// step. A document without a current step has no successor; sending it to
// any office of the workflow brings it back on route and is not a deviation,
// while sending it anywhere else is reported with an unknown expected office.
func CheckRoute(txn *models.Transaction, wf *catalogmodels.Workflow, to id.OfficeID) *Deviation {
	if wf == nil {
		return nil
	}
	if txn.CurrentStepID != nil && wf.StepByID(*txn.CurrentStepID) != nil {
		next := wf.NextStep(*txn.CurrentStepID)
		if next == nil {
			return &Deviation{Actual: to}
		}
		if next.OfficeID == to {
			return nil
		}
		expected := next.OfficeID
		return &Deviation{Actual: to, Expected: &expected}
	}
	if wf.HasOffice(to) {
		return nil
	}
	return &Deviation{Actual: to}
}

// StepOnReceipt picks the step a document enters when received at office:
// the successor of the current step if that office matches, else the
// lowest-order step bound to office, else none (out of workflow).
func StepOnReceipt(txn *models.Transaction, wf *catalogmodels.Workflow, office id.OfficeID) *catalogmodels.Step {
	if wf == nil {
		return nil
	}
	if txn.CurrentStepID != nil {
		if next := wf.NextStep(*txn.CurrentStepID); next != nil && next.OfficeID == office {
			return next
		}
	}
	return wf.StepForOffice(office)
}
