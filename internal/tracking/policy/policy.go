package policy

import (
	catalogmodels "proctrack/internal/catalog/models"
	"proctrack/internal/tracking/models"
	id "proctrack/pkg/domain"
)

// closed refuses every transition on terminal or paused documents.
func closed(txn *models.Transaction) (Decision, bool) {
	switch {
	case txn.Status.IsTerminal():
		return invalid(ReasonTerminal, "transaction is "+txn.Status.String()), true
	case txn.Status == models.StatusOnHold:
		return invalid(ReasonOnHold, "transaction is on hold"), true
	}
	return Decision{}, false
}

// CanEndorse: the document is Created or In Progress, the actor holds it, and
// it is not at the final step of its workflow, where the holder completes it
// instead.
func CanEndorse(txn *models.Transaction, actor id.Actor, wf *catalogmodels.Workflow) Decision {
	if d, ok := closed(txn); ok {
		return d
	}
	if txn.Status != models.StatusCreated && txn.Status != models.StatusInProgress {
		return invalid(ReasonNotInProgress, "transaction cannot be endorsed in status "+txn.Status.String())
	}
	if txn.ReceivedAt == nil {
		return invalid(ReasonAwaitingReceipt, "transaction must be received before it can be endorsed")
	}
	if !txn.HeldBy(actor) {
		return deny(ReasonNotHolder, "only the current holder can endorse this transaction")
	}
	if wf != nil && txn.CurrentStepID != nil && wf.IsFinal(*txn.CurrentStepID) {
		return invalid(ReasonFinalStep, "transaction is at its final step; complete it instead")
	}
	return allow()
}

// CanReceive: the document is In Progress, awaiting receipt, at the actor's
// office. A second receipt is reported as already received whoever asks.
func CanReceive(txn *models.Transaction, actor id.Actor) Decision {
	if d, ok := closed(txn); ok {
		return d
	}
	if txn.Status != models.StatusInProgress {
		return invalid(ReasonNotInProgress, "transaction has not been endorsed yet")
	}
	if txn.ReceivedAt != nil {
		return invalid(ReasonAlreadyReceived, "transaction was already received")
	}
	if !txn.IsAt(actor.OfficeID) {
		return deny(ReasonWrongOffice, "transaction was not endorsed to your office")
	}
	return allow()
}

// CanComplete: the actor holds the document at the final step of its workflow.
func CanComplete(txn *models.Transaction, actor id.Actor, wf *catalogmodels.Workflow) Decision {
	if d, ok := closed(txn); ok {
		return d
	}
	if txn.ReceivedAt == nil {
		return invalid(ReasonAwaitingReceipt, "transaction must be received before it can be completed")
	}
	if !txn.HeldBy(actor) {
		return deny(ReasonNotHolder, "only the current holder can complete this transaction")
	}
	if wf == nil {
		return invalid(ReasonNoWorkflow, "transaction has no workflow")
	}
	if txn.CurrentStepID == nil || !wf.IsFinal(*txn.CurrentStepID) {
		return invalid(ReasonNotFinalStep, "transaction is not at the final step of its workflow")
	}
	return allow()
}

// CanHold: the holder or an administrator pauses an In Progress document.
func CanHold(txn *models.Transaction, actor id.Actor) Decision {
	if d, ok := closed(txn); ok {
		return d
	}
	if txn.Status != models.StatusInProgress {
		return invalid(ReasonNotInProgress, "only in progress transactions can be put on hold")
	}
	if !actor.IsAdmin() && !txn.HeldBy(actor) {
		return deny(ReasonNotHolder, "only the current holder or an administrator can put this transaction on hold")
	}
	return allow()
}

// CanResume: anyone at the current office, or an administrator, resumes a
// paused document.
func CanResume(txn *models.Transaction, actor id.Actor) Decision {
	if txn.Status.IsTerminal() {
		return invalid(ReasonTerminal, "transaction is "+txn.Status.String())
	}
	if txn.Status != models.StatusOnHold {
		return invalid(ReasonNotOnHold, "transaction is not on hold")
	}
	if !actor.IsAdmin() && !txn.HeldBy(actor) && !txn.IsAt(actor.OfficeID) {
		return deny(ReasonWrongOffice, "only the holding office or an administrator can resume this transaction")
	}
	return allow()
}

// CanCancel: the creator or an administrator cancels a non-terminal document.
func CanCancel(txn *models.Transaction, actor id.Actor) Decision {
	if txn.Status.IsTerminal() {
		return invalid(ReasonTerminal, "transaction is "+txn.Status.String())
	}
	if !actor.IsAdmin() && txn.CreatedByUserID != actor.UserID {
		return deny(ReasonNotCreator, "only the creator or an administrator can cancel this transaction")
	}
	return allow()
}
