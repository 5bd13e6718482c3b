// Package policy holds the authorization predicates and routing rules of the
// endorsement engine. Everything here is a pure function of the transaction,
// the actor and the workflow; nothing reads or writes storage.
package policy

import (
	dErrors "proctrack/pkg/domain-errors"
)

// Reason explains a refusal so the caller can pick a remedy: contact an
// administrator, wait for the document, or refresh a stale view.
type Reason string

const (
	ReasonTerminal        Reason = "terminal"
	ReasonOnHold          Reason = "on_hold"
	ReasonNotInProgress   Reason = "not_in_progress"
	ReasonNotOnHold       Reason = "not_on_hold"
	ReasonAwaitingReceipt Reason = "awaiting_receipt"
	ReasonAlreadyReceived Reason = "already_received"
	ReasonNotHolder       Reason = "not_holder"
	ReasonWrongOffice     Reason = "wrong_office"
	ReasonFinalStep       Reason = "final_step"
	ReasonNotFinalStep    Reason = "not_final_step"
	ReasonNotCreator      Reason = "not_creator"
	ReasonNoWorkflow      Reason = "no_workflow"
)

// Outcome tags a decision.
type Outcome int

const (
	Allowed Outcome = iota
	// Denied: the actor lacks standing for the transition.
	Denied
	// Invalid: the transition does not apply to the current state.
	Invalid
)

// Decision is the result of a predicate.
type Decision struct {
	Outcome Outcome
	Reason  Reason
	Message string
}

func allow() Decision {
	return Decision{Outcome: Allowed}
}

func deny(reason Reason, msg string) Decision {
	return Decision{Outcome: Denied, Reason: reason, Message: msg}
}

func invalid(reason Reason, msg string) Decision {
	return Decision{Outcome: Invalid, Reason: reason, Message: msg}
}

func (d Decision) Allowed() bool {
	return d.Outcome == Allowed
}

// Err converts a refusal into a coded error, nil when allowed.
func (d Decision) Err() error {
	switch d.Outcome {
	case Denied:
		return dErrors.NewWithReason(dErrors.CodeForbidden, string(d.Reason), d.Message)
	case Invalid:
		return dErrors.NewWithReason(dErrors.CodeInvalidTransition, string(d.Reason), d.Message)
	default:
		return nil
	}
}
