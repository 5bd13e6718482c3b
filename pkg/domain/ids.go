package domain

import (
	"strings"

	"github.com/google/uuid"

	dErrors "proctrack/pkg/domain-errors"
)

// Typed identifiers. Distinct named types keep an office id from being passed
// where a user id is expected.
type (
	UserID        uuid.UUID
	OfficeID      uuid.UUID
	WorkflowID    uuid.UUID
	StepID        uuid.UUID
	TransactionID uuid.UUID
	ActionID      uuid.UUID
)

func (id UserID) String() string        { return uuid.UUID(id).String() }
func (id OfficeID) String() string      { return uuid.UUID(id).String() }
func (id WorkflowID) String() string    { return uuid.UUID(id).String() }
func (id StepID) String() string        { return uuid.UUID(id).String() }
func (id TransactionID) String() string { return uuid.UUID(id).String() }
func (id ActionID) String() string      { return uuid.UUID(id).String() }

func (id UserID) IsNil() bool        { return uuid.UUID(id) == uuid.Nil }
func (id OfficeID) IsNil() bool      { return uuid.UUID(id) == uuid.Nil }
func (id WorkflowID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }
func (id StepID) IsNil() bool        { return uuid.UUID(id) == uuid.Nil }
func (id TransactionID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id ActionID) IsNil() bool      { return uuid.UUID(id) == uuid.Nil }

// Text marshaling renders ids as canonical uuid strings in JSON.
func (id UserID) MarshalText() ([]byte, error)        { return uuid.UUID(id).MarshalText() }
func (id OfficeID) MarshalText() ([]byte, error)      { return uuid.UUID(id).MarshalText() }
func (id WorkflowID) MarshalText() ([]byte, error)    { return uuid.UUID(id).MarshalText() }
func (id StepID) MarshalText() ([]byte, error)        { return uuid.UUID(id).MarshalText() }
func (id TransactionID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }
func (id ActionID) MarshalText() ([]byte, error)      { return uuid.UUID(id).MarshalText() }

func (id *UserID) UnmarshalText(b []byte) error        { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id *OfficeID) UnmarshalText(b []byte) error      { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id *WorkflowID) UnmarshalText(b []byte) error    { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id *StepID) UnmarshalText(b []byte) error        { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id *TransactionID) UnmarshalText(b []byte) error { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id *ActionID) UnmarshalText(b []byte) error      { return (*uuid.UUID)(id).UnmarshalText(b) }

// maxIDLength bounds input before handing it to the uuid parser.
const maxIDLength = 64

func parseUUID(kind, s string) (uuid.UUID, error) {
	if strings.TrimSpace(s) == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, kind+" is required")
	}
	if len(s) > maxIDLength {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "invalid "+kind)
	}
	parsed, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.Wrap(err, dErrors.CodeInvalidInput, "invalid "+kind)
	}
	if parsed == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, kind+" cannot be nil")
	}
	return parsed, nil
}

func ParseUserID(s string) (UserID, error) {
	u, err := parseUUID("user id", s)
	return UserID(u), err
}

func ParseOfficeID(s string) (OfficeID, error) {
	u, err := parseUUID("office id", s)
	return OfficeID(u), err
}

func ParseWorkflowID(s string) (WorkflowID, error) {
	u, err := parseUUID("workflow id", s)
	return WorkflowID(u), err
}

func ParseStepID(s string) (StepID, error) {
	u, err := parseUUID("step id", s)
	return StepID(u), err
}

func ParseTransactionID(s string) (TransactionID, error) {
	u, err := parseUUID("transaction id", s)
	return TransactionID(u), err
}

// NewTransactionID and friends generate random identifiers.
func NewTransactionID() TransactionID { return TransactionID(uuid.New()) }
func NewActionID() ActionID           { return ActionID(uuid.New()) }
func NewWorkflowID() WorkflowID       { return WorkflowID(uuid.New()) }
func NewStepID() StepID               { return StepID(uuid.New()) }
func NewOfficeID() OfficeID           { return OfficeID(uuid.New()) }
func NewUserID() UserID               { return UserID(uuid.New()) }
