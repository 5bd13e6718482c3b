package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "proctrack/pkg/domain"
	dErrors "proctrack/pkg/domain-errors"
)

var now = time.Date(2025, time.March, 3, 9, 0, 0, 0, time.UTC)

func newTxn(t *testing.T) (*Transaction, id.Actor) {
	t.Helper()
	creator := id.Actor{UserID: id.NewUserID(), OfficeID: id.NewOfficeID()}
	txn, err := NewTransaction(id.NewTransactionID(), id.CategoryPurchaseOrder, "", creator, nil, now)
	require.NoError(t, err)
	require.NoError(t, txn.AttachReferenceNumber("PO-2025-000001"))
	return txn, creator
}

func TestNewTransaction(t *testing.T) {
	txn, creator := newTxn(t)
	assert.Equal(t, StatusCreated, txn.Status)
	assert.Equal(t, creator.UserID, txn.CreatedByUserID)
	require.NotNil(t, txn.CreatedByOfficeID)
	assert.Equal(t, creator.OfficeID, *txn.CreatedByOfficeID)
	assert.Equal(t, Unassigned, txn.Location().Kind)

	assert.True(t, dErrors.HasCode(txn.AttachReferenceNumber("PO-2025-000002"), dErrors.CodeInvariantViolation), "set once")

	_, err := NewTransaction(id.NewTransactionID(), id.Category("XX"), "", creator, nil, now)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvariantViolation))

	_, err = NewTransaction(id.NewTransactionID(), id.CategoryVoucher, "", id.Actor{}, nil, now)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvariantViolation))

	fresh, err := NewTransaction(id.NewTransactionID(), id.CategoryVoucher, "", creator, nil, now)
	require.NoError(t, err)
	assert.True(t, dErrors.HasCode(fresh.AttachReferenceNumber(""), dErrors.CodeInvariantViolation))
}

func TestLocation(t *testing.T) {
	txn, creator := newTxn(t)
	step := id.NewStepID()

	txn.ApplyAssignment(id.NewWorkflowID(), &step, creator.OfficeID, &creator.UserID, &now, now)
	loc := txn.Location()
	assert.Equal(t, OnStep, loc.Kind)
	assert.Equal(t, step, loc.StepID)
	assert.False(t, loc.OutOfWorkflow())

	txn.CurrentStepID = nil
	loc = txn.Location()
	assert.Equal(t, Located, loc.Kind)
	assert.Equal(t, creator.OfficeID, loc.OfficeID)
	assert.True(t, loc.OutOfWorkflow())
}

func TestEndorseReceiveCycle(t *testing.T) {
	txn, creator := newTxn(t)
	step := id.NewStepID()
	txn.ApplyAssignment(id.NewWorkflowID(), &step, creator.OfficeID, &creator.UserID, &now, now)
	assert.Equal(t, StageHeld, txn.Stage())
	assert.True(t, txn.HeldBy(creator))

	budget := id.NewOfficeID()
	later := now.Add(time.Hour)
	txn.ApplyEndorsement(budget, later)
	assert.Equal(t, StatusInProgress, txn.Status)
	assert.Equal(t, StageAwaitingReceipt, txn.Stage())
	assert.Nil(t, txn.CurrentUserID)
	assert.Nil(t, txn.ReceivedAt)
	assert.True(t, txn.IsAt(budget))
	assert.False(t, txn.HeldBy(creator))

	receiver := id.NewUserID()
	nextStep := id.NewStepID()
	txn.ApplyReceipt(receiver, &nextStep, later)
	assert.Equal(t, StageHeld, txn.Stage())
	assert.True(t, txn.HeldBy(id.Actor{UserID: receiver, OfficeID: budget}))
	assert.False(t, txn.HeldBy(id.Actor{UserID: id.NewUserID(), OfficeID: budget}), "recorded holder wins over office")

	txn.ApplyCompletion(later)
	assert.Equal(t, StageClosed, txn.Stage())
}

func TestHeldByOfficeWhenNoHolderRecorded(t *testing.T) {
	txn, _ := newTxn(t)
	office := id.NewOfficeID()
	txn.ApplyAssignment(id.NewWorkflowID(), nil, office, nil, &now, now)

	assert.True(t, txn.HeldBy(id.Actor{UserID: id.NewUserID(), OfficeID: office}))
	assert.False(t, txn.HeldBy(id.Actor{UserID: id.NewUserID(), OfficeID: id.NewOfficeID()}))
}

func TestCloneIsDeep(t *testing.T) {
	txn, creator := newTxn(t)
	step := id.NewStepID()
	txn.ApplyAssignment(id.NewWorkflowID(), &step, creator.OfficeID, &creator.UserID, &now, now)

	c := txn.Clone()
	*c.CurrentOfficeID = id.NewOfficeID()
	*c.ReceivedAt = now.Add(time.Hour)

	assert.Equal(t, creator.OfficeID, *txn.CurrentOfficeID)
	assert.Equal(t, now, *txn.ReceivedAt)
}

func TestParseStatus(t *testing.T) {
	for input, want := range map[string]Status{
		"In Progress": StatusInProgress,
		"in_progress": StatusInProgress,
		"on hold":     StatusOnHold,
		"Cancelled":   StatusCancelled,
	} {
		got, err := ParseStatus(input)
		require.NoError(t, err, input)
		assert.Equal(t, want, got)
	}
	_, err := ParseStatus("archived")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	assert.True(t, StatusCompleted.IsTerminal())
	assert.False(t, StatusOnHold.IsTerminal())
}

func TestNewActionCopiesOrigin(t *testing.T) {
	txn, creator := newTxn(t)
	txn.ApplyAssignment(id.NewWorkflowID(), nil, creator.OfficeID, &creator.UserID, &now, now)
	to := id.NewOfficeID()

	action := NewAction(txn, ActionEndorse, creator.UserID, &to, "for budget", now)
	txn.ApplyEndorsement(to, now)

	require.NotNil(t, action.FromOfficeID)
	assert.Equal(t, creator.OfficeID, *action.FromOfficeID)
	assert.Equal(t, to, *action.ToOfficeID)
	assert.False(t, action.ID.IsNil())
}
