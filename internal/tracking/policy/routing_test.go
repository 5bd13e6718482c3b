package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "proctrack/pkg/domain"
)

func TestCheckRoute(t *testing.T) {
	f := newFixture(t)

	t.Run("next step office is on route", func(t *testing.T) {
		assert.Nil(t, CheckRoute(f.created(t), f.wf, f.offices[1]))
	})

	t.Run("skipping a step is a deviation with the expected office", func(t *testing.T) {
		dev := CheckRoute(f.created(t), f.wf, f.offices[2])
		require.NotNil(t, dev)
		assert.Equal(t, f.offices[2], dev.Actual)
		require.NotNil(t, dev.Expected)
		assert.Equal(t, f.offices[1], *dev.Expected)
	})

	t.Run("unknown office is a deviation", func(t *testing.T) {
		elsewhere := id.NewOfficeID()
		dev := CheckRoute(f.created(t), f.wf, elsewhere)
		require.NotNil(t, dev)
		assert.Equal(t, f.offices[1], *dev.Expected)
	})

	t.Run("step-less document returning to a workflow office is on route", func(t *testing.T) {
		txn := f.created(t)
		txn.CurrentStepID = nil
		assert.Nil(t, CheckRoute(txn, f.wf, f.offices[2]))
	})

	t.Run("step-less document sent elsewhere has unknown expected office", func(t *testing.T) {
		txn := f.created(t)
		txn.CurrentStepID = nil
		dev := CheckRoute(txn, f.wf, id.NewOfficeID())
		require.NotNil(t, dev)
		assert.Nil(t, dev.Expected)
	})

	t.Run("no workflow, no deviation", func(t *testing.T) {
		assert.Nil(t, CheckRoute(f.created(t), nil, id.NewOfficeID()))
	})
}

func TestStepOnReceipt(t *testing.T) {
	f := newFixture(t)

	t.Run("successor step when office matches", func(t *testing.T) {
		step := StepOnReceipt(f.created(t), f.wf, f.offices[1])
		require.NotNil(t, step)
		assert.Equal(t, 2, step.StepOrder)
	})

	t.Run("jump to the office's own step", func(t *testing.T) {
		step := StepOnReceipt(f.created(t), f.wf, f.offices[2])
		require.NotNil(t, step)
		assert.Equal(t, 3, step.StepOrder)
	})

	t.Run("office outside the workflow leaves no step", func(t *testing.T) {
		assert.Nil(t, StepOnReceipt(f.created(t), f.wf, id.NewOfficeID()))
	})

	t.Run("step-less document lands back on a known step", func(t *testing.T) {
		txn := f.created(t)
		txn.CurrentStepID = nil
		step := StepOnReceipt(txn, f.wf, f.offices[1])
		require.NotNil(t, step)
		assert.Equal(t, 2, step.StepOrder)
	})
}
