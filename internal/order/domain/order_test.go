package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func twoItems() []OrderItem {
	return []OrderItem{
		{ProductID: "p1", ProductName: "Widget", Quantity: 2, UnitPriceCents: 500},
		{ProductID: "p2", ProductName: "Gadget", Quantity: 1, UnitPriceCents: 250},
	}
}

func TestNewOrderComputesTotal(t *testing.T) {
	o := NewOrder("o1", "cust-1", "corr-1", "alice", twoItems())
	assert.Equal(t, int64(1250), o.TotalCents)
	assert.Equal(t, StatusPending, o.Status)
	assert.Equal(t, "corr-1", o.CorrelationID)
}

func TestValidateItems(t *testing.T) {
	assert.ErrorIs(t, ValidateItems(nil), ErrNoItems)

	assert.ErrorIs(t, ValidateItems([]OrderItem{{ProductID: "p1", Quantity: 0}}), ErrInvalidQuantity)

	assert.ErrorIs(t, ValidateItems([]OrderItem{
		{ProductID: "p1", Quantity: 1},
		{ProductID: "p1", Quantity: 2},
	}), ErrDuplicateProduct)

	assert.NoError(t, ValidateItems(twoItems()))
}

func TestLifecycleTransitions(t *testing.T) {
	o := NewOrder("o1", "cust-1", "corr-1", "alice", twoItems())

	require.NoError(t, o.Confirm())
	assert.Equal(t, StatusConfirmed, o.Status)

	require.NoError(t, o.Fulfill())
	assert.Equal(t, StatusFulfilled, o.Status)

	err := o.Cancel()
	var invalid *ErrInvalidTransition
	require.ErrorAs(t, err, &invalid, "cancelling a fulfilled order is a business-rule violation")
	assert.Equal(t, StatusFulfilled, invalid.From)
	assert.Equal(t, StatusFulfilled, o.Status)
}

func TestCancelFromPendingAndConfirmed(t *testing.T) {
	pending := NewOrder("o1", "c", "corr", "", twoItems())
	assert.NoError(t, pending.Cancel())

	confirmed := NewOrder("o2", "c", "corr", "", twoItems())
	require.NoError(t, confirmed.Confirm())
	assert.NoError(t, confirmed.Cancel())
}

func TestGuardsRejectWrongSource(t *testing.T) {
	o := NewOrder("o1", "c", "corr", "", twoItems())
	require.NoError(t, o.Fail())

	assert.Error(t, o.Confirm(), "failed orders stay failed")
	assert.Error(t, o.Fulfill())
	assert.Error(t, o.Fail())
	assert.Equal(t, StatusFailed, o.Status)

	fresh := NewOrder("o2", "c", "corr", "", twoItems())
	assert.Error(t, fresh.Fulfill(), "only confirmed orders can be fulfilled")
}
