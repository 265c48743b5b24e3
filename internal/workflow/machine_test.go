package workflow

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/optimapos/optimapos/internal/shared"
)

func orderStatuses() []Status {
	return []Status{
		{Code: "DRAFT", Name: "Draft", SortOrder: 10, IsInitial: true, AllowEdit: true, AllowDelete: true},
		{Code: "SUBMITTED", Name: "Submitted", SortOrder: 20},
		{Code: "APPROVED", Name: "Approved", SortOrder: 30},
		{Code: "RECEIVED", Name: "Received", SortOrder: 40, IsFinal: true},
		{Code: "CANCELLED", Name: "Cancelled", SortOrder: 90, IsCancellation: true},
	}
}

func TestNewMachineValidation(t *testing.T) {
	_, err := NewMachine([]Status{{Code: "ONLY", SortOrder: 10, IsInitial: true}})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = NewMachine([]Status{
		{Code: "A", SortOrder: 10},
		{Code: "B", SortOrder: 20},
	})
	require.ErrorIs(t, err, shared.ErrValidation, "no initial status")

	_, err = NewMachine([]Status{
		{Code: "A", SortOrder: 10, IsInitial: true},
		{Code: "B", SortOrder: 20, IsInitial: true},
	})
	require.ErrorIs(t, err, shared.ErrValidation, "two initial statuses")

	_, err = NewMachine([]Status{
		{Code: "A", SortOrder: 10, IsInitial: true},
		{Code: "A", SortOrder: 20},
	})
	require.ErrorIs(t, err, shared.ErrValidation, "duplicate code")
}

func TestMachineTransitions(t *testing.T) {
	m, err := NewMachine(orderStatuses())
	require.NoError(t, err)

	require.Equal(t, "DRAFT", m.Initial())
	require.Equal(t, "CANCELLED", m.Cancellation())

	// Forward by sort order.
	require.True(t, m.CanTransition("DRAFT", "SUBMITTED"))
	require.True(t, m.CanTransition("DRAFT", "APPROVED"), "skipping ahead is still forward")
	require.True(t, m.CanTransition("SUBMITTED", "APPROVED"))
	require.False(t, m.CanTransition("APPROVED", "SUBMITTED"), "no going back")
	require.False(t, m.CanTransition("DRAFT", "DRAFT"))

	// Cancellation from any non-final status.
	require.True(t, m.CanTransition("DRAFT", "CANCELLED"))
	require.True(t, m.CanTransition("APPROVED", "CANCELLED"))
	require.False(t, m.CanTransition("RECEIVED", "CANCELLED"), "final documents stay final")

	// Reactivation is the only way out of cancellation.
	require.True(t, m.CanTransition("CANCELLED", "DRAFT"))
	require.False(t, m.CanTransition("CANCELLED", "SUBMITTED"))

	// Nothing leaves a final status.
	require.False(t, m.CanTransition("RECEIVED", "DRAFT"))

	require.False(t, m.CanTransition("UNKNOWN", "DRAFT"))
	require.False(t, m.CanTransition("DRAFT", "UNKNOWN"))
}

func TestMachineNext(t *testing.T) {
	m, err := NewMachine(orderStatuses())
	require.NoError(t, err)

	next, ok := m.Next("DRAFT")
	require.True(t, ok)
	require.Equal(t, "SUBMITTED", next)

	next, ok = m.Next("APPROVED")
	require.True(t, ok)
	require.Equal(t, "RECEIVED", next, "cancellation entries are skipped")

	_, ok = m.Next("RECEIVED")
	require.False(t, ok)
	_, ok = m.Next("CANCELLED")
	require.False(t, ok)
}

func TestMachineEditDelete(t *testing.T) {
	m, err := NewMachine(orderStatuses())
	require.NoError(t, err)

	require.True(t, m.CanEdit("DRAFT"))
	require.True(t, m.CanDelete("DRAFT"))
	require.False(t, m.CanEdit("SUBMITTED"))
	require.False(t, m.CanDelete("RECEIVED"))
}
