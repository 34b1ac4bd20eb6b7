package order

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func allStatuses() []Status {
	return []Status{
		StatusPending,
		StatusConfirmed,
		StatusPreparing,
		StatusReady,
		StatusOutForDelivery,
		StatusDelivered,
		StatusCancelled,
	}
}

func TestStatus_CanTransitionTo(t *testing.T) {
	legal := map[Status]map[Status]bool{
		StatusPending:        {StatusConfirmed: true, StatusCancelled: true},
		StatusConfirmed:      {StatusPreparing: true, StatusCancelled: true},
		StatusPreparing:      {StatusReady: true, StatusCancelled: true},
		StatusReady:          {StatusOutForDelivery: true, StatusDelivered: true},
		StatusOutForDelivery: {StatusDelivered: true},
		StatusDelivered:      {},
		StatusCancelled:      {},
	}

	// Every (from, to) pair, including from==to, must match the table above.
	for _, from := range allStatuses() {
		for _, to := range allStatuses() {
			got := from.CanTransitionTo(to)
			want := legal[from][to]
			assert.Equal(t, want, got, "transition %s -> %s", from, to)
		}
	}
}

func TestStatus_SelfTransitionNeverLegal(t *testing.T) {
	for _, s := range allStatuses() {
		assert.False(t, s.CanTransitionTo(s), "self transition %s", s)
	}
}

func TestStatus_Valid(t *testing.T) {
	for _, s := range allStatuses() {
		assert.True(t, s.Valid(), "status %s", s)
	}

	assert.False(t, Status("shipped").Valid())
	assert.False(t, Status("").Valid())
	assert.False(t, Status("PENDING").Valid())
}

func TestStatus_IsTerminal(t *testing.T) {
	assert.True(t, StatusDelivered.IsTerminal())
	assert.True(t, StatusCancelled.IsTerminal())

	for _, s := range []Status{StatusPending, StatusConfirmed, StatusPreparing, StatusReady, StatusOutForDelivery} {
		assert.False(t, s.IsTerminal(), "status %s", s)
	}
}

func TestStatus_NextStates(t *testing.T) {
	next := StatusPending.NextStates()
	require.ElementsMatch(t, []Status{StatusConfirmed, StatusCancelled}, next)

	// The returned slice is a copy; mutating it must not poison the table.
	next[0] = StatusDelivered
	assert.ElementsMatch(t, []Status{StatusConfirmed, StatusCancelled}, StatusPending.NextStates())

	assert.Empty(t, StatusDelivered.NextStates())
	assert.Empty(t, StatusCancelled.NextStates())
}

func TestStatus_ReachabilityFromTerminalIsEmpty(t *testing.T) {
	for _, s := range TerminalStatuses() {
		for _, target := range allStatuses() {
			assert.False(t, s.CanTransitionTo(target), "terminal %s -> %s", s, target)
		}
	}
}
