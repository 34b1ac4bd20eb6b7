package order

// Status is the fulfillment state of an order. The transition graph is owned
// here and consumed by every caller; there is exactly one copy of it.
type Status string

const (
	StatusPending        Status = "pending"
	StatusConfirmed      Status = "confirmed"
	StatusPreparing      Status = "preparing"
	StatusReady          Status = "ready"
	StatusOutForDelivery Status = "out_for_delivery"
	StatusDelivered      Status = "delivered"
	StatusCancelled      Status = "cancelled"
)

// transitions maps each status to the exhaustive set of statuses reachable
// in one step. Terminal statuses map to an empty set.
var transitions = map[Status][]Status{
	StatusPending:        {StatusConfirmed, StatusCancelled},
	StatusConfirmed:      {StatusPreparing, StatusCancelled},
	StatusPreparing:      {StatusReady, StatusCancelled},
	StatusReady:          {StatusOutForDelivery, StatusDelivered},
	StatusOutForDelivery: {StatusDelivered},
	StatusDelivered:      {},
	StatusCancelled:      {},
}

// Valid reports whether s is a known status value.
func (s Status) Valid() bool {
	_, ok := transitions[s]
	return ok
}

// NextStates returns the statuses legally reachable from s in one
// transition. The returned slice is a copy and safe to modify.
func (s Status) NextStates() []Status {
	next := transitions[s]
	out := make([]Status, len(next))
	copy(out, next)
	return out
}

// CanTransitionTo reports whether a single transition from s to target is
// legal. A transition to the current status is never legal.
func (s Status) CanTransitionTo(target Status) bool {
	for _, next := range transitions[s] {
		if next == target {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transition is legal from s.
// Terminal orders are the only ones eligible for archival.
func (s Status) IsTerminal() bool {
	return s == StatusDelivered || s == StatusCancelled
}

// TerminalStatuses returns the set of terminal statuses.
func TerminalStatuses() []Status {
	return []Status{StatusDelivered, StatusCancelled}
}
