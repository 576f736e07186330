package order

import "github.com/example/shopfront/internal/model"

// Actor identifies who is requesting a status transition.
type Actor string

const (
	ActorUser  Actor = "user"
	ActorAdmin Actor = "admin"
)

// validTransitions defines the allowed forward path. Cancellation from
// non-terminal states outside this table is an admin-only special case
// handled in canTransition.
var validTransitions = map[model.OrderStatus][]model.OrderStatus{
	model.StatusPending:    {model.StatusConfirmed, model.StatusCancelled},
	model.StatusConfirmed:  {model.StatusProcessing, model.StatusCancelled},
	model.StatusProcessing: {model.StatusShipped},
	model.StatusShipped:    {model.StatusDelivered},
	model.StatusDelivered:  {}, // terminal state
	model.StatusCancelled:  {}, // terminal state
}

// KnownStatus reports whether s is a recognized status value.
func KnownStatus(s model.OrderStatus) bool {
	_, ok := validTransitions[s]
	return ok
}

// IsTerminal reports whether no further transition is permitted from s.
func IsTerminal(s model.OrderStatus) bool {
	allowed, ok := validTransitions[s]
	return ok && len(allowed) == 0
}

// userCancellable lists the states a user may cancel from.
var userCancellable = map[model.OrderStatus]bool{
	model.StatusPending:   true,
	model.StatusConfirmed: true,
}

// canTransition checks the transition table plus the per-actor rules. The
// terminal-state guard is the caller's responsibility; this only answers
// whether the (from, to, actor) combination is allowed.
func canTransition(from, to model.OrderStatus, actor Actor) bool {
	if actor == ActorUser {
		return to == model.StatusCancelled && userCancellable[from]
	}
	// Admins may cancel from any non-terminal state.
	if to == model.StatusCancelled && !IsTerminal(from) {
		return true
	}
	for _, s := range validTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}
