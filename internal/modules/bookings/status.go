package bookings

// Status is the reservation lifecycle state. The set is closed; every
// transition site switches exhaustively so a new state cannot slip
// through unnoticed.
type Status string

const (
	StatusPending             Status = "pending"
	StatusConfirmed           Status = "confirmed"
	StatusInProgress          Status = "in_progress"
	StatusCompleted           Status = "completed"
	StatusCancelledByClient   Status = "cancelled_by_client"
	StatusCancelledByProvider Status = "cancelled_by_provider"
	StatusExpired             Status = "expired"
)

var transitions = map[Status][]Status{
	StatusPending: {
		StatusConfirmed,
		StatusCancelledByClient,
		StatusCancelledByProvider,
		StatusExpired,
	},
	StatusConfirmed: {
		StatusInProgress,
		StatusCancelledByClient,
		StatusCancelledByProvider,
	},
	StatusInProgress: {
		StatusCompleted,
	},
	// terminal states have no outgoing edges
	StatusCompleted:           nil,
	StatusCancelledByClient:   nil,
	StatusCancelledByProvider: nil,
	StatusExpired:             nil,
}

func (s Status) CanTransitionTo(to Status) bool {
	for _, next := range transitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

func (s Status) IsTerminal() bool { return len(transitions[s]) == 0 }

// Cancellable states; everything past confirmation is committed.
func (s Status) CanBeCancelled() bool {
	return s == StatusPending || s == StatusConfirmed
}

// ActorRole identifies who is acting on a reservation. It is computed
// once at the boundary and threaded through instead of re-deriving it
// from ids at every check.
type ActorRole string

const (
	RoleClient   ActorRole = "client"
	RoleProvider ActorRole = "provider"
	RoleAdmin    ActorRole = "admin"
	RoleSystem   ActorRole = "system"
)

// cancelledStatusFor maps the cancelling role to the terminal state.
// Admin and system cancellations are recorded on the provider side.
func cancelledStatusFor(role ActorRole) Status {
	if role == RoleClient {
		return StatusCancelledByClient
	}
	return StatusCancelledByProvider
}
