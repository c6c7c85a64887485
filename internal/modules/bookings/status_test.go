package bookings

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatusTransitions(t *testing.T) {
	assert.True(t, StatusPending.CanTransitionTo(StatusConfirmed))
	assert.True(t, StatusPending.CanTransitionTo(StatusExpired))
	assert.True(t, StatusConfirmed.CanTransitionTo(StatusInProgress))
	assert.True(t, StatusInProgress.CanTransitionTo(StatusCompleted))

	assert.False(t, StatusPending.CanTransitionTo(StatusInProgress), "pending must be confirmed first")
	assert.False(t, StatusConfirmed.CanTransitionTo(StatusExpired), "only pending reservations expire")
	assert.False(t, StatusInProgress.CanTransitionTo(StatusCancelledByClient), "a running service cannot be cancelled")

	for _, terminal := range []Status{StatusCompleted, StatusCancelledByClient, StatusCancelledByProvider, StatusExpired} {
		assert.True(t, terminal.IsTerminal())
		for _, to := range []Status{StatusPending, StatusConfirmed, StatusInProgress, StatusCompleted} {
			assert.False(t, terminal.CanTransitionTo(to), "%s is terminal", terminal)
		}
	}

	assert.True(t, StatusPending.CanBeCancelled())
	assert.True(t, StatusConfirmed.CanBeCancelled())
	assert.False(t, StatusInProgress.CanBeCancelled())
	assert.False(t, StatusCompleted.CanBeCancelled())
}
