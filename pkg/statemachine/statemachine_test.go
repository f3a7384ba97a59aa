package statemachine_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/pagelift/billing/pkg/statemachine"
)

func TestMachine(t *testing.T) {
	t.Parallel()

	m := statemachine.New[string]().
		Allow("created", "updated", "won", "closed").
		Allow("updated", "won", "closed")

	t.Run("registered transitions pass", func(t *testing.T) {
		t.Parallel()
		assert.NoError(t, m.Transition("created", "updated"))
		assert.NoError(t, m.Transition("updated", "won"))
	})

	t.Run("unregistered transitions fail", func(t *testing.T) {
		t.Parallel()
		err := m.Transition("won", "updated")
		assert.ErrorIs(t, err, statemachine.ErrInvalidTransition)

		err = m.Transition("closed", "created")
		assert.ErrorIs(t, err, statemachine.ErrInvalidTransition)
	})

	t.Run("self transitions are no-ops", func(t *testing.T) {
		t.Parallel()
		assert.NoError(t, m.Transition("won", "won"))
		assert.True(t, m.Can("created", "created"))
	})

	t.Run("terminal states have no exits", func(t *testing.T) {
		t.Parallel()
		assert.True(t, m.IsTerminal("won"))
		assert.True(t, m.IsTerminal("closed"))
		assert.False(t, m.IsTerminal("created"))
	})
}
