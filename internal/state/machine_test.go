package state

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommand_Lifecycle(t *testing.T) {
	tests := []struct {
		name      string
		steps     func(c *Command) error
		wantState string
		wantDone  bool
	}{
		{
			name:      "initial state is issued",
			steps:     func(c *Command) error { return nil },
			wantState: StateIssued,
		},
		{
			name:      "accepted command is pending",
			steps:     func(c *Command) error { return c.Accept("cmd-1") },
			wantState: StatePending,
		},
		{
			name: "pending command completes",
			steps: func(c *Command) error {
				if err := c.Accept("cmd-1"); err != nil {
					return err
				}
				return c.Complete()
			},
			wantState: StateSucceeded,
			wantDone:  true,
		},
		{
			name:      "issued command can fail",
			steps:     func(c *Command) error { return c.Fail() },
			wantState: StateFailed,
			wantDone:  true,
		},
		{
			name: "pending command can fail",
			steps: func(c *Command) error {
				if err := c.Accept("cmd-1"); err != nil {
					return err
				}
				return c.Fail()
			},
			wantState: StateFailed,
			wantDone:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewCommand("engine_start", nil)
			require.NoError(t, tt.steps(c))
			assert.Equal(t, tt.wantState, c.Current())
			assert.Equal(t, tt.wantDone, c.Done())
		})
	}
}

func TestCommand_CompleteWithoutAcceptFails(t *testing.T) {
	c := NewCommand("door_lock", nil)
	err := c.Complete()
	assert.Error(t, err)
	assert.Equal(t, StateIssued, c.Current())
}

func TestCommand_FailAfterSuccessIsIgnored(t *testing.T) {
	c := NewCommand("door_lock", nil)
	require.NoError(t, c.Accept("abc"))
	require.NoError(t, c.Complete())

	assert.NoError(t, c.Fail())
	assert.True(t, c.Succeeded())
}

func TestCommand_OnChange(t *testing.T) {
	var transitions []string
	c := NewCommand("engine_stop", func(name, from, to string) {
		assert.Equal(t, "engine_stop", name)
		transitions = append(transitions, from+"->"+to)
	})

	require.NoError(t, c.Accept("abc"))
	require.NoError(t, c.Complete())

	assert.Equal(t, []string{"issued->pending", "pending->succeeded"}, transitions)
}

func TestCommand_Snapshot(t *testing.T) {
	c := NewCommand("door_unlock", nil)
	require.NoError(t, c.Accept("cmd-42"))
	c.RecordPoll()
	c.RecordPoll()

	snap := c.Snapshot()
	assert.Equal(t, "door_unlock", snap.Name)
	assert.Equal(t, "cmd-42", snap.CommandID)
	assert.Equal(t, StatePending, snap.State)
	assert.Equal(t, 2, snap.Polls)
	assert.Equal(t, "cmd-42", c.ID())
}
