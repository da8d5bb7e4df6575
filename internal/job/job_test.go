package job

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vidra-dl/vidra/internal/catalog"
	"github.com/vidra-dl/vidra/internal/engine"
)

func TestStateTransitions(t *testing.T) {
	legal := []struct {
		from, to State
	}{
		{StateUnresolved, StateResolving},
		{StateResolving, StatePending},
		{StateResolving, StateFailed},
		{StatePending, StateRunning},
		{StatePending, StatePaused},
		{StateRunning, StatePaused},
		{StateRunning, StateCompleted},
		{StateRunning, StateFailed},
		{StatePaused, StatePending},
	}
	for _, tc := range legal {
		assert.True(t, tc.from.CanMove(tc.to), "%s -> %s should be legal", tc.from, tc.to)
	}

	illegal := []struct {
		from, to State
	}{
		{StateUnresolved, StateRunning},
		{StateUnresolved, StatePending},
		{StateResolving, StateRunning},
		{StatePending, StateCompleted},
		{StatePaused, StateRunning},
		{StatePaused, StateCompleted},
		{StateCompleted, StateRunning},
		{StateFailed, StatePending},
		{StateCancelled, StateResolving},
	}
	for _, tc := range illegal {
		assert.False(t, tc.from.CanMove(tc.to), "%s -> %s should be illegal", tc.from, tc.to)
	}
}

func TestCancelFromAnyNonTerminalState(t *testing.T) {
	for _, s := range []State{StateUnresolved, StateResolving, StatePending, StateRunning, StatePaused} {
		assert.True(t, s.CanMove(StateCancelled), "cancel from %s", s)
	}
	for _, s := range []State{StateCompleted, StateFailed, StateCancelled} {
		assert.False(t, s.CanMove(StateCancelled), "cancel from terminal %s", s)
	}
}

func TestTerminalAndQueueable(t *testing.T) {
	assert.True(t, StateCompleted.Terminal())
	assert.True(t, StateFailed.Terminal())
	assert.True(t, StateCancelled.Terminal())
	assert.False(t, StateRunning.Terminal())

	assert.True(t, StatePending.Queueable())
	assert.True(t, StatePaused.Queueable())
	assert.False(t, StateRunning.Queueable())
	assert.False(t, StateResolving.Queueable())
}

func TestMoveRejectsIllegalTransition(t *testing.T) {
	j := New("https://example.com/a.mp4", 0)
	require.Equal(t, StateUnresolved, j.State)

	err := j.Move(StateRunning)
	require.Error(t, err)
	assert.Equal(t, StateUnresolved, j.State, "state unchanged after rejected move")

	require.NoError(t, j.Move(StateResolving))
	require.NoError(t, j.Move(StatePending))
	require.NoError(t, j.Move(StateRunning))
	assert.False(t, j.StartedAt.IsZero())
	require.NoError(t, j.Move(StateCompleted))
	assert.False(t, j.FinishedAt.IsZero())
	require.Error(t, j.Move(StateCancelled))
}

func TestRecalcTotal(t *testing.T) {
	j := New("https://example.com/v", 0)
	j.Renditions = []engine.Rendition{
		{ID: "v1", Kind: engine.KindVideo, Size: 1000},
		{ID: "a1", Kind: engine.KindAudio, Size: 200},
		{ID: "a2", Kind: engine.KindAudio, Size: engine.SizeUnknown},
	}
	j.Selection = catalog.Selection{VideoID: "v1", AudioID: "a1"}
	j.RecalcTotal()
	assert.Equal(t, int64(1200), j.Total)

	j.Selection.AudioID = "a2"
	j.RecalcTotal()
	assert.Equal(t, TotalUnknown, j.Total, "any unknown rendition size makes the total unknown")
}

func TestSummarize(t *testing.T) {
	j := New("https://example.com/v", 7)
	j.Transferred = 42
	s := j.Summarize(3)
	assert.Equal(t, j.ID, s.ID)
	assert.Equal(t, 7, s.SubmitIndex)
	assert.Equal(t, int64(42), s.Transferred)
	assert.Equal(t, 3, s.QueuePos)
}
