package demokeeper

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"landsync/core"
)

func newKeeper() core.LandKeeper {
	return NewFactory()(core.NewLandID("arena", "r1"))
}

func TestFactoryProducesIndependentKeepers(t *testing.T) {
	factory := NewFactory()
	a := factory(core.NewLandID("arena", "r1"))
	b := factory(core.NewLandID("arena", "r2"))
	assert.NotSame(t, a, b)
}

func TestJoinAddsPlayerAndTracksCount(t *testing.T) {
	k := newKeeper()
	decision, err := k.Join(context.Background(), "p1", "c1", "sess-1", core.JoinServices{})
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
	assert.Equal(t, core.PlayerID("p1"), decision.Player)
	assert.Equal(t, 1, k.PlayerCount())
}

func TestJoinRejectsOnceRoomIsFull(t *testing.T) {
	k := newKeeper()
	for i := 0; i < 200; i++ {
		pid := core.PlayerID(fmt.Sprintf("player-%d", i))
		_, err := k.Join(context.Background(), pid, "c1", core.SessionID(pid), core.JoinServices{})
		require.NoError(t, err)
	}

	decision, err := k.Join(context.Background(), "overflow", "c1", "sess-overflow", core.JoinServices{})
	assert.ErrorIs(t, err, core.ErrRoomIsFull)
	assert.False(t, decision.Allowed)
}

func TestLeaveRemovesPlayer(t *testing.T) {
	k := newKeeper()
	_, err := k.Join(context.Background(), "p1", "c1", "sess-1", core.JoinServices{})
	require.NoError(t, err)

	require.NoError(t, k.Leave(context.Background(), "p1", "c1"))
	assert.Equal(t, 0, k.PlayerCount())
}

func TestHandleActionScoreIncrement(t *testing.T) {
	k := newKeeper()
	_, err := k.Join(context.Background(), "p1", "c1", "sess-1", core.JoinServices{})
	require.NoError(t, err)

	result, err := k.HandleAction(context.Background(), "r1", "score.increment", nil, "p1", "c1", "sess-1")
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{"ok": true}, result)

	state, err := k.CurrentState(context.Background())
	require.NoError(t, err)
	snap := state.ExtractPerPlayer("p1", nil)
	assert.Equal(t, int64(1), snap["score"])
}

func TestHandleActionUnknownTypeReturnsActionNotFound(t *testing.T) {
	k := newKeeper()
	_, err := k.HandleAction(context.Background(), "r1", "nonexistent", nil, "p1", "c1", "sess-1")
	assert.ErrorIs(t, err, core.ErrActionNotFound)
}

func TestBeginSyncAdvancesTickAndMarksDirty(t *testing.T) {
	k := newKeeper()
	state, err := k.BeginSync(context.Background())
	require.NoError(t, err)
	require.NotNil(t, state)
	assert.True(t, state.IsDirty())

	snap := state.ExtractBroadcast(nil)
	assert.Equal(t, int64(1), snap["tick"])
}

func TestBeginSyncReturnsNilOnOverlap(t *testing.T) {
	k := newKeeper()
	_, err := k.BeginSync(context.Background())
	require.NoError(t, err)

	state, err := k.BeginSync(context.Background())
	require.NoError(t, err)
	assert.Nil(t, state, "a second BeginSync while one is in flight must report the overlap by returning nil")
}

func TestEndSyncClearsDirtyFlagsWhenRequested(t *testing.T) {
	k := newKeeper()
	state, err := k.BeginSync(context.Background())
	require.NoError(t, err)
	require.True(t, state.IsDirty())

	require.NoError(t, k.EndSync(context.Background(), true))
	assert.False(t, state.IsDirty())
}

func TestEndSyncKeepsDirtyFlagsWhenNotRequested(t *testing.T) {
	k := newKeeper()
	state, err := k.BeginSync(context.Background())
	require.NoError(t, err)

	require.NoError(t, k.EndSync(context.Background(), false))
	assert.True(t, state.IsDirty())
}

func TestEndSyncAllowsSubsequentBeginSync(t *testing.T) {
	k := newKeeper()
	_, err := k.BeginSync(context.Background())
	require.NoError(t, err)
	require.NoError(t, k.EndSync(context.Background(), true))

	state, err := k.BeginSync(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, state, "BeginSync must succeed again once the prior cycle ended")
}
