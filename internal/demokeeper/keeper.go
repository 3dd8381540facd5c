// Package demokeeper provides a minimal, in-memory LandKeeper used only to
// exercise the gateway's wiring end-to-end (cmd/server) when no real
// application game-logic engine is plugged in. The actual game-logic engine
// is explicitly out of scope for this gateway (spec §1); this stands in for
// it the way the teacher's cmd/*-demo commands stand in for subsystems
// they're demonstrating rather than shipping.
package demokeeper

import (
	"context"
	"sync"
	"time"

	"landsync/core"
)

// State is a trivial room state: a tick counter (broadcast) and a per-player
// score map (per-player).
type State struct {
	mu     sync.RWMutex
	tick   int64
	scores map[core.PlayerID]int64
	dirty  map[string]struct{}
}

func newState() *State {
	return &State{
		scores: make(map[core.PlayerID]int64),
		dirty:  make(map[string]struct{}),
	}
}

var _ core.State = (*State)(nil)

func (s *State) IsDirty() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.dirty) > 0
}

func (s *State) DirtyFields() map[string]struct{} {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]struct{}, len(s.dirty))
	for k := range s.dirty {
		out[k] = struct{}{}
	}
	return out
}

func (s *State) SyncFields() []core.SyncField {
	return []core.SyncField{
		{Name: "tick", Policy: core.SyncBroadcast},
		{Name: "score", Policy: core.SyncPerPlayer},
	}
}

func (s *State) ExtractBroadcast(fields map[string]struct{}) core.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if fields != nil {
		if _, ok := fields["tick"]; !ok {
			return core.Snapshot{}
		}
	}
	return core.Snapshot{"tick": s.tick}
}

func (s *State) ExtractPerPlayer(player core.PlayerID, fields map[string]struct{}) core.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if fields != nil {
		if _, ok := fields["score"]; !ok {
			return core.Snapshot{}
		}
	}
	return core.Snapshot{"score": s.scores[player]}
}

func (s *State) clearDirty() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dirty = make(map[string]struct{})
}

// Keeper implements core.LandKeeper with a per-room tick counter and
// per-player score, advancing the tick on every BeginSync call.
type Keeper struct {
	mu       sync.Mutex
	landID   string
	state    *State
	syncing  bool
	players  map[core.PlayerID]struct{}
	created  time.Time
}

var _ core.LandKeeper = (*Keeper)(nil)

// NewFactory returns a land.KeeperFactory that builds a fresh demo Keeper
// for each new room instance.
func NewFactory() func(id core.LandID) core.LandKeeper {
	return func(id core.LandID) core.LandKeeper {
		return &Keeper{
			state:   newState(),
			players: make(map[core.PlayerID]struct{}),
			created: time.Now(),
		}
	}
}

func (k *Keeper) SetLandID(id string)            { k.mu.Lock(); k.landID = id; k.mu.Unlock() }
func (k *Keeper) SetTransport(adapter interface{}) {}

func (k *Keeper) Join(ctx context.Context, player core.PlayerID, client core.ClientID, sid core.SessionID, services core.JoinServices) (core.JoinDecision, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if len(k.players) >= 200 {
		return core.Deny, core.ErrRoomIsFull
	}
	k.players[player] = struct{}{}
	k.state.mu.Lock()
	if _, ok := k.state.scores[player]; !ok {
		k.state.scores[player] = 0
	}
	k.state.mu.Unlock()
	return core.Allow(player), nil
}

func (k *Keeper) Leave(ctx context.Context, player core.PlayerID, client core.ClientID) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	delete(k.players, player)
	return nil
}

func (k *Keeper) HandleAction(ctx context.Context, requestID, typeIdentifier string, payload []byte, player core.PlayerID, client core.ClientID, sid core.SessionID) (interface{}, error) {
	switch typeIdentifier {
	case "score.increment":
		k.state.mu.Lock()
		k.state.scores[player]++
		k.state.dirty["score"] = struct{}{}
		k.state.mu.Unlock()
		return map[string]interface{}{"ok": true}, nil
	default:
		return nil, core.ErrActionNotFound
	}
}

func (k *Keeper) HandleEvent(ctx context.Context, eventType string, payload []byte, player core.PlayerID, client core.ClientID, sid core.SessionID) error {
	return nil
}

func (k *Keeper) CurrentState(ctx context.Context) (core.State, error) {
	return k.state, nil
}

func (k *Keeper) BeginSync(ctx context.Context) (core.State, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.syncing {
		return nil, nil
	}
	k.syncing = true
	k.state.mu.Lock()
	k.state.tick++
	k.state.dirty["tick"] = struct{}{}
	k.state.mu.Unlock()
	return k.state, nil
}

func (k *Keeper) EndSync(ctx context.Context, clearDirtyFlags bool) error {
	k.mu.Lock()
	k.syncing = false
	k.mu.Unlock()
	if clearDirtyFlags {
		k.state.clearDirty()
	}
	return nil
}

func (k *Keeper) PlayerCount() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.players)
}
