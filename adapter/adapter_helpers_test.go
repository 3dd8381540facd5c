package adapter

import (
	"context"
	"sync"

	"landsync/core"
	"landsync/internal/metrics"
	"landsync/wire"
)

// fakeState is a minimal core.State double for adapter tests.
type fakeState struct {
	broadcast   map[string]interface{}
	perPlayer   map[core.PlayerID]map[string]interface{}
	fields      []core.SyncField
	dirty       bool
	dirtyFields map[string]struct{}
}

func newFakeState() *fakeState {
	return &fakeState{
		broadcast: map[string]interface{}{"tick": int64(1)},
		perPlayer: map[core.PlayerID]map[string]interface{}{},
		fields: []core.SyncField{
			{Name: "tick", Policy: core.SyncBroadcast},
			{Name: "score", Policy: core.SyncPerPlayer},
		},
	}
}

func (f *fakeState) IsDirty() bool                    { return f.dirty }
func (f *fakeState) DirtyFields() map[string]struct{} { return f.dirtyFields }
func (f *fakeState) SyncFields() []core.SyncField     { return f.fields }

func (f *fakeState) ExtractBroadcast(fields map[string]struct{}) core.Snapshot {
	out := core.Snapshot{}
	for k, v := range f.broadcast {
		if fields != nil {
			if _, ok := fields[k]; !ok {
				continue
			}
		}
		out[k] = v
	}
	return out
}

func (f *fakeState) ExtractPerPlayer(player core.PlayerID, fields map[string]struct{}) core.Snapshot {
	out := core.Snapshot{}
	for k, v := range f.perPlayer[player] {
		if fields != nil {
			if _, ok := fields[k]; !ok {
				continue
			}
		}
		out[k] = v
	}
	return out
}

// fakeKeeper is a configurable core.LandKeeper double.
type fakeKeeper struct {
	mu sync.Mutex

	joinDecision core.JoinDecision
	joinErr      error
	leaveErr     error
	actionResp   interface{}
	actionErr    error
	eventErr     error

	state       *fakeState
	syncRunning bool

	joinCalls    int
	leaveCalls   int
	playerCount  int
	endSyncCalls []bool
}

func newFakeKeeper() *fakeKeeper {
	return &fakeKeeper{
		joinDecision: core.Allow(""),
		state:        newFakeState(),
	}
}

func (k *fakeKeeper) Join(ctx context.Context, session core.PlayerID, client core.ClientID, sid core.SessionID, services core.JoinServices) (core.JoinDecision, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.joinCalls++
	if k.joinErr != nil {
		return core.JoinDecision{}, k.joinErr
	}
	decision := k.joinDecision
	if decision.Player == "" {
		decision.Player = session
	}
	return decision, nil
}

func (k *fakeKeeper) Leave(ctx context.Context, player core.PlayerID, client core.ClientID) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.leaveCalls++
	return k.leaveErr
}

func (k *fakeKeeper) HandleAction(ctx context.Context, requestID, typeIdentifier string, payload []byte, player core.PlayerID, client core.ClientID, sid core.SessionID) (interface{}, error) {
	return k.actionResp, k.actionErr
}

func (k *fakeKeeper) HandleEvent(ctx context.Context, eventType string, payload []byte, player core.PlayerID, client core.ClientID, sid core.SessionID) error {
	return k.eventErr
}

func (k *fakeKeeper) CurrentState(ctx context.Context) (core.State, error) {
	return k.state, nil
}

func (k *fakeKeeper) BeginSync(ctx context.Context) (core.State, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.syncRunning {
		return nil, nil
	}
	k.syncRunning = true
	return k.state, nil
}

func (k *fakeKeeper) EndSync(ctx context.Context, clearDirtyFlags bool) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.syncRunning = false
	k.endSyncCalls = append(k.endSyncCalls, clearDirtyFlags)
	return nil
}

func (k *fakeKeeper) PlayerCount() int { return k.playerCount }

func (k *fakeKeeper) SetTransport(interface{}) {}
func (k *fakeKeeper) SetLandID(string)         {}

var _ core.LandKeeper = (*fakeKeeper)(nil)

// fakeSender is a recording Sender double.
type fakeSender struct {
	mu sync.Mutex

	sent          []sentFrame
	batches       []map[core.SessionID][]byte
	boundPlayers  map[core.PlayerID][]core.SessionID
	disconnected  []core.SessionID
}

type sentFrame struct {
	target core.EventTarget
	data   []byte
}

func newFakeSender() *fakeSender {
	return &fakeSender{boundPlayers: make(map[core.PlayerID][]core.SessionID)}
}

func (s *fakeSender) Send(target core.EventTarget, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, sentFrame{target: target, data: data})
}

func (s *fakeSender) SendBatch(items map[core.SessionID][]byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches = append(s.batches, items)
}

func (s *fakeSender) BindPlayer(pid core.PlayerID, sid core.SessionID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.boundPlayers[pid] = append(s.boundPlayers[pid], sid)
}

func (s *fakeSender) UnbindPlayer(pid core.PlayerID, sid core.SessionID) {}

func (s *fakeSender) Disconnect(sid core.SessionID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.disconnected = append(s.disconnected, sid)
}

func (s *fakeSender) sentCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent)
}

var _ Sender = (*fakeSender)(nil)

func newTestAdapter(opts Options, keeper *fakeKeeper, sender *fakeSender) *Adapter {
	codecs := wire.CodecPair{
		Message:     wire.NewJSONMessageCodec(),
		StateUpdate: wire.NewJSONStateUpdateCodec(),
	}
	return New(opts, keeper, sender, codecs, metrics.New())
}

// flush fences the task queue: since tasks run FIFO on a single goroutine,
// a synchronous SyncNow issued after earlier async submissions only
// returns once they have all completed.
func flush(a *Adapter) {
	a.SyncNow()
}
