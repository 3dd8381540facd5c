// Package adapter implements TransportAdapter (spec component C6): the
// per-room orchestrator that runs every room operation — join, sync,
// message routing, outbound events — inside one serialized domain.
// Grounded on the teacher's dispatch-by-kind routing (pkg/server/handlers.go)
// and its single-room command-serialization idiom, generalized to a
// goroutine draining a task channel per spec §9's suggested primitive.
package adapter

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"

	"landsync/core"
	"landsync/internal/metrics"
	"landsync/membership"
	"landsync/syncengine"
	"landsync/transport"
	"landsync/wire"
)

// Sender is the subset of transport.Transport the adapter needs to fan
// frames out; kept as an interface so tests can substitute a recorder.
type Sender interface {
	Send(target core.EventTarget, data []byte)
	SendBatch(items map[core.SessionID][]byte)
	BindPlayer(pid core.PlayerID, sid core.SessionID)
	UnbindPlayer(pid core.PlayerID, sid core.SessionID)
	Disconnect(sid core.SessionID)
}

var _ Sender = (*transport.Transport)(nil)

// Options bundles a room's construction-time configuration (spec §6.3).
type Options struct {
	LandID              core.LandID
	EnableLegacyJoin    bool
	ExpectedSchemaHash  string
	CreateGuestSession  bool
	UseSnapshotForSync  bool
	EnableDirtyTracking bool
	ParallelEncoding    ParallelEncodingOptions
	AutoDirtyTracking   AutoDirtyTrackingOptions
}

type ParallelEncodingOptions struct {
	Enabled      bool
	MinPlayers   int
	BatchSize    int
	SmallRoomCap int
	LargeRoomCap int
}

type AutoDirtyTrackingOptions struct {
	Enabled         bool
	OnThreshold     float64
	OffThreshold    float64
	RequiredSamples int
}

// Adapter is the per-room orchestrator. All exported methods submit their
// work onto the single task channel, so the struct's own fields are only
// ever touched from the task goroutine.
type Adapter struct {
	opts   Options
	keeper core.LandKeeper
	send   Sender
	codecs wire.CodecPair

	membership *membership.Coordinator
	engine     *syncengine.Engine
	pending    *syncengine.PendingEvents

	sessionJoined map[core.SessionID]core.PlayerID
	initialSync   map[core.PlayerID]struct{}
	syncRunning   bool

	dirtyTrackingOn bool
	dirtyEMA        float64
	dirtySamples    int

	metrics *metrics.Metrics
	log     *logrus.Entry

	tasks chan func()
	stop  chan struct{}
	wg    sync.WaitGroup
}

// New constructs an Adapter and starts its serialized task loop.
func New(opts Options, keeper core.LandKeeper, send Sender, codecs wire.CodecPair, m *metrics.Metrics) *Adapter {
	a := &Adapter{
		opts:            opts,
		keeper:          keeper,
		send:            send,
		codecs:          codecs,
		membership:      membership.NewCoordinator(),
		engine:          syncengine.NewEngine(),
		pending:         syncengine.NewPendingEvents(),
		sessionJoined:   make(map[core.SessionID]core.PlayerID),
		initialSync:     make(map[core.PlayerID]struct{}),
		dirtyTrackingOn: opts.EnableDirtyTracking,
		metrics:         m,
		log:             logrus.WithFields(logrus.Fields{"component": "adapter", "land": opts.LandID.String()}),
		tasks:           make(chan func(), 256),
		stop:            make(chan struct{}),
	}
	keeper.SetLandID(opts.LandID.String())
	keeper.SetTransport(a)
	a.wg.Add(1)
	go a.run()
	return a
}

func (a *Adapter) run() {
	defer a.wg.Done()
	for {
		select {
		case task := <-a.tasks:
			task()
		case <-a.stop:
			for {
				select {
				case task := <-a.tasks:
					task()
				default:
					return
				}
			}
		}
	}
}

// submit enqueues fn for serialized execution without waiting.
func (a *Adapter) submit(fn func()) {
	select {
	case a.tasks <- fn:
	case <-a.stop:
	}
}

// submitSync enqueues fn and blocks until it has run, preserving ordering
// relative to every other submitted task.
func (a *Adapter) submitSync(fn func()) {
	done := make(chan struct{})
	a.submit(func() {
		fn()
		close(done)
	})
	<-done
}

// Shutdown stops the task loop after draining anything already queued.
func (a *Adapter) Shutdown() {
	close(a.stop)
	a.wg.Wait()
}

// OnConnect registers a freshly accepted, not-yet-joined session (spec §4.6.1).
func (a *Adapter) OnConnect(sid core.SessionID, cid core.ClientID, authInfo map[string]interface{}) {
	a.submit(func() {
		a.membership.RegisterClient(sid, cid, authInfo)
	})
}

// OnDisconnect tears down a session's membership, asks the keeper to run
// its leave handler, clears sync caches, and releases the player slot
// (spec §4.6.1). Running inside the adapter's single task loop gives it
// the membership-queue ordering guarantee of spec §4.6.2 for free: a
// disconnect enqueued before the next join for the same player always
// completes first.
func (a *Adapter) OnDisconnect(sid core.SessionID, cid core.ClientID) {
	a.submit(func() {
		a.handleDisconnect(sid, cid)
	})
}

func (a *Adapter) handleDisconnect(sid core.SessionID, cid core.ClientID) {
	pid, joined := a.membership.PlayerIDFor(sid)
	a.membership.RemoveJoinedPlayer(sid)
	a.membership.UnregisterSession(sid)
	delete(a.sessionJoined, sid)

	if !joined {
		return
	}

	a.send.UnbindPlayer(pid, sid)

	if err := a.keeper.Leave(context.Background(), pid, cid); err != nil {
		a.log.WithError(err).WithField("player", pid).Warn("keeper leave handler failed")
	}

	if len(a.membership.SessionIDsFor(pid)) == 0 {
		a.engine.ClearCacheForDisconnectedPlayer(pid)
		delete(a.initialSync, pid)
		a.membership.ReleasePlayerSlot(pid)
	}
}

// SendEvent implements spec §4.6.9: in merged-event mode, queue a
// MessagePack-encodable event for the next sync's 107 frame; otherwise
// encode and send a standalone event frame immediately.
func (a *Adapter) SendEvent(event core.EventMessage, target core.EventTarget) {
	a.submit(func() {
		a.sendEventLocked(event, target)
	})
}

func (a *Adapter) sendEventLocked(event core.EventMessage, target core.EventTarget) {
	if a.codecs.MergeCapable {
		if body, ok := a.tryEncodeEventBody(event); ok {
			switch target.Kind {
			case core.TargetBroadcast:
				a.pending.QueueBroadcast(body)
			default:
				a.pending.QueueTargeted(target, body, a.currentStampFor(target))
			}
			return
		}
	}

	raw, err := a.codecs.Message.EncodeEvent(event)
	if err != nil {
		a.log.WithError(err).Warn("failed to encode standalone event frame")
		return
	}
	a.send.Send(target, raw)
}

// currentStampFor returns the membership stamp a targeted pending event
// should carry, or nil for broadcast-shaped targets (spec §3: "Broadcast
// events carry no stamp").
func (a *Adapter) currentStampFor(target core.EventTarget) *core.MembershipStamp {
	var pid core.PlayerID
	switch target.Kind {
	case core.TargetPlayer:
		pid = target.Player
	case core.TargetSession:
		p, ok := a.membership.PlayerIDFor(target.Session)
		if !ok {
			return nil
		}
		pid = p
	default:
		return nil
	}
	return &core.MembershipStamp{Player: pid, Version: a.membership.CurrentVersion(pid)}
}

func (a *Adapter) tryEncodeEventBody(event core.EventMessage) ([]byte, bool) {
	raw, err := a.codecs.Message.EncodeEvent(event)
	if err != nil {
		return nil, false
	}
	return raw, true
}
