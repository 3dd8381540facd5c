// Package transport implements WebSocketTransport (spec component C2): the
// connection registry, per-session drain workers, and process-wide batch
// buffer that decouples room sync producers from the network. Grounded on
// the teacher's wsConnection mutex wrapper and origin-checking upgrader in
// pkg/server/websocket.go, generalized from one room to many.
package transport

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"landsync/core"
	"landsync/internal/metrics"
	"landsync/internal/ratelog"
	"landsync/internal/retry"
)

// Delegate receives lifecycle notifications. In practice this is a
// LandRouter (spec §4.8).
type Delegate interface {
	OnDisconnect(sid core.SessionID, cid core.ClientID)
}

// wsConnection mirrors the teacher's mutex-guarded gorilla connection
// wrapper: every write goes through mu so the per-session drain goroutine
// never races a concurrent close.
type wsConnection struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *wsConnection) writeMessage(messageType int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteMessage(messageType, data)
}

func (c *wsConnection) close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.Close()
}

type sessionEntry struct {
	conn     *wsConnection
	clientID core.ClientID
	queue    chan []byte
	done     chan struct{}
}

const sessionQueueCapacity = 500

// Transport owns the connection registry and drain workers for every
// session the gateway has accepted, across all rooms.
type Transport struct {
	mu       sync.RWMutex
	sessions map[core.SessionID]*sessionEntry
	players  map[core.PlayerID]map[core.SessionID]struct{}

	batchMu    sync.Mutex
	batchQueue []batchItem
	batchSize  int
	idleSleep  time.Duration
	stopBatch  chan struct{}

	delegate Delegate
	limiter  *ratelog.Limiter
	metrics  *metrics.Metrics
	sender   *retry.Retrier

	upgrader websocket.Upgrader
}

// Config carries the construction-time knobs a Transport needs.
type Config struct {
	DrainBatchSize int
	DrainIdleSleep time.Duration
	OriginAllowed  func(origin string) bool
	Metrics        *metrics.Metrics
}

func New(cfg Config, delegate Delegate) *Transport {
	t := &Transport{
		sessions:  make(map[core.SessionID]*sessionEntry),
		players:   make(map[core.PlayerID]map[core.SessionID]struct{}),
		batchSize: cfg.DrainBatchSize,
		idleSleep: cfg.DrainIdleSleep,
		stopBatch: make(chan struct{}),
		delegate:  delegate,
		limiter:   ratelog.New(),
		metrics:   cfg.Metrics,
		sender:    retry.NewRetrier(retry.SendConfig()),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				allowed := cfg.OriginAllowed == nil || cfg.OriginAllowed(origin)
				if !allowed {
					logrus.WithField("origin", origin).Warn("websocket connection rejected: origin not allowed")
				}
				return allowed
			},
		},
	}
	if t.batchSize <= 0 {
		t.batchSize = 64
	}
	if t.idleSleep <= 0 {
		t.idleSleep = time.Millisecond
	}
	go t.runBatchDrain()
	return t
}

// SetDelegate installs the lifecycle delegate. Exists because a land's
// Adapter (the usual delegate) is itself constructed with a reference to
// its Transport, making the two mutually dependent at construction time;
// the land manager builds the Transport first, then wires the Adapter in
// afterward.
func (t *Transport) SetDelegate(delegate Delegate) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.delegate = delegate
}

// Upgrade upgrades an HTTP request to a WebSocket connection, registers a
// new session, and starts its drain worker. The returned read loop is the
// caller's responsibility (onMessage callback passed to ReadLoop).
func (t *Transport) Upgrade(w http.ResponseWriter, r *http.Request, sid core.SessionID, cid core.ClientID) (*websocket.Conn, error) {
	conn, err := t.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, err
	}

	entry := &sessionEntry{
		conn:     &wsConnection{conn: conn},
		clientID: cid,
		queue:    make(chan []byte, sessionQueueCapacity),
		done:     make(chan struct{}),
	}

	t.mu.Lock()
	t.sessions[sid] = entry
	t.mu.Unlock()

	if t.metrics != nil {
		t.metrics.RecordWSConnection("accepted")
	}

	go t.drainSession(sid, entry)
	return conn, nil
}

// ReadLoop blocks reading frames from sid's connection and invokes onFrame
// for each; it returns when the connection closes, after which the caller
// should invoke Disconnect.
func (t *Transport) ReadLoop(conn *websocket.Conn, onFrame func(raw []byte)) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		onFrame(data)
	}
}

// drainSession is the per-session single-consumer worker: it awaits the
// connection's send primitive so producers never block on the network. A
// failed write is retried once after a short delay (transient kernel-buffer
// pressure, not a closed socket) before being treated as connection loss.
func (t *Transport) drainSession(sid core.SessionID, entry *sessionEntry) {
	for {
		select {
		case data, ok := <-entry.queue:
			if !ok {
				return
			}
			err := t.sender.Execute(context.Background(), func(context.Context) error {
				return entry.conn.writeMessage(websocket.TextMessage, data)
			})
			if err != nil {
				t.Disconnect(sid)
				return
			}
		case <-entry.done:
			return
		}
	}
}

// Enqueue deposits a frame for sid's drain worker without blocking the
// caller. Silently drops and rate-logs if sid is unknown.
func (t *Transport) Enqueue(sid core.SessionID, data []byte) {
	t.mu.RLock()
	entry, ok := t.sessions[sid]
	t.mu.RUnlock()
	if !ok {
		t.limiter.Warn(string(sid), logrus.Fields{"session": sid}, "dropped send: unknown session")
		return
	}
	select {
	case entry.queue <- data:
	default:
		t.limiter.Warn(string(sid), logrus.Fields{"session": sid}, "dropped send: session queue full")
	}
}

// batchItem pairs a destination session with its payload in the shared
// process-wide buffer.
type batchItem struct {
	sid  core.SessionID
	data []byte
}

// SendBatch deposits many items into the shared batch buffer in one hop;
// the global drain worker redistributes them to per-session queues. This
// lets a room's sync cycle enqueue every player's frame without awaiting
// each individual per-session send.
func (t *Transport) SendBatch(items map[core.SessionID][]byte) {
	t.batchMu.Lock()
	for sid, data := range items {
		t.batchQueue = append(t.batchQueue, batchItem{sid: sid, data: data})
	}
	t.batchMu.Unlock()
}

// runBatchDrain pops up to batchSize items per iteration and re-dispatches
// each to its session's queue, sleeping briefly when the buffer is empty
// (spec §4.2).
func (t *Transport) runBatchDrain() {
	for {
		select {
		case <-t.stopBatch:
			return
		default:
		}
		items := t.popBatch(t.batchSize)
		if len(items) == 0 {
			time.Sleep(t.idleSleep)
			continue
		}
		for _, item := range items {
			t.Enqueue(item.sid, item.data)
		}
	}
}

func (t *Transport) popBatch(n int) []batchItem {
	t.batchMu.Lock()
	defer t.batchMu.Unlock()
	if len(t.batchQueue) == 0 {
		return nil
	}
	if n > len(t.batchQueue) {
		n = len(t.batchQueue)
	}
	items := t.batchQueue[:n]
	t.batchQueue = t.batchQueue[n:]
	return items
}

// Disconnect finishes sid's queue, removes its mappings, and fires
// onDisconnect to the delegate. Idempotent: a second call for an already
// removed session is a no-op (spec §8 boundary property).
func (t *Transport) Disconnect(sid core.SessionID) {
	t.mu.Lock()
	entry, ok := t.sessions[sid]
	if !ok {
		t.mu.Unlock()
		return
	}
	delete(t.sessions, sid)
	for pid, set := range t.players {
		if _, present := set[sid]; present {
			delete(set, sid)
			if len(set) == 0 {
				delete(t.players, pid)
			}
		}
	}
	t.mu.Unlock()

	close(entry.done)
	_ = entry.conn.close()

	if t.metrics != nil {
		t.metrics.RecordWSConnection("closed")
	}
	t.mu.RLock()
	delegate := t.delegate
	t.mu.RUnlock()
	if delegate != nil {
		delegate.OnDisconnect(sid, entry.clientID)
	}
}

// BindPlayer records that sid is one of pid's active connections, used by
// player-targeted sends.
func (t *Transport) BindPlayer(pid core.PlayerID, sid core.SessionID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.players[pid] == nil {
		t.players[pid] = make(map[core.SessionID]struct{})
	}
	t.players[pid][sid] = struct{}{}
}

// UnbindPlayer removes the sid/pid association without touching the
// connection itself.
func (t *Transport) UnbindPlayer(pid core.PlayerID, sid core.SessionID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if set := t.players[pid]; set != nil {
		delete(set, sid)
		if len(set) == 0 {
			delete(t.players, pid)
		}
	}
}

// Send resolves target against the current connection/player registry and
// enqueues data to every matching, currently-known session. Unknown
// sessions/players are silently dropped with a rate-limited warning (spec
// §4.2: >=2s between repeat warnings per ID, soft cap 5000 distinct IDs —
// both enforced inside internal/ratelog.Limiter).
func (t *Transport) Send(target core.EventTarget, data []byte) {
	for _, sid := range t.resolveTarget(target) {
		t.Enqueue(sid, data)
	}
}

func (t *Transport) resolveTarget(target core.EventTarget) []core.SessionID {
	t.mu.RLock()
	defer t.mu.RUnlock()

	switch target.Kind {
	case core.TargetSession:
		if _, ok := t.sessions[target.Session]; ok {
			return []core.SessionID{target.Session}
		}
		t.limiter.Warn(string(target.Session), logrus.Fields{"session": target.Session}, "target session not connected")
		return nil
	case core.TargetPlayer:
		return t.sessionsForPlayerLocked(target.Player)
	case core.TargetBroadcast:
		out := make([]core.SessionID, 0, len(t.sessions))
		for sid := range t.sessions {
			out = append(out, sid)
		}
		return out
	case core.TargetBroadcastExcept:
		out := make([]core.SessionID, 0, len(t.sessions))
		for sid := range t.sessions {
			if sid != target.ExceptSession {
				out = append(out, sid)
			}
		}
		return out
	case core.TargetPlayers:
		var out []core.SessionID
		for _, pid := range target.Players {
			out = append(out, t.sessionsForPlayerLocked(pid)...)
		}
		return out
	default:
		return nil
	}
}

func (t *Transport) sessionsForPlayerLocked(pid core.PlayerID) []core.SessionID {
	set := t.players[pid]
	if len(set) == 0 {
		t.limiter.Warn(string(pid), logrus.Fields{"player": pid}, "target player not connected")
		return nil
	}
	out := make([]core.SessionID, 0, len(set))
	for sid := range set {
		out = append(out, sid)
	}
	return out
}

// Shutdown cancels every per-session drain worker, finishes all queues,
// and closes connections (spec §5 cancellation policy on room shutdown).
func (t *Transport) Shutdown() {
	close(t.stopBatch)
	t.mu.Lock()
	sessions := make([]core.SessionID, 0, len(t.sessions))
	for sid := range t.sessions {
		sessions = append(sessions, sid)
	}
	t.mu.Unlock()
	for _, sid := range sessions {
		t.Disconnect(sid)
	}
}
