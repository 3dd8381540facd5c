// Package router implements LandRouter (spec component C8): the front door
// that accepts WebSocket connections, tracks session bookkeeping orthogonal
// to any single room, dispatches join frames to the right LandManager, and
// forwards every other frame to the session's bound room adapter. Grounded
// on the teacher's HandleWebSocket upgrade/loop (pkg/server/websocket.go)
// and its session-map bookkeeping (pkg/server/server.go), generalized from
// one room to many behind a single shared Transport.
package router

import (
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"landsync/core"
	"landsync/internal/config"
	"landsync/internal/metrics"
	"landsync/land"
	"landsync/transport"
	"landsync/wire"
)

// sessionRecord is the router's view of one connection: who it is and which
// land, if any, it has joined (spec §4.8).
type sessionRecord struct {
	clientID core.ClientID
	authInfo map[string]interface{}
	bound    *core.LandID
}

// RoomConfigFor resolves the per-room construction config for a landType,
// e.g. from a static table or a config file (spec §6.3).
type RoomConfigFor func(landType string) config.RoomConfig

var _ transport.Delegate = (*Router)(nil)

// Router is the LandRouter: one shared Transport plus the front-door
// session/binding bookkeeping and join dispatch logic.
type Router struct {
	mu       sync.RWMutex
	sessions map[core.SessionID]*sessionRecord

	managers      map[string]*land.Manager
	roomConfigFor RoomConfigFor

	transport *transport.Transport
	log       *logrus.Entry
	metrics   *metrics.Metrics
}

// New builds a Router with its own shared Transport (the Router is that
// Transport's Delegate, receiving every onDisconnect notification) and the
// set of per-land-type managers it dispatches joins to.
func New(cfg transport.Config, managers map[string]*land.Manager, roomConfigFor RoomConfigFor, m *metrics.Metrics) *Router {
	r := &Router{
		sessions:      make(map[core.SessionID]*sessionRecord),
		managers:      managers,
		roomConfigFor: roomConfigFor,
		metrics:       m,
		log:           logrus.WithField("component", "router"),
	}
	r.transport = transport.New(cfg, r)
	return r
}

// Transport returns the shared Transport the router was built with, for use
// by the HTTP layer wiring up the upgrade endpoint.
func (r *Router) Transport() *transport.Transport { return r.transport }

// ServeWebSocket upgrades r's request to a WebSocket connection, assigns a
// fresh SessionID/ClientID, and runs the read loop until the connection
// closes. Mirrors the teacher's HandleWebSocket entry point, generalized
// from one room's handler to the shared front door.
func (rt *Router) ServeWebSocket(w http.ResponseWriter, r *http.Request, authInfo map[string]interface{}) {
	sid := core.SessionID(uuid.NewString())
	cid := core.ClientID(uuid.NewString()[:6])

	conn, err := rt.transport.Upgrade(w, r, sid, cid)
	if err != nil {
		rt.log.WithError(err).Warn("websocket upgrade failed")
		return
	}

	rt.OnConnect(sid, cid, authInfo)
	rt.transport.ReadLoop(conn, func(raw []byte) {
		rt.OnMessage(sid, raw)
	})
	rt.transport.Disconnect(sid)
}

// OnConnect records a freshly accepted, not-yet-joined session (spec §4.8:
// "no room is chosen yet").
func (r *Router) OnConnect(sid core.SessionID, cid core.ClientID, authInfo map[string]interface{}) {
	r.mu.Lock()
	r.sessions[sid] = &sessionRecord{clientID: cid, authInfo: authInfo}
	r.mu.Unlock()
	r.log.WithFields(logrus.Fields{"session": sid, "client": cid}).Info("session connected")
}

// OnDisconnect implements transport.Delegate: it notifies the bound room's
// adapter, if any, then drops the router's own mappings (spec §4.8).
func (r *Router) OnDisconnect(sid core.SessionID, cid core.ClientID) {
	r.mu.Lock()
	rec, ok := r.sessions[sid]
	delete(r.sessions, sid)
	r.mu.Unlock()
	if !ok {
		return
	}

	if rec.bound != nil {
		if c, ok := r.containerFor(*rec.bound); ok {
			c.Adapter.OnDisconnect(sid, cid)
		}
	}
}

// OnMessage dispatches one inbound frame per spec §4.8: join frames from an
// unbound session choose/create a land; everything else forwards to the
// bound room, or reports the appropriate connection-state error.
func (r *Router) OnMessage(sid core.SessionID, raw []byte) {
	r.mu.RLock()
	rec, ok := r.sessions[sid]
	var bound *core.LandID
	if ok {
		bound = rec.bound
	}
	r.mu.RUnlock()
	if !ok {
		r.log.WithField("session", sid).Warn("message from unregistered session, discarding")
		return
	}

	if bound == nil {
		r.handleUnboundMessage(sid, rec, raw)
		return
	}
	r.forwardToBoundRoom(sid, rec, *bound, raw)
}

func (r *Router) handleUnboundMessage(sid core.SessionID, rec *sessionRecord, raw []byte) {
	codec := wire.NewJSONMessageCodec()
	decoded, err := codec.Decode(raw)
	if err != nil {
		r.sendError(sid, core.CodeInvalidMessageFormat, "malformed frame", nil)
		return
	}
	if decoded.Kind != core.KindJoin {
		r.sendError(sid, core.CodeJoinSessionNotConnected, "session has not joined a room", nil)
		return
	}
	msg, err := codec.DecodeJoinPayload(decoded.Raw)
	if err != nil {
		r.sendError(sid, core.CodeInvalidMessageFormat, "malformed join frame", nil)
		return
	}
	r.handleJoin(sid, rec, msg)
}

// handleJoin resolves the target land (existing instance or a freshly
// created one), binds the session, and delegates the rest of the join
// protocol to the room's adapter (spec §4.8).
func (r *Router) handleJoin(sid core.SessionID, rec *sessionRecord, msg core.JoinMessage) {
	mgr, ok := r.managers[msg.LandType]
	if !ok {
		r.sendError(sid, core.CodeJoinRoomNotFound, "unknown land type", map[string]interface{}{"landType": msg.LandType})
		return
	}

	landID, ok := r.resolveLandID(mgr, msg)
	if !ok {
		r.sendError(sid, core.CodeJoinRoomNotFound, "requested land instance does not exist", map[string]interface{}{
			"landType": msg.LandType, "landInstanceId": msg.LandInstanceID,
		})
		return
	}

	roomCfg := config.DefaultRoomConfig(msg.LandType)
	if r.roomConfigFor != nil {
		roomCfg = r.roomConfigFor(msg.LandType)
	}

	container, err := mgr.GetOrCreateLand(landID, roomCfg)
	if err != nil {
		r.sendError(sid, core.CodeJoinDenied, err.Error(), nil)
		return
	}

	r.mu.Lock()
	rec.bound = &landID
	r.mu.Unlock()

	container.Adapter.HandleJoin(sid, rec.clientID, rec.authInfo, msg)
}

// resolveLandID implements spec §4.8's instance resolution: an explicit
// instanceId must already exist, otherwise a fresh one is generated.
func (r *Router) resolveLandID(mgr *land.Manager, msg core.JoinMessage) (core.LandID, bool) {
	if msg.LandInstanceID != "" {
		id := core.NewLandID(msg.LandType, msg.LandInstanceID)
		if _, ok := mgr.GetLand(id); !ok {
			return core.LandID{}, false
		}
		return id, true
	}
	return core.NewLandID(msg.LandType, uuid.NewString()), true
}

func (r *Router) forwardToBoundRoom(sid core.SessionID, rec *sessionRecord, bound core.LandID, raw []byte) {
	c, ok := r.containerFor(bound)
	if !ok {
		r.clearStaleBinding(sid, rec)
		return
	}
	c.Adapter.OnMessage(sid, rec.clientID, rec.authInfo, raw)
}

func (r *Router) containerFor(id core.LandID) (*land.Container, bool) {
	mgr, ok := r.managers[id.LandType]
	if !ok {
		return nil, false
	}
	return mgr.GetLand(id)
}

// clearStaleBinding implements spec §4.8's "if the bound land has been
// removed since, reply JOIN_ROOM_NOT_FOUND and clear the stale binding".
func (r *Router) clearStaleBinding(sid core.SessionID, rec *sessionRecord) {
	r.mu.Lock()
	rec.bound = nil
	r.mu.Unlock()
	r.sendError(sid, core.CodeJoinRoomNotFound, "room no longer exists", nil)
}

func (r *Router) sendError(sid core.SessionID, code core.ErrorCode, message string, details map[string]interface{}) {
	raw, err := wire.NewJSONMessageCodec().EncodeError(core.ErrorMessage{Code: code, Message: message, Details: details})
	if err != nil {
		r.log.WithError(err).Warn("failed to encode router-level error frame")
		return
	}
	r.transport.Send(core.TargetToSession(sid), raw)
}

// Shutdown tears down the shared transport, disconnecting every session.
func (r *Router) Shutdown() {
	r.transport.Shutdown()
}
