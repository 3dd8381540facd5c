package adapter

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"

	"landsync/core"
	"landsync/wire"
)

// OnMessage decodes an inbound frame and dispatches it by kind (spec
// §4.6.8). In legacy single-room mode a join frame is handled directly
// here; in router-managed mode the router intercepts join frames before
// they ever reach the bound adapter.
func (a *Adapter) OnMessage(sid core.SessionID, cid core.ClientID, authInfo map[string]interface{}, raw []byte) {
	a.submit(func() {
		a.onMessage(sid, cid, authInfo, raw)
	})
}

func (a *Adapter) onMessage(sid core.SessionID, cid core.ClientID, authInfo map[string]interface{}, raw []byte) {
	decoded, err := a.codecs.Message.Decode(raw)
	if err != nil {
		a.sendError(sid, core.CodeInvalidMessageFormat, "could not decode frame", nil)
		return
	}

	switch decoded.Kind {
	case core.KindJoin:
		if !a.opts.EnableLegacyJoin {
			a.log.WithField("session", sid).Warn("received join frame in router-managed mode")
			return
		}
		msg, err := wire.DecodeJoinFrame(raw)
		if err != nil {
			a.sendError(sid, core.CodeInvalidJSON, "malformed join frame", nil)
			return
		}
		a.handleJoin(sid, cid, authInfo, msg)

	case core.KindJoinResponse, core.KindError:
		a.log.WithField("session", sid).WithField("kind", decoded.Kind).Warn("received server-only frame kind from client, discarding")

	case core.KindAction:
		a.handleAction(sid, decoded.Raw)

	case core.KindEvent:
		a.handleEvent(sid, decoded.Raw)

	default:
		a.sendError(sid, core.CodeInvalidMessageFormat, "unknown message kind", nil)
	}
}

func (a *Adapter) handleAction(sid core.SessionID, raw []byte) {
	pid, cid, ok := a.requireJoinedCurrent(sid)
	if !ok {
		return
	}

	action, err := a.codecs.Message.DecodeActionPayload(raw)
	if err != nil {
		a.sendError(sid, core.CodeInvalidMessageFormat, "malformed action payload", nil)
		return
	}

	payload, err := base64.StdEncoding.DecodeString(action.PayloadB64)
	if err != nil {
		a.sendError(sid, core.CodeInvalidMessageFormat, "malformed base64 action payload", nil)
		return
	}

	response, err := a.keeper.HandleAction(context.Background(), action.RequestID, action.TypeIdentifier, payload, pid, cid, sid)
	if err != nil {
		if errors.Is(err, core.ErrActionNotFound) {
			a.sendError(sid, core.CodeActionNotRegistered, "action not registered", map[string]interface{}{"typeIdentifier": action.TypeIdentifier})
			return
		}
		a.sendError(sid, core.CodeActionHandlerError, err.Error(), nil)
		return
	}

	raw2, err := a.codecs.Message.EncodeActionResponse(action.RequestID, response)
	if err != nil {
		a.log.WithError(err).Warn("failed to encode action response")
		return
	}
	a.send.Send(core.TargetToSession(sid), raw2)
}

func (a *Adapter) handleEvent(sid core.SessionID, raw []byte) {
	pid, cid, ok := a.requireJoinedCurrent(sid)
	if !ok {
		return
	}

	event, err := a.codecs.Message.DecodeEventPayload(raw)
	if err != nil || event.FromClient == nil {
		a.sendError(sid, core.CodeInvalidMessageFormat, "malformed event payload", nil)
		return
	}

	payload, err := marshalEventPayload(event.FromClient.Payload)
	if err != nil {
		a.sendError(sid, core.CodeInvalidMessageFormat, "could not marshal event payload", nil)
		return
	}
	if err := a.keeper.HandleEvent(context.Background(), event.FromClient.Type, payload, pid, cid, sid); err != nil {
		a.sendError(sid, core.CodeEventHandlerError, err.Error(), nil)
	}
}

// requireJoinedCurrent implements spec §4.6.8's require-joined-and-current
// guard: the session must be joined and its stamp must still match the
// player's current version, else the frame is silently discarded.
func (a *Adapter) requireJoinedCurrent(sid core.SessionID) (core.PlayerID, core.ClientID, bool) {
	pid, joined := a.membership.PlayerIDFor(sid)
	if !joined {
		a.log.WithField("session", sid).Debug("action/event from non-joined session, discarding")
		return "", "", false
	}
	if !a.membership.IsSessionCurrent(sid, a.membership.CurrentVersion(pid)) {
		a.log.WithField("session", sid).Debug("action/event from session with stale membership, discarding")
		return "", "", false
	}
	cid, _ := a.membership.ClientIDFor(sid)
	return pid, cid, true
}

func marshalEventPayload(payload interface{}) ([]byte, error) {
	if payload == nil {
		return nil, nil
	}
	if b, ok := payload.([]byte); ok {
		return b, nil
	}
	if s, ok := payload.(string); ok {
		return []byte(s), nil
	}
	return json.Marshal(payload)
}
