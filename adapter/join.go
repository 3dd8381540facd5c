package adapter

import (
	"context"
	"errors"

	"landsync/core"
	"landsync/syncengine"
	"landsync/wire"
)

// HandleJoin runs the join protocol of spec §4.6.3 for a decoded join
// frame arriving on sid. In router-managed mode the router has already
// resolved the land; this entry point is used both there and by the
// legacy single-room onMessage path (§4.6.8).
func (a *Adapter) HandleJoin(sid core.SessionID, cid core.ClientID, authInfo map[string]interface{}, msg core.JoinMessage) {
	a.submit(func() {
		a.handleJoin(sid, cid, authInfo, msg)
	})
}

func (a *Adapter) handleJoin(sid core.SessionID, cid core.ClientID, authInfo map[string]interface{}, msg core.JoinMessage) {
	if _, joined := a.sessionJoined[sid]; joined {
		a.sendError(sid, core.CodeJoinAlreadyJoined, "session is already joined", nil)
		return
	}
	if _, known := a.membership.ClientIDFor(sid); !known {
		a.sendError(sid, core.CodeJoinSessionNotConnected, "session is not connected", nil)
		return
	}

	if a.opts.EnableLegacyJoin {
		requested := core.NewLandID(msg.LandType, msg.LandInstanceID)
		if requested != a.opts.LandID {
			a.sendError(sid, core.CodeJoinLandIDMismatch, "requested land does not match this room", map[string]interface{}{
				"expected": a.opts.LandID.String(), "received": requested.String(),
			})
			return
		}
	}

	if a.opts.ExpectedSchemaHash != "" {
		received, _ := msg.SchemaHash()
		if received != a.opts.ExpectedSchemaHash {
			a.sendError(sid, core.CodeJoinSchemaHashMismatch, "schema hash mismatch", map[string]interface{}{
				"expected": a.opts.ExpectedSchemaHash, "received": received,
			})
			return
		}
	}

	playerID := resolvePlayerID(msg, authInfo, sid, a.opts.CreateGuestSession)
	deviceID := firstNonEmpty(msg.DeviceID, stringField(authInfo, "deviceID"))
	metadata := mergeMetadata(msg.Metadata, authInfo)

	if prevSID, already := a.membership.FirstSessionFor(playerID); already {
		prevCID, _ := a.membership.ClientIDFor(prevSID)
		a.handleDisconnect(prevSID, prevCID)
		a.send.Disconnect(prevSID)
	}

	services := core.JoinServices{PlayerCount: a.keeper.PlayerCount, DeviceID: deviceID, Metadata: metadata}
	decision, err := a.keeper.Join(context.Background(), playerID, cid, sid, services)
	if err != nil {
		a.rollbackAndReportJoinError(sid, err)
		return
	}
	if !decision.Allowed {
		a.sendError(sid, core.CodeJoinDenied, "join denied", nil)
		return
	}
	playerID = decision.Player

	stamp := a.membership.RegisterPlayer(sid, playerID, metadata)
	slot := a.membership.AllocatePlayerSlot(string(playerID), playerID)
	if slot == core.NoSlot {
		a.membership.RemoveJoinedPlayer(sid)
		a.sendError(sid, core.CodeJoinRoomFull, "player slot table is full", nil)
		return
	}

	a.sessionJoined[sid] = playerID
	a.send.BindPlayer(playerID, sid)

	resp := core.JoinResponseMessage{
		RequestID:      msg.RequestID,
		Success:        true,
		LandType:       a.opts.LandID.LandType,
		LandInstanceID: a.opts.LandID.InstanceID,
		PlayerSlot:     int32(slot),
		Encoding:       a.codecs.Message.Name(),
	}
	a.sendJoinResponse(sid, resp)

	a.runFirstSync(sid, playerID, stamp)
}

func (a *Adapter) rollbackAndReportJoinError(sid core.SessionID, err error) {
	a.membership.RemoveJoinedPlayer(sid)
	switch {
	case errors.Is(err, core.ErrRoomIsFull):
		a.sendError(sid, core.CodeJoinRoomFull, "room is full", nil)
	default:
		a.sendError(sid, core.CodeJoinDenied, err.Error(), nil)
	}
}

// runFirstSync implements spec §4.6.4: obtain state, seed the per-player
// cache, diff from empty, encode with the per-player scope (resetting the
// dynamic-key dictionary so the new joiner never sees an undefined slot),
// send, and mark firstSync received. While inside this window the player
// is excluded from regular periodic syncs.
func (a *Adapter) runFirstSync(sid core.SessionID, player core.PlayerID, _ core.MembershipStamp) {
	a.initialSync[player] = struct{}{}
	defer delete(a.initialSync, player)

	state, err := a.keeper.CurrentState(context.Background())
	if err != nil {
		a.log.WithError(err).WithField("player", player).Warn("failed to obtain state for first sync")
		return
	}

	broadcast := syncengine.ExtractBroadcastSnapshot(state, syncengine.AllFieldsMode())
	perPlayer := syncengine.ExtractPerPlayerSnapshot(player, state, syncengine.AllFieldsMode())
	patches := a.engine.LateJoinSnapshot(player, broadcast, perPlayer)

	scope := wire.Scope{Land: a.opts.LandID.String(), Recipient: string(player)}
	a.codecs.StateUpdate.ResetScope(scope)

	// The new joiner is about to start receiving merged broadcast frames
	// keyed off the shared broadcast scope's dynamic-key dictionary. That
	// dictionary may have already taught abbreviations to players who
	// joined earlier; reset it so every joined session (old and new) is
	// re-taught from scratch on the next broadcast diff, the same
	// correctness guarantee ResetScope gives this player's own scope above.
	broadcastScope := wire.Scope{Land: a.opts.LandID.String(), Recipient: wire.BroadcastScope}
	a.codecs.StateUpdate.ResetScope(broadcastScope)

	raw, err := a.codecs.StateUpdate.Encode(core.StateUpdate{Kind: core.UpdateFirstSync, Patches: patches}, scope)
	if err != nil {
		a.log.WithError(err).WithField("player", player).Warn("failed to encode first sync")
		return
	}

	a.send.Send(core.TargetToSession(sid), raw)
	a.engine.MarkFirstSyncReceived(player)
}

func (a *Adapter) sendJoinResponse(sid core.SessionID, resp core.JoinResponseMessage) {
	raw, err := a.codecs.Message.EncodeJoinResponse(resp)
	if err != nil {
		a.log.WithError(err).Warn("failed to encode join response")
		return
	}
	a.send.Send(core.TargetToSession(sid), raw)
}

func (a *Adapter) sendError(sid core.SessionID, code core.ErrorCode, message string, details map[string]interface{}) {
	raw, err := a.codecs.Message.EncodeError(core.ErrorMessage{Code: code, Message: message, Details: details})
	if err != nil {
		a.log.WithError(err).Warn("failed to encode error frame")
		return
	}
	if a.metrics != nil && len(code) >= 5 && code[:5] == "JOIN_" {
		a.metrics.RecordJoinResult(string(code))
	}
	a.send.Send(core.TargetToSession(sid), raw)
}

// resolvePlayerID picks requestedPlayerID > authInfo.playerID > guest
// sessionID > raw sessionID, per spec §4.6.3's priority union rule.
func resolvePlayerID(msg core.JoinMessage, authInfo map[string]interface{}, sid core.SessionID, createGuest bool) core.PlayerID {
	if msg.PlayerID != "" {
		return core.PlayerID(msg.PlayerID)
	}
	if v := stringField(authInfo, "playerID"); v != "" {
		return core.PlayerID(v)
	}
	if createGuest {
		return core.PlayerID(sid)
	}
	return core.PlayerID(sid)
}

func stringField(m map[string]interface{}, key string) string {
	if m == nil {
		return ""
	}
	v, ok := m[key].(string)
	if !ok {
		return ""
	}
	return v
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// mergeMetadata unions client-supplied metadata over authInfo, with the
// client's values winning per field (spec §4.6.3).
func mergeMetadata(clientMeta map[string]interface{}, authInfo map[string]interface{}) map[string]interface{} {
	merged := make(map[string]interface{}, len(clientMeta)+len(authInfo))
	for k, v := range authInfo {
		merged[k] = v
	}
	for k, v := range clientMeta {
		merged[k] = v
	}
	return merged
}
