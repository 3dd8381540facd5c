// Package syncengine implements PendingEventManager (C4) and SyncEngine
// (C5): the per-room event buffer and snapshot-diff machinery that turns
// LandKeeper state into wire-ready StateUpdates, adapted from the pub/sub
// event bus and nested-state traversal patterns this engine was built on.
package syncengine

import "landsync/core"

// pendingTargeted is one buffered targeted event awaiting flush.
type pendingTargeted struct {
	target core.EventTarget
	body   []byte
	stamp  *core.MembershipStamp
}

// PendingEvents buffers targeted and broadcast event bodies between sync
// cycles. It is owned by the same serialized domain as the rest of a room.
type PendingEvents struct {
	targeted  []pendingTargeted
	broadcast [][]byte
}

func NewPendingEvents() *PendingEvents {
	return &PendingEvents{}
}

// QueueTargeted appends a targeted event. stamp is nil for events that
// should deliver regardless of the target's current membership version.
func (p *PendingEvents) QueueTargeted(target core.EventTarget, body []byte, stamp *core.MembershipStamp) {
	p.targeted = append(p.targeted, pendingTargeted{target: target, body: body, stamp: stamp})
}

// QueueBroadcast appends a broadcast event body.
func (p *PendingEvents) QueueBroadcast(body []byte) {
	p.broadcast = append(p.broadcast, body)
}

// MembershipCheck answers whether a session's and player's current stamps
// still match, used to drop stale targeted deliveries at flush time.
type MembershipCheck func(stamp core.MembershipStamp) (sessionCurrent, playerCurrent bool)

// PendingTargetedBodies returns every targeted body whose target matches
// this session/player/client and whose stamp (if any) is still current.
func (p *PendingEvents) PendingTargetedBodies(sid core.SessionID, pid core.PlayerID, cid core.ClientID, check MembershipCheck) [][]byte {
	var out [][]byte
	for _, ev := range p.targeted {
		if !targetMatches(ev.target, sid, pid) {
			continue
		}
		if ev.stamp != nil {
			sessionCurrent, playerCurrent := check(*ev.stamp)
			if !sessionCurrent || !playerCurrent {
				continue
			}
		}
		out = append(out, ev.body)
	}
	return out
}

// PendingBroadcastBodies returns a snapshot of the broadcast list.
func (p *PendingEvents) PendingBroadcastBodies() [][]byte {
	out := make([][]byte, len(p.broadcast))
	copy(out, p.broadcast)
	return out
}

// ClearAll empties both lists after a sync flush.
func (p *PendingEvents) ClearAll() {
	p.targeted = nil
	p.broadcast = nil
}

func targetMatches(t core.EventTarget, sid core.SessionID, pid core.PlayerID) bool {
	switch t.Kind {
	case core.TargetSession:
		return t.Session == sid
	case core.TargetPlayer:
		return t.Player == pid
	case core.TargetBroadcast:
		return true
	case core.TargetBroadcastExcept:
		return t.ExceptSession != sid
	case core.TargetPlayers:
		for _, p := range t.Players {
			if p == pid {
				return true
			}
		}
		return false
	default:
		return false
	}
}
