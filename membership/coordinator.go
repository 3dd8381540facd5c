// Package membership implements MembershipCoordinator (spec component C3):
// the session/client/player mapping tables for one room. Every operation is
// synchronous and assumes it runs inside the room's own serialized domain —
// it holds no internal lock of its own, mirroring how the engine this was
// adapted from kept its session maps unsynchronized and relied on the
// owning actor's single-goroutine access.
package membership

import (
	"hash/fnv"

	"landsync/core"
)

const slotTableSize = int32(core.MaxPlayerSlots)

type sessionRecord struct {
	clientID core.ClientID
	authInfo map[string]interface{}
	playerID core.PlayerID
	joined   bool
	version  uint64
}

// Coordinator holds one room's membership tables.
type Coordinator struct {
	sessions map[core.SessionID]*sessionRecord
	players  map[core.PlayerID]map[core.SessionID]struct{}
	versions map[core.PlayerID]uint64

	playerToSlot map[core.PlayerID]core.PlayerSlot
	slotToPlayer map[core.PlayerSlot]core.PlayerID
}

func NewCoordinator() *Coordinator {
	return &Coordinator{
		sessions:     make(map[core.SessionID]*sessionRecord),
		players:      make(map[core.PlayerID]map[core.SessionID]struct{}),
		versions:     make(map[core.PlayerID]uint64),
		playerToSlot: make(map[core.PlayerID]core.PlayerSlot),
		slotToPlayer: make(map[core.PlayerSlot]core.PlayerID),
	}
}

// RegisterClient records a freshly accepted, not-yet-joined session.
func (c *Coordinator) RegisterClient(sid core.SessionID, cid core.ClientID, authInfo map[string]interface{}) {
	c.sessions[sid] = &sessionRecord{clientID: cid, authInfo: authInfo}
}

// RegisterPlayer advances the player's version and binds the session to it,
// returning the stamp future deliveries for this episode must match.
func (c *Coordinator) RegisterPlayer(sid core.SessionID, pid core.PlayerID, authInfo map[string]interface{}) core.MembershipStamp {
	rec, ok := c.sessions[sid]
	if !ok {
		rec = &sessionRecord{}
		c.sessions[sid] = rec
	}
	if authInfo != nil {
		rec.authInfo = authInfo
	}

	c.versions[pid]++
	version := c.versions[pid]

	rec.playerID = pid
	rec.joined = true
	rec.version = version

	if c.players[pid] == nil {
		c.players[pid] = make(map[core.SessionID]struct{})
	}
	c.players[pid][sid] = struct{}{}

	return core.MembershipStamp{Player: pid, Version: version}
}

// UnregisterSession clears all tables for sid without releasing its slot.
func (c *Coordinator) UnregisterSession(sid core.SessionID) {
	rec, ok := c.sessions[sid]
	if !ok {
		return
	}
	if rec.joined {
		if set := c.players[rec.playerID]; set != nil {
			delete(set, sid)
			if len(set) == 0 {
				delete(c.players, rec.playerID)
			}
		}
	}
	delete(c.sessions, sid)
}

// RemoveJoinedPlayer rolls back a partially-installed join: the session
// reverts to connected-not-joined and its membership no longer validates.
func (c *Coordinator) RemoveJoinedPlayer(sid core.SessionID) {
	rec, ok := c.sessions[sid]
	if !ok || !rec.joined {
		return
	}
	if set := c.players[rec.playerID]; set != nil {
		delete(set, sid)
		if len(set) == 0 {
			delete(c.players, rec.playerID)
		}
	}
	rec.joined = false
	rec.playerID = ""
	rec.version = 0
}

// ReleasePlayerSlot frees a permanently-left player's slot for reuse.
func (c *Coordinator) ReleasePlayerSlot(pid core.PlayerID) {
	slot, ok := c.playerToSlot[pid]
	if !ok {
		return
	}
	delete(c.playerToSlot, pid)
	delete(c.slotToPlayer, slot)
}

// AllocatePlayerSlot returns pid's existing slot if any, else hashes
// accountKey and linearly probes the 1000-entry table for a free bucket.
// Returns core.NoSlot if the table is full (spec: refuse, never overwrite).
func (c *Coordinator) AllocatePlayerSlot(accountKey string, pid core.PlayerID) core.PlayerSlot {
	if slot, ok := c.playerToSlot[pid]; ok {
		return slot
	}

	h := fnv.New32a()
	_, _ = h.Write([]byte(accountKey))
	start := core.PlayerSlot(int32(h.Sum32()) % slotTableSize)
	if start < 0 {
		start += core.PlayerSlot(slotTableSize)
	}

	for i := int32(0); i < slotTableSize; i++ {
		candidate := core.PlayerSlot((int32(start) + i) % slotTableSize)
		if _, occupied := c.slotToPlayer[candidate]; !occupied {
			c.playerToSlot[pid] = candidate
			c.slotToPlayer[candidate] = pid
			return candidate
		}
	}
	return core.NoSlot
}

// PlayerIDFor returns the player bound to sid, if joined.
func (c *Coordinator) PlayerIDFor(sid core.SessionID) (core.PlayerID, bool) {
	rec, ok := c.sessions[sid]
	if !ok || !rec.joined {
		return "", false
	}
	return rec.playerID, true
}

// ClientIDFor returns the client tag for sid.
func (c *Coordinator) ClientIDFor(sid core.SessionID) (core.ClientID, bool) {
	rec, ok := c.sessions[sid]
	if !ok {
		return "", false
	}
	return rec.clientID, true
}

// SessionIDsFor returns every session currently joined as pid.
func (c *Coordinator) SessionIDsFor(pid core.PlayerID) []core.SessionID {
	set := c.players[pid]
	out := make([]core.SessionID, 0, len(set))
	for sid := range set {
		out = append(out, sid)
	}
	return out
}

// AuthInfoFor returns the auth info recorded for sid.
func (c *Coordinator) AuthInfoFor(sid core.SessionID) map[string]interface{} {
	rec, ok := c.sessions[sid]
	if !ok {
		return nil
	}
	return rec.authInfo
}

// FirstSessionFor returns one session currently joined as pid, picked in map
// iteration order, so which one is not stable when several are joined. Used
// for duplicate-login detection where any prior session is the one to kick.
func (c *Coordinator) FirstSessionFor(pid core.PlayerID) (core.SessionID, bool) {
	for sid := range c.players[pid] {
		return sid, true
	}
	return "", false
}

// IsSessionCurrent reports whether sid's bound version still matches expected.
func (c *Coordinator) IsSessionCurrent(sid core.SessionID, expected uint64) bool {
	rec, ok := c.sessions[sid]
	if !ok || !rec.joined {
		return false
	}
	return rec.version == expected
}

// IsPlayerCurrent reports whether pid's version still matches expected.
func (c *Coordinator) IsPlayerCurrent(pid core.PlayerID, expected uint64) bool {
	return c.versions[pid] == expected
}

// CurrentVersion returns pid's current membership version (0 if pid has
// never joined).
func (c *Coordinator) CurrentVersion(pid core.PlayerID) uint64 {
	return c.versions[pid]
}
