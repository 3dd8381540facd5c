// Package core holds the data model shared by every package in the land
// sync gateway: opaque identifiers, the snapshot/patch value tree, the
// external LandKeeper capability contract, and the sentinel error/code
// vocabulary used to talk to clients. It has no dependents inside this
// module other than indirectly through every other package, and depends
// on nothing but the standard library — by design, it is the one place
// every component agrees on without importing each other.
package core

import "strings"

// SessionID identifies one WebSocket connection for its lifetime.
type SessionID string

// ClientID is a short opaque display/routing tag assigned on accept.
type ClientID string

// PlayerID is an application-meaningful identity. Multiple SessionIDs may
// share one PlayerID (duplicate-login rules apply, spec §4.6.3).
type PlayerID string

// LandID identifies one room: a land type plus an optional instance id.
// Serializes as "landType" when InstanceID is empty, else
// "landType:instanceID".
type LandID struct {
	LandType   string
	InstanceID string
}

// NewLandID builds a LandID from its parts.
func NewLandID(landType, instanceID string) LandID {
	return LandID{LandType: landType, InstanceID: instanceID}
}

// String renders the LandID in its wire form.
func (l LandID) String() string {
	if l.InstanceID == "" {
		return l.LandType
	}
	return l.LandType + ":" + l.InstanceID
}

// ParseLandID parses the wire form produced by String.
func ParseLandID(s string) LandID {
	if idx := strings.IndexByte(s, ':'); idx >= 0 {
		return LandID{LandType: s[:idx], InstanceID: s[idx+1:]}
	}
	return LandID{LandType: s}
}

// IsReplayOf reports whether this LandID's type is the replay-suffixed
// variant of baseType, per the "{landType}-replay" convention of spec §4.7.
func (l LandID) IsReplayOf(baseType string) bool {
	return l.LandType == baseType+"-replay"
}

// PlayerSlot is a deterministic, stable int32 in [0, 1000) assigned per
// joined player within one room (spec §3).
type PlayerSlot int32

// NoSlot is the sentinel meaning "no slot assigned".
const NoSlot PlayerSlot = -1

// MaxPlayerSlots is the fixed size of the per-room slot table (spec §3, §8).
const MaxPlayerSlots = 1000

// MembershipStamp witnesses the membership episode a server-side operation
// was created under: a PlayerID and the version current at that moment.
// A stamped delivery is discarded once the player's or session's version
// has advanced past the stamp (spec §3, invariant 4).
type MembershipStamp struct {
	Player  PlayerID
	Version uint64
}
