package core

import "context"

// JoinDecision is the outcome of LandKeeper.Join: either allow, carrying
// the PlayerID the keeper wants to bind (which may differ from the
// requested one), or deny.
type JoinDecision struct {
	Allowed  bool
	Player   PlayerID
}

// Allow builds an allowing JoinDecision for the given player.
func Allow(player PlayerID) JoinDecision { return JoinDecision{Allowed: true, Player: player} }

// Deny is the canonical denying JoinDecision.
var Deny = JoinDecision{Allowed: false}

// JoinServices is the small service bundle handed to LandKeeper.Join so it
// can make policy decisions (e.g. current player count) without reaching
// back into the adapter. DeviceID and Metadata carry the values resolved
// by the transport's join-time priority-union rule (client value wins over
// authInfo); a keeper is free to ignore either.
type JoinServices struct {
	PlayerCount func() int
	DeviceID    string
	Metadata    map[string]interface{}
}

// SyncFieldPolicy classifies a top-level state field for sync purposes
// (spec §6.1).
type SyncFieldPolicy int

const (
	SyncBroadcast  SyncFieldPolicy = iota // identical for every player
	SyncPerPlayer                         // customized per player
	SyncServerOnly                        // never sent to clients
)

// SyncField names one top-level field and its policy.
type SyncField struct {
	Name   string
	Policy SyncFieldPolicy
}

// State is the capability surface a LandKeeper's game state exposes to the
// sync engine: dirty-field introspection and snapshot extraction (spec
// §4.5, §6.1). An implementation may back this with generics or a plain
// interface; the core only ever calls these methods.
type State interface {
	// IsDirty reports whether any per-tick mutation occurred since the
	// last EndSync(clearDirtyFlags: true).
	IsDirty() bool
	// DirtyFields returns the set of top-level field names that changed
	// since the last clear.
	DirtyFields() map[string]struct{}
	// SyncFields returns every top-level field this state exposes for
	// sync, together with its policy.
	SyncFields() []SyncField
	// ExtractBroadcast returns the shared view of this state, restricted
	// to `fields` when non-nil (dirty-tracking mode) or the full
	// broadcast-tagged field set when nil.
	ExtractBroadcast(fields map[string]struct{}) Snapshot
	// ExtractPerPlayer returns player's customized view, with the same
	// field-restriction semantics as ExtractBroadcast.
	ExtractPerPlayer(player PlayerID, fields map[string]struct{}) Snapshot
}

// LandKeeper is the external game-logic engine this gateway routes
// traffic to and fans state out from. It is explicitly out of scope for
// this spec (§1) — the gateway consumes it only through this interface.
type LandKeeper interface {
	Join(ctx context.Context, session PlayerID, client ClientID, sid SessionID, services JoinServices) (JoinDecision, error)
	Leave(ctx context.Context, player PlayerID, client ClientID) error

	HandleAction(ctx context.Context, requestID string, typeIdentifier string, payload []byte, player PlayerID, client ClientID, sid SessionID) (interface{}, error)
	HandleEvent(ctx context.Context, eventType string, payload []byte, player PlayerID, client ClientID, sid SessionID) error

	CurrentState(ctx context.Context) (State, error)

	// BeginSync returns the current state for a sync cycle, or nil if
	// another sync is already running for this room.
	BeginSync(ctx context.Context) (State, error)
	EndSync(ctx context.Context, clearDirtyFlags bool) error

	PlayerCount() int

	SetTransport(adapter interface{})
	SetLandID(id string)
}
