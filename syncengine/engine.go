package syncengine

import "landsync/core"

// SnapshotMode selects whether extraction covers every sync field or only
// a caller-supplied set of dirty field names (spec §4.5).
type SnapshotMode struct {
	All    bool
	Fields map[string]struct{}
}

func AllFieldsMode() SnapshotMode { return SnapshotMode{All: true} }

func DirtyFieldsMode(fields map[string]struct{}) SnapshotMode {
	return SnapshotMode{Fields: fields}
}

// Engine holds the broadcast and per-player snapshot caches for one room
// and implements the diff-based update assembly of spec §4.5.
type Engine struct {
	broadcastCache core.Snapshot
	perPlayerCache map[core.PlayerID]core.Snapshot
	firstSyncDone  map[core.PlayerID]struct{}
}

func NewEngine() *Engine {
	return &Engine{
		broadcastCache: core.Snapshot{},
		perPlayerCache: make(map[core.PlayerID]core.Snapshot),
		firstSyncDone:  make(map[core.PlayerID]struct{}),
	}
}

// ExtractBroadcastSnapshot returns the broadcast-policy fields of state,
// restricted to mode's field set when not .All.
func ExtractBroadcastSnapshot(state core.State, mode SnapshotMode) core.Snapshot {
	fields := restrictFields(state, mode, core.SyncBroadcast)
	return state.ExtractBroadcast(fields)
}

// ExtractPerPlayerSnapshot returns player's per-player-policy fields.
func ExtractPerPlayerSnapshot(player core.PlayerID, state core.State, mode SnapshotMode) core.Snapshot {
	fields := restrictFields(state, mode, core.SyncPerPlayer)
	return state.ExtractPerPlayer(player, fields)
}

func restrictFields(state core.State, mode SnapshotMode, policy core.SyncFieldPolicy) map[string]struct{} {
	all := make(map[string]struct{})
	for _, f := range state.SyncFields() {
		if f.Policy != policy {
			continue
		}
		if mode.All {
			all[f.Name] = struct{}{}
			continue
		}
		if _, dirty := mode.Fields[f.Name]; dirty {
			all[f.Name] = struct{}{}
		}
	}
	return all
}

// ComputeBroadcastDiffFromSnapshot diffs current against the cache, stores
// current as the new cache (invariant 5: the cache tracks the last
// successfully fanned-out view even with zero players connected), and
// returns the patch list.
func (e *Engine) ComputeBroadcastDiffFromSnapshot(current core.Snapshot) []core.StatePatch {
	patches := Diff(e.broadcastCache, current, "")
	e.broadcastCache = current
	return patches
}

// GenerateUpdateFromBroadcastDiff concatenates the shared broadcast patches
// with player's own per-player diff (computed against that player's
// cache, which is updated as a side effect), returning noChange when both
// are empty and firstSync has already run for this player, else diff.
func (e *Engine) GenerateUpdateFromBroadcastDiff(player core.PlayerID, broadcastPatches []core.StatePatch, perPlayerSnapshot core.Snapshot) core.StateUpdate {
	prior := e.perPlayerCache[player]
	perPlayerPatches := Diff(prior, perPlayerSnapshot, "")
	e.perPlayerCache[player] = perPlayerSnapshot

	all := make([]core.StatePatch, 0, len(broadcastPatches)+len(perPlayerPatches))
	all = append(all, broadcastPatches...)
	all = append(all, perPlayerPatches...)

	if len(all) == 0 {
		if _, done := e.firstSyncDone[player]; done {
			return core.StateUpdate{Kind: core.UpdateNoChange}
		}
	}
	return core.StateUpdate{Kind: core.UpdateDiff, Patches: all}
}

// LateJoinSnapshot seeds the per-player cache for a freshly joined player
// with its per-player view and returns the patches that take an empty
// snapshot to the combined broadcast+per-player view — the source of that
// player's firstSync. Broadcast fields stay out of the per-player cache;
// later changes to them reach the player through the shared broadcast diff.
func (e *Engine) LateJoinSnapshot(player core.PlayerID, broadcast, perPlayer core.Snapshot) []core.StatePatch {
	combined := make(core.Snapshot, len(broadcast)+len(perPlayer))
	for k, v := range broadcast {
		combined[k] = v
	}
	for k, v := range perPlayer {
		combined[k] = v
	}
	e.perPlayerCache[player] = perPlayer
	return Diff(core.Snapshot{}, combined, "")
}

// MarkFirstSyncReceived records that player's firstSync has been sent.
func (e *Engine) MarkFirstSyncReceived(player core.PlayerID) {
	e.firstSyncDone[player] = struct{}{}
}

// HasFirstSync reports whether player's firstSync has already been sent.
func (e *Engine) HasFirstSync(player core.PlayerID) bool {
	_, ok := e.firstSyncDone[player]
	return ok
}

// ClearCacheForDisconnectedPlayer removes player's per-player cache and
// firstSyncDone membership so a future rejoin behaves as a fresh join.
func (e *Engine) ClearCacheForDisconnectedPlayer(player core.PlayerID) {
	delete(e.perPlayerCache, player)
	delete(e.firstSyncDone, player)
}
