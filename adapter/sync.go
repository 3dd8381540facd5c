package adapter

import (
	"context"
	"sync"

	"landsync/core"
	"landsync/syncengine"
	"landsync/wire"
)

// SyncNow runs one periodic sync cycle (spec §4.6.5). At most one sync may
// run at a time for a room; an overlapping call is skipped with a debug
// log rather than queued.
func (a *Adapter) SyncNow() {
	a.submitSync(func() {
		a.syncNow()
	})
}

func (a *Adapter) syncNow() {
	if a.syncRunning {
		a.log.Debug("sync already running for this room, skipping")
		return
	}
	a.syncRunning = true
	defer func() { a.syncRunning = false }()

	ctx := context.Background()
	state, err := a.keeper.BeginSync(ctx)
	if err != nil {
		a.log.WithError(err).Warn("beginSync failed")
		return
	}
	if state == nil {
		a.log.Debug("beginSync reported a sync already running, skipping")
		return
	}

	broadcastMode, perPlayerMode := a.selectModes(state)

	broadcastSnapshot := syncengine.ExtractBroadcastSnapshot(state, broadcastMode)
	broadcastPatches := a.engine.ComputeBroadcastDiffFromSnapshot(broadcastSnapshot)

	joined := a.joinedPlayers()

	if a.codecs.MergeCapable {
		a.syncMerged(state, perPlayerMode, broadcastPatches, joined)
	} else {
		a.syncSeparate(state, perPlayerMode, broadcastPatches, joined)
	}

	a.pending.ClearAll()
	a.updateDirtyTrackingEMA(state)

	if err := a.keeper.EndSync(ctx, a.dirtyTrackingOn); err != nil {
		a.log.WithError(err).Warn("endSync failed")
	}

	if a.metrics != nil {
		a.metrics.RecordSyncOutcome(a.opts.LandID.LandType, "completed")
	}
}

// selectModes implements spec §4.6.5 step 1: when dirty tracking is on and
// the state reports dirty fields, restrict broadcast/per-player extraction
// to the intersection of dirty fields with each policy's field set.
// Otherwise both modes are .all.
func (a *Adapter) selectModes(state core.State) (broadcast, perPlayer syncengine.SnapshotMode) {
	if !a.dirtyTrackingOn || !state.IsDirty() {
		return syncengine.AllFieldsMode(), syncengine.AllFieldsMode()
	}
	dirty := state.DirtyFields()
	return syncengine.DirtyFieldsMode(dirty), syncengine.DirtyFieldsMode(dirty)
}

func (a *Adapter) joinedPlayers() []sessionPlayer {
	out := make([]sessionPlayer, 0, len(a.sessionJoined))
	for sid, pid := range a.sessionJoined {
		if _, syncing := a.initialSync[pid]; syncing {
			continue
		}
		out = append(out, sessionPlayer{sid: sid, pid: pid})
	}
	return out
}

type sessionPlayer struct {
	sid core.SessionID
	pid core.PlayerID
}

// syncMerged implements branch A of spec §4.6.5: a shared broadcast
// update is merged with queued broadcast events into one opcode-107 frame
// sent identically to every joined session; per-player-only diffs are
// encoded and sent individually; targeted events flush afterward.
func (a *Adapter) syncMerged(state core.State, perPlayerMode syncengine.SnapshotMode, broadcastPatches []core.StatePatch, joined []sessionPlayer) {
	broadcastEvents := a.pending.PendingBroadcastBodies()

	if len(broadcastPatches) > 0 || len(broadcastEvents) > 0 {
		if len(joined) > 0 {
			scope := wire.Scope{Land: a.opts.LandID.String(), Recipient: wire.BroadcastScope}
			stateBytes, err := a.codecs.StateUpdate.Encode(core.StateUpdate{Kind: core.UpdateDiff, Patches: broadcastPatches}, scope)
			if err == nil {
				merged, err := wire.BuildMergedFrame(stateBytes, broadcastEvents)
				if err == nil {
					batch := make(map[core.SessionID][]byte, len(joined))
					for _, sp := range joined {
						batch[sp.sid] = merged
					}
					a.send.SendBatch(batch)
				} else {
					a.log.WithError(err).Warn("failed to build merged 107 frame")
				}
			} else {
				a.log.WithError(err).Warn("failed to encode broadcast state update for merge")
			}
		}
	}

	for _, sp := range joined {
		perPlayerSnapshot := syncengine.ExtractPerPlayerSnapshot(sp.pid, state, perPlayerMode)
		update := a.engine.GenerateUpdateFromBroadcastDiff(sp.pid, nil, perPlayerSnapshot)
		if update.Kind != core.UpdateNoChange && len(update.Patches) > 0 {
			scope := wire.Scope{Land: a.opts.LandID.String(), Recipient: string(sp.pid)}
			raw, err := a.codecs.StateUpdate.Encode(update, scope)
			if err != nil {
				a.log.WithError(err).WithField("player", sp.pid).Warn("failed to encode per-player update")
			} else {
				a.send.Send(core.TargetToSession(sp.sid), raw)
			}
		}

		a.flushTargeted(sp)
	}
}

// syncSeparate implements branch B: one concatenated StateUpdate per
// player, encoded serially or in parallel (spec §4.6.6), sent as a batch.
func (a *Adapter) syncSeparate(state core.State, perPlayerMode syncengine.SnapshotMode, broadcastPatches []core.StatePatch, joined []sessionPlayer) {
	type encoded struct {
		sid core.SessionID
		raw []byte
	}

	results := make([]encoded, len(joined))
	encodeOne := func(i int) {
		sp := joined[i]
		perPlayerSnapshot := syncengine.ExtractPerPlayerSnapshot(sp.pid, state, perPlayerMode)
		update := a.engine.GenerateUpdateFromBroadcastDiff(sp.pid, broadcastPatches, perPlayerSnapshot)
		if update.Kind == core.UpdateNoChange {
			return
		}
		scope := wire.Scope{Land: a.opts.LandID.String(), Recipient: string(sp.pid)}
		raw, err := a.codecs.StateUpdate.Encode(update, scope)
		if err != nil {
			a.log.WithError(err).WithField("player", sp.pid).Warn("failed to encode state update")
			return
		}
		results[i] = encoded{sid: sp.sid, raw: raw}
	}

	if a.shouldParallelize(len(joined)) {
		a.runParallel(len(joined), encodeOne)
	} else {
		for i := range joined {
			encodeOne(i)
		}
	}

	batch := make(map[core.SessionID][]byte, len(results))
	for _, r := range results {
		if r.raw != nil {
			batch[r.sid] = r.raw
		}
	}
	a.send.SendBatch(batch)

	for _, sp := range joined {
		a.flushTargeted(sp)
	}
}

func (a *Adapter) flushTargeted(sp sessionPlayer) {
	check := func(stamp core.MembershipStamp) (sessionCurrent, playerCurrent bool) {
		return a.membership.IsSessionCurrent(sp.sid, stamp.Version), a.membership.IsPlayerCurrent(stamp.Player, stamp.Version)
	}
	bodies := a.pending.PendingTargetedBodies(sp.sid, sp.pid, "", check)
	for _, body := range bodies {
		a.send.Send(core.TargetToSession(sp.sid), body)
	}
}

// shouldParallelize implements the eligibility test of spec §4.6.6: the
// feature is enabled, the state-update encoder declares thread-safety, and
// the room has at least minPlayerCount joined players.
func (a *Adapter) shouldParallelize(n int) bool {
	opts := a.opts.ParallelEncoding
	return opts.Enabled && a.codecs.StateUpdate.ThreadSafe() && n >= opts.MinPlayers
}

// runParallel splits [0,n) into chunks of batchSize and runs at most
// perRoomCap workers concurrently; perRoomCap is 2 below 30 players, 4 at
// or above (spec §4.6.6 defaults). Results are written in place by index
// so callers see original ordering without extra bookkeeping.
func (a *Adapter) runParallel(n int, work func(i int)) {
	opts := a.opts.ParallelEncoding
	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = 16
	}
	perRoomCap := opts.SmallRoomCap
	if n >= 30 {
		perRoomCap = opts.LargeRoomCap
	}
	if perRoomCap <= 0 {
		perRoomCap = 1
	}
	chunks := (n + batchSize - 1) / batchSize
	workers := chunks
	if workers > perRoomCap {
		workers = perRoomCap
	}
	if workers > n {
		workers = n
	}
	if workers <= 1 {
		for i := 0; i < n; i++ {
			work(i)
		}
		return
	}

	starts := make(chan int, chunks)
	for i := 0; i < n; i += batchSize {
		starts <- i
	}
	close(starts)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for start := range starts {
				end := start + batchSize
				if end > n {
					end = n
				}
				for i := start; i < end; i++ {
					work(i)
				}
			}
		}()
	}
	wg.Wait()
}

// updateDirtyTrackingEMA maintains the hysteresis switch of spec §4.6.7: a
// running EMA of the changed-object ratio flips dirty tracking off when, at
// least requiredSamples samples after start or the last switch, the EMA is
// at/above offThreshold, and back on when it is at/below onThreshold. The
// samples counted need not be consecutive samples beyond the threshold: one
// sample beyond it after the count is reached flips the switch. The EMA is
// re-seeded from the next sample after every switch.
func (a *Adapter) updateDirtyTrackingEMA(state core.State) {
	opts := a.opts.AutoDirtyTracking
	if !opts.Enabled {
		return
	}

	total := len(state.SyncFields())
	if total == 0 {
		return
	}
	changed := len(state.DirtyFields())
	ratio := float64(changed) / float64(total)

	const alpha = 0.2
	if a.dirtySamples == 0 {
		a.dirtyEMA = ratio
	} else {
		a.dirtyEMA = alpha*ratio + (1-alpha)*a.dirtyEMA
	}
	a.dirtySamples++

	onThreshold, offThreshold := clampThresholds(opts.OnThreshold, opts.OffThreshold)

	if a.dirtySamples < opts.RequiredSamples {
		return
	}

	if a.dirtyTrackingOn && a.dirtyEMA >= offThreshold {
		a.dirtyTrackingOn = false
		a.dirtySamples = 0
	} else if !a.dirtyTrackingOn && a.dirtyEMA <= onThreshold {
		a.dirtyTrackingOn = true
		a.dirtySamples = 0
	}
}

func clampThresholds(on, off float64) (float64, float64) {
	const minSeparation = 0.01
	if off-on < minSeparation {
		off = on + minSeparation
	}
	return on, off
}
