package land

import (
	"context"
	"fmt"
	"sync"
	"time"

	"landsync/adapter"
	"landsync/core"
	"landsync/internal/config"
	"landsync/internal/metrics"
	"landsync/internal/retry"
	"landsync/transport"
	"landsync/wire"
)

// Container bundles everything one active land owns (spec §4.7).
type Container struct {
	ID        core.LandID
	Keeper    core.LandKeeper
	Transport *transport.Transport
	Adapter   *adapter.Adapter
	CreatedAt time.Time
	Metadata  map[string]interface{}
}

// Manager owns {LandID -> Container} for every land type it was built to
// serve, plus the type registry used to construct new ones.
type Manager struct {
	mu       sync.RWMutex
	lands    map[core.LandID]*Container
	registry *TypeRegistry
	metrics  *metrics.Metrics
	shared   *transport.Transport
	builder  *retry.Retrier
}

// NewManager builds a Manager that constructs its own per-land Transport on
// each cache miss (legacy single-room mode, spec §4.7).
func NewManager(registry *TypeRegistry, m *metrics.Metrics) *Manager {
	return &Manager{
		lands:    make(map[core.LandID]*Container),
		registry: registry,
		metrics:  m,
		builder:  retry.NewRetrier(retry.LandConstructionConfig()),
	}
}

// NewSharedManager builds a Manager whose lands all share one caller-owned
// Transport instead of each getting their own (router-managed mode, spec
// §4.7's "when the transport is owned by this manager, not shared" clause).
// The caller — ordinarily a LandRouter — is responsible for being that
// Transport's delegate; Manager never calls SetDelegate in this mode.
func NewSharedManager(registry *TypeRegistry, m *metrics.Metrics, shared *transport.Transport) *Manager {
	return &Manager{
		lands:    make(map[core.LandID]*Container),
		registry: registry,
		metrics:  m,
		shared:   shared,
		builder:  retry.NewRetrier(retry.LandConstructionConfig()),
	}
}

// GetOrCreateLand returns the existing container for id, or constructs one
// on cache miss: builds the keeper via the registered factory and an
// Adapter over the manager's shared Transport, or, when there is none, over
// a Transport of its own with the Adapter as that Transport's delegate. No
// destroy callback is installed: a container stays in the map, empty or
// not, until RemoveLand removes it.
// Idempotent — repeated calls with the same LandID return the same
// container (spec §8).
func (m *Manager) GetOrCreateLand(id core.LandID, roomCfg config.RoomConfig) (*Container, error) {
	m.mu.RLock()
	if c, ok := m.lands[id]; ok {
		m.mu.RUnlock()
		return c, nil
	}
	m.mu.RUnlock()

	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.lands[id]; ok {
		return c, nil
	}

	keeperFactory, _, ok := m.registry.Resolve(id.LandType)
	if !ok {
		return nil, fmt.Errorf("land: %w: %s", core.ErrLandTypeUnknown, id.LandType)
	}

	var c *Container
	err := m.builder.Execute(context.Background(), func(context.Context) error {
		keeper := keeperFactory(id)

		codecs, err := wire.BuildCodecPair(roomCfg)
		if err != nil {
			return fmt.Errorf("land: build codec pair: %w", err)
		}

		tr := m.shared
		if tr == nil {
			tr = transport.New(transport.Config{
				DrainBatchSize: 64,
				DrainIdleSleep: time.Millisecond,
				OriginAllowed:  func(string) bool { return true },
				Metrics:        m.metrics,
			}, nil)
		}

		a := adapter.New(adapter.Options{
			LandID:              id,
			EnableLegacyJoin:    roomCfg.EnableLegacyJoin,
			ExpectedSchemaHash:  roomCfg.ExpectedSchemaHash,
			CreateGuestSession:  roomCfg.CreateGuestSession,
			UseSnapshotForSync:  roomCfg.UseSnapshotForSync,
			EnableDirtyTracking: roomCfg.EnableDirtyTracking,
			ParallelEncoding: adapter.ParallelEncodingOptions{
				Enabled:      roomCfg.ParallelEncoding.Enabled,
				MinPlayers:   roomCfg.ParallelEncoding.MinPlayers,
				BatchSize:    roomCfg.ParallelEncoding.BatchSize,
				SmallRoomCap: roomCfg.ParallelEncoding.SmallRoomCap,
				LargeRoomCap: roomCfg.ParallelEncoding.LargeRoomCap,
			},
			AutoDirtyTracking: adapter.AutoDirtyTrackingOptions{
				Enabled:         roomCfg.AutoDirtyTracking.Enabled,
				OnThreshold:     roomCfg.AutoDirtyTracking.OnThreshold,
				OffThreshold:    roomCfg.AutoDirtyTracking.OffThreshold,
				RequiredSamples: roomCfg.AutoDirtyTracking.RequiredSamples,
			},
		}, keeper, tr, codecs, m.metrics)
		if m.shared == nil {
			tr.SetDelegate(a)
		}

		c = &Container{
			ID:        id,
			Keeper:    keeper,
			Transport: tr,
			Adapter:   a,
			CreatedAt: time.Now(),
			Metadata:  make(map[string]interface{}),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	m.lands[id] = c

	if m.metrics != nil {
		m.metrics.SetActiveLands(len(m.lands))
	}
	return c, nil
}

// GetLand returns the container for id without creating one.
func (m *Manager) GetLand(id core.LandID) (*Container, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.lands[id]
	return c, ok
}

// RemoveLand tears down and forgets the container for id. Idempotent.
func (m *Manager) RemoveLand(id core.LandID) {
	m.mu.Lock()
	c, ok := m.lands[id]
	if !ok {
		m.mu.Unlock()
		return
	}
	delete(m.lands, id)
	if m.metrics != nil {
		m.metrics.SetActiveLands(len(m.lands))
	}
	m.mu.Unlock()

	c.Adapter.Shutdown()
	if m.shared == nil {
		c.Transport.Shutdown()
	}
}

// ListLands returns every active LandID.
func (m *Manager) ListLands() []core.LandID {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]core.LandID, 0, len(m.lands))
	for id := range m.lands {
		out = append(out, id)
	}
	return out
}

// LandStats is the summary returned by GetLandStats.
type LandStats struct {
	ID        core.LandID
	PlayerCount int
	CreatedAt time.Time
}

// GetLandStats returns a stats snapshot for id, if it exists.
func (m *Manager) GetLandStats(id core.LandID) (LandStats, bool) {
	m.mu.RLock()
	c, ok := m.lands[id]
	m.mu.RUnlock()
	if !ok {
		return LandStats{}, false
	}
	return LandStats{ID: id, PlayerCount: c.Keeper.PlayerCount(), CreatedAt: c.CreatedAt}, true
}
