// Package land implements LandManager and LandTypeRegistry (spec component
// C7): the container that owns every active room and the registry mapping
// a land type to its construction factories. Grounded on the teacher's
// generator registry (pkg/pcg/registry.go) — thread-safe name→factory
// lookup with duplicate-registration rejection — generalized from content
// generators to land types.
package land

import (
	"fmt"
	"strings"
	"sync"

	"landsync/core"
)

// KeeperFactory constructs a fresh LandKeeper for one room instance.
type KeeperFactory func(id core.LandID) core.LandKeeper

// InitialStateFactory constructs the keeper's starting state. Exposed
// separately so a caller (e.g. a replay land) can seed state without
// re-deriving it from the keeper.
type InitialStateFactory func(id core.LandID) core.State

// MatchmakingStrategy is an optional extension point a land type may
// supply; the core registry never invokes it (spec §9's "strategyFactory"
// design note) — it is carried for callers that build matchmaking on top.
type MatchmakingStrategy func(id core.LandID) interface{}

type landTypeEntry struct {
	landDefinitionFactory KeeperFactory
	initialStateFactory   InitialStateFactory
	strategyFactory       MatchmakingStrategy
}

// TypeRegistry maps landType to its construction factories.
type TypeRegistry struct {
	mu      sync.RWMutex
	entries map[string]landTypeEntry
}

func NewTypeRegistry() *TypeRegistry {
	return &TypeRegistry{entries: make(map[string]landTypeEntry)}
}

// Register adds a land type's factories. Returns an error on duplicate or
// empty landType, the same rule Realm.Register applies to its own table.
func (r *TypeRegistry) Register(landType string, keeper KeeperFactory, state InitialStateFactory, strategy MatchmakingStrategy) error {
	if landType == "" {
		return fmt.Errorf("land: land type must not be empty")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entries[landType]; exists {
		return fmt.Errorf("land: %w: %s", core.ErrDuplicateLandType, landType)
	}
	r.entries[landType] = landTypeEntry{landDefinitionFactory: keeper, initialStateFactory: state, strategyFactory: strategy}
	return nil
}

// Resolve returns the factories for landType, following the
// "{landType}-replay" convention: a replay-suffixed type with no entry of
// its own reuses its base type's definition (spec §4.7).
func (r *TypeRegistry) Resolve(landType string) (KeeperFactory, InitialStateFactory, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if entry, ok := r.entries[landType]; ok {
		return entry.landDefinitionFactory, entry.initialStateFactory, true
	}
	if base, ok := strings.CutSuffix(landType, "-replay"); ok {
		if entry, ok := r.entries[base]; ok {
			return entry.landDefinitionFactory, entry.initialStateFactory, true
		}
	}
	return nil, nil, false
}
