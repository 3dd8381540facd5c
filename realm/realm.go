// Package realm implements LandServer/Realm (spec component C9): the
// composition of many per-land-type servers behind one process, with a
// shared run/shutdown/healthCheck lifecycle. Grounded on the teacher's
// RPCServer.Serve/Shutdown lifecycle (pkg/server/server.go) and its health
// endpoint (pkg/server/health.go), generalized from one server instance to
// a registry of them.
package realm

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"landsync/internal/health"
)

// LandServerProtocol is one land type's independent, LandManager-backed
// server: its own run/shutdown/health-check lifecycle (spec §4.9).
type LandServerProtocol interface {
	Run(ctx context.Context) error
	Shutdown(ctx context.Context) error
	HealthCheck(ctx context.Context) health.Response
}

// Realm composes many LandServerProtocol instances, one per registered
// land type, and orchestrates their shared lifecycle.
type Realm struct {
	mu        sync.RWMutex
	instances map[string]LandServerProtocol
	log       *logrus.Entry
}

// New builds an empty Realm.
func New() *Realm {
	return &Realm{
		instances: make(map[string]LandServerProtocol),
		log:       logrus.WithField("component", "realm"),
	}
}

// Register adds instance under landType. Rejects an empty or
// already-registered landType (spec §4.9).
func (r *Realm) Register(landType string, instance LandServerProtocol) error {
	if landType == "" {
		return fmt.Errorf("realm: land type must not be empty")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.instances[landType]; exists {
		return fmt.Errorf("realm: land type already registered: %s", landType)
	}
	r.instances[landType] = instance
	return nil
}

// Run starts every registered instance concurrently. If any instance's Run
// returns an error, ctx for the others is cancelled and Run returns that
// first error once every instance has stopped (spec §4.9: "failure of any
// propagates").
func (r *Realm) Run(ctx context.Context) error {
	r.mu.RLock()
	instances := make(map[string]LandServerProtocol, len(r.instances))
	for landType, inst := range r.instances {
		instances[landType] = inst
	}
	r.mu.RUnlock()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	errs := make(chan error, len(instances))
	var wg sync.WaitGroup
	for landType, inst := range instances {
		wg.Add(1)
		go func(landType string, inst LandServerProtocol) {
			defer wg.Done()
			if err := inst.Run(runCtx); err != nil {
				r.log.WithError(err).WithField("landType", landType).Error("land server run failed")
				errs <- fmt.Errorf("realm: land type %s: %w", landType, err)
				cancel()
				return
			}
			errs <- nil
		}(landType, inst)
	}

	wg.Wait()
	close(errs)

	var first error
	for err := range errs {
		if err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Shutdown tears down every registered instance concurrently. Per-instance
// errors are logged but never fail the overall shutdown (spec §4.9).
func (r *Realm) Shutdown(ctx context.Context) {
	r.mu.RLock()
	instances := make(map[string]LandServerProtocol, len(r.instances))
	for landType, inst := range r.instances {
		instances[landType] = inst
	}
	r.mu.RUnlock()

	var wg sync.WaitGroup
	for landType, inst := range instances {
		wg.Add(1)
		go func(landType string, inst LandServerProtocol) {
			defer wg.Done()
			if err := inst.Shutdown(ctx); err != nil {
				r.log.WithError(err).WithField("landType", landType).Warn("land server shutdown reported an error")
			}
		}(landType, inst)
	}
	wg.Wait()
}

// HealthCheck runs every instance's health check concurrently and returns
// the per-land-type results (spec §4.9).
func (r *Realm) HealthCheck(ctx context.Context) map[string]health.Response {
	r.mu.RLock()
	instances := make(map[string]LandServerProtocol, len(r.instances))
	for landType, inst := range r.instances {
		instances[landType] = inst
	}
	r.mu.RUnlock()

	var mu sync.Mutex
	results := make(map[string]health.Response, len(instances))

	var wg sync.WaitGroup
	for landType, inst := range instances {
		wg.Add(1)
		go func(landType string, inst LandServerProtocol) {
			defer wg.Done()
			resp := inst.HealthCheck(ctx)
			mu.Lock()
			results[landType] = resp
			mu.Unlock()
		}(landType, inst)
	}
	wg.Wait()
	return results
}
