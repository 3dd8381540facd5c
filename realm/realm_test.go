package realm

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"landsync/internal/health"
)

// fakeLandServer is a controllable LandServerProtocol double.
type fakeLandServer struct {
	runErr      error
	blockUntil  chan struct{}
	shutdownErr error
	health      health.Response

	mu           sync.Mutex
	runCalls     int
	shutdownCalls int
	ctxCancelled bool
}

func newFakeLandServer() *fakeLandServer {
	return &fakeLandServer{health: health.Response{Status: health.StatusHealthy}}
}

func (s *fakeLandServer) Run(ctx context.Context) error {
	s.mu.Lock()
	s.runCalls++
	s.mu.Unlock()

	if s.runErr != nil {
		return s.runErr
	}
	<-ctx.Done()
	s.mu.Lock()
	s.ctxCancelled = true
	s.mu.Unlock()
	return nil
}

func (s *fakeLandServer) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.shutdownCalls++
	return s.shutdownErr
}

func (s *fakeLandServer) HealthCheck(ctx context.Context) health.Response {
	return s.health
}

var _ LandServerProtocol = (*fakeLandServer)(nil)

func TestRegisterRejectsEmptyLandType(t *testing.T) {
	r := New()
	err := r.Register("", newFakeLandServer())
	assert.Error(t, err)
}

func TestRegisterRejectsDuplicate(t *testing.T) {
	r := New()
	require.NoError(t, r.Register("arena", newFakeLandServer()))
	err := r.Register("arena", newFakeLandServer())
	assert.Error(t, err)
}

func TestRunReturnsNilWhenContextCancelledCleanly(t *testing.T) {
	r := New()
	a := newFakeLandServer()
	b := newFakeLandServer()
	require.NoError(t, r.Register("arena", a))
	require.NoError(t, r.Register("dungeon", b))

	ctx, cancel := context.WithCancel(context.Background())
	var runErr error
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		runErr = r.Run(ctx)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()
	wg.Wait()

	assert.NoError(t, runErr)
	a.mu.Lock()
	assert.True(t, a.ctxCancelled)
	a.mu.Unlock()
	b.mu.Lock()
	assert.True(t, b.ctxCancelled)
	b.mu.Unlock()
}

func TestRunPropagatesFirstFailureAndCancelsOthers(t *testing.T) {
	r := New()
	failing := newFakeLandServer()
	failing.runErr = errors.New("boom")
	surviving := newFakeLandServer()
	require.NoError(t, r.Register("arena", failing))
	require.NoError(t, r.Register("dungeon", surviving))

	err := r.Run(context.Background())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
	surviving.mu.Lock()
	assert.True(t, surviving.ctxCancelled, "a sibling's failure must cancel the others")
	surviving.mu.Unlock()
}

func TestShutdownTearsDownEveryInstanceDespitePerInstanceErrors(t *testing.T) {
	r := New()
	failing := newFakeLandServer()
	failing.shutdownErr = errors.New("cleanup failed")
	ok := newFakeLandServer()
	require.NoError(t, r.Register("arena", failing))
	require.NoError(t, r.Register("dungeon", ok))

	assert.NotPanics(t, func() {
		r.Shutdown(context.Background())
	})

	assert.Equal(t, 1, failing.shutdownCalls)
	assert.Equal(t, 1, ok.shutdownCalls)
}

func TestHealthCheckCollectsPerLandTypeResults(t *testing.T) {
	r := New()
	healthy := newFakeLandServer()
	unhealthy := newFakeLandServer()
	unhealthy.health = health.Response{Status: health.StatusUnhealthy}
	require.NoError(t, r.Register("arena", healthy))
	require.NoError(t, r.Register("dungeon", unhealthy))

	results := r.HealthCheck(context.Background())

	require.Len(t, results, 2)
	assert.Equal(t, health.StatusHealthy, results["arena"].Status)
	assert.Equal(t, health.StatusUnhealthy, results["dungeon"].Status)
}

func TestHealthCheckEmptyRealm(t *testing.T) {
	r := New()
	results := r.HealthCheck(context.Background())
	assert.Empty(t, results)
}

func TestRunWithNoRegisteredInstancesReturnsImmediately(t *testing.T) {
	r := New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := r.Run(ctx)
	assert.NoError(t, err)
}
