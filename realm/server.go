package realm

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"landsync/internal/health"
	"landsync/land"
)

var _ LandServerProtocol = (*LandServer)(nil)

// LandServer is the concrete LandServerProtocol for one land type: it
// periodically drives a sync tick across every active land the manager
// currently owns, mirroring the teacher's ticker-driven background loop
// idiom (pkg/server/ratelimit.go's cleanupLoop, pkg/server/session.go).
type LandServer struct {
	landType   string
	manager    *land.Manager
	tickPeriod time.Duration
	log        *logrus.Entry
}

// NewLandServer builds a LandServer for landType, backed by manager, ticking
// every tickPeriod.
func NewLandServer(landType string, manager *land.Manager, tickPeriod time.Duration) *LandServer {
	if tickPeriod <= 0 {
		tickPeriod = 100 * time.Millisecond
	}
	return &LandServer{
		landType:   landType,
		manager:    manager,
		tickPeriod: tickPeriod,
		log:        logrus.WithField("landType", landType),
	}
}

// Run drives the periodic sync loop until ctx is cancelled.
func (s *LandServer) Run(ctx context.Context) error {
	s.log.Info("land server starting")
	ticker := time.NewTicker(s.tickPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info("land server stopping")
			return nil
		case <-ticker.C:
			s.tickAll()
		}
	}
}

func (s *LandServer) tickAll() {
	for _, id := range s.manager.ListLands() {
		c, ok := s.manager.GetLand(id)
		if !ok {
			continue
		}
		c.Adapter.SyncNow()
	}
}

// Shutdown removes every land this server owns.
func (s *LandServer) Shutdown(ctx context.Context) error {
	for _, id := range s.manager.ListLands() {
		s.manager.RemoveLand(id)
	}
	return nil
}

// HealthCheck runs a single check named "<landType>_lands" that always
// passes: a land type is healthy so long as its manager is reachable. The
// response does not carry the active room count; ActiveLandCount reports it.
func (s *LandServer) HealthCheck(ctx context.Context) health.Response {
	checker := health.NewChecker(nil)
	checker.Register(s.landType+"_lands", func(context.Context) error {
		return nil
	})
	return checker.Run(ctx)
}

// ActiveLandCount returns how many lands of this type are currently live.
func (s *LandServer) ActiveLandCount() int {
	return len(s.manager.ListLands())
}
