package visit

import (
	"context"
	"time"

	"github.com/draymont/passage-core/internal/infrastructure/logging"
)

// defaultSweepInterval is used when the configured interval is zero.
const defaultSweepInterval = time.Minute

// Sweeper periodically expires overdue visits. This is the only
// lifecycle transition not triggered by a user or device action; it is
// a scheduled reconciliation pass over the (status, scheduled_exit)
// index.
type Sweeper struct {
	service  *Service
	interval time.Duration
	log      *logging.Logger
}

// NewSweeper creates a sweeper over the visit service.
func NewSweeper(service *Service, interval time.Duration, log *logging.Logger) *Sweeper {
	if interval <= 0 {
		interval = defaultSweepInterval
	}
	if log == nil {
		log = logging.Default()
	}
	return &Sweeper{
		service:  service,
		interval: interval,
		log:      log.With("component", "visit-sweeper"),
	}
}

// Run sweeps until the context is cancelled. An immediate sweep runs at
// startup so a restart does not leave overdue visits holding live
// credentials for a full interval.
//
// Blocks; call in its own goroutine.
func (s *Sweeper) Run(ctx context.Context) {
	s.sweep(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info("sweeper stopped")
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	if _, err := s.service.ExpireOverdue(ctx); err != nil {
		// Keep ticking; a transient store failure shouldn't kill the loop.
		s.log.Error("expiry sweep failed", "error", err)
	}
}
