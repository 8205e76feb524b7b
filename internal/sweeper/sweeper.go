package sweeper

import (
	"context"
	"time"

	"github.com/rx3lixir/tunebox/pkg/logger"
)

const (
	defaultInterval = 5 * time.Minute
	defaultMaxIdle  = 30 * time.Minute
)

// Store is the slice of the room store the sweeper needs
type Store interface {
	SweepStale(ctx context.Context, olderThan time.Time) (int64, error)
}

// Sweeper periodically deletes abandoned rooms: empty queue and no write
// for the idle window. Rooms with queued songs are never touched.
type Sweeper struct {
	store    Store
	log      *logger.Logger
	interval time.Duration
	maxIdle  time.Duration
	now      func() time.Time
}

func New(store Store, log *logger.Logger, interval, maxIdle time.Duration) *Sweeper {
	if interval <= 0 {
		interval = defaultInterval
	}
	if maxIdle <= 0 {
		maxIdle = defaultMaxIdle
	}
	return &Sweeper{
		store:    store,
		log:      log,
		interval: interval,
		maxIdle:  maxIdle,
		now:      time.Now,
	}
}

// Run blocks until ctx is cancelled, sweeping once per interval
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.log.Info("sweeper started",
		"interval", s.interval,
		"max_idle", s.maxIdle,
	)

	for {
		select {
		case <-ticker.C:
			s.SweepOnce(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// SweepOnce runs a single sweep pass
func (s *Sweeper) SweepOnce(ctx context.Context) {
	cutoff := s.now().Add(-s.maxIdle)

	deleted, err := s.store.SweepStale(ctx, cutoff)
	if err != nil {
		s.log.Error("sweep failed", "error", err)
		return
	}

	if deleted > 0 {
		s.log.Info("swept stale rooms", "deleted", deleted, "cutoff", cutoff)
	}
}
