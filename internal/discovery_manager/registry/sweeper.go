package registry

import (
	"context"
	"log/slog"
	"time"

	"github.com/benbjohnson/clock"
)

// Evicter is the part of Registry the sweeper drives.
type Evicter interface {
	EvictExpired() int
}

// Sweeper periodically evicts silent sessions. It is the only source of
// LOST events.
type Sweeper struct {
	registry Evicter
	interval time.Duration
	clock    clock.Clock
	log      *slog.Logger
}

func NewSweeper(r Evicter, interval time.Duration, clk clock.Clock, log *slog.Logger) *Sweeper {
	if clk == nil {
		clk = clock.New()
	}
	return &Sweeper{
		registry: r,
		interval: interval,
		clock:    clk,
		log:      log.With(slog.String("component", "sweeper")),
	}
}

// Run ticks until ctx is done. It always returns nil.
func (s *Sweeper) Run(ctx context.Context) error {
	const op = "sweeper.Run"
	log := s.log.With(slog.String("op", op))

	ticker := s.clock.Ticker(s.interval)
	defer ticker.Stop()

	log.Debug("sweeper started", slog.Duration("interval", s.interval))
	for {
		select {
		case <-ctx.Done():
			log.Debug("sweeper stopped")
			return nil
		case <-ticker.C:
			if n := s.registry.EvictExpired(); n > 0 {
				log.Debug("evicted silent sessions", slog.Int("count", n))
			}
		}
	}
}
