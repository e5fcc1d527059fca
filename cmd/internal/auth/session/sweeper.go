package session

import (
	"context"
	"log/slog"
	"time"
)

// Purger is the part of Service the Sweeper needs.
type Purger interface {
	PurgeExpired(ctx context.Context, now time.Time, maxAge time.Duration) (int64, error)
}

// Sweeper periodically removes expired sessions.
type Sweeper struct {
	purger   Purger
	interval time.Duration
	maxAge   time.Duration
	log      *slog.Logger
	now      func() time.Time
}

// NewSweeper returns a Sweeper that purges every interval.
func NewSweeper(p Purger, interval, maxAge time.Duration, log *slog.Logger) *Sweeper {
	if log == nil {
		log = slog.Default()
	}
	if interval <= 0 {
		interval = time.Hour
	}
	return &Sweeper{
		purger:   p,
		interval: interval,
		maxAge:   maxAge,
		log:      log,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Run purges once immediately and then on every tick until ctx is done.
func (s *Sweeper) Run(ctx context.Context) {
	s.sweep(ctx)

	t := time.NewTicker(s.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.sweep(ctx)
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	n, err := s.purger.PurgeExpired(ctx, s.now(), s.maxAge)
	if err != nil {
		if ctx.Err() == nil {
			s.log.Error("session.purge.fail", "err", err)
		}
		return
	}
	if n > 0 {
		s.log.Info("session.purge.ok", "rows", n)
	}
}
