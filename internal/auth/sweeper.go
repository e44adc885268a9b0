package auth

import (
	"context"
	"log/slog"
	"time"

	"github.com/ayush/endpix/internal/metrics"
)

// ExpiredStagedDeleter removes staged identities whose OTP expired at or
// before now.
type ExpiredStagedDeleter interface {
	DeleteExpiredStaged(ctx context.Context, now time.Time) (int64, error)
}

// Sweeper periodically removes expired staged identities. The document
// store's TTL index does the same job eventually; the sweeper bounds the lag.
type Sweeper struct {
	store    ExpiredStagedDeleter
	interval time.Duration
	metrics  metrics.Recorder
	log      *slog.Logger
	now      func() time.Time
}

func NewSweeper(store ExpiredStagedDeleter, interval time.Duration, rec metrics.Recorder, log *slog.Logger) *Sweeper {
	if rec == nil {
		rec = metrics.Nop{}
	}
	if log == nil {
		log = slog.Default()
	}
	return &Sweeper{store: store, interval: interval, metrics: rec, log: log, now: time.Now}
}

// SweepOnce deletes what is expired right now and returns the count.
func (s *Sweeper) SweepOnce(ctx context.Context) (int64, error) {
	n, err := s.store.DeleteExpiredStaged(ctx, s.now())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.metrics.RecordStagedSwept(n)
		s.log.InfoContext(ctx, "expired staged identities swept", slog.Int64("count", n))
	}
	return n, nil
}

// Run sweeps every interval until ctx is done. A non-positive interval
// disables the sweeper.
func (s *Sweeper) Run(ctx context.Context) {
	if s.interval <= 0 {
		return
	}
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.SweepOnce(ctx); err != nil && ctx.Err() == nil {
				s.log.WarnContext(ctx, "staged sweep failed", slog.String("error", err.Error()))
			}
		}
	}
}
