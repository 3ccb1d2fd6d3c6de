// Package scheduler drives one render cycle per simulation tick.
package scheduler

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"sonar-sim-go/internal/logging"
)

// ErrTooManyFailures stops Run after MaxConsecutiveFailures failed ticks.
var ErrTooManyFailures = errors.New("too many consecutive render failures")

type Config struct {
	// Rate is the number of ticks per second.
	Rate float64
	// MaxConsecutiveFailures stops the loop; 0 keeps going forever.
	MaxConsecutiveFailures int
	// LogEvery logs one in every LogEvery failures.
	LogEvery int
	Clock    clock.Clock
	Logger   *zap.SugaredLogger
}

type Stats struct {
	Ticks    atomic.Uint64
	Failures atomic.Uint64
	Nanos    atomic.Uint64
}

func (s *Stats) Snapshot() map[string]any {
	return map[string]any{
		"ticks_total":      s.Ticks.Load(),
		"tick_failures":    s.Failures.Load(),
		"tick_nanos_total": s.Nanos.Load(),
	}
}

// Run calls tick at the configured rate until ctx is done. A failed tick is
// logged and counted but never retried; the next tick renders a new frame.
func Run(ctx context.Context, cfg Config, stats *Stats, tick func(context.Context) error) error {
	if cfg.Rate <= 0 {
		return errors.Errorf("invalid tick rate %v", cfg.Rate)
	}
	clk := cfg.Clock
	if clk == nil {
		clk = clock.New()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	if stats == nil {
		stats = &Stats{}
	}
	failureLog := logging.EveryN{N: cfg.LogEvery}

	ticker := clk.Ticker(time.Duration(float64(time.Second) / cfg.Rate))
	defer ticker.Stop()

	consecutive := 0
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		start := clk.Now()
		err := tick(ctx)
		stats.Ticks.Add(1)
		stats.Nanos.Add(uint64(clk.Since(start).Nanoseconds()))
		if err == nil {
			consecutive = 0
			continue
		}
		if ctx.Err() != nil {
			return nil
		}
		stats.Failures.Add(1)
		consecutive++
		failureLog.Warnw(logger, "render tick failed", "error", err, "consecutive", consecutive)
		if cfg.MaxConsecutiveFailures > 0 && consecutive >= cfg.MaxConsecutiveFailures {
			return errors.Wrapf(ErrTooManyFailures, "%d in a row, last: %v", consecutive, err)
		}
	}
}
