// Package worker runs the background and fan-out jobs around the rule
// engine: the periodic expiry sweep and bounded batch evaluation.
package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Expirer marks stale pending actions as expired.
type Expirer interface {
	ExpireStale(ctx context.Context) (int, error)
}

// ExpirySweeper calls ExpireStale on a fixed interval until stopped.
type ExpirySweeper struct {
	expirer  Expirer
	interval time.Duration
	timeout  time.Duration
	logger   *slog.Logger

	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// NewExpirySweeper creates a sweeper. Each sweep gets at most timeout.
func NewExpirySweeper(e Expirer, interval, timeout time.Duration, logger *slog.Logger) *ExpirySweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ExpirySweeper{
		expirer:  e,
		interval: interval,
		timeout:  timeout,
		logger:   logger.With("component", "expiry_sweeper"),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start runs the sweep loop in a goroutine. The loop ends when ctx is
// cancelled or Stop is called.
func (s *ExpirySweeper) Start(ctx context.Context) {
	go func() {
		defer close(s.done)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.logger.Info("started", "interval", s.interval)
		for {
			select {
			case <-ticker.C:
				s.RunNow(ctx)
			case <-ctx.Done():
				return
			case <-s.stop:
				return
			}
		}
	}()
}

// RunNow performs one sweep and returns how many actions expired.
func (s *ExpirySweeper) RunNow(ctx context.Context) int {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	n, err := s.expirer.ExpireStale(ctx)
	if err != nil {
		s.logger.Error("sweep failed", "error", err)
	}
	return n
}

// Stop ends the loop and waits for an in-flight sweep. It must only be
// called after Start.
func (s *ExpirySweeper) Stop() {
	s.stopOnce.Do(func() {
		close(s.stop)
	})
	<-s.done
}
