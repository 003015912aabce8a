package sessiongate

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Sweep deletes every expired session, including records whose timestamps
// could not be read. Each delete re-checks staleness, so a session rewritten
// by a login during the sweep is kept. A failed delete is counted and the
// sweep continues.
func (g *Gate) Sweep(ctx context.Context) (SweepResult, error) {
	var result SweepResult

	sessions, err := g.sessions.List(ctx)
	if err != nil {
		return result, fmt.Errorf("sessiongate: failed to list sessions: %w", err)
	}

	now := g.now()
	var errs []error
	for _, s := range sessions {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		result.Scanned++
		if !s.IsExpired(now, g.config.SessionTimeout) {
			continue
		}
		deleted, err := g.removeStale(ctx, s.UserID, g.staleBefore(now))
		if err != nil {
			result.Failed++
			errs = append(errs, fmt.Errorf("user %s: %w", s.UserID, err))
			continue
		}
		if deleted {
			result.Deleted++
		}
	}

	if result.Deleted > 0 || result.Failed > 0 {
		g.log.Info("swept expired sessions",
			zap.Int("scanned", result.Scanned),
			zap.Int("deleted", result.Deleted),
			zap.Int("failed", result.Failed),
			zap.Int("cached", g.cache.len()),
		)
	}
	return result, errors.Join(errs...)
}

// Sweeper runs Gate.Sweep once on Start and then on a fixed interval until
// Stop is called or the Start context is cancelled.
type Sweeper struct {
	gate     *Gate
	interval time.Duration

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewSweeper returns a Sweeper for g. A non-positive interval uses the Gate's
// configured SweepInterval.
func NewSweeper(g *Gate, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = g.config.SweepInterval
	}
	return &Sweeper{gate: g, interval: interval}
}

// Start launches the background loop. Calling Start on a running Sweeper is a no-op.
func (s *Sweeper) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}

	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	go s.loop(ctx, s.done)
}

// Stop halts the loop and waits for an in-flight sweep to finish.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (s *Sweeper) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	s.runOnce(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runOnce(ctx)
		}
	}
}

func (s *Sweeper) runOnce(ctx context.Context) {
	if _, err := s.gate.Sweep(ctx); err != nil && ctx.Err() == nil {
		s.gate.log.Error("session sweep failed", zap.Error(err))
	}
}
