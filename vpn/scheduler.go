// Package vpn implements NordLynx profile reconciliation.
// This file contains the Scheduler, which repeats reconciliation runs
// on a fixed interval.
package vpn

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/yllada/lynxsync/common"
)

// Scheduler runs a Runner immediately and then once per interval.
// Runs never overlap.
type Scheduler struct {
	mu       sync.RWMutex
	runner   Runner
	interval time.Duration
	clock    clock.Clock
	running  bool
	cancel   context.CancelFunc
	done     chan struct{}
	runs     int
	onReport func(*Report)
}

// NewScheduler creates a scheduler for runner.
func NewScheduler(runner Runner, interval time.Duration, c clock.Clock) *Scheduler {
	if c == nil {
		c = clock.New()
	}
	return &Scheduler{
		runner:   runner,
		interval: interval,
		clock:    c,
	}
}

// SetOnReport sets a callback invoked with every finished report.
func (s *Scheduler) SetOnReport(callback func(*Report)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onReport = callback
}

// Start begins the scheduling loop. It is a no-op when already running.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	s.running = true
	s.cancel = cancel
	s.done = make(chan struct{})
	s.mu.Unlock()

	common.LogInfo("Scheduler started (interval: %v)", s.interval)

	go s.runLoop(ctx)
}

// Stop cancels the current run, if any, and waits for the loop to exit.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.cancel()
	done := s.done
	s.mu.Unlock()

	<-done
	common.LogInfo("Scheduler stopped")
}

// Done is closed when the loop exits, either through Stop or because the
// parent context was cancelled.
func (s *Scheduler) Done() <-chan struct{} {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.done
}

// IsRunning returns whether the scheduler is currently running.
func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// Runs returns the number of completed runs.
func (s *Scheduler) Runs() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.runs
}

func (s *Scheduler) runLoop(ctx context.Context) {
	defer func() {
		s.mu.Lock()
		s.running = false
		close(s.done)
		s.mu.Unlock()
	}()

	ticker := s.clock.Ticker(s.interval)
	defer ticker.Stop()

	s.runOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runOnce(ctx)
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context) {
	report := s.runner.Run(ctx)

	s.mu.Lock()
	s.runs++
	callback := s.onReport
	s.mu.Unlock()

	if callback != nil && report != nil {
		callback(report)
	}
}
