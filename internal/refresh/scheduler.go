package refresh

import (
	"context"
	"errors"
	"log"
	"time"
)

// Scheduler triggers a full refresh on a fixed interval. Ticks that land on
// a running refresh join it like any other caller.
type Scheduler struct {
	coordinator *Coordinator
	interval    time.Duration
}

// NewScheduler creates a scheduler; an interval <= 0 makes Run return
// immediately.
func NewScheduler(c *Coordinator, interval time.Duration) *Scheduler {
	return &Scheduler{coordinator: c, interval: interval}
}

// Run blocks until ctx is done.
func (s *Scheduler) Run(ctx context.Context) {
	if s.interval <= 0 {
		return
	}
	log.Printf("⏰ [Scheduler] Refreshing every %s", s.interval)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Printf("[Scheduler] Stopped")
			return
		case <-ticker.C:
			summary, err := s.coordinator.Refresh(ctx, Request{})
			switch {
			case errors.Is(err, ErrAlreadyRunning):
				log.Printf("[Scheduler] Previous refresh still running, skipping tick")
			case err != nil:
				log.Printf("⚠️ [Scheduler] Refresh failed: %v", err)
			case summary.Joined:
				log.Printf("[Scheduler] Joined an in-flight refresh")
			}
		}
	}
}
