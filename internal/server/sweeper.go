package server

import (
	"context"
	"time"
)

// sweep runs the background expiry sweeper: every SweepInterval it
// snapshots the store and deletes every entry whose deadline has passed.
// A failed pass (there are none that can fail here, since AllItems/Del
// can't error) only delays eviction by one tick; it never stops the
// sweeper or propagates to the caller, per spec.md §4.E.
func (s *Server) sweep(ctx context.Context) {
	interval := s.SweepInterval
	if interval <= 0 {
		interval = 5 * time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweepOnce()
		}
	}
}

func (s *Server) sweepOnce() {
	now := time.Now()
	items := s.store.AllItems()

	removed := 0
	for _, item := range items {
		if item.ExpiresAt.Before(now) {
			if s.store.Del(item.Key) {
				removed++
			}
		}
	}

	if removed > 0 {
		s.Logger.Debug().Int("removed", removed).Msg("swept expired keys")
	}
}
