package keyspace

import (
	"context"
	"time"
)

// DefaultSweepInterval is the default period of the background sweep.
const DefaultSweepInterval = time.Minute

// Sweep removes every entry whose expiry has passed and returns the
// number of entries removed. Lazy expiry on Get and Keys keeps the
// store correct without it; Sweep only bounds memory held by keys that
// are never read again.
func (s *Store) Sweep() int {
	nowMS := s.now().UnixMilli()

	var stale []string
	s.entries.Range(func(key string, e Entry) bool {
		if expired(e, nowMS) {
			stale = append(stale, key)
		}
		return true
	})

	removed := 0
	for _, key := range stale {
		if s.entries.DeleteIf(key, func(e Entry) bool { return expired(e, nowMS) }) {
			removed++
		}
	}
	s.expiredTotal.Add(int64(removed))
	return removed
}

// StartSweeper runs Sweep every interval until ctx is cancelled.
// It returns immediately; the sweep runs on its own goroutine.
func (s *Store) StartSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.Sweep()
			}
		}
	}()
}
