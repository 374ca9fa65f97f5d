// Package keyspace provides the in-memory key-value store for rediskv.
//
// It implements a string keyspace with per-key millisecond expiry on top
// of concurrent-safe sharded storage. Expired entries are logically
// absent: reads never return them, and they are physically removed the
// next time they are touched (lazy expiry) or by an optional periodic
// sweep.
package keyspace

import (
	"sync/atomic"
	"time"

	"github.com/yndnr/rediskv-go/pkg/cmap"
)

// Entry is a single keyspace record.
type Entry struct {
	// Value is the stored string payload.
	Value string
	// ExpiresAt is the absolute expiry time in Unix milliseconds.
	// Zero means the entry never expires.
	ExpiresAt int64
}

// Record is an entry paired with its key, used for bulk loading.
type Record struct {
	Key       string
	Value     string
	ExpiresAt int64
}

// Store is the process-wide keyspace. It is safe for concurrent use by
// any number of connection handlers.
type Store struct {
	entries *cmap.Map[Entry]
	now     func() time.Time

	expiredTotal atomic.Int64
}

// Option configures the Store.
type Option func(*Store)

// WithClock overrides the time source, used by tests to control expiry.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// WithShards sets the shard count of the underlying map.
func WithShards(n int) Option {
	return func(s *Store) {
		s.entries = cmap.NewWithShards[Entry](n)
	}
}

// New creates an empty keyspace.
func New(opts ...Option) *Store {
	s := &Store{
		entries: cmap.New[Entry](),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Set inserts or overwrites the entry for key. expiresAt is an absolute
// Unix-millisecond timestamp; zero means no expiry. Overwriting a key
// replaces any prior expiry with expiresAt.
func (s *Store) Set(key, value string, expiresAt int64) {
	s.entries.Set(key, Entry{Value: value, ExpiresAt: expiresAt})
}

// Get returns the value for key if an entry exists and has not expired.
// An expired entry is deleted before Get reports absence; the expiry
// check and the delete run under one shard lock, so concurrent callers
// never race between check and delete.
func (s *Store) Get(key string) (string, bool) {
	nowMS := s.now().UnixMilli()
	evicted := false
	e, ok := s.entries.GetIf(key, func(e Entry) bool {
		if expired(e, nowMS) {
			evicted = true
			return false
		}
		return true
	})
	if evicted {
		s.expiredTotal.Add(1)
	}
	if !ok {
		return "", false
	}
	return e.Value, true
}

// Delete removes key and reports whether an entry existed.
func (s *Store) Delete(key string) bool {
	existed := s.entries.Has(key)
	s.entries.Delete(key)
	return existed
}

// Keys returns all currently live keys matching a glob pattern
// ('*' matches any run of characters, '?' any single character, other
// characters match literally). Expired entries encountered during the
// scan are skipped and opportunistically purged.
func (s *Store) Keys(pattern string) []string {
	nowMS := s.now().UnixMilli()

	var live []string
	var stale []string
	s.entries.Range(func(key string, e Entry) bool {
		if expired(e, nowMS) {
			stale = append(stale, key)
			return true
		}
		if matchGlob(pattern, key) {
			live = append(live, key)
		}
		return true
	})

	// Range holds read locks, so purging happens afterwards. DeleteIf
	// re-checks the entry under the shard's write lock, which keeps a
	// concurrent SET of the same key from being dropped.
	for _, key := range stale {
		if s.entries.DeleteIf(key, func(e Entry) bool { return expired(e, nowMS) }) {
			s.expiredTotal.Add(1)
		}
	}
	return live
}

// LoadBulk inserts many records at once. It is intended for snapshot
// loading before the server starts accepting commands and must not be
// called concurrently with Set, Get, or Keys.
func (s *Store) LoadBulk(records []Record) {
	for _, r := range records {
		if r.Key == "" {
			continue
		}
		s.entries.Set(r.Key, Entry{Value: r.Value, ExpiresAt: r.ExpiresAt})
	}
}

// Len returns the number of stored entries, including expired entries
// that have not been purged yet.
func (s *Store) Len() int {
	return s.entries.Count()
}

// ExpiredTotal returns the number of entries removed by expiry since
// the store was created.
func (s *Store) ExpiredTotal() int64 {
	return s.expiredTotal.Load()
}

func expired(e Entry, nowMS int64) bool {
	return e.ExpiresAt != 0 && nowMS >= e.ExpiresAt
}
