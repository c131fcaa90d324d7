// Package storage is the in-memory key space: string, list and hash values
// sharded by key hash, with per-key deadlines that are enforced lazily.
package storage

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
)

const ShardCount = 16
const shardMask = uint64(ShardCount - 1)

var ErrWrongType = errors.New("WRONGTYPE Operation against a key holding the wrong kind of value")

// Kind is the type of value a key holds.
type Kind uint8

const (
	KindNone Kind = iota
	KindString
	KindList
	KindHash
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindList:
		return "list"
	case KindHash:
		return "hash"
	default:
		return "none"
	}
}

// value holds exactly one kind, so a key can never live in two namespaces.
type value struct {
	kind Kind
	str  string
	list []string
	hash map[string]string
}

type shard struct {
	mu      sync.Mutex
	data    map[string]*value
	expires map[string]time.Time
}

// Storage is safe for concurrent use. Single-key operations lock one shard;
// operations spanning keys lock every shard involved in index order.
type Storage struct {
	shards []*shard
	now    func() time.Time
}

type Option func(*Storage)

// WithClock replaces time.Now. The clock must be monotonic for deadlines to
// survive wall clock changes; time.Now is.
func WithClock(now func() time.Time) Option {
	return func(s *Storage) {
		s.now = now
	}
}

func New(opts ...Option) *Storage {
	s := &Storage{
		shards: make([]*shard, ShardCount),
		now:    time.Now,
	}
	for i := 0; i < ShardCount; i++ {
		s.shards[i] = &shard{
			data:    make(map[string]*value),
			expires: make(map[string]time.Time),
		}
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Storage) GetShardIndex(key string) uint64 {
	return xxhash.Sum64String(key) & shardMask
}

func (s *Storage) shardFor(key string) *shard {
	return s.shards[s.GetShardIndex(key)]
}

func (s *Storage) lockAll() {
	for _, sh := range s.shards {
		sh.mu.Lock()
	}
}

func (s *Storage) unlockAll() {
	for i := len(s.shards) - 1; i >= 0; i-- {
		s.shards[i].mu.Unlock()
	}
}

// live returns the value for key, evicting it first if its deadline passed.
// A deadline left behind for a missing key is dropped.
func (sh *shard) live(key string, now time.Time) (*value, bool) {
	v, ok := sh.data[key]
	deadline, hasExpire := sh.expires[key]
	if !ok {
		if hasExpire {
			delete(sh.expires, key)
		}
		return nil, false
	}
	if hasExpire && !now.Before(deadline) {
		delete(sh.data, key)
		delete(sh.expires, key)
		return nil, false
	}
	return v, true
}

func (sh *shard) remove(key string) {
	delete(sh.data, key)
	delete(sh.expires, key)
}

func (sh *shard) cleanupLocked(now time.Time, scanLimit int) int {
	scanned, evicted := 0, 0
	for key, deadline := range sh.expires {
		if !now.Before(deadline) {
			sh.remove(key)
			evicted++
		} else if _, ok := sh.data[key]; !ok {
			delete(sh.expires, key)
		}
		scanned++
		if scanLimit > 0 && scanned >= scanLimit {
			break
		}
	}
	return evicted
}

// Cleanup evicts expired keys, scanning at most scanLimit deadlines per shard
// (0 scans everything). It returns the number of evicted keys.
func (s *Storage) Cleanup(scanLimit int) int {
	now := s.now()
	evicted := 0
	for _, sh := range s.shards {
		sh.mu.Lock()
		evicted += sh.cleanupLocked(now, scanLimit)
		sh.mu.Unlock()
	}
	return evicted
}

// RunJanitor sweeps expired keys every interval until ctx is done. Lookups
// never rely on it; it only bounds the memory held by keys nobody touches.
func (s *Storage) RunJanitor(ctx context.Context, interval time.Duration, scanLimit int, onEvict func(int)) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.Cleanup(scanLimit); n > 0 && onEvict != nil {
				onEvict(n)
			}
		}
	}
}
