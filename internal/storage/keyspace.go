package storage

import (
	"math"
	"time"
)

const maxTTLSeconds = int64(math.MaxInt64 / int64(time.Second))

// Set stores a string value, replacing a value of any kind. A live deadline
// on the key is kept.
func (s *Storage) Set(key, val string) {
	sh := s.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	if v, ok := sh.live(key, s.now()); ok && v.kind == KindString {
		v.str = val
		return
	}
	sh.data[key] = &value{kind: KindString, str: val}
}

// Get returns the string stored at key. Keys holding lists or hashes and
// expired keys are reported as absent.
func (s *Storage) Get(key string) (string, bool) {
	sh := s.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	v, ok := sh.live(key, s.now())
	if !ok || v.kind != KindString {
		return "", false
	}
	return v.str, true
}

func (s *Storage) Exists(key string) bool {
	return s.Type(key) != KindNone
}

func (s *Storage) Type(key string) Kind {
	sh := s.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	v, ok := sh.live(key, s.now())
	if !ok {
		return KindNone
	}
	return v.kind
}

// Keys returns every live key in no particular order.
func (s *Storage) Keys() []string {
	s.lockAll()
	defer s.unlockAll()
	now := s.now()
	keys := make([]string, 0, 64)
	for _, sh := range s.shards {
		for key := range sh.data {
			if _, ok := sh.live(key, now); ok {
				keys = append(keys, key)
			}
		}
	}
	return keys
}

// Len returns the number of live keys.
func (s *Storage) Len() int {
	s.lockAll()
	defer s.unlockAll()
	now := s.now()
	n := 0
	for _, sh := range s.shards {
		for key := range sh.data {
			if _, ok := sh.live(key, now); ok {
				n++
			}
		}
	}
	return n
}

// Delete removes key and its deadline. It reports whether a live key existed.
func (s *Storage) Delete(key string) bool {
	sh := s.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	if _, ok := sh.live(key, s.now()); !ok {
		return false
	}
	sh.remove(key)
	return true
}

// Expire sets the deadline of an existing key to now+seconds. A deadline that
// is not in the future makes the next access evict the key.
func (s *Storage) Expire(key string, seconds int64) bool {
	sh := s.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	now := s.now()
	if _, ok := sh.live(key, now); !ok {
		return false
	}
	if seconds > maxTTLSeconds {
		seconds = maxTTLSeconds
	} else if seconds < -maxTTLSeconds {
		seconds = -maxTTLSeconds
	}
	sh.expires[key] = now.Add(time.Duration(seconds) * time.Second)
	return true
}

// TTL returns the time left before key expires. hasDeadline is false for a
// persistent key, exists is false for a missing key.
func (s *Storage) TTL(key string) (remaining time.Duration, hasDeadline bool, exists bool) {
	sh := s.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	now := s.now()
	if _, ok := sh.live(key, now); !ok {
		return 0, false, false
	}
	deadline, ok := sh.expires[key]
	if !ok {
		return 0, false, true
	}
	return deadline.Sub(now), true, true
}

// Persist drops the deadline of key. It reports whether a deadline was removed.
func (s *Storage) Persist(key string) bool {
	sh := s.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	if _, ok := sh.live(key, s.now()); !ok {
		return false
	}
	if _, ok := sh.expires[key]; !ok {
		return false
	}
	delete(sh.expires, key)
	return true
}

// Rename moves the value of oldKey, with its kind and deadline, to newKey,
// replacing whatever newKey held. Both shards are locked for the whole move,
// so no caller observes the key under both names or under neither.
func (s *Storage) Rename(oldKey, newKey string) bool {
	i, j := s.GetShardIndex(oldKey), s.GetShardIndex(newKey)
	src, dst := s.shards[i], s.shards[j]
	switch {
	case i == j:
		src.mu.Lock()
		defer src.mu.Unlock()
	case i < j:
		src.mu.Lock()
		dst.mu.Lock()
		defer src.mu.Unlock()
		defer dst.mu.Unlock()
	default:
		dst.mu.Lock()
		src.mu.Lock()
		defer dst.mu.Unlock()
		defer src.mu.Unlock()
	}

	now := s.now()
	v, ok := src.live(oldKey, now)
	if !ok {
		return false
	}
	if oldKey == newKey {
		return true
	}
	deadline, hasExpire := src.expires[oldKey]
	src.remove(oldKey)

	dst.remove(newKey)
	dst.data[newKey] = v
	if hasExpire {
		dst.expires[newKey] = deadline
	}
	return true
}

// FlushAll removes every key and deadline.
func (s *Storage) FlushAll() {
	s.lockAll()
	defer s.unlockAll()
	for _, sh := range s.shards {
		sh.data = make(map[string]*value)
		sh.expires = make(map[string]time.Time)
	}
}
