package storage

import (
	"sort"
	"time"
)

// Entry is a detached copy of one key, used to dump and restore the store.
type Entry struct {
	Key  string
	Kind Kind
	Str  string
	List []string
	Hash map[string]string
}

// Snapshot copies every live key while holding all shards, so the result is
// a single consistent point in time. Entries are sorted by key.
func (s *Storage) Snapshot() []Entry {
	s.lockAll()
	defer s.unlockAll()
	now := s.now()
	entries := make([]Entry, 0, 64)
	for _, sh := range s.shards {
		for key := range sh.data {
			v, ok := sh.live(key, now)
			if !ok {
				continue
			}
			e := Entry{Key: key, Kind: v.kind}
			switch v.kind {
			case KindString:
				e.Str = v.str
			case KindList:
				e.List = append([]string(nil), v.list...)
			case KindHash:
				e.Hash = make(map[string]string, len(v.hash))
				for field, val := range v.hash {
					e.Hash[field] = val
				}
			}
			entries = append(entries, e)
		}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Key < entries[j].Key })
	return entries
}

// Restore replaces the whole content of the store with entries. Restored keys
// have no deadline. Later entries win over earlier ones with the same key, and
// empty lists or hashes are skipped.
func (s *Storage) Restore(entries []Entry) {
	s.lockAll()
	defer s.unlockAll()
	for _, sh := range s.shards {
		sh.data = make(map[string]*value)
		sh.expires = make(map[string]time.Time)
	}
	for _, e := range entries {
		v := &value{kind: e.Kind}
		switch e.Kind {
		case KindString:
			v.str = e.Str
		case KindList:
			if len(e.List) == 0 {
				continue
			}
			v.list = append([]string(nil), e.List...)
		case KindHash:
			if len(e.Hash) == 0 {
				continue
			}
			v.hash = make(map[string]string, len(e.Hash))
			for field, val := range e.Hash {
				v.hash[field] = val
			}
		default:
			continue
		}
		s.shardFor(e.Key).data[e.Key] = v
	}
}
