package storage

func (sh *shard) hashFor(s *Storage, key string, create bool) (*value, error) {
	v, ok := sh.live(key, s.now())
	if !ok {
		if !create {
			return nil, nil
		}
		v = &value{kind: KindHash, hash: make(map[string]string)}
		sh.data[key] = v
		return v, nil
	}
	if v.kind != KindHash {
		return nil, ErrWrongType
	}
	return v, nil
}

// HSet sets field/value pairs (a trailing unpaired field is ignored) and
// returns how many fields were newly created.
func (s *Storage) HSet(key string, pairs ...string) (int, error) {
	if len(pairs) < 2 {
		return 0, nil
	}
	sh := s.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	v, err := sh.hashFor(s, key, true)
	if err != nil {
		return 0, err
	}
	added := 0
	for i := 0; i+1 < len(pairs); i += 2 {
		if _, ok := v.hash[pairs[i]]; !ok {
			added++
		}
		v.hash[pairs[i]] = pairs[i+1]
	}
	return added, nil
}

func (s *Storage) HGet(key, field string) (string, bool, error) {
	sh := s.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	v, err := sh.hashFor(s, key, false)
	if err != nil || v == nil {
		return "", false, err
	}
	val, ok := v.hash[field]
	return val, ok, nil
}

// HDel removes fields and returns how many existed. An emptied hash is deleted.
func (s *Storage) HDel(key string, fields ...string) (int, error) {
	sh := s.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	v, err := sh.hashFor(s, key, false)
	if err != nil || v == nil {
		return 0, err
	}
	removed := 0
	for _, field := range fields {
		if _, ok := v.hash[field]; ok {
			delete(v.hash, field)
			removed++
		}
	}
	if len(v.hash) == 0 {
		sh.remove(key)
	}
	return removed, nil
}

func (s *Storage) HLen(key string) (int, error) {
	sh := s.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	v, err := sh.hashFor(s, key, false)
	if err != nil || v == nil {
		return 0, err
	}
	return len(v.hash), nil
}

// HGetAll returns a copy of the hash at key; a missing key yields an empty map.
func (s *Storage) HGetAll(key string) (map[string]string, error) {
	sh := s.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	v, err := sh.hashFor(s, key, false)
	if err != nil || v == nil {
		return map[string]string{}, err
	}
	out := make(map[string]string, len(v.hash))
	for field, val := range v.hash {
		out[field] = val
	}
	return out, nil
}
