package storage

// listFor returns the live list at key, creating it when create is set.
// A key of another kind yields ErrWrongType.
func (sh *shard) listFor(s *Storage, key string, create bool) (*value, error) {
	v, ok := sh.live(key, s.now())
	if !ok {
		if !create {
			return nil, nil
		}
		v = &value{kind: KindList}
		sh.data[key] = v
		return v, nil
	}
	if v.kind != KindList {
		return nil, ErrWrongType
	}
	return v, nil
}

// Push adds values to the head (left) or tail of the list at key, creating
// the list if needed, and returns the new length. LPUSH k a b leaves [b a].
func (s *Storage) Push(key string, left bool, values ...string) (int, error) {
	sh := s.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	v, err := sh.listFor(s, key, len(values) > 0)
	if err != nil || v == nil {
		return 0, err
	}
	if !left {
		v.list = append(v.list, values...)
		return len(v.list), nil
	}
	list := make([]string, 0, len(values)+len(v.list))
	for i := len(values) - 1; i >= 0; i-- {
		list = append(list, values[i])
	}
	v.list = append(list, v.list...)
	return len(v.list), nil
}

// Pop removes and returns the head (left) or tail element. An emptied list is
// deleted together with its deadline.
func (s *Storage) Pop(key string, left bool) (string, bool, error) {
	sh := s.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	v, err := sh.listFor(s, key, false)
	if err != nil || v == nil || len(v.list) == 0 {
		return "", false, err
	}
	var item string
	if left {
		item = v.list[0]
		v.list[0] = ""
		v.list = v.list[1:]
	} else {
		last := len(v.list) - 1
		item = v.list[last]
		v.list[last] = ""
		v.list = v.list[:last]
	}
	if len(v.list) == 0 {
		sh.remove(key)
	}
	return item, true, nil
}

func (s *Storage) LLen(key string) (int, error) {
	sh := s.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	v, err := sh.listFor(s, key, false)
	if err != nil || v == nil {
		return 0, err
	}
	return len(v.list), nil
}

// LRange returns a copy of the elements between start and stop inclusive.
// Negative indexes count from the tail.
func (s *Storage) LRange(key string, start, stop int) ([]string, error) {
	sh := s.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	v, err := sh.listFor(s, key, false)
	if err != nil || v == nil {
		return []string{}, err
	}
	n := len(v.list)
	if start < 0 {
		start += n
	}
	if stop < 0 {
		stop += n
	}
	if start < 0 {
		start = 0
	}
	if stop >= n {
		stop = n - 1
	}
	if start > stop || start >= n {
		return []string{}, nil
	}
	out := make([]string, stop-start+1)
	copy(out, v.list[start:stop+1])
	return out, nil
}

func (s *Storage) LIndex(key string, index int) (string, bool, error) {
	sh := s.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	v, err := sh.listFor(s, key, false)
	if err != nil || v == nil {
		return "", false, err
	}
	if index < 0 {
		index += len(v.list)
	}
	if index < 0 || index >= len(v.list) {
		return "", false, nil
	}
	return v.list[index], true, nil
}
