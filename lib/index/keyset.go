package index

// keySet is the set of entry keys mapped to one extracted value. Most values
// are produced by a single key, so the first key is stored inline and a map
// is only allocated once a second key joins.
type keySet[K comparable] struct {
	one   K
	many  map[K]struct{}
	units int64 // units charged for the value owning this set
}

func newKeySet[K comparable](key K) *keySet[K] {
	return &keySet[K]{one: key}
}

// add inserts key and reports whether the set was inflated to a map
func (s *keySet[K]) add(key K) (added, inflated bool) {
	if s.many == nil {
		if s.one == key {
			return false, false
		}
		s.many = map[K]struct{}{s.one: {}, key: {}}
		var zero K
		s.one = zero
		return true, true
	}
	if _, ok := s.many[key]; ok {
		return false, false
	}
	s.many[key] = struct{}{}
	return true, false
}

// remove deletes key and reports whether the set was deflated back to a
// single inline key
func (s *keySet[K]) remove(key K) (removed, deflated bool) {
	if s.many == nil {
		// a single key set is never asked to drop its only key, the caller
		// removes the whole set instead
		return false, false
	}
	if _, ok := s.many[key]; !ok {
		return false, false
	}
	delete(s.many, key)
	if len(s.many) == 1 {
		for k := range s.many {
			s.one = k
		}
		s.many = nil
		return true, true
	}
	return true, false
}

func (s *keySet[K]) contains(key K) bool {
	if s.many == nil {
		return s.one == key
	}
	_, ok := s.many[key]
	return ok
}

func (s *keySet[K]) len() int {
	if s.many == nil {
		return 1
	}
	return len(s.many)
}

// keys copies the set
func (s *keySet[K]) keys() []K {
	if s.many == nil {
		return []K{s.one}
	}
	out := make([]K, 0, len(s.many))
	for k := range s.many {
		out = append(out, k)
	}
	return out
}

// each calls fn for every key until fn returns false
func (s *keySet[K]) each(fn func(K) bool) {
	if s.many == nil {
		fn(s.one)
		return
	}
	for k := range s.many {
		if !fn(k) {
			return
		}
	}
}
