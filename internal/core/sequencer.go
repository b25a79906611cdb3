package core

import "sync"

// sequencer serializes work per key so that appends and broadcasts for one
// conversation group happen in commit order. Entries are dropped once idle.
type sequencer struct {
	mu    sync.Mutex
	locks map[string]*seqLock
}

type seqLock struct {
	mu   sync.Mutex
	refs int
}

func newSequencer() *sequencer {
	return &sequencer{locks: make(map[string]*seqLock)}
}

// lock blocks until key is free and returns the matching unlock.
func (s *sequencer) lock(key string) func() {
	s.mu.Lock()
	l := s.locks[key]
	if l == nil {
		l = &seqLock{}
		s.locks[key] = l
	}
	l.refs++
	s.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()

		s.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(s.locks, key)
		}
		s.mu.Unlock()
	}
}
