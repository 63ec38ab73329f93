package wvc

import "sync"

type sourceListener struct {
	id uint64
	fn func(raw any)
}

// listenerSet is the MessageSource bookkeeping shared by the peers.
type listenerSet struct {
	mu    sync.RWMutex
	items []sourceListener
	seq   uint64
}

func (s *listenerSet) add(fn func(raw any)) func() {
	if fn == nil {
		return func() {}
	}

	s.mu.Lock()
	s.seq++
	id := s.seq
	s.items = append(s.items, sourceListener{id: id, fn: fn})
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { s.remove(id) })
	}
}

func (s *listenerSet) remove(id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, l := range s.items {
		if l.id == id {
			s.items = append(s.items[:i:i], s.items[i+1:]...)
			return
		}
	}
}

func (s *listenerSet) deliver(raw any) {
	s.mu.RLock()
	copies := append([]sourceListener(nil), s.items...)
	s.mu.RUnlock()

	for _, l := range copies {
		l.fn(raw)
	}
}

func (s *listenerSet) count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}
