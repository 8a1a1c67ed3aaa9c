package emitter

import (
	"sync"

	"github.com/GabrielNunesIT/emitterkit/internal/lifecycle"
)

// DataListener receives data events.
type DataListener interface {
	OnData(evt DataEvent)
}

// DataListenerFunc adapts a function to DataListener.
type DataListenerFunc func(evt DataEvent)

// OnData calls f(evt).
func (f DataListenerFunc) OnData(evt DataEvent) { f(evt) }

// StatusListener receives status transitions.
type StatusListener interface {
	OnStatus(evt StatusEvent)
}

// StatusListenerFunc adapts a function to StatusListener.
type StatusListenerFunc func(evt StatusEvent)

// OnStatus calls f(evt).
func (f StatusListenerFunc) OnStatus(evt StatusEvent) { f(evt) }

// listenerSet keeps listeners in registration order. Every add gets its own
// slot, so registering the same listener twice yields two notifications and
// two independent handles.
type listenerSet[L any] struct {
	mu      sync.Mutex
	nextID  uint64
	entries []listenerEntry[L]
}

type listenerEntry[L any] struct {
	id       uint64
	listener L
}

func (s *listenerSet[L]) add(l L) lifecycle.Disposable {
	s.mu.Lock()
	s.nextID++
	id := s.nextID
	s.entries = append(s.entries, listenerEntry[L]{id: id, listener: l})
	s.mu.Unlock()

	return lifecycle.DisposableFunc(func() { s.remove(id) })
}

func (s *listenerSet[L]) remove(id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, e := range s.entries {
		if e.id == id {
			s.entries = append(s.entries[:i:i], s.entries[i+1:]...)
			return
		}
	}
}

// snapshot copies the listeners so iteration is safe against concurrent
// registration and removal.
func (s *listenerSet[L]) snapshot() []L {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]L, len(s.entries))
	for i, e := range s.entries {
		out[i] = e.listener
	}
	return out
}

func (s *listenerSet[L]) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
