package source

import (
	"sync"

	"github.com/GabrielNunesIT/emitterkit/internal/emitter"
)

// recorder collects the events an emitter delivers.
type recorder struct {
	mu     sync.Mutex
	data   []emitter.DataEvent
	status []emitter.StatusEvent
}

func (r *recorder) OnData(evt emitter.DataEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.data = append(r.data, evt)
}

func (r *recorder) OnStatus(evt emitter.StatusEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.status = append(r.status, evt)
}

func (r *recorder) dataEvents() []emitter.DataEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]emitter.DataEvent(nil), r.data...)
}

func (r *recorder) statusEvents() []emitter.StatusEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]emitter.StatusEvent(nil), r.status...)
}
