package emitter

import (
	"context"
	"sync"
	"time"
)

type pollResult struct {
	data any
	err  error
}

// fakeSource is a delta polling emitter driven by a script of poll results
// and change decisions. Once the script runs out it repeats the last result
// and reports no change.
type fakeSource struct {
	*Delta

	mu      sync.Mutex
	results []pollResult
	changes []bool
	calls   int
	props   map[string]any
}

func newFakeSource(interval time.Duration, opts ...Option) *fakeSource {
	f := &fakeSource{props: map[string]any{"url": "http://device.local"}}
	f.Delta = NewDelta("e-1", "pump", "line 3", interval, f, opts...)
	return f
}

func (f *fakeSource) Type() string { return "fake" }

func (f *fakeSource) MetaData() any { return map[string]string{"unit": "bar"} }

func (f *fakeSource) EmitterProperties() any { return f.props }

func (f *fakeSource) script(results ...pollResult) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.results = results
}

func (f *fakeSource) scriptChanges(changes ...bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.changes = changes
}

func (f *fakeSource) Poll(ctx context.Context) (any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if len(f.results) == 0 {
		return nil, nil
	}
	r := f.results[0]
	if len(f.results) > 1 {
		f.results = f.results[1:]
	}
	return r.data, r.err
}

func (f *fakeSource) HasChanged(DataEvent) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.changes) == 0 {
		return false
	}
	c := f.changes[0]
	f.changes = f.changes[1:]
	return c
}

func (f *fakeSource) pollCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// recorder collects every event delivered to it.
type recorder struct {
	mu     sync.Mutex
	data   []DataEvent
	status []StatusEvent
}

func (r *recorder) OnData(evt DataEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.data = append(r.data, evt)
}

func (r *recorder) OnStatus(evt StatusEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.status = append(r.status, evt)
}

func (r *recorder) dataEvents() []DataEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]DataEvent(nil), r.data...)
}

func (r *recorder) statusEvents() []StatusEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]StatusEvent(nil), r.status...)
}

// pushSource is a minimal accepting emitter.
type pushSource struct {
	*Accepting
}

func newPushSource(opts ...Option) *pushSource {
	p := &pushSource{}
	p.Accepting = NewAccepting("p-1", "gate", "door sensor", p, opts...)
	return p
}

func (p *pushSource) Type() string { return "push" }

func (p *pushSource) MetaData() any { return nil }
