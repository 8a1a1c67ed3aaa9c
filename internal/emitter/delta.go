package emitter

import (
	"context"
	"time"
)

// DeltaPoller is a Poller that decides whether a fetched value differs from
// the baseline it keeps.
type DeltaPoller interface {
	Poller
	HasChanged(candidate DataEvent) bool
}

// Delta is a Polling emitter that only caches and emits changed values.
// Unchanged polls still mark the emitter connected and clear the fault.
type Delta struct {
	*Polling
	delta DeltaPoller
}

// NewDelta creates a delta polling emitter.
func NewDelta(id, name, description string, interval time.Duration, p DeltaPoller, opts ...Option) *Delta {
	d := &Delta{
		Polling: NewPolling(id, name, description, interval, p, opts...),
		delta:   p,
	}
	d.execute = d.deltaExecutor
	return d
}

func (d *Delta) deltaExecutor(ctx context.Context) {
	data, ok := d.fetch(ctx)
	if !ok {
		return
	}

	evt := d.BuildDataEvent(data)
	if !d.delta.HasChanged(evt) {
		d.heard()
		return
	}
	d.publish(evt)
}
