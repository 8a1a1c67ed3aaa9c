package emitter

import (
	"time"
)

// DataEvent is a single data emission. Emitter is a back-reference used for
// attribution only.
type DataEvent struct {
	Emitter   Emitter
	Timestamp time.Time
	Data      any
	Meta      any
}

// Record returns the event in a form chroniclers can persist.
func (e DataEvent) Record() map[string]any {
	rec := map[string]any{
		"kind":      "data",
		"timestamp": e.Timestamp.Format(time.RFC3339Nano),
		"data":      e.Data,
		"meta":      e.Meta,
	}
	attribute(rec, e.Emitter)
	return rec
}

// StatusEvent reports connectivity and the built-in-test flag. The two flags
// are independent.
type StatusEvent struct {
	Emitter   Emitter
	Connected bool
	BIT       bool
	Timestamp time.Time
}

// Record returns the event in a form chroniclers can persist.
func (e StatusEvent) Record() map[string]any {
	rec := map[string]any{
		"kind":      "status",
		"timestamp": e.Timestamp.Format(time.RFC3339Nano),
		"connected": e.Connected,
		"bit":       e.BIT,
	}
	attribute(rec, e.Emitter)
	return rec
}

func attribute(rec map[string]any, em Emitter) {
	if em == nil {
		return
	}
	rec["emitterId"] = em.ID()
	rec["emitterName"] = em.Name()
	rec["emitterType"] = em.Type()
}
