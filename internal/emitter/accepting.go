package emitter

import (
	"context"
	"fmt"
	"sync"

	"github.com/GabrielNunesIT/emitterkit/internal/logging"
)

// Accepting is an emitter fed from outside: the owner pushes values with
// Accept and reports source failures with Reject.
type Accepting struct {
	*Base

	mu       sync.RWMutex
	lastData *DataEvent
}

// NewAccepting creates an accepting emitter.
func NewAccepting(id, name, description string, kind Kind, opts ...Option) *Accepting {
	return &Accepting{Base: NewBase(id, name, description, kind, opts...)}
}

// Accept emits data. The emitter is marked connected and its fault cleared.
func (a *Accepting) Accept(data any) {
	if a.Disposed() {
		return
	}
	evt := a.BuildDataEvent(data)

	a.MarkHeard()
	a.Connected()
	a.ClearIfFaulted()

	a.mu.Lock()
	a.lastData = &evt
	a.mu.Unlock()

	a.NotifyData(evt)
}

// Reject records a source failure as a fault.
func (a *Accepting) Reject(err error) {
	if a.Disposed() {
		return
	}
	a.Log(logging.LevelWarn, fmt.Sprintf("source failed: %v", err))
	a.Faulted()
}

// ProbeCurrentData returns the last accepted event, or an event without data.
func (a *Accepting) ProbeCurrentData(ctx context.Context) (DataEvent, error) {
	a.mu.RLock()
	last := a.lastData
	a.mu.RUnlock()

	if last == nil {
		return a.BuildDataEvent(nil), nil
	}
	return *last, nil
}

// Start starts the disconnect check if it is armed. Sources override Start
// to begin reading and call it from there.
func (a *Accepting) Start(ctx context.Context) error {
	if a.Disposed() {
		return ErrDisposed
	}
	a.StartDisconnectCheck()
	return nil
}

// Stop stops the disconnect check.
func (a *Accepting) Stop(ctx context.Context) error {
	a.dcTimer.stop()
	return nil
}
