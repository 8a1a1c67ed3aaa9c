// Package source implements the concrete emitters: an HTTP delta poller and
// push based emitters fed by files, syslog and the systemd journal.
package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/GabrielNunesIT/emitterkit/internal/emitter"
	"github.com/GabrielNunesIT/emitterkit/internal/logging"
	"github.com/GabrielNunesIT/emitterkit/internal/model"
)

// Monitoring holds the disconnect detection settings every source accepts.
type Monitoring struct {
	DisconnectInterval  model.Duration `json:"disconnectInterval,omitempty"`
	DisconnectThreshold model.Duration `json:"disconnectThreshold,omitempty"`
}

// options turns the monitoring settings into emitter options.
func (m Monitoring) options(log logging.Facade) []emitter.Option {
	opts := []emitter.Option{emitter.WithLogger(log)}
	if m.DisconnectInterval > 0 {
		opts = append(opts, emitter.WithDisconnectDetection(m.DisconnectInterval.Std(), m.DisconnectThreshold.Std()))
	}
	return opts
}

// live returns m updated with the settings the emitter currently runs with,
// so settings applied at runtime survive serialization.
func (m Monitoring) live(b *emitter.Base) Monitoring {
	interval, threshold := b.DisconnectSettings()
	if interval <= 0 {
		return m
	}
	return Monitoring{
		DisconnectInterval:  model.Duration(interval),
		DisconnectThreshold: model.Duration(threshold),
	}
}

func decodeProperties(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decoding emitter properties: %w", err)
	}
	return nil
}

// runner owns the goroutine of a push based source.
type runner struct {
	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// start runs fn on its own goroutine unless one is already running. A
// non-cancellation error returned by fn is handed to onErr.
func (r *runner) start(ctx context.Context, fn func(ctx context.Context) error, onErr func(error)) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel != nil {
		return false
	}

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	r.cancel, r.done = cancel, done

	go func() {
		defer close(done)
		defer r.release(done)
		if err := fn(ctx); err != nil && !errors.Is(err, context.Canceled) && ctx.Err() == nil {
			onErr(err)
		}
	}()
	return true
}

// release forgets the goroutine owning done once it exits on its own, so a
// later start runs again.
func (r *runner) release(done chan struct{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.done == done {
		r.cancel()
		r.cancel, r.done = nil, nil
	}
}

// stop cancels the goroutine and waits for it to exit.
func (r *runner) stop() {
	r.mu.Lock()
	cancel, done := r.cancel, r.done
	r.cancel, r.done = nil, nil
	r.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (r *runner) running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cancel != nil
}
