package emitter

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/GabrielNunesIT/emitterkit/internal/logging"
	"github.com/GabrielNunesIT/emitterkit/internal/model"
)

// DefaultPollInterval is used when an emitter is built without an interval.
const DefaultPollInterval = time.Second

// Poller fetches one value per tick.
type Poller interface {
	Kind
	Poll(ctx context.Context) (any, error)
}

// Polling turns a periodic fetch into data and status events. A successful
// poll marks the emitter connected and clears the fault; a failed poll only
// sets the fault. Disconnection is left to the disconnect check.
type Polling struct {
	*Base

	poller  Poller
	execute func(ctx context.Context)

	// pollMu serializes ticks so transitions follow tick order.
	pollMu sync.Mutex

	mu        sync.RWMutex
	interval  time.Duration
	lastData  *DataEvent
	pollTimer timerSlot
}

// NewPolling creates a polling emitter. Polling starts with StartPolling.
func NewPolling(id, name, description string, interval time.Duration, p Poller, opts ...Option) *Polling {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	pl := &Polling{
		Base:     NewBase(id, name, description, p, opts...),
		poller:   p,
		interval: interval,
	}
	pl.execute = pl.pollExecutor
	return pl
}

// Interval returns the poll interval.
func (p *Polling) Interval() time.Duration {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.interval
}

// SetInterval changes the poll interval and restarts polling if it was running.
func (p *Polling) SetInterval(d time.Duration) {
	if d <= 0 {
		return
	}
	p.mu.Lock()
	p.interval = d
	p.mu.Unlock()

	if p.IsPolling() {
		p.StartPolling()
	}
}

// StartPolling replaces any running poll timer with a new one and starts the
// disconnect check if it is armed.
func (p *Polling) StartPolling() {
	if p.Disposed() {
		return
	}
	interval := p.Interval()
	p.Log(logging.LevelDebug, fmt.Sprintf("starting polling every %s", interval))
	p.pollTimer.replace(interval, p.PollNow)
	p.StartDisconnectCheck()
}

// StopPolling cancels the poll timer. A poll already in flight completes.
func (p *Polling) StopPolling() {
	p.Log(logging.LevelDebug, "stopping polling")
	p.pollTimer.stop()
}

// IsPolling reports whether a poll timer is active.
func (p *Polling) IsPolling() bool {
	return p.pollTimer.running()
}

// PollNow runs one tick synchronously. It must not be called from a listener
// of the same emitter since ticks are serialized.
func (p *Polling) PollNow(ctx context.Context) {
	p.pollMu.Lock()
	defer p.pollMu.Unlock()

	if ctx.Err() != nil || p.Disposed() {
		return
	}
	p.execute(ctx)
}

func (p *Polling) pollExecutor(ctx context.Context) {
	data, ok := p.fetch(ctx)
	if !ok {
		return
	}
	p.publish(p.BuildDataEvent(data))
}

// fetch polls the source and applies the failure transition. ok is false when
// the poll failed or the tick was cancelled meanwhile.
func (p *Polling) fetch(ctx context.Context) (any, bool) {
	data, err := p.poller.Poll(ctx)
	if ctx.Err() != nil {
		return nil, false
	}
	if err != nil {
		p.Log(logging.LevelWarn, fmt.Sprintf("poll failed: %v", err))
		p.Faulted()
		return nil, false
	}
	return data, true
}

// heard applies the success transitions without emitting data.
func (p *Polling) heard() {
	p.MarkHeard()
	p.Connected()
	p.ClearIfFaulted()
}

func (p *Polling) publish(evt DataEvent) {
	p.heard()

	p.mu.Lock()
	p.lastData = &evt
	p.mu.Unlock()

	p.NotifyData(evt)
}

// ApplySettings validates the poll interval before delegating to the base.
// A positive interval replaces the current one; polling restarts only if it
// was running.
func (p *Polling) ApplySettings(ctx context.Context, s model.Settings) model.ExecutionResult {
	if s.PollInterval < 0 {
		return model.Failed(s.ActionID, fmt.Sprintf("invalid poll interval %s", s.PollInterval))
	}
	res := p.Base.ApplySettings(ctx, s)
	if !res.Success {
		return res
	}
	p.SetInterval(s.PollInterval)
	return res
}

// ProbeCurrentData returns the last cached event, or an event without data if
// nothing was produced yet.
func (p *Polling) ProbeCurrentData(ctx context.Context) (DataEvent, error) {
	p.mu.RLock()
	last := p.lastData
	p.mu.RUnlock()

	if last == nil {
		return p.BuildDataEvent(nil), nil
	}
	return *last, nil
}

// Start implements lifecycle.Service.
func (p *Polling) Start(ctx context.Context) error {
	if p.Disposed() {
		return ErrDisposed
	}
	p.StartPolling()
	return nil
}

// Stop implements lifecycle.Service. It stops polling and the disconnect
// check; Start resumes both.
func (p *Polling) Stop(ctx context.Context) error {
	p.StopPolling()
	p.dcTimer.stop()
	return nil
}

// Dispose stops both timers. It is idempotent.
func (p *Polling) Dispose() {
	p.pollTimer.stop()
	p.Base.Dispose()
}
