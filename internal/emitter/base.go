package emitter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/GabrielNunesIT/emitterkit/internal/envelope"
	"github.com/GabrielNunesIT/emitterkit/internal/lifecycle"
	"github.com/GabrielNunesIT/emitterkit/internal/logging"
	"github.com/GabrielNunesIT/emitterkit/internal/model"
)

var (
	// ErrUnsupportedCommand is returned for commands an emitter does not know.
	ErrUnsupportedCommand = errors.New("unsupported command")
	// ErrDisposed is returned when starting an emitter that was disposed.
	ErrDisposed = errors.New("emitter disposed")
)

// DefaultDisconnectThreshold is how long an emitter may stay silent before the
// disconnect check marks it disconnected.
const DefaultDisconnectThreshold = 60 * time.Second

// Option configures a Base.
type Option func(*Base)

// WithLogger sets the logging facade.
func WithLogger(f logging.Facade) Option {
	return func(b *Base) {
		if f != nil {
			b.log = f
		}
	}
}

// WithDisconnectDetection arms disconnect detection. The check timer starts
// when the emitter starts producing (StartPolling, Accepting.Start) or
// immediately through SetDisconnectCheck.
func WithDisconnectDetection(interval, threshold time.Duration) Option {
	return func(b *Base) {
		b.dcInterval = interval
		if threshold > 0 {
			b.dcThreshold = threshold
		}
	}
}

// Base holds identity, listeners and the connection/fault state machine.
type Base struct {
	kind  Kind
	owner Emitter
	log   logging.Facade

	mu          sync.RWMutex
	id          string
	name        string
	description string
	connected   bool
	faulted     bool
	disposed    bool
	lastHeard   time.Time
	dcInterval  time.Duration
	dcThreshold time.Duration

	dataListeners   listenerSet[DataListener]
	statusListeners listenerSet[StatusListener]
	dcTimer         timerSlot
}

// NewBase creates a base for kind. When kind itself implements Emitter (the
// usual case for a struct embedding the base) events are attributed to it.
func NewBase(id, name, description string, kind Kind, opts ...Option) *Base {
	b := &Base{
		kind:        kind,
		log:         logging.Nop(),
		id:          id,
		name:        name,
		description: description,
		dcThreshold: DefaultDisconnectThreshold,
	}
	if e, ok := kind.(Emitter); ok {
		b.owner = e
	}
	for _, opt := range opts {
		opt(b)
	}
	b.Log(logging.LevelDebug, "creating emitter")
	return b
}

// ID returns the emitter identifier.
func (b *Base) ID() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.id
}

// Name returns the emitter name.
func (b *Base) Name() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.name
}

// Description returns the communication link description.
func (b *Base) Description() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.description
}

// Identity returns id, name and description together.
func (b *Base) Identity() model.Identity {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return model.Identity{ID: b.id, Name: b.name, Description: b.description}
}

// MarshalJSON limits JSON encoding of an emitter to its identity.
func (b *Base) MarshalJSON() ([]byte, error) {
	return json.Marshal(b.Identity())
}

// Log writes msg prefixed with type, name and id.
func (b *Base) Log(level logging.Level, msg string) {
	id := b.Identity()
	logging.Log(b.log, level, fmt.Sprintf("%s|%s|%s| %s", b.kind.Type(), id.Name, id.ID, msg))
}

// OnData registers a data listener.
func (b *Base) OnData(l DataListener) lifecycle.Disposable {
	b.Log(logging.LevelDebug, "adding data listener")
	return b.dataListeners.add(l)
}

// OnStatus registers a status listener.
func (b *Base) OnStatus(l StatusListener) lifecycle.Disposable {
	b.Log(logging.LevelDebug, "adding status listener")
	return b.statusListeners.add(l)
}

// NotifyData delivers evt to every data listener in registration order.
// Nothing is delivered once the emitter is disposed.
func (b *Base) NotifyData(evt DataEvent) {
	if b.Disposed() {
		return
	}
	b.Log(logging.LevelTrace, "notifying data listeners")
	for _, l := range b.dataListeners.snapshot() {
		l.OnData(evt)
	}
}

// NotifyStatus delivers evt to every status listener in registration order.
func (b *Base) NotifyStatus(evt StatusEvent) {
	if b.Disposed() {
		return
	}
	b.Log(logging.LevelDebug, fmt.Sprintf("notifying %d listeners of a status change", b.statusListeners.len()))
	for _, l := range b.statusListeners.snapshot() {
		l.OnStatus(evt)
	}
}

// transition flips one flag under lock and notifies outside it, so listeners
// may call back into the emitter.
func (b *Base) transition(flag *bool, want bool) {
	b.mu.Lock()
	if b.disposed || *flag == want {
		b.mu.Unlock()
		return
	}
	*flag = want
	evt := b.statusEventLocked()
	b.mu.Unlock()

	b.NotifyStatus(evt)
}

// Connected marks the emitter connected, notifying only on change.
func (b *Base) Connected() { b.transition(&b.connected, true) }

// Disconnected marks the emitter disconnected, notifying only on change.
func (b *Base) Disconnected() { b.transition(&b.connected, false) }

// Faulted sets the built-in-test flag, notifying only on change.
func (b *Base) Faulted() { b.transition(&b.faulted, true) }

// ClearIfFaulted clears the built-in-test flag, notifying only on change.
func (b *Base) ClearIfFaulted() { b.transition(&b.faulted, false) }

// IsConnected reports the connection flag.
func (b *Base) IsConnected() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.connected
}

// IsFaulted reports the built-in-test flag.
func (b *Base) IsFaulted() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.faulted
}

// BuildStatusEvent snapshots the current state.
func (b *Base) BuildStatusEvent() StatusEvent {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.statusEventLocked()
}

func (b *Base) statusEventLocked() StatusEvent {
	return StatusEvent{
		Emitter:   b.owner,
		Connected: b.connected,
		BIT:       b.faulted,
		Timestamp: time.Now(),
	}
}

// BuildDataEvent wraps data with attribution and the kind's metadata.
func (b *Base) BuildDataEvent(data any) DataEvent {
	return DataEvent{
		Emitter:   b.owner,
		Timestamp: time.Now(),
		Data:      data,
		Meta:      b.kind.MetaData(),
	}
}

// MarkHeard records a successful data production for disconnect detection.
func (b *Base) MarkHeard() {
	b.mu.Lock()
	b.lastHeard = time.Now()
	b.mu.Unlock()
}

// LastHeard returns the last successful production time, zero if never.
func (b *Base) LastHeard() time.Time {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.lastHeard
}

// DisconnectSettings returns the current disconnect check interval and
// threshold. A zero interval means detection is off.
func (b *Base) DisconnectSettings() (interval, threshold time.Duration) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.dcInterval, b.dcThreshold
}

// SetDisconnectCheck replaces the disconnect check timer. A non-positive
// interval disables detection; a non-positive threshold keeps the current one.
func (b *Base) SetDisconnectCheck(interval, threshold time.Duration) {
	b.mu.Lock()
	if b.disposed {
		b.mu.Unlock()
		return
	}
	b.dcInterval = interval
	if threshold > 0 {
		b.dcThreshold = threshold
	}
	threshold = b.dcThreshold
	b.mu.Unlock()

	if interval <= 0 {
		b.Log(logging.LevelDebug, "disabling the d/c check")
		b.dcTimer.stop()
		return
	}

	b.Log(logging.LevelDebug, fmt.Sprintf("setting the d/c check interval to %s with a threshold of %s", interval, threshold))
	b.dcTimer.replace(interval, b.checkDisconnect)
}

// StartDisconnectCheck starts the configured check if it is armed and idle.
func (b *Base) StartDisconnectCheck() {
	b.mu.RLock()
	interval, threshold := b.dcInterval, b.dcThreshold
	b.mu.RUnlock()

	if interval > 0 && !b.dcTimer.running() {
		b.SetDisconnectCheck(interval, threshold)
	}
}

func (b *Base) checkDisconnect(ctx context.Context) {
	b.mu.RLock()
	last, threshold := b.lastHeard, b.dcThreshold
	b.mu.RUnlock()

	if last.IsZero() {
		b.Log(logging.LevelDebug, "no message from emitter yet, marking disconnected")
		b.Disconnected()
		return
	}
	if elapsed := time.Since(last); elapsed > threshold {
		b.Log(logging.LevelDebug, fmt.Sprintf("it has been %s since we last heard from emitter, marking disconnected", elapsed))
		b.Disconnected()
	}
}

// ApplySettings replaces the identity and, when given, the disconnect check
// settings. It always succeeds at this layer.
func (b *Base) ApplySettings(ctx context.Context, s model.Settings) model.ExecutionResult {
	b.Log(logging.LevelDebug, "applying settings")

	b.mu.Lock()
	b.id = s.ID
	b.name = s.Name
	b.description = s.Description
	b.mu.Unlock()

	if s.DisconnectInterval > 0 {
		b.SetDisconnectCheck(s.DisconnectInterval, s.DisconnectThreshold)
	}

	return model.Succeeded(s.ActionID)
}

// SendCommand rejects every command. Emitters that accept commands override it.
func (b *Base) SendCommand(ctx context.Context, cmd model.Command) (model.ExecutionResult, error) {
	b.Log(logging.LevelWarn, fmt.Sprintf("unsupported command %q", cmd.Name))
	return model.Failed(cmd.ActionID, ErrUnsupportedCommand.Error()), fmt.Errorf("%w: %q", ErrUnsupportedCommand, cmd.Name)
}

// ProbeStatus returns the current state without touching the source.
func (b *Base) ProbeStatus(ctx context.Context) (StatusEvent, error) {
	return b.BuildStatusEvent(), nil
}

// ProbeCurrentData has nothing cached at this layer and returns an event
// without data.
func (b *Base) ProbeCurrentData(ctx context.Context) (DataEvent, error) {
	return b.BuildDataEvent(nil), nil
}

// EmitterDescription builds the description used to recreate the emitter.
func (b *Base) EmitterDescription() (model.Description, error) {
	var props any = struct{}{}
	if pp, ok := b.kind.(PropertiesProvider); ok {
		props = pp.EmitterProperties()
	}
	raw, err := json.Marshal(props)
	if err != nil {
		return model.Description{}, fmt.Errorf("marshaling emitter properties: %w", err)
	}

	id := b.Identity()
	return model.Description{
		Type:              b.kind.Type(),
		ID:                id.ID,
		Name:              id.Name,
		Description:       id.Description,
		EmitterProperties: raw,
	}, nil
}

// SerializeState encodes the description as JSON, sealed when fs.Encrypted.
func (b *Base) SerializeState(fs model.FormatSettings) (string, error) {
	desc, err := b.EmitterDescription()
	if err != nil {
		return "", err
	}
	return envelope.EncodeJSON(desc, fs)
}

// Disposed reports whether Dispose has run.
func (b *Base) Disposed() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.disposed
}

// Dispose stops the disconnect check. It is idempotent.
func (b *Base) Dispose() {
	b.mu.Lock()
	if b.disposed {
		b.mu.Unlock()
		return
	}
	b.disposed = true
	b.mu.Unlock()

	b.dcTimer.stop()
	b.Log(logging.LevelDebug, "disposing")
}
