// Package pipeline wires emitters to chroniclers: every data and status event
// of every emitter is fanned out to every chronicler.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/GabrielNunesIT/go-libs/logger"

	"github.com/GabrielNunesIT/emitterkit/internal/chronicler"
	"github.com/GabrielNunesIT/emitterkit/internal/config"
	"github.com/GabrielNunesIT/emitterkit/internal/emitter"
	"github.com/GabrielNunesIT/emitterkit/internal/lifecycle"
	"github.com/GabrielNunesIT/emitterkit/internal/metrics"
	"github.com/GabrielNunesIT/emitterkit/internal/model"
	"github.com/GabrielNunesIT/emitterkit/internal/processor"
	"github.com/GabrielNunesIT/emitterkit/internal/provider"
	"github.com/GabrielNunesIT/emitterkit/internal/statestore"
)

// managedEmitter wraps an emitter with the listeners linking it to the pipeline.
type managedEmitter struct {
	cfg     config.ComponentConfig
	emitter emitter.Emitter
	links   lifecycle.Group
}

// managedChronicler wraps a chronicler with the config it was built from.
type managedChronicler struct {
	cfg        config.ComponentConfig
	chronicler chronicler.Chronicler
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithStateStore persists component state to s and, when the config asks for
// it, restores components from it.
func WithStateStore(s *statestore.Store) Option {
	return func(p *Pipeline) {
		p.store = s
	}
}

// WithMetrics records emitter and chronicler activity.
func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Pipeline) {
		p.metrics = m
	}
}

// Pipeline coordinates emitters and chroniclers.
type Pipeline struct {
	registry *provider.Registry
	store    *statestore.Store
	metrics  *metrics.Metrics
	logger   logger.ILogger

	mu          sync.Mutex
	cfg         *config.Config
	emitters    map[string]*managedEmitter
	chroniclers map[string]*managedChronicler
	runCtx      context.Context

	// sinks is the chronicler set the fan-out delivers to. It has its own
	// lock so delivery never waits on a reconfiguration.
	sinksMu sync.RWMutex
	sinks   []chronicler.Chronicler

	chain        atomic.Pointer[processor.Chain]
	records      chan chronicler.Record
	dropOnFull   atomic.Bool
	stopping     chan struct{}
	stopOnce     sync.Once
	shutdownOnce sync.Once
}

// New builds every configured component through the registry.
func New(ctx context.Context, cfg *config.Config, registry *provider.Registry, log logger.ILogger, opts ...Option) (*Pipeline, error) {
	p := &Pipeline{
		registry:    registry,
		logger:      log.SubLogger("Pipeline"),
		cfg:         cfg,
		emitters:    make(map[string]*managedEmitter),
		chroniclers: make(map[string]*managedChronicler),
		records:     make(chan chronicler.Record, max(cfg.Pipeline.BufferSize, 1)),
		stopping:    make(chan struct{}),
	}
	p.dropOnFull.Store(cfg.Pipeline.DropOnFullBuffer)
	for _, opt := range opts {
		opt(p)
	}

	if len(cfg.Emitters) == 0 {
		return nil, errors.New("no emitters configured")
	}
	if len(cfg.Chroniclers) == 0 {
		return nil, errors.New("no chroniclers configured")
	}

	chain, err := processor.FromConfig(cfg.Processor)
	if err != nil {
		return nil, fmt.Errorf("building processor chain: %w", err)
	}
	p.chain.Store(chain)

	p.mu.Lock()
	defer p.mu.Unlock()

	for _, comp := range cfg.Chroniclers {
		if err := p.addChroniclerLocked(ctx, comp); err != nil {
			p.disposeAllLocked(ctx)
			return nil, fmt.Errorf("building chroniclers: %w", err)
		}
	}
	for _, comp := range cfg.Emitters {
		if err := p.addEmitterLocked(ctx, comp); err != nil {
			p.disposeAllLocked(ctx)
			return nil, fmt.Errorf("building emitters: %w", err)
		}
	}

	p.logger.Debugf("built %d emitters and %d chroniclers", len(p.emitters), len(p.chroniclers))
	return p, nil
}

// Run starts every component and blocks until ctx is cancelled. Components
// are stopped, snapshotted and disposed before it returns.
func (p *Pipeline) Run(ctx context.Context) error {
	p.mu.Lock()
	p.runCtx = ctx
	chroniclers := p.chroniclerListLocked()
	emitters := p.emitterListLocked()
	snapshotInterval := p.cfg.Pipeline.SnapshotInterval
	p.mu.Unlock()

	for _, c := range chroniclers {
		if svc, ok := c.(lifecycle.Service); ok {
			if err := svc.Start(ctx); err != nil {
				p.shutdown()
				return fmt.Errorf("starting chronicler %s: %w", c.ID(), err)
			}
		}
		p.logger.Debugf("started chronicler: %s", c.ID())
	}

	// A source that fails to start reports the fault through its status.
	for _, em := range emitters {
		p.startEmitter(ctx, em)
	}

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return p.runFanout(gCtx)
	})

	if p.store != nil && snapshotInterval > 0 {
		g.Go(func() error {
			return p.runSnapshots(gCtx, snapshotInterval)
		})
	}

	err := g.Wait()

	// Graceful shutdown
	p.shutdown()

	return err
}

func (p *Pipeline) startEmitter(ctx context.Context, em emitter.Emitter) {
	svc, ok := em.(lifecycle.Service)
	if !ok {
		return
	}
	if err := svc.Start(ctx); err != nil {
		p.logger.Warningf("emitter start error: id=%s, error=%v", em.ID(), err)
		return
	}
	p.logger.Debugf("started emitter: %s", em.ID())
}

// shutdown stops emitters, takes a final snapshot, delivers what is still
// buffered and disposes everything.
func (p *Pipeline) shutdown() {
	p.shutdownOnce.Do(func() {
		p.stopOnce.Do(func() { close(p.stopping) })

		p.mu.Lock()
		timeout := p.cfg.Pipeline.ShutdownTimeout
		p.runCtx = nil
		p.mu.Unlock()

		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		p.mu.Lock()
		emitters := p.emitterListLocked()
		p.mu.Unlock()

		for _, em := range emitters {
			if svc, ok := em.(lifecycle.Service); ok {
				if err := svc.Stop(shutdownCtx); err != nil {
					p.logger.Warningf("emitter stop error: id=%s, error=%v", em.ID(), err)
				}
			}
		}
		p.logger.Debug("all emitters stopped")

		if err := p.Snapshot(shutdownCtx); err != nil {
			p.logger.Warningf("final snapshot failed: %v", err)
		}

		p.mu.Lock()
		defer p.mu.Unlock()

		for _, me := range p.emitters {
			me.links.Dispose()
			me.emitter.Dispose()
		}
		p.drain(shutdownCtx)

		for _, mc := range p.chroniclers {
			if err := mc.chronicler.DisposeAsync(shutdownCtx); err != nil {
				p.logger.Warningf("chronicler dispose error: id=%s, error=%v", mc.cfg.ID, err)
			}
		}
		p.logger.Debug("all chroniclers disposed")
	})
}

func (p *Pipeline) disposeAllLocked(ctx context.Context) {
	for id := range p.emitters {
		p.removeEmitterLocked(ctx, id, false)
	}
	for id := range p.chroniclers {
		p.removeChroniclerLocked(ctx, id, false)
	}
}

// enqueue hands a record to the fan-out. When the buffer is full the record
// is dropped or the caller waits, depending on the pipeline config.
func (p *Pipeline) enqueue(rec chronicler.Record) {
	select {
	case p.records <- rec:
		return
	case <-p.stopping:
		return
	default:
	}

	if p.dropOnFull.Load() {
		p.logger.Debug("buffer full, dropping record")
		if p.metrics != nil {
			p.metrics.Dropped()
		}
		return
	}

	select {
	case p.records <- rec:
	case <-p.stopping:
	}
}

// runFanout distributes records to all chroniclers.
func (p *Pipeline) runFanout(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			p.drain(ctx)
			return ctx.Err()
		case rec := <-p.records:
			p.deliver(ctx, rec)
		}
	}
}

// drain delivers whatever is buffered without waiting for more.
func (p *Pipeline) drain(ctx context.Context) {
	for {
		select {
		case rec := <-p.records:
			p.deliver(context.WithoutCancel(ctx), rec)
		default:
			return
		}
	}
}

// deliver runs the processor chain over a record and saves the result to
// every chronicler concurrently.
func (p *Pipeline) deliver(ctx context.Context, rec chronicler.Record) {
	if chain := p.chain.Load(); chain != nil && chain.Len() > 0 {
		fields := rec.Record()
		if err := chain.Process(ctx, fields); err != nil {
			p.logger.Debugf("processing failed, dropping record: %v", err)
			return
		}
		rec = chronicler.Fields(fields)
	}

	p.sinksMu.RLock()
	sinks := p.sinks
	p.sinksMu.RUnlock()

	var wg sync.WaitGroup
	for _, c := range sinks {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := c.SaveRecord(ctx, rec)
			if err != nil {
				p.logger.Debugf("save error: chronicler=%s, error=%v", c.ID(), err)
			}
			if p.metrics != nil {
				p.metrics.RecordSaved(c.ID(), err)
			}
		}()
	}
	wg.Wait()
}

func (p *Pipeline) runSnapshots(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := p.Snapshot(ctx); err != nil {
				p.logger.Warningf("snapshot failed: %v", err)
			}
		}
	}
}

// Snapshot serializes every component into the state store. It is a no-op
// without a store.
func (p *Pipeline) Snapshot(ctx context.Context) error {
	if p.store == nil {
		return nil
	}

	p.mu.Lock()
	fs := p.cfg.Format.Settings()
	entries := make([]statestore.Entry, 0, len(p.emitters)+len(p.chroniclers))
	var errs []error
	for id, me := range p.emitters {
		typ := me.emitter.Type()
		state, err := me.emitter.SerializeState(fs.WithType(typ))
		if err != nil {
			errs = append(errs, fmt.Errorf("serializing emitter %s: %w", id, err))
			continue
		}
		entries = append(entries, statestore.Entry{ID: id, Kind: statestore.KindEmitter, Type: typ, State: state})
	}
	for id, mc := range p.chroniclers {
		typ := mc.chronicler.Type()
		state, err := mc.chronicler.SerializeState(fs.WithType(typ))
		if err != nil {
			errs = append(errs, fmt.Errorf("serializing chronicler %s: %w", id, err))
			continue
		}
		entries = append(entries, statestore.Entry{ID: id, Kind: statestore.KindChronicler, Type: typ, State: state})
	}
	p.mu.Unlock()

	now := time.Now()
	for _, e := range entries {
		e.UpdatedAt = now
		if err := p.store.Put(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}

	p.logger.Debugf("snapshot stored %d components", len(entries))
	return errors.Join(errs...)
}

// Reconfigure applies a new configuration. Components that disappeared are
// removed, new ones are added, and surviving emitters get the new identity
// and properties as a settings action. Chroniclers whose config changed are
// rebuilt.
func (p *Pipeline) Reconfigure(ctx context.Context, newCfg *config.Config) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.cfg = newCfg
	p.dropOnFull.Store(newCfg.Pipeline.DropOnFullBuffer)

	var errs []error
	if chain, err := processor.FromConfig(newCfg.Processor); err != nil {
		errs = append(errs, fmt.Errorf("rebuilding processor chain: %w", err))
	} else {
		p.chain.Store(chain)
	}
	if err := p.reconfigureChroniclersLocked(ctx, newCfg.Chroniclers); err != nil {
		errs = append(errs, fmt.Errorf("reconfiguring chroniclers: %w", err))
	}
	if err := p.reconfigureEmittersLocked(ctx, newCfg.Emitters); err != nil {
		errs = append(errs, fmt.Errorf("reconfiguring emitters: %w", err))
	}

	p.logger.Infof("configuration applied: emitters=%d, chroniclers=%d", len(p.emitters), len(p.chroniclers))
	return errors.Join(errs...)
}

func (p *Pipeline) reconfigureEmittersLocked(ctx context.Context, comps []config.ComponentConfig) error {
	want := make(map[string]config.ComponentConfig, len(comps))
	for _, comp := range comps {
		want[comp.ID] = comp
	}

	// Remove emitters that are gone or changed type
	for id, me := range p.emitters {
		comp, ok := want[id]
		if !ok || !strings.EqualFold(comp.Type, me.cfg.Type) {
			p.removeEmitterLocked(ctx, id, true)
		}
	}

	var errs []error
	for _, comp := range comps {
		me, ok := p.emitters[comp.ID]
		switch {
		case !ok:
			if err := p.addEmitterLocked(ctx, comp); err != nil {
				errs = append(errs, err)
			}
		case !reflect.DeepEqual(me.cfg, comp):
			if err := p.applySettings(ctx, me, comp); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

func (p *Pipeline) reconfigureChroniclersLocked(ctx context.Context, comps []config.ComponentConfig) error {
	want := make(map[string]config.ComponentConfig, len(comps))
	for _, comp := range comps {
		want[comp.ID] = comp
	}

	for id, mc := range p.chroniclers {
		if comp, ok := want[id]; !ok || !reflect.DeepEqual(comp, mc.cfg) {
			p.removeChroniclerLocked(ctx, id, true)
		}
	}

	var errs []error
	for _, comp := range comps {
		if _, ok := p.chroniclers[comp.ID]; ok {
			continue
		}
		if err := p.addChroniclerLocked(ctx, comp); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// scheduling is the part of emitter properties mapped onto model.Settings.
type scheduling struct {
	Interval            model.Duration `json:"interval"`
	DisconnectInterval  model.Duration `json:"disconnectInterval"`
	DisconnectThreshold model.Duration `json:"disconnectThreshold"`
}

// applySettings sends comp to a running emitter as a settings action.
func (p *Pipeline) applySettings(ctx context.Context, me *managedEmitter, comp config.ComponentConfig) error {
	desc, err := comp.EmitterDescription()
	if err != nil {
		return err
	}

	var sched scheduling
	if len(desc.EmitterProperties) > 0 {
		if err := json.Unmarshal(desc.EmitterProperties, &sched); err != nil {
			return fmt.Errorf("decoding scheduling of emitter %s: %w", comp.ID, err)
		}
	}

	settings := model.Settings{
		ActionID:            model.NewActionID(),
		ID:                  comp.ID,
		Name:                comp.Name,
		Description:         comp.Description,
		PollInterval:        sched.Interval.Std(),
		DisconnectInterval:  sched.DisconnectInterval.Std(),
		DisconnectThreshold: sched.DisconnectThreshold.Std(),
		Additional:          desc.EmitterProperties,
	}

	res := me.emitter.ApplySettings(ctx, settings)
	if !res.Success {
		return fmt.Errorf("settings rejected by emitter %s (action %s): %s", comp.ID, res.ActionID, res.FailureReason)
	}

	me.cfg = comp
	p.logger.Infof("settings applied: emitter=%s, action=%s", comp.ID, res.ActionID)
	return nil
}

// addEmitterLocked builds, links and, when running, starts an emitter.
func (p *Pipeline) addEmitterLocked(ctx context.Context, comp config.ComponentConfig) error {
	em, err := p.buildEmitter(ctx, comp)
	if err != nil {
		return err
	}

	me := &managedEmitter{cfg: comp, emitter: em}
	me.links.Add(em.OnData(emitter.DataListenerFunc(func(evt emitter.DataEvent) { p.enqueue(evt) })))
	me.links.Add(em.OnStatus(emitter.StatusListenerFunc(func(evt emitter.StatusEvent) { p.enqueue(evt) })))
	if p.metrics != nil {
		me.links.Add(p.metrics.Observe(em))
	}
	p.emitters[comp.ID] = me

	if p.runCtx != nil {
		p.startEmitter(p.runCtx, em)
		p.logger.Infof("emitter added: %s", comp.ID)
	}
	return nil
}

func (p *Pipeline) buildEmitter(ctx context.Context, comp config.ComponentConfig) (emitter.Emitter, error) {
	if entry, ok := p.storedState(ctx, statestore.KindEmitter, comp); ok {
		em, err := p.registry.RecreateEmitter(ctx, entry.State, p.cfg.Format.Settings().WithType(entry.Type))
		if err == nil {
			p.logger.Debugf("restored emitter %s from state", comp.ID)
			return em, nil
		}
		p.logger.Warningf("restoring emitter %s failed, building from config: %v", comp.ID, err)
	}

	desc, err := comp.EmitterDescription()
	if err != nil {
		return nil, err
	}
	return p.registry.BuildEmitter(ctx, desc)
}

// removeEmitterLocked stops, unlinks and disposes an emitter. forget also
// deletes its stored state.
func (p *Pipeline) removeEmitterLocked(ctx context.Context, id string, forget bool) {
	me, ok := p.emitters[id]
	if !ok {
		return
	}

	if svc, ok := me.emitter.(lifecycle.Service); ok {
		if err := svc.Stop(ctx); err != nil {
			p.logger.Warningf("emitter stop error: id=%s, error=%v", id, err)
		}
	}
	me.links.Dispose()
	me.emitter.Dispose()
	delete(p.emitters, id)

	if forget {
		p.forget(ctx, statestore.KindEmitter, id)
	}
	p.logger.Infof("emitter removed: %s", id)
}

// addChroniclerLocked builds and, when running, starts a chronicler.
func (p *Pipeline) addChroniclerLocked(ctx context.Context, comp config.ComponentConfig) error {
	c, err := p.buildChronicler(ctx, comp)
	if err != nil {
		return err
	}

	if p.runCtx != nil {
		if svc, ok := c.(lifecycle.Service); ok {
			if err := svc.Start(p.runCtx); err != nil {
				_ = c.DisposeAsync(ctx)
				return fmt.Errorf("starting chronicler %s: %w", comp.ID, err)
			}
		}
		p.logger.Infof("chronicler added: %s", comp.ID)
	}

	p.chroniclers[comp.ID] = &managedChronicler{cfg: comp, chronicler: c}
	p.publishSinksLocked()
	return nil
}

func (p *Pipeline) buildChronicler(ctx context.Context, comp config.ComponentConfig) (chronicler.Chronicler, error) {
	if entry, ok := p.storedState(ctx, statestore.KindChronicler, comp); ok {
		c, err := p.registry.RecreateChronicler(ctx, entry.State, p.cfg.Format.Settings().WithType(entry.Type))
		if err == nil {
			p.logger.Debugf("restored chronicler %s from state", comp.ID)
			return c, nil
		}
		p.logger.Warningf("restoring chronicler %s failed, building from config: %v", comp.ID, err)
	}

	desc, err := comp.ChroniclerDescription()
	if err != nil {
		return nil, err
	}
	return p.registry.BuildChronicler(ctx, desc)
}

func (p *Pipeline) removeChroniclerLocked(ctx context.Context, id string, forget bool) {
	mc, ok := p.chroniclers[id]
	if !ok {
		return
	}

	delete(p.chroniclers, id)
	p.publishSinksLocked()

	if err := mc.chronicler.DisposeAsync(ctx); err != nil {
		p.logger.Warningf("chronicler dispose error: id=%s, error=%v", id, err)
	}
	if forget {
		p.forget(ctx, statestore.KindChronicler, id)
	}
	p.logger.Infof("chronicler removed: %s", id)
}

func (p *Pipeline) publishSinksLocked() {
	sinks := p.chroniclerListLocked()
	p.sinksMu.Lock()
	p.sinks = sinks
	p.sinksMu.Unlock()
}

// storedState looks up restorable state for comp. Stored state of another
// type than the configured one is ignored.
func (p *Pipeline) storedState(ctx context.Context, kind statestore.Kind, comp config.ComponentConfig) (statestore.Entry, bool) {
	if p.store == nil || !p.cfg.State.Restore {
		return statestore.Entry{}, false
	}
	entry, err := p.store.Get(ctx, kind, comp.ID)
	if err != nil {
		if !errors.Is(err, statestore.ErrNotFound) {
			p.logger.Warningf("reading stored state of %s %s: %v", kind, comp.ID, err)
		}
		return statestore.Entry{}, false
	}
	if !strings.EqualFold(entry.Type, comp.Type) {
		return statestore.Entry{}, false
	}
	return entry, true
}

func (p *Pipeline) forget(ctx context.Context, kind statestore.Kind, id string) {
	if p.store == nil {
		return
	}
	if err := p.store.Delete(ctx, kind, id); err != nil {
		p.logger.Warningf("deleting stored state of %s %s: %v", kind, id, err)
	}
}

func (p *Pipeline) emitterListLocked() []emitter.Emitter {
	ids := make([]string, 0, len(p.emitters))
	for id := range p.emitters {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := make([]emitter.Emitter, 0, len(ids))
	for _, id := range ids {
		out = append(out, p.emitters[id].emitter)
	}
	return out
}

func (p *Pipeline) chroniclerListLocked() []chronicler.Chronicler {
	ids := make([]string, 0, len(p.chroniclers))
	for id := range p.chroniclers {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := make([]chronicler.Chronicler, 0, len(ids))
	for _, id := range ids {
		out = append(out, p.chroniclers[id].chronicler)
	}
	return out
}

// Emitter returns the emitter configured under id.
func (p *Pipeline) Emitter(id string) (emitter.Emitter, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	me, ok := p.emitters[id]
	if !ok {
		return nil, false
	}
	return me.emitter, true
}

// Chronicler returns the chronicler configured under id.
func (p *Pipeline) Chronicler(id string) (chronicler.Chronicler, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	mc, ok := p.chroniclers[id]
	if !ok {
		return nil, false
	}
	return mc.chronicler, true
}

// EmitterCount returns the number of emitters.
func (p *Pipeline) EmitterCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.emitters)
}

// ChroniclerCount returns the number of chroniclers.
func (p *Pipeline) ChroniclerCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.chroniclers)
}

// Close disposes every component of a pipeline that never ran.
func (p *Pipeline) Close(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.disposeAllLocked(ctx)
}
