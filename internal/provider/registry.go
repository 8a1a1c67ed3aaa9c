// Package provider maps declared component types to the factories that build
// and rebuild them.
package provider

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/GabrielNunesIT/emitterkit/internal/chronicler"
	"github.com/GabrielNunesIT/emitterkit/internal/emitter"
	"github.com/GabrielNunesIT/emitterkit/internal/model"
)

// ErrNoFactory is returned when no factory is registered for a type.
var ErrNoFactory = errors.New("no factory")

// Registry holds emitter and chronicler factories keyed by lower-cased type.
// The last registration for a key wins. It is safe for concurrent use, but a
// register followed by a lookup is not atomic against other registrations.
type Registry struct {
	mu          sync.RWMutex
	emitters    map[string]emitter.Factory
	chroniclers map[string]chronicler.Factory
}

var (
	_ emitter.Builder    = (*Registry)(nil)
	_ chronicler.Builder = (*Registry)(nil)
)

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		emitters:    make(map[string]emitter.Factory),
		chroniclers: make(map[string]chronicler.Factory),
	}
}

func key(typ string) string {
	return strings.ToLower(typ)
}

func noFactory(kind, typ string) error {
	return fmt.Errorf("%w for %s type %q", ErrNoFactory, kind, typ)
}

// RegisterEmitterFactory registers f for typ, replacing any previous factory.
func (r *Registry) RegisterEmitterFactory(typ string, f emitter.Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.emitters[key(typ)] = f
}

// RemoveEmitterFactory unregisters typ.
func (r *Registry) RemoveEmitterFactory(typ string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.emitters, key(typ))
}

// HasEmitterFactory reports whether typ is registered.
func (r *Registry) HasEmitterFactory(typ string) bool {
	_, ok := r.emitterFactory(typ)
	return ok
}

// EmitterFactoryTypes returns the registered emitter types, sorted.
func (r *Registry) EmitterFactoryTypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedKeys(r.emitters)
}

func (r *Registry) emitterFactory(typ string) (emitter.Factory, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.emitters[key(typ)]
	return f, ok
}

// BuildEmitter builds an emitter through the factory registered for desc.Type.
func (r *Registry) BuildEmitter(ctx context.Context, desc model.Description) (emitter.Emitter, error) {
	f, ok := r.emitterFactory(desc.Type)
	if !ok {
		return nil, noFactory("emitter", desc.Type)
	}
	e, err := f.Build(ctx, desc)
	if err != nil {
		return nil, fmt.Errorf("building %s emitter %q: %w", desc.Type, desc.ID, err)
	}
	return e, nil
}

// RecreateEmitter rebuilds an emitter from serialized state through the
// factory registered for fs.Type. When fs.Type is empty the state is opened
// and the description's own type is used.
func (r *Registry) RecreateEmitter(ctx context.Context, state string, fs model.FormatSettings) (emitter.Emitter, error) {
	if fs.Type == "" {
		return emitter.Recreate(ctx, r, state, fs)
	}
	f, ok := r.emitterFactory(fs.Type)
	if !ok {
		return nil, noFactory("emitter", fs.Type)
	}
	return f.Recreate(ctx, state, fs)
}

// RegisterChroniclerFactory registers f for typ, replacing any previous factory.
func (r *Registry) RegisterChroniclerFactory(typ string, f chronicler.Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.chroniclers[key(typ)] = f
}

// RemoveChroniclerFactory unregisters typ.
func (r *Registry) RemoveChroniclerFactory(typ string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.chroniclers, key(typ))
}

// HasChroniclerFactory reports whether typ is registered.
func (r *Registry) HasChroniclerFactory(typ string) bool {
	_, ok := r.chroniclerFactory(typ)
	return ok
}

// ChroniclerFactoryTypes returns the registered chronicler types, sorted.
func (r *Registry) ChroniclerFactoryTypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedKeys(r.chroniclers)
}

func (r *Registry) chroniclerFactory(typ string) (chronicler.Factory, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.chroniclers[key(typ)]
	return f, ok
}

// BuildChronicler builds a chronicler through the factory registered for desc.Type.
func (r *Registry) BuildChronicler(ctx context.Context, desc model.ChroniclerDescription) (chronicler.Chronicler, error) {
	f, ok := r.chroniclerFactory(desc.Type)
	if !ok {
		return nil, noFactory("chronicler", desc.Type)
	}
	c, err := f.Build(ctx, desc)
	if err != nil {
		return nil, fmt.Errorf("building %s chronicler %q: %w", desc.Type, desc.ID, err)
	}
	return c, nil
}

// RecreateChronicler is the chronicler counterpart of RecreateEmitter.
func (r *Registry) RecreateChronicler(ctx context.Context, state string, fs model.FormatSettings) (chronicler.Chronicler, error) {
	if fs.Type == "" {
		return chronicler.Recreate(ctx, r, state, fs)
	}
	f, ok := r.chroniclerFactory(fs.Type)
	if !ok {
		return nil, noFactory("chronicler", fs.Type)
	}
	return f.Recreate(ctx, state, fs)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
