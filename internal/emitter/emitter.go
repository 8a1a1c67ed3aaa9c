// Package emitter implements the data source abstraction: identity, listener
// fan-out, the connection/fault state machine, disconnect detection, polling
// schedulers and description based serialization.
//
// Concrete emitters embed one of Base, Polling, Delta or Accepting and supply
// the per-type behavior through the Kind, Poller or DeltaPoller interfaces.
package emitter

import (
	"context"

	"github.com/GabrielNunesIT/emitterkit/internal/lifecycle"
	"github.com/GabrielNunesIT/emitterkit/internal/model"
)

// Emitter is a data source producing data and status events.
type Emitter interface {
	ID() string
	Name() string
	Description() string

	// Type returns the registry key the emitter is rebuilt under.
	Type() string

	OnData(l DataListener) lifecycle.Disposable
	OnStatus(l StatusListener) lifecycle.Disposable

	ApplySettings(ctx context.Context, s model.Settings) model.ExecutionResult
	SendCommand(ctx context.Context, cmd model.Command) (model.ExecutionResult, error)

	// ProbeStatus and ProbeCurrentData never block on a fresh fetch.
	ProbeStatus(ctx context.Context) (StatusEvent, error)
	ProbeCurrentData(ctx context.Context) (DataEvent, error)

	MetaData() any
	SerializeState(fs model.FormatSettings) (string, error)

	lifecycle.Disposable
}

// Kind is the per-type behavior a concrete emitter hands to the base.
type Kind interface {
	Type() string
	MetaData() any
}

// PropertiesProvider is implemented by kinds whose description carries
// type specific properties. Kinds without it serialize an empty object.
type PropertiesProvider interface {
	EmitterProperties() any
}

// Compound exposes the members of an emitter that aggregates several others.
type Compound interface {
	Emitter
	Member(id string) (Emitter, bool)
	Members() []Emitter
}
