package emitter

import (
	"context"
	"errors"
	"fmt"

	"github.com/GabrielNunesIT/emitterkit/internal/envelope"
	"github.com/GabrielNunesIT/emitterkit/internal/model"
)

// ErrInvalidState is returned when serialized state cannot be turned back
// into a description.
var ErrInvalidState = errors.New("invalid emitter state")

// Builder builds emitters from descriptions by their declared type.
type Builder interface {
	BuildEmitter(ctx context.Context, desc model.Description) (Emitter, error)
}

// Factory builds one emitter type from a description or from serialized state.
type Factory interface {
	Build(ctx context.Context, desc model.Description) (Emitter, error)
	Recreate(ctx context.Context, state string, fs model.FormatSettings) (Emitter, error)
}

// FactoryFunc adapts a build function to Factory. Recreate decodes the state
// and hands the description to the function.
type FactoryFunc func(ctx context.Context, desc model.Description) (Emitter, error)

// Build calls f.
func (f FactoryFunc) Build(ctx context.Context, desc model.Description) (Emitter, error) {
	return f(ctx, desc)
}

// Recreate decrypts and parses state, then builds from the description.
func (f FactoryFunc) Recreate(ctx context.Context, state string, fs model.FormatSettings) (Emitter, error) {
	desc, err := DecodeState(state, fs)
	if err != nil {
		return nil, err
	}
	return f(ctx, desc)
}

// DecodeState is the inverse of SerializeState.
func DecodeState(state string, fs model.FormatSettings) (model.Description, error) {
	var desc model.Description
	if err := envelope.DecodeJSON(state, fs, &desc); err != nil {
		return model.Description{}, fmt.Errorf("%w: %w", ErrInvalidState, err)
	}
	if desc.Type == "" {
		return model.Description{}, fmt.Errorf("%w: missing type", ErrInvalidState)
	}
	return desc, nil
}

// Recreate decodes state and dispatches the description to b.
func Recreate(ctx context.Context, b Builder, state string, fs model.FormatSettings) (Emitter, error) {
	desc, err := DecodeState(state, fs)
	if err != nil {
		return nil, err
	}
	return b.BuildEmitter(ctx, desc)
}
