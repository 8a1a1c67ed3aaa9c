package chronicler

import (
	"context"
	"errors"
	"fmt"

	"github.com/GabrielNunesIT/emitterkit/internal/envelope"
	"github.com/GabrielNunesIT/emitterkit/internal/model"
)

// ErrInvalidState is returned when serialized state cannot be turned back
// into a description.
var ErrInvalidState = errors.New("invalid chronicler state")

// Builder builds chroniclers from descriptions by their declared type.
type Builder interface {
	BuildChronicler(ctx context.Context, desc model.ChroniclerDescription) (Chronicler, error)
}

// Factory builds one chronicler type from a description or serialized state.
type Factory interface {
	Build(ctx context.Context, desc model.ChroniclerDescription) (Chronicler, error)
	Recreate(ctx context.Context, state string, fs model.FormatSettings) (Chronicler, error)
}

// FactoryFunc adapts a build function to Factory.
type FactoryFunc func(ctx context.Context, desc model.ChroniclerDescription) (Chronicler, error)

// Build calls f.
func (f FactoryFunc) Build(ctx context.Context, desc model.ChroniclerDescription) (Chronicler, error) {
	return f(ctx, desc)
}

// Recreate decrypts and parses state, then builds from the description.
func (f FactoryFunc) Recreate(ctx context.Context, state string, fs model.FormatSettings) (Chronicler, error) {
	desc, err := DecodeState(state, fs)
	if err != nil {
		return nil, err
	}
	return f(ctx, desc)
}

// DecodeState is the inverse of SerializeState.
func DecodeState(state string, fs model.FormatSettings) (model.ChroniclerDescription, error) {
	var desc model.ChroniclerDescription
	if err := envelope.DecodeJSON(state, fs, &desc); err != nil {
		return model.ChroniclerDescription{}, fmt.Errorf("%w: %w", ErrInvalidState, err)
	}
	if desc.Type == "" {
		return model.ChroniclerDescription{}, fmt.Errorf("%w: missing type", ErrInvalidState)
	}
	return desc, nil
}

// Recreate decodes state and dispatches the description to b.
func Recreate(ctx context.Context, b Builder, state string, fs model.FormatSettings) (Chronicler, error) {
	desc, err := DecodeState(state, fs)
	if err != nil {
		return nil, err
	}
	return b.BuildChronicler(ctx, desc)
}
