// Package chronicler defines persistence sinks for emitter records and their
// implementations.
package chronicler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/GabrielNunesIT/emitterkit/internal/envelope"
	"github.com/GabrielNunesIT/emitterkit/internal/lifecycle"
	"github.com/GabrielNunesIT/emitterkit/internal/model"
)

// Record is a value a chronicler can persist. Data and status events
// implement it.
type Record interface {
	Record() map[string]any
}

// Fields adapts a plain map to Record.
type Fields map[string]any

// Record returns f.
func (f Fields) Record() map[string]any { return f }

// Chronicler persists records to a store.
type Chronicler interface {
	ID() string
	Name() string
	Description() string
	Type() string

	// SaveRecord must be safe to call concurrently.
	SaveRecord(ctx context.Context, rec Record) error
	SerializeState(fs model.FormatSettings) (string, error)

	lifecycle.AsyncDisposable
}

// FileChronicler persists to a file.
type FileChronicler interface {
	Chronicler
	CurrentFilename() string
}

// RotatingFileChronicler persists to a set of rotated files.
type RotatingFileChronicler interface {
	FileChronicler
	// Rotate closes the active file, compressing it when configured, and
	// returns the name of the new active file.
	Rotate() (string, error)
}

// HTTPDoer abstracts HTTP client operations for testing.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

var _ HTTPDoer = (*http.Client)(nil)

// Base carries the identity and description of a chronicler.
type Base struct {
	typ   string
	id    model.Identity
	props any
}

// NewBase creates a base. props is serialized as the chronicler properties.
func NewBase(typ string, id model.Identity, props any) Base {
	return Base{typ: typ, id: id, props: props}
}

// ID returns the chronicler identifier.
func (b Base) ID() string { return b.id.ID }

// Name returns the chronicler name.
func (b Base) Name() string { return b.id.Name }

// Description returns the chronicler description.
func (b Base) Description() string { return b.id.Description }

// Type returns the registry key the chronicler is rebuilt under.
func (b Base) Type() string { return b.typ }

// ChroniclerDescription builds the description used to recreate the chronicler.
func (b Base) ChroniclerDescription() (model.ChroniclerDescription, error) {
	props := b.props
	if props == nil {
		props = struct{}{}
	}
	raw, err := json.Marshal(props)
	if err != nil {
		return model.ChroniclerDescription{}, fmt.Errorf("marshaling chronicler properties: %w", err)
	}
	return model.ChroniclerDescription{
		Type:                 b.typ,
		ID:                   b.id.ID,
		Name:                 b.id.Name,
		Description:          b.id.Description,
		ChroniclerProperties: raw,
	}, nil
}

// SerializeState encodes the description as JSON, sealed when fs.Encrypted.
func (b Base) SerializeState(fs model.FormatSettings) (string, error) {
	desc, err := b.ChroniclerDescription()
	if err != nil {
		return "", err
	}
	return envelope.EncodeJSON(desc, fs)
}

// decodeProperties unmarshals raw into v, leaving v untouched when raw is empty.
func decodeProperties(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decoding chronicler properties: %w", err)
	}
	return nil
}

// timestampOf returns the record timestamp, or now when it is missing.
func timestampOf(rec map[string]any) time.Time {
	if s, ok := rec["timestamp"].(string); ok {
		if ts, err := time.Parse(time.RFC3339Nano, s); err == nil {
			return ts
		}
	}
	return time.Now()
}

func stringField(rec map[string]any, key string) string {
	s, _ := rec[key].(string)
	return s
}
