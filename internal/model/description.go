// Package model defines the serializable data structures shared by emitters,
// chroniclers and the factory registry.
package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Identity is the mutable identity every emitter and chronicler carries.
type Identity struct {
	ID          string `json:"id" yaml:"id"`
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description" yaml:"description"`
}

// Description is the type-tagged snapshot of an emitter that is sufficient to
// rebuild it through a factory.
type Description struct {
	Type        string `json:"type" yaml:"type"`
	ID          string `json:"id" yaml:"id"`
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description" yaml:"description"`

	// EmitterProperties is opaque to the core; each factory decodes its own shape.
	EmitterProperties json.RawMessage `json:"emitterProperties,omitempty" yaml:"-"`
}

// Identity returns the identity portion of the description.
func (d Description) Identity() Identity {
	return Identity{ID: d.ID, Name: d.Name, Description: d.Description}
}

// ChroniclerDescription is the chronicler counterpart of Description.
type ChroniclerDescription struct {
	Type        string `json:"type" yaml:"type"`
	ID          string `json:"id" yaml:"id"`
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description" yaml:"description"`

	ChroniclerProperties json.RawMessage `json:"chroniclerProperties,omitempty" yaml:"-"`
}

// Identity returns the identity portion of the description.
func (d ChroniclerDescription) Identity() Identity {
	return Identity{ID: d.ID, Name: d.Name, Description: d.Description}
}

// FormatSettings controls how a description becomes a transportable string.
// Type doubles as the registry key used when reconstructing from state.
type FormatSettings struct {
	Encrypted bool   `json:"encrypted" yaml:"encrypted"`
	Type      string `json:"type" yaml:"type"`
	Algorithm string `json:"algorithm,omitempty" yaml:"algorithm,omitempty"`
	Key       string `json:"key,omitempty" yaml:"key,omitempty"`
	IV        string `json:"iv,omitempty" yaml:"iv,omitempty"`
	Tag       string `json:"tag,omitempty" yaml:"tag,omitempty"`
	KeyName   string `json:"keyName,omitempty" yaml:"keyName,omitempty"`
}

// WithType returns a copy of the settings bound to the given registry type.
func (f FormatSettings) WithType(typ string) FormatSettings {
	f.Type = typ
	return f
}

// Settings are applied to a running emitter. Zero durations leave the
// corresponding scheduler setting untouched.
type Settings struct {
	ActionID    string `json:"actionId"`
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`

	PollInterval        time.Duration `json:"pollInterval,omitempty"`
	DisconnectInterval  time.Duration `json:"disconnectInterval,omitempty"`
	DisconnectThreshold time.Duration `json:"disconnectThreshold,omitempty"`

	// Additional carries source specific settings.
	Additional json.RawMessage `json:"additional,omitempty"`
}

// Command is a traceable instruction sent to an emitter.
type Command struct {
	ActionID string          `json:"actionId"`
	Name     string          `json:"name"`
	Payload  json.RawMessage `json:"payload,omitempty"`
}

// ExecutionResult reports the outcome of a settings or command action.
type ExecutionResult struct {
	ActionID      string `json:"actionId"`
	Success       bool   `json:"success"`
	FailureReason string `json:"failureReason,omitempty"`
}

// Succeeded builds a successful result for the action.
func Succeeded(actionID string) ExecutionResult {
	return ExecutionResult{ActionID: actionID, Success: true}
}

// Failed builds a failed result for the action.
func Failed(actionID, reason string) ExecutionResult {
	return ExecutionResult{ActionID: actionID, FailureReason: reason}
}

// NewActionID returns a fresh identifier for correlating an action with its result.
func NewActionID() string {
	return uuid.NewString()
}
