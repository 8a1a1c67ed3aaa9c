package chronicler

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/GabrielNunesIT/go-libs/logger"

	"github.com/GabrielNunesIT/emitterkit/internal/model"
)

// TypeStdout is the registry key of the stdout chronicler.
const TypeStdout = "stdout"

// StdoutProperties configures the stdout chronicler.
type StdoutProperties struct {
	// Format is "json" or "text".
	Format string `json:"format"`
}

// Stdout writes records to standard output.
type Stdout struct {
	Base
	props  StdoutProperties
	writer io.Writer
	mu     sync.Mutex
	logger logger.ILogger
}

// NewStdout creates a new stdout chronicler.
func NewStdout(id model.Identity, props StdoutProperties, log logger.ILogger) *Stdout {
	return NewStdoutWithWriter(id, props, os.Stdout, log)
}

// NewStdoutWithWriter creates a stdout chronicler with a custom writer (for testing).
func NewStdoutWithWriter(id model.Identity, props StdoutProperties, w io.Writer, log logger.ILogger) *Stdout {
	if props.Format == "" {
		props.Format = "json"
	}
	return &Stdout{
		Base:   NewBase(TypeStdout, id, props),
		props:  props,
		writer: w,
		logger: log.SubLogger("StdoutChronicler"),
	}
}

// StdoutFactory builds stdout chroniclers.
func StdoutFactory(log logger.ILogger) FactoryFunc {
	return func(ctx context.Context, desc model.ChroniclerDescription) (Chronicler, error) {
		var props StdoutProperties
		if err := decodeProperties(desc.ChroniclerProperties, &props); err != nil {
			return nil, err
		}
		return NewStdout(desc.Identity(), props, log), nil
	}
}

// Start implements lifecycle.Service (no-op for stdout).
func (s *Stdout) Start(ctx context.Context) error {
	s.logger.Debugf("stdout chronicler started: format=%s", s.props.Format)
	return nil
}

// Stop implements lifecycle.Service (no-op for stdout).
func (s *Stdout) Stop(ctx context.Context) error {
	s.logger.Debug("stdout chronicler stopped")
	return nil
}

// DisposeAsync stops the chronicler.
func (s *Stdout) DisposeAsync(ctx context.Context) error {
	return s.Stop(ctx)
}

// SaveRecord writes one line per record.
func (s *Stdout) SaveRecord(ctx context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var output []byte
	var err error

	switch s.props.Format {
	case "text":
		output = formatText(rec.Record())
	default:
		output, err = json.Marshal(rec.Record())
	}
	if err != nil {
		return fmt.Errorf("encoding record: %w", err)
	}

	_, err = s.writer.Write(append(output, '\n'))
	return err
}

// formatText renders "[timestamp] [type|name] kind payload".
func formatText(rec map[string]any) []byte {
	ts := timestampOf(rec).Format("2006-01-02T15:04:05Z07:00")
	source := stringField(rec, "emitterType") + "|" + stringField(rec, "emitterName")

	var payload string
	switch stringField(rec, "kind") {
	case "status":
		payload = fmt.Sprintf("connected=%v bit=%v", rec["connected"], rec["bit"])
	default:
		payload = fmt.Sprintf("%v", rec["data"])
	}
	return []byte(fmt.Sprintf("[%s] [%s] %s %s", ts, source, stringField(rec, "kind"), payload))
}
