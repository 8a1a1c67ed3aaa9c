package chronicler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/GabrielNunesIT/go-libs/logger"
	"github.com/natefinch/lumberjack"

	"github.com/GabrielNunesIT/emitterkit/internal/model"
)

// TypeFile is the registry key of the rotating file chronicler.
const TypeFile = "file"

// ErrNotStarted is returned when a chronicler is used before Start.
var ErrNotStarted = errors.New("chronicler not started")

// FileProperties configures the rotating file chronicler.
type FileProperties struct {
	Path       string `json:"path"`
	MaxSizeMB  int    `json:"maxSizeMB"`
	MaxBackups int    `json:"maxBackups"`
	MaxAgeDays int    `json:"maxAgeDays"`
	Compress   bool   `json:"compress"`
}

// RotatingWriter is a writer that can start a new file on demand.
type RotatingWriter interface {
	io.WriteCloser
	Rotate() error
}

// WriterFactory creates the rotating writer.
type WriterFactory func(props FileProperties) (RotatingWriter, error)

// FileOption configures the File chronicler.
type FileOption func(*File)

// WithWriterFactory sets a custom factory for creating the writer.
func WithWriterFactory(f WriterFactory) FileOption {
	return func(c *File) {
		c.factory = f
	}
}

// File writes records as JSON lines to rotating files.
type File struct {
	Base
	props   FileProperties
	factory WriterFactory
	writer  RotatingWriter
	mu      sync.Mutex
	logger  logger.ILogger
}

var _ RotatingFileChronicler = (*File)(nil)

// NewFile creates a new file chronicler.
func NewFile(id model.Identity, props FileProperties, log logger.ILogger, opts ...FileOption) *File {
	c := &File{
		Base:   NewBase(TypeFile, id, props),
		props:  props,
		logger: log.SubLogger("FileChronicler"),
	}

	c.factory = func(props FileProperties) (RotatingWriter, error) {
		if props.Path == "" {
			return nil, errors.New("file chronicler needs a path")
		}
		return &lumberjack.Logger{
			Filename:   props.Path,
			MaxSize:    props.MaxSizeMB,
			MaxBackups: props.MaxBackups,
			MaxAge:     props.MaxAgeDays,
			Compress:   props.Compress,
		}, nil
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// FileFactory builds file chroniclers.
func FileFactory(log logger.ILogger, opts ...FileOption) FactoryFunc {
	return func(ctx context.Context, desc model.ChroniclerDescription) (Chronicler, error) {
		var props FileProperties
		if err := decodeProperties(desc.ChroniclerProperties, &props); err != nil {
			return nil, err
		}
		return NewFile(desc.Identity(), props, log, opts...), nil
	}
}

// Start opens the rotating writer.
func (f *File) Start(ctx context.Context) error {
	w, err := f.factory(f.props)
	if err != nil {
		return fmt.Errorf("opening %s: %w", f.props.Path, err)
	}

	f.mu.Lock()
	f.writer = w
	f.mu.Unlock()

	f.logger.Debugf("file chronicler writing to %s", f.props.Path)
	return nil
}

// Stop closes the writer.
func (f *File) Stop(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.writer == nil {
		return nil
	}
	err := f.writer.Close()
	f.writer = nil
	return err
}

// DisposeAsync stops the chronicler.
func (f *File) DisposeAsync(ctx context.Context) error {
	return f.Stop(ctx)
}

// SaveRecord appends the record as one JSON line.
func (f *File) SaveRecord(ctx context.Context, rec Record) error {
	output, err := json.Marshal(rec.Record())
	if err != nil {
		return fmt.Errorf("encoding record: %w", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.writer == nil {
		return ErrNotStarted
	}
	_, err = f.writer.Write(append(output, '\n'))
	return err
}

// CurrentFilename returns the active file. Rotated files are renamed with
// a timestamp next to it.
func (f *File) CurrentFilename() string {
	return f.props.Path
}

// Rotate starts a new active file.
func (f *File) Rotate() (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.writer == nil {
		return "", ErrNotStarted
	}
	if err := f.writer.Rotate(); err != nil {
		return "", fmt.Errorf("rotating %s: %w", f.props.Path, err)
	}
	f.logger.Infof("rotated %s", f.props.Path)
	return f.props.Path, nil
}
