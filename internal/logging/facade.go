// Package logging adapts the process logger to the leveled facade emitters and
// chroniclers log through.
package logging

import (
	"github.com/GabrielNunesIT/go-libs/logger"
)

// Facade is the leveled logging contract used by emitters and chroniclers.
type Facade interface {
	Trace(msg string)
	Debug(msg string)
	Info(msg string)
	Warn(msg string)
	Error(msg string)
	Critical(msg string)
}

// Level selects a Facade method.
type Level int

const (
	LevelTrace Level = iota
	LevelDebug
	LevelInfo
	LevelWarn
	LevelError
	LevelCritical
)

// Log dispatches msg to the facade method for level. A nil facade is a no-op.
func Log(f Facade, level Level, msg string) {
	if f == nil {
		return
	}
	switch level {
	case LevelTrace:
		f.Trace(msg)
	case LevelDebug:
		f.Debug(msg)
	case LevelInfo:
		f.Info(msg)
	case LevelWarn:
		f.Warn(msg)
	case LevelError:
		f.Error(msg)
	case LevelCritical:
		f.Critical(msg)
	}
}

type loggerFacade struct {
	log logger.ILogger
}

// New wraps a logger.ILogger. Trace is folded into debug and critical into
// error, which are the closest levels the console logger exposes.
func New(log logger.ILogger) Facade {
	if log == nil {
		return Nop()
	}
	return &loggerFacade{log: log}
}

func (l *loggerFacade) Trace(msg string)    { l.log.Debug(msg) }
func (l *loggerFacade) Debug(msg string)    { l.log.Debug(msg) }
func (l *loggerFacade) Info(msg string)     { l.log.Info(msg) }
func (l *loggerFacade) Warn(msg string)     { l.log.Warning(msg) }
func (l *loggerFacade) Error(msg string)    { l.log.Errorf("%s", msg) }
func (l *loggerFacade) Critical(msg string) { l.log.Errorf("CRITICAL %s", msg) }

type nop struct{}

// Nop returns a facade that discards everything.
func Nop() Facade { return nop{} }

func (nop) Trace(string)    {}
func (nop) Debug(string)    {}
func (nop) Info(string)     {}
func (nop) Warn(string)     {}
func (nop) Error(string)    {}
func (nop) Critical(string) {}
