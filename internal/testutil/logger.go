package testutil

import (
	"io"

	"github.com/GabrielNunesIT/go-libs/logger"

	"github.com/GabrielNunesIT/emitterkit/internal/logging"
)

// NewTestLogger creates a logger that discards output, suitable for tests.
func NewTestLogger() logger.ILogger {
	return logger.NewConsoleLogger(io.Discard)
}

// NewTestFacade returns a facade over NewTestLogger.
func NewTestFacade() logging.Facade {
	return logging.New(NewTestLogger())
}
