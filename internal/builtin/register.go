// Package builtin registers the emitter and chronicler factories shipped with
// emitterkit.
package builtin

import (
	"github.com/GabrielNunesIT/go-libs/logger"

	"github.com/GabrielNunesIT/emitterkit/internal/chronicler"
	"github.com/GabrielNunesIT/emitterkit/internal/logging"
	"github.com/GabrielNunesIT/emitterkit/internal/provider"
	"github.com/GabrielNunesIT/emitterkit/internal/source"
)

// Register adds every built-in factory to r.
func Register(r *provider.Registry, log logger.ILogger) {
	facade := logging.New(log.SubLogger("Emitter"))

	r.RegisterEmitterFactory(source.TypeHTTP, source.HTTPFactory(facade))
	r.RegisterEmitterFactory(source.TypeFile, source.FileFactory(facade))
	r.RegisterEmitterFactory(source.TypeSyslog, source.SyslogFactory(facade))
	r.RegisterEmitterFactory(source.TypeJournal, source.JournalFactory(facade))

	r.RegisterChroniclerFactory(chronicler.TypeStdout, chronicler.StdoutFactory(log))
	r.RegisterChroniclerFactory(chronicler.TypeFile, chronicler.FileFactory(log))
	r.RegisterChroniclerFactory(chronicler.TypeElasticsearch, chronicler.ElasticsearchFactory(log))
	r.RegisterChroniclerFactory(chronicler.TypeLoki, chronicler.LokiFactory(log))
	r.RegisterChroniclerFactory(chronicler.TypeSQLite, chronicler.SQLiteFactory(log))
	r.RegisterChroniclerFactory(chronicler.TypeNATS, chronicler.NATSFactory(log))
}

// NewRegistry returns a registry holding every built-in factory.
func NewRegistry(log logger.ILogger) *provider.Registry {
	r := provider.New()
	Register(r, log)
	return r
}
