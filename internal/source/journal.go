package source

import (
	"context"
	"fmt"

	"github.com/GabrielNunesIT/emitterkit/internal/emitter"
	"github.com/GabrielNunesIT/emitterkit/internal/logging"
	"github.com/GabrielNunesIT/emitterkit/internal/model"
)

// TypeJournal is the registry key of the systemd journal emitter.
const TypeJournal = "journal"

// JournalProperties configures the journal emitter.
type JournalProperties struct {
	Units []string `json:"units,omitempty"`
	Monitoring
}

// journalFields maps journal fields to event keys.
var journalFields = map[string]string{
	"MESSAGE":           "message",
	"_SYSTEMD_UNIT":     "unit",
	"_PID":              "pid",
	"_UID":              "uid",
	"_GID":              "gid",
	"_COMM":             "command",
	"_EXE":              "executable",
	"_HOSTNAME":         "hostname",
	"PRIORITY":          "priority",
	"SYSLOG_FACILITY":   "facility",
	"SYSLOG_IDENTIFIER": "identifier",
}

// Journal emits new systemd journal entries. Reading needs Linux with cgo;
// elsewhere Start fails.
type Journal struct {
	*emitter.Accepting
	props JournalProperties
	run   runner
}

// NewJournal creates a journal emitter.
func NewJournal(id model.Identity, props JournalProperties, log logging.Facade) *Journal {
	j := &Journal{props: props}
	j.Accepting = emitter.NewAccepting(id.ID, id.Name, id.Description, j, props.Monitoring.options(log)...)
	return j
}

// JournalFactory builds journal emitters.
func JournalFactory(log logging.Facade) emitter.FactoryFunc {
	return func(ctx context.Context, desc model.Description) (emitter.Emitter, error) {
		var props JournalProperties
		if err := decodeProperties(desc.EmitterProperties, &props); err != nil {
			return nil, err
		}
		return NewJournal(desc.Identity(), props, log), nil
	}
}

// Type implements emitter.Kind.
func (j *Journal) Type() string { return TypeJournal }

// MetaData implements emitter.Kind.
func (j *Journal) MetaData() any { return map[string]any{"units": j.props.Units} }

// EmitterProperties implements emitter.PropertiesProvider.
func (j *Journal) EmitterProperties() any {
	props := j.props
	props.Monitoring = props.Monitoring.live(j.Base)
	return props
}

// Start opens the journal and follows it from the tail.
func (j *Journal) Start(ctx context.Context) error {
	if err := j.Accepting.Start(ctx); err != nil {
		return err
	}
	if j.run.running() {
		return nil
	}

	reader, err := openJournal(j.props.Units)
	if err != nil {
		err = fmt.Errorf("opening journal: %w", err)
		j.Reject(err)
		return err
	}

	j.run.start(ctx, func(ctx context.Context) error {
		defer reader.Close()
		return reader.follow(ctx, j.Accept)
	}, j.Reject)
	return nil
}

// Stop stops following the journal.
func (j *Journal) Stop(ctx context.Context) error {
	j.run.stop()
	return j.Accepting.Stop(ctx)
}

// Dispose stops following and releases the emitter.
func (j *Journal) Dispose() {
	j.run.stop()
	j.Accepting.Dispose()
}

// entryData maps raw journal fields to the event payload.
func entryData(fields map[string]string, realtimeMicros uint64) map[string]any {
	data := make(map[string]any, len(journalFields)+1)
	for jField, key := range journalFields {
		if val, ok := fields[jField]; ok {
			data[key] = val
		}
	}
	data["timestamp_us"] = realtimeMicros
	return data
}
