package processor

import (
	"context"
	"maps"
	"os"
	"time"

	"github.com/GabrielNunesIT/emitterkit/internal/config"
)

// Enricher stamps records with the host they passed through. Static labels
// are grouped under "labels" so they never shadow record fields.
type Enricher struct {
	hostname  string
	stampTime bool
	labels    map[string]string
	now       func() time.Time
}

// NewEnricher creates an enricher from cfg. The hostname is resolved once.
// A disabled config yields an enricher that leaves records untouched.
func NewEnricher(cfg config.EnricherConfig) *Enricher {
	e := &Enricher{now: time.Now}
	if !cfg.Enabled {
		return e
	}

	if cfg.AddHostname {
		e.hostname, _ = os.Hostname()
	}
	e.stampTime = cfg.AddTimestamp
	if len(cfg.StaticLabels) > 0 {
		e.labels = maps.Clone(cfg.StaticLabels)
	}
	return e
}

// WithHostname creates an Enricher reporting hostname instead of the
// detected one.
func WithHostname(cfg config.EnricherConfig, hostname string) *Enricher {
	e := NewEnricher(cfg)
	if cfg.Enabled && cfg.AddHostname {
		e.hostname = hostname
	}
	return e
}

// Name returns the processor identifier.
func (e *Enricher) Name() string {
	return "enricher"
}

// Process adds hostname, processed_at and labels as configured.
func (e *Enricher) Process(ctx context.Context, rec map[string]any) error {
	if e.hostname != "" {
		rec["hostname"] = e.hostname
	}
	if e.stampTime {
		rec["processed_at"] = e.now().UTC().Format(time.RFC3339Nano)
	}
	if e.labels != nil {
		rec["labels"] = maps.Clone(e.labels)
	}
	return nil
}
