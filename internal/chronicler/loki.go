package chronicler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/GabrielNunesIT/go-libs/logger"

	"github.com/GabrielNunesIT/emitterkit/internal/model"
)

// TypeLoki is the registry key of the Loki chronicler.
const TypeLoki = "loki"

// LokiProperties configures the Loki chronicler.
type LokiProperties struct {
	URL           string            `json:"url"`
	TenantID      string            `json:"tenantId,omitempty"`
	BatchSize     int               `json:"batchSize,omitempty"`
	FlushInterval model.Duration    `json:"flushInterval,omitempty"`
	Labels        map[string]string `json:"labels,omitempty"`
}

// Loki pushes records to Grafana Loki in batches.
type Loki struct {
	Base
	props    LokiProperties
	client   HTTPDoer
	batch    []lokiStream
	mu       sync.Mutex
	done     chan struct{}
	stopOnce sync.Once
	logger   logger.ILogger
}

var _ Chronicler = (*Loki)(nil)

// lokiPushRequest is the Loki push API request format.
type lokiPushRequest struct {
	Streams []lokiStream `json:"streams"`
}

// lokiStream represents a log stream in Loki.
type lokiStream struct {
	Stream map[string]string `json:"stream"`
	Values [][]string        `json:"values"`
}

// LokiOption configures a Loki chronicler.
type LokiOption func(*Loki)

// WithLokiHTTPClient sets a custom HTTP client for testing.
func WithLokiHTTPClient(client HTTPDoer) LokiOption {
	return func(l *Loki) {
		l.client = client
	}
}

// NewLoki creates a new Loki chronicler.
func NewLoki(id model.Identity, props LokiProperties, log logger.ILogger, opts ...LokiOption) *Loki {
	if props.BatchSize <= 0 {
		props.BatchSize = 100
	}
	if props.FlushInterval <= 0 {
		props.FlushInterval = model.Duration(5 * time.Second)
	}
	l := &Loki{
		Base:  NewBase(TypeLoki, id, props),
		props: props,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
		done:   make(chan struct{}),
		logger: log.SubLogger("LokiChronicler"),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// LokiFactory builds Loki chroniclers.
func LokiFactory(log logger.ILogger, opts ...LokiOption) FactoryFunc {
	return func(ctx context.Context, desc model.ChroniclerDescription) (Chronicler, error) {
		var props LokiProperties
		if err := decodeProperties(desc.ChroniclerProperties, &props); err != nil {
			return nil, err
		}
		if props.URL == "" {
			return nil, fmt.Errorf("loki chronicler %q needs a url", desc.ID)
		}
		return NewLoki(desc.Identity(), props, log, opts...), nil
	}
}

// Start begins the background flush goroutine.
func (l *Loki) Start(ctx context.Context) error {
	go l.flushLoop(ctx)
	return nil
}

// Stop flushes remaining records and shuts down.
func (l *Loki) Stop(ctx context.Context) error {
	l.stopOnce.Do(func() { close(l.done) })
	return l.flush(ctx)
}

// DisposeAsync stops the chronicler.
func (l *Loki) DisposeAsync(ctx context.Context) error {
	return l.Stop(ctx)
}

// flushLoop periodically flushes the buffer.
func (l *Loki) flushLoop(ctx context.Context) {
	ticker := time.NewTicker(l.props.FlushInterval.Std())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-l.done:
			return
		case <-ticker.C:
			if err := l.flush(ctx); err != nil {
				l.logger.Warningf("periodic flush failed: %v", err)
			}
		}
	}
}

// SaveRecord adds the record to the batch, flushing when it is full.
// Emitter attribution and the record kind become stream labels.
func (l *Loki) SaveRecord(ctx context.Context, rec Record) error {
	fields := rec.Record()

	labels := make(map[string]string, len(l.props.Labels)+3)
	maps.Copy(labels, l.props.Labels)
	labels["kind"] = stringField(fields, "kind")
	if t := stringField(fields, "emitterType"); t != "" {
		labels["emitter_type"] = t
	}
	if id := stringField(fields, "emitterId"); id != "" {
		labels["emitter_id"] = id
	}

	line, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("encoding record: %w", err)
	}
	ts := strconv.FormatInt(timestampOf(fields).UnixNano(), 10)

	l.mu.Lock()
	defer l.mu.Unlock()

	found := false
	for i := range l.batch {
		if maps.Equal(l.batch[i].Stream, labels) {
			l.batch[i].Values = append(l.batch[i].Values, []string{ts, string(line)})
			found = true
			break
		}
	}
	if !found {
		l.batch = append(l.batch, lokiStream{
			Stream: labels,
			Values: [][]string{{ts, string(line)}},
		})
	}

	if l.batchSize() >= l.props.BatchSize {
		return l.flushLocked(ctx)
	}
	return nil
}

// batchSize returns the total number of lines in the batch.
func (l *Loki) batchSize() int {
	count := 0
	for _, s := range l.batch {
		count += len(s.Values)
	}
	return count
}

func (l *Loki) flush(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.flushLocked(ctx)
}

// flushLocked sends the batch (caller must hold lock).
func (l *Loki) flushLocked(ctx context.Context) error {
	if len(l.batch) == 0 {
		return nil
	}

	data, err := json.Marshal(lokiPushRequest{Streams: l.batch})
	if err != nil {
		return err
	}

	url := l.props.URL + "/loki/api/v1/push"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return err
	}

	httpReq.Header.Set("Content-Type", "application/json")
	if l.props.TenantID != "" {
		httpReq.Header.Set("X-Scope-OrgID", l.props.TenantID)
	}

	resp, err := l.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("pushing to loki: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("loki push failed with status: %d", resp.StatusCode)
	}

	l.batch = l.batch[:0]
	return nil
}
