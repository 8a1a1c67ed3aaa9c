package source

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/GabrielNunesIT/emitterkit/internal/emitter"
	"github.com/GabrielNunesIT/emitterkit/internal/logging"
	"github.com/GabrielNunesIT/emitterkit/internal/model"
)

// TypeHTTP is the registry key of the HTTP emitter.
const TypeHTTP = "http"

// Commands understood by the HTTP emitter.
const (
	CommandPoll  = "poll"
	CommandReset = "reset"
)

// maxBodySize bounds how much of a response is read.
const maxBodySize = 4 << 20

// HTTPDoer abstracts HTTP client operations for testing.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// HTTPProperties configures the HTTP emitter.
type HTTPProperties struct {
	URL      string            `json:"url"`
	Method   string            `json:"method,omitempty"`
	Headers  map[string]string `json:"headers,omitempty"`
	Interval model.Duration    `json:"interval,omitempty"`
	Timeout  model.Duration    `json:"timeout,omitempty"`
	Monitoring
}

// HTTPSettings is the source specific part of a settings action.
type HTTPSettings struct {
	URL     string            `json:"url,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
}

// HTTPOption configures the HTTP emitter.
type HTTPOption func(*HTTP)

// WithHTTPClient sets a custom HTTP client for testing.
func WithHTTPClient(client HTTPDoer) HTTPOption {
	return func(h *HTTP) {
		h.client = client
	}
}

// HTTP polls an endpoint and emits the response body whenever its digest
// changes. JSON bodies are emitted decoded, anything else as a string.
type HTTP struct {
	*emitter.Delta

	client HTTPDoer

	mu       sync.RWMutex
	props    HTTPProperties
	baseline [sha256.Size]byte
	hasBase  bool
}

// NewHTTP creates an HTTP emitter. Polling starts with Start.
func NewHTTP(id model.Identity, props HTTPProperties, log logging.Facade, opts ...HTTPOption) *HTTP {
	if props.Method == "" {
		props.Method = http.MethodGet
	}
	if props.Interval <= 0 {
		props.Interval = model.Duration(emitter.DefaultPollInterval)
	}
	if props.Timeout <= 0 {
		props.Timeout = model.Duration(10 * time.Second)
	}

	h := &HTTP{
		props:  props,
		client: &http.Client{Timeout: props.Timeout.Std()},
	}
	for _, opt := range opts {
		opt(h)
	}
	h.Delta = emitter.NewDelta(id.ID, id.Name, id.Description, props.Interval.Std(), h, props.Monitoring.options(log)...)
	return h
}

// HTTPFactory builds HTTP emitters.
func HTTPFactory(log logging.Facade, opts ...HTTPOption) emitter.FactoryFunc {
	return func(ctx context.Context, desc model.Description) (emitter.Emitter, error) {
		var props HTTPProperties
		if err := decodeProperties(desc.EmitterProperties, &props); err != nil {
			return nil, err
		}
		if props.URL == "" {
			return nil, fmt.Errorf("http emitter %q needs a url", desc.ID)
		}
		return NewHTTP(desc.Identity(), props, log, opts...), nil
	}
}

// Type implements emitter.Kind.
func (h *HTTP) Type() string { return TypeHTTP }

// MetaData implements emitter.Kind.
func (h *HTTP) MetaData() any {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return map[string]string{"url": h.props.URL, "method": h.props.Method}
}

// EmitterProperties implements emitter.PropertiesProvider.
func (h *HTTP) EmitterProperties() any {
	h.mu.RLock()
	defer h.mu.RUnlock()
	props := h.props
	props.Interval = model.Duration(h.Interval())
	props.Monitoring = props.Monitoring.live(h.Base)
	return props
}

// Poll fetches the endpoint once.
func (h *HTTP) Poll(ctx context.Context) (any, error) {
	h.mu.RLock()
	props := h.props
	h.mu.RUnlock()

	req, err := http.NewRequestWithContext(ctx, props.Method, props.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	for k, v := range props.Headers {
		req.Header.Set(k, v)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("requesting %s: %w", props.URL, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("%s responded with status %d", props.URL, resp.StatusCode)
	}

	if strings.Contains(resp.Header.Get("Content-Type"), "json") {
		var v any
		if err := json.Unmarshal(body, &v); err != nil {
			return nil, fmt.Errorf("decoding json body: %w", err)
		}
		return v, nil
	}
	return string(bytes.TrimSpace(body)), nil
}

// HasChanged compares the digest of the candidate data with the last
// emitted one and adopts it as the new baseline when it differs.
func (h *HTTP) HasChanged(candidate emitter.DataEvent) bool {
	raw, err := json.Marshal(candidate.Data)
	if err != nil {
		return true
	}
	sum := sha256.Sum256(raw)

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.hasBase && sum == h.baseline {
		return false
	}
	h.baseline, h.hasBase = sum, true
	return true
}

// SendCommand handles "poll", which fetches immediately, and "reset", which
// forgets the baseline so the next poll emits.
func (h *HTTP) SendCommand(ctx context.Context, cmd model.Command) (model.ExecutionResult, error) {
	switch cmd.Name {
	case CommandPoll:
		h.PollNow(ctx)
		return model.Succeeded(cmd.ActionID), nil
	case CommandReset:
		h.mu.Lock()
		h.hasBase = false
		h.mu.Unlock()
		return model.Succeeded(cmd.ActionID), nil
	default:
		return h.Delta.SendCommand(ctx, cmd)
	}
}

// ApplySettings applies the common settings and then the HTTPSettings
// carried in s.Additional. Malformed additional settings fail the action
// before anything is changed.
func (h *HTTP) ApplySettings(ctx context.Context, s model.Settings) model.ExecutionResult {
	var extra HTTPSettings
	if err := decodeProperties(s.Additional, &extra); err != nil {
		return model.Failed(s.ActionID, err.Error())
	}

	res := h.Delta.ApplySettings(ctx, s)
	if !res.Success {
		return res
	}

	h.mu.Lock()
	if extra.URL != "" && extra.URL != h.props.URL {
		h.props.URL = extra.URL
		h.hasBase = false
	}
	if extra.Headers != nil {
		h.props.Headers = extra.Headers
	}
	h.mu.Unlock()
	return res
}
