package chronicler

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/GabrielNunesIT/go-libs/logger"
	"github.com/nats-io/nats.go"

	"github.com/GabrielNunesIT/emitterkit/internal/model"
)

// TypeNATS is the registry key of the NATS chronicler.
const TypeNATS = "nats"

// NATSProperties configures the NATS chronicler.
type NATSProperties struct {
	URL           string         `json:"url"`
	Subject       string         `json:"subject"`
	ClientName    string         `json:"clientName,omitempty"`
	MaxReconnects int            `json:"maxReconnects,omitempty"`
	ReconnectWait model.Duration `json:"reconnectWait,omitempty"`
}

// Publisher is the part of a NATS connection the chronicler uses.
type Publisher interface {
	Publish(subject string, data []byte) error
	Drain() error
}

var _ Publisher = (*nats.Conn)(nil)

// PublisherFactory connects a publisher.
type PublisherFactory func(props NATSProperties) (Publisher, error)

// NATSOption configures the NATS chronicler.
type NATSOption func(*NATS)

// WithPublisherFactory sets a custom factory for the publisher.
func WithPublisherFactory(f PublisherFactory) NATSOption {
	return func(n *NATS) {
		n.factory = f
	}
}

// NATS publishes each record as a JSON message on
// <subject>.<kind>.<emitter id>.
type NATS struct {
	Base
	props   NATSProperties
	factory PublisherFactory
	pub     Publisher
	mu      sync.RWMutex
	logger  logger.ILogger
}

// NewNATS creates a new NATS chronicler.
func NewNATS(id model.Identity, props NATSProperties, log logger.ILogger, opts ...NATSOption) *NATS {
	if props.Subject == "" {
		props.Subject = "emitterkit.records"
	}
	if props.ReconnectWait <= 0 {
		props.ReconnectWait = model.Duration(2 * time.Second)
	}
	n := &NATS{
		Base:   NewBase(TypeNATS, id, props),
		props:  props,
		logger: log.SubLogger("NATSChronicler"),
	}

	n.factory = func(props NATSProperties) (Publisher, error) {
		opts := []nats.Option{
			nats.MaxReconnects(props.MaxReconnects),
			nats.ReconnectWait(props.ReconnectWait.Std()),
			nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
				if err != nil {
					n.logger.Warningf("nats disconnected: %v", err)
				}
			}),
			nats.ReconnectHandler(func(c *nats.Conn) {
				n.logger.Infof("nats reconnected to %s", c.ConnectedUrl())
			}),
		}
		if props.ClientName != "" {
			opts = append(opts, nats.Name(props.ClientName))
		}
		conn, err := nats.Connect(props.URL, opts...)
		if err != nil {
			return nil, fmt.Errorf("connecting to nats: %w", err)
		}
		return conn, nil
	}

	for _, opt := range opts {
		opt(n)
	}
	return n
}

// NATSFactory builds NATS chroniclers.
func NATSFactory(log logger.ILogger, opts ...NATSOption) FactoryFunc {
	return func(ctx context.Context, desc model.ChroniclerDescription) (Chronicler, error) {
		var props NATSProperties
		if err := decodeProperties(desc.ChroniclerProperties, &props); err != nil {
			return nil, err
		}
		if props.URL == "" {
			props.URL = nats.DefaultURL
		}
		return NewNATS(desc.Identity(), props, log, opts...), nil
	}
}

// Start connects to the server.
func (n *NATS) Start(ctx context.Context) error {
	pub, err := n.factory(n.props)
	if err != nil {
		return err
	}

	n.mu.Lock()
	n.pub = pub
	n.mu.Unlock()
	return nil
}

// Stop drains pending messages and closes the connection.
func (n *NATS) Stop(ctx context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.pub == nil {
		return nil
	}
	err := n.pub.Drain()
	n.pub = nil
	return err
}

// DisposeAsync stops the chronicler.
func (n *NATS) DisposeAsync(ctx context.Context) error {
	return n.Stop(ctx)
}

// SaveRecord publishes the record.
func (n *NATS) SaveRecord(ctx context.Context, rec Record) error {
	fields := rec.Record()
	data, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("encoding record: %w", err)
	}

	n.mu.RLock()
	defer n.mu.RUnlock()

	if n.pub == nil {
		return ErrNotStarted
	}

	subject := n.Subject(fields)
	if err := n.pub.Publish(subject, data); err != nil {
		return fmt.Errorf("publishing to %s: %w", subject, err)
	}
	return nil
}

// Subject returns the subject a record is published on.
func (n *NATS) Subject(fields map[string]any) string {
	kind := token(stringField(fields, "kind"), "record")
	id := token(stringField(fields, "emitterId"), "unknown")
	return n.props.Subject + "." + kind + "." + id
}

// token makes s usable as a single subject token.
func token(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ', '\t':
			return '_'
		}
		return r
	}, s)
}
