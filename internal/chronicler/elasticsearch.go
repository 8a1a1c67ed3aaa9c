package chronicler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/GabrielNunesIT/go-libs/logger"
	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esutil"

	"github.com/GabrielNunesIT/emitterkit/internal/model"
)

// TypeElasticsearch is the registry key of the Elasticsearch chronicler.
const TypeElasticsearch = "elasticsearch"

// ElasticsearchProperties configures the Elasticsearch chronicler.
type ElasticsearchProperties struct {
	Addresses     []string       `json:"addresses"`
	Username      string         `json:"username,omitempty"`
	Password      string         `json:"password,omitempty"`
	Index         string         `json:"index"`
	FlushInterval model.Duration `json:"flushInterval,omitempty"`
}

// IndexerFactory creates a new BulkIndexer.
type IndexerFactory func(props ElasticsearchProperties) (esutil.BulkIndexer, error)

// ElasticsearchOption configures the Elasticsearch chronicler.
type ElasticsearchOption func(*Elasticsearch)

// WithIndexerFactory sets a custom factory for creating the BulkIndexer.
// This is primarily used for testing to inject a mock indexer.
func WithIndexerFactory(f IndexerFactory) ElasticsearchOption {
	return func(e *Elasticsearch) {
		e.factory = f
	}
}

// Elasticsearch indexes records through the bulk API.
type Elasticsearch struct {
	Base
	props   ElasticsearchProperties
	factory IndexerFactory
	indexer esutil.BulkIndexer
	mu      sync.Mutex
	logger  logger.ILogger
}

// NewElasticsearch creates a new Elasticsearch chronicler.
func NewElasticsearch(id model.Identity, props ElasticsearchProperties, log logger.ILogger, opts ...ElasticsearchOption) *Elasticsearch {
	if props.FlushInterval <= 0 {
		props.FlushInterval = model.Duration(5 * time.Second)
	}
	e := &Elasticsearch{
		Base:   NewBase(TypeElasticsearch, id, props),
		props:  props,
		logger: log.SubLogger("ElasticsearchChronicler"),
	}

	e.factory = func(props ElasticsearchProperties) (esutil.BulkIndexer, error) {
		esCfg := elasticsearch.Config{
			Addresses: props.Addresses,
		}
		if props.Username != "" {
			esCfg.Username = props.Username
			esCfg.Password = props.Password
		}

		client, err := elasticsearch.NewClient(esCfg)
		if err != nil {
			return nil, fmt.Errorf("creating elasticsearch client: %w", err)
		}

		return esutil.NewBulkIndexer(esutil.BulkIndexerConfig{
			Client:        client,
			Index:         props.Index,
			NumWorkers:    2,
			FlushBytes:    5e+6, // 5MB
			FlushInterval: props.FlushInterval.Std(),
		})
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// ElasticsearchFactory builds Elasticsearch chroniclers.
func ElasticsearchFactory(log logger.ILogger, opts ...ElasticsearchOption) FactoryFunc {
	return func(ctx context.Context, desc model.ChroniclerDescription) (Chronicler, error) {
		var props ElasticsearchProperties
		if err := decodeProperties(desc.ChroniclerProperties, &props); err != nil {
			return nil, err
		}
		if props.Index == "" {
			return nil, fmt.Errorf("elasticsearch chronicler %q needs an index", desc.ID)
		}
		return NewElasticsearch(desc.Identity(), props, log, opts...), nil
	}
}

// Start creates the client and bulk indexer.
func (e *Elasticsearch) Start(ctx context.Context) error {
	indexer, err := e.factory(e.props)
	if err != nil {
		return err
	}

	e.mu.Lock()
	e.indexer = indexer
	e.mu.Unlock()
	return nil
}

// Stop flushes and closes the bulk indexer.
func (e *Elasticsearch) Stop(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.indexer == nil {
		return nil
	}
	err := e.indexer.Close(ctx)
	e.indexer = nil
	return err
}

// DisposeAsync flushes and stops the chronicler.
func (e *Elasticsearch) DisposeAsync(ctx context.Context) error {
	return e.Stop(ctx)
}

// SaveRecord queues the record for bulk indexing.
func (e *Elasticsearch) SaveRecord(ctx context.Context, rec Record) error {
	fields := rec.Record()
	doc := make(map[string]any, len(fields)+1)
	for k, v := range fields {
		doc[k] = v
	}
	doc["@timestamp"] = timestampOf(fields).Format(time.RFC3339Nano)
	doc["chronicler"] = e.ID()

	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encoding record: %w", err)
	}

	e.mu.Lock()
	indexer := e.indexer
	e.mu.Unlock()
	if indexer == nil {
		return ErrNotStarted
	}

	return indexer.Add(ctx, esutil.BulkIndexerItem{
		Action: "index",
		Body:   bytes.NewReader(data),
		OnFailure: func(ctx context.Context, item esutil.BulkIndexerItem, res esutil.BulkIndexerResponseItem, err error) {
			if err != nil {
				e.logger.Errorf("indexing record: %v", err)
				return
			}
			e.logger.Errorf("indexing record: %s: %s", res.Error.Type, res.Error.Reason)
		},
	})
}
