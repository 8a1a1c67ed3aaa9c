// Package processor transforms records on their way from the emitters to the
// chroniclers.
package processor

import (
	"context"
	"fmt"

	"github.com/GabrielNunesIT/emitterkit/internal/config"
)

// Processor rewrites record fields in place. A returned error drops the
// record.
type Processor interface {
	Process(ctx context.Context, rec map[string]any) error
	Name() string
}

// Chain runs processors in order.
type Chain struct {
	processors []Processor
}

// NewChain creates a new processor chain.
func NewChain(processors ...Processor) *Chain {
	return &Chain{processors: processors}
}

// FromConfig builds the chain described by cfg. Disabled processors are left
// out, so an empty chain means records pass through untouched.
func FromConfig(cfg config.ProcessorConfig) (*Chain, error) {
	chain := NewChain()
	if cfg.Parser.Enabled {
		parser, err := NewParser(cfg.Parser)
		if err != nil {
			return nil, err
		}
		chain.Add(parser)
	}
	if cfg.Enricher.Enabled {
		chain.Add(NewEnricher(cfg.Enricher))
	}
	return chain, nil
}

// Process runs every processor over rec and stops at the first failure.
func (c *Chain) Process(ctx context.Context, rec map[string]any) error {
	for _, p := range c.processors {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := p.Process(ctx, rec); err != nil {
			return fmt.Errorf("%s: %w", p.Name(), err)
		}
	}
	return nil
}

// Name returns the chain identifier.
func (c *Chain) Name() string {
	return "chain"
}

// Add appends a processor to the chain.
func (c *Chain) Add(p Processor) {
	c.processors = append(c.processors, p)
}

// Len returns the number of processors in the chain.
func (c *Chain) Len() int {
	return len(c.processors)
}
