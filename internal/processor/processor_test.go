package processor

import (
	"context"
	"testing"

	"github.com/GabrielNunesIT/emitterkit/internal/config"
)

func dataRecord(data any) map[string]any {
	return map[string]any{"kind": "data", "emitterId": "e-1", "data": data}
}

func TestParser_JSONAutoDetect(t *testing.T) {
	cfg := config.ParserConfig{
		Enabled:        true,
		JSONAutoDetect: true,
	}

	parser, err := NewParser(cfg)
	if err != nil {
		t.Fatalf("failed to create parser: %v", err)
	}

	tests := []struct {
		name     string
		data     any
		wantKey  string
		wantVal  any
		wantJSON bool
	}{
		{
			name:     "valid JSON object",
			data:     `{"level":"info","msg":"test"}`,
			wantKey:  "level",
			wantVal:  "info",
			wantJSON: true,
		},
		{
			name:     "plain text",
			data:     "just a plain line",
			wantJSON: false,
		},
		{
			name:     "JSON with whitespace",
			data:     `  {"key": "value"}  `,
			wantKey:  "key",
			wantVal:  "value",
			wantJSON: true,
		},
		{
			name:     "tailed line",
			data:     map[string]any{"line": `{"temp":21}`, "file": "/var/log/plant.log"},
			wantKey:  "temp",
			wantVal:  float64(21),
			wantJSON: true,
		},
		{
			name:     "numeric reading",
			data:     21.5,
			wantJSON: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := dataRecord(tt.data)
			err := parser.Process(context.Background(), rec)
			if err != nil {
				t.Fatalf("Process failed: %v", err)
			}

			parsed, ok := rec["parsed"].(map[string]any)
			if tt.wantJSON {
				if !ok || parsed["_parsed_format"] != "json" {
					t.Fatalf("expected _parsed_format=json, got %v", rec["parsed"])
				}
				if parsed[tt.wantKey] != tt.wantVal {
					t.Errorf("expected %s=%v, got %v", tt.wantKey, tt.wantVal, parsed[tt.wantKey])
				}
			} else if ok {
				t.Errorf("expected no parsed fields, got %v", parsed)
			}
		})
	}
}

func TestParser_RegexPatterns(t *testing.T) {
	cfg := config.ParserConfig{
		Enabled:        true,
		JSONAutoDetect: false,
		Patterns: []string{
			`(?P<level>\w+): (?P<message>.+)`,
		},
	}

	parser, err := NewParser(cfg)
	if err != nil {
		t.Fatalf("failed to create parser: %v", err)
	}

	rec := dataRecord(map[string]any{"message": "INFO: application started"})
	err = parser.Process(context.Background(), rec)
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	parsed := rec["parsed"].(map[string]any)
	if parsed["level"] != "INFO" {
		t.Errorf("expected level=INFO, got %v", parsed["level"])
	}
	if parsed["message"] != "application started" {
		t.Errorf("expected message='application started', got %v", parsed["message"])
	}
}

func TestParser_CommonPatternName(t *testing.T) {
	parser, err := NewParser(config.ParserConfig{Enabled: true, Patterns: []string{"level"}})
	if err != nil {
		t.Fatalf("failed to create parser: %v", err)
	}

	rec := dataRecord("pump 3 reported a warning")
	if err := parser.Process(context.Background(), rec); err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	parsed, ok := rec["parsed"].(map[string]any)
	if !ok || parsed["level"] != "warning" {
		t.Errorf("expected level=warning, got %v", rec["parsed"])
	}
}

func TestParser_IgnoresStatus(t *testing.T) {
	parser, _ := NewParser(config.ParserConfig{Enabled: true, JSONAutoDetect: true})

	rec := map[string]any{"kind": "status", "connected": true, "data": `{"a":1}`}
	if err := parser.Process(context.Background(), rec); err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if _, ok := rec["parsed"]; ok {
		t.Error("status records must not be parsed")
	}
}

func TestParser_InvalidPattern(t *testing.T) {
	if _, err := NewParser(config.ParserConfig{Enabled: true, Patterns: []string{"("}}); err == nil {
		t.Fatal("expected error for invalid pattern")
	}
}

func TestEnricher(t *testing.T) {
	cfg := config.EnricherConfig{
		Enabled:      true,
		AddHostname:  true,
		AddTimestamp: true,
		StaticLabels: map[string]string{
			"env": "test",
		},
	}

	enricher := WithHostname(cfg, "test-host")
	rec := dataRecord(21.5)

	err := enricher.Process(context.Background(), rec)
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	if rec["hostname"] != "test-host" {
		t.Errorf("expected hostname=test-host, got %v", rec["hostname"])
	}

	labels := rec["labels"].(map[string]string)
	if labels["env"] != "test" {
		t.Errorf("expected env=test, got %v", labels["env"])
	}

	if _, ok := rec["processed_at"]; !ok {
		t.Error("expected processed_at to be set")
	}
}

func TestChain(t *testing.T) {
	parserCfg := config.ParserConfig{
		Enabled:        true,
		JSONAutoDetect: true,
	}
	parser, _ := NewParser(parserCfg)

	enricherCfg := config.EnricherConfig{
		Enabled:     true,
		AddHostname: true,
	}
	enricher := WithHostname(enricherCfg, "chain-test")

	chain := NewChain(parser, enricher)

	rec := dataRecord(`{"msg":"hello"}`)
	err := chain.Process(context.Background(), rec)
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	// Parser should have run
	if rec["parsed"].(map[string]any)["msg"] != "hello" {
		t.Errorf("expected msg=hello from parser, got %v", rec["parsed"])
	}

	// Enricher should have run
	if rec["hostname"] != "chain-test" {
		t.Errorf("expected hostname=chain-test from enricher, got %v", rec["hostname"])
	}
}

func TestFromConfig(t *testing.T) {
	chain, err := FromConfig(config.ProcessorConfig{})
	if err != nil {
		t.Fatalf("FromConfig failed: %v", err)
	}
	if chain.Len() != 0 {
		t.Errorf("expected empty chain, got %d processors", chain.Len())
	}

	chain, err = FromConfig(config.ProcessorConfig{
		Parser:   config.ParserConfig{Enabled: true, JSONAutoDetect: true},
		Enricher: config.EnricherConfig{Enabled: true},
	})
	if err != nil {
		t.Fatalf("FromConfig failed: %v", err)
	}
	if chain.Len() != 2 {
		t.Errorf("expected 2 processors, got %d", chain.Len())
	}

	if _, err := FromConfig(config.ProcessorConfig{Parser: config.ParserConfig{Enabled: true, Patterns: []string{"("}}}); err == nil {
		t.Error("expected error for invalid pattern")
	}
}
