package processor

import (
	"context"
	"encoding/json"
	"regexp"
	"strings"

	"github.com/GabrielNunesIT/emitterkit/internal/config"
)

// textFields are the data keys, in order of preference, whose string value is
// parsed when the data itself is not a string.
var textFields = []string{"message", "line"}

// Parser extracts structured fields from the text carried by data records
// and stores them under "parsed".
type Parser struct {
	cfg      config.ParserConfig
	patterns []*regexp.Regexp
}

// NewParser creates a new parsing processor.
func NewParser(cfg config.ParserConfig) (*Parser, error) {
	p := &Parser{cfg: cfg}

	// Compile regex patterns; names of CommonPatterns expand to the pattern
	for _, pattern := range cfg.Patterns {
		if common, ok := CommonPatterns[pattern]; ok {
			pattern = common
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, err
		}
		p.patterns = append(p.patterns, re)
	}

	return p, nil
}

// Name returns the processor identifier.
func (p *Parser) Name() string {
	return "parser"
}

// Process parses the record text and populates the "parsed" field. Status
// records and data without text are left alone.
func (p *Parser) Process(ctx context.Context, rec map[string]any) error {
	if !p.cfg.Enabled || rec["kind"] != "data" {
		return nil
	}

	text, ok := textOf(rec["data"])
	if !ok {
		return nil
	}

	// Try JSON parsing first if enabled
	if p.cfg.JSONAutoDetect {
		if parsed, ok := parseJSON(text); ok {
			rec["parsed"] = parsed
			return nil
		}
	}

	for _, re := range p.patterns {
		if parsed, ok := parseRegex(text, re); ok {
			rec["parsed"] = parsed
			return nil
		}
	}

	return nil
}

func textOf(data any) (string, bool) {
	switch v := data.(type) {
	case string:
		return v, true
	case map[string]any:
		for _, key := range textFields {
			if s, ok := v[key].(string); ok {
				return s, true
			}
		}
	case map[string]string:
		for _, key := range textFields {
			if s, ok := v[key]; ok {
				return s, true
			}
		}
	}
	return "", false
}

// parseJSON attempts to parse the text as a JSON object.
func parseJSON(text string) (map[string]any, bool) {
	raw := strings.TrimSpace(text)
	// Quick check for JSON-like content
	if raw == "" || raw[0] != '{' {
		return nil, false
	}

	var parsed map[string]any
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return nil, false
	}

	parsed["_parsed_format"] = "json"
	return parsed, true
}

// parseRegex attempts to extract named groups from a regex pattern.
func parseRegex(text string, re *regexp.Regexp) (map[string]any, bool) {
	names := re.SubexpNames()
	if len(names) <= 1 {
		return nil, false // No named groups
	}

	matches := re.FindStringSubmatch(text)
	if matches == nil {
		return nil, false
	}

	parsed := make(map[string]any, len(names)+1)
	for i, name := range names {
		if i == 0 || name == "" {
			continue // Skip full match and unnamed groups
		}
		parsed[name] = matches[i]
	}

	parsed["_parsed_format"] = "regex"
	parsed["_parsed_pattern"] = re.String()
	return parsed, true
}

// CommonPatterns provides pre-built regex patterns for common text formats.
var CommonPatterns = map[string]string{
	// Apache/Nginx Combined Log Format
	"combined": `^(?P<remote_addr>\S+) - (?P<remote_user>\S+) \[(?P<time_local>[^\]]+)\] "(?P<request>[^"]*)" (?P<status>\d+) (?P<body_bytes>\d+) "(?P<http_referer>[^"]*)" "(?P<http_user_agent>[^"]*)"`,

	// Key-Value pairs
	"kv": `(?P<key>\w+)=(?P<value>"[^"]*"|\S+)`,

	// Level detection
	"level": `(?i)\b(?P<level>DEBUG|INFO|WARN(?:ING)?|ERROR|FATAL|CRITICAL|TRACE)\b`,
}
