// Package config provides configuration loading with layered overrides.
// Load order: defaults -> YAML file -> environment variables.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	configloader "github.com/GabrielNunesIT/go-libs/config-loader"

	"github.com/GabrielNunesIT/emitterkit/internal/model"
)

// EnvPrefix prefixes environment overrides, e.g. EMITTERKIT_PIPELINE_BUFFERSIZE.
const EnvPrefix = "EMITTERKIT_"

// Config is the root configuration structure.
type Config struct {
	LogLevel    string            `koanf:"loglevel" yaml:"log_level" json:"log_level"`
	Pipeline    PipelineConfig    `koanf:"pipeline"`
	Processor   ProcessorConfig   `koanf:"processor"`
	Format      FormatConfig      `koanf:"format"`
	State       StateConfig       `koanf:"state"`
	Metrics     MetricsConfig     `koanf:"metrics"`
	Emitters    []ComponentConfig `koanf:"emitters"`
	Chroniclers []ComponentConfig `koanf:"chroniclers"`
}

// PipelineConfig controls the pipeline behavior.
type PipelineConfig struct {
	BufferSize       int           `koanf:"buffersize" yaml:"buffer_size" json:"buffer_size"`
	ShutdownTimeout  time.Duration `koanf:"shutdowntimeout" yaml:"shutdown_timeout" json:"shutdown_timeout"`
	DropOnFullBuffer bool          `koanf:"droponbufferfull" yaml:"drop_on_full_buffer" json:"drop_on_full_buffer"`
	SnapshotInterval time.Duration `koanf:"snapshotinterval" yaml:"snapshot_interval" json:"snapshot_interval"`
}

// ProcessorConfig shapes records before they reach the chroniclers.
type ProcessorConfig struct {
	Parser   ParserConfig   `koanf:"parser"`
	Enricher EnricherConfig `koanf:"enricher"`
}

// ParserConfig extracts structured fields from the text carried by data
// records.
type ParserConfig struct {
	Enabled        bool     `koanf:"enabled"`
	JSONAutoDetect bool     `koanf:"jsonautodetect" yaml:"json_auto_detect" json:"json_auto_detect"`
	Patterns       []string `koanf:"patterns"`
}

// EnricherConfig adds host metadata to every record.
type EnricherConfig struct {
	Enabled      bool              `koanf:"enabled"`
	AddHostname  bool              `koanf:"addhostname" yaml:"add_hostname" json:"add_hostname"`
	AddTimestamp bool              `koanf:"addtimestamp" yaml:"add_timestamp" json:"add_timestamp"`
	StaticLabels map[string]string `koanf:"staticlabels" yaml:"static_labels" json:"static_labels"`
}

// FormatConfig selects how component state is serialized.
type FormatConfig struct {
	Encrypted bool   `koanf:"encrypted"`
	Algorithm string `koanf:"algorithm"`
	Key       string `koanf:"key"` // base64
	IV        string `koanf:"iv"`  // base64
	Tag       string `koanf:"tag"` // base64, optional
	KeyName   string `koanf:"keyname" yaml:"key_name" json:"key_name"`
}

// Settings converts the format to model.FormatSettings.
func (f FormatConfig) Settings() model.FormatSettings {
	return model.FormatSettings{
		Encrypted: f.Encrypted,
		Algorithm: f.Algorithm,
		Key:       f.Key,
		IV:        f.IV,
		Tag:       f.Tag,
		KeyName:   f.KeyName,
	}
}

// StateConfig configures the persisted component state.
type StateConfig struct {
	Enabled bool   `koanf:"enabled"`
	Path    string `koanf:"path"`
	// Restore rebuilds components from stored state instead of their
	// configured properties when both exist.
	Restore bool `koanf:"restore"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `koanf:"enabled"`
	Address string `koanf:"address"`
	Path    string `koanf:"path"`
}

// ComponentConfig declares one emitter or chronicler.
type ComponentConfig struct {
	Type        string         `koanf:"type"`
	ID          string         `koanf:"id"`
	Name        string         `koanf:"name"`
	Description string         `koanf:"description"`
	Properties  map[string]any `koanf:"properties"`
}

func (c ComponentConfig) rawProperties() (json.RawMessage, error) {
	if len(c.Properties) == 0 {
		return nil, nil
	}
	raw, err := json.Marshal(c.Properties)
	if err != nil {
		return nil, fmt.Errorf("encoding properties of %q: %w", c.ID, err)
	}
	return raw, nil
}

// EmitterDescription converts the component to an emitter description.
func (c ComponentConfig) EmitterDescription() (model.Description, error) {
	raw, err := c.rawProperties()
	if err != nil {
		return model.Description{}, err
	}
	return model.Description{
		Type:              c.Type,
		ID:                c.ID,
		Name:              c.Name,
		Description:       c.Description,
		EmitterProperties: raw,
	}, nil
}

// ChroniclerDescription converts the component to a chronicler description.
func (c ComponentConfig) ChroniclerDescription() (model.ChroniclerDescription, error) {
	raw, err := c.rawProperties()
	if err != nil {
		return model.ChroniclerDescription{}, err
	}
	return model.ChroniclerDescription{
		Type:                 c.Type,
		ID:                   c.ID,
		Name:                 c.Name,
		Description:          c.Description,
		ChroniclerProperties: raw,
	}, nil
}

// defaults returns the default configuration values.
func defaults() Config {
	return Config{
		LogLevel: "info",
		Pipeline: PipelineConfig{
			BufferSize:       1000,
			ShutdownTimeout:  30 * time.Second,
			DropOnFullBuffer: false,
			SnapshotInterval: time.Minute,
		},
		Format: FormatConfig{
			Algorithm: "aes-256-gcm",
		},
		State: StateConfig{
			Path:    "emitterkit-state.db",
			Restore: true,
		},
		Metrics: MetricsConfig{
			Address: ":9090",
			Path:    "/metrics",
		},
	}
}

// Validate reports every problem found in the configuration.
func (c *Config) Validate() error {
	var errs []error

	if c.Pipeline.BufferSize <= 0 {
		errs = append(errs, fmt.Errorf("pipeline buffer size must be positive, got %d", c.Pipeline.BufferSize))
	}
	if c.Format.Encrypted {
		if c.Format.Key == "" || c.Format.IV == "" {
			errs = append(errs, errors.New("encrypted format needs a key and an iv"))
		}
		if !strings.HasPrefix(strings.ToLower(c.Format.Algorithm), "aes") {
			errs = append(errs, fmt.Errorf("unsupported format algorithm %q", c.Format.Algorithm))
		}
	}
	if c.State.Enabled && c.State.Path == "" {
		errs = append(errs, errors.New("state store needs a path"))
	}
	for _, pattern := range c.Processor.Parser.Patterns {
		if _, err := regexp.Compile(pattern); err != nil {
			errs = append(errs, fmt.Errorf("parser pattern %q: %w", pattern, err))
		}
	}

	errs = append(errs, validateComponents("emitter", c.Emitters)...)
	errs = append(errs, validateComponents("chronicler", c.Chroniclers)...)
	return errors.Join(errs...)
}

func validateComponents(kind string, components []ComponentConfig) []error {
	var errs []error
	seen := make(map[string]struct{}, len(components))
	for i, comp := range components {
		if comp.ID == "" {
			errs = append(errs, fmt.Errorf("%s #%d has no id", kind, i))
			continue
		}
		if comp.Type == "" {
			errs = append(errs, fmt.Errorf("%s %q has no type", kind, comp.ID))
		}
		if _, dup := seen[comp.ID]; dup {
			errs = append(errs, fmt.Errorf("duplicate %s id %q", kind, comp.ID))
		}
		seen[comp.ID] = struct{}{}
	}
	return errs
}

// Load reads configuration from all sources with proper override order.
// Order: defaults -> config file -> environment variables.
func Load(configPath string) (*Config, error) {
	opts := []configloader.Option[Config]{
		configloader.WithDefaults[Config](defaults()),
	}

	// Add file source if path provided or if default config exists
	if configPath != "" {
		opts = append(opts, configloader.WithFile[Config](configPath))
	} else {
		// Try default config locations
		for _, path := range []string{"./emitterkit.yaml", "/etc/emitterkit/config.yaml"} {
			if _, err := os.Stat(path); err == nil {
				opts = append(opts, configloader.WithFile[Config](path))
				break
			}
		}
	}

	// Add environment variable support
	opts = append(opts, configloader.WithEnv[Config](EnvPrefix))

	// Load configuration
	loader := configloader.NewConfigLoader[Config](opts...)
	cfg, err := loader.Load()
	if err != nil {
		return nil, err
	}

	return &cfg, nil
}
