package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	// Ensure no config file affects the test
	origDir, _ := os.Getwd()
	tmpDir := t.TempDir()
	_ = os.Chdir(tmpDir)
	defer os.Chdir(origDir)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.LogLevel != "info" {
		t.Errorf("expected loglevel=info, got %s", cfg.LogLevel)
	}
	if cfg.Pipeline.BufferSize != 1000 {
		t.Errorf("expected buffersize=1000, got %d", cfg.Pipeline.BufferSize)
	}
	if cfg.Pipeline.ShutdownTimeout != 30*time.Second {
		t.Errorf("expected shutdowntimeout=30s, got %v", cfg.Pipeline.ShutdownTimeout)
	}
	if cfg.Pipeline.SnapshotInterval != time.Minute {
		t.Errorf("expected snapshotinterval=1m, got %v", cfg.Pipeline.SnapshotInterval)
	}
	if cfg.Format.Encrypted {
		t.Error("expected plain state format by default")
	}
	if cfg.Format.Algorithm != "aes-256-gcm" {
		t.Errorf("expected algorithm=aes-256-gcm, got %s", cfg.Format.Algorithm)
	}
	if cfg.State.Enabled || cfg.Metrics.Enabled {
		t.Error("expected state store and metrics disabled by default")
	}
	if len(cfg.Emitters) != 0 || len(cfg.Chroniclers) != 0 {
		t.Error("expected no components by default")
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	origDir, _ := os.Getwd()
	tmpDir := t.TempDir()
	_ = os.Chdir(tmpDir)
	defer os.Chdir(origDir)

	t.Setenv("EMITTERKIT_LOGLEVEL", "debug")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.LogLevel != "debug" {
		t.Errorf("expected loglevel=debug from env, got %s", cfg.LogLevel)
	}
}

func TestLoad_NestedEnvOverride(t *testing.T) {
	origDir, _ := os.Getwd()
	tmpDir := t.TempDir()
	_ = os.Chdir(tmpDir)
	defer os.Chdir(origDir)

	// EMITTERKIT_FORMAT_KEY -> format.key
	t.Setenv("EMITTERKIT_PIPELINE_BUFFERSIZE", "2000")
	t.Setenv("EMITTERKIT_FORMAT_KEY", "c2VjcmV0")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Pipeline.BufferSize != 2000 {
		t.Errorf("expected buffersize=2000 from nested env, got %d", cfg.Pipeline.BufferSize)
	}
	if cfg.Format.Key != "c2VjcmV0" {
		t.Errorf("expected format key from env, got %q", cfg.Format.Key)
	}
}

func TestLoad_ConfigFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "emitterkit.yaml")

	configContent := `
loglevel: warn
pipeline:
  buffersize: 500
emitters:
  - type: http
    id: e-1
    name: boiler
    description: plant floor gateway
    properties:
      url: http://gateway/temp
      interval: 5s
chroniclers:
  - type: stdout
    id: c-1
    properties:
      format: text
`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.LogLevel != "warn" {
		t.Errorf("expected loglevel=warn from file, got %s", cfg.LogLevel)
	}
	if cfg.Pipeline.BufferSize != 500 {
		t.Errorf("expected buffersize=500 from file, got %d", cfg.Pipeline.BufferSize)
	}
	if len(cfg.Emitters) != 1 || len(cfg.Chroniclers) != 1 {
		t.Fatalf("expected one emitter and one chronicler, got %d and %d", len(cfg.Emitters), len(cfg.Chroniclers))
	}

	desc, err := cfg.Emitters[0].EmitterDescription()
	if err != nil {
		t.Fatalf("EmitterDescription failed: %v", err)
	}
	if desc.Type != "http" || desc.ID != "e-1" || desc.Name != "boiler" {
		t.Errorf("unexpected description %+v", desc)
	}
	var props map[string]any
	if err := json.Unmarshal(desc.EmitterProperties, &props); err != nil {
		t.Fatalf("properties are not JSON: %v", err)
	}
	if props["url"] != "http://gateway/temp" || props["interval"] != "5s" {
		t.Errorf("unexpected properties %v", props)
	}

	cdesc, err := cfg.Chroniclers[0].ChroniclerDescription()
	if err != nil {
		t.Fatalf("ChroniclerDescription failed: %v", err)
	}
	if string(cdesc.ChroniclerProperties) != `{"format":"text"}` {
		t.Errorf("unexpected chronicler properties %s", cdesc.ChroniclerProperties)
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "emitterkit.yaml")

	configContent := `loglevel: warn`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	t.Setenv("EMITTERKIT_LOGLEVEL", "error")

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.LogLevel != "error" {
		t.Errorf("expected env to override file, got %s", cfg.LogLevel)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "emitterkit.yaml")

	invalidContent := `
loglevel: info
  invalid_indent: true
`
	if err := os.WriteFile(configPath, []byte(invalidContent), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	_, err := Load(configPath)
	if err == nil {
		t.Fatal("expected error for invalid YAML")
	}
}

func TestLoad_FileNotFound(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Fatal("expected error for nonexistent file")
	}
}

func TestValidate(t *testing.T) {
	valid := defaults()
	valid.Emitters = []ComponentConfig{{Type: "http", ID: "e-1"}}
	valid.Chroniclers = []ComponentConfig{{Type: "stdout", ID: "e-1"}}
	if err := valid.Validate(); err != nil {
		t.Errorf("expected valid config, got %v", err)
	}

	bad := defaults()
	bad.Pipeline.BufferSize = 0
	bad.Format.Encrypted = true
	bad.Format.Algorithm = "des-cbc"
	bad.State.Enabled = true
	bad.State.Path = ""
	bad.Processor.Parser.Patterns = []string{"(?P<level"}
	bad.Emitters = []ComponentConfig{
		{Type: "http", ID: "e-1"},
		{Type: "file", ID: "e-1"},
		{ID: "e-2"},
		{Type: "http"},
	}

	err := bad.Validate()
	if err == nil {
		t.Fatal("expected validation errors")
	}
	for _, want := range []string{
		"buffer size",
		"key and an iv",
		`unsupported format algorithm "des-cbc"`,
		"state store needs a path",
		`parser pattern "(?P<level"`,
		`duplicate emitter id "e-1"`,
		`emitter "e-2" has no type`,
		"emitter #3 has no id",
	} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("expected %q in %v", want, err)
		}
	}
}

func TestFormatConfig_Settings(t *testing.T) {
	f := FormatConfig{Encrypted: true, Algorithm: "aes-128-cbc", Key: "k", IV: "iv", KeyName: "primary"}
	fs := f.Settings()
	if !fs.Encrypted || fs.Algorithm != "aes-128-cbc" || fs.Key != "k" || fs.IV != "iv" || fs.KeyName != "primary" {
		t.Errorf("unexpected settings %+v", fs)
	}
	if fs.Type != "" {
		t.Error("type is bound per component")
	}
}
