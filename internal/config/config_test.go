package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefault_IsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("defaults must validate: %v", err)
	}
}

func TestLoad_EmptyPathReturnsDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Fusion.ExcitementThreshold != Default().Fusion.ExcitementThreshold {
		t.Fatal("empty path should yield defaults")
	}
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clipsieve.yaml")
	doc := `
fusion:
  excitement_threshold: 0.8
  top_k: 5
  trigger_vocabulary: ["clutch", "ace"]
render:
  output_format: webm
  captions_enabled: false
`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Fusion.ExcitementThreshold != 0.8 || cfg.Fusion.TopK != 5 {
		t.Fatalf("fusion overrides not applied: %+v", cfg.Fusion)
	}
	if len(cfg.Fusion.TriggerVocabulary) != 2 || cfg.Fusion.TriggerVocabulary[0] != "clutch" {
		t.Fatalf("vocabulary override not applied: %v", cfg.Fusion.TriggerVocabulary)
	}
	if cfg.Render.OutputFormat != "webm" || cfg.Render.CaptionsEnabled {
		t.Fatalf("render overrides not applied: %+v", cfg.Render)
	}
	// Untouched sections keep their defaults.
	if cfg.Detection.EnergyWeight != Default().Detection.EnergyWeight {
		t.Fatalf("unrelated section changed: %+v", cfg.Detection)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("overridden config must still validate: %v", err)
	}
}

func TestLoad_MissingFileErrors(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("explicit missing file must error")
	}
}

func TestLoad_MalformedYAMLErrors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("fusion: [unclosed"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("malformed yaml must error")
	}
}

func TestValidate_RejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero weights", func(c *Config) { c.Detection.EnergyWeight = 0; c.Detection.FluxWeight = 0 }},
		{"smoothing out of range", func(c *Config) { c.Detection.SmoothingFactor = 1.5 }},
		{"threshold above one", func(c *Config) { c.Fusion.ExcitementThreshold = 1.2 }},
		{"negative pre-roll", func(c *Config) { c.Fusion.PreRollSeconds = -1 }},
		{"negative top_k", func(c *Config) { c.Fusion.TopK = -1 }},
		{"min clip above max", func(c *Config) { c.Fusion.MinClipSeconds = 90; c.Fusion.MaxClipSeconds = 60 }},
		{"unknown format", func(c *Config) { c.Render.OutputFormat = "avi" }},
		{"zero render concurrency", func(c *Config) { c.Render.Concurrency = 0 }},
		{"empty model path", func(c *Config) { c.Whisper.ModelPath = "" }},
		{"zero chunk length", func(c *Config) { c.Whisper.ChunkSeconds = 0 }},
		{"zero job concurrency", func(c *Config) { c.Limits.JobConcurrency = 0 }},
		{"zero temp quota", func(c *Config) { c.Limits.TempQuotaBytes = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestSeconds(t *testing.T) {
	if got := Seconds(1.5); got != 1500*time.Millisecond {
		t.Fatalf("Seconds(1.5) = %s", got)
	}
	if got := Seconds(0); got != 0 {
		t.Fatalf("Seconds(0) = %s", got)
	}
}
