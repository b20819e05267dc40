package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full pipeline configuration record. Values come from an
// optional YAML file; the CLI layer overrides individual fields with flags.
type Config struct {
	Detection DetectionConfig `yaml:"detection"`
	Fusion    FusionConfig    `yaml:"fusion"`
	Render    RenderConfig    `yaml:"render"`
	Whisper   WhisperConfig   `yaml:"whisper"`
	FFmpeg    FFmpegConfig    `yaml:"ffmpeg"`
	Paths     PathsConfig     `yaml:"paths"`
	Limits    LimitsConfig    `yaml:"limits"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// DetectionConfig tunes the audio excitement analyzer.
type DetectionConfig struct {
	// EnergyWeight and FluxWeight combine the two novelty signals into one
	// score. They are product-tuning knobs, deliberately not hard-coded.
	EnergyWeight    float64 `yaml:"energy_weight"`
	FluxWeight      float64 `yaml:"flux_weight"`
	SmoothingFactor float64 `yaml:"smoothing_factor"`
	BaselineSeconds float64 `yaml:"baseline_seconds"`
}

// FusionConfig tunes peak/trigger detection and window construction.
type FusionConfig struct {
	ExcitementThreshold     float64  `yaml:"excitement_threshold"`
	PeakNeighborhoodSeconds float64  `yaml:"peak_neighborhood_seconds"`
	TriggerVocabulary       []string `yaml:"trigger_vocabulary"`
	KeywordBaseScore        float64  `yaml:"keyword_base_score"`
	PreRollSeconds          float64  `yaml:"pre_roll_seconds"`
	PostRollSeconds         float64  `yaml:"post_roll_seconds"`
	MinSeparationSeconds    float64  `yaml:"min_separation_seconds"`
	TopK                    int      `yaml:"top_k"` // 0 means unset
	MinScore                float64  `yaml:"min_score"`
	MinClipSeconds          float64  `yaml:"min_clip_seconds"`
	MaxClipSeconds          float64  `yaml:"max_clip_seconds"`
}

type RenderConfig struct {
	OutputFormat    string  `yaml:"output_format"` // mp4, webm, mkv
	CaptionsEnabled bool    `yaml:"captions_enabled"`
	Concurrency     int     `yaml:"concurrency"`
	TimeoutSeconds  float64 `yaml:"timeout_seconds"`
}

type WhisperConfig struct {
	BinaryPath          string  `yaml:"binary_path"`
	ModelPath           string  `yaml:"model_path"`
	Language            string  `yaml:"language"`
	ChunkSeconds        float64 `yaml:"chunk_seconds"`
	ChunkTimeoutSeconds float64 `yaml:"chunk_timeout_seconds"`
}

type FFmpegConfig struct {
	FFmpegPath  string `yaml:"ffmpeg_path"`
	FFprobePath string `yaml:"ffprobe_path"`
}

type PathsConfig struct {
	Output string `yaml:"output"`
	Temp   string `yaml:"temp"`
}

type LimitsConfig struct {
	JobConcurrency int   `yaml:"job_concurrency"`
	TempQuotaBytes int64 `yaml:"temp_quota_bytes"`
}

type LoggingConfig struct {
	Verbose bool `yaml:"verbose"`
}

// DefaultVocabulary is the stock excitement keyword list. It is a default,
// not a constant of the algorithm: fusion.trigger_vocabulary replaces it.
var DefaultVocabulary = []string{
	"gila", "wow", "anjir", "mantap", "keren", "bagus",
	"savage", "legendary", "godlike", "rampage", "monster kill",
	"double kill", "triple kill", "ultra kill", "mega kill",
	"killing spree", "unstoppable", "wipeout", "ace",
	"headshot", "nice", "gg", "yes", "yeah", "let's go",
}

// Default returns the configuration used when no file or flags are given.
func Default() Config {
	return Config{
		Detection: DetectionConfig{
			EnergyWeight:    0.6,
			FluxWeight:      0.4,
			SmoothingFactor: 0.3,
			BaselineSeconds: 5,
		},
		Fusion: FusionConfig{
			ExcitementThreshold:     0.6,
			PeakNeighborhoodSeconds: 2,
			TriggerVocabulary:       DefaultVocabulary,
			KeywordBaseScore:        0.6,
			PreRollSeconds:          3,
			PostRollSeconds:         5,
			MinSeparationSeconds:    2,
			TopK:                    0,
			MinScore:                0.5,
			MinClipSeconds:          10,
			MaxClipSeconds:          60,
		},
		Render: RenderConfig{
			OutputFormat:    "mp4",
			CaptionsEnabled: true,
			Concurrency:     2,
			TimeoutSeconds:  600,
		},
		Whisper: WhisperConfig{
			BinaryPath:          ".cache/bin/whisper.cpp",
			ModelPath:           ".cache/models/ggml-base.bin",
			Language:            "auto",
			ChunkSeconds:        120,
			ChunkTimeoutSeconds: 300,
		},
		FFmpeg: FFmpegConfig{
			FFmpegPath:  "ffmpeg",
			FFprobePath: "ffprobe",
		},
		Paths: PathsConfig{
			Output: "out",
			Temp:   "",
		},
		Limits: LimitsConfig{
			JobConcurrency: 1,
			TempQuotaBytes: 20 << 30,
		},
	}
}

// Load reads path into a copy of the defaults. A missing path is not an
// error when it was never set explicitly; Load("") returns the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

func (c Config) Validate() error {
	d := c.Detection
	if d.EnergyWeight < 0 || d.FluxWeight < 0 || d.EnergyWeight+d.FluxWeight == 0 {
		return fmt.Errorf("detection weights must be non-negative and not both zero")
	}
	if d.SmoothingFactor <= 0 || d.SmoothingFactor > 1 {
		return fmt.Errorf("detection.smoothing_factor must be in (0,1]")
	}
	f := c.Fusion
	if f.ExcitementThreshold < 0 || f.ExcitementThreshold > 1 {
		return fmt.Errorf("fusion.excitement_threshold must be in [0,1]")
	}
	if f.PeakNeighborhoodSeconds <= 0 {
		return fmt.Errorf("fusion.peak_neighborhood_seconds must be > 0")
	}
	if f.PreRollSeconds < 0 || f.PostRollSeconds < 0 {
		return fmt.Errorf("fusion pre/post roll must be >= 0")
	}
	if f.MinSeparationSeconds < 0 {
		return fmt.Errorf("fusion.min_separation_seconds must be >= 0")
	}
	if f.TopK < 0 {
		return fmt.Errorf("fusion.top_k must be >= 0")
	}
	if f.MinScore < 0 || f.MinScore > 1 {
		return fmt.Errorf("fusion.min_score must be in [0,1]")
	}
	if f.MinClipSeconds <= 0 || f.MaxClipSeconds <= 0 || f.MinClipSeconds > f.MaxClipSeconds {
		return fmt.Errorf("fusion clip duration bounds are invalid")
	}
	switch c.Render.OutputFormat {
	case "mp4", "webm", "mkv":
	default:
		return fmt.Errorf("render.output_format %q is not supported", c.Render.OutputFormat)
	}
	if c.Render.Concurrency <= 0 {
		return fmt.Errorf("render.concurrency must be > 0")
	}
	if c.Whisper.ModelPath == "" {
		return fmt.Errorf("whisper.model_path is required")
	}
	if c.Whisper.ChunkSeconds <= 0 {
		return fmt.Errorf("whisper.chunk_seconds must be > 0")
	}
	if c.Limits.JobConcurrency <= 0 {
		return fmt.Errorf("limits.job_concurrency must be > 0")
	}
	if c.Limits.TempQuotaBytes <= 0 {
		return fmt.Errorf("limits.temp_quota_bytes must be > 0")
	}
	return nil
}

// Seconds converts a float seconds config value to a Duration.
func Seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
