package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/clipsieve/clipsieve/internal/config"
	"github.com/clipsieve/clipsieve/internal/logging"
	"github.com/clipsieve/clipsieve/internal/pipeline"
	"github.com/clipsieve/clipsieve/internal/types"
)

func runCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <video>",
		Short: "Process one recording and write highlight clips",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			absIn, err := filepath.Abs(args[0])
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			orch := pipeline.New(cfg)
			res := orch.Submit(ctx, absIn)
			if res.Status == types.JobFailed {
				return fmt.Errorf("job %s failed: %w", res.JobID, res.Err)
			}

			rendered := 0
			for _, c := range res.Clips {
				if c.Status == types.RenderOK {
					rendered++
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "job %s completed: %d clip(s), %d warning(s)\noutput: %s\n",
				res.JobID, rendered, len(res.Warnings), res.OutDir)
			return nil
		},
	}
	addTuningFlags(cmd)
	return cmd
}

// loadConfig reads the YAML file (if any) and layers flag overrides on top.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return config.Config{}, err
	}

	applyTuningFlags(cmd, &cfg)

	verbose, _ := cmd.Flags().GetBool("verbose")
	cfg.Logging.Verbose = cfg.Logging.Verbose || verbose
	logging.Init(cfg.Logging.Verbose)

	if err := cfg.Validate(); err != nil {
		return config.Config{}, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

func addTuningFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("out", "", "Output directory root")
	f.Float64("threshold", 0, "Excitement peak threshold [0,1]")
	f.Int("top", 0, "Keep only the K best windows")
	f.Float64("min-score", -1, "Minimum window score [0,1]")
	f.StringSlice("keywords", nil, "Trigger vocabulary (replaces the default list)")
	f.String("format", "", "Output format: mp4, webm or mkv")
	f.Bool("no-captions", false, "Disable burned-in captions")
	f.Int("render-concurrency", 0, "Parallel clip renders per job")
	f.Int("job-concurrency", 0, "Concurrent jobs (watch mode)")
}

func applyTuningFlags(cmd *cobra.Command, cfg *config.Config) {
	f := cmd.Flags()
	if v, _ := f.GetString("out"); v != "" {
		cfg.Paths.Output = v
	}
	if v, _ := f.GetFloat64("threshold"); v > 0 {
		cfg.Fusion.ExcitementThreshold = v
	}
	if v, _ := f.GetInt("top"); v > 0 {
		cfg.Fusion.TopK = v
	}
	if v, _ := f.GetFloat64("min-score"); v >= 0 {
		cfg.Fusion.MinScore = v
	}
	if v, _ := f.GetStringSlice("keywords"); len(v) > 0 {
		cfg.Fusion.TriggerVocabulary = v
	}
	if v, _ := f.GetString("format"); v != "" {
		cfg.Render.OutputFormat = v
	}
	if v, _ := f.GetBool("no-captions"); v {
		cfg.Render.CaptionsEnabled = false
	}
	if v, _ := f.GetInt("render-concurrency"); v > 0 {
		cfg.Render.Concurrency = v
	}
	if v, _ := f.GetInt("job-concurrency"); v > 0 {
		cfg.Limits.JobConcurrency = v
	}
}
