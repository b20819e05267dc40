package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/clipsieve/clipsieve/internal/pipeline"
	"github.com/clipsieve/clipsieve/internal/types"
	"github.com/clipsieve/clipsieve/internal/watch"
)

func watchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch <dir>",
		Short: "Watch a directory and process every new recording",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			dir, err := filepath.Abs(args[0])
			if err != nil {
				return err
			}
			if st, err := os.Stat(dir); err != nil || !st.IsDir() {
				return fmt.Errorf("%s is not a watchable directory", dir)
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			orch := pipeline.New(cfg)
			w, err := watch.New(dir, func(ctx context.Context, path string) error {
				res := orch.Submit(ctx, path)
				if res.Status == types.JobFailed {
					return res.Err
				}
				return nil
			})
			if err != nil {
				return err
			}

			err = w.Run(ctx)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
	addTuningFlags(cmd)
	return cmd
}
