// Command lefse runs the pipeline once outside the queue and maintains the
// artifact bucket.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/feichai0017/lefse-processor/config"
	"github.com/feichai0017/lefse-processor/pkg/logger"
)

type rootOptions struct {
	LogLevel string
	log      logger.Logger
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "lefse",
		Short: "LEfSe preprocessing and submission pipeline",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if opts.log != nil {
				return nil
			}
			log, err := logger.NewLogger(
				logger.WithLevel(opts.LogLevel),
				logger.WithEncoding("json"),
				logger.WithOutputPaths([]string{"stderr"}),
			)
			if err != nil {
				return fmt.Errorf("failed to create logger: %w", err)
			}
			opts.log = log
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", config.GetWorkerConfig().LogLevel, "log level (debug|info|warn|error)")

	cmd.AddCommand(newRunCommand(opts))
	cmd.AddCommand(newCleanupCommand(opts))
	return cmd
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := newRootCommand().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
