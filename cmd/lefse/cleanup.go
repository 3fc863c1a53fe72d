package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/feichai0017/lefse-processor/config"
	"github.com/feichai0017/lefse-processor/pkg/storage"
)

type cleanupOptions struct {
	*rootOptions
	OlderThan   time.Duration
	StorageType string
}

func newCleanupCommand(root *rootOptions) *cobra.Command {
	opts := &cleanupOptions{rootOptions: root}

	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete uploaded analysis artifacts older than a threshold",
		Example: `  lefse cleanup --older-than 720h
  lefse cleanup --older-than 24h --storage minio`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.OlderThan <= 0 {
				return fmt.Errorf("--older-than must be positive")
			}
			store, err := storage.NewStorage(cmd.Context(), storage.StorageType(opts.StorageType), opts.log)
			if err != nil {
				return err
			}
			prefix := storage.ResultsPrefix(config.GetPortalConfig().Env)
			return cleanup(cmd.Context(), cmd.OutOrStdout(), store, prefix, time.Now().Add(-opts.OlderThan))
		},
	}

	cmd.Flags().DurationVar(&opts.OlderThan, "older-than", 30*24*time.Hour, "age above which artifacts are deleted")
	cmd.Flags().StringVar(&opts.StorageType, "storage", config.GetWorkerConfig().StorageType, "storage backend (s3|minio|memory)")

	return cmd
}

func cleanup(ctx context.Context, out io.Writer, store storage.Storage, prefix string, threshold time.Time) error {
	n, err := store.CleanupBefore(ctx, prefix, threshold)
	if err != nil {
		return fmt.Errorf("cleanup of %s failed after %d deletions: %w", prefix, n, err)
	}
	_, err = fmt.Fprintf(out, "deleted %d objects under %s\n", n, prefix)
	return err
}
