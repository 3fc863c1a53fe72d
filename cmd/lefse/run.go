package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/feichai0017/lefse-processor/internal/models"
	"github.com/feichai0017/lefse-processor/internal/service/analysis"
)

type runOptions struct {
	*rootOptions
	WorkspaceID string
	AnalysisID  string
	Event       string
}

// errRunFailed makes the process exit non-zero after the report is printed.
var errRunFailed = errors.New("analysis failed")

func newRunCommand(root *rootOptions) *cobra.Command {
	opts := &runOptions{rootOptions: root}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one analysis and print its report",
		Long: `Run one analysis end to end and print the run report as JSON.

The request comes from flags or from an event file holding
{"workspace_id": ..., "analysis_id": ...}; "-" reads the event from stdin.

Example:
  lefse run --workspace-id ws-1 --analysis-id an-42
  echo '{"workspace_id":"ws-1","analysis_id":"an-42"}' | lefse run --event -`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := opts.request(cmd.InOrStdin())
			if err != nil {
				return err
			}

			svc, err := analysis.GetService(cmd.Context(), opts.log, nil)
			if err != nil {
				return err
			}
			return printReport(cmd.OutOrStdout(), svc.Run(cmd.Context(), req))
		},
	}

	cmd.Flags().StringVar(&opts.WorkspaceID, "workspace-id", "", "workspace of the analysis")
	cmd.Flags().StringVar(&opts.AnalysisID, "analysis-id", "", "analysis to run")
	cmd.Flags().StringVar(&opts.Event, "event", "", "path of a JSON event file, or - for stdin")
	cmd.MarkFlagsMutuallyExclusive("event", "workspace-id")
	cmd.MarkFlagsMutuallyExclusive("event", "analysis-id")

	return cmd
}

func (o *runOptions) request(stdin io.Reader) (models.AnalysisRequest, error) {
	if o.Event == "" {
		return models.AnalysisRequest{WorkspaceID: o.WorkspaceID, AnalysisID: o.AnalysisID}, nil
	}

	var r io.Reader = stdin
	if o.Event != "-" {
		f, err := os.Open(o.Event)
		if err != nil {
			return models.AnalysisRequest{}, fmt.Errorf("failed to open event: %w", err)
		}
		defer f.Close()
		r = f
	}

	var req models.AnalysisRequest
	if err := json.NewDecoder(r).Decode(&req); err != nil {
		return models.AnalysisRequest{}, fmt.Errorf("failed to decode event: %w", err)
	}
	return req, nil
}

func printReport(w io.Writer, report *models.RunReport) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		return err
	}
	if !report.Succeeded() {
		return errRunFailed
	}
	return nil
}
