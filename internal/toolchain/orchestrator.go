package toolchain

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/feichai0017/lefse-processor/internal/models"
	"github.com/feichai0017/lefse-processor/pkg/logger"
	"github.com/feichai0017/lefse-processor/pkg/metrics"
)

const maxDiagnostics = 4096

// Config locates the LEfSe scripts and sets the stage policies.
type Config struct {
	Interpreter string
	ScriptDir   string
	Policies    Policies
}

// Artifacts are the files a successful run produced.
type Artifacts struct {
	FormattedFile  string
	ResultFile     string
	PlotResultFile string
	// Images holds the plots whose stage succeeded, in stage order.
	Images   []string
	Outcomes []StageOutcome
}

// Outcome returns the recorded outcome of a stage.
func (a *Artifacts) Outcome(stage StageName) (StageOutcome, bool) {
	for _, o := range a.Outcomes {
		if o.Stage == stage {
			return o, true
		}
	}
	return StageOutcome{}, false
}

type Orchestrator struct {
	runner Runner
	config Config
	logger logger.Logger
}

func NewOrchestrator(runner Runner, cfg Config, log logger.Logger) *Orchestrator {
	if cfg.Interpreter == "" {
		cfg.Interpreter = "python"
	}
	return &Orchestrator{
		runner: runner,
		config: cfg,
		logger: log.Named("toolchain"),
	}
}

type step struct {
	stage  StageName
	script string
	args   []string
	image  string
}

// Run executes the stages in order inside workDir. The first failure of a
// required stage stops the run with a *models.ToolChainError.
func (o *Orchestrator) Run(ctx context.Context, workDir, inputFile string, params models.ToolParams) (*Artifacts, error) {
	log := logger.FromContext(ctx, o.logger)
	art := &Artifacts{
		FormattedFile:  filepath.Join(workDir, FormattedFile),
		ResultFile:     filepath.Join(workDir, ResultFile),
		PlotResultFile: filepath.Join(workDir, PlotResultFile),
	}

	head := []step{
		{
			stage:  StageFormatInput,
			script: scriptFormat,
			args: []string{
				inputFile, art.FormattedFile,
				"-u", strconv.Itoa(params.SubjectRow),
				"-c", strconv.Itoa(params.ClassRow),
				"-o", strconv.Itoa(params.NormValue),
			},
		},
		{
			stage:  StageRunLefse,
			script: scriptRun,
			args:   []string{art.FormattedFile, art.ResultFile},
		},
	}
	for _, s := range head {
		if err := o.runStep(ctx, log, workDir, s, art); err != nil {
			return nil, err
		}
	}

	if err := UnderscoreSpaces(art.ResultFile, art.PlotResultFile); err != nil {
		return nil, err
	}

	plots := []step{
		{
			stage:  StageCladogram,
			script: scriptCladogram,
			args:   []string{art.PlotResultFile, filepath.Join(workDir, CladogramImage), "--format", defaultFormat},
			image:  filepath.Join(workDir, CladogramImage),
		},
		{
			stage:  StagePlotRes,
			script: scriptPlotRes,
			args:   []string{art.PlotResultFile, filepath.Join(workDir, ResImage)},
			image:  filepath.Join(workDir, ResImage),
		},
		{
			stage:  StagePlotFeatures,
			script: scriptFeatures,
			args:   []string{art.FormattedFile, art.PlotResultFile, filepath.Join(workDir, FeaturesImage)},
			image:  filepath.Join(workDir, FeaturesImage),
		},
	}
	for _, s := range plots {
		if err := o.runStep(ctx, log, workDir, s, art); err != nil {
			return nil, err
		}
	}

	log.Info("Tool chain finished",
		logger.Strings("images", art.Images),
	)
	return art, nil
}

func (o *Orchestrator) runStep(ctx context.Context, log logger.Logger, workDir string, s step, art *Artifacts) error {
	policy := o.config.Policies.For(s.stage)
	log = log.With(logger.Stage(string(s.stage)))

	if policy == PolicyDisabled {
		log.Debug("Stage disabled")
		art.Outcomes = append(art.Outcomes, StageOutcome{Stage: s.stage, Status: StatusSkipped})
		metrics.StageDuration.WithLabelValues(string(s.stage), metrics.OutcomeSkip).Observe(0)
		return nil
	}
	if err := ctx.Err(); err != nil {
		return &models.ToolChainError{Stage: string(s.stage), Err: err}
	}

	cmd := Command{
		Name: o.config.Interpreter,
		Args: append([]string{filepath.Join(o.config.ScriptDir, s.script)}, s.args...),
		Dir:  workDir,
	}
	log.Info("Running stage", logger.String("command", cmd.String()))

	start := time.Now()
	res, err := o.runner.Run(ctx, cmd)
	elapsed := time.Since(start)

	if err == nil {
		metrics.StageDuration.WithLabelValues(string(s.stage), metrics.OutcomeOK).Observe(elapsed.Seconds())
		art.Outcomes = append(art.Outcomes, StageOutcome{Stage: s.stage, Status: StatusSucceeded, Duration: elapsed})
		if s.image != "" {
			art.Images = append(art.Images, s.image)
		}
		log.Info("Stage succeeded", logger.Duration("duration", elapsed))
		return nil
	}

	metrics.StageDuration.WithLabelValues(string(s.stage), metrics.OutcomeFailed).Observe(elapsed.Seconds())
	diag := diagnostics(res.Stderr)
	art.Outcomes = append(art.Outcomes, StageOutcome{
		Stage:       s.stage,
		Status:      StatusFailed,
		Duration:    elapsed,
		Diagnostics: diag,
	})

	if policy == PolicyBestEffort {
		log.Warn("Optional stage failed, continuing",
			logger.Int("exitCode", res.ExitCode),
			logger.String("stderr", diag),
			logger.Error(err),
		)
		if s.image != "" {
			os.Remove(s.image)
		}
		return nil
	}

	log.Error("Stage failed",
		logger.Int("exitCode", res.ExitCode),
		logger.String("stderr", diag),
		logger.Error(err),
	)
	return &models.ToolChainError{Stage: string(s.stage), Diagnostics: diag, Err: err}
}

func diagnostics(stderr []byte) string {
	d := strings.TrimSpace(string(stderr))
	if len(d) > maxDiagnostics {
		d = "..." + d[len(d)-maxDiagnostics:]
	}
	return d
}

// UnderscoreSpaces copies src to dst replacing every space with an
// underscore. The plotters split result lines on whitespace.
func UnderscoreSpaces(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return fmt.Errorf("failed to read result file: %w", err)
	}
	if err := os.WriteFile(dst, bytes.ReplaceAll(data, []byte(" "), []byte("_")), 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", dst, err)
	}
	return nil
}
