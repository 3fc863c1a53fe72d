package toolchain

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feichai0017/lefse-processor/internal/models"
	"github.com/feichai0017/lefse-processor/pkg/logger"
)

const sampleResult = "Bacteroides fragilis\t4.1\tdisease\t3.2\t0.001\nPrevotella copri\t2.0\t\t-\t-\n"

// fakeRunner pretends to be the LEfSe scripts. run_lefse writes a result
// file; scripts listed in fail exit non-zero with the given stderr.
type fakeRunner struct {
	mu   sync.Mutex
	cmds []Command
	fail map[string]string
}

func (f *fakeRunner) Run(_ context.Context, c Command) (Result, error) {
	f.mu.Lock()
	f.cmds = append(f.cmds, c)
	f.mu.Unlock()

	script := filepath.Base(c.Args[0])
	if stderr, ok := f.fail[script]; ok {
		return Result{Stderr: []byte(stderr), ExitCode: 1}, errors.New("exit status 1")
	}
	if script == scriptRun {
		if err := os.WriteFile(c.Args[2], []byte(sampleResult), 0644); err != nil {
			return Result{}, err
		}
	}
	return Result{}, nil
}

func (f *fakeRunner) scripts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, c := range f.cmds {
		out = append(out, filepath.Base(c.Args[0]))
	}
	return out
}

var testParams = models.ToolParams{SubjectRow: 2, ClassRow: 1, NormValue: 1000000}

func newTestOrchestrator(r Runner, p Policies) *Orchestrator {
	return NewOrchestrator(r, Config{Interpreter: "python", ScriptDir: "/var/task", Policies: p}, logger.NewTestLogger())
}

func TestRunAllDefaultStages(t *testing.T) {
	dir := t.TempDir()
	r := &fakeRunner{}
	art, err := newTestOrchestrator(r, DefaultPolicies()).Run(context.Background(), dir, filepath.Join(dir, "input_data.txt"), testParams)
	require.NoError(t, err)

	assert.Equal(t, []string{scriptFormat, scriptRun, scriptCladogram, scriptPlotRes}, r.scripts())

	format := r.cmds[0]
	assert.Equal(t, "python", format.Name)
	assert.Equal(t, dir, format.Dir)
	assert.Equal(t, []string{
		"/var/task/lefse_format_input.py",
		filepath.Join(dir, "input_data.txt"), filepath.Join(dir, FormattedFile),
		"-u", "2", "-c", "1", "-o", "1000000",
	}, format.Args)

	assert.Equal(t, []string{
		"/var/task/lefse_plot_cladogram.py",
		filepath.Join(dir, PlotResultFile), filepath.Join(dir, CladogramImage), "--format", "png",
	}, r.cmds[2].Args)
	assert.Equal(t, filepath.Join(dir, PlotResultFile), r.cmds[3].Args[1])

	assert.Equal(t, []string{
		filepath.Join(dir, CladogramImage),
		filepath.Join(dir, ResImage),
	}, art.Images)

	outcome, ok := art.Outcome(StagePlotFeatures)
	require.True(t, ok)
	assert.Equal(t, StatusSkipped, outcome.Status)

	copied, err := os.ReadFile(art.PlotResultFile)
	require.NoError(t, err)
	assert.Equal(t, strings.ReplaceAll(sampleResult, " ", "_"), string(copied))

	original, err := os.ReadFile(art.ResultFile)
	require.NoError(t, err)
	assert.Equal(t, sampleResult, string(original), "result file keeps its spaces")
}

func TestRunLefseFailureStopsTheChain(t *testing.T) {
	dir := t.TempDir()
	r := &fakeRunner{fail: map[string]string{scriptRun: "Traceback: singular matrix\n"}}
	art, err := newTestOrchestrator(r, DefaultPolicies()).Run(context.Background(), dir, "in.txt", testParams)

	require.Error(t, err)
	assert.Nil(t, art)
	var tcErr *models.ToolChainError
	require.True(t, errors.As(err, &tcErr))
	assert.Equal(t, "run_lefse", tcErr.Stage)
	assert.Equal(t, "run_lefse failed: Traceback: singular matrix", err.Error())
	assert.Equal(t, []string{scriptFormat, scriptRun}, r.scripts())
	assert.NoFileExists(t, filepath.Join(dir, PlotResultFile))
}

func TestBestEffortCladogramFailureIsSkipped(t *testing.T) {
	dir := t.TempDir()
	r := &fakeRunner{fail: map[string]string{scriptCladogram: "no significant features"}}
	art, err := newTestOrchestrator(r, DefaultPolicies()).Run(context.Background(), dir, "in.txt", testParams)
	require.NoError(t, err)

	assert.Equal(t, []string{filepath.Join(dir, ResImage)}, art.Images)
	outcome, ok := art.Outcome(StageCladogram)
	require.True(t, ok)
	assert.Equal(t, StatusFailed, outcome.Status)
	assert.Equal(t, "no significant features", outcome.Diagnostics)
}

func TestRequiredPlotFailureFailsRun(t *testing.T) {
	r := &fakeRunner{fail: map[string]string{scriptPlotRes: "bad result"}}
	_, err := newTestOrchestrator(r, DefaultPolicies()).Run(context.Background(), t.TempDir(), "in.txt", testParams)

	var tcErr *models.ToolChainError
	require.True(t, errors.As(err, &tcErr))
	assert.Equal(t, string(StagePlotRes), tcErr.Stage)
}

func TestRequiredCladogramAndFeatures(t *testing.T) {
	dir := t.TempDir()
	r := &fakeRunner{}
	p := Policies{Cladogram: PolicyRequired, PlotRes: PolicyDisabled, PlotFeatures: PolicyBestEffort}
	art, err := newTestOrchestrator(r, p).Run(context.Background(), dir, "in.txt", testParams)
	require.NoError(t, err)

	assert.Equal(t, []string{scriptFormat, scriptRun, scriptCladogram, scriptFeatures}, r.scripts())
	assert.Equal(t, []string{
		"/var/task/lefse_plot_features.py",
		filepath.Join(dir, FormattedFile), filepath.Join(dir, PlotResultFile), filepath.Join(dir, FeaturesImage),
	}, r.cmds[3].Args)
	assert.Len(t, art.Images, 2)
}

func TestCancelledContextStopsBeforeNextStage(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r := &fakeRunner{}
	_, err := newTestOrchestrator(r, DefaultPolicies()).Run(ctx, t.TempDir(), "in.txt", testParams)

	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, r.scripts())
}

func TestPolicies(t *testing.T) {
	p := DefaultPolicies()
	assert.Equal(t, PolicyRequired, p.For(StageFormatInput))
	assert.Equal(t, PolicyRequired, p.For(StageRunLefse))
	assert.Equal(t, PolicyBestEffort, p.For(StageCladogram))
	assert.Equal(t, PolicyRequired, p.For(StagePlotRes))
	assert.Equal(t, PolicyDisabled, p.For(StagePlotFeatures))
	require.NoError(t, p.Validate())

	assert.Equal(t, PolicyBestEffort, Policies{}.For(StageCladogram), "empty falls back to default")

	none := Policies{Cladogram: PolicyBestEffort, PlotRes: PolicyBestEffort, PlotFeatures: PolicyDisabled}
	assert.Error(t, none.Validate())
	assert.Error(t, Policies{Cladogram: "sometimes"}.Validate())

	got, err := ParsePolicy(" Best-Effort ")
	require.NoError(t, err)
	assert.Equal(t, PolicyBestEffort, got)
}

func TestExecRunnerCapturesStderr(t *testing.T) {
	r := NewExecRunner()
	res, err := r.Run(context.Background(), Command{
		Name: "sh",
		Args: []string{"-c", "echo out; echo oops >&2; exit 3"},
		Dir:  t.TempDir(),
	})
	require.Error(t, err)
	assert.Equal(t, 3, res.ExitCode)
	assert.Equal(t, "oops\n", string(res.Stderr))
	assert.Equal(t, "out\n", string(res.Stdout))

	res, err = r.Run(context.Background(), Command{Name: "sh", Args: []string{"-c", "echo $LEFSE_TEST"}, Env: []string{"LEFSE_TEST=1"}})
	require.NoError(t, err)
	assert.Equal(t, "1\n", string(res.Stdout))
}
