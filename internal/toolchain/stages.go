// Package toolchain drives the external LEfSe programs as a fixed sequence of
// named stages.
package toolchain

import (
	"fmt"
	"strings"
	"time"
)

// StageName identifies a stage. It is the tag used in error messages.
type StageName string

const (
	StageFormatInput  StageName = "format_input"
	StageRunLefse     StageName = "run_lefse"
	StageCladogram    StageName = "run_cladogram"
	StagePlotRes      StageName = "run_plot_res"
	StagePlotFeatures StageName = "run_plot_features"
)

// Policy decides what a stage failure means for the run.
type Policy string

const (
	// PolicyRequired stages abort the run on failure.
	PolicyRequired Policy = "required"
	// PolicyBestEffort stages are logged and skipped on failure.
	PolicyBestEffort Policy = "best_effort"
	// PolicyDisabled stages are never run.
	PolicyDisabled Policy = "disabled"
)

func ParsePolicy(s string) (Policy, error) {
	switch p := Policy(strings.ToLower(strings.TrimSpace(s))); p {
	case PolicyRequired, PolicyBestEffort, PolicyDisabled:
		return p, nil
	case "best-effort", "optional":
		return PolicyBestEffort, nil
	}
	return "", fmt.Errorf("unknown stage policy %q", s)
}

// Status is the outcome of a single stage.
type Status string

const (
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusSkipped   Status = "skipped"
)

// StageOutcome records what happened to a stage during a run.
type StageOutcome struct {
	Stage       StageName
	Status      Status
	Duration    time.Duration
	Diagnostics string
}

// Policies holds the policy of each plotting stage. format_input and
// run_lefse are always required and have no entry.
type Policies struct {
	Cladogram    Policy `yaml:"cladogram"`
	PlotRes      Policy `yaml:"plot_res"`
	PlotFeatures Policy `yaml:"plot_features"`
}

func DefaultPolicies() Policies {
	return Policies{
		Cladogram:    PolicyBestEffort,
		PlotRes:      PolicyRequired,
		PlotFeatures: PolicyDisabled,
	}
}

// For returns the effective policy of a stage.
func (p Policies) For(stage StageName) Policy {
	var policy Policy
	switch stage {
	case StageFormatInput, StageRunLefse:
		return PolicyRequired
	case StageCladogram:
		policy = p.Cladogram
	case StagePlotRes:
		policy = p.PlotRes
	case StagePlotFeatures:
		policy = p.PlotFeatures
	}
	if policy == "" {
		return DefaultPolicies().For(stage)
	}
	return policy
}

// Validate checks every policy value. A successful run needs at least one
// required plot, so a configuration without one is rejected.
func (p Policies) Validate() error {
	required := false
	for _, stage := range plotStages {
		policy, err := ParsePolicy(string(p.For(stage)))
		if err != nil {
			return fmt.Errorf("%s: %w", stage, err)
		}
		if policy == PolicyRequired {
			required = true
		}
	}
	if !required {
		return fmt.Errorf("at least one plot stage must be required")
	}
	return nil
}

var plotStages = []StageName{StageCladogram, StagePlotRes, StagePlotFeatures}

// Files are the per-run artifact names, relative to the working directory.
const (
	FormattedFile   = "formatted.in"
	ResultFile      = "lda_results.res"
	PlotResultFile  = "output_file_image.res"
	CladogramImage  = "cladogram.png"
	ResImage        = "res.png"
	FeaturesImage   = "features.png"
	defaultFormat   = "png"
	scriptFormat    = "lefse_format_input.py"
	scriptRun       = "lefse_run.py"
	scriptCladogram = "lefse_plot_cladogram.py"
	scriptPlotRes   = "lefse_plot_res.py"
	scriptFeatures  = "lefse_plot_features.py"
)
