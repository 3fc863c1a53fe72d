package config

import (
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/feichai0017/lefse-processor/internal/models"
	"github.com/feichai0017/lefse-processor/internal/toolchain"
)

var (
	toolchainOnce   sync.Once
	toolchainConfig *ToolchainConfig
	toolchainErr    error
)

// ToolchainConfig locates the LEfSe scripts and holds the format stage
// defaults. Values from the file named by LEFSE_TOOLCHAIN_CONFIG override the
// environment.
type ToolchainConfig struct {
	Interpreter string             `yaml:"interpreter"`
	ScriptDir   string             `yaml:"script_dir"`
	WorkRoot    string             `yaml:"work_root"`
	KeepWorkDir bool               `yaml:"keep_workdir"`
	SubjectRow  int                `yaml:"subject_row"`
	ClassRow    int                `yaml:"class_row"`
	NormValue   int                `yaml:"norm_value"`
	Policies    toolchain.Policies `yaml:"policies"`
}

func GetToolchainConfig() (*ToolchainConfig, error) {
	toolchainOnce.Do(func() {
		toolchainConfig, toolchainErr = LoadToolchainConfig()
	})
	return toolchainConfig, toolchainErr
}

func LoadToolchainConfig() (*ToolchainConfig, error) {
	loadEnv()
	cfg := &ToolchainConfig{
		Interpreter: getEnv("LEFSE_PYTHON", "python"),
		ScriptDir:   getEnv("LEFSE_SCRIPT_DIR", "/var/task"),
		WorkRoot:    getEnv("LEFSE_WORK_ROOT", os.TempDir()),
		KeepWorkDir: getBool("LEFSE_KEEP_WORKDIR", false),
		SubjectRow:  getInt("LEFSE_SUBJECT_ROW", 2),
		ClassRow:    getInt("LEFSE_CLASS_ROW", 1),
		NormValue:   getInt("LEFSE_NORM_VALUE", 1000000),
		Policies: toolchain.Policies{
			Cladogram:    toolchain.Policy(getEnv("LEFSE_CLADOGRAM_POLICY", string(toolchain.PolicyBestEffort))),
			PlotRes:      toolchain.Policy(getEnv("LEFSE_PLOT_RES_POLICY", string(toolchain.PolicyRequired))),
			PlotFeatures: toolchain.Policy(getEnv("LEFSE_PLOT_FEATURES_POLICY", string(toolchain.PolicyDisabled))),
		},
	}

	if path := getEnv("LEFSE_TOOLCHAIN_CONFIG", ""); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read tool chain config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse tool chain config %s: %w", path, err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *ToolchainConfig) normalize() error {
	for _, p := range []*toolchain.Policy{&c.Policies.Cladogram, &c.Policies.PlotRes, &c.Policies.PlotFeatures} {
		if *p == "" {
			continue
		}
		parsed, err := toolchain.ParsePolicy(string(*p))
		if err != nil {
			return err
		}
		*p = parsed
	}
	if err := c.Policies.Validate(); err != nil {
		return fmt.Errorf("invalid stage policies: %w", err)
	}
	if c.SubjectRow < 1 || c.ClassRow < 1 {
		return fmt.Errorf("subject_row and class_row are 1-based, got %d and %d", c.SubjectRow, c.ClassRow)
	}
	if c.NormValue <= 0 {
		return fmt.Errorf("norm_value must be positive, got %d", c.NormValue)
	}
	return nil
}

// Params returns the default format stage parameters.
func (c *ToolchainConfig) Params() models.ToolParams {
	return models.ToolParams{
		SubjectRow: c.SubjectRow,
		ClassRow:   c.ClassRow,
		NormValue:  c.NormValue,
	}
}

// Orchestrator returns the orchestrator settings.
func (c *ToolchainConfig) Orchestrator() toolchain.Config {
	return toolchain.Config{
		Interpreter: c.Interpreter,
		ScriptDir:   c.ScriptDir,
		Policies:    c.Policies,
	}
}
