package main

import (
	"context"
	"testing"

	"github.com/urfave/cli/v3"

	"rapidsprite/config"
)

// parseGenerate runs the generate flag set through loadConfig only
func parseGenerate(t *testing.T, args ...string) (*config.Config, error) {
	t.Helper()
	t.Setenv("OUTPUT_DIRECTORY", t.TempDir())

	var cfg *config.Config
	cmd := generateCommand()
	cmd.Action = func(ctx context.Context, c *cli.Command) error {
		var err error
		cfg, err = loadConfig(c)
		return err
	}
	err := cmd.Run(context.Background(), append([]string{"generate"}, args...))
	return cfg, err
}

func TestLoadConfig_Count(t *testing.T) {
	cfg, err := parseGenerate(t, "--count", "12", "clip.mp4")
	if err != nil {
		t.Fatalf("loadConfig() unexpected error: %v", err)
	}
	if cfg.SampleCount == nil || *cfg.SampleCount != 12 || cfg.SampleInterval != "" {
		t.Errorf("sampling = %v / %q, want count 12", cfg.SampleCount, cfg.SampleInterval)
	}
}

func TestLoadConfig_RejectsZeroCount(t *testing.T) {
	if _, err := parseGenerate(t, "--count", "0", "clip.mp4"); err == nil {
		t.Fatal("loadConfig() should reject --count 0")
	}
}

func TestLoadConfig_CountAndIntervalExclusive(t *testing.T) {
	if _, err := parseGenerate(t, "--count", "4", "--interval", "2", "clip.mp4"); err == nil {
		t.Fatal("loadConfig() should reject --count together with --interval")
	}
}

func TestLoadConfig_IntervalOverridesEnvCount(t *testing.T) {
	t.Setenv("SAMPLE_COUNT", "4")
	cfg, err := parseGenerate(t, "--interval", "1.5", "clip.mp4")
	if err != nil {
		t.Fatalf("loadConfig() unexpected error: %v", err)
	}
	if cfg.SampleCount != nil || cfg.SampleInterval != "1.5" {
		t.Errorf("sampling = %v / %q, want interval 1.5", cfg.SampleCount, cfg.SampleInterval)
	}
}
