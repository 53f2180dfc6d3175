package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"rapidsprite/internal/planner"
	"rapidsprite/pkg/timeline"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() unexpected error: %v", err)
	}

	if cfg.SampleInterval != "2" || cfg.SampleCount != nil {
		t.Errorf("sampling = count %v interval %q, want interval 2", cfg.SampleCount, cfg.SampleInterval)
	}
	g := cfg.Geometry()
	if g.TileWidth != 160 || g.TileHeight != 90 || g.TilesPerRow != 5 || g.TilesPerSheet != 25 {
		t.Errorf("Geometry() = %+v, want 160x90 5/25", g)
	}
	if cfg.SheetFormat != "jpg" || cfg.DecodeTimeout != 30*time.Second || cfg.Decoder != "auto" {
		t.Errorf("cfg = %+v, want jpg, 30s, auto", cfg)
	}

	req, err := cfg.SamplingRequest()
	if err != nil {
		t.Fatalf("SamplingRequest() unexpected error: %v", err)
	}
	if req.Mode != planner.ModeInterval || !req.Interval.Equal(timeline.Seconds(2)) ||
		!req.MinTrailingFraction.Equal(timeline.MustNew(1, 2)) {
		t.Errorf("SamplingRequest() = %+v, want interval 2 with fraction 1/2", req)
	}
}

func TestLoad_Env(t *testing.T) {
	t.Setenv("SAMPLE_COUNT", "4")
	t.Setenv("TILES_PER_ROW", "2")
	t.Setenv("TILES_PER_SHEET", "4")
	t.Setenv("DECODE_TIMEOUT", "5s")
	t.Setenv("SHEET_FORMAT", "PNG")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() unexpected error: %v", err)
	}
	req, _ := cfg.SamplingRequest()
	if req.Mode != planner.ModeCount || req.Count != 4 {
		t.Errorf("SamplingRequest() = %+v, want count 4", req)
	}
	if cfg.TilesPerRow != 2 || cfg.TilesPerSheet != 4 || cfg.DecodeTimeout != 5*time.Second {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.SheetFormat != "png" {
		t.Errorf("SheetFormat = %q, want png", cfg.SheetFormat)
	}
}

func TestLoad_YAMLOverridesEnv(t *testing.T) {
	t.Setenv("TILE_WIDTH", "320")

	path := filepath.Join(t.TempDir(), "rapidsprite.yaml")
	yaml := strings.Join([]string{
		"sample_interval: 1001/500",
		"min_trailing_fraction: 0.25",
		"tile_width: 200",
		"decode_timeout: 10s",
		"fill_color: \"#ffffff\"",
	}, "\n")
	if err := os.WriteFile(path, []byte(yaml), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() unexpected error: %v", err)
	}
	if cfg.TileWidth != 200 {
		t.Errorf("TileWidth = %d, want 200 from YAML", cfg.TileWidth)
	}
	if cfg.TileHeight != 90 {
		t.Errorf("TileHeight = %d, want default 90", cfg.TileHeight)
	}
	if cfg.DecodeTimeout != 10*time.Second {
		t.Errorf("DecodeTimeout = %v, want 10s", cfg.DecodeTimeout)
	}
	req, _ := cfg.SamplingRequest()
	if !req.Interval.Equal(timeline.MustNew(1001, 500)) || !req.MinTrailingFraction.Equal(timeline.MustNew(1, 4)) {
		t.Errorf("SamplingRequest() = %+v, want 1001/500 with fraction 1/4", req)
	}
}

func intPtr(n int) *int { return &n }

func TestLoad_ExplicitZeroCountFails(t *testing.T) {
	t.Run("env", func(t *testing.T) {
		t.Setenv("SAMPLE_COUNT", "0")
		cfg, err := Load("")
		if err == nil {
			t.Fatalf("Load() with SAMPLE_COUNT=0 should fail, got interval %q", cfg.SampleInterval)
		}
	})

	t.Run("yaml", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "rapidsprite.yaml")
		if err := os.WriteFile(path, []byte("sample_count: 0\n"), 0644); err != nil {
			t.Fatal(err)
		}
		if _, err := Load(path); err == nil {
			t.Fatal("Load() with sample_count: 0 should fail")
		}
	})
}

func TestValidate_ZeroCountKeepsNoDefault(t *testing.T) {
	cfg := FromEnv()
	cfg.SampleCount = intPtr(0)
	cfg.SampleInterval = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("Validate() should reject a zero sample count")
	}
	if cfg.SampleInterval != "" {
		t.Errorf("SampleInterval = %q, a rejected count must not fall back to the default", cfg.SampleInterval)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("Load() with a missing file should fail")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"count and interval", func(c *Config) { c.SampleCount = intPtr(4); c.SampleInterval = "2" }},
		{"negative count", func(c *Config) { c.SampleCount = intPtr(-1) }},
		{"zero count", func(c *Config) { c.SampleCount = intPtr(0); c.SampleInterval = "" }},
		{"zero interval", func(c *Config) { c.SampleInterval = "0" }},
		{"negative interval", func(c *Config) { c.SampleInterval = "-2" }},
		{"bad interval", func(c *Config) { c.SampleInterval = "two" }},
		{"fraction above one", func(c *Config) { c.MinTrailingFraction = "1.5" }},
		{"zero tile width", func(c *Config) { c.TileWidth = 0 }},
		{"zero tiles per sheet", func(c *Config) { c.TilesPerSheet = 0 }},
		{"gif sheets", func(c *Config) { c.SheetFormat = "gif" }},
		{"jpeg quality", func(c *Config) { c.JPEGQuality = 0 }},
		{"unknown scaler", func(c *Config) { c.Scaler = "magic" }},
		{"bad fill color", func(c *Config) { c.FillColor = "black" }},
		{"unknown decoder", func(c *Config) { c.Decoder = "vlc" }},
		{"negative timeout", func(c *Config) { c.DecodeTimeout = -time.Second }},
		{"gcs without bucket", func(c *Config) { c.StorageType = "gcs" }},
		{"unknown storage", func(c *Config) { c.StorageType = "s3" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := FromEnv()
			tt.modify(cfg)
			if err := cfg.Validate(); err == nil {
				t.Errorf("Validate() should fail")
			}
		})
	}
}

func TestValidate_Concurrency(t *testing.T) {
	cfg := FromEnv()
	cfg.Concurrency = 0
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() unexpected error: %v", err)
	}
	if cfg.Concurrency != 1 {
		t.Errorf("Concurrency = %d, want 1", cfg.Concurrency)
	}
}
