package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"rapidsprite/internal/packer"
	"rapidsprite/internal/planner"
	"rapidsprite/internal/source"
	"rapidsprite/pkg/models"
	"rapidsprite/pkg/timeline"
)

// DefaultSampleInterval applies when neither a count nor an interval is set
const DefaultSampleInterval = "2"

// Config holds all application configuration
type Config struct {
	// Sampling: SampleCount XOR SampleInterval
	SampleCount         *int   `yaml:"sample_count"`          // nil when unset; an explicit 0 is an error
	SampleInterval      string `yaml:"sample_interval"`       // rational seconds: "2", "1.5", "1001/500"
	MinTrailingFraction string `yaml:"min_trailing_fraction"` // in [0, 1]

	// Grid
	TileWidth     int `yaml:"tile_width"`
	TileHeight    int `yaml:"tile_height"`
	TilesPerRow   int `yaml:"tiles_per_row"`
	TilesPerSheet int `yaml:"tiles_per_sheet"`

	// Sheet rendering
	SheetFormat string `yaml:"sheet_format"` // jpg or png
	JPEGQuality int    `yaml:"jpeg_quality"`
	Scaler      string `yaml:"scaler"`
	FillColor   string `yaml:"fill_color"` // #RRGGBB or #RRGGBBAA

	// Decoding
	Decoder       string        `yaml:"decoder"` // auto, ffmpeg, mpeg1
	FFmpegPath    string        `yaml:"ffmpeg_path"`
	DecodeTimeout time.Duration `yaml:"decode_timeout"`

	// Output
	OutputDirectory string `yaml:"output_directory"`
	StorageType     string `yaml:"storage_type"` // local or gcs
	GCSProjectID    string `yaml:"gcs_project_id"`
	GCSBucketName   string `yaml:"gcs_bucket_name"`
	GCSBaseDir      string `yaml:"gcs_base_dir"`

	// Service
	Concurrency int    `yaml:"concurrency"`
	HTTPAddr    string `yaml:"http_addr"`
	MediaRoot   string `yaml:"media_root"` // inputs accepted over HTTP must live here
	APIKey      string `yaml:"api_key"`    // enables submit tokens when set

	// Logging
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"` // text or json
}

// FromEnv loads configuration from environment variables with defaults
func FromEnv() *Config {
	return &Config{
		SampleCount:         getOptionalIntEnv("SAMPLE_COUNT"),
		SampleInterval:      getEnv("SAMPLE_INTERVAL", ""),
		MinTrailingFraction: getEnv("MIN_TRAILING_FRACTION", "0.5"),
		TileWidth:           getIntEnv("TILE_WIDTH", 160),
		TileHeight:          getIntEnv("TILE_HEIGHT", 90),
		TilesPerRow:         getIntEnv("TILES_PER_ROW", 5),
		TilesPerSheet:       getIntEnv("TILES_PER_SHEET", 25),
		SheetFormat:         getEnv("SHEET_FORMAT", packer.FormatJPEG),
		JPEGQuality:         getIntEnv("JPEG_QUALITY", 85),
		Scaler:              getEnv("SCALER", "bilinear"),
		FillColor:           getEnv("FILL_COLOR", "#000000"),
		Decoder:             getEnv("DECODER", source.BackendAuto),
		FFmpegPath:          getEnv("FFMPEG_PATH", ""),
		DecodeTimeout:       getDurationEnv("DECODE_TIMEOUT", 30*time.Second),
		OutputDirectory:     getEnv("OUTPUT_DIRECTORY", "./previews"),
		StorageType:         getEnv("STORAGE_TYPE", "local"),
		GCSProjectID:        getEnv("GCS_PROJECT_ID", ""),
		GCSBucketName:       getEnv("GCS_BUCKET_NAME", ""),
		GCSBaseDir:          getEnv("GCS_BASE_DIR", "previews"),
		Concurrency:         getIntEnv("CONCURRENCY", 2),
		HTTPAddr:            getEnv("HTTP_ADDR", ":8080"),
		MediaRoot:           getEnv("MEDIA_ROOT", ""),
		APIKey:              getEnv("API_KEY", ""),
		LogLevel:            getEnv("LOG_LEVEL", "info"),
		LogFormat:           getEnv("LOG_FORMAT", "text"),
	}
}

// Load reads environment defaults, overlays the YAML file at path when
// path is not empty, and validates the result.
func Load(path string) (*Config, error) {
	cfg := FromEnv()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks the configuration and fills in derived defaults
func (c *Config) Validate() error {
	c.SampleInterval = strings.TrimSpace(c.SampleInterval)
	if c.SampleCount != nil && *c.SampleCount < 1 {
		return fmt.Errorf("sample_count must be > 0, got %d", *c.SampleCount)
	}
	if c.SampleCount != nil && c.SampleInterval != "" {
		return fmt.Errorf("sample_count and sample_interval are mutually exclusive")
	}
	if c.SampleCount == nil && c.SampleInterval == "" {
		c.SampleInterval = DefaultSampleInterval
	}
	if _, err := c.SamplingRequest(); err != nil {
		return err
	}

	if err := c.Geometry().Validate(); err != nil {
		return err
	}

	c.SheetFormat = packer.Extension(c.SheetFormat)
	if c.SheetFormat != packer.FormatJPEG && c.SheetFormat != packer.FormatPNG {
		return fmt.Errorf("sheet_format must be jpg or png, got %q", c.SheetFormat)
	}
	if c.JPEGQuality < 1 || c.JPEGQuality > 100 {
		return fmt.Errorf("jpeg_quality must be in [1, 100]")
	}
	if _, err := packer.ParseFilter(c.Scaler); err != nil {
		return err
	}
	if _, err := packer.ParseColor(c.FillColor); err != nil {
		return fmt.Errorf("fill_color: %w", err)
	}

	switch c.Decoder {
	case "":
		c.Decoder = source.BackendAuto
	case source.BackendAuto, source.BackendFFmpeg, source.BackendMPEG1:
	default:
		return fmt.Errorf("decoder must be auto, ffmpeg or mpeg1, got %q", c.Decoder)
	}
	if c.DecodeTimeout < 0 {
		return fmt.Errorf("decode_timeout must not be negative")
	}

	switch c.StorageType {
	case "local":
		if c.OutputDirectory == "" {
			return fmt.Errorf("output_directory is required")
		}
	case "gcs":
		if c.GCSBucketName == "" {
			return fmt.Errorf("gcs_bucket_name is required for gcs storage")
		}
	default:
		return fmt.Errorf("storage_type must be local or gcs, got %q", c.StorageType)
	}

	if c.Concurrency <= 0 {
		c.Concurrency = 1
	}
	return nil
}

// SamplingRequest turns the sampling options into a planner request
func (c *Config) SamplingRequest() (planner.Request, error) {
	if c.SampleCount != nil {
		return planner.Count(*c.SampleCount), nil
	}

	interval, err := timeline.Parse(c.SampleInterval)
	if err != nil {
		return planner.Request{}, fmt.Errorf("sample_interval: %w", err)
	}
	if interval.IsZero() {
		return planner.Request{}, fmt.Errorf("sample_interval must be > 0")
	}

	fraction, err := timeline.Parse(c.MinTrailingFraction)
	if err != nil {
		return planner.Request{}, fmt.Errorf("min_trailing_fraction: %w", err)
	}
	if timeline.Seconds(1).Less(fraction) {
		return planner.Request{}, fmt.Errorf("min_trailing_fraction must be in [0, 1]")
	}

	return planner.Interval(interval, fraction), nil
}

// Geometry returns the tile layout
func (c *Config) Geometry() models.Geometry {
	return models.Geometry{
		TileWidth:     c.TileWidth,
		TileHeight:    c.TileHeight,
		TilesPerRow:   c.TilesPerRow,
		TilesPerSheet: c.TilesPerSheet,
	}
}

// Helper functions to get environment variables with defaults

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getOptionalIntEnv returns nil when key is unset, so an explicit zero
// stays distinguishable from no value.
func getOptionalIntEnv(key string) *int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return &intValue
		}
	}
	return nil
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
