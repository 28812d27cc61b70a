// Package config loads the export tool configuration from a YAML file and
// FIRE_ prefixed environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/zebbecker/fire-weather-utils/pkg/perimeter"
)

// EnvPrefix prefixes environment overrides, e.g. FIRE_API_PAGE_SIZE.
const EnvPrefix = "FIRE"

var (
	ErrWindowOrder  = errors.New("config: window start is after stop")
	ErrWindowNotSet = errors.New("config: window start and stop are required")
)

// Config is the complete export tool configuration.
type Config struct {
	Log     LogConfig     `mapstructure:"log"`
	API     APIConfig     `mapstructure:"api"`
	Source  SourceConfig  `mapstructure:"source"`
	Output  OutputConfig  `mapstructure:"output"`
	Fires   FiresConfig   `mapstructure:"fires"`
	Window  WindowConfig  `mapstructure:"window"`
	Metrics MetricsConfig `mapstructure:"metrics"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" validate:"oneof=debug info warn error"`
	Pretty bool   `mapstructure:"pretty"`
}

// APIConfig configures the features API client and the paginator.
type APIConfig struct {
	BaseURL        string        `mapstructure:"base_url" validate:"required,url"`
	Collection     string        `mapstructure:"collection" validate:"required"`
	UserAgent      string        `mapstructure:"user_agent" validate:"required"`
	Timeout        time.Duration `mapstructure:"timeout" validate:"gte=0"`
	PageSize       int           `mapstructure:"page_size" validate:"gte=1"`
	MaxPages       int           `mapstructure:"max_pages" validate:"gte=0"`
	ShowProgress   bool          `mapstructure:"show_progress"`
	MaxIDsPerQuery int           `mapstructure:"max_ids_per_query" validate:"gte=1"`
	Paging         string        `mapstructure:"paging" validate:"oneof=offset next"`
}

// SourceConfig selects where perimeters come from. A local source reads a
// FlatGeobuf file from Bucket/Key.
type SourceConfig struct {
	Kind   string `mapstructure:"kind" validate:"oneof=remote local"`
	Bucket string `mapstructure:"bucket" validate:"required_if=Kind local"`
	Key    string `mapstructure:"key" validate:"required_if=Kind local"`
}

// OutputConfig is the bucket and directory export files are written to.
// Buckets are gocloud URLs (file:///data, s3://...) or local paths.
type OutputConfig struct {
	Bucket string `mapstructure:"bucket" validate:"required"`
	Prefix string `mapstructure:"prefix"`
}

// FiresConfig selects the fires of the per-fire jobs, either listed inline
// or read from a CSV with a fireid column (matched case-insensitively).
type FiresConfig struct {
	Region    string `mapstructure:"region" validate:"required"`
	IDs       []int  `mapstructure:"ids"`
	IDsBucket string `mapstructure:"ids_bucket" validate:"required_with=IDsKey"`
	IDsKey    string `mapstructure:"ids_key"`
}

// WindowConfig is the time window and area of the centroid job.
type WindowConfig struct {
	Start    string    `mapstructure:"start"`
	Stop     string    `mapstructure:"stop"`
	BBox     []float64 `mapstructure:"bbox" validate:"omitempty,len=4"`
	BBoxName string    `mapstructure:"bbox_name"`
	Prefix   string    `mapstructure:"prefix" validate:"required"`
}

type MetricsConfig struct {
	// Textfile receives the metrics at exit when set.
	Textfile string `mapstructure:"textfile"`
}

// defaults mirror the constants of the perimeter export scripts.
var defaults = map[string]interface{}{
	"log.level":             "info",
	"log.pretty":            false,
	"api.base_url":          "https://firenrt.delta-backend.com",
	"api.collection":        "public.eis_fire_lf_perimeter_nrt",
	"api.user_agent":        "fire-weather-utils/0.1.0",
	"api.timeout":           "60s",
	"api.page_size":         100,
	"api.max_pages":         0,
	"api.show_progress":     true,
	"api.max_ids_per_query": 200,
	"api.paging":            "offset",
	"source.kind":           "remote",
	"source.bucket":         "",
	"source.key":            "",
	"output.bucket":         ".",
	"output.prefix":         "OUTPUT",
	"fires.region":          "CONUS",
	"fires.ids":             []int{},
	"fires.ids_bucket":      "",
	"fires.ids_key":         "",
	"window.start":          "",
	"window.stop":           "",
	"window.bbox":           []float64{},
	"window.bbox_name":      "",
	"window.prefix":         "LargeFires",
	"metrics.textfile":      "",
}

// Load reads path, applies environment overrides and validates the result.
// An empty path loads defaults and environment only.
func Load(path string) (*Config, error) {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// Validate checks struct constraints and the window ordering.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("config validation error: %w", err)
	}

	if c.Window.Start != "" && c.Window.Stop != "" {
		start, stop, err := c.Window.Times()
		if err != nil {
			return err
		}
		if start.After(stop) {
			return ErrWindowOrder
		}
	}
	return nil
}

// Times parses the window bounds. Both must be set.
func (w WindowConfig) Times() (start, stop time.Time, err error) {
	if w.Start == "" || w.Stop == "" {
		return time.Time{}, time.Time{}, ErrWindowNotSet
	}
	if start, err = perimeter.ParseTime(w.Start); err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("window start %q: %w", w.Start, err)
	}
	if stop, err = perimeter.ParseTime(w.Stop); err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("window stop %q: %w", w.Stop, err)
	}
	return start, stop, nil
}
