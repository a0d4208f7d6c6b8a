// Package config loads the application configuration for adaptflow.
//
// Usage:
//
//	cfg, err := config.NewLoader().
//	    WithConfigPath("config.yaml").
//	    WithEnvPrefix("ADAPTFLOW").
//	    Load()
//
// Precedence: defaults, then YAML file, then environment variables.
package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete adaptflow configuration.
type Config struct {
	// Pipeline tunes the adaptive resize pipeline.
	Pipeline PipelineConfig `yaml:"pipeline" env:"PIPELINE"`

	// Retry is the per-provider retry policy.
	Retry RetryConfig `yaml:"retry" env:"RETRY"`

	// Stability configures the Stability AI image-edit client used for
	// outpainting and upscaling.
	Stability StabilityConfig `yaml:"stability" env:"STABILITY"`

	// Cache configures the Redis analysis cache.
	Cache CacheConfig `yaml:"cache" env:"CACHE"`

	// Log configures logging.
	Log LogConfig `yaml:"log" env:"LOG"`

	// Telemetry configures tracing and metrics.
	Telemetry TelemetryConfig `yaml:"telemetry" env:"TELEMETRY"`
}

// PipelineConfig holds the resize pipeline thresholds. Zero values fall
// back to the pipeline's own defaults.
type PipelineConfig struct {
	// TempRoot is where per-run working directories are created.
	TempRoot string `yaml:"temp_root" env:"TEMP_ROOT"`
	// KeepTemp preserves intermediate files for debugging.
	KeepTemp bool `yaml:"keep_temp" env:"KEEP_TEMP"`
	// LandscapeCutoff is the target ratio above which the landscape
	// generation bucket is used.
	LandscapeCutoff float64 `yaml:"landscape_cutoff" env:"LANDSCAPE_CUTOFF"`
	// PortraitCutoff is the target ratio below which the portrait bucket
	// is used.
	PortraitCutoff float64 `yaml:"portrait_cutoff" env:"PORTRAIT_CUTOFF"`
	// UpscaleFactorCutoff is the scale factor above which the remote
	// upscaler is preferred over local resampling.
	UpscaleFactorCutoff float64 `yaml:"upscale_factor_cutoff" env:"UPSCALE_FACTOR_CUTOFF"`
	// MaxUpscaleInputPixels is the pixel budget accepted by the remote
	// upscaler.
	MaxUpscaleInputPixels int `yaml:"max_upscale_input_pixels" env:"MAX_UPSCALE_INPUT_PIXELS"`
	// PreDownscaleCutoff decides between pre-downscaling and local
	// upscaling when the input exceeds the pixel budget.
	PreDownscaleCutoff float64 `yaml:"pre_downscale_cutoff" env:"PRE_DOWNSCALE_CUTOFF"`
}

// RetryConfig holds the retry policy knobs.
type RetryConfig struct {
	MaxRetries int           `yaml:"max_retries" env:"MAX_RETRIES"`
	BaseDelay  time.Duration `yaml:"base_delay" env:"BASE_DELAY"`
	MaxDelay   time.Duration `yaml:"max_delay" env:"MAX_DELAY"`
}

// StabilityConfig configures the Stability AI client.
type StabilityConfig struct {
	APIKey     string        `yaml:"api_key" env:"API_KEY"`
	BaseURL    string        `yaml:"base_url" env:"BASE_URL"`
	Timeout    time.Duration `yaml:"timeout" env:"TIMEOUT"`
	Creativity float64       `yaml:"creativity" env:"CREATIVITY"`
}

// CacheConfig configures the analysis cache. Disabled by default; the
// orchestrator runs fine without Redis.
type CacheConfig struct {
	Enabled  bool          `yaml:"enabled" env:"ENABLED"`
	Addr     string        `yaml:"addr" env:"ADDR"`
	Password string        `yaml:"password" env:"PASSWORD"`
	DB       int           `yaml:"db" env:"DB"`
	TTL      time.Duration `yaml:"ttl" env:"TTL"`
	Prefix   string        `yaml:"prefix" env:"PREFIX"`
}

// LogConfig configures logging.
type LogConfig struct {
	// Level: debug, info, warn, error.
	Level string `yaml:"level" env:"LEVEL"`
	// Format: json or console.
	Format string `yaml:"format" env:"FORMAT"`
	// OutputPaths are zap sink URLs or file paths.
	OutputPaths  []string `yaml:"output_paths" env:"OUTPUT_PATHS"`
	EnableCaller bool     `yaml:"enable_caller" env:"ENABLE_CALLER"`
}

// TelemetryConfig configures tracing and metrics.
type TelemetryConfig struct {
	Enabled     bool   `yaml:"enabled" env:"ENABLED"`
	ServiceName string `yaml:"service_name" env:"SERVICE_NAME"`
	// OTLPEndpoint is the gRPC collector address for trace export.
	OTLPEndpoint string `yaml:"otlp_endpoint" env:"OTLP_ENDPOINT"`
	// SampleRate is the trace sampling ratio, 0..1.
	SampleRate float64 `yaml:"sample_rate" env:"SAMPLE_RATE"`
	// MetricsNamespace prefixes every Prometheus metric.
	MetricsNamespace string `yaml:"metrics_namespace" env:"METRICS_NAMESPACE"`
}

// Loader builds a Config from defaults, an optional YAML file, and the
// environment.
type Loader struct {
	configPath string
	envPrefix  string
	validators []func(*Config) error
}

// NewLoader creates a Loader with the ADAPTFLOW env prefix.
func NewLoader() *Loader {
	return &Loader{envPrefix: "ADAPTFLOW"}
}

// WithConfigPath sets the YAML file path. A missing file is not an error.
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithEnvPrefix overrides the environment variable prefix.
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// WithValidator adds a validation step run after loading.
func (l *Loader) WithValidator(v func(*Config) error) *Loader {
	l.validators = append(l.validators, v)
	return l
}

// Load resolves the configuration.
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()

	if l.configPath != "" {
		if err := l.loadFromFile(cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}
	if err := l.setFieldsFromEnv(reflect.ValueOf(cfg).Elem(), l.envPrefix); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}
	for _, v := range l.validators {
		if err := v(cfg); err != nil {
			return nil, fmt.Errorf("config validation failed: %w", err)
		}
	}
	return cfg, nil
}

func (l *Loader) loadFromFile(cfg *Config) error {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	return nil
}

// setFieldsFromEnv walks the struct and overrides tagged fields from the
// environment, composing keys as PREFIX_SECTION_FIELD.
func (l *Loader) setFieldsFromEnv(v reflect.Value, prefix string) error {
	t := v.Type()
	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		envTag := t.Field(i).Tag.Get("env")
		if envTag == "" || envTag == "-" {
			continue
		}
		envKey := prefix + "_" + envTag

		if field.Kind() == reflect.Struct {
			if err := l.setFieldsFromEnv(field, envKey); err != nil {
				return err
			}
			continue
		}
		envValue := os.Getenv(envKey)
		if envValue == "" {
			continue
		}
		if err := setFieldValue(field, envValue); err != nil {
			return fmt.Errorf("failed to set %s: %w", envKey, err)
		}
	}
	return nil
}

func setFieldValue(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}
	switch field.Kind() {
	case reflect.String:
		field.SetString(value)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			field.SetInt(int64(d))
		} else {
			i, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return err
			}
			field.SetInt(i)
		}
	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)
	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)
	case reflect.Slice:
		if field.Type().Elem().Kind() == reflect.String {
			parts := strings.Split(value, ",")
			for i := range parts {
				parts[i] = strings.TrimSpace(parts[i])
			}
			field.Set(reflect.ValueOf(parts))
		}
	}
	return nil
}

// MustLoad loads configuration from path and panics on failure. Intended
// for program entry points only.
func MustLoad(path string) *Config {
	cfg, err := NewLoader().WithConfigPath(path).Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	return cfg
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	var errs []string
	if c.Pipeline.LandscapeCutoff != 0 && c.Pipeline.PortraitCutoff != 0 &&
		c.Pipeline.PortraitCutoff >= c.Pipeline.LandscapeCutoff {
		errs = append(errs, "portrait_cutoff must be below landscape_cutoff")
	}
	if c.Retry.MaxRetries < 0 {
		errs = append(errs, "retry max_retries must not be negative")
	}
	if c.Cache.Enabled && c.Cache.Addr == "" {
		errs = append(errs, "cache enabled but addr is empty")
	}
	switch c.Log.Level {
	case "", "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Sprintf("unknown log level %q", c.Log.Level))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(errs, "; "))
	}
	return nil
}
