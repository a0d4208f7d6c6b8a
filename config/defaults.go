package config

import "time"

// DefaultConfig returns the default configuration. Pipeline thresholds
// mirror the production tuning of the resize pipeline.
func DefaultConfig() *Config {
	return &Config{
		Pipeline: PipelineConfig{
			LandscapeCutoff:       1.2,
			PortraitCutoff:        0.8,
			UpscaleFactorCutoff:   1.3,
			MaxUpscaleInputPixels: 1024 * 1024,
			PreDownscaleCutoff:    1.5,
		},
		Retry: RetryConfig{
			MaxRetries: 3,
			BaseDelay:  time.Second,
			MaxDelay:   60 * time.Second,
		},
		Stability: StabilityConfig{
			BaseURL:    "https://api.stability.ai",
			Timeout:    120 * time.Second,
			Creativity: 0.3,
		},
		Cache: CacheConfig{
			Addr:   "localhost:6379",
			TTL:    time.Hour,
			Prefix: "adaptflow:analysis",
		},
		Log: LogConfig{
			Level:       "info",
			Format:      "json",
			OutputPaths: []string{"stdout"},
		},
		Telemetry: TelemetryConfig{
			ServiceName:      "adaptflow",
			SampleRate:       1.0,
			MetricsNamespace: "adaptflow",
		},
	}
}
