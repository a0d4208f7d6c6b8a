// Command adaptflow adapts creative assets to arbitrary target sizes by
// orchestrating AI vision providers.
//
// Usage:
//
//	adaptflow analyze --image photo.png              # full analysis
//	adaptflow adapt --image photo.png --width 1920 --height 1080
//	adaptflow providers                              # configured providers
//	adaptflow version
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/BaSui01/adaptflow/config"
	"github.com/BaSui01/adaptflow/internal/metrics"
	"github.com/BaSui01/adaptflow/internal/telemetry"
	"github.com/BaSui01/adaptflow/vision"
	"github.com/BaSui01/adaptflow/vision/cache"
	"github.com/BaSui01/adaptflow/vision/factory"
	"github.com/BaSui01/adaptflow/vision/manager"
	"github.com/BaSui01/adaptflow/vision/providers/gemini"
	"github.com/BaSui01/adaptflow/vision/providers/openai"
	"github.com/BaSui01/adaptflow/vision/resize"
	"github.com/BaSui01/adaptflow/vision/retry"
)

// Version information, injected at build time.
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	// Local .env is a developer convenience; absence is normal.
	_ = godotenv.Load()

	switch os.Args[1] {
	case "analyze":
		runAnalyze(os.Args[2:])
	case "adapt":
		runAdapt(os.Args[2:])
	case "providers":
		runProviders(os.Args[2:])
	case "version":
		printVersion()
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func runAnalyze(args []string) {
	fs := flag.NewFlagSet("analyze", flag.ExitOnError)
	imagePath := fs.String("image", "", "Path to the image to analyze")
	provider := fs.String("provider", "", "Pin a specific provider (default: failover by priority)")
	configPath := fs.String("config", "", "Path to config file")
	fs.Parse(args)

	if *imagePath == "" {
		fmt.Fprintln(os.Stderr, "analyze: --image is required")
		os.Exit(1)
	}

	app := buildApp(*configPath)
	defer app.close()

	analysis, err := app.manager.AnalyzeImage(context.Background(), *imagePath, *provider)
	if err != nil {
		app.logger.Fatal("analysis failed", zap.Error(err))
	}

	out, err := json.MarshalIndent(analysis, "", "  ")
	if err != nil {
		app.logger.Fatal("failed to encode result", zap.Error(err))
	}
	fmt.Println(string(out))
}

func runAdapt(args []string) {
	fs := flag.NewFlagSet("adapt", flag.ExitOnError)
	imagePath := fs.String("image", "", "Path to the image to adapt")
	width := fs.Int("width", 0, "Target width in pixels")
	height := fs.Int("height", 0, "Target height in pixels")
	provider := fs.String("provider", "", "Pin a specific provider (default: failover by priority)")
	crop := fs.String("crop", string(vision.CropSmart), "Crop strategy: smart, center, top, bottom")
	quality := fs.String("quality", string(vision.QualityHigh), "Output quality: high, medium, low")
	configPath := fs.String("config", "", "Path to config file")
	fs.Parse(args)

	if *imagePath == "" || *width <= 0 || *height <= 0 {
		fmt.Fprintln(os.Stderr, "adapt: --image, --width and --height are required")
		os.Exit(1)
	}

	app := buildApp(*configPath)
	defer app.close()

	strategy := &vision.AdaptationStrategy{
		TargetWidth:  *width,
		TargetHeight: *height,
		CropStrategy: vision.CropStrategy(*crop),
		Quality:      vision.Quality(*quality),
	}
	outPath, err := app.manager.ApplyAdaptation(context.Background(), *imagePath, strategy, *provider)
	if err != nil {
		app.logger.Fatal("adaptation failed", zap.Error(err))
	}
	fmt.Println(outPath)
}

func runProviders(args []string) {
	fs := flag.NewFlagSet("providers", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	fs.Parse(args)

	app := buildApp(*configPath)
	defer app.close()

	health := app.manager.HealthCheck()
	for _, name := range app.registry.Names() {
		cfg, _ := app.registry.Get(name)
		status := "disabled"
		if cfg.Enabled {
			if health[name] {
				status = "ok"
			} else {
				status = "unavailable"
			}
		}
		fmt.Printf("%-10s priority=%d model=%-28s rpm=%-4d %s\n",
			name, cfg.Priority, cfg.Model, cfg.RequestsPerMinute, status)
	}
	if len(app.registry.Names()) == 0 {
		fmt.Println("no providers configured (set OPENAI_API_KEY / GEMINI_API_KEY)")
	}
}

// app bundles the wired object graph behind the CLI commands.
type app struct {
	logger    *zap.Logger
	registry  *vision.Registry
	manager   *manager.Manager
	analyses  *cache.AnalysisCache
	telemetry *telemetry.Providers
}

func (a *app) close() {
	if a.analyses != nil {
		_ = a.analyses.Close()
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = a.telemetry.Shutdown(ctx)
	_ = a.logger.Sync()
}

// buildApp loads configuration and assembles registry, factory, pipeline
// and manager. Fatal on configuration errors; degraded on optional
// collaborators (cache).
func buildApp(configPath string) *app {
	loader := config.NewLoader()
	if configPath != "" {
		loader = loader.WithConfigPath(configPath)
	}
	cfg, err := loader.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid config: %v\n", err)
		os.Exit(1)
	}

	logger := initLogger(cfg.Log)

	otelProviders, err := telemetry.Init(cfg.Telemetry, logger)
	if err != nil {
		logger.Warn("failed to initialize telemetry", zap.Error(err))
		otelProviders = &telemetry.Providers{}
	}

	registry := vision.NewRegistryFromEnv(logger)

	stabilityKey := cfg.Stability.APIKey
	if stabilityKey == "" {
		stabilityKey = os.Getenv("STABILITY_API_KEY")
	}
	stability := resize.NewStabilityClient(resize.StabilityConfig{
		APIKey:     stabilityKey,
		BaseURL:    cfg.Stability.BaseURL,
		Timeout:    cfg.Stability.Timeout,
		Creativity: cfg.Stability.Creativity,
	}, logger)

	pipeline := resize.New(resize.Config{
		TempRoot:              cfg.Pipeline.TempRoot,
		KeepTemp:              cfg.Pipeline.KeepTemp,
		LandscapeCutoff:       cfg.Pipeline.LandscapeCutoff,
		PortraitCutoff:        cfg.Pipeline.PortraitCutoff,
		UpscaleFactorCutoff:   cfg.Pipeline.UpscaleFactorCutoff,
		MaxUpscaleInputPixels: cfg.Pipeline.MaxUpscaleInputPixels,
		PreDownscaleCutoff:    cfg.Pipeline.PreDownscaleCutoff,
	}, stability, stability, logger)

	// Repainter registration order is the relayout fallback order.
	if pc, ok := registry.Get("openai"); ok {
		pipeline.RegisterRepainter(resize.NewOpenAIRepainter(pc.APIKey, pc.BaseURL, "", 0, logger))
	}
	if pc, ok := registry.Get("gemini"); ok {
		pipeline.RegisterRepainter(resize.NewGeminiRepainter(pc.APIKey, pc.BaseURL, "", 0, logger))
	}

	fac := factory.New(logger)
	fac.Register("openai", func(pc vision.ProviderConfig, l *zap.Logger) (vision.Provider, error) {
		return openai.New(pc, pipeline, l), nil
	})
	fac.Register("gemini", func(pc vision.ProviderConfig, l *zap.Logger) (vision.Provider, error) {
		return gemini.New(pc, pipeline, l), nil
	})

	opts := []manager.Option{
		manager.WithRetryHandler(retry.NewHandler(
			cfg.Retry.MaxRetries, cfg.Retry.BaseDelay, cfg.Retry.MaxDelay, logger)),
	}
	if cfg.Telemetry.Enabled {
		opts = append(opts, manager.WithMetrics(
			metrics.NewCollector(cfg.Telemetry.MetricsNamespace, nil)))
	}

	var analyses *cache.AnalysisCache
	if cfg.Cache.Enabled {
		analyses, err = cache.New(context.Background(), cache.Config{
			Addr:     cfg.Cache.Addr,
			Password: cfg.Cache.Password,
			DB:       cfg.Cache.DB,
			TTL:      cfg.Cache.TTL,
			Prefix:   cfg.Cache.Prefix,
		}, logger)
		if err != nil {
			logger.Warn("analysis cache unavailable, continuing without it", zap.Error(err))
		} else {
			opts = append(opts, manager.WithAnalysisCache(analyses))
		}
	}

	return &app{
		logger:    logger,
		registry:  registry,
		manager:   manager.New(registry, fac, logger, opts...),
		analyses:  analyses,
		telemetry: otelProviders,
	}
}

func printVersion() {
	fmt.Printf("adaptflow %s\n", Version)
	fmt.Printf("  Build Time: %s\n", BuildTime)
	fmt.Printf("  Git Commit: %s\n", GitCommit)
}

func printUsage() {
	fmt.Println(`adaptflow - AI-driven image adaptation

Usage:
  adaptflow <command> [options]

Commands:
  analyze    Analyze an image (elements + moderation)
  adapt      Adapt an image to a target size
  providers  List configured providers and their health
  version    Show version information
  help       Show this help message

Common options:
  --config <path>     Path to configuration file (YAML)
  --provider <name>   Pin a provider instead of priority failover

Examples:
  adaptflow analyze --image banner.png
  adaptflow adapt --image banner.png --width 1920 --height 1080
  adaptflow adapt --image banner.png --width 1080 --height 1350 --provider gemini
  adaptflow providers`)
}

func initLogger(cfg config.LogConfig) *zap.Logger {
	var level zapcore.Level
	switch cfg.Level {
	case "debug":
		level = zapcore.DebugLevel
	case "warn":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	default:
		level = zapcore.InfoLevel
	}

	var encoderConfig zapcore.EncoderConfig
	encoding := "json"
	if cfg.Format == "console" {
		encoderConfig = zap.NewDevelopmentEncoderConfig()
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		encoding = "console"
	} else {
		encoderConfig = zap.NewProductionEncoderConfig()
		encoderConfig.TimeKey = "timestamp"
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	outputs := cfg.OutputPaths
	if len(outputs) == 0 {
		outputs = []string{"stdout"}
	}

	zapConfig := zap.Config{
		Level:            zap.NewAtomicLevelAt(level),
		Development:      cfg.Format == "console",
		Encoding:         encoding,
		EncoderConfig:    encoderConfig,
		OutputPaths:      outputs,
		ErrorOutputPaths: []string{"stderr"},
	}

	var buildOpts []zap.Option
	if cfg.EnableCaller {
		buildOpts = append(buildOpts, zap.AddCaller())
	}
	buildOpts = append(buildOpts, zap.AddStacktrace(zapcore.ErrorLevel))

	logger, err := zapConfig.Build(buildOpts...)
	if err != nil {
		logger, _ = zap.NewProduction()
	}
	return logger
}
