// Package resize implements the three-stage adaptive resize pipeline:
// generative relayout to the nearest supported ratio, outpainting to the
// exact target ratio, and dimension matching via local resampling or a
// network upscaler. Each stage is independently skippable when its no-op
// condition holds; skipped stages create no intermediate files.
package resize

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Outpainter extends an image's canvas by the given margins generatively.
type Outpainter interface {
	Outpaint(ctx context.Context, inPath, outPath string, m Margins) error
}

// Upscaler enlarges an image through a network AI upscale service.
type Upscaler interface {
	Upscale(ctx context.Context, inPath, outPath string) error
}

// RelayoutSpec tells a Repainter which supported frame to compose into.
type RelayoutSpec struct {
	SupportedRatio string // e.g. "3:2"
	Size           string // e.g. "1536x1024", the provider's supported size
	TargetWidth    int
	TargetHeight   int
}

// Repainter generatively redistributes an image's elements into a supported
// aspect ratio. One implementation per generative backend.
type Repainter interface {
	Name() string
	Relayout(ctx context.Context, inPath, outPath string, spec RelayoutSpec) error
}

// Config carries the pipeline tuning values. The cutoffs are provider
// tuning, not law; they default to the values matching the current
// generative backends but stay configurable for retargeting.
type Config struct {
	// TempRoot hosts per-invocation temp dirs. Defaults to os.TempDir().
	TempRoot string `yaml:"temp_root"`
	// KeepTemp retains intermediate files for debugging.
	KeepTemp bool `yaml:"keep_temp"`
	// LandscapeCutoff classifies target ratios above it as landscape (3:2).
	LandscapeCutoff float64 `yaml:"landscape_cutoff"`
	// PortraitCutoff classifies target ratios below it as portrait (2:3).
	PortraitCutoff float64 `yaml:"portrait_cutoff"`
	// UpscaleFactorCutoff is the scale factor above which the network
	// upscaler beats a local resample.
	UpscaleFactorCutoff float64 `yaml:"upscale_factor_cutoff"`
	// MaxUpscaleInputPixels is the upscale service's input-pixel ceiling.
	MaxUpscaleInputPixels int `yaml:"max_upscale_input_pixels"`
	// PreDownscaleCutoff is the target/current pixel ratio above which an
	// oversized input is worth pre-downscaling for the upscaler instead of
	// resampling locally.
	PreDownscaleCutoff float64 `yaml:"pre_downscale_cutoff"`
}

func (c Config) withDefaults() Config {
	if c.LandscapeCutoff == 0 {
		c.LandscapeCutoff = 1.2
	}
	if c.PortraitCutoff == 0 {
		c.PortraitCutoff = 0.8
	}
	if c.UpscaleFactorCutoff == 0 {
		c.UpscaleFactorCutoff = 1.3
	}
	if c.MaxUpscaleInputPixels == 0 {
		c.MaxUpscaleInputPixels = 1 << 20
	}
	if c.PreDownscaleCutoff == 0 {
		c.PreDownscaleCutoff = 1.5
	}
	if c.TempRoot == "" {
		c.TempRoot = os.TempDir()
	}
	return c
}

// Pipeline drives the three stages for one adaptation request. Repainters
// register in fallback order; the outpainter and upscaler are single
// services today.
type Pipeline struct {
	cfg        Config
	outpainter Outpainter
	upscaler   Upscaler
	repainters map[string]Repainter
	order      []string
	logger     *zap.Logger
}

// New creates a Pipeline.
func New(cfg Config, outpainter Outpainter, upscaler Upscaler, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		cfg:        cfg.withDefaults(),
		outpainter: outpainter,
		upscaler:   upscaler,
		repainters: make(map[string]Repainter),
		logger:     logger.With(zap.String("component", "resize_pipeline")),
	}
}

// RegisterRepainter adds a generative relayout backend. Registration order
// is the fallback order for the "fallback" and "auto" provider modes.
func (p *Pipeline) RegisterRepainter(r Repainter) {
	if _, ok := p.repainters[r.Name()]; !ok {
		p.order = append(p.order, r.Name())
	}
	p.repainters[r.Name()] = r
}

// Run adapts imagePath to exactly targetW x targetH and returns the final
// file path, written next to the source. providerMode selects the relayout
// backend: a repainter name pins it, "fallback" (and "auto", reserved for
// future heuristics) walks registration order.
func (p *Pipeline) Run(ctx context.Context, imagePath string, targetW, targetH int, providerMode string) (string, error) {
	if targetW <= 0 || targetH <= 0 {
		return "", fmt.Errorf("target dimensions must be positive, got %dx%d", targetW, targetH)
	}

	stem := strings.TrimSuffix(filepath.Base(imagePath), filepath.Ext(imagePath))
	id := uuid.NewString()[:8]
	outPath := filepath.Join(filepath.Dir(imagePath),
		fmt.Sprintf("%s_adapted_%dx%d_%s.png", stem, targetW, targetH, id))

	// Private per-invocation temp dir; the random suffix makes concurrent
	// runs on the same source filename safe without locking.
	tempDir := filepath.Join(p.cfg.TempRoot, fmt.Sprintf("adapt_%s_%s", stem, id))
	if err := os.MkdirAll(tempDir, 0o755); err != nil {
		return "", fmt.Errorf("create temp dir: %w", err)
	}
	defer func() {
		if p.cfg.KeepTemp {
			return
		}
		// Best-effort: already-missing files are fine.
		if err := os.RemoveAll(tempDir); err != nil {
			p.logger.Warn("temp dir not removed", zap.String("dir", tempDir), zap.Error(err))
		}
	}()

	base, relayouted, err := p.relayoutIfNeeded(ctx, imagePath,
		filepath.Join(tempDir, "1_relayouted.png"), targetW, targetH, providerMode)
	if err != nil {
		return "", err
	}

	current, outpainted, err := p.ensureAspectRatio(ctx, base,
		filepath.Join(tempDir, "2_outpainted.png"), targetW, targetH)
	if err != nil {
		return "", err
	}

	if err := p.ensureDimensions(ctx, current, outPath, targetW, targetH, tempDir); err != nil {
		return "", err
	}

	p.logger.Info("adaptation complete",
		zap.String("source", imagePath),
		zap.String("output", outPath),
		zap.Int("width", targetW),
		zap.Int("height", targetH),
		zap.Bool("relayouted", relayouted),
		zap.Bool("outpainted", outpainted))
	return outPath, nil
}
