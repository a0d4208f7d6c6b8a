package resize

import (
	"context"
	"fmt"
	"math"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/BaSui01/adaptflow/internal/imaging"
)

// ensureDimensions runs Stage 3: match the exact target size. Shrinking and
// modest enlargements resample locally; only enlargements past the
// configured factor go to the network upscaler, and never with an input
// larger than the service's pixel ceiling.
func (p *Pipeline) ensureDimensions(ctx context.Context, inPath, outPath string, targetW, targetH int, tempDir string) error {
	currW, currH, err := imaging.Dimensions(inPath)
	if err != nil {
		return fmt.Errorf("read current dimensions: %w", err)
	}

	if currW*targetH != currH*targetW {
		// Should not happen after Stage 2; the final resample below will
		// enforce the size at the cost of slight distortion.
		p.logger.Warn("ratio not exact before dimension match",
			zap.Int("current_width", currW), zap.Int("current_height", currH))
	}

	if currW == targetW && currH == targetH {
		p.logger.Debug("final size already matches target")
		return imaging.CopyFile(inPath, outPath)
	}

	targetPixels := targetW * targetH
	currPixels := currW * currH

	if targetPixels <= currPixels {
		p.logger.Debug("reducing or equal size, local resample only")
		return imaging.Resample(inPath, outPath, targetW, targetH)
	}

	// Same factor for height once the ratio is exact.
	scaleFactor := float64(targetW) / float64(currW)
	if scaleFactor <= p.cfg.UpscaleFactorCutoff {
		p.logger.Debug("moderate enlargement, local resample only",
			zap.Float64("scale_factor", scaleFactor))
		return imaging.Resample(inPath, outPath, targetW, targetH)
	}

	prepPath := inPath
	if currPixels > p.cfg.MaxUpscaleInputPixels {
		if float64(targetPixels)/float64(currPixels) <= p.cfg.PreDownscaleCutoff {
			p.logger.Debug("large source but target not much larger, skipping upscale service")
			return imaging.Resample(inPath, outPath, targetW, targetH)
		}
		// Downscale to the largest size under the service ceiling that
		// preserves the exact ratio.
		ratio := float64(targetW) / float64(targetH)
		prepW := int(math.Sqrt(float64(p.cfg.MaxUpscaleInputPixels) * ratio))
		prepH := int(float64(prepW) / ratio)
		prepPath = filepath.Join(tempDir, "3_0_upscale_input.png")
		p.logger.Info("downscaling oversized input for upscale service",
			zap.Int("prep_width", prepW), zap.Int("prep_height", prepH))
		if err := imaging.Resample(inPath, prepPath, prepW, prepH); err != nil {
			return fmt.Errorf("prepare upscale input: %w", err)
		}
	}

	upscaledPath := filepath.Join(tempDir, "3_1_upscaled.png")
	if err := p.upscaler.Upscale(ctx, prepPath, upscaledPath); err != nil {
		p.logger.Warn("upscale service failed, falling back to local resample", zap.Error(err))
		return imaging.Resample(inPath, outPath, targetW, targetH)
	}

	upW, upH, err := imaging.Dimensions(upscaledPath)
	if err != nil {
		p.logger.Warn("upscaled output unreadable, falling back to local resample", zap.Error(err))
		return imaging.Resample(inPath, outPath, targetW, targetH)
	}
	if upW == targetW && upH == targetH {
		return imaging.CopyFile(upscaledPath, outPath)
	}
	p.logger.Debug("resampling upscaled image to exact target",
		zap.Int("upscaled_width", upW), zap.Int("upscaled_height", upH))
	return imaging.Resample(upscaledPath, outPath, targetW, targetH)
}
