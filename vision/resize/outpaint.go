package resize

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/BaSui01/adaptflow/internal/imaging"
)

// ensureAspectRatio runs Stage 2: expand the canvas to the exact target
// ratio via the minimal symmetric expansion. The ratio check is
// cross-multiplied so no floating point is involved; an input that already
// matches passes through untouched. Outpaint failures abort the run since
// there is no meaningful fallback for an exact-ratio requirement.
func (p *Pipeline) ensureAspectRatio(ctx context.Context, inPath, outPath string, targetW, targetH int) (string, bool, error) {
	baseW, baseH, err := imaging.Dimensions(inPath)
	if err != nil {
		return "", false, fmt.Errorf("read base dimensions: %w", err)
	}

	if baseW*targetH == baseH*targetW {
		p.logger.Debug("aspect ratio already exact, no outpainting needed")
		return inPath, false, nil
	}

	newW, newH, margins := MinimalExpansion(baseW, baseH, targetW, targetH)
	if margins.Zero() {
		return inPath, false, nil
	}

	p.logger.Info("expanding to exact aspect ratio",
		zap.Int("new_width", newW),
		zap.Int("new_height", newH),
		zap.Int("left", margins.Left),
		zap.Int("right", margins.Right),
		zap.Int("up", margins.Up),
		zap.Int("down", margins.Down))

	if err := p.outpainter.Outpaint(ctx, inPath, outPath, margins); err != nil {
		return "", false, fmt.Errorf("outpaint to %dx%d: %w", newW, newH, err)
	}
	return outPath, true, nil
}
