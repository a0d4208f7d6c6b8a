package resize

import (
	"context"
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/BaSui01/adaptflow/internal/imaging"
)

// ratioBucket is one of the aspect ratios the generative backends support.
type ratioBucket struct {
	label string
	value float64
	size  string
}

// classifyTarget buckets the target ratio into the nearest supported frame:
// landscape above the cutoff, portrait below, square otherwise.
func (p *Pipeline) classifyTarget(targetW, targetH int) ratioBucket {
	ratio := float64(targetW) / float64(targetH)
	switch {
	case ratio > p.cfg.LandscapeCutoff:
		return ratioBucket{label: "3:2", value: 3.0 / 2.0, size: "1536x1024"}
	case ratio < p.cfg.PortraitCutoff:
		return ratioBucket{label: "2:3", value: 2.0 / 3.0, size: "1024x1536"}
	default:
		return ratioBucket{label: "1:1", value: 1.0, size: "1024x1024"}
	}
}

// relayoutIfNeeded runs Stage 1. When the input is already closer to the
// target ratio than anything a repainter could produce at a supported
// ratio, the stage is skipped and the source path is passed forward
// untouched. Repainter failures fall through the registered fallback chain;
// total failure also passes the source through rather than aborting.
func (p *Pipeline) relayoutIfNeeded(ctx context.Context, inPath, outPath string, targetW, targetH int, providerMode string) (string, bool, error) {
	w, h, err := imaging.Dimensions(inPath)
	if err != nil {
		return "", false, fmt.Errorf("read source dimensions: %w", err)
	}

	inputRatio := float64(w) / float64(h)
	targetRatio := float64(targetW) / float64(targetH)
	bucket := p.classifyTarget(targetW, targetH)

	if math.Abs(targetRatio-inputRatio) < math.Abs(targetRatio-bucket.value) || inputRatio == targetRatio {
		p.logger.Debug("skipping relayout, input ratio already closer to target than supported ratio",
			zap.Float64("input_ratio", inputRatio),
			zap.Float64("target_ratio", targetRatio),
			zap.Float64("supported_ratio", bucket.value))
		return inPath, false, nil
	}

	seq, err := p.repainterSequence(providerMode)
	if err != nil {
		return "", false, err
	}

	spec := RelayoutSpec{
		SupportedRatio: bucket.label,
		Size:           bucket.size,
		TargetWidth:    targetW,
		TargetHeight:   targetH,
	}
	p.logger.Info("relayouting to nearest supported ratio",
		zap.String("supported_ratio", bucket.label),
		zap.String("size", bucket.size),
		zap.Float64("input_ratio", inputRatio),
		zap.Float64("target_ratio", targetRatio))

	for _, r := range seq {
		if err := r.Relayout(ctx, inPath, outPath, spec); err != nil {
			p.logger.Warn("relayout backend failed",
				zap.String("backend", r.Name()),
				zap.Error(err))
			continue
		}
		return outPath, true, nil
	}

	p.logger.Warn("no relayout produced, passing source through untouched")
	return inPath, false, nil
}

// repainterSequence resolves the provider mode into an ordered backend list.
func (p *Pipeline) repainterSequence(mode string) ([]Repainter, error) {
	switch mode {
	case "", "fallback", "auto": // auto is reserved for future heuristics
		seq := make([]Repainter, 0, len(p.order))
		for _, name := range p.order {
			seq = append(seq, p.repainters[name])
		}
		if len(seq) == 0 {
			return nil, fmt.Errorf("no relayout backends registered")
		}
		return seq, nil
	default:
		r, ok := p.repainters[mode]
		if !ok {
			return nil, fmt.Errorf("unsupported relayout provider option %q", mode)
		}
		return []Repainter{r}, nil
	}
}
