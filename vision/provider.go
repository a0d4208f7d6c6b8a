package vision

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Provider is the capability contract every AI backend implements. All four
// operations validate the input image first via ValidateImage; failures
// surface as *Error values from the taxonomy in errors.go.
type Provider interface {
	// AnalyzeImage runs element detection and content moderation for one
	// image and returns their combination plus wall-clock processing time.
	AnalyzeImage(ctx context.Context, imagePath string) (*ImageAnalysis, error)

	// DetectElements returns the elements found in the image.
	DetectElements(ctx context.Context, imagePath string) ([]DetectedElement, error)

	// ModerateContent returns the safety assessment for the image.
	ModerateContent(ctx context.Context, imagePath string) (*ModerationResult, error)

	// ApplyAdaptation resizes the image per the strategy and returns the path
	// of the adapted file. The logical transformation is deterministic; the
	// output bytes are not, since generative steps are stochastic.
	ApplyAdaptation(ctx context.Context, imagePath string, strategy *AdaptationStrategy) (string, error)

	// Name returns the provider name used in configs and logs.
	Name() string

	// SupportedFormats returns the accepted file extensions, without dots.
	SupportedFormats() []string
}

// ValidateImage is the shared precondition check: the file must exist and
// its extension must be in the provider's supported-format set. Providers
// call this at the top of every operation rather than duplicating the check.
func ValidateImage(imagePath string, formats []string) error {
	if _, err := os.Stat(imagePath); err != nil {
		return NewError(ErrInvalidImage, fmt.Sprintf("image file not found: %s", imagePath)).WithCause(err)
	}
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(imagePath), "."))
	for _, f := range formats {
		if ext == f {
			return nil
		}
	}
	return NewError(ErrInvalidImage, fmt.Sprintf(
		"unsupported image format %q, supported: %s", ext, strings.Join(formats, ", ")))
}
