// Package vision defines the provider contract and data model for
// AI-assisted image analysis and adaptation. Concrete providers live in
// vision/providers; orchestration lives in vision/manager.
package vision

import "time"

// ElementType classifies an element detected in an image.
type ElementType string

const (
	ElementFace       ElementType = "face"
	ElementProduct    ElementType = "product"
	ElementText       ElementType = "text"
	ElementLogo       ElementType = "logo"
	ElementObject     ElementType = "object"
	ElementPerson     ElementType = "person"
	ElementBackground ElementType = "background"
)

// ParseElementType maps a free-form provider string to an ElementType.
// Unknown values fall back to ElementObject.
func ParseElementType(s string) ElementType {
	switch ElementType(s) {
	case ElementFace, ElementProduct, ElementText, ElementLogo,
		ElementObject, ElementPerson, ElementBackground:
		return ElementType(s)
	default:
		return ElementObject
	}
}

// ModerationCategory classifies image content for safety purposes.
type ModerationCategory string

const (
	CategorySafe       ModerationCategory = "safe"
	CategoryNSFW       ModerationCategory = "nsfw"
	CategoryViolence   ModerationCategory = "violence"
	CategoryHate       ModerationCategory = "hate"
	CategoryHarassment ModerationCategory = "harassment"
	CategorySelfHarm   ModerationCategory = "self_harm"
)

// AllModerationCategories lists every category a ModerationResult must score.
var AllModerationCategories = []ModerationCategory{
	CategorySafe, CategoryNSFW, CategoryViolence,
	CategoryHate, CategoryHarassment, CategorySelfHarm,
}

// ParseModerationCategory maps a provider string to a ModerationCategory,
// falling back to CategorySafe for anything unrecognized.
func ParseModerationCategory(s string) ModerationCategory {
	switch ModerationCategory(s) {
	case CategorySafe, CategoryNSFW, CategoryViolence,
		CategoryHate, CategoryHarassment, CategorySelfHarm:
		return ModerationCategory(s)
	default:
		return CategorySafe
	}
}

// BoundingBox is a normalized (0-1) rectangle within an image.
type BoundingBox struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// DetectedElement is a single element found in an image.
type DetectedElement struct {
	Type        ElementType    `json:"type"`
	Confidence  float64        `json:"confidence"`
	BoundingBox BoundingBox    `json:"bounding_box"`
	Description string         `json:"description"`
	Attributes  map[string]any `json:"attributes,omitempty"`
}

// ModerationResult is the safety assessment for an image. Categories always
// contains a score for every entry of AllModerationCategories.
type ModerationResult struct {
	Category   ModerationCategory             `json:"category"`
	Confidence float64                        `json:"confidence"`
	Flagged    bool                           `json:"flagged"`
	Categories map[ModerationCategory]float64 `json:"categories"`
	Reason     string                         `json:"reason,omitempty"`
}

// NormalizeCategoryScores overlays the given scores onto the default score
// map so every category is present. Missing categories score 0 except safe,
// the optimistic fallback.
func NormalizeCategoryScores(scores map[ModerationCategory]float64) map[ModerationCategory]float64 {
	out := map[ModerationCategory]float64{
		CategorySafe:       0.9,
		CategoryNSFW:       0.1,
		CategoryViolence:   0,
		CategoryHate:       0,
		CategoryHarassment: 0,
		CategorySelfHarm:   0,
	}
	for k, v := range scores {
		out[k] = v
	}
	return out
}

// ImageAnalysis aggregates everything a provider learned about one image.
// It is constructed once per analysis call and never mutated afterwards.
type ImageAnalysis struct {
	DetectedElements []DetectedElement `json:"detected_elements"`
	Moderation       *ModerationResult `json:"moderation"`
	Metadata         map[string]any    `json:"metadata,omitempty"`
	ProcessingTime   time.Duration     `json:"processing_time"`
	Provider         string            `json:"provider"`
}

// CropStrategy selects how an adaptation positions the source content.
type CropStrategy string

const (
	CropSmart  CropStrategy = "smart"
	CropCenter CropStrategy = "center"
	CropTop    CropStrategy = "top"
	CropBottom CropStrategy = "bottom"
)

// Quality selects the output quality tier of an adaptation.
type Quality string

const (
	QualityHigh   Quality = "high"
	QualityMedium Quality = "medium"
	QualityLow    Quality = "low"
)

// AdaptationStrategy describes one requested transformation. It is an
// immutable value passed into a single ApplyAdaptation call.
type AdaptationStrategy struct {
	TargetWidth     int          `json:"target_width"`
	TargetHeight    int          `json:"target_height"`
	CropStrategy    CropStrategy `json:"crop_strategy,omitempty"`
	Quality         Quality      `json:"quality,omitempty"`
	Format          string       `json:"format,omitempty"`
	BackgroundColor string       `json:"background_color,omitempty"`
}
