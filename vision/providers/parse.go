package providers

import (
	"encoding/json"

	"github.com/BaSui01/adaptflow/vision"
)

// visionPayload is the JSON structure both vision prompts ask the model for.
type visionPayload struct {
	Elements []struct {
		Type        string         `json:"type"`
		Confidence  float64        `json:"confidence"`
		BoundingBox struct {
			X      float64 `json:"x"`
			Y      float64 `json:"y"`
			Width  float64 `json:"width"`
			Height float64 `json:"height"`
		} `json:"bounding_box"`
		Description string         `json:"description"`
		Attributes  map[string]any `json:"attributes"`
	} `json:"elements"`
	Metadata map[string]any `json:"metadata"`
}

// ParseVisionText interprets a model's vision answer: first the embedded
// JSON object, then the keyword heuristic, then the terminal fallback.
// It never fails; parsing ambiguity must not leak into orchestration.
func ParseVisionText(text, provider string) ([]vision.DetectedElement, map[string]any) {
	jsonStr, ok := ExtractJSON(text)
	if !ok {
		return HeuristicElements(text), map[string]any{
			"quality_assessment": "medium",
			"analysis_method":    "text_fallback",
		}
	}

	var payload visionPayload
	if err := json.Unmarshal([]byte(jsonStr), &payload); err != nil {
		return FallbackElements(provider), FallbackMetadata(provider)
	}

	elements := make([]vision.DetectedElement, 0, len(payload.Elements))
	for _, e := range payload.Elements {
		confidence := e.Confidence
		if confidence == 0 {
			confidence = 0.8
		}
		box := vision.BoundingBox{X: e.BoundingBox.X, Y: e.BoundingBox.Y, Width: e.BoundingBox.Width, Height: e.BoundingBox.Height}
		if box.Width == 0 && box.Height == 0 {
			box = vision.BoundingBox{Width: 1, Height: 1}
		}
		elements = append(elements, vision.DetectedElement{
			Type:        vision.ParseElementType(e.Type),
			Confidence:  confidence,
			BoundingBox: box,
			Description: e.Description,
			Attributes:  e.Attributes,
		})
	}
	if len(elements) == 0 {
		elements = FallbackElements(provider)
	}

	metadata := payload.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	return elements, metadata
}

// moderationPayload is the JSON structure the moderation prompts ask for.
type moderationPayload struct {
	Category   string             `json:"category"`
	Confidence float64            `json:"confidence"`
	Scores     map[string]float64 `json:"scores"`
	Flagged    bool               `json:"flagged"`
	Reason     string             `json:"reason"`
}

// ParseModerationText interprets a model's moderation answer with the same
// ladder as ParseVisionText: embedded JSON, keyword heuristic, fallback.
func ParseModerationText(text string) *vision.ModerationResult {
	jsonStr, ok := ExtractJSON(text)
	if !ok {
		return HeuristicModeration(text)
	}

	var payload moderationPayload
	if err := json.Unmarshal([]byte(jsonStr), &payload); err != nil {
		return FallbackModeration()
	}

	scores := make(map[vision.ModerationCategory]float64, len(payload.Scores))
	for k, v := range payload.Scores {
		scores[vision.ModerationCategory(k)] = v
	}
	confidence := payload.Confidence
	if confidence == 0 {
		confidence = 0.9
	}
	return &vision.ModerationResult{
		Category:   vision.ParseModerationCategory(payload.Category),
		Confidence: confidence,
		Flagged:    payload.Flagged,
		Categories: vision.NormalizeCategoryScores(scores),
		Reason:     payload.Reason,
	}
}
