// Package providers holds the transport plumbing shared by the concrete
// provider implementations: base64 payload preparation, HTTP error mapping,
// and the response-parsing fallbacks for APIs that answer with free text
// instead of clean JSON.
package providers

import (
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BaSui01/adaptflow/vision"
)

// EncodeImageBase64 reads the file and returns its standard base64 encoding.
func EncodeImageBase64(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", vision.NewError(vision.ErrProvider, "failed to read image for upload").WithCause(err)
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// MimeType guesses the image MIME type from the file extension, defaulting
// to JPEG for anything unknown.
func MimeType(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png":
		return "image/png"
	case ".webp":
		return "image/webp"
	case ".gif":
		return "image/gif"
	default:
		return "image/jpeg"
	}
}

// ExtractJSON pulls the JSON object embedded in free text: everything from
// the first '{' to the last '}'. Vision models frequently wrap their JSON in
// prose or markdown fences, so this is the first parsing attempt before any
// heuristic fallback.
func ExtractJSON(text string) (string, bool) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return "", false
	}
	return text[start : end+1], true
}

// CheckResponse maps a non-2xx HTTP response into the error taxonomy,
// consuming the body for the provider's error message and honoring a
// Retry-After header when present. A nil return means the response is OK
// and its body is still unread.
func CheckResponse(resp *http.Response, provider string) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	msg := errorMessage(body, resp.StatusCode)

	var retryAfter time.Duration
	if v := resp.Header.Get("Retry-After"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			retryAfter = time.Duration(secs) * time.Second
		}
	}
	return vision.MapHTTPError(resp.StatusCode, msg, provider, retryAfter)
}

// errorMessage digs the human-readable message out of a provider error body.
func errorMessage(body []byte, status int) string {
	var envelope struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil {
		if envelope.Error.Message != "" {
			return envelope.Error.Message
		}
		if envelope.Message != "" {
			return envelope.Message
		}
	}
	if len(body) > 0 {
		return strings.TrimSpace(string(body))
	}
	return "HTTP " + strconv.Itoa(status)
}

func containsAny(text string, words ...string) bool {
	for _, w := range words {
		if strings.Contains(text, w) {
			return true
		}
	}
	return false
}

// HeuristicElements builds a best-effort element list from plain prose when
// no JSON could be extracted from the model's answer.
func HeuristicElements(text string) []vision.DetectedElement {
	lower := strings.ToLower(text)
	var elements []vision.DetectedElement

	if containsAny(lower, "face", "person", "people") {
		elements = append(elements, vision.DetectedElement{
			Type:        vision.ElementPerson,
			Confidence:  0.7,
			BoundingBox: vision.BoundingBox{X: 0.2, Y: 0.2, Width: 0.6, Height: 0.6},
			Description: "Person detected in image",
			Attributes:  map[string]any{"source": "text_analysis"},
		})
	}
	if containsAny(lower, "text", "writing", "words") {
		elements = append(elements, vision.DetectedElement{
			Type:        vision.ElementText,
			Confidence:  0.6,
			BoundingBox: vision.BoundingBox{X: 0.1, Y: 0.8, Width: 0.8, Height: 0.1},
			Description: "Text content detected",
			Attributes:  map[string]any{"source": "text_analysis"},
		})
	}
	if len(elements) == 0 {
		elements = append(elements, vision.DetectedElement{
			Type:        vision.ElementObject,
			Confidence:  0.5,
			BoundingBox: vision.BoundingBox{X: 0.1, Y: 0.1, Width: 0.8, Height: 0.8},
			Description: "General content detected",
			Attributes:  map[string]any{"source": "fallback_analysis"},
		})
	}
	return elements
}

// HeuristicModeration classifies prose moderation answers by keyword when no
// JSON could be extracted. Scores stay coarse on purpose; this path only
// exists to degrade gracefully.
func HeuristicModeration(text string) *vision.ModerationResult {
	lower := strings.ToLower(text)

	scores := vision.NormalizeCategoryScores(nil)
	scores[vision.CategoryNSFW] = 0.2

	if containsAny(lower, "inappropriate", "nsfw", "sexual", "explicit") {
		scores[vision.CategoryNSFW] = 0.7
		scores[vision.CategorySafe] = 0.3
	}
	if containsAny(lower, "violence", "violent", "weapon", "blood") {
		scores[vision.CategoryViolence] = 0.6
		scores[vision.CategorySafe] = 0.4
	}
	if containsAny(lower, "hate", "discrimination", "offensive") {
		scores[vision.CategoryHate] = 0.5
		scores[vision.CategorySafe] = 0.5
	}

	top := vision.CategorySafe
	best := -1.0
	for _, cat := range vision.AllModerationCategories {
		if scores[cat] > best {
			top, best = cat, scores[cat]
		}
	}
	return &vision.ModerationResult{
		Category:   top,
		Confidence: best,
		Flagged:    top != vision.CategorySafe && best > 0.5,
		Categories: scores,
		Reason:     "Text-based analysis",
	}
}

// FallbackModeration is the terminal fallback used when the provider
// response could not be interpreted at all.
func FallbackModeration() *vision.ModerationResult {
	scores := vision.NormalizeCategoryScores(nil)
	scores[vision.CategorySafe] = 0.8
	scores[vision.CategoryNSFW] = 0.2
	return &vision.ModerationResult{
		Category:   vision.CategorySafe,
		Confidence: 0.8,
		Flagged:    false,
		Categories: scores,
		Reason:     "Fallback classification",
	}
}

// FallbackElements is the terminal fallback element list for an unparseable
// vision response.
func FallbackElements(provider string) []vision.DetectedElement {
	return []vision.DetectedElement{{
		Type:        vision.ElementObject,
		Confidence:  0.7,
		BoundingBox: vision.BoundingBox{X: 0.1, Y: 0.1, Width: 0.8, Height: 0.8},
		Description: "Content detected (fallback)",
		Attributes:  map[string]any{"method": "fallback", "provider": provider},
	}}
}

// FallbackMetadata is the terminal fallback metadata map.
func FallbackMetadata(provider string) map[string]any {
	return map[string]any{
		"quality_assessment": "medium",
		"analysis_method":    "fallback",
		"provider":           provider,
		"style":              "unknown",
	}
}
