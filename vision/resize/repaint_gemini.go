package resize

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/adaptflow/internal/imaging"
	"github.com/BaSui01/adaptflow/vision/providers"
)

const geminiRelayoutPrompt = `Use the second picture as the reference for final aspect ratio and fill the area that wasn't shown in the original picture.
Do not simply stretch, crop, or add background padding. Instead, intelligently re-layout
and reposition all elements (text, logo, product, main subject) so the composition looks
balanced, professional, and natural within the new aspect ratio.
Guidelines:
- Preserve all key elements from the source image (logos, text, products, main visuals).
- Adapt the layout to fully utilize the available space in the placeholder, whether
landscape, portrait, or square.
- Reposition elements if necessary: for example, distribute text and logos into
new areas, shift the main subject off-center, or reorganize hierarchy to match the
target aspect ratio.
- Extend or generate background only as needed to support the new layout.
- The final result must look like a true design created for the new size,
not just the original with empty margins or padding.
- Maintain brand consistency, colors, and style.
- Do not duplicate elements.`

// GeminiRepainter relayouts through Gemini image generation, sending the
// source plus a transparent placeholder at the target size as the
// aspect-ratio reference.
type GeminiRepainter struct {
	apiKey  string
	baseURL string
	model   string
	client  *http.Client
	logger  *zap.Logger
}

// NewGeminiRepainter creates the backend. Model defaults to the image
// preview model.
func NewGeminiRepainter(apiKey, baseURL, model string, timeout time.Duration, logger *zap.Logger) *GeminiRepainter {
	if baseURL == "" {
		baseURL = "https://generativelanguage.googleapis.com"
	}
	if model == "" {
		model = "gemini-2.5-flash-image-preview"
	}
	if timeout == 0 {
		timeout = 120 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GeminiRepainter{
		apiKey:  apiKey,
		baseURL: baseURL,
		model:   model,
		client:  &http.Client{Timeout: timeout},
		logger:  logger.With(zap.String("component", "gemini_repainter")),
	}
}

func (r *GeminiRepainter) Name() string { return "gemini" }

type geminiInlineData struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

type geminiRequestPart struct {
	Text       string            `json:"text,omitempty"`
	InlineData *geminiInlineData `json:"inline_data,omitempty"`
}

type geminiGenerateRequest struct {
	Contents []struct {
		Role  string              `json:"role"`
		Parts []geminiRequestPart `json:"parts"`
	} `json:"contents"`
	GenerationConfig struct {
		ResponseModalities []string `json:"response_modalities"`
	} `json:"generationConfig"`
}

// geminiGenerateResponse mirrors the REST output, which uses camelCase.
type geminiGenerateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text       string `json:"text,omitempty"`
				InlineData *struct {
					MimeType string `json:"mimeType"`
					Data     string `json:"data"`
				} `json:"inlineData,omitempty"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

// Relayout sends the source image and a transparent target-sized frame and
// saves the first image part of the response.
func (r *GeminiRepainter) Relayout(ctx context.Context, inPath, outPath string, spec RelayoutSpec) error {
	source, err := os.ReadFile(inPath)
	if err != nil {
		return fmt.Errorf("read input image: %w", err)
	}
	placeholder, err := imaging.TransparentPNG(spec.TargetWidth, spec.TargetHeight)
	if err != nil {
		return fmt.Errorf("build placeholder frame: %w", err)
	}

	var payload geminiGenerateRequest
	payload.Contents = append(payload.Contents, struct {
		Role  string              `json:"role"`
		Parts []geminiRequestPart `json:"parts"`
	}{
		Role: "user",
		Parts: []geminiRequestPart{
			{InlineData: &geminiInlineData{MimeType: providers.MimeType(inPath), Data: base64.StdEncoding.EncodeToString(source)}},
			{InlineData: &geminiInlineData{MimeType: "image/png", Data: base64.StdEncoding.EncodeToString(placeholder)}},
			{Text: geminiRelayoutPrompt},
		},
	})
	payload.GenerationConfig.ResponseModalities = []string{"IMAGE", "TEXT"}

	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	endpoint := fmt.Sprintf("%s/v1beta/models/%s:generateContent?key=%s",
		strings.TrimRight(r.baseURL, "/"), r.model, url.QueryEscape(r.apiKey))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("gemini request failed: %w", err)
	}
	defer resp.Body.Close()

	if err := providers.CheckResponse(resp, r.Name()); err != nil {
		return err
	}

	var out geminiGenerateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return fmt.Errorf("decode gemini response: %w", err)
	}

	for _, cand := range out.Candidates {
		for _, part := range cand.Content.Parts {
			if part.InlineData == nil || part.InlineData.Data == "" {
				continue
			}
			if !strings.Contains(part.InlineData.MimeType, "image") {
				continue
			}
			raw, err := base64.StdEncoding.DecodeString(part.InlineData.Data)
			if err != nil {
				// Some responses double-wrap: the decoded bytes are
				// themselves a base64 string.
				continue
			}
			if err := imaging.WritePNG(raw, outPath); err == nil {
				r.logger.Debug("relayout image saved", zap.String("output", outPath))
				return nil
			}
			if inner, err2 := base64.StdEncoding.DecodeString(string(raw)); err2 == nil {
				if err := imaging.WritePNG(inner, outPath); err == nil {
					r.logger.Debug("relayout image saved after double decode", zap.String("output", outPath))
					return nil
				}
			}
		}
	}
	return fmt.Errorf("gemini response contained no usable image data")
}
