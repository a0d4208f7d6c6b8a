// Package gemini implements the vision.Provider contract over the Gemini
// generateContent REST API with inline base64 image payloads.
package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/BaSui01/adaptflow/vision"
	"github.com/BaSui01/adaptflow/vision/providers"
	"github.com/BaSui01/adaptflow/vision/resize"
)

const visionPrompt = `Analyze this image in detail and provide a JSON response with this exact structure:
{
    "elements": [
        {
            "type": "face|product|text|logo|object|person|background",
            "confidence": 0.95,
            "bounding_box": {"x": 0.1, "y": 0.2, "width": 0.3, "height": 0.4},
            "description": "detailed description of what you see",
            "attributes": {"key": "value pairs with additional details"}
        }
    ],
    "metadata": {
        "dimensions": {"width": 1920, "height": 1080},
        "dominant_colors": ["#FF0000", "#00FF00", "#0000FF"],
        "style": "modern|vintage|minimalist|abstract|realistic|etc",
        "composition": "description of the overall layout and arrangement",
        "quality_assessment": "high|medium|low",
        "lighting": "bright|dim|natural|artificial|etc",
        "mood": "happy|serious|energetic|calm|etc"
    }
}

Use normalized coordinates (0-1) for bounding boxes. Be precise and thorough.`

const moderationPrompt = `Analyze this image for content safety. Classify it into one of these categories: safe, nsfw, violence, hate, harassment, self_harm. Provide confidence scores (0-1) for each category. Respond in JSON format: {"category": "safe", "confidence": 0.95, "scores": {"safe": 0.95, "nsfw": 0.05, "violence": 0.0, "hate": 0.0, "harassment": 0.0, "self_harm": 0.0}, "flagged": false, "reason": "explanation"}`

// Provider is the Gemini implementation of vision.Provider.
type Provider struct {
	cfg      vision.ProviderConfig
	client   *http.Client
	pipeline *resize.Pipeline
	logger   *zap.Logger
}

// New creates the provider.
func New(cfg vision.ProviderConfig, pipeline *resize.Pipeline, logger *zap.Logger) *Provider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://generativelanguage.googleapis.com"
	}
	if cfg.Model == "" {
		cfg.Model = "gemini-2.5-flash"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Provider{
		cfg:      cfg,
		client:   &http.Client{Timeout: cfg.Timeout},
		pipeline: pipeline,
		logger:   logger.With(zap.String("provider", "gemini")),
	}
}

var _ vision.Provider = (*Provider)(nil)

func (p *Provider) Name() string { return "gemini" }

func (p *Provider) SupportedFormats() []string {
	return []string{"jpg", "jpeg", "png", "webp"}
}

func (p *Provider) AnalyzeImage(ctx context.Context, imagePath string) (*vision.ImageAnalysis, error) {
	if err := vision.ValidateImage(imagePath, p.SupportedFormats()); err != nil {
		return nil, err
	}
	p.logger.Info("starting image analysis",
		zap.String("model", p.cfg.Model), zap.String("image", imagePath))
	start := time.Now()

	var (
		elements   []vision.DetectedElement
		metadata   map[string]any
		moderation *vision.ModerationResult
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		elements, metadata, err = p.analyzeWithVision(gctx, imagePath)
		return err
	})
	g.Go(func() error {
		var err error
		moderation, err = p.moderate(gctx, imagePath)
		return err
	})
	if err := g.Wait(); err != nil {
		p.logger.Error("image analysis failed",
			zap.String("image", imagePath), zap.Error(err))
		return nil, err
	}

	elapsed := time.Since(start)
	p.logger.Info("image analysis completed",
		zap.String("image", imagePath),
		zap.Duration("processing_time", elapsed),
		zap.Int("elements", len(elements)),
		zap.Bool("flagged", moderation.Flagged))

	return &vision.ImageAnalysis{
		DetectedElements: elements,
		Moderation:       moderation,
		Metadata:         metadata,
		ProcessingTime:   elapsed,
		Provider:         p.Name(),
	}, nil
}

func (p *Provider) DetectElements(ctx context.Context, imagePath string) ([]vision.DetectedElement, error) {
	if err := vision.ValidateImage(imagePath, p.SupportedFormats()); err != nil {
		return nil, err
	}
	elements, _, err := p.analyzeWithVision(ctx, imagePath)
	return elements, err
}

func (p *Provider) ModerateContent(ctx context.Context, imagePath string) (*vision.ModerationResult, error) {
	if err := vision.ValidateImage(imagePath, p.SupportedFormats()); err != nil {
		return nil, err
	}
	return p.moderate(ctx, imagePath)
}

func (p *Provider) ApplyAdaptation(ctx context.Context, imagePath string, strategy *vision.AdaptationStrategy) (string, error) {
	if err := vision.ValidateImage(imagePath, p.SupportedFormats()); err != nil {
		return "", err
	}
	p.logger.Info("applying adaptation",
		zap.String("image", imagePath),
		zap.Int("width", strategy.TargetWidth),
		zap.Int("height", strategy.TargetHeight))
	return p.pipeline.Run(ctx, imagePath, strategy.TargetWidth, strategy.TargetHeight, p.Name())
}

type generateRequest struct {
	Contents []struct {
		Parts []requestPart `json:"parts"`
	} `json:"contents"`
	GenerationConfig struct {
		Temperature     float64 `json:"temperature"`
		MaxOutputTokens int     `json:"maxOutputTokens"`
	} `json:"generationConfig"`
}

type requestPart struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inline_data,omitempty"`
}

type inlineData struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

type generateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

func (p *Provider) analyzeWithVision(ctx context.Context, imagePath string) ([]vision.DetectedElement, map[string]any, error) {
	text, err := p.generate(ctx, imagePath, visionPrompt, 0.2, 1500)
	if err != nil {
		return nil, nil, err
	}
	elements, metadata := providers.ParseVisionText(text, p.Name())
	return elements, metadata, nil
}

func (p *Provider) moderate(ctx context.Context, imagePath string) (*vision.ModerationResult, error) {
	text, err := p.generate(ctx, imagePath, moderationPrompt, 0.1, 300)
	if err != nil {
		return nil, err
	}
	return providers.ParseModerationText(text), nil
}

// generate sends one prompt+image generateContent call and returns the
// first text part of the answer.
func (p *Provider) generate(ctx context.Context, imagePath, prompt string, temperature float64, maxTokens int) (string, error) {
	b64, err := providers.EncodeImageBase64(imagePath)
	if err != nil {
		return "", err
	}

	var payload generateRequest
	payload.Contents = append(payload.Contents, struct {
		Parts []requestPart `json:"parts"`
	}{
		Parts: []requestPart{
			{Text: prompt},
			{InlineData: &inlineData{MimeType: providers.MimeType(imagePath), Data: b64}},
		},
	})
	payload.GenerationConfig.Temperature = temperature
	payload.GenerationConfig.MaxOutputTokens = maxTokens

	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	endpoint := fmt.Sprintf("%s/v1/models/%s:generateContent?key=%s",
		strings.TrimRight(p.cfg.BaseURL, "/"), p.cfg.Model, url.QueryEscape(p.cfg.APIKey))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", vision.NewError(vision.ErrProvider, "failed to create request").
			WithCause(err).WithProvider(p.Name())
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return "", vision.NewError(vision.ErrServiceUnavailable, "gemini request failed").
			WithCause(err).WithProvider(p.Name())
	}
	defer resp.Body.Close()

	if err := providers.CheckResponse(resp, p.Name()); err != nil {
		return "", err
	}

	var out generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", vision.NewError(vision.ErrProvider, "failed to decode response").
			WithCause(err).WithProvider(p.Name())
	}
	if len(out.Candidates) == 0 || len(out.Candidates[0].Content.Parts) == 0 {
		return "", nil
	}
	return out.Candidates[0].Content.Parts[0].Text, nil
}
