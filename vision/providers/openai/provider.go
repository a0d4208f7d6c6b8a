// Package openai implements the vision.Provider contract over the OpenAI
// chat completions API. Element detection and moderation both ride the
// vision-capable chat endpoint, since OpenAI exposes no direct image
// moderation.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/BaSui01/adaptflow/vision"
	"github.com/BaSui01/adaptflow/vision/providers"
	"github.com/BaSui01/adaptflow/vision/resize"
)

const visionPrompt = `Analyze this image and provide a detailed JSON response with the following structure:
{
    "elements": [
        {
            "type": "face|product|text|logo|object|person|background",
            "confidence": 0.95,
            "bounding_box": {"x": 0.1, "y": 0.2, "width": 0.3, "height": 0.4},
            "description": "detailed description",
            "attributes": {"key": "value"}
        }
    ],
    "metadata": {
        "dimensions": {"width": 1920, "height": 1080},
        "dominant_colors": ["#FF0000", "#00FF00"],
        "style": "modern|vintage|minimalist|etc",
        "composition": "description of layout",
        "quality_assessment": "high|medium|low"
    }
}

Be precise with bounding boxes (0-1 normalized coordinates) and confidence scores.`

const moderationPrompt = `Analyze this image for content safety. Classify it into one of these categories: safe, nsfw, violence, hate, harassment, self_harm. Provide confidence scores (0-1) for each category. Respond in JSON format: {"category": "safe", "confidence": 0.95, "scores": {"safe": 0.95, "nsfw": 0.05, "violence": 0.0, "hate": 0.0, "harassment": 0.0, "self_harm": 0.0}, "flagged": false, "reason": "explanation"}`

// Provider is the OpenAI implementation of vision.Provider.
type Provider struct {
	cfg      vision.ProviderConfig
	client   *http.Client
	pipeline *resize.Pipeline
	logger   *zap.Logger
}

// New creates the provider. The resize pipeline handles ApplyAdaptation;
// it is injected so the generative backends are wired once at startup.
func New(cfg vision.ProviderConfig, pipeline *resize.Pipeline, logger *zap.Logger) *Provider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com"
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4.1"
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
		logger:   logger.With(zap.String("provider", "openai")),
	}
}

var _ vision.Provider = (*Provider)(nil)

func (p *Provider) Name() string { return "openai" }

func (p *Provider) SupportedFormats() []string {
	return []string{"jpg", "jpeg", "png", "webp"}
}

// AnalyzeImage runs detection and moderation concurrently; they are
// independent reads of the same file.
func (p *Provider) AnalyzeImage(ctx context.Context, imagePath string) (*vision.ImageAnalysis, error) {
	if err := vision.ValidateImage(imagePath, p.SupportedFormats()); err != nil {
		return nil, err
	}
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

// chatRequest is the subset of the chat completions payload we use.
type chatRequest struct {
	Model     string        `json:"model"`
	Messages  []chatMessage `json:"messages"`
	MaxTokens int           `json:"max_tokens,omitempty"`
}

type chatMessage struct {
	Role    string        `json:"role"`
	Content []contentPart `json:"content"`
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func (p *Provider) analyzeWithVision(ctx context.Context, imagePath string) ([]vision.DetectedElement, map[string]any, error) {
	text, err := p.visionCall(ctx, imagePath, visionPrompt, 1000)
	if err != nil {
		return nil, nil, err
	}
	elements, metadata := providers.ParseVisionText(text, p.Name())
	return elements, metadata, nil
}

func (p *Provider) moderate(ctx context.Context, imagePath string) (*vision.ModerationResult, error) {
	text, err := p.visionCall(ctx, imagePath, moderationPrompt, 300)
	if err != nil {
		return nil, err
	}
	return providers.ParseModerationText(text), nil
}

// visionCall sends one prompt+image chat completion and returns the model's
// text answer.
func (p *Provider) visionCall(ctx context.Context, imagePath, prompt string, maxTokens int) (string, error) {
	b64, err := providers.EncodeImageBase64(imagePath)
	if err != nil {
		return "", err
	}

	payload := chatRequest{
		Model: p.cfg.Model,
		Messages: []chatMessage{{
			Role: "user",
			Content: []contentPart{
				{Type: "text", Text: prompt},
				{Type: "image_url", ImageURL: &imageURL{
					URL: fmt.Sprintf("data:%s;base64,%s", providers.MimeType(imagePath), b64),
				}},
			},
		}},
		MaxTokens: maxTokens,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		p.cfg.BaseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", vision.NewError(vision.ErrProvider, "failed to create request").
			WithCause(err).WithProvider(p.Name())
	}
	req.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return "", vision.NewError(vision.ErrServiceUnavailable, "openai request failed").
			WithCause(err).WithProvider(p.Name())
	}
	defer resp.Body.Close()

	if err := providers.CheckResponse(resp, p.Name()); err != nil {
		return "", err
	}

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", vision.NewError(vision.ErrProvider, "failed to decode response").
			WithCause(err).WithProvider(p.Name())
	}
	if len(out.Choices) == 0 {
		return "", nil
	}
	return out.Choices[0].Message.Content, nil
}
