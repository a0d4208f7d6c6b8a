package resize

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/adaptflow/internal/imaging"
	"github.com/BaSui01/adaptflow/vision/providers"
)

const openaiRelayoutPrompt = `Take the input image and relayout its elements to fit the target ratio %s.
Keep the content sharp and balanced. Do not crop or distort the original design.
Notes:
- Make sure to preserve the information and content purposes.
- Keep multiline texts readable without distortions.
- Do not add any new components.
- Do not duplicate elements.
- Maintain the original style and color scheme.
- Ensure the final image is well-composed.`

// OpenAIRepainter relayouts through the OpenAI image edit endpoint.
type OpenAIRepainter struct {
	apiKey  string
	baseURL string
	model   string
	client  *http.Client
	logger  *zap.Logger
}

// NewOpenAIRepainter creates the backend. Model defaults to gpt-image-1.
func NewOpenAIRepainter(apiKey, baseURL, model string, timeout time.Duration, logger *zap.Logger) *OpenAIRepainter {
	if baseURL == "" {
		baseURL = "https://api.openai.com"
	}
	if model == "" {
		model = "gpt-image-1"
	}
	if timeout == 0 {
		timeout = 120 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OpenAIRepainter{
		apiKey:  apiKey,
		baseURL: baseURL,
		model:   model,
		client:  &http.Client{Timeout: timeout},
		logger:  logger.With(zap.String("component", "openai_repainter")),
	}
}

func (r *OpenAIRepainter) Name() string { return "openai" }

// Relayout posts the image to /v1/images/edits at the supported size and
// writes the first returned image to outPath.
func (r *OpenAIRepainter) Relayout(ctx context.Context, inPath, outPath string, spec RelayoutSpec) error {
	f, err := os.Open(inPath)
	if err != nil {
		return fmt.Errorf("open input image: %w", err)
	}
	defer f.Close()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("image", "image.png")
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, f); err != nil {
		return err
	}
	_ = writer.WriteField("model", r.model)
	_ = writer.WriteField("prompt", fmt.Sprintf(openaiRelayoutPrompt, spec.SupportedRatio))
	_ = writer.WriteField("size", spec.Size)
	if err := writer.Close(); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/v1/images/edits", &buf)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+r.apiKey)
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("image edit request failed: %w", err)
	}
	defer resp.Body.Close()

	if err := providers.CheckResponse(resp, r.Name()); err != nil {
		return err
	}

	var body struct {
		Data []struct {
			B64JSON string `json:"b64_json"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return fmt.Errorf("decode image edit response: %w", err)
	}
	if len(body.Data) == 0 || body.Data[0].B64JSON == "" {
		return fmt.Errorf("image edit response contained no image data")
	}

	raw, err := base64.StdEncoding.DecodeString(body.Data[0].B64JSON)
	if err != nil {
		return fmt.Errorf("decode image payload: %w", err)
	}
	if err := imaging.WritePNG(raw, outPath); err != nil {
		return err
	}
	r.logger.Debug("relayout image saved",
		zap.String("output", outPath),
		zap.String("size", spec.Size))
	return nil
}
