package openai

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/adaptflow/vision"
)

const visionAnswer = `Here you go: {"elements":[{"type":"product","confidence":0.9,"bounding_box":{"x":0.2,"y":0.3,"width":0.4,"height":0.3},"description":"a red sneaker"}],"metadata":{"style":"modern"}}`

const moderationAnswer = `{"category":"safe","confidence":0.98,"scores":{"safe":0.98,"nsfw":0.01},"flagged":false,"reason":"clean"}`

func writeTestImage(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "input.png")
	require.NoError(t, os.WriteFile(path, []byte("fake image bytes"), 0o644))
	return path
}

// chatServer answers /v1/chat/completions, choosing the canned reply by
// which prompt the request carries.
func chatServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		answer := visionAnswer
		if strings.Contains(string(body), "content safety") {
			answer = moderationAnswer
		}

		resp := map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"content": answer}},
			},
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
}

func newTestProvider(serverURL string) *Provider {
	return New(vision.ProviderConfig{
		Name:    "openai",
		APIKey:  "sk-test",
		Model:   "gpt-4.1",
		BaseURL: serverURL,
		Timeout: 5 * time.Second,
	}, nil, nil)
}

func TestAnalyzeImage(t *testing.T) {
	srv := chatServer(t)
	defer srv.Close()
	p := newTestProvider(srv.URL)

	analysis, err := p.AnalyzeImage(context.Background(), writeTestImage(t))
	require.NoError(t, err)

	require.Len(t, analysis.DetectedElements, 1)
	assert.Equal(t, vision.ElementProduct, analysis.DetectedElements[0].Type)
	assert.Equal(t, "a red sneaker", analysis.DetectedElements[0].Description)
	assert.Equal(t, "modern", analysis.Metadata["style"])

	require.NotNil(t, analysis.Moderation)
	assert.Equal(t, vision.CategorySafe, analysis.Moderation.Category)
	assert.False(t, analysis.Moderation.Flagged)
	assert.Len(t, analysis.Moderation.Categories, len(vision.AllModerationCategories))

	assert.Equal(t, "openai", analysis.Provider)
	assert.Greater(t, analysis.ProcessingTime, time.Duration(0))
}

func TestDetectElements(t *testing.T) {
	srv := chatServer(t)
	defer srv.Close()
	p := newTestProvider(srv.URL)

	elements, err := p.DetectElements(context.Background(), writeTestImage(t))
	require.NoError(t, err)
	require.Len(t, elements, 1)
	assert.Equal(t, vision.ElementProduct, elements[0].Type)
}

func TestModerateContent(t *testing.T) {
	srv := chatServer(t)
	defer srv.Close()
	p := newTestProvider(srv.URL)

	result, err := p.ModerateContent(context.Background(), writeTestImage(t))
	require.NoError(t, err)
	assert.Equal(t, vision.CategorySafe, result.Category)
	assert.Equal(t, 0.98, result.Confidence)
}

func TestAnalyzeImageValidatesInput(t *testing.T) {
	p := newTestProvider("http://unused.invalid")

	_, err := p.AnalyzeImage(context.Background(), "/does/not/exist.png")
	require.Error(t, err)
	assert.True(t, vision.IsCode(err, vision.ErrInvalidImage))

	doc := filepath.Join(t.TempDir(), "file.pdf")
	require.NoError(t, os.WriteFile(doc, []byte("x"), 0o644))
	_, err = p.AnalyzeImage(context.Background(), doc)
	require.Error(t, err)
	assert.True(t, vision.IsCode(err, vision.ErrInvalidImage))
}

func TestAnalyzeImageMapsRateLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Retry-After", "9")
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":{"message":"Rate limit reached"}}`))
	}))
	defer srv.Close()
	p := newTestProvider(srv.URL)

	_, err := p.AnalyzeImage(context.Background(), writeTestImage(t))
	require.Error(t, err)

	var ve *vision.Error
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, vision.ErrRateLimited, ve.Code)
	assert.Equal(t, 9*time.Second, ve.RetryAfter)
	assert.True(t, ve.Retryable)
}

func TestAnalyzeImageMapsAuthError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":{"message":"Incorrect API key"}}`))
	}))
	defer srv.Close()
	p := newTestProvider(srv.URL)

	_, err := p.ModerateContent(context.Background(), writeTestImage(t))
	require.Error(t, err)
	assert.True(t, vision.IsCode(err, vision.ErrAuthentication))
}

func TestSupportedFormats(t *testing.T) {
	p := newTestProvider("http://unused.invalid")
	assert.Equal(t, "openai", p.Name())
	assert.Contains(t, p.SupportedFormats(), "png")
	assert.Contains(t, p.SupportedFormats(), "webp")
}
