package providers

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/adaptflow/vision"
)

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
		ok   bool
	}{
		{"bare object", `{"a":1}`, `{"a":1}`, true},
		{"prose around object", "Sure! Here you go:\n```json\n{\"a\":1}\n```\nHope that helps.", `{"a":1}`, true},
		{"nested braces", `prefix {"a":{"b":2}} suffix`, `{"a":{"b":2}}`, true},
		{"no object", "just words", "", false},
		{"unbalanced", "} {", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ExtractJSON(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMimeType(t *testing.T) {
	assert.Equal(t, "image/png", MimeType("a/b/c.PNG"))
	assert.Equal(t, "image/webp", MimeType("x.webp"))
	assert.Equal(t, "image/gif", MimeType("x.gif"))
	assert.Equal(t, "image/jpeg", MimeType("x.jpg"))
	assert.Equal(t, "image/jpeg", MimeType("x.unknown"))
}

func checkAgainst(t *testing.T, handler http.HandlerFunc) error {
	t.Helper()
	srv := httptest.NewServer(handler)
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	return CheckResponse(resp, "test")
}

func TestCheckResponseOK(t *testing.T) {
	err := checkAgainst(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	assert.NoError(t, err)
}

func TestCheckResponseAuthError(t *testing.T) {
	err := checkAgainst(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":{"message":"Incorrect API key provided"}}`))
	})
	require.Error(t, err)
	assert.True(t, vision.IsCode(err, vision.ErrAuthentication))
	assert.Contains(t, err.Error(), "Incorrect API key provided")
}

func TestCheckResponseRateLimitWithRetryAfter(t *testing.T) {
	err := checkAgainst(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Retry-After", "12")
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"message":"rate limit exceeded"}`))
	})
	require.Error(t, err)
	var ve *vision.Error
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, vision.ErrRateLimited, ve.Code)
	assert.True(t, ve.Retryable)
	assert.Equal(t, 12, int(ve.RetryAfter.Seconds()))
}

func TestCheckResponseQuotaKeyword(t *testing.T) {
	err := checkAgainst(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"message":"You exceeded your current quota"}}`))
	})
	require.Error(t, err)
	assert.True(t, vision.IsCode(err, vision.ErrQuotaExceeded))
	assert.False(t, vision.IsRetryable(err))
}

func TestCheckResponseServerError(t *testing.T) {
	err := checkAgainst(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("upstream overloaded"))
	})
	require.Error(t, err)
	assert.True(t, vision.IsCode(err, vision.ErrServiceUnavailable))
	assert.True(t, vision.IsRetryable(err))
	assert.Contains(t, err.Error(), "upstream overloaded")
}

func TestCheckResponseEmptyBody(t *testing.T) {
	err := checkAgainst(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HTTP 500")
}
