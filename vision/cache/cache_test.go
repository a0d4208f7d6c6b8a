package cache

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/adaptflow/vision"
)

func newTestCache(t *testing.T) (*AnalysisCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	c, err := New(context.Background(), Config{
		Addr: mr.Addr(),
		TTL:  time.Minute,
	}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c, mr
}

func sampleAnalysis() *vision.ImageAnalysis {
	return &vision.ImageAnalysis{
		DetectedElements: []vision.DetectedElement{{
			Type:        vision.ElementProduct,
			Confidence:  0.9,
			BoundingBox: vision.BoundingBox{X: 0.1, Y: 0.1, Width: 0.5, Height: 0.5},
			Description: "sneaker",
		}},
		Moderation: &vision.ModerationResult{
			Category:   vision.CategorySafe,
			Confidence: 0.95,
			Categories: vision.NormalizeCategoryScores(nil),
		},
		ProcessingTime: 120 * time.Millisecond,
		Provider:       "openai",
	}
}

func TestNewFailsWithoutServer(t *testing.T) {
	_, err := New(context.Background(), Config{Addr: "127.0.0.1:1"}, nil)
	assert.Error(t, err)
}

func TestSetGetRoundTrip(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	img := filepath.Join(t.TempDir(), "img.png")
	require.NoError(t, os.WriteFile(img, []byte("pixels"), 0o644))

	key, err := c.Key(img, "openai")
	require.NoError(t, err)

	got, err := c.Get(ctx, key)
	require.NoError(t, err)
	assert.Nil(t, got, "empty cache should miss")

	want := sampleAnalysis()
	require.NoError(t, c.Set(ctx, key, want))

	got, err = c.Get(ctx, key)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, want.Provider, got.Provider)
	assert.Equal(t, want.DetectedElements, got.DetectedElements)
	assert.Equal(t, want.Moderation.Category, got.Moderation.Category)
}

func TestKeyDependsOnContentAndProvider(t *testing.T) {
	c, _ := newTestCache(t)
	dir := t.TempDir()

	a := filepath.Join(dir, "a.png")
	b := filepath.Join(dir, "b.png")
	require.NoError(t, os.WriteFile(a, []byte("same bytes"), 0o644))
	require.NoError(t, os.WriteFile(b, []byte("same bytes"), 0o644))

	keyA, err := c.Key(a, "openai")
	require.NoError(t, err)
	keyB, err := c.Key(b, "openai")
	require.NoError(t, err)
	assert.Equal(t, keyA, keyB, "identical content must share a key")

	keyOther, err := c.Key(a, "gemini")
	require.NoError(t, err)
	assert.NotEqual(t, keyA, keyOther, "different providers must not share entries")

	require.NoError(t, os.WriteFile(b, []byte("different bytes"), 0o644))
	keyB2, err := c.Key(b, "openai")
	require.NoError(t, err)
	assert.NotEqual(t, keyA, keyB2)
}

func TestEntryExpires(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	img := filepath.Join(t.TempDir(), "img.png")
	require.NoError(t, os.WriteFile(img, []byte("pixels"), 0o644))
	key, err := c.Key(img, "openai")
	require.NoError(t, err)
	require.NoError(t, c.Set(ctx, key, sampleAnalysis()))

	mr.FastForward(2 * time.Minute)

	got, err := c.Get(ctx, key)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestCorruptEntryTreatedAsMiss(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	key := "adaptflow:analysis:openai:deadbeef"
	require.NoError(t, mr.Set(key, "{{{not json"))

	got, err := c.Get(ctx, key)
	require.NoError(t, err)
	assert.Nil(t, got)
	// The bad entry is evicted so it cannot keep poisoning reads.
	assert.False(t, mr.Exists(key))
}
