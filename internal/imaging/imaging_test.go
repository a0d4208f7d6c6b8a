package imaging

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeSolidPNG(t *testing.T, path string, w, h int) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: 200, G: 40, B: 40, A: 255})
		}
	}
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, img))
}

func TestDimensions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "img.png")
	writeSolidPNG(t, path, 320, 200)

	w, h, err := Dimensions(path)
	require.NoError(t, err)
	assert.Equal(t, 320, w)
	assert.Equal(t, 200, h)
}

func TestDimensionsErrors(t *testing.T) {
	_, _, err := Dimensions(filepath.Join(t.TempDir(), "missing.png"))
	assert.Error(t, err)

	garbage := filepath.Join(t.TempDir(), "garbage.png")
	require.NoError(t, os.WriteFile(garbage, []byte("not an image"), 0o644))
	_, _, err = Dimensions(garbage)
	assert.Error(t, err)
}

func TestResample(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.png")
	writeSolidPNG(t, src, 400, 300)

	t.Run("downscale", func(t *testing.T) {
		dst := filepath.Join(dir, "small.png")
		require.NoError(t, Resample(src, dst, 100, 75))
		w, h, err := Dimensions(dst)
		require.NoError(t, err)
		assert.Equal(t, 100, w)
		assert.Equal(t, 75, h)
	})

	t.Run("upscale to jpeg", func(t *testing.T) {
		dst := filepath.Join(dir, "big.jpg")
		require.NoError(t, Resample(src, dst, 800, 600))
		w, h, err := Dimensions(dst)
		require.NoError(t, err)
		assert.Equal(t, 800, w)
		assert.Equal(t, 600, h)
	})

	t.Run("invalid target", func(t *testing.T) {
		assert.Error(t, Resample(src, filepath.Join(dir, "bad.png"), 0, 100))
	})
}

func TestCopyFile(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.png")
	writeSolidPNG(t, src, 10, 10)

	dst := filepath.Join(dir, "dst.png")
	require.NoError(t, CopyFile(src, dst))

	a, err := os.ReadFile(src)
	require.NoError(t, err)
	b, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestTransparentPNG(t *testing.T) {
	data, err := TransparentPNG(64, 48)
	require.NoError(t, err)

	img, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, 64, img.Bounds().Dx())
	assert.Equal(t, 48, img.Bounds().Dy())

	_, _, _, alpha := img.At(32, 24).RGBA()
	assert.Zero(t, alpha)
}

func TestWritePNG(t *testing.T) {
	dir := t.TempDir()

	data, err := TransparentPNG(8, 8)
	require.NoError(t, err)
	out := filepath.Join(dir, "out.png")
	require.NoError(t, WritePNG(data, out))
	w, h, err := Dimensions(out)
	require.NoError(t, err)
	assert.Equal(t, 8, w)
	assert.Equal(t, 8, h)

	err = WritePNG([]byte("definitely not pixels"), filepath.Join(dir, "bad.png"))
	assert.Error(t, err)
}
