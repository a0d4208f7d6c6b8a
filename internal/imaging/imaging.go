// Package imaging provides the local, non-generative image operations the
// resize pipeline needs: dimension probing, high-quality resampling, and
// plain file copies. All work here is synchronous CPU-bound pixel math;
// anything that talks to a network lives in vision/resize.
package imaging

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"

	_ "image/gif"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// Dimensions returns the pixel width and height of an image file without
// decoding the full pixel data.
func Dimensions(path string) (int, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, err
	}
	defer f.Close()
	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return 0, 0, fmt.Errorf("decode image config %s: %w", path, err)
	}
	return cfg.Width, cfg.Height, nil
}

// Decode reads and decodes an image file.
func Decode(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode image %s: %w", path, err)
	}
	return img, nil
}

// Encode writes the image to path, choosing the codec from the extension.
// Everything that is not .jpg/.jpeg is written as PNG.
func Encode(img image.Image, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg":
		return jpeg.Encode(f, img, &jpeg.Options{Quality: 95})
	default:
		return png.Encode(f, img)
	}
}

// Resample scales the source image file to exactly width x height using
// Catmull-Rom interpolation and writes it to dstPath.
func Resample(srcPath, dstPath string, width, height int) error {
	if width <= 0 || height <= 0 {
		return fmt.Errorf("invalid resample target %dx%d", width, height)
	}
	src, err := Decode(srcPath)
	if err != nil {
		return err
	}
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Over, nil)
	return Encode(dst, dstPath)
}

// CopyFile duplicates src at dst.
func CopyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// TransparentPNG renders a fully transparent width x height PNG and returns
// its bytes. The relayout step sends it as the aspect-ratio reference frame.
func TransparentPNG(width, height int) ([]byte, error) {
	// NewRGBA zeroes the pixel buffer, which is already fully transparent.
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WritePNG saves raw encoded image bytes to path after verifying they decode.
// Some providers return image bytes base64-wrapped; callers handle that
// before reaching here.
func WritePNG(data []byte, path string) error {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("provider returned undecodable image data: %w", err)
	}
	return Encode(img, path)
}
