package resize

import (
	"context"
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/adaptflow/internal/imaging"
)

// writePNG creates a real decodable PNG of the given size.
func writePNG(t *testing.T, path string, w, h int) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, image.NewRGBA(image.Rect(0, 0, w, h))))
}

// fakeRepainter writes a PNG at the bucket's supported size.
type fakeRepainter struct {
	name  string
	calls int
	fail  bool
}

func (r *fakeRepainter) Name() string { return r.name }

func (r *fakeRepainter) Relayout(_ context.Context, _, outPath string, spec RelayoutSpec) error {
	r.calls++
	if r.fail {
		return fmt.Errorf("%s relayout backend down", r.name)
	}
	var w, h int
	if _, err := fmt.Sscanf(spec.Size, "%dx%d", &w, &h); err != nil {
		return err
	}
	f, err := os.Create(outPath)
	if err != nil {
		return err
	}
	defer f.Close()
	return png.Encode(f, image.NewRGBA(image.Rect(0, 0, w, h)))
}

// fakeOutpainter expands the canvas by the requested margins.
type fakeOutpainter struct {
	calls int
	fail  bool
}

func (o *fakeOutpainter) Outpaint(_ context.Context, inPath, outPath string, m Margins) error {
	o.calls++
	if o.fail {
		return fmt.Errorf("outpaint service down")
	}
	w, h, err := imaging.Dimensions(inPath)
	if err != nil {
		return err
	}
	f, err := os.Create(outPath)
	if err != nil {
		return err
	}
	defer f.Close()
	return png.Encode(f, image.NewRGBA(image.Rect(0, 0, w+m.Left+m.Right, h+m.Up+m.Down)))
}

// fakeUpscaler quadruples the input, like the real fast upscaler.
type fakeUpscaler struct {
	calls int
	fail  bool
}

func (u *fakeUpscaler) Upscale(_ context.Context, inPath, outPath string) error {
	u.calls++
	if u.fail {
		return fmt.Errorf("upscale service down")
	}
	w, h, err := imaging.Dimensions(inPath)
	if err != nil {
		return err
	}
	f, err := os.Create(outPath)
	if err != nil {
		return err
	}
	defer f.Close()
	return png.Encode(f, image.NewRGBA(image.Rect(0, 0, w*4, h*4)))
}

type testRig struct {
	pipeline   *Pipeline
	repainter  *fakeRepainter
	secondary  *fakeRepainter
	outpainter *fakeOutpainter
	upscaler   *fakeUpscaler
}

func newTestRig(t *testing.T) *testRig {
	t.Helper()
	rig := &testRig{
		repainter:  &fakeRepainter{name: "openai"},
		secondary:  &fakeRepainter{name: "gemini"},
		outpainter: &fakeOutpainter{},
		upscaler:   &fakeUpscaler{},
	}
	rig.pipeline = New(Config{TempRoot: t.TempDir()}, rig.outpainter, rig.upscaler, nil)
	rig.pipeline.RegisterRepainter(rig.repainter)
	rig.pipeline.RegisterRepainter(rig.secondary)
	return rig
}

func requireDims(t *testing.T, path string, w, h int) {
	t.Helper()
	gotW, gotH, err := imaging.Dimensions(path)
	require.NoError(t, err)
	assert.Equal(t, w, gotW, "width of %s", path)
	assert.Equal(t, h, gotH, "height of %s", path)
}

func TestRunSkipsAllStagesForMatchingInput(t *testing.T) {
	rig := newTestRig(t)
	src := filepath.Join(t.TempDir(), "source.png")
	// 1600x1000 at ratio 1.6 equals the target ratio exactly, and 1.6 is
	// closer to itself than to the supported 3:2 frame.
	writePNG(t, src, 1600, 1000)

	out, err := rig.pipeline.Run(context.Background(), src, 1600, 1000, "")
	require.NoError(t, err)

	assert.Zero(t, rig.repainter.calls)
	assert.Zero(t, rig.secondary.calls)
	assert.Zero(t, rig.outpainter.calls)
	assert.Zero(t, rig.upscaler.calls)
	requireDims(t, out, 1600, 1000)

	assert.True(t, strings.HasPrefix(filepath.Base(out), "source_adapted_1600x1000_"))
	assert.Equal(t, filepath.Dir(src), filepath.Dir(out))
}

func TestRunFullPipeline(t *testing.T) {
	rig := newTestRig(t)
	src := filepath.Join(t.TempDir(), "banner.png")
	// 4:3 input to 16:9 target: 16:9 is closer to 3:2 than to 4:3, so the
	// relayout runs, then outpaint trues up the ratio, then a moderate
	// enlargement finishes locally.
	writePNG(t, src, 800, 600)

	out, err := rig.pipeline.Run(context.Background(), src, 1920, 1080, "")
	require.NoError(t, err)

	assert.Equal(t, 1, rig.repainter.calls)
	assert.Zero(t, rig.secondary.calls)
	assert.Equal(t, 1, rig.outpainter.calls)
	// 1536x1024 outpaints to 1824x1026; 1920/1824 is under the cutoff.
	assert.Zero(t, rig.upscaler.calls)
	requireDims(t, out, 1920, 1080)
}

func TestRunShrinkNeverCallsUpscaler(t *testing.T) {
	rig := newTestRig(t)
	src := filepath.Join(t.TempDir(), "big.png")
	writePNG(t, src, 2000, 2000)

	out, err := rig.pipeline.Run(context.Background(), src, 500, 500, "")
	require.NoError(t, err)

	assert.Zero(t, rig.repainter.calls)
	assert.Zero(t, rig.outpainter.calls)
	assert.Zero(t, rig.upscaler.calls)
	requireDims(t, out, 500, 500)
}

func TestRunScaleFactorBoundaryStaysLocal(t *testing.T) {
	rig := newTestRig(t)
	src := filepath.Join(t.TempDir(), "square.png")
	writePNG(t, src, 1000, 1000)

	// 1300/1000 is exactly the cutoff, which is still local.
	out, err := rig.pipeline.Run(context.Background(), src, 1300, 1300, "")
	require.NoError(t, err)

	assert.Zero(t, rig.upscaler.calls)
	requireDims(t, out, 1300, 1300)
}

func TestRunLargeEnlargementUsesUpscaler(t *testing.T) {
	rig := newTestRig(t)
	src := filepath.Join(t.TempDir(), "thumb.png")
	writePNG(t, src, 100, 100)

	out, err := rig.pipeline.Run(context.Background(), src, 1000, 1000, "")
	require.NoError(t, err)

	assert.Equal(t, 1, rig.upscaler.calls)
	// 100x100 upscales to 400x400, then resamples to the exact target.
	requireDims(t, out, 1000, 1000)
}

func TestRunUpscalerFailureFallsBackLocal(t *testing.T) {
	rig := newTestRig(t)
	rig.upscaler.fail = true
	src := filepath.Join(t.TempDir(), "thumb.png")
	writePNG(t, src, 100, 100)

	out, err := rig.pipeline.Run(context.Background(), src, 1000, 1000, "")
	require.NoError(t, err)

	assert.Equal(t, 1, rig.upscaler.calls)
	requireDims(t, out, 1000, 1000)
}

func TestRunExactRatioSkipsOutpaint(t *testing.T) {
	rig := newTestRig(t)
	src := filepath.Join(t.TempDir(), "wide.png")
	// Ratio 16:9 equals the target ratio, so Stage 2 must be a no-op even
	// though dimensions differ.
	writePNG(t, src, 1600, 900)

	out, err := rig.pipeline.Run(context.Background(), src, 1920, 1080, "")
	require.NoError(t, err)

	assert.Zero(t, rig.outpainter.calls)
	requireDims(t, out, 1920, 1080)
}

func TestRunRelayoutFallbackChain(t *testing.T) {
	rig := newTestRig(t)
	rig.repainter.fail = true
	src := filepath.Join(t.TempDir(), "banner.png")
	writePNG(t, src, 800, 600)

	_, err := rig.pipeline.Run(context.Background(), src, 1920, 1080, "fallback")
	require.NoError(t, err)

	assert.Equal(t, 1, rig.repainter.calls)
	assert.Equal(t, 1, rig.secondary.calls)
}

func TestRunRelayoutTotalFailurePassesSourceThrough(t *testing.T) {
	rig := newTestRig(t)
	rig.repainter.fail = true
	rig.secondary.fail = true
	src := filepath.Join(t.TempDir(), "banner.png")
	writePNG(t, src, 800, 600)

	out, err := rig.pipeline.Run(context.Background(), src, 1920, 1080, "")
	require.NoError(t, err)

	// Both backends were tried; the outpainter then works from the source.
	assert.Equal(t, 1, rig.repainter.calls)
	assert.Equal(t, 1, rig.secondary.calls)
	assert.Equal(t, 1, rig.outpainter.calls)
	requireDims(t, out, 1920, 1080)
}

func TestRunPinnedRepainter(t *testing.T) {
	rig := newTestRig(t)
	src := filepath.Join(t.TempDir(), "banner.png")
	writePNG(t, src, 800, 600)

	_, err := rig.pipeline.Run(context.Background(), src, 1920, 1080, "gemini")
	require.NoError(t, err)

	assert.Zero(t, rig.repainter.calls)
	assert.Equal(t, 1, rig.secondary.calls)
}

func TestRunUnknownRepainterMode(t *testing.T) {
	rig := newTestRig(t)
	src := filepath.Join(t.TempDir(), "banner.png")
	writePNG(t, src, 800, 600)

	_, err := rig.pipeline.Run(context.Background(), src, 1920, 1080, "dalle9000")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dalle9000")
}

func TestRunOutpaintFailureAborts(t *testing.T) {
	rig := newTestRig(t)
	rig.outpainter.fail = true
	src := filepath.Join(t.TempDir(), "banner.png")
	writePNG(t, src, 800, 600)

	_, err := rig.pipeline.Run(context.Background(), src, 1920, 1080, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "outpaint")
}

func TestRunInvalidTarget(t *testing.T) {
	rig := newTestRig(t)
	_, err := rig.pipeline.Run(context.Background(), "whatever.png", 0, 100, "")
	require.Error(t, err)
}

func TestRunCleansTempDir(t *testing.T) {
	tempRoot := t.TempDir()
	rig := &testRig{
		repainter:  &fakeRepainter{name: "openai"},
		outpainter: &fakeOutpainter{},
		upscaler:   &fakeUpscaler{},
	}
	rig.pipeline = New(Config{TempRoot: tempRoot}, rig.outpainter, rig.upscaler, nil)
	rig.pipeline.RegisterRepainter(rig.repainter)

	src := filepath.Join(t.TempDir(), "banner.png")
	writePNG(t, src, 800, 600)

	_, err := rig.pipeline.Run(context.Background(), src, 1920, 1080, "")
	require.NoError(t, err)

	entries, err := os.ReadDir(tempRoot)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestRunKeepTempRetainsIntermediates(t *testing.T) {
	tempRoot := t.TempDir()
	p := New(Config{TempRoot: tempRoot, KeepTemp: true}, &fakeOutpainter{}, &fakeUpscaler{}, nil)
	p.RegisterRepainter(&fakeRepainter{name: "openai"})

	src := filepath.Join(t.TempDir(), "banner.png")
	writePNG(t, src, 800, 600)

	_, err := p.Run(context.Background(), src, 1920, 1080, "")
	require.NoError(t, err)

	entries, err := os.ReadDir(tempRoot)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, strings.HasPrefix(entries[0].Name(), "adapt_banner_"))
}
