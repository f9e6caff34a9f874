package dataset

import (
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/chai2010/webp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nvr-ai/fashion-eval/models"
)

// patternImage is a 3x2 image with a distinct opaque color per pixel.
func patternImage() *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, 3, 2))
	for y := 0; y < 2; y++ {
		for x := 0; x < 3; x++ {
			img.Set(x, y, color.RGBA{R: uint8(40 * x), G: uint8(100 * y), B: 200, A: 255})
		}
	}
	return img
}

func writePNG(t *testing.T, path string, img image.Image) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, img))
}

func assertSamePixels(t *testing.T, want, got image.Image) {
	t.Helper()
	require.Equal(t, want.Bounds().Size(), got.Bounds().Size())
	wb, gb := want.Bounds(), got.Bounds()
	for y := 0; y < wb.Dy(); y++ {
		for x := 0; x < wb.Dx(); x++ {
			w := color.RGBAModel.Convert(want.At(wb.Min.X+x, wb.Min.Y+y))
			g := color.RGBAModel.Convert(got.At(gb.Min.X+x, gb.Min.Y+y))
			assert.Equal(t, w, g, "pixel (%d,%d)", x, y)
		}
	}
}

func TestNativeDecoder(t *testing.T) {
	dir := t.TempDir()
	want := patternImage()

	t.Run("png", func(t *testing.T) {
		path := filepath.Join(dir, "a.png")
		writePNG(t, path, want)

		img, err := NativeDecoder{}.Decode(path)
		require.NoError(t, err)
		assert.Equal(t, image.Rect(0, 0, 3, 2), img.Bounds())
		assert.Equal(t, color.RGBA{R: 80, G: 100, B: 200, A: 255}, color.RGBAModel.Convert(img.At(2, 1)))
		assertSamePixels(t, want, img)
	})

	t.Run("webp", func(t *testing.T) {
		path := filepath.Join(dir, "a.webp")
		f, err := os.Create(path)
		require.NoError(t, err)
		require.NoError(t, webp.Encode(f, want, &webp.Options{Lossless: true}))
		require.NoError(t, f.Close())

		img, err := NativeDecoder{}.Decode(path)
		require.NoError(t, err)
		assertSamePixels(t, want, img)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := NativeDecoder{}.Decode(filepath.Join(dir, "missing.png"))
		assert.ErrorIs(t, err, os.ErrNotExist)
	})

	t.Run("corrupt file", func(t *testing.T) {
		path := filepath.Join(dir, "corrupt.png")
		require.NoError(t, os.WriteFile(path, []byte("not an image"), 0o644))
		_, err := NativeDecoder{}.Decode(path)
		assert.ErrorContains(t, err, "failed to decode image")
		assert.ErrorContains(t, err, "corrupt.png")
	})
}

func TestOpenCVDecoder(t *testing.T) {
	dir := t.TempDir()
	want := patternImage()
	path := filepath.Join(dir, "a.png")
	writePNG(t, path, want)

	img, err := OpenCVDecoder{}.Decode(path)
	require.NoError(t, err)
	assert.Equal(t, 3, img.Bounds().Dx())
	assert.Equal(t, 2, img.Bounds().Dy())
	// Channels come back in RGB order, not OpenCV's BGR.
	assertSamePixels(t, want, img)

	_, err = OpenCVDecoder{}.Decode(filepath.Join(dir, "missing.png"))
	assert.ErrorContains(t, err, "failed to read image")

	corrupt := filepath.Join(dir, "corrupt.png")
	require.NoError(t, os.WriteFile(corrupt, []byte("not an image"), 0o644))
	_, err = OpenCVDecoder{}.Decode(corrupt)
	assert.Error(t, err)
}

func TestLoaderDecodesFiles(t *testing.T) {
	dir := t.TempDir()
	samples := make([]Sample, 5)
	for i := range samples {
		name := strconv.Itoa(i) + ".png"
		writePNG(t, filepath.Join(dir, name), solidImage(6, 6, color.RGBA{R: uint8(50 * i), G: 10, B: 20, A: 255}))
		samples[i] = Sample{Index: i, ImageName: name, Labels: [models.NumHeads]int{i % 6, i % 5, i % 3}}
	}

	tr := NewTransform(4)
	l, err := NewLoader(samples, dir, NativeDecoder{}, tr, LoaderOptions{BatchSize: 2, Workers: 2})
	require.NoError(t, err)

	var seen []int
	err = l.Iterate(context.Background(), func(b *Batch) error {
		for j, s := range b.Samples {
			seen = append(seen, s.Index)
			assert.InDelta(t, normalized(tr, 0, uint8(50*s.Index)), b.Pixels[j*tr.TensorLen()], 1e-4)
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2, 3, 4}, seen)
}
