package dataset

import (
	"context"
	"errors"
	"image"
	"image/color"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nvr-ai/fashion-eval/models"
)

// grayDecoder returns a solid gray image whose level is the numeric file name.
type grayDecoder struct {
	calls atomic.Int32
	fail  string
}

func (d *grayDecoder) Decode(path string) (image.Image, error) {
	d.calls.Add(1)
	name := strings.TrimSuffix(filepath.Base(path), ".jpg")
	if name == d.fail {
		return nil, errors.New("corrupt image")
	}
	level, err := strconv.Atoi(name)
	if err != nil {
		return nil, err
	}
	return solidImage(4, 4, color.Gray{Y: uint8(level)}), nil
}

func testSamples(n int) []Sample {
	samples := make([]Sample, n)
	for i := range samples {
		samples[i] = Sample{
			Index:     i,
			ImageName: strconv.Itoa(i) + ".jpg",
			Labels:    [models.NumHeads]int{i % 6, i % 5, i % 3},
		}
	}
	return samples
}

func TestLoaderBatchesInOrder(t *testing.T) {
	tr := NewTransform(2)
	dec := &grayDecoder{}
	l, err := NewLoader(testSamples(10), "imgs", dec, tr, LoaderOptions{BatchSize: 4, Workers: 3, Prefetch: 2})
	require.NoError(t, err)
	assert.Equal(t, 3, l.NumBatches())
	assert.Equal(t, 10, l.Len())

	var sizes, indices []int
	var daily []int
	err = l.Iterate(context.Background(), func(b *Batch) error {
		sizes = append(sizes, b.Len())
		indices = append(indices, b.Index)
		daily = append(daily, b.Labels[models.HeadDaily]...)
		require.Len(t, b.Pixels, b.Len()*tr.TensorLen())
		for j, s := range b.Samples {
			// The first value of each image encodes its gray level, i.e. its sample index.
			assert.InDelta(t, normalized(tr, 0, uint8(s.Index)), b.Pixels[j*tr.TensorLen()], 1e-4)
		}
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, []int{4, 4, 2}, sizes)
	assert.Equal(t, []int{0, 1, 2}, indices)
	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 0, 1, 2, 3}, daily)
	assert.Equal(t, int32(10), dec.calls.Load())
}

func TestLoaderStopsOnDecodeError(t *testing.T) {
	dec := &grayDecoder{fail: "5"}
	l, err := NewLoader(testSamples(12), "", dec, NewTransform(2), LoaderOptions{BatchSize: 4, Workers: 2})
	require.NoError(t, err)

	var seen int
	err = l.Iterate(context.Background(), func(b *Batch) error {
		seen++
		return nil
	})
	assert.ErrorContains(t, err, "corrupt image")
	assert.ErrorContains(t, err, "5.jpg")
	assert.Equal(t, 1, seen)
}

func TestLoaderStopsOnCallbackError(t *testing.T) {
	l, err := NewLoader(testSamples(20), "", &grayDecoder{}, NewTransform(2), LoaderOptions{BatchSize: 2, Workers: 2, Prefetch: 1})
	require.NoError(t, err)

	boom := errors.New("boom")
	var seen int
	err = l.Iterate(context.Background(), func(b *Batch) error {
		seen++
		if b.Index == 1 {
			return boom
		}
		return nil
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 2, seen)
}

func TestLoaderCancelled(t *testing.T) {
	l, err := NewLoader(testSamples(8), "", &grayDecoder{}, NewTransform(2), LoaderOptions{BatchSize: 2, Workers: 1})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err = l.Iterate(ctx, func(b *Batch) error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLoaderEmpty(t *testing.T) {
	l, err := NewLoader(nil, "", &grayDecoder{}, NewTransform(2), LoaderOptions{BatchSize: 2, Workers: 1})
	require.NoError(t, err)
	assert.Equal(t, 0, l.NumBatches())
	assert.NoError(t, l.Iterate(context.Background(), func(b *Batch) error {
		t.Fatal("no batch expected")
		return nil
	}))
}

func TestNewLoaderValidation(t *testing.T) {
	tr := NewTransform(2)
	dec := &grayDecoder{}
	for _, opts := range []LoaderOptions{
		{BatchSize: 0, Workers: 1},
		{BatchSize: 1, Workers: 0},
		{BatchSize: 1, Workers: 1, Prefetch: -1},
	} {
		_, err := NewLoader(nil, "", dec, tr, opts)
		assert.Error(t, err, "%+v", opts)
	}
	_, err := NewLoader(nil, "", nil, tr, LoaderOptions{BatchSize: 1, Workers: 1})
	assert.Error(t, err)
}

func TestNewDecoder(t *testing.T) {
	d, err := NewDecoder("")
	require.NoError(t, err)
	assert.IsType(t, NativeDecoder{}, d)

	d, err = NewDecoder(DecoderOpenCV)
	require.NoError(t, err)
	assert.IsType(t, OpenCVDecoder{}, d)

	_, err = NewDecoder("vips")
	assert.Error(t, err)
}
