package evaluation

import (
	"context"
	"errors"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nvr-ai/fashion-eval/dataset"
	"github.com/nvr-ai/fashion-eval/inference"
	"github.com/nvr-ai/fashion-eval/metrics"
	"github.com/nvr-ai/fashion-eval/models"
)

// sliceSource serves prebuilt batches. Each sample has a single "pixel" holding the
// class the fake predictor will pick.
type sliceSource struct {
	batches []*dataset.Batch
	n       int
}

func newSliceSource(n, batchSize int, signal func(i int) int) *sliceSource {
	s := &sliceSource{n: n}
	for start := 0; start < n; start += batchSize {
		end := min(start+batchSize, n)
		b := &dataset.Batch{Index: len(s.batches)}
		for _, h := range models.Heads {
			b.Labels[h] = make([]int, 0, end-start)
		}
		for i := start; i < end; i++ {
			b.Samples = append(b.Samples, dataset.Sample{Index: i, ImageName: strconv.Itoa(i) + ".jpg"})
			b.Pixels = append(b.Pixels, float32(signal(i)))
			for _, h := range models.Heads {
				b.Labels[h] = append(b.Labels[h], i%h.NumClasses())
			}
		}
		s.batches = append(s.batches, b)
	}
	return s
}

func (s *sliceSource) Iterate(ctx context.Context, fn func(*dataset.Batch) error) error {
	for _, b := range s.batches {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(b); err != nil {
			return err
		}
	}
	return nil
}

func (s *sliceSource) Len() int        { return s.n }
func (s *sliceSource) NumBatches() int { return len(s.batches) }

// signalPredictor puts a large logit on class signal%classes of every head.
type signalPredictor struct {
	calls   int
	failAt  int
	closed  bool
	lastLen []int
}

func (p *signalPredictor) Forward(_ context.Context, pixels []float32, n int) (*inference.Outputs, error) {
	p.calls++
	if p.failAt > 0 && p.calls == p.failAt {
		return nil, errors.New("device lost")
	}
	p.lastLen = append(p.lastLen, n)

	out := &inference.Outputs{N: n}
	for _, h := range models.Heads {
		c := h.NumClasses()
		out.Classes[h] = c
		out.Logits[h] = make([]float32, n*c)
		for i := 0; i < n; i++ {
			out.Logits[h][i*c+int(pixels[i])%c] = 10
		}
	}
	return out, nil
}

func (p *signalPredictor) Close() error {
	p.closed = true
	return nil
}

func TestRunScoresEveryHead(t *testing.T) {
	// Every sample is predicted correctly except sample 0, predicted as class 1.
	src := newSliceSource(30, 8, func(i int) int {
		if i == 0 {
			return 1
		}
		return i
	})
	pred := &signalPredictor{}

	res, err := NewEvaluator(src, pred, Options{KeepRecords: true}).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []int{8, 8, 8, 6}, pred.lastLen)
	assert.Equal(t, 30, res.Stats.Samples)
	assert.Equal(t, 4, res.Stats.Batches)

	want := map[models.Head]float64{
		models.HeadDaily:         (0.8 + 5) / 6,
		models.HeadGender:        (5.0/6.0 + 4) / 5,
		models.HeadEmbellishment: (0.9 + 2) / 3,
	}
	for _, h := range models.Heads {
		r := res.Heads[h]
		require.NotNil(t, r, h.String())
		assert.Equal(t, 30, r.Total)
		assert.InDelta(t, 29.0/30.0, r.Top1, 1e-12, h.String())
		assert.InDelta(t, want[h], r.ACSA, 1e-12, h.String())
		assert.Equal(t, h.NumClasses(), r.Matrix.Classes())
		assert.Equal(t, 1, r.Matrix.At(0, 1))
	}

	require.Len(t, res.Records, 30)
	assert.Equal(t, "0.jpg", res.Records[0].ImageName)
	assert.Equal(t, 1, res.Records[0].Pred[models.HeadGender])
	assert.Equal(t, 0, res.Records[0].Truth[models.HeadGender])
	assert.Equal(t, "29.jpg", res.Records[29].ImageName)
	assert.Greater(t, res.Records[29].Confidence[models.HeadDaily], float32(0.99))
}

func TestRunWithoutRecords(t *testing.T) {
	src := newSliceSource(12, 5, func(i int) int { return i })
	res, err := NewEvaluator(src, &signalPredictor{}, Options{}).Run(context.Background())
	require.NoError(t, err)

	assert.Empty(t, res.Records)
	for _, h := range models.Heads {
		assert.Equal(t, 1.0, res.Heads[h].Top1)
		assert.Equal(t, 1.0, res.Heads[h].ACSA)
	}
}

func TestRunAbortsOnInferenceError(t *testing.T) {
	src := newSliceSource(20, 4, func(i int) int { return i })
	pred := &signalPredictor{failAt: 3}

	_, err := NewEvaluator(src, pred, Options{}).Run(context.Background())
	assert.ErrorContains(t, err, "device lost")
	assert.ErrorContains(t, err, "batch 2")
	assert.Equal(t, 3, pred.calls)
}

func TestRunEmptyDataset(t *testing.T) {
	src := newSliceSource(0, 4, func(i int) int { return i })

	_, err := NewEvaluator(src, &signalPredictor{}, Options{}).Run(context.Background())
	assert.ErrorIs(t, err, metrics.ErrEmpty)
}

func TestRunCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	src := newSliceSource(4, 2, func(i int) int { return i })
	_, err := NewEvaluator(src, &signalPredictor{}, Options{}).Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
