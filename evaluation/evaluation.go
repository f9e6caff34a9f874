// Package evaluation - Runs a multi-head classifier over a labeled test set and scores
// every head.
package evaluation

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/nvr-ai/fashion-eval/dataset"
	"github.com/nvr-ai/fashion-eval/inference"
	"github.com/nvr-ai/fashion-eval/log"
	"github.com/nvr-ai/fashion-eval/metrics"
	"github.com/nvr-ai/fashion-eval/models"
)

// BatchSource yields batches sequentially. *dataset.Loader implements it.
type BatchSource interface {
	Iterate(ctx context.Context, fn func(*dataset.Batch) error) error
	Len() int
	NumBatches() int
}

// Record is the outcome of one sample.
type Record struct {
	ImageName  string
	Truth      [models.NumHeads]int
	Pred       [models.NumHeads]int
	Confidence [models.NumHeads]float32
}

// Results holds the scores of every head and the run statistics.
type Results struct {
	Heads   [models.NumHeads]*metrics.Result
	Stats   Stats
	Records []Record
}

// Options controls what the evaluator keeps.
type Options struct {
	// KeepRecords stores the outcome of every sample in Results.Records.
	KeepRecords bool
	// ProgressInterval is how often progress is logged. Zero disables it.
	ProgressInterval time.Duration
}

// Evaluator couples a batch source with a predictor.
type Evaluator struct {
	source    BatchSource
	predictor inference.Predictor
	opts      Options
}

// NewEvaluator creates an evaluator.
func NewEvaluator(source BatchSource, predictor inference.Predictor, opts Options) *Evaluator {
	return &Evaluator{
		source:    source,
		predictor: predictor,
		opts:      opts,
	}
}

// accumulator collects truth and predictions per head across batches.
type accumulator struct {
	truth   [models.NumHeads][]int
	pred    [models.NumHeads][]int
	records []Record
}

func newAccumulator(capacity int) *accumulator {
	a := &accumulator{}
	for _, h := range models.Heads {
		a.truth[h] = make([]int, 0, capacity)
		a.pred[h] = make([]int, 0, capacity)
	}
	return a
}

func (a *accumulator) add(b *dataset.Batch, p *inference.Prediction, keep bool) error {
	if p.N != b.Len() {
		return errors.Errorf("batch %d: %d predictions for %d samples", b.Index, p.N, b.Len())
	}
	for _, h := range models.Heads {
		a.truth[h] = append(a.truth[h], b.Labels[h]...)
		a.pred[h] = append(a.pred[h], p.Class[h]...)
	}
	if !keep {
		return nil
	}
	for i, s := range b.Samples {
		r := Record{ImageName: s.ImageName}
		for _, h := range models.Heads {
			r.Truth[h] = b.Labels[h][i]
			r.Pred[h] = p.Class[h][i]
			r.Confidence[h] = p.Confidence[h][i]
		}
		a.records = append(a.records, r)
	}
	return nil
}

// Run evaluates every batch, one forward pass at a time, then scores each head.
// Any load, inference or scoring error aborts the run.
//
// Arguments:
//   - ctx: Cancels the run between batches.
//
// Returns:
//   - *Results: The per-head scores and run statistics.
//   - error: The first error encountered.
func (e *Evaluator) Run(ctx context.Context) (*Results, error) {
	stats := Stats{StartedAt: time.Now()}
	acc := newAccumulator(e.source.Len())
	total := e.source.NumBatches()

	prog := newProgress(e.source.Len(), e.opts.ProgressInterval)
	prog.start()
	defer prog.finish()

	last := time.Now()
	err := e.source.Iterate(ctx, func(b *dataset.Batch) error {
		stats.LoadWaitDuration += time.Since(last)

		start := time.Now()
		out, err := e.predictor.Forward(ctx, b.Pixels, b.Len())
		if err != nil {
			return errors.Wrapf(err, "batch %d", b.Index)
		}
		pred, err := inference.Predict(out)
		if err != nil {
			return errors.Wrapf(err, "batch %d", b.Index)
		}
		stats.InferenceDuration += time.Since(start)

		if err := acc.add(b, pred, e.opts.KeepRecords); err != nil {
			return err
		}
		stats.Batches++
		stats.Samples += b.Len()
		prog.add(b.Len())
		log.Debugw("batch scored", "batch", b.Index+1, "of", total, "samples", b.Len())

		last = time.Now()
		return nil
	})
	if err != nil {
		return nil, err
	}

	res := &Results{Records: acc.records}
	for _, h := range models.Heads {
		r, err := metrics.Evaluate(acc.truth[h], acc.pred[h], h.NumClasses())
		if err != nil {
			return nil, errors.Wrapf(err, "head %s", h)
		}
		if len(r.AbsentClasses) > 0 {
			log.Warnf("head %s: classes %v have no samples and are excluded from ACSA", h, r.AbsentClasses)
		}
		res.Heads[h] = r
	}

	stats.finish(time.Now())
	res.Stats = stats
	log.Infow("evaluation finished",
		"samples", stats.Samples,
		"batches", stats.Batches,
		"duration", stats.TotalDuration,
		"samplesPerSecond", stats.SamplesPerSecond,
	)
	return res, nil
}
