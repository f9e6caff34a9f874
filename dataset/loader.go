package dataset

import (
	"context"
	"path/filepath"
	"sync"

	"github.com/panjf2000/ants/v2"
	"github.com/pkg/errors"

	"github.com/nvr-ai/fashion-eval/models"
)

// Batch is a group of consecutive samples ready for one forward pass.
type Batch struct {
	// Index is the position of the batch in the run.
	Index int
	// Samples are the samples of the batch in manifest order.
	Samples []Sample
	// Pixels holds the preprocessed images as one NCHW buffer.
	Pixels []float32
	// Labels holds the true class of every sample, per head.
	Labels [models.NumHeads][]int
}

// Len returns the number of samples in the batch.
func (b *Batch) Len() int {
	return len(b.Samples)
}

// LoaderOptions controls batching and parallelism.
type LoaderOptions struct {
	// BatchSize is the number of samples per batch. The last batch may be smaller.
	BatchSize int
	// Workers is the number of images decoded concurrently.
	Workers int
	// Prefetch is the number of batches prepared ahead of the consumer.
	Prefetch int
}

// Loader produces batches in manifest order. Images are decoded by a worker pool while
// the consumer works on the previous batch.
type Loader struct {
	samples   []Sample
	imageDir  string
	decoder   Decoder
	transform *Transform
	opts      LoaderOptions
}

// NewLoader creates a loader over samples.
//
// Arguments:
//   - samples: The samples to load, in order.
//   - imageDir: The directory image names are relative to.
//   - decoder: The image decoder.
//   - transform: The preprocessing applied to each image.
//   - opts: Batching and parallelism options.
//
// Returns:
//   - *Loader: The loader.
//   - error: An error if an option is invalid.
func NewLoader(samples []Sample, imageDir string, decoder Decoder, transform *Transform, opts LoaderOptions) (*Loader, error) {
	if opts.BatchSize <= 0 {
		return nil, errors.Errorf("batch size must be positive, got %d", opts.BatchSize)
	}
	if opts.Workers <= 0 {
		return nil, errors.Errorf("workers must be positive, got %d", opts.Workers)
	}
	if opts.Prefetch < 0 {
		return nil, errors.Errorf("prefetch must not be negative, got %d", opts.Prefetch)
	}
	if decoder == nil || transform == nil {
		return nil, errors.New("decoder and transform are required")
	}
	return &Loader{
		samples:   samples,
		imageDir:  imageDir,
		decoder:   decoder,
		transform: transform,
		opts:      opts,
	}, nil
}

// Len returns the number of samples.
func (l *Loader) Len() int {
	return len(l.samples)
}

// NumBatches returns the number of batches Iterate produces.
func (l *Loader) NumBatches() int {
	return (len(l.samples) + l.opts.BatchSize - 1) / l.opts.BatchSize
}

type batchResult struct {
	batch *Batch
	err   error
}

// Iterate calls fn with every batch in order. The first load error or error returned
// by fn stops the iteration and is returned.
//
// Arguments:
//   - ctx: Cancels loading; checked between batches.
//   - fn: Called sequentially, one batch at a time.
//
// Returns:
//   - error: The first error encountered, or the context error.
func (l *Loader) Iterate(ctx context.Context, fn func(*Batch) error) error {
	pool, err := ants.NewPool(l.opts.Workers)
	if err != nil {
		return errors.Wrap(err, "failed to create worker pool")
	}
	defer pool.Release()

	ctx, cancel := context.WithCancel(ctx)
	results := make(chan batchResult, l.opts.Prefetch)

	go func() {
		defer close(results)
		for i := 0; i < l.NumBatches(); i++ {
			b, err := l.load(ctx, pool, i)
			select {
			case results <- batchResult{batch: b, err: err}:
			case <-ctx.Done():
				return
			}
			if err != nil {
				return
			}
		}
	}()

	// The producer must stop before the pool is released.
	defer func() {
		cancel()
		for range results {
		}
	}()

	for r := range results {
		if r.err != nil {
			return r.err
		}
		if err := fn(r.batch); err != nil {
			return err
		}
	}
	return ctx.Err()
}

// load decodes and preprocesses batch i.
func (l *Loader) load(ctx context.Context, pool *ants.Pool, i int) (*Batch, error) {
	start := i * l.opts.BatchSize
	end := min(start+l.opts.BatchSize, len(l.samples))
	samples := l.samples[start:end]

	n := len(samples)
	stride := l.transform.TensorLen()
	b := &Batch{
		Index:   i,
		Samples: samples,
		Pixels:  make([]float32, n*stride),
	}
	for _, h := range models.Heads {
		b.Labels[h] = make([]int, n)
		for j, s := range samples {
			b.Labels[h][j] = s.Labels[h]
		}
	}

	errs := make([]error, n)
	var wg sync.WaitGroup
	for j := range samples {
		wg.Add(1)
		err := pool.Submit(func() {
			defer wg.Done()
			if err := ctx.Err(); err != nil {
				errs[j] = err
				return
			}
			errs[j] = l.loadSample(samples[j], b.Pixels[j*stride:(j+1)*stride])
		})
		if err != nil {
			wg.Done()
			errs[j] = errors.Wrap(err, "failed to schedule sample")
			break
		}
	}
	wg.Wait()

	for j, err := range errs {
		if err != nil {
			return nil, errors.Wrapf(err, "sample %d (%s)", samples[j].Index, samples[j].ImageName)
		}
	}
	return b, nil
}

func (l *Loader) loadSample(s Sample, dst []float32) error {
	img, err := l.decoder.Decode(filepath.Join(l.imageDir, s.ImageName))
	if err != nil {
		return err
	}
	return l.transform.Apply(img, s.BBox, dst)
}
