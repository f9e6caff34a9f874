package evaluation

import (
	"fmt"
	"math"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nvr-ai/fashion-eval/log"
)

// progress periodically logs how far a run has come, its throughput and the memory in use.
type progress struct {
	interval time.Duration
	total    int

	samples atomic.Int64
	batches atomic.Int64

	startTime time.Time
	stop      chan struct{}
	wg        sync.WaitGroup
}

// newProgress creates a reporter for a run over total samples.
//
// Arguments:
//   - total: The number of samples in the run.
//   - interval: How often to report. Zero disables reporting.
//
// Returns:
//   - *progress: The reporter, not yet started.
func newProgress(total int, interval time.Duration) *progress {
	return &progress{
		interval: interval,
		total:    total,
		stop:     make(chan struct{}),
	}
}

// start begins periodic reporting.
func (p *progress) start() {
	p.startTime = time.Now()
	if p.interval <= 0 {
		return
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()

		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()

		for {
			select {
			case <-p.stop:
				return
			case <-ticker.C:
				p.report()
			}
		}
	}()
}

// finish stops reporting and waits for the reporter to exit. It must be called once.
func (p *progress) finish() {
	close(p.stop)
	p.wg.Wait()
}

// add records a completed batch.
func (p *progress) add(samples int) {
	p.samples.Add(int64(samples))
	p.batches.Add(1)
}

func (p *progress) report() {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	done := p.samples.Load()
	elapsed := time.Since(p.startTime)
	rate := 0.0
	if elapsed > 0 {
		rate = float64(done) / elapsed.Seconds()
	}

	log.Infow("progress",
		"samples", fmt.Sprintf("%d/%d", done, p.total),
		"batches", p.batches.Load(),
		"elapsed", elapsed.Truncate(time.Millisecond),
		"samplesPerSecond", fmt.Sprintf("%.1f", rate),
		"heapMiB", mebibytes(mem.HeapAlloc),
		"goroutines", runtime.NumGoroutine(),
	)
}

// mebibytes converts a byte count to MiB rounded to one decimal.
func mebibytes(n uint64) float64 {
	return math.Round(float64(n)/(1<<20)*10) / 10
}
