package evaluation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMebibytes(t *testing.T) {
	assert.Equal(t, 0.0, mebibytes(0))
	assert.Equal(t, 0.0, mebibytes(1023))
	assert.Equal(t, 0.5, mebibytes(512<<10))
	assert.Equal(t, 5.0, mebibytes(5<<20))
	assert.Equal(t, 1.3, mebibytes(1<<20+300<<10))
	assert.Equal(t, 3072.0, mebibytes(3<<30))
}

func TestProgressCounts(t *testing.T) {
	p := newProgress(10, time.Millisecond)
	p.start()
	p.add(4)
	p.add(6)
	time.Sleep(5 * time.Millisecond)
	p.finish()

	assert.Equal(t, int64(10), p.samples.Load())
	assert.Equal(t, int64(2), p.batches.Load())
}

func TestProgressDisabled(t *testing.T) {
	p := newProgress(1, 0)
	p.start()
	p.add(1)
	p.finish()

	assert.Equal(t, int64(1), p.samples.Load())
}
