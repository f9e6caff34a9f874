// Package inference - Multi-head classification inference.
package inference

import (
	"context"

	"github.com/nvr-ai/fashion-eval/models"
)

// Predictor runs the model over a batch of preprocessed images.
type Predictor interface {
	// Forward runs one forward pass over n images stored as a contiguous NCHW buffer.
	Forward(ctx context.Context, pixels []float32, n int) (*Outputs, error)
	// Close releases the resources held by the predictor.
	Close() error
}

// Outputs holds the raw logits of one forward pass. Logits[h] is a row-major
// [N, Classes[h]] matrix.
type Outputs struct {
	N       int
	Logits  [models.NumHeads][]float32
	Classes [models.NumHeads]int
}

// Row returns the logits of sample i for head h.
func (o *Outputs) Row(h models.Head, i int) []float32 {
	c := o.Classes[h]
	return o.Logits[h][i*c : (i+1)*c]
}
