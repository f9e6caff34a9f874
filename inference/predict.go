package inference

import (
	"github.com/chewxy/math32"
	"github.com/pkg/errors"
	"gorgonia.org/tensor"

	"github.com/nvr-ai/fashion-eval/models"
)

// Prediction holds the arg-max class and its softmax probability for every sample and head.
type Prediction struct {
	N          int
	Class      [models.NumHeads][]int
	Confidence [models.NumHeads][]float32
}

// Predict reduces the logits of each head to the highest scoring class per sample.
//
// Arguments:
//   - out: The logits of one forward pass.
//
// Returns:
//   - *Prediction: The predicted class indices and confidences.
//   - error: An error if a logits matrix does not match its declared shape.
func Predict(out *Outputs) (*Prediction, error) {
	p := &Prediction{N: out.N}
	if out.N == 0 {
		return p, nil
	}

	for _, h := range models.Heads {
		classes := out.Classes[h]
		if classes <= 0 || len(out.Logits[h]) != out.N*classes {
			return nil, errors.Errorf("head %s: %d logits do not form a [%d,%d] matrix",
				h, len(out.Logits[h]), out.N, classes)
		}

		idx, err := argmax(out.Logits[h], out.N, classes)
		if err != nil {
			return nil, errors.Wrapf(err, "head %s", h)
		}

		conf := make([]float32, out.N)
		for i := range idx {
			conf[i] = softmaxAt(out.Row(h, i), idx[i])
		}
		p.Class[h] = idx
		p.Confidence[h] = conf
	}
	return p, nil
}

// argmax returns the index of the largest value of each row.
func argmax(logits []float32, rows, cols int) ([]int, error) {
	backing := make([]float32, len(logits))
	copy(backing, logits)

	t := tensor.New(tensor.WithShape(rows, cols), tensor.WithBacking(backing))
	am, err := t.Argmax(1)
	if err != nil {
		return nil, errors.Wrap(err, "argmax failed")
	}

	switch data := am.Data().(type) {
	case []int:
		return data, nil
	case int:
		return []int{data}, nil
	default:
		return nil, errors.Errorf("unexpected argmax result %T", data)
	}
}

// softmaxAt returns the softmax probability of row[k].
func softmaxAt(row []float32, k int) float32 {
	max := row[0]
	for _, v := range row[1:] {
		if v > max {
			max = v
		}
	}
	var sum float32
	for _, v := range row {
		sum += math32.Exp(v - max)
	}
	return math32.Exp(row[k]-max) / sum
}
