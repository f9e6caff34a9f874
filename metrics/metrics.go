package metrics

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
)

// Result holds the scores of one label group.
type Result struct {
	// Top1 is the fraction of samples predicted correctly.
	Top1 float64 `json:"top1"`
	// ACSA is the average per-class accuracy, the mean recall over classes with support.
	ACSA float64 `json:"acsa"`
	// Recall is the per-class recall. Classes without support hold NaN.
	Recall []float64 `json:"-"`
	// Counts holds the per-class outcome counts.
	Counts []ClassCounts `json:"classes"`
	// AbsentClasses lists classes with no true samples, excluded from ACSA.
	AbsentClasses []int `json:"absentClasses,omitempty"`
	// Total is the number of scored samples.
	Total int `json:"total"`
	// Matrix is the confusion matrix the scores were derived from.
	Matrix *ConfusionMatrix `json:"-"`
}

// Evaluate scores predictions against ground truth.
//
// Classes that never occur in the ground truth have no defined recall. They are left
// out of the ACSA mean and reported in AbsentClasses.
//
// Arguments:
//   - truth: The ground truth class indices.
//   - pred: The predicted class indices.
//   - classes: The number of classes, or zero to infer it.
//
// Returns:
//   - *Result: The scores.
//   - error: An error if the labels cannot be scored.
func Evaluate(truth, pred []int, classes int) (*Result, error) {
	m, err := NewConfusionMatrix(truth, pred, classes)
	if err != nil {
		return nil, err
	}
	return FromMatrix(m)
}

// FromMatrix derives the scores from an existing confusion matrix.
func FromMatrix(m *ConfusionMatrix) (*Result, error) {
	total := m.Total()
	if total == 0 {
		return nil, ErrEmpty
	}

	counts := m.Counts()
	tp := make([]float64, len(counts))
	recall := make([]float64, len(counts))
	supported := make([]float64, 0, len(counts))
	var absent []int

	for i, c := range counts {
		tp[i] = float64(c.TP)
		if c.Support == 0 {
			recall[i] = math.NaN()
			absent = append(absent, c.Class)
			continue
		}
		recall[i] = float64(c.TP) / float64(c.Support)
		supported = append(supported, recall[i])
	}
	if len(supported) == 0 {
		return nil, errors.Wrap(ErrEmpty, "no class has support")
	}

	return &Result{
		Top1:          floats.Sum(tp) / float64(total),
		ACSA:          floats.Sum(supported) / float64(len(supported)),
		Recall:        recall,
		Counts:        counts,
		AbsentClasses: absent,
		Total:         total,
		Matrix:        m,
	}, nil
}
