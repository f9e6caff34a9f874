// Package metrics - Confusion matrix based classification metrics.
package metrics

import (
	"math"

	"github.com/pkg/errors"
)

var (
	// ErrEmpty is returned when there is nothing to score.
	ErrEmpty = errors.New("no labeled samples to score")
	// ErrLengthMismatch is returned when truth and prediction arrays differ in length.
	ErrLengthMismatch = errors.New("truth and prediction lengths differ")
	// ErrLabelRange is returned when a label falls outside the class range.
	ErrLabelRange = errors.New("label out of range")
)

// MaxClasses bounds the class count: labels are cast to int8 before scoring.
const MaxClasses = math.MaxInt8 + 1

// ConfusionMatrix counts predictions per (true, predicted) class pair.
// Rows are indexed by the true class and columns by the predicted class.
type ConfusionMatrix struct {
	classes int
	counts  []int
}

// NewConfusionMatrix builds a confusion matrix from parallel label arrays.
//
// Arguments:
//   - truth: The ground truth class indices.
//   - pred: The predicted class indices.
//   - classes: The number of classes. Zero infers max(label)+1 from the data.
//
// Returns:
//   - *ConfusionMatrix: The populated matrix.
//   - error: ErrLengthMismatch, ErrLabelRange or ErrEmpty.
func NewConfusionMatrix(truth, pred []int, classes int) (*ConfusionMatrix, error) {
	if len(truth) != len(pred) {
		return nil, errors.Wrapf(ErrLengthMismatch, "%d truths, %d predictions", len(truth), len(pred))
	}
	if len(truth) == 0 {
		return nil, ErrEmpty
	}
	if classes == 0 {
		classes = inferClasses(truth, pred)
	}
	if classes < 0 || classes > MaxClasses {
		return nil, errors.Wrapf(ErrLabelRange, "class count %d", classes)
	}

	m := &ConfusionMatrix{classes: classes, counts: make([]int, classes*classes)}
	for i := range truth {
		t, p := truth[i], pred[i]
		if t < 0 || t >= classes {
			return nil, errors.Wrapf(ErrLabelRange, "sample %d: true label %d not in [0,%d)", i, t, classes)
		}
		if p < 0 || p >= classes {
			return nil, errors.Wrapf(ErrLabelRange, "sample %d: predicted label %d not in [0,%d)", i, p, classes)
		}
		m.counts[t*classes+p]++
	}
	return m, nil
}

func inferClasses(truth, pred []int) int {
	max := -1
	for i := range truth {
		if truth[i] > max {
			max = truth[i]
		}
		if pred[i] > max {
			max = pred[i]
		}
	}
	return max + 1
}

// Classes returns the size of the matrix.
func (m *ConfusionMatrix) Classes() int {
	return m.classes
}

// At returns the number of samples of class truth predicted as pred.
func (m *ConfusionMatrix) At(truth, pred int) int {
	return m.counts[truth*m.classes+pred]
}

// Rows returns a copy of the matrix as a slice of rows.
func (m *ConfusionMatrix) Rows() [][]int {
	rows := make([][]int, m.classes)
	for i := range rows {
		rows[i] = append([]int(nil), m.counts[i*m.classes:(i+1)*m.classes]...)
	}
	return rows
}

// Total returns the number of scored samples.
func (m *ConfusionMatrix) Total() int {
	total := 0
	for _, c := range m.counts {
		total += c
	}
	return total
}

// RowSum returns the number of samples whose true class is c.
func (m *ConfusionMatrix) RowSum(c int) int {
	sum := 0
	for p := 0; p < m.classes; p++ {
		sum += m.At(c, p)
	}
	return sum
}

// ColSum returns the number of samples predicted as class c.
func (m *ConfusionMatrix) ColSum(c int) int {
	sum := 0
	for t := 0; t < m.classes; t++ {
		sum += m.At(t, c)
	}
	return sum
}

// ClassCounts holds the one-vs-rest outcome counts of a single class.
type ClassCounts struct {
	Class   int `json:"class"`
	TP      int `json:"tp"`
	FP      int `json:"fp"`
	FN      int `json:"fn"`
	TN      int `json:"tn"`
	Support int `json:"support"`
}

// Counts derives per-class TP, FP, FN and TN from the matrix.
func (m *ConfusionMatrix) Counts() []ClassCounts {
	total := m.Total()
	out := make([]ClassCounts, m.classes)
	for c := 0; c < m.classes; c++ {
		tp := m.At(c, c)
		fp := m.ColSum(c) - tp
		fn := m.RowSum(c) - tp
		out[c] = ClassCounts{
			Class:   c,
			TP:      tp,
			FP:      fp,
			FN:      fn,
			TN:      total - (tp + fp + fn),
			Support: tp + fn,
		}
	}
	return out
}
