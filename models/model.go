package models

import (
	"github.com/pkg/errors"
)

const (
	// DefaultModelName is the name of the baseline network.
	DefaultModelName = "Baseline_ResNet_emo"
	// DefaultInputName is the ONNX input node of the exported baseline.
	DefaultInputName = "input"
	// DefaultInputSize is the square input resolution of the baseline.
	DefaultInputSize = 224
)

// DefaultOutputs are the ONNX output nodes of the exported baseline, one per head.
var DefaultOutputs = map[Head]string{
	HeadDaily:         "out_daily",
	HeadGender:        "out_gender",
	HeadEmbellishment: "out_embel",
}

// Model describes a multi-head classification model stored as an ONNX graph.
type Model struct {
	// Name is used for logging only.
	Name string
	// Path is the ONNX model file.
	Path string
	// InputName is the image input node, shaped [batch, 3, size, size].
	InputName string
	// InputSize is the square input resolution.
	InputSize int
	// Outputs maps each head to its logits output node, shaped [batch, classes].
	Outputs map[Head]string
}

// NewModel returns a model description with the baseline defaults for anything left empty.
//
// Arguments:
//   - m: The partial model description.
//
// Returns:
//   - Model: The completed description.
//   - error: An error if the description is invalid.
func NewModel(m Model) (Model, error) {
	if m.Name == "" {
		m.Name = DefaultModelName
	}
	if m.InputName == "" {
		m.InputName = DefaultInputName
	}
	if m.InputSize == 0 {
		m.InputSize = DefaultInputSize
	}
	outputs := make(map[Head]string, NumHeads)
	for _, h := range Heads {
		outputs[h] = DefaultOutputs[h]
		if name, ok := m.Outputs[h]; ok && name != "" {
			outputs[h] = name
		}
	}
	m.Outputs = outputs

	if err := m.Validate(); err != nil {
		return Model{}, err
	}
	return m, nil
}

// Validate checks that the model description is usable.
func (m Model) Validate() error {
	if m.Path == "" {
		return errors.New("model path is required")
	}
	if m.InputSize <= 0 {
		return errors.Errorf("input size must be positive, got %d", m.InputSize)
	}
	seen := make(map[string]Head, NumHeads)
	for _, h := range Heads {
		name := m.Outputs[h]
		if name == "" {
			return errors.Errorf("missing output name for head %s", h)
		}
		if other, dup := seen[name]; dup {
			return errors.Errorf("heads %s and %s share output %q", other, h, name)
		}
		seen[name] = h
	}
	return nil
}

// OutputNames returns the output node names in head order.
func (m Model) OutputNames() []string {
	names := make([]string, 0, NumHeads)
	for _, h := range Heads {
		names = append(names, m.Outputs[h])
	}
	return names
}

// InputShape returns the NCHW input shape for a batch of n samples.
func (m Model) InputShape(n int) []int64 {
	return []int64{int64(n), 3, int64(m.InputSize), int64(m.InputSize)}
}
