// Package providers - Execution providers for ONNX Runtime sessions.
package providers

import (
	"strings"

	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"
)

// ProviderBackend represents different ONNX Runtime execution providers.
type ProviderBackend string

const (
	// CPUProviderBackend runs on the default CPU provider.
	CPUProviderBackend ProviderBackend = "cpu"
	// AutoProviderBackend uses CUDA when it can be enabled and falls back to CPU otherwise.
	AutoProviderBackend ProviderBackend = "auto"
)

// Backends lists every accepted backend name.
var Backends = []ProviderBackend{
	AutoProviderBackend,
	CPUProviderBackend,
	CUDAProviderBackend,
	CoreMLProviderBackend,
	OpenVINOProviderBackend,
}

// ParseBackend resolves a backend name. An empty name selects AutoProviderBackend.
//
// Arguments:
//   - s: The backend name.
//
// Returns:
//   - ProviderBackend: The backend.
//   - error: An error if the name is unknown.
func ParseBackend(s string) (ProviderBackend, error) {
	name := ProviderBackend(strings.ToLower(strings.TrimSpace(s)))
	if name == "" {
		return AutoProviderBackend, nil
	}
	for _, b := range Backends {
		if b == name {
			return b, nil
		}
	}
	return "", errors.Errorf("unsupported provider backend: %q", s)
}

// Config selects and parameterizes an execution provider.
type Config struct {
	// Backend specifies the backend to use.
	Backend ProviderBackend `json:"backend" yaml:"backend"`
	// DeviceID selects the accelerator for CUDA and OpenVINO.
	DeviceID int `json:"deviceID" yaml:"deviceID"`
	// LibraryPath overrides the ONNX Runtime shared library location.
	LibraryPath string `json:"libraryPath" yaml:"libraryPath"`
	// Threads bounds intra-op parallelism. Zero lets ONNX Runtime decide.
	Threads int `json:"threads" yaml:"threads"`
	// CUDA tunes the CUDA provider, also used by the auto backend.
	CUDA CUDAOptions `json:"cuda" yaml:"cuda"`
	// CoreML tunes the CoreML provider.
	CoreML CoreMLOptions `json:"coreml" yaml:"coreml"`
	// OpenVINO tunes the OpenVINO provider.
	OpenVINO OpenVINOOptions `json:"openvino" yaml:"openvino"`
}

// ExecutionProvider represents the contract that all execution providers must implement.
type ExecutionProvider interface {
	// Backend returns the configured backend.
	Backend() ProviderBackend
	// Apply registers the provider on the session options and returns the backend that
	// will actually execute the graph.
	Apply(options *ort.SessionOptions) (ProviderBackend, error)
}

// NewProvider creates a new provider based on the required backend.
//
// Arguments:
//   - cfg: The provider configuration.
//
// Returns:
//   - ExecutionProvider: The new provider.
//   - error: An error if the backend is unsupported.
func NewProvider(cfg Config) (ExecutionProvider, error) {
	cuda := cfg.CUDA
	cuda.DeviceID = cfg.DeviceID

	switch cfg.Backend {
	case CPUProviderBackend:
		return NewCPUProvider(), nil
	case CUDAProviderBackend:
		return NewCUDAProvider(cuda), nil
	case CoreMLProviderBackend:
		return NewCoreMLProvider(cfg.CoreML), nil
	case OpenVINOProviderBackend:
		openvino := cfg.OpenVINO
		openvino.DeviceID = deviceName(cfg.DeviceID)
		return NewOpenVINOProvider(openvino), nil
	case AutoProviderBackend, "":
		return NewAutoProvider(cuda), nil
	default:
		return nil, errors.Errorf("unsupported provider backend: %s", cfg.Backend)
	}
}
