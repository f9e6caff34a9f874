package providers

import (
	"fmt"

	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"
)

const (
	// CUDAProviderBackend uses NVIDIA CUDA for inference.
	CUDAProviderBackend ProviderBackend = "cuda"
)

// CUDAOptions contains arguments for the CUDA provider.
// See:
// https://onnxruntime.ai/docs/execution-providers/CUDA-ExecutionProvider.html#configuration-options
type CUDAOptions struct {
	// DeviceID is taken from Config.DeviceID.
	DeviceID int `json:"-" yaml:"-"`
	// The size limit of the device memory arena in bytes. Zero keeps the runtime default.
	GPUMemLimit int64 `json:"gpuMemLimit" yaml:"gpuMemLimit"`
	// The strategy for extending the device memory arena.
	// 0: kNextPowerOfTwo
	// 1: kSameAsRequested
	ArenaExtendStrategy int `json:"arenaExtendStrategy" yaml:"arenaExtendStrategy"`
	// The type of search done for cuDNN convolution algorithms.
	// 0: EXHAUSTIVE, 1: HEURISTIC, 2: DEFAULT
	CudnnConvAlgoSearch int `json:"cudnnConvAlgoSearch" yaml:"cudnnConvAlgoSearch"`
	// Whether to do copies in the default stream or use separate streams.
	DoCopyInDefaultStream bool `json:"doCopyInDefaultStream" yaml:"doCopyInDefaultStream"`
}

// Validate rejects enum values ONNX Runtime does not define.
func (o CUDAOptions) Validate() error {
	if o.ArenaExtendStrategy < 0 || o.ArenaExtendStrategy >= len(arenaStrategies) {
		return errors.Errorf("arenaExtendStrategy must be 0 or 1, got %d", o.ArenaExtendStrategy)
	}
	if o.CudnnConvAlgoSearch < 0 || o.CudnnConvAlgoSearch >= len(convAlgoSearch) {
		return errors.Errorf("cudnnConvAlgoSearch must be 0, 1 or 2, got %d", o.CudnnConvAlgoSearch)
	}
	if o.GPUMemLimit < 0 {
		return errors.Errorf("gpuMemLimit must not be negative, got %d", o.GPUMemLimit)
	}
	return nil
}

// optionMap renders the options with the key names expected by ONNX Runtime.
func (o CUDAOptions) optionMap() map[string]string {
	m := map[string]string{
		"device_id":                 fmt.Sprintf("%d", o.DeviceID),
		"arena_extend_strategy":     arenaStrategies[o.ArenaExtendStrategy],
		"cudnn_conv_algo_search":    convAlgoSearch[o.CudnnConvAlgoSearch],
		"do_copy_in_default_stream": fmt.Sprintf("%d", boolInt(o.DoCopyInDefaultStream)),
	}
	if o.GPUMemLimit > 0 {
		m["gpu_mem_limit"] = fmt.Sprintf("%d", o.GPUMemLimit)
	}
	return m
}

var (
	arenaStrategies = []string{"kNextPowerOfTwo", "kSameAsRequested"}
	convAlgoSearch  = []string{"EXHAUSTIVE", "HEURISTIC", "DEFAULT"}
)

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// CUDAProvider implements the ExecutionProvider interface.
type CUDAProvider struct {
	options CUDAOptions
}

// NewCUDAProvider creates a new CUDA provider.
func NewCUDAProvider(options CUDAOptions) *CUDAProvider {
	return &CUDAProvider{options: options}
}

// Backend returns the backend of the CUDA provider.
func (p *CUDAProvider) Backend() ProviderBackend {
	return CUDAProviderBackend
}

// Apply appends the CUDA execution provider to the session options.
func (p *CUDAProvider) Apply(options *ort.SessionOptions) (ProviderBackend, error) {
	if err := p.options.Validate(); err != nil {
		return "", errors.Wrap(err, "invalid CUDA options")
	}
	cuda, err := ort.NewCUDAProviderOptions()
	if err != nil {
		return "", errors.Wrap(err, "error creating CUDA provider options")
	}
	defer cuda.Destroy()

	if err := cuda.Update(p.options.optionMap()); err != nil {
		return "", errors.Wrap(err, "error converting CUDA options")
	}
	if err := options.AppendExecutionProviderCUDA(cuda); err != nil {
		return "", errors.Wrap(err, "error enabling CUDA")
	}
	return CUDAProviderBackend, nil
}
