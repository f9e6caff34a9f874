package providers

import (
	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"
)

const (
	// CoreMLProviderBackend uses Apple CoreML for macOS acceleration.
	CoreMLProviderBackend ProviderBackend = "coreml"
)

// CoreML flags, see coreml_provider_factory.h.
const (
	coreMLFlagUseCPUOnly           uint32 = 0x001
	coreMLFlagOnlyWholeGraph       uint32 = 0x002
	coreMLFlagOnlyStaticInputShape uint32 = 0x008
)

// CoreMLOptions contains arguments for the CoreML provider.
// See: https://onnxruntime.ai/docs/execution-providers/CoreML-ExecutionProvider.html
type CoreMLOptions struct {
	// CPUOnly limits CoreML to running on CPU only.
	CPUOnly bool `json:"cpuOnly" yaml:"cpuOnly"`
	// WholeGraphOnly only enables CoreML when it can take the whole graph.
	WholeGraphOnly bool `json:"wholeGraphOnly" yaml:"wholeGraphOnly"`
	// RequireStaticInputShapes only allows nodes with static input shapes. The batch
	// dimension of the evaluation input is dynamic, so this is normally off.
	RequireStaticInputShapes bool `json:"requireStaticInputShapes" yaml:"requireStaticInputShapes"`
}

func (o CoreMLOptions) flags() uint32 {
	var f uint32
	if o.CPUOnly {
		f |= coreMLFlagUseCPUOnly
	}
	if o.WholeGraphOnly {
		f |= coreMLFlagOnlyWholeGraph
	}
	if o.RequireStaticInputShapes {
		f |= coreMLFlagOnlyStaticInputShape
	}
	return f
}

// CoreMLProvider implements the ExecutionProvider interface.
type CoreMLProvider struct {
	options CoreMLOptions
}

// NewCoreMLProvider creates a new CoreML provider.
func NewCoreMLProvider(options CoreMLOptions) *CoreMLProvider {
	return &CoreMLProvider{options: options}
}

// Backend returns the backend of the CoreML provider.
func (p *CoreMLProvider) Backend() ProviderBackend {
	return CoreMLProviderBackend
}

// Apply appends the CoreML execution provider to the session options.
func (p *CoreMLProvider) Apply(options *ort.SessionOptions) (ProviderBackend, error) {
	if err := options.AppendExecutionProviderCoreML(p.options.flags()); err != nil {
		return "", errors.Wrap(err, "error enabling CoreML")
	}
	return CoreMLProviderBackend, nil
}
