package providers

import ort "github.com/yalue/onnxruntime_go"

// CPUProvider uses the default CPU execution provider. Nothing needs registering.
type CPUProvider struct{}

// NewCPUProvider creates a new CPU provider.
func NewCPUProvider() *CPUProvider {
	return &CPUProvider{}
}

// Backend returns the backend of the CPU provider.
func (p *CPUProvider) Backend() ProviderBackend {
	return CPUProviderBackend
}

// Apply leaves the session options untouched.
func (p *CPUProvider) Apply(_ *ort.SessionOptions) (ProviderBackend, error) {
	return CPUProviderBackend, nil
}
