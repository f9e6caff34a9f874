package providers

import (
	ort "github.com/yalue/onnxruntime_go"

	"github.com/nvr-ai/fashion-eval/log"
)

// AutoProvider prefers CUDA and silently degrades to the CPU provider when CUDA is not
// available in the loaded ONNX Runtime build or on the host.
type AutoProvider struct {
	cuda *CUDAProvider
}

// NewAutoProvider creates a provider that tries CUDA first.
func NewAutoProvider(cuda CUDAOptions) *AutoProvider {
	return &AutoProvider{cuda: NewCUDAProvider(cuda)}
}

// Backend returns AutoProviderBackend.
func (p *AutoProvider) Backend() ProviderBackend {
	return AutoProviderBackend
}

// Apply enables CUDA when possible.
func (p *AutoProvider) Apply(options *ort.SessionOptions) (ProviderBackend, error) {
	backend, err := p.cuda.Apply(options)
	if err != nil {
		log.Debugf("cuda unavailable, using cpu: %v", err)
		return CPUProviderBackend, nil
	}
	return backend, nil
}

// Fallback returns the provider to retry with after a session could not be created on
// resolved, or nil when requested allows no retry. Only auto degrades, from CUDA to CPU.
func Fallback(requested, resolved ProviderBackend) ExecutionProvider {
	if (requested == AutoProviderBackend || requested == "") && resolved == CUDAProviderBackend {
		return NewCPUProvider()
	}
	return nil
}

// OpenWithFallback calls open with provider. When that fails on a backend the requested
// one may degrade from, open is called once more with the fallback provider.
//
// Arguments:
//   - requested: The backend asked for in the configuration.
//   - provider: The provider built for requested.
//   - open: Creates the session and reports the backend it was bound to.
//
// Returns:
//   - T: The opened session.
//   - ProviderBackend: The backend of the opened session.
//   - error: The error of the last attempt.
func OpenWithFallback[T any](
	requested ProviderBackend,
	provider ExecutionProvider,
	open func(ExecutionProvider) (T, ProviderBackend, error),
) (T, ProviderBackend, error) {
	session, backend, err := open(provider)
	if err == nil {
		return session, backend, nil
	}

	fallback := Fallback(requested, backend)
	if fallback == nil {
		return session, backend, err
	}
	log.Warnf("%s session failed, retrying on %s: %v", backend, fallback.Backend(), err)
	return open(fallback)
}
