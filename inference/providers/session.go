package providers

import (
	"os"
	"sync"

	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"
)

var envMu sync.Mutex

// InitializeEnvironment loads the ONNX Runtime shared library once per process.
//
// Arguments:
//   - libraryPath: An explicit library path, or "" for the platform default.
//
// Returns:
//   - error: An error if the library is missing or fails to load.
func InitializeEnvironment(libraryPath string) error {
	envMu.Lock()
	defer envMu.Unlock()

	if ort.IsInitialized() {
		return nil
	}

	libPath := SharedLibPath(libraryPath)
	if _, err := os.Stat(libPath); err != nil {
		return errors.Wrapf(err, "ONNX Runtime library not found at %s", libPath)
	}
	ort.SetSharedLibraryPath(libPath)

	if err := ort.InitializeEnvironment(); err != nil {
		return errors.Wrap(err, "error initializing ORT environment")
	}
	return nil
}

// DestroyEnvironment releases the ONNX Runtime environment.
func DestroyEnvironment() error {
	envMu.Lock()
	defer envMu.Unlock()

	if !ort.IsInitialized() {
		return nil
	}
	return ort.DestroyEnvironment()
}

// NewSessionOptions creates session options with the provider registered.
//
// **The caller owns the returned options and must Destroy them.**
//
// Arguments:
//   - provider: The execution provider to register.
//   - threads: Intra-op thread count, 0 for the runtime default.
//
// Returns:
//   - *ort.SessionOptions: The session options.
//   - ProviderBackend: The backend that will execute the graph.
//   - error: An error if the options cannot be created.
func NewSessionOptions(provider ExecutionProvider, threads int) (*ort.SessionOptions, ProviderBackend, error) {
	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, "", errors.Wrap(err, "error creating ORT session options")
	}

	if threads > 0 {
		if err := options.SetIntraOpNumThreads(threads); err != nil {
			options.Destroy()
			return nil, "", errors.Wrap(err, "error setting intra-op threads")
		}
	}
	if err := options.SetGraphOptimizationLevel(ort.GraphOptimizationLevelEnableExtended); err != nil {
		options.Destroy()
		return nil, "", errors.Wrap(err, "error setting graph optimization level")
	}

	backend, err := provider.Apply(options)
	if err != nil {
		options.Destroy()
		return nil, "", err
	}
	return options, backend, nil
}
