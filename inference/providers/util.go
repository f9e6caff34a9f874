package providers

import (
	"path/filepath"
	"runtime"
)

// DefaultLibraryDir holds the ONNX Runtime shared libraries shipped next to the binary.
const DefaultLibraryDir = "./third_party"

// SharedLibPath returns the path to the ONNX Runtime shared library for the current
// platform. A non-empty override is returned unchanged.
//
// Arguments:
//   - override: An explicit library path, or "".
//
// Returns:
//   - string: The path to the shared library.
func SharedLibPath(override string) string {
	if override != "" {
		return override
	}
	return filepath.Join(DefaultLibraryDir, libraryName(runtime.GOOS, runtime.GOARCH))
}

func libraryName(goos, goarch string) string {
	switch goos {
	case "windows":
		return "onnxruntime.dll"
	case "darwin":
		return "libonnxruntime.dylib"
	default:
		if goarch == "arm64" {
			return "onnxruntime_arm64.so"
		}
		return "onnxruntime.so"
	}
}
