package providers

import (
	"fmt"

	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"
)

const (
	// OpenVINOProviderBackend uses Intel OpenVINO for inference.
	OpenVINOProviderBackend ProviderBackend = "openvino"
)

// OpenVINOOptions contains arguments for the OpenVINO provider.
// See:
// https://onnxruntime.ai/docs/execution-providers/OpenVINO-ExecutionProvider.html#summary-of-options
type OpenVINOOptions struct {
	// DeviceID is derived from Config.DeviceID.
	DeviceID string `json:"-" yaml:"-"`
	// Overrides the accelerator hardware type (CPU, GPU, NPU) at runtime.
	DeviceType string `json:"deviceType" yaml:"deviceType"`
	// FP32, FP16 or ACCURACY. Empty keeps the device default.
	Precision string `json:"precision" yaml:"precision"`
	// Overrides the default number of inference threads.
	NumOfThreads int `json:"numOfThreads" yaml:"numOfThreads"`
	// Rewrites dynamic shaped models to static shape at runtime.
	DisableDynamicShapes bool `json:"disableDynamicShapes" yaml:"disableDynamicShapes"`
}

func (o OpenVINOOptions) optionMap() map[string]string {
	m := map[string]string{
		"disable_dynamic_shapes": fmt.Sprintf("%t", o.DisableDynamicShapes),
	}
	if o.DeviceID != "" {
		m["device_id"] = o.DeviceID
	}
	if o.DeviceType != "" {
		m["device_type"] = o.DeviceType
	}
	if o.Precision != "" {
		m["precision"] = o.Precision
	}
	if o.NumOfThreads > 0 {
		m["num_of_threads"] = fmt.Sprintf("%d", o.NumOfThreads)
	}
	return m
}

// OpenVINOProvider implements the ExecutionProvider interface.
type OpenVINOProvider struct {
	options OpenVINOOptions
}

// NewOpenVINOProvider creates a new OpenVINO provider.
func NewOpenVINOProvider(options OpenVINOOptions) *OpenVINOProvider {
	return &OpenVINOProvider{options: options}
}

// Backend returns the backend of the OpenVINO provider.
func (p *OpenVINOProvider) Backend() ProviderBackend {
	return OpenVINOProviderBackend
}

// Apply appends the OpenVINO execution provider to the session options.
func (p *OpenVINOProvider) Apply(options *ort.SessionOptions) (ProviderBackend, error) {
	if err := options.AppendExecutionProviderOpenVINO(p.options.optionMap()); err != nil {
		return "", errors.Wrap(err, "error enabling OpenVINO")
	}
	return OpenVINOProviderBackend, nil
}

func deviceName(id int) string {
	if id <= 0 {
		return ""
	}
	return fmt.Sprintf("GPU.%d", id)
}
