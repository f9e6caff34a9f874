// Package config - Evaluation run configuration.
package config

import (
	"os"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/nvr-ai/fashion-eval/dataset"
	"github.com/nvr-ai/fashion-eval/inference/providers"
	"github.com/nvr-ai/fashion-eval/log"
	"github.com/nvr-ai/fashion-eval/models"
)

// Default paths are relative to the working directory.
const (
	DefaultModelPath    = "./models/Baseline_ResNet_emo/model_40.onnx"
	DefaultManifestPath = "./Dataset/Fashion-How23_sub1_test_edit.csv"
	DefaultImageDir     = "./Dataset/test/"
	DefaultBatchSize    = 128
	DefaultWorkers      = 4
	DefaultPrefetch     = 2

	DefaultProgressInterval = 10 * time.Second
)

// Config is the full configuration of an evaluation run.
type Config struct {
	Model   ModelConfig   `json:"model"   yaml:"model"`
	Dataset DatasetConfig `json:"dataset" yaml:"dataset"`
	Loader  LoaderConfig  `json:"loader"  yaml:"loader"`
	Device  DeviceConfig  `json:"device"  yaml:"device"`
	Report  ReportConfig  `json:"report"  yaml:"report"`
	Log     LogConfig     `json:"log"     yaml:"log"`
}

// ModelConfig describes the ONNX model.
type ModelConfig struct {
	Name      string        `json:"name"      yaml:"name"`
	Path      string        `json:"path"      yaml:"path"`
	InputName string        `json:"inputName" yaml:"inputName"`
	InputSize int           `json:"inputSize" yaml:"inputSize"`
	Outputs   OutputsConfig `json:"outputs"   yaml:"outputs"`
}

// OutputsConfig names the output node of each head.
type OutputsConfig struct {
	Daily         string `json:"daily"         yaml:"daily"`
	Gender        string `json:"gender"        yaml:"gender"`
	Embellishment string `json:"embellishment" yaml:"embellishment"`
}

// DatasetConfig locates the labeled test set.
type DatasetConfig struct {
	Manifest string `json:"manifest" yaml:"manifest"`
	ImageDir string `json:"imageDir" yaml:"imageDir"`
	Decoder  string `json:"decoder"  yaml:"decoder"`
}

// LoaderConfig controls batching and parallel decoding.
type LoaderConfig struct {
	BatchSize int `json:"batchSize" yaml:"batchSize"`
	Workers   int `json:"workers"   yaml:"workers"`
	Prefetch  int `json:"prefetch"  yaml:"prefetch"`
}

// DeviceConfig selects the execution provider.
type DeviceConfig struct {
	Provider    string `json:"provider"    yaml:"provider"`
	DeviceID    int    `json:"deviceID"    yaml:"deviceID"`
	LibraryPath string `json:"libraryPath" yaml:"libraryPath"`
	Threads     int    `json:"threads"     yaml:"threads"`

	CUDA     providers.CUDAOptions     `json:"cuda"     yaml:"cuda"`
	CoreML   providers.CoreMLOptions   `json:"coreml"   yaml:"coreml"`
	OpenVINO providers.OpenVINOOptions `json:"openvino" yaml:"openvino"`
}

// ReportConfig controls what is written at the end of the run.
type ReportConfig struct {
	// Verbose prints each confusion matrix before the summary.
	Verbose         bool   `json:"verbose"         yaml:"verbose"`
	JSONPath        string `json:"jsonPath"        yaml:"jsonPath"`
	PredictionsPath string `json:"predictionsPath" yaml:"predictionsPath"`
	// HistoryPath is a SQLite database every run is appended to.
	HistoryPath string `json:"historyPath" yaml:"historyPath"`
}

// LogConfig sets the log level and how often progress is logged.
type LogConfig struct {
	Level            string        `json:"level"            yaml:"level"`
	ProgressInterval time.Duration `json:"progressInterval" yaml:"progressInterval"`
}

// Default returns the configuration that reproduces the baseline test run.
func Default() *Config {
	return &Config{
		Model: ModelConfig{
			Name:      models.DefaultModelName,
			Path:      DefaultModelPath,
			InputName: models.DefaultInputName,
			InputSize: models.DefaultInputSize,
			Outputs: OutputsConfig{
				Daily:         models.DefaultOutputs[models.HeadDaily],
				Gender:        models.DefaultOutputs[models.HeadGender],
				Embellishment: models.DefaultOutputs[models.HeadEmbellishment],
			},
		},
		Dataset: DatasetConfig{
			Manifest: DefaultManifestPath,
			ImageDir: DefaultImageDir,
			Decoder:  dataset.DecoderNative,
		},
		Loader: LoaderConfig{
			BatchSize: DefaultBatchSize,
			Workers:   DefaultWorkers,
			Prefetch:  DefaultPrefetch,
		},
		Device: DeviceConfig{
			Provider: string(providers.AutoProviderBackend),
		},
		Report: ReportConfig{
			Verbose: true,
		},
		Log: LogConfig{
			Level:            log.LevelInfo,
			ProgressInterval: DefaultProgressInterval,
		},
	}
}

// Load reads a YAML file on top of the defaults. Fields missing from the file keep
// their default value.
//
// Arguments:
//   - path: The YAML file to read.
//
// Returns:
//   - *Config: The merged configuration.
//   - error: An error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read config %s", path)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrapf(err, "failed to parse config %s", path)
	}
	return cfg, nil
}

// Validate rejects configurations that cannot run.
func (c *Config) Validate() error {
	if c.Model.Path == "" {
		return errors.New("model.path is required")
	}
	if c.Dataset.Manifest == "" {
		return errors.New("dataset.manifest is required")
	}
	switch c.Dataset.Decoder {
	case dataset.DecoderNative, dataset.DecoderOpenCV:
	default:
		return errors.Errorf("dataset.decoder must be %q or %q, got %q",
			dataset.DecoderNative, dataset.DecoderOpenCV, c.Dataset.Decoder)
	}
	if c.Loader.BatchSize <= 0 {
		return errors.Errorf("loader.batchSize must be positive, got %d", c.Loader.BatchSize)
	}
	if c.Loader.Workers <= 0 {
		return errors.Errorf("loader.workers must be positive, got %d", c.Loader.Workers)
	}
	if c.Loader.Prefetch < 0 {
		return errors.Errorf("loader.prefetch must not be negative, got %d", c.Loader.Prefetch)
	}
	if _, err := log.ParseLevel(c.Log.Level); err != nil {
		return errors.Wrap(err, "log.level")
	}
	if c.Log.ProgressInterval < 0 {
		return errors.Errorf("log.progressInterval must not be negative, got %s", c.Log.ProgressInterval)
	}
	if _, err := providers.ParseBackend(c.Device.Provider); err != nil {
		return errors.Wrap(err, "device.provider")
	}
	if err := c.Device.CUDA.Validate(); err != nil {
		return errors.Wrap(err, "device.cuda")
	}
	return nil
}

// BuildModel converts the model section into a validated model description.
func (c *Config) BuildModel() (models.Model, error) {
	return models.NewModel(models.Model{
		Name:      c.Model.Name,
		Path:      c.Model.Path,
		InputName: c.Model.InputName,
		InputSize: c.Model.InputSize,
		Outputs: map[models.Head]string{
			models.HeadDaily:         c.Model.Outputs.Daily,
			models.HeadGender:        c.Model.Outputs.Gender,
			models.HeadEmbellishment: c.Model.Outputs.Embellishment,
		},
	})
}

// ProviderConfig converts the device section into provider options.
func (c *Config) ProviderConfig() (providers.Config, error) {
	backend, err := providers.ParseBackend(c.Device.Provider)
	if err != nil {
		return providers.Config{}, err
	}
	return providers.Config{
		Backend:     backend,
		DeviceID:    c.Device.DeviceID,
		LibraryPath: c.Device.LibraryPath,
		Threads:     c.Device.Threads,
		CUDA:        c.Device.CUDA,
		CoreML:      c.Device.CoreML,
		OpenVINO:    c.Device.OpenVINO,
	}, nil
}
