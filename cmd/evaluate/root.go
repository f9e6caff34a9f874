package main

import (
	"context"
	"io"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/nvr-ai/fashion-eval/config"
	"github.com/nvr-ai/fashion-eval/dataset"
	"github.com/nvr-ai/fashion-eval/evaluation"
	"github.com/nvr-ai/fashion-eval/inference"
	"github.com/nvr-ai/fashion-eval/inference/providers"
	"github.com/nvr-ai/fashion-eval/log"
	"github.com/nvr-ai/fashion-eval/report"
)

// flags holds the command line overrides. Only flags set explicitly replace the
// value from the config file.
type flags struct {
	configPath  string
	model       string
	manifest    string
	images      string
	batchSize   int
	workers     int
	provider    string
	jsonPath    string
	predictions string
	history     string
	logLevel    string
	quiet       bool
}

// runFunc executes an evaluation with a resolved configuration.
type runFunc func(ctx context.Context, cfg *config.Config, stdout io.Writer) error

func newRootCommand(runner runFunc) *cobra.Command {
	f := &flags{}
	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Evaluate a multi-head fashion attribute classifier",
		Long: "Runs the model over every image of the test manifest and prints the confusion matrix,\n" +
			"top-1 accuracy and average per-class accuracy of the daily, gender and embellishment heads.",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := f.resolve(cmd)
			if err != nil {
				return err
			}
			return runner(cmd.Context(), cfg, cmd.OutOrStdout())
		},
	}

	fs := cmd.Flags()
	fs.StringVarP(&f.configPath, "config", "c", "", "Path to a YAML configuration file")
	fs.StringVar(&f.model, "model", config.DefaultModelPath, "Path to the ONNX model")
	fs.StringVar(&f.manifest, "manifest", config.DefaultManifestPath, "Path to the test CSV")
	fs.StringVar(&f.images, "images", config.DefaultImageDir, "Directory holding the test images")
	fs.IntVarP(&f.batchSize, "batch-size", "b", config.DefaultBatchSize, "Samples per forward pass")
	fs.IntVarP(&f.workers, "workers", "w", config.DefaultWorkers, "Parallel image decoders")
	fs.StringVar(&f.provider, "provider", string(providers.AutoProviderBackend), "Execution provider: auto, cpu, cuda, coreml or openvino")
	fs.StringVar(&f.jsonPath, "json", "", "Write a JSON report to this path")
	fs.StringVar(&f.predictions, "predictions", "", "Write per-sample predictions as CSV to this path")
	fs.StringVar(&f.history, "history", "", "Append the run to this SQLite database")
	fs.StringVar(&f.logLevel, "log-level", log.LevelInfo, "Log level: debug, info, warn or error")
	fs.BoolVarP(&f.quiet, "quiet", "q", false, "Print only the summary, without confusion matrices")

	cmd.AddCommand(newHistoryCommand())
	return cmd
}

// resolve loads the config file, if any, and applies the flags set on the command line.
func (f *flags) resolve(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.Default()
	if f.configPath != "" {
		var err error
		if cfg, err = config.Load(f.configPath); err != nil {
			return nil, err
		}
	}

	changed := cmd.Flags().Changed
	if changed("model") {
		cfg.Model.Path = f.model
	}
	if changed("manifest") {
		cfg.Dataset.Manifest = f.manifest
	}
	if changed("images") {
		cfg.Dataset.ImageDir = f.images
	}
	if changed("batch-size") {
		cfg.Loader.BatchSize = f.batchSize
	}
	if changed("workers") {
		cfg.Loader.Workers = f.workers
	}
	if changed("provider") {
		cfg.Device.Provider = f.provider
	}
	if changed("json") {
		cfg.Report.JSONPath = f.jsonPath
	}
	if changed("predictions") {
		cfg.Report.PredictionsPath = f.predictions
	}
	if changed("history") {
		cfg.Report.HistoryPath = f.history
	}
	if changed("log-level") {
		cfg.Log.Level = f.logLevel
	}
	if changed("quiet") {
		cfg.Report.Verbose = !f.quiet
	}

	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid configuration")
	}
	return cfg, nil
}

// run evaluates the model described by cfg and writes the report to stdout.
func run(ctx context.Context, cfg *config.Config, stdout io.Writer) (err error) {
	if err := log.SetLevel(cfg.Log.Level); err != nil {
		return err
	}

	model, err := cfg.BuildModel()
	if err != nil {
		return err
	}
	providerCfg, err := cfg.ProviderConfig()
	if err != nil {
		return err
	}

	samples, err := dataset.ReadManifest(cfg.Dataset.Manifest)
	if err != nil {
		return err
	}
	log.Infow("manifest loaded", "path", cfg.Dataset.Manifest, "samples", len(samples))

	decoder, err := dataset.NewDecoder(cfg.Dataset.Decoder)
	if err != nil {
		return err
	}
	loader, err := dataset.NewLoader(samples, cfg.Dataset.ImageDir, decoder, dataset.NewTransform(model.InputSize),
		dataset.LoaderOptions{
			BatchSize: cfg.Loader.BatchSize,
			Workers:   cfg.Loader.Workers,
			Prefetch:  cfg.Loader.Prefetch,
		})
	if err != nil {
		return err
	}

	session, err := inference.NewSession(model, providerCfg)
	if err != nil {
		return err
	}
	log.Infow("evaluation starting",
		"requested", providerCfg.Backend,
		"backend", session.Backend(),
		"batches", loader.NumBatches(),
		"logLevel", log.Level(),
	)
	defer func() {
		if cerr := session.Close(); cerr != nil {
			err = multierror.Append(err, errors.Wrap(cerr, "close session"))
		}
		if cerr := providers.DestroyEnvironment(); cerr != nil {
			err = multierror.Append(err, errors.Wrap(cerr, "destroy onnxruntime environment"))
		}
	}()

	evaluator := evaluation.NewEvaluator(loader, session, evaluation.Options{
		KeepRecords:      cfg.Report.PredictionsPath != "",
		ProgressInterval: cfg.Log.ProgressInterval,
	})
	res, err := evaluator.Run(ctx)
	if err != nil {
		return err
	}

	if err := report.WriteText(stdout, res, cfg.Report.Verbose); err != nil {
		return err
	}
	doc := report.NewDocument(res, report.Meta{Model: model.Path, Manifest: cfg.Dataset.Manifest})
	if cfg.Report.JSONPath != "" {
		if err := report.WriteJSON(cfg.Report.JSONPath, doc); err != nil {
			return err
		}
		log.Infof("report written to %s", cfg.Report.JSONPath)
	}
	if cfg.Report.HistoryPath != "" {
		if err := saveHistory(ctx, cfg.Report.HistoryPath, doc); err != nil {
			return err
		}
		log.Infow("run recorded", "runId", doc.RunID, "history", cfg.Report.HistoryPath)
	}
	if cfg.Report.PredictionsPath != "" {
		if err := report.WritePredictionsFile(cfg.Report.PredictionsPath, res.Records); err != nil {
			return err
		}
		log.Infof("predictions written to %s", cfg.Report.PredictionsPath)
	}
	return nil
}
