package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nvr-ai/fashion-eval/config"
	"github.com/nvr-ai/fashion-eval/evaluation"
	"github.com/nvr-ai/fashion-eval/metrics"
	"github.com/nvr-ai/fashion-eval/report"
)

// execute runs the command with args and returns the configuration handed to the runner.
func execute(t *testing.T, args ...string) (*config.Config, error) {
	t.Helper()

	var got *config.Config
	cmd := newRootCommand(func(_ context.Context, cfg *config.Config, _ io.Writer) error {
		got = cfg
		return nil
	})
	cmd.SetArgs(args)
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})

	err := cmd.ExecuteContext(context.Background())
	return got, err
}

func TestDefaultsReproduceBaselineRun(t *testing.T) {
	cfg, err := execute(t)
	require.NoError(t, err)
	assert.Equal(t, config.Default(), cfg)
}

func TestFlagsOverrideConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "eval.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
model:
  path: /models/file.onnx
loader:
  batchSize: 32
  workers: 2
device:
  provider: cpu
`), 0o644))

	cfg, err := execute(t,
		"--config", path,
		"--batch-size", "16",
		"--manifest", "/data/test.csv",
		"--json", "/tmp/report.json",
		"--quiet",
	)
	require.NoError(t, err)

	assert.Equal(t, "/models/file.onnx", cfg.Model.Path)
	assert.Equal(t, 16, cfg.Loader.BatchSize)
	assert.Equal(t, 2, cfg.Loader.Workers)
	assert.Equal(t, "cpu", cfg.Device.Provider)
	assert.Equal(t, "/data/test.csv", cfg.Dataset.Manifest)
	assert.Equal(t, config.DefaultImageDir, cfg.Dataset.ImageDir)
	assert.Equal(t, "/tmp/report.json", cfg.Report.JSONPath)
	assert.False(t, cfg.Report.Verbose)
}

func TestInvalidInvocations(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"zero batch size", []string{"--batch-size", "0"}},
		{"negative workers", []string{"--workers", "-1"}},
		{"unknown provider", []string{"--provider", "tpu"}},
		{"missing config", []string{"--config", "/does/not/exist.yaml"}},
		{"unknown log level", []string{"--log-level", "verbos"}},
		{"positional argument", []string{"extra"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := execute(t, tt.args...)
			assert.Error(t, err)
			assert.Nil(t, cfg)
		})
	}
}

func TestHistoryCommand(t *testing.T) {
	db := filepath.Join(t.TempDir(), "runs.db")

	doc := &report.Document{
		RunID:     "run-1",
		Model:     "model_40.onnx",
		Manifest:  "test.csv",
		StartedAt: time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC),
		Stats:     evaluation.Stats{Samples: 8},
		Heads: []report.HeadDocument{
			{Name: "daily", Result: &metrics.Result{Top1: 0.5, ACSA: 0.25}},
		},
	}
	require.NoError(t, saveHistory(context.Background(), db, doc))

	cmd := newRootCommand(nil)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"history", "--db", db})
	require.NoError(t, cmd.ExecuteContext(context.Background()))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "Daily TOP-1")
	assert.Contains(t, lines[0], "Embellishment ACSA")
	assert.Contains(t, lines[1], "run-1")
	assert.Contains(t, lines[1], "0.50000")
	assert.Contains(t, lines[1], "0.25000")
	fields := strings.Fields(lines[1])
	assert.Equal(t, []string{"-", "-", "-", "-"}, fields[len(fields)-4:])
}

func TestHistoryCommandRequiresDB(t *testing.T) {
	cmd := newRootCommand(nil)
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"history"})
	assert.Error(t, cmd.ExecuteContext(context.Background()))
}

func TestHistoryShow(t *testing.T) {
	db := filepath.Join(t.TempDir(), "runs.db")
	doc := &report.Document{
		RunID:     "run-7",
		Model:     "model_40.onnx",
		Manifest:  "test.csv",
		StartedAt: time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC),
		Stats:     evaluation.Stats{Samples: 8},
		Heads: []report.HeadDocument{
			{Name: "gender", Classes: 5, Result: &metrics.Result{Top1: 0.75, ACSA: 0.5}},
		},
	}
	require.NoError(t, saveHistory(context.Background(), db, doc))

	t.Run("stored report", func(t *testing.T) {
		cmd := newRootCommand(nil)
		var out bytes.Buffer
		cmd.SetOut(&out)
		cmd.SetErr(&bytes.Buffer{})
		cmd.SetArgs([]string{"history", "show", "run-7", "--db", db})
		require.NoError(t, cmd.ExecuteContext(context.Background()))

		var got report.Document
		require.NoError(t, json.Unmarshal(out.Bytes(), &got))
		assert.Equal(t, "run-7", got.RunID)
		assert.Equal(t, "model_40.onnx", got.Model)
		require.Len(t, got.Heads, 1)
		assert.Equal(t, "gender", got.Heads[0].Name)
		assert.InDelta(t, 0.75, got.Heads[0].Top1, 1e-9)
	})

	t.Run("unknown run", func(t *testing.T) {
		cmd := newRootCommand(nil)
		cmd.SetOut(&bytes.Buffer{})
		cmd.SetErr(&bytes.Buffer{})
		cmd.SetArgs([]string{"history", "show", "run-8", "--db", db})
		err := cmd.ExecuteContext(context.Background())
		require.Error(t, err)
		assert.ErrorIs(t, err, os.ErrNotExist)
	})

	t.Run("missing run id", func(t *testing.T) {
		cmd := newRootCommand(nil)
		cmd.SetOut(&bytes.Buffer{})
		cmd.SetErr(&bytes.Buffer{})
		cmd.SetArgs([]string{"history", "show", "--db", db})
		assert.Error(t, cmd.ExecuteContext(context.Background()))
	})
}
