package report

import (
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/pkg/errors"

	"github.com/nvr-ai/fashion-eval/evaluation"
	"github.com/nvr-ai/fashion-eval/models"
)

// PredictionsHeader returns the header row of the predictions CSV.
func PredictionsHeader() []string {
	header := []string{"image_name"}
	for _, h := range models.Heads {
		header = append(header,
			h.Column(),
			h.Column()+"_pred",
			h.Column()+"_conf",
		)
	}
	return header
}

// WritePredictions writes one CSV row per sample: the image name followed by the true
// class, predicted class and confidence of every head.
//
// Arguments:
//   - w: The destination.
//   - records: The per-sample outcomes in manifest order.
//
// Returns:
//   - error: The first write error.
func WritePredictions(w io.Writer, records []evaluation.Record) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(PredictionsHeader()); err != nil {
		return errors.Wrap(err, "failed to write header")
	}

	row := make([]string, 0, 1+3*models.NumHeads)
	for _, r := range records {
		row = append(row[:0], r.ImageName)
		for _, h := range models.Heads {
			row = append(row,
				strconv.Itoa(r.Truth[h]),
				strconv.Itoa(r.Pred[h]),
				strconv.FormatFloat(float64(r.Confidence[h]), 'f', 5, 32),
			)
		}
		if err := cw.Write(row); err != nil {
			return errors.Wrapf(err, "failed to write %s", r.ImageName)
		}
	}

	cw.Flush()
	return errors.Wrap(cw.Error(), "failed to flush predictions")
}

// WritePredictionsFile writes the predictions CSV to path.
func WritePredictionsFile(path string, records []evaluation.Record) (err error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrap(err, "failed to create predictions directory")
	}

	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "failed to create %s", path)
	}
	defer func() {
		if cerr := f.Close(); err == nil && cerr != nil {
			err = errors.Wrapf(cerr, "failed to close %s", path)
		}
	}()

	return WritePredictions(f, records)
}
