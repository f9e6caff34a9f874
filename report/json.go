package report

import (
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/nvr-ai/fashion-eval/evaluation"
	"github.com/nvr-ai/fashion-eval/metrics"
	"github.com/nvr-ai/fashion-eval/models"
)

// Document is the machine readable form of an evaluation run.
type Document struct {
	RunID      string           `json:"runId"`
	Model      string           `json:"model"`
	Manifest   string           `json:"manifest"`
	StartedAt  time.Time        `json:"startedAt"`
	FinishedAt time.Time        `json:"finishedAt"`
	Heads      []HeadDocument   `json:"heads"`
	Stats      evaluation.Stats `json:"stats"`
}

// HeadDocument holds the scores of one head.
type HeadDocument struct {
	Name    string `json:"name"`
	Classes int    `json:"numClasses"`
	*metrics.Result
	// Recall is nil for classes without support.
	Recall []*float64 `json:"recall"`
	Matrix [][]int    `json:"confusionMatrix"`
}

// Meta describes what was evaluated.
type Meta struct {
	Model    string
	Manifest string
}

// NewDocument assembles the JSON document of a run.
//
// Arguments:
//   - res: The evaluation results.
//   - meta: The model and manifest evaluated.
//
// Returns:
//   - *Document: The document, with a fresh run id.
func NewDocument(res *evaluation.Results, meta Meta) *Document {
	doc := &Document{
		RunID:      uuid.NewString(),
		Model:      meta.Model,
		Manifest:   meta.Manifest,
		StartedAt:  res.Stats.StartedAt,
		FinishedAt: res.Stats.StartedAt.Add(res.Stats.TotalDuration),
		Stats:      res.Stats,
		Heads:      make([]HeadDocument, 0, models.NumHeads),
	}
	for _, h := range models.Heads {
		r := res.Heads[h]
		if r == nil {
			continue
		}
		hd := HeadDocument{
			Name:    h.String(),
			Classes: h.NumClasses(),
			Result:  r,
			Recall:  make([]*float64, len(r.Recall)),
		}
		for i, v := range r.Recall {
			if !math.IsNaN(v) {
				hd.Recall[i] = &v
			}
		}
		if r.Matrix != nil {
			hd.Matrix = r.Matrix.Rows()
		}
		doc.Heads = append(doc.Heads, hd)
	}
	return doc
}

// WriteJSON writes the document to path, creating parent directories.
func WriteJSON(path string, doc *Document) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrap(err, "failed to create report directory")
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to marshal report")
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.Wrapf(err, "failed to write report %s", path)
	}
	return nil
}
