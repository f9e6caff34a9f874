// Package dataset - Labeled fashion attribute test set: manifest, image decoding,
// preprocessing and batch loading.
package dataset

import (
	"encoding/csv"
	"image"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/nvr-ai/fashion-eval/models"
)

// Manifest column names.
const (
	ColumnImageName = "image_name"
	ColumnXMin      = "BBox_xmin"
	ColumnYMin      = "BBox_ymin"
	ColumnXMax      = "BBox_xmax"
	ColumnYMax      = "BBox_ymax"
)

// Sample is one labeled image of the test set.
type Sample struct {
	// Index is the position of the sample in the manifest.
	Index int
	// ImageName is the file name relative to the image directory.
	ImageName string
	// BBox is the garment bounding box in pixel coordinates. The zero rectangle means
	// the whole image.
	BBox image.Rectangle
	// Labels holds the true class of every head.
	Labels [models.NumHeads]int
}

// ReadManifest loads the samples listed in a CSV manifest.
//
// Arguments:
//   - path: The CSV file.
//
// Returns:
//   - []Sample: The samples in file order.
//   - error: An error if the file is missing or a row is malformed.
func ReadManifest(path string) ([]Sample, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open manifest")
	}
	defer f.Close()

	samples, err := ParseManifest(f)
	if err != nil {
		return nil, errors.Wrapf(err, "manifest %s", path)
	}
	return samples, nil
}

// ParseManifest reads samples from CSV data with a header row. Columns are located by
// name, so their order and any extra columns do not matter.
func ParseManifest(r io.Reader) ([]Sample, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, errors.Wrap(err, "failed to read header")
	}
	cols, err := locateColumns(header)
	if err != nil {
		return nil, err
	}

	var samples []Sample
	for line := 2; ; line++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrapf(err, "line %d", line)
		}
		s, err := parseRecord(record, cols)
		if err != nil {
			return nil, errors.Wrapf(err, "line %d", line)
		}
		s.Index = len(samples)
		samples = append(samples, s)
	}
	return samples, nil
}

type columns struct {
	image  int
	bbox   [4]int
	labels [models.NumHeads]int
}

func locateColumns(header []string) (columns, error) {
	pos := make(map[string]int, len(header))
	for i, name := range header {
		pos[strings.TrimPrefix(strings.TrimSpace(name), "\ufeff")] = i
	}
	find := func(name string) (int, error) {
		i, ok := pos[name]
		if !ok {
			return 0, errors.Errorf("missing column %q", name)
		}
		return i, nil
	}

	var c columns
	var err error
	if c.image, err = find(ColumnImageName); err != nil {
		return c, err
	}
	for i, name := range []string{ColumnXMin, ColumnYMin, ColumnXMax, ColumnYMax} {
		if c.bbox[i], err = find(name); err != nil {
			return c, err
		}
	}
	for _, h := range models.Heads {
		if c.labels[h], err = find(h.Column()); err != nil {
			return c, err
		}
	}
	return c, nil
}

func parseRecord(record []string, cols columns) (Sample, error) {
	var s Sample

	s.ImageName = strings.TrimSpace(record[cols.image])
	if s.ImageName == "" {
		return s, errors.New("empty image name")
	}

	var box [4]int
	for i, col := range cols.bbox {
		v, err := strconv.ParseFloat(strings.TrimSpace(record[col]), 64)
		if err != nil {
			return s, errors.Wrap(err, "invalid bounding box")
		}
		box[i] = int(v)
	}
	s.BBox = image.Rect(box[0], box[1], box[2], box[3])

	for _, h := range models.Heads {
		v, err := strconv.Atoi(strings.TrimSpace(record[cols.labels[h]]))
		if err != nil {
			return s, errors.Wrapf(err, "invalid %s label", h)
		}
		if v < 0 || v >= h.NumClasses() {
			return s, errors.Errorf("%s label %d not in [0,%d)", h, v, h.NumClasses())
		}
		s.Labels[h] = v
	}
	return s, nil
}
