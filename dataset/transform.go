package dataset

import (
	"image"
	"image/draw"
	"math"

	"github.com/nfnt/resize"
	"github.com/pkg/errors"
)

// ImageNet channel statistics the baseline was trained with.
var (
	ImageNetMean = [3]float32{0.485, 0.456, 0.406}
	ImageNetStd  = [3]float32{0.229, 0.224, 0.225}
)

// Transform turns a decoded image into the normalized model input.
//
// The garment is cropped to its bounding box, scaled so its longest side equals Size,
// centred on a black Size×Size canvas, scaled to [0,1], standardized per channel and
// laid out as CHW.
type Transform struct {
	// Size is the square output resolution.
	Size int
	// Mean and Std standardize each RGB channel after scaling to [0,1].
	Mean [3]float32
	Std  [3]float32
	// Interpolation is the resampling filter used for scaling.
	Interpolation resize.InterpolationFunction
}

// NewTransform creates the baseline transform for the given input size.
func NewTransform(size int) *Transform {
	return &Transform{
		Size:          size,
		Mean:          ImageNetMean,
		Std:           ImageNetStd,
		Interpolation: resize.Bilinear,
	}
}

// TensorLen returns the number of values Apply writes.
func (t *Transform) TensorLen() int {
	return 3 * t.Size * t.Size
}

// Apply preprocesses img into dst.
//
// Arguments:
//   - img: The decoded image.
//   - box: The bounding box in image pixel coordinates, or the zero rectangle.
//   - dst: The destination, TensorLen() values.
//
// Returns:
//   - error: An error if dst has the wrong size or the box misses the image.
func (t *Transform) Apply(img image.Image, box image.Rectangle, dst []float32) error {
	if len(dst) != t.TensorLen() {
		return errors.Errorf("destination holds %d floats, needs %d", len(dst), t.TensorLen())
	}

	cropped, err := crop(img, box)
	if err != nil {
		return err
	}
	canvas := t.letterbox(cropped)
	t.toTensor(canvas, dst)
	return nil
}

// crop copies the part of img inside box to a new image at the origin. Box coordinates
// are relative to the image origin.
func crop(img image.Image, box image.Rectangle) (image.Image, error) {
	bounds := img.Bounds()
	r := bounds
	if box != (image.Rectangle{}) {
		r = box.Canon().Add(bounds.Min).Intersect(bounds)
		if r.Empty() {
			return nil, errors.Errorf("bounding box %v outside image %v", box, bounds)
		}
	}

	dst := image.NewRGBA(image.Rect(0, 0, r.Dx(), r.Dy()))
	draw.Draw(dst, dst.Bounds(), img, r.Min, draw.Src)
	return dst, nil
}

// letterbox scales img to fit Size×Size keeping its aspect ratio and centres it on black.
func (t *Transform) letterbox(img image.Image) *image.RGBA {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	scale := float64(t.Size) / math.Max(float64(w), float64(h))

	newWidth := max(1, int(math.Round(float64(w)*scale)))
	newHeight := max(1, int(math.Round(float64(h)*scale)))
	resized := resize.Resize(uint(newWidth), uint(newHeight), img, t.Interpolation)

	padLeft := (t.Size - newWidth) / 2
	padTop := (t.Size - newHeight) / 2

	canvas := image.NewRGBA(image.Rect(0, 0, t.Size, t.Size))
	draw.Draw(canvas, canvas.Bounds(), image.Black, image.Point{}, draw.Src)
	draw.Draw(canvas, image.Rect(padLeft, padTop, padLeft+newWidth, padTop+newHeight),
		resized, resized.Bounds().Min, draw.Src)
	return canvas
}

// toTensor writes the standardized CHW values of img into dst.
func (t *Transform) toTensor(img *image.RGBA, dst []float32) {
	plane := t.Size * t.Size
	for y := 0; y < t.Size; y++ {
		for x := 0; x < t.Size; x++ {
			off := img.PixOffset(x, y)
			i := y*t.Size + x
			for c := 0; c < 3; c++ {
				v := float32(img.Pix[off+c]) / 255.0
				dst[c*plane+i] = (v - t.Mean[c]) / t.Std[c]
			}
		}
	}
}
