package dataset

import (
	"image"
	_ "image/jpeg" // register JPEG
	_ "image/png"  // register PNG
	"os"

	_ "github.com/chai2010/webp" // register WebP
	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

// Decoder names.
const (
	DecoderNative = "native"
	DecoderOpenCV = "opencv"
)

// Decoder reads an image file into memory.
type Decoder interface {
	Decode(path string) (image.Image, error)
}

// NewDecoder returns the decoder registered under name.
func NewDecoder(name string) (Decoder, error) {
	switch name {
	case DecoderNative, "":
		return NativeDecoder{}, nil
	case DecoderOpenCV:
		return OpenCVDecoder{}, nil
	default:
		return nil, errors.Errorf("unknown image decoder: %q", name)
	}
}

// NativeDecoder uses the Go image decoders (JPEG, PNG and WebP).
type NativeDecoder struct{}

// Decode reads and decodes the file at path.
func (NativeDecoder) Decode(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open image")
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to decode image %s", path)
	}
	return img, nil
}

// OpenCVDecoder reads images through OpenCV, which also covers formats such as TIFF.
type OpenCVDecoder struct{}

// Decode reads the file at path as a 3 channel color image.
func (OpenCVDecoder) Decode(path string) (image.Image, error) {
	mat := gocv.IMRead(path, gocv.IMReadColor)
	defer mat.Close()

	if mat.Empty() {
		return nil, errors.Errorf("failed to read image %s", path)
	}
	// ToImage converts the BGR Mat to an RGBA image.
	img, err := mat.ToImage()
	if err != nil {
		return nil, errors.Wrapf(err, "failed to convert image %s", path)
	}
	return img, nil
}
