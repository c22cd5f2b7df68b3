package service

import (
	"context"
	"errors"

	ort "github.com/yalue/onnxruntime_go"
)

// DefaultImageSize is used when the model reports a dynamic input shape.
const DefaultImageSize = 640

var (
	ErrInvalidImage        = errors.New("invalid image")
	ErrModelNotInitialized = errors.New("model not initialized")
)

// Detection is one object found in an image. Coordinates are pixels in the
// original image.
type Detection struct {
	XMin       float32 `json:"xmin"`
	YMin       float32 `json:"ymin"`
	XMax       float32 `json:"xmax"`
	YMax       float32 `json:"ymax"`
	Confidence float32 `json:"confidence"`
	Class      int     `json:"class"`
	Name       string  `json:"name"`
}

// Detector turns the image stored at imagePath into detections.
type Detector interface {
	Detect(ctx context.Context, imagePath string) ([]Detection, error)
}

type DetectorFunc func(ctx context.Context, imagePath string) ([]Detection, error)

func (f DetectorFunc) Detect(ctx context.Context, imagePath string) ([]Detection, error) {
	return f(ctx, imagePath)
}

type outputLayout int

const (
	// [1, N, 5+C]: cx, cy, w, h, objectness, class scores
	layoutV5 outputLayout = iota
	// [1, 4+C, N]: cx, cy, w, h, class scores
	layoutV8
)

type Model struct {
	session    *ort.AdvancedSession
	input      *ort.Tensor[float32]
	output     *ort.Tensor[float32]
	inputName  string
	outputName string
}

func (m *Model) Destroy() {
	if m.session != nil {
		m.session.Destroy()
	}
	if m.input != nil {
		m.input.Destroy()
	}
	if m.output != nil {
		m.output.Destroy()
	}
}

type Options struct {
	ModelPath  string
	ModelUrl   string
	LabelsPath string
	Sessions   int

	ConfThreshold float32
	IouThreshold  float32
	MaxDetections int
}
