package service

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

// YOLO is a Detector backed by a fixed pool of ONNX Runtime sessions. Each
// session serves one request at a time.
type YOLO struct {
	pool      chan *Model
	models    []*Model
	labels    []string
	imageSize int
	layout    outputLayout
	rows      int
	attrs     int
	opts      Options
	closeOnce sync.Once
}

func NewYOLO(ctx context.Context, opts Options) (*YOLO, error) {
	if opts.Sessions < 1 {
		opts.Sessions = 1
	}
	if err := EnsureModel(ctx, opts.ModelUrl, opts.ModelPath); err != nil {
		return nil, fmt.Errorf("failed to prepare model: %w", err)
	}
	labels, err := LoadLabels(opts.LabelsPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read labels: %w", err)
	}

	inputs, outputs, err := ort.GetInputOutputInfo(opts.ModelPath)
	if err != nil {
		return nil, fmt.Errorf("failed to get model input/output info: %w", err)
	}
	if len(inputs) == 0 || len(outputs) == 0 {
		return nil, fmt.Errorf("model has %d inputs and %d outputs", len(inputs), len(outputs))
	}

	size := imageSizeFrom(inputs[0].Dimensions)
	layout, rows, attrs, err := resolveLayout(outputs[0].Dimensions, len(labels), size)
	if err != nil {
		return nil, err
	}
	classStart := 5
	if layout == layoutV8 {
		classStart = 4
	}
	if attrs-classStart != len(labels) {
		slog.Warn("Model class count does not match labels",
			slog.Int("classes", attrs-classStart),
			slog.Int("labels", len(labels)))
	}

	y := &YOLO{
		pool:      make(chan *Model, opts.Sessions),
		labels:    labels,
		imageSize: size,
		layout:    layout,
		rows:      rows,
		attrs:     attrs,
		opts:      opts,
	}
	threads := max(1, runtime.NumCPU()/opts.Sessions)
	for i := 0; i < opts.Sessions; i++ {
		m, err := newModel(opts.ModelPath, inputs[0].Name, outputs[0].Name, size, y.outputShape(), threads)
		if err != nil {
			y.Close()
			return nil, fmt.Errorf("failed to initialize session %d: %w", i, err)
		}
		y.models = append(y.models, m)
		y.pool <- m
	}

	slog.Info("Model loaded",
		slog.String("path", opts.ModelPath),
		slog.Int("input_size", size),
		slog.Int("predictions", rows),
		slog.Int("sessions", opts.Sessions))
	return y, nil
}

func newModel(path, inputName, outputName string, size int, outputShape ort.Shape, threads int) (*Model, error) {
	opts, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("failed to create session options: %w", err)
	}
	defer opts.Destroy()
	if err := opts.SetIntraOpNumThreads(threads); err != nil {
		return nil, fmt.Errorf("failed to set thread count: %w", err)
	}

	m := &Model{inputName: inputName, outputName: outputName}
	m.input, err = ort.NewEmptyTensor[float32](ort.NewShape(1, 3, int64(size), int64(size)))
	if err != nil {
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}
	m.output, err = ort.NewEmptyTensor[float32](outputShape)
	if err != nil {
		m.Destroy()
		return nil, fmt.Errorf("failed to create output tensor: %w", err)
	}

	m.session, err = ort.NewAdvancedSession(
		path,
		[]string{inputName},
		[]string{outputName},
		[]ort.Value{m.input},
		[]ort.Value{m.output},
		opts,
	)
	if err != nil {
		m.Destroy()
		return nil, fmt.Errorf("failed to create ONNX Runtime session: %w", err)
	}
	return m, nil
}

func (y *YOLO) outputShape() ort.Shape {
	if y.layout == layoutV8 {
		return ort.NewShape(1, int64(y.attrs), int64(y.rows))
	}
	return ort.NewShape(1, int64(y.rows), int64(y.attrs))
}

// Close releases every session. Detect must not be called afterwards.
func (y *YOLO) Close() {
	y.closeOnce.Do(func() {
		for _, m := range y.models {
			m.Destroy()
		}
		y.models = nil
	})
}

func imageSizeFrom(dims ort.Shape) int {
	if len(dims) == 4 && dims[2] > 0 && dims[2] == dims[3] {
		return int(dims[2])
	}
	return DefaultImageSize
}

// gridCells is the number of anchor points over the stride 8, 16 and 32 heads.
func gridCells(size int) int {
	n := 0
	for _, stride := range []int{8, 16, 32} {
		g := size / stride
		n += g * g
	}
	return n
}

// resolveLayout works out the output layout from its shape. Dynamic axes are
// filled in from the label count and input size.
func resolveLayout(dims ort.Shape, numLabels, size int) (outputLayout, int, int, error) {
	if len(dims) != 3 {
		return 0, 0, 0, fmt.Errorf("unsupported output shape %v", dims)
	}
	d1, d2 := int(dims[1]), int(dims[2])
	switch {
	case d1 > 0 && d2 > 0:
		if d2 > d1 {
			return layoutV8, d2, d1, nil
		}
		return layoutV5, d1, d2, nil
	case d1 > 0:
		return layoutV8, gridCells(size), d1, nil
	case d2 > 0:
		return layoutV5, 3 * gridCells(size), d2, nil
	default:
		return layoutV5, 3 * gridCells(size), 5 + numLabels, nil
	}
}
