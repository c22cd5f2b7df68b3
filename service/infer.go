package service

import (
	"context"
	"fmt"
)

func (y *YOLO) acquire(ctx context.Context) (*Model, error) {
	if y == nil || y.pool == nil {
		return nil, ErrModelNotInitialized
	}
	select {
	case m := <-y.pool:
		return m, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (y *YOLO) release(m *Model) {
	y.pool <- m
}

func (y *YOLO) Detect(ctx context.Context, imagePath string) ([]Detection, error) {
	img, err := LoadImage(imagePath)
	if err != nil {
		return nil, err
	}
	inputData, lb, err := Preprocess(img, y.imageSize)
	if err != nil {
		return nil, err
	}

	m, err := y.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer y.release(m)

	copy(m.input.GetData(), inputData)
	if err := m.session.Run(); err != nil {
		return nil, fmt.Errorf("model inference: %w", err)
	}
	return y.postprocess(m.output.GetData(), lb)
}

func (y *YOLO) postprocess(raw []float32, lb letterbox) ([]Detection, error) {
	cands, err := decodeOutput(raw, y.layout, y.rows, y.attrs, y.opts.ConfThreshold)
	if err != nil {
		return nil, fmt.Errorf("process predictions: %w", err)
	}
	kept := nms(cands, y.opts.IouThreshold, y.opts.MaxDetections)
	return toDetections(kept, lb, y.labels), nil
}
