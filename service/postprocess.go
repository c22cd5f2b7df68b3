package service

import (
	"fmt"
	"sort"
)

type candidate struct {
	x1, y1, x2, y2 float32
	score          float32
	class          int
}

// decodeOutput extracts scored boxes above confThreshold from a raw model
// output with the given layout. rows is the number of predictions and
// attrs the per-prediction attribute count.
func decodeOutput(data []float32, layout outputLayout, rows, attrs int, confThreshold float32) ([]candidate, error) {
	if len(data) != rows*attrs {
		return nil, fmt.Errorf("unexpected output length: got %d, want %d", len(data), rows*attrs)
	}

	var at func(row, attr int) float32
	classStart := 5
	switch layout {
	case layoutV5:
		at = func(row, attr int) float32 { return data[row*attrs+attr] }
	case layoutV8:
		at = func(row, attr int) float32 { return data[attr*rows+row] }
		classStart = 4
	default:
		return nil, fmt.Errorf("unknown output layout %d", layout)
	}
	if attrs <= classStart {
		return nil, fmt.Errorf("output has %d attributes, need more than %d", attrs, classStart)
	}

	var out []candidate
	for i := 0; i < rows; i++ {
		objectness := float32(1)
		if layout == layoutV5 {
			objectness = at(i, 4)
			if objectness < confThreshold {
				continue
			}
		}

		best, bestScore := 0, float32(0)
		for c := classStart; c < attrs; c++ {
			if s := at(i, c); s > bestScore {
				best, bestScore = c-classStart, s
			}
		}
		score := objectness * bestScore
		if score < confThreshold {
			continue
		}

		cx, cy, w, h := at(i, 0), at(i, 1), at(i, 2), at(i, 3)
		out = append(out, candidate{
			x1:    cx - w/2,
			y1:    cy - h/2,
			x2:    cx + w/2,
			y2:    cy + h/2,
			score: score,
			class: best,
		})
	}
	return out, nil
}

func iou(a, b candidate) float32 {
	ix1, iy1 := max(a.x1, b.x1), max(a.y1, b.y1)
	ix2, iy2 := min(a.x2, b.x2), min(a.y2, b.y2)
	iw, ih := ix2-ix1, iy2-iy1
	if iw <= 0 || ih <= 0 {
		return 0
	}
	inter := iw * ih
	union := (a.x2-a.x1)*(a.y2-a.y1) + (b.x2-b.x1)*(b.y2-b.y1) - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}

// nms performs class-aware non-maximum suppression. The result is sorted by
// descending score and holds at most maxDet entries (0 means unlimited).
func nms(cands []candidate, iouThreshold float32, maxDet int) []candidate {
	sort.SliceStable(cands, func(i, j int) bool {
		return cands[i].score > cands[j].score
	})

	kept := make([]candidate, 0, len(cands))
	suppressed := make([]bool, len(cands))
	for i := range cands {
		if suppressed[i] {
			continue
		}
		kept = append(kept, cands[i])
		if maxDet > 0 && len(kept) == maxDet {
			break
		}
		for j := i + 1; j < len(cands); j++ {
			if suppressed[j] || cands[j].class != cands[i].class {
				continue
			}
			if iou(cands[i], cands[j]) > iouThreshold {
				suppressed[j] = true
			}
		}
	}
	return kept
}

func toDetections(cands []candidate, lb letterbox, labels []string) []Detection {
	out := make([]Detection, 0, len(cands))
	for _, c := range cands {
		x1, y1, x2, y2 := lb.toOriginal(c.x1, c.y1, c.x2, c.y2)
		out = append(out, Detection{
			XMin:       x1,
			YMin:       y1,
			XMax:       x2,
			YMax:       y2,
			Confidence: c.score,
			Class:      c.class,
			Name:       labelFor(labels, c.class),
		})
	}
	return out
}
