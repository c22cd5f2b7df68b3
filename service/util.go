package service

import (
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"math"
	"os"

	_ "github.com/gen2brain/avif"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/disintegration/imaging"
)

var padColor = color.NRGBA{R: 114, G: 114, B: 114, A: 255}

// letterbox records how an image was fitted into the square model input.
type letterbox struct {
	scale  float32
	padX   float32
	padY   float32
	width  int
	height int
}

// toOriginal maps a box in model input space back onto the source image.
func (lb letterbox) toOriginal(x1, y1, x2, y2 float32) (float32, float32, float32, float32) {
	fx := func(v float32) float32 {
		return clamp((v-lb.padX)/lb.scale, 0, float32(lb.width))
	}
	fy := func(v float32) float32 {
		return clamp((v-lb.padY)/lb.scale, 0, float32(lb.height))
	}
	return fx(x1), fy(y1), fx(x2), fy(y2)
}

func clamp(v, lo, hi float32) float32 {
	return min(max(v, lo), hi)
}

func LoadImage(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open image: %w", err)
	}
	defer f.Close()

	img, err := imaging.Decode(f, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}
	return img, nil
}

// prepare image for model input
func Preprocess(img image.Image, size int) ([]float32, letterbox, error) {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w == 0 || h == 0 {
		return nil, letterbox{}, fmt.Errorf("%w: empty image", ErrInvalidImage)
	}

	scale := math.Min(float64(size)/float64(w), float64(size)/float64(h))
	nw := max(1, int(math.Round(float64(w)*scale)))
	nh := max(1, int(math.Round(float64(h)*scale)))
	padX := (size - nw) / 2
	padY := (size - nh) / 2

	canvas := imaging.New(size, size, padColor)
	resized := imaging.Resize(img, nw, nh, imaging.Linear)
	dst := imaging.Paste(canvas, resized, image.Pt(padX, padY))

	out := make([]float32, 3*size*size)
	plane := size * size
	for y := 0; y < size; y++ {
		row := dst.Pix[y*dst.Stride : y*dst.Stride+size*4]
		for x := 0; x < size; x++ {
			i := y*size + x
			p := row[x*4 : x*4+4]
			out[i] = float32(p[0]) / 255.0
			out[plane+i] = float32(p[1]) / 255.0
			out[2*plane+i] = float32(p[2]) / 255.0
		}
	}

	lb := letterbox{
		scale:  float32(scale),
		padX:   float32(padX),
		padY:   float32(padY),
		width:  w,
		height: h,
	}
	return out, lb, nil
}
