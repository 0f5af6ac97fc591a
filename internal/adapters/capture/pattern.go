package capture

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"sync/atomic"

	"github.com/dkeye/Desk/internal/domain"
)

const (
	DefaultWidth  = 1280
	DefaultHeight = 720
	barWidth      = 32
)

// PatternCapturer renders a moving test pattern instead of a real screen.
// Frame size follows the quality preset scale.
type PatternCapturer struct {
	Width  int
	Height int

	frame atomic.Uint64
}

func NewPatternCapturer(width, height int) *PatternCapturer {
	if width <= 0 || height <= 0 {
		width, height = DefaultWidth, DefaultHeight
	}
	return &PatternCapturer{Width: width, Height: height}
}

// Size returns the frame dimensions for q.
func (p *PatternCapturer) Size(q domain.Quality) (int, int) {
	scale := q.Preset().Scale
	w := max(int(float64(p.Width)*scale), 1)
	h := max(int(float64(p.Height)*scale), 1)
	return w, h
}

func (p *PatternCapturer) Capture(ctx context.Context, q domain.Quality) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	w, h := p.Size(q)
	n := p.frame.Add(1)

	img := image.NewRGBA(image.Rect(0, 0, w, h))
	bar := int(n*8) % w
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := color.RGBA{R: uint8(x * 255 / w), G: uint8(y * 255 / h), B: 96, A: 255}
			if x >= bar && x < bar+barWidth {
				c = color.RGBA{R: 255, G: 255, B: 255, A: 255}
			}
			img.SetRGBA(x, y, c)
		}
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: q.Preset().JPEGQuality}); err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}
	return buf.Bytes(), nil
}
