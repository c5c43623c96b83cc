package chart

import (
	"image/color"
	"math"

	"emperror.dev/errors"

	"github.com/voluzi/pagepulse/pkg/model"
)

const (
	DefaultWidth     = 300
	DefaultHeight    = 150
	DefaultLineWidth = 2

	gridColumns = 4
	gridRows    = 3
)

// Palette holds the colours used by the renderer.
type Palette struct {
	Accent color.Color
	Alert  color.Color
	Border color.Color
}

func DefaultPalette() Palette {
	return Palette{
		Accent: color.NRGBA{R: 0x7a, G: 0xa2, B: 0xff, A: 0xff},
		Alert:  color.NRGBA{R: 0xff, G: 0x6b, B: 0x6b, A: 0xff},
		Border: color.NRGBA{R: 0xff, G: 0xff, B: 0xff, A: 0x14},
	}
}

// Renderer draws series onto surfaces. It keeps no drawing state between calls.
type Renderer struct {
	palette    Palette
	lineWidth  float64
	pixelRatio float64
}

type Option func(*Renderer)

func WithPalette(p Palette) Option {
	return func(r *Renderer) {
		r.palette = p
	}
}

// WithPixelRatio sets the device pixel ratio; it is rounded and never below 1.
func WithPixelRatio(ratio float64) Option {
	return func(r *Renderer) {
		r.pixelRatio = ratio
	}
}

func WithLineWidth(w float64) Option {
	return func(r *Renderer) {
		if w > 0 {
			r.lineWidth = w
		}
	}
}

func NewRenderer(opts ...Option) *Renderer {
	r := &Renderer{
		palette:    DefaultPalette(),
		lineWidth:  DefaultLineWidth,
		pixelRatio: 1,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// PixelRatio is the effective backing-store scale.
func (r *Renderer) PixelRatio() float64 {
	ratio := math.Round(r.pixelRatio)
	if math.IsNaN(ratio) || ratio < 1 {
		return 1
	}
	return ratio
}

// RenderSeries draws the frame, grid and, given at least two points, the series line.
func (r *Renderer) RenderSeries(series Series, points []model.Point, surface Surface) error {
	values := series.Values(points)
	stroke := r.palette.Accent
	if series == SeriesErrors {
		stroke = r.palette.Alert
	}
	return r.Draw(surface, values, series.Range(values), stroke)
}

// Draw renders values with the given range and stroke colour.
func (r *Renderer) Draw(surface Surface, values []float64, rng Range, stroke color.Color) error {
	ctx, w, h, err := r.setup(surface)
	if err != nil {
		return err
	}

	ctx.ClearRect(0, 0, w, h)
	r.drawGrid(ctx, w, h)
	if len(values) >= 2 {
		r.drawLine(ctx, w, h, values, rng, stroke)
	}
	r.drawFrame(ctx, w, h)
	return nil
}

// setup sizes the backing store by the pixel ratio and returns a context drawing in
// logical units.
func (r *Renderer) setup(surface Surface) (Context, float64, float64, error) {
	w, h := logicalSize(surface)
	ratio := r.PixelRatio()

	surface.Resize(int(math.Floor(w*ratio)), int(math.Floor(h*ratio)))

	ctx, err := context2D(surface)
	if err != nil {
		return nil, 0, 0, err
	}
	ctx.SetScale(ratio, ratio)
	return ctx, w, h, nil
}

func logicalSize(surface Surface) (float64, float64) {
	w, h := surface.LogicalSize()
	if !(w > 0) || math.IsInf(w, 0) {
		w = DefaultWidth
	}
	if !(h > 0) || math.IsInf(h, 0) {
		h = DefaultHeight
	}
	return w, h
}

func context2D(surface Surface) (Context, error) {
	ctx, err := surface.Context2D()
	if err == nil && ctx == nil {
		err = ErrSurfaceUnavailable
	}
	if err != nil {
		if !errors.Is(err, ErrSurfaceUnavailable) {
			err = &UnavailableError{Err: err}
		}
		return nil, err
	}
	return ctx, nil
}

func (r *Renderer) drawFrame(ctx Context, w, h float64) {
	ctx.SetStrokeColor(r.palette.Border)
	ctx.SetLineWidth(1)
	ctx.StrokeRect(0.5, 0.5, w-1, h-1)
}

// drawGrid draws evenly spaced vertical lines and horizontal lines at the thirds.
func (r *Renderer) drawGrid(ctx Context, w, h float64) {
	ctx.SetStrokeColor(r.palette.Border)
	ctx.SetLineWidth(1)

	for i := 1; i <= gridColumns; i++ {
		x := w * float64(i) / (gridColumns + 1)
		ctx.BeginPath()
		ctx.MoveTo(x+0.5, 0)
		ctx.LineTo(x+0.5, h)
		ctx.Stroke()
	}

	for i := 1; i < gridRows; i++ {
		y := h * float64(i) / gridRows
		ctx.BeginPath()
		ctx.MoveTo(0, y+0.5)
		ctx.LineTo(w, y+0.5)
		ctx.Stroke()
	}
}

// drawLine plots values as a polyline spread evenly across the width. Non-finite values
// break the line.
func (r *Renderer) drawLine(ctx Context, w, h float64, values []float64, rng Range, stroke color.Color) {
	step := w / math.Max(1, float64(len(values)-1))

	ctx.SetStrokeColor(stroke)
	ctx.SetLineWidth(r.lineWidth)
	ctx.SetLineJoin(LineJoinRound)
	ctx.SetLineCap(LineCapRound)

	ctx.BeginPath()
	penDown := false
	for i, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			penDown = false
			continue
		}
		x := float64(i) * step
		y := rng.Y(v, h)
		if penDown {
			ctx.LineTo(x, y)
		} else {
			ctx.MoveTo(x, y)
			penDown = true
		}
	}
	ctx.Stroke()
}
