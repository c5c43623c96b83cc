package chart

import (
	"image"
	"image/color"
	"math"

	ui "github.com/gizak/termui/v3"
	"github.com/gizak/termui/v3/drawille"
)

// TermSurface draws onto a terminal widget using braille dots, two by four per cell.
type TermSurface struct {
	*ui.Canvas
}

func NewTermSurface(title string) *TermSurface {
	c := ui.NewCanvas()
	c.Title = title
	return &TermSurface{Canvas: c}
}

// LogicalSize is the inner area of the widget in braille dots.
func (s *TermSurface) LogicalSize() (float64, float64) {
	if s.Canvas == nil {
		return 0, 0
	}
	return float64(s.Inner.Dx() * 2), float64(s.Inner.Dy() * 4)
}

// Resize only discards the content; the size follows the widget layout.
func (s *TermSurface) Resize(int, int) {
	if s.Canvas == nil {
		return
	}
	s.Canvas.Canvas = *drawille.NewCanvas()
}

func (s *TermSurface) Context2D() (Context, error) {
	if s.Canvas == nil {
		return nil, ErrSurfaceUnavailable
	}
	return &termContext{surface: s, sx: 1, sy: 1, color: ui.ColorWhite}, nil
}

type termContext struct {
	surface *TermSurface
	sx, sy  float64
	color   ui.Color
	paths   [][]image.Point
}

func (c *termContext) SetScale(sx, sy float64) {
	c.sx, c.sy = sx, sy
}

// ClearRect clears the whole canvas when the rect covers it; braille cells are shared
// between neighbouring dots so partial clears are not supported.
func (c *termContext) ClearRect(x, y, width, height float64) {
	w, h := c.surface.LogicalSize()
	if x <= 0 && y <= 0 && x+width >= w/c.sx && y+height >= h/c.sy {
		c.surface.Canvas.Canvas = *drawille.NewCanvas()
	}
}

func (c *termContext) SetStrokeColor(col color.Color) {
	c.color = termColor(col)
}

func (c *termContext) SetLineWidth(float64) {}

func (c *termContext) SetLineJoin(LineJoin) {}

func (c *termContext) SetLineCap(LineCap) {}

func (c *termContext) BeginPath() {
	c.paths = nil
}

func (c *termContext) MoveTo(x, y float64) {
	c.paths = append(c.paths, []image.Point{c.dot(x, y)})
}

func (c *termContext) LineTo(x, y float64) {
	if len(c.paths) == 0 {
		c.MoveTo(x, y)
		return
	}
	last := len(c.paths) - 1
	c.paths[last] = append(c.paths[last], c.dot(x, y))
}

func (c *termContext) Stroke() {
	for _, path := range c.paths {
		if len(path) == 1 {
			c.surface.SetPoint(path[0], c.color)
		}
		for i := 1; i < len(path); i++ {
			c.surface.SetLine(path[i-1], path[i], c.color)
		}
	}
}

func (c *termContext) StrokeRect(x, y, width, height float64) {
	c.BeginPath()
	c.MoveTo(x, y)
	c.LineTo(x+width, y)
	c.LineTo(x+width, y+height)
	c.LineTo(x, y+height)
	c.LineTo(x, y)
	c.Stroke()
}

// dot converts logical coordinates into absolute braille dot coordinates, clamped to the
// widget's inner area.
func (c *termContext) dot(x, y float64) image.Point {
	inner := c.surface.Inner
	w, h := inner.Dx()*2, inner.Dy()*4
	px := clamp(int(math.Round(x*c.sx)), 0, w-1)
	py := clamp(int(math.Round(y*c.sy)), 0, h-1)
	return image.Pt(inner.Min.X*2+px, inner.Min.Y*4+py)
}

func clamp(v, lo, hi int) int {
	if hi < lo {
		return lo
	}
	return min(max(v, lo), hi)
}

// termColor picks the closest terminal colour for c.
func termColor(c color.Color) ui.Color {
	r, g, b, a := c.RGBA()
	switch {
	case a < 0x4000:
		return ui.ColorWhite
	case r > g && r > b:
		return ui.ColorRed
	case b > r && b > g:
		return ui.ColorCyan
	case g > r && g > b:
		return ui.ColorGreen
	}
	return ui.ColorWhite
}
