package chart

import (
	"image"
	"image/color"
	"image/draw"
	"io"
	"math"

	"github.com/fogleman/gg"
)

// ImageSurface is an in-memory raster surface.
type ImageSurface struct {
	width  float64
	height float64
	dc     *gg.Context
}

// NewImageSurface returns a surface with the given logical size. Non-positive sizes fall
// back to the defaults when rendered.
func NewImageSurface(width, height float64) *ImageSurface {
	s := &ImageSurface{width: width, height: height}
	w, h := logicalSize(s)
	s.dc = gg.NewContext(int(w), int(h))
	return s
}

func (s *ImageSurface) LogicalSize() (float64, float64) {
	return s.width, s.height
}

func (s *ImageSurface) Resize(width, height int) {
	s.dc = gg.NewContext(max(width, 1), max(height, 1))
}

func (s *ImageSurface) Context2D() (Context, error) {
	if s.dc == nil {
		return nil, ErrSurfaceUnavailable
	}
	return &imageContext{dc: s.dc, scale: 1}, nil
}

// Image returns the backing store.
func (s *ImageSurface) Image() image.Image {
	return s.dc.Image()
}

func (s *ImageSurface) EncodePNG(w io.Writer) error {
	return s.dc.EncodePNG(w)
}

type imageContext struct {
	dc    *gg.Context
	scale float64
	width float64
}

func (c *imageContext) SetScale(sx, sy float64) {
	c.dc.Identity()
	c.dc.Scale(sx, sy)
	c.scale = math.Sqrt(math.Abs(sx * sy))
	if c.width > 0 {
		c.dc.SetLineWidth(c.width * c.scale)
	}
}

func (c *imageContext) ClearRect(x, y, width, height float64) {
	img, ok := c.dc.Image().(draw.Image)
	if !ok {
		return
	}
	x0, y0 := c.dc.TransformPoint(x, y)
	x1, y1 := c.dc.TransformPoint(x+width, y+height)
	rect := image.Rect(int(math.Floor(x0)), int(math.Floor(y0)), int(math.Ceil(x1)), int(math.Ceil(y1)))
	draw.Draw(img, rect.Intersect(img.Bounds()), image.Transparent, image.Point{}, draw.Src)
}

func (c *imageContext) SetStrokeColor(col color.Color) {
	c.dc.SetColor(col)
}

// SetLineWidth takes the width in logical units; gg strokes in device pixels.
func (c *imageContext) SetLineWidth(width float64) {
	c.width = width
	c.dc.SetLineWidth(width * c.scale)
}

func (c *imageContext) SetLineJoin(join LineJoin) {
	if join == LineJoinRound {
		c.dc.SetLineJoin(gg.LineJoinRound)
		return
	}
	c.dc.SetLineJoin(gg.LineJoinBevel)
}

func (c *imageContext) SetLineCap(lineCap LineCap) {
	if lineCap == LineCapRound {
		c.dc.SetLineCap(gg.LineCapRound)
		return
	}
	c.dc.SetLineCap(gg.LineCapButt)
}

func (c *imageContext) BeginPath() {
	c.dc.ClearPath()
}

func (c *imageContext) MoveTo(x, y float64) {
	c.dc.MoveTo(x, y)
}

func (c *imageContext) LineTo(x, y float64) {
	c.dc.LineTo(x, y)
}

func (c *imageContext) Stroke() {
	c.dc.Stroke()
}

func (c *imageContext) StrokeRect(x, y, width, height float64) {
	c.dc.ClearPath()
	c.dc.DrawRectangle(x, y, width, height)
	c.dc.Stroke()
}
