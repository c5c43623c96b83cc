package chart

import (
	"image/color"

	"emperror.dev/errors"
)

// ErrSurfaceUnavailable is returned when a surface cannot provide a drawing context.
const ErrSurfaceUnavailable = errors.Sentinel("drawing surface unavailable")

// UnavailableError reports why a surface could not provide a context. It matches
// ErrSurfaceUnavailable.
type UnavailableError struct {
	Err error
}

func (e *UnavailableError) Error() string {
	return ErrSurfaceUnavailable.Error() + ": " + e.Err.Error()
}

func (e *UnavailableError) Unwrap() error {
	return e.Err
}

func (e *UnavailableError) Is(target error) bool {
	return target == ErrSurfaceUnavailable
}

type LineJoin int

const (
	LineJoinMiter LineJoin = iota
	LineJoinRound
)

type LineCap int

const (
	LineCapButt LineCap = iota
	LineCapRound
)

// Surface is a drawing target with an intended logical size and a physical backing store.
type Surface interface {
	// LogicalSize is the intended display size in logical units.
	LogicalSize() (width, height float64)
	// Resize sets the backing store size in physical pixels, discarding its content.
	Resize(width, height int)
	// Context2D returns the immediate-mode drawing context of the surface.
	Context2D() (Context, error)
}

// Context is an immediate-mode 2-D drawing API. Coordinates are transformed by the current
// scale before reaching the backing store.
type Context interface {
	SetScale(sx, sy float64)
	ClearRect(x, y, width, height float64)
	SetStrokeColor(c color.Color)
	SetLineWidth(width float64)
	SetLineJoin(join LineJoin)
	SetLineCap(lineCap LineCap)
	BeginPath()
	MoveTo(x, y float64)
	LineTo(x, y float64)
	Stroke()
	StrokeRect(x, y, width, height float64)
}
