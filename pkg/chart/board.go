package chart

import (
	"emperror.dev/errors"

	"github.com/voluzi/pagepulse/pkg/model"
)

// Board binds a surface to each charted series.
type Board struct {
	renderer *Renderer
	series   []Series
	surfaces map[Series]Surface
}

// NewBoard checks that every surface can provide a drawing context, failing with
// ErrSurfaceUnavailable before anything is drawn otherwise.
func NewBoard(renderer *Renderer, surfaces map[Series]Surface) (*Board, error) {
	if renderer == nil {
		renderer = NewRenderer()
	}

	b := &Board{
		renderer: renderer,
		surfaces: make(map[Series]Surface, len(surfaces)),
	}
	for _, series := range AllSeries {
		surface, ok := surfaces[series]
		if !ok {
			continue
		}
		if surface == nil {
			return nil, errors.WithDetails(ErrSurfaceUnavailable, "series", series)
		}
		if _, err := context2D(surface); err != nil {
			return nil, errors.WithDetails(err, "series", series)
		}
		b.series = append(b.series, series)
		b.surfaces[series] = surface
	}
	if len(b.series) == 0 {
		return nil, errors.WithMessage(ErrSurfaceUnavailable, "no surfaces")
	}
	return b, nil
}

// Series returns the bound series in display order.
func (b *Board) Series() []Series {
	return append([]Series(nil), b.series...)
}

func (b *Board) Surface(series Series) (Surface, bool) {
	s, ok := b.surfaces[series]
	return s, ok
}

// Render redraws every bound series from points.
func (b *Board) Render(points []model.Point) error {
	var errs []error
	for _, series := range b.series {
		if err := b.renderer.RenderSeries(series, points, b.surfaces[series]); err != nil {
			errs = append(errs, errors.WithDetails(err, "series", series))
		}
	}
	return errors.Combine(errs...)
}
