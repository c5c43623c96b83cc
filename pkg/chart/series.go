package chart

import (
	"emperror.dev/errors"

	"github.com/voluzi/pagepulse/pkg/model"
)

// Series identifies one of the charted values of a point.
type Series string

const (
	SeriesStress    Series = "stress"
	SeriesDOM       Series = "dom"
	SeriesNetwork   Series = "network"
	SeriesErrors    Series = "errors"
	SeriesLongTasks Series = "longtasks"
)

// AllSeries lists every series in display order.
var AllSeries = []Series{SeriesStress, SeriesDOM, SeriesNetwork, SeriesErrors, SeriesLongTasks}

func ParseSeries(s string) (Series, error) {
	for _, series := range AllSeries {
		if string(series) == s {
			return series, nil
		}
	}
	return "", errors.Errorf("unknown series %q", s)
}

func (s Series) Title() string {
	switch s {
	case SeriesStress:
		return "Stress"
	case SeriesDOM:
		return "DOM nodes"
	case SeriesNetwork:
		return "Resources/min"
	case SeriesErrors:
		return "Errors/min"
	case SeriesLongTasks:
		return "Long tasks/min"
	}
	return string(s)
}

// Values extracts the series from points, in order.
func (s Series) Values(points []model.Point) []float64 {
	values := make([]float64, len(points))
	for i, p := range points {
		switch s {
		case SeriesStress:
			values[i] = float64(p.Stress)
		case SeriesDOM:
			values[i] = float64(p.DOMNodes)
		case SeriesNetwork:
			values[i] = p.ResourcePerMin
		case SeriesErrors:
			values[i] = p.ErrorPerMin
		case SeriesLongTasks:
			values[i] = p.LongTaskPerMin
		}
	}
	return values
}

// Range returns the vertical range used to plot values of this series. Stress is always
// plotted on [0, 100].
func (s Series) Range(values []float64) Range {
	if s == SeriesStress {
		return FixedRange(0, 100)
	}
	return AutoRange(values)
}
