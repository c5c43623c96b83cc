// Package readout formats model state into the numeric readouts shown next to the charts.
package readout

import (
	"math"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/voluzi/pagepulse/pkg/model"
)

// Placeholder is shown for values that are not available.
const Placeholder = "—"

// Readout holds the formatted values for one model view.
type Readout struct {
	Status    string `json:"status"`
	Enabled   bool   `json:"enabled"`
	DOMNodes  string `json:"dom_nodes"`
	DOMDelta  string `json:"dom_delta"`
	Resources string `json:"resources"`
	Errors    string `json:"errors"`
	LongTasks string `json:"long_tasks"`
	// PerMinute is false while the resource, error and long-task slots still show totals.
	PerMinute bool   `json:"per_minute"`
	Stress    string `json:"stress"`
	Updated   string `json:"updated"`
	Points    int    `json:"points"`
}

// New formats v. Updated is relative to now.
func New(v model.View, now time.Time) Readout {
	r := Readout{
		Status:    v.Status,
		Enabled:   v.Enabled,
		DOMNodes:  Placeholder,
		Resources: Placeholder,
		Errors:    Placeholder,
		LongTasks: Placeholder,
		Stress:    Placeholder,
		Updated:   Placeholder,
		Points:    len(v.Points),
	}

	if n := len(v.Points); n > 0 {
		last := v.Points[n-1]
		r.Stress = strconv.Itoa(last.Stress)
		if !last.Timestamp.IsZero() {
			r.Updated = humanize.RelTime(last.Timestamp, now, "ago", "from now")
		}
	}

	if v.Totals == nil {
		return r
	}

	r.DOMNodes = FormatInt(float64(v.Totals.DOMNodes))
	if v.Baseline != nil {
		r.DOMDelta = FormatDelta(v.Totals.DOMNodes - *v.Baseline)
	}

	if v.Rates != nil {
		r.PerMinute = true
		r.Resources = FormatRate(v.Rates.ResourcePerMin)
		r.Errors = FormatRate(v.Rates.ErrorPerMin)
		r.LongTasks = FormatRate(v.Rates.LongTaskPerMin)
	} else {
		r.Resources = FormatInt(float64(v.Totals.ResourceCount))
		r.Errors = FormatInt(float64(v.Totals.ErrorCount))
		r.LongTasks = FormatInt(float64(v.Totals.LongTaskCount))
	}
	return r
}

// FormatInt floors n and clamps it at zero.
func FormatInt(n float64) string {
	if !finite(n) {
		return Placeholder
	}
	return strconv.FormatFloat(math.Max(0, math.Floor(n)), 'f', 0, 64)
}

// FormatRate rounds to an integer from 100, one decimal from 10 and two decimals below.
func FormatRate(n float64) string {
	if !finite(n) {
		return Placeholder
	}
	x := math.Max(0, n)
	switch {
	case x >= 100:
		x = math.Round(x)
	case x >= 10:
		x = math.Round(x*10) / 10
	default:
		x = math.Round(x*100) / 100
	}
	return strconv.FormatFloat(x, 'f', -1, 64)
}

// FormatDelta renders the DOM node change relative to the baseline.
func FormatDelta(delta int64) string {
	switch {
	case delta > 0:
		return "Δ +" + strconv.FormatInt(delta, 10)
	case delta < 0:
		return "Δ " + strconv.FormatInt(delta, 10)
	}
	return "Δ 0"
}

func finite(n float64) bool {
	return !math.IsNaN(n) && !math.IsInf(n, 0)
}
