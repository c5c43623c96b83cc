package readout

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/voluzi/pagepulse/pkg/model"
)

func TestFormatInt(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{0, "0"},
		{1050, "1050"},
		{12.9, "12"},
		{-4, "0"},
		{math.NaN(), Placeholder},
		{math.Inf(1), Placeholder},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatInt(tt.in), "FormatInt(%v)", tt.in)
	}
}

func TestFormatRate(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{0, "0"},
		{0.456, "0.46"},
		{1.5, "1.5"},
		{9.999, "10"},
		{12, "12"},
		{12.34, "12.3"},
		{72, "72"},
		{99.96, "100"},
		{100.4, "100"},
		{1234.5, "1235"},
		{-3, "0"},
		{math.NaN(), Placeholder},
		{math.Inf(-1), Placeholder},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatRate(tt.in), "FormatRate(%v)", tt.in)
	}
}

func TestFormatDelta(t *testing.T) {
	assert.Equal(t, "Δ 0", FormatDelta(0))
	assert.Equal(t, "Δ +50", FormatDelta(50))
	assert.Equal(t, "Δ -12", FormatDelta(-12))
}

func TestNew(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 10, 0, time.UTC)
	baseline := int64(1000)

	tests := []struct {
		name string
		view model.View
		want Readout
	}{
		{
			name: "no sample yet",
			view: model.View{Status: "Idle"},
			want: Readout{
				Status:    "Idle",
				DOMNodes:  Placeholder,
				Resources: Placeholder,
				Errors:    Placeholder,
				LongTasks: Placeholder,
				Stress:    Placeholder,
				Updated:   Placeholder,
			},
		},
		{
			name: "totals before rates",
			view: model.View{
				Enabled:  true,
				Status:   "Monitoring",
				Baseline: &baseline,
				Totals:   &model.Totals{DOMNodes: 1000, ResourceCount: 10, ErrorCount: 2, LongTaskCount: 1},
			},
			want: Readout{
				Status:    "Monitoring",
				Enabled:   true,
				DOMNodes:  "1000",
				DOMDelta:  "Δ 0",
				Resources: "10",
				Errors:    "2",
				LongTasks: "1",
				Stress:    Placeholder,
				Updated:   Placeholder,
			},
		},
		{
			name: "rates and history",
			view: model.View{
				Enabled:  true,
				Status:   "Monitoring",
				Baseline: &baseline,
				Totals:   &model.Totals{DOMNodes: 1050, ResourceCount: 16, ErrorCount: 1},
				Rates:    &model.Rates{ResourcePerMin: 72, ErrorPerMin: 12},
				Points: []model.Point{
					{Timestamp: now.Add(-5 * time.Second), Stress: 53},
				},
			},
			want: Readout{
				Status:    "Monitoring",
				Enabled:   true,
				DOMNodes:  "1050",
				DOMDelta:  "Δ +50",
				Resources: "72",
				Errors:    "12",
				LongTasks: "0",
				PerMinute: true,
				Stress:    "53",
				Updated:   "5 seconds ago",
				Points:    1,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, New(tt.view, now))
		})
	}
}
