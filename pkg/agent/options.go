package agent

import (
	"time"

	"github.com/voluzi/pagepulse/pkg/chart"
	"github.com/voluzi/pagepulse/pkg/snapshot"
)

const (
	DefaultHost          = "0.0.0.0"
	DefaultPort          = 8000
	DefaultChartCacheTTL = 10 * time.Minute
)

func defaultOptions() *Options {
	return &Options{
		Host:          DefaultHost,
		Port:          DefaultPort,
		ChartWidth:    chart.DefaultWidth,
		ChartHeight:   chart.DefaultHeight,
		PixelRatio:    1,
		ChartCacheTTL: DefaultChartCacheTTL,
	}
}

type Options struct {
	Host          string
	Port          int
	ChartWidth    float64
	ChartHeight   float64
	PixelRatio    float64
	ChartCacheTTL time.Duration
	// Mock enables the /mock endpoints driving this provider.
	Mock *snapshot.MockProvider
}

type Option func(*Options)

func WithHost(s string) Option {
	return func(opts *Options) {
		opts.Host = s
	}
}

func WithPort(v int) Option {
	return func(opts *Options) {
		opts.Port = v
	}
}

func WithChartSize(width, height float64) Option {
	return func(opts *Options) {
		opts.ChartWidth = width
		opts.ChartHeight = height
	}
}

func WithPixelRatio(ratio float64) Option {
	return func(opts *Options) {
		opts.PixelRatio = ratio
	}
}

func WithChartCacheTTL(ttl time.Duration) Option {
	return func(opts *Options) {
		opts.ChartCacheTTL = ttl
	}
}

func WithMock(mock *snapshot.MockProvider) Option {
	return func(opts *Options) {
		opts.Mock = mock
	}
}
