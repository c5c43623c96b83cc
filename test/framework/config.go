package framework

import "time"

func defaultConfig() *Configs {
	return &Configs{
		Interval:    300 * time.Millisecond,
		HistorySize: 60,
		PixelRatio:  1,
	}
}

type Configs struct {
	Interval    time.Duration
	HistorySize int
	PixelRatio  float64
}

type Config func(*Configs)

func WithInterval(d time.Duration) Config {
	return func(cfgs *Configs) {
		cfgs.Interval = d
	}
}

func WithHistorySize(v int) Config {
	return func(cfgs *Configs) {
		cfgs.HistorySize = v
	}
}

func WithPixelRatio(v float64) Config {
	return func(cfgs *Configs) {
		cfgs.PixelRatio = v
	}
}
