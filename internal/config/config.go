// Package config loads the pagepulse configuration: built-in defaults, overlaid by an
// optional YAML or TOML file, overlaid by PAGEPULSE_* environment variables.
package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"emperror.dev/errors"
	"github.com/BurntSushi/toml"
	"github.com/RaveNoX/go-jsonmerge"
	"github.com/c2h5oh/datasize"
	"github.com/goccy/go-json"
	"gopkg.in/yaml.v3"
	"k8s.io/kube-openapi/pkg/validation/strfmt"

	"github.com/voluzi/pagepulse/internal/environ"
	"github.com/voluzi/pagepulse/pkg/agent"
	"github.com/voluzi/pagepulse/pkg/audit"
	"github.com/voluzi/pagepulse/pkg/chart"
	"github.com/voluzi/pagepulse/pkg/model"
	"github.com/voluzi/pagepulse/pkg/sampler"
	"github.com/voluzi/pagepulse/pkg/snapshot"
)

const (
	ProviderJSON = "json"
	ProviderProm = "prom"
	ProviderMock = "mock"

	EnvPrefix = "PAGEPULSE_"
)

// Duration is a time.Duration read from strings such as "5s" or "1h30m".
type Duration time.Duration

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d *Duration) UnmarshalText(b []byte) error {
	v, err := strfmt.ParseDuration(string(b))
	if err != nil {
		return errors.WrapIff(err, "invalid duration %q", string(b))
	}
	*d = Duration(v)
	return nil
}

type Chart struct {
	Width      float64 `json:"width"`
	Height     float64 `json:"height"`
	PixelRatio float64 `json:"pixel-ratio"`
}

type Audit struct {
	Path    string            `json:"path"`
	MaxSize datasize.ByteSize `json:"max-size"`
}

type Config struct {
	Target       string               `json:"target"`
	Provider     string               `json:"provider"`
	Metrics      snapshot.MetricNames `json:"metrics"`
	PollInterval Duration             `json:"poll-interval"`
	Timeout      Duration             `json:"timeout"`
	History      int                  `json:"history"`
	Host         string               `json:"host"`
	Port         int                  `json:"port"`
	BusyFile     string               `json:"busy-file"`
	AutoStart    bool                 `json:"start"`
	Chart        Chart                `json:"chart"`
	Audit        Audit                `json:"audit"`
}

func Default() *Config {
	return &Config{
		Provider:     ProviderJSON,
		Metrics:      snapshot.DefaultMetricNames(),
		PollInterval: Duration(sampler.DefaultInterval),
		Timeout:      Duration(snapshot.DefaultTimeout),
		History:      model.DefaultMaxPoints,
		Host:         agent.DefaultHost,
		Port:         agent.DefaultPort,
		AutoStart:    true,
		Chart: Chart{
			Width:      chart.DefaultWidth,
			Height:     chart.DefaultHeight,
			PixelRatio: 1,
		},
		Audit: Audit{
			MaxSize: audit.DefaultMaxSize,
		},
	}
}

// Load returns the defaults overlaid by the file at path, if any, and by the environment.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.WrapIf(err, "reading config file")
		}
		if cfg, err = Parse(filepath.Ext(path), data); err != nil {
			return nil, errors.WrapIff(err, "parsing config file %s", path)
		}
	}
	cfg.ApplyEnv()
	return cfg, cfg.Validate()
}

// Parse overlays a partial YAML (".yaml", ".yml") or TOML (".toml") document on the defaults.
func Parse(ext string, data []byte) (*Config, error) {
	var patch interface{}
	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &patch); err != nil {
			return nil, err
		}
	case ".toml":
		if _, err := toml.Decode(string(data), &patch); err != nil {
			return nil, err
		}
	default:
		return nil, errors.Errorf("unsupported config format %q", ext)
	}
	if patch == nil {
		return Default(), nil
	}
	return overlay(Default(), patch)
}

func overlay(cfg *Config, patch interface{}) (*Config, error) {
	b, err := json.Marshal(cfg)
	if err != nil {
		return nil, err
	}
	var base interface{}
	if err := json.Unmarshal(b, &base); err != nil {
		return nil, err
	}

	merged, info := jsonmerge.Merge(base, patch)
	if len(info.Errors) > 0 {
		return nil, info.Errors[0]
	}

	if b, err = json.Marshal(merged); err != nil {
		return nil, err
	}
	out := &Config{}
	if err := json.Unmarshal(b, out); err != nil {
		return nil, err
	}
	return out, nil
}

// ApplyEnv overrides settings with PAGEPULSE_* variables.
func (c *Config) ApplyEnv() {
	c.Target = environ.GetString(EnvPrefix+"TARGET", c.Target)
	c.Provider = environ.GetString(EnvPrefix+"PROVIDER", c.Provider)
	c.PollInterval = Duration(environ.GetDuration(EnvPrefix+"POLL_INTERVAL", time.Duration(c.PollInterval)))
	c.Timeout = Duration(environ.GetDuration(EnvPrefix+"TIMEOUT", time.Duration(c.Timeout)))
	c.History = environ.GetInt(EnvPrefix+"HISTORY", c.History)
	c.Host = environ.GetString(EnvPrefix+"HOST", c.Host)
	c.Port = environ.GetInt(EnvPrefix+"PORT", c.Port)
	c.BusyFile = environ.GetString(EnvPrefix+"BUSY_FILE", c.BusyFile)
	c.AutoStart = environ.GetBool(EnvPrefix+"START", c.AutoStart)
	c.Chart.PixelRatio = environ.GetFloat64(EnvPrefix+"PIXEL_RATIO", c.Chart.PixelRatio)
	c.Audit.Path = environ.GetString(EnvPrefix+"AUDIT_LOG", c.Audit.Path)
	c.Audit.MaxSize = environ.GetSize(EnvPrefix+"AUDIT_MAX_SIZE", c.Audit.MaxSize)
}

func (c *Config) Validate() error {
	var errs []error
	switch c.Provider {
	case ProviderJSON, ProviderProm:
		if c.Target == "" {
			errs = append(errs, errors.Errorf("a target is required for the %s provider", c.Provider))
		}
	case ProviderMock:
	default:
		errs = append(errs, errors.Errorf("unknown provider %q", c.Provider))
	}
	if c.PollInterval <= 0 {
		errs = append(errs, errors.New("poll interval must be positive"))
	}
	if c.History <= 0 {
		errs = append(errs, errors.New("history must be positive"))
	}
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, errors.Errorf("invalid port %d", c.Port))
	}
	return errors.Combine(errs...)
}
