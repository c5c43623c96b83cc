package cmd

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"emperror.dev/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/voluzi/pagepulse/internal/config"
	"github.com/voluzi/pagepulse/pkg/agent"
	"github.com/voluzi/pagepulse/pkg/audit"
	"github.com/voluzi/pagepulse/pkg/busy"
	"github.com/voluzi/pagepulse/pkg/model"
	"github.com/voluzi/pagepulse/pkg/sampler"
	"github.com/voluzi/pagepulse/pkg/snapshot"
)

var serveFlags struct {
	target       string
	provider     string
	pollInterval time.Duration
	timeout      time.Duration
	history      int
	host         string
	port         int
	busyFile     string
	auditLog     string
	auditMaxSize string
	pixelRatio   float64
	start        bool
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Samples a page telemetry endpoint and serves readouts and charts over HTTP",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadServeConfig(cmd)
		if err != nil {
			return err
		}
		return serve(cfg)
	},
}

func init() {
	f := serveCmd.Flags()
	f.StringVar(&serveFlags.target, "target", "", "URL of the page telemetry endpoint")
	f.StringVar(&serveFlags.provider, "provider", config.ProviderJSON, "Snapshot provider. One of json, prom, mock.")
	f.DurationVar(&serveFlags.pollInterval, "poll-interval", sampler.DefaultInterval, "Interval between samples")
	f.DurationVar(&serveFlags.timeout, "timeout", snapshot.DefaultTimeout, "Timeout of a single snapshot request")
	f.IntVar(&serveFlags.history, "history", model.DefaultMaxPoints, "Number of points kept in the history")
	f.StringVar(&serveFlags.host, "host", agent.DefaultHost, "Host to listen on")
	f.IntVar(&serveFlags.port, "port", agent.DefaultPort, "Port to listen on")
	f.StringVar(&serveFlags.busyFile, "busy-file", "", "Lock file whose presence blocks start and refresh")
	f.StringVar(&serveFlags.auditLog, "audit-log", "", "File receiving audit events as JSON lines")
	f.StringVar(&serveFlags.auditMaxSize, "audit-max-size", audit.DefaultMaxSize.String(), "Size at which the audit log is rotated")
	f.Float64Var(&serveFlags.pixelRatio, "pixel-ratio", 1, "Device pixel ratio used for PNG charts")
	f.BoolVar(&serveFlags.start, "start", true, "Start sampling immediately")
}

// loadServeConfig layers explicitly set flags over the file and environment configuration.
func loadServeConfig(cmd *cobra.Command) (*config.Config, error) {
	// validation errors are ignored here, flags may still fix them
	cfg, err := config.Load(configFile)
	if cfg == nil {
		return nil, err
	}

	f := cmd.Flags()
	if f.Changed("target") {
		cfg.Target = serveFlags.target
	}
	if f.Changed("provider") {
		cfg.Provider = serveFlags.provider
	}
	if f.Changed("poll-interval") {
		cfg.PollInterval = config.Duration(serveFlags.pollInterval)
	}
	if f.Changed("timeout") {
		cfg.Timeout = config.Duration(serveFlags.timeout)
	}
	if f.Changed("history") {
		cfg.History = serveFlags.history
	}
	if f.Changed("host") {
		cfg.Host = serveFlags.host
	}
	if f.Changed("port") {
		cfg.Port = serveFlags.port
	}
	if f.Changed("busy-file") {
		cfg.BusyFile = serveFlags.busyFile
	}
	if f.Changed("audit-log") {
		cfg.Audit.Path = serveFlags.auditLog
	}
	if f.Changed("audit-max-size") {
		if err := cfg.Audit.MaxSize.UnmarshalText([]byte(serveFlags.auditMaxSize)); err != nil {
			return nil, errors.WrapIff(err, "invalid audit log size %q", serveFlags.auditMaxSize)
		}
	}
	if f.Changed("pixel-ratio") {
		cfg.Chart.PixelRatio = serveFlags.pixelRatio
	}
	if f.Changed("start") {
		cfg.AutoStart = serveFlags.start
	}
	return cfg, cfg.Validate()
}

func serve(cfg *config.Config) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	provider, mock := newProvider(cfg)

	auditSink, closeAudit, err := newAuditSink(cfg.Audit)
	if err != nil {
		return err
	}
	defer closeAudit()

	guard, err := newBusyGuard(ctx, cfg.BusyFile)
	if err != nil {
		return err
	}

	s := sampler.New(model.New(cfg.History), provider,
		sampler.WithInterval(time.Duration(cfg.PollInterval)),
		sampler.WithBusyGuard(guard),
		sampler.WithAuditSink(auditSink),
		sampler.WithDebugSink(audit.NewLogSink(log.WithField("component", "sampler"))),
	)

	opts := []agent.Option{
		agent.WithHost(cfg.Host),
		agent.WithPort(cfg.Port),
		agent.WithChartSize(cfg.Chart.Width, cfg.Chart.Height),
		agent.WithPixelRatio(cfg.Chart.PixelRatio),
	}
	if mock != nil {
		opts = append(opts, agent.WithMock(mock))
	}
	a := agent.New(s, opts...)

	if cfg.AutoStart {
		if err := s.Start(); err != nil {
			log.Warnf("could not start sampling: %v", err)
		}
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		log.Infof("received signal: %v", sig)
		cancel()
		if err := a.Stop(); err != nil {
			log.Errorf("failed to stop agent: %v", err)
		}
	}()

	log.WithFields(log.Fields{
		"target":   cfg.Target,
		"provider": cfg.Provider,
		"interval": time.Duration(cfg.PollInterval),
	}).Info("sampler configured")

	return a.Start()
}

func newProvider(cfg *config.Config) (snapshot.Provider, *snapshot.MockProvider) {
	client := &http.Client{Timeout: time.Duration(cfg.Timeout)}
	switch cfg.Provider {
	case config.ProviderProm:
		return snapshot.NewPromProvider(cfg.Target, cfg.Metrics, client), nil
	case config.ProviderMock:
		mock := snapshot.NewMockProvider()
		return mock, mock
	default:
		return snapshot.NewHTTPProvider(cfg.Target, client), nil
	}
}

func newAuditSink(cfg config.Audit) (audit.Sink, func(), error) {
	logSink := audit.NewLogSink(log.WithField("component", "audit"))
	if cfg.Path == "" {
		return logSink, func() {}, nil
	}

	fileSink, err := audit.NewFileSink(cfg.Path, cfg.MaxSize)
	if err != nil {
		return nil, nil, err
	}
	closeFn := func() {
		if err := fileSink.Close(); err != nil {
			log.Errorf("error closing audit log: %v", err)
		}
		if n := fileSink.Dropped(); n > 0 {
			log.Warnf("%d audit events were dropped", n)
		}
	}
	return audit.Multi(logSink, fileSink), closeFn, nil
}

func newBusyGuard(ctx context.Context, path string) (sampler.BusyGuard, error) {
	if path == "" {
		return sampler.NeverBusy, nil
	}

	guard, err := busy.NewFileGuard(path)
	if err != nil {
		return nil, err
	}
	go func() {
		if err := guard.Watch(ctx); err != nil {
			log.Errorf("error watching busy file: %v", err)
		}
	}()
	return busy.Any{guard}, nil
}
