package agent

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"emperror.dev/errors"
	"github.com/gorilla/mux"
	"github.com/jellydator/ttlcache/v3"
	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"

	"github.com/voluzi/pagepulse/pkg/chart"
	"github.com/voluzi/pagepulse/pkg/model"
	"github.com/voluzi/pagepulse/pkg/sampler"
)

// State is the snapshot of the sampler published by the agent.
type State struct {
	State  sampler.State  `json:"state"`
	Health sampler.Health `json:"health"`
	PollMs int64          `json:"poll_ms"`
	Error  string         `json:"error,omitempty"`
	model.View
}

// Agent hosts one sampler over HTTP.
type Agent struct {
	server   *http.Server
	router   *mux.Router
	cfg      *Options
	sampler  *sampler.Sampler
	renderer *chart.Renderer
	charts   *ttlcache.Cache[string, []byte]
	registry *prometheus.Registry
	metrics  *metrics
	hub      *hub
	routes   sync.Once
	serving  atomic.Bool

	mu      sync.RWMutex
	lastErr error
}

func New(s *sampler.Sampler, opts ...Option) *Agent {
	options := defaultOptions()
	for _, opt := range opts {
		opt(options)
	}

	registry := prometheus.NewRegistry()
	a := &Agent{
		cfg:      options,
		router:   mux.NewRouter(),
		sampler:  s,
		renderer: chart.NewRenderer(chart.WithPixelRatio(options.PixelRatio)),
		charts: ttlcache.New(
			ttlcache.WithTTL[string, []byte](options.ChartCacheTTL),
		),
		registry: registry,
		metrics:  newMetrics(registry),
		hub:      newHub(),
	}

	s.OnUpdate(a.onUpdate)
	return a
}

func (a *Agent) onUpdate(u sampler.Update) {
	if u.Collected {
		a.mu.Lock()
		a.lastErr = u.Err
		a.mu.Unlock()
	}
	a.metrics.observe(u)
	a.hub.broadcast(a.stateOf(u.State, u.Health, u.View))
}

// State returns the current state of the sampler.
func (a *Agent) State() State {
	return a.stateOf(a.sampler.State(), a.sampler.Health(), a.sampler.Model().View())
}

func (a *Agent) stateOf(state sampler.State, health sampler.Health, view model.View) State {
	st := State{
		State:  state,
		Health: health,
		PollMs: a.sampler.Interval().Milliseconds(),
		View:   view,
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.lastErr != nil && health == sampler.Degraded {
		st.Error = a.lastErr.Error()
	}
	return st
}

// Handler returns the router serving every agent endpoint.
func (a *Agent) Handler() http.Handler {
	a.routes.Do(a.registerRoutes)
	return a.router
}

// Start serves the agent until Stop is called.
func (a *Agent) Start() error {
	a.serving.Store(true)
	go a.charts.Start()

	a.server = &http.Server{Addr: fmt.Sprintf("%s:%d", a.cfg.Host, a.cfg.Port), Handler: a.Handler()}
	log.Infof("server started listening on %s:%d ...", a.cfg.Host, a.cfg.Port)
	err := a.server.ListenAndServe()
	if err == nil || errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Stop closes the sampler, disconnects websocket subscribers and shuts the server down.
func (a *Agent) Stop() error {
	log.Info("stopping server")

	a.sampler.Close()
	a.hub.close()
	// the cache janitor only runs once Start was called, and Stop blocks until it receives
	if a.serving.Load() {
		a.charts.Stop()
	}

	if a.server == nil {
		return errors.New("server was not started")
	}

	log.Debug("shutting down http server")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return a.server.Shutdown(ctx)
}
