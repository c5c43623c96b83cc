package agent

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"emperror.dev/errors"
	"github.com/goccy/go-json"
	"github.com/gorilla/mux"
	"github.com/jellydator/ttlcache/v3"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"github.com/voluzi/pagepulse/pkg/chart"
	"github.com/voluzi/pagepulse/pkg/model"
	"github.com/voluzi/pagepulse/pkg/readout"
	"github.com/voluzi/pagepulse/pkg/sampler"
)

// HistoryVersionHeader carries the history version a chart was rendered from.
const HistoryVersionHeader = "X-History-Version"

func (a *Agent) registerRoutes() {
	a.router.HandleFunc("/health", a.health).Methods(http.MethodGet)
	a.router.HandleFunc("/ready", a.ready).Methods(http.MethodGet)
	a.router.HandleFunc("/state", a.state).Methods(http.MethodGet)
	a.router.HandleFunc("/readout", a.readout).Methods(http.MethodGet)
	a.router.HandleFunc("/start", a.control("start", a.sampler.Start)).Methods(http.MethodPost)
	a.router.HandleFunc("/stop", a.control("stop", a.sampler.Stop)).Methods(http.MethodPost)
	a.router.HandleFunc("/refresh", a.control("refresh", a.sampler.Refresh)).Methods(http.MethodPost)
	a.router.HandleFunc("/charts/{series}.png", a.chart).Methods(http.MethodGet)
	a.router.HandleFunc("/ws", a.ws).Methods(http.MethodGet)
	a.router.Handle("/metrics", promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)

	if a.cfg.Mock != nil {
		a.registerMockRoutes()
	}
}

func (a *Agent) health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func (a *Agent) ready(w http.ResponseWriter, r *http.Request) {
	state, health := a.sampler.State(), a.sampler.Health()
	log.WithFields(log.Fields{
		"state":  state,
		"health": health,
	}).Debug("got sampler status")

	if state != sampler.Running || health != sampler.Healthy {
		w.WriteHeader(http.StatusExpectationFailed)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (a *Agent) state(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.State())
}

func (a *Agent) readout(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, readout.New(a.sampler.Model().View(), time.Now()))
}

// control wraps a sampler transition. No-op transitions succeed; rejected ones answer 409
// with the reason.
func (a *Agent) control(name string, op func() error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		err := op()
		logger := log.WithField("op", name)

		switch {
		case err == nil:
			logger.Info("sampler transition applied")
		case errors.Is(err, sampler.ErrAlreadyRunning), errors.Is(err, sampler.ErrNotRunning):
			logger.WithError(err).Debug("sampler transition was a no-op")
		case errors.Is(err, sampler.ErrBusy), errors.Is(err, sampler.ErrInFlight):
			logger.WithError(err).Warn("sampler transition rejected")
			http.Error(w, err.Error(), http.StatusConflict)
			return
		case errors.Is(err, sampler.ErrClosed):
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		default:
			logger.Errorf("sampler transition failed: %v", err)
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, a.State())
	}
}

func (a *Agent) chart(w http.ResponseWriter, r *http.Request) {
	series, err := chart.ParseSeries(mux.Vars(r)["series"])
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}

	view := a.sampler.Model().View()
	png, err := a.renderChart(series, view)
	if err != nil {
		log.WithField("series", series).Errorf("error rendering chart: %v", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set(HistoryVersionHeader, strconv.FormatUint(view.Version, 10))
	w.WriteHeader(http.StatusOK)
	w.Write(png)
}

// renderChart returns the PNG for series, reusing the rendering of the same history version.
func (a *Agent) renderChart(series chart.Series, view model.View) ([]byte, error) {
	key := fmt.Sprintf("%s@%d", series, view.Version)
	if item := a.charts.Get(key); item != nil {
		return item.Value(), nil
	}

	surface := chart.NewImageSurface(a.cfg.ChartWidth, a.cfg.ChartHeight)
	if err := a.renderer.RenderSeries(series, view.Points, surface); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := surface.EncodePNG(&buf); err != nil {
		return nil, errors.WrapIf(err, "encoding chart")
	}
	a.charts.Set(key, buf.Bytes(), ttlcache.DefaultTTL)
	return buf.Bytes(), nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Errorf("error encoding response to json: %v", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(b)
}
