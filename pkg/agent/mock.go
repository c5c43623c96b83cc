package agent

import (
	"net/http"
	"strconv"

	"emperror.dev/errors"
	log "github.com/sirupsen/logrus"
)

func (a *Agent) registerMockRoutes() {
	a.router.HandleFunc("/mock/counters", a.mockSetCounters).Methods(http.MethodPost)
	a.router.HandleFunc("/mock/activity", a.mockAddActivity).Methods(http.MethodPost)
	a.router.HandleFunc("/mock/fail", a.mockFail).Methods(http.MethodPost)
	a.router.HandleFunc("/mock/unreachable", a.mockUnreachable).Methods(http.MethodPost)
}

// mockCounters reads ?dom=&resources=&errors=&longtasks=. Missing values read as 0.
func mockCounters(r *http.Request) ([4]float64, error) {
	var values [4]float64
	for i, key := range []string{"dom", "resources", "errors", "longtasks"} {
		raw := r.URL.Query().Get(key)
		if raw == "" {
			continue
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return values, errors.WrapIff(err, "invalid %s value", key)
		}
		values[i] = v
	}
	return values, nil
}

// mockSetCounters handles POST /mock/counters to replace the mock counters.
func (a *Agent) mockSetCounters(w http.ResponseWriter, r *http.Request) {
	v, err := mockCounters(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	a.cfg.Mock.Set(v[0], v[1], v[2], v[3])
	w.WriteHeader(http.StatusOK)
}

// mockAddActivity handles POST /mock/activity to increment the mock counters.
func (a *Agent) mockAddActivity(w http.ResponseWriter, r *http.Request) {
	v, err := mockCounters(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	a.cfg.Mock.Add(v[0], v[1], v[2], v[3])
	w.WriteHeader(http.StatusOK)
}

// mockFail handles POST /mock/fail?message= to make snapshots report ok=false.
func (a *Agent) mockFail(w http.ResponseWriter, r *http.Request) {
	msg := r.URL.Query().Get("message")
	log.WithField("message", msg).Info("mock snapshot failure updated")
	a.cfg.Mock.Fail(msg)
	w.WriteHeader(http.StatusOK)
}

// mockUnreachable handles POST /mock/unreachable?error= to make collection fail.
func (a *Agent) mockUnreachable(w http.ResponseWriter, r *http.Request) {
	msg := r.URL.Query().Get("error")
	log.WithField("error", msg).Info("mock transport failure updated")
	if msg == "" {
		a.cfg.Mock.Unreachable(nil)
	} else {
		a.cfg.Mock.Unreachable(errors.New(msg))
	}
	w.WriteHeader(http.StatusOK)
}
