package framework

import (
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// MockHelper drives the mock provider of an agent through its /mock endpoints.
type MockHelper struct {
	url string
}

func NewMockHelper(baseURL string) *MockHelper {
	return &MockHelper{url: strings.TrimRight(baseURL, "/")}
}

// SetCounters replaces the counters reported by the observed process.
func (h *MockHelper) SetCounters(domNodes, resources, errs, longTasks float64) error {
	return h.post("/mock/counters", counters(domNodes, resources, errs, longTasks))
}

// AddActivity increments the counters reported by the observed process.
func (h *MockHelper) AddActivity(domNodes, resources, errs, longTasks float64) error {
	return h.post("/mock/activity", counters(domNodes, resources, errs, longTasks))
}

// Fail makes snapshots report ok=false with msg. An empty msg clears the failure.
func (h *MockHelper) Fail(msg string) error {
	return h.post("/mock/fail", url.Values{"message": {msg}})
}

// Unreachable makes collection fail at transport level. An empty msg clears the failure.
func (h *MockHelper) Unreachable(msg string) error {
	return h.post("/mock/unreachable", url.Values{"error": {msg}})
}

func counters(domNodes, resources, errs, longTasks float64) url.Values {
	format := func(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }
	return url.Values{
		"dom":       {format(domNodes)},
		"resources": {format(resources)},
		"errors":    {format(errs)},
		"longtasks": {format(longTasks)},
	}
}

func (h *MockHelper) post(endpoint string, params url.Values) error {
	resp, err := http.Post(h.url+endpoint+"?"+params.Encode(), "text/plain", nil)
	if err != nil {
		return fmt.Errorf("%s failed: %w", endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%s failed: HTTP %d: %s", endpoint, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}
