package snapshot

import (
	"bytes"
	"context"
	"math"
	"net/http"

	"emperror.dev/errors"
	prom "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
)

// MetricNames maps each counter to the Prometheus metric family exposing it.
type MetricNames struct {
	DOMNodes      string `json:"dom-nodes" yaml:"dom-nodes" toml:"dom-nodes"`
	ResourceCount string `json:"resource-count" yaml:"resource-count" toml:"resource-count"`
	ErrorCount    string `json:"error-count" yaml:"error-count" toml:"error-count"`
	LongTaskCount string `json:"long-task-count" yaml:"long-task-count" toml:"long-task-count"`
}

func DefaultMetricNames() MetricNames {
	return MetricNames{
		DOMNodes:      "page_dom_nodes",
		ResourceCount: "page_resources_total",
		ErrorCount:    "page_console_errors_total",
		LongTaskCount: "page_long_tasks_total",
	}
}

// PromProvider scrapes counters from a Prometheus text exposition endpoint.
type PromProvider struct {
	url    string
	names  MetricNames
	client *http.Client
}

var _ Provider = (*PromProvider)(nil)

func NewPromProvider(url string, names MetricNames, client *http.Client) *PromProvider {
	if client == nil {
		client = &http.Client{Timeout: DefaultTimeout}
	}
	return &PromProvider{url: url, names: names, client: client}
}

func (p *PromProvider) Snapshot(ctx context.Context) (*Snapshot, error) {
	body, err := httpGet(ctx, p.client, p.url, "text/plain")
	if err != nil {
		return nil, &CollectionError{Err: err}
	}

	parser := expfmt.TextParser{}
	fams, err := parser.TextToMetricFamilies(bytes.NewReader(body))
	if err != nil {
		return nil, &CollectionError{Err: errors.Wrap(err, "parsing metrics")}
	}

	return FromMetricFamilies(fams, p.names), nil
}

// FromMetricFamilies builds a snapshot from parsed families. Missing families are reported
// as NaN so they are coerced downstream; a snapshot with no family at all is not OK.
func FromMetricFamilies(fams map[string]*prom.MetricFamily, names MetricNames) *Snapshot {
	found := 0
	value := func(name string) any {
		mf, ok := fams[name]
		if !ok {
			return math.NaN()
		}
		found++
		return sumFamily(mf)
	}

	snap := &Snapshot{
		DOMNodes:      value(names.DOMNodes),
		ResourceCount: value(names.ResourceCount),
		ErrorCount:    value(names.ErrorCount),
		LongTaskCount: value(names.LongTaskCount),
	}
	if found == 0 {
		return &Snapshot{OK: false, Error: "none of the expected metrics are exposed"}
	}
	snap.OK = true
	return snap
}

func sumFamily(mf *prom.MetricFamily) float64 {
	var total float64
	for _, m := range mf.GetMetric() {
		switch mf.GetType() {
		case prom.MetricType_COUNTER:
			total += m.GetCounter().GetValue()
		case prom.MetricType_GAUGE:
			total += m.GetGauge().GetValue()
		default:
			total += m.GetUntyped().GetValue()
		}
	}
	return total
}
