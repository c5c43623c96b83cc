package snapshot

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"emperror.dev/errors"
	"github.com/goccy/go-json"
)

const DefaultTimeout = 30 * time.Second

// HTTPProvider reads a JSON snapshot from an endpoint exposed by the observed process.
type HTTPProvider struct {
	url    string
	client *http.Client
}

var _ Provider = (*HTTPProvider)(nil)

// NewHTTPProvider creates a provider polling url. A nil client uses one with DefaultTimeout.
func NewHTTPProvider(url string, client *http.Client) *HTTPProvider {
	if client == nil {
		client = &http.Client{Timeout: DefaultTimeout}
	}
	return &HTTPProvider{url: url, client: client}
}

func (p *HTTPProvider) Snapshot(ctx context.Context) (*Snapshot, error) {
	body, err := httpGet(ctx, p.client, p.url, "application/json")
	if err != nil {
		return nil, &CollectionError{Err: err}
	}

	var snap Snapshot
	if err := json.Unmarshal(body, &snap); err != nil {
		return nil, &CollectionError{Err: errors.Wrap(err, "decoding snapshot")}
	}
	return &snap, nil
}

// httpGet performs a GET request and returns the body of a 2xx response.
func httpGet(ctx context.Context, client *http.Client, url, accept string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", accept)

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("GET %s: HTTP %d: %s", url, resp.StatusCode, string(body))
	}
	return body, nil
}
