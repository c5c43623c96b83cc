package agent

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"emperror.dev/errors"
	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"github.com/voluzi/pagepulse/pkg/chart"
	"github.com/voluzi/pagepulse/pkg/readout"
)

// ErrRejected is returned when the agent refuses a transition, e.g. while busy.
const ErrRejected = errors.Sentinel("request rejected by agent")

var (
	// httpClient is a shared HTTP client with reasonable timeout
	httpClient = &http.Client{
		Timeout: 30 * time.Second,
	}
)

// Controller drives a remote sampler. It can be mocked in tests.
type Controller interface {
	State(ctx context.Context) (*State, error)
	Start(ctx context.Context) (*State, error)
	Stop(ctx context.Context) (*State, error)
	Refresh(ctx context.Context) (*State, error)
}

// Client provides methods to interact with the agent HTTP server.
type Client struct {
	url string
}

// Ensure Client implements Controller
var _ Controller = (*Client)(nil)

// NewClient creates a client for the agent at host, on the default port.
func NewClient(host string) *Client {
	return &Client{url: fmt.Sprintf("http://%s:%d", host, DefaultPort)}
}

// NewClientFromURL creates a client for the agent at base URL u.
func NewClientFromURL(u string) *Client {
	return &Client{url: strings.TrimRight(u, "/")}
}

func (c *Client) URL() string {
	return c.url
}

// do performs a request and returns the body of a response with one of the valid statuses.
func (c *Client) do(ctx context.Context, method, endpoint string, validStatuses ...int) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.url+endpoint, nil)
	if err != nil {
		return nil, 0, err
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, err
	}

	for _, status := range validStatuses {
		if resp.StatusCode == status {
			return body, resp.StatusCode, nil
		}
	}

	msg := strings.TrimSpace(string(body))
	if resp.StatusCode == http.StatusConflict {
		return nil, resp.StatusCode, errors.WithMessage(ErrRejected, msg)
	}
	return nil, resp.StatusCode, fmt.Errorf("HTTP %d: %s", resp.StatusCode, msg)
}

func (c *Client) getJSON(ctx context.Context, method, endpoint string, target interface{}) error {
	body, _, err := c.do(ctx, method, endpoint, http.StatusOK)
	if err != nil {
		return err
	}
	return json.Unmarshal(body, target)
}

// Health returns nil when the agent is serving.
func (c *Client) Health(ctx context.Context) error {
	_, _, err := c.do(ctx, http.MethodGet, "/health", http.StatusOK)
	return err
}

// Ready reports whether the sampler is running and healthy.
func (c *Client) Ready(ctx context.Context) (bool, error) {
	_, status, err := c.do(ctx, http.MethodGet, "/ready", http.StatusOK, http.StatusExpectationFailed)
	if err != nil {
		return false, err
	}
	return status == http.StatusOK, nil
}

func (c *Client) State(ctx context.Context) (*State, error) {
	var st State
	if err := c.getJSON(ctx, http.MethodGet, "/state", &st); err != nil {
		return nil, err
	}
	return &st, nil
}

func (c *Client) Readout(ctx context.Context) (*readout.Readout, error) {
	var r readout.Readout
	if err := c.getJSON(ctx, http.MethodGet, "/readout", &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// Start starts monitoring. Starting a running sampler is not an error.
func (c *Client) Start(ctx context.Context) (*State, error) {
	return c.transition(ctx, "/start")
}

// Stop stops monitoring. Stopping an idle sampler is not an error.
func (c *Client) Stop(ctx context.Context) (*State, error) {
	return c.transition(ctx, "/stop")
}

// Refresh requests an immediate sample.
func (c *Client) Refresh(ctx context.Context) (*State, error) {
	return c.transition(ctx, "/refresh")
}

func (c *Client) transition(ctx context.Context, endpoint string) (*State, error) {
	var st State
	if err := c.getJSON(ctx, http.MethodPost, endpoint, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// Chart returns the PNG rendering of series.
func (c *Client) Chart(ctx context.Context, series chart.Series) ([]byte, error) {
	body, _, err := c.do(ctx, http.MethodGet, "/charts/"+string(series)+".png", http.StatusOK)
	return body, err
}

// Subscribe streams state snapshots until ctx is cancelled or the connection drops. The
// channel is closed when the stream ends.
func (c *Client) Subscribe(ctx context.Context) (<-chan State, error) {
	wsURL := "ws" + strings.TrimPrefix(c.url, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return nil, errors.WrapIff(err, "connecting to %s", wsURL)
	}

	states := make(chan State)
	go func() {
		<-ctx.Done()
		conn.Close()
	}()
	go func() {
		defer close(states)
		defer conn.Close()
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				if ctx.Err() == nil {
					log.Debugf("state stream ended: %v", err)
				}
				return
			}
			var st State
			if err := json.Unmarshal(data, &st); err != nil {
				log.Errorf("error decoding state: %v", err)
				continue
			}
			select {
			case states <- st:
			case <-ctx.Done():
				return
			}
		}
	}()
	return states, nil
}
