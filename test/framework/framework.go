package framework

import (
	"context"
	"net/http/httptest"

	"github.com/voluzi/pagepulse/pkg/agent"
	"github.com/voluzi/pagepulse/pkg/busy"
	"github.com/voluzi/pagepulse/pkg/model"
	"github.com/voluzi/pagepulse/pkg/sampler"
	"github.com/voluzi/pagepulse/pkg/snapshot"
)

// AgentFramework runs an agent in mock mode behind a local test server.
type AgentFramework struct {
	Cfg     *Configs
	Busy    *busy.Flag
	Mock    *MockHelper
	Sampler *sampler.Sampler
	Agent   *agent.Agent
	Client  *agent.Client

	server *httptest.Server
	ctx    context.Context
	cancel context.CancelFunc
}

func New(cfgs ...Config) *AgentFramework {
	config := defaultConfig()
	for _, cfg := range cfgs {
		cfg(config)
	}
	return &AgentFramework{Cfg: config, Busy: &busy.Flag{}}
}

func (f *AgentFramework) Setup() error {
	f.ctx, f.cancel = context.WithCancel(context.Background())

	provider := snapshot.NewMockProvider()
	f.Sampler = sampler.New(model.New(f.Cfg.HistorySize), provider,
		sampler.WithInterval(f.Cfg.Interval),
		sampler.WithBusyGuard(f.Busy),
	)
	f.Agent = agent.New(f.Sampler,
		agent.WithMock(provider),
		agent.WithPixelRatio(f.Cfg.PixelRatio),
	)
	f.server = httptest.NewServer(f.Agent.Handler())
	f.Client = agent.NewClientFromURL(f.server.URL)
	f.Mock = NewMockHelper(f.server.URL)
	return nil
}

func (f *AgentFramework) TearDown() error {
	if f.cancel != nil {
		f.cancel()
	}
	if f.Sampler != nil {
		f.Sampler.Close()
	}
	if f.server != nil {
		f.server.CloseClientConnections()
		f.server.Close()
	}
	return nil
}

func (f *AgentFramework) Context() context.Context {
	return f.ctx
}

func (f *AgentFramework) URL() string {
	return f.server.URL
}
