package integration

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/voluzi/pagepulse/pkg/agent"
	"github.com/voluzi/pagepulse/test/framework"
)

// WithAgent runs fn against a freshly started mock-mode agent.
func WithAgent(fn func(f *framework.AgentFramework), cfgs ...framework.Config) func() {
	return func() {
		f := framework.New(cfgs...)
		Expect(f.Setup()).To(Succeed())
		DeferCleanup(f.TearDown)
		fn(f)
	}
}

// CurrentState fetches the agent state, failing the spec on transport errors.
func CurrentState(f *framework.AgentFramework) *agent.State {
	st, err := f.Client.State(f.Context())
	Expect(err).NotTo(HaveOccurred())
	return st
}

// PointCount returns a poller for the number of history points.
func PointCount(f *framework.AgentFramework) func() int {
	return func() int {
		st, err := f.Client.State(f.Context())
		if err != nil {
			return -1
		}
		return len(st.Points)
	}
}
