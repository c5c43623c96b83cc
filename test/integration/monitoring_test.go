package integration

import (
	"bytes"
	"image/png"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/voluzi/pagepulse/pkg/agent"
	"github.com/voluzi/pagepulse/pkg/chart"
	"github.com/voluzi/pagepulse/pkg/sampler"
	"github.com/voluzi/pagepulse/test/framework"
)

var _ = Describe("Monitoring", func() {
	Context("Lifecycle", func() {
		It("should build a history while running",
			WithAgent(func(f *framework.AgentFramework) {
				Expect(f.Mock.SetCounters(1000, 10, 0, 0)).To(Succeed())

				st, err := f.Client.Start(f.Context())
				Expect(err).NotTo(HaveOccurred())
				Expect(st.State).To(Equal(sampler.Running))

				Expect(f.Mock.AddActivity(10, 2, 0, 0)).To(Succeed())
				Eventually(PointCount(f)).Should(BeNumerically(">=", 2))

				st = CurrentState(f)
				Expect(st.Health).To(Equal(sampler.Healthy))
				Expect(st.Status).To(Equal(sampler.StatusMonitoring))
				Expect(st.Baseline).NotTo(BeNil())
				Expect(*st.Baseline).To(Equal(int64(1000)))
				for _, p := range st.Points {
					Expect(p.Stress).To(BeNumerically(">=", 0))
					Expect(p.Stress).To(BeNumerically("<=", 100))
				}

				ready, err := f.Client.Ready(f.Context())
				Expect(err).NotTo(HaveOccurred())
				Expect(ready).To(BeTrue())
			}),
		)

		It("should keep history readable after stop and clear it on restart",
			WithAgent(func(f *framework.AgentFramework) {
				Expect(f.Mock.SetCounters(500, 1, 0, 0)).To(Succeed())
				_, err := f.Client.Start(f.Context())
				Expect(err).NotTo(HaveOccurred())
				Eventually(PointCount(f)).Should(BeNumerically(">=", 2))

				st, err := f.Client.Stop(f.Context())
				Expect(err).NotTo(HaveOccurred())
				Expect(st.State).To(Equal(sampler.Idle))
				Expect(st.Enabled).To(BeFalse())
				kept := len(st.Points)
				Expect(kept).To(BeNumerically(">=", 2))
				Consistently(PointCount(f), "1s").Should(Equal(kept))

				st, err = f.Client.Start(f.Context())
				Expect(err).NotTo(HaveOccurred())
				Expect(st.Points).To(BeEmpty())
			}),
		)

		It("should reject transitions while busy",
			WithAgent(func(f *framework.AgentFramework) {
				release := f.Busy.Hold()
				_, err := f.Client.Start(f.Context())
				Expect(err).To(MatchError(agent.ErrRejected))
				Expect(CurrentState(f).Status).To(Equal(sampler.StatusBusy))
				Expect(CurrentState(f).State).To(Equal(sampler.Idle))

				release()
				_, err = f.Client.Start(f.Context())
				Expect(err).NotTo(HaveOccurred())
			}),
		)
	})

	Context("Failures", func() {
		It("should degrade and recover without stopping the timer",
			WithAgent(func(f *framework.AgentFramework) {
				Expect(f.Mock.SetCounters(100, 0, 0, 0)).To(Succeed())
				_, err := f.Client.Start(f.Context())
				Expect(err).NotTo(HaveOccurred())
				Eventually(PointCount(f)).Should(BeNumerically(">=", 1))

				Expect(f.Mock.Unreachable("connection refused")).To(Succeed())
				Eventually(func() sampler.Health { return CurrentState(f).Health }).Should(Equal(sampler.Degraded))
				st := CurrentState(f)
				Expect(st.State).To(Equal(sampler.Running))
				Expect(st.Status).To(Equal(sampler.StatusCollectionFailed))
				Expect(st.Error).To(ContainSubstring("connection refused"))
				Expect(st.Points).NotTo(BeEmpty())

				Expect(f.Mock.Unreachable("")).To(Succeed())
				Expect(f.Mock.Fail("navigating")).To(Succeed())
				Eventually(func() string { return CurrentState(f).Status }).Should(Equal(sampler.StatusSnapshotError))

				Expect(f.Mock.Fail("")).To(Succeed())
				Eventually(func() sampler.Health { return CurrentState(f).Health }).Should(Equal(sampler.Healthy))
			}),
		)
	})

	Context("Presentation", func() {
		It("should render every chart",
			WithAgent(func(f *framework.AgentFramework) {
				Expect(f.Mock.SetCounters(1000, 10, 0, 0)).To(Succeed())
				_, err := f.Client.Start(f.Context())
				Expect(err).NotTo(HaveOccurred())
				Eventually(PointCount(f)).Should(BeNumerically(">=", 2))

				for _, series := range chart.AllSeries {
					b, err := f.Client.Chart(f.Context(), series)
					Expect(err).NotTo(HaveOccurred())
					img, err := png.Decode(bytes.NewReader(b))
					Expect(err).NotTo(HaveOccurred())
					Expect(img.Bounds().Dx()).To(Equal(600))
					Expect(img.Bounds().Dy()).To(Equal(300))
				}
			}, framework.WithPixelRatio(2)),
		)

		It("should format readouts",
			WithAgent(func(f *framework.AgentFramework) {
				r, err := f.Client.Readout(f.Context())
				Expect(err).NotTo(HaveOccurred())
				Expect(r.DOMNodes).To(Equal("—"))

				Expect(f.Mock.SetCounters(1234, 10, 0, 0)).To(Succeed())
				_, err = f.Client.Start(f.Context())
				Expect(err).NotTo(HaveOccurred())
				Eventually(func() string {
					r, err := f.Client.Readout(f.Context())
					if err != nil {
						return ""
					}
					return r.DOMNodes
				}).Should(Equal("1234"))
			}),
		)

		It("should stream state updates",
			WithAgent(func(f *framework.AgentFramework) {
				states, err := f.Client.Subscribe(f.Context())
				Expect(err).NotTo(HaveOccurred())

				var initial agent.State
				Eventually(states).Should(Receive(&initial))
				Expect(initial.State).To(Equal(sampler.Idle))

				Expect(f.Mock.SetCounters(42, 0, 0, 0)).To(Succeed())
				_, err = f.Client.Start(f.Context())
				Expect(err).NotTo(HaveOccurred())

				Eventually(func() int64 {
					select {
					case st := <-states:
						if st.Totals != nil {
							return st.Totals.DOMNodes
						}
					default:
					}
					return 0
				}).Should(Equal(int64(42)))
			}),
		)
	})
})
