package memctrl

import (
	"bytes"
	"errors"
	"math/rand"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/mock/gomock"
	"gopkg.in/yaml.v3"

	"github.com/sarchlab/memsim/instrumentation/hooking"
	"github.com/sarchlab/memsim/mem/memreq"
	"github.com/sarchlab/memsim/timing"
	"github.com/sarchlab/memsim/tracing"
)

type namedController string

func (n namedController) Name() string { return string(n) }

type funcHandler func(event any) error

func (f funcHandler) Handle(event any) error { return f(event) }

type milestoneRecorder struct {
	positions  []string
	milestones []tracing.ReqMilestone
}

func (r *milestoneRecorder) Func(ctx hooking.HookCtx) {
	r.positions = append(r.positions, ctx.Pos.Name)
	r.milestones = append(r.milestones, ctx.Item.(tracing.ReqMilestone))
}

var _ = Describe("Comp", func() {
	var (
		mockCtrl *gomock.Controller
		engine   *MockEventScheduler
		ic       *MockInterconnect
		arena    *memreq.Arena
		core     namedController
		c        *Comp
	)

	newReq := func(op memreq.OperationType, addr uint64) memreq.Handle {
		h := arena.Alloc(memreq.Request{Op: op, PhysAddr: addr, IsData: true})
		arena.Retain(h)

		return h
	}

	msgOf := func(h memreq.Handle) *Message {
		return &Message{Sender: core, Request: h}
	}

	BeforeEach(func() {
		mockCtrl = gomock.NewController(GinkgoT())
		engine = NewMockEventScheduler(mockCtrl)
		ic = NewMockInterconnect(mockCtrl)
		arena = memreq.NewArena(16)
		core = namedController("L2")

		c = MakeBuilder().
			WithEngine(engine).
			WithInterconnect(ic).
			WithRequestArena(arena).
			WithFreq(1 * timing.GHz).
			WithLatencyNs(10).
			WithNumBanks(4).
			WithMaxPending(4).
			Build("DRAM")
	})

	AfterEach(func() {
		mockCtrl.Finish()
	})

	Context("admission", func() {
		It("should acknowledge data responses without queueing", func() {
			h := newReq(memreq.OpRead, 0x1000)
			msg := msgOf(h)
			msg.HasData = true

			Expect(c.Submit(0, msg)).To(BeTrue())
			Expect(c.NumPending()).To(Equal(0))
			Expect(arena.Get(h).RefCount()).To(Equal(1))
		})

		It("should acknowledge evictions without queueing", func() {
			h := newReq(memreq.OpEvict, 0x1000)

			Expect(c.Submit(0, msgOf(h))).To(BeTrue())
			Expect(c.NumPending()).To(Equal(0))
		})

		It("should start an access on an idle bank", func() {
			h := newReq(memreq.OpRead, 0x1040)

			var scheduled timing.ScheduledEvent
			engine.EXPECT().Schedule(gomock.Any()).
				Do(func(evt timing.ScheduledEvent) { scheduled = evt })

			Expect(c.Submit(5, msgOf(h))).To(BeTrue())

			Expect(c.NumPending()).To(Equal(1))
			Expect(arena.Get(h).RefCount()).To(Equal(2))
			Expect(scheduled.Time).To(Equal(timing.VTimeInCycle(15)))
			Expect(scheduled.Handler).To(BeIdenticalTo(c))

			evt, ok := scheduled.Event.(accessCompletedEvent)
			Expect(ok).To(BeTrue())
			Expect(c.entries.MustGet(evt.entry).bank).To(Equal(1))
			Expect(c.banksBusy).To(Equal([]bool{false, true, false, false}))
		})

		It("should let requests wait for a busy bank", func() {
			engine.EXPECT().Schedule(gomock.Any()).Times(1)

			Expect(c.Submit(0, msgOf(newReq(memreq.OpRead, 0x0)))).To(BeTrue())
			Expect(c.Submit(0, msgOf(newReq(memreq.OpRead, 0x100)))).To(BeTrue())

			Expect(c.NumPending()).To(Equal(2))
			Expect(c.entries.MustGet(c.pending[1]).inService).To(BeFalse())
		})

		It("should serve different banks at the same time", func() {
			engine.EXPECT().Schedule(gomock.Any()).Times(2)

			c.Submit(0, msgOf(newReq(memreq.OpRead, 0x0)))
			c.Submit(0, msgOf(newReq(memreq.OpRead, 0x40)))
		})

		It("should refuse requests when the queue is at capacity", func() {
			engine.EXPECT().Schedule(gomock.Any()).AnyTimes()
			ic.EXPECT().SetControllerFull(c, true).Times(1)

			for i := 0; i < 4; i++ {
				Expect(c.Submit(0, msgOf(newReq(memreq.OpRead, uint64(i)<<6)))).
					To(BeTrue())
			}

			Expect(c.IsFull()).To(BeTrue())

			h := newReq(memreq.OpRead, 0x1000)
			Expect(c.Submit(0, msgOf(h))).To(BeFalse())
			Expect(c.NumPending()).To(Equal(4))
			Expect(arena.Get(h).RefCount()).To(Equal(1))
			Expect(c.Stats().Refused).To(Equal(uint64(1)))
		})

		It("should never exceed the capacity", func() {
			engine.EXPECT().Schedule(gomock.Any()).AnyTimes()
			ic.EXPECT().SetControllerFull(c, true).Times(1)

			rng := rand.New(rand.NewSource(1))
			for i := 0; i < 50; i++ {
				before := c.NumPending()
				addr := uint64(rng.Intn(64)) << 6
				accepted := c.Submit(0, msgOf(newReq(memreq.OpRead, addr)))

				Expect(accepted).To(Equal(before < 4))
				Expect(c.NumPending()).To(BeNumerically("<=", 4))
			}
		})

		It("should count pending requests per core", func() {
			engine.EXPECT().Schedule(gomock.Any()).AnyTimes()

			for i, coreID := range []int{0, 1, 1} {
				h := arena.Alloc(memreq.Request{
					Op: memreq.OpRead, PhysAddr: uint64(i) << 6, CoreID: coreID,
				})
				c.Submit(0, msgOf(h))
			}

			Expect(c.PendingCount(0)).To(Equal(1))
			Expect(c.PendingCount(1)).To(Equal(2))
			Expect(c.PendingCount(2)).To(Equal(0))
		})
	})

	Context("merging", func() {
		BeforeEach(func() {
			engine.EXPECT().Schedule(gomock.Any()).Times(1)
			c.Submit(0, msgOf(newReq(memreq.OpRead, 0x1100)))
		})

		It("should merge an update into a waiting update", func() {
			first := newReq(memreq.OpUpdate, 0x1000)
			second := newReq(memreq.OpUpdate, 0x1000)

			Expect(c.Submit(1, msgOf(first))).To(BeTrue())
			Expect(c.Submit(2, msgOf(second))).To(BeTrue())

			Expect(c.NumPending()).To(Equal(2))
			Expect(arena.Get(second).RefCount()).To(Equal(1))
			Expect(c.Stats().Merged).To(Equal(uint64(1)))
		})

		It("should not merge across a request of another kind", func() {
			ic.EXPECT().SetControllerFull(c, true)

			c.Submit(1, msgOf(newReq(memreq.OpUpdate, 0x1000)))
			c.Submit(2, msgOf(newReq(memreq.OpWrite, 0x1000)))
			c.Submit(3, msgOf(newReq(memreq.OpUpdate, 0x1000)))

			Expect(c.NumPending()).To(Equal(4))
			Expect(c.Stats().Merged).To(BeZero())
		})

		It("should not merge into an update in service", func() {
			engine.EXPECT().Schedule(gomock.Any()).Times(1)

			c.Submit(1, msgOf(newReq(memreq.OpUpdate, 0x2040)))
			c.Submit(2, msgOf(newReq(memreq.OpUpdate, 0x2040)))

			Expect(c.NumPending()).To(Equal(3))
		})
	})

	Context("annulment", func() {
		var inService, waiting memreq.Handle
		var completion timing.ScheduledEvent

		BeforeEach(func() {
			engine.EXPECT().Schedule(gomock.Any()).
				Do(func(evt timing.ScheduledEvent) { completion = evt })

			inService = newReq(memreq.OpRead, 0x0)
			waiting = newReq(memreq.OpRead, 0x100)
			c.Submit(0, msgOf(inService))
			c.Submit(0, msgOf(waiting))
		})

		It("should release waiting entries at once", func() {
			twin := arena.Alloc(*arena.Get(waiting))

			Expect(c.Annul(3, twin)).To(Equal(1))

			Expect(c.NumPending()).To(Equal(1))
			Expect(arena.Get(waiting).RefCount()).To(Equal(1))
			Expect(c.Stats().Annulled).To(Equal(uint64(1)))
		})

		It("should release entries in service silently when they complete", func() {
			Expect(c.Annul(3, inService)).To(Equal(1))
			Expect(c.NumPending()).To(Equal(2))

			engine.EXPECT().Schedule(gomock.Any())
			Expect(c.Handle(completion.Event)).To(Succeed())

			Expect(c.NumPending()).To(Equal(1))
			Expect(arena.Get(inService).RefCount()).To(Equal(1))
			Expect(c.entries.MustGet(c.pending[0]).inService).To(BeTrue())
		})

		It("should ignore requests that are not queued", func() {
			other := newReq(memreq.OpWrite, 0x0)

			Expect(c.Annul(3, other)).To(Equal(0))
			Expect(c.NumPending()).To(Equal(2))
		})
	})

	Context("delivery", func() {
		var h memreq.Handle
		var completion timing.ScheduledEvent

		BeforeEach(func() {
			engine.EXPECT().Schedule(gomock.Any()).
				Do(func(evt timing.ScheduledEvent) { completion = evt })

			h = newReq(memreq.OpRead, 0x80)
			c.Submit(0, msgOf(h))
		})

		It("should send the response to the origin", func() {
			ic.EXPECT().TryAccept(timing.VTimeInCycle(10), gomock.Any()).
				DoAndReturn(func(_ timing.VTimeInCycle, msg *Message) bool {
					Expect(msg.Sender).To(BeIdenticalTo(c))
					Expect(msg.Dest).To(Equal(core))
					Expect(msg.Request).To(Equal(h))
					Expect(msg.HasData).To(BeTrue())
					Expect(msg.ID).NotTo(BeZero())

					return true
				})

			Expect(c.Handle(completion.Event)).To(Succeed())

			Expect(c.NumPending()).To(Equal(0))
			Expect(arena.Get(h).RefCount()).To(Equal(1))
			Expect(c.Stats().Delivered).To(Equal(uint64(1)))
			Expect(c.Stats().Banks[2].User.Read).To(Equal(uint64(1)))
		})

		It("should retry one cycle later when the interconnect refuses", func() {
			ic.EXPECT().TryAccept(timing.VTimeInCycle(10), gomock.Any()).
				Return(false)

			var retry timing.ScheduledEvent
			engine.EXPECT().Schedule(gomock.Any()).
				Do(func(evt timing.ScheduledEvent) { retry = evt })

			Expect(c.Handle(completion.Event)).To(Succeed())

			Expect(retry.Time).To(Equal(timing.VTimeInCycle(11)))
			Expect(retry.Event).To(BeAssignableToTypeOf(waitInterconnectEvent{}))
			Expect(c.NumPending()).To(Equal(1))
			Expect(c.banksBusy[2]).To(BeFalse())
		})

		It("should not deliver an entry annulled while waiting for retry", func() {
			ic.EXPECT().TryAccept(gomock.Any(), gomock.Any()).Return(false)

			var retry timing.ScheduledEvent
			engine.EXPECT().Schedule(gomock.Any()).
				Do(func(evt timing.ScheduledEvent) { retry = evt })

			Expect(c.Handle(completion.Event)).To(Succeed())
			c.Annul(10, h)
			Expect(c.Handle(retry.Event)).To(Succeed())

			Expect(c.NumPending()).To(Equal(0))
		})
	})

	It("should not send responses for updates", func() {
		var completion timing.ScheduledEvent
		engine.EXPECT().Schedule(gomock.Any()).
			Do(func(evt timing.ScheduledEvent) { completion = evt })

		h := arena.Alloc(memreq.Request{
			Op:       memreq.OpUpdate,
			PhysAddr: 0x0,
			OwnerRIP: 0xffff_ffff_8100_0000,
		})
		c.Submit(0, msgOf(h))

		Expect(c.Handle(completion.Event)).To(Succeed())

		_, alive := arena.Lookup(h)
		Expect(alive).To(BeFalse())
		Expect(c.NumPending()).To(Equal(0))
		Expect(c.Stats().Banks[0].Kernel.Update).To(Equal(uint64(1)))
		Expect(c.Stats().TotalAccesses()).To(Equal(uint64(1)))
	})

	It("should reject unknown events", func() {
		err := c.Handle("tick")

		Expect(errors.Is(err, ErrUnknownEvent)).To(BeTrue())
	})

	It("should dump its configuration", func() {
		engine.EXPECT().Schedule(gomock.Any())
		c.Submit(0, msgOf(newReq(memreq.OpRead, 0x0)))

		buf := new(bytes.Buffer)
		Expect(c.DumpConfiguration(buf)).To(Succeed())

		var doc map[string]map[string]any
		Expect(yaml.Unmarshal(buf.Bytes(), &doc)).To(Succeed())
		Expect(doc).To(HaveKey("DRAM"))
		Expect(doc["DRAM"]).To(Equal(map[string]any{
			"type":                 "dram_cont",
			"number_of_banks":      4,
			"latency":              10,
			"latency_ns":           10,
			"max_pending_requests": 4,
			"pending_queue_size":   1,
		}))
	})

	It("should describe its queue", func() {
		engine.EXPECT().Schedule(gomock.Any())
		c.Submit(0, msgOf(newReq(memreq.OpRead, 0xc0)))

		s := c.String()
		Expect(s).To(ContainSubstring("---Memory-Controller: DRAM"))
		Expect(s).To(ContainSubstring("source[L2]"))
		Expect(s).To(ContainSubstring("banksUsed: 3"))
	})

	It("should raise request milestones", func() {
		rec := &milestoneRecorder{}
		c.AcceptHook(rec)

		var completion timing.ScheduledEvent
		engine.EXPECT().Schedule(gomock.Any()).
			Do(func(evt timing.ScheduledEvent) { completion = evt })
		ic.EXPECT().TryAccept(gomock.Any(), gomock.Any()).Return(true)

		c.Submit(0, msgOf(newReq(memreq.OpRead, 0x0)))
		Expect(c.Handle(completion.Event)).To(Succeed())

		Expect(rec.positions).To(Equal([]string{
			"ReqReceive", "ReqStart", "ReqComplete", "ReqDeliver",
		}))
		Expect(rec.milestones[0].ID).To(Equal(rec.milestones[3].ID))
		Expect(rec.milestones[0].Where).To(Equal("DRAM"))
		Expect(rec.milestones[3].Time).To(Equal(timing.VTimeInCycle(10)))
	})
})

var _ = Describe("Builder", func() {
	var (
		mockCtrl *gomock.Controller
		builder  Builder
	)

	BeforeEach(func() {
		mockCtrl = gomock.NewController(GinkgoT())
		builder = MakeBuilder().
			WithEngine(NewMockEventScheduler(mockCtrl)).
			WithInterconnect(NewMockInterconnect(mockCtrl)).
			WithRequestArena(memreq.NewArena(4))
	})

	It("should convert the latency to cycles", func() {
		c := builder.WithFreq(2 * timing.GHz).Build("DRAM")

		Expect(c.Latency()).To(Equal(timing.VTimeInCycle(100)))
		Expect(c.NumBanks()).To(Equal(DefaultNumBanks))
		Expect(c.MaxPending()).To(Equal(DefaultMaxPending))
	})

	It("should accept a latency in cycles", func() {
		c := builder.WithLatencyCycles(7).Build("DRAM")

		Expect(c.Latency()).To(Equal(timing.VTimeInCycle(7)))
	})

	DescribeTable("should panic on invalid parameters",
		func(mutate func(b Builder) Builder) {
			Expect(func() { mutate(builder).Build("DRAM") }).To(Panic())
		},
		Entry("banks not a power of two",
			func(b Builder) Builder { return b.WithNumBanks(3) }),
		Entry("no banks",
			func(b Builder) Builder { return b.WithNumBanks(0) }),
		Entry("zero capacity",
			func(b Builder) Builder { return b.WithMaxPending(0) }),
		Entry("zero frequency",
			func(b Builder) Builder { return b.WithFreq(0) }),
		Entry("zero latency",
			func(b Builder) Builder { return b.WithLatencyNs(0) }),
		Entry("no engine",
			func(b Builder) Builder { return b.WithEngine(nil) }),
		Entry("no arena",
			func(b Builder) Builder { return b.WithRequestArena(nil) }),
	)
})
