package memctrl

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/mock/gomock"

	"github.com/sarchlab/memsim/mem/memreq"
	"github.com/sarchlab/memsim/timing"
	"github.com/sarchlab/memsim/tracing"
)

var _ = Describe("Memory controller in a simulation", func() {
	var (
		mockCtrl *gomock.Controller
		engine   *timing.SerialEngine
		ic       *MockInterconnect
		arena    *memreq.Arena
		core     namedController
	)

	build := func(numBanks, maxPending int) *Comp {
		return MakeBuilder().
			WithEngine(engine).
			WithInterconnect(ic).
			WithRequestArena(arena).
			WithLatencyCycles(10).
			WithNumBanks(numBanks).
			WithMaxPending(maxPending).
			Build("DRAM")
	}

	read := func(addr uint64, robID int) *Message {
		h := arena.Alloc(memreq.Request{
			Op: memreq.OpRead, PhysAddr: addr, RobID: robID, IsData: true,
		})
		arena.Retain(h)

		return &Message{Sender: core, Request: h}
	}

	at := func(t timing.VTimeInCycle, f func()) {
		engine.Schedule(timing.ScheduledEvent{
			Event: "callback",
			Time:  t,
			Handler: funcHandler(func(any) error {
				f()
				return nil
			}),
			IsSecondary: true,
		})
	}

	BeforeEach(func() {
		mockCtrl = gomock.NewController(GinkgoT())
		engine = timing.NewSerialEngine()
		ic = NewMockInterconnect(mockCtrl)
		arena = memreq.NewArena(16)
		core = namedController("L2")
	})

	AfterEach(func() {
		mockCtrl.Finish()
	})

	It("should respond to a read after the latency", func() {
		c := build(1, 4)
		msg := read(0x1000, 1)

		ic.EXPECT().TryAccept(timing.VTimeInCycle(10), gomock.Any()).Return(true)

		Expect(c.Submit(0, msg)).To(BeTrue())
		Expect(engine.Run()).To(Succeed())

		Expect(engine.CurrentTime()).To(Equal(timing.VTimeInCycle(10)))
		Expect(c.NumPending()).To(Equal(0))
		Expect(arena.Get(msg.Request).RefCount()).To(Equal(1))
	})

	It("should keep one entry for back-to-back updates", func() {
		c := build(1, 4)
		ic.EXPECT().TryAccept(gomock.Any(), gomock.Any()).Return(true).AnyTimes()

		Expect(c.Submit(0, read(0x2000, 1))).To(BeTrue())

		updates := make([]memreq.Handle, 2)
		for i := range updates {
			updates[i] = arena.Alloc(memreq.Request{
				Op: memreq.OpUpdate, PhysAddr: 0x1000,
			})
			arena.Retain(updates[i])
			Expect(c.Submit(0, &Message{Sender: core, Request: updates[i]})).
				To(BeTrue())
		}

		Expect(arena.Get(updates[0]).RefCount()).To(Equal(2))
		Expect(arena.Get(updates[1]).RefCount()).To(Equal(1))
		for _, h := range updates {
			arena.Release(h)
		}

		_, alive := arena.Lookup(updates[1])
		Expect(alive).To(BeFalse())

		count := 0
		for _, eh := range c.pending {
			if arena.Get(c.entries.MustGet(eh).req).PhysAddr == 0x1000 {
				count++
			}
		}
		Expect(count).To(Equal(1))

		Expect(engine.Run()).To(Succeed())
		Expect(c.NumPending()).To(Equal(0))
		Expect(c.Stats().Merged).To(Equal(uint64(1)))

		_, alive = arena.Lookup(updates[0])
		Expect(alive).To(BeFalse())
	})

	It("should take new requests once a response is delivered", func() {
		c := build(1, 2)

		gomock.InOrder(
			ic.EXPECT().SetControllerFull(c, true),
			ic.EXPECT().TryAccept(timing.VTimeInCycle(10), gomock.Any()).
				Return(true),
			ic.EXPECT().SetControllerFull(c, false),
		)
		ic.EXPECT().SetControllerFull(c, true)
		ic.EXPECT().TryAccept(gomock.Any(), gomock.Any()).Return(true).Times(2)
		ic.EXPECT().SetControllerFull(c, false)

		Expect(c.Submit(0, read(0x0, 1))).To(BeTrue())
		Expect(c.Submit(0, read(0x40, 2))).To(BeTrue())
		Expect(c.Submit(0, read(0x80, 3))).To(BeFalse())

		accepted := false
		at(10, func() {
			accepted = c.Submit(10, read(0xc0, 4))
		})

		Expect(engine.Run()).To(Succeed())

		Expect(accepted).To(BeTrue())
		Expect(engine.CurrentTime()).To(Equal(timing.VTimeInCycle(30)))
		Expect(c.Stats().Refused).To(Equal(uint64(1)))
	})

	It("should never answer an annulled read", func() {
		c := build(1, 4)
		ic.EXPECT().TryAccept(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ timing.VTimeInCycle, msg *Message) bool {
				Expect(arena.Get(msg.Request).RobID).To(Equal(1))
				return true
			})

		first := read(0x0, 1)
		second := read(0x40, 2)
		Expect(c.Submit(0, first)).To(BeTrue())
		Expect(c.Submit(0, second)).To(BeTrue())

		Expect(c.Annul(2, second.Request)).To(Equal(1))
		Expect(c.NumPending()).To(Equal(1))
		Expect(arena.Get(second.Request).RefCount()).To(Equal(1))

		Expect(engine.Run()).To(Succeed())
		Expect(c.NumPending()).To(Equal(0))
	})

	It("should drop an annulled read at the end of its access", func() {
		c := build(1, 4)

		msg := read(0x0, 1)
		Expect(c.Submit(0, msg)).To(BeTrue())
		at(5, func() { c.Annul(5, msg.Request) })

		Expect(engine.Run()).To(Succeed())

		Expect(engine.CurrentTime()).To(Equal(timing.VTimeInCycle(10)))
		Expect(c.NumPending()).To(Equal(0))
		Expect(arena.Get(msg.Request).RefCount()).To(Equal(1))
	})

	It("should attempt delivery on consecutive cycles until accepted", func() {
		c := build(1, 4)

		gomock.InOrder(
			ic.EXPECT().TryAccept(timing.VTimeInCycle(10), gomock.Any()).Return(false),
			ic.EXPECT().TryAccept(timing.VTimeInCycle(11), gomock.Any()).Return(false),
			ic.EXPECT().TryAccept(timing.VTimeInCycle(12), gomock.Any()).Return(false),
			ic.EXPECT().TryAccept(timing.VTimeInCycle(13), gomock.Any()).Return(true),
		)
		ic.EXPECT().TryAccept(timing.VTimeInCycle(20), gomock.Any()).Return(true)

		Expect(c.Submit(0, read(0x0, 1))).To(BeTrue())
		Expect(c.Submit(0, read(0x40, 2))).To(BeTrue())

		Expect(engine.Run()).To(Succeed())

		Expect(c.Stats().DeliveryRetries).To(Equal(uint64(3)))
		Expect(c.Stats().Delivered).To(Equal(uint64(2)))
	})

	It("should serve each bank one access at a time", func() {
		c := build(4, 16)
		ic.EXPECT().TryAccept(gomock.Any(), gomock.Any()).Return(true).AnyTimes()
		ic.EXPECT().SetControllerFull(c, gomock.Any()).AnyTimes()

		busyUntil := map[int]timing.VTimeInCycle{}
		rec := &milestoneRecorder{}
		c.AcceptHook(rec)

		for i := 0; i < 12; i++ {
			Expect(c.Submit(0, read(uint64(i*i)<<6, i))).To(BeTrue())
		}

		Expect(engine.Run()).To(Succeed())

		for i, pos := range rec.positions {
			m := rec.milestones[i]

			switch pos {
			case tracing.HookPosReqStart.Name:
				Expect(m.Time).To(BeNumerically(">=", busyUntil[m.Bank]))
				busyUntil[m.Bank] = m.Time + 10
			case tracing.HookPosReqComplete.Name:
				Expect(m.Time).To(Equal(busyUntil[m.Bank]))
			}
		}

		Expect(c.Stats().TotalAccesses()).To(Equal(uint64(12)))
	})
})
