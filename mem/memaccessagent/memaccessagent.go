// Package memaccessagent provides a traffic generator that drives memory
// controllers with random requests and checks their responses.
package memaccessagent

import (
	"fmt"
	"log"
	"math/rand"

	"github.com/sarchlab/memsim/idgen"
	"github.com/sarchlab/memsim/mem/memctrl"
	"github.com/sarchlab/memsim/mem/memreq"
	"github.com/sarchlab/memsim/timing"
)

// Memory is what the agent sends requests to.
type Memory interface {
	memctrl.Controller
	Submit(now timing.VTimeInCycle, msg *memctrl.Message) bool
	Annul(now timing.VTimeInCycle, h memreq.Handle) int
}

// Stats counts what happened to the requests of an agent.
type Stats struct {
	Issued             uint64
	SubmitRefused      uint64
	Responded          uint64
	ResponsesRefused   uint64
	Annulled           uint64
	AnnulledResponded  uint64
	UnexpectedResponse uint64
	TotalLatency       uint64
}

// AverageLatency returns the average number of cycles between issuing a
// request and receiving its response.
func (s Stats) AverageLatency() float64 {
	if s.Responded == 0 {
		return 0
	}

	return float64(s.TotalLatency) / float64(s.Responded)
}

type tickEvent struct {
	time timing.VTimeInCycle
}

type outstandingReq struct {
	req       memreq.Handle
	issueTime timing.VTimeInCycle
}

// A MemAccessAgent plays the cores and the interconnect above a memory
// controller. It issues at most one request per cycle.
type MemAccessAgent struct {
	name     string
	engine   timing.EventScheduler
	requests *memreq.Arena
	idGen    idgen.Generator
	rng      *rand.Rand
	memory   Memory

	requestsLeft   int
	numCores       int
	maxOutstanding int
	addressSpace   uint64
	writeRatio     float64
	updateRatio    float64
	annulRatio     float64
	refuseRatio    float64
	ignoreFull     bool
	logRequests    bool

	nextRobID   int
	ticking     bool
	memoryFull  bool
	retry       *memctrl.Message
	outstanding []outstandingReq
	annulled    map[memreq.Handle]bool

	stats Stats
}

// Name returns the name of the agent.
func (a *MemAccessAgent) Name() string {
	return a.name
}

// ConnectMemory sets the memory that receives the requests.
func (a *MemAccessAgent) ConnectMemory(m Memory) {
	a.memory = m
}

// Start schedules the first tick of the agent.
func (a *MemAccessAgent) Start(now timing.VTimeInCycle) {
	if a.memory == nil {
		log.Panicf("agent %s is not connected to a memory", a.name)
	}

	a.scheduleTick(now)
}

// Stats returns the counters of the agent.
func (a *MemAccessAgent) Stats() Stats {
	return a.stats
}

// NumOutstanding returns the number of requests waiting for a response.
func (a *MemAccessAgent) NumOutstanding() int {
	return len(a.outstanding)
}

// Done tells if all the requests have been issued and answered or annulled.
func (a *MemAccessAgent) Done() bool {
	return a.requestsLeft == 0 && a.retry == nil && len(a.outstanding) == 0
}

func (a *MemAccessAgent) scheduleTick(t timing.VTimeInCycle) {
	if a.ticking {
		return
	}

	a.ticking = true
	a.engine.Schedule(timing.ScheduledEvent{
		Event:   tickEvent{time: t},
		Time:    t,
		Handler: a,
	})
}

// Handle processes the ticks of the agent.
func (a *MemAccessAgent) Handle(event any) error {
	evt, ok := event.(tickEvent)
	if !ok {
		return fmt.Errorf("agent %s cannot handle %T", a.name, event)
	}

	a.ticking = false
	a.tick(evt.time)

	if a.requestsLeft > 0 || a.retry != nil {
		a.scheduleTick(evt.time + 1)
	}

	return nil
}

func (a *MemAccessAgent) tick(now timing.VTimeInCycle) {
	a.maybeAnnul(now)

	if a.memoryFull && !a.ignoreFull {
		return
	}

	if a.retry != nil {
		msg := a.retry
		a.retry = nil
		a.submit(now, msg)

		return
	}

	if a.requestsLeft == 0 || len(a.outstanding) >= a.maxOutstanding {
		return
	}

	a.requestsLeft--
	a.submit(now, a.newRequest(now))
}

func (a *MemAccessAgent) newRequest(now timing.VTimeInCycle) *memctrl.Message {
	op := memreq.OpRead

	dice := a.rng.Float64()
	switch {
	case dice < a.updateRatio:
		op = memreq.OpUpdate
	case dice < a.updateRatio+a.writeRatio:
		op = memreq.OpWrite
	}

	rip := uint64(0x40_0000) + uint64(a.rng.Intn(1<<16))
	if a.rng.Intn(8) == 0 {
		rip |= 0xffff_ffff_8000_0000
	}

	a.nextRobID++

	h := a.requests.Alloc(memreq.Request{
		Op:        op,
		PhysAddr:  a.rng.Uint64() % (a.addressSpace >> 6) << 6,
		CoreID:    a.rng.Intn(a.numCores),
		RobID:     a.nextRobID,
		InitCycle: now,
		OwnerRIP:  rip,
		OwnerUUID: uint64(a.idGen.Generate()),
		IsData:    op != memreq.OpRead || a.rng.Intn(10) != 0,
	})
	a.requests.Retain(h)

	return &memctrl.Message{
		ID:      a.idGen.Generate(),
		Sender:  a,
		Dest:    a.memory,
		Request: h,
	}
}

func (a *MemAccessAgent) submit(now timing.VTimeInCycle, msg *memctrl.Message) {
	if !a.memory.Submit(now, msg) {
		a.stats.SubmitRefused++
		a.retry = msg

		return
	}

	a.stats.Issued++
	req := a.requests.Get(msg.Request)

	if a.logRequests {
		log.Printf("%d, %s, issue, %s, 0x%X\n", now, a.name, req.Op, req.PhysAddr)
	}

	if req.Op == memreq.OpUpdate {
		a.requests.Release(msg.Request)
		return
	}

	a.outstanding = append(a.outstanding, outstandingReq{
		req:       msg.Request,
		issueTime: now,
	})
}

func (a *MemAccessAgent) maybeAnnul(now timing.VTimeInCycle) {
	if len(a.outstanding) == 0 || a.rng.Float64() >= a.annulRatio {
		return
	}

	i := a.rng.Intn(len(a.outstanding))
	o := a.outstanding[i]

	if a.requests.Get(o.req).Op != memreq.OpRead {
		return
	}

	a.memory.Annul(now, o.req)
	a.removeOutstanding(i)
	a.annulled[o.req] = true
	a.stats.Annulled++
	a.requests.Release(o.req)
}

func (a *MemAccessAgent) removeOutstanding(i int) {
	a.outstanding = append(a.outstanding[:i], a.outstanding[i+1:]...)
}

// TryAccept receives a response from the memory. It randomly refuses some of
// them to exercise the retry of the memory.
func (a *MemAccessAgent) TryAccept(
	now timing.VTimeInCycle,
	msg *memctrl.Message,
) bool {
	if a.rng.Float64() < a.refuseRatio {
		a.stats.ResponsesRefused++
		return false
	}

	if a.annulled[msg.Request] {
		a.stats.AnnulledResponded++
		return true
	}

	for i, o := range a.outstanding {
		if o.req != msg.Request {
			continue
		}

		a.removeOutstanding(i)
		a.stats.Responded++
		a.stats.TotalLatency += uint64(now - o.issueTime)

		if a.logRequests {
			log.Printf("%d, %s, response, %s\n", now, a.name,
				a.requests.Get(o.req))
		}

		a.requests.Release(o.req)

		return true
	}

	a.stats.UnexpectedResponse++

	return true
}

// SetControllerFull records whether the memory can take more requests.
func (a *MemAccessAgent) SetControllerFull(_ memctrl.Controller, isFull bool) {
	a.memoryFull = isFull
}

var _ memctrl.Interconnect = (*MemAccessAgent)(nil)
