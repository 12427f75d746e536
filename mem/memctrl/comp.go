// Package memctrl models a banked DRAM controller with a bounded queue and a
// fixed access latency.
package memctrl

import (
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/sarchlab/memsim/idgen"
	"github.com/sarchlab/memsim/instrumentation/hooking"
	"github.com/sarchlab/memsim/mem/memreq"
	"github.com/sarchlab/memsim/mem/pool"
	"github.com/sarchlab/memsim/timing"
	"github.com/sarchlab/memsim/tracing"
)

// ErrUnknownEvent is returned when the controller is asked to handle an event
// it never schedules.
var ErrUnknownEvent = errors.New("memctrl: unknown event")

// cacheLineBits is log2 of the 64-byte line that maps to one bank.
const cacheLineBits = 6

// A queueEntry is a request waiting for or being served by a bank.
type queueEntry struct {
	id     idgen.ID
	req    memreq.Handle
	origin Controller
	bank   int

	// inService stays set from the start of the bank access until the
	// entry leaves the queue, delivery retries included.
	inService bool
	annulled  bool
}

// Comp is a memory controller.
type Comp struct {
	*hooking.HookableBase

	name         string
	engine       timing.EventScheduler
	requests     *memreq.Arena
	interconnect Interconnect
	idGen        idgen.Generator

	freq      timing.FreqInHz
	latencyNs uint64
	latency   timing.VTimeInCycle

	bankMask   uint64
	maxPending int

	entries      *pool.Pool[queueEntry]
	pending      []entryHandle
	banksBusy    []bool
	reportedFull bool

	stats Stats
}

// Name returns the name of the controller.
func (c *Comp) Name() string {
	return c.name
}

// Submit offers a message from the interconnect to the controller. It
// returns false when the queue cannot take the request, in which case the
// sender must try again later.
func (c *Comp) Submit(now timing.VTimeInCycle, msg *Message) bool {
	req := c.requests.Get(msg.Request)

	if msg.HasData && req.Op != memreq.OpUpdate {
		return true
	}

	if req.Op == memreq.OpEvict {
		return true
	}

	if req.Op == memreq.OpUpdate && c.mergeUpdate(now, req) {
		return true
	}

	bank := c.bankOf(req.PhysAddr)

	if len(c.pending) >= c.maxPending {
		c.stats.Refused++
		c.trace(tracing.HookPosReqRefuse, c.idGen.Generate(), req, bank, now, "")

		return false
	}

	h := c.entries.Construct(queueEntry{
		id:     c.idGen.Generate(),
		req:    msg.Request,
		origin: msg.Sender,
		bank:   bank,
	})
	e := c.entries.MustGet(h)

	c.requests.Retain(msg.Request)
	req.AddHistory("{%s@%d:add}", c.name, now)
	c.pending = append(c.pending, h)
	c.trace(tracing.HookPosReqReceive, e.id, req, bank, now, "")

	if len(c.pending) == c.maxPending && !c.reportedFull {
		c.reportedFull = true
		c.interconnect.SetControllerFull(c, true)
	}

	if !c.banksBusy[bank] {
		c.startAccess(now, h)
	}

	return true
}

// mergeUpdate looks for a waiting update to the same address, newest first.
// Any other request to that address stops the search.
func (c *Comp) mergeUpdate(now timing.VTimeInCycle, req *memreq.Request) bool {
	for i := len(c.pending) - 1; i >= 0; i-- {
		e := c.entries.MustGet(c.pending[i])
		queued := c.requests.Get(e.req)

		if queued.PhysAddr != req.PhysAddr {
			continue
		}

		if e.inService || queued.Op != memreq.OpUpdate {
			return false
		}

		c.stats.Merged++
		queued.AddHistory("{%s@%d:merge}", c.name, now)
		c.trace(tracing.HookPosReqMerge, c.idGen.Generate(), req, e.bank, now, "")

		return true
	}

	return false
}

func (c *Comp) bankOf(addr uint64) int {
	return int((addr >> cacheLineBits) & c.bankMask)
}

func (c *Comp) startAccess(now timing.VTimeInCycle, h entryHandle) {
	e := c.entries.MustGet(h)
	e.inService = true
	c.banksBusy[e.bank] = true

	t := now + c.latency
	c.engine.Schedule(timing.ScheduledEvent{
		Event:   accessCompletedEvent{time: t, entry: h},
		Time:    t,
		Handler: c,
	})

	c.trace(tracing.HookPosReqStart, e.id, c.requests.Get(e.req), e.bank, now, "")
}

// Handle processes the events scheduled by the controller.
func (c *Comp) Handle(event any) error {
	switch e := event.(type) {
	case accessCompletedEvent:
		c.handleAccessCompleted(e)
	case waitInterconnectEvent:
		c.handleWaitInterconnect(e)
	default:
		return fmt.Errorf("%w: %T", ErrUnknownEvent, event)
	}

	return nil
}

func (c *Comp) handleAccessCompleted(evt accessCompletedEvent) {
	now := evt.time
	e := c.entries.MustGet(evt.entry)
	req := c.requests.Get(e.req)

	c.banksBusy[e.bank] = false
	c.stats.recordAccess(e.bank, req)
	c.trace(tracing.HookPosReqComplete, e.id, req, e.bank, now, "")

	c.startNextOnBank(now, e.bank)

	if e.annulled {
		c.release(now, evt.entry, tracing.OutcomeAnnulled)
		return
	}

	c.deliver(now, evt.entry)
}

func (c *Comp) startNextOnBank(now timing.VTimeInCycle, bank int) {
	for _, h := range c.pending {
		e := c.entries.MustGet(h)
		if e.bank == bank && !e.inService {
			c.startAccess(now, h)
			return
		}
	}
}

func (c *Comp) handleWaitInterconnect(evt waitInterconnectEvent) {
	e := c.entries.MustGet(evt.entry)
	if e.annulled {
		c.release(evt.time, evt.entry, tracing.OutcomeAnnulled)
		return
	}

	c.deliver(evt.time, evt.entry)
}

func (c *Comp) deliver(now timing.VTimeInCycle, h entryHandle) {
	e := c.entries.MustGet(h)
	req := c.requests.Get(e.req)

	if req.Op == memreq.OpUpdate {
		c.release(now, h, tracing.OutcomeWritten)
		return
	}

	msg := &Message{
		ID:      c.idGen.Generate(),
		Sender:  c,
		Dest:    e.origin,
		Request: e.req,
		HasData: true,
	}

	if c.interconnect.TryAccept(now, msg) {
		c.stats.Delivered++
		c.trace(tracing.HookPosReqDeliver, e.id, req, e.bank, now, "")
		c.release(now, h, "")

		return
	}

	c.stats.DeliveryRetries++
	c.trace(tracing.HookPosReqRetry, e.id, req, e.bank, now, "")

	t := now + 1
	c.engine.Schedule(timing.ScheduledEvent{
		Event:   waitInterconnectEvent{time: t, entry: h},
		Time:    t,
		Handler: c,
	})
}

// release removes an entry from the queue and drops its reference to the
// request. A non-empty outcome is traced as a drop.
func (c *Comp) release(now timing.VTimeInCycle, h entryHandle, outcome string) {
	e := c.entries.MustGet(h)
	req := c.requests.Get(e.req)

	if outcome != "" {
		c.trace(tracing.HookPosReqDrop, e.id, req, e.bank, now, outcome)
	}

	req.AddHistory("{%s@%d:remove}", c.name, now)
	c.removePending(h)
	c.requests.Release(e.req)
	c.entries.Destroy(h)

	if c.reportedFull && len(c.pending) < c.maxPending {
		c.reportedFull = false
		c.interconnect.SetControllerFull(c, false)
	}
}

func (c *Comp) removePending(h entryHandle) {
	for i, p := range c.pending {
		if p == h {
			c.pending = append(c.pending[:i], c.pending[i+1:]...)
			return
		}
	}

	log.Panicf("memctrl: entry %s is not pending in %s", h, c.name)
}

// Annul cancels all the queued requests that are equal to the request of h.
// Waiting entries leave the queue at once. Entries in service leave when
// their access completes, without a response. It returns the number of
// entries annulled.
func (c *Comp) Annul(now timing.VTimeInCycle, h memreq.Handle) int {
	target := *c.requests.Get(h)
	count := 0

	for _, eh := range append([]entryHandle(nil), c.pending...) {
		e := c.entries.MustGet(eh)
		req := c.requests.Get(e.req)

		if e.annulled || !req.Equal(&target) {
			continue
		}

		e.annulled = true
		count++
		c.stats.Annulled++
		c.trace(tracing.HookPosReqAnnul, e.id, req, e.bank, now, "")

		if !e.inService {
			c.release(now, eh, tracing.OutcomeAnnulled)
		}
	}

	return count
}

// PendingCount returns the number of queued requests issued by a core.
func (c *Comp) PendingCount(coreID int) int {
	count := 0

	for _, h := range c.pending {
		e := c.entries.MustGet(h)
		if c.requests.Get(e.req).CoreID == coreID {
			count++
		}
	}

	return count
}

// NumPending returns the number of queued requests.
func (c *Comp) NumPending() int {
	return len(c.pending)
}

// IsFull tells if the controller has reported itself full.
func (c *Comp) IsFull() bool {
	return c.reportedFull
}

// NumBanks returns the number of banks.
func (c *Comp) NumBanks() int {
	return len(c.banksBusy)
}

// Latency returns the access latency in cycles.
func (c *Comp) Latency() timing.VTimeInCycle {
	return c.latency
}

// MaxPending returns the capacity of the queue.
func (c *Comp) MaxPending() int {
	return c.maxPending
}

// Stats returns a copy of the statistics.
func (c *Comp) Stats() Stats {
	return c.stats.clone()
}

func (c *Comp) trace(
	pos *hooking.HookPos,
	id idgen.ID,
	req *memreq.Request,
	bank int,
	now timing.VTimeInCycle,
	outcome string,
) {
	if c.NumHooks() == 0 {
		return
	}

	tracing.TraceReq(c, pos, tracing.ReqMilestone{
		ID:      fmt.Sprintf("%s.%d", c.name, id),
		What:    req.Op.String(),
		Address: req.PhysAddr,
		Bank:    bank,
		Time:    now,
		Outcome: outcome,
	})
}

func (c *Comp) String() string {
	var b strings.Builder

	fmt.Fprintf(&b, "---Memory-Controller: %s\n", c.name)

	if len(c.pending) > 0 {
		b.WriteString("Queue:\n")

		for _, h := range c.pending {
			e := c.entries.MustGet(h)
			fmt.Fprintf(&b, "  bank[%d] inService[%t] annulled[%t] source[%s] %s\n",
				e.bank, e.inService, e.annulled, nameOf(e.origin),
				c.requests.Get(e.req))
		}
	}

	b.WriteString("banksUsed:")
	for i, busy := range c.banksBusy {
		if busy {
			fmt.Fprintf(&b, " %d", i)
		}
	}

	fmt.Fprintf(&b, "\n---End Memory-Controller: %s\n", c.name)

	return b.String()
}

func nameOf(ctrl Controller) string {
	if ctrl == nil {
		return "-"
	}

	return ctrl.Name()
}
