package tracing

import (
	"fmt"
	"reflect"

	"github.com/sarchlab/memsim/instrumentation/hooking"
)

// CollectTrace let the tracer to collect trace from a domain
func CollectTrace(domain NamedHookable, tracer Tracer) {
	for _, hook := range domain.Hooks() {
		hook, ok := hook.(*traceHook)
		if ok && hook.t == tracer {
			panic(fmt.Sprintf(
				"domain %s already has tracer %s",
				domain.Name(), reflect.TypeOf(tracer)))
		}
	}

	domain.AcceptHook(&traceHook{t: tracer})
}

// A traceHook turns request milestones into tasks.
type traceHook struct {
	t Tracer
}

// Func calls the tracer interfaces when the hook is triggered
func (h *traceHook) Func(ctx hooking.HookCtx) {
	m, ok := ctx.Item.(ReqMilestone)
	if !ok {
		return
	}

	switch ctx.Pos {
	case HookPosReqReceive:
		h.t.StartTask(startingTask(m))
	case HookPosReqMerge:
		h.instantTask(m, OutcomeMerged)
	case HookPosReqRefuse:
		h.instantTask(m, OutcomeRefused)
	case HookPosReqStart, HookPosReqComplete, HookPosReqRetry, HookPosReqAnnul:
		h.t.StepTask(Task{
			ID:    m.ID,
			Steps: []TaskStep{{Cycle: m.Time, What: ctx.Pos.Name}},
		})
	case HookPosReqDeliver:
		h.t.EndTask(Task{ID: m.ID, EndCycle: m.Time, Outcome: OutcomeDelivered})
	case HookPosReqDrop:
		h.t.EndTask(Task{ID: m.ID, EndCycle: m.Time, Outcome: m.Outcome})
	}
}

func (h *traceHook) instantTask(m ReqMilestone, outcome string) {
	h.t.StartTask(startingTask(m))
	h.t.EndTask(Task{ID: m.ID, EndCycle: m.Time, Outcome: outcome})
}

func startingTask(m ReqMilestone) Task {
	return Task{
		ID:         m.ID,
		Kind:       "req_in",
		What:       m.What,
		Where:      m.Where,
		Address:    m.Address,
		Bank:       m.Bank,
		StartCycle: m.Time,
	}
}
