// Package tracing follows memory requests through the controllers and turns
// their milestones into tasks that tracers can collect.
package tracing

import (
	"github.com/sarchlab/memsim/instrumentation/hooking"
	"github.com/sarchlab/memsim/timing"
)

// NamedHookable represent something both have a name and can be hooked
type NamedHookable interface {
	Name() string
	hooking.Hookable
}

// The positions where a request raises milestones.
var (
	HookPosReqReceive  = &hooking.HookPos{Name: "ReqReceive"}
	HookPosReqMerge    = &hooking.HookPos{Name: "ReqMerge"}
	HookPosReqRefuse   = &hooking.HookPos{Name: "ReqRefuse"}
	HookPosReqStart    = &hooking.HookPos{Name: "ReqStart"}
	HookPosReqComplete = &hooking.HookPos{Name: "ReqComplete"}
	HookPosReqRetry    = &hooking.HookPos{Name: "ReqRetry"}
	HookPosReqDeliver  = &hooking.HookPos{Name: "ReqDeliver"}
	HookPosReqAnnul    = &hooking.HookPos{Name: "ReqAnnul"}
	HookPosReqDrop     = &hooking.HookPos{Name: "ReqDrop"}
)

// ReqMilestone is the item of the request hooks.
type ReqMilestone struct {
	ID      string
	What    string
	Where   string
	Address uint64
	Bank    int
	Time    timing.VTimeInCycle

	// Outcome explains why a request is dropped.
	Outcome string
}

// TraceReq notifies the hooks of the domain that a request reached a
// milestone.
func TraceReq(domain NamedHookable, pos *hooking.HookPos, m ReqMilestone) {
	if domain.NumHooks() == 0 {
		return
	}

	if m.ID == "" {
		panic("milestone ID must not be empty")
	}

	if m.Where == "" {
		m.Where = domain.Name()
	}

	domain.InvokeHook(hooking.HookCtx{
		Domain: domain,
		Pos:    pos,
		Item:   m,
	})
}
