package timing

import "github.com/sarchlab/memsim/instrumentation/hooking"

// Handler processes events. Events are plain data; handlers tell them apart
// with a type switch and return an error for events they do not know.
type Handler interface {
	Handle(event any) error
}

// TimeTeller exposes the current simulation cycle.
type TimeTeller interface {
	CurrentTime() VTimeInCycle
}

// EventScheduler schedules events in the simulation timeline. Once scheduled,
// an event cannot be withdrawn.
type EventScheduler interface {
	TimeTeller
	Schedule(event ScheduledEvent)
}

// ScheduledEvent wraps a user event with what the engine needs to dispatch
// it.
type ScheduledEvent struct {
	// Event is the payload given to the handler, usually a pointer to a
	// small struct.
	Event any

	// Time is the cycle at which the event fires.
	Time VTimeInCycle

	// Handler receives the event.
	Handler Handler

	// IsSecondary events run after all the primary events of the same cycle.
	IsSecondary bool
}

// HookPosBeforeEvent fires right before an event is handled.
var HookPosBeforeEvent = &hooking.HookPos{Name: "BeforeEvent"}

// HookPosAfterEvent fires right after an event is handled.
var HookPosAfterEvent = &hooking.HookPos{Name: "AfterEvent"}
