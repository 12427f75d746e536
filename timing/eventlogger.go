package timing

import (
	"log"
	"reflect"

	"github.com/sarchlab/memsim/instrumentation/hooking"
)

// EventLogger is a hook that prints every event before it is handled.
type EventLogger struct {
	logger *log.Logger
}

// NewEventLogger returns an EventLogger that writes into logger.
func NewEventLogger(logger *log.Logger) *EventLogger {
	return &EventLogger{logger: logger}
}

type named interface {
	Name() string
}

// Func writes the event information into the logger.
func (h *EventLogger) Func(ctx hooking.HookCtx) {
	if ctx.Pos != HookPosBeforeEvent {
		return
	}

	evt, ok := ctx.Item.(ScheduledEvent)
	if !ok {
		return
	}

	handlerName := "-"
	if n, ok := evt.Handler.(named); ok {
		handlerName = n.Name()
	}

	h.logger.Printf("%d, %s -> %s",
		evt.Time, reflect.TypeOf(evt.Event), handlerName)
}
