package timing

import "github.com/sarchlab/memsim/instrumentation/hooking"

// An Engine keeps a discrete event simulation running.
type Engine interface {
	hooking.Hookable
	EventScheduler

	// Run handles events until no event is left or a handler fails.
	Run() error

	// Pause stops the engine from dispatching events until Continue is
	// called.
	Pause()

	// Continue resumes a paused engine.
	Continue()
}
