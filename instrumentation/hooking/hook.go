// Package hooking lets observers attach to simulation objects without the
// objects knowing who is watching.
package hooking

// HookPos names a place in the life of a hookable object where hooks fire.
type HookPos struct {
	Name string
}

// HookCtx describes one invocation of the hooks of a domain.
type HookCtx struct {
	// Domain is the object that raises the hook.
	Domain Hookable

	// Pos tells where in the domain the hook is raised.
	Pos *HookPos

	// Item is the subject of the hook, for example an event or a request
	// milestone.
	Item any

	// Detail carries optional extra data.
	Detail any
}

// Hook is invoked by the Hookable objects it is attached to.
type Hook interface {
	Func(ctx HookCtx)
}

// Hookable is an object that accepts hooks.
type Hookable interface {
	// AcceptHook registers a hook. Hooks are attached during configuration
	// and are never removed.
	AcceptHook(hook Hook)

	// NumHooks returns the number of registered hooks.
	NumHooks() int

	// Hooks returns the registered hooks.
	Hooks() []Hook

	// InvokeHook calls every registered hook with the given context.
	InvokeHook(ctx HookCtx)
}

// HookableBase implements Hookable and is meant to be embedded.
type HookableBase struct {
	hookList []Hook
}

// NewHookableBase creates a HookableBase without hooks.
func NewHookableBase() *HookableBase {
	return &HookableBase{}
}

// AcceptHook registers a hook. Registering the same hook twice panics.
func (h *HookableBase) AcceptHook(hook Hook) {
	for _, existing := range h.hookList {
		if existing == hook {
			panic("hooking: duplicated hook")
		}
	}

	h.hookList = append(h.hookList, hook)
}

// NumHooks returns the number of registered hooks.
func (h *HookableBase) NumHooks() int {
	return len(h.hookList)
}

// Hooks returns the registered hooks.
func (h *HookableBase) Hooks() []Hook {
	return h.hookList
}

// InvokeHook triggers all the registered hooks in registration order.
func (h *HookableBase) InvokeHook(ctx HookCtx) {
	for _, hook := range h.hookList {
		hook.Func(ctx)
	}
}

var _ Hookable = (*HookableBase)(nil)
