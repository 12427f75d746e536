package memreq

import (
	"log"

	"github.com/sarchlab/memsim/mem/pool"
)

// Handle refers to a request stored in an Arena. Copying a handle does not
// make the copy a holder; holders call Retain and Release.
type Handle = pool.Handle[Request]

// Arena owns all the requests of a simulation. A request lives as long as it
// has holders and is recycled when the last holder releases it.
type Arena struct {
	pool *pool.Pool[Request]
}

// NewArena creates an arena that grows by slotsPerSlab requests at a time.
func NewArena(slotsPerSlab int) *Arena {
	return &Arena{pool: pool.New[Request](slotsPerSlab)}
}

// NewArenaWithPool creates an arena on top of an existing pool.
func NewArenaWithPool(p *pool.Pool[Request]) *Arena {
	return &Arena{pool: p}
}

// Alloc stores a new request initialized from init. The request starts
// without holders and with an empty history.
func (a *Arena) Alloc(init Request) Handle {
	if init.Op == OpInvalid {
		log.Panic("memreq: cannot allocate a request with invalid operation")
	}

	init.refCount = 0
	init.history = nil

	return a.pool.Construct(init)
}

// Clone stores a new request with the same fields as the request of h.
func (a *Arena) Clone(h Handle) Handle {
	return a.Alloc(*a.Get(h))
}

// Get returns the request of h. It panics if the request has been recycled.
func (a *Arena) Get(h Handle) *Request {
	return a.pool.MustGet(h)
}

// Lookup returns the request of h, or false if it has been recycled.
func (a *Arena) Lookup(h Handle) (*Request, bool) {
	return a.pool.Get(h)
}

// Retain registers one more holder of the request.
func (a *Arena) Retain(h Handle) {
	a.Get(h).refCount++
}

// Release drops one holder of the request. When the last holder is gone the
// request is recycled and true is returned.
func (a *Arena) Release(h Handle) bool {
	req := a.Get(h)
	if req.refCount <= 0 {
		log.Panicf("memreq: reference count underflow, %s", req)
	}

	req.refCount--
	if req.refCount > 0 {
		return false
	}

	a.pool.Destroy(h)

	return true
}

// Len returns the number of live requests.
func (a *Arena) Len() int {
	return a.pool.Len()
}
