// Package pool provides a growth-only slab pool that hands out
// generation-checked handles instead of pointers.
package pool

import (
	"errors"
	"fmt"
	"log"
	"math"
)

var (
	// ErrStaleHandle is raised when a handle refers to a slot that has been
	// deallocated since the handle was issued.
	ErrStaleHandle = errors.New("pool: stale handle")

	// ErrExhausted is raised when the pool cannot grow anymore.
	ErrExhausted = errors.New("pool: exhausted")

	// ErrUnsupportedCount is returned when more or fewer than one object is
	// requested at a time.
	ErrUnsupportedCount = errors.New("pool: only single objects are supported")
)

// DefaultSlotsPerSlab is the number of slots added each time the pool grows.
const DefaultSlotsPerSlab = 64

// Handle identifies an object in a Pool. The zero Handle is never valid.
type Handle[T any] struct {
	idx uint32
	gen uint32
}

// IsZero tells if the handle has never been assigned.
func (h Handle[T]) IsZero() bool {
	return h.gen == 0
}

func (h Handle[T]) String() string {
	return fmt.Sprintf("#%d.%d", h.idx, h.gen)
}

type slot[T any] struct {
	value T
	gen   uint32
	live  bool
}

// Pool stores objects of type T in fixed-size slabs. Slabs are kept until
// the pool is garbage collected, so the pool never shrinks.
type Pool[T any] struct {
	slabs        [][]slot[T]
	slotsPerSlab int
	maxSlabs     int
	free         []uint32
	live         int
}

// New creates a pool that grows by slotsPerSlab slots at a time without a
// limit on the number of slabs.
func New[T any](slotsPerSlab int) *Pool[T] {
	return MakeBuilder[T]().WithSlotsPerSlab(slotsPerSlab).Build()
}

// Allocate takes a free slot and returns its handle. The slot holds the zero
// value of T.
func (p *Pool[T]) Allocate() Handle[T] {
	if len(p.free) == 0 {
		p.grow()
	}

	idx := p.free[len(p.free)-1]
	p.free = p.free[:len(p.free)-1]

	s := p.slot(idx)
	s.live = true
	p.live++

	return Handle[T]{idx: idx, gen: s.gen}
}

// AllocateN allocates n objects at once. Only n == 1 is supported.
func (p *Pool[T]) AllocateN(n int) (Handle[T], error) {
	if n != 1 {
		return Handle[T]{}, ErrUnsupportedCount
	}

	return p.Allocate(), nil
}

// Construct allocates a slot and initializes it with init.
func (p *Pool[T]) Construct(init T) Handle[T] {
	h := p.Allocate()
	*p.MustGet(h) = init

	return h
}

// Deallocate resets the slot of h and makes it available again. Handles to
// the slot issued before become stale.
func (p *Pool[T]) Deallocate(h Handle[T]) {
	s := p.mustLive(h)

	var zero T
	s.value = zero
	s.live = false

	s.gen++
	if s.gen == 0 {
		s.gen = 1
	}

	p.pushFree(h.idx)
	p.live--
}

// DeallocateN releases n objects starting at h. Only n == 1 is supported.
func (p *Pool[T]) DeallocateN(h Handle[T], n int) error {
	if n != 1 {
		return ErrUnsupportedCount
	}

	p.Deallocate(h)

	return nil
}

// Destroy is the counterpart of Construct.
func (p *Pool[T]) Destroy(h Handle[T]) {
	p.Deallocate(h)
}

// Get returns the object of h, or false if h is stale.
func (p *Pool[T]) Get(h Handle[T]) (*T, bool) {
	if h.IsZero() || int(h.idx) >= p.Cap() {
		return nil, false
	}

	s := p.slot(h.idx)
	if !s.live || s.gen != h.gen {
		return nil, false
	}

	return &s.value, true
}

// MustGet returns the object of h and panics if h is stale.
func (p *Pool[T]) MustGet(h Handle[T]) *T {
	return &p.mustLive(h).value
}

// Len returns the number of live objects.
func (p *Pool[T]) Len() int {
	return p.live
}

// Cap returns the number of slots, live or free.
func (p *Pool[T]) Cap() int {
	return len(p.slabs) * p.slotsPerSlab
}

// NumSlabs returns the number of slabs allocated so far.
func (p *Pool[T]) NumSlabs() int {
	return len(p.slabs)
}

func (p *Pool[T]) mustLive(h Handle[T]) *slot[T] {
	if h.IsZero() || int(h.idx) >= p.Cap() {
		log.Panicf("%v: %s", ErrStaleHandle, h)
	}

	s := p.slot(h.idx)
	if !s.live || s.gen != h.gen {
		log.Panicf("%v: %s", ErrStaleHandle, h)
	}

	return s
}

func (p *Pool[T]) slot(idx uint32) *slot[T] {
	return &p.slabs[int(idx)/p.slotsPerSlab][int(idx)%p.slotsPerSlab]
}

func (p *Pool[T]) grow() {
	if p.maxSlabs > 0 && len(p.slabs) >= p.maxSlabs {
		log.Panic(ErrExhausted)
	}

	first := uint64(p.Cap())
	if first+uint64(p.slotsPerSlab) > math.MaxUint32 {
		log.Panic(ErrExhausted)
	}

	slab := make([]slot[T], p.slotsPerSlab)
	for i := range slab {
		slab[i].gen = 1
	}

	p.slabs = append(p.slabs, slab)

	// Push in reverse so that slots are handed out in index order.
	for i := p.slotsPerSlab - 1; i >= 0; i-- {
		p.pushFree(uint32(first) + uint32(i))
	}
}

func (p *Pool[T]) pushFree(idx uint32) {
	if len(p.free) == cap(p.free) {
		newCap := 2 * cap(p.free)
		if newCap == 0 {
			newCap = p.slotsPerSlab
		}

		grown := make([]uint32, len(p.free), newCap)
		copy(grown, p.free)
		p.free = grown
	}

	p.free = append(p.free, idx)
}
