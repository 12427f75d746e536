package pool

// Builder configures pools.
type Builder[T any] struct {
	slotsPerSlab int
	maxSlabs     int
}

// MakeBuilder returns a builder with default parameters.
func MakeBuilder[T any]() Builder[T] {
	return Builder[T]{
		slotsPerSlab: DefaultSlotsPerSlab,
	}
}

// WithSlotsPerSlab sets how many slots are added each time the pool grows.
func (b Builder[T]) WithSlotsPerSlab(n int) Builder[T] {
	b.slotsPerSlab = n
	return b
}

// WithMaxSlabs limits the number of slabs. Zero means no limit.
func (b Builder[T]) WithMaxSlabs(n int) Builder[T] {
	b.maxSlabs = n
	return b
}

// Build creates a new, empty pool.
func (b Builder[T]) Build() *Pool[T] {
	if b.slotsPerSlab <= 0 {
		panic("pool: slots per slab must be positive")
	}

	if b.maxSlabs < 0 {
		panic("pool: max slabs cannot be negative")
	}

	return &Pool[T]{
		slotsPerSlab: b.slotsPerSlab,
		maxSlabs:     b.maxSlabs,
	}
}
