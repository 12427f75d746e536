// Package idgen generates identifiers that are reproducible from run to run.
package idgen

import "sync/atomic"

// ID identifies a message or a request within one simulation.
type ID uint64

// Generator produces unique identifiers.
type Generator interface {
	Generate() ID
}

// New returns a sequential generator. The first ID it returns is 1, so the
// zero ID can mean "no ID".
func New() Generator {
	return &sequentialGenerator{}
}

type sequentialGenerator struct {
	last uint64
}

func (g *sequentialGenerator) Generate() ID {
	return ID(atomic.AddUint64(&g.last, 1))
}
