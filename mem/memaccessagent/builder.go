package memaccessagent

import (
	"math/rand"

	"github.com/sarchlab/memsim/idgen"
	"github.com/sarchlab/memsim/mem/memreq"
	"github.com/sarchlab/memsim/timing"
)

// Builder can build MemAccessAgents.
type Builder struct {
	engine         timing.EventScheduler
	requests       *memreq.Arena
	idGen          idgen.Generator
	seed           int64
	numRequests    int
	numCores       int
	maxOutstanding int
	addressSpace   uint64
	writeRatio     float64
	updateRatio    float64
	annulRatio     float64
	refuseRatio    float64
	ignoreFull     bool
	logRequests    bool
}

// MakeBuilder returns a new Builder
func MakeBuilder() Builder {
	return Builder{
		seed:           1,
		numRequests:    1000,
		numCores:       1,
		maxOutstanding: 16,
		addressSpace:   1024 * 1024,
		writeRatio:     0.3,
	}
}

// WithEngine sets the event scheduler of the agent.
func (b Builder) WithEngine(engine timing.EventScheduler) Builder {
	b.engine = engine
	return b
}

// WithRequestArena sets where requests are allocated.
func (b Builder) WithRequestArena(requests *memreq.Arena) Builder {
	b.requests = requests
	return b
}

// WithIDGenerator sets the generator of message IDs and owner UUIDs.
func (b Builder) WithIDGenerator(g idgen.Generator) Builder {
	b.idGen = g
	return b
}

// WithSeed sets the seed of the random generator.
func (b Builder) WithSeed(seed int64) Builder {
	b.seed = seed
	return b
}

// WithNumRequests sets how many requests the agent issues.
func (b Builder) WithNumRequests(n int) Builder {
	b.numRequests = n
	return b
}

// WithNumCores sets how many cores the requests are spread over.
func (b Builder) WithNumCores(n int) Builder {
	b.numCores = n
	return b
}

// WithMaxOutstanding limits the number of requests waiting for a response.
func (b Builder) WithMaxOutstanding(n int) Builder {
	b.maxOutstanding = n
	return b
}

// WithAddressSpace sets the size of the physical address space.
func (b Builder) WithAddressSpace(size uint64) Builder {
	b.addressSpace = size
	return b
}

// WithWriteRatio sets the fraction of writes among the requests.
func (b Builder) WithWriteRatio(r float64) Builder {
	b.writeRatio = r
	return b
}

// WithUpdateRatio sets the fraction of write-backs among the requests.
func (b Builder) WithUpdateRatio(r float64) Builder {
	b.updateRatio = r
	return b
}

// WithAnnulRatio sets the chance, per cycle, of annulling an outstanding
// read.
func (b Builder) WithAnnulRatio(r float64) Builder {
	b.annulRatio = r
	return b
}

// WithRefuseRatio sets the fraction of responses refused.
func (b Builder) WithRefuseRatio(r float64) Builder {
	b.refuseRatio = r
	return b
}

// WithIgnoreFullStatus makes the agent keep sending requests to a full
// memory.
func (b Builder) WithIgnoreFullStatus(ignore bool) Builder {
	b.ignoreFull = ignore
	return b
}

// WithLogging makes the agent log every request it issues and every response
// it receives.
func (b Builder) WithLogging(enabled bool) Builder {
	b.logRequests = enabled
	return b
}

// Build creates a new MemAccessAgent.
func (b Builder) Build(name string) *MemAccessAgent {
	if b.engine == nil || b.requests == nil {
		panic("memaccessagent: engine and request arena must be set")
	}

	if b.numCores <= 0 || b.maxOutstanding <= 0 || b.addressSpace < 64 {
		panic("memaccessagent: invalid traffic parameters")
	}

	a := &MemAccessAgent{
		name:           name,
		engine:         b.engine,
		requests:       b.requests,
		idGen:          b.idGen,
		rng:            rand.New(rand.NewSource(b.seed)),
		requestsLeft:   b.numRequests,
		numCores:       b.numCores,
		maxOutstanding: b.maxOutstanding,
		addressSpace:   b.addressSpace,
		writeRatio:     b.writeRatio,
		updateRatio:    b.updateRatio,
		annulRatio:     b.annulRatio,
		refuseRatio:    b.refuseRatio,
		ignoreFull:     b.ignoreFull,
		logRequests:    b.logRequests,
		annulled:       make(map[memreq.Handle]bool),
	}

	if a.idGen == nil {
		a.idGen = idgen.New()
	}

	return a
}
