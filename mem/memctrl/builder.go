package memctrl

import (
	"fmt"
	"math/bits"

	"github.com/sarchlab/memsim/idgen"
	"github.com/sarchlab/memsim/instrumentation/hooking"
	"github.com/sarchlab/memsim/mem/memreq"
	"github.com/sarchlab/memsim/mem/pool"
	"github.com/sarchlab/memsim/timing"
)

// Default parameters of a Builder.
const (
	DefaultLatencyNs  = 50
	DefaultNumBanks   = 8
	DefaultMaxPending = 64
)

// Builder can build memory controllers.
type Builder struct {
	engine        timing.EventScheduler
	freq          timing.FreqInHz
	latencyNs     uint64
	latencyCycles timing.VTimeInCycle
	numBanks      int
	maxPending    int
	requests      *memreq.Arena
	interconnect  Interconnect
	idGen         idgen.Generator
}

// MakeBuilder returns a new Builder
func MakeBuilder() Builder {
	return Builder{
		freq:       1 * timing.GHz,
		latencyNs:  DefaultLatencyNs,
		numBanks:   DefaultNumBanks,
		maxPending: DefaultMaxPending,
	}
}

// WithEngine sets the event scheduler of the controller.
func (b Builder) WithEngine(engine timing.EventScheduler) Builder {
	b.engine = engine
	return b
}

// WithFreq sets the clock frequency used to convert the latency to cycles.
func (b Builder) WithFreq(freq timing.FreqInHz) Builder {
	b.freq = freq
	return b
}

// WithLatencyNs sets the access latency in nanoseconds.
func (b Builder) WithLatencyNs(ns uint64) Builder {
	b.latencyNs = ns
	b.latencyCycles = 0
	return b
}

// WithLatencyCycles sets the access latency in cycles, overriding the
// latency in nanoseconds.
func (b Builder) WithLatencyCycles(cycles timing.VTimeInCycle) Builder {
	b.latencyCycles = cycles
	return b
}

// WithNumBanks sets the number of banks. It must be a power of two.
func (b Builder) WithNumBanks(n int) Builder {
	b.numBanks = n
	return b
}

// WithMaxPending sets the capacity of the request queue.
func (b Builder) WithMaxPending(n int) Builder {
	b.maxPending = n
	return b
}

// WithRequestArena sets the arena that stores the requests.
func (b Builder) WithRequestArena(requests *memreq.Arena) Builder {
	b.requests = requests
	return b
}

// WithInterconnect sets the interconnect that receives the responses.
func (b Builder) WithInterconnect(ic Interconnect) Builder {
	b.interconnect = ic
	return b
}

// WithIDGenerator sets the generator of message and trace IDs.
func (b Builder) WithIDGenerator(g idgen.Generator) Builder {
	b.idGen = g
	return b
}

// Build creates a new memory controller.
func (b Builder) Build(name string) *Comp {
	b.mustBeValid()

	c := &Comp{
		HookableBase: hooking.NewHookableBase(),
		name:         name,
		engine:       b.engine,
		requests:     b.requests,
		interconnect: b.interconnect,
		idGen:        b.idGen,
		freq:         b.freq,
		latencyNs:    b.latencyNs,
		bankMask:     uint64(b.numBanks - 1),
		maxPending:   b.maxPending,
		entries:      pool.New[queueEntry](b.maxPending),
		banksBusy:    make([]bool, b.numBanks),
		stats:        Stats{Banks: make([]BankStats, b.numBanks)},
	}

	if c.idGen == nil {
		c.idGen = idgen.New()
	}

	c.latency = b.latencyCycles
	if c.latency == 0 {
		latency, err := b.freq.NanosecondsToCycles(b.latencyNs)
		if err != nil {
			panic(fmt.Sprintf("memctrl: invalid latency: %v", err))
		}

		c.latency = latency
		c.latencyNs = b.latencyNs
	} else {
		c.latencyNs = uint64(b.freq.CyclesToNanoseconds(c.latency))
	}

	if c.latency == 0 {
		panic("memctrl: latency must be at least one cycle")
	}

	return c
}

func (b Builder) mustBeValid() {
	if b.engine == nil {
		panic("memctrl: engine is not set")
	}

	if b.requests == nil {
		panic("memctrl: request arena is not set")
	}

	if b.interconnect == nil {
		panic("memctrl: interconnect is not set")
	}

	if b.numBanks <= 0 || bits.OnesCount(uint(b.numBanks)) != 1 {
		panic(fmt.Sprintf(
			"memctrl: number of banks must be a power of two, got %d",
			b.numBanks))
	}

	if b.maxPending <= 0 {
		panic("memctrl: max pending requests must be positive")
	}
}
