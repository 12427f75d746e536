package memctrl

import (
	"github.com/sarchlab/memsim/mem/pool"
	"github.com/sarchlab/memsim/timing"
)

type entryHandle = pool.Handle[queueEntry]

// accessCompletedEvent fires when a bank finishes serving an entry.
type accessCompletedEvent struct {
	time  timing.VTimeInCycle
	entry entryHandle
}

// waitInterconnectEvent retries the delivery of a response.
type waitInterconnectEvent struct {
	time  timing.VTimeInCycle
	entry entryHandle
}
