package memctrl

import (
	"github.com/sarchlab/memsim/idgen"
	"github.com/sarchlab/memsim/mem/memreq"
	"github.com/sarchlab/memsim/timing"
)

// A Controller is anything that sends or receives memory messages.
type Controller interface {
	Name() string
}

// A Message carries a request between controllers. A message with HasData
// set is a response.
type Message struct {
	ID      idgen.ID
	Sender  Controller
	Dest    Controller
	Request memreq.Handle
	HasData bool
}

// Interconnect is the upper-level network the memory controller answers to.
type Interconnect interface {
	// TryAccept offers a response to the interconnect. A receiver that keeps
	// the request beyond the call must retain it.
	TryAccept(now timing.VTimeInCycle, msg *Message) bool

	// SetControllerFull tells the interconnect whether the controller can
	// take more requests.
	SetControllerFull(ctrl Controller, isFull bool)
}
