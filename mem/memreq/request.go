// Package memreq defines the memory requests that travel between the cores,
// the interconnect and the memory controllers.
package memreq

import (
	"fmt"
	"strings"

	"github.com/sarchlab/memsim/timing"
)

// OperationType is the kind of a memory request.
type OperationType uint8

// Operation types.
const (
	OpInvalid OperationType = iota
	OpRead
	OpWrite
	OpUpdate
	OpEvict
)

var opNames = [...]string{"invalid", "read", "write", "update", "evict"}

func (t OperationType) String() string {
	if int(t) < len(opNames) {
		return opNames[t]
	}

	return fmt.Sprintf("OperationType(%d)", uint8(t))
}

// kernelRIPShift selects bits 48 to 63 of an instruction pointer. Any of them
// set means the instruction lives in the kernel half of the address space.
const kernelRIPShift = 48

// Request describes one memory access in flight.
type Request struct {
	Op        OperationType
	PhysAddr  uint64
	CoreID    int
	ThreadID  int
	RobID     int
	InitCycle timing.VTimeInCycle
	OwnerRIP  uint64
	OwnerUUID uint64

	// IsData is false for instruction fetches.
	IsData bool

	refCount int
	history  []string
}

// Equal tells if two requests represent the same access. Only the core,
// thread, reorder ID, address, operation and data flag are compared.
func (r *Request) Equal(other *Request) bool {
	return r.CoreID == other.CoreID &&
		r.ThreadID == other.ThreadID &&
		r.RobID == other.RobID &&
		r.PhysAddr == other.PhysAddr &&
		r.IsData == other.IsData &&
		r.Op == other.Op
}

// Matches tells if the request is the read or write identified by the given
// fields.
func (r *Request) Matches(
	coreID, threadID, robID int,
	physAddr uint64,
	isInstruction, isWrite bool,
) bool {
	op := OpRead
	if isWrite {
		op = OpWrite
	}

	return r.CoreID == coreID &&
		r.ThreadID == threadID &&
		r.RobID == robID &&
		r.PhysAddr == physAddr &&
		r.IsData == !isInstruction &&
		r.Op == op
}

// IsKernel tells if the request is issued by a kernel instruction.
func (r *Request) IsKernel() bool {
	return r.OwnerRIP>>kernelRIPShift != 0
}

// IsInstruction tells if the request is an instruction fetch.
func (r *Request) IsInstruction() bool {
	return !r.IsData
}

// RefCount returns the number of holders of the request.
func (r *Request) RefCount() int {
	return r.refCount
}

// AddHistory appends a line to the diagnostic history of the request.
func (r *Request) AddHistory(format string, args ...any) {
	r.history = append(r.history, fmt.Sprintf(format, args...))
}

// History returns the diagnostic history of the request.
func (r *Request) History() []string {
	return r.history
}

func (r *Request) String() string {
	var b strings.Builder

	fmt.Fprintf(&b, "Memory Request: core[%d] thread[%d] address[0x%012x] ",
		r.CoreID, r.ThreadID, r.PhysAddr)
	fmt.Fprintf(&b, "robid[%d] init-cycle[%d] ref-counter[%d] op-type[%s] ",
		r.RobID, r.InitCycle, r.refCount, r.Op)
	fmt.Fprintf(&b, "isData[%t] ownerUUID[%d] ownerRIP[0x%x] ",
		r.IsData, r.OwnerUUID, r.OwnerRIP)
	fmt.Fprintf(&b, "History[ %s ]", strings.Join(r.history, " "))

	return b.String()
}
