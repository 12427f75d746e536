package memctrl

import "github.com/sarchlab/memsim/mem/memreq"

// OpCounters counts the accesses served by a bank.
type OpCounters struct {
	Access uint64 `yaml:"access"`
	Read   uint64 `yaml:"read"`
	Write  uint64 `yaml:"write"`
	Update uint64 `yaml:"update"`
}

// BankStats splits the counters of a bank by privilege level.
type BankStats struct {
	Kernel OpCounters `yaml:"kernel"`
	User   OpCounters `yaml:"user"`
}

// Stats summarizes what a controller has done.
type Stats struct {
	Banks           []BankStats `yaml:"banks"`
	Merged          uint64      `yaml:"merged"`
	Refused         uint64      `yaml:"refused"`
	Annulled        uint64      `yaml:"annulled"`
	DeliveryRetries uint64      `yaml:"delivery_retries"`
	Delivered       uint64      `yaml:"delivered"`
}

// TotalAccesses sums the accesses of all banks.
func (s Stats) TotalAccesses() uint64 {
	var total uint64
	for _, b := range s.Banks {
		total += b.Kernel.Access + b.User.Access
	}

	return total
}

func (s *Stats) recordAccess(bank int, req *memreq.Request) {
	counters := &s.Banks[bank].User
	if req.IsKernel() {
		counters = &s.Banks[bank].Kernel
	}

	counters.Access++

	switch req.Op {
	case memreq.OpRead:
		counters.Read++
	case memreq.OpWrite:
		counters.Write++
	case memreq.OpUpdate:
		counters.Update++
	}
}

func (s Stats) clone() Stats {
	s.Banks = append([]BankStats(nil), s.Banks...)
	return s
}
