package timing

import (
	"errors"
	"math"
	"math/bits"
)

// FreqInHz is a clock frequency in cycles per second.
type FreqInHz uint64

// Frequency units.
const (
	Hz  FreqInHz = 1
	KHz FreqInHz = 1000 * Hz
	MHz FreqInHz = 1000 * KHz
	GHz FreqInHz = 1000 * MHz
)

// VTimeInCycle is the simulated time counted in cycles. All timestamps in
// the simulation use it so that ordering stays exact.
type VTimeInCycle uint64

// VTimeInSec is the simulated time in seconds, used only for reporting.
type VTimeInSec float64

const nsPerSecond = 1_000_000_000

var (
	// ErrZeroFrequency is returned when a conversion needs a frequency and
	// the frequency is zero.
	ErrZeroFrequency = errors.New("timing: frequency must be greater than zero")

	// ErrTickOverflow is returned when a cycle count does not fit in
	// VTimeInCycle.
	ErrTickOverflow = errors.New("timing: cycle value overflow")
)

// Period returns the duration of one cycle.
func (f FreqInHz) Period() VTimeInSec {
	if f == 0 {
		panic(ErrZeroFrequency)
	}

	return VTimeInSec(1.0 / float64(f))
}

// CyclesToSeconds converts a cycle count to seconds.
func (f FreqInHz) CyclesToSeconds(cycles VTimeInCycle) VTimeInSec {
	if f == 0 {
		return 0
	}

	return VTimeInSec(float64(cycles) / float64(f))
}

// NanosecondsToCycles returns the number of cycles needed to cover ns
// nanoseconds. Partial cycles are rounded up, so that a latency is never
// shortened by the conversion.
func (f FreqInHz) NanosecondsToCycles(ns uint64) (VTimeInCycle, error) {
	if f == 0 {
		return 0, ErrZeroFrequency
	}

	hi, lo := bits.Mul64(ns, uint64(f))
	if hi >= nsPerSecond {
		return 0, ErrTickOverflow
	}

	cycles, rem := bits.Div64(hi, lo, nsPerSecond)
	if rem != 0 {
		if cycles == math.MaxUint64 {
			return 0, ErrTickOverflow
		}

		cycles++
	}

	return VTimeInCycle(cycles), nil
}

// CyclesToNanoseconds converts a cycle count back to nanoseconds.
func (f FreqInHz) CyclesToNanoseconds(cycles VTimeInCycle) float64 {
	if f == 0 {
		return 0
	}

	return float64(cycles) * nsPerSecond / float64(f)
}
