// Package decay converts locked amounts into linearly decaying voting power.
//
// Power is tracked as a (slope, bias) pair: bias is the power at a checkpoint and slope the
// decay per second, scaled by 2^64 so that small locks still decay smoothly. All
// intermediates are 256-bit, which leaves headroom for a 128-bit slope multiplied by a
// 64-bit duration.
package decay

import (
	"errors"

	"github.com/holiman/uint256"
)

const (
	Day  = 86400
	Week = 7 * Day

	// MaxLockDuration is the longest lock, four 365-day years.
	MaxLockDuration = 4 * 365 * Day

	// ScaleBits is log2 of the fixed-point scale applied to slopes.
	ScaleBits = 64
)

var (
	ErrNegativeDuration = errors.New("negative duration")
	ErrOverflow         = errors.New("value overflows its fixed width")
)

// Scale returns 2^64.
func Scale() *uint256.Int {
	return new(uint256.Int).Lsh(uint256.NewInt(1), ScaleBits)
}

// Slope returns floor(amount * 2^64 / MaxLockDuration).
func Slope(amount uint64) *uint256.Int {
	s := new(uint256.Int).Lsh(uint256.NewInt(amount), ScaleBits)
	return s.Div(s, uint256.NewInt(MaxLockDuration))
}

// Decline returns floor(slope * dt / 2^64), the power lost by a lock over dt seconds.
func Decline(slope *uint256.Int, dt uint64) *uint256.Int {
	d := new(uint256.Int).Mul(slope, uint256.NewInt(dt))
	return d.Rsh(d, ScaleBits)
}

// Bias returns floor(slope * remaining / 2^64).
func Bias(slope *uint256.Int, remaining int64) (uint64, error) {
	if remaining < 0 {
		return 0, ErrNegativeDuration
	}
	b := Decline(slope, uint64(remaining))
	if !b.IsUint64() {
		return 0, ErrOverflow
	}
	return b.Uint64(), nil
}

// DecayedBias evaluates a checkpoint taken at from with the given bias and slope at time t.
// It subtracts the decline since the checkpoint and saturates at zero.
func DecayedBias(bias uint64, slope *uint256.Int, from, t uint64) (uint64, error) {
	if t < from {
		return 0, ErrNegativeDuration
	}
	d := Decline(slope, t-from)
	if !d.Lt(uint256.NewInt(bias)) {
		return 0, nil
	}
	return bias - d.Uint64(), nil
}

// DecayedBiasAtEnd is the closed form of DecayedBias for a lock ending at end.
// It agrees with DecayedBias to within one unit of floor rounding.
func DecayedBiasAtEnd(slope *uint256.Int, end, t uint64) (uint64, error) {
	if t >= end {
		return 0, nil
	}
	return Bias(slope, int64(end-t))
}

// TrapezoidArea returns floor((biasStart + biasEnd) * dt / 2).
func TrapezoidArea(biasStart, biasEnd, dt uint64) *uint256.Int {
	return trapezoid(uint256.NewInt(biasStart), uint256.NewInt(biasEnd), dt)
}

func trapezoid(b0, b1 *uint256.Int, dt uint64) *uint256.Int {
	a := new(uint256.Int).Add(b0, b1)
	a.Mul(a, uint256.NewInt(dt))
	return a.Rsh(a, 1)
}

// SegmentArea is the area under max(0, bias - slope*t/2^64) for t in [0, dt], floored.
// It is the cumulative power accrued between a checkpoint and a point dt seconds later.
// Unlike a trapezoid over floored end biases it never decreases as dt grows, including
// after the line reaches zero.
func SegmentArea(bias uint64, slope *uint256.Int, dt uint64) *uint256.Int {
	if bias == 0 || dt == 0 {
		return new(uint256.Int)
	}
	if slope.IsZero() {
		return new(uint256.Int).Mul(uint256.NewInt(bias), uint256.NewInt(dt))
	}

	scaled := new(uint256.Int).Lsh(uint256.NewInt(bias), ScaleBits)
	fall := new(uint256.Int).Mul(slope, uint256.NewInt(dt))
	if fall.Lt(scaled) {
		end := new(uint256.Int).Sub(scaled, fall)
		a := trapezoid(scaled, end, dt)
		return a.Rsh(a, ScaleBits)
	}

	// the line reaches zero at bias*2^64/slope; everything after adds nothing
	a := new(uint256.Int).Mul(scaled, uint256.NewInt(bias))
	d := new(uint256.Int).Lsh(slope, 1)
	return a.Div(a, d)
}

// WeekStart rounds t down to a week boundary.
func WeekStart(t uint64) uint64 {
	return t - t%Week
}

// NextWeek returns the first week boundary strictly after t.
func NextWeek(t uint64) uint64 {
	return WeekStart(t) + Week
}
