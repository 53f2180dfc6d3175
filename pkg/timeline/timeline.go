// Package timeline provides exact rational time values.
//
// A Time is a non-negative number of seconds held as a reduced fraction.
// Arithmetic never rounds; rounding happens only when a value is rescaled
// into an integer time base (milliseconds, a stream time base, ...).
package timeline

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"
)

// ErrInvalidDuration is returned when a value would have a non-positive
// denominator or a negative numerator.
var ErrInvalidDuration = errors.New("invalid duration")

// Common time bases
var (
	Millisecond = Ratio{Num: 1, Den: 1000}
	Microsecond = Ratio{Num: 1, Den: 1000000}
	Nanosecond  = Ratio{Num: 1, Den: 1000000000}
	Base90kHz   = Ratio{Num: 1, Den: 90000}
)

// Time is an exact, non-negative rational number of seconds.
// The zero value is 0s. Values are immutable; every operation returns a new Time.
type Time struct {
	r *big.Rat
}

// Zero is 0s.
var Zero = Time{}

// New returns num/den seconds.
func New(num, den int64) (Time, error) {
	if den <= 0 {
		return Time{}, fmt.Errorf("%w: denominator %d must be positive", ErrInvalidDuration, den)
	}
	if num < 0 {
		return Time{}, fmt.Errorf("%w: numerator %d must not be negative", ErrInvalidDuration, num)
	}
	return Time{r: big.NewRat(num, den)}, nil
}

// MustNew is like New but panics on invalid input.
func MustNew(num, den int64) Time {
	t, err := New(num, den)
	if err != nil {
		panic(err)
	}
	return t
}

// Seconds returns a whole number of seconds.
func Seconds(s int64) Time {
	return MustNew(s, 1)
}

// FromDuration converts a time.Duration exactly (nanosecond resolution).
func FromDuration(d time.Duration) (Time, error) {
	return New(int64(d), int64(time.Second))
}

// Parse reads a value written as an integer ("3"), a decimal ("1.5")
// or a fraction ("1001/30000"). Decimals are converted exactly.
func Parse(s string) (Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Time{}, fmt.Errorf("%w: empty value", ErrInvalidDuration)
	}
	r, ok := new(big.Rat).SetString(s)
	if !ok {
		return Time{}, fmt.Errorf("%w: cannot parse %q", ErrInvalidDuration, s)
	}
	if r.Sign() < 0 {
		return Time{}, fmt.Errorf("%w: %q is negative", ErrInvalidDuration, s)
	}
	return Time{r: r}, nil
}

func (t Time) rat() *big.Rat {
	if t.r == nil {
		return new(big.Rat)
	}
	return t.r
}

// Add returns t+u.
func (t Time) Add(u Time) Time {
	return Time{r: new(big.Rat).Add(t.rat(), u.rat())}
}

// Sub returns t-u. It fails with ErrInvalidDuration when u > t.
func (t Time) Sub(u Time) (Time, error) {
	r := new(big.Rat).Sub(t.rat(), u.rat())
	if r.Sign() < 0 {
		return Time{}, fmt.Errorf("%w: %s - %s is negative", ErrInvalidDuration, t, u)
	}
	return Time{r: r}, nil
}

// Mul returns t*k. k must not be negative.
func (t Time) Mul(k int64) Time {
	if k < 0 {
		panic("timeline: negative multiplier")
	}
	return Time{r: new(big.Rat).Mul(t.rat(), new(big.Rat).SetInt64(k))}
}

// Div returns t/k. k must be positive.
func (t Time) Div(k int64) Time {
	if k <= 0 {
		panic("timeline: non-positive divisor")
	}
	return Time{r: new(big.Rat).Quo(t.rat(), new(big.Rat).SetInt64(k))}
}

// Scale returns t*f for a dimensionless factor f.
func (t Time) Scale(f Time) Time {
	return Time{r: new(big.Rat).Mul(t.rat(), f.rat())}
}

// Cmp compares t and u and returns -1, 0 or +1.
func (t Time) Cmp(u Time) int {
	return t.rat().Cmp(u.rat())
}

func (t Time) Less(u Time) bool  { return t.Cmp(u) < 0 }
func (t Time) Equal(u Time) bool { return t.Cmp(u) == 0 }
func (t Time) IsZero() bool      { return t.rat().Sign() == 0 }

// Float64 returns the nearest float64 number of seconds. For display only.
func (t Time) Float64() float64 {
	f, _ := t.rat().Float64()
	return f
}

// Rescale converts t into an integer count of ticks of base, rounding
// half to even. The residual t - ticks*base, in seconds, is returned for
// diagnostics and may be negative. It panics when the tick count does
// not fit in an int64.
func (t Time) Rescale(base Ratio) (int64, *big.Rat) {
	if !base.Valid() {
		panic("timeline: invalid time base " + base.String())
	}
	// q = t / base = t * Den / Num
	q := new(big.Rat).Mul(t.rat(), big.NewRat(base.Den, base.Num))
	num, den := q.Num(), q.Denom()

	floor, rem := new(big.Int).QuoRem(num, den, new(big.Int))
	twice := new(big.Int).Lsh(rem, 1)
	switch twice.Cmp(den) {
	case 1:
		floor.Add(floor, big.NewInt(1))
	case 0:
		if floor.Bit(0) == 1 {
			floor.Add(floor, big.NewInt(1))
		}
	}

	if !floor.IsInt64() {
		panic("timeline: " + t.String() + " overflows int64 ticks of " + base.String())
	}
	ticks := floor.Int64()
	back := new(big.Rat).Mul(new(big.Rat).SetInt(floor), big.NewRat(base.Num, base.Den))
	return ticks, new(big.Rat).Sub(t.rat(), back)
}

// Milliseconds returns t in whole milliseconds, rounded half to even.
func (t Time) Milliseconds() int64 {
	ms, _ := t.Rescale(Millisecond)
	return ms
}

// Duration returns t as a time.Duration, rounded half to even to the nanosecond.
func (t Time) Duration() time.Duration {
	ns, _ := t.Rescale(Nanosecond)
	return time.Duration(ns)
}

// Clock formats t as MM:SS.mmm, or HH:MM:SS.mmm once it reaches an hour.
func (t Time) Clock() string {
	ms := t.Milliseconds()
	z := ms % 1000
	s := ms / 1000 % 60
	m := ms / 60000 % 60
	h := ms / 3600000
	if h == 0 {
		return fmt.Sprintf("%02d:%02d.%03d", m, s, z)
	}
	return fmt.Sprintf("%02d:%02d:%02d.%03d", h, m, s, z)
}

// String returns the exact value, "3" or "1001/30".
func (t Time) String() string {
	return t.rat().RatString()
}

func (t Time) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *Time) UnmarshalText(text []byte) error {
	v, err := Parse(string(text))
	if err != nil {
		return err
	}
	*t = v
	return nil
}
