package timeline

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Ratio is a positive rational used for frame rates and stream time bases.
// The zero value means "unknown".
type Ratio struct {
	Num int64
	Den int64
}

// Frame rates
var (
	FrameRate23_976 = Ratio{Num: 24000, Den: 1001}
	FrameRate24     = Ratio{Num: 24, Den: 1}
	FrameRate25     = Ratio{Num: 25, Den: 1}
	FrameRate29_97  = Ratio{Num: 30000, Den: 1001}
	FrameRate30     = Ratio{Num: 30, Den: 1}
	FrameRate50     = Ratio{Num: 50, Den: 1}
	FrameRate59_94  = Ratio{Num: 60000, Den: 1001}
	FrameRate60     = Ratio{Num: 60, Den: 1}
)

var knownFrameRates = []Ratio{
	FrameRate23_976, FrameRate24, FrameRate25, FrameRate29_97,
	FrameRate30, FrameRate50, FrameRate59_94, FrameRate60,
}

// ParseRatio reads "30000/1001" or "25". "0/0" yields the zero Ratio.
func ParseRatio(s string) (Ratio, error) {
	s = strings.TrimSpace(s)
	num, den, found := strings.Cut(s, "/")
	n, err := strconv.ParseInt(num, 10, 64)
	if err != nil {
		return Ratio{}, fmt.Errorf("bad ratio %q: %w", s, err)
	}
	d := int64(1)
	if found {
		d, err = strconv.ParseInt(den, 10, 64)
		if err != nil {
			return Ratio{}, fmt.Errorf("bad ratio %q: %w", s, err)
		}
	}
	if n == 0 || d == 0 {
		return Ratio{}, nil
	}
	if n < 0 || d < 0 {
		return Ratio{}, fmt.Errorf("bad ratio %q: negative", s)
	}
	return Ratio{Num: n, Den: d}.reduce(), nil
}

// RatioFromFloat snaps f to a well-known frame rate when it is within 0.001,
// otherwise keeps millesimal precision.
func RatioFromFloat(f float64) Ratio {
	if f <= 0 || math.IsNaN(f) || math.IsInf(f, 0) {
		return Ratio{}
	}
	for _, r := range knownFrameRates {
		if math.Abs(r.Float64()-f) < 0.001 {
			return r
		}
	}
	return Ratio{Num: int64(math.Round(f * 1000)), Den: 1000}.reduce()
}

func (r Ratio) reduce() Ratio {
	a, b := r.Num, r.Den
	for b != 0 {
		a, b = b, a%b
	}
	if a == 0 {
		return r
	}
	return Ratio{Num: r.Num / a, Den: r.Den / a}
}

// Valid reports whether both terms are positive.
func (r Ratio) Valid() bool { return r.Num > 0 && r.Den > 0 }

func (r Ratio) IsZero() bool { return r.Num == 0 && r.Den == 0 }

func (r Ratio) Float64() float64 {
	if r.Den == 0 {
		return 0
	}
	return float64(r.Num) / float64(r.Den)
}

// Period returns Den/Num seconds: one frame interval for a frame rate.
func (r Ratio) Period() (Time, error) {
	if !r.Valid() {
		return Time{}, fmt.Errorf("%w: ratio %s has no period", ErrInvalidDuration, r)
	}
	return New(r.Den, r.Num)
}

// Seconds returns Num/Den seconds: the length of one tick for a time base.
func (r Ratio) Seconds() (Time, error) {
	return New(r.Num, r.Den)
}

func (r Ratio) String() string {
	if r.Den == 1 {
		return strconv.FormatInt(r.Num, 10)
	}
	return fmt.Sprintf("%d/%d", r.Num, r.Den)
}

func (r Ratio) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

func (r *Ratio) UnmarshalText(text []byte) error {
	v, err := ParseRatio(string(text))
	if err != nil {
		return err
	}
	*r = v
	return nil
}
