package timeline_test

import (
	"errors"
	"math"
	"testing"
	"time"

	"rapidsprite/pkg/timeline"
)

func TestNew_RejectsInvalid(t *testing.T) {
	tests := []struct {
		name     string
		num, den int64
	}{
		{"zero denominator", 1, 0},
		{"negative denominator", 1, -3},
		{"negative numerator", -1, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := timeline.New(tt.num, tt.den)
			if !errors.Is(err, timeline.ErrInvalidDuration) {
				t.Fatalf("New(%d, %d) should fail with ErrInvalidDuration, got %v", tt.num, tt.den, err)
			}
		})
	}
}

func TestArithmetic_IsExact(t *testing.T) {
	frame := timeline.MustNew(1001, 30000)

	// 30000 frames of 1001/30000s is exactly 1001s; float accumulation drifts here.
	sum := timeline.Zero
	for i := 0; i < 30000; i++ {
		sum = sum.Add(frame)
	}
	if !sum.Equal(timeline.Seconds(1001)) {
		t.Fatalf("sum = %s, want 1001", sum)
	}
	if !frame.Mul(30000).Equal(sum) {
		t.Errorf("Mul(30000) = %s, want %s", frame.Mul(30000), sum)
	}
	if !sum.Div(30000).Equal(frame) {
		t.Errorf("Div(30000) = %s, want %s", sum.Div(30000), frame)
	}

	diff, err := timeline.Seconds(10).Sub(timeline.Seconds(9))
	if err != nil || !diff.Equal(timeline.Seconds(1)) {
		t.Errorf("10 - 9 = %s, %v", diff, err)
	}
	if _, err := timeline.Seconds(9).Sub(timeline.Seconds(10)); !errors.Is(err, timeline.ErrInvalidDuration) {
		t.Errorf("9 - 10 should fail with ErrInvalidDuration, got %v", err)
	}
}

func TestOrdering(t *testing.T) {
	a := timeline.MustNew(1, 3)
	b := timeline.MustNew(2, 6)
	c := timeline.MustNew(1, 2)

	if !a.Equal(b) {
		t.Errorf("1/3 should equal 2/6")
	}
	if !a.Less(c) || c.Less(a) {
		t.Errorf("1/3 should be less than 1/2")
	}
	if !timeline.Zero.IsZero() || timeline.Zero.Cmp(a) != -1 {
		t.Errorf("zero value should be 0s")
	}
}

func TestRescale_RoundsHalfToEven(t *testing.T) {
	tests := []struct {
		value timeline.Time
		want  int64
	}{
		{timeline.MustNew(1, 2000), 0}, // 0.5ms -> 0
		{timeline.MustNew(3, 2000), 2}, // 1.5ms -> 2
		{timeline.MustNew(5, 2000), 2}, // 2.5ms -> 2
		{timeline.MustNew(7, 2000), 4}, // 3.5ms -> 4
		{timeline.MustNew(1, 3000), 0}, // 0.333ms
		{timeline.MustNew(2, 3000), 1}, // 0.667ms
		{timeline.Seconds(90), 90000},
	}
	for _, tt := range tests {
		got, residual := tt.value.Rescale(timeline.Millisecond)
		if got != tt.want {
			t.Errorf("Rescale(%s) = %d, want %d", tt.value, got, tt.want)
		}
		back := timeline.MustNew(got, 1000)
		if diff := back.Float64() + residualFloat(residual) - tt.value.Float64(); diff > 1e-12 || diff < -1e-12 {
			t.Errorf("residual for %s does not reconstruct the value", tt.value)
		}
	}
}

func TestRescale_StreamTimeBase(t *testing.T) {
	ticks, residual := timeline.MustNew(1001, 30000).Rescale(timeline.Base90kHz)
	if ticks != 3003 || residual.Sign() != 0 {
		t.Fatalf("one NTSC frame = %d ticks (residual %s), want 3003 exact", ticks, residual)
	}
}

func TestParse(t *testing.T) {
	tests := []struct {
		in   string
		want timeline.Time
	}{
		{"3", timeline.Seconds(3)},
		{"1.5", timeline.MustNew(3, 2)},
		{"1001/30000", timeline.MustNew(1001, 30000)},
		{" 0.25 ", timeline.MustNew(1, 4)},
	}
	for _, tt := range tests {
		got, err := timeline.Parse(tt.in)
		if err != nil {
			t.Fatalf("Parse(%q) failed: %v", tt.in, err)
		}
		if !got.Equal(tt.want) {
			t.Errorf("Parse(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}

	for _, bad := range []string{"", "abc", "-1", "1/0"} {
		if _, err := timeline.Parse(bad); err == nil {
			t.Errorf("Parse(%q) should fail", bad)
		}
	}
}

func TestClock(t *testing.T) {
	tests := []struct {
		value timeline.Time
		want  string
	}{
		{timeline.Zero, "00:00.000"},
		{timeline.MustNew(61500, 1000), "01:01.500"},
		{timeline.Seconds(3725), "01:02:05.000"},
	}
	for _, tt := range tests {
		if got := tt.value.Clock(); got != tt.want {
			t.Errorf("Clock(%s) = %q, want %q", tt.value, got, tt.want)
		}
	}
}

func TestFromDuration(t *testing.T) {
	v, err := timeline.FromDuration(1500 * time.Millisecond)
	if err != nil {
		t.Fatalf("FromDuration failed: %v", err)
	}
	if !v.Equal(timeline.MustNew(3, 2)) {
		t.Errorf("FromDuration(1.5s) = %s", v)
	}
	if v.Duration() != 1500*time.Millisecond {
		t.Errorf("Duration() = %v", v.Duration())
	}
}

func TestText_RoundTrip(t *testing.T) {
	in := timeline.MustNew(1001, 30)
	text, err := in.MarshalText()
	if err != nil {
		t.Fatalf("MarshalText failed: %v", err)
	}
	var out timeline.Time
	if err := out.UnmarshalText(text); err != nil {
		t.Fatalf("UnmarshalText(%q) failed: %v", text, err)
	}
	if !out.Equal(in) {
		t.Errorf("round trip = %s, want %s", out, in)
	}
}

func TestRatio(t *testing.T) {
	r, err := timeline.ParseRatio("60000/2002")
	if err != nil {
		t.Fatalf("ParseRatio failed: %v", err)
	}
	if r != timeline.FrameRate29_97 {
		t.Errorf("ParseRatio reduced to %v, want 30000/1001", r)
	}
	period, err := r.Period()
	if err != nil || !period.Equal(timeline.MustNew(1001, 30000)) {
		t.Errorf("Period() = %s, %v", period, err)
	}

	unknown, err := timeline.ParseRatio("0/0")
	if err != nil || !unknown.IsZero() {
		t.Errorf("ParseRatio(0/0) = %v, %v; want zero", unknown, err)
	}
	if _, err := unknown.Period(); err == nil {
		t.Errorf("zero ratio should have no period")
	}

	if got := timeline.RatioFromFloat(23.976); got != timeline.FrameRate23_976 {
		t.Errorf("RatioFromFloat(23.976) = %v", got)
	}
	if got := timeline.RatioFromFloat(12.5); got != (timeline.Ratio{Num: 25, Den: 2}) {
		t.Errorf("RatioFromFloat(12.5) = %v", got)
	}
}

func residualFloat(r interface{ Float64() (float64, bool) }) float64 {
	f, _ := r.Float64()
	return f
}

func TestRescale_PanicsOnOverflow(t *testing.T) {
	huge := timeline.MustNew(math.MaxInt64, 1000)

	if ticks, _ := huge.Rescale(timeline.Millisecond); ticks != math.MaxInt64 {
		t.Fatalf("Rescale(ms) = %d, want MaxInt64", ticks)
	}

	defer func() {
		if recover() == nil {
			t.Error("Rescale() past int64 should panic instead of truncating")
		}
	}()
	huge.Rescale(timeline.Microsecond)
}
