// Package planner computes the sample schedule for a source.
package planner

import (
	"errors"
	"fmt"

	"rapidsprite/pkg/models"
	"rapidsprite/pkg/timeline"
)

// MaxSamples bounds a single plan
const MaxSamples = 1 << 20

// ErrPlanTooLarge is returned when a request would exceed MaxSamples
var ErrPlanTooLarge = errors.New("sample plan too large")

// Mode selects how samples are spaced
type Mode int

const (
	// ModeCount places a fixed number of samples evenly over the duration
	ModeCount Mode = iota
	// ModeInterval places samples a fixed time apart
	ModeInterval
)

// String returns a human-readable name for the mode
func (m Mode) String() string {
	switch m {
	case ModeCount:
		return "count"
	case ModeInterval:
		return "interval"
	default:
		return "unknown"
	}
}

// Request describes what schedule the caller wants
type Request struct {
	Mode     Mode
	Count    int           // ModeCount: number of samples, N >= 1
	Interval timeline.Time // ModeInterval: spacing, > 0

	// MinTrailingFraction (ModeInterval): a trailing sample is added when the
	// remainder after the last regular sample exceeds this fraction of Interval.
	MinTrailingFraction timeline.Time
	// Epsilon (ModeInterval): the trailing sample sits at duration - Epsilon.
	// Zero means one millisecond.
	Epsilon timeline.Time
}

// Count requests n evenly spaced samples
func Count(n int) Request {
	return Request{Mode: ModeCount, Count: n}
}

// Interval requests samples every d seconds
func Interval(d, minTrailingFraction timeline.Time) Request {
	return Request{Mode: ModeInterval, Interval: d, MinTrailingFraction: minTrailingFraction}
}

var defaultEpsilon = timeline.MustNew(1, 1000)

// Plan returns the ordered sample timestamps for a source of the given duration.
//
// Count mode samples k*duration/N for k = 0..N-1; the endpoint is never sampled.
// Interval mode samples 0, Δ, 2Δ, ... while below duration, then possibly one
// trailing sample at duration-ε (see Request.MinTrailingFraction).
func Plan(duration timeline.Time, req Request) (*models.SamplePlan, error) {
	if duration.IsZero() {
		return nil, fmt.Errorf("%w: source duration is zero", models.ErrEmptyPlan)
	}

	var (
		ts  []timeline.Time
		err error
	)
	switch req.Mode {
	case ModeCount:
		ts, err = planCount(duration, req.Count)
	case ModeInterval:
		ts, err = planInterval(duration, req)
	default:
		return nil, fmt.Errorf("unknown sampling mode %d", req.Mode)
	}
	if err != nil {
		return nil, err
	}
	if len(ts) == 0 {
		return nil, fmt.Errorf("%w: request yields no samples", models.ErrEmptyPlan)
	}

	return &models.SamplePlan{Duration: duration, Timestamps: ts}, nil
}

func planCount(duration timeline.Time, n int) ([]timeline.Time, error) {
	if n < 1 {
		return nil, fmt.Errorf("%w: sample count %d must be at least 1", models.ErrEmptyPlan, n)
	}
	if n > MaxSamples {
		return nil, fmt.Errorf("%w: %d samples requested, limit %d", ErrPlanTooLarge, n, MaxSamples)
	}

	step := duration.Div(int64(n))
	ts := make([]timeline.Time, n)
	for k := range ts {
		ts[k] = step.Mul(int64(k))
	}
	return ts, nil
}

func planInterval(duration timeline.Time, req Request) ([]timeline.Time, error) {
	if req.Interval.IsZero() {
		return nil, fmt.Errorf("%w: sample interval must be positive", models.ErrEmptyPlan)
	}

	var ts []timeline.Time
	for k := int64(0); ; k++ {
		t := req.Interval.Mul(k)
		if !t.Less(duration) {
			break
		}
		if len(ts) == MaxSamples {
			return nil, fmt.Errorf("%w: interval %s over %s exceeds %d samples", ErrPlanTooLarge, req.Interval, duration, MaxSamples)
		}
		ts = append(ts, t)
	}

	last := ts[len(ts)-1]
	remainder, err := duration.Sub(last)
	if err != nil {
		return nil, err
	}
	if !remainder.Less(req.Interval) {
		return ts, nil
	}
	if !req.Interval.Scale(req.MinTrailingFraction).Less(remainder) {
		return ts, nil
	}

	eps := req.Epsilon
	if eps.IsZero() {
		eps = defaultEpsilon
	}
	trailing, err := duration.Sub(eps)
	if err != nil || !last.Less(trailing) {
		return ts, nil
	}
	return append(ts, trailing), nil
}
