package models

import "rapidsprite/pkg/timeline"

// SamplePlan is an ordered, strictly increasing list of sample timestamps
// within [0, Duration).
type SamplePlan struct {
	Duration   timeline.Time
	Timestamps []timeline.Time
}

// Len returns the number of samples
func (p *SamplePlan) Len() int {
	return len(p.Timestamps)
}

// At returns the timestamp of sample i
func (p *SamplePlan) At(i int) timeline.Time {
	return p.Timestamps[i]
}

// End returns where sample i's range stops: the next sample, or Duration for the last one.
func (p *SamplePlan) End(i int) timeline.Time {
	if i+1 < len(p.Timestamps) {
		return p.Timestamps[i+1]
	}
	return p.Duration
}
