// Package cue derives time-range to sprite-region cues from a sample plan
// and its slot table, and reads and writes them as WebVTT.
package cue

import (
	"errors"
	"fmt"

	"rapidsprite/pkg/models"
	"rapidsprite/pkg/timeline"
)

// ErrPartition means a cue list does not exactly cover [0, duration)
var ErrPartition = errors.New("cues do not partition the timeline")

// Input is everything Build needs. Pixel data is not involved.
type Input struct {
	Plan     *models.SamplePlan
	Geometry models.Geometry
	Slots    []models.TileSlot // by sample index
	Files    []string          // sheet file names by sheet index
	Blank    []bool            // by sample index; nil means none blank
}

// Build returns one cue per sample covering [t_i, t_{i+1}), the last one
// ending at the plan duration. Blank samples keep their cue and point at
// their blank tile.
func Build(in Input) ([]models.Cue, error) {
	if in.Plan == nil || in.Plan.Len() == 0 {
		return nil, models.ErrEmptyPlan
	}
	n := in.Plan.Len()
	if len(in.Slots) != n {
		return nil, fmt.Errorf("have %d slots for %d samples", len(in.Slots), n)
	}
	if in.Blank != nil && len(in.Blank) != n {
		return nil, fmt.Errorf("have %d blank flags for %d samples", len(in.Blank), n)
	}

	cues := make([]models.Cue, n)
	for i, slot := range in.Slots {
		if slot.Sheet < 0 || slot.Sheet >= len(in.Files) {
			return nil, fmt.Errorf("sample %d refers to sheet %d of %d", i, slot.Sheet, len(in.Files))
		}
		cues[i] = models.Cue{
			Start:  in.Plan.At(i),
			End:    in.Plan.End(i),
			Sheet:  slot.Sheet,
			File:   in.Files[slot.Sheet],
			Region: in.Geometry.TileRect(slot),
			Blank:  in.Blank != nil && in.Blank[i],
		}
	}

	if err := CheckPartition(cues, in.Plan.Duration); err != nil {
		return nil, err
	}
	return cues, nil
}

// CheckPartition verifies cues[0].Start == 0, cues[i].End == cues[i+1].Start
// and the last End equals duration, with every range non-empty.
func CheckPartition(cues []models.Cue, duration timeline.Time) error {
	if len(cues) == 0 {
		return fmt.Errorf("%w: no cues", ErrPartition)
	}
	if !cues[0].Start.IsZero() {
		return fmt.Errorf("%w: first cue starts at %s", ErrPartition, cues[0].Start)
	}
	for i, c := range cues {
		if !c.Start.Less(c.End) {
			return fmt.Errorf("%w: cue %d is empty [%s, %s)", ErrPartition, i, c.Start, c.End)
		}
		if i+1 < len(cues) && !c.End.Equal(cues[i+1].Start) {
			return fmt.Errorf("%w: cue %d ends at %s but cue %d starts at %s", ErrPartition, i, c.End, i+1, cues[i+1].Start)
		}
	}
	if last := cues[len(cues)-1]; !last.End.Equal(duration) {
		return fmt.Errorf("%w: last cue ends at %s, duration is %s", ErrPartition, last.End, duration)
	}
	return nil
}
