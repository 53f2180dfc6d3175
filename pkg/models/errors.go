package models

import (
	"errors"

	"rapidsprite/pkg/timeline"
)

// Error taxonomy. Typed errors elsewhere unwrap to one of these.
var (
	// ErrProbe means source properties could not be read. Fatal.
	ErrProbe = errors.New("probe failed")
	// ErrInvalidDuration means a time value is malformed. Fatal.
	ErrInvalidDuration = timeline.ErrInvalidDuration
	// ErrEmptyPlan means the request yields no samples. Fatal.
	ErrEmptyPlan = errors.New("empty sample plan")
	// ErrDecode means one sample could not be decoded. Recovered per sample.
	ErrDecode = errors.New("decode failed")
	// ErrPack means a decoded frame could not be composited. Recovered per sample.
	ErrPack = errors.New("pack failed")
	// ErrWrite means an output file could not be persisted. Fatal.
	ErrWrite = errors.New("write failed")
)
