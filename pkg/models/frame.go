package models

import (
	"image"

	"rapidsprite/pkg/timeline"
)

// Frame represents a single decoded video frame
type Frame struct {
	Index     int           // Position of the sample in the plan
	Requested timeline.Time // Timestamp the sample asked for
	Actual    timeline.Time // Timestamp the decoder landed on (within one frame interval)
	Image     image.Image   // Decoded pixels
}

// SourceInfo describes a probed video source. Immutable after probing.
type SourceInfo struct {
	Path      string         // Input path as given
	Duration  timeline.Time  // Exact duration of the video stream
	FrameRate timeline.Ratio // Zero when the container does not report one
	Width     int            // Pixel width
	Height    int            // Pixel height
	Codec     string         // "h264", "hevc", "mpeg1video", ...
}

// Resolution returns e.g. "1920x1080"
func (s SourceInfo) Resolution() string {
	return itoa(s.Width) + "x" + itoa(s.Height)
}

// SampleFailure records a sample whose tile was left blank
type SampleFailure struct {
	Index     int
	Timestamp timeline.Time
	Reason    string
}
