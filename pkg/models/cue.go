package models

import (
	"fmt"
	"image"

	"rapidsprite/pkg/timeline"
)

// Cue maps the half-open range [Start, End) to a tile on a sheet
type Cue struct {
	Start  timeline.Time
	End    timeline.Time
	Sheet  int
	File   string          // Sheet file name the region refers to
	Region image.Rectangle // Pixel rectangle within the sheet
	Blank  bool            // The tile was left blank (decode or pack failure)
}

// Reference returns the media-fragment reference "file#xywh=x,y,w,h"
func (c Cue) Reference() string {
	return fmt.Sprintf("%s#xywh=%d,%d,%d,%d", c.File, c.Region.Min.X, c.Region.Min.Y, c.Region.Dx(), c.Region.Dy())
}
