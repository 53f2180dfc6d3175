// Package metadata assembles the sidecar document for a generated preview.
package metadata

import (
	"encoding/json"
	"fmt"

	"rapidsprite/internal/planner"
	"rapidsprite/pkg/models"
	"rapidsprite/pkg/timeline"
)

// Version of the document layout
const Version = 1

// Document is the metadata sidecar. Times are exact rationals ("1001/30")
// with a float copy in seconds for convenience.
type Document struct {
	Version       int               `json:"version"`
	Source        Source            `json:"source"`
	Sampling      Sampling          `json:"sampling"`
	Tile          Tile              `json:"tile"`
	Grid          Grid              `json:"grid"`
	Sheets        []models.SheetRef `json:"sheets"`
	CueFile       string            `json:"cue_file"`
	Samples       int               `json:"samples"`
	FailedSamples int               `json:"failed_samples"`
	Failures      []Failure         `json:"failures,omitempty"`
}

type Source struct {
	Path            string         `json:"path"`
	Duration        timeline.Time  `json:"duration"`
	DurationSeconds float64        `json:"duration_seconds"`
	FrameRate       timeline.Ratio `json:"frame_rate"`
	Width           int            `json:"width"`
	Height          int            `json:"height"`
	Resolution      string         `json:"resolution"`
	Codec           string         `json:"codec"`
}

type Sampling struct {
	Mode                string `json:"mode"`
	Count               int    `json:"count,omitempty"`
	Interval            string `json:"interval,omitempty"`
	MinTrailingFraction string `json:"min_trailing_fraction,omitempty"`
}

type Tile struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

type Grid struct {
	TilesPerRow   int `json:"tiles_per_row"`
	TilesPerSheet int `json:"tiles_per_sheet"`
	Columns       int `json:"columns"`
	Rows          int `json:"rows"`
}

// Failure is a sample whose tile was left blank
type Failure struct {
	Index     int           `json:"index"`
	Timestamp timeline.Time `json:"timestamp"`
	Reason    string        `json:"reason"`
}

// Input collects what a finished run knows
type Input struct {
	Source   models.SourceInfo
	Request  planner.Request
	Plan     *models.SamplePlan
	Geometry models.Geometry
	Sheets   []models.SheetRef
	CueFile  string
	Failures []models.SampleFailure
}

// Build aggregates a run into a Document
func Build(in Input) *Document {
	doc := &Document{
		Version: Version,
		Source: Source{
			Path:            in.Source.Path,
			Duration:        in.Source.Duration,
			DurationSeconds: in.Source.Duration.Float64(),
			FrameRate:       in.Source.FrameRate,
			Width:           in.Source.Width,
			Height:          in.Source.Height,
			Resolution:      in.Source.Resolution(),
			Codec:           in.Source.Codec,
		},
		Sampling: Sampling{Mode: in.Request.Mode.String()},
		Tile:     Tile{Width: in.Geometry.TileWidth, Height: in.Geometry.TileHeight},
		Grid: Grid{
			TilesPerRow:   in.Geometry.TilesPerRow,
			TilesPerSheet: in.Geometry.TilesPerSheet,
			Columns:       in.Geometry.Columns(),
			Rows:          in.Geometry.Rows(),
		},
		Sheets:        in.Sheets,
		CueFile:       in.CueFile,
		FailedSamples: len(in.Failures),
	}

	switch in.Request.Mode {
	case planner.ModeCount:
		doc.Sampling.Count = in.Request.Count
	case planner.ModeInterval:
		doc.Sampling.Interval = in.Request.Interval.String()
		doc.Sampling.MinTrailingFraction = in.Request.MinTrailingFraction.String()
	}
	if in.Plan != nil {
		doc.Samples = in.Plan.Len()
	}
	if doc.Sheets == nil {
		doc.Sheets = []models.SheetRef{}
	}
	for _, f := range in.Failures {
		doc.Failures = append(doc.Failures, Failure{Index: f.Index, Timestamp: f.Timestamp, Reason: f.Reason})
	}

	return doc
}

// SourceInfo returns the source properties recorded in the document
func (d *Document) SourceInfo() models.SourceInfo {
	return models.SourceInfo{
		Path:      d.Source.Path,
		Duration:  d.Source.Duration,
		FrameRate: d.Source.FrameRate,
		Width:     d.Source.Width,
		Height:    d.Source.Height,
		Codec:     d.Source.Codec,
	}
}

// Geometry returns the tile layout recorded in the document
func (d *Document) Geometry() models.Geometry {
	return models.Geometry{
		TileWidth:     d.Tile.Width,
		TileHeight:    d.Tile.Height,
		TilesPerRow:   d.Grid.TilesPerRow,
		TilesPerSheet: d.Grid.TilesPerSheet,
	}
}

// Marshal encodes the document as indented JSON
func Marshal(doc *Document) ([]byte, error) {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal metadata: %w", err)
	}
	return append(data, '\n'), nil
}

// Unmarshal decodes a document written by Marshal
func Unmarshal(data []byte) (*Document, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse metadata: %w", err)
	}
	if doc.Version != Version {
		return nil, fmt.Errorf("unsupported metadata version %d", doc.Version)
	}
	return &doc, nil
}
