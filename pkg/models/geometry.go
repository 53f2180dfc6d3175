package models

import (
	"fmt"
	"image"
	"strconv"
)

// Geometry is the fixed tile and grid layout shared by every sheet of a run
type Geometry struct {
	TileWidth     int `json:"tile_width"`
	TileHeight    int `json:"tile_height"`
	TilesPerRow   int `json:"tiles_per_row"`
	TilesPerSheet int `json:"tiles_per_sheet"`
}

// TileSlot addresses one tile: which sheet, and where on it
type TileSlot struct {
	Sheet  int `json:"sheet"`
	Row    int `json:"row"`
	Column int `json:"column"`
}

// Validate checks that every dimension is positive
func (g Geometry) Validate() error {
	if g.TileWidth <= 0 || g.TileHeight <= 0 {
		return fmt.Errorf("tile size %dx%d must be positive", g.TileWidth, g.TileHeight)
	}
	if g.TilesPerRow <= 0 {
		return fmt.Errorf("tiles_per_row %d must be positive", g.TilesPerRow)
	}
	if g.TilesPerSheet <= 0 {
		return fmt.Errorf("tiles_per_sheet %d must be positive", g.TilesPerSheet)
	}
	return nil
}

// Columns is the number of tiles across one sheet
func (g Geometry) Columns() int {
	if g.TilesPerSheet < g.TilesPerRow {
		return g.TilesPerSheet
	}
	return g.TilesPerRow
}

// Rows is the number of tile rows on a full sheet
func (g Geometry) Rows() int {
	return (g.TilesPerSheet + g.TilesPerRow - 1) / g.TilesPerRow
}

// SheetSize returns the pixel size of every sheet
func (g Geometry) SheetSize() (width, height int) {
	return g.Columns() * g.TileWidth, g.Rows() * g.TileHeight
}

// Slot maps sample index i to its tile. It depends only on i and the geometry.
func (g Geometry) Slot(i int) TileSlot {
	within := i % g.TilesPerSheet
	return TileSlot{
		Sheet:  i / g.TilesPerSheet,
		Row:    within / g.TilesPerRow,
		Column: within % g.TilesPerRow,
	}
}

// SheetCount returns how many sheets n samples need
func (g Geometry) SheetCount(n int) int {
	return (n + g.TilesPerSheet - 1) / g.TilesPerSheet
}

// TileRect returns the pixel rectangle of a slot within its sheet
func (g Geometry) TileRect(s TileSlot) image.Rectangle {
	x := s.Column * g.TileWidth
	y := s.Row * g.TileHeight
	return image.Rect(x, y, x+g.TileWidth, y+g.TileHeight)
}

// SheetRef describes one written sheet image
type SheetRef struct {
	Index  int    `json:"index"`
	File   string `json:"file"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Tiles  int    `json:"tiles"` // samples placed on this sheet, blank or filled
}

func itoa(i int) string {
	return strconv.Itoa(i)
}
