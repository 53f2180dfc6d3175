// Package packer composites decoded frames into fixed-geometry sprite sheets.
package packer

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"

	"github.com/disintegration/imaging"

	"rapidsprite/pkg/models"
)

// Tile is the outcome of one sample: Filled or Blank
type Tile interface {
	isTile()
}

// Filled carries decoded pixels for a slot
type Filled struct {
	Image image.Image
}

// Blank leaves a slot in the fill color
type Blank struct {
	Reason string
}

func (Filled) isTile() {}
func (Blank) isTile()  {}

// PackError reports a frame that could not be composited. The slot is left
// blank and packing continues.
type PackError struct {
	Index int
	Err   error
}

func (e *PackError) Error() string {
	return fmt.Sprintf("pack sample %d: %v", e.Index, e.Err)
}

func (e *PackError) Unwrap() []error {
	return []error{models.ErrPack, e.Err}
}

// Sheet is one composed sprite sheet
type Sheet struct {
	Index int
	Image *image.NRGBA
	Tiles int // slots attempted on this sheet
}

// Options configures a Packer
type Options struct {
	Geometry models.Geometry
	Fill     color.Color
	Filter   imaging.ResampleFilter

	// OnSheet receives each sheet once all of its slots were attempted or
	// Finish is called. The sheet is not touched by the Packer afterwards.
	OnSheet func(*Sheet) error
}

// Packer assigns slots to samples in schedule order and composites them.
// Only one sheet is held in memory at a time.
type Packer struct {
	geometry models.Geometry
	fill     color.Color
	filter   imaging.ResampleFilter
	onSheet  func(*Sheet) error

	current *Sheet
	slots   []models.TileSlot
	blank   []bool
}

// New creates a Packer. A nil Fill means black. The zero Filter is
// imaging.NearestNeighbor.
func New(opts Options) (*Packer, error) {
	if err := opts.Geometry.Validate(); err != nil {
		return nil, err
	}
	fill := opts.Fill
	if fill == nil {
		fill = color.Black
	}
	return &Packer{
		geometry: opts.Geometry,
		fill:     fill,
		filter:   opts.Filter,
		onSheet:  opts.OnSheet,
	}, nil
}

// Place puts the next sample's tile in its slot. The slot depends only on
// how many tiles were placed before, never on the tile itself. A frame that
// cannot be composited yields a *PackError with the slot left blank; any
// other error comes from OnSheet and is fatal.
func (p *Packer) Place(tile Tile) (models.TileSlot, error) {
	index := len(p.slots)
	slot := p.geometry.Slot(index)

	if p.current == nil || p.current.Index != slot.Sheet {
		if err := p.flush(); err != nil {
			return slot, err
		}
		w, h := p.geometry.SheetSize()
		p.current = &Sheet{Index: slot.Sheet, Image: imaging.New(w, h, p.fill)}
	}

	p.slots = append(p.slots, slot)
	p.blank = append(p.blank, true)
	p.current.Tiles++

	switch t := tile.(type) {
	case Filled:
		if err := p.composite(slot, t.Image); err != nil {
			return slot, &PackError{Index: index, Err: err}
		}
		p.blank[index] = false
	case Blank:
	default:
		return slot, &PackError{Index: index, Err: fmt.Errorf("unknown tile %T", tile)}
	}
	return slot, nil
}

// Finish hands off the last, possibly partial, sheet
func (p *Packer) Finish() error {
	return p.flush()
}

// Slots returns the slot of every placed sample, by sample index
func (p *Packer) Slots() []models.TileSlot {
	return p.slots
}

// IsBlank reports whether sample i ended up as a blank tile
func (p *Packer) IsBlank(i int) bool {
	return p.blank[i]
}

// Geometry returns the layout in use
func (p *Packer) Geometry() models.Geometry {
	return p.geometry
}

func (p *Packer) flush() error {
	if p.current == nil {
		return nil
	}
	sheet := p.current
	p.current = nil
	if p.onSheet == nil {
		return nil
	}
	return p.onSheet(sheet)
}

func (p *Packer) composite(slot models.TileSlot, img image.Image) error {
	if img == nil {
		return errors.New("nil frame")
	}
	b := img.Bounds()
	if b.Empty() {
		return fmt.Errorf("empty frame %v", b)
	}

	tile := p.geometry.TileRect(slot)
	w, h := FitSize(b.Dx(), b.Dy(), tile.Dx(), tile.Dy())
	x, y := (tile.Dx()-w)/2, (tile.Dy()-h)/2

	fitted := imaging.Resize(img, w, h, p.filter)
	dst := image.Rect(tile.Min.X+x, tile.Min.Y+y, tile.Min.X+x+w, tile.Min.Y+y+h)
	draw.Draw(p.current.Image, dst, fitted, fitted.Bounds().Min, draw.Over)
	return nil
}

// FitSize scales srcW x srcH to fit within dstW x dstH keeping the aspect
// ratio. The free dimension is rounded half up and clamped to [1, dst].
func FitSize(srcW, srcH, dstW, dstH int) (w, h int) {
	if int64(dstW)*int64(srcH) <= int64(dstH)*int64(srcW) {
		w = dstW
		h = int((2*int64(srcH)*int64(dstW) + int64(srcW)) / (2 * int64(srcW)))
	} else {
		h = dstH
		w = int((2*int64(srcW)*int64(dstH) + int64(srcH)) / (2 * int64(srcH)))
	}
	return clamp(w, 1, dstW), clamp(h, 1, dstH)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
