package packer

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"testing"

	"github.com/disintegration/imaging"

	"rapidsprite/pkg/models"
)

var testGeometry = models.Geometry{TileWidth: 160, TileHeight: 90, TilesPerRow: 2, TilesPerSheet: 4}

func solid(w, h int, c color.Color) image.Image {
	return imaging.New(w, h, c)
}

func newTestPacker(t *testing.T, sheets *[]*Sheet) *Packer {
	t.Helper()
	p, err := New(Options{
		Geometry: testGeometry,
		Fill:     color.Black,
		Filter:   imaging.Box,
		OnSheet: func(s *Sheet) error {
			*sheets = append(*sheets, s)
			return nil
		},
	})
	if err != nil {
		t.Fatalf("New() unexpected error: %v", err)
	}
	return p
}

func TestFitSize(t *testing.T) {
	tests := []struct {
		name                   string
		srcW, srcH, dstW, dstH int
		wantW, wantH           int
	}{
		{"same aspect", 1920, 1080, 160, 90, 160, 90},
		{"portrait", 1080, 1920, 160, 90, 51, 90},
		{"4:3", 640, 480, 160, 90, 120, 90},
		{"wide", 2560, 1080, 160, 90, 160, 68},
		{"nearest", 3, 1, 160, 90, 160, 53},
		{"half rounds up", 64, 1, 160, 90, 160, 3},
		{"tiny clamps to 1", 10000, 1, 160, 90, 160, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, h := FitSize(tt.srcW, tt.srcH, tt.dstW, tt.dstH)
			if w != tt.wantW || h != tt.wantH {
				t.Errorf("FitSize(%dx%d into %dx%d) = %dx%d, want %dx%d",
					tt.srcW, tt.srcH, tt.dstW, tt.dstH, w, h, tt.wantW, tt.wantH)
			}
		})
	}
}

func TestPlace_LetterboxesAndCenters(t *testing.T) {
	var sheets []*Sheet
	p := newTestPacker(t, &sheets)

	// 640x480 fits as 120x90, centered at x offset 20
	if _, err := p.Place(Filled{Image: solid(640, 480, color.White)}); err != nil {
		t.Fatalf("Place() unexpected error: %v", err)
	}
	if err := p.Finish(); err != nil {
		t.Fatalf("Finish() unexpected error: %v", err)
	}
	if len(sheets) != 1 {
		t.Fatalf("Finish() should emit 1 sheet, got %d", len(sheets))
	}

	img := sheets[0].Image
	if got := img.Bounds().Size(); got != image.Pt(320, 180) {
		t.Fatalf("sheet size = %v, want full grid 320x180", got)
	}

	checks := []struct {
		x, y int
		want color.NRGBA
	}{
		{19, 45, color.NRGBA{0, 0, 0, 255}},       // left bar
		{20, 45, color.NRGBA{255, 255, 255, 255}}, // first image column
		{139, 45, color.NRGBA{255, 255, 255, 255}},
		{140, 45, color.NRGBA{0, 0, 0, 255}}, // right bar
		{200, 45, color.NRGBA{0, 0, 0, 255}}, // unused slot
		{80, 135, color.NRGBA{0, 0, 0, 255}}, // unused row
	}
	for _, c := range checks {
		if got := img.NRGBAAt(c.x, c.y); got != c.want {
			t.Errorf("pixel (%d,%d) = %v, want %v", c.x, c.y, got, c.want)
		}
	}
}

func TestPlace_FlushesPerSheet(t *testing.T) {
	var sheets []*Sheet
	p := newTestPacker(t, &sheets)

	for i := 0; i < 6; i++ {
		slot, err := p.Place(Filled{Image: solid(16, 9, color.White)})
		if err != nil {
			t.Fatalf("Place(%d) unexpected error: %v", i, err)
		}
		if slot != testGeometry.Slot(i) {
			t.Errorf("Place(%d) slot = %+v, want %+v", i, slot, testGeometry.Slot(i))
		}
		if i == 3 && len(sheets) != 0 {
			t.Errorf("sheet 0 should not be emitted before sample 4 arrives")
		}
	}
	if len(sheets) != 1 {
		t.Fatalf("sheet 0 should be emitted once sheet 1 starts, got %d sheets", len(sheets))
	}
	if err := p.Finish(); err != nil {
		t.Fatalf("Finish() unexpected error: %v", err)
	}

	if len(sheets) != 2 {
		t.Fatalf("got %d sheets, want 2", len(sheets))
	}
	if sheets[0].Tiles != 4 || sheets[1].Tiles != 2 {
		t.Errorf("tiles per sheet = %d,%d, want 4,2", sheets[0].Tiles, sheets[1].Tiles)
	}
	if sheets[1].Image.Bounds().Dx() != 320 || sheets[1].Image.Bounds().Dy() != 180 {
		t.Errorf("partial sheet should keep the full grid size, got %v", sheets[1].Image.Bounds())
	}
}

func TestPlace_BlankAndFailuresKeepSlots(t *testing.T) {
	var sheets []*Sheet
	p := newTestPacker(t, &sheets)

	tiles := []Tile{
		Filled{Image: solid(16, 9, color.White)},
		Blank{Reason: "decode failed"},
		Filled{Image: nil},
		Filled{Image: solid(16, 9, color.White)},
	}

	for i, tile := range tiles {
		slot, err := p.Place(tile)
		if i == 2 {
			var packErr *PackError
			if !errors.As(err, &packErr) || !errors.Is(err, models.ErrPack) {
				t.Fatalf("Place(nil image) should return *PackError wrapping ErrPack, got %v", err)
			}
			if packErr.Index != 2 {
				t.Errorf("PackError.Index = %d, want 2", packErr.Index)
			}
		} else if err != nil {
			t.Fatalf("Place(%d) unexpected error: %v", i, err)
		}
		if slot != testGeometry.Slot(i) {
			t.Errorf("Place(%d) slot = %+v, want %+v", i, slot, testGeometry.Slot(i))
		}
	}
	if err := p.Finish(); err != nil {
		t.Fatalf("Finish() unexpected error: %v", err)
	}

	wantBlank := []bool{false, true, true, false}
	for i, want := range wantBlank {
		if got := p.IsBlank(i); got != want {
			t.Errorf("IsBlank(%d) = %v, want %v", i, got, want)
		}
	}

	// blank slot (0,1) stays fill-colored
	if got := sheets[0].Image.NRGBAAt(240, 45); got != (color.NRGBA{0, 0, 0, 255}) {
		t.Errorf("blank tile pixel = %v, want black", got)
	}
}

func TestPlace_OnSheetErrorIsFatal(t *testing.T) {
	boom := errors.New("disk full")
	p, err := New(Options{
		Geometry: models.Geometry{TileWidth: 8, TileHeight: 8, TilesPerRow: 1, TilesPerSheet: 1},
		OnSheet:  func(*Sheet) error { return boom },
	})
	if err != nil {
		t.Fatalf("New() unexpected error: %v", err)
	}

	if _, err := p.Place(Blank{}); err != nil {
		t.Fatalf("Place() first tile unexpected error: %v", err)
	}
	_, err = p.Place(Blank{})
	if !errors.Is(err, boom) || errors.Is(err, models.ErrPack) {
		t.Fatalf("Place() should surface the OnSheet error as non-pack error, got %v", err)
	}
}

func TestNew_InvalidGeometry(t *testing.T) {
	if _, err := New(Options{Geometry: models.Geometry{TileWidth: 0, TileHeight: 90, TilesPerRow: 1, TilesPerSheet: 1}}); err == nil {
		t.Fatal("New() with zero tile width should fail")
	}
}

func TestEncode(t *testing.T) {
	img := solid(4, 4, color.White)

	for _, format := range []string{"jpg", "png"} {
		var buf bytes.Buffer
		if err := Encode(&buf, img, format, 85); err != nil {
			t.Fatalf("Encode(%s) unexpected error: %v", format, err)
		}
		decoded, err := imaging.Decode(&buf)
		if err != nil {
			t.Fatalf("decode %s output: %v", format, err)
		}
		if decoded.Bounds().Size() != image.Pt(4, 4) {
			t.Errorf("Encode(%s) size = %v, want 4x4", format, decoded.Bounds().Size())
		}
	}

	if err := Encode(&bytes.Buffer{}, img, "gif", 85); err == nil {
		t.Error("Encode(gif) should fail")
	}
}

func TestParseFilter(t *testing.T) {
	if _, err := ParseFilter("Lanczos"); err != nil {
		t.Errorf("ParseFilter(Lanczos) unexpected error: %v", err)
	}
	if _, err := ParseFilter("experimental"); err == nil {
		t.Error("ParseFilter(experimental) should fail")
	}
}

func TestParseColor(t *testing.T) {
	tests := []struct {
		in      string
		want    color.NRGBA
		wantErr bool
	}{
		{"#000000", color.NRGBA{0, 0, 0, 255}, false},
		{"#ff8000", color.NRGBA{255, 128, 0, 255}, false},
		{"#10203040", color.NRGBA{16, 32, 48, 64}, false},
		{"red", color.NRGBA{}, true},
		{"#12345", color.NRGBA{}, true},
	}

	for _, tt := range tests {
		got, err := ParseColor(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseColor(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseColor(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
