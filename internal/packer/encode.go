package packer

import (
	"fmt"
	"image"
	"image/color"
	"io"
	"strconv"
	"strings"

	"github.com/disintegration/imaging"
)

// Sheet image formats
const (
	FormatJPEG = "jpg"
	FormatPNG  = "png"
)

// Encode writes img as jpg or png
func Encode(w io.Writer, img image.Image, format string, quality int) error {
	f, err := imaging.FormatFromExtension(format)
	if err != nil {
		return fmt.Errorf("sheet format %q: %w", format, err)
	}
	if f != imaging.JPEG && f != imaging.PNG {
		return fmt.Errorf("sheet format %q not supported", format)
	}
	return imaging.Encode(w, img, f, imaging.JPEGQuality(quality))
}

// Extension normalizes a format name to its file extension
func Extension(format string) string {
	switch strings.ToLower(format) {
	case "jpeg", "jpg":
		return FormatJPEG
	case "png":
		return FormatPNG
	default:
		return strings.ToLower(format)
	}
}

var filters = map[string]imaging.ResampleFilter{
	"nearest":       imaging.NearestNeighbor,
	"point":         imaging.NearestNeighbor,
	"neighbor":      imaging.NearestNeighbor,
	"fast_bilinear": imaging.Linear,
	"bilinear":      imaging.Linear,
	"bicubic":       imaging.CatmullRom,
	"box":           imaging.Box,
	"area":          imaging.Box,
	"lanczos":       imaging.Lanczos,
	"sinc":          imaging.Lanczos,
	"gauss":         imaging.Gaussian,
	"spline":        imaging.BSpline,
}

// ParseFilter maps a scaler name to a resample filter
func ParseFilter(name string) (imaging.ResampleFilter, error) {
	f, ok := filters[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return imaging.ResampleFilter{}, fmt.Errorf("unknown scaler %q", name)
	}
	return f, nil
}

// ParseColor reads "#RRGGBB" or "#RRGGBBAA"
func ParseColor(s string) (color.NRGBA, error) {
	hex := strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(hex) != 6 && len(hex) != 8 {
		return color.NRGBA{}, fmt.Errorf("bad color %q", s)
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return color.NRGBA{}, fmt.Errorf("bad color %q: %w", s, err)
	}
	if len(hex) == 6 {
		v = v<<8 | 0xff
	}
	return color.NRGBA{R: uint8(v >> 24), G: uint8(v >> 16), B: uint8(v >> 8), A: uint8(v)}, nil
}
