package storage

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
)

// Stem derives the artifact name prefix from an input path:
// "/media/My Clip.mp4" becomes "My_Clip".
func Stem(input string) string {
	base := filepath.Base(input)
	base = strings.TrimSuffix(base, filepath.Ext(base))

	stem := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			return r
		default:
			return '_'
		}
	}, base)
	stem = strings.TrimLeft(stem, ".")
	if stem == "" {
		return "video"
	}
	return stem
}

// SheetName is the file name of sheet i
func SheetName(stem string, i int, ext string) string {
	return fmt.Sprintf("%s-%d.%s", stem, i, ext)
}

// SheetIndex reports whether name is a sheet of stem, in any format, and
// its index
func SheetIndex(stem, name string) (int, bool) {
	rest, ok := strings.CutPrefix(name, stem+"-")
	if !ok {
		return 0, false
	}
	digits, ext, ok := strings.Cut(rest, ".")
	if !ok || (ext != "jpg" && ext != "png") || digits == "" {
		return 0, false
	}
	for _, r := range digits {
		if r < '0' || r > '9' {
			return 0, false
		}
	}
	i, err := strconv.Atoi(digits)
	if err != nil {
		return 0, false
	}
	return i, true
}

// CueName is the file name of the WebVTT cue file
func CueName(stem string) string {
	return stem + ".vtt"
}

// MetadataName is the file name of the metadata document
func MetadataName(stem string) string {
	return stem + ".json"
}

// ArtifactPath places an artifact file under its stem directory
func ArtifactPath(stem, name string) string {
	return stem + "/" + name
}
