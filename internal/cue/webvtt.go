package cue

import (
	"bufio"
	"bytes"
	"fmt"
	"image"
	"io"
	"strconv"
	"strings"

	"rapidsprite/pkg/models"
	"rapidsprite/pkg/timeline"
)

const header = "WEBVTT"

// Entry is one parsed WebVTT cue
type Entry struct {
	Start     timeline.Time // millisecond precision
	End       timeline.Time
	Reference string
}

// Marshal renders cues as a WebVTT document
func Marshal(cues []models.Cue) []byte {
	var buf bytes.Buffer

	buf.WriteString(header + "\n")
	for _, c := range cues {
		buf.WriteString("\n")
		buf.WriteString(fmt.Sprintf("%s --> %s\n", c.Start.Clock(), c.End.Clock()))
		buf.WriteString(c.Reference() + "\n")
	}

	return buf.Bytes()
}

// Write renders cues to w
func Write(w io.Writer, cues []models.Cue) error {
	_, err := w.Write(Marshal(cues))
	return err
}

// Parse reads a WebVTT document. Cue identifiers and settings are ignored;
// the payload is kept as the reference.
func Parse(r io.Reader) ([]Entry, error) {
	scanner := bufio.NewScanner(r)

	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("empty WebVTT document")
	}
	if first := strings.TrimPrefix(scanner.Text(), "\ufeff"); !strings.HasPrefix(first, header) {
		return nil, fmt.Errorf("missing %s header", header)
	}

	var (
		entries []Entry
		current *Entry
		line    = 1
	)
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())

		switch {
		case text == "":
			current = nil
		case strings.Contains(text, "-->"):
			start, end, err := parseTiming(text)
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", line, err)
			}
			entries = append(entries, Entry{Start: start, End: end})
			current = &entries[len(entries)-1]
		case current != nil:
			if current.Reference != "" {
				current.Reference += "\n"
			}
			current.Reference += text
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

func parseTiming(text string) (timeline.Time, timeline.Time, error) {
	left, right, _ := strings.Cut(text, "-->")
	start, err := ParseClock(strings.TrimSpace(left))
	if err != nil {
		return timeline.Time{}, timeline.Time{}, err
	}
	// cue settings may follow the end time
	fields := strings.Fields(right)
	if len(fields) == 0 {
		return timeline.Time{}, timeline.Time{}, fmt.Errorf("missing cue end time")
	}
	end, err := ParseClock(fields[0])
	if err != nil {
		return timeline.Time{}, timeline.Time{}, err
	}
	return start, end, nil
}

// ParseClock reads MM:SS.mmm or HH:MM:SS.mmm
func ParseClock(s string) (timeline.Time, error) {
	clock, frac, ok := strings.Cut(s, ".")
	if !ok || len(frac) != 3 {
		return timeline.Time{}, fmt.Errorf("bad timestamp %q", s)
	}
	parts := strings.Split(clock, ":")
	if len(parts) != 2 && len(parts) != 3 {
		return timeline.Time{}, fmt.Errorf("bad timestamp %q", s)
	}

	var ms int64
	for _, p := range parts {
		v, err := strconv.ParseInt(p, 10, 64)
		if err != nil || v < 0 {
			return timeline.Time{}, fmt.Errorf("bad timestamp %q", s)
		}
		ms = ms*60 + v
	}
	z, err := strconv.ParseInt(frac, 10, 64)
	if err != nil || z < 0 {
		return timeline.Time{}, fmt.Errorf("bad timestamp %q", s)
	}
	return timeline.New(ms*1000+z, 1000)
}

// ParseReference splits "file#xywh=x,y,w,h" into the file and its region
func ParseReference(ref string) (string, image.Rectangle, error) {
	file, fragment, ok := strings.Cut(ref, "#xywh=")
	if !ok || file == "" {
		return "", image.Rectangle{}, fmt.Errorf("bad reference %q", ref)
	}
	parts := strings.Split(fragment, ",")
	if len(parts) != 4 {
		return "", image.Rectangle{}, fmt.Errorf("bad reference %q", ref)
	}
	var v [4]int
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return "", image.Rectangle{}, fmt.Errorf("bad reference %q", ref)
		}
		v[i] = n
	}
	return file, image.Rect(v[0], v[1], v[0]+v[2], v[1]+v[3]), nil
}
