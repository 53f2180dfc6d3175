package source

import (
	"fmt"
	"os"

	"github.com/Eyevinn/mp4ff/mp4"

	"rapidsprite/pkg/models"
	"rapidsprite/pkg/timeline"
)

// ProbeMP4 reads duration, frame rate, size and codec of the first video
// track straight from the moov box. Fragmented files without a track
// duration return an error so the caller can fall back to ffprobe.
func ProbeMP4(path string) (models.SourceInfo, error) {
	f, err := os.Open(path)
	if err != nil {
		return models.SourceInfo{}, err
	}
	defer f.Close()

	parsed, err := mp4.DecodeFile(f, mp4.WithDecodeMode(mp4.DecModeLazyMdat))
	if err != nil {
		return models.SourceInfo{}, fmt.Errorf("parse mp4: %w", err)
	}
	if parsed.Moov == nil {
		return models.SourceInfo{}, fmt.Errorf("no moov box in %s", path)
	}

	for _, trak := range parsed.Moov.Traks {
		if trak.Mdia == nil || trak.Mdia.Hdlr == nil || trak.Mdia.Hdlr.HandlerType != "vide" {
			continue
		}
		return videoTrackInfo(path, trak)
	}
	return models.SourceInfo{}, fmt.Errorf("no video track in %s", path)
}

func videoTrackInfo(path string, trak *mp4.TrakBox) (models.SourceInfo, error) {
	mdhd := trak.Mdia.Mdhd
	if mdhd == nil || mdhd.Timescale == 0 || mdhd.Duration == 0 {
		return models.SourceInfo{}, fmt.Errorf("video track in %s has no duration", path)
	}
	timescale := int64(mdhd.Timescale)

	duration, err := timeline.New(int64(mdhd.Duration), timescale)
	if err != nil {
		return models.SourceInfo{}, err
	}

	info := models.SourceInfo{
		Path:     path,
		Duration: duration,
	}

	if trak.Mdia.Minf == nil || trak.Mdia.Minf.Stbl == nil {
		return info, nil
	}
	stbl := trak.Mdia.Minf.Stbl

	if stts := stbl.Stts; stts != nil {
		var samples, ticks int64
		for i, n := range stts.SampleCount {
			samples += int64(n)
			ticks += int64(n) * int64(stts.SampleTimeDelta[i])
		}
		if samples > 0 && ticks > 0 {
			rate := timeline.RatioFromFloat(float64(samples*timescale) / float64(ticks))
			info.FrameRate = rate
		}
	}

	if stsd := stbl.Stsd; stsd != nil && len(stsd.Children) > 0 {
		entry := stsd.Children[0]
		info.Codec = codecName(entry.Type())
		if vse, ok := entry.(*mp4.VisualSampleEntryBox); ok {
			info.Width = int(vse.Width)
			info.Height = int(vse.Height)
		}
	}

	return info, nil
}

// codecName maps sample entry fourccs to ffprobe-style codec names
func codecName(fourcc string) string {
	switch fourcc {
	case "avc1", "avc3":
		return "h264"
	case "hvc1", "hev1":
		return "hevc"
	case "av01":
		return "av1"
	case "vp09":
		return "vp9"
	case "mp4v":
		return "mpeg4"
	default:
		return fourcc
	}
}
