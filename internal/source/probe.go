package source

import (
	"encoding/json"
	"fmt"

	"rapidsprite/pkg/models"
	"rapidsprite/pkg/timeline"
)

// probeOutput is the subset of `ffprobe -show_format -show_streams -of json` we read
type probeOutput struct {
	Streams []probeStream `json:"streams"`
	Format  struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

type probeStream struct {
	CodecType    string `json:"codec_type"`
	CodecName    string `json:"codec_name"`
	Width        int    `json:"width"`
	Height       int    `json:"height"`
	RFrameRate   string `json:"r_frame_rate"`
	AvgFrameRate string `json:"avg_frame_rate"`
	TimeBase     string `json:"time_base"`
	DurationTs   int64  `json:"duration_ts"`
	Duration     string `json:"duration"`
}

// parseProbe extracts SourceInfo from ffprobe JSON. The duration is taken
// exactly from duration_ts*time_base when present, else from the decimal
// stream or container duration.
func parseProbe(path string, data []byte) (models.SourceInfo, error) {
	var out probeOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return models.SourceInfo{}, fmt.Errorf("parse ffprobe output: %w", err)
	}

	var video *probeStream
	for i := range out.Streams {
		if out.Streams[i].CodecType == "video" {
			video = &out.Streams[i]
			break
		}
	}
	if video == nil {
		return models.SourceInfo{}, fmt.Errorf("no video stream in %s", path)
	}

	duration, err := streamDuration(video, out.Format.Duration)
	if err != nil {
		return models.SourceInfo{}, err
	}

	rate, err := timeline.ParseRatio(video.AvgFrameRate)
	if err != nil || !rate.Valid() {
		rate, err = timeline.ParseRatio(video.RFrameRate)
		if err != nil {
			rate = timeline.Ratio{}
		}
	}

	return models.SourceInfo{
		Path:      path,
		Duration:  duration,
		FrameRate: rate,
		Width:     video.Width,
		Height:    video.Height,
		Codec:     video.CodecName,
	}, nil
}

func streamDuration(s *probeStream, formatDuration string) (timeline.Time, error) {
	if s.DurationTs > 0 && s.TimeBase != "" {
		base, err := timeline.ParseRatio(s.TimeBase)
		if err == nil && base.Valid() {
			tick, err := base.Seconds()
			if err == nil {
				return tick.Mul(s.DurationTs), nil
			}
		}
	}
	for _, d := range []string{s.Duration, formatDuration} {
		if d == "" || d == "N/A" {
			continue
		}
		return timeline.Parse(d)
	}
	return timeline.Time{}, fmt.Errorf("no duration reported")
}
