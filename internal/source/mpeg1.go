package source

import (
	"context"
	"fmt"
	"image"
	"os"
	"time"

	"github.com/disintegration/imaging"
	"github.com/gen2brain/mpeg"

	"rapidsprite/pkg/models"
	"rapidsprite/pkg/timeline"
)

// MPEG1Decoder decodes MPEG-1 program streams in process, without ffmpeg
type MPEG1Decoder struct {
	path string
	file *os.File
	mpg  *mpeg.MPEG
}

// OpenMPEG1 opens an .mpg file for decoding
func OpenMPEG1(path string) (*MPEG1Decoder, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	mpg, err := mpeg.New(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("open mpeg stream: %w", err)
	}

	return &MPEG1Decoder{path: path, file: f, mpg: mpg}, nil
}

func (d *MPEG1Decoder) Probe(ctx context.Context) (models.SourceInfo, error) {
	duration, err := timeline.FromDuration(d.mpg.Duration())
	if err != nil {
		return models.SourceInfo{}, err
	}
	return models.SourceInfo{
		Path:      d.path,
		Duration:  duration,
		FrameRate: timeline.RatioFromFloat(d.mpg.Framerate()),
		Width:     d.mpg.Width(),
		Height:    d.mpg.Height(),
		Codec:     "mpeg1video",
	}, nil
}

// DecodeAt seeks to ts and decodes the frame there. The frame is cloned
// since the decoder reuses its buffers.
func (d *MPEG1Decoder) DecodeAt(ctx context.Context, ts timeline.Time) (image.Image, timeline.Time, error) {
	if err := ctx.Err(); err != nil {
		return nil, timeline.Time{}, err
	}

	frame := d.mpg.SeekFrame(ts.Duration(), true)
	if frame == nil {
		return nil, timeline.Time{}, fmt.Errorf("no frame at %s", ts.Clock())
	}

	actual, err := timeline.FromDuration(time.Duration(frame.Time * float64(time.Second)))
	if err != nil {
		actual = ts
	}
	return imaging.Clone(frame.YCbCr()), actual, nil
}

func (d *MPEG1Decoder) Close() error {
	return d.file.Close()
}
