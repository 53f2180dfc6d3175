// Package source wraps a video decoder behind a forward-only,
// per-sample-fallible frame source.
package source

import (
	"context"
	"errors"
	"fmt"
	"image"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"rapidsprite/pkg/models"
	"rapidsprite/pkg/timeline"
)

// ErrOutOfOrder is returned when DecodeAt is called with a timestamp that is
// not after the previous one. It is a caller bug, not a decode failure.
var ErrOutOfOrder = errors.New("decode requests must be strictly increasing")

// Decoder is a single forward-seeking session over one media file.
// Implementations are not safe for concurrent use.
type Decoder interface {
	// Probe reads the source properties
	Probe(ctx context.Context) (models.SourceInfo, error)

	// DecodeAt decodes the frame nearest ts and reports where it landed
	DecodeAt(ctx context.Context, ts timeline.Time) (image.Image, timeline.Time, error)

	// Close releases decoder resources
	Close() error
}

// DecodeError records a failed decode for one sample
type DecodeError struct {
	Index     int
	Timestamp timeline.Time
	Err       error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode sample %d at %s: %v", e.Index, e.Timestamp.Clock(), e.Err)
}

func (e *DecodeError) Unwrap() []error {
	return []error{models.ErrDecode, e.Err}
}

// Options configures a Source
type Options struct {
	// Timeout bounds one DecodeAt call; a hang becomes a DecodeError. Zero disables it.
	Timeout time.Duration
	Logger  *logrus.Entry
}

// Source is the frame source adapter for one pipeline run
type Source struct {
	dec     Decoder
	timeout time.Duration
	log     *logrus.Entry

	last    timeline.Time
	started bool
}

// New wraps dec. The Source owns dec and closes it in Close.
func New(dec Decoder, opts Options) *Source {
	log := opts.Logger
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Source{
		dec:     dec,
		timeout: opts.Timeout,
		log:     log,
	}
}

// Probe reads the source properties; failures wrap models.ErrProbe
func (s *Source) Probe(ctx context.Context) (models.SourceInfo, error) {
	info, err := s.dec.Probe(ctx)
	if err != nil {
		return models.SourceInfo{}, fmt.Errorf("%w: %v", models.ErrProbe, err)
	}
	if info.Duration.IsZero() {
		return info, fmt.Errorf("%w: source reports zero duration", models.ErrProbe)
	}
	if info.Width <= 0 || info.Height <= 0 {
		return info, fmt.Errorf("%w: source reports resolution %s", models.ErrProbe, info.Resolution())
	}
	return info, nil
}

// DecodeAt decodes sample index at ts. Calls must come in strictly
// increasing timestamp order. A decoder failure or timeout is returned as a
// *DecodeError and leaves the Source usable for the next sample.
func (s *Source) DecodeAt(ctx context.Context, index int, ts timeline.Time) (*models.Frame, error) {
	if s.started && !s.last.Less(ts) {
		return nil, fmt.Errorf("%w: %s after %s", ErrOutOfOrder, ts, s.last)
	}
	s.started = true
	s.last = ts

	callCtx := ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	start := time.Now()
	img, actual, err := s.dec.DecodeAt(callCtx, ts)
	if err == nil && callCtx.Err() != nil {
		err = callCtx.Err()
	}
	if err == nil && img == nil {
		err = errors.New("decoder returned no image")
	}
	if err != nil {
		return nil, &DecodeError{Index: index, Timestamp: ts, Err: err}
	}

	s.log.WithFields(logrus.Fields{
		"sample":  index,
		"at":      ts.Clock(),
		"actual":  actual.Clock(),
		"elapsed": time.Since(start),
	}).Debug("Decoded sample")

	return &models.Frame{Index: index, Requested: ts, Actual: actual, Image: img}, nil
}

// Close releases the underlying decoder
func (s *Source) Close() error {
	return s.dec.Close()
}

// Backend names accepted by Open
const (
	BackendAuto   = "auto"
	BackendFFmpeg = "ffmpeg"
	BackendMPEG1  = "mpeg1"
)

// OpenOptions selects and configures a decoder backend
type OpenOptions struct {
	Backend    string // auto, ffmpeg or mpeg1
	FFmpegPath string // ffmpeg binary; empty uses PATH
}

// Open picks a decoder for path
func Open(path string, opts OpenOptions) (Decoder, error) {
	backend := opts.Backend
	if backend == "" || backend == BackendAuto {
		backend = BackendFFmpeg
		switch strings.ToLower(filepath.Ext(path)) {
		case ".mpg", ".mpeg", ".m1v":
			backend = BackendMPEG1
		}
	}

	switch backend {
	case BackendFFmpeg:
		return NewFFmpegDecoder(path, opts.FFmpegPath), nil
	case BackendMPEG1:
		dec, err := OpenMPEG1(path)
		if err != nil {
			return nil, err
		}
		return dec, nil
	default:
		return nil, fmt.Errorf("unknown decoder backend %q", opts.Backend)
	}
}

// snapToFrame returns the first frame boundary at or after ts. With an
// unknown frame rate ts is returned as is.
func snapToFrame(ts timeline.Time, rate timeline.Ratio) timeline.Time {
	period, err := rate.Period()
	if err != nil {
		return ts
	}
	// frames = ceil(ts / period)
	n, _ := ts.Rescale(timeline.Ratio{Num: rate.Den, Den: rate.Num})
	snapped := period.Mul(n)
	if snapped.Less(ts) {
		snapped = period.Mul(n + 1)
	}
	return snapped
}
