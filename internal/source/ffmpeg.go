package source

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	ffmpeg "github.com/u2takey/ffmpeg-go"

	"rapidsprite/pkg/models"
	"rapidsprite/pkg/timeline"
)

// FFmpegDecoder decodes single frames by running ffmpeg with an input seek
// and reading one PNG frame from its stdout. The showinfo filter reports
// the pts of the frame it emitted on stderr.
type FFmpegDecoder struct {
	path       string
	ffmpegPath string
	info       *models.SourceInfo
}

// NewFFmpegDecoder creates a decoder for path. ffmpegPath may be empty.
func NewFFmpegDecoder(path, ffmpegPath string) *FFmpegDecoder {
	return &FFmpegDecoder{path: path, ffmpegPath: ffmpegPath}
}

// Probe reads MP4/MOV headers natively and falls back to ffprobe
func (d *FFmpegDecoder) Probe(ctx context.Context) (models.SourceInfo, error) {
	if d.info != nil {
		return *d.info, nil
	}

	var (
		info models.SourceInfo
		err  error
	)
	if isISOBMFF(d.path) {
		info, err = ProbeMP4(d.path)
	}
	if !isISOBMFF(d.path) || err != nil {
		info, err = d.ffprobe(ctx)
	}
	if err != nil {
		return models.SourceInfo{}, err
	}

	d.info = &info
	return info, nil
}

// defaultProbeTimeout bounds ffprobe when ctx carries no deadline
const defaultProbeTimeout = 2 * time.Minute

func (d *FFmpegDecoder) ffprobe(ctx context.Context) (models.SourceInfo, error) {
	if err := ctx.Err(); err != nil {
		return models.SourceInfo{}, err
	}

	type result struct {
		out string
		err error
	}
	done := make(chan result, 1)
	timeout := probeTimeout(ctx, time.Now())
	go func() {
		out, err := ffmpeg.ProbeWithTimeout(d.path, timeout, nil)
		done <- result{out, err}
	}()

	// ffprobe is killed by its own timeout; on cancellation it is left to
	// finish in the background
	select {
	case <-ctx.Done():
		return models.SourceInfo{}, fmt.Errorf("ffprobe %s: %w", d.path, ctx.Err())
	case res := <-done:
		if res.err != nil {
			return models.SourceInfo{}, fmt.Errorf("ffprobe %s: %w", d.path, res.err)
		}
		return parseProbe(d.path, []byte(res.out))
	}
}

// probeTimeout is the time left before ctx's deadline, or the default
func probeTimeout(ctx context.Context, now time.Time) time.Duration {
	deadline, ok := ctx.Deadline()
	if !ok {
		return defaultProbeTimeout
	}
	if left := deadline.Sub(now); left > 0 {
		return left
	}
	return time.Millisecond
}

// DecodeAt extracts the first frame at or after ts
func (d *FFmpegDecoder) DecodeAt(ctx context.Context, ts timeline.Time) (image.Image, timeline.Time, error) {
	info, err := d.Probe(ctx)
	if err != nil {
		return nil, timeline.Time{}, err
	}

	var stdout, stderr bytes.Buffer
	stream := ffmpeg.Input(d.path, ffmpeg.KwArgs{"ss": seekArg(ts)}).
		Output("pipe:", ffmpeg.KwArgs{"vframes": 1, "vf": "showinfo", "format": "image2", "vcodec": "png"}).
		GlobalArgs("-hide_banner", "-nostats", "-loglevel", "info").
		WithOutput(&stdout, &stderr)
	if d.ffmpegPath != "" {
		stream = stream.SetFfmpegPath(d.ffmpegPath)
	}

	if err := runContext(ctx, stream); err != nil {
		return nil, timeline.Time{}, fmt.Errorf("ffmpeg: %w (%s)", err, lastLine(stderr.String()))
	}
	if stdout.Len() == 0 {
		return nil, timeline.Time{}, fmt.Errorf("ffmpeg produced no frame at %s (%s)", ts.Clock(), lastLine(stderr.String()))
	}

	img, err := imaging.Decode(&stdout)
	if err != nil {
		return nil, timeline.Time{}, fmt.Errorf("decode png: %w", err)
	}

	// Input seeking rebases output timestamps on the seek point
	if offset, ok := parseShowinfoPTS(stderr.String()); ok {
		return img, ts.Add(offset), nil
	}
	return img, snapToFrame(ts, info.FrameRate), nil
}

// Close is a no-op; every DecodeAt runs its own process
func (d *FFmpegDecoder) Close() error {
	return nil
}

// runContext runs the compiled command and kills it when ctx ends
func runContext(ctx context.Context, stream *ffmpeg.Stream) error {
	cmd := stream.Compile()
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	done := make(chan error, 1)
	go func() {
		done <- cmd.Wait()
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		_ = cmd.Process.Kill()
		<-done
		return ctx.Err()
	}
}

var showinfoPTS = regexp.MustCompile(`pts_time:\s*(\d+(?:\.\d+)?)`)

// parseShowinfoPTS returns the pts_time of the first frame logged by the
// showinfo filter
func parseShowinfoPTS(stderr string) (timeline.Time, bool) {
	m := showinfoPTS.FindStringSubmatch(stderr)
	if m == nil {
		return timeline.Time{}, false
	}
	pts, err := timeline.Parse(m[1])
	if err != nil {
		return timeline.Time{}, false
	}
	return pts, true
}

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	}
	return s
}

// seekArg formats ts as seconds with microsecond precision for -ss
func seekArg(ts timeline.Time) string {
	us, _ := ts.Rescale(timeline.Microsecond)
	return fmt.Sprintf("%d.%06d", us/1000000, us%1000000)
}

func isISOBMFF(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".mp4", ".m4v", ".mov":
		return true
	default:
		return false
	}
}
