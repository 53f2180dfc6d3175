// Package pipeline runs one preview generation per input file:
// probe, plan, sample, compose, emit.
package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image/color"
	"time"

	"github.com/disintegration/imaging"
	"github.com/sirupsen/logrus"

	"rapidsprite/config"
	"rapidsprite/internal/cue"
	"rapidsprite/internal/metadata"
	"rapidsprite/internal/metrics"
	"rapidsprite/internal/packer"
	"rapidsprite/internal/planner"
	"rapidsprite/internal/source"
	"rapidsprite/internal/storage"
	"rapidsprite/pkg/models"
	"rapidsprite/pkg/timeline"
)

// State of a run
type State int

const (
	StateProbing State = iota
	StatePlanning
	StateSampling
	StateComposing
	StateEmitting
	StateDone
	StateFailed
)

// String returns a human-readable name for the state
func (s State) String() string {
	switch s {
	case StateProbing:
		return "probing"
	case StatePlanning:
		return "planning"
	case StateSampling:
		return "sampling"
	case StateComposing:
		return "composing"
	case StateEmitting:
		return "emitting"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Observer is notified of progress. Calls for one input come from a single
// goroutine; calls for different inputs may be concurrent.
type Observer interface {
	StateChanged(input string, state State)
	Planned(input string, samples int)
	Sampled(input string, index int, ok bool)
}

// Options configures a Pipeline
type Options struct {
	Request  planner.Request
	Geometry models.Geometry

	Format  string // jpg or png
	Quality int
	Filter  imaging.ResampleFilter
	Fill    color.Color

	Decoder       source.OpenOptions
	DecodeTimeout time.Duration

	Storage  storage.Storage
	Metrics  *metrics.Metrics // optional
	Observer Observer         // optional
	Logger   *logrus.Entry    // optional

	// Open creates the decoder for an input. Defaults to source.Open.
	Open func(path string) (source.Decoder, error)
}

// OptionsFromConfig builds Options from a validated Config
func OptionsFromConfig(cfg *config.Config, store storage.Storage) (Options, error) {
	req, err := cfg.SamplingRequest()
	if err != nil {
		return Options{}, err
	}
	filter, err := packer.ParseFilter(cfg.Scaler)
	if err != nil {
		return Options{}, err
	}
	fill, err := packer.ParseColor(cfg.FillColor)
	if err != nil {
		return Options{}, err
	}

	return Options{
		Request:       req,
		Geometry:      cfg.Geometry(),
		Format:        packer.Extension(cfg.SheetFormat),
		Quality:       cfg.JPEGQuality,
		Filter:        filter,
		Fill:          fill,
		Decoder:       source.OpenOptions{Backend: cfg.Decoder, FFmpegPath: cfg.FFmpegPath},
		DecodeTimeout: cfg.DecodeTimeout,
		Storage:       store,
	}, nil
}

// Result describes a finished run
type Result struct {
	Input    string
	Stem     string
	Source   models.SourceInfo
	Plan     *models.SamplePlan
	Sheets   []models.SheetRef
	Cues     []models.Cue
	Failures []models.SampleFailure

	CuePath      string // storage path of the WebVTT file
	MetadataPath string // storage path of the metadata document
	Metadata     *metadata.Document
}

// Decoded returns how many samples made it onto a sheet
func (r *Result) Decoded() int {
	if r.Plan == nil {
		return 0
	}
	return r.Plan.Len() - len(r.Failures)
}

// Pipeline generates previews. It holds no per-run state, so Run may be
// called concurrently for different inputs.
type Pipeline struct {
	opts Options
	log  *logrus.Entry
}

// New validates opts and creates a Pipeline
func New(opts Options) (*Pipeline, error) {
	if err := opts.Geometry.Validate(); err != nil {
		return nil, err
	}
	if opts.Storage == nil {
		return nil, errors.New("pipeline needs a storage backend")
	}
	opts.Format = packer.Extension(opts.Format)
	if opts.Format == "" {
		opts.Format = packer.FormatJPEG
	}
	if opts.Quality == 0 {
		opts.Quality = 85
	}
	if opts.Open == nil {
		decOpts := opts.Decoder
		opts.Open = func(path string) (source.Decoder, error) {
			return source.Open(path, decOpts)
		}
	}

	log := opts.Logger
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Pipeline{opts: opts, log: log}, nil
}

// run carries the state of one Run call
type run struct {
	*Pipeline
	ctx   context.Context
	input string
	log   *logrus.Entry
	res   *Result
}

// Run generates the sheets, cue file and metadata for input. It fails only
// when the source cannot be probed, the plan is empty, or an output cannot
// be written. Per-sample failures become blank tiles listed in the
// metadata. When no sample at all decodes, the outputs are still written
// and the returned error wraps models.ErrDecode alongside the Result.
func (p *Pipeline) Run(ctx context.Context, input string) (*Result, error) {
	r := &run{
		Pipeline: p,
		ctx:      ctx,
		input:    input,
		log:      p.log.WithField("input", input),
		res:      &Result{Input: input, Stem: storage.Stem(input)},
	}

	start := time.Now()
	if p.opts.Metrics != nil {
		p.opts.Metrics.RecordRunStart()
	}

	err := r.execute()

	outcome := "ok"
	switch {
	case err != nil:
		outcome = "failed"
		r.setState(StateFailed)
		r.log.WithError(err).Error("Preview generation failed")
	case len(r.res.Failures) > 0:
		outcome = "partial"
	}
	if p.opts.Metrics != nil {
		p.opts.Metrics.RecordRunStop(outcome, time.Since(start).Seconds())
	}

	if err != nil && !errors.Is(err, models.ErrDecode) {
		return nil, err
	}
	return r.res, err
}

func (r *run) execute() error {
	// Probing
	r.setState(StateProbing)
	dec, err := r.opts.Open(r.input)
	if err != nil {
		return fmt.Errorf("%w: %v", models.ErrProbe, err)
	}
	src := source.New(dec, source.Options{Timeout: r.opts.DecodeTimeout, Logger: r.log})
	defer src.Close()

	info, err := src.Probe(r.ctx)
	if err != nil {
		return err
	}
	r.res.Source = info
	r.log.WithFields(logrus.Fields{
		"duration":   info.Duration.Clock(),
		"resolution": info.Resolution(),
		"fps":        info.FrameRate.String(),
		"codec":      info.Codec,
	}).Info("Probed source")

	// Planning
	r.setState(StatePlanning)
	req := r.opts.Request
	if req.Mode == planner.ModeInterval && req.Epsilon.IsZero() {
		if period, err := info.FrameRate.Period(); err == nil {
			req.Epsilon = period
		}
	}
	plan, err := planner.Plan(info.Duration, req)
	if err != nil {
		return err
	}
	r.res.Plan = plan
	if r.opts.Metrics != nil {
		r.opts.Metrics.RecordProbe(info.Duration.Float64(), plan.Len())
	}
	if r.opts.Observer != nil {
		r.opts.Observer.Planned(r.input, plan.Len())
	}
	r.log.WithFields(logrus.Fields{"mode": req.Mode, "samples": plan.Len()}).Debug("Planned samples")

	// Sampling and composing run interleaved: each frame is packed and
	// dropped before the next decode.
	r.setState(StateSampling)
	pk, err := packer.New(packer.Options{
		Geometry: r.opts.Geometry,
		Fill:     r.opts.Fill,
		Filter:   r.opts.Filter,
		OnSheet:  r.writeSheet,
	})
	if err != nil {
		return err
	}
	for i, ts := range plan.Timestamps {
		if err := r.ctx.Err(); err != nil {
			return err
		}
		if err := r.sample(src, pk, i, ts); err != nil {
			return err
		}
	}

	r.setState(StateComposing)
	if err := pk.Finish(); err != nil {
		return err
	}

	// Emitting
	r.setState(StateEmitting)
	if err := r.emit(pk); err != nil {
		return err
	}

	r.setState(StateDone)
	r.log.WithFields(logrus.Fields{
		"samples": plan.Len(),
		"failed":  len(r.res.Failures),
		"sheets":  len(r.res.Sheets),
	}).Info("Preview generated")

	if r.res.Decoded() == 0 {
		return fmt.Errorf("%w: none of %d samples decoded", models.ErrDecode, plan.Len())
	}
	return nil
}

func (r *run) sample(src *source.Source, pk *packer.Packer, i int, ts timeline.Time) error {
	start := time.Now()
	frame, err := src.DecodeAt(r.ctx, i, ts)
	if errors.Is(err, source.ErrOutOfOrder) {
		return err
	}

	var tile packer.Tile
	if err != nil {
		r.fail(i, ts, "decode", err)
		tile = packer.Blank{Reason: err.Error()}
	} else {
		tile = packer.Filled{Image: frame.Image}
	}

	_, err = pk.Place(tile)
	var packErr *packer.PackError
	switch {
	case errors.As(err, &packErr):
		r.fail(i, ts, "pack", err)
	case err != nil:
		return err
	case frame != nil:
		if r.opts.Metrics != nil {
			r.opts.Metrics.RecordDecode(time.Since(start).Seconds())
		}
	}

	if r.opts.Observer != nil {
		r.opts.Observer.Sampled(r.input, i, frame != nil && packErr == nil)
	}
	return nil
}

func (r *run) fail(i int, ts timeline.Time, reason string, err error) {
	var decErr *source.DecodeError
	msg := err.Error()
	if errors.As(err, &decErr) {
		msg = decErr.Err.Error()
	}

	r.res.Failures = append(r.res.Failures, models.SampleFailure{Index: i, Timestamp: ts, Reason: msg})
	if r.opts.Metrics != nil {
		r.opts.Metrics.RecordSampleFailed(reason)
	}
	r.log.WithFields(logrus.Fields{"sample": i, "at": ts.Clock()}).WithError(err).Warn("Sample left blank")
}

func (r *run) writeSheet(sheet *packer.Sheet) error {
	var buf bytes.Buffer
	if err := packer.Encode(&buf, sheet.Image, r.opts.Format, r.opts.Quality); err != nil {
		return fmt.Errorf("%w: encode sheet %d: %v", models.ErrWrite, sheet.Index, err)
	}

	name := storage.SheetName(r.res.Stem, sheet.Index, r.opts.Format)
	path := storage.ArtifactPath(r.res.Stem, name)
	if err := storage.Put(r.ctx, r.opts.Storage, path, buf.Bytes()); err != nil {
		return err
	}

	b := sheet.Image.Bounds()
	r.res.Sheets = append(r.res.Sheets, models.SheetRef{
		Index:  sheet.Index,
		File:   name,
		Width:  b.Dx(),
		Height: b.Dy(),
		Tiles:  sheet.Tiles,
	})
	if r.opts.Metrics != nil {
		r.opts.Metrics.RecordWrite("sheet", buf.Len())
	}
	r.log.WithFields(logrus.Fields{"sheet": sheet.Index, "tiles": sheet.Tiles, "bytes": buf.Len()}).Debug("Wrote sheet")
	return nil
}

func (r *run) emit(pk *packer.Packer) error {
	files := make([]string, len(r.res.Sheets))
	for i, s := range r.res.Sheets {
		files[i] = s.File
	}
	blank := make([]bool, r.res.Plan.Len())
	for i := range blank {
		blank[i] = pk.IsBlank(i)
	}

	cues, err := cue.Build(cue.Input{
		Plan:     r.res.Plan,
		Geometry: r.opts.Geometry,
		Slots:    pk.Slots(),
		Files:    files,
		Blank:    blank,
	})
	if err != nil {
		return err
	}
	r.res.Cues = cues

	stem := r.res.Stem
	vtt := cue.Marshal(cues)
	r.res.CuePath = storage.ArtifactPath(stem, storage.CueName(stem))
	if err := storage.Put(r.ctx, r.opts.Storage, r.res.CuePath, vtt); err != nil {
		return err
	}
	if r.opts.Metrics != nil {
		r.opts.Metrics.RecordWrite("cue", len(vtt))
	}

	doc := metadata.Build(metadata.Input{
		Source:   r.res.Source,
		Request:  r.opts.Request,
		Plan:     r.res.Plan,
		Geometry: r.opts.Geometry,
		Sheets:   r.res.Sheets,
		CueFile:  storage.CueName(stem),
		Failures: r.res.Failures,
	})
	data, err := metadata.Marshal(doc)
	if err != nil {
		return err
	}
	r.res.Metadata = doc
	r.res.MetadataPath = storage.ArtifactPath(stem, storage.MetadataName(stem))
	if err := storage.Put(r.ctx, r.opts.Storage, r.res.MetadataPath, data); err != nil {
		return err
	}
	if r.opts.Metrics != nil {
		r.opts.Metrics.RecordWrite("metadata", len(data))
	}

	r.pruneSheets()
	return nil
}

// pruneSheets removes sheets left under the stem by an earlier run that
// produced more sheets or used another format. Failures are only logged;
// the new cue file never references the stale names.
func (r *run) pruneSheets() {
	stem := r.res.Stem
	names, err := r.opts.Storage.List(r.ctx, stem)
	if err != nil {
		r.log.WithError(err).Warn("Could not list previous sheets")
		return
	}

	current := make(map[string]bool, len(r.res.Sheets))
	for _, s := range r.res.Sheets {
		current[s.File] = true
	}
	for _, name := range names {
		if _, ok := storage.SheetIndex(stem, name); !ok || current[name] {
			continue
		}
		if err := r.opts.Storage.Delete(r.ctx, storage.ArtifactPath(stem, name)); err != nil {
			r.log.WithError(err).WithField("sheet", name).Warn("Could not remove stale sheet")
			continue
		}
		r.log.WithField("sheet", name).Debug("Removed stale sheet")
	}
}

func (r *run) setState(s State) {
	r.log.WithField("state", s).Debug("Pipeline state")
	if r.opts.Observer != nil {
		r.opts.Observer.StateChanged(r.input, s)
	}
}
