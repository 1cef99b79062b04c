package surf

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/ironsheep/surf-mcp/internal/field"
	"github.com/ironsheep/surf-mcp/internal/integral"
	"github.com/ironsheep/surf-mcp/internal/kernel"
)

// ErrEmptyImage is returned when the input has no samples.
var ErrEmptyImage = errors.New("surf: empty image")

// Detector runs the full SURF pipeline with a fixed configuration. A
// Detector is safe for concurrent use; each call owns its intermediate
// buffers.
type Detector struct {
	cfg      Config
	backend  kernel.Backend
	ownsPool *kernel.Pool
	log      zerolog.Logger
}

// Option customises a Detector.
type Option func(*Detector)

// WithBackend runs every stage on b instead of a detector-owned backend.
func WithBackend(b kernel.Backend) Option {
	return func(d *Detector) { d.backend = b }
}

// WithLogger sets the logger for stage events. The default discards them.
func WithLogger(l zerolog.Logger) Option {
	return func(d *Detector) { d.log = l }
}

// NewDetector validates cfg and returns a detector. When cfg.Parallel is set
// and no backend is supplied, the detector starts its own worker pool, which
// Close releases.
func NewDetector(cfg Config, opts ...Option) (*Detector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	d := &Detector{cfg: cfg, log: zerolog.Nop()}
	for _, opt := range opts {
		opt(d)
	}
	if d.backend == nil {
		if cfg.Parallel {
			d.ownsPool = kernel.NewPool(cfg.Workers)
			d.backend = d.ownsPool
		} else {
			d.backend = kernel.Sequential{}
		}
	}
	return d, nil
}

// Config returns the detector's configuration.
func (d *Detector) Config() Config {
	return d.cfg
}

// Close stops the detector-owned worker pool, if any.
func (d *Detector) Close() {
	if d.ownsPool != nil {
		d.ownsPool.Close()
	}
}

// OctaveStats summarises one octave of a detection run.
type OctaveStats struct {
	Octave         int `json:"octave"`
	Width          int `json:"width"`
	Height         int `json:"height"`
	Extrema        int `json:"extrema"`
	Keypoints      int `json:"keypoints"`
	DroppedExtrema int `json:"dropped_extrema"`
}

// Stats describes a detection run.
type Stats struct {
	Width            int           `json:"width"`
	Height           int           `json:"height"`
	Extrema          int           `json:"extrema"`
	Keypoints        int           `json:"keypoints"`
	DroppedExtrema   int           `json:"dropped_extrema"`
	DroppedKeypoints int           `json:"dropped_keypoints"`
	PerOctave        []OctaveStats `json:"per_octave"`
	Elapsed          time.Duration `json:"elapsed_ns"`
}

// Result is the output of Detect.
type Result struct {
	Descriptors []Descriptor `json:"descriptors"`
	Stats       Stats        `json:"stats"`
}

// Detect finds keypoints in img, assigns orientations and builds their
// descriptors. img holds intensities on the 0-255 scale. The context is
// checked between stages.
func (d *Detector) Detect(ctx context.Context, img *field.Field[float64]) (*Result, error) {
	start := time.Now()
	ii, kps, stats, err := d.keypoints(ctx, img)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	descs := make([]Descriptor, len(kps))
	kernel.Each(d.backend, len(kps), func(i int) {
		descs[i] = BuildDescriptor(ii, kps[i])
	})

	stats.Elapsed = time.Since(start)
	d.log.Info().
		Int("width", stats.Width).
		Int("height", stats.Height).
		Int("keypoints", stats.Keypoints).
		Dur("elapsed", stats.Elapsed).
		Msg("detection complete")

	return &Result{Descriptors: descs, Stats: stats}, nil
}

// Keypoints runs the pipeline up to orientation assignment.
func (d *Detector) Keypoints(ctx context.Context, img *field.Field[float64]) ([]Keypoint, Stats, error) {
	start := time.Now()
	_, kps, stats, err := d.keypoints(ctx, img)
	if err != nil {
		return nil, Stats{}, err
	}
	stats.Elapsed = time.Since(start)
	return kps, stats, nil
}

// Match pairs two descriptor sets using the configured match rate.
func (d *Detector) Match(a, b []Descriptor) []Match {
	return MatchDescriptors(a, b, d.cfg.MatchRate, d.backend)
}

func (d *Detector) keypoints(ctx context.Context, img *field.Field[float64]) (*integral.Image, []Keypoint, Stats, error) {
	if img == nil || img.Width == 0 || img.Height == 0 {
		return nil, nil, Stats{}, ErrEmptyImage
	}
	stats := Stats{Width: img.Width, Height: img.Height}

	ii := integral.Build(img, d.cfg.Padding, d.backend)
	d.log.Debug().Int("padding", d.cfg.Padding).Msg("integral image built")

	found := kernel.NewBuffer[Keypoint](d.cfg.MaxKeypoints)
	for o := 0; o < d.cfg.Octaves; o++ {
		if err := ctx.Err(); err != nil {
			return nil, nil, Stats{}, err
		}

		oct := BuildOctave(ii, o, d.cfg, d.backend)
		coords, dropped := FindExtrema(oct, d.cfg.Threshold, d.cfg.MaxExtremaPerOctave, d.backend)
		if dropped > 0 {
			d.log.Warn().
				Int("octave", o).
				Int("dropped", dropped).
				Int("capacity", d.cfg.MaxExtremaPerOctave).
				Msg("extremum buffer overflow")
		}

		refined := make([]Keypoint, len(coords))
		ok := make([]bool, len(coords))
		kernel.Each(d.backend, len(coords), func(i int) {
			refined[i], ok[i] = Refine(oct, coords[i], d.cfg)
		})

		kept := 0
		for i, kp := range refined {
			if ok[i] && found.Append(kp) {
				kept++
			}
		}

		st := OctaveStats{
			Octave:         o,
			Width:          oct.Width,
			Height:         oct.Height,
			Extrema:        len(coords),
			Keypoints:      kept,
			DroppedExtrema: dropped,
		}
		stats.PerOctave = append(stats.PerOctave, st)
		stats.Extrema += st.Extrema
		stats.DroppedExtrema += dropped

		d.log.Debug().
			Int("octave", o).
			Int("stride", oct.Stride).
			Int("extrema", st.Extrema).
			Int("keypoints", kept).
			Msg("octave scanned")
	}

	if n := found.Dropped(); n > 0 {
		stats.DroppedKeypoints = n
		d.log.Warn().
			Int("dropped", n).
			Int("capacity", found.Cap()).
			Msg("keypoint buffer overflow")
	}

	if err := ctx.Err(); err != nil {
		return nil, nil, Stats{}, err
	}

	kps := append([]Keypoint(nil), found.Items()...)
	kernel.Each(d.backend, len(kps), func(i int) {
		kps[i].Orientation = AssignOrientation(ii, kps[i], d.cfg.Sectors)
	})
	stats.Keypoints = len(kps)

	return ii, kps, stats, nil
}
