package surf

import (
	"errors"
	"fmt"
)

// ErrInvalidConfig is wrapped by every error returned from Config.Validate.
var ErrInvalidConfig = errors.New("invalid surf config")

// ScaleGradient selects how the refiner estimates the first derivative
// across intervals.
type ScaleGradient string

const (
	// ScaleGradientFlat keeps the scale gradient at zero, reproducing the
	// reference detector's keypoint positions.
	ScaleGradientFlat ScaleGradient = "flat"

	// ScaleGradientCentral uses the central difference (H[i+1]-H[i-1])/2.
	ScaleGradientCentral ScaleGradient = "central"
)

// Config holds every tunable of the detector. A Config is copied into a
// Detector on construction and never changes afterwards.
type Config struct {
	// Octaves is the number of scale octaves to scan.
	Octaves int `toml:"octaves" json:"octaves"`

	// Intervals is the number of response planes per octave. Extrema are
	// searched in the planes 1..Intervals-2.
	Intervals int `toml:"intervals" json:"intervals"`

	// SampleImage is the base of the per-octave sampling stride
	// (stride = SampleImage^octave).
	SampleImage int `toml:"sample_image" json:"sample_image"`

	// Sectors is the number of angular bins used for orientation.
	Sectors int `toml:"sectors" json:"sectors"`

	// Threshold is the minimum Hessian response of an extremum.
	Threshold float64 `toml:"threshold" json:"threshold"`

	// MatchRate is the nearest/second-nearest ratio of the matcher.
	MatchRate float64 `toml:"match_rate" json:"match_rate"`

	// Padding is the mirror border added around the source before
	// integration. It must cover the largest box filter.
	Padding int `toml:"padding" json:"padding"`

	// HessianWeight balances Dxy against Dxx*Dyy in the blob response.
	HessianWeight float64 `toml:"hessian_weight" json:"hessian_weight"`

	// MaxOffset rejects refinements that move further than this on any axis.
	MaxOffset float64 `toml:"max_offset" json:"max_offset"`

	// ScaleGradient selects how refinement estimates the derivative across
	// intervals.
	ScaleGradient ScaleGradient `toml:"scale_gradient" json:"scale_gradient"`

	// BaseScale multiplies the interpolated lobe index to give a keypoint
	// scale.
	BaseScale float64 `toml:"base_scale" json:"base_scale"`

	// MaxExtremaPerOctave bounds the extremum buffer of a single octave.
	MaxExtremaPerOctave int `toml:"max_extrema_per_octave" json:"max_extrema_per_octave"`

	// MaxKeypoints bounds the refined keypoints kept for one image.
	MaxKeypoints int `toml:"max_keypoints" json:"max_keypoints"`

	// Workers sizes the worker pool; 0 means GOMAXPROCS.
	Workers int `toml:"workers" json:"workers"`

	// Parallel selects the worker pool backend instead of the sequential one.
	Parallel bool `toml:"parallel" json:"parallel"`
}

// DefaultConfig returns the standard SURF parameters.
func DefaultConfig() Config {
	return Config{
		Octaves:             4,
		Intervals:           4,
		SampleImage:         2,
		Sectors:             20,
		Threshold:           1000,
		MatchRate:           0.6,
		Padding:             312,
		HessianWeight:       0.8317,
		MaxOffset:           1.5,
		ScaleGradient:       ScaleGradientFlat,
		BaseScale:           0.4,
		MaxExtremaPerOctave: 65536,
		MaxKeypoints:        65536,
		Workers:             0,
		Parallel:            true,
	}
}

// LobeSize returns the lobe length of the box filters for an octave and
// interval.
func LobeSize(octave, interval int) int {
	return (1<<(octave+1))*(interval+1) + 1
}

// filterReach is how far from its centre the widest filter of lobe l reads.
func filterReach(l int) int {
	return (3*l + 1) / 2
}

// Validate checks the configuration for values the pipeline cannot run with.
func (c Config) Validate() error {
	switch {
	case c.Octaves < 1:
		return fmt.Errorf("%w: octaves must be positive, got %d", ErrInvalidConfig, c.Octaves)
	case c.Intervals < 3:
		return fmt.Errorf("%w: intervals must be at least 3, got %d", ErrInvalidConfig, c.Intervals)
	case c.SampleImage < 1:
		return fmt.Errorf("%w: sample_image must be positive, got %d", ErrInvalidConfig, c.SampleImage)
	case c.Sectors < 1:
		return fmt.Errorf("%w: sectors must be positive, got %d", ErrInvalidConfig, c.Sectors)
	case c.Threshold < 0:
		return fmt.Errorf("%w: threshold must not be negative, got %g", ErrInvalidConfig, c.Threshold)
	case c.MatchRate <= 0 || c.MatchRate > 1:
		return fmt.Errorf("%w: match_rate must be in (0,1], got %g", ErrInvalidConfig, c.MatchRate)
	case c.MaxOffset <= 0:
		return fmt.Errorf("%w: max_offset must be positive, got %g", ErrInvalidConfig, c.MaxOffset)
	case c.BaseScale <= 0:
		return fmt.Errorf("%w: base_scale must be positive, got %g", ErrInvalidConfig, c.BaseScale)
	case c.MaxExtremaPerOctave < 1 || c.MaxKeypoints < 1:
		return fmt.Errorf("%w: buffer capacities must be positive", ErrInvalidConfig)
	case c.Workers < 0:
		return fmt.Errorf("%w: workers must not be negative, got %d", ErrInvalidConfig, c.Workers)
	}

	switch c.ScaleGradient {
	case ScaleGradientFlat, ScaleGradientCentral:
	default:
		return fmt.Errorf("%w: unknown scale_gradient %q", ErrInvalidConfig, c.ScaleGradient)
	}

	need := filterReach(LobeSize(c.Octaves-1, c.Intervals-1))
	if c.Padding < need {
		return fmt.Errorf("%w: padding %d is smaller than the widest filter reach %d", ErrInvalidConfig, c.Padding, need)
	}
	return nil
}

// stride returns the sampling step of an octave.
func (c Config) stride(octave int) int {
	s := 1
	for i := 0; i < octave; i++ {
		s *= c.SampleImage
	}
	return s
}
