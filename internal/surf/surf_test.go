package surf

import (
	"context"
	"errors"
	"image"
	"math"
	"reflect"
	"testing"

	"github.com/anthonynsimon/bild/blur"
	"github.com/anthonynsimon/bild/noise"

	"github.com/ironsheep/surf-mcp/internal/field"
	"github.com/ironsheep/surf-mcp/internal/integral"
	"github.com/ironsheep/surf-mcp/internal/kernel"
)

// brightSquare returns a dark w x h image with a bright square of the given
// side centred on it.
func brightSquare(w, h, side int) *field.Field[float64] {
	f := field.New[float64](w, h)
	x0, y0 := (w-side)/2, (h-side)/2
	for y := y0; y < y0+side; y++ {
		for x := x0; x < x0+side; x++ {
			f.Set(x, y, 255)
		}
	}
	return f
}

// blobs returns an image with squares of several sizes and polarities.
func blobs() *field.Field[float64] {
	f := field.New[float64](128, 128)
	f.Fill(100)
	squares := []struct{ x, y, side int; v float64 }{
		{10, 12, 8, 255},
		{40, 20, 14, 0},
		{80, 10, 6, 230},
		{20, 70, 20, 240},
		{70, 60, 10, 10},
		{95, 95, 16, 200},
	}
	for _, s := range squares {
		for y := s.y; y < s.y+s.side; y++ {
			for x := s.x; x < s.x+s.side; x++ {
				f.Set(x, y, s.v)
			}
		}
	}
	return f
}

func fromRGBA(img *image.RGBA) *field.Field[float64] {
	b := img.Bounds()
	f := field.New[float64](b.Dx(), b.Dy())
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			f.Set(x, y, float64(img.Pix[y*img.Stride+x*4]))
		}
	}
	return f
}

func sequentialDetector(t *testing.T, cfg Config) *Detector {
	t.Helper()
	det, err := NewDetector(cfg, WithBackend(kernel.Sequential{}))
	if err != nil {
		t.Fatalf("NewDetector: %v", err)
	}
	return det
}

func TestConfigValidate(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"no octaves", func(c *Config) { c.Octaves = 0 }},
		{"too few intervals", func(c *Config) { c.Intervals = 2 }},
		{"zero rate", func(c *Config) { c.MatchRate = 0 }},
		{"rate above one", func(c *Config) { c.MatchRate = 1.5 }},
		{"padding too small", func(c *Config) { c.Padding = 50 }},
		{"unknown gradient", func(c *Config) { c.ScaleGradient = "forward" }},
		{"negative workers", func(c *Config) { c.Workers = -1 }},
		{"zero capacity", func(c *Config) { c.MaxKeypoints = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("Validate() = %v, want ErrInvalidConfig", err)
			}
		})
	}
}

func TestLobeSize(t *testing.T) {
	tests := []struct{ octave, interval, want int }{
		{0, 0, 3},
		{0, 3, 9},
		{1, 0, 5},
		{3, 3, 65},
	}
	for _, tt := range tests {
		if got := LobeSize(tt.octave, tt.interval); got != tt.want {
			t.Errorf("LobeSize(%d,%d) = %d, want %d", tt.octave, tt.interval, got, tt.want)
		}
	}
}

func TestBuildOctaveFlatImage(t *testing.T) {
	img := field.New[float64](32, 32)
	img.Fill(128)
	ii := integral.Build(img, 312, kernel.Sequential{})
	cfg := DefaultConfig()

	oct := BuildOctave(ii, 1, cfg, kernel.Sequential{})
	if oct.Width != 16 || oct.Height != 16 || oct.Stride != 2 {
		t.Fatalf("octave geometry = %dx%d stride %d", oct.Width, oct.Height, oct.Stride)
	}
	for i, plane := range oct.Hessian {
		for _, v := range plane.Pix {
			if math.Abs(v) > 1e-6 {
				t.Fatalf("interval %d: response %v on flat image", i, v)
			}
		}
	}
}

func TestBuildOctaveSignOfBrightBlob(t *testing.T) {
	img := brightSquare(64, 64, 8)
	ii := integral.Build(img, 312, kernel.Sequential{})
	oct := BuildOctave(ii, 0, DefaultConfig(), kernel.Sequential{})

	// A bright blob has a negative trace at its centre.
	if got := oct.SignLaplacian[1].At(32, 32); got != 0 {
		t.Errorf("sign at bright centre = %d, want 0", got)
	}
	if oct.Hessian[1].At(32, 32) <= 0 {
		t.Errorf("response at blob centre = %v, want > 0", oct.Hessian[1].At(32, 32))
	}
}

// syntheticOctave builds a three-interval octave whose planes are filled by fn.
func syntheticOctave(w, h int, fn func(x, y, i int) float64) *Octave {
	oct := &Octave{Index: 0, Stride: 1, Width: w, Height: h}
	for i := 0; i < 3; i++ {
		hp := field.New[float64](w, h)
		sp := field.New[uint8](w, h)
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				hp.Set(x, y, fn(x, y, i))
			}
		}
		oct.Hessian = append(oct.Hessian, hp)
		oct.SignLaplacian = append(oct.SignLaplacian, sp)
	}
	return oct
}

func TestFindExtremaStrictness(t *testing.T) {
	oct := syntheticOctave(8, 8, func(x, y, i int) float64 {
		switch {
		case i == 1 && x == 2 && y == 2:
			return 5000
		case i == 1 && (x == 5 || x == 6) && y == 5:
			return 4000 // plateau: equal neighbours reject each other
		case i == 2 && x == 2 && y == 5:
			return 9000 // outside the searched intervals
		}
		return 0
	})

	coords, dropped := FindExtrema(oct, 1000, 16, kernel.Sequential{})
	if dropped != 0 {
		t.Errorf("dropped = %d, want 0", dropped)
	}
	want := []Coordinate{{X: 2, Y: 2, Interval: 1}}
	if !reflect.DeepEqual(coords, want) {
		t.Errorf("FindExtrema = %v, want %v", coords, want)
	}

	// Every accepted extremum exceeds its 26 neighbours.
	for _, c := range coords {
		v := oct.Hessian[c.Interval].At(c.X, c.Y)
		for di := -1; di <= 1; di++ {
			for dy := -1; dy <= 1; dy++ {
				for dx := -1; dx <= 1; dx++ {
					if di == 0 && dy == 0 && dx == 0 {
						continue
					}
					if n := oct.Hessian[c.Interval+di].At(c.X+dx, c.Y+dy); n >= v {
						t.Errorf("extremum %v not strict: neighbour %v >= %v", c, n, v)
					}
				}
			}
		}
	}
}

func TestFindExtremaThresholdMonotonic(t *testing.T) {
	ii := integral.Build(blobs(), 312, kernel.Sequential{})
	oct := BuildOctave(ii, 2, DefaultConfig(), kernel.Sequential{})

	low, _ := FindExtrema(oct, 100, 1<<16, kernel.Sequential{})
	high, _ := FindExtrema(oct, 5000, 1<<16, kernel.Sequential{})
	if len(low) == 0 {
		t.Fatal("no extrema at low threshold")
	}

	inLow := make(map[Coordinate]bool, len(low))
	for _, c := range low {
		inLow[c] = true
	}
	for _, c := range high {
		if !inLow[c] {
			t.Errorf("extremum %v above high threshold missing at low threshold", c)
		}
	}
	if len(high) > len(low) {
		t.Errorf("raising the threshold added extrema: %d > %d", len(high), len(low))
	}
}

func TestFindExtremaOverflow(t *testing.T) {
	// Isolated peaks on a checkerboard of every third sample.
	oct := syntheticOctave(20, 20, func(x, y, i int) float64 {
		if i == 1 && x%3 == 1 && y%3 == 1 {
			return 2000
		}
		return 0
	})

	all, _ := FindExtrema(oct, 1000, 1000, kernel.Sequential{})
	coords, dropped := FindExtrema(oct, 1000, 4, kernel.Sequential{})
	if len(coords) != 4 {
		t.Errorf("len = %d, want 4", len(coords))
	}
	if dropped != len(all)-4 {
		t.Errorf("dropped = %d, want %d", dropped, len(all)-4)
	}
}

// quadratic returns a paraboloid peaking at (x0, y0, i0).
func quadratic(x0, y0, i0 float64) func(x, y, i int) float64 {
	return func(x, y, i int) float64 {
		dx, dy, di := float64(x)-x0, float64(y)-y0, float64(i)-i0
		return 10000 - 100*(dx*dx+dy*dy+di*di)
	}
}

func TestRefineSubPixel(t *testing.T) {
	oct := syntheticOctave(10, 10, quadratic(5.3, 4.8, 1.25))
	cfg := DefaultConfig()

	kp, ok := Refine(oct, Coordinate{X: 5, Y: 5, Interval: 1}, cfg)
	if !ok {
		t.Fatal("Refine rejected a well-conditioned peak")
	}
	if math.Abs(kp.X-5.8) > 1e-9 || math.Abs(kp.Y-5.3) > 1e-9 {
		t.Errorf("position = (%v,%v), want (5.8,5.3)", kp.X, kp.Y)
	}
	if kp.Laplacian != -1 {
		t.Errorf("Laplacian = %d, want -1", kp.Laplacian)
	}

	// With the default flat scale gradient the interval offset is ignored:
	// scale = 0.4 * (1 + 2*(1+0+1)).
	if math.Abs(kp.Scale-2.0) > 1e-9 {
		t.Errorf("flat scale = %v, want 2.0 (scale gradient not applied)", kp.Scale)
	}

	cfg.ScaleGradient = ScaleGradientCentral
	kp, ok = Refine(oct, Coordinate{X: 5, Y: 5, Interval: 1}, cfg)
	if !ok {
		t.Fatal("Refine rejected peak with central scale gradient")
	}
	if math.Abs(kp.Scale-2.2) > 1e-9 {
		t.Errorf("central scale = %v, want 2.2", kp.Scale)
	}
}

func TestRefineRejects(t *testing.T) {
	cfg := DefaultConfig()

	tests := []struct {
		name string
		oct  *Octave
		c    Coordinate
	}{
		{"left border", syntheticOctave(10, 10, quadratic(0, 5, 1)), Coordinate{X: 0, Y: 5, Interval: 1}},
		{"right border", syntheticOctave(10, 10, quadratic(8, 5, 1)), Coordinate{X: 8, Y: 5, Interval: 1}},
		{"bottom border", syntheticOctave(10, 10, quadratic(5, 8, 1)), Coordinate{X: 5, Y: 8, Interval: 1}},
		{"singular", syntheticOctave(10, 10, func(x, y, i int) float64 { return 3000 }), Coordinate{X: 5, Y: 5, Interval: 1}},
		{"offset too large", syntheticOctave(10, 10, quadratic(7, 5, 1)), Coordinate{X: 5, Y: 5, Interval: 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if kp, ok := Refine(tt.oct, tt.c, cfg); ok {
				t.Errorf("Refine accepted %v as %+v", tt.c, kp)
			}
		})
	}
}

func TestRefineSign(t *testing.T) {
	oct := syntheticOctave(10, 10, quadratic(5, 5, 1))
	oct.SignLaplacian[1].Set(5, 5, 1)
	kp, ok := Refine(oct, Coordinate{X: 5, Y: 5, Interval: 1}, DefaultConfig())
	if !ok || kp.Laplacian != 1 {
		t.Errorf("Refine = %+v, %v; want Laplacian +1", kp, ok)
	}
}

func ramp(w, h int, dx, dy float64) *field.Field[float64] {
	f := field.New[float64](w, h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			f.Set(x, y, dx*float64(x)+dy*float64(y))
		}
	}
	return f
}

func TestAssignOrientationOnRamps(t *testing.T) {
	kp := Keypoint{X: 100, Y: 100, Scale: 2}

	horizontal := integral.Build(ramp(200, 200, 1, 0), 50, kernel.Sequential{})
	if got := AssignOrientation(horizontal, kp, 20); math.Abs(got) > 1e-9 {
		t.Errorf("orientation on x ramp = %v, want 0", got)
	}

	vertical := integral.Build(ramp(200, 200, 0, 1), 50, kernel.Sequential{})
	if got := AssignOrientation(vertical, kp, 20); math.Abs(got-math.Pi/2) > 1e-9 {
		t.Errorf("orientation on y ramp = %v, want pi/2", got)
	}
}

func TestBuildDescriptorNormalised(t *testing.T) {
	ii := integral.Build(blobs(), 312, kernel.Sequential{})
	for _, kp := range []Keypoint{
		{X: 14, Y: 16, Scale: 2.0, Orientation: 0.3},
		{X: 47, Y: 27, Scale: 3.5, Orientation: -1.2},
		{X: 30, Y: 80, Scale: 6.8, Orientation: 2.0},
	} {
		d := BuildDescriptor(ii, kp)
		var sum float64
		for _, v := range d.Vector {
			sum += v * v
		}
		if math.Abs(math.Sqrt(sum)-1) > 1e-5 {
			t.Errorf("descriptor at (%v,%v) has norm %v", kp.X, kp.Y, math.Sqrt(sum))
		}
		if d.Keypoint != kp {
			t.Errorf("descriptor keypoint = %+v, want %+v", d.Keypoint, kp)
		}
	}
}

func TestBuildDescriptorFlatImage(t *testing.T) {
	img := field.New[float64](64, 64)
	img.Fill(77)
	ii := integral.Build(img, 312, kernel.Sequential{})

	d := BuildDescriptor(ii, Keypoint{X: 32, Y: 32, Scale: 2.4})
	for i, v := range d.Vector {
		if v != 0 || math.IsNaN(v) {
			t.Fatalf("Vector[%d] = %v, want 0", i, v)
		}
	}
}

func unit(i int, sign int) Descriptor {
	d := Descriptor{Keypoint: Keypoint{Laplacian: sign}}
	d.Vector[i] = 1
	return d
}

func TestMatchDescriptorsRatio(t *testing.T) {
	d := unit(0, 1)
	far := unit(0, 1)
	far.Vector[0] = -1

	tests := []struct {
		name    string
		a, b    []Descriptor
		want    int
		wantIdx int
	}{
		{"nearest and far candidate", []Descriptor{d}, []Descriptor{d, far}, 1, 0},
		{"far candidate alone", []Descriptor{d}, []Descriptor{far}, 0, 0},
		{"orthogonal candidate alone", []Descriptor{d}, []Descriptor{unit(1, 1)}, 0, 0},
		{"identical candidate alone", []Descriptor{d}, []Descriptor{d}, 1, 0},
		{"sign mismatch", []Descriptor{d}, []Descriptor{unit(0, -1)}, 0, 0},
		{"ambiguous duplicates", []Descriptor{d}, []Descriptor{d, d}, 0, 0},
		{"empty", nil, []Descriptor{d}, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MatchDescriptors(tt.a, tt.b, 0.6, kernel.Sequential{})
			if len(got) != tt.want {
				t.Fatalf("len = %d, want %d", len(got), tt.want)
			}
			if tt.want == 1 && got[0].B.Vector != tt.b[tt.wantIdx].Vector {
				t.Errorf("matched %v, want B[%d]", got[0].B.Vector[:2], tt.wantIdx)
			}
		})
	}
}

func TestMatchIDsSequential(t *testing.T) {
	a := []Descriptor{unit(0, 1), unit(1, -1), unit(2, 1), unit(3, 1)}
	b := []Descriptor{unit(3, 1), unit(2, 1), unit(1, 1), unit(0, 1)}

	pool := kernel.NewPool(4)
	defer pool.Close()

	got := MatchDescriptors(a, b, 0.6, pool)
	// a[1] has no same-sign partner.
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3", len(got))
	}
	for i, m := range got {
		if m.ID != i {
			t.Errorf("match %d has ID %d", i, m.ID)
		}
		if m.A.Vector != m.B.Vector || m.Distance != 0 {
			t.Errorf("match %d paired different vectors", i)
		}
	}
}

func TestDetectBrightSquare(t *testing.T) {
	det := sequentialDetector(t, DefaultConfig())
	res, err := det.Detect(context.Background(), brightSquare(64, 64, 16))
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}

	found := false
	for _, d := range res.Descriptors {
		if math.Hypot(d.X-32, d.Y-32) <= 2 && d.Laplacian == -1 {
			found = true
		}
	}
	if !found {
		t.Errorf("no bright keypoint within 2px of (32,32): %+v", res.Descriptors)
	}
	if res.Stats.Keypoints != len(res.Descriptors) {
		t.Errorf("Stats.Keypoints = %d, descriptors = %d", res.Stats.Keypoints, len(res.Descriptors))
	}
	if len(res.Stats.PerOctave) != 4 {
		t.Errorf("PerOctave has %d entries, want 4", len(res.Stats.PerOctave))
	}
}

func TestDetectSmallSquareLowerOctave(t *testing.T) {
	det := sequentialDetector(t, DefaultConfig())
	kps, _, err := det.Keypoints(context.Background(), brightSquare(64, 64, 8))
	if err != nil {
		t.Fatalf("Keypoints: %v", err)
	}
	for _, kp := range kps {
		if math.Hypot(kp.X-32, kp.Y-32) <= 2 && kp.Laplacian == -1 && kp.Octave == 1 {
			return
		}
	}
	t.Errorf("8px square not found at octave 1: %+v", kps)
}

func TestDetectFlatImage(t *testing.T) {
	det := sequentialDetector(t, DefaultConfig())
	for _, v := range []float64{0, 128, 255} {
		img := field.New[float64](64, 64)
		img.Fill(v)
		res, err := det.Detect(context.Background(), img)
		if err != nil {
			t.Fatalf("Detect: %v", err)
		}
		if len(res.Descriptors) != 0 {
			t.Errorf("flat image %v produced %d keypoints", v, len(res.Descriptors))
		}
	}
}

func TestDetectSelfMatch(t *testing.T) {
	noisy := blur.Gaussian(noise.Generate(96, 96, &noise.Options{NoiseFn: noise.Uniform, Monochrome: true}), 2)
	images := map[string]*field.Field[float64]{
		"blobs": blobs(),
		"noise": fromRGBA(noisy),
	}

	det := sequentialDetector(t, DefaultConfig())
	for name, img := range images {
		t.Run(name, func(t *testing.T) {
			res, err := det.Detect(context.Background(), img)
			if err != nil {
				t.Fatalf("Detect: %v", err)
			}
			if len(res.Descriptors) == 0 {
				t.Fatal("no descriptors")
			}

			matches := det.Match(res.Descriptors, res.Descriptors)
			if len(matches) != len(res.Descriptors) {
				t.Errorf("got %d self matches for %d descriptors", len(matches), len(res.Descriptors))
			}
			for _, m := range matches {
				if m.Distance != 0 || m.A.X != m.B.X || m.A.Y != m.B.Y {
					t.Errorf("self match %d paired (%v,%v) with (%v,%v) at %v", m.ID, m.A.X, m.A.Y, m.B.X, m.B.Y, m.Distance)
				}
			}
		})
	}
}

func TestDetectBackendsAgree(t *testing.T) {
	noisy := blur.Gaussian(noise.Generate(96, 96, &noise.Options{NoiseFn: noise.Uniform, Monochrome: true}), 2)

	images := map[string]*field.Field[float64]{
		"blobs": blobs(),
		"noise": fromRGBA(noisy),
	}

	seq := sequentialDetector(t, DefaultConfig())
	pool := kernel.NewPool(4)
	defer pool.Close()
	par, err := NewDetector(DefaultConfig(), WithBackend(pool))
	if err != nil {
		t.Fatalf("NewDetector: %v", err)
	}

	for name, img := range images {
		t.Run(name, func(t *testing.T) {
			want, err := seq.Detect(context.Background(), img)
			if err != nil {
				t.Fatalf("sequential: %v", err)
			}
			got, err := par.Detect(context.Background(), img)
			if err != nil {
				t.Fatalf("pool: %v", err)
			}
			if name == "blobs" && len(want.Descriptors) == 0 {
				t.Fatal("blob image produced no keypoints")
			}
			if !reflect.DeepEqual(got.Descriptors, want.Descriptors) {
				t.Errorf("pool backend produced %d descriptors, sequential %d, or values differ",
					len(got.Descriptors), len(want.Descriptors))
			}
		})
	}
}

func TestDetectKeypointOverflow(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxKeypoints = 1
	det := sequentialDetector(t, cfg)

	res, err := det.Detect(context.Background(), blobs())
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if len(res.Descriptors) != 1 {
		t.Errorf("len = %d, want 1", len(res.Descriptors))
	}
	if res.Stats.DroppedKeypoints == 0 {
		t.Error("DroppedKeypoints = 0, want > 0")
	}
}

func TestDetectErrors(t *testing.T) {
	det := sequentialDetector(t, DefaultConfig())

	if _, err := det.Detect(context.Background(), field.New[float64](0, 0)); !errors.Is(err, ErrEmptyImage) {
		t.Errorf("empty image error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := det.Detect(ctx, blobs()); !errors.Is(err, context.Canceled) {
		t.Errorf("cancelled context error = %v", err)
	}

	if _, err := NewDetector(Config{}); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("zero config error = %v", err)
	}
}

func TestNewDetectorOwnsPool(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Workers = 2
	det, err := NewDetector(cfg)
	if err != nil {
		t.Fatalf("NewDetector: %v", err)
	}
	defer det.Close()

	if det.ownsPool == nil || det.ownsPool.NumWorkers() != 2 {
		t.Fatal("parallel detector did not start its own pool")
	}
	if _, err := det.Detect(context.Background(), brightSquare(64, 64, 16)); err != nil {
		t.Fatalf("Detect: %v", err)
	}
}
