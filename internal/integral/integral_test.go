package integral

import (
	"math"
	"testing"

	"github.com/ironsheep/surf-mcp/internal/field"
	"github.com/ironsheep/surf-mcp/internal/kernel"
)

// patterned returns a small image with distinct, non-symmetric values.
func patterned(w, h int) *field.Field[float64] {
	f := field.New[float64](w, h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			f.Set(x, y, float64((x*7+y*13)%31))
		}
	}
	return f
}

func TestMirror(t *testing.T) {
	src := patterned(5, 4)
	padded := Mirror(src, 6, kernel.Sequential{})

	if padded.Width != 17 || padded.Height != 16 {
		t.Fatalf("padded dims = %dx%d, want 17x16", padded.Width, padded.Height)
	}

	tests := []struct {
		i, want int
		n       int
	}{
		{0, 0, 5},
		{4, 4, 5},
		{-1, 1, 5},
		{-3, 3, 5},
		{5, 4, 5},
		{6, 3, 5},
		{9, 0, 5},
		{10, 0, 5},
		{-6, 3, 5},
	}
	for _, tt := range tests {
		if got := reflect(tt.i, tt.n); got != tt.want {
			t.Errorf("reflect(%d,%d) = %d, want %d", tt.i, tt.n, got, tt.want)
		}
	}

	for j := -6; j < 10; j++ {
		for i := -6; i < 11; i++ {
			want := src.At(reflect(i, 5), reflect(j, 4))
			if got := padded.At(i+6, j+6); got != want {
				t.Fatalf("padded(%d,%d) = %v, want %v", i, j, got, want)
			}
		}
	}
}

func TestRectSumMatchesBruteForce(t *testing.T) {
	const pad = 8
	src := patterned(9, 7)
	padded := Mirror(src, pad, kernel.Sequential{})

	pool := kernel.NewPool(3)
	defer pool.Close()

	backends := map[string]kernel.Backend{"sequential": kernel.Sequential{}, "pool": pool}
	for name, b := range backends {
		im := Build(src, pad, b)
		rects := [][4]int{
			{-1, -1, 8, 6},
			{0, 0, 1, 1},
			{2, 1, 6, 5},
			{-9, -9, 16, 14},
			{-5, 3, 12, 4},
			{3, 3, 3, 3},
		}
		for _, r := range rects {
			var want float64
			for y := r[1] + 1; y <= r[3]; y++ {
				for x := r[0] + 1; x <= r[2]; x++ {
					want += padded.At(x+pad, y+pad)
				}
			}
			if got := im.RectSum(r[0], r[1], r[2], r[3]); got != want {
				t.Errorf("%s RectSum%v = %v, want %v", name, r, got, want)
			}
		}
	}
}

func TestAtCornerIsTotal(t *testing.T) {
	src := patterned(6, 6)
	im := Build(src, 0, kernel.Sequential{})

	var total float64
	for _, v := range src.Pix {
		total += v
	}
	if got := im.At(5, 5); got != total {
		t.Errorf("At(5,5) = %v, want %v", got, total)
	}
	if got := im.At(-1, 3); got != 0 {
		t.Errorf("At(-1,3) = %v, want 0", got)
	}
}

func TestAtOutOfRangePanics(t *testing.T) {
	im := Build(patterned(4, 4), 2, kernel.Sequential{})
	defer func() {
		if recover() == nil {
			t.Error("expected panic outside padded domain")
		}
	}()
	im.At(6, 0)
}

func TestBoxSumMatchesRectSum(t *testing.T) {
	im := Build(patterned(12, 10), 10, kernel.Sequential{})
	// BoxSum(a,b,c,d,x,y) with positive c,d covers (x-a-c, x-a] x (y-b-d, y-b].
	got := im.BoxSum(-2, -1, 3, 4, 5, 5)
	want := im.RectSum(4, 2, 7, 6)
	if got != want {
		t.Errorf("BoxSum = %v, want %v", got, want)
	}
}

func TestHaarOnStepEdge(t *testing.T) {
	const w, h = 40, 40
	src := field.New[float64](w, h)
	for y := 0; y < h; y++ {
		for x := w / 2; x < w; x++ {
			src.Set(x, y, 255)
		}
	}
	im := Build(src, 50, kernel.Sequential{})

	hx := im.HaarX(20, 20, 4)
	if hx <= 0 {
		t.Errorf("HaarX across a rising edge = %v, want > 0", hx)
	}
	// Right box covers columns 20..24, left box 16..20; all rows equal.
	if want := 255.0 * 4 * 9; hx != want {
		t.Errorf("HaarX = %v, want %v", hx, want)
	}
	if hy := im.HaarY(20, 20, 4); hy != 0 {
		t.Errorf("HaarY on a vertical edge = %v, want 0", hy)
	}

	flat := Build(field.New[float64](w, h), 50, kernel.Sequential{})
	if hx := flat.HaarX(10, 10, 3); hx != 0 {
		t.Errorf("HaarX on flat image = %v, want 0", hx)
	}
}

func TestHaarClampsOutsidePadding(t *testing.T) {
	im := Build(patterned(8, 8), 4, kernel.Sequential{})
	for _, v := range []float64{
		im.HaarX(-100, 3, 20),
		im.HaarY(3, 200, 20),
		im.HaarX(50, 50, 60),
	} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			t.Fatalf("clamped Haar response not finite: %v", v)
		}
	}
}
