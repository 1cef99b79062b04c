package field

import (
	"image"
	"testing"
)

func TestNewAndIndex(t *testing.T) {
	f := New[float64](4, 3)
	if len(f.Pix) != 12 {
		t.Fatalf("len(Pix) = %d, want 12", len(f.Pix))
	}
	f.Set(3, 2, 7.5)
	if got := f.At(3, 2); got != 7.5 {
		t.Errorf("At(3,2) = %v, want 7.5", got)
	}
	if got := f.Pix[2*4+3]; got != 7.5 {
		t.Errorf("row-major layout broken: Pix[11] = %v", got)
	}
	row := f.Row(2)
	if len(row) != 4 || row[3] != 7.5 {
		t.Errorf("Row(2) = %v", row)
	}
}

func TestOutOfRangePanics(t *testing.T) {
	tests := []struct {
		name string
		fn   func(f *Field[uint8])
	}{
		{"negative x", func(f *Field[uint8]) { f.At(-1, 0) }},
		{"x past width", func(f *Field[uint8]) { f.At(2, 0) }},
		{"y past height", func(f *Field[uint8]) { f.Set(0, 2, 1) }},
		{"row", func(f *Field[uint8]) { f.Row(5) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			defer func() {
				if recover() == nil {
					t.Error("expected panic")
				}
			}()
			tt.fn(New[uint8](2, 2))
		})
	}
}

func TestWrapLengthMismatchPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic for mismatched buffer")
		}
	}()
	Wrap(3, 3, make([]int32, 8))
}

func TestFromGray(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 3, 2))
	img.Pix = []uint8{0, 128, 255, 10, 20, 30}

	f := FromGray(img)
	if f.Width != 3 || f.Height != 2 {
		t.Fatalf("dims = %dx%d, want 3x2", f.Width, f.Height)
	}
	if got := f.At(2, 0); got != 255 {
		t.Errorf("At(2,0) = %v, want 255", got)
	}
	if got := f.At(1, 1); got != 20 {
		t.Errorf("At(1,1) = %v, want 20", got)
	}
}

func TestFromNormalized(t *testing.T) {
	f := FromNormalized(2, 1, []float64{0, 1})
	if f.At(0, 0) != 0 || f.At(1, 0) != 255 {
		t.Errorf("got %v, want [0 255]", f.Pix)
	}
}
