package imaging

import (
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"golang.org/x/image/bmp"
)

// writeTestPNG encodes img into a PNG under t.TempDir() and returns its path.
func writeTestPNG(t *testing.T, img image.Image) string {
	t.Helper()

	f, err := os.CreateTemp(t.TempDir(), "surf-image-*.png")
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	defer f.Close()

	if err := png.Encode(f, img); err != nil {
		t.Fatalf("failed to encode image: %v", err)
	}
	return f.Name()
}

// solidImage returns a width x height RGBA image filled with c.
func solidImage(width, height int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func TestImageCache_Load(t *testing.T) {
	cache := NewImageCache()
	path := writeTestPNG(t, solidImage(100, 80, color.RGBA{255, 0, 0, 255}))

	img1, err := cache.Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if b := img1.Bounds(); b.Dx() != 100 || b.Dy() != 80 {
		t.Errorf("dimensions: got %dx%d, want 100x80", b.Dx(), b.Dy())
	}

	img2, err := cache.Load(path)
	if err != nil {
		t.Fatalf("second Load failed: %v", err)
	}
	if img1 != img2 {
		t.Error("second Load did not return cached image")
	}
	if cache.Len() != 1 {
		t.Errorf("Len: got %d, want 1", cache.Len())
	}
}

func TestImageCache_LoadErrors(t *testing.T) {
	cache := NewImageCache()

	if _, err := cache.Load("/nonexistent/path/to/image.png"); err == nil {
		t.Error("Load should fail for non-existent file")
	}

	bad := filepath.Join(t.TempDir(), "invalid.png")
	if err := os.WriteFile(bad, []byte("not an image"), 0o644); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}
	if _, err := cache.Load(bad); err == nil {
		t.Error("Load should fail for invalid image data")
	}
	if _, err := cache.LoadIntensity(bad); err == nil {
		t.Error("LoadIntensity should fail for invalid image data")
	}
}

func TestImageCache_LoadBMP(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gray.bmp")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("failed to create file: %v", err)
	}
	if err := bmp.Encode(f, solidImage(12, 9, color.RGBA{90, 90, 90, 255})); err != nil {
		t.Fatalf("failed to encode bmp: %v", err)
	}
	f.Close()

	intensity, err := NewImageCache().LoadIntensity(path)
	if err != nil {
		t.Fatalf("LoadIntensity failed: %v", err)
	}
	if intensity.Width != 12 || intensity.Height != 9 {
		t.Errorf("dimensions: got %dx%d, want 12x9", intensity.Width, intensity.Height)
	}
	if got := intensity.At(5, 5); got != 90 {
		t.Errorf("intensity: got %v, want 90", got)
	}
}

func TestImageCache_LoadIntensityCached(t *testing.T) {
	cache := NewImageCache()
	path := writeTestPNG(t, solidImage(20, 20, color.RGBA{40, 40, 40, 255}))

	f1, err := cache.LoadIntensity(path)
	if err != nil {
		t.Fatalf("LoadIntensity failed: %v", err)
	}
	f2, err := cache.LoadIntensity(path)
	if err != nil {
		t.Fatalf("second LoadIntensity failed: %v", err)
	}
	if f1 != f2 {
		t.Error("second LoadIntensity did not return cached field")
	}

	cache.Evict(path)
	cache.mu.RLock()
	_, hasImage := cache.images[path]
	_, hasField := cache.fields[path]
	cache.mu.RUnlock()
	if hasImage || hasField {
		t.Error("Evict did not remove both cache entries")
	}

	if _, err := cache.LoadIntensity(path); err != nil {
		t.Fatalf("LoadIntensity after Evict failed: %v", err)
	}
	cache.Clear()
	if cache.Len() != 0 {
		t.Errorf("Clear left %d images", cache.Len())
	}

	// Unknown paths are ignored.
	cache.Evict("/nonexistent/path")
}

func TestImageCache_ConcurrentAccess(t *testing.T) {
	cache := NewImageCache()
	path := writeTestPNG(t, solidImage(50, 50, color.RGBA{128, 128, 128, 255}))

	var wg sync.WaitGroup
	errs := make(chan error, 100)

	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			var err error
			if i%2 == 0 {
				_, err = cache.Load(path)
			} else {
				_, err = cache.LoadIntensity(path)
			}
			if err != nil {
				errs <- err
			}
		}(i)
	}

	wg.Wait()
	close(errs)

	for err := range errs {
		t.Errorf("concurrent load error: %v", err)
	}
}

func TestLoadImageInfo(t *testing.T) {
	cache := NewImageCache()
	path := writeTestPNG(t, solidImage(200, 150, color.RGBA{255, 128, 64, 255}))

	info, err := LoadImageInfo(cache, path)
	if err != nil {
		t.Fatalf("LoadImageInfo failed: %v", err)
	}

	if info.Width != 200 || info.Height != 150 {
		t.Errorf("dimensions: got %dx%d, want 200x150", info.Width, info.Height)
	}
	if info.Format != "png" {
		t.Errorf("Format: got %s, want png", info.Format)
	}
	if info.Grayscale {
		t.Error("RGBA image reported as grayscale")
	}
	if info.FileSizeBytes <= 0 {
		t.Error("FileSizeBytes should be positive")
	}

	grayPath := writeTestPNG(t, image.NewGray(image.Rect(0, 0, 8, 8)))
	info, err = LoadImageInfo(cache, grayPath)
	if err != nil {
		t.Fatalf("LoadImageInfo failed: %v", err)
	}
	if !info.Grayscale {
		t.Error("Gray image not reported as grayscale")
	}

	if _, err := LoadImageInfo(cache, "/nonexistent/image.png"); err == nil {
		t.Error("LoadImageInfo should fail for non-existent file")
	}
}

func TestFormatFromExt(t *testing.T) {
	tests := []struct {
		path   string
		format string
	}{
		{"a.png", "png"},
		{"a.JPG", "jpeg"},
		{"a.jpeg", "jpeg"},
		{"a.gif", "gif"},
		{"a.bmp", "bmp"},
		{"a.tif", "tiff"},
		{"a.tiff", "tiff"},
		{"a.webp", "webp"},
		{"a.xyz", "unknown"},
	}

	for _, tt := range tests {
		if got := formatFromExt(tt.path); got != tt.format {
			t.Errorf("formatFromExt(%q): got %s, want %s", tt.path, got, tt.format)
		}
	}
}

func TestGetDimensions(t *testing.T) {
	cache := NewImageCache()
	path := writeTestPNG(t, solidImage(300, 200, color.RGBA{100, 100, 100, 255}))

	dims, err := GetDimensions(cache, path)
	if err != nil {
		t.Fatalf("GetDimensions failed: %v", err)
	}
	if dims.Width != 300 || dims.Height != 200 {
		t.Errorf("dimensions: got %dx%d, want 300x200", dims.Width, dims.Height)
	}

	if _, err := GetDimensions(cache, "/nonexistent/image.png"); err == nil {
		t.Error("GetDimensions should fail for non-existent file")
	}
}
