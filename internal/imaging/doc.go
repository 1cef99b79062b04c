// Package imaging turns image files into the intensity fields the detector
// consumes.
//
// It decodes PNG, JPEG, GIF, BMP, TIFF and WebP files, caches both the
// decoded images and their grayscale intensities, and resolves the regions
// of interest that detection can be restricted to.
//
// # Coordinate System
//
// All pixel coordinates are 0-based with (0,0) at the top-left corner, X
// increasing rightward and Y increasing downward. For regions, (x1,y1) is
// inclusive and (x2,y2) exclusive.
//
// # Intensity Scale
//
// Intensities are float64 values on the 0-255 scale produced by a luminance
// conversion (0.299 R + 0.587 G + 0.114 B). Detector thresholds are tuned for
// that range.
//
// # Thread Safety
//
// ImageCache is safe for concurrent use. Cached images and fields are shared
// between callers and must be treated as read-only.
package imaging
