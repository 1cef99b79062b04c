// Package surffile reads and writes SURF descriptors as ASCII files so that
// results can be exchanged with other SURF implementations.
//
// Two layouts are supported. Both start with the per-point vector length on
// the first line and the number of points on the second, followed by one
// point per line with space-separated fields:
//
//	IPOL: x y scale orientation d0 ... d63 laplacian
//	Bay:  x y a b c laplacian d0 ... d63
//
// IPOL files store the Laplacian sign as 1 (positive) or 0 (negative). Bay
// files, the layout used by Mikolajczyk's evaluation tools, describe each
// point as the ellipse a·x² + 2b·xy + c·y² = 1 with a = c = 1/r², r = 2.5·scale
// and b = 0, and store the sign as ±1.
package surffile

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/ironsheep/surf-mcp/internal/surf"
)

// Format selects a file layout.
type Format string

const (
	FormatIPOL Format = "ipol"
	FormatBay  Format = "bay"
)

// ParseFormat maps a user-supplied name to a Format.
func ParseFormat(name string) (Format, error) {
	switch Format(strings.ToLower(name)) {
	case FormatIPOL, "":
		return FormatIPOL, nil
	case FormatBay, "mikolajczyk":
		return FormatBay, nil
	}
	return "", fmt.Errorf("unknown descriptor format: %s", name)
}

// radiusPerScale converts a keypoint scale to the radius of its Bay ellipse.
const radiusPerScale = 2.5

func (f Format) vectorLength() int {
	if f == FormatBay {
		return surf.DescriptorSize + 1
	}
	return surf.DescriptorSize
}

// Write encodes descriptors in the given format.
func Write(w io.Writer, format Format, descs []surf.Descriptor) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "%d\n%d\n", format.vectorLength(), len(descs))

	for _, d := range descs {
		var fields []string
		switch format {
		case FormatIPOL:
			fields = make([]string, 0, 4+surf.DescriptorSize+1)
			fields = append(fields, ftoa(d.X), ftoa(d.Y), ftoa(d.Scale), ftoa(d.Orientation))
			fields = appendVector(fields, &d.Vector)
			if d.Laplacian > 0 {
				fields = append(fields, "1")
			} else {
				fields = append(fields, "0")
			}
		case FormatBay:
			r := radiusPerScale * d.Scale
			inv := 1 / (r * r)
			fields = make([]string, 0, 6+surf.DescriptorSize)
			fields = append(fields, ftoa(d.X), ftoa(d.Y), ftoa(inv), "0", ftoa(inv), strconv.Itoa(d.Laplacian))
			fields = appendVector(fields, &d.Vector)
		default:
			return fmt.Errorf("unknown descriptor format: %s", format)
		}
		bw.WriteString(strings.Join(fields, " "))
		bw.WriteByte('\n')
	}

	if err := bw.Flush(); err != nil {
		return fmt.Errorf("failed to write descriptors: %w", err)
	}
	return nil
}

func appendVector(fields []string, v *[surf.DescriptorSize]float64) []string {
	for _, x := range v {
		fields = append(fields, ftoa(x))
	}
	return fields
}

func ftoa(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// Read decodes a descriptor file. Blank lines after the last point are
// ignored; any other deviation from the layout is an error naming the line.
func Read(r io.Reader, format Format) ([]surf.Descriptor, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0

	next := func() (string, bool) {
		for sc.Scan() {
			line++
			if s := strings.TrimSpace(sc.Text()); s != "" {
				return s, true
			}
		}
		return "", false
	}

	header, ok := next()
	if !ok {
		return nil, fmt.Errorf("missing vector length: %w", scanErr(sc))
	}
	length, err := strconv.Atoi(header)
	if err != nil {
		return nil, fmt.Errorf("line %d: invalid vector length %q", line, header)
	}
	if length != format.vectorLength() {
		return nil, fmt.Errorf("line %d: vector length %d, want %d for %s", line, length, format.vectorLength(), format)
	}

	header, ok = next()
	if !ok {
		return nil, fmt.Errorf("missing point count: %w", scanErr(sc))
	}
	count, err := strconv.Atoi(header)
	if err != nil || count < 0 {
		return nil, fmt.Errorf("line %d: invalid point count %q", line, header)
	}

	descs := make([]surf.Descriptor, 0, count)
	for len(descs) < count {
		text, ok := next()
		if !ok {
			return nil, fmt.Errorf("expected %d points, found %d: %w", count, len(descs), scanErr(sc))
		}
		d, err := parsePoint(format, strings.Fields(text))
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		descs = append(descs, d)
	}

	if extra, ok := next(); ok {
		return nil, fmt.Errorf("line %d: unexpected data after %d points: %.20q", line, count, extra)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to read descriptors: %w", err)
	}
	return descs, nil
}

func scanErr(sc *bufio.Scanner) error {
	if err := sc.Err(); err != nil {
		return err
	}
	return io.ErrUnexpectedEOF
}

func parsePoint(format Format, fields []string) (surf.Descriptor, error) {
	var d surf.Descriptor
	want := 4 + surf.DescriptorSize + 1
	if format == FormatBay {
		want = 6 + surf.DescriptorSize
	}
	if len(fields) != want {
		return d, fmt.Errorf("found %d fields, want %d", len(fields), want)
	}

	nums := make([]float64, len(fields))
	for i, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return d, fmt.Errorf("field %d: %w", i+1, err)
		}
		nums[i] = v
	}

	d.X, d.Y = nums[0], nums[1]
	switch format {
	case FormatIPOL:
		d.Scale, d.Orientation = nums[2], nums[3]
		copy(d.Vector[:], nums[4:4+surf.DescriptorSize])
		d.Laplacian = -1
		if nums[len(nums)-1] != 0 {
			d.Laplacian = 1
		}
	case FormatBay:
		scale, err := ellipseScale(nums[2], nums[3], nums[4])
		if err != nil {
			return d, err
		}
		d.Scale = scale
		d.Laplacian = -1
		if nums[5] > 0 {
			d.Laplacian = 1
		}
		copy(d.Vector[:], nums[6:])
	}
	return d, nil
}

// ellipseScale recovers the keypoint scale from the ellipse coefficients
// using the geometric mean of its semi-axes.
func ellipseScale(a, b, c float64) (float64, error) {
	det := math.Sqrt((a-c)*(a-c) + 4*b*b)
	e1 := 0.5 * (a + c + det)
	e2 := 0.5 * (a + c - det)
	if e1 <= 0 || e2 <= 0 {
		return 0, fmt.Errorf("ellipse (%g, %g, %g) is not positive definite", a, b, c)
	}
	l1, l2 := 1/math.Sqrt(e1), 1/math.Sqrt(e2)
	return math.Sqrt(l1*l2) / radiusPerScale, nil
}
