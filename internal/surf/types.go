package surf

// DescriptorSize is the length of a SURF descriptor vector.
const DescriptorSize = 64

// Coordinate is a discrete extremum position in an octave's grid.
type Coordinate struct {
	X        int `json:"x"`
	Y        int `json:"y"`
	Interval int `json:"interval"`
}

// Keypoint is a refined, scale-space interest point in source pixels.
type Keypoint struct {
	X           float64 `json:"x"`
	Y           float64 `json:"y"`
	Scale       float64 `json:"scale"`
	Orientation float64 `json:"orientation"`

	// Laplacian is +1 when the Hessian trace is positive (a dark blob on a
	// lighter background) and -1 otherwise. Only equal signs are matched.
	Laplacian int `json:"laplacian"`

	// Octave that produced the keypoint.
	Octave int `json:"octave"`
}

// Descriptor is a keypoint with its 64-element SURF vector. The vector holds
// 16 cells of (sumDx, sumDy, sumAbsDx, sumAbsDy), cell index 4*i+j.
type Descriptor struct {
	Keypoint
	Vector [DescriptorSize]float64 `json:"vector"`
}

// Match pairs a descriptor from the first set with its nearest neighbour in
// the second set.
type Match struct {
	ID int        `json:"id"`
	A  Descriptor `json:"a"`
	B  Descriptor `json:"b"`

	// Distance is the squared Euclidean distance between the vectors.
	Distance float64 `json:"distance"`
}
