// Package surf detects, describes and matches SURF interest points.
//
// # Pipeline
//
// A detection run is a fixed sequence of stages, each a barrier over the
// whole image:
//
//  1. integral: mirror-padded summed-area table of the source
//  2. BuildOctave: box-filter Hessian response and Laplacian sign planes
//  3. FindExtrema: strict 3x3x3 maxima above Config.Threshold
//  4. Refine: single-shot quadratic fit to sub-sample position and scale
//  5. AssignOrientation: dominant Haar direction over a circular window
//  6. BuildDescriptor: 64-element vector of rotated Haar sums
//
// MatchDescriptors pairs two descriptor sets with a nearest-neighbour ratio
// test restricted to equal Laplacian signs.
//
// # Backends
//
// Every stage is expressed over an index domain and executed through a
// kernel.Backend, so the sequential and worker-pool backends produce the
// same keypoints in the same order.
//
// # Usage
//
//	det, err := surf.NewDetector(surf.DefaultConfig(), surf.WithLogger(logger))
//	if err != nil {
//	    return err
//	}
//	defer det.Close()
//
//	res, err := det.Detect(ctx, intensities)
//	if err != nil {
//	    return err
//	}
//	matches := det.Match(res.Descriptors, other.Descriptors)
package surf
