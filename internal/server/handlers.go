package server

import (
	"context"
	"encoding/json"
	"fmt"
	"image"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ironsheep/surf-mcp/internal/field"
	"github.com/ironsheep/surf-mcp/internal/imaging"
	"github.com/ironsheep/surf-mcp/internal/render"
	"github.com/ironsheep/surf-mcp/internal/surf"
	"github.com/ironsheep/surf-mcp/internal/surffile"
)

// defaultLimit caps the keypoints and matches listed in a tool result.
const defaultLimit = 500

// ToolCallParams represents the parameters for a tools/call MCP request.
type ToolCallParams struct {
	// Name is the tool to invoke (e.g., "image_load", "surf_detect").
	Name string `json:"name"`

	// Arguments contains the tool-specific parameters as JSON.
	Arguments json.RawMessage `json:"arguments"`
}

// handleToolsCall processes a tools/call request and executes the specified tool.
//
// The response wraps the tool result in MCP's content format:
//
//	{
//	  "content": [{"type": "text", "text": "<JSON result>"}]
//	}
//
// Tool execution errors return a JSON-RPC error response with code -32000.
func (s *Server) handleToolsCall(ctx context.Context, req *MCPRequest) *MCPResponse {
	var params ToolCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return s.errorResponse(req.ID, -32602, "Invalid params", err.Error())
	}

	start := time.Now()
	result, err := s.executeTool(ctx, params.Name, params.Arguments)
	if err != nil {
		s.log.Warn().Str("tool", params.Name).Err(err).Msg("tool failed")
		return s.errorResponse(req.ID, -32000, "Tool execution failed", err.Error())
	}
	s.log.Debug().
		Str("tool", params.Name).
		Dur("elapsed", time.Since(start)).
		Int("cached_images", s.cache.Len()).
		Msg("tool done")

	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]interface{}{
			"content": []map[string]interface{}{
				{
					"type": "text",
					"text": mustMarshalJSON(result),
				},
			},
		},
	}
}

// executeTool dispatches tool execution to the appropriate handler function.
//
// Each tool handler:
//  1. Unmarshals arguments from JSON
//  2. Applies per-call overrides to the server's detector defaults
//  3. Loads images from cache as needed
//  4. Runs detection, matching, rendering or export
//  5. Returns the result or error
func (s *Server) executeTool(ctx context.Context, name string, args json.RawMessage) (interface{}, error) {
	switch name {
	// Basic Image Information
	case "image_load":
		return s.handleImageLoad(args)
	case "image_dimensions":
		return s.handleImageDimensions(args)

	// Detection and Matching
	case "surf_detect":
		return s.handleSurfDetect(ctx, args)
	case "surf_match":
		return s.handleSurfMatch(ctx, args)

	// Rendering
	case "surf_render_keypoints":
		return s.handleSurfRenderKeypoints(ctx, args)
	case "surf_render_matches":
		return s.handleSurfRenderMatches(ctx, args)

	// Descriptor Files
	case "surf_export_descriptors":
		return s.handleSurfExportDescriptors(ctx, args)
	case "surf_compare_descriptors":
		return s.handleSurfCompareDescriptors(ctx, args)

	default:
		return nil, fmt.Errorf("unknown tool: %s", name)
	}
}

// errorResponse creates a JSON-RPC error response with the given details.
func (s *Server) errorResponse(id interface{}, code int, message, data string) *MCPResponse {
	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error: &MCPError{
			Code:    code,
			Message: message,
			Data:    data,
		},
	}
}

// mustMarshalJSON converts a value to pretty-printed JSON string.
// Panics are suppressed; on marshal failure, returns an empty string.
func mustMarshalJSON(v interface{}) string {
	b, _ := json.MarshalIndent(v, "", "  ")
	return string(b)
}

// === Basic Image Information Handlers ===

type imageLoadArgs struct {
	Path string `json:"path"`

	// Reload drops any cached copy so that a file changed on disk is decoded
	// again.
	Reload bool `json:"reload"`
}

func (s *Server) handleImageLoad(args json.RawMessage) (interface{}, error) {
	var a imageLoadArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	if a.Reload {
		s.cache.Evict(a.Path)
	}
	return imaging.LoadImageInfo(s.cache, a.Path)
}

func (s *Server) handleImageDimensions(args json.RawMessage) (interface{}, error) {
	var a imageLoadArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	return imaging.GetDimensions(s.cache, a.Path)
}

// === Detection Helpers ===

// detectorArgs are the detector overrides shared by every SURF tool.
type detectorArgs struct {
	Threshold *float64 `json:"threshold"`
	Octaves   *int     `json:"octaves"`
	Rate      *float64 `json:"rate"`
}

// regionArgs select the part of an image to run detection on.
type regionArgs struct {
	Region  string          `json:"region"`
	Bounds  *imaging.Region `json:"bounds"`
	MaxSide int             `json:"max_side"`
}

func (s *Server) detector(a detectorArgs) (*surf.Detector, error) {
	cfg := s.cfg
	if a.Threshold != nil {
		cfg.Threshold = *a.Threshold
	}
	if a.Octaves != nil {
		cfg.Octaves = *a.Octaves
	}
	if a.Rate != nil {
		cfg.MatchRate = *a.Rate
	}
	return surf.NewDetector(cfg, surf.WithBackend(s.backend), surf.WithLogger(s.log))
}

// detection is a detector run on one image with its results mapped back to
// the image's pixel coordinates.
type detection struct {
	Image       image.Image
	Region      imaging.Region
	ScaleFactor float64
	Result      *surf.Result
}

func (s *Server) detect(ctx context.Context, det *surf.Detector, path string, ra regionArgs) (*detection, error) {
	img, err := s.cache.Load(path)
	if err != nil {
		return nil, err
	}
	b := img.Bounds()
	full := imaging.Region{X1: b.Min.X, Y1: b.Min.Y, X2: b.Max.X, Y2: b.Max.Y}

	region := full
	switch {
	case ra.Bounds != nil:
		region = *ra.Bounds
	case ra.Region != "":
		named, err := imaging.NamedRegion(ra.Region, b.Dx(), b.Dy())
		if err != nil {
			return nil, err
		}
		region = imaging.Region{
			X1: named.X1 + b.Min.X, Y1: named.Y1 + b.Min.Y,
			X2: named.X2 + b.Min.X, Y2: named.Y2 + b.Min.Y,
		}
	}

	d := &detection{Image: img, Region: region, ScaleFactor: 1}

	var f *field.Field[float64]
	if region == full && (ra.MaxSide <= 0 || max(b.Dx(), b.Dy()) <= ra.MaxSide) {
		if f, err = s.cache.LoadIntensity(path); err != nil {
			return nil, err
		}
	} else {
		sub, err := imaging.CropRegion(img, region)
		if err != nil {
			return nil, err
		}
		sub, d.ScaleFactor = imaging.Downscale(sub, ra.MaxSide)
		f = imaging.ToIntensity(sub)
	}

	res, err := det.Detect(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("failed to detect keypoints in %s: %w", path, err)
	}

	for i := range res.Descriptors {
		kp := &res.Descriptors[i].Keypoint
		kp.X = kp.X*d.ScaleFactor + float64(region.X1-b.Min.X)
		kp.Y = kp.Y*d.ScaleFactor + float64(region.Y1-b.Min.Y)
		kp.Scale *= d.ScaleFactor
	}
	d.Result = res
	return d, nil
}

func keypointsOf(descs []surf.Descriptor) []surf.Keypoint {
	kps := make([]surf.Keypoint, len(descs))
	for i := range descs {
		kps[i] = descs[i].Keypoint
	}
	return kps
}

func limitOrDefault(limit int) int {
	if limit <= 0 {
		return defaultLimit
	}
	return limit
}

// === Detection and Matching Handlers ===

type surfDetectArgs struct {
	Path string `json:"path"`
	detectorArgs
	regionArgs
	IncludeDescriptors bool `json:"include_descriptors"`
	Limit              int  `json:"limit"`
}

type surfDetectResult struct {
	Path        string            `json:"path"`
	Threshold   float64           `json:"threshold"`
	Octaves     int               `json:"octaves"`
	Region      imaging.Region    `json:"region"`
	ScaleFactor float64           `json:"scale_factor"`
	Count       int               `json:"count"`
	Returned    int               `json:"returned"`
	Keypoints   []surf.Keypoint   `json:"keypoints,omitempty"`
	Descriptors []surf.Descriptor `json:"descriptors,omitempty"`
	Stats       surf.Stats        `json:"stats"`
}

func (s *Server) handleSurfDetect(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var a surfDetectArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	det, err := s.detector(a.detectorArgs)
	if err != nil {
		return nil, err
	}
	defer det.Close()

	d, err := s.detect(ctx, det, a.Path, a.regionArgs)
	if err != nil {
		return nil, err
	}

	descs := d.Result.Descriptors
	n := min(len(descs), limitOrDefault(a.Limit))
	cfg := det.Config()
	result := &surfDetectResult{
		Path:        a.Path,
		Threshold:   cfg.Threshold,
		Octaves:     cfg.Octaves,
		Region:      d.Region,
		ScaleFactor: d.ScaleFactor,
		Count:       len(descs),
		Returned:    n,
		Stats:       d.Result.Stats,
	}
	if a.IncludeDescriptors {
		result.Descriptors = descs[:n]
	} else {
		result.Keypoints = keypointsOf(descs[:n])
	}
	return result, nil
}

type surfMatchArgs struct {
	PathA string `json:"path_a"`
	PathB string `json:"path_b"`
	detectorArgs
	MaxSide int `json:"max_side"`
	Limit   int `json:"limit"`
}

type matchedPair struct {
	ID       int           `json:"id"`
	A        surf.Keypoint `json:"a"`
	B        surf.Keypoint `json:"b"`
	Distance float64       `json:"distance"`
}

type surfMatchResult struct {
	KeypointsA int           `json:"keypoints_a"`
	KeypointsB int           `json:"keypoints_b"`
	Count      int           `json:"count"`
	Rate       float64       `json:"rate"`
	Matches    []matchedPair `json:"matches"`
}

// matchImages detects keypoints in both images concurrently and matches
// them.
func (s *Server) matchImages(ctx context.Context, pathA, pathB string, da detectorArgs, maxSide int) (*detection, *detection, []surf.Match, error) {
	det, err := s.detector(da)
	if err != nil {
		return nil, nil, nil, err
	}
	defer det.Close()

	var a, b *detection
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		a, err = s.detect(gctx, det, pathA, regionArgs{MaxSide: maxSide})
		return err
	})
	g.Go(func() error {
		var err error
		b, err = s.detect(gctx, det, pathB, regionArgs{MaxSide: maxSide})
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, nil, nil, err
	}

	return a, b, det.Match(a.Result.Descriptors, b.Result.Descriptors), nil
}

func (s *Server) handleSurfMatch(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var a surfMatchArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}

	da, db, matches, err := s.matchImages(ctx, a.PathA, a.PathB, a.detectorArgs, a.MaxSide)
	if err != nil {
		return nil, err
	}

	n := min(len(matches), limitOrDefault(a.Limit))
	pairs := make([]matchedPair, n)
	for i, m := range matches[:n] {
		pairs[i] = matchedPair{ID: m.ID, A: m.A.Keypoint, B: m.B.Keypoint, Distance: m.Distance}
	}

	rate := s.cfg.MatchRate
	if a.Rate != nil {
		rate = *a.Rate
	}
	return &surfMatchResult{
		KeypointsA: len(da.Result.Descriptors),
		KeypointsB: len(db.Result.Descriptors),
		Count:      len(matches),
		Rate:       rate,
		Matches:    pairs,
	}, nil
}

// === Rendering Handlers ===

type styleArgs struct {
	ByOctave      bool    `json:"by_octave"`
	PositiveColor string  `json:"positive_color"`
	NegativeColor string  `json:"negative_color"`
	LineWidth     float64 `json:"line_width"`
}

func (a styleArgs) style() (render.Style, error) {
	style := render.DefaultStyle()
	style.ByOctave = a.ByOctave
	if a.LineWidth > 0 {
		style.LineWidth = a.LineWidth
	}
	if a.PositiveColor != "" {
		c, err := render.ParseHexColor(a.PositiveColor)
		if err != nil {
			return style, err
		}
		style.Positive = c
	}
	if a.NegativeColor != "" {
		c, err := render.ParseHexColor(a.NegativeColor)
		if err != nil {
			return style, err
		}
		style.Negative = c
	}
	return style, nil
}

type renderResult struct {
	OutputPath string `json:"output_path"`
	Width      int    `json:"width"`
	Height     int    `json:"height"`
	Keypoints  int    `json:"keypoints,omitempty"`
	Matches    int    `json:"matches,omitempty"`
}

type surfRenderKeypointsArgs struct {
	Path       string `json:"path"`
	OutputPath string `json:"output_path"`
	detectorArgs
	regionArgs
	styleArgs
}

func (s *Server) handleSurfRenderKeypoints(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var a surfRenderKeypointsArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	if a.OutputPath == "" {
		return nil, fmt.Errorf("output_path is required")
	}
	style, err := a.style()
	if err != nil {
		return nil, err
	}

	det, err := s.detector(a.detectorArgs)
	if err != nil {
		return nil, err
	}
	defer det.Close()

	d, err := s.detect(ctx, det, a.Path, a.regionArgs)
	if err != nil {
		return nil, err
	}

	out := render.Keypoints(d.Image, keypointsOf(d.Result.Descriptors), style)
	if err := render.Save(a.OutputPath, out); err != nil {
		return nil, err
	}
	b := out.Bounds()
	return &renderResult{
		OutputPath: a.OutputPath,
		Width:      b.Dx(),
		Height:     b.Dy(),
		Keypoints:  len(d.Result.Descriptors),
	}, nil
}

type surfRenderMatchesArgs struct {
	PathA      string `json:"path_a"`
	PathB      string `json:"path_b"`
	OutputPath string `json:"output_path"`
	detectorArgs
	MaxSide int `json:"max_side"`
	styleArgs
}

func (s *Server) handleSurfRenderMatches(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var a surfRenderMatchesArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	if a.OutputPath == "" {
		return nil, fmt.Errorf("output_path is required")
	}
	style, err := a.style()
	if err != nil {
		return nil, err
	}

	da, db, matches, err := s.matchImages(ctx, a.PathA, a.PathB, a.detectorArgs, a.MaxSide)
	if err != nil {
		return nil, err
	}

	out := render.Matches(da.Image, db.Image, matches, style)
	if err := render.Save(a.OutputPath, out); err != nil {
		return nil, err
	}
	b := out.Bounds()
	return &renderResult{
		OutputPath: a.OutputPath,
		Width:      b.Dx(),
		Height:     b.Dy(),
		Matches:    len(matches),
	}, nil
}

// === Descriptor File Handlers ===

type surfExportArgs struct {
	Path       string `json:"path"`
	OutputPath string `json:"output_path"`
	Format     string `json:"format"`
	detectorArgs
	regionArgs
}

type surfExportResult struct {
	OutputPath string          `json:"output_path"`
	Format     surffile.Format `json:"format"`
	Count      int             `json:"count"`
}

func (s *Server) handleSurfExportDescriptors(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var a surfExportArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	if a.OutputPath == "" {
		return nil, fmt.Errorf("output_path is required")
	}
	format, err := surffile.ParseFormat(a.Format)
	if err != nil {
		return nil, err
	}

	det, err := s.detector(a.detectorArgs)
	if err != nil {
		return nil, err
	}
	defer det.Close()

	d, err := s.detect(ctx, det, a.Path, a.regionArgs)
	if err != nil {
		return nil, err
	}

	f, err := os.Create(a.OutputPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", a.OutputPath, err)
	}
	if err := surffile.Write(f, format, d.Result.Descriptors); err != nil {
		f.Close()
		return nil, err
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("failed to close %s: %w", a.OutputPath, err)
	}

	return &surfExportResult{
		OutputPath: a.OutputPath,
		Format:     format,
		Count:      len(d.Result.Descriptors),
	}, nil
}

type surfCompareArgs struct {
	Path          string  `json:"path"`
	ReferencePath string  `json:"reference_path"`
	Format        string  `json:"format"`
	Tolerance     float64 `json:"tolerance"`
	detectorArgs
	regionArgs
}

func (s *Server) handleSurfCompareDescriptors(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var a surfCompareArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	if a.Tolerance <= 0 {
		a.Tolerance = 1.0
	}
	format, err := surffile.ParseFormat(a.Format)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(a.ReferencePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open reference: %w", err)
	}
	reference, err := surffile.Read(f, format)
	f.Close()
	if err != nil {
		return nil, fmt.Errorf("failed to read reference %s: %w", a.ReferencePath, err)
	}

	det, err := s.detector(a.detectorArgs)
	if err != nil {
		return nil, err
	}
	defer det.Close()

	d, err := s.detect(ctx, det, a.Path, a.regionArgs)
	if err != nil {
		return nil, err
	}

	return surffile.Compare(d.Result.Descriptors, reference, a.Tolerance), nil
}
