package server

// Tool represents an MCP tool definition
type Tool struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"inputSchema"`
}

func pathProperty(description string) map[string]interface{} {
	return map[string]interface{}{
		"type":        "string",
		"description": description,
	}
}

// detectorProperties returns the per-call detector overrides accepted by
// every SURF tool, merged into extra.
func detectorProperties(extra map[string]interface{}) map[string]interface{} {
	props := map[string]interface{}{
		"threshold": map[string]interface{}{
			"type":        "number",
			"description": "Minimum Hessian response of a keypoint (default from server config, normally 1000). Lower values find more, weaker keypoints.",
		},
		"octaves": map[string]interface{}{
			"type":        "integer",
			"description": "Number of scale octaves to search (default 4, max 5 with the default padding)",
		},
		"max_side": map[string]interface{}{
			"type":        "integer",
			"description": "Downscale images whose longer side exceeds this many pixels before detection. Keypoints are reported in original pixels.",
		},
	}
	for k, v := range extra {
		props[k] = v
	}
	return props
}

var regionProperties = map[string]interface{}{
	"region": map[string]interface{}{
		"type":        "string",
		"description": "Restrict detection to a named region",
		"enum":        []string{"full", "top-left", "top-right", "bottom-left", "bottom-right", "top-half", "bottom-half", "left-half", "right-half", "center"},
	},
	"bounds": map[string]interface{}{
		"type":        "object",
		"description": "Restrict detection to a pixel rectangle; (x1,y1) inclusive, (x2,y2) exclusive. Overrides region.",
		"properties": map[string]interface{}{
			"x1": map[string]interface{}{"type": "integer"},
			"y1": map[string]interface{}{"type": "integer"},
			"x2": map[string]interface{}{"type": "integer"},
			"y2": map[string]interface{}{"type": "integer"},
		},
		"required": []string{"x1", "y1", "x2", "y2"},
	},
}

var styleProperties = map[string]interface{}{
	"by_octave": map[string]interface{}{
		"type":        "boolean",
		"description": "Color markers by octave instead of Laplacian sign",
		"default":     false,
	},
	"positive_color": map[string]interface{}{
		"type":        "string",
		"description": "Marker color for dark blobs on light background (hex, e.g. #00C8FF)",
	},
	"negative_color": map[string]interface{}{
		"type":        "string",
		"description": "Marker color for light blobs on dark background (hex, e.g. #FF7800)",
	},
	"line_width": map[string]interface{}{
		"type":        "number",
		"description": "Marker line width in pixels",
		"default":     1.5,
	},
}

var rateProperty = map[string]interface{}{
	"type":        "number",
	"description": "Nearest/second-nearest distance ratio a match must beat (default 0.6). Lower is stricter.",
}

func merge(maps ...map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{})
	for _, m := range maps {
		for k, v := range m {
			out[k] = v
		}
	}
	return out
}

// GetToolDefinitions returns all available tools
func GetToolDefinitions() []Tool {
	return []Tool{
		// Basic Image Information
		{
			Name:        "image_load",
			Description: "Load an image file and return its dimensions and format. The decoded image stays cached for later detection calls.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path": pathProperty("Absolute path to the image file"),
					"reload": map[string]interface{}{
						"type":        "boolean",
						"description": "Decode the file again even if it is cached, e.g. after it changed on disk",
						"default":     false,
					},
				},
				"required": []string{"path"},
			},
		},
		{
			Name:        "image_dimensions",
			Description: "Get the width and height of an image file.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path": pathProperty("Absolute path to the image file"),
				},
				"required": []string{"path"},
			},
		},

		// Detection and Matching
		{
			Name:        "surf_detect",
			Description: "Detect SURF keypoints in an image. Returns position, scale, orientation, Laplacian sign and octave per keypoint, plus per-octave statistics.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": merge(detectorProperties(map[string]interface{}{
					"path": pathProperty("Absolute path to the image file"),
					"include_descriptors": map[string]interface{}{
						"type":        "boolean",
						"description": "Include the 64-element descriptor vector of each keypoint",
						"default":     false,
					},
					"limit": map[string]interface{}{
						"type":        "integer",
						"description": "Maximum keypoints listed in the result",
						"default":     defaultLimit,
					},
				}), regionProperties),
				"required": []string{"path"},
			},
		},
		{
			Name:        "surf_match",
			Description: "Detect keypoints in two images and match their descriptors with a nearest-neighbour ratio test. Only keypoints of equal Laplacian sign are compared.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": detectorProperties(map[string]interface{}{
					"path_a": pathProperty("Absolute path to the first image"),
					"path_b": pathProperty("Absolute path to the second image"),
					"rate":   rateProperty,
					"limit": map[string]interface{}{
						"type":        "integer",
						"description": "Maximum matches listed in the result",
						"default":     defaultLimit,
					},
				}),
				"required": []string{"path_a", "path_b"},
			},
		},

		// Rendering
		{
			Name:        "surf_render_keypoints",
			Description: "Draw detected keypoints over an image and save it as PNG or JPEG. Each keypoint is a circle of radius 2.5×scale with a tick showing its orientation.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": merge(detectorProperties(map[string]interface{}{
					"path":        pathProperty("Absolute path to the image file"),
					"output_path": pathProperty("Where to write the annotated image (.png, .jpg or .jpeg)"),
				}), regionProperties, styleProperties),
				"required": []string{"path", "output_path"},
			},
		},
		{
			Name:        "surf_render_matches",
			Description: "Place two images side by side, draw their matched keypoints and join every match with a line.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": merge(detectorProperties(map[string]interface{}{
					"path_a":      pathProperty("Absolute path to the first image"),
					"path_b":      pathProperty("Absolute path to the second image"),
					"output_path": pathProperty("Where to write the annotated image (.png, .jpg or .jpeg)"),
					"rate":        rateProperty,
				}), styleProperties),
				"required": []string{"path_a", "path_b", "output_path"},
			},
		},

		// Descriptor Files
		{
			Name:        "surf_export_descriptors",
			Description: "Detect keypoints and write them with their descriptors to an ASCII file in IPOL or Bay (Mikolajczyk) layout.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": merge(detectorProperties(map[string]interface{}{
					"path":        pathProperty("Absolute path to the image file"),
					"output_path": pathProperty("Where to write the descriptor file"),
					"format": map[string]interface{}{
						"type":        "string",
						"description": "File layout",
						"enum":        []string{"ipol", "bay"},
						"default":     "ipol",
					},
				}), regionProperties),
				"required": []string{"path", "output_path"},
			},
		},
		{
			Name:        "surf_compare_descriptors",
			Description: "Detect keypoints and compare them with a reference descriptor file. Reports the fraction of reference points reproduced within a pixel tolerance and the descriptor distances of the pairs.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": merge(detectorProperties(map[string]interface{}{
					"path":           pathProperty("Absolute path to the image file"),
					"reference_path": pathProperty("Absolute path to the reference descriptor file"),
					"format": map[string]interface{}{
						"type":        "string",
						"description": "Layout of the reference file",
						"enum":        []string{"ipol", "bay"},
						"default":     "ipol",
					},
					"tolerance": map[string]interface{}{
						"type":        "number",
						"description": "Maximum position difference in pixels",
						"default":     1.0,
					},
				}), regionProperties),
				"required": []string{"path", "reference_path"},
			},
		},
	}
}

// handleToolsList returns the list of available tools
func (s *Server) handleToolsList(req *MCPRequest) *MCPResponse {
	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]interface{}{
			"tools": GetToolDefinitions(),
		},
	}
}
