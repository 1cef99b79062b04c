// Package server implements the MCP (Model Context Protocol) server for SURF
// keypoint detection and matching.
//
// # Protocol
//
// The server communicates over stdio using JSON-RPC 2.0:
//   - Input: JSON-RPC requests on stdin (one per line)
//   - Output: JSON-RPC responses on stdout
//
// Supported MCP methods:
//   - initialize: Protocol handshake
//   - tools/list: Enumerate available tools
//   - tools/call: Execute a tool with arguments
//   - ping: Health check
//
// # Available Tools
//
// Basic Image Information:
//   - image_load: Load image and get metadata
//   - image_dimensions: Get width and height
//
// Detection and Matching:
//   - surf_detect: Keypoints (and optionally descriptors) of an image or region
//   - surf_match: Ratio-test matches between two images
//
// Rendering:
//   - surf_render_keypoints: Keypoint overlay saved as PNG or JPEG
//   - surf_render_matches: Side-by-side match overlay
//
// Descriptor Files:
//   - surf_export_descriptors: Write descriptors in IPOL or Bay layout
//   - surf_compare_descriptors: Recall against a reference descriptor file
//
// Every SURF tool accepts threshold, octaves and max_side overrides on top of
// the configuration the server was started with. Coordinates in results are
// always pixels of the original image, even when detection ran on a region
// or a downscaled copy.
//
// # Concurrency
//
// Detectors created for tool calls share one worker pool owned by the
// server. surf_match and surf_render_matches detect both images
// concurrently.
//
// # Error Handling
//
// Tool execution errors are returned as JSON-RPC error responses with:
//   - code: -32000 (tool execution failure) or standard JSON-RPC codes
//   - message: Human-readable error description
//   - data: Additional error details (typically the Go error string)
//
// # Usage
//
//	srv := server.New(server.WithConfig(cfg), server.WithLogger(log))
//	defer srv.Close()
//	if err := srv.Run(ctx); err != nil {
//	    log.Fatal().Err(err).Msg("server error")
//	}
package server
