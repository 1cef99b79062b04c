package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/ironsheep/surf-mcp/internal/config"
	"github.com/ironsheep/surf-mcp/internal/server"
)

// Version information - set by ldflags during build
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	// Handle --version and -v flags
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "--version", "-v", "version":
			fmt.Printf("surf-mcp %s\n", Version)
			fmt.Printf("  Build time: %s\n", BuildTime)
			fmt.Printf("  Git commit: %s\n", GitCommit)
			return
		case "--help", "-h", "help":
			fmt.Println("surf-mcp - MCP server for SURF keypoint detection and matching")
			fmt.Println()
			fmt.Println("Usage: surf-mcp [options]")
			fmt.Println()
			fmt.Println("Options:")
			fmt.Println("  --version, -v    Print version information")
			fmt.Println("  --help, -h       Print this help message")
			fmt.Println()
			fmt.Println("Environment variables:")
			fmt.Println("  SURF_MCP_LOG_LEVEL=debug|info|warn|error   Log level (default warn)")
			fmt.Println("  SURF_MCP_CONFIG=/path/to/surf.toml          Detector configuration file")
			fmt.Println("  SURF_THRESHOLD, SURF_OCTAVES, SURF_WORKERS, SURF_MATCH_RATE")
			fmt.Println("                                              Override single config values")
			fmt.Println()
			fmt.Println("This server communicates via MCP protocol over stdin/stdout.")
			fmt.Println("Configure it in your MCP client (e.g., Claude Desktop).")
			return
		}
	}

	// Log to stderr (stdout is for MCP protocol)
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		Level(logLevel(os.Getenv("SURF_MCP_LOG_LEVEL"))).
		With().
		Timestamp().
		Logger()

	cfg, err := config.Load(os.Getenv("SURF_MCP_CONFIG"))
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	if cfg, err = config.FromEnv(cfg); err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	log.Debug().
		Str("version", Version).
		Str("build_time", BuildTime).
		Str("commit", GitCommit).
		Float64("threshold", cfg.Threshold).
		Int("octaves", cfg.Octaves).
		Bool("parallel", cfg.Parallel).
		Msg("surf-mcp starting")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := server.New(server.WithConfig(cfg), server.WithLogger(log))
	defer srv.Close()

	if err := srv.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Msg("server error")
		os.Exit(1)
	}
}

func logLevel(s string) zerolog.Level {
	switch s {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.WarnLevel
	}
}
