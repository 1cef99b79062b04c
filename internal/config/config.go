// Package config loads detector settings from a TOML file and the
// environment.
//
// A file only needs the keys it changes; everything else keeps the value
// from surf.DefaultConfig:
//
//	threshold = 500
//	octaves = 5
//	scale_gradient = "central"
//
// Environment overrides are applied after the file:
//
//	SURF_THRESHOLD    minimum Hessian response
//	SURF_OCTAVES      number of octaves
//	SURF_WORKERS      worker pool size (0 = GOMAXPROCS)
//	SURF_MATCH_RATE   nearest/second-nearest ratio
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/ironsheep/surf-mcp/internal/surf"
)

// Environment variable names read by FromEnv.
const (
	EnvThreshold = "SURF_THRESHOLD"
	EnvOctaves   = "SURF_OCTAVES"
	EnvWorkers   = "SURF_WORKERS"
	EnvMatchRate = "SURF_MATCH_RATE"
)

// Load decodes the TOML file at path over the default configuration and
// validates the result. An empty path yields the defaults.
func Load(path string) (surf.Config, error) {
	cfg := surf.DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	md, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return cfg, fmt.Errorf("failed to load config %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return cfg, fmt.Errorf("unknown keys in config %s: %s", path, strings.Join(keys, ", "))
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// FromEnv applies environment overrides to cfg. Unset variables are ignored;
// malformed ones are an error.
func FromEnv(cfg surf.Config) (surf.Config, error) {
	return fromLookup(cfg, os.LookupEnv)
}

func fromLookup(cfg surf.Config, lookup func(string) (string, bool)) (surf.Config, error) {
	floatVar := func(name string, dst *float64) error {
		s, ok := lookup(name)
		if !ok || s == "" {
			return nil
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", name, s, err)
		}
		*dst = v
		return nil
	}
	intVar := func(name string, dst *int) error {
		s, ok := lookup(name)
		if !ok || s == "" {
			return nil
		}
		v, err := strconv.Atoi(s)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", name, s, err)
		}
		*dst = v
		return nil
	}

	if err := floatVar(EnvThreshold, &cfg.Threshold); err != nil {
		return cfg, err
	}
	if err := intVar(EnvOctaves, &cfg.Octaves); err != nil {
		return cfg, err
	}
	if err := intVar(EnvWorkers, &cfg.Workers); err != nil {
		return cfg, err
	}
	if err := floatVar(EnvMatchRate, &cfg.MatchRate); err != nil {
		return cfg, err
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}
