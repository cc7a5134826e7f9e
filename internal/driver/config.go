package driver

import (
	"errors"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"typelift/internal/infer"
)

// FileConfig mirrors typelift.toml. Every field is optional; absent
// fields keep the engine defaults.
type FileConfig struct {
	Solver struct {
		Kind  string `toml:"kind"`
		Iters int    `toml:"iters"`
	} `toml:"solver"`
	Types struct {
		ResolveTypedef *bool             `toml:"resolve_typedef"`
		Translate      map[string]string `toml:"translate"`
	} `toml:"types"`
	Cache struct {
		Enabled *bool `toml:"enabled"`
	} `toml:"cache"`
}

// configName is the manifest file the loader looks for next to the
// inputs.
const configName = "typelift.toml"

// LoadConfig reads typelift.toml from dir when present and folds it into
// an engine configuration. Returns the defaults when no file exists.
func LoadConfig(dir string) (infer.Config, FileConfig, error) {
	cfg := infer.DefaultConfig()
	var fc FileConfig

	data, err := os.ReadFile(filepath.Join(dir, configName))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, fc, nil
		}
		return cfg, fc, err
	}
	if err := toml.Unmarshal(data, &fc); err != nil {
		return cfg, fc, err
	}

	if fc.Solver.Iters > 0 {
		cfg.MaxIters = fc.Solver.Iters
	}
	if fc.Types.ResolveTypedef != nil {
		cfg.ResolveTypedef = *fc.Types.ResolveTypedef
	}
	for from, to := range fc.Types.Translate {
		cfg.Translate[from] = to
	}
	return cfg, fc, nil
}
