package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/printlapse/printlapse/types"
)

// Load reads a YAML config file, expands environment variables, unmarshals
// into a Config, applies defaults and validates.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: config file not found: %s", types.ErrConfig, path)
		}
		return nil, fmt.Errorf("%w: cannot read config file %q: %v", types.ErrConfig, path, err)
	}

	expanded := ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("%w: invalid YAML in %s: %v", types.ErrConfig, path, err)
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}
