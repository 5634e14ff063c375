package config

import (
	"fmt"

	"github.com/moolen/engine-client/internal/fsutil"
	"gopkg.in/yaml.v3"
)

// Write atomically writes cfg to path as YAML.
func Write(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	return fsutil.WriteFileAtomic(path, data, ".engine-client.*.yaml.tmp")
}
