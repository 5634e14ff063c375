package job

import (
	"fmt"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/moolen/engine-client/internal/fsutil"
	yamlv3 "gopkg.in/yaml.v3"
)

// LoadConfiguration reads and validates a job configuration from a YAML file.
// Keys use the same camelCase names as the JSON wire format.
func LoadConfiguration(path string) (*JobConfiguration, error) {
	k := koanf.New(".")
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("failed to load job configuration from %q: %w", path, err)
	}

	var cfg JobConfiguration
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "yaml"}); err != nil {
		return nil, fmt.Errorf("failed to parse job configuration from %q: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("job configuration %q: %w", path, err)
	}

	return &cfg, nil
}

// WriteConfiguration writes cfg as YAML using a temp file and rename, so a
// reader never sees a partial file.
func WriteConfiguration(path string, cfg *JobConfiguration) error {
	data, err := yamlv3.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal job configuration: %w", err)
	}
	return fsutil.WriteFileAtomic(path, data, ".job.*.yaml.tmp")
}
