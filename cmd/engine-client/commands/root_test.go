package commands

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLogLevelFlags(t *testing.T) {
	tests := []struct {
		name         string
		flags        []string
		env          map[string]string
		wantDefault  string
		wantPackages map[string]string
		wantErr      bool
	}{
		{
			name:         "no flags",
			wantDefault:  "info",
			wantPackages: map[string]string{},
		},
		{
			name:         "plain level",
			flags:        []string{"debug"},
			wantDefault:  "debug",
			wantPackages: map[string]string{},
		},
		{
			name:         "config level overridden by flag",
			flags:        []string{"warn", "debug"},
			wantDefault:  "debug",
			wantPackages: map[string]string{},
		},
		{
			name:         "per package",
			flags:        []string{"default=warn", "engine.transport=debug", "engine.*=error"},
			wantDefault:  "warn",
			wantPackages: map[string]string{"engine.transport": "debug", "engine.*": "error"},
		},
		{
			name:         "environment",
			env:          map[string]string{"LOG_LEVEL_ENGINE_CLIENT": "debug"},
			wantDefault:  "info",
			wantPackages: map[string]string{"engine.client": "debug"},
		},
		{
			name:         "flag beats environment",
			flags:        []string{"engine.client=error"},
			env:          map[string]string{"LOG_LEVEL_ENGINE_CLIENT": "debug"},
			wantDefault:  "info",
			wantPackages: map[string]string{"engine.client": "error"},
		},
		{
			name:    "invalid default",
			flags:   []string{"loud"},
			wantErr: true,
		},
		{
			name:    "invalid package level",
			flags:   []string{"engine.client=loud"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			def, pkgs, err := parseLogLevelFlags(tt.flags)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantDefault, def)
			assert.Equal(t, tt.wantPackages, pkgs)
		})
	}
}

func TestConvertEnvKeyToPackageName(t *testing.T) {
	assert.Equal(t, "engine.client", convertEnvKeyToPackageName("LOG_LEVEL_ENGINE_CLIENT"))
	assert.Equal(t, "cli", convertEnvKeyToPackageName("LOG_LEVEL_CLI"))
}
