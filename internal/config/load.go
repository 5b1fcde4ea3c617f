package config

import (
	"github.com/yndnr/reactq/internal/infra/confloader"
)

// Load reads the configuration from path (optional), the environment and
// overrides, on top of Default, and verifies the result.
func Load(path string, overrides map[string]any) (*Config, error) {
	cfg := Default()
	l := confloader.NewLoader(
		confloader.WithConfigFile(path),
		confloader.WithOverrides(overrides),
	)
	if err := l.Load(cfg); err != nil {
		return nil, err
	}
	if err := Verify(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
