package bolide

import (
	"fmt"

	"github.com/spf13/viper"
)

// LoadConfigFile reads a config file (YAML, JSON, or TOML, by extension)
// into a Config on top of DefaultConfig. Keys absent from the file keep
// their defaults. The result is not validated; New does that.
//
//	cfg, err := bolide.LoadConfigFile("bolide.yaml")
//	if err != nil {
//		return err
//	}
//	client, err := bolide.New(bolide.WithConfig(cfg))
func LoadConfigFile(path string) (Config, error) {
	cfg := DefaultConfig()

	v := viper.New()
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		return cfg, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	return cfg, nil
}
