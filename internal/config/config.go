// Package config loads Padi configuration from a YAML file and PADI_*
// environment variables on top of the built-in defaults.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"

	"github.com/sipadi/padi/internal/domain"
)

// EnvPrefix prefixes every environment variable, e.g. PADI_SERVER_PORT.
const EnvPrefix = "PADI"

// Profiles name the built-in starting configurations.
const (
	ProfileDefault = "default"
	ProfileScaled  = "scaled"
)

// Load reads configuration. path may be empty, in which case padi.yaml is
// looked up in the working directory and /etc/padi, and a missing file is
// not an error. PADI_PROFILE=scaled starts from ScaledConfig.
func Load(path string) (*domain.Config, error) {
	base, err := profile(os.Getenv(EnvPrefix + "_PROFILE"))
	if err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := setDefaults(v, base); err != nil {
		return nil, err
	}

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("padi")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/padi/")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	cfg := &domain.Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	return cfg, nil
}

func profile(name string) (*domain.Config, error) {
	switch strings.ToLower(name) {
	case "", ProfileDefault:
		return domain.DefaultConfig(), nil
	case ProfileScaled:
		return domain.ScaledConfig(), nil
	default:
		return nil, fmt.Errorf("unknown profile: %s", name)
	}
}

// setDefaults registers every field of base as a default so that
// environment variables can override keys absent from the file.
func setDefaults(v *viper.Viper, base *domain.Config) error {
	data, err := json.Marshal(base)
	if err != nil {
		return fmt.Errorf("encode defaults: %w", err)
	}
	var tree map[string]any
	if err := json.Unmarshal(data, &tree); err != nil {
		return fmt.Errorf("decode defaults: %w", err)
	}
	walkDefaults(v, "", tree)
	return nil
}

func walkDefaults(v *viper.Viper, prefix string, tree map[string]any) {
	for key, value := range tree {
		full := key
		if prefix != "" {
			full = prefix + "." + key
		}
		if sub, ok := value.(map[string]any); ok {
			walkDefaults(v, full, sub)
			continue
		}
		v.SetDefault(full, value)
	}
}
