package config

// loader.go - configuration loading with viper.
//
// Precedence order (highest wins):
//   1. CLI flags
//   2. Environment variables  (KNOCKKNOCK_<FLAG_NAME>)
//   3. Config file            (--config, any format viper reads)
//   4. Defaults               (defaults.go, as flag defaults)

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// NewViper returns a viper instance reading KNOCKKNOCK_* variables.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	return v
}

// Load overlays the config file and environment onto every flag in fs
// the user did not set, then decodes the jokes list.  Flags are bound
// to cfg fields, so cfg sees the merged values.
func Load(v *viper.Viper, fs *pflag.FlagSet, cfg *Config) error {
	if cfg.ConfigFile == "" {
		_ = v.BindEnv("config")
		cfg.ConfigFile = v.GetString("config")
	}
	if cfg.ConfigFile != "" {
		v.SetConfigFile(cfg.ConfigFile)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("config file %s: %w", cfg.ConfigFile, err)
		}
	}

	var errs []error
	fs.VisitAll(func(f *pflag.Flag) {
		if f.Name == "help" || f.Name == "version" || f.Name == "config" {
			return
		}
		_ = v.BindPFlag(f.Name, f)
		_ = v.BindEnv(f.Name)
		if !f.Changed && v.IsSet(f.Name) {
			if err := fs.Set(f.Name, fmt.Sprintf("%v", v.Get(f.Name))); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", f.Name, err))
			}
		}
	})
	if len(errs) > 0 {
		return errs[0]
	}

	if v.IsSet("jokes") {
		if err := v.UnmarshalKey("jokes", &cfg.Jokes); err != nil {
			return fmt.Errorf("jokes: %w", err)
		}
	}
	return nil
}
