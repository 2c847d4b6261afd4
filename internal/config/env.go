package config

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of environment variables, e.g. LEADCRAWLER_WORKERS.
const EnvPrefix = "LEADCRAWLER"

// NewViper binds flags to LEADCRAWLER_* environment variables.
// Reading a key returns the flag value when the flag was given on the
// command line, otherwise the environment value, otherwise the flag default.
func NewViper(flags *pflag.FlagSet) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if err := v.BindPFlags(flags); err != nil {
		return nil, fmt.Errorf("bind flags: %w", err)
	}
	return v, nil
}
