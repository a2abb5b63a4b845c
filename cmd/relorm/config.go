package main

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

const (
	cfgKeyDriver = "driver"
	cfgKeyDSN    = "dsn"
	cfgKeyDebug  = "debug"

	defaultDriver = "sqlite3"
	defaultDSN    = "file::memory:?cache=shared"
)

// loadConfig merges, by increasing precedence, defaults, the config file and
// RELORM_* environment variables. A missing config file is not an error.
func loadConfig(path string) (*viper.Viper, error) {
	v := viper.New()
	v.SetDefault(cfgKeyDriver, defaultDriver)
	v.SetDefault(cfgKeyDSN, defaultDSN)
	v.SetDefault(cfgKeyDebug, false)

	v.SetEnvPrefix("relorm")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("relorm")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return v, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}
	return v, nil
}
