// SPDX-License-Identifier: GPL-2.0-only

// Package config resolves minimuxer-shim's startup configuration from
// flags, a config file, and the environment (pflag + viper layering).
package config

import (
	"fmt"
	"strings"

	flag "github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	LogLevelAll   = "all"
	LogLevelDebug = "debug"
	LogLevelInfo  = "info"
	LogLevelWarn  = "warn"
	LogLevelError = "error"
	LogLevelNone  = "none"
)

var AvailableLogLevels = strings.Join([]string{
	LogLevelAll, LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError, LogLevelNone,
}, ", ")

// Config is minimuxer-shim's fully resolved startup configuration.
type Config struct {
	PairingFile string
	DDIRoot     string
	LogPath     string
	LogLevel    string
	Listen      string
	Debug       bool
}

// Load defines the flag set, binds it into viper alongside an optional
// config file and the environment, and decodes the result into a Config.
func Load() (Config, error) {
	cfgFile := flag.String("config", "", "Path to the config file.")
	flag.String("pairing-file", "", "Path to the device pairing record plist.")
	flag.String("ddi-root", "", "Root directory of the developer disk image artifact store.")
	flag.String("log-path", "", "Path to the log file. Empty logs to stdout.")
	flag.String("log-level", LogLevelInfo, fmt.Sprintf("Log level name, validated at startup but not applied to any logger. Possible values: %s", AvailableLogLevels))
	flag.String("listen", ":8080", "The address at which to listen for health and metrics.")
	flag.Bool("debug", false, "Enable verbose native-library debug logging.")

	flag.Parse()
	if err := viper.BindPFlags(flag.CommandLine); err != nil {
		return Config{}, fmt.Errorf("failed to bind config: %w", err)
	}

	if *cfgFile != "" {
		viper.SetConfigFile(*cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath("/etc/minimuxer-shim/")
		viper.AddConfigPath(".")
	}

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return Config{}, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := Config{
		PairingFile: viper.GetString("pairing-file"),
		DDIRoot:     viper.GetString("ddi-root"),
		LogPath:     viper.GetString("log-path"),
		LogLevel:    viper.GetString("log-level"),
		Listen:      viper.GetString("listen"),
		Debug:       viper.GetBool("debug"),
	}

	if cfg.PairingFile == "" {
		return Config{}, fmt.Errorf("--pairing-file is required")
	}
	if cfg.DDIRoot == "" {
		return Config{}, fmt.Errorf("--ddi-root is required")
	}

	switch cfg.LogLevel {
	case LogLevelAll, LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError, LogLevelNone:
	default:
		return Config{}, fmt.Errorf("log level %v unknown; possible values are: %s", cfg.LogLevel, AvailableLogLevels)
	}

	return cfg, nil
}
