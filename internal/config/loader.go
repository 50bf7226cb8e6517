// Package config loads the diafeature configuration from defaults, an
// optional YAML file, DIAFEATURE_* environment variables and command
// line flags, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"runtime"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/524D/diafeature/internal/eic"
	"github.com/524D/diafeature/internal/feature"
	"github.com/524D/diafeature/internal/ridge"
	"github.com/524D/diafeature/internal/target"
)

// configName is the config file name without extension.
const configName = "diafeature"

// configType is the config file format.
const configType = "yaml"

// envPrefix is the environment variable prefix for diafeature settings.
const envPrefix = "DIAFEATURE"

// Default input patterns
const (
	DefaultMzMLFiles = "*.mzML"
	DefaultTargets   = "ann_*All.txt"
)

// legacyKeys maps the flat keys of older parameter files to their
// current key. A current key in the same file wins.
var legacyKeys = map[string]string{
	"mzml_files":     "input.mzml_files",
	"window_setting": "input.window_setting",
	"num_threads":    "workers",
}

// FlagKeys maps command line flag names to configuration keys. Flags
// present in the flag set passed to Load override every other source.
var FlagKeys = map[string]string{
	"workers":             "workers",
	"out":                 "output.dir",
	"window-setting":      "input.window_setting",
	"targets":             "input.targets",
	"target-format":       "input.target_format",
	"pass-threshold-only": "input.pass_threshold_only",
	"compression":         "output.compression",
	"scan-dump":           "output.scan_dump",
	"sqlite":              "output.sqlite",
	"metrics-file":        "output.metrics_file",
	"log-level":           "logging.level",
	"log-format":          "logging.format",
}

// Load loads configuration from file, env vars, flags and defaults.
// If configPath is non-empty, it is used as the explicit config file path.
// Otherwise diafeature.yaml is searched in the working directory.
// Missing config file is not an error; defaults are used.
func Load(configPath string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()

	applyDefaults(v)

	v.SetConfigType(configType)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName(configName)
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	// Legacy keys rank just above the defaults
	for legacy, key := range legacyKeys {
		if v.InConfig(legacy) {
			v.SetDefault(key, v.Get(legacy))
		}
	}

	if flags != nil {
		for name, key := range FlagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("bind flag %s: %w", name, err)
				}
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

func applyDefaults(v *viper.Viper) {
	v.SetDefault("input.mzml_files", DefaultMzMLFiles)
	v.SetDefault("input.window_setting", "")
	v.SetDefault("input.targets", DefaultTargets)
	v.SetDefault("input.target_format", target.FormatAnnotation)
	v.SetDefault("input.pass_threshold_only", false)
	v.SetDefault("input.min_rt", 0.0)
	v.SetDefault("input.max_rt", 0.0)

	v.SetDefault("workers", runtime.NumCPU())

	v.SetDefault("slicer.mz_space", eic.DefaultMzSpace)
	v.SetDefault("slicer.min_group_size", eic.DefaultMinGroupSize)
	v.SetDefault("slicer.low_margin", eic.DefaultLowMargin)
	v.SetDefault("slicer.high_margin", eic.DefaultHighMargin)
	v.SetDefault("slicer.guard", eic.DefaultGuard)
	v.SetDefault("slicer.workers", 1)

	v.SetDefault("dedup.mz_tol", feature.DefaultMzTol)

	v.SetDefault("picker.min_scale", ridge.DefaultMinScale)
	v.SetDefault("picker.max_scale", ridge.DefaultMaxScale)
	v.SetDefault("picker.min_snr", ridge.DefaultMinSNR)

	v.SetDefault("output.dir", ".")
	v.SetDefault("output.scan_dump", true)
	v.SetDefault("output.compression", "none")
	v.SetDefault("output.sqlite", "")
	v.SetDefault("output.metrics_file", "")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", LogFormatText)
}
