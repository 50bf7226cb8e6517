package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/524D/diafeature/internal/eic"
	"github.com/524D/diafeature/internal/output"
	"github.com/524D/diafeature/internal/ridge"
	"github.com/524D/diafeature/internal/target"
)

// Config is the top-level configuration of diafeature.
// Field tags use mapstructure for viper unmarshalling.
type Config struct {
	Input   InputConfig   `mapstructure:"input"`
	Workers int           `mapstructure:"workers"`
	Slicer  SlicerConfig  `mapstructure:"slicer"`
	Dedup   DedupConfig   `mapstructure:"dedup"`
	Picker  PickerConfig  `mapstructure:"picker"`
	Output  OutputConfig  `mapstructure:"output"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// InputConfig locates the runs and the target masses.
type InputConfig struct {
	MzMLFiles     string `mapstructure:"mzml_files"`
	WindowSetting string `mapstructure:"window_setting"`
	Targets       string `mapstructure:"targets"`
	TargetFormat  string `mapstructure:"target_format"`

	// mzIdentML target selection
	PassThresholdOnly bool    `mapstructure:"pass_threshold_only"`
	MinRT             float64 `mapstructure:"min_rt"`
	MaxRT             float64 `mapstructure:"max_rt"`
}

// SlicerConfig holds the EIC windowing parameters.
type SlicerConfig struct {
	MzSpace      float64 `mapstructure:"mz_space"`
	MinGroupSize int     `mapstructure:"min_group_size"`
	LowMargin    float64 `mapstructure:"low_margin"`
	HighMargin   float64 `mapstructure:"high_margin"`
	Guard        float64 `mapstructure:"guard"`
	Workers      int     `mapstructure:"workers"`
}

// DedupConfig holds the peak deduplication parameters.
type DedupConfig struct {
	MzTol float64 `mapstructure:"mz_tol"`
}

// PickerConfig holds the CWT peak picker parameters.
type PickerConfig struct {
	MinScale int     `mapstructure:"min_scale"`
	MaxScale int     `mapstructure:"max_scale"`
	MinSNR   float64 `mapstructure:"min_snr"`
}

// OutputConfig controls which files are written and where.
type OutputConfig struct {
	Dir         string `mapstructure:"dir"`
	ScanDump    bool   `mapstructure:"scan_dump"`
	Compression string `mapstructure:"compression"`
	SQLite      string `mapstructure:"sqlite"`
	MetricsFile string `mapstructure:"metrics_file"`
}

// LoggingConfig selects the log level and format.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Log formats
const (
	LogFormatText = "text"
	LogFormatJSON = "json"
)

// Sentinel errors for configuration validation.
var (
	// ErrInvalidWorkers indicates the number of workers is not positive.
	ErrInvalidWorkers = errors.New("workers must be positive")
	// ErrInvalidTargetFormat indicates an unsupported target file format.
	ErrInvalidTargetFormat = errors.New("input.target_format must be annotation or mzidentml")
	// ErrInvalidRTRange indicates negative or inverted retention time limits.
	ErrInvalidRTRange = errors.New("input.min_rt and input.max_rt must satisfy 0 <= min_rt <= max_rt, max_rt 0 for no limit")
	// ErrInvalidMzSpace indicates the window step is not positive.
	ErrInvalidMzSpace = errors.New("slicer.mz_space must be positive")
	// ErrInvalidMinGroupSize indicates the minimum group size is not positive.
	ErrInvalidMinGroupSize = errors.New("slicer.min_group_size must be positive")
	// ErrInvalidMargin indicates a negative margin or guard.
	ErrInvalidMargin = errors.New("slicer margins and guard must be non-negative")
	// ErrInvalidSlicerWorkers indicates the window parallelism is not positive.
	ErrInvalidSlicerWorkers = errors.New("slicer.workers must be positive")
	// ErrInvalidMzTol indicates the dedup tolerance is not positive.
	ErrInvalidMzTol = errors.New("dedup.mz_tol must be positive")
	// ErrInvalidScales indicates an empty or non-positive scale range.
	ErrInvalidScales = errors.New("picker scales must satisfy 1 <= min_scale <= max_scale")
	// ErrInvalidLogLevel indicates an unknown log level.
	ErrInvalidLogLevel = errors.New("logging.level must be debug, info, warn or error")
	// ErrInvalidLogFormat indicates an unknown log format.
	ErrInvalidLogFormat = errors.New("logging.format must be text or json")
)

// Validate checks Config invariants and returns the first error found.
func (c *Config) Validate() error {
	if c.Workers < 1 {
		return ErrInvalidWorkers
	}
	switch strings.ToLower(c.Input.TargetFormat) {
	case target.FormatAnnotation, target.FormatMzIdentML:
	default:
		return ErrInvalidTargetFormat
	}
	if c.Input.MinRT < 0 || c.Input.MaxRT < 0 || (c.Input.MaxRT > 0 && c.Input.MaxRT < c.Input.MinRT) {
		return ErrInvalidRTRange
	}
	if err := c.validateSlicer(); err != nil {
		return err
	}
	if c.Dedup.MzTol <= 0 {
		return ErrInvalidMzTol
	}
	if c.Picker.MinScale < 1 || c.Picker.MaxScale < c.Picker.MinScale {
		return ErrInvalidScales
	}
	if _, err := output.ParseCompression(c.Output.Compression); err != nil {
		return err
	}
	if _, err := c.LogLevel(); err != nil {
		return err
	}
	switch strings.ToLower(c.Logging.Format) {
	case LogFormatText, LogFormatJSON:
	default:
		return ErrInvalidLogFormat
	}
	return nil
}

func (c *Config) validateSlicer() error {
	s := c.Slicer
	if s.MzSpace <= 0 {
		return ErrInvalidMzSpace
	}
	if s.MinGroupSize < 1 {
		return ErrInvalidMinGroupSize
	}
	if s.LowMargin < 0 || s.HighMargin < 0 || s.Guard < 0 {
		return ErrInvalidMargin
	}
	if s.Workers < 1 {
		return ErrInvalidSlicerWorkers
	}
	return nil
}

// Swaths returns the SWATH window labels, one per non-empty line of
// the window setting. A comma also separates labels.
func (c *Config) Swaths() []string {
	var labels []string
	sep := func(r rune) bool { return r == '\n' || r == ',' }
	for _, line := range strings.FieldsFunc(c.Input.WindowSetting, sep) {
		if line = strings.TrimSpace(line); line != "" {
			labels = append(labels, line)
		}
	}
	return labels
}

// TargetFilter returns the selection of mzIdentML identifications used
// as targets
func (c *Config) TargetFilter() target.Filter {
	return target.Filter{
		PassThresholdOnly: c.Input.PassThresholdOnly,
		MinRT:             c.Input.MinRT,
		MaxRT:             c.Input.MaxRT,
	}
}

// SlicerParams returns the EIC windowing parameters
func (c *Config) SlicerParams() eic.Params {
	return eic.Params{
		MzSpace:      c.Slicer.MzSpace,
		LowMargin:    c.Slicer.LowMargin,
		HighMargin:   c.Slicer.HighMargin,
		Guard:        c.Slicer.Guard,
		MinGroupSize: c.Slicer.MinGroupSize,
		Workers:      c.Slicer.Workers,
	}
}

// NewPicker returns the configured peak picker
func (c *Config) NewPicker() ridge.Picker {
	return &ridge.CWTPicker{
		MinScale: c.Picker.MinScale,
		MaxScale: c.Picker.MaxScale,
		MinSNR:   c.Picker.MinSNR,
	}
}

// Compression returns the scan dump compression
func (c *Config) Compression() output.Compression {
	comp, _ := output.ParseCompression(c.Output.Compression)
	return comp
}

// LogLevel returns the slog level of the logging configuration
func (c *Config) LogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Logging.Level)); err != nil {
		return level, fmt.Errorf("%w: %q", ErrInvalidLogLevel, c.Logging.Level)
	}
	return level, nil
}
