package config_test

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/524D/diafeature/internal/config"
	"github.com/524D/diafeature/internal/eic"
	"github.com/524D/diafeature/internal/output"
	"github.com/524D/diafeature/internal/ridge"
	"github.com/524D/diafeature/internal/target"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "diafeature.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_EmptyFile_UsesDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := config.Load(writeConfig(t, ""), nil)
	require.NoError(t, err)

	assert.Equal(t, config.DefaultMzMLFiles, cfg.Input.MzMLFiles)
	assert.Equal(t, config.DefaultTargets, cfg.Input.Targets)
	assert.Equal(t, "annotation", cfg.Input.TargetFormat)
	assert.Equal(t, runtime.NumCPU(), cfg.Workers)
	assert.Equal(t, eic.DefaultParams(), cfg.SlicerParams())
	assert.InDelta(t, 0.01, cfg.Dedup.MzTol, 1e-12)
	assert.Equal(t, &ridge.CWTPicker{MinScale: 1, MaxScale: 8, MinSNR: 3}, cfg.NewPicker())
	assert.Equal(t, ".", cfg.Output.Dir)
	assert.True(t, cfg.Output.ScanDump)
	assert.Equal(t, output.None, cfg.Compression())
	assert.Empty(t, cfg.Swaths())
	assert.Equal(t, target.Filter{}, cfg.TargetFilter())

	level, err := cfg.LogLevel()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelInfo, level)
}

func TestLoad_ValidFile_Unmarshals(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, `input:
  mzml_files: "data/*.mzML"
  window_setting: |
    400-425
    425-450

    skip-450-475
  target_format: mzidentml
  targets: ids.mzid
  pass_threshold_only: true
  min_rt: 60
  max_rt: 1800
workers: 3
slicer:
  mz_space: 0.01
  workers: 4
picker:
  max_scale: 12
output:
  dir: out
  compression: zstd
  scan_dump: false
logging:
  level: debug
  format: json
`)
	cfg, err := config.Load(path, nil)
	require.NoError(t, err)

	assert.Equal(t, "data/*.mzML", cfg.Input.MzMLFiles)
	assert.Equal(t, []string{"400-425", "425-450", "skip-450-475"}, cfg.Swaths())
	assert.Equal(t, "mzidentml", cfg.Input.TargetFormat)
	assert.Equal(t, target.Filter{PassThresholdOnly: true, MinRT: 60, MaxRT: 1800}, cfg.TargetFilter())
	assert.Equal(t, 3, cfg.Workers)
	assert.InDelta(t, 0.01, cfg.Slicer.MzSpace, 1e-12)
	assert.Equal(t, 4, cfg.SlicerParams().Workers)
	assert.Equal(t, eic.DefaultMinGroupSize, cfg.Slicer.MinGroupSize)
	assert.Equal(t, 12, cfg.Picker.MaxScale)
	assert.Equal(t, "out", cfg.Output.Dir)
	assert.Equal(t, output.Zstd, cfg.Compression())
	assert.False(t, cfg.Output.ScanDump)
	assert.Equal(t, config.LogFormatJSON, cfg.Logging.Format)
}

func TestLoad_LegacyKeys(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, `mzml_files: "*.mzXML.mzML"
window_setting: "a\nb"
num_threads: 2
`)
	cfg, err := config.Load(path, nil)
	require.NoError(t, err)
	assert.Equal(t, "*.mzXML.mzML", cfg.Input.MzMLFiles)
	assert.Equal(t, []string{"a", "b"}, cfg.Swaths())
	assert.Equal(t, 2, cfg.Workers)

	path = writeConfig(t, "num_threads: 2\nworkers: 5\n")
	cfg, err = config.Load(path, nil)
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.Workers)
}

func TestLoad_Precedence(t *testing.T) {
	path := writeConfig(t, "workers: 3\noutput:\n  dir: fromfile\n  compression: lz4\n")
	t.Setenv("DIAFEATURE_WORKERS", "6")
	t.Setenv("DIAFEATURE_OUTPUT_DIR", "fromenv")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.Int("workers", 0, "")
	flags.String("out", "", "")
	flags.String("compression", "none", "")
	flags.Bool("pass-threshold-only", false, "")
	require.NoError(t, flags.Parse([]string{"--workers", "9", "--pass-threshold-only"}))

	cfg, err := config.Load(path, flags)
	require.NoError(t, err)
	assert.Equal(t, 9, cfg.Workers)
	assert.True(t, cfg.TargetFilter().PassThresholdOnly)
	assert.Equal(t, "fromenv", cfg.Output.Dir)
	// Flag defaults do not override file values
	assert.Equal(t, output.LZ4, cfg.Compression())
}

func TestLoad_Invalid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		content string
		want    error
	}{
		{"workers", "workers: 0\n", config.ErrInvalidWorkers},
		{"target format", "input:\n  target_format: csv\n", config.ErrInvalidTargetFormat},
		{"rt range", "input:\n  min_rt: 600\n  max_rt: 60\n", config.ErrInvalidRTRange},
		{"negative rt", "input:\n  min_rt: -1\n", config.ErrInvalidRTRange},
		{"mz space", "slicer:\n  mz_space: 0\n", config.ErrInvalidMzSpace},
		{"group size", "slicer:\n  min_group_size: 0\n", config.ErrInvalidMinGroupSize},
		{"guard", "slicer:\n  guard: -1\n", config.ErrInvalidMargin},
		{"slicer workers", "slicer:\n  workers: 0\n", config.ErrInvalidSlicerWorkers},
		{"mz tol", "dedup:\n  mz_tol: 0\n", config.ErrInvalidMzTol},
		{"scales", "picker:\n  min_scale: 5\n  max_scale: 4\n", config.ErrInvalidScales},
		{"compression", "output:\n  compression: gzip\n", output.ErrUnknownCompression},
		{"log level", "logging:\n  level: loud\n", config.ErrInvalidLogLevel},
		{"log format", "logging:\n  format: xml\n", config.ErrInvalidLogFormat},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := config.Load(writeConfig(t, tt.content), nil)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.want), "error %v should wrap %v", err, tt.want)
		})
	}
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	t.Parallel()

	_, err := config.Load(filepath.Join(t.TempDir(), "nope.yaml"), nil)
	assert.Error(t, err)
}
