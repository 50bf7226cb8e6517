// Copyright 2018 Rob Marissen.
// SPDX-License-Identifier: MIT

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/524D/diafeature/internal/config"
	"github.com/524D/diafeature/internal/feature"
	"github.com/524D/diafeature/internal/pipeline"
	"github.com/524D/diafeature/internal/target"
)

// Program name and version
const progName = "diafeature"

var progVersion = `Unknown`

// ErrNoInput means no mzML files were given or matched
var ErrNoInput = errors.New("no mzML input files")

// cli holds the command line options that are not configuration keys
type cli struct {
	configPath  string
	mzRange     string
	allChannels bool
	verbose     bool
	quiet       bool
	stdout      io.Writer
	stderr      io.Writer
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	c := &cli{stdout: stdout, stderr: stderr}

	root := &cobra.Command{
		Use:   progName,
		Short: "Extract chromatographic features from DIA mzML runs",
		Long: `diafeature decodes DIA (SWATH) mzML runs, routes the spectra into an MS1
channel and one channel per SWATH window, slices the MS1 m/z axis into
extracted ion chromatograms around target precursor masses, and picks and
deduplicates chromatographic peaks.

Configuration is read from diafeature.yaml (or --config), DIAFEATURE_*
environment variables and the flags below, in increasing precedence.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	pf := root.PersistentFlags()
	pf.StringVar(&c.configPath, "config", "", "configuration `file` (default ./diafeature.yaml)")
	pf.Int("workers", 0, "number of runs processed concurrently (default number of CPUs)")
	pf.StringP("out", "o", "", "output `directory` (default .)")
	pf.String("window-setting", "", "SWATH window `labels`, comma separated, in acquisition order")
	pf.String("targets", "", "glob `pattern` of the target mass file (default ann_*All.txt)")
	pf.String("target-format", "", "target file format: annotation or mzidentml")
	pf.Bool("pass-threshold-only", false, "only use mzIdentML identifications that pass the threshold")
	pf.String("compression", "", "scan dump compression: none, lz4 or zstd")
	pf.Bool("scan-dump", true, "write the raw scan dump")
	pf.String("sqlite", "", "also store features in this SQLite `database`")
	pf.String("metrics-file", "", "write prometheus metrics to this `file`")
	pf.String("log-level", "", "log level: debug, info, warn or error")
	pf.String("log-format", "", "log format: text or json")
	pf.StringVar(&c.mzRange, "mz-range", "", "only use target masses in this m/z `range` (e.g. 400:800)")
	pf.BoolVarP(&c.verbose, "verbose", "v", false, "print more verbose progress information")
	pf.BoolVarP(&c.quiet, "quiet", "q", false, "don't print any output except for errors")

	extract := &cobra.Command{
		Use:   "extract [mzML files...]",
		Short: "Decode, route and slice runs; write EIC reports and scan dumps",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runStage(cmd, pipeline.StageExtract, args)
		},
	}
	extract.Flags().BoolVar(&c.allChannels, "all-channels", false, "also slice the SWATH channels")

	features := &cobra.Command{
		Use:   "features [mzML files...]",
		Short: "Pick and deduplicate peaks from the EIC reports written by extract",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runStage(cmd, pipeline.StageFeatures, args)
		},
	}

	run := &cobra.Command{
		Use:   "run [mzML files...]",
		Short: "Extract and pick features in one pass",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runStage(cmd, pipeline.StageAll, args)
		},
	}

	version := &cobra.Command{
		Use:   "version",
		Short: "Show software version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			v := progVersion
			if v == `Unknown` {
				v = `Unknown
Please build this program with -ldflags "-X main.progVersion=..." so that the version is shown here.`
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s version %s\n", progName, v)
		},
	}

	root.AddCommand(extract, features, run, version)
	return root
}

func (c *cli) runStage(cmd *cobra.Command, stage pipeline.Stage, args []string) error {
	cfg, err := config.Load(c.configPath, cmd.Flags())
	if err != nil {
		return err
	}
	switch {
	case c.quiet:
		cfg.Logging.Level = "error"
	case c.verbose:
		cfg.Logging.Level = "debug"
	}
	log, err := newLogger(c.stderr, cfg)
	if err != nil {
		return err
	}

	files, err := inputFiles(args, cfg.Input.MzMLFiles)
	if err != nil {
		return err
	}
	if len(cfg.Swaths()) == 0 && stage != pipeline.StageFeatures {
		log.Warn("no SWATH windows configured, all MS2 spectra are dropped")
	}

	var targets []float64
	if stage != pipeline.StageFeatures {
		var path string
		targets, path, err = target.Load(cfg.Input.Targets, cfg.Input.TargetFormat, cfg.TargetFilter())
		if err != nil {
			return err
		}
		if c.mzRange != "" {
			if targets, err = filterTargets(targets, c.mzRange); err != nil {
				return err
			}
		}
		log.Info("loaded target masses", "file", path, "count", len(targets))
	}

	opts := []pipeline.Option{pipeline.WithLogger(log)}
	if c.allChannels {
		opts = append(opts, pipeline.WithAllChannels())
	}
	var metrics *pipeline.Metrics
	if cfg.Output.MetricsFile != "" {
		metrics = pipeline.NewMetrics()
		opts = append(opts, pipeline.WithMetrics(metrics))
	}
	if cfg.Output.SQLite != "" && stage != pipeline.StageExtract {
		store, err := feature.OpenSQLite(cfg.Output.SQLite)
		if err != nil {
			return err
		}
		defer store.Close()
		opts = append(opts, pipeline.WithStore(store))
	}

	p := pipeline.New(cfg, targets, opts...)
	stats, batchErr := p.Batch(cmd.Context(), stage, files)

	if !c.quiet {
		if err := pipeline.WriteSummary(c.stdout, stats); err != nil {
			return err
		}
	}
	if metrics != nil {
		if err := metrics.WriteTextfile(cfg.Output.MetricsFile); err != nil {
			return errors.Join(batchErr, fmt.Errorf("write metrics: %w", err))
		}
	}
	return batchErr
}

func newLogger(w io.Writer, cfg *config.Config) (*slog.Logger, error) {
	level, err := cfg.LogLevel()
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(cfg.Logging.Format, config.LogFormatJSON) {
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return slog.New(slog.NewTextHandler(w, opts)), nil
}

// inputFiles returns args, or the sorted files matching pattern when
// no args are given
func inputFiles(args []string, pattern string) ([]string, error) {
	if len(args) > 0 {
		return args, nil
	}
	files, err := filepath.Glob(pattern)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%w: nothing matches %q", ErrNoInput, pattern)
	}
	sort.Strings(files)
	return files, nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := newRootCmd(os.Stdout, os.Stderr).ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
