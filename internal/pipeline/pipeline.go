// Package pipeline runs the extraction stages for a batch of mzML runs:
// decode and route the spectra, slice the MS1 channel into EICs, pick
// and deduplicate peaks, and write the per-run reports.
package pipeline

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/524D/diafeature/internal/config"
	"github.com/524D/diafeature/internal/eic"
	"github.com/524D/diafeature/internal/feature"
	"github.com/524D/diafeature/internal/mzml"
	"github.com/524D/diafeature/internal/output"
	"github.com/524D/diafeature/internal/ridge"
	"github.com/524D/diafeature/internal/swath"
)

// Stage selects which part of the processing a run goes through
type Stage int

// Processing stages
const (
	StageExtract  Stage = iota // decode, route, slice; write EIC report and scan dump
	StageFeatures              // read EIC report, pick, dedup; write features
	StageAll                   // both, without re-reading the EIC report
)

func (s Stage) String() string {
	switch s {
	case StageExtract:
		return "extract"
	case StageFeatures:
		return "features"
	case StageAll:
		return "run"
	}
	return fmt.Sprintf("Stage(%d)", int(s))
}

// ErrNoMS1Channel means an EIC report has no MS1 section
var ErrNoMS1Channel = errors.New("EIC report has no MS1 channel")

// RunError is a fatal error of a single run
type RunError struct {
	Run string
	Err error
}

func (e *RunError) Error() string {
	return "run " + e.Run + ": " + e.Err.Error()
}

func (e *RunError) Unwrap() error {
	return e.Err
}

// Stats summarizes the processing of one run
type Stats struct {
	Run       string
	Spectra   int
	MS1Scans  int
	Anomalies int
	Dropped   int
	Windows   int
	Picked    int
	Kept      int
	Elapsed   time.Duration
	Skipped   bool
	Err       error
}

// Status is "ok", "failed" or "skipped"
func (s Stats) Status() string {
	switch {
	case s.Err != nil:
		return "failed"
	case s.Skipped:
		return "skipped"
	}
	return "ok"
}

// Pipeline processes runs with one configuration and target list.
// It holds no per-run state, so runs can be processed concurrently.
type Pipeline struct {
	cfg         *config.Config
	targets     []float64
	swaths      []string
	picker      ridge.Picker
	store       *feature.SQLiteStore
	metrics     *Metrics
	log         *slog.Logger
	allChannels bool
}

// Option configures a Pipeline
type Option func(*Pipeline)

// WithLogger sets the logger
func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) { p.log = l }
}

// WithMetrics records run statistics in m
func WithMetrics(m *Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// WithStore saves the kept features of every run in s
func WithStore(s *feature.SQLiteStore) Option {
	return func(p *Pipeline) { p.store = s }
}

// WithPicker replaces the configured peak picker
func WithPicker(pk ridge.Picker) Option {
	return func(p *Pipeline) { p.picker = pk }
}

// WithAllChannels also slices the SWATH channels into the EIC report
func WithAllChannels() Option {
	return func(p *Pipeline) { p.allChannels = true }
}

// New creates a Pipeline. targets must be sorted ascending.
func New(cfg *config.Config, targets []float64, opts ...Option) *Pipeline {
	p := &Pipeline{
		cfg:     cfg,
		targets: targets,
		swaths:  cfg.Swaths(),
		picker:  cfg.NewPicker(),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.log == nil {
		p.log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return p
}

// RunName returns the name of the run stored in path
func RunName(path string) string {
	return filepath.Base(path)
}

// EICReportPath returns the path of the EIC report of a run
func (p *Pipeline) EICReportPath(run string) string {
	return filepath.Join(p.cfg.Output.Dir, "eic_"+run+".txt")
}

// ScanDumpPath returns the path of the raw scan dump of a run, without
// compression extension
func (p *Pipeline) ScanDumpPath(run string) string {
	return filepath.Join(p.cfg.Output.Dir, "ms_scans_"+run+".txt")
}

// FeaturePath returns the path of the feature file of a run
func (p *Pipeline) FeaturePath(run string) string {
	return filepath.Join(p.cfg.Output.Dir, "ms1feature_"+run+".txt")
}

// Process runs one stage for the mzML file at path. A failure is
// returned as *RunError and recorded in the returned Stats.
func (p *Pipeline) Process(ctx context.Context, stage Stage, path string) (Stats, error) {
	start := time.Now()
	st := Stats{Run: RunName(path)}
	log := p.log.With("run", st.Run)

	err := os.MkdirAll(p.cfg.Output.Dir, 0o755)
	if err == nil {
		switch stage {
		case StageExtract:
			_, err = p.extract(ctx, log, path, &st)
		case StageFeatures:
			var ms1 *eic.ChannelReport
			if ms1, err = p.readMS1Report(st.Run); err == nil {
				st.MS1Scans = len(ms1.RetentionTimes)
				err = p.features(ctx, log, path, ms1.EICs, &st)
			}
		case StageAll:
			var eics []eic.EIC
			if eics, err = p.extract(ctx, log, path, &st); err == nil {
				err = p.features(ctx, log, path, eics, &st)
			}
		default:
			err = fmt.Errorf("unknown stage %v", stage)
		}
	}
	st.Elapsed = time.Since(start)
	if err != nil {
		st.Err = &RunError{Run: st.Run, Err: err}
		log.Error("run failed", "stage", stage.String(), "error", err)
	} else {
		log.Info("run finished", "stage", stage.String(), "elapsed", st.Elapsed.Round(time.Millisecond))
	}
	if p.metrics != nil {
		p.metrics.Observe(st)
	}
	return st, st.Err
}

// extract decodes and routes the spectra of a run, writes its EIC
// report and scan dump, and returns the MS1 EICs
func (p *Pipeline) extract(ctx context.Context, log *slog.Logger, path string, st *Stats) ([]eic.EIC, error) {
	router, err := p.route(ctx, log, path, st)
	if err != nil {
		return nil, err
	}

	channels := []*swath.Channel{router.MS1()}
	if p.allChannels {
		channels = router.Channels()
	}
	report, err := os.Create(p.EICReportPath(st.Run))
	if err != nil {
		return nil, err
	}
	defer report.Close()
	w := bufio.NewWriterSize(report, 1<<16)

	var ms1 []eic.EIC
	for _, ch := range channels {
		windows, err := eic.Slice(ctx, ch, p.targets, p.cfg.SlicerParams())
		if err != nil {
			return nil, fmt.Errorf("slice channel %s: %w", ch.Label, err)
		}
		st.Windows += len(windows)
		log.Info("sliced channel", "channel", ch.Label, "windows", humanize.Comma(int64(len(windows))))
		if log.Enabled(ctx, slog.LevelDebug) {
			for _, win := range windows {
				log.Debug("eic window", "channel", ch.Label, "mz_start", win.MzStart, "mz_end", win.MzEnd,
					"retention_times", len(win.EIC))
			}
		}
		if err := eic.WriteReport(w, ch, windows); err != nil {
			return nil, err
		}
		if ch.Label == swath.MS1Label {
			for _, win := range windows {
				ms1 = append(ms1, win.EIC)
			}
		}
	}
	if err := w.Flush(); err != nil {
		return nil, err
	}
	if err := report.Close(); err != nil {
		return nil, err
	}

	if p.cfg.Output.ScanDump {
		if err := p.writeScanDump(router, st.Run); err != nil {
			return nil, fmt.Errorf("scan dump: %w", err)
		}
	}
	return ms1, nil
}

func (p *Pipeline) route(ctx context.Context, log *slog.Logger, path string, st *Stats) (*swath.Router, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	router := swath.NewRouter(p.swaths, log)
	r := mzml.NewReader(bufio.NewReaderSize(f, 1<<20))
	for r.Next() {
		if err := router.Route(r.Spectrum()); err != nil {
			return nil, err
		}
		if r.Count()%1000 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
	}
	if err := r.Err(); err != nil {
		return nil, err
	}

	st.Spectra = r.Count()
	st.MS1Scans = len(router.MS1().Scans)
	st.Anomalies = router.Anomalies()
	st.Dropped = router.Dropped()
	log.Info("decoded run",
		"spectra", humanize.Comma(int64(st.Spectra)),
		"ms1_scans", humanize.Comma(int64(st.MS1Scans)),
		"anomalies", st.Anomalies,
		"dropped_ms2", st.Dropped)
	return router, nil
}

func (p *Pipeline) writeScanDump(router *swath.Router, run string) error {
	out, err := output.Create(p.ScanDumpPath(run), p.cfg.Compression())
	if err != nil {
		return err
	}
	for _, ch := range router.Channels() {
		if ch.Skip() {
			continue
		}
		if err := swath.WriteScans(out, ch); err != nil {
			out.Close()
			return err
		}
	}
	return out.Close()
}

// readMS1Report returns the MS1 section of the EIC report of a run
func (p *Pipeline) readMS1Report(run string) (*eic.ChannelReport, error) {
	reports, err := eic.ReadReportFile(p.EICReportPath(run))
	if err != nil {
		return nil, err
	}
	for i := range reports {
		if reports[i].Label == swath.MS1Label {
			return &reports[i], nil
		}
	}
	return nil, ErrNoMS1Channel
}

// features picks the peaks of all EICs, deduplicates them and writes
// the feature file
func (p *Pipeline) features(ctx context.Context, log *slog.Logger, path string, eics []eic.EIC, st *Stats) error {
	var peaks []ridge.Peak
	for i, e := range eics {
		if i%256 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		peaks = append(peaks, p.picker.FindRidge(e)...)
	}
	kept := feature.Dedup(peaks, p.cfg.Dedup.MzTol)
	st.Picked = len(peaks)
	st.Kept = len(kept)
	log.Info("picked peaks", "eics", humanize.Comma(int64(len(eics))),
		"picked", humanize.Comma(int64(st.Picked)), "kept", humanize.Comma(int64(st.Kept)))

	out, err := os.Create(p.FeaturePath(st.Run))
	if err != nil {
		return err
	}
	w := bufio.NewWriter(out)
	if err := feature.WriteFeatures(w, kept); err != nil {
		out.Close()
		return err
	}
	if err := w.Flush(); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}

	if p.store != nil {
		fp, err := feature.Fingerprint(path)
		if err != nil {
			log.Warn("no fingerprint for run", "error", err)
		}
		run := feature.Run{Name: st.Run, Fingerprint: fp, MS1Scans: st.MS1Scans}
		if prev, ok, err := p.store.Run(st.Run); err != nil {
			return fmt.Errorf("look up stored run: %w", err)
		} else if ok && prev.Fingerprint != fp {
			log.Info("replacing stored features of a different file", "stored_fingerprint", fmt.Sprintf("%016x", prev.Fingerprint))
		}
		if err := p.store.SaveRun(run, kept); err != nil {
			return fmt.Errorf("save features: %w", err)
		}
	}
	return nil
}
