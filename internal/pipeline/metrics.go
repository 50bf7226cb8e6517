package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "diafeature"

// Metrics counts what the pipeline processed. Each Metrics has its own
// registry, written out with WriteTextfile at the end of a batch.
type Metrics struct {
	Registry    *prometheus.Registry
	Spectra     prometheus.Counter
	MS1Scans    prometheus.Counter
	Anomalies   prometheus.Counter
	Dropped     prometheus.Counter
	Windows     prometheus.Counter
	PeaksPicked prometheus.Counter
	PeaksKept   prometheus.Counter
	Runs        *prometheus.CounterVec
	RunDuration prometheus.Histogram
}

// NewMetrics creates and registers the pipeline metrics
func NewMetrics() *Metrics {
	counter := func(name, help string) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      name,
			Help:      help,
		})
	}
	m := &Metrics{
		Registry:    prometheus.NewRegistry(),
		Spectra:     counter("spectra_total", "Spectra decoded."),
		MS1Scans:    counter("ms1_scans_total", "MS1 scans routed."),
		Anomalies:   counter("swath_anomalies_total", "SWATH cycles repaired."),
		Dropped:     counter("ms2_dropped_total", "MS2 spectra beyond the configured SWATH windows."),
		Windows:     counter("eic_windows_total", "Accepted EIC windows."),
		PeaksPicked: counter("peaks_picked_total", "Peaks found by the peak picker."),
		PeaksKept:   counter("peaks_kept_total", "Peaks kept after deduplication."),
		Runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "runs_total",
			Help:      "Processed runs by status.",
		}, []string{"status"}),
		RunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "run_duration_seconds",
			Help:      "Processing time per run.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 4, 8),
		}),
	}
	m.Registry.MustRegister(m.Spectra, m.MS1Scans, m.Anomalies, m.Dropped, m.Windows,
		m.PeaksPicked, m.PeaksKept, m.Runs, m.RunDuration)
	return m
}

// Observe adds the statistics of one run
func (m *Metrics) Observe(st Stats) {
	m.Spectra.Add(float64(st.Spectra))
	m.MS1Scans.Add(float64(st.MS1Scans))
	m.Anomalies.Add(float64(st.Anomalies))
	m.Dropped.Add(float64(st.Dropped))
	m.Windows.Add(float64(st.Windows))
	m.PeaksPicked.Add(float64(st.Picked))
	m.PeaksKept.Add(float64(st.Kept))
	m.Runs.WithLabelValues(st.Status()).Inc()
	m.RunDuration.Observe(st.Elapsed.Seconds())
}

// WriteTextfile writes the metrics in the text exposition format, for
// the node exporter textfile collector
func (m *Metrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.Registry)
}
