// Package swath routes the spectra of a DIA run into an MS1 channel and
// one MS2 channel per SWATH window.
package swath

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/524D/diafeature/internal/mzml"
	"github.com/524D/diafeature/internal/output"
)

// MS1Label is the label of the MS1 channel
const MS1Label = "MS1"

// ErrUnknownMSLevel means a spectrum is neither MS1 nor MS2
var ErrUnknownMSLevel = errors.New("swath: unsupported ms level")

// Point is one spectrum reduced to retention time and peaks.
// For MS2 points, RT is the retention time of the MS1 scan that
// precedes it. Mz and I have equal length and I > 0 throughout.
type Point struct {
	RT float64
	Mz []float64
	I  []float64
}

// Channel holds the points of one MS1 or SWATH trace, in acquisition order
type Channel struct {
	Label string
	Scans []Point
}

// Skip reports whether the channel is marked to be left out of the scan dump
func (c *Channel) Skip() bool {
	return strings.HasPrefix(c.Label, "skip")
}

// Router assigns spectra to channels. Spectra must be passed in
// the order in which they are stored in the run.
type Router struct {
	ms1       Channel
	ms2       []Channel
	swathIdx  int
	anomalies int
	dropped   int
	log       *slog.Logger
}

// NewRouter creates a router with one MS2 channel per SWATH label
func NewRouter(swaths []string, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	r := &Router{
		ms1: Channel{Label: MS1Label},
		ms2: make([]Channel, len(swaths)),
		log: logger,
	}
	for i, label := range swaths {
		r.ms2[i].Label = label
	}
	// Start as if a complete cycle just finished, so the
	// first MS1 scan is never seen as an anomaly
	r.swathIdx = len(swaths)
	return r
}

// Route adds a spectrum to the MS1 channel or to the MS2 channel of
// the current SWATH slot
func (r *Router) Route(s *mzml.Spectrum) error {
	n := len(r.ms2)
	switch s.MSLevel {
	case 1:
		if r.swathIdx != n {
			r.repair(s.Index)
		}
		r.swathIdx = 0
		r.ms1.Scans = append(r.ms1.Scans, Point{RT: s.RetentionTime, Mz: s.Mz, I: s.Intens})
	case 2:
		if r.swathIdx < n {
			// swathIdx < n implies an MS1 scan was seen
			rt := r.ms1.Scans[len(r.ms1.Scans)-1].RT
			r.ms2[r.swathIdx].Scans = append(r.ms2[r.swathIdx].Scans, Point{RT: rt, Mz: s.Mz, I: s.Intens})
		} else {
			r.dropped++
		}
		r.swathIdx++
	default:
		return fmt.Errorf("spectrum index %d: %w %d", s.Index, ErrUnknownMSLevel, s.MSLevel)
	}
	return nil
}

// repair removes the last point of the channels that received a
// point in an incomplete (or overlong) SWATH cycle
func (r *Router) repair(specIndex int) {
	r.anomalies++
	affected := min(r.swathIdx, len(r.ms2))
	lengths := make([]int, len(r.ms2))
	for i := range r.ms2 {
		lengths[i] = len(r.ms2[i].Scans)
	}
	r.log.Warn("swath cycle anomaly",
		"spectrum_index", specIndex,
		"expected", len(r.ms2),
		"observed", r.swathIdx,
		"channel_lengths", lengths)
	for i := 0; i < affected; i++ {
		if scans := r.ms2[i].Scans; len(scans) > 0 {
			r.ms2[i].Scans = scans[:len(scans)-1]
		}
	}
}

// MS1 returns the MS1 channel
func (r *Router) MS1() *Channel {
	return &r.ms1
}

// MS2 returns the SWATH channels in window order
func (r *Router) MS2() []*Channel {
	chans := make([]*Channel, len(r.ms2))
	for i := range r.ms2 {
		chans[i] = &r.ms2[i]
	}
	return chans
}

// Channels returns the MS1 channel followed by the SWATH channels
func (r *Router) Channels() []*Channel {
	return append([]*Channel{&r.ms1}, r.MS2()...)
}

// Anomalies returns the number of repaired SWATH cycles
func (r *Router) Anomalies() int {
	return r.anomalies
}

// Dropped returns the number of MS2 spectra beyond the configured SWATH windows
func (r *Router) Dropped() int {
	return r.dropped
}

// WriteScans writes the raw scan dump of a channel: a "scan <label>"
// header, then per point the retention time, the m/z values and the
// intensities, each on its own line
func WriteScans(w io.StringWriter, c *Channel) error {
	var sb strings.Builder
	sb.WriteString("scan " + c.Label + "\n")
	for _, p := range c.Scans {
		sb.WriteString(output.Float(p.RT))
		sb.WriteByte('\n')
		writeJoined(&sb, p.Mz)
		writeJoined(&sb, p.I)
		if sb.Len() > 1<<16 {
			if _, err := w.WriteString(sb.String()); err != nil {
				return err
			}
			sb.Reset()
		}
	}
	sb.WriteByte('\n')
	_, err := w.WriteString(sb.String())
	return err
}

func writeJoined(sb *strings.Builder, values []float64) {
	for i, v := range values {
		if i > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(output.Float(v))
	}
	sb.WriteByte('\n')
}
