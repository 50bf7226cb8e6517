// Package feature turns the peaks picked from a run's EICs into a
// deduplicated feature list and stores it.
package feature

import (
	"io"
	"sort"
	"strings"

	"github.com/524D/diafeature/internal/output"
	"github.com/524D/diafeature/internal/ridge"
)

// DefaultMzTol is the m/z distance below which peaks may be duplicates
const DefaultMzTol = 0.01

// FeatureHeader is the first line of a feature file
const FeatureHeader = "MS1"

// overlaps reports whether the retention time ranges rt ± scale of a and b overlap
func overlaps(a, b ridge.Peak) bool {
	d := a.RT - b.RT
	if d < 0 {
		d = -d
	}
	return d < a.Scale+b.Scale
}

// Dedup removes redundant peaks. The peaks are sorted by m/z; then, in
// that order, every peak still present collects the present peaks that
// lie less than mzTol above it and overlap it in retention time. Of that
// cluster only the peak with the highest coefficient is kept; on equal
// coefficient the collecting peak wins. The result is in m/z order.
func Dedup(peaks []ridge.Peak, mzTol float64) []ridge.Peak {
	sorted := make([]ridge.Peak, len(peaks))
	copy(sorted, peaks)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Less(sorted[j]) })

	live := make([]bool, len(sorted))
	for i := range live {
		live[i] = true
	}
	var cluster []int
	for i, p := range sorted {
		if !live[i] {
			continue
		}
		cluster = append(cluster[:0], i)
		lo := sort.Search(len(sorted), func(k int) bool { return sorted[k].Mz >= p.Mz })
		for j := lo; j < len(sorted) && sorted[j].Mz < p.Mz+mzTol; j++ {
			if j != i && live[j] && overlaps(p, sorted[j]) {
				cluster = append(cluster, j)
			}
		}
		if len(cluster) == 1 {
			continue
		}
		sort.SliceStable(cluster, func(a, b int) bool {
			return sorted[cluster[a]].Coef > sorted[cluster[b]].Coef
		})
		for _, j := range cluster[1:] {
			live[j] = false
		}
	}

	kept := make([]ridge.Peak, 0, len(sorted))
	for i, p := range sorted {
		if live[i] {
			kept = append(kept, p)
		}
	}
	return kept
}

// WriteFeatures writes the feature file: the header line followed by one
// "mz rt scale coef intensity snr" line per peak, tab separated
func WriteFeatures(w io.StringWriter, peaks []ridge.Peak) error {
	var sb strings.Builder
	sb.WriteString(FeatureHeader + "\n")
	for _, p := range peaks {
		for k, v := range []float64{p.Mz, p.RT, p.Scale, p.Coef, p.Intensity, p.SNR} {
			if k > 0 {
				sb.WriteByte('\t')
			}
			sb.WriteString(output.Float(v))
		}
		sb.WriteByte('\n')
	}
	_, err := w.WriteString(sb.String())
	return err
}
