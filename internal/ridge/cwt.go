package ridge

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/524D/diafeature/internal/eic"
)

// Default CWT picker parameters
const (
	DefaultMinScale = 1
	DefaultMaxScale = 8
	DefaultMinSNR   = 3.0
)

const (
	kernelWidth   = 5    // wavelet support in scales on either side
	noiseWidth    = 10   // noise window in largest scales on either side
	noiseQuantile = 0.95 // quantile of |coefficient| taken as noise level
	dustFraction  = 1e-9 // coefficients below this fraction of the max intensity are zero
)

// CWTPicker finds peaks as ridges of the Mexican hat continuous wavelet
// transform of the intensity trace. Scales are in samples.
type CWTPicker struct {
	MinScale int
	MaxScale int
	MinSNR   float64
}

// NewCWTPicker returns a picker with the default parameters
func NewCWTPicker() *CWTPicker {
	return &CWTPicker{MinScale: DefaultMinScale, MaxScale: DefaultMaxScale, MinSNR: DefaultMinSNR}
}

type ridgePoint struct {
	scale int
	pos   int
	coef  float64
}

type ridgeLine struct {
	points []ridgePoint
	open   bool
}

func (r *ridgeLine) pos() int {
	return r.points[len(r.points)-1].pos
}

// FindRidge returns the peaks of e in retention time order
func (c *CWTPicker) FindRidge(e eic.EIC) []Peak {
	n := len(e)
	if n < 3 || c.MinScale < 1 || c.MaxScale < c.MinScale {
		return nil
	}
	y := e.Intensities()
	maxY := floats.Max(y)
	if maxY == floats.Min(y) {
		return nil
	}
	dust := dustFraction * maxY

	nScales := c.MaxScale - c.MinScale + 1
	coefs := make([][]float64, nScales)
	for s := c.MinScale; s <= c.MaxScale; s++ {
		coefs[s-c.MinScale] = transform(y, s)
	}

	// Link maxima from the largest scale down
	var ridges []*ridgeLine
	for s := c.MaxScale; s >= c.MinScale; s-- {
		cs := coefs[s-c.MinScale]
		maxima := localMaxima(cs, dust)
		claimed := make([]bool, len(maxima))
		tol := max(1, s/2)
		for _, r := range ridges {
			if !r.open {
				continue
			}
			best := -1
			for k, m := range maxima {
				d := abs(m - r.pos())
				if claimed[k] || d > tol {
					continue
				}
				if best < 0 || d < abs(maxima[best]-r.pos()) {
					best = k
				}
			}
			if best < 0 {
				r.open = false
				continue
			}
			claimed[best] = true
			r.points = append(r.points, ridgePoint{scale: s, pos: maxima[best], coef: cs[maxima[best]]})
		}
		for k, m := range maxima {
			if !claimed[k] {
				ridges = append(ridges, &ridgeLine{points: []ridgePoint{{scale: s, pos: m, coef: cs[m]}}, open: true})
			}
		}
	}

	step := medianStep(e)
	minLen := max(1, nScales/2)
	var peaks []Peak
	for _, r := range ridges {
		if len(r.points) < minLen {
			continue
		}
		top := r.points[0]
		for _, p := range r.points[1:] {
			if p.coef > top.coef {
				top = p
			}
		}
		snr := top.coef / noiseLevel(coefs[0], top.pos, noiseWidth*c.MaxScale, dust)
		if snr < c.MinSNR {
			continue
		}
		en := e[top.pos]
		peaks = append(peaks, Peak{
			Mz:        en.Mz,
			RT:        en.RT,
			Scale:     float64(top.scale) * step,
			Coef:      top.coef,
			Intensity: en.I,
			SNR:       snr,
		})
	}
	sort.Slice(peaks, func(i, j int) bool { return peaks[i].RT < peaks[j].RT })
	return peaks
}

// mexicanHat is the normalized second derivative of a Gaussian
func mexicanHat(t float64) float64 {
	const norm = 0.8673250705840776 // 2 / (sqrt(3) * pi^(1/4))
	t2 := t * t
	return norm * (1 - t2) * math.Exp(-t2/2)
}

// transform returns the wavelet coefficients of y at one scale.
// y is mirrored at both ends.
func transform(y []float64, scale int) []float64 {
	half := kernelWidth * scale
	kernel := make([]float64, 2*half+1)
	norm := 1 / math.Sqrt(float64(scale))
	for k := range kernel {
		kernel[k] = mexicanHat(float64(k-half)/float64(scale)) * norm
	}
	floats.AddConst(-floats.Sum(kernel)/float64(len(kernel)), kernel)

	n := len(y)
	padded := make([]float64, n+2*half)
	for j := range padded {
		padded[j] = y[reflect(j-half, n)]
	}
	cs := make([]float64, n)
	for i := range cs {
		cs[i] = floats.Dot(kernel, padded[i:i+len(kernel)])
	}
	return cs
}

// reflect maps i into [0, n) by mirroring at both ends
func reflect(i, n int) int {
	period := 2 * n
	i %= period
	if i < 0 {
		i += period
	}
	if i >= n {
		i = period - 1 - i
	}
	return i
}

func localMaxima(cs []float64, floor float64) []int {
	var idx []int
	for i, c := range cs {
		if c <= floor {
			continue
		}
		if i > 0 && cs[i-1] > c {
			continue
		}
		if i < len(cs)-1 && cs[i+1] >= c {
			continue
		}
		idx = append(idx, i)
	}
	return idx
}

// noiseLevel is a high quantile of the absolute smallest scale
// coefficients around pos
func noiseLevel(cs []float64, pos, width int, floor float64) float64 {
	lo := max(0, pos-width)
	hi := min(len(cs), pos+width+1)
	window := make([]float64, 0, hi-lo)
	for _, c := range cs[lo:hi] {
		window = append(window, math.Abs(c))
	}
	sort.Float64s(window)
	return math.Max(stat.Quantile(noiseQuantile, stat.Empirical, window, nil), floor)
}

// medianStep returns the median retention time distance between
// consecutive EIC entries
func medianStep(e eic.EIC) float64 {
	diffs := make([]float64, len(e)-1)
	for i := range diffs {
		diffs[i] = e[i+1].RT - e[i].RT
	}
	sort.Float64s(diffs)
	return stat.Quantile(0.5, stat.Empirical, diffs, nil)
}

func abs(i int) int {
	if i < 0 {
		return -i
	}
	return i
}
