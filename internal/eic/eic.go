// Package eic slices the m/z axis of a channel into narrow, overlapping
// windows around target masses and builds an extracted ion chromatogram
// for every window.
package eic

import (
	"context"
	"errors"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/524D/diafeature/internal/swath"
)

// Default slicing parameters
const (
	DefaultMzSpace      = 0.009
	DefaultLowMargin    = 0.02
	DefaultHighMargin   = 0.03
	DefaultGuard        = 0.0045
	DefaultMinGroupSize = 2
	windowSteps         = 3 // a window spans this many steps
)

// ErrNoTargets means slicing was requested without target masses
var ErrNoTargets = errors.New("eic: empty target mass list")

// Params controls the windowing
type Params struct {
	MzSpace      float64 // step between cut points
	LowMargin    float64 // first cut point lies this far below the lowest target
	HighMargin   float64 // cut points stop this far above the highest target
	Guard        float64 // a target must lie this far inside a window
	MinGroupSize int     // minimum number of data points in a window
	Workers      int     // goroutines building EICs, <= 1 means sequential
}

// DefaultParams returns the standard windowing parameters
func DefaultParams() Params {
	return Params{
		MzSpace:      DefaultMzSpace,
		LowMargin:    DefaultLowMargin,
		HighMargin:   DefaultHighMargin,
		Guard:        DefaultGuard,
		MinGroupSize: DefaultMinGroupSize,
		Workers:      1,
	}
}

// DataPoint is a single peak of a channel
type DataPoint struct {
	RT float64
	Mz float64
	I  float64
}

// Entry is the most intense peak of a window at one retention time
type Entry struct {
	RT float64
	Mz float64
	I  float64
}

// EIC is an extracted ion chromatogram, one entry per retention time,
// ordered by retention time
type EIC []Entry

// Intensities returns the intensity trace of the EIC
func (e EIC) Intensities() []float64 {
	y := make([]float64, len(e))
	for i, en := range e {
		y[i] = en.I
	}
	return y
}

// Window is an accepted m/z window with its EIC
type Window struct {
	MzStart float64
	MzEnd   float64
	EIC     EIC
}

// Flatten explodes the points of a channel into data points sorted by m/z.
// Points with equal m/z keep their acquisition order.
func Flatten(c *swath.Channel) []DataPoint {
	n := 0
	for _, p := range c.Scans {
		n += len(p.Mz)
	}
	dps := make([]DataPoint, 0, n)
	for _, p := range c.Scans {
		for i := range p.Mz {
			dps = append(dps, DataPoint{RT: p.RT, Mz: p.Mz[i], I: p.I[i]})
		}
	}
	sort.SliceStable(dps, func(i, j int) bool { return dps[i].Mz < dps[j].Mz })
	return dps
}

// RetentionTimes returns the distinct retention times of a channel, sorted
func RetentionTimes(c *swath.Channel) []float64 {
	seen := make(map[float64]struct{}, len(c.Scans))
	rts := make([]float64, 0, len(c.Scans))
	for _, p := range c.Scans {
		if _, ok := seen[p.RT]; !ok {
			seen[p.RT] = struct{}{}
			rts = append(rts, p.RT)
		}
	}
	sort.Float64s(rts)
	return rts
}

type cut struct {
	pos int     // insertion position of mz in the sorted m/z values
	mz  float64 // cut point
}

// cutPoints returns the cut points from the lowest target minus the low
// margin, in steps of MzSpace, up to the highest target plus the high margin
func cutPoints(dps []DataPoint, targets []float64, p Params) []cut {
	mzMin := targets[0] - p.LowMargin
	mzMax := targets[len(targets)-1] + p.HighMargin
	var cuts []cut
	for mz := mzMin; mz < mzMax; mz += p.MzSpace {
		pos := sort.Search(len(dps), func(i int) bool { return dps[i].Mz >= mz })
		cuts = append(cuts, cut{pos: pos, mz: mz})
	}
	return cuts
}

// bracketsTarget reports whether a target lies strictly between lo and hi
func bracketsTarget(targets []float64, lo, hi float64) bool {
	i := sort.SearchFloat64s(targets, lo)
	for i < len(targets) && targets[i] <= lo {
		i++
	}
	return i < len(targets) && targets[i] < hi
}

// Slice builds the EICs of a channel. targets must be sorted ascending.
// A window spans three consecutive cut points; it is accepted when it
// holds at least MinGroupSize data points and a target lies more than
// Guard inside both of its edges.
func Slice(ctx context.Context, c *swath.Channel, targets []float64, p Params) ([]Window, error) {
	if len(targets) == 0 {
		return nil, ErrNoTargets
	}
	if p.MzSpace <= 0 {
		return nil, errors.New("eic: m/z step must be positive")
	}
	dps := Flatten(c)
	cuts := cutPoints(dps, targets, p)

	type span struct {
		from, to int
	}
	var spans []span
	var windows []Window
	for i := 0; i+windowSteps < len(cuts); i++ {
		lo, hi := cuts[i], cuts[i+windowSteps]
		if hi.pos-lo.pos < p.MinGroupSize {
			continue
		}
		if !bracketsTarget(targets, lo.mz+p.Guard, hi.mz-p.Guard) {
			continue
		}
		spans = append(spans, span{lo.pos, hi.pos})
		windows = append(windows, Window{MzStart: lo.mz, MzEnd: hi.mz})
	}

	// Windows only read the shared data points, so they can be built concurrently
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(max(p.Workers, 1))
	for i := range windows {
		i := i
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			windows[i].EIC = buildEIC(dps[spans[i].from:spans[i].to])
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return windows, nil
}

// buildEIC keeps, per retention time, the most intense data point.
// On equal intensity the first data point (lowest m/z) wins.
func buildEIC(dps []DataPoint) EIC {
	best := make(map[float64]int, len(dps))
	for i, dp := range dps {
		if j, ok := best[dp.RT]; !ok || dps[j].I < dp.I {
			best[dp.RT] = i
		}
	}
	e := make(EIC, 0, len(best))
	for rt, i := range best {
		e = append(e, Entry{RT: rt, Mz: dps[i].Mz, I: dps[i].I})
	}
	sort.Slice(e, func(i, j int) bool { return e[i].RT < e[j].RT })
	return e
}
