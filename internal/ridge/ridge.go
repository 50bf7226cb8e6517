// Package ridge detects chromatographic peaks in extracted ion
// chromatograms.
package ridge

import (
	"github.com/524D/diafeature/internal/eic"
)

// Peak is a chromatographic peak found in an EIC.
// Scale is the peak half width in retention time units.
type Peak struct {
	Mz        float64
	RT        float64
	Scale     float64
	Coef      float64
	Intensity float64
	SNR       float64
}

// Less orders peaks by m/z, then retention time, scale and coefficient
func (p Peak) Less(q Peak) bool {
	switch {
	case p.Mz != q.Mz:
		return p.Mz < q.Mz
	case p.RT != q.RT:
		return p.RT < q.RT
	case p.Scale != q.Scale:
		return p.Scale < q.Scale
	}
	return p.Coef < q.Coef
}

// Picker finds the peaks of an EIC
type Picker interface {
	FindRidge(e eic.EIC) []Peak
}
