package main

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"

	"github.com/524D/diafeature/internal/target"
)

// ErrRangeSpec means a range flag could not be interpreted
var ErrRangeSpec = errors.New("invalid range specified")

var float64RangeRe = regexp.MustCompile(`^\s*([-+]?[0-9]*\.?[0-9]*([eE][-+]?[0-9]+)?):([-+]?[0-9]*\.?[0-9]*([eE][-+]?[0-9]+)?)\s*$`)

// Parse string like "-12.01e1:+6" into 2 values, -120.1 and 6.0
// Parameters min and max are the "default" min/max values,
// when a value is not specified (e.g. "-12.01e1:"), the default is assigned
func parseFloat64Range(r string, min float64, max float64) (
	float64, float64, error) {
	minOut := min
	maxOut := max
	if r == "" {
		return minOut, maxOut, nil
	}
	m := float64RangeRe.FindStringSubmatch(r)
	if m == nil {
		return minOut, maxOut, fmt.Errorf("%w: %q", ErrRangeSpec, r)
	}
	var err error
	if m[1] != "" {
		if minOut, err = strconv.ParseFloat(m[1], 64); err != nil {
			return min, max, fmt.Errorf("%w: %q", ErrRangeSpec, r)
		}
		if minOut < min {
			minOut = min
		}
	}
	if m[3] != "" {
		if maxOut, err = strconv.ParseFloat(m[3], 64); err != nil {
			return min, max, fmt.Errorf("%w: %q", ErrRangeSpec, r)
		}
		if maxOut > max {
			maxOut = max
		}
	}
	if minOut > maxOut {
		return maxOut, maxOut, fmt.Errorf("%w: %q", ErrRangeSpec, r)
	}
	return minOut, maxOut, nil
}

// filterTargets returns the sorted targets within the inclusive m/z
// range r, e.g. "400:800"
func filterTargets(targets []float64, r string) ([]float64, error) {
	lo, hi, err := parseFloat64Range(r, 0, math.MaxFloat64)
	if err != nil {
		return nil, err
	}
	start := sort.SearchFloat64s(targets, lo)
	end := sort.Search(len(targets), func(i int) bool { return targets[i] > hi })
	if start >= end {
		return nil, fmt.Errorf("%w in m/z range %g:%g", target.ErrNoTargets, lo, hi)
	}
	return targets[start:end], nil
}
