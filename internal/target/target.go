// Package target loads the sorted list of precursor masses that the
// EIC slicer keys its windows to.
package target

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/524D/diafeature/internal/mzidentml"
)

// Formats of a target file
const (
	FormatAnnotation = "annotation"
	FormatMzIdentML  = "mzidentml"
)

const precursorPrefix = "PRECURSOR_M/Z:"

var (
	// ErrNoTargets means the target source holds no precursor masses
	ErrNoTargets = errors.New("target: no precursor masses")
	// ErrNoTargetFile means no file matches the target pattern
	ErrNoTargetFile = errors.New("target: no file matches pattern")
	// ErrUnknownFormat means the target format is not supported
	ErrUnknownFormat = errors.New("target: unknown format")
)

// LoadAnnotation reads an annotation file and returns the values of all
// "PRECURSOR_M/Z: <float>" lines, sorted ascending
func LoadAnnotation(r io.Reader) ([]float64, error) {
	var masses []float64
	scanner := bufio.NewScanner(r)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		v, ok := strings.CutPrefix(line, precursorPrefix)
		if !ok {
			continue
		}
		mz, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNum, err)
		}
		masses = append(masses, mz)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if len(masses) == 0 {
		return nil, ErrNoTargets
	}
	sort.Float64s(masses)
	return masses, nil
}

// Filter selects the identifications of an mzIdentML file whose
// precursor m/z becomes a target
type Filter struct {
	PassThresholdOnly bool
	// Retention time limits in seconds. MaxRT 0 means no upper limit.
	// When a limit is set, identifications without a retention time
	// are left out.
	MinRT, MaxRT float64
}

func (f Filter) keep(id mzidentml.Identification) bool {
	if f.PassThresholdOnly && !id.PassThreshold {
		return false
	}
	if f.MinRT > 0 || f.MaxRT > 0 {
		if id.RetentionTime < 0 || id.RetentionTime < f.MinRT {
			return false
		}
		if f.MaxRT > 0 && id.RetentionTime > f.MaxRT {
			return false
		}
	}
	return id.ExperimentalMz > 0
}

// LoadMzIdentML returns the distinct experimental precursor m/z values
// of the identifications in an mzIdentML file that pass f, sorted
// ascending
func LoadMzIdentML(r io.Reader, f Filter) ([]float64, error) {
	m, err := mzidentml.Read(r)
	if err != nil {
		return nil, err
	}
	seen := make(map[float64]struct{}, m.NumIdents())
	var masses []float64
	for i := 0; i < m.NumIdents(); i++ {
		id, err := m.Ident(i)
		if err != nil {
			return nil, err
		}
		if !f.keep(id) {
			continue
		}
		if _, ok := seen[id.ExperimentalMz]; !ok {
			seen[id.ExperimentalMz] = struct{}{}
			masses = append(masses, id.ExperimentalMz)
		}
	}
	if len(masses) == 0 {
		return nil, ErrNoTargets
	}
	sort.Float64s(masses)
	return masses, nil
}

// Load reads the target list from the first file (in lexical order)
// that matches pattern, in the given format. f only applies to
// mzIdentML files.
func Load(pattern, format string, f Filter) ([]float64, string, error) {
	var load func(io.Reader) ([]float64, error)
	switch strings.ToLower(format) {
	case "", FormatAnnotation:
		load = LoadAnnotation
	case FormatMzIdentML:
		load = func(r io.Reader) ([]float64, error) { return LoadMzIdentML(r, f) }
	default:
		return nil, "", fmt.Errorf("%w %q", ErrUnknownFormat, format)
	}

	matches, err := filepath.Glob(pattern)
	if err != nil {
		return nil, "", err
	}
	if len(matches) == 0 {
		return nil, "", fmt.Errorf("%w %q", ErrNoTargetFile, pattern)
	}
	sort.Strings(matches)
	path := matches[0]

	file, err := os.Open(path)
	if err != nil {
		return nil, "", err
	}
	defer file.Close()
	masses, err := load(file)
	if err != nil {
		return nil, path, fmt.Errorf("%s: %w", path, err)
	}
	return masses, path, nil
}
