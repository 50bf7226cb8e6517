package mzml

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"encoding/xml"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/klauspost/compress/zlib"
	"golang.org/x/net/html/charset"
)

// Reader reads spectra from an mzML stream, one at a time.
// Only a single spectrum element is held in memory, the XML of
// a spectrum is released as soon as it is decoded.
type Reader struct {
	d      *xml.Decoder
	groups map[string][]CVParam
	count  int
	spec   *Spectrum
	err    error
}

// NewReader creates a Reader for mzML content
func NewReader(r io.Reader) *Reader {
	d := xml.NewDecoder(r)
	d.CharsetReader = charset.NewReaderLabel
	return &Reader{
		d:      d,
		groups: make(map[string][]CVParam),
	}
}

// Next advances to the next spectrum. It returns false at the end of
// the input or on error; check Err afterwards.
func (r *Reader) Next() bool {
	r.spec = nil
	if r.err != nil {
		return false
	}
	for {
		t, err := r.d.Token()
		if err != nil {
			if err != io.EOF {
				r.err = err
			}
			return false
		}
		se, ok := t.(xml.StartElement)
		if !ok {
			continue
		}
		switch se.Name.Local {
		case "referenceableParamGroup":
			var g referenceableParamGroup
			if err := r.d.DecodeElement(&g, &se); err != nil {
				r.err = err
				return false
			}
			r.groups[g.ID] = g.CvPar
		case "spectrum":
			var s spectrum
			if err := r.d.DecodeElement(&s, &se); err != nil {
				r.err = err
				return false
			}
			spec, err := r.decodeSpectrum(&s)
			if err != nil {
				r.err = fmt.Errorf("spectrum index %d (%s): %w", s.Index, s.ID, err)
				return false
			}
			r.count++
			r.spec = spec
			return true
		}
	}
}

// Spectrum returns the spectrum read by the last call to Next
func (r *Reader) Spectrum() *Spectrum {
	return r.spec
}

// Err returns the first error encountered
func (r *Reader) Err() error {
	return r.err
}

// Count returns the number of spectra read so far
func (r *Reader) Count() int {
	return r.count
}

// params returns the CV terms of an element, including those of the
// referenceableParamGroups it refers to
func (r *Reader) params(own []CVParam, refs []paramRef) ([]CVParam, error) {
	if len(refs) == 0 {
		return own, nil
	}
	all := make([]CVParam, 0, len(own))
	all = append(all, own...)
	for _, ref := range refs {
		g, ok := r.groups[ref.Ref]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownParamGroup, ref.Ref)
		}
		all = append(all, g...)
	}
	return all, nil
}

func (r *Reader) decodeSpectrum(s *spectrum) (*Spectrum, error) {
	spec := Spectrum{Index: s.Index, ID: s.ID}

	cvPars, err := r.params(s.CvPar, s.ParamGroupRef)
	if err != nil {
		return nil, err
	}
	for _, cvParam := range cvPars {
		switch cvParam.Accession {
		case cvMSLevel:
			msLevel, err := strconv.Atoi(cvParam.Value)
			if err != nil {
				return nil, fmt.Errorf("invalid ms level %q: %w", cvParam.Value, err)
			}
			spec.MSLevel = msLevel
		case cvCentroid:
			spec.Centroid = true
		}
	}
	if !spec.Centroid {
		return nil, ErrProfileSpectrum
	}

	spec.RetentionTime, err = retentionTime(s)
	if err != nil {
		return nil, err
	}

	var mz, intens []float64
	for i := range s.BinaryDataArrayList.BinaryDataArray {
		b := &s.BinaryDataArrayList.BinaryDataArray[i]
		cvPars, err := r.params(b.CvPar, b.ParamGroupRef)
		if err != nil {
			return nil, err
		}
		enc, err := binaryDataPars(cvPars)
		if err != nil {
			return nil, err
		}
		// We are only interested in mz and intensity
		switch {
		case enc.mzArray:
			mz, err = decodeBinary(b.Binary, enc)
		case enc.intensityArray:
			intens, err = decodeBinary(b.Binary, enc)
		}
		if err != nil {
			return nil, err
		}
	}
	spec.Mz, spec.Intens = positivePeaks(mz, intens)
	return &spec, nil
}

// retentionTime returns the scan start time in seconds
func retentionTime(s *spectrum) (float64, error) {
	cvPars := append([]CVParam(nil), s.ScanList.CvPar...)
	for _, sc := range s.ScanList.Scan {
		cvPars = append(cvPars, sc.CvPar...)
	}
	for _, cvParam := range cvPars {
		if cvParam.Accession == cvScanStartTime {
			rt, err := strconv.ParseFloat(cvParam.Value, 64)
			if err != nil {
				return 0, fmt.Errorf("invalid retention time %q: %w", cvParam.Value, err)
			}
			// Check if the retention time is in minutes, otherwise assume it's seconds
			if cvParam.UnitName == unitNameMinute || cvParam.UnitAccession == cvUnitMinute {
				rt *= 60
			}
			return rt, nil
		}
	}
	return 0, ErrNoRetentionTime
}

// positivePeaks pairs up mz and intensity values, dropping
// peaks with intensity <= 0. Excess values of the longer array are ignored.
func positivePeaks(mz, intens []float64) ([]float64, []float64) {
	n := min(len(mz), len(intens))
	mzOut := make([]float64, 0, n)
	intensOut := make([]float64, 0, n)
	for i := 0; i < n; i++ {
		if intens[i] > 0 {
			mzOut = append(mzOut, mz[i])
			intensOut = append(intensOut, intens[i])
		}
	}
	return mzOut, intensOut
}

type arrayEncoding struct {
	zlibCompression bool
	bits64          bool
	mzArray         bool
	intensityArray  bool
}

// binaryDataPars decodes the CV terms in a mzML binarydata section
//
// CV Terms for binary data compression
// MS:1000574 zlib compression
// MS:1000576 No Compression
// MS:1002312 MS-Numpress linear prediction compression
// MS:1002313 MS-Numpress positive integer compression
// MS:1002314 MS-Numpress short logged float compression
// MS:1002746 MS-Numpress linear prediction compression followed by zlib compression
// MS:1002747 MS-Numpress positive integer compression followed by zlib compression
// MS:1002748 MS-Numpress short logged float compression followed by zlib compression
//
// CV Terms for binary data array types
// MS:1000514 m/z array
// MS:1000515 intensity array
//
// CV Terms for binary-data-type
// MS:1000521 32-bit float
// MS:1000523 64-bit float
func binaryDataPars(cvPars []CVParam) (arrayEncoding, error) {
	var enc arrayEncoding // Default: no compression, 32 bits
	for _, cvParam := range cvPars {
		switch cvParam.Accession {
		case cvZlib:
			enc.zlibCompression = true
		case cvMzArray:
			enc.mzArray = true
		case cvIntensityArray:
			enc.intensityArray = true
		case cvFloat64:
			enc.bits64 = true
		case `MS:1002312`, `MS:1002313`, `MS:1002314`,
			`MS:1002746`, `MS:1002747`, `MS:1002748`:
			return enc, fmt.Errorf("%w (CV term %s)", ErrUnsupportedCompression, cvParam.Accession)
		}
	}
	return enc, nil
}

// decodeBinary converts base64 (optionally zlib compressed) little endian
// floats into a slice. An empty payload gives an empty slice.
func decodeBinary(b64 string, enc arrayEncoding) ([]float64, error) {
	b64 = strings.TrimSpace(b64)
	if b64 == "" {
		return []float64{}, nil
	}
	data, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, err
	}
	if enc.zlibCompression {
		z, err := zlib.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		defer z.Close()
		data, err = io.ReadAll(z)
		if err != nil {
			return nil, err
		}
	}
	var values []float64
	if enc.bits64 {
		cnt := len(data) / 8
		values = make([]float64, cnt)
		for i := 0; i < cnt; i++ {
			bits := binary.LittleEndian.Uint64(data[i*8:])
			values[i] = math.Float64frombits(bits)
		}
	} else {
		cnt := len(data) / 4
		values = make([]float64, cnt)
		for i := 0; i < cnt; i++ {
			bits := binary.LittleEndian.Uint32(data[i*4:])
			values[i] = float64(math.Float32frombits(bits))
		}
	}
	return values, nil
}
