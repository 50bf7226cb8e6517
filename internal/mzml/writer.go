package mzml

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"encoding/xml"
	"errors"
	"io"
	"math"
	"strconv"

	"github.com/klauspost/compress/zlib"
)

// WriteOptions controls how a spectrum is encoded by Writer
type WriteOptions struct {
	Zlib              bool
	Bits64            bool
	RTMinutes         bool   // write the retention time in minutes
	OmitRetentionTime bool   // leave out the scan start time
	ParamGroupRef     string // take ms level and centroid flag from this group
}

// Writer writes a minimal mzML file: a referenceableParamGroupList
// and a run with a spectrumList. It is meant for producing small
// synthetic runs, not for round-tripping complete instrument files.
type Writer struct {
	w      io.Writer
	enc    *xml.Encoder
	count  int
	closed bool
}

// ErrWriterClosed means a spectrum was written after Close
var ErrWriterClosed = errors.New("MzML: writer closed")

// NewWriter writes the mzML header and the given param groups
func NewWriter(writer io.Writer, groups ...ParamGroup) (*Writer, error) {
	if _, err := io.WriteString(writer, xml.Header); err != nil {
		return nil, err
	}
	enc := xml.NewEncoder(writer)
	enc.Indent(``, `  `)
	w := &Writer{w: writer, enc: enc}

	root := xml.StartElement{
		Name: xml.Name{Local: "mzML"},
		Attr: []xml.Attr{
			{Name: xml.Name{Local: "xmlns"}, Value: mzMLNamespace},
			{Name: xml.Name{Local: "version"}, Value: "1.1.0"},
		},
	}
	if err := enc.EncodeToken(root); err != nil {
		return nil, err
	}
	if len(groups) > 0 {
		list := xml.StartElement{
			Name: xml.Name{Local: "referenceableParamGroupList"},
			Attr: []xml.Attr{{Name: xml.Name{Local: "count"}, Value: strconv.Itoa(len(groups))}},
		}
		if err := enc.EncodeToken(list); err != nil {
			return nil, err
		}
		for _, g := range groups {
			rg := referenceableParamGroup{ID: g.ID, CvPar: g.CvPar}
			if err := enc.EncodeElement(rg, xml.StartElement{Name: xml.Name{Local: "referenceableParamGroup"}}); err != nil {
				return nil, err
			}
		}
		if err := enc.EncodeToken(list.End()); err != nil {
			return nil, err
		}
	}
	for _, name := range []string{"run", "spectrumList"} {
		if err := enc.EncodeToken(xml.StartElement{Name: xml.Name{Local: name}}); err != nil {
			return nil, err
		}
	}
	return w, nil
}

// SpectrumParams returns the CV terms for ms level and centroid/profile
// mode, as used on a spectrum or in a referenceableParamGroup
func SpectrumParams(msLevel int, centroid bool) []CVParam {
	cvPars := []CVParam{
		{CvRef: "MS", Accession: cvMSLevel, Name: "ms level", Value: strconv.Itoa(msLevel)},
	}
	if centroid {
		cvPars = append(cvPars, CVParam{CvRef: "MS", Accession: cvCentroid, Name: "centroid spectrum"})
	} else {
		cvPars = append(cvPars, CVParam{CvRef: "MS", Accession: cvProfile, Name: "profile spectrum"})
	}
	return cvPars
}

// WriteSpectrum appends a spectrum to the spectrumList
func (w *Writer) WriteSpectrum(s Spectrum, opts WriteOptions) error {
	if w.closed {
		return ErrWriterClosed
	}
	out := spectrum{
		Index:              w.count,
		ID:                 s.ID,
		DefaultArrayLength: int64(len(s.Mz)),
	}
	if out.ID == "" {
		out.ID = "scan=" + strconv.Itoa(w.count+1)
	}
	if opts.ParamGroupRef != "" {
		out.ParamGroupRef = []paramRef{{Ref: opts.ParamGroupRef}}
	} else {
		out.CvPar = SpectrumParams(s.MSLevel, s.Centroid)
	}

	var sc scan
	if !opts.OmitRetentionTime {
		rt := CVParam{CvRef: "MS", Accession: cvScanStartTime, Name: "scan start time",
			UnitCvRef: "UO", UnitAccession: cvUnitSecond, UnitName: "second"}
		if opts.RTMinutes {
			rt.Value = strconv.FormatFloat(s.RetentionTime/60, 'g', -1, 64)
			rt.UnitAccession = cvUnitMinute
			rt.UnitName = unitNameMinute
		} else {
			rt.Value = strconv.FormatFloat(s.RetentionTime, 'g', -1, 64)
		}
		sc.CvPar = []CVParam{rt}
	}
	out.ScanList = scanList{Count: 1, Scan: []scan{sc}}

	for _, arr := range []struct {
		values  []float64
		cvArray CVParam
	}{
		{s.Mz, CVParam{CvRef: "MS", Accession: cvMzArray, Name: "m/z array"}},
		{s.Intens, CVParam{CvRef: "MS", Accession: cvIntensityArray, Name: "intensity array"}},
	} {
		b64, err := encodeBinary(arr.values, opts.Zlib, opts.Bits64)
		if err != nil {
			return err
		}
		b := binaryDataArray{EncodedLength: len(b64), Binary: b64}
		if opts.Bits64 {
			b.CvPar = append(b.CvPar, CVParam{CvRef: "MS", Accession: cvFloat64, Name: "64-bit float"})
		} else {
			b.CvPar = append(b.CvPar, CVParam{CvRef: "MS", Accession: cvFloat32, Name: "32-bit float"})
		}
		if opts.Zlib {
			b.CvPar = append(b.CvPar, CVParam{CvRef: "MS", Accession: cvZlib, Name: "zlib compression"})
		} else {
			b.CvPar = append(b.CvPar, CVParam{CvRef: "MS", Accession: cvNoCompression, Name: "no compression"})
		}
		b.CvPar = append(b.CvPar, arr.cvArray)
		out.BinaryDataArrayList.BinaryDataArray = append(out.BinaryDataArrayList.BinaryDataArray, b)
	}
	out.BinaryDataArrayList.Count = len(out.BinaryDataArrayList.BinaryDataArray)

	w.count++
	return w.enc.EncodeElement(out, xml.StartElement{Name: xml.Name{Local: "spectrum"}})
}

// Close terminates the open elements. It does not close the
// underlying io.Writer.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	for _, name := range []string{"spectrumList", "run", "mzML"} {
		if err := w.enc.EncodeToken(xml.EndElement{Name: xml.Name{Local: name}}); err != nil {
			return err
		}
	}
	return w.enc.Flush()
}

func encodeBinary(values []float64, zlibCompression bool, bits64 bool) (string, error) {
	var data []byte
	var rawUncompressed []byte

	if bits64 {
		rawUncompressed = make([]byte, len(values)*8)
		for i, v := range values {
			binary.LittleEndian.PutUint64(rawUncompressed[8*i:], math.Float64bits(v))
		}
	} else {
		rawUncompressed = make([]byte, len(values)*4)
		for i, v := range values {
			binary.LittleEndian.PutUint32(rawUncompressed[4*i:], math.Float32bits(float32(v)))
		}
	}
	if zlibCompression {
		var b bytes.Buffer
		z := zlib.NewWriter(&b)
		if _, err := z.Write(rawUncompressed); err != nil {
			return "", err
		}
		// zlib writer must explicitly be closed here, otherwise result is invalid
		if err := z.Close(); err != nil {
			return "", err
		}
		data = b.Bytes()
	} else {
		data = rawUncompressed
	}
	return base64.StdEncoding.EncodeToString(data), nil
}
