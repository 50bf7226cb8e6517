package mzml

import (
	"errors"
)

// Spectrum holds the decoded content of one mzML spectrum element.
// Only peaks with a positive intensity are kept, so Mz and Intens
// always have equal length.
type Spectrum struct {
	Index         int    // value of the index attribute
	ID            string // value of the id attribute
	MSLevel       int    // 0 if the file does not specify it
	Centroid      bool
	RetentionTime float64 // seconds
	Mz            []float64
	Intens        []float64
}

// ParamGroup is a referenceableParamGroup as far as we use it.
type ParamGroup struct {
	ID    string
	CvPar []CVParam
}

// The part of the mzML content that we read, one spectrum at a time.
type spectrum struct {
	Index               int                 `xml:"index,attr"`
	ID                  string              `xml:"id,attr"`
	DefaultArrayLength  int64               `xml:"defaultArrayLength,attr"`
	ParamGroupRef       []paramRef          `xml:"referenceableParamGroupRef,omitempty"`
	CvPar               []CVParam           `xml:"cvParam,omitempty"`
	ScanList            scanList            `xml:"scanList"`
	BinaryDataArrayList binaryDataArrayList `xml:"binaryDataArrayList"`
}

type paramRef struct {
	Ref string `xml:"ref,attr"`
}

type referenceableParamGroup struct {
	ID    string    `xml:"id,attr"`
	CvPar []CVParam `xml:"cvParam,omitempty"`
}

type binaryDataArrayList struct {
	Count           int               `xml:"count,attr,omitempty"`
	BinaryDataArray []binaryDataArray `xml:"binaryDataArray"`
}

type binaryDataArray struct {
	EncodedLength int        `xml:"encodedLength,attr,omitempty"`
	ArrayLength   int        `xml:"arrayLength,attr,omitempty"`
	ParamGroupRef []paramRef `xml:"referenceableParamGroupRef,omitempty"`
	CvPar         []CVParam  `xml:"cvParam,omitempty"`
	Binary        string     `xml:"binary"`
}

type scanList struct {
	Count int       `xml:"count,attr,omitempty"`
	CvPar []CVParam `xml:"cvParam,omitempty"`
	Scan  []scan    `xml:"scan"`
}

type scan struct {
	CvPar []CVParam `xml:"cvParam,omitempty"`
}

// CVParam contains values and attributes of a mzML Controlled Vocabulary term
// (http://www.peptideatlas.org/tmp/mzML1.1.0.html)
type CVParam struct {
	CvRef         string `xml:"cvRef,attr,omitempty"`
	Accession     string `xml:"accession,attr,omitempty"`
	Name          string `xml:"name,attr,omitempty"`
	Value         string `xml:"value,attr,omitempty"`
	UnitCvRef     string `xml:"unitCvRef,attr,omitempty"`
	UnitAccession string `xml:"unitAccession,attr,omitempty"`
	UnitName      string `xml:"unitName,attr,omitempty"`
}

// CV terms that we use
const (
	cvMSLevel        = `MS:1000511`
	cvScanStartTime  = `MS:1000016`
	cvCentroid       = `MS:1000127`
	cvProfile        = `MS:1000128`
	cvZlib           = `MS:1000574`
	cvNoCompression  = `MS:1000576`
	cvFloat32        = `MS:1000521`
	cvFloat64        = `MS:1000523`
	cvMzArray        = `MS:1000514`
	cvIntensityArray = `MS:1000515`
	cvUnitMinute     = `UO:0000031`
	cvUnitSecond     = `UO:0000010`
	unitNameMinute   = `minute`
	mzMLNamespace    = `http://psi.hupo.org/ms/mzml`
)

var (
	// ErrProfileSpectrum means a spectrum is not centroided
	ErrProfileSpectrum = errors.New("MzML: profile spectrum, only centroid data is supported")
	// ErrNoRetentionTime means a spectrum has no scan start time
	ErrNoRetentionTime = errors.New("MzML: spectrum has no retention time")
	// ErrUnsupportedCompression means the binary data uses a compression we can't handle
	ErrUnsupportedCompression = errors.New("MzML: compression type not supported")
	// ErrUnknownParamGroup means a referenceableParamGroupRef points nowhere
	ErrUnknownParamGroup = errors.New("MzML: unknown referenceableParamGroup")
)
