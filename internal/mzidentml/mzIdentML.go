package mzidentml

import (
	"encoding/xml"
	"errors"
)

// Types for parsing mzIdentML

// MzIdentML holds only the part of mzIdentML files
// that is needed to obtain precursor masses
type MzIdentML struct {
	pepIdx    map[string]int
	identList []identRef
	content   mzIdentMLContent
}

type identRef struct {
	resultIdx int // Index into SpectrumIdentificationResult
	itemIdx   int // Index into SpectrumIdentificationItem
}

// Identification is one SpectrumIdentificationItem with the data of
// its peptide and spectrum result
type Identification struct {
	PepSeq         string
	PepID          string
	Charge         int
	ExperimentalMz float64
	CalculatedMz   float64
	PassThreshold  bool
	SpecID         string
	RetentionTime  float64 // seconds, -1 if absent
}

type mzIdentMLContent struct {
	XMLName                      xml.Name                       `xml:"MzIdentML"`
	Peptide                      []peptide                      `xml:"SequenceCollection>Peptide"`
	SpectrumIdentificationResult []spectrumIdentificationResult `xml:"DataCollection>AnalysisData>SpectrumIdentificationList>SpectrumIdentificationResult"`
}

type peptide struct {
	ID              string `xml:"id,attr"`
	PeptideSequence string
}

type spectrumIdentificationResult struct {
	SpectrumID                 string `xml:"spectrumID,attr"`
	SpectrumIdentificationItem []spectrumIdentificationItem
	CvPar                      []cvParam `xml:"cvParam"`
}

type spectrumIdentificationItem struct {
	ChargeState              int     `xml:"chargeState,attr"`
	ExperimentalMassToCharge float64 `xml:"experimentalMassToCharge,attr"`
	CalculatedMassToCharge   float64 `xml:"calculatedMassToCharge,attr"`
	PassThreshold            bool    `xml:"passThreshold,attr"`
	PeptideRef               string  `xml:"peptide_ref,attr"`
}

type cvParam struct {
	Accession     string `xml:"accession,attr"`
	Name          string `xml:"name,attr"`
	Value         string `xml:"value,attr"`
	UnitAccession string `xml:"unitAccession,attr"`
}

var (
	ErrInvalidIdentIndex = errors.New("mzIdentML: invalid identification index")
	ErrUnknownPeptide    = errors.New("mzIdentML: unknown peptide reference")
)
