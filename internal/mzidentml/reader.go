package mzidentml

import (
	"encoding/xml"
	"fmt"
	"io"
	"strconv"

	"golang.org/x/net/html/charset"
)

// Retention time CV terms in order of decreasing preference
var rtTerms = []string{
	"MS:1000016", // scan start time
	"MS:1000894", // retention time
	"MS:1000826", // elution time
	"MS:1001114", // retention time (deprecated)
}

// Read reads mzIdentML content from io.reader
func Read(reader io.Reader) (*MzIdentML, error) {
	var m MzIdentML
	d := xml.NewDecoder(reader)
	d.CharsetReader = charset.NewReaderLabel
	if err := d.Decode(&m.content); err != nil {
		return nil, err
	}
	m.pepIdx = make(map[string]int, len(m.content.Peptide))
	for i, p := range m.content.Peptide {
		m.pepIdx[p.ID] = i
	}
	for i, r := range m.content.SpectrumIdentificationResult {
		for j := range r.SpectrumIdentificationItem {
			m.identList = append(m.identList, identRef{resultIdx: i, itemIdx: j})
		}
	}
	return &m, nil
}

// NumIdents returns the total number of identifications.
// A spectrum may carry more than one identification.
func (m *MzIdentML) NumIdents() int {
	return len(m.identList)
}

// Ident returns identification i, 0 <= i < NumIdents()
func (m *MzIdentML) Ident(i int) (Identification, error) {
	var ident Identification
	if i < 0 || i >= len(m.identList) {
		return ident, ErrInvalidIdentIndex
	}
	result := &m.content.SpectrumIdentificationResult[m.identList[i].resultIdx]
	item := &result.SpectrumIdentificationItem[m.identList[i].itemIdx]

	ident.Charge = item.ChargeState
	ident.ExperimentalMz = item.ExperimentalMassToCharge
	ident.CalculatedMz = item.CalculatedMassToCharge
	ident.PassThreshold = item.PassThreshold
	ident.SpecID = result.SpectrumID
	if item.PeptideRef != "" {
		pepIdx, ok := m.pepIdx[item.PeptideRef]
		if !ok {
			return ident, fmt.Errorf("%w %q", ErrUnknownPeptide, item.PeptideRef)
		}
		ident.PepSeq = m.content.Peptide[pepIdx].PeptideSequence
		ident.PepID = m.content.Peptide[pepIdx].ID
	}

	rt, err := retentionTime(result.CvPar)
	if err != nil {
		return ident, fmt.Errorf("spectrum %s: %w", result.SpectrumID, err)
	}
	ident.RetentionTime = rt
	return ident, nil
}

func retentionTime(cvPars []cvParam) (float64, error) {
	for _, acc := range rtTerms {
		for _, cv := range cvPars {
			if cv.Accession != acc {
				continue
			}
			rt, err := strconv.ParseFloat(cv.Value, 64)
			if err != nil {
				return 0, err
			}
			// Minutes, otherwise assume seconds
			if cv.UnitAccession == "UO:0000031" || cv.UnitAccession == "MS:1000038" {
				rt *= 60
			}
			return rt, nil
		}
	}
	return -1, nil
}
