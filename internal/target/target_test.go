package target

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

const annotation = `NAME: compound A
PRECURSOR_M/Z: 512.25
RETENTIONTIME: 300

NAME: compound B
PRECURSOR_M/Z:401.1
  PRECURSOR_M/Z: 450.0
Num Peaks: 2
`

func TestLoadAnnotation(t *testing.T) {
	got, err := LoadAnnotation(strings.NewReader(annotation))
	if err != nil {
		t.Fatalf("LoadAnnotation: error return %v", err)
	}
	if diff := cmp.Diff([]float64{401.1, 450.0, 512.25}, got); diff != "" {
		t.Errorf("LoadAnnotation mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadAnnotationErrors(t *testing.T) {
	if _, err := LoadAnnotation(strings.NewReader("NAME: x\n")); !errors.Is(err, ErrNoTargets) {
		t.Errorf("LoadAnnotation: error return %v, should be ErrNoTargets", err)
	}
	_, err := LoadAnnotation(strings.NewReader("PRECURSOR_M/Z: 1\nPRECURSOR_M/Z: abc\n"))
	if err == nil || !strings.Contains(err.Error(), "line 2") {
		t.Errorf("LoadAnnotation: error return %v, should name line 2", err)
	}
}

const mzid = `<MzIdentML><DataCollection><AnalysisData><SpectrumIdentificationList>
<SpectrumIdentificationResult spectrumID="s1">
<SpectrumIdentificationItem experimentalMassToCharge="600.5"/>
<SpectrumIdentificationItem experimentalMassToCharge="450.25"/>
</SpectrumIdentificationResult>
</SpectrumIdentificationList></AnalysisData></DataCollection></MzIdentML>`

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	write := func(name, content string) {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	write("ann_bAll.txt", "PRECURSOR_M/Z: 999\n")
	write("ann_aAll.txt", annotation)
	write("ids.mzid", mzid)

	masses, path, err := Load(filepath.Join(dir, "ann_*All.txt"), FormatAnnotation, Filter{})
	if err != nil {
		t.Fatalf("Load: error return %v", err)
	}
	if filepath.Base(path) != "ann_aAll.txt" || len(masses) != 3 {
		t.Errorf("Load: %s %v, should use ann_aAll.txt", path, masses)
	}

	masses, _, err = Load(filepath.Join(dir, "*.mzid"), FormatMzIdentML, Filter{})
	if err != nil {
		t.Fatalf("Load: error return %v", err)
	}
	if diff := cmp.Diff([]float64{450.25, 600.5}, masses); diff != "" {
		t.Errorf("Load mzIdentML mismatch (-want +got):\n%s", diff)
	}

	if _, _, err := Load(filepath.Join(dir, "none*"), FormatAnnotation, Filter{}); !errors.Is(err, ErrNoTargetFile) {
		t.Errorf("Load: error return %v, should be ErrNoTargetFile", err)
	}
	if _, _, err := Load(filepath.Join(dir, "*.mzid"), "csv", Filter{}); !errors.Is(err, ErrUnknownFormat) {
		t.Errorf("Load: error return %v, should be ErrUnknownFormat", err)
	}
}

const filterMzid = `<MzIdentML>
<SequenceCollection><Peptide id="p1"><PeptideSequence>PEPTIDE</PeptideSequence></Peptide></SequenceCollection>
<DataCollection><AnalysisData><SpectrumIdentificationList>
<SpectrumIdentificationResult spectrumID="s1">
<SpectrumIdentificationItem experimentalMassToCharge="450.25" passThreshold="true" peptide_ref="p1"/>
<SpectrumIdentificationItem experimentalMassToCharge="450.25" passThreshold="false"/>
<cvParam accession="MS:1000016" value="2" unitAccession="UO:0000031"/>
</SpectrumIdentificationResult>
<SpectrumIdentificationResult spectrumID="s2">
<SpectrumIdentificationItem experimentalMassToCharge="600.5" passThreshold="false"/>
<cvParam accession="MS:1000016" value="900"/>
</SpectrumIdentificationResult>
<SpectrumIdentificationResult spectrumID="s3">
<SpectrumIdentificationItem experimentalMassToCharge="700.75" passThreshold="true"/>
</SpectrumIdentificationResult>
</SpectrumIdentificationList></AnalysisData></DataCollection></MzIdentML>`

func TestLoadMzIdentMLFilter(t *testing.T) {
	tests := []struct {
		name   string
		filter Filter
		want   []float64
	}{
		{"all", Filter{}, []float64{450.25, 600.5, 700.75}},
		{"pass threshold", Filter{PassThresholdOnly: true}, []float64{450.25, 700.75}},
		{"min rt", Filter{MinRT: 300}, []float64{600.5}},
		{"max rt", Filter{MaxRT: 300}, []float64{450.25}},
		{"rt window", Filter{MinRT: 60, MaxRT: 1000}, []float64{450.25, 600.5}},
	}
	for _, tt := range tests {
		got, err := LoadMzIdentML(strings.NewReader(filterMzid), tt.filter)
		if err != nil {
			t.Errorf("%s: error return %v", tt.name, err)
			continue
		}
		if diff := cmp.Diff(tt.want, got); diff != "" {
			t.Errorf("%s: mismatch (-want +got):\n%s", tt.name, diff)
		}
	}

	_, err := LoadMzIdentML(strings.NewReader(filterMzid), Filter{PassThresholdOnly: true, MinRT: 300})
	if !errors.Is(err, ErrNoTargets) {
		t.Errorf("error return %v, should be ErrNoTargets", err)
	}
}
