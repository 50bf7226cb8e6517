package eic

import (
	"context"
	"errors"
	"math/rand"
	"sort"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/524D/diafeature/internal/swath"
)

func singleScan() *swath.Channel {
	return &swath.Channel{Label: swath.MS1Label, Scans: []swath.Point{
		{RT: 10.0, Mz: []float64{500.0, 500.005}, I: []float64{100, 50}},
	}}
}

func TestSliceSingleScan(t *testing.T) {
	windows, err := Slice(context.Background(), singleScan(), []float64{500.0}, DefaultParams())
	if err != nil {
		t.Fatalf("Slice: error return %v", err)
	}
	// The target falls inside two overlapping windows
	if len(windows) != 2 {
		t.Fatalf("Slice: %d windows accepted, should be 2", len(windows))
	}
	want := EIC{{RT: 10.0, Mz: 500.0, I: 100}}
	for _, w := range windows {
		if diff := cmp.Diff(want, w.EIC); diff != "" {
			t.Errorf("window %v-%v EIC mismatch (-want +got):\n%s", w.MzStart, w.MzEnd, diff)
		}
		if !(w.MzStart+DefaultGuard < 500.0 && 500.0 < w.MzEnd-DefaultGuard) {
			t.Errorf("window %v-%v does not bracket the target", w.MzStart, w.MzEnd)
		}
	}
}

func TestSliceNoTargets(t *testing.T) {
	_, err := Slice(context.Background(), singleScan(), nil, DefaultParams())
	if !errors.Is(err, ErrNoTargets) {
		t.Errorf("Slice: error return %v, should be ErrNoTargets", err)
	}
}

func TestSliceMinGroupSize(t *testing.T) {
	c := &swath.Channel{Label: swath.MS1Label, Scans: []swath.Point{
		{RT: 10.0, Mz: []float64{500.0}, I: []float64{100}},
	}}
	p := DefaultParams()
	windows, err := Slice(context.Background(), c, []float64{500.0}, p)
	if err != nil {
		t.Fatalf("Slice: error return %v", err)
	}
	if len(windows) != 0 {
		t.Errorf("Slice: %d windows for a single data point, should be 0", len(windows))
	}

	p.MinGroupSize = 1
	windows, err = Slice(context.Background(), c, []float64{500.0}, p)
	if err != nil {
		t.Fatalf("Slice: error return %v", err)
	}
	if len(windows) == 0 {
		t.Error("Slice: no windows with MinGroupSize 1")
	}
}

func TestSliceNoPointsNearTarget(t *testing.T) {
	windows, err := Slice(context.Background(), singleScan(), []float64{700.0}, DefaultParams())
	if err != nil {
		t.Fatalf("Slice: error return %v", err)
	}
	if len(windows) != 0 {
		t.Errorf("Slice: %d windows, should be 0", len(windows))
	}
}

func randomChannel(rng *rand.Rand, scans int) *swath.Channel {
	c := &swath.Channel{Label: swath.MS1Label}
	for s := 0; s < scans; s++ {
		p := swath.Point{RT: float64(s) * 2.5}
		for k := 0; k < 400; k++ {
			p.Mz = append(p.Mz, 400+rng.Float64()*10)
			p.I = append(p.I, 1+rng.Float64()*1000)
		}
		c.Scans = append(c.Scans, p)
	}
	return c
}

func TestSliceWindowContents(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	c := randomChannel(rng, 20)
	targets := []float64{401.2, 403.33, 403.34, 407.0}

	windows, err := Slice(context.Background(), c, targets, DefaultParams())
	if err != nil {
		t.Fatalf("Slice: error return %v", err)
	}
	if len(windows) == 0 {
		t.Fatal("Slice: no windows accepted")
	}
	rts := RetentionTimes(c)
	for _, w := range windows {
		if w.MzEnd-w.MzStart < 3*DefaultMzSpace-1e-9 || w.MzEnd-w.MzStart > 3*DefaultMzSpace+1e-9 {
			t.Errorf("window %v-%v does not span three steps", w.MzStart, w.MzEnd)
		}
		if !bracketsTarget(targets, w.MzStart+DefaultGuard, w.MzEnd-DefaultGuard) {
			t.Errorf("window %v-%v brackets no target", w.MzStart, w.MzEnd)
		}
		if len(w.EIC) > len(rts) {
			t.Errorf("window %v-%v: %d entries for %d retention times", w.MzStart, w.MzEnd, len(w.EIC), len(rts))
		}
		for i, e := range w.EIC {
			if e.Mz < w.MzStart || e.Mz >= w.MzEnd {
				t.Errorf("window %v-%v holds m/z %v", w.MzStart, w.MzEnd, e.Mz)
			}
			if i > 0 && e.RT <= w.EIC[i-1].RT {
				t.Errorf("window %v-%v: retention times not strictly increasing", w.MzStart, w.MzEnd)
			}
		}
	}
}

func TestSliceCoversEveryTarget(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	c := randomChannel(rng, 20)
	targets := make([]float64, 200)
	for i := range targets {
		targets[i] = 400.5 + rng.Float64()*9
	}
	sort.Float64s(targets)

	windows, err := Slice(context.Background(), c, targets, DefaultParams())
	if err != nil {
		t.Fatalf("Slice: error return %v", err)
	}
	for _, mz := range targets {
		covered := false
		for _, w := range windows {
			if w.MzStart+DefaultGuard < mz && mz < w.MzEnd-DefaultGuard {
				covered = true
				break
			}
		}
		if !covered {
			t.Errorf("target %v lies in no accepted window", mz)
		}
	}
}

func TestSliceParallel(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	c := randomChannel(rng, 10)
	targets := []float64{400.5, 402.25, 404.0, 406.75, 409.1}

	p := DefaultParams()
	seq, err := Slice(context.Background(), c, targets, p)
	if err != nil {
		t.Fatalf("Slice: error return %v", err)
	}
	p.Workers = 8
	par, err := Slice(context.Background(), c, targets, p)
	if err != nil {
		t.Fatalf("Slice: error return %v", err)
	}
	if diff := cmp.Diff(seq, par); diff != "" {
		t.Errorf("parallel slicing differs (-seq +par):\n%s", diff)
	}
}

func TestSliceCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Slice(ctx, singleScan(), []float64{500.0}, DefaultParams())
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Slice: error return %v, should be context.Canceled", err)
	}
}

func TestBuildEIC(t *testing.T) {
	dps := []DataPoint{
		{RT: 12, Mz: 500.001, I: 10},
		{RT: 10, Mz: 500.002, I: 5},
		{RT: 12, Mz: 500.003, I: 30},
		{RT: 10, Mz: 500.004, I: 5},
	}
	want := EIC{
		{RT: 10, Mz: 500.002, I: 5},
		{RT: 12, Mz: 500.003, I: 30},
	}
	if diff := cmp.Diff(want, buildEIC(dps)); diff != "" {
		t.Errorf("buildEIC mismatch (-want +got):\n%s", diff)
	}
}

func TestFlattenStable(t *testing.T) {
	c := &swath.Channel{Scans: []swath.Point{
		{RT: 1, Mz: []float64{300, 200}, I: []float64{1, 2}},
		{RT: 2, Mz: []float64{200}, I: []float64{3}},
	}}
	want := []DataPoint{{1, 200, 2}, {2, 200, 3}, {1, 300, 1}}
	if diff := cmp.Diff(want, Flatten(c)); diff != "" {
		t.Errorf("Flatten mismatch (-want +got):\n%s", diff)
	}
}

func TestRetentionTimes(t *testing.T) {
	c := &swath.Channel{Scans: []swath.Point{{RT: 3}, {RT: 1}, {RT: 3}, {RT: 2}}}
	if diff := cmp.Diff([]float64{1, 2, 3}, RetentionTimes(c)); diff != "" {
		t.Errorf("RetentionTimes mismatch (-want +got):\n%s", diff)
	}
}
