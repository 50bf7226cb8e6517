package feature

import (
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/cespare/xxhash/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/524D/diafeature/internal/ridge"
)

func TestDedupCluster(t *testing.T) {
	peaks := []ridge.Peak{
		{Mz: 500.004, RT: 101, Scale: 2, Coef: 9},
		{Mz: 500.000, RT: 100, Scale: 2, Coef: 5},
		{Mz: 500.008, RT: 150, Scale: 2, Coef: 20}, // no rt overlap
		{Mz: 500.020, RT: 100, Scale: 2, Coef: 30}, // too far in m/z
	}
	got := Dedup(peaks, DefaultMzTol)
	want := []ridge.Peak{peaks[0], peaks[2], peaks[3]}
	assert.Equal(t, want, got)
}

func TestDedupTieKeepsSeed(t *testing.T) {
	peaks := []ridge.Peak{
		{Mz: 400.001, RT: 50, Scale: 1, Coef: 7},
		{Mz: 400.000, RT: 50, Scale: 1, Coef: 7},
	}
	got := Dedup(peaks, DefaultMzTol)
	require.Len(t, got, 1)
	assert.Equal(t, 400.000, got[0].Mz)
}

func TestDedupRemovedPeakIsNoSeed(t *testing.T) {
	// b is removed by a; b would otherwise have removed c
	peaks := []ridge.Peak{
		{Mz: 300.000, RT: 10, Scale: 1, Coef: 10}, // a
		{Mz: 300.005, RT: 11, Scale: 1, Coef: 5},  // b
		{Mz: 300.012, RT: 12, Scale: 1, Coef: 1},  // c, beyond a's reach
	}
	got := Dedup(peaks, DefaultMzTol)
	assert.Equal(t, []ridge.Peak{peaks[0], peaks[2]}, got)
}

func TestDedupDoesNotModifyInput(t *testing.T) {
	peaks := []ridge.Peak{{Mz: 2, Coef: 1, Scale: 1}, {Mz: 1, Coef: 2, Scale: 1}}
	Dedup(peaks, DefaultMzTol)
	assert.Equal(t, 2.0, peaks[0].Mz)
}

func randomPeaks(rng *rand.Rand, n int) []ridge.Peak {
	peaks := make([]ridge.Peak, n)
	for i := range peaks {
		peaks[i] = ridge.Peak{
			Mz:    500 + rng.Float64()*0.2,
			RT:    rng.Float64() * 100,
			Scale: 0.5 + rng.Float64()*4,
			Coef:  rng.Float64() * 100,
		}
	}
	return peaks
}

func TestDedupProperties(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	for round := 0; round < 20; round++ {
		kept := Dedup(randomPeaks(rng, 300), DefaultMzTol)
		for i := range kept {
			for j := i + 1; j < len(kept); j++ {
				a, b := kept[i], kept[j]
				if b.Mz < a.Mz+DefaultMzTol && overlaps(a, b) {
					t.Fatalf("round %d: surviving peaks %+v and %+v overlap", round, a, b)
				}
			}
			if i > 0 && kept[i].Less(kept[i-1]) {
				t.Fatalf("round %d: result not in m/z order", round)
			}
		}
		assert.Equal(t, kept, Dedup(kept, DefaultMzTol), "round %d: dedup not idempotent", round)
	}
}

func TestWriteFeatures(t *testing.T) {
	var sb strings.Builder
	peaks := []ridge.Peak{{Mz: 500.0, RT: 10.5, Scale: 2, Coef: 123.25, Intensity: 100, SNR: 4.5}}
	require.NoError(t, WriteFeatures(&sb, peaks))
	assert.Equal(t, "MS1\n500.0\t10.5\t2.0\t123.25\t100.0\t4.5\n", sb.String())
}

func TestSQLiteStore(t *testing.T) {
	dir := t.TempDir()
	store, err := OpenSQLite(filepath.Join(dir, "features.db"))
	require.NoError(t, err)
	defer store.Close()

	peaks := []ridge.Peak{
		{Mz: 500.0, RT: 10, Scale: 2, Coef: 5, Intensity: 100, SNR: 4},
		{Mz: 600.0, RT: 20, Scale: 1, Coef: 3, Intensity: 50, SNR: 3.5},
	}
	require.NoError(t, store.SaveRun(Run{Name: "run1", Fingerprint: 42, MS1Scans: 7}, peaks))
	require.NoError(t, store.SaveRun(Run{Name: "run2"}, peaks[:1]))

	got, err := store.Features("run1")
	require.NoError(t, err)
	assert.Equal(t, peaks, got)

	run, ok, err := store.Run("run1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, Run{Name: "run1", Fingerprint: 42, MS1Scans: 7}, run)
	_, ok, err = store.Run("run3")
	require.NoError(t, err)
	assert.False(t, ok)

	// Saving a run again replaces its features
	require.NoError(t, store.SaveRun(Run{Name: "run1"}, peaks[1:]))
	got, err = store.Features("run1")
	require.NoError(t, err)
	assert.Equal(t, peaks[1:], got)

	got, err = store.Features("run2")
	require.NoError(t, err)
	assert.Equal(t, peaks[:1], got)

	var runs int
	require.NoError(t, store.db.QueryRow(`SELECT COUNT(*) FROM runs`).Scan(&runs))
	assert.Equal(t, 2, runs)
}

func TestFingerprint(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.mzML")
	data := []byte("<mzML/>")
	require.NoError(t, os.WriteFile(path, data, 0o644))
	fp, err := Fingerprint(path)
	require.NoError(t, err)
	assert.Equal(t, xxhash.Sum64(data), fp)
}
