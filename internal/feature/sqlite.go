package feature

import (
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/cespare/xxhash/v2"
	_ "github.com/mattn/go-sqlite3"

	"github.com/524D/diafeature/internal/ridge"
)

// Run describes the run a feature list was extracted from
type Run struct {
	Name        string
	Fingerprint uint64 // xxhash of the mzML file
	MS1Scans    int
}

// SQLiteStore writes feature lists to an SQLite database
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the feature database at path
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// Runs are saved from several goroutines; sqlite allows one writer
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db}
	if err := s.createTables(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id INTEGER PRIMARY KEY,
		name TEXT NOT NULL UNIQUE,
		fingerprint TEXT,
		ms1_scans INTEGER,
		created TEXT
	);

	CREATE TABLE IF NOT EXISTS features (
		run_id INTEGER REFERENCES runs(id),
		mz DOUBLE,
		rt DOUBLE,
		scale DOUBLE,
		coef DOUBLE,
		intensity DOUBLE,
		snr DOUBLE
	);

	CREATE INDEX IF NOT EXISTS features_run_mz ON features (run_id, mz);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create tables: %w", err)
	}
	return nil
}

// SaveRun stores the features of a run in one transaction, replacing
// any features stored earlier under the same run name
func (s *SQLiteStore) SaveRun(run Run, peaks []ridge.Peak) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM features WHERE run_id IN (SELECT id FROM runs WHERE name = ?)`, run.Name); err != nil {
		return fmt.Errorf("failed to delete old features: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM runs WHERE name = ?`, run.Name); err != nil {
		return fmt.Errorf("failed to delete old run: %w", err)
	}
	res, err := tx.Exec(`INSERT INTO runs (name, fingerprint, ms1_scans, created) VALUES (?, ?, ?, ?)`,
		run.Name, fmt.Sprintf("%016x", run.Fingerprint), run.MS1Scans, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}
	runID, err := res.LastInsertId()
	if err != nil {
		return err
	}

	stmt, err := tx.Prepare(`INSERT INTO features (run_id, mz, rt, scale, coef, intensity, snr) VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare feature statement: %w", err)
	}
	defer stmt.Close()
	for _, p := range peaks {
		if _, err := stmt.Exec(runID, p.Mz, p.RT, p.Scale, p.Coef, p.Intensity, p.SNR); err != nil {
			return fmt.Errorf("failed to insert feature: %w", err)
		}
	}
	return tx.Commit()
}

// Run returns the stored run with the given name. ok is false when no
// such run is stored.
func (s *SQLiteStore) Run(name string) (run Run, ok bool, err error) {
	var fp string
	err = s.db.QueryRow(`SELECT name, fingerprint, ms1_scans FROM runs WHERE name = ?`, name).
		Scan(&run.Name, &fp, &run.MS1Scans)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, false, nil
	}
	if err != nil {
		return Run{}, false, err
	}
	if _, err := fmt.Sscanf(fp, "%x", &run.Fingerprint); err != nil {
		return Run{}, false, fmt.Errorf("run %s: bad fingerprint %q: %w", name, fp, err)
	}
	return run, true, nil
}

// Features returns the stored features of a run in m/z order
func (s *SQLiteStore) Features(name string) ([]ridge.Peak, error) {
	rows, err := s.db.Query(`
		SELECT f.mz, f.rt, f.scale, f.coef, f.intensity, f.snr
		FROM features f JOIN runs r ON f.run_id = r.id
		WHERE r.name = ?
		ORDER BY f.mz, f.rowid`, name)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var peaks []ridge.Peak
	for rows.Next() {
		var p ridge.Peak
		if err := rows.Scan(&p.Mz, &p.RT, &p.Scale, &p.Coef, &p.Intensity, &p.SNR); err != nil {
			return nil, err
		}
		peaks = append(peaks, p)
	}
	return peaks, rows.Err()
}

// Close closes the database
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Fingerprint returns the xxhash of the file at path
func Fingerprint(path string) (uint64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	h := xxhash.New()
	if _, err := io.Copy(h, f); err != nil {
		return 0, err
	}
	return h.Sum64(), nil
}
