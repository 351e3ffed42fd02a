package storage

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"pricing-recovery/models"
	"pricing-recovery/utils"
)

// MissingCSV is the append-only missing dataset of one site, stored as a
// CSV file with a header row. It is safe for concurrent use.
type MissingCSV struct {
	mu      sync.Mutex
	path    string
	logger  *utils.Logger
	columns []string
	rows    int
}

// NewMissingCSV returns a MissingCSV for the file at path. Nothing is
// touched on disk until EnsureCreated. logger may be nil.
func NewMissingCSV(path string, logger *utils.Logger) *MissingCSV {
	return &MissingCSV{path: path, logger: logger}
}

// Path returns the dataset file path.
func (m *MissingCSV) Path() string { return m.path }

// EnsureCreated creates the file with the given header if it does not exist.
// An existing file keeps its header, which then defines the append column
// order; a header that differs from columns is logged at WARN.
// Intermediate directories are created automatically.
func (m *MissingCSV) EnsureCreated(columns []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, err := ReadSnapshot(m.path)
	switch {
	case err == nil:
		if m.logger != nil && !slices.Equal(existing.Headers, columns) {
			m.logger.Warn("[csv] %s header %v differs from configured columns %v, appending in file order",
				m.path, existing.Headers, columns)
		}
		m.columns = existing.Headers
		m.rows = existing.Len()
		return nil
	case !errors.Is(err, ErrSnapshotAbsent):
		return fmt.Errorf("csv: open missing dataset: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(m.path), 0755); err != nil {
		return fmt.Errorf("csv: create output dir: %w", err)
	}

	f, err := os.OpenFile(m.path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return fmt.Errorf("csv: create file %q: %w", m.path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(columns); err != nil {
		return fmt.Errorf("csv: write header: %w", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("csv: write header: %w", err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("csv: sync: %w", err)
	}

	m.columns = append([]string(nil), columns...)
	m.rows = 0
	return nil
}

// Append writes rows at the end of the file in insertion order. The data is
// synced before returning so a following checkpoint save never runs ahead of
// the dataset.
func (m *MissingCSV) Append(rows []models.Offer) error {
	if len(rows) == 0 {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.columns == nil {
		return fmt.Errorf("csv: append before EnsureCreated on %q", m.path)
	}

	f, err := os.OpenFile(m.path, os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("csv: missing dataset removed: %w", err)
		}
		return fmt.Errorf("csv: open %q: %w", m.path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	for _, r := range rows {
		if err := w.Write(r.Values(m.columns)); err != nil {
			return fmt.Errorf("csv: write row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("csv: flush: %w", err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("csv: sync: %w", err)
	}

	m.rows += len(rows)
	return nil
}

// Load reads the whole dataset back.
func (m *MissingCSV) Load() (*models.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return ReadSnapshot(m.path)
}

// Rows returns the number of data rows currently in the file.
func (m *MissingCSV) Rows() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rows
}

// Close is a no-op; every Append opens and syncs the file itself.
func (m *MissingCSV) Close() error { return nil }
