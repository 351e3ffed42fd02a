package storage

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"pricing-recovery/models"
)

// ErrSnapshotAbsent is returned when a snapshot file does not exist.
var ErrSnapshotAbsent = errors.New("storage: snapshot absent")

// ReadError reports a snapshot that exists but cannot be read.
type ReadError struct {
	Path string
	Err  error
}

func (e *ReadError) Error() string { return fmt.Sprintf("storage: read %q: %v", e.Path, e.Err) }

func (e *ReadError) Unwrap() error { return e.Err }

// ParseError reports a snapshot whose content is not a valid table.
type ParseError struct {
	Path string
	Err  error
}

func (e *ParseError) Error() string { return fmt.Sprintf("storage: parse %q: %v", e.Path, e.Err) }

func (e *ParseError) Unwrap() error { return e.Err }

// CSVSnapshotLoader loads snapshots from CSV files whose identifier is the
// file path.
type CSVSnapshotLoader struct{}

func (CSVSnapshotLoader) Load(id string) (*models.Snapshot, error) {
	return ReadSnapshot(id)
}

// ReadSnapshot reads a CSV file with a header row into a Snapshot.
func ReadSnapshot(path string) (*models.Snapshot, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrSnapshotAbsent, path)
		}
		return nil, &ReadError{Path: path, Err: err}
	}
	defer f.Close()

	return readTable(path, f)
}

func readTable(path string, r io.Reader) (*models.Snapshot, error) {
	cr := csv.NewReader(r)

	headers, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, &ParseError{Path: path, Err: errors.New("no header row")}
		}
		return nil, classifyReadErr(path, err)
	}
	headers = append([]string(nil), headers...)
	if len(headers) > 0 {
		headers[0] = trimBOM(headers[0])
	}

	snap := &models.Snapshot{ID: path, Headers: headers}
	for {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, classifyReadErr(path, err)
		}

		row := make(models.Offer, len(headers))
		for i, h := range headers {
			row[h] = record[i]
		}
		snap.Rows = append(snap.Rows, row)
	}
	return snap, nil
}

func classifyReadErr(path string, err error) error {
	var perr *csv.ParseError
	if errors.As(err, &perr) {
		return &ParseError{Path: path, Err: err}
	}
	return &ReadError{Path: path, Err: err}
}

func trimBOM(s string) string {
	const bom = "\ufeff"
	if len(s) >= len(bom) && s[:len(bom)] == bom {
		return s[len(bom):]
	}
	return s
}
