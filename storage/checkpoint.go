package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"pricing-recovery/models"
)

// ErrStaleCheckpoint is returned when the snapshot files on disk no longer
// match the file list a checkpoint was created with.
var ErrStaleCheckpoint = errors.New("storage: stale checkpoint")

// ErrCorruptCheckpoint is returned when the checkpoint file cannot be decoded
// or holds out-of-range positions.
var ErrCorruptCheckpoint = errors.New("storage: corrupt checkpoint")

// FileCheckpointStore keeps one site's checkpoint as an indented JSON file.
type FileCheckpointStore struct {
	path       string
	site       string
	source     SnapshotSource
	descending bool
}

// NewFileCheckpointStore returns a store for site at path. source is asked
// for the snapshot list when no checkpoint exists yet and to validate an
// existing one. When descending is set the ascending discovery order is
// reversed before being recorded.
func NewFileCheckpointStore(path, site string, source SnapshotSource, descending bool) *FileCheckpointStore {
	return &FileCheckpointStore{path: path, site: site, source: source, descending: descending}
}

// Path returns the checkpoint file path.
func (s *FileCheckpointStore) Path() string { return s.path }

// Load returns the persisted checkpoint, or creates and persists a fresh one
// positioned at the first pair.
func (s *FileCheckpointStore) Load() (models.Checkpoint, error) {
	files, err := s.orderedFiles()
	if err != nil {
		return models.Checkpoint{}, err
	}

	cp, err := s.Peek()
	if errors.Is(err, fs.ErrNotExist) {
		fresh := models.NewCheckpoint(files)
		if err := s.Save(fresh); err != nil {
			return models.Checkpoint{}, err
		}
		return fresh, nil
	}
	if err != nil {
		return models.Checkpoint{}, err
	}

	if !cp.SameFiles(files) {
		return models.Checkpoint{}, fmt.Errorf("%w: %s records %d files, %d found on disk",
			ErrStaleCheckpoint, s.path, cp.TotalFiles, len(files))
	}
	return cp, nil
}

// Peek reads the persisted checkpoint without creating or validating it.
// A missing file yields an error wrapping fs.ErrNotExist.
func (s *FileCheckpointStore) Peek() (models.Checkpoint, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return models.Checkpoint{}, fmt.Errorf("checkpoint: read %q: %w", s.path, err)
	}

	var cp models.Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return models.Checkpoint{}, fmt.Errorf("%w: %s: %v", ErrCorruptCheckpoint, s.path, err)
	}
	if cp.FilePairIndex < 0 || cp.RowIndex < 0 || cp.MissingBase < 0 {
		return models.Checkpoint{}, fmt.Errorf("%w: %s: negative position", ErrCorruptCheckpoint, s.path)
	}
	return cp, nil
}

// Save replaces the whole checkpoint file. The record is written to a
// temporary file and renamed over the old one, so readers only ever see a
// complete checkpoint.
func (s *FileCheckpointStore) Save(cp models.Checkpoint) error {
	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return fmt.Errorf("checkpoint: encode: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("checkpoint: create dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".log-*.json")
	if err != nil {
		return fmt.Errorf("checkpoint: create temp: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("checkpoint: write: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("checkpoint: sync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("checkpoint: close: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("checkpoint: replace %q: %w", s.path, err)
	}
	return nil
}

func (s *FileCheckpointStore) orderedFiles() ([]string, error) {
	files, err := s.source.Snapshots(s.site)
	if err != nil {
		return nil, err
	}
	if s.descending {
		for i, j := 0, len(files)-1; i < j; i, j = i+1, j-1 {
			files[i], files[j] = files[j], files[i]
		}
	}
	return files, nil
}
