package storage

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// snapshotDirLayout is the name format of a capture-date directory. Day and
// month may be one or two digits.
const snapshotDirLayout = "2-1-2006"

// DirSource discovers snapshots under a root directory laid out as
// <root>/.../<D-M-YYYY>/<site>*.csv.
type DirSource struct {
	Root string
}

// Snapshots walks Root and returns every CSV file prefixed by site that sits
// in a directory named after a date, sorted by that date ascending. Files of
// the same date are ordered by path.
func (d DirSource) Snapshots(site string) ([]string, error) {
	type dated struct {
		path string
		date time.Time
	}
	var found []dated

	err := filepath.WalkDir(d.Root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() {
			return nil
		}

		name := entry.Name()
		if !strings.HasPrefix(name, site) || !strings.HasSuffix(name, ".csv") {
			return nil
		}

		date, perr := time.Parse(snapshotDirLayout, filepath.Base(filepath.Dir(path)))
		if perr != nil {
			return nil
		}
		found = append(found, dated{path: path, date: date})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("discovery: walk %q: %w", d.Root, err)
	}

	sort.SliceStable(found, func(i, j int) bool {
		if !found[i].date.Equal(found[j].date) {
			return found[i].date.Before(found[j].date)
		}
		return found[i].path < found[j].path
	})

	paths := make([]string, len(found))
	for i, f := range found {
		paths[i] = f.path
	}
	return paths, nil
}
