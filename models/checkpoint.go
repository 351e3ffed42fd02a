package models

// Checkpoint records how far reconciliation of one site has progressed.
// It is a value type: the With* methods return modified copies and the
// original is never mutated, so every save writes a complete record.
//
// FilePairIndex is 0-based and names the pair (Files[i], Files[i+1]). It is
// stored as "file_pair_index", not as the 1-based candidate index
// "last_file_index" of older logs, which are not read.
type Checkpoint struct {
	Files         []string `json:"files"`
	TotalFiles    int      `json:"total_files"`
	FilePairIndex int      `json:"file_pair_index"`
	RowIndex      int      `json:"last_row_index"`

	// MissingBase is the missing dataset's row count when the active pair
	// began. Candidate extension only uses rows below it.
	MissingBase int `json:"missing_rows_at_pair_start"`
}

// NewCheckpoint returns a checkpoint positioned at the first pair.
func NewCheckpoint(files []string) Checkpoint {
	cp := make([]string, len(files))
	copy(cp, files)
	return Checkpoint{Files: cp, TotalFiles: len(cp)}
}

func (c Checkpoint) WithRowIndex(i int) Checkpoint {
	c.Files = c.files()
	c.RowIndex = i
	return c
}

func (c Checkpoint) WithFilePairIndex(i int) Checkpoint {
	c.Files = c.files()
	c.FilePairIndex = i
	return c
}

func (c Checkpoint) WithMissingBase(n int) Checkpoint {
	c.Files = c.files()
	c.MissingBase = n
	return c
}

// Exhausted reports whether no further file pair exists.
func (c Checkpoint) Exhausted() bool {
	return c.FilePairIndex < 0 || c.FilePairIndex+1 >= len(c.Files)
}

// Pair returns the reference and candidate identifiers for the active pair.
// It must not be called on an exhausted checkpoint.
func (c Checkpoint) Pair() (reference, candidate string) {
	return c.Files[c.FilePairIndex], c.Files[c.FilePairIndex+1]
}

// SameFiles reports whether files matches the recorded file order exactly.
func (c Checkpoint) SameFiles(files []string) bool {
	if len(files) != len(c.Files) || c.TotalFiles != len(c.Files) {
		return false
	}
	for i := range files {
		if files[i] != c.Files[i] {
			return false
		}
	}
	return true
}

func (c Checkpoint) files() []string {
	cp := make([]string, len(c.Files))
	copy(cp, c.Files)
	return cp
}
