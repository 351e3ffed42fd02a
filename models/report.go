package models

import "time"

// RunSummary holds the outcome of one engine run for a site.
type RunSummary struct {
	Site           string
	StartPair      int
	StartRow       int
	PairsCompleted int
	PairsSkipped   int
	RowsScanned    int
	RowsMatched    int
	RowsMissing    int
	RowsRejected   int
	Completed      bool
	Elapsed        time.Duration
	Err            error
}

// Progress is reported once per processed row.
type Progress struct {
	Site          string
	FilePairIndex int
	TotalPairs    int
	RowIndex      int
	TotalRows     int
}

// Percent returns how much of the active candidate has been processed.
func (p Progress) Percent() float64 {
	if p.TotalRows == 0 {
		return 100
	}
	return float64(p.RowIndex) / float64(p.TotalRows) * 100
}
