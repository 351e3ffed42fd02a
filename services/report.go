package services

import (
	"fmt"
	"io"
	"strings"

	"pricing-recovery/models"
	"pricing-recovery/utils"
)

type ReportService struct {
	logger *utils.Logger
}

func NewReportService(logger *utils.Logger) *ReportService {
	return &ReportService{logger: logger}
}

// Totals sums the row counters of several site runs.
func (s *ReportService) Totals(summaries []*models.RunSummary) models.RunSummary {
	var t models.RunSummary
	t.Site = "total"
	t.Completed = len(summaries) > 0
	for _, r := range summaries {
		t.PairsCompleted += r.PairsCompleted
		t.PairsSkipped += r.PairsSkipped
		t.RowsScanned += r.RowsScanned
		t.RowsMatched += r.RowsMatched
		t.RowsMissing += r.RowsMissing
		t.RowsRejected += r.RowsRejected
		if r.Elapsed > t.Elapsed {
			t.Elapsed = r.Elapsed
		}
		if !r.Completed {
			t.Completed = false
		}
	}
	return t
}

// Print writes a per-site table of run summaries.
func (s *ReportService) Print(w io.Writer, summaries []*models.RunSummary) {
	sep := strings.Repeat("═", 78)
	thin := strings.Repeat("─", 76)

	fmt.Fprintf(w, "\n%s\n", sep)
	fmt.Fprintf(w, "  MISSING OFFER RECOVERY\n")
	fmt.Fprintf(w, "%s\n", sep)
	fmt.Fprintf(w, "  %-12s %6s %6s %8s %8s %8s %8s  %s\n",
		"site", "pairs", "skip", "scanned", "matched", "missing", "rejected", "status")
	fmt.Fprintf(w, "  %s\n", thin)

	for _, r := range summaries {
		s.printRow(w, r)
	}
	if len(summaries) > 1 {
		t := s.Totals(summaries)
		fmt.Fprintf(w, "  %s\n", thin)
		s.printRow(w, &t)
	}
	fmt.Fprintf(w, "%s\n\n", sep)
}

func (s *ReportService) printRow(w io.Writer, r *models.RunSummary) {
	fmt.Fprintf(w, "  %-12s %6d %6d %8d %8d %8d %8d  %s\n",
		truncate(r.Site, 12), r.PairsCompleted, r.PairsSkipped, r.RowsScanned,
		r.RowsMatched, r.RowsMissing, r.RowsRejected, status(r))
}

// PrintCheckpoint writes where a site's reconciliation currently stands.
func (s *ReportService) PrintCheckpoint(w io.Writer, site string, cp models.Checkpoint, missingRows int) {
	fmt.Fprintf(w, "  Site          : %s\n", site)
	fmt.Fprintf(w, "  Snapshots     : %d\n", cp.TotalFiles)
	if cp.Exhausted() {
		fmt.Fprintf(w, "  Position      : complete\n")
	} else {
		ref, cand := cp.Pair()
		fmt.Fprintf(w, "  Position      : pair %d/%d, row %d\n", cp.FilePairIndex+1, pairCount(cp), cp.RowIndex)
		fmt.Fprintf(w, "  Reference     : %s\n", ref)
		fmt.Fprintf(w, "  Candidate     : %s\n", cand)
	}
	fmt.Fprintf(w, "  Missing rows  : %d\n", missingRows)
}

func status(r *models.RunSummary) string {
	switch {
	case r.Err != nil:
		return "error: " + truncate(r.Err.Error(), 40)
	case r.Completed:
		return "complete"
	default:
		return "interrupted"
	}
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
