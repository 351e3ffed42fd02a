package models

import "strings"

// Offer is one row of a snapshot or of the missing dataset, keyed by column
// name. Column order lives in the snapshot header or the site schema.
type Offer map[string]string

// Clone returns an independent copy of the row.
func (o Offer) Clone() Offer {
	c := make(Offer, len(o))
	for k, v := range o {
		c[k] = v
	}
	return c
}

// Values returns the row's cells in the given column order. Absent columns
// become empty cells.
func (o Offer) Values(columns []string) []string {
	out := make([]string, len(columns))
	for i, col := range columns {
		out[i] = o[col]
	}
	return out
}

// IdentityKey joins the identity fields into a single comparable key.
// Two rows match when their keys are equal.
func (o Offer) IdentityKey(fields []string) string {
	var b strings.Builder
	for i, f := range fields {
		if i > 0 {
			b.WriteByte('\x1f')
		}
		b.WriteString(o[f])
	}
	return b.String()
}

// Snapshot is an immutable capture of offers under one calendar date.
type Snapshot struct {
	ID      string
	Headers []string
	Rows    []Offer
}

// Len returns the number of rows.
func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Rows)
}
