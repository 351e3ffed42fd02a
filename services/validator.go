package services

import (
	"errors"
	"fmt"

	"pricing-recovery/config"
	"pricing-recovery/models"
)

// ErrInvalidRow is returned for rows reconciliation cannot handle.
var ErrInvalidRow = errors.New("invalid row")

// Validator checks that a row carries every column reconciliation reads:
// the identity fields and the date fields used for normalization. Values are
// not inspected.
type Validator struct {
	required []string
}

// NewValidator creates a Validator for the given site fields.
func NewValidator(fields config.SiteFields) *Validator {
	required := make([]string, 0, len(fields.Identity)+4)
	seen := make(map[string]struct{})
	for _, f := range append(append([]string(nil), fields.Identity...),
		fields.PriceDate, fields.StayStart, fields.StayEnd, fields.Weekday) {
		if _, dup := seen[f]; dup || f == "" {
			continue
		}
		seen[f] = struct{}{}
		required = append(required, f)
	}
	return &Validator{required: required}
}

// Check returns ErrInvalidRow when a required column is absent.
func (v *Validator) Check(row models.Offer) error {
	for _, f := range v.required {
		if _, ok := row[f]; !ok {
			return fmt.Errorf("%w: column %q absent", ErrInvalidRow, f)
		}
	}
	return nil
}

// CheckHeaders reports the required columns missing from a snapshot header.
func (v *Validator) CheckHeaders(headers []string) []string {
	have := make(map[string]struct{}, len(headers))
	for _, h := range headers {
		have[h] = struct{}{}
	}
	var missing []string
	for _, f := range v.required {
		if _, ok := have[f]; !ok {
			missing = append(missing, f)
		}
	}
	return missing
}
