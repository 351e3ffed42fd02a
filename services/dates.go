package services

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
	"unicode"

	"pricing-recovery/config"
	"pricing-recovery/models"
)

// ErrNoDate is returned when a date field is empty or not a recognised date.
var ErrNoDate = errors.New("no date")

// dateLayouts are tried in order by ParseDate.
// Day and month accept one or two digits.
var dateLayouts = []string{
	"2006-1-2 15:04:05",
	"2006-1-2",
	"2-1-2006",
	"2/1/2006",
}

// canonicalLayout is the output format of ShiftDate.
const canonicalLayout = "02/01/2006"

// ParseDate parses text with the first matching layout. Empty text and text
// containing letters (placeholders such as "N/A") yield ok == false; the ISO
// "T" between date and time is the only letter accepted.
func ParseDate(text string) (time.Time, bool) {
	text = isoSeparator(strings.TrimSpace(text))
	if text == "" || strings.IndexFunc(text, unicode.IsLetter) >= 0 {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, text); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// isoSeparator replaces a "T" standing between two digits with a space.
func isoSeparator(text string) string {
	i := strings.IndexByte(text, 'T')
	if i <= 0 || i+1 >= len(text) || !isDigit(text[i-1]) || !isDigit(text[i+1]) {
		return text
	}
	return text[:i] + " " + text[i+1:]
}

func isDigit(b byte) bool { return b >= '0' && b <= '9' }

// IntervalDays returns the inclusive number of days from start to end.
func IntervalDays(start, end string) (int, error) {
	s, ok := ParseDate(start)
	if !ok {
		return 0, fmt.Errorf("interval start %q: %w", start, ErrNoDate)
	}
	e, ok := ParseDate(end)
	if !ok {
		return 0, fmt.Errorf("interval end %q: %w", end, ErrNoDate)
	}
	days := math.Floor(e.Sub(s).Hours() / 24)
	return int(days) + 1, nil
}

// ShiftDate moves text forward by days and formats it as DD/MM/YYYY,
// whatever layout the input used.
func ShiftDate(text string, days int) (string, error) {
	t, ok := ParseDate(text)
	if !ok {
		return "", fmt.Errorf("shift %q: %w", text, ErrNoDate)
	}
	return t.AddDate(0, 0, days).Format(canonicalLayout), nil
}

// NormalizeMissing prepares a missing offer for the missing dataset. The
// price date and stay start are shifted forward by the row's own stay length
// and the weekday counter is incremented. The input row is not modified.
func NormalizeMissing(row models.Offer, fields config.SiteFields) (models.Offer, error) {
	interval, err := IntervalDays(row[fields.StayStart], row[fields.StayEnd])
	if err != nil {
		return nil, err
	}

	priceDate, err := ShiftDate(row[fields.PriceDate], interval)
	if err != nil {
		return nil, err
	}
	stayStart, err := ShiftDate(row[fields.StayStart], interval)
	if err != nil {
		return nil, err
	}
	weekday, err := incrementCounter(row[fields.Weekday])
	if err != nil {
		return nil, fmt.Errorf("weekday %q: %w", row[fields.Weekday], err)
	}

	out := row.Clone()
	out[fields.PriceDate] = priceDate
	out[fields.StayStart] = stayStart
	out[fields.Weekday] = weekday
	return out, nil
}

// incrementCounter adds one to a numeric cell. Whole values are written
// back without a decimal part ("3.0" becomes "4").
func incrementCounter(text string) (string, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(text), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return "", errors.New("not a number")
	}
	v++
	if v == math.Trunc(v) && math.Abs(v) < 1<<53 {
		return strconv.FormatInt(int64(v), 10), nil
	}
	return strconv.FormatFloat(v, 'f', -1, 64), nil
}
