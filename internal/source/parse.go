package source

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// numericRe accepts plain and exponent notation.
var numericRe = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)([eE][+-]?\d+)?$`)

// groupedRe accepts thousands-grouped numbers such as 1,250,000.50.
var groupedRe = regexp.MustCompile(`^[+-]?\d{1,3}(,\d{3})+(\.\d*)?$`)

// leadingZeroRe matches identifiers like 00123 that must stay text.
var leadingZeroRe = regexp.MustCompile(`^[+-]?0\d`)

// TwoDigitYearPivot defines how 2-digit years are interpreted: years that
// would land more than this many years in the future are moved back a century.
var TwoDigitYearPivot = 20

var (
	// 2-digit year layouts - require pivot year adjustment
	twoDigitYearLayouts = []string{
		"1/2/06", "01/02/06", "1-2-06", "01-02-06", "2-Jan-06", "1/2/06 15:04", "01-02-06 15:04",
	}
	// 4-digit year layouts - no adjustment needed
	fourDigitYearLayouts = []string{
		"2006-01-02", "2006/01/02", "2006.01.02", "20060102",
		"1/2/2006", "01/02/2006", "1-2-2006", "01-02-2006",
		"Jan 2, 2006", "2 Jan 2006", "2-Jan-2006", "January 2, 2006",
	}
	// timestamp layouts carry a time of day
	timestampLayouts = []string{
		time.RFC3339, "2006-01-02T15:04:05", "2006-01-02 15:04:05", "2006-01-02 15:04",
		"1/2/2006 15:04:05", "1/2/2006 15:04", "01/02/2006 15:04:05",
	}
)

// parseNumber parses s as a float64, accepting a leading "$", thousands
// separators and a trailing "%" (scaled by 1/100). Zero-padded integers are
// rejected so identifiers keep their text.
func parseNumber(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	percent := strings.HasSuffix(s, "%")
	if percent {
		s = strings.TrimSpace(strings.TrimSuffix(s, "%"))
	}
	neg := false
	if strings.HasPrefix(s, "-$") {
		neg, s = true, s[2:]
	} else {
		s = strings.TrimPrefix(s, "$")
	}
	if groupedRe.MatchString(s) {
		s = strings.ReplaceAll(s, ",", "")
	}
	if !numericRe.MatchString(s) || leadingZeroRe.MatchString(s) {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	if neg {
		f = -f
	}
	if percent {
		f /= 100
	}
	return f, true
}

// parseDate parses s as a date or timestamp. hasTime is true when the value
// carries a non-midnight time of day.
func parseDate(s string) (t time.Time, hasTime bool, ok bool) {
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, !isMidnight(t), true
		}
	}
	for _, layout := range fourDigitYearLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, false, true
		}
	}
	for _, layout := range twoDigitYearLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			t = adjustTwoDigitYear(t, time.Now())
			return t, !isMidnight(t), true
		}
	}
	return time.Time{}, false, false
}

// adjustTwoDigitYear moves t back a century when it lands more than
// TwoDigitYearPivot years after now.
func adjustTwoDigitYear(t, now time.Time) time.Time {
	if t.Year() > now.Year()+TwoDigitYearPivot {
		return t.AddDate(-100, 0, 0)
	}
	if t.Year() < now.Year()+TwoDigitYearPivot-100 {
		return t.AddDate(100, 0, 0)
	}
	return t
}

func isMidnight(t time.Time) bool {
	return t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0 && t.Nanosecond() == 0
}
