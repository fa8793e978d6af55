package dates

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"
)

// Instant is a point in time expressed as epoch milliseconds.
type Instant int64

// Unparsed is returned when a date string could not be understood.
const Unparsed Instant = 0

// ErrInvalidTarget is returned by ParseTarget for input no layout accepts.
var ErrInvalidTarget = errors.New("invalid target date")

// FromTime converts t to an Instant.
func FromTime(t time.Time) Instant {
	return Instant(t.UnixMilli())
}

// Time converts the instant back to a time in loc (nil means time.Local).
func (i Instant) Time(loc *time.Location) time.Time {
	if loc == nil {
		loc = time.Local
	}
	return time.UnixMilli(int64(i)).In(loc)
}

// Distance returns |i - other| in milliseconds.
func (i Instant) Distance(other Instant) int64 {
	d := int64(i - other)
	if d < 0 {
		return -d
	}
	return d
}

// Months maps the Czech genitive month names used by the boards to time.Month.
var Months = map[string]time.Month{
	"ledna":     time.January,
	"února":     time.February,
	"března":    time.March,
	"dubna":     time.April,
	"května":    time.May,
	"června":    time.June,
	"července":  time.July,
	"srpna":     time.August,
	"září":      time.September,
	"října":     time.October,
	"listopadu": time.November,
	"prosince":  time.December,
}

var (
	localizedRe = regexp.MustCompile(`(\d+)\.\s*(\p{L}+)\s+(\d{4})(?:\s*,?\s*(\d{1,2}:\d{2}(?::\d{2})?))?`)
	compactRe   = regexp.MustCompile(`[?&]f=(\d{4})(\d{2})(\d{2})-(\d{2})(\d{2})(\d{2})`)
)

// ParseLocalizedDate parses text of the form "12. ledna 2023, 14:05[:09]".
// It returns Unparsed when the day, month or year cannot be extracted or the
// month name is unknown. Calendar fields are interpreted in loc.
func ParseLocalizedDate(text string, loc *time.Location) Instant {
	if loc == nil {
		loc = time.Local
	}

	m := localizedRe.FindStringSubmatch(norm.NFC.String(text))
	if m == nil {
		return Unparsed
	}

	day, err := strconv.Atoi(m[1])
	if err != nil {
		return Unparsed
	}
	month, ok := Months[strings.ToLower(m[2])]
	if !ok {
		return Unparsed
	}
	year, err := strconv.Atoi(m[3])
	if err != nil {
		return Unparsed
	}

	var clock [3]int
	if m[4] != "" {
		for i, part := range strings.Split(m[4], ":") {
			// the pattern guarantees digits
			clock[i], _ = strconv.Atoi(part)
		}
	}

	return FromTime(time.Date(year, month, day, clock[0], clock[1], clock[2], 0, loc))
}

// ParseURLInstant extracts the compact YYYYMMDD-HHMMSS timestamp carried in the
// "f" query parameter of pager links.
func ParseURLInstant(rawURL string, loc *time.Location) (Instant, bool) {
	if loc == nil {
		loc = time.Local
	}

	m := compactRe.FindStringSubmatch(rawURL)
	if m == nil {
		return Unparsed, false
	}

	var f [6]int
	for i := range f {
		f[i], _ = strconv.Atoi(m[i+1])
	}

	t := time.Date(f[0], time.Month(f[1]), f[2], f[3], f[4], f[5], 0, loc)
	return FromTime(t), true
}

var targetLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02T15:04:05",
	"2.1.2006",
	"2. 1. 2006",
}

// ParseTarget parses a user supplied target date. ISO-like layouts and the
// board's own localized format are accepted; RFC 3339 input keeps its offset,
// everything else is read as local calendar time in loc.
func ParseTarget(input string, loc *time.Location) (Instant, error) {
	if loc == nil {
		loc = time.Local
	}

	input = strings.TrimSpace(input)
	if input == "" {
		return Unparsed, ErrInvalidTarget
	}

	if t, err := time.Parse(time.RFC3339, input); err == nil {
		return FromTime(t), nil
	}
	for _, layout := range targetLayouts {
		if t, err := time.ParseInLocation(layout, input, loc); err == nil {
			return FromTime(t), nil
		}
	}
	if ts := ParseLocalizedDate(input, loc); ts != Unparsed {
		return ts, nil
	}

	return Unparsed, fmt.Errorf("%w: %q", ErrInvalidTarget, input)
}
