package extract

import (
	"regexp"
	"strings"
	"time"
)

// NextHearingLabel is the case-status row that carries the next listing date.
const NextHearingLabel = "Next Hearing Date"

var (
	ordinalDay = regexp.MustCompile(`^(\d{1,2})(st|nd|rd|th)\b`)

	hearingLayouts = []string{
		"2 January 2006",
		"2 Jan 2006",
		"02-01-2006",
		"02/01/2006",
		"2006-01-02",
	}
)

// ParseHearingDate understands the portal's "21st October 2025" style as well
// as numeric day-first dates. Trailing remarks in parentheses are ignored.
func ParseHearingDate(raw string, loc *time.Location) (time.Time, bool) {
	if loc == nil {
		loc = time.Local
	}
	s := raw
	if i := strings.Index(s, "("); i >= 0 {
		s = s[:i]
	}
	s = cleanText(s)
	s = ordinalDay.ReplaceAllString(s, "$1")
	for _, layout := range hearingLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// ListedSoon reports whether the next hearing falls on now's day or the day after.
func ListedSoon(info CaseInfo, now time.Time) bool {
	raw, ok := info.Get(NextHearingLabel)
	if !ok {
		return false
	}
	date, ok := ParseHearingDate(raw, now.Location())
	if !ok {
		return false
	}
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	tomorrow := today.AddDate(0, 0, 1)
	return date.Equal(today) || date.Equal(tomorrow)
}
