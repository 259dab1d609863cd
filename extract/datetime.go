package extract

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04"
)

var (
	ordinalRE = regexp.MustCompile(`(?i)(\d{1,2})(st|nd|rd|th)\b`)
	clockRE   = regexp.MustCompile(`(?i)^(\d{1,2})(?::(\d{2}))?\s*(a\.?m\.?|p\.?m\.?)?$`)
	spacesRE  = regexp.MustCompile(`\s+`)
)

var (
	dateLayouts = []string{
		"2006-01-02",
		"01/02/2006",
		"1/2/2006",
		"01/02/06",
		"January 2 2006",
		"January 2, 2006",
		"Jan 2 2006",
		"Jan 2, 2006",
		"Monday, January 2, 2006",
		"Monday January 2 2006",
	}
	yearlessLayouts = []string{
		"January 2",
		"Jan 2",
		"01/02",
		"1/2",
		"Monday, January 2",
		"Monday January 2",
	}
)

// ParseDate normalizes a loosely written calendar date to YYYY-MM-DD.
// Dates written without a year take the year of now, or the next year when
// that date has already passed.
func ParseDate(raw string, now time.Time) (string, error) {
	s := strings.TrimSpace(ASCII(raw))
	s = strings.Trim(s, "*_ .")
	s = ordinalRE.ReplaceAllString(s, "$1")
	s = spacesRE.ReplaceAllString(s, " ")
	if s == "" {
		return "", fmt.Errorf("empty date")
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format(DateLayout), nil
		}
	}
	for _, layout := range yearlessLayouts {
		t, err := time.Parse(layout, s)
		if err != nil {
			continue
		}
		t = time.Date(now.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
		today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
		if t.Before(today) {
			t = t.AddDate(1, 0, 0)
		}
		return t.Format(DateLayout), nil
	}
	return "", fmt.Errorf("unrecognized date %q", raw)
}

// ParseClock normalizes "18:00", "6 PM", "6:30pm" and friends to HH:MM.
func ParseClock(raw string) (string, error) {
	s := strings.TrimSpace(ASCII(raw))
	s = strings.Trim(s, "*_ ")
	s = strings.ReplaceAll(s, " ", "")
	m := clockRE.FindStringSubmatch(s)
	if m == nil {
		return "", fmt.Errorf("unrecognized time %q", raw)
	}
	hour, _ := strconv.Atoi(m[1])
	minute := 0
	if m[2] != "" {
		minute, _ = strconv.Atoi(m[2])
	}
	meridiem := strings.ToLower(strings.ReplaceAll(m[3], ".", ""))
	switch meridiem {
	case "am":
		if hour < 1 || hour > 12 {
			return "", fmt.Errorf("unrecognized time %q", raw)
		}
		if hour == 12 {
			hour = 0
		}
	case "pm":
		if hour < 1 || hour > 12 {
			return "", fmt.Errorf("unrecognized time %q", raw)
		}
		if hour != 12 {
			hour += 12
		}
	default:
		if m[2] == "" {
			return "", fmt.Errorf("ambiguous time %q", raw)
		}
	}
	if hour > 23 || minute > 59 {
		return "", fmt.Errorf("unrecognized time %q", raw)
	}
	return fmt.Sprintf("%02d:%02d", hour, minute), nil
}
