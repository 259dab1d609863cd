package extract

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/tbxark/remi/types"
)

// Sentinel is the phrase the legacy prompt emits once every slot is known.
const Sentinel = "now searching"

var (
	cuisineRE  = regexp.MustCompile(`(?i)Cuisine noted[:*\s]*(\S.*)`)
	budgetRE   = regexp.MustCompile(`(?i)Budget noted[:*\s]*(\S.*)`)
	locationRE = regexp.MustCompile(`(?i)Location noted[:*\s]*(\S.*)`)
	radiusRE   = regexp.MustCompile(`(?i)Search radius noted[:*\s]*(\d+(?:\.\d+)?)\s*(miles?|mi|meters?|m|km|kilometers?)?`)
	resDateRE  = regexp.MustCompile(`(?i)Reservation date[:*\s]*(\S.*)`)
	resTimeRE  = regexp.MustCompile(`(?i)Reservation time[:*\s]*(\S.*)`)
	handleRE   = regexp.MustCompile(`@([A-Za-z0-9][A-Za-z0-9._-]*)`)
	numberRE   = regexp.MustCompile(`\d+(?:\.\d+)?`)
	quantityRE = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*([a-z]*)`)
)

const metersPerMile = 1609.344

// Markers pulls "<Slot> noted: <value>" lines out of model prose. Fields that are
// absent or unparseable stay zero.
func Markers(text string, now time.Time) types.Facts {
	var f types.Facts
	ascii := ASCII(text)
	if v := captureLine(cuisineRE, ascii); v != "" {
		f.Cuisine = v
	}
	if v := captureLine(budgetRE, ascii); v != "" {
		if b, ok := Budget(v); ok {
			f.Budget = b
		}
	}
	if v := captureLine(locationRE, ascii); v != "" {
		f.Location = v
	}
	if m := radiusRE.FindStringSubmatch(ascii); m != nil {
		if miles, ok := radiusToMiles(m[1], m[2]); ok {
			f.RadiusMiles = miles
		}
	}
	if v := captureLine(resDateRE, ascii); v != "" {
		if d, err := ParseDate(v, now); err == nil {
			f.ReservationDate = d
		}
	}
	if v := captureLine(resTimeRE, ascii); v != "" {
		if c, err := ParseClock(v); err == nil {
			f.ReservationTime = c
		}
	}
	return f
}

// HasSentinel reports whether the model announced that it is about to search.
func HasSentinel(text string) bool {
	return strings.Contains(strings.ToLower(ASCII(text)), Sentinel)
}

// Handle returns the first @handle in text, including the @.
func Handle(text string) string {
	m := handleRE.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	return "@" + strings.TrimRight(m[1], ".-")
}

// Budget maps a tier number, a "$$" string or a price word to 1..4.
func Budget(raw string) (int, bool) {
	s := strings.ToLower(strings.TrimSpace(ASCII(raw)))
	s = strings.Trim(s, "*_ .()[]")
	if s == "" {
		return 0, false
	}
	if strings.Trim(s, "$") == "" {
		if n := len(s); n >= 1 && n <= 4 {
			return n, true
		}
		return 0, false
	}
	if m := numberRE.FindString(s); m != "" {
		n, err := strconv.Atoi(m)
		if err == nil && n >= 1 && n <= 4 {
			return n, true
		}
		return 0, false
	}
	words := []struct {
		word string
		tier int
	}{
		{"fine dining", 4},
		{"fancy", 4},
		{"luxury", 4},
		{"expensive", 3},
		{"upscale", 3},
		{"pricey", 3},
		{"mid-range", 2},
		{"mid range", 2},
		{"midrange", 2},
		{"moderate", 2},
		{"medium", 2},
		{"cheap", 1},
		{"budget", 1},
		{"inexpensive", 1},
		{"affordable", 1},
	}
	for _, w := range words {
		if strings.Contains(s, w.word) {
			return w.tier, true
		}
	}
	return 0, false
}

// Radius parses "5", "5 miles", "8000 meters" or "3km" into miles.
func Radius(raw string) (float64, bool) {
	s := strings.ToLower(strings.TrimSpace(ASCII(raw)))
	m := quantityRE.FindStringSubmatch(s)
	if m == nil {
		return 0, false
	}
	return radiusToMiles(m[1], m[2])
}

func radiusToMiles(number, unit string) (float64, bool) {
	v, err := strconv.ParseFloat(number, 64)
	if err != nil || v <= 0 {
		return 0, false
	}
	switch strings.ToLower(unit) {
	case "m", "meter", "meters":
		v = v / metersPerMile
	case "km", "kilometer", "kilometers":
		v = v * 1000 / metersPerMile
	}
	return v, true
}

// TopChoice finds "top choice: N" in a user message.
func TopChoice(text string) (int, bool) {
	m := topChoiceRE.FindStringSubmatch(strings.ToLower(ASCII(text)))
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return n, true
}

var topChoiceRE = regexp.MustCompile(`top choice[:\s#]*(\d+)`)

func captureLine(re *regexp.Regexp, text string) string {
	m := re.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	v := m[1]
	if i := strings.IndexAny(v, "\r\n"); i >= 0 {
		v = v[:i]
	}
	v = strings.TrimSpace(v)
	v = strings.Trim(v, "*_[] ")
	return strings.TrimSpace(v)
}
