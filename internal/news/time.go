package news

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// displayLayout is the single timestamp form the digest renders.
const displayLayout = "2006-01-02 15:04"

var (
	// "3:16 AM UTC", the bare clock the sites show for same-day articles.
	utcClockPattern = regexp.MustCompile(`^(\d{1,2}):(\d{2})\s*(AM|PM)\s*UTC`)

	// "June 4, 2025"
	englishDatePattern = regexp.MustCompile(`^([A-Za-z]+)\s+(\d{1,2}),\s+(\d{4})`)

	// ISO-8601 written with a space instead of the T separator.
	isoSpacePattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2} \d{2}:\d{2}(:\d{2})?(\.\d+)?(Z|[+-]\d{2}:?\d{2})?$`)

	// "5 minutes ago", "2 hrs ago", "1 day ago"
	agoPattern = regexp.MustCompile(`(?i)^(\d+)\s+(minute|min|hour|hr|day)s?\s+ago`)
)

// isoLayouts cover the offset-carrying timestamp forms feeds and sites emit.
var isoLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04Z07:00",
	"2006-01-02T15:04:05Z0700",
}

// commonLayouts are tried last, in order. The date-only forms render as
// midnight.
var commonLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	time.RFC1123,
	time.RFC1123Z,
}

var dateOnlyLayouts = []string{
	"January 2, 2006",
	"Jan 2, 2006",
}

// NormalizePublishTime rewrites the many timestamp spellings news sources use
// into displayLayout, converting timezone-aware inputs into loc. Anything it
// cannot recognize passes through unchanged so the original string is still
// shown rather than nothing.
func NormalizePublishTime(raw string, loc *time.Location) string {
	return normalizePublishTimeAt(raw, loc, time.Now())
}

func normalizePublishTimeAt(raw string, loc *time.Location, now time.Time) string {
	if loc == nil {
		loc = time.UTC
	}
	s := strings.TrimSpace(raw)
	if s == "" {
		return "N/A"
	}

	// 1. Bare UTC clock: attach today's date, then convert.
	if m := utcClockPattern.FindStringSubmatch(s); m != nil {
		hour, _ := strconv.Atoi(m[1])
		minute, _ := strconv.Atoi(m[2])
		if m[3] == "PM" && hour < 12 {
			hour += 12
		} else if m[3] == "AM" && hour == 12 {
			hour = 0
		}
		year, month, day := now.Date()
		t := time.Date(year, month, day, hour, minute, 0, 0, time.UTC)
		return t.In(loc).Format(displayLayout)
	}

	// 2. English month-day-year.
	if m := englishDatePattern.FindStringSubmatch(s); m != nil {
		if t, err := time.Parse("January 2 2006", fmt.Sprintf("%s %s %s", m[1], m[2], m[3])); err == nil {
			return t.Format("2006-01-02") + " 00:00"
		}
	}

	// 3. ISO-8601 with an explicit offset.
	parsable := s
	if !strings.Contains(parsable, "T") && isoSpacePattern.MatchString(parsable) {
		parsable = strings.Replace(parsable, " ", "T", 1)
	}
	if strings.Contains(parsable, "Z") || strings.Contains(parsable, "+") || hasTrailingOffset(parsable) {
		for _, layout := range isoLayouts {
			if t, err := time.Parse(layout, parsable); err == nil {
				return t.In(loc).Format(displayLayout)
			}
		}
	}

	// 4. Relative "ago" phrases.
	if m := agoPattern.FindStringSubmatch(s); m != nil {
		value, _ := strconv.Atoi(m[1])
		unit := strings.ToLower(m[2])
		var delta time.Duration
		switch {
		case strings.HasPrefix(unit, "min"):
			delta = time.Duration(value) * time.Minute
		case strings.HasPrefix(unit, "h"):
			delta = time.Duration(value) * time.Hour
		default:
			delta = time.Duration(value) * 24 * time.Hour
		}
		return now.In(loc).Add(-delta).Format(displayLayout)
	}

	// 5. Remaining common absolute forms.
	for _, layout := range commonLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format(displayLayout)
		}
	}
	for _, layout := range dateOnlyLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format("2006-01-02") + " 00:00"
		}
	}

	return raw
}

// hasTrailingOffset recognizes a negative numeric offset after the date part,
// e.g. "2025-06-04T10:30:00-05:00".
func hasTrailingOffset(s string) bool {
	return len(s) > 10 && strings.Contains(s[10:], "-") && strings.Count(s, ":") >= 2
}
