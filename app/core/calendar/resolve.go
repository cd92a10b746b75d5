package calendar

import (
	"log"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"
)

// Slot values arrive as raw phrases ("tomorrow", "16 Dec 25", "3 PM") and are
// resolved against an explicit "now" only here, at execution time.

var (
	resolveDayMonthRe = regexp.MustCompile(`^(\d{1,2})(?:st|nd|rd|th)?\s+([a-z]+)\.?(?:\s+(\d{2,4}))?$`)
	resolveMonthDayRe = regexp.MustCompile(`^([a-z]+)\.?\s+(\d{1,2})(?:st|nd|rd|th)?(?:\s*,?\s*(\d{2,4}))?$`)
	resolveSlashRe    = regexp.MustCompile(`^(\d{1,2})/(\d{1,2})(?:/(\d{2,4}))?$`)
	clockAmPmRe       = regexp.MustCompile(`^(\d{1,2})(?::(\d{2}))?\s*([ap])\.?m\.?$`)
	clock24Re         = regexp.MustCompile(`^(\d{1,2}):(\d{2})$`)
)

var monthsByPrefix = map[string]time.Month{
	"jan": time.January, "feb": time.February, "mar": time.March,
	"apr": time.April, "may": time.May, "jun": time.June,
	"jul": time.July, "aug": time.August, "sep": time.September,
	"oct": time.October, "nov": time.November, "dec": time.December,
}

var weekdaysByName = map[string]time.Weekday{
	"sunday": time.Sunday, "monday": time.Monday, "tuesday": time.Tuesday,
	"wednesday": time.Wednesday, "thursday": time.Thursday,
	"friday": time.Friday, "saturday": time.Saturday,
}

// ResolveStart combines the date and time phrases into an absolute start
// instant. Unparsable input degrades to today / 9:00 with a logged warning
// instead of failing the whole operation.
func ResolveStart(now time.Time, dateText string, timeText string, loc *time.Location) (time.Time, bool) {
	exact := true

	day, ok := resolveDate(now, dateText, loc)
	if !ok {
		log.Printf("[Calendar] Unparsable date %q, falling back to today", dateText)
		day = now.In(loc)
		exact = false
	}

	hour, minute, ok := ParseClockTime(timeText)
	if !ok {
		log.Printf("[Calendar] Unparsable time %q, falling back to 9:00", timeText)
		hour, minute = 9, 0
		exact = false
	}

	return time.Date(day.Year(), day.Month(), day.Day(), hour, minute, 0, 0, loc), exact
}

// resolveDate maps a raw date phrase to a calendar day in loc.
func resolveDate(now time.Time, text string, loc *time.Location) (time.Time, bool) {
	today := now.In(loc)
	cleaned := strings.ToLower(strings.TrimSpace(text))
	if cleaned == "" {
		return time.Time{}, false
	}

	switch cleaned {
	case "today":
		return today, true
	case "tomorrow":
		return today.AddDate(0, 0, 1), true
	}

	if wd, ok := weekdaysByName[cleaned]; ok {
		offset := (int(wd) - int(today.Weekday()) + 7) % 7
		return today.AddDate(0, 0, offset), true
	}

	if m := resolveDayMonthRe.FindStringSubmatch(cleaned); m != nil {
		if month, ok := monthFromWord(m[2]); ok {
			return buildDate(today, atoi(m[1]), month, m[3], loc)
		}
	}
	if m := resolveMonthDayRe.FindStringSubmatch(cleaned); m != nil {
		if month, ok := monthFromWord(m[1]); ok {
			return buildDate(today, atoi(m[2]), month, m[3], loc)
		}
	}
	if m := resolveSlashRe.FindStringSubmatch(cleaned); m != nil {
		// D/M ordering, matching how the dialogue variants read "16/12".
		day, month := atoi(m[1]), atoi(m[2])
		if month >= 1 && month <= 12 {
			return buildDate(today, day, time.Month(month), m[3], loc)
		}
	}

	// Last resort for phrasings the explicit patterns miss.
	if parsed, err := dateparse.ParseIn(cleaned, loc); err == nil {
		return parsed, true
	}
	return time.Time{}, false
}

// buildDate applies two-digit-year normalization and, when no year was given,
// rolls past dates forward to next year.
func buildDate(today time.Time, day int, month time.Month, yearText string, loc *time.Location) (time.Time, bool) {
	if day < 1 || day > 31 {
		return time.Time{}, false
	}

	if yearText != "" {
		year := normalizeYear(atoi(yearText))
		return time.Date(year, month, day, 0, 0, 0, 0, loc), true
	}

	candidate := time.Date(today.Year(), month, day, 0, 0, 0, 0, loc)
	startOfToday := time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, loc)
	if candidate.Before(startOfToday) {
		candidate = candidate.AddDate(1, 0, 0)
	}
	return candidate, true
}

// normalizeYear expands two-digit years: 00-49 land in 2000+, 50-99 in 1900+.
func normalizeYear(year int) int {
	switch {
	case year >= 100:
		return year
	case year <= 49:
		return 2000 + year
	default:
		return 1900 + year
	}
}

// ParseClockTime reads "3 PM", "3:30 pm" or 24-hour "15:04".
func ParseClockTime(text string) (int, int, bool) {
	cleaned := strings.ToLower(strings.TrimSpace(text))
	if cleaned == "" {
		return 0, 0, false
	}

	if m := clockAmPmRe.FindStringSubmatch(cleaned); m != nil {
		hour := atoi(m[1])
		if hour < 1 || hour > 12 {
			return 0, 0, false
		}
		if hour == 12 {
			hour = 0
		}
		if m[3] == "p" {
			hour += 12
		}
		minute := 0
		if m[2] != "" {
			minute = atoi(m[2])
		}
		if minute > 59 {
			return 0, 0, false
		}
		return hour, minute, true
	}

	if m := clock24Re.FindStringSubmatch(cleaned); m != nil {
		hour, minute := atoi(m[1]), atoi(m[2])
		if hour > 23 || minute > 59 {
			return 0, 0, false
		}
		return hour, minute, true
	}
	return 0, 0, false
}

func monthFromWord(word string) (time.Month, bool) {
	if len(word) < 3 {
		return 0, false
	}
	month, ok := monthsByPrefix[word[:3]]
	return month, ok
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}
