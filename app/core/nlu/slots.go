package nlu

import (
	"regexp"
	"strings"
	"unicode"
)

// Slot extractors are pure, order-sensitive pattern matchers over the
// lower-cased utterance. They return raw phrases, never resolved datetimes;
// resolution against "now" happens in the calendar executor so the dialogue
// machine stays deterministic.

var stopwords = map[string]struct{}{
	"today": {}, "tomorrow": {}, "yesterday": {},
	"monday": {}, "tuesday": {}, "wednesday": {}, "thursday": {},
	"friday": {}, "saturday": {}, "sunday": {},
	"yes": {}, "no": {}, "ok": {}, "okay": {}, "sure": {}, "yeah": {},
	"thanks": {}, "thank": {}, "please": {}, "hi": {}, "hello": {}, "hey": {},
	"a": {}, "an": {}, "the": {}, "my": {}, "me": {}, "at": {}, "on": {},
	"for": {}, "in": {}, "to": {}, "and": {}, "is": {}, "it": {},
	"meeting": {}, "schedule": {}, "event": {}, "with": {},
	"am": {}, "pm": {}, "next": {}, "this": {},
}

var (
	subjectWithRe    = regexp.MustCompile(`\bwith\s+([a-z]+)`)
	subjectKeywordRe = regexp.MustCompile(`\b(?:meeting|schedule|event)\s+(?:with\s+)?([a-z]+)`)

	dateDayMonthRe = regexp.MustCompile(`\b(\d{1,2})(?:st|nd|rd|th)?\s+(jan|feb|mar|apr|may|jun|jul|aug|sep|oct|nov|dec)[a-z]*\.?(?:\s+(\d{2,4}))?\b`)
	dateMonthDayRe = regexp.MustCompile(`\b(jan|feb|mar|apr|may|jun|jul|aug|sep|oct|nov|dec)[a-z]*\.?\s+(\d{1,2})(?:st|nd|rd|th)?(?:\s*,?\s*(\d{2,4}))?\b`)
	dateSlashRe    = regexp.MustCompile(`\b(\d{1,2})/(\d{1,2})(?:/(\d{2,4}))?\b`)
	weekdayRe      = regexp.MustCompile(`\b(monday|tuesday|wednesday|thursday|friday|saturday|sunday)\b`)
	relativeRe     = regexp.MustCompile(`\b(today|tomorrow)\b`)

	timeOClockRe = regexp.MustCompile(`\b(\d{1,2})\s*o'?\s?clock\b`)
	timeAmPmRe   = regexp.MustCompile(`\b(\d{1,2})(?::(\d{2}))?\s*([ap])\.?m\.?\b`)
)

// ExtractSubject returns the person/topic slot candidate, capitalized, or "".
func ExtractSubject(text string) string {
	lowered := strings.ToLower(strings.TrimSpace(text))
	if lowered == "" {
		return ""
	}

	if m := subjectWithRe.FindStringSubmatch(lowered); m != nil {
		if candidate := acceptSubject(m[1]); candidate != "" {
			return candidate
		}
	}
	for _, m := range subjectKeywordRe.FindAllStringSubmatch(lowered, -1) {
		if candidate := acceptSubject(m[1]); candidate != "" {
			return candidate
		}
	}
	if !strings.ContainsAny(lowered, " \t") {
		word := strings.TrimFunc(lowered, func(r rune) bool { return !unicode.IsLetter(r) })
		if candidate := acceptSubject(word); candidate != "" {
			return candidate
		}
	}
	return ""
}

func acceptSubject(word string) string {
	if word == "" {
		return ""
	}
	if _, banned := stopwords[word]; banned {
		return ""
	}
	return capitalize(word)
}

func capitalize(word string) string {
	if word == "" {
		return ""
	}
	return strings.ToUpper(word[:1]) + word[1:]
}

// ExtractDate returns the raw date phrase found in the utterance, or "".
// Relative keywords win over weekday names, which win over explicit dates.
func ExtractDate(text string) string {
	lowered := strings.ToLower(text)

	if m := relativeRe.FindString(lowered); m != "" {
		return m
	}
	if m := weekdayRe.FindString(lowered); m != "" {
		return m
	}
	if m := dateDayMonthRe.FindString(lowered); m != "" {
		return m
	}
	if m := dateMonthDayRe.FindString(lowered); m != "" {
		return m
	}
	if m := dateSlashRe.FindString(lowered); m != "" {
		return m
	}
	return ""
}

// ExtractTime returns the normalized time phrase ("3 PM", "3:30 PM"), or "".
func ExtractTime(text string) string {
	value, _ := ExtractTimeDetail(text)
	return value
}

// ExtractTimeDetail additionally reports whether the AM/PM half was guessed.
// "N o'clock" carries no meridiem; 9-11 reads as AM, everything else as PM,
// and the caller is expected to surface the guess to the user.
func ExtractTimeDetail(text string) (string, bool) {
	lowered := strings.ToLower(text)

	if m := timeOClockRe.FindStringSubmatch(lowered); m != nil {
		hour := atoiSafe(m[1])
		if hour >= 1 && hour <= 12 {
			meridiem := "PM"
			if hour >= 9 && hour <= 11 {
				meridiem = "AM"
			}
			return m[1] + " " + meridiem, true
		}
	}

	if m := timeAmPmRe.FindStringSubmatch(lowered); m != nil {
		hour := atoiSafe(m[1])
		if hour >= 1 && hour <= 12 {
			meridiem := "AM"
			if m[3] == "p" {
				meridiem = "PM"
			}
			if m[2] != "" {
				return m[1] + ":" + m[2] + " " + meridiem, false
			}
			return m[1] + " " + meridiem, false
		}
	}
	return "", false
}

func atoiSafe(s string) int {
	n := 0
	for _, r := range s {
		if r < '0' || r > '9' {
			return -1
		}
		n = n*10 + int(r-'0')
	}
	return n
}
