package calendar

import (
	"strings"
	"time"
)

type MatchKind string

const (
	MatchAll    MatchKind = "all"
	MatchByName MatchKind = "by_name"
	MatchByTime MatchKind = "by_time"
	MatchByDate MatchKind = "by_date"
	MatchNext   MatchKind = "next"
	MatchOther  MatchKind = "other"
)

type ExceptionKind string

const (
	ExceptionByName ExceptionKind = "by_name"
	ExceptionByDate ExceptionKind = "by_date"
)

// Exception is the "except ..." clause of a deletion request. Events matching
// it are always kept, regardless of the main match.
type Exception struct {
	Kind  ExceptionKind
	Value string
}

type DeleteCriteria struct {
	Kind      MatchKind
	Value     string
	Exception *Exception
}

// Valid reports whether the criteria can drive a deletion. Value is required
// for every kind except "all" and "next".
func (c DeleteCriteria) Valid() bool {
	switch c.Kind {
	case MatchAll, MatchNext:
		return true
	case MatchByName, MatchByTime, MatchByDate:
		return strings.TrimSpace(c.Value) != ""
	default:
		return false
	}
}

type Direction string

const (
	DirectionPostpone Direction = "postpone"
	DirectionPrepone  Direction = "prepone"
)

type UpdateCriteria struct {
	Direction   Direction
	TargetKind  MatchKind
	TargetValue string
	AmountHours int
}

func (c UpdateCriteria) Valid() bool {
	if c.Direction != DirectionPostpone && c.Direction != DirectionPrepone {
		return false
	}
	if c.AmountHours <= 0 {
		return false
	}
	target := DeleteCriteria{Kind: c.TargetKind, Value: c.TargetValue}
	return target.Valid()
}

// Shift is the signed offset the update applies to matched events.
func (c UpdateCriteria) Shift() time.Duration {
	d := time.Duration(c.AmountHours) * time.Hour
	if c.Direction == DirectionPrepone {
		return -d
	}
	return d
}

// matchesTarget applies the byName/byTime/byDate/all rules. "next" is handled
// by the executor since it depends on list order, not event content.
func matchesTarget(ev Event, kind MatchKind, value string, now time.Time, loc *time.Location) bool {
	switch kind {
	case MatchAll:
		return true
	case MatchByName:
		return strings.Contains(strings.ToLower(ev.Summary), strings.ToLower(strings.TrimSpace(value)))
	case MatchByTime:
		hour, minute, ok := ParseClockTime(value)
		if !ok {
			return false
		}
		start := ev.Start.In(loc)
		return start.Hour() == hour && start.Minute() == minute
	case MatchByDate:
		target, ok := resolveDate(now, value, loc)
		if !ok {
			return false
		}
		return sameCalendarDay(ev.Start.In(loc), target)
	default:
		return false
	}
}

func matchesException(ev Event, ex *Exception, now time.Time, loc *time.Location) bool {
	if ex == nil || strings.TrimSpace(ex.Value) == "" {
		return false
	}
	switch ex.Kind {
	case ExceptionByName:
		return matchesTarget(ev, MatchByName, ex.Value, now, loc)
	case ExceptionByDate:
		return matchesTarget(ev, MatchByDate, ex.Value, now, loc)
	default:
		return false
	}
}

func sameCalendarDay(a, b time.Time) bool {
	return a.Year() == b.Year() && a.Month() == b.Month() && a.Day() == b.Day()
}
