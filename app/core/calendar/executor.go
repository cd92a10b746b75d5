package calendar

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"
)

// Executor orchestrates calendar operations using filled slots or criteria.
// All provider I/O goes through the injected ClientFactory; a single item's
// failure inside a batch never aborts the rest of the batch.
type Executor struct {
	factory    ClientFactory
	loc        *time.Location
	duration   time.Duration
	maxResults int64
}

func NewExecutor(factory ClientFactory, loc *time.Location, duration time.Duration, maxResults int64) *Executor {
	if loc == nil {
		loc = time.Local
	}
	if duration <= 0 {
		duration = time.Hour
	}
	if maxResults <= 0 {
		maxResults = 50
	}
	return &Executor{factory: factory, loc: loc, duration: duration, maxResults: maxResults}
}

func (e *Executor) Location() *time.Location {
	return e.loc
}

// CreateEvent resolves the raw slot phrases against now and creates the event
// with the fixed default duration.
func (e *Executor) CreateEvent(ctx context.Context, userID string, now time.Time, subject, dateText, timeText string) (Event, error) {
	client, err := e.factory.ClientFor(ctx, userID)
	if err != nil {
		return Event{}, err
	}

	start, exact := ResolveStart(now, dateText, timeText, e.loc)
	if !exact {
		log.Printf("[Executor] Inexact slot resolution for user=%s date=%q time=%q", userID, dateText, timeText)
	}

	ev := Event{
		Summary:  "Meeting with " + strings.TrimSpace(subject),
		Start:    start,
		End:      start.Add(e.duration),
		Timezone: e.loc.String(),
	}
	created, err := client.Create(ctx, ev)
	if err != nil {
		return Event{}, fmt.Errorf("create event: %w", err)
	}
	return created, nil
}

// ListEvents returns upcoming events starting at or after now, soonest first.
func (e *Executor) ListEvents(ctx context.Context, userID string, now time.Time, maxResults int64) ([]Event, error) {
	client, err := e.factory.ClientFor(ctx, userID)
	if err != nil {
		return nil, err
	}
	if maxResults <= 0 || maxResults > e.maxResults {
		maxResults = e.maxResults
	}
	events, err := client.List(ctx, ListFilter{From: now, MaxResults: maxResults})
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	sort.Slice(events, func(i, j int) bool { return events[i].Start.Before(events[j].Start) })
	return events, nil
}

type DeleteResult struct {
	Deleted    int
	Skipped    int
	Details    []string
	ItemErrors []string
}

// DeleteByCriteria walks the upcoming list, keeping every event the exception
// matches, deleting every remaining event the criteria matches.
func (e *Executor) DeleteByCriteria(ctx context.Context, userID string, now time.Time, criteria DeleteCriteria) (DeleteResult, error) {
	var result DeleteResult
	if !criteria.Valid() {
		return result, fmt.Errorf("delete criteria incomplete: kind=%s", criteria.Kind)
	}

	client, err := e.factory.ClientFor(ctx, userID)
	if err != nil {
		return result, err
	}
	events, err := client.List(ctx, ListFilter{From: now, MaxResults: e.maxResults})
	if err != nil {
		return result, fmt.Errorf("list events: %w", err)
	}
	sort.Slice(events, func(i, j int) bool { return events[i].Start.Before(events[j].Start) })

	targets := events
	if criteria.Kind == MatchNext && len(events) > 0 {
		targets = events[:1]
	}

	for _, ev := range targets {
		if matchesException(ev, criteria.Exception, now, e.loc) {
			result.Skipped++
			result.Details = append(result.Details, "kept: "+ev.Summary)
			continue
		}
		if criteria.Kind != MatchNext && !matchesTarget(ev, criteria.Kind, criteria.Value, now, e.loc) {
			continue
		}
		if err := client.Delete(ctx, ev.ID); err != nil {
			log.Printf("[Executor] Delete failed for event=%s: %v", ev.ID, err)
			result.ItemErrors = append(result.ItemErrors, fmt.Sprintf("%s: %v", ev.Summary, err))
			continue
		}
		result.Deleted++
		result.Details = append(result.Details, "deleted: "+ev.Summary)
	}
	return result, nil
}

type UpdateResult struct {
	Updated    int
	Details    []string
	ItemErrors []string
}

// UpdateByCriteria shifts matched events by the signed criteria amount. The
// matching rules mirror deletion, minus exception support; "next" always
// selects exactly the soonest upcoming event.
func (e *Executor) UpdateByCriteria(ctx context.Context, userID string, now time.Time, criteria UpdateCriteria) (UpdateResult, error) {
	var result UpdateResult
	if !criteria.Valid() {
		return result, fmt.Errorf("update criteria incomplete: target=%s", criteria.TargetKind)
	}

	client, err := e.factory.ClientFor(ctx, userID)
	if err != nil {
		return result, err
	}
	events, err := client.List(ctx, ListFilter{From: now, MaxResults: e.maxResults})
	if err != nil {
		return result, fmt.Errorf("list events: %w", err)
	}
	sort.Slice(events, func(i, j int) bool { return events[i].Start.Before(events[j].Start) })

	shift := criteria.Shift()
	for i, ev := range events {
		if criteria.TargetKind == MatchNext {
			if i > 0 {
				break
			}
		} else if !matchesTarget(ev, criteria.TargetKind, criteria.TargetValue, now, e.loc) {
			continue
		}

		patch := ev
		patch.Start = ev.Start.Add(shift)
		patch.End = ev.End.Add(shift)
		if _, err := client.Update(ctx, ev.ID, patch); err != nil {
			log.Printf("[Executor] Update failed for event=%s: %v", ev.ID, err)
			result.ItemErrors = append(result.ItemErrors, fmt.Sprintf("%s: %v", ev.Summary, err))
			continue
		}
		result.Updated++
		result.Details = append(result.Details, fmt.Sprintf("moved %q to %s", ev.Summary, patch.Start.In(e.loc).Format("Mon Jan 2 3:04 PM")))
	}
	return result, nil
}
