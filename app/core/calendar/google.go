package calendar

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/oauth2"
	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"
)

const primaryCalendarID = "primary"

// GoogleClient adapts the Google Calendar v3 API to the Client contract.
type GoogleClient struct {
	svc *gcal.Service
}

func NewGoogleClient(ctx context.Context, ts oauth2.TokenSource) (*GoogleClient, error) {
	svc, err := gcal.NewService(ctx, option.WithTokenSource(ts))
	if err != nil {
		return nil, fmt.Errorf("failed to create calendar service: %w", err)
	}
	return &GoogleClient{svc: svc}, nil
}

func (c *GoogleClient) Create(ctx context.Context, ev Event) (Event, error) {
	body := &gcal.Event{
		Summary: ev.Summary,
		Start:   &gcal.EventDateTime{DateTime: ev.Start.Format(time.RFC3339), TimeZone: ev.Timezone},
		End:     &gcal.EventDateTime{DateTime: ev.End.Format(time.RFC3339), TimeZone: ev.Timezone},
	}
	created, err := c.svc.Events.Insert(primaryCalendarID, body).Context(ctx).Do()
	if err != nil {
		return Event{}, fmt.Errorf("google insert: %w", err)
	}
	return toEvent(created), nil
}

func (c *GoogleClient) List(ctx context.Context, filter ListFilter) ([]Event, error) {
	call := c.svc.Events.List(primaryCalendarID).
		ShowDeleted(false).
		SingleEvents(true).
		TimeMin(filter.From.Format(time.RFC3339)).
		OrderBy("startTime")
	if filter.MaxResults > 0 {
		call = call.MaxResults(filter.MaxResults)
	}
	listed, err := call.Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("google list: %w", err)
	}

	events := make([]Event, 0, len(listed.Items))
	for _, item := range listed.Items {
		// All-day events carry a Date but no DateTime; the dialogue only
		// deals in timed events.
		if item.Start == nil || item.Start.DateTime == "" {
			continue
		}
		events = append(events, toEvent(item))
	}
	return events, nil
}

func (c *GoogleClient) Update(ctx context.Context, id string, patch Event) (Event, error) {
	body := &gcal.Event{
		Summary: patch.Summary,
		Start:   &gcal.EventDateTime{DateTime: patch.Start.Format(time.RFC3339), TimeZone: patch.Timezone},
		End:     &gcal.EventDateTime{DateTime: patch.End.Format(time.RFC3339), TimeZone: patch.Timezone},
	}
	updated, err := c.svc.Events.Patch(primaryCalendarID, id, body).Context(ctx).Do()
	if err != nil {
		return Event{}, fmt.Errorf("google patch: %w", err)
	}
	return toEvent(updated), nil
}

func (c *GoogleClient) Delete(ctx context.Context, id string) error {
	if err := c.svc.Events.Delete(primaryCalendarID, id).Context(ctx).Do(); err != nil {
		return fmt.Errorf("google delete: %w", err)
	}
	return nil
}

func toEvent(item *gcal.Event) Event {
	ev := Event{ID: item.Id, Summary: item.Summary}
	if item.Start != nil {
		ev.Start, _ = time.Parse(time.RFC3339, item.Start.DateTime)
		ev.Timezone = item.Start.TimeZone
	}
	if item.End != nil {
		ev.End, _ = time.Parse(time.RFC3339, item.End.DateTime)
	}
	return ev
}
