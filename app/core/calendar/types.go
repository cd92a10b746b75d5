package calendar

import (
	"context"
	"errors"
	"time"
)

// ErrNotAuthenticated means no valid credential exists for the user. It is
// surfaced as a login prompt and never retried.
var ErrNotAuthenticated = errors.New("calendar: not authenticated")

// Event is the slice of the provider's event the agent reads and writes. The
// id is owned by the provider; the agent never assumes it owns the entity.
type Event struct {
	ID       string
	Summary  string
	Start    time.Time
	End      time.Time
	Timezone string
}

type ListFilter struct {
	From       time.Time
	MaxResults int64
}

// Client is the calendar collaborator contract. Every call may fail with a
// provider error; batch callers treat those as per-item failures.
type Client interface {
	Create(ctx context.Context, ev Event) (Event, error)
	List(ctx context.Context, filter ListFilter) ([]Event, error)
	Update(ctx context.Context, id string, patch Event) (Event, error)
	Delete(ctx context.Context, id string) error
}

// ClientFactory resolves the per-user client, failing with
// ErrNotAuthenticated when the user has no stored credential.
type ClientFactory interface {
	ClientFor(ctx context.Context, userID string) (Client, error)
}
