package scheduler

import (
	"context"
	"time"
)

type TokenRefresher interface {
	RefreshExpiring(ctx context.Context, within time.Duration) error
}

type TraceSweeper interface {
	Sweep(ctx context.Context, retention time.Duration) error
}

// TokenRefreshJob renews Google credentials shortly before they expire so
// calendar calls never hit a cold token.
func TokenRefreshJob(refresher TokenRefresher) JobSpec {
	return JobSpec{
		Name:       "token-refresh",
		Interval:   10 * time.Minute,
		Timeout:    2 * time.Minute,
		RunOnStart: true,
		Run: func(ctx context.Context) error {
			return refresher.RefreshExpiring(ctx, 15*time.Minute)
		},
	}
}

// TraceSweepJob trims turn traces older than the configured retention.
func TraceSweepJob(sweeper TraceSweeper, retention time.Duration) JobSpec {
	return JobSpec{
		Name:     "trace-sweep",
		Interval: 12 * time.Hour,
		Timeout:  time.Minute,
		Run: func(ctx context.Context) error {
			return sweeper.Sweep(ctx, retention)
		},
	}
}
