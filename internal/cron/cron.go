// Package cron runs periodic background jobs such as the expiry sweeps of
// in-memory caches.
package cron

import "context"

// Job is a periodic background task.
type Job interface {
	// Name identifies the job in logs. Names are unique per scheduler.
	Name() string

	// Schedule is a 5-field cron expression or a descriptor such as
	// "@every 1m".
	Schedule() string

	// Run executes the job. ctx is cancelled when the scheduler stops.
	Run(ctx context.Context) error
}
