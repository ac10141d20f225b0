package cron

import (
	"context"
	"log/slog"
)

// SweepJob periodically drops expired entries through Sweep, which
// reports how many it removed.
type SweepJob struct {
	Label        string
	Sweep        func() int
	Logger       *slog.Logger
	ScheduleExpr string // empty = "@every 1m"
}

var _ Job = (*SweepJob)(nil)

// Name implements Job.
func (j *SweepJob) Name() string { return "sweep:" + j.Label }

// Schedule implements Job.
func (j *SweepJob) Schedule() string {
	if j.ScheduleExpr != "" {
		return j.ScheduleExpr
	}
	return "@every 1m"
}

// Run implements Job.
func (j *SweepJob) Run(_ context.Context) error {
	if n := j.Sweep(); n > 0 && j.Logger != nil {
		j.Logger.Debug("expired entries removed", "job", j.Label, "count", n)
	}
	return nil
}
