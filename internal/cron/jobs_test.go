package cron

import (
	"context"
	"testing"
)

func TestSweepJob(t *testing.T) {
	calls := 0
	j := &SweepJob{Label: "sessions", Sweep: func() int { calls++; return 3 }}

	if j.Name() != "sweep:sessions" {
		t.Errorf("Name() = %q", j.Name())
	}
	if j.Schedule() != "@every 1m" {
		t.Errorf("Schedule() = %q, want default", j.Schedule())
	}
	if err := j.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if calls != 1 {
		t.Errorf("Sweep called %d times", calls)
	}

	j.ScheduleExpr = "*/5 * * * *"
	if j.Schedule() != "*/5 * * * *" {
		t.Errorf("Schedule() = %q", j.Schedule())
	}
}
