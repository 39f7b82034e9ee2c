// Package schedule computes the weekly target instant and sleeps to it
// with millisecond accuracy.
package schedule

import (
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"leavebot/internal/forms"
)

// Target is the weekly occurrence the run converges on: a weekday plus a
// time of day in a fixed location.
type Target struct {
	Day      forms.Day
	Hour     int
	Minute   int
	Second   int
	Location *time.Location
}

func (t Target) String() string {
	return fmt.Sprintf("%s %02d:%02d:%02d (%s)", t.Day, t.Hour, t.Minute, t.Second, t.Location)
}

// cron parser with a seconds field so "14:00:00" targets are exact.
var specParser = cron.NewParser(
	cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow,
)

// Next returns the next occurrence of the target strictly after now,
// rolling to the following week when today's slot has passed.
func (t Target) Next(now time.Time) (time.Time, error) {
	loc := t.Location
	if loc == nil {
		loc = time.Local
	}
	spec := fmt.Sprintf("%d %d %d * * %d", t.Second, t.Minute, t.Hour, int(t.Day.Weekday()))
	sched, err := specParser.Parse(spec)
	if err != nil {
		return time.Time{}, fmt.Errorf("schedule spec %q: %w", spec, err)
	}
	next := sched.Next(now.In(loc))
	if next.IsZero() {
		return time.Time{}, fmt.Errorf("no next occurrence for %s", t)
	}
	return next, nil
}

// Mode selects how the run is triggered. The decision is made once, before
// the pipeline starts; nothing downstream prompts.
type Mode int

const (
	// ModeWait sleeps to the next weekly target and fires the submits at
	// that exact instant (prefill happens ahead of it).
	ModeWait Mode = iota
	// ModeNow fills and submits immediately.
	ModeNow
	// ModeDelay waits a fixed number of minutes, then behaves like ModeNow.
	ModeDelay
)

func (m Mode) String() string {
	switch m {
	case ModeWait:
		return "wait"
	case ModeNow:
		return "now"
	case ModeDelay:
		return "delay"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "wait", "":
		return ModeWait, nil
	case "now", "immediate":
		return ModeNow, nil
	case "delay", "delayed":
		return ModeDelay, nil
	default:
		return 0, fmt.Errorf("unknown mode %q (want wait, now or delay)", s)
	}
}

// Plan is the resolved execution plan for one run.
type Plan struct {
	Mode   Mode
	Target time.Time

	// PrefillAt is when the forms start filling. Equal to Target unless
	// Exact is set.
	PrefillAt time.Time
	// ReminderAt is when the reminder notification goes out; zero when no
	// reminder fits before the target.
	ReminderAt time.Time

	// Exact marks the prefill-then-exact-submit timing mode.
	Exact bool
}

// BuildPlan resolves a mode into concrete instants.
//
// delayMinutes is only read in ModeDelay and must be positive there.
func BuildPlan(now time.Time, mode Mode, delayMinutes int, t Target, prefillLead, reminderLead time.Duration) (Plan, error) {
	switch mode {
	case ModeNow:
		return Plan{Mode: mode, Target: now, PrefillAt: now}, nil

	case ModeDelay:
		if delayMinutes <= 0 {
			return Plan{}, fmt.Errorf("delay must be a positive number of minutes, got %d", delayMinutes)
		}
		target := now.Add(time.Duration(delayMinutes) * time.Minute)
		return Plan{Mode: mode, Target: target, PrefillAt: target}, nil

	case ModeWait:
		target, err := t.Next(now)
		if err != nil {
			return Plan{}, err
		}
		if !target.After(now) {
			return Plan{}, fmt.Errorf("computed target %s is not in the future", target)
		}
		p := Plan{
			Mode:      mode,
			Target:    target,
			PrefillAt: target.Add(-prefillLead),
			Exact:     true,
		}
		// Only schedule the reminder when there is room for it.
		if reminderLead > 0 && target.Sub(now) > reminderLead {
			p.ReminderAt = target.Add(-reminderLead)
		}
		return p, nil

	default:
		return Plan{}, fmt.Errorf("unknown mode %v", mode)
	}
}
