// Package notify delivers run lifecycle events out of band.
//
// Delivery is best-effort: a channel failure is logged and never fails the
// run. Channels are fanned out behind a shared rate limiter so a burst of
// failures cannot flood a mailbox.
package notify

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"leavebot/internal/forms"
	"leavebot/pkg/logx"
)

type Kind string

const (
	// KindReminder goes out a few minutes before the target instant.
	KindReminder Kind = "reminder"
	// KindTimeoutWarning: submit clicked but no redirect within the warn
	// window; the attempt is still being graded.
	KindTimeoutWarning Kind = "timeout-warning"
	// KindFirstFailure: a target's first attempt failed; a retry follows.
	KindFirstFailure Kind = "first-failure"
	// KindSummary: the final report of the whole run.
	KindSummary Kind = "summary"
)

// Event carries everything a channel needs to render a notification.
// Fields are populated per kind; unset ones are zero.
type Event struct {
	Kind Kind
	At   time.Time

	// Form identifies the target for timeout-warning and first-failure.
	Form *forms.Target
	// Screenshot is attached to first-failure events when present.
	Screenshot string
	Err        string

	// Reminder payload.
	Days    []forms.Day
	Reasons map[string]string

	// Summary payload.
	Summary *forms.Summary
}

// Notifier is one delivery channel (mail, telegram, ...).
type Notifier interface {
	Name() string
	Notify(ctx context.Context, ev Event) error
}

// Dispatcher fans events out to all channels, rate-limited.
type Dispatcher struct {
	channels []Notifier
	limiter  *rate.Limiter
	log      logx.Logger
}

// NewDispatcher builds a dispatcher. ratePerSec caps outbound sends across
// all channels; <=0 falls back to 1/s.
func NewDispatcher(log logx.Logger, ratePerSec int, channels ...Notifier) *Dispatcher {
	if ratePerSec <= 0 {
		ratePerSec = 1
	}
	return &Dispatcher{
		channels: channels,
		limiter:  rate.NewLimiter(rate.Limit(ratePerSec), ratePerSec),
		log:      log,
	}
}

// Notify delivers ev to every channel. Failures are logged per channel; the
// first error is returned for callers that care, but the run never aborts
// on it.
func (d *Dispatcher) Notify(ctx context.Context, ev Event) error {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}

	var first error
	for _, ch := range d.channels {
		if err := d.limiter.Wait(ctx); err != nil {
			return err
		}
		if err := ch.Notify(ctx, ev); err != nil {
			d.log.Warn("notification send failed",
				logx.String("channel", ch.Name()),
				logx.String("kind", string(ev.Kind)),
				logx.Err(err),
			)
			if first == nil {
				first = err
			}
			continue
		}
		d.log.Debug("notification sent",
			logx.String("channel", ch.Name()),
			logx.String("kind", string(ev.Kind)),
		)
	}
	return first
}

// Channels reports how many channels are attached.
func (d *Dispatcher) Channels() int { return len(d.channels) }
