// Package runner is the submission controller: it drives every form target
// through fill, (optionally) the exact-time submit window, and the retry
// loop, each target in its own isolated browser session.
package runner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"leavebot/internal/browser"
	"leavebot/internal/forms"
	"leavebot/internal/notify"
	"leavebot/internal/schedule"
	"leavebot/pkg/logx"
)

// Notifier is the outbound event sink. The controller only emits
// timeout-warning and first-failure; reminder and summary belong to the app.
type Notifier interface {
	Notify(ctx context.Context, ev notify.Event) error
}

// Options tunes the controller.
type Options struct {
	// RetryMax is the number of retries after the initial attempt
	// (2 means at most 3 attempts per target).
	RetryMax int
	// RetryBackoff is the pause before each retry.
	RetryBackoff time.Duration

	// WarnTimeout: no redirect within this window after the submit click
	// emits a timeout-warning. KillTimeout is the total wait before the
	// attempt counts as failed.
	WarnTimeout time.Duration
	KillTimeout time.Duration

	ScreenshotDir string

	// Now and SleepUntil exist for tests; nil means real time.
	Now        func() time.Time
	SleepUntil func(ctx context.Context, t time.Time) (time.Duration, error)
}

func (o Options) withDefaults() Options {
	if o.RetryMax < 0 {
		o.RetryMax = 0
	}
	if o.RetryBackoff <= 0 {
		o.RetryBackoff = 3 * time.Second
	}
	if o.WarnTimeout <= 0 {
		o.WarnTimeout = 10 * time.Second
	}
	if o.KillTimeout <= o.WarnTimeout {
		o.KillTimeout = o.WarnTimeout + 10*time.Second
	}
	if o.ScreenshotDir == "" {
		o.ScreenshotDir = "./fail_img"
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.SleepUntil == nil {
		o.SleepUntil = schedule.SleepUntil
	}
	return o
}

type Controller struct {
	launcher browser.Launcher
	notifier Notifier
	opt      Options
	log      logx.Logger
}

func New(launcher browser.Launcher, notifier Notifier, opt Options, log logx.Logger) *Controller {
	return &Controller{
		launcher: launcher,
		notifier: notifier,
		opt:      opt.withDefaults(),
		log:      log,
	}
}

// Run executes all targets concurrently and aggregates their results.
// Each target runs in its own goroutine and browser session; the only
// shared value is the read-only plan (in particular the target instant).
func (c *Controller) Run(ctx context.Context, plan schedule.Plan, targets []forms.Target) forms.Summary {
	started := c.opt.Now()
	results := make([]forms.Result, len(targets))

	var wg sync.WaitGroup
	for i, t := range targets {
		wg.Add(1)
		go func(i int, t forms.Target) {
			defer wg.Done()
			results[i] = c.runTarget(ctx, plan, t)
		}(i, t)
	}
	wg.Wait()

	return forms.Summary{
		Mode:     plan.Mode.String(),
		TargetAt: plan.Target,
		Started:  started,
		Finished: c.opt.Now(),
		Results:  results,
	}
}

// runTarget drives one target through the attempt/retry loop.
func (c *Controller) runTarget(ctx context.Context, plan schedule.Plan, target forms.Target) forms.Result {
	log := c.log.With(logx.String("day", target.Day.Token()))

	res := forms.Result{Target: target}
	state := StatePending
	maxAttempts := 1 + c.opt.RetryMax

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			log.Info("retrying", logx.Int("attempt", attempt), logx.Duration("backoff", c.opt.RetryBackoff))
			if err := sleepCtx(ctx, c.opt.RetryBackoff); err != nil {
				res.Err = err.Error()
				break
			}
		}
		res.Attempts = attempt

		// The exact window only exists on the first attempt; by the time a
		// retry runs, the target instant has passed and the retry submits
		// immediately.
		exact := plan.Exact && attempt == 1

		outcome := c.attempt(ctx, plan, target, &state, exact, log)
		if outcome.err == nil {
			c.setState(&state, StateSucceeded, log)
			res.Status = forms.StatusSucceeded
			res.SubmitSkew = outcome.skew
			return res
		}

		res.Err = outcome.err.Error()
		if outcome.screenshot != "" {
			res.Screenshot = outcome.screenshot
		}
		log.Warn("attempt failed", logx.Int("attempt", attempt), logx.Err(outcome.err))

		// The first failure notifies immediately, closed forms included;
		// retryable failures then go on to retry.
		if attempt == 1 {
			c.emit(ctx, notify.Event{
				Kind:       notify.KindFirstFailure,
				At:         c.opt.Now(),
				Form:       &target,
				Screenshot: outcome.screenshot,
				Err:        outcome.err.Error(),
			})
		}

		if errors.Is(outcome.err, browser.ErrFormClosed) {
			c.setState(&state, StateClosed, log)
			res.Status = forms.StatusClosed
			return res
		}

		c.setState(&state, StateFailed, log)
	}

	c.setState(&state, StateExhausted, log)
	res.Status = forms.StatusExhausted
	return res
}

type attemptOutcome struct {
	err        error
	screenshot string
	skew       time.Duration
}

// attempt runs one full fill/submit cycle in a fresh session.
func (c *Controller) attempt(ctx context.Context, plan schedule.Plan, target forms.Target, state *State, exact bool, log logx.Logger) attemptOutcome {
	sess, err := c.launcher.NewSession(ctx)
	if err != nil {
		return attemptOutcome{err: fmt.Errorf("new session: %w", err)}
	}
	defer func() { _ = sess.Close() }()

	fail := func(err error) attemptOutcome {
		out := attemptOutcome{err: err}
		if sess.Closed(ctx) {
			out.err = fmt.Errorf("%w (after: %v)", browser.ErrFormClosed, err)
		}
		path := browser.ScreenshotPath(c.opt.ScreenshotDir, target.Day, c.opt.Now())
		if serr := sess.Screenshot(ctx, path); serr != nil {
			log.Warn("screenshot failed", logx.Err(serr))
		} else {
			out.screenshot = path
			log.Info("failure screenshot saved", logx.String("path", path))
		}
		return out
	}

	c.setState(state, StateFilling, log)
	if err := sess.Open(ctx, target.URL); err != nil {
		return fail(err)
	}
	if err := sess.Fill(ctx, target); err != nil {
		return fail(err)
	}

	var skew time.Duration
	if exact && c.opt.Now().Before(plan.Target) {
		c.setState(state, StateAwaitingSubmitWindow, log)
		log.Info("prefilled; holding for submit window", logx.Time("target", plan.Target))
		skew, err = c.opt.SleepUntil(ctx, plan.Target)
		if err != nil {
			return attemptOutcome{err: err}
		}
	}

	c.setState(state, StateSubmitting, log)
	if err := sess.Submit(ctx); err != nil {
		return fail(err)
	}
	log.Info("submit fired", logx.Duration("skew", skew))

	// Stage 1: warn window.
	err = sess.AwaitOutcome(ctx, c.opt.WarnTimeout)
	if err == nil {
		return attemptOutcome{skew: skew}
	}
	if !errors.Is(err, browser.ErrNoRedirect) {
		return fail(err)
	}

	log.Warn("no redirect inside warn window", logx.Duration("warn", c.opt.WarnTimeout))
	c.emit(ctx, notify.Event{
		Kind: notify.KindTimeoutWarning,
		At:   c.opt.Now(),
		Form: &target,
		Err:  err.Error(),
	})

	// Stage 2: grace until the kill window closes.
	err = sess.AwaitOutcome(ctx, c.opt.KillTimeout-c.opt.WarnTimeout)
	if err == nil {
		log.Info("late redirect inside grace window")
		return attemptOutcome{skew: skew}
	}
	return fail(fmt.Errorf("no redirect within %s: %w", c.opt.KillTimeout, err))
}

func (c *Controller) setState(state *State, next State, log logx.Logger) {
	// A retry re-enters Filling from Failed; everything else follows the
	// transition table.
	ns, err := state.advance(next)
	if err != nil {
		log.Error("state machine violation", logx.Err(err))
		return
	}
	log.Debug("state", logx.String("from", state.String()), logx.String("to", ns.String()))
	*state = ns
}

func (c *Controller) emit(ctx context.Context, ev notify.Event) {
	if c.notifier == nil {
		return
	}
	// Notification failures never affect the run outcome.
	_ = c.notifier.Notify(ctx, ev)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
