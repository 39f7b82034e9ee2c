package runner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"leavebot/internal/browser"
	"leavebot/internal/forms"
	"leavebot/internal/notify"
	"leavebot/internal/schedule"
	"leavebot/pkg/logx"
)

// script describes how one session attempt behaves.
type script struct {
	openErr    error
	fillErr    error
	submitErr  error
	awaitErrs  []error // one per AwaitOutcome call; nil means redirect seen
	pageClosed bool
}

type fakeSession struct {
	s       script
	awaitN  int
	shots   []string
	closedQ int
}

func (f *fakeSession) Open(ctx context.Context, url string) error     { return f.s.openErr }
func (f *fakeSession) Fill(ctx context.Context, t forms.Target) error { return f.s.fillErr }
func (f *fakeSession) Submit(ctx context.Context) error               { return f.s.submitErr }
func (f *fakeSession) AwaitOutcome(ctx context.Context, d time.Duration) error {
	if f.awaitN >= len(f.s.awaitErrs) {
		return nil
	}
	err := f.s.awaitErrs[f.awaitN]
	f.awaitN++
	return err
}
func (f *fakeSession) Closed(ctx context.Context) bool {
	f.closedQ++
	return f.s.pageClosed
}
func (f *fakeSession) Screenshot(ctx context.Context, path string) error {
	f.shots = append(f.shots, path)
	return nil
}
func (f *fakeSession) Close() error { return nil }

// fakeLauncher hands out one scripted session per NewSession call,
// keyed by the call order.
type fakeLauncher struct {
	mu       sync.Mutex
	scripts  []script
	sessions []*fakeSession
}

func (f *fakeLauncher) NewSession(ctx context.Context) (browser.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := len(f.sessions)
	var s script
	if n < len(f.scripts) {
		s = f.scripts[n]
	}
	sess := &fakeSession{s: s}
	f.sessions = append(f.sessions, sess)
	return sess, nil
}

type captureNotifier struct {
	mu     sync.Mutex
	events []notify.Event
}

func (c *captureNotifier) Notify(ctx context.Context, ev notify.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
	return nil
}

func (c *captureNotifier) ofKind(k notify.Kind) []notify.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []notify.Event
	for _, ev := range c.events {
		if ev.Kind == k {
			out = append(out, ev)
		}
	}
	return out
}

func testOptions(t *testing.T) Options {
	t.Helper()
	return Options{
		RetryMax:      2,
		RetryBackoff:  time.Millisecond,
		WarnTimeout:   10 * time.Millisecond,
		KillTimeout:   20 * time.Millisecond,
		ScreenshotDir: t.TempDir(),
	}
}

func target(day forms.Day) forms.Target {
	return forms.Target{
		Day:    day,
		URL:    fmt.Sprintf("https://docs.google.com/forms/d/e/%d/viewform", day),
		Reason: "",
	}
}

func TestRunSucceedsFirstAttempt(t *testing.T) {
	launcher := &fakeLauncher{scripts: []script{{}}}
	nc := &captureNotifier{}
	c := New(launcher, nc, testOptions(t), logx.Nop())

	sum := c.Run(context.Background(), schedule.Plan{Mode: schedule.ModeNow}, []forms.Target{target(2)})

	if len(sum.Results) != 1 {
		t.Fatalf("results = %d, want 1", len(sum.Results))
	}
	res := sum.Results[0]
	if res.Status != forms.StatusSucceeded {
		t.Fatalf("status = %s, want succeeded", res.Status)
	}
	if res.Attempts != 1 {
		t.Fatalf("attempts = %d, want 1", res.Attempts)
	}
	if len(launcher.sessions) != 1 {
		t.Fatalf("sessions = %d, want 1", len(launcher.sessions))
	}
	if len(nc.events) != 0 {
		t.Fatalf("unexpected notifications: %v", nc.events)
	}
}

func TestRunRetriesAfterFailureAndNotifiesOnce(t *testing.T) {
	launcher := &fakeLauncher{scripts: []script{
		{submitErr: errors.New("click lost")},
		{},
	}}
	nc := &captureNotifier{}
	c := New(launcher, nc, testOptions(t), logx.Nop())

	sum := c.Run(context.Background(), schedule.Plan{Mode: schedule.ModeNow}, []forms.Target{target(0)})

	res := sum.Results[0]
	if res.Status != forms.StatusSucceeded {
		t.Fatalf("status = %s, want succeeded", res.Status)
	}
	if res.Attempts != 2 {
		t.Fatalf("attempts = %d, want 2", res.Attempts)
	}
	ff := nc.ofKind(notify.KindFirstFailure)
	if len(ff) != 1 {
		t.Fatalf("first-failure events = %d, want 1", len(ff))
	}
	if ff[0].Form == nil || ff[0].Form.Day != 0 {
		t.Fatalf("first-failure form = %+v", ff[0].Form)
	}
	if ff[0].Screenshot == "" {
		t.Fatal("first-failure carries no screenshot path")
	}
}

func TestRunExhaustsRetryCap(t *testing.T) {
	fail := script{fillErr: errors.New("field missing")}
	launcher := &fakeLauncher{scripts: []script{fail, fail, fail, fail}}
	nc := &captureNotifier{}
	c := New(launcher, nc, testOptions(t), logx.Nop())

	sum := c.Run(context.Background(), schedule.Plan{Mode: schedule.ModeNow}, []forms.Target{target(4)})

	res := sum.Results[0]
	if res.Status != forms.StatusExhausted {
		t.Fatalf("status = %s, want exhausted", res.Status)
	}
	if res.Attempts != 3 {
		t.Fatalf("attempts = %d, want 3 (1 + 2 retries)", res.Attempts)
	}
	if len(launcher.sessions) != 3 {
		t.Fatalf("sessions = %d, want 3; a fourth attempt must never run", len(launcher.sessions))
	}
	// Only the first failure notifies; the rest stay quiet until the summary.
	if ff := nc.ofKind(notify.KindFirstFailure); len(ff) != 1 {
		t.Fatalf("first-failure events = %d, want 1", len(ff))
	}
}

func TestRunClosedFormIsTerminal(t *testing.T) {
	launcher := &fakeLauncher{scripts: []script{
		{fillErr: errors.New("radio missing"), pageClosed: true},
	}}
	nc := &captureNotifier{}
	c := New(launcher, nc, testOptions(t), logx.Nop())

	sum := c.Run(context.Background(), schedule.Plan{Mode: schedule.ModeNow}, []forms.Target{target(5)})

	res := sum.Results[0]
	if res.Status != forms.StatusClosed {
		t.Fatalf("status = %s, want closed", res.Status)
	}
	if res.Attempts != 1 {
		t.Fatalf("attempts = %d, want 1; closed forms are never retried", res.Attempts)
	}
	if len(launcher.sessions) != 1 {
		t.Fatalf("sessions = %d, want 1", len(launcher.sessions))
	}
	if ff := nc.ofKind(notify.KindFirstFailure); len(ff) != 1 {
		t.Fatalf("first-failure events = %d, want 1; a closed form still notifies right away", len(ff))
	}
}

func TestRunTimeoutWarningThenLateRedirect(t *testing.T) {
	launcher := &fakeLauncher{scripts: []script{
		{awaitErrs: []error{browser.ErrNoRedirect, nil}},
	}}
	nc := &captureNotifier{}
	c := New(launcher, nc, testOptions(t), logx.Nop())

	sum := c.Run(context.Background(), schedule.Plan{Mode: schedule.ModeNow}, []forms.Target{target(1)})

	res := sum.Results[0]
	if res.Status != forms.StatusSucceeded {
		t.Fatalf("status = %s, want succeeded after late redirect", res.Status)
	}
	tw := nc.ofKind(notify.KindTimeoutWarning)
	if len(tw) != 1 {
		t.Fatalf("timeout-warning events = %d, want 1", len(tw))
	}
}

func TestRunTimeoutWarningThenKill(t *testing.T) {
	launcher := &fakeLauncher{scripts: []script{
		{awaitErrs: []error{browser.ErrNoRedirect, browser.ErrNoRedirect}},
		{awaitErrs: []error{browser.ErrNoRedirect, browser.ErrNoRedirect}},
		{awaitErrs: []error{browser.ErrNoRedirect, browser.ErrNoRedirect}},
	}}
	nc := &captureNotifier{}
	c := New(launcher, nc, testOptions(t), logx.Nop())

	sum := c.Run(context.Background(), schedule.Plan{Mode: schedule.ModeNow}, []forms.Target{target(1)})

	res := sum.Results[0]
	if res.Status != forms.StatusExhausted {
		t.Fatalf("status = %s, want exhausted", res.Status)
	}
	// Each attempt warns once before giving up.
	if tw := nc.ofKind(notify.KindTimeoutWarning); len(tw) != 3 {
		t.Fatalf("timeout-warning events = %d, want 3", len(tw))
	}
}

func TestRunExactModeHoldsForSharedTarget(t *testing.T) {
	targetAt := time.Now().Add(time.Hour)
	launcher := &fakeLauncher{scripts: []script{{}, {}}}
	nc := &captureNotifier{}

	var mu sync.Mutex
	var slept []time.Time
	opt := testOptions(t)
	opt.SleepUntil = func(ctx context.Context, at time.Time) (time.Duration, error) {
		mu.Lock()
		slept = append(slept, at)
		mu.Unlock()
		return 2 * time.Millisecond, nil
	}
	c := New(launcher, nc, opt, logx.Nop())

	plan := schedule.Plan{Mode: schedule.ModeWait, Target: targetAt, Exact: true}
	sum := c.Run(context.Background(), plan, []forms.Target{target(2), target(3)})

	mu.Lock()
	defer mu.Unlock()
	if len(slept) != 2 {
		t.Fatalf("SleepUntil calls = %d, want one per target", len(slept))
	}
	for _, at := range slept {
		if !at.Equal(targetAt) {
			t.Fatalf("slept until %v, want shared target %v", at, targetAt)
		}
	}
	for _, res := range sum.Results {
		if res.SubmitSkew != 2*time.Millisecond {
			t.Fatalf("skew = %v, want 2ms", res.SubmitSkew)
		}
	}
}

func TestRunConcurrentTargetsKeepOrder(t *testing.T) {
	launcher := &fakeLauncher{scripts: []script{{}, {}, {}}}
	c := New(launcher, &captureNotifier{}, testOptions(t), logx.Nop())

	targets := []forms.Target{target(0), target(3), target(6)}
	sum := c.Run(context.Background(), schedule.Plan{Mode: schedule.ModeNow}, targets)

	if len(sum.Results) != 3 {
		t.Fatalf("results = %d, want 3", len(sum.Results))
	}
	for i, res := range sum.Results {
		if res.Target.Day != targets[i].Day {
			t.Fatalf("result %d is for day %s, want %s", i, res.Target.Day, targets[i].Day)
		}
		if res.Status != forms.StatusSucceeded {
			t.Fatalf("result %d status = %s", i, res.Status)
		}
	}
	if sum.OKCount() != 3 || sum.FailCount() != 0 {
		t.Fatalf("counts = %d ok / %d fail", sum.OKCount(), sum.FailCount())
	}
}

func TestRunMixedOutcomesAcrossConcurrentTargets(t *testing.T) {
	// Sessions are handed out in call order. With one target failing once,
	// three sessions are created in total; which target grabs which script
	// is racy, so both scripts after the first failure succeed.
	launcher := &fakeLauncher{scripts: []script{
		{submitErr: errors.New("click lost")},
		{},
		{},
	}}
	nc := &captureNotifier{}
	c := New(launcher, nc, testOptions(t), logx.Nop())

	sum := c.Run(context.Background(), schedule.Plan{Mode: schedule.ModeNow}, []forms.Target{target(2), target(5)})

	attempts := []int{sum.Results[0].Attempts, sum.Results[1].Attempts}
	if !(attempts[0] == 1 && attempts[1] == 2) && !(attempts[0] == 2 && attempts[1] == 1) {
		t.Fatalf("attempts = %v, want one target at 1 and one at 2", attempts)
	}
	for _, res := range sum.Results {
		if res.Status != forms.StatusSucceeded {
			t.Fatalf("status for %s = %s", res.Target.Day, res.Status)
		}
	}
	if ff := nc.ofKind(notify.KindFirstFailure); len(ff) != 1 {
		t.Fatalf("first-failure events = %d, want exactly 1", len(ff))
	}
}

func TestStateMachineRejectsIllegalTransition(t *testing.T) {
	s := StateSucceeded
	if _, err := s.advance(StateFilling); err == nil {
		t.Fatal("succeeded -> filling must be rejected")
	}
	s = StateClosed
	if !s.terminal() {
		t.Fatal("closed must be terminal")
	}
}
