package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	"leavebot/pkg/logx"
)

type stubChannel struct {
	name  string
	err   error
	calls int
}

func (s *stubChannel) Name() string { return s.name }
func (s *stubChannel) Notify(ctx context.Context, ev Event) error {
	s.calls++
	return s.err
}

func TestDispatcherFansOutPastFailures(t *testing.T) {
	t.Parallel()
	bad := &stubChannel{name: "mail", err: errors.New("smtp down")}
	good := &stubChannel{name: "telegram"}
	d := NewDispatcher(logx.Nop(), 100, bad, good)

	err := d.Notify(context.Background(), Event{Kind: KindSummary})
	if !errors.Is(err, bad.err) {
		t.Fatalf("err = %v, want first channel error", err)
	}
	if bad.calls != 1 || good.calls != 1 {
		t.Fatalf("calls = %d/%d; a failing channel must not block the next", bad.calls, good.calls)
	}
}

func TestDispatcherRateLimitStopsFanoutOnDeadline(t *testing.T) {
	t.Parallel()
	first := &stubChannel{name: "mail"}
	second := &stubChannel{name: "telegram"}
	// 1/s with burst 1: the first send takes the only token, the second
	// would have to wait a full second.
	d := NewDispatcher(logx.Nop(), 1, first, second)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := d.Notify(ctx, Event{Kind: KindSummary})
	if err == nil {
		t.Fatal("expected the limiter to reject the second send against the deadline")
	}
	if first.calls != 1 {
		t.Fatalf("first channel calls = %d, want 1", first.calls)
	}
	if second.calls != 0 {
		t.Fatalf("second channel calls = %d; it must wait on the limiter", second.calls)
	}
}

func TestDispatcherStampsEventTime(t *testing.T) {
	t.Parallel()
	ch := &stubChannel{name: "mail"}
	d := NewDispatcher(logx.Nop(), 100, ch)
	if err := d.Notify(context.Background(), Event{Kind: KindReminder}); err != nil {
		t.Fatalf("Notify error: %v", err)
	}
	if ch.calls != 1 {
		t.Fatalf("calls = %d", ch.calls)
	}
}
