package main

import (
	"context"
	"testing"

	"github.com/urfave/cli/v3"

	"leavebot/internal/schedule"
)

// resolveDelay runs delayMinutes through a parsed command line so IsSet
// reflects what the user actually typed.
func resolveDelay(t *testing.T, args ...string) (int, error) {
	t.Helper()
	var (
		got    int
		gotErr error
	)
	cmd := &cli.Command{
		Name: "leavebot",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "mode", Value: "wait"},
			&cli.IntFlag{Name: "delay-minutes"},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			mode, err := schedule.ParseMode(c.String("mode"))
			if err != nil {
				return err
			}
			got, gotErr = delayMinutes(c, mode)
			return nil
		},
	}
	if err := cmd.Run(context.Background(), append([]string{"leavebot"}, args...)); err != nil {
		t.Fatalf("Run: %v", err)
	}
	return got, gotErr
}

func TestDelayModeRequiresExplicitMinutes(t *testing.T) {
	t.Parallel()
	if _, err := resolveDelay(t, "--mode", "delay"); err == nil {
		t.Fatal("delay mode without --delay-minutes must be rejected")
	}
}

func TestDelayModeRejectsNonPositiveMinutes(t *testing.T) {
	t.Parallel()
	if _, err := resolveDelay(t, "--mode", "delay", "--delay-minutes", "0"); err == nil {
		t.Fatal("zero minutes must be rejected")
	}
	if _, err := resolveDelay(t, "--mode", "delay", "--delay-minutes", "-5"); err == nil {
		t.Fatal("negative minutes must be rejected")
	}
}

func TestDelayModeAcceptsPositiveMinutes(t *testing.T) {
	t.Parallel()
	n, err := resolveDelay(t, "--mode", "delay", "--delay-minutes", "10")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 10 {
		t.Fatalf("minutes = %d, want 10", n)
	}
}

func TestOtherModesIgnoreDelayFlag(t *testing.T) {
	t.Parallel()
	n, err := resolveDelay(t, "--mode", "now")
	if err != nil || n != 0 {
		t.Fatalf("now mode: n=%d err=%v", n, err)
	}
	n, err = resolveDelay(t)
	if err != nil || n != 0 {
		t.Fatalf("wait mode: n=%d err=%v", n, err)
	}
}
