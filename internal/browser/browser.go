// Package browser wraps the Chrome DevTools automation needed to fill and
// submit one Google Form. Everything protocol-level is delegated to
// chromedp; this package only holds the form-specific interaction strategy.
package browser

import (
	"context"
	"errors"
	"os/exec"
	"path/filepath"
	"time"

	"leavebot/internal/forms"
)

var (
	// ErrFormClosed means the form no longer accepts responses. Terminal:
	// the caller must not retry.
	ErrFormClosed = errors.New("form is closed (not accepting responses)")

	// ErrNoRedirect means the submit click produced no confirmation
	// redirect within the wait window.
	ErrNoRedirect = errors.New("no redirect to the confirmation page")

	// ErrElementNotFound means every selector strategy for a required
	// element failed.
	ErrElementNotFound = errors.New("element not found")
)

// Options configures launched Chrome sessions.
type Options struct {
	Headless      bool
	NavTimeout    time.Duration
	ActionTimeout time.Duration

	// UserName is typed into the form's name field.
	UserName string
}

// Launcher creates isolated sessions. Each session owns its own browser
// process, so one form's crash or hang cannot corrupt another's state.
type Launcher interface {
	NewSession(ctx context.Context) (Session, error)
}

// Session is one form's execution context.
type Session interface {
	// Open navigates to the form and waits for its body to be ready.
	Open(ctx context.Context, url string) error
	// Fill fills all fields (name, vacation radio, reason) without
	// submitting.
	Fill(ctx context.Context, target forms.Target) error
	// Submit fires the submit click.
	Submit(ctx context.Context) error
	// AwaitOutcome waits up to d for the confirmation redirect and returns
	// ErrNoRedirect when it does not happen.
	AwaitOutcome(ctx context.Context, d time.Duration) error
	// Closed reports whether the page shows a "not accepting responses"
	// banner. Best-effort: errors read as "not closed".
	Closed(ctx context.Context) bool
	// Screenshot writes a full-page PNG to path.
	Screenshot(ctx context.Context, path string) error
	Close() error
}

// ScreenshotPath names a failure screenshot: YYYY-MM-DD-<Weekday>.png.
func ScreenshotPath(dir string, day forms.Day, now time.Time) string {
	return filepath.Join(dir, now.Format("2006-01-02")+"-"+day.English()+".png")
}

var chromeBinaries = []string{
	"google-chrome",
	"google-chrome-stable",
	"chromium",
	"chromium-browser",
	"headless-shell",
	"chrome",
}

// Probe reports the Chrome/Chromium binary the launcher would use.
// chromedp does the same lookup internally; this exists so `leavebot check`
// can fail early with a clear message.
func Probe() (string, error) {
	for _, name := range chromeBinaries {
		if path, err := exec.LookPath(name); err == nil {
			return path, nil
		}
	}
	return "", errors.New("no Chrome/Chromium binary found in PATH")
}
