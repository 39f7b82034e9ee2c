package browser

import (
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"leavebot/internal/forms"
)

func TestScreenshotPath(t *testing.T) {
	t.Parallel()
	at := time.Date(2026, 8, 29, 14, 0, 3, 0, time.UTC)
	got := ScreenshotPath("./fail_img", 5, at)
	want := filepath.Join("./fail_img", "2026-08-29-Saturday.png")
	if got != want {
		t.Fatalf("path = %q, want %q", got, want)
	}
	if got := ScreenshotPath("x", forms.Day(42), at); filepath.Base(got) != "2026-08-29-Unknown.png" {
		t.Fatalf("out-of-range day path = %q", got)
	}
}

func TestSubmitRedirectPattern(t *testing.T) {
	t.Parallel()
	re := regexp.MustCompile(submitRedirectPattern)

	matches := []string{
		"https://docs.google.com/forms/d/e/abc/formResponse",
		"https://example.com/thankyou",
		"https://docs.google.com/forms/d/e/abc/viewform?edit2=token",
	}
	for _, u := range matches {
		if !re.MatchString(u) {
			t.Fatalf("%q should count as a confirmation URL", u)
		}
	}

	misses := []string{
		"https://docs.google.com/forms/d/e/abc/viewform",
		"https://docs.google.com/forms/d/e/abc/viewform?edit=token",
	}
	for _, u := range misses {
		if re.MatchString(u) {
			t.Fatalf("%q must not count as a confirmation URL", u)
		}
	}
}
