package notify

import (
	"strings"
	"testing"
	"time"

	"leavebot/internal/forms"
)

var testAt = time.Date(2026, 8, 26, 13, 55, 0, 0, time.FixedZone("UTC+8", 8*3600))

func TestRenderReminder(t *testing.T) {
	t.Parallel()
	subject, body := Render(Event{
		Kind:    KindReminder,
		At:      testAt,
		Days:    []forms.Day{2, 5},
		Reasons: map[string]string{"六": "返鄉處理家中事務"},
	})
	if subject != "下午兩點準時劃假" {
		t.Fatalf("subject = %q", subject)
	}
	for _, want := range []string{"星期三", "星期六", "返鄉處理家中事務", "2026-08-26 13:55:00"} {
		if !strings.Contains(body, want) {
			t.Fatalf("body missing %q:\n%s", want, body)
		}
	}
}

func TestRenderTimeoutWarning(t *testing.T) {
	t.Parallel()
	target := forms.Target{Day: 2, URL: "https://docs.google.com/forms/x"}
	subject, body := Render(Event{Kind: KindTimeoutWarning, At: testAt, Form: &target})
	if subject != "警告: 星期三表單提交超時" {
		t.Fatalf("subject = %q", subject)
	}
	if !strings.Contains(body, "10秒內未轉跳") || !strings.Contains(body, "20秒") {
		t.Fatalf("body missing timing text:\n%s", body)
	}
}

func TestRenderFirstFailure(t *testing.T) {
	t.Parallel()
	target := forms.Target{Day: 5, URL: "https://docs.google.com/forms/sat"}
	subject, body := Render(Event{
		Kind: KindFirstFailure,
		At:   testAt,
		Form: &target,
		Err:  "element not found",
	})
	if subject != "傳送表單失敗 - 星期六" {
		t.Fatalf("subject = %q", subject)
	}
	for _, want := range []string{"星期六", target.URL, "element not found", "下一次嘗試"} {
		if !strings.Contains(body, want) {
			t.Fatalf("body missing %q:\n%s", want, body)
		}
	}
}

func TestRenderSummaryAllOK(t *testing.T) {
	t.Parallel()
	sum := forms.Summary{
		Finished: testAt,
		Results: []forms.Result{
			{Target: forms.Target{Day: 2}, Status: forms.StatusSucceeded},
			{Target: forms.Target{Day: 5, Reason: "返鄉"}, Status: forms.StatusSucceeded},
		},
	}
	subject, body := Render(Event{Kind: KindSummary, At: testAt, Summary: &sum})
	if subject != "表單填寫完成：全部成功（2個）" {
		t.Fatalf("subject = %q", subject)
	}
	if !strings.Contains(body, "[成功]") {
		t.Fatalf("body missing status tag:\n%s", body)
	}
	if !strings.Contains(body, "請假理由說明") {
		t.Fatalf("body missing reason section:\n%s", body)
	}
}

func TestRenderSummaryWithFailures(t *testing.T) {
	t.Parallel()
	sum := forms.Summary{
		Finished: testAt,
		Results: []forms.Result{
			{Target: forms.Target{Day: 2}, Status: forms.StatusSucceeded},
			{
				Target: forms.Target{Day: 6, URL: "https://docs.google.com/forms/sun"},
				Status: forms.StatusClosed,
				Err:    "form is no longer accepting responses",
			},
		},
	}
	subject, body := Render(Event{Kind: KindSummary, At: testAt, Summary: &sum})
	if subject != "表單填寫完成：成功1個，失敗1個" {
		t.Fatalf("subject = %q", subject)
	}
	for _, want := range []string{"[警告]", "星期日", "no longer accepting", "失敗的表單"} {
		if !strings.Contains(body, want) {
			t.Fatalf("body missing %q:\n%s", want, body)
		}
	}
}
