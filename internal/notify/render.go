package notify

import (
	"fmt"
	"strings"
)

const timeLayout = "2006-01-02 15:04:05"

// Render produces the human-facing subject and body for an event. All
// channels share these texts; mail uses both, telegram joins them.
func Render(ev Event) (subject, body string) {
	switch ev.Kind {
	case KindReminder:
		return renderReminder(ev)
	case KindTimeoutWarning:
		return renderTimeoutWarning(ev)
	case KindFirstFailure:
		return renderFirstFailure(ev)
	case KindSummary:
		return renderSummary(ev)
	default:
		return fmt.Sprintf("leavebot 事件：%s", ev.Kind), ""
	}
}

func renderReminder(ev Event) (string, string) {
	var days []string
	for _, d := range ev.Days {
		days = append(days, d.String())
	}

	var reasons strings.Builder
	for _, d := range ev.Days {
		if r := ev.Reasons[d.Token()]; r != "" {
			fmt.Fprintf(&reasons, "  %s：%s\n", d, r)
		}
	}
	reasonSection := ""
	if reasons.Len() > 0 {
		reasonSection = "\n請假理由說明：\n" + reasons.String()
	}

	body := fmt.Sprintf(`劃假機器人提醒通知

提醒時間：%s

本次將準時執行劃假作業。

劃假星期：
  %s
%s
程式將在 5 分鐘後自動執行。

----
本郵件由表單填寫機器人自動發送
`, ev.At.Format(timeLayout), strings.Join(days, "、"), reasonSection)

	return "下午兩點準時劃假", body
}

func renderTimeoutWarning(ev Event) (string, string) {
	day := "?"
	if ev.Form != nil {
		day = ev.Form.Day.String()
	}
	subject := fmt.Sprintf("警告: %s表單提交超時", day)
	body := fmt.Sprintf(`表單填寫警告通知

時間：%s
星期：%s

警告內容：
%s的表單在點擊提交後，10秒內未轉跳到成功頁面。
程式將繼續等待至20秒，若仍未成功則會標記為失敗。

可能原因：
1. 網路速度較慢
2. Google 伺服器回應延遲
3. 表單設定有誤

程式將繼續嘗試，請留意最終結果通知。

----
自動發送於表單提交後第10秒
`, ev.At.Format(timeLayout), day, day)
	return subject, body
}

func renderFirstFailure(ev Event) (string, string) {
	day, url := "?", "?"
	if ev.Form != nil {
		day = ev.Form.Day.String()
		url = ev.Form.URL
	}
	subject := fmt.Sprintf("傳送表單失敗 - %s", day)
	body := fmt.Sprintf(`表單填寫失敗通知

時間：%s

以下星期劃假失敗：
  %s

表單資訊：
  %s：%s

錯誤訊息：
  %s

程式將進行下一次嘗試，請留意最終結果通知。

----
本郵件由表單填寫機器人自動發送（第一次失敗通知）
`, ev.At.Format(timeLayout), day, day, url, ev.Err)
	return subject, body
}

func renderSummary(ev Event) (string, string) {
	s := ev.Summary
	if s == nil {
		return "表單填寫完成", ""
	}
	total := len(s.Results)
	ok, fail := s.OKCount(), s.FailCount()

	var subject, status string
	if fail == 0 {
		subject = fmt.Sprintf("表單填寫完成：全部成功（%d個）", total)
		status = "[成功]"
	} else {
		subject = fmt.Sprintf("表單填寫完成：成功%d個，失敗%d個", ok, fail)
		status = "[警告]"
	}

	var okLines, failLines strings.Builder
	for _, r := range s.Results {
		if r.Status.OK() {
			fmt.Fprintf(&okLines, "  - %s\n", r.Target.Day)
		} else {
			fmt.Fprintf(&failLines, "  - %s：%s\n    錯誤：%s\n", r.Target.Day, r.Target.URL, r.Err)
		}
	}
	if okLines.Len() == 0 {
		okLines.WriteString("  （無）\n")
	}
	if failLines.Len() == 0 {
		failLines.WriteString("  （無）\n")
	}

	var reasons strings.Builder
	for _, r := range s.Results {
		if r.Target.Reason != "" {
			fmt.Fprintf(&reasons, "  %s：%s\n", r.Target.Day, r.Target.Reason)
		}
	}
	reasonSection := ""
	if reasons.Len() > 0 {
		reasonSection = fmt.Sprintf("\n請假理由說明：\n%s\n====================================\n", reasons.String())
	}

	body := fmt.Sprintf(`%s 表單填寫執行報告

====================================
執行結束時間：%s
總表單數：%d
成功數量：%d
失敗數量：%d
====================================
%s
成功的表單：
%s
失敗的表單：
%s
====================================

本郵件由表單填寫機器人自動發送。
`, status, s.Finished.Format(timeLayout), total, ok, fail, reasonSection, okLines.String(), failLines.String())

	return subject, body
}
