package config

import (
	"fmt"
	"net/url"
	"strings"

	"leavebot/internal/forms"
)

// ValidationError is a fatal configuration problem. The message always
// carries the expected and actual values so the user can fix the file
// without digging through code.
type ValidationError struct {
	Field    string
	Expected string
	Actual   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config: %s: expected %s, got %s", e.Field, e.Expected, e.Actual)
}

func invalid(field, expected, actual string) *ValidationError {
	return &ValidationError{Field: field, Expected: expected, Actual: actual}
}

// Validate checks the config before any scheduling or browser work starts.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.User.Name) == "" {
		return invalid("user.name", "a non-empty name", "empty")
	}

	if len(c.FormURLs) != forms.SlotCount {
		return invalid("forms_urls",
			fmt.Sprintf("exactly %d URLs (Monday..Sunday)", forms.SlotCount),
			fmt.Sprintf("%d", len(c.FormURLs)))
	}
	for i, raw := range c.FormURLs {
		u, err := url.Parse(strings.TrimSpace(raw))
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return invalid(fmt.Sprintf("forms_urls[%d]", i), "an absolute http(s) URL", fmt.Sprintf("%q", raw))
		}
	}

	if len(c.Dates.Weekdays) == 0 {
		return invalid("dates.weekdays", "at least one weekday token", "empty list")
	}
	days := make([]forms.Day, 0, len(c.Dates.Weekdays))
	for _, token := range c.Dates.Weekdays {
		d, err := forms.ParseDay(strings.TrimSpace(token))
		if err != nil {
			return invalid("dates.weekdays", "tokens from 一二三四五六日", fmt.Sprintf("%q", token))
		}
		days = append(days, d)
	}

	if err := c.validateReasons(days); err != nil {
		return err
	}

	if _, err := forms.ParseDay(c.Schedule.WeekdayOrDefault()); err != nil {
		return invalid("schedule.weekday", "a token from 一二三四五六日", fmt.Sprintf("%q", c.Schedule.Weekday))
	}
	if _, _, _, err := ParseClock(c.Schedule.AtOrDefault()); err != nil {
		return invalid("schedule.at", `a clock time "HH:MM:SS"`, fmt.Sprintf("%q: %v", c.Schedule.At, err))
	}
	if _, err := c.Schedule.Location(); err != nil {
		return invalid("schedule.timezone", "an IANA zone name", fmt.Sprintf("%q", c.Schedule.Timezone))
	}

	for path, raw := range map[string]string{
		"schedule.prefill_lead":        c.Schedule.PrefillLead,
		"schedule.reminder_lead":       c.Schedule.ReminderLead,
		"browser.nav_timeout":          c.Browser.NavTimeout,
		"browser.action_timeout":       c.Browser.ActionTimeout,
		"browser.submit_warn_timeout":  c.Browser.SubmitWarnTimeout,
		"browser.submit_kill_timeout":  c.Browser.SubmitKillTimeout,
		"run.retry_backoff":            c.Run.RetryBackoff,
	} {
		if _, err := ParseDurationField(path, raw); err != nil {
			return err
		}
	}
	if c.Browser.SubmitKillTimeoutOrDefault() <= c.Browser.SubmitWarnTimeoutOrDefault() {
		return invalid("browser.submit_kill_timeout",
			fmt.Sprintf("longer than submit_warn_timeout (%s)", c.Browser.SubmitWarnTimeoutOrDefault()),
			c.Browser.SubmitKillTimeoutOrDefault().String())
	}

	if c.Email.Enabled {
		if strings.TrimSpace(c.Email.Account) == "" {
			return invalid("email.account", "a sender address", "empty")
		}
		if strings.TrimSpace(c.Email.Recipient) == "" {
			return invalid("email.recipient", "a recipient address", "empty")
		}
	}
	if c.Telegram.Enabled {
		if strings.TrimSpace(c.Telegram.Token) == "" || c.Telegram.ChatID == 0 {
			return invalid("telegram", "token and chat_id when enabled", "missing")
		}
	}
	if c.Storage != nil && c.Storage.Driver != "" && c.Storage.Driver != "sqlite" {
		return invalid("storage.driver", `"sqlite" or empty`, fmt.Sprintf("%q", c.Storage.Driver))
	}

	return nil
}

// validateReasons enforces the minimum reason length on days that demand a
// reason (weekend by default). The error spells out both counts.
func (c *Config) validateReasons(requested []forms.Day) error {
	required := map[string]bool{}
	for _, token := range c.Run.ReasonRequiredDaysOrDefault() {
		if _, err := forms.ParseDay(token); err != nil {
			return invalid("run.reason_required_days", "tokens from 一二三四五六日", fmt.Sprintf("%q", token))
		}
		required[token] = true
	}

	minLen := c.Run.MinReasonLengthOrDefault()
	for _, d := range forms.Dedup(requested) {
		token := d.Token()
		if !required[token] {
			continue
		}
		reason, ok := c.Dates.Reasons[token]
		if !ok || strings.TrimSpace(reason) == "" {
			return invalid("dates.reasons."+token,
				fmt.Sprintf("a reason of at least %d non-whitespace characters", minLen),
				"missing")
		}
		if n := forms.ReasonLength(reason); n < minLen {
			return invalid("dates.reasons."+token,
				fmt.Sprintf("at least %d non-whitespace characters", minLen),
				fmt.Sprintf("%d (%q)", n, reason))
		}
	}
	return nil
}

// ParseClock parses "HH:MM" or "HH:MM:SS".
func ParseClock(s string) (hour, minute, second int, err error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 && len(parts) != 3 {
		return 0, 0, 0, fmt.Errorf("want HH:MM[:SS], got %q", s)
	}
	read := func(p string, max int) (int, error) {
		var v int
		if _, err := fmt.Sscanf(p, "%d", &v); err != nil {
			return 0, fmt.Errorf("not a number: %q", p)
		}
		if v < 0 || v > max {
			return 0, fmt.Errorf("out of range: %d", v)
		}
		return v, nil
	}
	if hour, err = read(parts[0], 23); err != nil {
		return 0, 0, 0, err
	}
	if minute, err = read(parts[1], 59); err != nil {
		return 0, 0, 0, err
	}
	if len(parts) == 3 {
		if second, err = read(parts[2], 59); err != nil {
			return 0, 0, 0, err
		}
	}
	return hour, minute, second, nil
}

// Targets binds the requested weekdays to their URL slots and reasons.
// Call only after Validate.
func (c *Config) Targets() []forms.Target {
	required := map[string]bool{}
	for _, token := range c.Run.ReasonRequiredDaysOrDefault() {
		required[token] = true
	}

	var days []forms.Day
	for _, token := range c.Dates.Weekdays {
		if d, err := forms.ParseDay(strings.TrimSpace(token)); err == nil {
			days = append(days, d)
		}
	}

	out := make([]forms.Target, 0, len(days))
	for _, d := range forms.Dedup(days) {
		out = append(out, forms.Target{
			Day:            d,
			URL:            strings.TrimSpace(c.FormURLs[int(d)]),
			Reason:         c.Dates.Reasons[d.Token()],
			ReasonRequired: required[d.Token()],
		})
	}
	return out
}
