// Package config loads, validates and (while the scheduler waits) hot
// reloads the leavebot configuration.
//
// Both JSON and YAML files are accepted; YAML is coerced to JSON so a single
// strict decoder (DisallowUnknownFields) covers both. Components never see
// the file directly: they get an immutable *Config snapshot.
package config

import (
	"fmt"
	"strings"
	"time"
)

type Config struct {
	User     UserConfig     `json:"user"`
	Email    EmailConfig    `json:"email"`
	Telegram TelegramConfig `json:"telegram,omitempty"`
	Dates    DatesConfig    `json:"dates"`

	// FormURLs has exactly 7 entries, Monday through Sunday.
	FormURLs []string `json:"forms_urls"`

	Schedule ScheduleConfig `json:"schedule"`
	Browser  BrowserConfig  `json:"browser,omitempty"`
	Run      RunConfig      `json:"run,omitempty"`
	Storage  *StorageConfig `json:"storage,omitempty"`
	Logging  LoggingConfig  `json:"logging,omitempty"`
}

type UserConfig struct {
	// Name is typed into the form's 姓名 field.
	Name string `json:"name"`
}

// EmailConfig controls the SMTP notification channel.
//
// The app password is NOT stored here: KeyFile points at a one-line
// KEY=value file holding the Gmail app password.
type EmailConfig struct {
	Enabled    bool   `json:"enabled"`
	Account    string `json:"account"`
	Recipient  string `json:"recipient"`
	SenderName string `json:"sender_name,omitempty"`
	SMTPHost   string `json:"smtp_host,omitempty"` // default: smtp.gmail.com
	SMTPPort   int    `json:"smtp_port,omitempty"` // default: 587
	KeyFile    string `json:"key_file,omitempty"`  // default: ./mail_key.env
}

// TelegramConfig controls the optional send-only Telegram channel.
type TelegramConfig struct {
	Enabled bool   `json:"enabled"`
	Token   string `json:"token,omitempty"`
	ChatID  int64  `json:"chat_id,omitempty"`
}

type DatesConfig struct {
	// Weekdays lists the days to fill, by Chinese token ("一".."日").
	Weekdays []string `json:"weekdays"`
	// Reasons maps a weekday token to its leave reason text.
	Reasons map[string]string `json:"reasons,omitempty"`
}

// ScheduleConfig describes the weekly target instant.
//
// All durations are Go duration strings (e.g. "30s", "5m").
type ScheduleConfig struct {
	Weekday  string `json:"weekday,omitempty"`  // default: "三"
	At       string `json:"at,omitempty"`       // "HH:MM:SS", default "14:00:00"
	Timezone string `json:"timezone,omitempty"` // default: "Asia/Taipei"

	// PrefillLead is how long before the target the forms are prefilled.
	PrefillLead string `json:"prefill_lead,omitempty"` // default: "30s"
	// ReminderLead is how long before the target the reminder goes out.
	ReminderLead string `json:"reminder_lead,omitempty"` // default: "5m"
}

type BrowserConfig struct {
	Headless *bool `json:"headless,omitempty"` // default: true

	NavTimeout    string `json:"nav_timeout,omitempty"`    // default: "30s"
	ActionTimeout string `json:"action_timeout,omitempty"` // default: "10s"

	// SubmitWarnTimeout: no redirect within this window after the submit
	// click triggers a timeout-warning notification.
	SubmitWarnTimeout string `json:"submit_warn_timeout,omitempty"` // default: "10s"
	// SubmitKillTimeout: total redirect wait before the attempt fails.
	SubmitKillTimeout string `json:"submit_kill_timeout,omitempty"` // default: "20s"
}

type RunConfig struct {
	// RetryMax is the number of retries after the initial attempt.
	RetryMax *int `json:"retry_max,omitempty"` // default: 2
	// RetryBackoff is the pause before each retry.
	RetryBackoff string `json:"retry_backoff,omitempty"` // default: "3s"

	MinReasonLength int    `json:"min_reason_length,omitempty"` // default: 15
	ScreenshotDir   string `json:"screenshot_dir,omitempty"`    // default: "./fail_img"

	// ReasonRequiredDays lists the tokens whose forms demand a reason.
	ReasonRequiredDays []string `json:"reason_required_days,omitempty"` // default: 六, 日
}

// StorageConfig controls the optional run-history store.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./leavebot.db" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string
}

type LoggingConfig struct {
	Level   string      `json:"level,omitempty"`
	Console *bool       `json:"console,omitempty"`
	File    LoggingFile `json:"file,omitempty"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path,omitempty"`
}

// ---- Defaults ----

const (
	DefaultWeekday       = "三"
	DefaultAt            = "14:00:00"
	DefaultTimezone      = "Asia/Taipei"
	DefaultRetryMax      = 2
	DefaultMinReasonLen  = 15
	DefaultScreenshotDir = "./fail_img"
	DefaultSMTPHost      = "smtp.gmail.com"
	DefaultSMTPPort      = 587
	DefaultKeyFile       = "./mail_key.env"
)

func (c ScheduleConfig) WeekdayOrDefault() string {
	if strings.TrimSpace(c.Weekday) == "" {
		return DefaultWeekday
	}
	return strings.TrimSpace(c.Weekday)
}

func (c ScheduleConfig) AtOrDefault() string {
	if strings.TrimSpace(c.At) == "" {
		return DefaultAt
	}
	return strings.TrimSpace(c.At)
}

func (c ScheduleConfig) Location() (*time.Location, error) {
	tz := strings.TrimSpace(c.Timezone)
	if tz == "" {
		tz = DefaultTimezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		// tzdata may be missing on minimal hosts; Taipei has no DST.
		if tz == DefaultTimezone {
			return time.FixedZone("UTC+8", 8*3600), nil
		}
		return nil, fmt.Errorf("schedule.timezone: %w", err)
	}
	return loc, nil
}

func (c ScheduleConfig) PrefillLeadOrDefault() time.Duration {
	return durationOr(c.PrefillLead, 30*time.Second)
}

func (c ScheduleConfig) ReminderLeadOrDefault() time.Duration {
	return durationOr(c.ReminderLead, 5*time.Minute)
}

func (c BrowserConfig) HeadlessOrDefault() bool {
	if c.Headless == nil {
		return true
	}
	return *c.Headless
}

func (c BrowserConfig) NavTimeoutOrDefault() time.Duration {
	return durationOr(c.NavTimeout, 30*time.Second)
}

func (c BrowserConfig) ActionTimeoutOrDefault() time.Duration {
	return durationOr(c.ActionTimeout, 10*time.Second)
}

func (c BrowserConfig) SubmitWarnTimeoutOrDefault() time.Duration {
	return durationOr(c.SubmitWarnTimeout, 10*time.Second)
}

func (c BrowserConfig) SubmitKillTimeoutOrDefault() time.Duration {
	return durationOr(c.SubmitKillTimeout, 20*time.Second)
}

func (c RunConfig) RetryMaxOrDefault() int {
	if c.RetryMax == nil {
		return DefaultRetryMax
	}
	if *c.RetryMax < 0 {
		return 0
	}
	return *c.RetryMax
}

func (c RunConfig) RetryBackoffOrDefault() time.Duration {
	return durationOr(c.RetryBackoff, 3*time.Second)
}

func (c RunConfig) MinReasonLengthOrDefault() int {
	if c.MinReasonLength <= 0 {
		return DefaultMinReasonLen
	}
	return c.MinReasonLength
}

func (c RunConfig) ScreenshotDirOrDefault() string {
	if strings.TrimSpace(c.ScreenshotDir) == "" {
		return DefaultScreenshotDir
	}
	return c.ScreenshotDir
}

func (c RunConfig) ReasonRequiredDaysOrDefault() []string {
	if len(c.ReasonRequiredDays) == 0 {
		return []string{"六", "日"}
	}
	return c.ReasonRequiredDays
}

func (c EmailConfig) SMTPHostOrDefault() string {
	if strings.TrimSpace(c.SMTPHost) == "" {
		return DefaultSMTPHost
	}
	return c.SMTPHost
}

func (c EmailConfig) SMTPPortOrDefault() int {
	if c.SMTPPort <= 0 {
		return DefaultSMTPPort
	}
	return c.SMTPPort
}

func (c EmailConfig) KeyFileOrDefault() string {
	if strings.TrimSpace(c.KeyFile) == "" {
		return DefaultKeyFile
	}
	return c.KeyFile
}

func (c LoggingConfig) Logx() LoggingResolved {
	level := c.Level
	if strings.TrimSpace(level) == "" {
		level = "info"
	}
	console := true
	if c.Console != nil {
		console = *c.Console
	}
	return LoggingResolved{Level: level, Console: console, FileEnabled: c.File.Enabled, FilePath: c.File.Path}
}

// LoggingResolved mirrors logx.Config without importing it (config stays
// dependency-light so everything can import it).
type LoggingResolved struct {
	Level       string
	Console     bool
	FileEnabled bool
	FilePath    string
}

func durationOr(raw string, def time.Duration) time.Duration {
	s := strings.TrimSpace(raw)
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

// ParseDurationField parses a duration string, rejecting negatives.
// Empty means "use the default" and returns 0.
func ParseDurationField(path, raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", path, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: duration must be >= 0", path)
	}
	return d, nil
}
