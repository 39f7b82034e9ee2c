// Package forms holds the domain model for weekly leave-form targets.
//
// Form URLs are configured as a fixed 7-slot list, Monday through Sunday.
// Days are referred to by their Chinese tokens (一二三四五六日) everywhere a
// user sees them; indices are Monday-based to match the URL slots.
package forms

import (
	"fmt"
	"sort"
	"time"
	"unicode"
)

// SlotCount is the number of URL slots (Monday..Sunday).
const SlotCount = 7

// Day is a Monday-based weekday index (0=Monday .. 6=Sunday).
type Day int

var dayTokens = [SlotCount]string{"一", "二", "三", "四", "五", "六", "日"}

var dayEnglish = [SlotCount]string{
	"Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday", "Sunday",
}

// Token returns the Chinese weekday token, e.g. "三" for Wednesday.
func (d Day) Token() string {
	if d < 0 || d >= SlotCount {
		return "?"
	}
	return dayTokens[d]
}

// English returns the English weekday name (used in screenshot filenames).
func (d Day) English() string {
	if d < 0 || d >= SlotCount {
		return "Unknown"
	}
	return dayEnglish[d]
}

// Weekday converts to time.Weekday (Sunday-based).
func (d Day) Weekday() time.Weekday {
	if d == 6 {
		return time.Sunday
	}
	return time.Weekday(d + 1)
}

func (d Day) String() string { return "星期" + d.Token() }

// ParseDay resolves a Chinese weekday token to a Day.
func ParseDay(token string) (Day, error) {
	for i, t := range dayTokens {
		if t == token {
			return Day(i), nil
		}
	}
	return 0, fmt.Errorf("unknown weekday token %q (want one of 一二三四五六日)", token)
}

// FromWeekday converts a time.Weekday to a Monday-based Day.
func FromWeekday(wd time.Weekday) Day {
	if wd == time.Sunday {
		return 6
	}
	return Day(wd - 1)
}

// Target is one form to fill: a URL bound to a weekday, plus the
// free-text reason for days that require one. Immutable for a run.
type Target struct {
	Day            Day
	URL            string
	Reason         string
	ReasonRequired bool
}

// Dedup removes duplicate days and returns them in Monday..Sunday order.
func Dedup(days []Day) []Day {
	seen := map[Day]bool{}
	out := make([]Day, 0, len(days))
	for _, d := range days {
		if d < 0 || d >= SlotCount || seen[d] {
			continue
		}
		seen[d] = true
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// ReasonLength counts the runes of a reason with all whitespace removed.
// Full-width spaces (U+3000) count as whitespace too.
func ReasonLength(reason string) int {
	n := 0
	for _, r := range reason {
		if unicode.IsSpace(r) {
			continue
		}
		n++
	}
	return n
}
