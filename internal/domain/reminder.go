package domain

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

const (
	// TimeUnset marks a reminder without a time of day.
	TimeUnset = "時刻未設定"
	// UntitledReminder replaces an empty extracted title.
	UntitledReminder = "名称不明の予定"
	// DefaultReminderColor is the card color of new reminders.
	DefaultReminderColor = "bg-yellow-300"
)

// SortReminders orders reminders by time, unset times last. Equal keys keep
// their incoming order, so callers pass reminders in insertion order.
func SortReminders(reminders []Reminder) {
	sort.SliceStable(reminders, func(i, j int) bool {
		a, b := reminders[i].Time, reminders[j].Time
		switch {
		case a == TimeUnset && b == TimeUnset:
			return false
		case a == TimeUnset:
			return false
		case b == TimeUnset:
			return true
		default:
			return a < b
		}
	})
}

var clockPattern = regexp.MustCompile(`(\d{1,2}):(\d{2})|(\d{1,2})時(?:(\d{1,2})分)?`)

// FindClock returns the first time of day mentioned in text as "HH:MM".
// It understands "8:30", "8時30分" and "8時".
func FindClock(text string) (string, bool) {
	match := clockPattern.FindStringSubmatch(text)
	if match == nil {
		return "", false
	}
	hour, minute := match[1], match[2]
	if hour == "" {
		hour, minute = match[3], match[4]
	}
	return formatClock(hour, minute)
}

// NormalizeClock validates a reminder time and returns it as "HH:MM".
// Empty input and TimeUnset both normalize to TimeUnset.
func NormalizeClock(raw string) (string, error) {
	value := strings.TrimSpace(raw)
	if value == "" || value == TimeUnset {
		return TimeUnset, nil
	}
	match := clockPattern.FindStringSubmatch(value)
	if match == nil || match[0] != value {
		return "", fmt.Errorf("%w: time %q must be HH:MM", ErrInvalid, raw)
	}
	clock, ok := FindClock(value)
	if !ok {
		return "", fmt.Errorf("%w: time %q is out of range", ErrInvalid, raw)
	}
	return clock, nil
}

func formatClock(hourText, minuteText string) (string, bool) {
	hour, err := strconv.Atoi(hourText)
	if err != nil || hour > 23 {
		return "", false
	}
	minute := 0
	if minuteText != "" {
		minute, err = strconv.Atoi(minuteText)
		if err != nil || minute > 59 {
			return "", false
		}
	}
	return fmt.Sprintf("%02d:%02d", hour, minute), true
}

// TruncateRunes returns at most n runes of text.
func TruncateRunes(text string, n int) string {
	runes := []rune(text)
	if len(runes) <= n {
		return text
	}
	return string(runes[:n])
}
