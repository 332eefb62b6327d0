package domain

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var (
	ErrInvalidHour     = errors.New("invalid hour")
	ErrInvalidMinute   = errors.New("invalid minute")
	ErrInvalidWindow   = errors.New("invalid quiet hours window")
	ErrInvalidTimezone = errors.New("invalid timezone")
)

// ValidateHour checks 0 <= h <= 23.
func ValidateHour(h int) error {
	if h < 0 || h > 23 {
		return fmt.Errorf("%w: %d (want 0..23)", ErrInvalidHour, h)
	}
	return nil
}

// ValidateMinute checks 0 <= m <= 59.
func ValidateMinute(m int) error {
	if m < 0 || m > 59 {
		return fmt.Errorf("%w: %d (want 0..59)", ErrInvalidMinute, m)
	}
	return nil
}

// ParseClock parses "9", "09", "9:30" or "09:30" into hour and minute.
func ParseClock(s string) (hour, minute int, err error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, 0, fmt.Errorf("%w: empty", ErrInvalidHour)
	}
	hs, ms, hasMin := strings.Cut(s, ":")
	hour, err = strconv.Atoi(hs)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidHour, hs)
	}
	if err := ValidateHour(hour); err != nil {
		return 0, 0, err
	}
	if hasMin {
		minute, err = strconv.Atoi(ms)
		if err != nil {
			return 0, 0, fmt.Errorf("%w: %q", ErrInvalidMinute, ms)
		}
		if err := ValidateMinute(minute); err != nil {
			return 0, 0, err
		}
	}
	return hour, minute, nil
}

// ParseQuietWindow parses "22-08", "22:00–08:00" and similar into a start and end hour.
// Minutes, when given, must be zero: quiet hours have hour granularity.
func ParseQuietWindow(s string) (start, end int, err error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, 0, fmt.Errorf("%w: empty", ErrInvalidWindow)
	}
	sep := "–"
	if strings.Contains(s, "-") && !strings.Contains(s, "–") {
		sep = "-"
	}
	parts := strings.Split(s, sep)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("%w: expected HH–HH", ErrInvalidWindow)
	}
	var m int
	start, m, err = ParseClock(parts[0])
	if err != nil {
		return 0, 0, fmt.Errorf("from: %w", err)
	}
	if m != 0 {
		return 0, 0, fmt.Errorf("%w: minutes not supported", ErrInvalidWindow)
	}
	end, m, err = ParseClock(parts[1])
	if err != nil {
		return 0, 0, fmt.Errorf("to: %w", err)
	}
	if m != 0 {
		return 0, 0, fmt.Errorf("%w: minutes not supported", ErrInvalidWindow)
	}
	return start, end, nil
}

// ValidateTZ checks that the tz is a valid IANA location.
func ValidateTZ(tz string) (string, error) {
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrInvalidTimezone, tz)
	}
	return loc.String(), nil
}

// FormatClock returns HH:MM.
func FormatClock(hour, minute int) string {
	return fmt.Sprintf("%02d:%02d", hour, minute)
}

// LocalizeTime formats t in the given timezone as HH:MM.
func LocalizeTime(t time.Time, tz string) (string, error) {
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return "", err
	}
	return t.In(loc).Format("15:04"), nil
}
