// Package timeparse turns the time arguments accepted by the CLI into
// instants for result filters.
package timeparse

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	dps "github.com/markusmobius/go-dateparser"
)

var (
	nowMinusPrefix  = regexp.MustCompile(`(?i)^\s*now\s*-`)
	nowMinusPattern = regexp.MustCompile(`(?i)^\s*now\s*-\s*(.*)$`)
	durationPattern = regexp.MustCompile(`(?i)^(\d+)\s*(s|sec|secs|second|seconds|h|hr|hrs|hour|hours|m|min|mins|minute|minutes|d|day|days|w|week|weeks)$`)
)

// ParseError reports an argument that is not a usable time.
type ParseError struct {
	Field string
	Input string
	msg   string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s %q: %s", e.Field, e.Input, e.msg)
}

func newParseError(field, input, format string, args ...any) *ParseError {
	return &ParseError{Field: field, Input: input, msg: fmt.Sprintf(format, args...)}
}

// Parse interprets s relative to now. Supported forms:
//   - epoch seconds: "1403827200"
//   - RFC3339: "2014-06-27T00:00:00Z"
//   - "now-<n><unit>" with units s, m, h, d, w: "now-2h", "now-30m"
//   - anything go-dateparser understands: "yesterday", "2 hours ago", "27 June 2014"
//
// Numeric input is always taken as epoch seconds. Results are in UTC.
func Parse(s, field string, now time.Time) (time.Time, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return time.Time{}, newParseError(field, s, "time is required")
	}

	if epoch, err := strconv.ParseInt(trimmed, 10, 64); err == nil {
		if epoch < 0 {
			return time.Time{}, newParseError(field, s, "epoch must be non-negative")
		}
		return time.Unix(epoch, 0).UTC(), nil
	}

	if t, err := time.Parse(time.RFC3339, trimmed); err == nil {
		return t.UTC(), nil
	}

	// "now-..." never falls back to the date parser.
	if nowMinusPrefix.MatchString(trimmed) {
		return parseNowMinus(trimmed, field, now)
	}

	parser := dps.Parser{}
	cfg := &dps.Configuration{
		CurrentTime:         now,
		DefaultTimezone:     time.UTC,
		PreferredDateSource: dps.CurrentPeriod,
	}
	parsed, err := parser.Parse(cfg, trimmed)
	if err != nil {
		return time.Time{}, newParseError(field, s, "not an epoch, RFC3339 or human-readable date: %v", err)
	}
	if parsed.IsZero() {
		return time.Time{}, newParseError(field, s, "could not be parsed as a date")
	}
	return parsed.Time.UTC(), nil
}

func parseNowMinus(input, field string, now time.Time) (time.Time, error) {
	m := nowMinusPattern.FindStringSubmatch(input)
	durationStr := ""
	if len(m) == 2 {
		durationStr = strings.TrimSpace(m[1])
	}
	if durationStr == "" {
		return time.Time{}, newParseError(field, input, "duration is required after 'now-'")
	}

	dm := durationPattern.FindStringSubmatch(durationStr)
	if len(dm) != 3 {
		return time.Time{}, newParseError(field, input, "expected 'now-<number><unit>' (e.g. 'now-2h', 'now-30m')")
	}
	amount, err := strconv.ParseInt(dm[1], 10, 64)
	if err != nil {
		return time.Time{}, newParseError(field, input, "invalid number %s", dm[1])
	}

	now = now.UTC()
	unit := strings.ToLower(dm[2])
	switch {
	case strings.HasPrefix(unit, "s"):
		return now.Add(-time.Duration(amount) * time.Second), nil
	case strings.HasPrefix(unit, "h"):
		return now.Add(-time.Duration(amount) * time.Hour), nil
	case strings.HasPrefix(unit, "m"):
		return now.Add(-time.Duration(amount) * time.Minute), nil
	case strings.HasPrefix(unit, "d"):
		return now.AddDate(0, 0, -int(amount)), nil
	default:
		return now.AddDate(0, 0, -7*int(amount)), nil
	}
}

// ParseOptional returns the zero time for an empty argument.
func ParseOptional(s, field string, now time.Time) (time.Time, error) {
	if strings.TrimSpace(s) == "" {
		return time.Time{}, nil
	}
	return Parse(s, field, now)
}

// ParseRange parses optional start and end arguments. When both are set,
// end must be after start.
func ParseRange(startStr, endStr string, now time.Time) (start, end time.Time, err error) {
	if start, err = ParseOptional(startStr, "start", now); err != nil {
		return time.Time{}, time.Time{}, err
	}
	if end, err = ParseOptional(endStr, "end", now); err != nil {
		return time.Time{}, time.Time{}, err
	}
	if !start.IsZero() && !end.IsZero() && !end.After(start) {
		return time.Time{}, time.Time{}, newParseError("end", endStr, "must be after start %s", start.Format(time.RFC3339))
	}
	return start, end, nil
}
