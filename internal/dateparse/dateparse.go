// Package dateparse parses natural language dates and times for order deadlines.
package dateparse

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// DefaultHour is the time of day used when the input names only a date.
const DefaultHour = 12

// Parse parses a natural language date-time relative to now.
// Supported forms:
//   - a date: today, tomorrow, monday, next friday, next week, eow, eom,
//     +N, in N days, in N weeks, YYYY-MM-DD
//   - a time: 7pm, 7:30 pm, 19:00, noon, midnight
//   - a date and a time, optionally joined by "at": "friday 7pm", "tomorrow at 19:30"
//   - a duration from now: in N hours, in N minutes
//   - an ISO date-time: 2024-06-01T19:00, 2024-06-01 19:00
//
// A date without a time uses DefaultHour. A time without a date means the
// next occurrence of that time.
func Parse(input string) (time.Time, error) {
	return ParseFrom(input, time.Now())
}

// ParseFrom parses relative to the given reference time.
func ParseFrom(input string, now time.Time) (time.Time, error) {
	s := strings.Join(strings.Fields(strings.ToLower(input)), " ")
	if s == "" {
		return time.Time{}, fmt.Errorf("empty date")
	}

	for _, layout := range isoLayouts {
		if t, err := time.ParseInLocation(layout, s, now.Location()); err == nil {
			return t, nil
		}
	}
	if t, err := time.Parse(time.RFC3339, strings.ToUpper(s)); err == nil {
		return t.In(now.Location()), nil
	}

	if match := inHoursPattern.FindStringSubmatch(s); match != nil {
		n, _ := strconv.Atoi(match[1])
		return now.Add(time.Duration(n) * time.Hour).Truncate(time.Minute), nil
	}
	if match := inMinutesPattern.FindStringSubmatch(s); match != nil {
		n, _ := strconv.Atoi(match[1])
		return now.Add(time.Duration(n) * time.Minute).Truncate(time.Minute), nil
	}

	datePart, hour, minute, hasTime := splitTime(s)
	if datePart == "" {
		if !hasTime {
			return time.Time{}, fmt.Errorf("unrecognized date %q", input)
		}
		t := at(now, hour, minute)
		if !t.After(now) {
			t = t.AddDate(0, 0, 1)
		}
		return t, nil
	}

	day, ok := parseDate(datePart, now)
	if !ok {
		return time.Time{}, fmt.Errorf("unrecognized date %q", input)
	}
	if !hasTime {
		hour, minute = DefaultHour, 0
	}
	return at(day, hour, minute), nil
}

var (
	isoLayouts = []string{
		"2006-01-02t15:04:05",
		"2006-01-02t15:04",
		"2006-01-02 15:04:05",
		"2006-01-02 15:04",
	}

	datePattern      = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	inDaysPattern    = regexp.MustCompile(`^in (\d+) days?$`)
	inWeeksPattern   = regexp.MustCompile(`^in (\d+) weeks?$`)
	inHoursPattern   = regexp.MustCompile(`^in (\d+) (?:hours?|hrs?)$`)
	inMinutesPattern = regexp.MustCompile(`^in (\d+) (?:minutes?|mins?)$`)
	clockPattern     = regexp.MustCompile(`^(\d{1,2})(?::(\d{2}))? ?(am|pm)?$`)
)

// splitTime separates a trailing time of day from the date words.
func splitTime(s string) (datePart string, hour, minute int, ok bool) {
	if before, after, found := strings.Cut(s, " at "); found {
		if h, m, ok := parseClock(after); ok {
			return before, h, m, true
		}
		return s, 0, 0, false
	}

	words := strings.Fields(s)
	// "7:30 pm" spans two words; try the longer suffix first.
	for n := min(2, len(words)); n >= 1; n-- {
		suffix := strings.Join(words[len(words)-n:], " ")
		if h, m, ok := parseClock(suffix); ok {
			return strings.Join(words[:len(words)-n], " "), h, m, true
		}
	}
	return s, 0, 0, false
}

// parseClock parses a time of day. A bare number is only a time with a
// colon or an am/pm suffix, so "+5" and "2024-01-02" stay dates.
func parseClock(s string) (hour, minute int, ok bool) {
	switch s {
	case "noon", "midday":
		return 12, 0, true
	case "midnight":
		return 0, 0, true
	}

	match := clockPattern.FindStringSubmatch(s)
	if match == nil || (match[2] == "" && match[3] == "") {
		return 0, 0, false
	}
	hour, _ = strconv.Atoi(match[1])
	if match[2] != "" {
		minute, _ = strconv.Atoi(match[2])
	}
	if minute > 59 {
		return 0, 0, false
	}

	switch match[3] {
	case "am":
		if hour < 1 || hour > 12 {
			return 0, 0, false
		}
		if hour == 12 {
			hour = 0
		}
	case "pm":
		if hour < 1 || hour > 12 {
			return 0, 0, false
		}
		if hour != 12 {
			hour += 12
		}
	default:
		if hour > 23 {
			return 0, 0, false
		}
	}
	return hour, minute, true
}

func parseDate(input string, now time.Time) (time.Time, bool) {
	switch input {
	case "today":
		return now, true
	case "tomorrow":
		return now.AddDate(0, 0, 1), true
	case "next week", "nextweek":
		return now.AddDate(0, 0, 7), true
	case "next month", "nextmonth":
		return now.AddDate(0, 1, 0), true
	case "end of week", "eow":
		return nextWeekday(now, time.Friday, false), true
	case "end of month", "eom":
		return endOfMonth(now), true
	}

	if day, ok := parseWeekday(input); ok {
		next := strings.HasPrefix(input, "next ")
		return nextWeekday(now, day, next), true
	}

	if strings.HasPrefix(input, "+") {
		if days, err := strconv.Atoi(input[1:]); err == nil {
			return now.AddDate(0, 0, days), true
		}
	}

	if match := inDaysPattern.FindStringSubmatch(input); match != nil {
		if days, err := strconv.Atoi(match[1]); err == nil {
			return now.AddDate(0, 0, days), true
		}
	}

	if match := inWeeksPattern.FindStringSubmatch(input); match != nil {
		if weeks, err := strconv.Atoi(match[1]); err == nil {
			return now.AddDate(0, 0, weeks*7), true
		}
	}

	if datePattern.MatchString(input) {
		if t, err := time.ParseInLocation(time.DateOnly, input, now.Location()); err == nil {
			return t, true
		}
	}

	return time.Time{}, false
}

func at(day time.Time, hour, minute int) time.Time {
	y, m, d := day.Date()
	return time.Date(y, m, d, hour, minute, 0, 0, day.Location())
}

func parseWeekday(input string) (time.Weekday, bool) {
	input = strings.TrimPrefix(input, "next ")

	switch input {
	case "sunday", "sun":
		return time.Sunday, true
	case "monday", "mon":
		return time.Monday, true
	case "tuesday", "tue":
		return time.Tuesday, true
	case "wednesday", "wed":
		return time.Wednesday, true
	case "thursday", "thu":
		return time.Thursday, true
	case "friday", "fri":
		return time.Friday, true
	case "saturday", "sat":
		return time.Saturday, true
	}
	return 0, false
}

// nextWeekday returns the next occurrence of the given weekday.
// If forceNext is true ("next monday"), it returns the Monday after this week's.
// If forceNext is false ("monday"), it returns the nearest future occurrence.
// Special case: if today IS the target weekday, both return 7 days (next week).
func nextWeekday(now time.Time, target time.Weekday, forceNext bool) time.Time {
	current := now.Weekday()
	daysUntil := int(target - current)
	sameDay := daysUntil == 0

	if daysUntil <= 0 {
		daysUntil += 7
	}

	if forceNext && !sameDay {
		daysUntil += 7
	}

	return now.AddDate(0, 0, daysUntil)
}

func endOfMonth(now time.Time) time.Time {
	year, month, _ := now.Date()
	firstOfNextMonth := time.Date(year, month+1, 1, 0, 0, 0, 0, now.Location())
	return firstOfNextMonth.AddDate(0, 0, -1)
}

// IsValid returns true if the input is a recognized date-time.
func IsValid(input string) bool {
	_, err := Parse(input)
	return err == nil
}
