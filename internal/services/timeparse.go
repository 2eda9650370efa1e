package services

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/slotwise/studio-backend/internal/scheduling"
)

// NormalizedTime is the canonical result of parsing a natural-language time
// expression: a date, an optional clock time, and the client's UTC offset at
// that instant. Time is empty when the expression only named a date.
type NormalizedTime struct {
	Date     string    `json:"date"` // YYYY-MM-DD
	Time     string    `json:"time,omitempty"`
	Offset   string    `json:"offset"` // e.g. "-05:00"
	Resolved time.Time `json:"-"`
}

// TimeParser normalizes natural-language date/time expressions. It is a pure
// component: the reference "now" and timezone are always passed in, so
// parsing never depends on server-local time.
type TimeParser struct {
	openHour  int
	closeHour int
}

// NewTimeParser creates a parser bounded by the studio's business hours.
func NewTimeParser(openHour, closeHour int) *TimeParser {
	return &TimeParser{openHour: openHour, closeHour: closeHour}
}

var (
	clockRe    = regexp.MustCompile(`\b(\d{1,2})(?::(\d{2}))?\s*(am|pm)\b`)
	clock24Re  = regexp.MustCompile(`\b(\d{1,2}):(\d{2})\b`)
	relativeRe = regexp.MustCompile(`\bin\s+(\d+)\s+(minute|hour|day)s?\b`)
	isoDateRe  = regexp.MustCompile(`\b(\d{4})-(\d{2})-(\d{2})\b`)
	dmDateRe   = regexp.MustCompile(`\b(\d{1,2})/(\d{1,2})(?:/(\d{4}))?\b`)
)

var weekdayNames = []struct {
	name string
	day  time.Weekday
}{
	{"sunday", time.Sunday}, {"sun", time.Sunday},
	{"monday", time.Monday}, {"mon", time.Monday},
	{"tuesday", time.Tuesday}, {"tue", time.Tuesday}, {"tues", time.Tuesday},
	{"wednesday", time.Wednesday}, {"wed", time.Wednesday},
	{"thursday", time.Thursday}, {"thu", time.Thursday}, {"thurs", time.Thursday},
	{"friday", time.Friday}, {"fri", time.Friday},
	{"saturday", time.Saturday}, {"sat", time.Saturday},
}

// matchWeekday finds the weekday named earliest in the expression, so "move
// tuesday to friday" always resolves to tuesday.
func matchWeekday(s string) (string, time.Weekday, bool) {
	bestIdx := -1
	var bestName string
	var bestDay time.Weekday
	for _, w := range weekdayNames {
		idx := wordIndex(s, w.name)
		if idx < 0 {
			continue
		}
		if bestIdx == -1 || idx < bestIdx {
			bestIdx, bestName, bestDay = idx, w.name, w.day
		}
	}
	return bestName, bestDay, bestIdx >= 0
}

// Parse converts expr into a canonical instant in the client's timezone.
// Ambiguous expressions return *scheduling.AmbiguousTimeError with ranked
// candidates; past instants return *scheduling.PastDateError; times outside
// business hours return *scheduling.OutOfHoursError (the caller decides
// whether to escalate or reject).
func (p *TimeParser) Parse(expr string, now time.Time, tz string) (*NormalizedTime, error) {
	if strings.TrimSpace(expr) == "" {
		return nil, &scheduling.ValidationError{Field: "time expression", Reason: "empty"}
	}

	loc := time.UTC
	if tz != "" {
		if l, err := time.LoadLocation(tz); err == nil {
			loc = l
		}
	}
	now = now.In(loc)

	s := strings.ToLower(strings.TrimSpace(expr))
	s = strings.ReplaceAll(s, ",", " ")

	// Relative offsets resolve in one step: "in 2 hours", "in 3 days at 3pm".
	if m := relativeRe.FindStringSubmatch(s); m != nil {
		return p.parseRelative(s, m, now, loc)
	}

	hour, minute, hasTime, err := p.parseClock(s)
	if err != nil {
		return nil, err
	}

	date, err := p.parseDate(s, now, loc, hour, minute, hasTime)
	if err != nil {
		return nil, err
	}

	if !hasTime {
		daypartDate := date
		if daypartDate == "" {
			daypartDate = now.Format("2006-01-02")
		}
		if daypart, ok := p.daypartCandidates(s, daypartDate); ok {
			return nil, daypart
		}
		// Date-only expression ("tomorrow", "next tuesday 2024-02-01").
		if date == "" {
			return nil, &scheduling.ValidationError{
				Field:  "time expression",
				Reason: fmt.Sprintf("could not understand %q", expr),
			}
		}
		day, perr := time.ParseInLocation("2006-01-02", date, loc)
		if perr != nil {
			return nil, &scheduling.ValidationError{Field: "date", Reason: perr.Error()}
		}
		today := now.Format("2006-01-02")
		if date < today {
			return nil, &scheduling.PastDateError{Expression: expr, Resolved: day}
		}
		return &NormalizedTime{Date: date, Offset: offsetOf(day), Resolved: day}, nil
	}

	if date == "" {
		// Bare clock time: the next occurrence relative to now.
		candidate := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, loc)
		if !candidate.After(now) {
			candidate = candidate.AddDate(0, 0, 1)
		}
		date = candidate.Format("2006-01-02")
	}

	resolved, perr := time.ParseInLocation("2006-01-02 15:04",
		fmt.Sprintf("%s %02d:%02d", date, hour, minute), loc)
	if perr != nil {
		return nil, &scheduling.ValidationError{Field: "date", Reason: perr.Error()}
	}

	if resolved.Before(now) {
		return nil, &scheduling.PastDateError{Expression: expr, Resolved: resolved}
	}
	if hour < p.openHour || hour >= p.closeHour {
		return nil, &scheduling.OutOfHoursError{Resolved: resolved, OpenHour: p.openHour, CloseHour: p.closeHour}
	}

	return &NormalizedTime{
		Date:     resolved.Format("2006-01-02"),
		Time:     resolved.Format("15:04"),
		Offset:   offsetOf(resolved),
		Resolved: resolved,
	}, nil
}

func (p *TimeParser) parseRelative(s string, m []string, now time.Time, loc *time.Location) (*NormalizedTime, error) {
	n, _ := strconv.Atoi(m[1])
	var resolved time.Time
	switch m[2] {
	case "minute":
		resolved = now.Add(time.Duration(n) * time.Minute)
	case "hour":
		resolved = now.Add(time.Duration(n) * time.Hour)
	case "day":
		resolved = now.AddDate(0, 0, n)
	}

	// "in 3 days at 3pm" pins the clock on the offset day.
	hour, minute, hasTime, err := p.parseClock(strings.Replace(s, m[0], "", 1))
	if err != nil {
		return nil, err
	}
	if hasTime {
		resolved = time.Date(resolved.Year(), resolved.Month(), resolved.Day(), hour, minute, 0, 0, loc)
		if resolved.Before(now) {
			return nil, &scheduling.PastDateError{Expression: s, Resolved: resolved}
		}
	}
	if resolved.Hour() < p.openHour || resolved.Hour() >= p.closeHour {
		return nil, &scheduling.OutOfHoursError{Resolved: resolved, OpenHour: p.openHour, CloseHour: p.closeHour}
	}
	return &NormalizedTime{
		Date:     resolved.Format("2006-01-02"),
		Time:     resolved.Format("15:04"),
		Offset:   offsetOf(resolved),
		Resolved: resolved,
	}, nil
}

// parseClock extracts an explicit clock time, if any.
func (p *TimeParser) parseClock(s string) (hour, minute int, ok bool, err error) {
	if m := clockRe.FindStringSubmatch(s); m != nil {
		hour, _ = strconv.Atoi(m[1])
		if m[2] != "" {
			minute, _ = strconv.Atoi(m[2])
		}
		if hour < 1 || hour > 12 || minute > 59 {
			return 0, 0, false, &scheduling.ValidationError{Field: "time", Reason: fmt.Sprintf("invalid clock time %q", m[0])}
		}
		if m[3] == "pm" && hour != 12 {
			hour += 12
		}
		if m[3] == "am" && hour == 12 {
			hour = 0
		}
		return hour, minute, true, nil
	}
	if m := clock24Re.FindStringSubmatch(s); m != nil {
		hour, _ = strconv.Atoi(m[1])
		minute, _ = strconv.Atoi(m[2])
		if hour > 23 || minute > 59 {
			return 0, 0, false, &scheduling.ValidationError{Field: "time", Reason: fmt.Sprintf("invalid clock time %q", m[0])}
		}
		return hour, minute, true, nil
	}
	if strings.Contains(s, "noon") || strings.Contains(s, "midday") {
		return 12, 0, true, nil
	}
	return 0, 0, false, nil
}

// parseDate extracts the date part. A bare weekday name is ambiguous between
// this week and next and is reported as such.
func (p *TimeParser) parseDate(s string, now time.Time, loc *time.Location, hour, minute int, hasTime bool) (string, error) {
	if m := isoDateRe.FindStringSubmatch(s); m != nil {
		return m[0], nil
	}
	if m := dmDateRe.FindStringSubmatch(s); m != nil {
		day, _ := strconv.Atoi(m[1])
		month, _ := strconv.Atoi(m[2])
		year := now.Year()
		if m[3] != "" {
			year, _ = strconv.Atoi(m[3])
		}
		if month < 1 || month > 12 || day < 1 || day > 31 {
			return "", &scheduling.ValidationError{Field: "date", Reason: fmt.Sprintf("invalid date %q", m[0])}
		}
		return fmt.Sprintf("%04d-%02d-%02d", year, month, day), nil
	}

	switch {
	case strings.Contains(s, "day after tomorrow"):
		return now.AddDate(0, 0, 2).Format("2006-01-02"), nil
	case strings.Contains(s, "tomorrow"):
		return now.AddDate(0, 0, 1).Format("2006-01-02"), nil
	case strings.Contains(s, "today"), strings.Contains(s, "tonight"):
		return now.Format("2006-01-02"), nil
	}

	if name, wd, ok := matchWeekday(s); ok {
		daysAhead := (int(wd) - int(now.Weekday()) + 7) % 7
		if daysAhead == 0 {
			daysAhead = 7
		}
		first := now.AddDate(0, 0, daysAhead)
		if containsWord(s, "next") || containsWord(s, "this") || containsWord(s, "coming") {
			return first.Format("2006-01-02"), nil
		}
		// Bare weekday: two candidate weeks, client has to pick.
		second := first.AddDate(0, 0, 7)
		clock := ""
		if hasTime {
			clock = fmt.Sprintf("%02d:%02d", hour, minute)
		}
		candidates := []scheduling.Candidate{
			{Date: first.Format("2006-01-02"), Time: clock, Label: first.Format("Mon Jan 2")},
			{Date: second.Format("2006-01-02"), Time: clock, Label: second.Format("Mon Jan 2")},
		}
		return "", &scheduling.AmbiguousTimeError{
			Expression: s,
			Candidates: candidates,
			Prompt: fmt.Sprintf("Did you mean %s %s or %s %s?",
				name, first.Format("Jan 2"), name, second.Format("Jan 2")),
		}
	}

	return "", nil
}

// daypartCandidates turns "morning"/"afternoon"/"evening" into ranked hourly
// candidates within the window, clipped to business hours where possible.
func (p *TimeParser) daypartCandidates(s, date string) (*scheduling.AmbiguousTimeError, bool) {
	var start, end int
	var name string
	switch {
	case strings.Contains(s, "morning"):
		name, start, end = "morning", 9, 12
	case strings.Contains(s, "afternoon"):
		name, start, end = "afternoon", 12, 17
	case strings.Contains(s, "evening"):
		name, start, end = "evening", 17, 20
	default:
		return nil, false
	}
	if start < p.openHour {
		start = p.openHour
	}
	if end > p.closeHour {
		end = p.closeHour
	}

	// The whole window can fall outside business hours ("evening" with a
	// 17:00 close); offering unbookable times would only bounce the client
	// off the out-of-hours check, so ask for a workable time instead.
	if start >= end {
		return &scheduling.AmbiguousTimeError{
			Expression: s,
			Prompt: fmt.Sprintf("We're open %02d:00-%02d:00, so the %s doesn't work. What time would suit you?",
				p.openHour, p.closeHour, name),
		}, true
	}

	var candidates []scheduling.Candidate
	var labels []string
	for hour := start; hour < end && len(candidates) < 3; hour++ {
		clock := fmt.Sprintf("%02d:00", hour)
		candidates = append(candidates, scheduling.Candidate{Date: date, Time: clock, Label: clock})
		labels = append(labels, clock)
	}
	return &scheduling.AmbiguousTimeError{
		Expression: s,
		Candidates: candidates,
		Prompt:     fmt.Sprintf("What time in the %s? For example %s.", name, strings.Join(labels, ", ")),
	}, true
}

func offsetOf(t time.Time) string {
	return t.Format("-07:00")
}

func wordIndex(s, word string) int {
	for i, f := range strings.Fields(s) {
		if f == word {
			return i
		}
	}
	return -1
}

func containsWord(s, word string) bool {
	return wordIndex(s, word) >= 0
}

// TimeRange bounds an availability query, HH:MM inclusive start, exclusive end.
type TimeRange struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// ParseTimeRange maps range expressions like "morning" or "9am-12pm" onto a
// concrete window. Unknown expressions return nil (no filtering).
func ParseTimeRange(expr string) *TimeRange {
	s := strings.ToLower(strings.TrimSpace(expr))
	switch {
	case s == "":
		return nil
	case strings.Contains(s, "morning"):
		return &TimeRange{Start: "09:00", End: "12:00"}
	case strings.Contains(s, "afternoon"):
		return &TimeRange{Start: "12:00", End: "17:00"}
	case strings.Contains(s, "evening"):
		return &TimeRange{Start: "17:00", End: "20:00"}
	}
	parts := strings.SplitN(s, "-", 2)
	if len(parts) != 2 {
		return nil
	}
	start, sok := parseRangeBound(parts[0])
	end, eok := parseRangeBound(parts[1])
	if !sok || !eok {
		return nil
	}
	return &TimeRange{Start: start, End: end}
}

func parseRangeBound(s string) (string, bool) {
	s = strings.TrimSpace(s)
	m := regexp.MustCompile(`^(\d{1,2})(?::(\d{2}))?\s*(am|pm)?$`).FindStringSubmatch(s)
	if m == nil {
		return "", false
	}
	hour, _ := strconv.Atoi(m[1])
	minute := 0
	if m[2] != "" {
		minute, _ = strconv.Atoi(m[2])
	}
	if m[3] == "pm" && hour != 12 {
		hour += 12
	}
	if m[3] == "am" && hour == 12 {
		hour = 0
	}
	if hour > 23 || minute > 59 {
		return "", false
	}
	return fmt.Sprintf("%02d:%02d", hour, minute), true
}
