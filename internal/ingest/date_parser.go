package ingest

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Deadline extraction works in two passes: first look for a labeled phrase
// ("deadline", "closing date", ...) and parse the span that follows it, then
// fall back to the first recognizable date anywhere in the text. Only
// four-digit years are accepted and impossible calendar dates are rejected.

var deadlineLabelRegex = regexp.MustCompile(
	`(?i)\b(?:deadline|closing date|closing on|applications?\s+close[sd]?|apply by|submissions?\s+(?:close|due)|due date|closes)\b[:\s\-]*`)

var monthNames = map[string]time.Month{
	"january": time.January, "jan": time.January,
	"february": time.February, "feb": time.February,
	"march": time.March, "mar": time.March,
	"april": time.April, "apr": time.April,
	"may": time.May,
	"june": time.June, "jun": time.June,
	"july": time.July, "jul": time.July,
	"august": time.August, "aug": time.August,
	"september": time.September, "sep": time.September, "sept": time.September,
	"october": time.October, "oct": time.October,
	"november": time.November, "nov": time.November,
	"december": time.December, "dec": time.December,
}

const monthPattern = `January|February|March|April|May|June|July|August|September|October|November|December|Jan|Feb|Mar|Apr|Jun|Jul|Aug|Sept|Sep|Oct|Nov|Dec`

var (
	isoDateRegex      = regexp.MustCompile(`\b(\d{4})-(\d{2})-(\d{2})\b`)
	dmySlashRegex     = regexp.MustCompile(`\b(\d{1,2})/(\d{1,2})/(\d{4})\b`)
	dayMonthYearRegex = regexp.MustCompile(`(?i)\b(\d{1,2})(?:st|nd|rd|th)?\s+(` + monthPattern + `)\.?,?\s+(\d{4})\b`)
	monthDayYearRegex = regexp.MustCompile(`(?i)\b(` + monthPattern + `)\.?\s+(\d{1,2})(?:st|nd|rd|th)?,?\s+(\d{4})\b`)
)

// ExtractDeadline finds a deadline date in free text and returns it as an
// ISO YYYY-MM-DD string, or "" when no unambiguous date is present.
func ExtractDeadline(text string) string {
	if loc := deadlineLabelRegex.FindStringIndex(text); loc != nil {
		// Only the span right after the label; a date further away is
		// more likely unrelated.
		span := text[loc[1]:]
		if len(span) > 80 {
			span = span[:80]
		}
		if iso := firstDateIn(span); iso != "" {
			return iso
		}
	}
	return firstDateIn(text)
}

// firstDateIn returns the earliest-positioned valid date in text. Invalid
// matches are skipped, so a malformed date ("2026-02-30") never masks a
// later valid one of the same form.
func firstDateIn(text string) string {
	type match struct {
		pos int
		iso string
	}
	best := match{pos: -1}
	consider := func(pos int, iso string) {
		if best.pos == -1 || pos < best.pos {
			best = match{pos: pos, iso: iso}
		}
	}

	for _, loc := range isoDateRegex.FindAllStringSubmatchIndex(text, -1) {
		y, _ := strconv.Atoi(text[loc[2]:loc[3]])
		m, _ := strconv.Atoi(text[loc[4]:loc[5]])
		d, _ := strconv.Atoi(text[loc[6]:loc[7]])
		if iso := validISO(y, m, d); iso != "" {
			consider(loc[0], iso)
			break
		}
	}
	for _, loc := range dmySlashRegex.FindAllStringSubmatchIndex(text, -1) {
		d, _ := strconv.Atoi(text[loc[2]:loc[3]])
		m, _ := strconv.Atoi(text[loc[4]:loc[5]])
		y, _ := strconv.Atoi(text[loc[6]:loc[7]])
		if iso := validISO(y, m, d); iso != "" {
			consider(loc[0], iso)
			break
		}
	}
	for _, loc := range dayMonthYearRegex.FindAllStringSubmatchIndex(text, -1) {
		d, _ := strconv.Atoi(text[loc[2]:loc[3]])
		m := monthNames[strings.ToLower(text[loc[4]:loc[5]])]
		y, _ := strconv.Atoi(text[loc[6]:loc[7]])
		if iso := validISO(y, int(m), d); iso != "" {
			consider(loc[0], iso)
			break
		}
	}
	for _, loc := range monthDayYearRegex.FindAllStringSubmatchIndex(text, -1) {
		m := monthNames[strings.ToLower(text[loc[2]:loc[3]])]
		d, _ := strconv.Atoi(text[loc[4]:loc[5]])
		y, _ := strconv.Atoi(text[loc[6]:loc[7]])
		if iso := validISO(y, int(m), d); iso != "" {
			consider(loc[0], iso)
			break
		}
	}

	return best.iso
}

// validISO returns the ISO form of a date only when the components form a
// real calendar date. time.Date normalizes overflow (Feb 31 -> Mar 2/3), so
// the components are checked against the round-tripped value.
func validISO(year, month, day int) string {
	if year < 1000 || year > 9999 || month < 1 || month > 12 || day < 1 || day > 31 {
		return ""
	}
	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	if t.Year() != year || int(t.Month()) != month || t.Day() != day {
		return ""
	}
	return t.Format("2006-01-02")
}

// deadlineBefore reports whether the end of the deadline day is already in
// the past relative to now.
func deadlineBefore(deadlineISO string, now time.Time) bool {
	t, err := time.Parse("2006-01-02", deadlineISO)
	if err != nil {
		return false
	}
	endOfDay := time.Date(t.Year(), t.Month(), t.Day(), 23, 59, 59, 0, time.UTC)
	return endOfDay.Before(now.UTC())
}
