// Package schedule evaluates cron-like schedule expressions against calendar
// dates.
//
// The grammar is deliberately a subset of crontab: per field it supports "*",
// "*/N" (true iff value % N == 0) and comma-separated integer lists. Only the
// day-of-month, month and day-of-week fields participate in date matching;
// minute and hour are carried for wall-clock scheduling by the caller.
//
// A malformed expression matches nothing. Callers treat "no match" as the
// safe default, so evaluation never returns an error and never panics.
package schedule

import (
	"strconv"
	"strings"

	"planwork/internal/dateutil"
)

// Frequency is the legacy simplified schedule representation.
type Frequency string

const (
	Daily   Frequency = "daily"
	Weekly  Frequency = "weekly"
	Monthly Frequency = "monthly"
)

// nextScanLimit bounds the forward scan in NextOccurrence. Two years covers
// every satisfiable dom/month/dow combination of the supported grammar,
// including Feb 29.
const nextScanLimit = 731

// MatchesField reports whether a single cron field expression accepts value.
//
// Supported forms: "*", "*/N", and comma lists of integers ("1,15,28").
// Anything else (ranges, names, empty fields) matches nothing.
func MatchesField(expr string, value int) bool {
	expr = strings.TrimSpace(expr)
	if expr == "*" {
		return true
	}
	if step, ok := strings.CutPrefix(expr, "*/"); ok {
		n, err := strconv.Atoi(step)
		if err != nil || n <= 0 {
			return false
		}
		return value%n == 0
	}
	for _, part := range strings.Split(expr, ",") {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			continue
		}
		if n == value {
			return true
		}
	}
	return false
}

// MatchesDate reports whether a 5-field cron expression
// ("minute hour day-of-month month day-of-week") fires on the given date.
//
// Minute and hour are ignored at date granularity. An expression with the
// wrong field count matches no date.
func MatchesDate(expr string, d dateutil.Date) bool {
	fields := strings.Fields(expr)
	if len(fields) != 5 {
		return false
	}
	dom, month, dow := fields[2], fields[3], fields[4]
	return MatchesField(dom, d.Day()) &&
		MatchesField(month, int(d.Month())) &&
		MatchesField(dow, int(d.Weekday()))
}

// NextOccurrence returns the first date on or after from that matches expr.
// ok is false when expr matches nothing within the scan horizon (which
// includes every malformed expression).
func NextOccurrence(expr string, from dateutil.Date) (next dateutil.Date, ok bool) {
	if len(strings.Fields(expr)) != 5 {
		return dateutil.Date{}, false
	}
	d := from
	for i := 0; i < nextScanLimit; i++ {
		if MatchesDate(expr, d) {
			return d, true
		}
		d = d.AddDays(1)
	}
	return dateutil.Date{}, false
}

// SimpleMatches evaluates the legacy simplified representation directly:
// daily always fires, weekly fires on the selected weekday (0 = Sunday),
// monthly fires on the selected day of month.
func SimpleMatches(freq Frequency, selector int, d dateutil.Date) bool {
	switch freq {
	case Daily:
		return true
	case Weekly:
		return int(d.Weekday()) == selector
	case Monthly:
		return d.Day() == selector
	default:
		return false
	}
}

// FromSimple normalizes the legacy representation into a canonical 5-field
// cron expression. Unknown frequencies yield an expression that matches
// nothing, consistent with the malformed-input contract.
func FromSimple(freq Frequency, selector int) string {
	switch freq {
	case Daily:
		return "0 0 * * *"
	case Weekly:
		return "0 0 * * " + strconv.Itoa(selector)
	case Monthly:
		return "0 0 " + strconv.Itoa(selector) + " * *"
	default:
		return ""
	}
}
