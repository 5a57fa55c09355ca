// Package timespec implements the 4-field schedule grammar used by job
// definitions: "<hour> <day> <month> <weekday>".
//
// Each field is a wildcard "*", a single integer, a comma-separated set
// ("6,8,10") or an inclusive range ("1-5"). Weekdays are numbered with
// Sunday=0 through Saturday=6.
//
// Evaluation is pure: no clock access, no I/O. Malformed field content never
// panics; it simply fails to match.
package timespec

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Spec is a parsed 4-field schedule.
type Spec struct {
	Hour    string
	Day     string
	Month   string
	Weekday string
}

// Parse splits a raw spec string into its four fields.
// It only checks the field count; field content is validated lazily during
// matching so that a partially bad spec degrades to "never matches" instead
// of failing the whole scan.
func Parse(raw string) (Spec, error) {
	parts := strings.Fields(raw)
	if len(parts) != 4 {
		return Spec{}, fmt.Errorf("timespec: want 4 fields (hour day month weekday), got %d in %q", len(parts), raw)
	}
	return Spec{
		Hour:    parts[0],
		Day:     parts[1],
		Month:   parts[2],
		Weekday: parts[3],
	}, nil
}

// Matches reports whether the spec fires at the given instant.
// All four fields must match: hour (0-23), day of month (1-31),
// month (1-12) and weekday (0=Sunday..6=Saturday).
func (s Spec) Matches(at time.Time) bool {
	if !matchField(s.Hour, at.Hour()) {
		return false
	}
	if !matchField(s.Day, at.Day()) {
		return false
	}
	if !matchField(s.Month, int(at.Month())) {
		return false
	}
	// time.Weekday is already Sunday=0, which is exactly this grammar's
	// numbering (unlike ISO 8601's Monday=1).
	return matchField(s.Weekday, int(at.Weekday()))
}

// matchField evaluates one field against a value.
//
// Branch order is significant and mirrors the persisted grammar: comma before
// range before exact. A field mixing both syntaxes (e.g. "1-3,5") therefore
// takes the comma branch, where "1-3" is not a valid integer and only the
// plain elements can match. Known limitation; not a richer grammar.
func matchField(field string, value int) bool {
	field = strings.TrimSpace(field)
	if field == "*" {
		return true
	}

	if strings.Contains(field, ",") {
		for _, part := range strings.Split(field, ",") {
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

	if strings.Contains(field, "-") {
		bounds := strings.SplitN(field, "-", 2)
		start, err1 := strconv.Atoi(strings.TrimSpace(bounds[0]))
		end, err2 := strconv.Atoi(strings.TrimSpace(bounds[1]))
		if err1 != nil || err2 != nil {
			return false
		}
		return start <= value && value <= end
	}

	n, err := strconv.Atoi(field)
	if err != nil {
		return false
	}
	return n == value
}

// WindowKey truncates an instant to hour granularity, e.g. "2024-01-01-06".
// The scheduler uses it to fire a job at most once per hour even when the
// spec matches on several scans inside the same hour.
func WindowKey(t time.Time) string {
	return t.Format("2006-01-02-15")
}
