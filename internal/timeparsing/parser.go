// Package timeparsing turns the due-date expressions accepted on the command
// line into times. Inputs are tried in order:
//  1. Compact offsets (+6h, -1d, +2w, 3m, 1y)
//  2. Dates (2025-02-01) and RFC3339 timestamps
//  3. Natural language (tomorrow, next friday, in 2 weeks)
package timeparsing

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
)

// DateLayout is the date-only form.
const DateLayout = "2006-01-02"

var compactRe = regexp.MustCompile(`^([+-]?)(\d+)([hdwmy])$`)

var parser = func() *when.Parser {
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	return w
}()

// Parse resolves s relative to now.
func Parse(s string, now time.Time) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty date")
	}
	if t, ok := ParseCompact(s, now); ok {
		return t, nil
	}
	if t, err := time.ParseInLocation(DateLayout, s, now.Location()); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	t, err := ParseNatural(s, now)
	if err != nil {
		return time.Time{}, fmt.Errorf("cannot parse %q as a date: use YYYY-MM-DD, +2w or e.g. \"next friday\"", s)
	}
	return t, nil
}

// ParseCompact applies an offset like +2w to now. The sign defaults to +.
// Units: h hours, d days, w weeks, m months, y years.
func ParseCompact(s string, now time.Time) (time.Time, bool) {
	m := compactRe.FindStringSubmatch(s)
	if m == nil {
		return time.Time{}, false
	}
	n, err := strconv.Atoi(m[2])
	if err != nil {
		return time.Time{}, false
	}
	if m[1] == "-" {
		n = -n
	}
	switch m[3] {
	case "h":
		return now.Add(time.Duration(n) * time.Hour), true
	case "d":
		return now.AddDate(0, 0, n), true
	case "w":
		return now.AddDate(0, 0, 7*n), true
	case "m":
		return now.AddDate(0, n, 0), true
	default:
		return now.AddDate(n, 0, 0), true
	}
}

// ParseNatural parses an English expression such as "tomorrow".
func ParseNatural(s string, now time.Time) (time.Time, error) {
	r, err := parser.Parse(s, now)
	if err != nil {
		return time.Time{}, err
	}
	if r == nil {
		return time.Time{}, fmt.Errorf("no date found in %q", s)
	}
	return r.Time, nil
}
