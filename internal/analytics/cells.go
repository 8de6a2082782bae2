package analytics

import (
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
	"time"

	apperrors "retail-insights/internal/errors"
	"retail-insights/internal/models"
)

// timestampLayouts are tried in order; the first successful parse wins.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"2006/01/02",
	"01/02/2006 15:04:05",
	"01/02/2006 15:04",
	"01/02/2006",
	"1/2/2006 15:04",
	"1/2/2006",
	"02.01.2006",
	"02-01-2006",
	"Jan 2, 2006",
	"2 Jan 2006",
}

// parseTimestamp is a best-effort parse. Values without a zone are UTC;
// values with an offset keep it, so calendar fields follow the written
// wall clock.
func parseTimestamp(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// wallClock drops the offset of t, keeping its written date and time as UTC.
func wallClock(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), time.UTC)
}

// timeCell reads a date cell whether it was enriched to time.Time or is
// still raw text.
func timeCell(r models.Record, col string) (time.Time, bool) {
	switch v := r[col].(type) {
	case time.Time:
		return v, !v.IsZero()
	case string:
		return parseTimestamp(v)
	default:
		return time.Time{}, false
	}
}

// floatCell is Record.Float with failures tagged as type coercion.
func floatCell(r models.Record, col string) (float64, bool, error) {
	v, ok, err := r.Float(col)
	if err != nil {
		return 0, false, apperrors.TypeCoercion(err, fmt.Sprintf("column %q is not numeric", col))
	}
	return v, ok, nil
}

// daysBetween returns whole days from a to b, floored like a timedelta.
func daysBetween(a, b time.Time) int {
	return int(math.Floor(b.Sub(a).Hours() / 24))
}

// leadingNumber parses the numeric prefix of s, e.g. 18 from "18-27".
func leadingNumber(s string) (float64, bool) {
	end := 0
	for i, r := range s {
		if (r >= '0' && r <= '9') || r == '.' || (i == 0 && r == '-') {
			end = i + 1
			continue
		}
		break
	}
	if end == 0 {
		return 0, false
	}
	f, err := strconv.ParseFloat(s[:end], 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// compareKeys orders grouping keys numerically by leading number when both
// have one, lexicographically otherwise.
func compareKeys(a, b string) int {
	na, okA := leadingNumber(a)
	nb, okB := leadingNumber(b)
	if okA && okB && na != nb {
		if na < nb {
			return -1
		}
		return 1
	}
	return strings.Compare(a, b)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, compareKeys)
	return keys
}

// stringCell returns a non-empty textual key for col.
func stringCell(r models.Record, col string) (string, bool) {
	k, ok := r.Key(col)
	if !ok || strings.TrimSpace(k) == "" {
		return "", false
	}
	return k, true
}
