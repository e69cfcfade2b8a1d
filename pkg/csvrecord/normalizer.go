package csvrecord

import (
	"strings"
)

// RawRow is a parsed CSV row keyed by its raw header. A nil cell means the value was missing.
type RawRow map[string]*string

// Predicate decides whether a normalized record is kept.
type Predicate func(Record) bool

// RequireFields keeps only records where every field exists and is not empty.
func RequireFields(fields ...string) Predicate {
	return func(r Record) bool {
		for _, f := range fields {
			v, ok := r.Get(f)
			if !ok || v == "" {
				return false
			}
		}

		return true
	}
}

// Normalize turns raw rows into records. It never fails: rows rejected by keep are dropped.
// A nil keep accepts every row.
func Normalize(rows []RawRow, keep Predicate) []Record {
	out := make([]Record, 0, len(rows))
	for _, row := range rows {
		fields := make(map[string]string, len(row))
		for k, v := range row {
			if v == nil {
				fields[k] = ""
				continue
			}

			fields[k] = strings.TrimSpace(*v)
		}

		rec := New(fields)
		if keep != nil && !keep(rec) {
			continue
		}

		out = append(out, rec)
	}

	return out
}
