package schedule

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Weekdays in time.Weekday order.
var Weekdays = []string{"sunday", "monday", "tuesday", "wednesday", "thursday", "friday", "saturday"}

// NormalizeDays lowercases day names for storage. An empty result means the
// window applies every day, not that it applies on no day.
func NormalizeDays(days []string) []string {
	out := make([]string, 0, len(days))
	if len(days) == 0 {
		return out
	}
	lower := cases.Lower(language.English)
	for _, d := range days {
		out = append(out, lower.String(strings.TrimSpace(d)))
	}
	return out
}

// CapitalizeDays title-cases day names for display ("MONDAY" -> "Monday").
func CapitalizeDays(days []string) []string {
	out := make([]string, 0, len(days))
	if len(days) == 0 {
		return out
	}
	lower := cases.Lower(language.English)
	for _, d := range days {
		d = strings.TrimSpace(d)
		r, size := utf8.DecodeRuneInString(d)
		if size == 0 {
			out = append(out, d)
			continue
		}
		out = append(out, string(unicode.ToUpper(r))+lower.String(d[size:]))
	}
	return out
}
