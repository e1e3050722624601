package util

import (
	"regexp"
	"strconv"
	"strings"
)

var leadingIntRegex = regexp.MustCompile(`^\s*[-+]?\d+`)

// ParseLeadingInt reads the integer prefix of s, ignoring leading whitespace
// and anything after the digits ("4 " and "04pm" both read as 4).
// ok is false when s does not start with a number.
func ParseLeadingInt(s string) (n int, ok bool) {
	m := leadingIntRegex.FindString(s)
	if m == "" {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimSpace(m))
	if err != nil {
		return 0, false
	}
	return n, true
}
