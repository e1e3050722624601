// Package schedule converts deal times and days between their stored and
// display forms and evaluates whether a deal's time windows are active.
package schedule

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/pauljones0/happymapper/internal/util"
)

// meridiemChars matches the characters removed before parsing a 12h time.
var meridiemChars = regexp.MustCompile(`(?i)[apm.]`)

// meridiem reports which AM/PM marker, if any, the input carries.
// "p.m." and "a.m." count as markers.
func meridiem(input string) (isAM, isPM bool) {
	upper := strings.ToUpper(strings.ReplaceAll(input, ".", ""))
	return strings.Contains(upper, "AM"), strings.Contains(upper, "PM")
}

// ToCanonicalTime converts a human-entered time ("4:00 PM", "4pm", "16:00")
// to the stored 24h "HH:MM" form. Input without an AM/PM marker, including
// input already in 24h form, is returned unchanged, as is input whose hour
// cannot be read. Empty input means "no time specified" and stays empty.
func ToCanonicalTime(input string) string {
	if input == "" {
		return input
	}
	isAM, isPM := meridiem(input)
	if !isAM && !isPM {
		return input
	}

	stripped := strings.TrimSpace(meridiemChars.ReplaceAllString(input, ""))
	hourPart, minutePart, _ := strings.Cut(stripped, ":")
	hour, ok := util.ParseLeadingInt(hourPart)
	if !ok {
		return input
	}
	if isPM && hour != 12 {
		hour += 12
	}
	if isAM && hour == 12 {
		hour = 0
	}
	return fmt.Sprintf("%02d:%s", hour, padMinutes(minutePart))
}

// ToDisplayTime converts a stored 24h time to the 12h display form
// ("16:00" -> "4:00 PM"). Input that already carries AM/PM is returned
// unchanged, empty input stays empty, and unreadable input passes through.
func ToDisplayTime(input string) string {
	if input == "" {
		return ""
	}
	if isAM, isPM := meridiem(input); isAM || isPM {
		return input
	}

	hourPart, minutePart, _ := strings.Cut(input, ":")
	hour24, ok := util.ParseLeadingInt(hourPart)
	if !ok || hour24 < 0 {
		return input
	}

	hour12 := hour24
	switch {
	case hour24 == 0:
		hour12 = 12
	case hour24 > 12:
		hour12 = hour24 - 12
	}
	period := "AM"
	if hour24 >= 12 {
		period = "PM"
	}
	return fmt.Sprintf("%d:%s %s", hour12, padMinutes(minutePart), period)
}

func padMinutes(m string) string {
	m = strings.TrimSpace(m)
	switch len(m) {
	case 0:
		return "00"
	case 1:
		return "0" + m
	}
	return m
}
