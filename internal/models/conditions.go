package models

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ConditionsSeparator joins list-form special conditions for display.
const ConditionsSeparator = "; "

type conditionsKind int

const (
	conditionsNone conditionsKind = iota
	conditionsText
	conditionsList
)

// Conditions holds a deal's special conditions in the shape they were captured:
// a single string, a list of strings, or nothing at all.
type Conditions struct {
	kind  conditionsKind
	text  string
	items []string
}

// TextConditions wraps a single free-text condition.
func TextConditions(s string) Conditions {
	return Conditions{kind: conditionsText, text: s}
}

// ListConditions wraps a list of conditions. A nil slice yields no conditions.
func ListConditions(items []string) Conditions {
	if items == nil {
		return Conditions{}
	}
	return Conditions{kind: conditionsList, items: append([]string(nil), items...)}
}

// ConditionsFromValue converts a loosely typed value (as decoded from a
// document store or JSON) into Conditions. Unsupported shapes yield none.
func ConditionsFromValue(v any) Conditions {
	switch val := v.(type) {
	case nil:
		return Conditions{}
	case string:
		return TextConditions(val)
	case []string:
		return ListConditions(val)
	case []any:
		items := make([]string, 0, len(val))
		for _, item := range val {
			switch s := item.(type) {
			case string:
				items = append(items, s)
			case nil:
			default:
				items = append(items, fmt.Sprint(s))
			}
		}
		return ListConditions(items)
	default:
		return Conditions{}
	}
}

func (c Conditions) IsZero() bool { return c.kind == conditionsNone }

func (c Conditions) IsList() bool { return c.kind == conditionsList }

// Render returns the display string: lists are joined with "; ", text passes
// through unchanged. Absent or empty conditions render as nil.
func (c Conditions) Render() *string {
	var s string
	switch c.kind {
	case conditionsText:
		s = c.text
	case conditionsList:
		s = strings.Join(c.items, ConditionsSeparator)
	}
	if s == "" {
		return nil
	}
	return &s
}

// Value returns the storage representation: string, []string or nil.
func (c Conditions) Value() any {
	switch c.kind {
	case conditionsText:
		return c.text
	case conditionsList:
		return append([]string(nil), c.items...)
	}
	return nil
}

func (c Conditions) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.Value())
}

func (c *Conditions) UnmarshalJSON(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*c = ConditionsFromValue(v)
	return nil
}
