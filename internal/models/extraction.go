package models

import (
	"bytes"
	"encoding/json"
	"strconv"
)

// MenuExtraction is the inference service's result for one menu image.
// Decoding is lenient: malformed or missing deals and time_frame arrays
// decode as empty, and numeric prices are kept as strings.
type MenuExtraction struct {
	RestaurantName    *string        `json:"restaurant_name"`
	Deals             []AIDealItem   `json:"deals"`
	TimeFrame         []AITimeWindow `json:"time_frame"`
	SpecialConditions Conditions     `json:"special_conditions"`
}

type AIDealItem struct {
	Name        string  `json:"name"`
	Price       string  `json:"price"`
	Description *string `json:"description,omitempty"`
}

type AITimeWindow struct {
	StartTime string   `json:"start_time"`
	EndTime   string   `json:"end_time"`
	Days      []string `json:"days,omitempty"`
}

func (m *MenuExtraction) UnmarshalJSON(data []byte) error {
	var raw struct {
		RestaurantName json.RawMessage `json:"restaurant_name"`
		Deals          json.RawMessage `json:"deals"`
		TimeFrame      json.RawMessage `json:"time_frame"`
		Special        json.RawMessage `json:"special_conditions"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*m = MenuExtraction{}
	if name := rawString(raw.RestaurantName); name != "" {
		m.RestaurantName = &name
	}

	var deals []json.RawMessage
	if json.Unmarshal(raw.Deals, &deals) == nil {
		for _, d := range deals {
			var item AIDealItem
			if json.Unmarshal(d, &item) == nil {
				m.Deals = append(m.Deals, item)
			}
		}
	}

	var frames []json.RawMessage
	if json.Unmarshal(raw.TimeFrame, &frames) == nil {
		for _, f := range frames {
			var tw AITimeWindow
			if json.Unmarshal(f, &tw) == nil {
				m.TimeFrame = append(m.TimeFrame, tw)
			}
		}
	}

	if len(raw.Special) > 0 {
		_ = m.SpecialConditions.UnmarshalJSON(raw.Special)
	}
	return nil
}

func (d *AIDealItem) UnmarshalJSON(data []byte) error {
	var raw struct {
		Name        json.RawMessage `json:"name"`
		Price       json.RawMessage `json:"price"`
		Description json.RawMessage `json:"description"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*d = AIDealItem{Name: rawString(raw.Name), Price: rawString(raw.Price)}
	if desc := rawString(raw.Description); desc != "" {
		d.Description = &desc
	}
	return nil
}

func (t *AITimeWindow) UnmarshalJSON(data []byte) error {
	var raw struct {
		StartTime json.RawMessage `json:"start_time"`
		EndTime   json.RawMessage `json:"end_time"`
		Days      json.RawMessage `json:"days"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*t = AITimeWindow{StartTime: rawString(raw.StartTime), EndTime: rawString(raw.EndTime)}
	var days []any
	if json.Unmarshal(raw.Days, &days) == nil {
		for _, day := range days {
			if s, ok := day.(string); ok && s != "" {
				t.Days = append(t.Days, s)
			}
		}
	}
	return nil
}

// rawString reads a JSON string or number as text; null, absent and other
// shapes read as "".
func rawString(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return ""
	}
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return s
	}
	var n json.Number
	if json.Unmarshal(raw, &n) == nil {
		if f, err := n.Float64(); err == nil {
			return strconv.FormatFloat(f, 'f', -1, 64)
		}
		return n.String()
	}
	return ""
}
