// Package normalize turns menu-extraction results into canonical deal records.
package normalize

import (
	"strings"
	"time"

	"github.com/pauljones0/happymapper/internal/models"
	"github.com/pauljones0/happymapper/internal/schedule"
)

// UnknownRestaurant is used when neither the uploader nor the extraction names the venue.
const UnknownRestaurant = "Unknown"

// Upload carries the caller-supplied context of one menu upload.
type Upload struct {
	UserID   string
	VenueID  string
	ImageURL string
	// RestaurantName overrides the extracted name when non-empty.
	RestaurantName string
	Location       models.Coordinates
}

// ExtractedData maps an extraction 1:1 into canonical form: line items keep
// name and price with a missing description as nil, time windows pass
// through the time and day normalizers, and special conditions are kept in
// whatever shape they arrived.
func ExtractedData(m models.MenuExtraction) models.ExtractedData {
	out := models.ExtractedData{
		RestaurantName:    m.RestaurantName,
		Deals:             make([]models.DealItem, 0, len(m.Deals)),
		TimeFrames:        make([]models.TimeWindow, 0, len(m.TimeFrame)),
		SpecialConditions: m.SpecialConditions,
	}
	for _, d := range m.Deals {
		item := models.DealItem{Name: d.Name, Price: d.Price}
		if d.Description != nil && *d.Description != "" {
			desc := *d.Description
			item.Description = &desc
		}
		out.Deals = append(out.Deals, item)
	}
	for _, tf := range m.TimeFrame {
		out.TimeFrames = append(out.TimeFrames, models.TimeWindow{
			StartTime: schedule.ToCanonicalTime(tf.StartTime),
			EndTime:   schedule.ToCanonicalTime(tf.EndTime),
			Days:      schedule.NormalizeDays(tf.Days),
		})
	}
	return out
}

// RestaurantName resolves the venue name: the override, then the extracted
// name, then UnknownRestaurant.
func RestaurantName(override string, extracted *string) string {
	if s := strings.TrimSpace(override); s != "" {
		return s
	}
	if extracted != nil {
		if s := strings.TrimSpace(*extracted); s != "" {
			return s
		}
	}
	return UnknownRestaurant
}

// Record builds the canonical deal for an upload. Derived activity fields are
// a snapshot at now; readers recompute them.
func Record(up Upload, m models.MenuExtraction, eval schedule.Evaluator, now time.Time) models.Deal {
	data := ExtractedData(m)
	name := RestaurantName(up.RestaurantName, data.RestaurantName)
	data.RestaurantName = &name

	return models.Deal{
		VenueID:        up.VenueID,
		UserID:         up.UserID,
		ImageURL:       up.ImageURL,
		RestaurantName: name,
		ExtractedData:  data,
		Verified:       false,
		Active:         true,
		Votes:          models.Votes{UserVotes: map[string]models.VoteKind{}},
		Location:       up.Location,
		CreatedAt:      now,
		Derived:        eval.Derive(data.TimeFrames, now),
	}
}
