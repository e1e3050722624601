// Package flatten expands venues and their deal records into the display rows
// clients consume: one row per (time window, line item) pair.
package flatten

import (
	"time"

	"github.com/pauljones0/happymapper/internal/models"
	"github.com/pauljones0/happymapper/internal/schedule"
)

// Flattener holds no state between calls and is safe to call repeatedly,
// for example on every snapshot of a live subscription.
type Flattener struct {
	Evaluator schedule.Evaluator
	// Now returns the instant used for is_active_now, already in the venues'
	// time zone. A nil Now leaves every row inactive.
	Now func() time.Time
}

// Flatten builds the client view of a venue from its canonical deal records.
// Venue fields pass through unchanged.
func (f Flattener) Flatten(v models.Venue, deals []models.Deal) models.FrontendVenue {
	var now time.Time
	if f.Now != nil {
		now = f.Now()
	}

	rows := make([]models.FrontendDeal, 0)
	for _, d := range deals {
		rows = append(rows, f.rows(d, now)...)
	}

	return models.FrontendVenue{
		VenueID:   v.ID,
		VenueName: v.Name,
		Latitude:  v.Latitude,
		Longitude: v.Longitude,
		Address:   v.Address,
		Deals:     rows,
	}
}

// FlattenDenormalized builds the client view of a read-model venue document.
// Its pre-flattened rows are first lifted back to canonical records, so the
// output matches Flatten for the same logical content.
func (f Flattener) FlattenDenormalized(d models.DenormalizedVenue) models.FrontendVenue {
	return f.Flatten(d.Venue, Canonicalize(d.Deals))
}

func (f Flattener) rows(d models.Deal, now time.Time) []models.FrontendDeal {
	data := d.ExtractedData
	conditions := data.SpecialConditions.Render()

	if len(data.TimeFrames) == 0 {
		out := make([]models.FrontendDeal, 0, len(data.Deals))
		for _, item := range data.Deals {
			out = append(out, models.FrontendDeal{
				Name:              item.Name,
				Price:             item.Price,
				Description:       description(item.Description),
				StartTime:         "",
				EndTime:           "",
				Days:              []string{},
				SpecialConditions: conditions,
			})
		}
		return out
	}

	out := make([]models.FrontendDeal, 0, len(data.TimeFrames)*len(data.Deals))
	for _, tw := range data.TimeFrames {
		active := f.Now != nil && f.Evaluator.IsActiveNow([]models.TimeWindow{tw}, now)
		start := schedule.ToDisplayTime(tw.StartTime)
		end := schedule.ToDisplayTime(tw.EndTime)
		for _, item := range data.Deals {
			out = append(out, models.FrontendDeal{
				Name:              item.Name,
				Price:             item.Price,
				Description:       description(item.Description),
				StartTime:         start,
				EndTime:           end,
				Days:              schedule.CapitalizeDays(tw.Days),
				SpecialConditions: conditions,
				IsActiveNow:       active,
			})
		}
	}
	return out
}

func description(d *string) *string {
	if d == nil || *d == "" {
		return nil
	}
	s := *d
	return &s
}

// Canonicalize lifts embedded display rows into single-item canonical deal
// records. A row with no times and no days becomes a record without windows.
func Canonicalize(rows []models.EmbeddedDeal) []models.Deal {
	out := make([]models.Deal, 0, len(rows))
	for _, r := range rows {
		data := models.ExtractedData{
			Deals:             []models.DealItem{{Name: r.Name, Price: r.Price, Description: description(r.Description)}},
			TimeFrames:        []models.TimeWindow{},
			SpecialConditions: r.SpecialConditions,
		}
		if r.StartTime != "" || r.EndTime != "" || len(r.Days) > 0 {
			data.TimeFrames = append(data.TimeFrames, models.TimeWindow{
				StartTime: schedule.ToCanonicalTime(r.StartTime),
				EndTime:   schedule.ToCanonicalTime(r.EndTime),
				Days:      schedule.NormalizeDays(r.Days),
			})
		}
		out = append(out, models.Deal{Active: true, ExtractedData: data})
	}
	return out
}
