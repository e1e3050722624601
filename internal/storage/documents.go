package storage

import (
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/genproto/googleapis/type/latlng"

	"github.com/pauljones0/happymapper/internal/models"
)

// Documents are decoded from doc.Data() rather than DataTo so that fields
// with more than one stored shape (address, specialConditions, location)
// survive decoding.

func str(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	default:
		return fmt.Sprint(s)
	}
}

func strPtr(v any) *string {
	if v == nil {
		return nil
	}
	s := str(v)
	if s == "" {
		return nil
	}
	return &s
}

func float(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int64:
		return float64(n), true
	case int:
		return float64(n), true
	}
	return 0, false
}

func floatPtr(v any) *float64 {
	f, ok := float(v)
	if !ok {
		return nil
	}
	return &f
}

func integer(v any) int {
	f, _ := float(v)
	return int(f)
}

func boolean(v any) bool {
	b, _ := v.(bool)
	return b
}

func stringList(v any) []string {
	arr, ok := v.([]any)
	if !ok {
		if ss, ok := v.([]string); ok {
			return append([]string{}, ss...)
		}
		return []string{}
	}
	out := make([]string, 0, len(arr))
	for _, item := range arr {
		if s := str(item); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func maps(v any) []map[string]any {
	arr, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]map[string]any, 0, len(arr))
	for _, item := range arr {
		if m, ok := item.(map[string]any); ok {
			out = append(out, m)
		}
	}
	return out
}

func timestamp(v any) time.Time {
	t, _ := v.(time.Time)
	return t
}

// coordinates reads a GeoPoint or a {latitude, longitude} map.
func coordinates(v any) (models.Coordinates, bool) {
	switch p := v.(type) {
	case *latlng.LatLng:
		if p == nil {
			return models.Coordinates{}, false
		}
		return models.Coordinates{Latitude: p.GetLatitude(), Longitude: p.GetLongitude()}, true
	case map[string]any:
		lat, okLat := float(p["latitude"])
		lng, okLng := float(p["longitude"])
		if okLat && okLng {
			return models.Coordinates{Latitude: lat, Longitude: lng}, true
		}
	}
	return models.Coordinates{}, false
}

func venueFromData(id string, data map[string]any) models.Venue {
	v := models.Venue{
		ID:        id,
		Name:      str(data["name"]),
		Latitude:  floatPtr(data["latitude"]),
		Longitude: floatPtr(data["longitude"]),
		Address:   models.AddressFromValue(data["address"]),
		DealIDs:   stringList(data["dealIds"]),
	}
	if v.Name == "" {
		v.Name = str(data["venue_name"])
	}
	if v.Latitude == nil || v.Longitude == nil {
		if c, ok := coordinates(data["location"]); ok {
			v.Latitude, v.Longitude = &c.Latitude, &c.Longitude
		}
	}
	return v
}

func timeWindowFromData(m map[string]any) models.TimeWindow {
	return models.TimeWindow{
		StartTime: str(m["startTime"]),
		EndTime:   str(m["endTime"]),
		Days:      stringList(m["days"]),
	}
}

func dealFromData(id string, data map[string]any) models.Deal {
	d := models.Deal{
		ID:             id,
		VenueID:        str(data["venueId"]),
		UserID:         str(data["userId"]),
		ImageURL:       str(data["imageUrl"]),
		RestaurantName: str(data["restaurantName"]),
		Verified:       boolean(data["verified"]),
		Active:         boolean(data["active"]),
		CreatedAt:      timestamp(data["createdAt"]),
		Votes:          models.Votes{UserVotes: map[string]models.VoteKind{}},
	}

	if ex, ok := data["extractedData"].(map[string]any); ok {
		d.ExtractedData = models.ExtractedData{
			RestaurantName:    strPtr(ex["restaurantName"]),
			Deals:             make([]models.DealItem, 0),
			TimeFrames:        make([]models.TimeWindow, 0),
			SpecialConditions: models.ConditionsFromValue(ex["specialConditions"]),
		}
		for _, item := range maps(ex["deals"]) {
			d.ExtractedData.Deals = append(d.ExtractedData.Deals, models.DealItem{
				Name:        str(item["name"]),
				Price:       str(item["price"]),
				Description: strPtr(item["description"]),
			})
		}
		for _, tw := range maps(ex["timeFrames"]) {
			d.ExtractedData.TimeFrames = append(d.ExtractedData.TimeFrames, timeWindowFromData(tw))
		}
	} else {
		d.ExtractedData = models.ExtractedData{Deals: []models.DealItem{}, TimeFrames: []models.TimeWindow{}}
	}

	if votes, ok := data["votes"].(map[string]any); ok {
		d.Votes.Upvotes = integer(votes["upvotes"])
		d.Votes.Downvotes = integer(votes["downvotes"])
		if uv, ok := votes["userVotes"].(map[string]any); ok {
			for user, kind := range uv {
				d.Votes.UserVotes[user] = models.VoteKind(str(kind))
			}
		}
	}

	if c, ok := coordinates(data["location"]); ok {
		d.Location = c
	} else {
		lat, _ := float(data["latitude"])
		lng, _ := float(data["longitude"])
		d.Location = models.Coordinates{Latitude: lat, Longitude: lng}
	}

	if t, ok := data["expiresAt"].(time.Time); ok {
		d.ExpiresAt = &t
	}

	if derived, ok := data["derived"].(map[string]any); ok {
		d.Derived = models.Derived{
			IsActiveNow:     boolean(derived["isActiveNow"]),
			ActiveDayOfWeek: stringList(derived["activeDayOfWeek"]),
		}
	}
	return d
}

// denormalizedFromData decodes a final_schema document: venue fields under
// their display names plus a pre-flattened deals array.
func denormalizedFromData(id string, data map[string]any) models.DenormalizedVenue {
	venueID := str(data["venue_id"])
	if venueID == "" {
		venueID = id
	}
	v := models.Venue{
		ID:        venueID,
		Name:      str(data["venue_name"]),
		Latitude:  floatPtr(data["latitude"]),
		Longitude: floatPtr(data["longitude"]),
		Address:   models.AddressFromValue(data["address"]),
	}
	if v.Name == "" {
		v.Name = str(data["restaurant_name"])
	}

	rows := make([]models.EmbeddedDeal, 0)
	for _, d := range maps(data["deals"]) {
		rows = append(rows, models.EmbeddedDeal{
			Name:              str(d["name"]),
			Price:             str(d["price"]),
			Description:       strPtr(d["description"]),
			StartTime:         str(d["start_time"]),
			EndTime:           str(d["end_time"]),
			Days:              stringList(d["days"]),
			SpecialConditions: models.ConditionsFromValue(d["special_conditions"]),
		})
	}
	return models.DenormalizedVenue{Venue: v, Deals: rows}
}

// dealDocument is the persisted form of a new deal. createdAt is assigned by
// the server; the search and coordinate fields duplicate data for queries.
func dealDocument(d models.Deal) map[string]any {
	data := d.ExtractedData

	items := make([]map[string]any, 0, len(data.Deals))
	for _, item := range data.Deals {
		items = append(items, map[string]any{
			"name":        item.Name,
			"price":       item.Price,
			"description": item.Description,
		})
	}
	frames := make([]map[string]any, 0, len(data.TimeFrames))
	for _, tw := range data.TimeFrames {
		days := tw.Days
		if days == nil {
			days = []string{}
		}
		frames = append(frames, map[string]any{
			"startTime": tw.StartTime,
			"endTime":   tw.EndTime,
			"days":      days,
		})
	}

	userVotes := make(map[string]any, len(d.Votes.UserVotes))
	for user, kind := range d.Votes.UserVotes {
		userVotes[user] = string(kind)
	}
	activeDays := d.Derived.ActiveDayOfWeek
	if activeDays == nil {
		activeDays = []string{}
	}

	var venueID any
	if d.VenueID != "" {
		venueID = d.VenueID
	}
	var expiresAt any
	if d.ExpiresAt != nil {
		expiresAt = *d.ExpiresAt
	}

	return map[string]any{
		"venueId":        venueID,
		"userId":         d.UserID,
		"imageUrl":       d.ImageURL,
		"restaurantName": d.RestaurantName,
		"extractedData": map[string]any{
			"restaurantName":    data.RestaurantName,
			"deals":             items,
			"timeFrames":        frames,
			"specialConditions": data.SpecialConditions.Value(),
		},
		"verified": d.Verified,
		"active":   d.Active,
		"votes": map[string]any{
			"upvotes":   d.Votes.Upvotes,
			"downvotes": d.Votes.Downvotes,
			"userVotes": userVotes,
		},
		"location":  &latlng.LatLng{Latitude: d.Location.Latitude, Longitude: d.Location.Longitude},
		"latitude":  d.Location.Latitude,
		"longitude": d.Location.Longitude,
		"createdAt": firestore.ServerTimestamp,
		"expiresAt": expiresAt,
		"derived": map[string]any{
			"isActiveNow":     d.Derived.IsActiveNow,
			"activeDayOfWeek": activeDays,
		},
		"_searchRestaurant": strings.ToLower(d.RestaurantName),
	}
}
