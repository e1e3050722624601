package storage

import (
	"testing"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/google/go-cmp/cmp"
	"google.golang.org/genproto/googleapis/type/latlng"

	"github.com/pauljones0/happymapper/internal/models"
)

func TestVenueFromData(t *testing.T) {
	tests := []struct {
		name    string
		data    map[string]any
		wantLat *float64
		wantAdr string
	}{
		{
			name:    "top-level coordinates and string address",
			data:    map[string]any{"name": "Bar", "latitude": 34.1, "longitude": int64(-118), "address": "1 Main St"},
			wantLat: ptr(34.1),
			wantAdr: "1 Main St",
		},
		{
			name:    "geopoint and structured address",
			data:    map[string]any{"name": "Bar", "location": &latlng.LatLng{Latitude: 40, Longitude: -74}, "address": map[string]any{"street": "2 Elm", "city": "NYC", "postalCode": "10001"}},
			wantLat: ptr(40.0),
			wantAdr: "2 Elm, NYC, 10001",
		},
		{
			name: "no coordinates",
			data: map[string]any{"venue_name": "Bar"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := venueFromData("v1", tt.data)
			if v.ID != "v1" || v.Name != "Bar" {
				t.Errorf("ID/Name = %q/%q", v.ID, v.Name)
			}
			if diff := cmp.Diff(tt.wantLat, v.Latitude); diff != "" {
				t.Errorf("Latitude mismatch (-want +got):\n%s", diff)
			}
			if got := models.FormatAddress(v.Address); got != tt.wantAdr {
				t.Errorf("Address = %q, want %q", got, tt.wantAdr)
			}
			if v.DealIDs == nil {
				t.Error("DealIDs should be non-nil")
			}
		})
	}
}

func TestDealFromData(t *testing.T) {
	created := time.Date(2025, 6, 6, 17, 0, 0, 0, time.UTC)
	data := map[string]any{
		"venueId":        "v1",
		"userId":         "u1",
		"imageUrl":       "https://example.com/menu.jpg",
		"restaurantName": "Bar",
		"active":         true,
		"createdAt":      created,
		"location":       &latlng.LatLng{Latitude: 1, Longitude: 2},
		"extractedData": map[string]any{
			"restaurantName": "Bar",
			"deals": []any{
				map[string]any{"name": "Beer", "price": "$5"},
				map[string]any{"name": "Wings", "price": int64(8), "description": "Half off"},
				"not a map",
			},
			"timeFrames": []any{
				map[string]any{"startTime": "16:00", "endTime": "19:00", "days": []any{"monday", "friday"}},
			},
			"specialConditions": []any{"Dine-in only", "Max 2"},
		},
		"votes": map[string]any{"upvotes": int64(3), "userVotes": map[string]any{"u2": "upvote"}},
		"derived": map[string]any{"isActiveNow": true, "activeDayOfWeek": []any{"friday"}},
	}

	d := dealFromData("d1", data)

	desc := "Half off"
	want := models.ExtractedData{
		RestaurantName: ptr("Bar"),
		Deals: []models.DealItem{
			{Name: "Beer", Price: "$5"},
			{Name: "Wings", Price: "8", Description: &desc},
		},
		TimeFrames:        []models.TimeWindow{{StartTime: "16:00", EndTime: "19:00", Days: []string{"monday", "friday"}}},
		SpecialConditions: models.ListConditions([]string{"Dine-in only", "Max 2"}),
	}
	if diff := cmp.Diff(want, d.ExtractedData, cmp.AllowUnexported(models.Conditions{})); diff != "" {
		t.Errorf("ExtractedData mismatch (-want +got):\n%s", diff)
	}
	if d.ID != "d1" || d.VenueID != "v1" || !d.Active || d.Verified {
		t.Errorf("scalar fields = %+v", d)
	}
	if !d.CreatedAt.Equal(created) {
		t.Errorf("CreatedAt = %v", d.CreatedAt)
	}
	if d.Location != (models.Coordinates{Latitude: 1, Longitude: 2}) {
		t.Errorf("Location = %v", d.Location)
	}
	if d.Votes.Upvotes != 3 || d.Votes.UserVotes["u2"] != models.VoteUp {
		t.Errorf("Votes = %+v", d.Votes)
	}
	if !d.Derived.IsActiveNow || len(d.Derived.ActiveDayOfWeek) != 1 {
		t.Errorf("Derived = %+v", d.Derived)
	}
	if d.ExpiresAt != nil {
		t.Error("ExpiresAt should be nil when absent")
	}
}

func TestDealFromData_MissingExtractedData(t *testing.T) {
	d := dealFromData("d1", map[string]any{"latitude": 5.0, "longitude": 6.0})
	if d.ExtractedData.Deals == nil || d.ExtractedData.TimeFrames == nil {
		t.Error("missing arrays should decode as empty, not nil")
	}
	if d.Location != (models.Coordinates{Latitude: 5, Longitude: 6}) {
		t.Errorf("Location fallback = %v", d.Location)
	}
}

func TestDenormalizedFromData(t *testing.T) {
	data := map[string]any{
		"venue_name": "Bar",
		"latitude":   34.0,
		"longitude":  -118.0,
		"address":    "1 Main St",
		"deals": []any{
			map[string]any{
				"name": "Beer", "price": "$5", "start_time": "4:00 PM", "end_time": "7:00 PM",
				"days": []any{"Monday"}, "special_conditions": []any{"Dine-in only"},
			},
			map[string]any{"name": "Fries"},
		},
	}

	got := denormalizedFromData("doc1", data)
	if got.Venue.ID != "doc1" {
		t.Errorf("venue ID should fall back to document ID, got %q", got.Venue.ID)
	}
	if len(got.Deals) != 2 {
		t.Fatalf("len(Deals) = %d, want 2", len(got.Deals))
	}
	row := got.Deals[0]
	if row.StartTime != "4:00 PM" || row.Days[0] != "Monday" || !row.SpecialConditions.IsList() {
		t.Errorf("row = %+v", row)
	}
	if got.Deals[1].Days == nil || got.Deals[1].Description != nil {
		t.Errorf("sparse row = %+v", got.Deals[1])
	}

	if v := denormalizedFromData("doc2", map[string]any{"venue_id": "v9"}); v.Venue.ID != "v9" || v.Deals == nil {
		t.Errorf("explicit venue_id = %+v", v)
	}
}

func TestDealDocument(t *testing.T) {
	deal := models.Deal{
		VenueID:        "v1",
		UserID:         "u1",
		ImageURL:       "https://example.com/menu.jpg",
		RestaurantName: "Happy Bar",
		ExtractedData: models.ExtractedData{
			Deals:             []models.DealItem{{Name: "Beer", Price: "$5"}},
			TimeFrames:        []models.TimeWindow{{StartTime: "16:00", EndTime: "19:00"}},
			SpecialConditions: models.TextConditions("Dine-in only"),
		},
		Active:   true,
		Votes:    models.Votes{UserVotes: map[string]models.VoteKind{}},
		Location: models.Coordinates{Latitude: 1.5, Longitude: 2.5},
	}

	doc := dealDocument(deal)

	if doc["_searchRestaurant"] != "happy bar" {
		t.Errorf("_searchRestaurant = %v", doc["_searchRestaurant"])
	}
	if doc["createdAt"] != firestore.ServerTimestamp {
		t.Error("createdAt should be a server timestamp")
	}
	if p, ok := doc["location"].(*latlng.LatLng); !ok || p.Latitude != 1.5 || p.Longitude != 2.5 {
		t.Errorf("location = %#v", doc["location"])
	}
	if doc["latitude"] != 1.5 || doc["longitude"] != 2.5 {
		t.Error("top-level coordinates missing")
	}
	if doc["expiresAt"] != nil {
		t.Errorf("expiresAt = %v, want nil", doc["expiresAt"])
	}
	ex := doc["extractedData"].(map[string]any)
	if ex["specialConditions"] != "Dine-in only" {
		t.Errorf("specialConditions = %v", ex["specialConditions"])
	}
	frames := ex["timeFrames"].([]map[string]any)
	if days, ok := frames[0]["days"].([]string); !ok || days == nil {
		t.Error("nil days should be stored as an empty array")
	}

	if doc := dealDocument(models.Deal{}); doc["venueId"] != nil {
		t.Errorf("empty venueId should be stored as null, got %v", doc["venueId"])
	}
}

func TestErrDealExists(t *testing.T) {
	if models.ErrDealExists.Error() != "deal already exists" {
		t.Errorf("ErrDealExists message = %q, want %q", models.ErrDealExists.Error(), "deal already exists")
	}
}

func ptr[T any](v T) *T { return &v }
