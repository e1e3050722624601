package models

import (
	"fmt"
	"strings"
)

// Address is either a free-form string or a structured postal address.
type Address interface {
	Format() string
	isAddress()
}

// AddressString is an address stored as a single line.
type AddressString string

func (a AddressString) Format() string { return strings.TrimSpace(string(a)) }

func (AddressString) isAddress() {}

// AddressStructured is an address stored as separate components.
type AddressStructured struct {
	Street  string `json:"street,omitempty"`
	City    string `json:"city,omitempty"`
	State   string `json:"state,omitempty"`
	Zip     string `json:"zip,omitempty"`
	Country string `json:"country,omitempty"`
}

// Format joins the non-empty components with ", ".
func (a AddressStructured) Format() string {
	parts := make([]string, 0, 5)
	for _, p := range []string{a.Street, a.City, a.State, a.Zip, a.Country} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ", ")
}

func (AddressStructured) isAddress() {}

// FormatAddress formats any address variant; nil formats as "".
func FormatAddress(a Address) string {
	if a == nil {
		return ""
	}
	return a.Format()
}

// AddressFromValue converts a decoded document value into an Address.
// Strings become AddressString, maps become AddressStructured (accepting
// either "zip" or "postalCode"), anything else yields nil.
func AddressFromValue(v any) Address {
	switch val := v.(type) {
	case string:
		if val == "" {
			return nil
		}
		return AddressString(val)
	case map[string]any:
		str := func(keys ...string) string {
			for _, k := range keys {
				if s, ok := val[k]; ok && s != nil {
					return strings.TrimSpace(fmt.Sprint(s))
				}
			}
			return ""
		}
		return AddressStructured{
			Street:  str("street"),
			City:    str("city"),
			State:   str("state"),
			Zip:     str("zip", "postalCode", "postal_code"),
			Country: str("country"),
		}
	}
	return nil
}

// Venue is a physical location that owns zero or more deals by reference.
type Venue struct {
	ID        string
	Name      string
	Latitude  *float64
	Longitude *float64
	Address   Address
	DealIDs   []string
}

// EmbeddedDeal is one pre-flattened deal row of a denormalized venue document.
type EmbeddedDeal struct {
	Name              string
	Price             string
	Description       *string
	StartTime         string
	EndTime           string
	Days              []string
	SpecialConditions Conditions
}

// DenormalizedVenue is a read-model venue document with its deals embedded.
type DenormalizedVenue struct {
	Venue Venue
	Deals []EmbeddedDeal
}

// VenueDeals pairs a venue with its canonical deal records.
type VenueDeals struct {
	Venue Venue
	Deals []Deal
}

// FrontendDeal is one display row: a single line item under a single time window.
type FrontendDeal struct {
	Name              string   `json:"name"`
	Price             string   `json:"price"`
	Description       *string  `json:"description"`
	StartTime         string   `json:"start_time"`
	EndTime           string   `json:"end_time"`
	Days              []string `json:"days"`
	SpecialConditions *string  `json:"special_conditions"`
	IsActiveNow       bool     `json:"is_active_now"`
}

// FrontendVenue is the denormalized venue shape returned to clients.
type FrontendVenue struct {
	VenueID   string         `json:"venue_id"`
	VenueName string         `json:"venue_name"`
	Latitude  *float64       `json:"latitude"`
	Longitude *float64       `json:"longitude"`
	Address   Address        `json:"address"`
	Deals     []FrontendDeal `json:"deals"`
}

// Coordinates reports the venue's own position when both components are present.
func (v FrontendVenue) Coordinates() (Coordinates, bool) {
	if v.Latitude == nil || v.Longitude == nil {
		return Coordinates{}, false
	}
	return Coordinates{Latitude: *v.Latitude, Longitude: *v.Longitude}, true
}
