package models

import (
	"errors"
	"time"
)

// ErrDealExists is returned when a deal document with the same ID is already stored.
var ErrDealExists = errors.New("deal already exists")

// VoteKind is a single user's vote on a deal.
type VoteKind string

const (
	VoteUp   VoteKind = "upvote"
	VoteDown VoteKind = "downvote"
)

// Coordinates is a WGS84 point in degrees.
type Coordinates struct {
	Latitude  float64 `json:"latitude" validate:"gte=-90,lte=90"`
	Longitude float64 `json:"longitude" validate:"gte=-180,lte=180"`
}

// DealItem is one line item of a happy hour menu. Price is an opaque display
// string and is never parsed.
type DealItem struct {
	Name        string  `json:"name"`
	Price       string  `json:"price"`
	Description *string `json:"description"`
}

// TimeWindow is a canonical availability window. StartTime and EndTime are
// 24h zero-padded "HH:MM"; Days holds lowercase weekday names, and an empty
// Days means every day.
type TimeWindow struct {
	StartTime string   `json:"startTime"`
	EndTime   string   `json:"endTime"`
	Days      []string `json:"days"`
}

// ExtractedData is the canonical form of one menu extraction.
type ExtractedData struct {
	RestaurantName    *string      `json:"restaurantName"`
	Deals             []DealItem   `json:"deals"`
	TimeFrames        []TimeWindow `json:"timeFrames"`
	SpecialConditions Conditions   `json:"specialConditions"`
}

type Votes struct {
	Upvotes   int                 `json:"upvotes"`
	Downvotes int                 `json:"downvotes"`
	UserVotes map[string]VoteKind `json:"userVotes"`
}

// Derived holds activity fields computed from TimeFrames at a given instant.
type Derived struct {
	IsActiveNow     bool     `json:"isActiveNow"`
	ActiveDayOfWeek []string `json:"activeDayOfWeek"`
}

// Deal is the canonical stored record of one menu upload.
type Deal struct {
	ID             string        `json:"id"`
	VenueID        string        `json:"venueId,omitempty"`
	UserID         string        `json:"userId" validate:"required"`
	ImageURL       string        `json:"imageUrl" validate:"required,url"`
	RestaurantName string        `json:"restaurantName"`
	ExtractedData  ExtractedData `json:"extractedData"`
	Verified       bool          `json:"verified"`
	Active         bool          `json:"active"`
	Votes          Votes         `json:"votes"`
	Location       Coordinates   `json:"location"`
	CreatedAt      time.Time     `json:"createdAt"`
	ExpiresAt      *time.Time    `json:"expiresAt"`
	Derived        Derived       `json:"derived"`
}
