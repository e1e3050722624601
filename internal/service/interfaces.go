package service

import (
	"context"

	"github.com/pauljones0/happymapper/internal/imagefetch"
	"github.com/pauljones0/happymapper/internal/models"
	"github.com/pauljones0/happymapper/internal/proximity"
)

// DealStore abstracts the storage layer for the upload path.
type DealStore interface {
	GetVenue(ctx context.Context, id string) (*models.Venue, error)
	GetDeal(ctx context.Context, id string) (*models.Deal, error)
	CreateDeal(ctx context.Context, deal models.Deal) (string, error)
}

// DealNotifier abstracts the moderation notification layer.
type DealNotifier interface {
	Send(ctx context.Context, deal models.Deal) (string, error)
}

// ImageFetcher downloads an uploaded menu image.
type ImageFetcher interface {
	Fetch(ctx context.Context, rawURL string) (*imagefetch.Image, error)
}

// Locator filters and orders venues by distance.
type Locator interface {
	Nearby(origin models.Coordinates, venues []models.FrontendVenue, radiusMiles float64, order proximity.Order) []proximity.Result
}
