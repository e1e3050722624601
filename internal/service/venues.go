package service

import (
	"context"
	"log/slog"
	"strings"

	"github.com/pauljones0/happymapper/internal/models"
	"github.com/pauljones0/happymapper/internal/proximity"
	"github.com/pauljones0/happymapper/internal/validator"
)

// NearbyRequest is a proximity query. A zero RadiusMiles uses the default.
type NearbyRequest struct {
	Latitude    float64 `json:"lat" validate:"gte=-90,lte=90"`
	Longitude   float64 `json:"lng" validate:"gte=-180,lte=180"`
	RadiusMiles float64 `json:"radius" validate:"gte=0"`
	Order       string  `json:"order" validate:"omitempty,oneof=asc desc"`
}

func (s *Service) flattenAll(vds []models.VenueDeals) []models.FrontendVenue {
	out := make([]models.FrontendVenue, 0, len(vds))
	for _, vd := range vds {
		out = append(out, s.flattener.Flatten(vd.Venue, vd.Deals))
	}
	return out
}

// GetVenueWithDeals returns one venue with its deals flattened.
func (s *Service) GetVenueWithDeals(ctx context.Context, venueID string) (resp VenueResponse) {
	defer guard("GetVenueWithDeals", &resp.Result)

	venueID = strings.TrimSpace(venueID)
	if venueID == "" {
		return VenueResponse{Result: failure(kindInvalid, "venueId is required")}
	}

	vd, err := s.venues.Get(ctx, venueID)
	if err != nil {
		slog.Error("Failed to load venue", "venue_id", venueID, "error", err)
		return VenueResponse{Result: failure(kindUpstream, err.Error())}
	}
	if vd == nil {
		return VenueResponse{Result: failure(kindNotFound, ErrVenueNotFound.Error())}
	}

	fv := s.flattener.Flatten(vd.Venue, vd.Deals)
	return VenueResponse{Result: ok(), Venue: &fv}
}

// GetAllVenuesWithDeals returns every venue with its deals flattened.
func (s *Service) GetAllVenuesWithDeals(ctx context.Context) (resp VenuesResponse) {
	defer guard("GetAllVenuesWithDeals", &resp.Result)

	venues, err := s.AllVenues(ctx)
	if err != nil {
		slog.Error("Failed to list venues", "error", err)
		return VenuesResponse{Result: failure(kindUpstream, err.Error()), Venues: []models.FrontendVenue{}}
	}
	return VenuesResponse{Result: ok(), Venues: venues}
}

// AllVenues lists flattened venues without an envelope.
func (s *Service) AllVenues(ctx context.Context) ([]models.FrontendVenue, error) {
	vds, err := s.venues.List(ctx)
	if err != nil {
		return nil, err
	}
	return s.flattenAll(vds), nil
}

// NearbyVenues returns venues within the radius of the origin ordered by
// distance. Venues whose coordinates cannot be resolved are left out.
func (s *Service) NearbyVenues(ctx context.Context, req NearbyRequest) (resp NearbyResponse) {
	defer guard("NearbyVenues", &resp.Result)

	if err := s.validator.ValidateStruct(req); err != nil {
		return NearbyResponse{Result: failure(kindInvalid, validator.Message(err)), Results: []proximity.Result{}}
	}
	radius := req.RadiusMiles
	if radius == 0 {
		radius = s.defaultRadius
	}

	venues, err := s.AllVenues(ctx)
	if err != nil {
		slog.Error("Failed to list venues for proximity query", "error", err)
		return NearbyResponse{Result: failure(kindUpstream, err.Error()), Results: []proximity.Result{}}
	}

	origin := models.Coordinates{Latitude: req.Latitude, Longitude: req.Longitude}
	results := s.locator.Nearby(origin, venues, radius, proximity.ParseOrder(req.Order))
	slog.Debug("Nearby query", "lat", req.Latitude, "lng", req.Longitude, "radius", radius, "venues", len(venues), "results", len(results))
	return NearbyResponse{Result: ok(), Results: results}
}

// SearchVenues matches the query against venue names and formatted addresses,
// ignoring case.
func (s *Service) SearchVenues(ctx context.Context, query string) (resp VenuesResponse) {
	defer guard("SearchVenues", &resp.Result)

	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return VenuesResponse{Result: failure(kindInvalid, "q is required"), Venues: []models.FrontendVenue{}}
	}

	venues, err := s.AllVenues(ctx)
	if err != nil {
		slog.Error("Failed to list venues for search", "error", err)
		return VenuesResponse{Result: failure(kindUpstream, err.Error()), Venues: []models.FrontendVenue{}}
	}

	matches := make([]models.FrontendVenue, 0)
	for _, v := range venues {
		if strings.Contains(strings.ToLower(v.VenueName), q) ||
			strings.Contains(strings.ToLower(models.FormatAddress(v.Address)), q) {
			matches = append(matches, v)
		}
	}
	return VenuesResponse{Result: ok(), Venues: matches}
}

// WatchVenues calls fn with the full flattened venue list on every upstream
// change. The flattener runs afresh for each event. It returns when ctx is
// cancelled, the listener fails, or fn returns an error.
func (s *Service) WatchVenues(ctx context.Context, fn func(VenuesResponse) error) error {
	return s.venues.Watch(ctx, func(vds []models.VenueDeals) error {
		resp := VenuesResponse{Result: ok()}
		func() {
			defer guard("WatchVenues", &resp.Result)
			resp.Venues = s.flattenAll(vds)
		}()
		if resp.Venues == nil {
			resp.Venues = []models.FrontendVenue{}
		}
		return fn(resp)
	})
}

// GetDeal returns a stored deal with its activity fields evaluated now.
func (s *Service) GetDeal(ctx context.Context, dealID string) (resp DealResponse) {
	defer guard("GetDeal", &resp.Result)

	dealID = strings.TrimSpace(dealID)
	if dealID == "" {
		return DealResponse{Result: failure(kindInvalid, "dealId is required")}
	}

	deal, err := s.store.GetDeal(ctx, dealID)
	if err != nil {
		slog.Error("Failed to load deal", "deal_id", dealID, "error", err)
		return DealResponse{Result: failure(kindUpstream, err.Error())}
	}
	if deal == nil {
		return DealResponse{Result: failure(kindNotFound, "Deal not found")}
	}

	deal.Derived = s.evaluator.Derive(deal.ExtractedData.TimeFrames, s.now())
	return DealResponse{Result: ok(), Deal: deal}
}
