package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/pauljones0/happymapper/internal/models"
	"github.com/pauljones0/happymapper/internal/normalize"
	"github.com/pauljones0/happymapper/internal/validator"
)

// ExtractRequest is one menu upload. UserID comes from the caller's identity,
// not the request body.
type ExtractRequest struct {
	UserID         string              `json:"-" validate:"required"`
	ImageURL       string              `json:"imageUrl" validate:"required,url"`
	VenueID        string              `json:"venueId,omitempty"`
	RestaurantName string              `json:"restaurantName,omitempty" validate:"max=200"`
	Location       *models.Coordinates `json:"location,omitempty" validate:"omitempty"`
}

// ExtractDealFromImage downloads the menu image, extracts it, stores the
// normalized deal and returns it with the refreshed venue.
func (s *Service) ExtractDealFromImage(ctx context.Context, req ExtractRequest) (resp ExtractResponse) {
	defer guard("ExtractDealFromImage", &resp.Result)

	req.VenueID = strings.TrimSpace(req.VenueID)
	if strings.TrimSpace(req.UserID) == "" {
		return ExtractResponse{Result: failure(kindInvalid, "userId is required")}
	}
	if err := s.validator.ValidateStruct(req); err != nil {
		return ExtractResponse{Result: failure(kindInvalid, validator.Message(err))}
	}
	if s.parser == nil {
		return ExtractResponse{Result: failure(kindUpstream, errExtractionDisabled.Error())}
	}

	img, err := s.images.Fetch(ctx, req.ImageURL)
	if err != nil {
		slog.Error("Image download failed", "url", req.ImageURL, "error", err)
		return ExtractResponse{Result: failure(kindUpstream, err.Error())}
	}
	slog.Info("Downloaded menu image", "bytes", len(img.Data), "mime", img.MIMEType)

	extraction, err := s.parser.ParseMenu(ctx, img.Data, img.MIMEType)
	if err != nil {
		slog.Error("Menu extraction failed", "error", err)
		return ExtractResponse{Result: failure(kindUpstream, fmt.Sprintf("AI service error: %v", err))}
	}

	var venue *models.Venue
	if req.VenueID != "" {
		venue, err = s.store.GetVenue(ctx, req.VenueID)
		if err != nil {
			slog.Error("Failed to load venue for upload", "venue_id", req.VenueID, "error", err)
			return ExtractResponse{Result: failure(kindUpstream, err.Error())}
		}
		if venue == nil {
			slog.Warn("Upload references unknown venue", "venue_id", req.VenueID)
		}
	}

	upload := normalize.Upload{
		UserID:         req.UserID,
		VenueID:        req.VenueID,
		ImageURL:       req.ImageURL,
		RestaurantName: req.RestaurantName,
		Location:       dealLocation(venue, req.Location),
	}
	deal := normalize.Record(upload, *extraction, s.evaluator, s.now())

	id, err := s.store.CreateDeal(ctx, deal)
	if err != nil {
		slog.Error("Failed to store deal", "error", err)
		return ExtractResponse{Result: failure(kindUpstream, err.Error())}
	}
	deal.ID = id
	slog.Info("New deal added", "id", id, "restaurant", deal.RestaurantName, "items", len(deal.ExtractedData.Deals))

	s.notify(ctx, deal)

	resp = ExtractResponse{Result: ok(), Deal: &deal, AIResult: extraction}
	if venue != nil {
		deals, err := s.venues.DealsForVenue(ctx, venue.ID)
		if err != nil {
			slog.Warn("Failed to refresh venue after upload", "venue_id", venue.ID, "error", err)
		} else {
			fv := s.flattener.Flatten(*venue, deals)
			resp.Venue = &fv
		}
	}
	return resp
}

// dealLocation prefers the venue's coordinates, then the uploader's, then (0,0).
func dealLocation(venue *models.Venue, uploader *models.Coordinates) models.Coordinates {
	if venue != nil && venue.Latitude != nil && venue.Longitude != nil {
		return models.Coordinates{Latitude: *venue.Latitude, Longitude: *venue.Longitude}
	}
	if uploader != nil {
		return *uploader
	}
	return models.Coordinates{}
}

// notify posts the moderation message in the background so webhook retries
// never delay the upload response.
func (s *Service) notify(ctx context.Context, deal models.Deal) {
	if s.notifier == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)
	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		if _, err := s.notifier.Send(ctx, deal); err != nil {
			slog.Warn("Failed to send moderation notification", "id", deal.ID, "error", err)
		}
	}()
}
