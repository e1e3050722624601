// Package source hides which Firestore layout venues are read from. The
// embedded source reads final_schema documents with deals already inlined;
// the joined source reads venues and queries their active deals. Both hand
// back canonical records, so callers flatten them the same way.
package source

import (
	"context"
	"fmt"

	"github.com/pauljones0/happymapper/internal/flatten"
	"github.com/pauljones0/happymapper/internal/models"
)

// Kind names a VenueSource implementation.
type Kind string

const (
	KindDenormalized Kind = "denormalized"
	KindJoined       Kind = "joined"
)

// VenueSource reads venues with their deals as canonical records.
type VenueSource interface {
	// List returns every venue.
	List(ctx context.Context) ([]models.VenueDeals, error)
	// Get returns nil, nil when the venue does not exist.
	Get(ctx context.Context, venueID string) (*models.VenueDeals, error)
	// DealsForVenue returns the venue's active deals; unknown venues have none.
	DealsForVenue(ctx context.Context, venueID string) ([]models.Deal, error)
	// Watch calls fn with the full venue list on every upstream change until
	// ctx is cancelled or fn returns an error.
	Watch(ctx context.Context, fn func([]models.VenueDeals) error) error
}

// EmbeddedStore reads the denormalized read-model collection.
type EmbeddedStore interface {
	ListDenormalizedVenues(ctx context.Context) ([]models.DenormalizedVenue, error)
	GetDenormalizedVenue(ctx context.Context, id string) (*models.DenormalizedVenue, error)
	WatchDenormalizedVenues(ctx context.Context, fn func([]models.DenormalizedVenue) error) error
}

// JoinedStore reads venues and deals from separate collections.
type JoinedStore interface {
	ListVenues(ctx context.Context) ([]models.Venue, error)
	GetVenue(ctx context.Context, id string) (*models.Venue, error)
	ActiveDeals(ctx context.Context) ([]models.Deal, error)
	ActiveDealsForVenue(ctx context.Context, venueID string) ([]models.Deal, error)
	WatchActiveDeals(ctx context.Context, fn func([]models.Deal) error) error
}

// Store is satisfied by the Firestore client and covers both layouts.
type Store interface {
	EmbeddedStore
	JoinedStore
}

// New returns the source for kind.
func New(kind Kind, store Store) (VenueSource, error) {
	switch kind {
	case KindDenormalized, "":
		return NewEmbedded(store), nil
	case KindJoined:
		return NewJoined(store), nil
	}
	return nil, fmt.Errorf("unknown venue source %q", kind)
}

// Embedded reads final_schema documents.
type Embedded struct {
	store EmbeddedStore
}

func NewEmbedded(store EmbeddedStore) *Embedded {
	return &Embedded{store: store}
}

func fromDenormalized(d models.DenormalizedVenue) models.VenueDeals {
	return models.VenueDeals{Venue: d.Venue, Deals: flatten.Canonicalize(d.Deals)}
}

func (s *Embedded) List(ctx context.Context) ([]models.VenueDeals, error) {
	docs, err := s.store.ListDenormalizedVenues(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]models.VenueDeals, 0, len(docs))
	for _, d := range docs {
		out = append(out, fromDenormalized(d))
	}
	return out, nil
}

func (s *Embedded) Get(ctx context.Context, venueID string) (*models.VenueDeals, error) {
	doc, err := s.store.GetDenormalizedVenue(ctx, venueID)
	if err != nil || doc == nil {
		return nil, err
	}
	vd := fromDenormalized(*doc)
	return &vd, nil
}

func (s *Embedded) DealsForVenue(ctx context.Context, venueID string) ([]models.Deal, error) {
	vd, err := s.Get(ctx, venueID)
	if err != nil {
		return nil, err
	}
	if vd == nil {
		return []models.Deal{}, nil
	}
	return vd.Deals, nil
}

func (s *Embedded) Watch(ctx context.Context, fn func([]models.VenueDeals) error) error {
	return s.store.WatchDenormalizedVenues(ctx, func(docs []models.DenormalizedVenue) error {
		out := make([]models.VenueDeals, 0, len(docs))
		for _, d := range docs {
			out = append(out, fromDenormalized(d))
		}
		return fn(out)
	})
}

// Joined reads the venues collection and joins active deals by venueId.
type Joined struct {
	store JoinedStore
}

func NewJoined(store JoinedStore) *Joined {
	return &Joined{store: store}
}

func (s *Joined) List(ctx context.Context) ([]models.VenueDeals, error) {
	venues, err := s.store.ListVenues(ctx)
	if err != nil {
		return nil, err
	}
	deals, err := s.store.ActiveDeals(ctx)
	if err != nil {
		return nil, err
	}
	return join(venues, deals), nil
}

func join(venues []models.Venue, deals []models.Deal) []models.VenueDeals {
	byVenue := make(map[string][]models.Deal)
	for _, d := range deals {
		byVenue[d.VenueID] = append(byVenue[d.VenueID], d)
	}
	out := make([]models.VenueDeals, 0, len(venues))
	for _, v := range venues {
		vd := byVenue[v.ID]
		if vd == nil {
			vd = []models.Deal{}
		}
		out = append(out, models.VenueDeals{Venue: v, Deals: vd})
	}
	return out
}

func (s *Joined) Get(ctx context.Context, venueID string) (*models.VenueDeals, error) {
	v, err := s.store.GetVenue(ctx, venueID)
	if err != nil || v == nil {
		return nil, err
	}
	deals, err := s.store.ActiveDealsForVenue(ctx, venueID)
	if err != nil {
		return nil, err
	}
	return &models.VenueDeals{Venue: *v, Deals: deals}, nil
}

func (s *Joined) DealsForVenue(ctx context.Context, venueID string) ([]models.Deal, error) {
	return s.store.ActiveDealsForVenue(ctx, venueID)
}

// Watch listens on active deals. Venue documents are re-read on each change,
// since a new deal is the event that changes what a venue displays.
func (s *Joined) Watch(ctx context.Context, fn func([]models.VenueDeals) error) error {
	return s.store.WatchActiveDeals(ctx, func(deals []models.Deal) error {
		venues, err := s.store.ListVenues(ctx)
		if err != nil {
			return err
		}
		return fn(join(venues, deals))
	})
}
