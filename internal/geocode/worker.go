package geocode

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/pauljones0/happymapper/internal/models"
)

const (
	// WorkerPoolSize bounds concurrent geocoding requests per pass.
	WorkerPoolSize = 4
	// failureCooldown is how long an address that failed is left alone.
	failureCooldown = time.Hour
)

// Geocoder resolves a formatted address.
type Geocoder interface {
	Geocode(ctx context.Context, address string) (models.Coordinates, error)
}

// CacheWriter receives resolved coordinates.
type CacheWriter interface {
	Store(venueID string, coords models.Coordinates) error
}

// VenueLister supplies the current venue list.
type VenueLister interface {
	AllVenues(ctx context.Context) ([]models.FrontendVenue, error)
}

// Resolver reports which venues still lack coordinates.
type Resolver interface {
	Missing(venues []models.FrontendVenue) []models.FrontendVenue
}

// Worker periodically geocodes venues that have an address but no
// coordinates. Results land in the cache; readers never wait for it.
type Worker struct {
	geocoder Geocoder
	cache    CacheWriter
	venues   VenueLister
	resolver Resolver
	interval time.Duration

	mu     sync.Mutex
	failed map[string]time.Time
	now    func() time.Time
}

func NewWorker(g Geocoder, cache CacheWriter, venues VenueLister, resolver Resolver, interval time.Duration) *Worker {
	return &Worker{
		geocoder: g,
		cache:    cache,
		venues:   venues,
		resolver: resolver,
		interval: interval,
		failed:   make(map[string]time.Time),
		now:      time.Now,
	}
}

// Run processes pending venues every interval until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	slog.Info("Starting geocoding worker", "interval", w.interval, "concurrency", WorkerPoolSize)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		if n, err := w.RunOnce(ctx); err != nil {
			slog.Warn("Geocoding pass failed", "error", err)
		} else if n > 0 {
			slog.Info("Geocoding pass resolved venues", "count", n)
		}
		select {
		case <-ctx.Done():
			slog.Info("Geocoding worker stopped")
			return
		case <-ticker.C:
		}
	}
}

// RunOnce geocodes every pending venue once and returns how many resolved.
func (w *Worker) RunOnce(ctx context.Context) (int, error) {
	venues, err := w.venues.AllVenues(ctx)
	if err != nil {
		return 0, err
	}

	var (
		resolved int
		countMu  sync.Mutex
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(WorkerPoolSize)

	for _, v := range w.resolver.Missing(venues) {
		address := models.FormatAddress(v.Address)
		if address == "" || w.coolingDown(v.VenueID) {
			continue
		}
		g.Go(func() error {
			coords, err := w.geocoder.Geocode(gctx, address)
			if err != nil {
				// Only a cancelled pass stops the group; a per-request
				// timeout is an ordinary failure for this venue.
				if ctx.Err() != nil {
					return ctx.Err()
				}
				slog.Warn("Geocoding failed", "venue_id", v.VenueID, "address", address, "error", err)
				w.markFailed(v.VenueID)
				return nil
			}
			if err := w.cache.Store(v.VenueID, coords); err != nil {
				slog.Warn("Failed to store geocode", "venue_id", v.VenueID, "error", err)
				return nil
			}
			countMu.Lock()
			resolved++
			countMu.Unlock()
			slog.Debug("Resolved venue", "venue_id", v.VenueID, "lat", coords.Latitude, "lng", coords.Longitude)
			return nil
		})
	}

	err = g.Wait()
	return resolved, err
}

func (w *Worker) coolingDown(venueID string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	at, ok := w.failed[venueID]
	if !ok {
		return false
	}
	if w.now().Sub(at) >= failureCooldown {
		delete(w.failed, venueID)
		return false
	}
	return true
}

func (w *Worker) markFailed(venueID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.failed[venueID] = w.now()
}
