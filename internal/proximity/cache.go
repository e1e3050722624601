package proximity

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/pauljones0/happymapper/internal/models"
)

// MemoryCache is a concurrency-safe in-process geocode cache.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]models.Coordinates
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string]models.Coordinates)}
}

func (c *MemoryCache) Lookup(venueID string) (models.Coordinates, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	coords, ok := c.entries[venueID]
	return coords, ok
}

func (c *MemoryCache) Store(venueID string, coords models.Coordinates) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[venueID] = coords
	return nil
}

// SQLiteCache persists geocode results across restarts. Reads are served
// from memory; the database is read once at open and written on Store.
type SQLiteCache struct {
	db  *sqlx.DB
	mem *MemoryCache
}

type geocodeRow struct {
	VenueID    string    `db:"venue_id"`
	Latitude   float64   `db:"latitude"`
	Longitude  float64   `db:"longitude"`
	ResolvedAt time.Time `db:"resolved_at"`
}

// OpenSQLiteCache opens (creating if needed) the cache database at path.
func OpenSQLiteCache(path string) (*SQLiteCache, error) {
	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open geocode cache: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS geocodes (
			venue_id TEXT PRIMARY KEY,
			latitude REAL NOT NULL,
			longitude REAL NOT NULL,
			resolved_at DATETIME NOT NULL
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create geocode table: %w", err)
	}

	var rows []geocodeRow
	if err := db.Select(&rows, `SELECT venue_id, latitude, longitude, resolved_at FROM geocodes`); err != nil {
		db.Close()
		return nil, fmt.Errorf("load geocodes: %w", err)
	}

	mem := NewMemoryCache()
	for _, r := range rows {
		mem.entries[r.VenueID] = models.Coordinates{Latitude: r.Latitude, Longitude: r.Longitude}
	}
	slog.Info("Geocode cache loaded", "path", path, "entries", len(rows))
	return &SQLiteCache{db: db, mem: mem}, nil
}

func (c *SQLiteCache) Lookup(venueID string) (models.Coordinates, bool) {
	return c.mem.Lookup(venueID)
}

func (c *SQLiteCache) Store(venueID string, coords models.Coordinates) error {
	_, err := c.db.NamedExec(
		`INSERT INTO geocodes (venue_id, latitude, longitude, resolved_at)
		 VALUES (:venue_id, :latitude, :longitude, :resolved_at)
		 ON CONFLICT(venue_id)
		 DO UPDATE SET latitude = excluded.latitude, longitude = excluded.longitude, resolved_at = excluded.resolved_at`,
		geocodeRow{VenueID: venueID, Latitude: coords.Latitude, Longitude: coords.Longitude, ResolvedAt: time.Now().UTC()},
	)
	if err != nil {
		return fmt.Errorf("store geocode %s: %w", venueID, err)
	}
	return c.mem.Store(venueID, coords)
}

func (c *SQLiteCache) Close() error {
	return c.db.Close()
}
