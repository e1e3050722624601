// Package api exposes the venue and deal service over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	scalargo "github.com/bdpiprava/scalar-go"
	"github.com/rs/cors"

	"github.com/pauljones0/happymapper/internal/models"
	"github.com/pauljones0/happymapper/internal/service"
)

// UserHeader carries the authenticated caller's id, set by the fronting auth proxy.
const UserHeader = "X-User-ID"

const maxBodyBytes = 1 << 20

// Backend is the set of service operations the HTTP layer serves.
type Backend interface {
	GetAllVenuesWithDeals(ctx context.Context) service.VenuesResponse
	GetVenueWithDeals(ctx context.Context, venueID string) service.VenueResponse
	NearbyVenues(ctx context.Context, req service.NearbyRequest) service.NearbyResponse
	SearchVenues(ctx context.Context, query string) service.VenuesResponse
	WatchVenues(ctx context.Context, fn func(service.VenuesResponse) error) error
	ExtractDealFromImage(ctx context.Context, req service.ExtractRequest) service.ExtractResponse
	GetDeal(ctx context.Context, dealID string) service.DealResponse
}

type Options struct {
	AllowedOrigins []string
	// DocsDir holds the OpenAPI document rendered at /docs. Empty disables /docs.
	DocsDir string
}

type Server struct {
	svc  Backend
	opts Options
}

func New(svc Backend, opts Options) *Server {
	return &Server{svc: svc, opts: opts}
}

// Handler returns the routed mux wrapped in CORS, logging and panic recovery.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /venues", s.handleVenues)
	mux.HandleFunc("GET /venues/nearby", s.handleNearby)
	mux.HandleFunc("GET /venues/search", s.handleSearch)
	mux.HandleFunc("GET /venues/stream", s.handleStream)
	mux.HandleFunc("GET /venues/{id}", s.handleVenue)
	mux.HandleFunc("POST /deals/extract", s.handleExtract)
	mux.HandleFunc("GET /deals/{id}", s.handleDeal)
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, `{"status":"ok"}`)
	})
	if s.opts.DocsDir != "" {
		mux.HandleFunc("GET /docs", s.handleDocs)
	}

	origins := s.opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	c := cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "Authorization", UserHeader},
	})
	return recoverer(logRequests(c.Handler(mux)))
}

// statusCoder is implemented by every service envelope.
type statusCoder interface {
	StatusCode() int
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

func writeEnvelope(w http.ResponseWriter, resp statusCoder) {
	writeJSON(w, resp.StatusCode(), resp)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"success": false, "error": msg})
}

func (s *Server) handleVenues(w http.ResponseWriter, r *http.Request) {
	writeEnvelope(w, s.svc.GetAllVenuesWithDeals(r.Context()))
}

func (s *Server) handleVenue(w http.ResponseWriter, r *http.Request) {
	writeEnvelope(w, s.svc.GetVenueWithDeals(r.Context(), r.PathValue("id")))
}

func (s *Server) handleNearby(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	lat, err := floatParam(q.Get("lat"), true)
	if err != nil {
		writeError(w, http.StatusBadRequest, "lat "+err.Error())
		return
	}
	lng, err := floatParam(q.Get("lng"), true)
	if err != nil {
		writeError(w, http.StatusBadRequest, "lng "+err.Error())
		return
	}
	radius, err := floatParam(q.Get("radius"), false)
	if err != nil {
		writeError(w, http.StatusBadRequest, "radius "+err.Error())
		return
	}

	writeEnvelope(w, s.svc.NearbyVenues(r.Context(), service.NearbyRequest{
		Latitude:    lat,
		Longitude:   lng,
		RadiusMiles: radius,
		Order:       strings.ToLower(q.Get("order")),
	}))
}

func floatParam(raw string, required bool) (float64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		if required {
			return 0, errors.New("is required")
		}
		return 0, nil
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, errors.New("must be a number")
	}
	return f, nil
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	writeEnvelope(w, s.svc.SearchVenues(r.Context(), r.URL.Query().Get("q")))
}

// handleStream pushes the full venue list as a server-sent event on every
// change until the client disconnects.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	// The server's write timeout would otherwise cut the stream.
	if err := http.NewResponseController(w).SetWriteDeadline(time.Time{}); err != nil {
		slog.Debug("Could not clear write deadline for stream", "error", err)
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ctx := r.Context()
	events := 0
	err := s.svc.WatchVenues(ctx, func(resp service.VenuesResponse) error {
		data, err := json.Marshal(resp)
		if err != nil {
			return fmt.Errorf("encode venues event: %w", err)
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
			return err
		}
		flusher.Flush()
		events++
		return nil
	})
	if err != nil && ctx.Err() == nil {
		slog.Error("Venue stream ended", "error", err, "events", events)
		data, _ := json.Marshal(map[string]any{"success": false, "error": err.Error(), "venues": []models.FrontendVenue{}})
		fmt.Fprintf(w, "event: error\ndata: %s\n\n", data)
		flusher.Flush()
		return
	}
	slog.Debug("Venue stream closed", "events", events)
}

// extractBody is the JSON body of POST /deals/extract.
type extractBody struct {
	ImageURL       string              `json:"imageUrl"`
	VenueID        string              `json:"venueId"`
	RestaurantName string              `json:"restaurantName"`
	Location       *models.Coordinates `json:"location"`
}

func (s *Server) handleExtract(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimSpace(r.Header.Get(UserHeader))
	if userID == "" {
		writeError(w, http.StatusUnauthorized, "User must be authenticated")
		return
	}

	var body extractBody
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	writeEnvelope(w, s.svc.ExtractDealFromImage(r.Context(), service.ExtractRequest{
		UserID:         userID,
		ImageURL:       body.ImageURL,
		VenueID:        body.VenueID,
		RestaurantName: body.RestaurantName,
		Location:       body.Location,
	}))
}

func (s *Server) handleDeal(w http.ResponseWriter, r *http.Request) {
	writeEnvelope(w, s.svc.GetDeal(r.Context(), r.PathValue("id")))
}

func (s *Server) handleDocs(w http.ResponseWriter, r *http.Request) {
	html, err := scalargo.NewV2(
		scalargo.WithSpecDir(s.opts.DocsDir),
		scalargo.WithMetaDataOpts(
			scalargo.WithTitle("HappyMapper API"),
		),
	)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, html)
}
