// Package service is the request/response boundary over the venue and deal
// pipeline. Every operation returns an envelope with success set; failures
// are reported in the envelope and never escape as errors or panics.
package service

import (
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/pauljones0/happymapper/internal/ai"
	"github.com/pauljones0/happymapper/internal/flatten"
	"github.com/pauljones0/happymapper/internal/models"
	"github.com/pauljones0/happymapper/internal/proximity"
	"github.com/pauljones0/happymapper/internal/schedule"
	"github.com/pauljones0/happymapper/internal/source"
	"github.com/pauljones0/happymapper/internal/validator"
)

// ErrVenueNotFound is reported when a venue id does not exist.
var ErrVenueNotFound = errors.New("Venue not found")

var errExtractionDisabled = errors.New("menu extraction is not configured")

type errorKind int

const (
	kindNone errorKind = iota
	kindInvalid
	kindNotFound
	kindUpstream
	kindInternal
)

// Result carries the outcome shared by every envelope.
type Result struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
	kind    errorKind
}

// StatusCode maps the outcome to an HTTP status.
func (r Result) StatusCode() int {
	switch r.kind {
	case kindNone:
		return http.StatusOK
	case kindInvalid:
		return http.StatusBadRequest
	case kindNotFound:
		return http.StatusNotFound
	case kindUpstream:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func ok() Result { return Result{Success: true} }

func failure(kind errorKind, msg string) Result {
	return Result{Success: false, Error: msg, kind: kind}
}

// guard turns a panic inside an operation into an internal-error envelope.
func guard(op string, r *Result) {
	if p := recover(); p != nil {
		slog.Error("Recovered panic in service operation", "op", op, "panic", p)
		*r = failure(kindInternal, "internal error")
	}
}

type VenuesResponse struct {
	Result
	Venues []models.FrontendVenue `json:"venues"`
}

type VenueResponse struct {
	Result
	Venue *models.FrontendVenue `json:"venue"`
}

type NearbyResponse struct {
	Result
	Results []proximity.Result `json:"results"`
}

type DealResponse struct {
	Result
	Deal *models.Deal `json:"deal"`
}

type ExtractResponse struct {
	Result
	Deal     *models.Deal           `json:"deal"`
	Venue    *models.FrontendVenue  `json:"venue"`
	AIResult *models.MenuExtraction `json:"aiResult"`
}

// Deps are the collaborators of a Service. Parser and Notifier may be nil.
type Deps struct {
	Venues    source.VenueSource
	Store     DealStore
	Parser    ai.MenuParser
	Images    ImageFetcher
	Notifier  DealNotifier
	Locator   Locator
	Validator *validator.Validator
	Evaluator schedule.Evaluator
	// Location is the time zone "active now" is evaluated in.
	Location      *time.Location
	DefaultRadius float64
}

type Service struct {
	venues        source.VenueSource
	store         DealStore
	parser        ai.MenuParser
	images        ImageFetcher
	notifier      DealNotifier
	locator       Locator
	validator     *validator.Validator
	evaluator     schedule.Evaluator
	flattener     flatten.Flattener
	location      *time.Location
	defaultRadius float64
	clock         func() time.Time
	pending       sync.WaitGroup
}

func New(d Deps) *Service {
	s := &Service{
		venues:        d.Venues,
		store:         d.Store,
		parser:        d.Parser,
		images:        d.Images,
		notifier:      d.Notifier,
		locator:       d.Locator,
		validator:     d.Validator,
		evaluator:     d.Evaluator,
		location:      d.Location,
		defaultRadius: d.DefaultRadius,
		clock:         time.Now,
	}
	if s.location == nil {
		s.location = time.UTC
	}
	if s.validator == nil {
		s.validator = validator.New()
	}
	if s.defaultRadius <= 0 {
		s.defaultRadius = 10
	}
	s.flattener = flatten.Flattener{Evaluator: s.evaluator, Now: s.now}
	return s
}

func (s *Service) now() time.Time {
	return s.clock().In(s.location)
}

// Wait blocks until background notifications have finished.
func (s *Service) Wait() {
	s.pending.Wait()
}
