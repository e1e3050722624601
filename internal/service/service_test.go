package service

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/pauljones0/happymapper/internal/imagefetch"
	"github.com/pauljones0/happymapper/internal/models"
	"github.com/pauljones0/happymapper/internal/proximity"
	"github.com/pauljones0/happymapper/internal/schedule"
)

// --- Mock implementations ---

type mockSource struct {
	venues  []models.VenueDeals
	listErr error
	getErr  error
	events  [][]models.VenueDeals
	// written, when set, backs DealsForVenue with the deals stored so far.
	written *mockStore
}

func (m *mockSource) List(context.Context) ([]models.VenueDeals, error) {
	return m.venues, m.listErr
}

func (m *mockSource) Get(_ context.Context, id string) (*models.VenueDeals, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	for _, v := range m.venues {
		if v.Venue.ID == id {
			vd := v
			return &vd, nil
		}
	}
	return nil, nil
}

func (m *mockSource) DealsForVenue(_ context.Context, id string) ([]models.Deal, error) {
	if m.written != nil {
		var out []models.Deal
		for _, d := range m.written.created {
			if d.VenueID == id && d.Active {
				out = append(out, d)
			}
		}
		return out, nil
	}
	vd, err := m.Get(context.Background(), id)
	if err != nil || vd == nil {
		return nil, err
	}
	return vd.Deals, nil
}

func (m *mockSource) Watch(_ context.Context, fn func([]models.VenueDeals) error) error {
	for _, e := range m.events {
		if err := fn(e); err != nil {
			return err
		}
	}
	return nil
}

type mockStore struct {
	venues    map[string]*models.Venue
	deals     map[string]*models.Deal
	created   []models.Deal
	createErr error
	getErr    error
}

func newMockStore() *mockStore {
	return &mockStore{venues: map[string]*models.Venue{}, deals: map[string]*models.Deal{}}
}

func (m *mockStore) GetVenue(_ context.Context, id string) (*models.Venue, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	return m.venues[id], nil
}

func (m *mockStore) GetDeal(_ context.Context, id string) (*models.Deal, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	d, ok := m.deals[id]
	if !ok {
		return nil, nil
	}
	copy := *d
	return &copy, nil
}

func (m *mockStore) CreateDeal(_ context.Context, deal models.Deal) (string, error) {
	if m.createErr != nil {
		return "", m.createErr
	}
	deal.ID = "deal-1"
	m.created = append(m.created, deal)
	return deal.ID, nil
}

type mockParser struct {
	result *models.MenuExtraction
	err    error
	calls  int
}

func (m *mockParser) ParseMenu(context.Context, []byte, string) (*models.MenuExtraction, error) {
	m.calls++
	return m.result, m.err
}

type mockImages struct {
	err error
}

func (m *mockImages) Fetch(context.Context, string) (*imagefetch.Image, error) {
	if m.err != nil {
		return nil, m.err
	}
	return &imagefetch.Image{Data: []byte("jpeg"), MIMEType: "image/jpeg"}, nil
}

type mockNotifier struct {
	mu   sync.Mutex
	sent []models.Deal
	err  error
}

func (m *mockNotifier) Send(_ context.Context, deal models.Deal) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, deal)
	return "msg-1", m.err
}

func (m *mockNotifier) sentCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

type panicSource struct{ mockSource }

func (panicSource) List(context.Context) ([]models.VenueDeals, error) {
	panic("boom")
}

// --- Helpers ---

func f64Ptr(f float64) *float64 { return &f }
func strPtr(s string) *string   { return &s }

// monday5pm is a Monday at 17:00 UTC.
var monday5pm = time.Date(2024, 1, 1, 17, 0, 0, 0, time.UTC)

func happyHourDeal(venueID string) models.Deal {
	return models.Deal{
		ID:      "d-" + venueID,
		VenueID: venueID,
		Active:  true,
		ExtractedData: models.ExtractedData{
			Deals: []models.DealItem{{Name: "Wings", Price: "$5"}, {Name: "IPA", Price: "$4"}},
			TimeFrames: []models.TimeWindow{
				{StartTime: "16:00", EndTime: "18:00", Days: []string{"monday"}},
			},
			SpecialConditions: models.TextConditions("Bar only"),
		},
	}
}

func testVenues() []models.VenueDeals {
	return []models.VenueDeals{
		{
			Venue: models.Venue{ID: "v1", Name: "Dockside Tap", Latitude: f64Ptr(47.6), Longitude: f64Ptr(-122.3),
				Address: models.AddressString("1 Pier Way, Seattle")},
			Deals: []models.Deal{happyHourDeal("v1")},
		},
		{
			Venue: models.Venue{ID: "v2", Name: "Hilltop Grill", Latitude: f64Ptr(47.7), Longitude: f64Ptr(-122.3),
				Address: models.AddressStructured{Street: "9 Summit Ave", City: "Seattle"}},
		},
		{
			Venue: models.Venue{ID: "v3", Name: "Portland Pub", Latitude: f64Ptr(45.5), Longitude: f64Ptr(-122.7)},
		},
	}
}

func newTestService(src *mockSource, store *mockStore, parser *mockParser, notifier *mockNotifier, images *mockImages) *Service {
	d := Deps{
		Venues:  src,
		Store:   store,
		Images:  images,
		Locator: proximity.NewEngine(proximity.NewMemoryCache()),
	}
	if parser != nil {
		d.Parser = parser
	}
	if notifier != nil {
		d.Notifier = notifier
	}
	s := New(d)
	s.clock = func() time.Time { return monday5pm }
	return s
}

// --- Tests ---

func TestGetVenueWithDeals(t *testing.T) {
	s := newTestService(&mockSource{venues: testVenues()}, newMockStore(), nil, nil, &mockImages{})

	resp := s.GetVenueWithDeals(context.Background(), "v1")
	if !resp.Success || resp.StatusCode() != http.StatusOK {
		t.Fatalf("unexpected failure: %+v", resp.Result)
	}
	if resp.Venue.VenueName != "Dockside Tap" {
		t.Errorf("VenueName = %q", resp.Venue.VenueName)
	}
	if len(resp.Venue.Deals) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(resp.Venue.Deals))
	}
	for _, row := range resp.Venue.Deals {
		if !row.IsActiveNow {
			t.Errorf("row %q should be active on Monday at 5pm", row.Name)
		}
		if row.SpecialConditions == nil || *row.SpecialConditions != "Bar only" {
			t.Errorf("SpecialConditions = %v", row.SpecialConditions)
		}
	}
}

func TestGetVenueWithDeals_Failures(t *testing.T) {
	tests := []struct {
		name   string
		src    *mockSource
		id     string
		status int
		errMsg string
	}{
		{"empty id", &mockSource{}, "  ", http.StatusBadRequest, "venueId is required"},
		{"missing", &mockSource{venues: testVenues()}, "nope", http.StatusNotFound, "Venue not found"},
		{"upstream", &mockSource{getErr: errors.New("firestore down")}, "v1", http.StatusBadGateway, "firestore down"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestService(tt.src, newMockStore(), nil, nil, &mockImages{})
			resp := s.GetVenueWithDeals(context.Background(), tt.id)
			if resp.Success {
				t.Fatal("expected failure")
			}
			if resp.StatusCode() != tt.status || resp.Error != tt.errMsg {
				t.Errorf("got %d %q, want %d %q", resp.StatusCode(), resp.Error, tt.status, tt.errMsg)
			}
			if resp.Venue != nil {
				t.Error("Venue should be nil on failure")
			}
		})
	}
}

func TestGetAllVenuesWithDeals(t *testing.T) {
	s := newTestService(&mockSource{venues: testVenues()}, newMockStore(), nil, nil, &mockImages{})

	resp := s.GetAllVenuesWithDeals(context.Background())
	if !resp.Success {
		t.Fatalf("unexpected failure: %s", resp.Error)
	}
	var ids []string
	for _, v := range resp.Venues {
		ids = append(ids, v.VenueID)
	}
	if diff := cmp.Diff([]string{"v1", "v2", "v3"}, ids); diff != "" {
		t.Errorf("venue ids mismatch (-want +got):\n%s", diff)
	}
	if resp.Venues[1].Deals == nil {
		t.Error("venue without deals should have an empty, non-nil deals list")
	}
}

func TestGetAllVenuesWithDeals_Error(t *testing.T) {
	s := newTestService(&mockSource{listErr: errors.New("unavailable")}, newMockStore(), nil, nil, &mockImages{})

	resp := s.GetAllVenuesWithDeals(context.Background())
	if resp.Success || resp.StatusCode() != http.StatusBadGateway {
		t.Errorf("expected upstream failure, got %+v", resp.Result)
	}
	if resp.Venues == nil {
		t.Error("Venues should be empty, not nil")
	}
}

func TestGuard_RecoversPanic(t *testing.T) {
	s := newTestService(&mockSource{}, newMockStore(), nil, nil, &mockImages{})
	s.venues = &panicSource{}

	resp := s.GetAllVenuesWithDeals(context.Background())
	if resp.Success || resp.StatusCode() != http.StatusInternalServerError {
		t.Errorf("expected internal error, got %+v", resp.Result)
	}
}

func TestNearbyVenues(t *testing.T) {
	s := newTestService(&mockSource{venues: testVenues()}, newMockStore(), nil, nil, &mockImages{})

	resp := s.NearbyVenues(context.Background(), NearbyRequest{Latitude: 47.6, Longitude: -122.3, RadiusMiles: 20})
	if !resp.Success {
		t.Fatalf("unexpected failure: %s", resp.Error)
	}
	if len(resp.Results) != 2 {
		t.Fatalf("expected 2 results within 20 miles, got %d", len(resp.Results))
	}
	if resp.Results[0].Venue.VenueID != "v1" || resp.Results[1].Venue.VenueID != "v2" {
		t.Errorf("unexpected order: %s, %s", resp.Results[0].Venue.VenueID, resp.Results[1].Venue.VenueID)
	}

	desc := s.NearbyVenues(context.Background(), NearbyRequest{Latitude: 47.6, Longitude: -122.3, RadiusMiles: 20, Order: "desc"})
	if desc.Results[0].Venue.VenueID != "v2" {
		t.Errorf("desc order should start with v2, got %s", desc.Results[0].Venue.VenueID)
	}
}

func TestNearbyVenues_DefaultRadius(t *testing.T) {
	s := newTestService(&mockSource{venues: testVenues()}, newMockStore(), nil, nil, &mockImages{})

	// v2 is about 6.9 miles away; v3 is well past the 10 mile default.
	resp := s.NearbyVenues(context.Background(), NearbyRequest{Latitude: 47.6, Longitude: -122.3})
	if !resp.Success {
		t.Fatalf("unexpected failure: %s", resp.Error)
	}
	if len(resp.Results) != 2 {
		t.Errorf("expected v1 and v2 within the default radius, got %d results", len(resp.Results))
	}
	for _, r := range resp.Results {
		if r.Venue.VenueID == "v3" {
			t.Error("v3 is outside the default radius")
		}
	}
}

func TestNearbyVenues_Invalid(t *testing.T) {
	s := newTestService(&mockSource{venues: testVenues()}, newMockStore(), nil, nil, &mockImages{})

	tests := []NearbyRequest{
		{Latitude: 91},
		{Longitude: -181},
		{RadiusMiles: -1},
		{Order: "sideways"},
	}
	for _, req := range tests {
		resp := s.NearbyVenues(context.Background(), req)
		if resp.Success || resp.StatusCode() != http.StatusBadRequest {
			t.Errorf("%+v: expected 400, got %+v", req, resp.Result)
		}
		if resp.Error == "" {
			t.Errorf("%+v: expected an error message", req)
		}
	}
}

func TestSearchVenues(t *testing.T) {
	s := newTestService(&mockSource{venues: testVenues()}, newMockStore(), nil, nil, &mockImages{})

	tests := []struct {
		query string
		want  []string
	}{
		{"dockside", []string{"v1"}},
		{"SEATTLE", []string{"v1", "v2"}},
		{"summit", []string{"v2"}},
		{"nothing here", nil},
	}
	for _, tt := range tests {
		resp := s.SearchVenues(context.Background(), tt.query)
		if !resp.Success {
			t.Fatalf("%q: unexpected failure: %s", tt.query, resp.Error)
		}
		var got []string
		for _, v := range resp.Venues {
			got = append(got, v.VenueID)
		}
		if diff := cmp.Diff(tt.want, got); diff != "" {
			t.Errorf("%q mismatch (-want +got):\n%s", tt.query, diff)
		}
	}

	if resp := s.SearchVenues(context.Background(), ""); resp.StatusCode() != http.StatusBadRequest {
		t.Errorf("empty query should be rejected, got %d", resp.StatusCode())
	}
}

func TestWatchVenues(t *testing.T) {
	venues := testVenues()
	src := &mockSource{events: [][]models.VenueDeals{venues[:1], venues}}
	s := newTestService(src, newMockStore(), nil, nil, &mockImages{})

	var counts []int
	err := s.WatchVenues(context.Background(), func(resp VenuesResponse) error {
		if !resp.Success {
			t.Errorf("unexpected failure: %s", resp.Error)
		}
		counts = append(counts, len(resp.Venues))
		return nil
	})
	if err != nil {
		t.Fatalf("WatchVenues returned error: %v", err)
	}
	if diff := cmp.Diff([]int{1, 3}, counts); diff != "" {
		t.Errorf("event sizes mismatch (-want +got):\n%s", diff)
	}

	stop := errors.New("client gone")
	err = s.WatchVenues(context.Background(), func(VenuesResponse) error { return stop })
	if !errors.Is(err, stop) {
		t.Errorf("expected callback error to propagate, got %v", err)
	}
}

func TestGetDeal_RecomputesDerived(t *testing.T) {
	store := newMockStore()
	d := happyHourDeal("v1")
	d.Derived = models.Derived{IsActiveNow: false}
	store.deals["d-v1"] = &d
	s := newTestService(&mockSource{}, store, nil, nil, &mockImages{})

	resp := s.GetDeal(context.Background(), "d-v1")
	if !resp.Success {
		t.Fatalf("unexpected failure: %s", resp.Error)
	}
	want := models.Derived{IsActiveNow: true, ActiveDayOfWeek: []string{"monday"}}
	if diff := cmp.Diff(want, resp.Deal.Derived); diff != "" {
		t.Errorf("Derived mismatch (-want +got):\n%s", diff)
	}

	if resp := s.GetDeal(context.Background(), "missing"); resp.StatusCode() != http.StatusNotFound {
		t.Errorf("missing deal: got %d", resp.StatusCode())
	}
}

func menuResult() *models.MenuExtraction {
	return &models.MenuExtraction{
		RestaurantName: strPtr("Dockside Tap"),
		Deals:          []models.AIDealItem{{Name: "Wings", Price: "$5"}},
		TimeFrame:      []models.AITimeWindow{{StartTime: "4pm", EndTime: "6pm", Days: []string{"Monday"}}},
	}
}

func TestExtractDealFromImage(t *testing.T) {
	store := newMockStore()
	store.venues["v1"] = &models.Venue{ID: "v1", Name: "Dockside Tap", Latitude: f64Ptr(47.6), Longitude: f64Ptr(-122.3)}
	parser := &mockParser{result: menuResult()}
	notifier := &mockNotifier{}
	s := newTestService(&mockSource{written: store}, store, parser, notifier, &mockImages{})

	resp := s.ExtractDealFromImage(context.Background(), ExtractRequest{
		UserID:   "user-1",
		ImageURL: "https://example.com/menu.jpg",
		VenueID:  "v1",
		Location: &models.Coordinates{Latitude: 1, Longitude: 2},
	})
	if !resp.Success {
		t.Fatalf("unexpected failure: %s", resp.Error)
	}
	if resp.Deal.ID != "deal-1" || resp.Deal.RestaurantName != "Dockside Tap" {
		t.Errorf("deal = %+v", resp.Deal)
	}
	if resp.Deal.Location != (models.Coordinates{Latitude: 47.6, Longitude: -122.3}) {
		t.Errorf("venue coordinates should win, got %+v", resp.Deal.Location)
	}
	if got := resp.Deal.ExtractedData.TimeFrames[0]; got.StartTime != "16:00" || got.EndTime != "18:00" {
		t.Errorf("time frame not normalized: %+v", got)
	}
	if !resp.Deal.Derived.IsActiveNow {
		t.Error("deal should be active at Monday 5pm")
	}
	if resp.AIResult != parser.result {
		t.Error("AIResult should echo the raw extraction")
	}
	if resp.Venue == nil || len(resp.Venue.Deals) != 1 || !resp.Venue.Deals[0].IsActiveNow {
		t.Errorf("refreshed venue = %+v", resp.Venue)
	}
	if len(store.created) != 1 || store.created[0].UserID != "user-1" {
		t.Errorf("stored deals = %+v", store.created)
	}

	s.Wait()
	if notifier.sentCount() != 1 || notifier.sent[0].ID != "deal-1" {
		t.Errorf("notification not sent: %+v", notifier.sent)
	}
}

// blockingNotifier holds Send until release is closed.
type blockingNotifier struct {
	release chan struct{}
	ctxErr  error
}

func (b *blockingNotifier) Send(ctx context.Context, _ models.Deal) (string, error) {
	<-b.release
	b.ctxErr = ctx.Err()
	return "", nil
}

func TestExtractDealFromImage_NotificationDoesNotBlock(t *testing.T) {
	store := newMockStore()
	notifier := &blockingNotifier{release: make(chan struct{})}
	s := New(Deps{
		Venues:   &mockSource{written: store},
		Store:    store,
		Parser:   &mockParser{result: menuResult()},
		Images:   &mockImages{},
		Notifier: notifier,
		Locator:  proximity.NewEngine(nil),
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan ExtractResponse, 1)
	go func() {
		done <- s.ExtractDealFromImage(ctx, ExtractRequest{UserID: "u", ImageURL: "https://example.com/menu.jpg"})
	}()

	select {
	case resp := <-done:
		if !resp.Success {
			t.Fatalf("unexpected failure: %s", resp.Error)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("upload waited on the moderation notification")
	}

	// The request finishing must not cancel the pending notification.
	cancel()
	close(notifier.release)
	s.Wait()
	if notifier.ctxErr != nil {
		t.Errorf("notification context cancelled with the request: %v", notifier.ctxErr)
	}
}

func TestExtractDealFromImage_NoVenue(t *testing.T) {
	store := newMockStore()
	notifier := &mockNotifier{err: errors.New("webhook down")}
	s := newTestService(&mockSource{}, store, &mockParser{result: menuResult()}, notifier, &mockImages{})

	resp := s.ExtractDealFromImage(context.Background(), ExtractRequest{
		UserID:         "user-1",
		ImageURL:       "https://example.com/menu.jpg",
		RestaurantName: "Override Bar",
		Location:       &models.Coordinates{Latitude: 1, Longitude: 2},
	})
	if !resp.Success {
		t.Fatalf("notification failure must not fail the upload: %s", resp.Error)
	}
	if resp.Venue != nil {
		t.Error("Venue should be nil without a venueId")
	}
	if resp.Deal.RestaurantName != "Override Bar" {
		t.Errorf("RestaurantName = %q", resp.Deal.RestaurantName)
	}
	if resp.Deal.Location != (models.Coordinates{Latitude: 1, Longitude: 2}) {
		t.Errorf("uploader coordinates should be used, got %+v", resp.Deal.Location)
	}
	s.Wait()
	if notifier.sentCount() != 1 {
		t.Errorf("expected one notification attempt, got %d", notifier.sentCount())
	}
}

func TestExtractDealFromImage_Failures(t *testing.T) {
	valid := ExtractRequest{UserID: "user-1", ImageURL: "https://example.com/menu.jpg"}

	tests := []struct {
		name     string
		req      ExtractRequest
		parser   *mockParser
		images   *mockImages
		store    *mockStore
		status   int
		parseCnt int
	}{
		{"missing user", ExtractRequest{ImageURL: valid.ImageURL}, &mockParser{result: menuResult()}, &mockImages{}, newMockStore(), http.StatusBadRequest, 0},
		{"bad url", ExtractRequest{UserID: "u", ImageURL: "not a url"}, &mockParser{result: menuResult()}, &mockImages{}, newMockStore(), http.StatusBadRequest, 0},
		{"no parser", valid, nil, &mockImages{}, newMockStore(), http.StatusBadGateway, 0},
		{"download fails", valid, &mockParser{result: menuResult()}, &mockImages{err: errors.New("404")}, newMockStore(), http.StatusBadGateway, 0},
		{"ai fails", valid, &mockParser{err: errors.New("quota")}, &mockImages{}, newMockStore(), http.StatusBadGateway, 1},
		{"store fails", valid, &mockParser{result: menuResult()}, &mockImages{}, &mockStore{createErr: errors.New("write failed")}, http.StatusBadGateway, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			notifier := &mockNotifier{}
			s := newTestService(&mockSource{}, tt.store, tt.parser, notifier, tt.images)
			resp := s.ExtractDealFromImage(context.Background(), tt.req)
			s.Wait()
			if resp.Success {
				t.Fatal("expected failure")
			}
			if len(tt.store.created) != 0 {
				t.Errorf("failed upload persisted %d deals", len(tt.store.created))
			}
			if n := notifier.sentCount(); n != 0 {
				t.Errorf("failed upload sent %d notifications", n)
			}
			if resp.StatusCode() != tt.status {
				t.Errorf("status = %d, want %d (%s)", resp.StatusCode(), tt.status, resp.Error)
			}
			if resp.Deal != nil {
				t.Error("Deal should be nil on failure")
			}
			if tt.parser != nil && tt.parser.calls != tt.parseCnt {
				t.Errorf("parser calls = %d, want %d", tt.parser.calls, tt.parseCnt)
			}
		})
	}
}

func TestNew_Defaults(t *testing.T) {
	s := New(Deps{Evaluator: schedule.Evaluator{}})
	if s.defaultRadius != 10 || s.location != time.UTC || s.validator == nil {
		t.Errorf("unexpected defaults: radius=%v location=%v", s.defaultRadius, s.location)
	}
}
