package rest

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/prismsocial/prism-server/internal/domain"
	"github.com/prismsocial/prism-server/internal/present/rest/middleware"
	"github.com/prismsocial/prism-server/internal/usecase"
)

// --- in-memory ports ---

type stubContentStore struct {
	items map[uint]domain.ContentItem
}

func (s *stubContentStore) GetMirrorState(ctx context.Context, kind domain.Kind) (map[string]domain.MirrorRef, error) {
	return map[string]domain.MirrorRef{}, nil
}

func (s *stubContentStore) Insert(ctx context.Context, lib domain.MediaLibrary, item domain.ProviderItem, expiresAt *time.Time) (uint, error) {
	return 0, nil
}

func (s *stubContentStore) Reactivate(ctx context.Context, id uint) error { return nil }

func (s *stubContentStore) UpdateVolatile(ctx context.Context, id uint, item domain.ProviderItem) error {
	return nil
}

func (s *stubContentStore) DeactivateMissing(ctx context.Context, kind domain.Kind, present []string) (int64, error) {
	return 0, nil
}

func (s *stubContentStore) ExpireEphemeral(ctx context.Context, kinds []domain.Kind, now time.Time) (int64, error) {
	return 0, nil
}

func (s *stubContentStore) Get(ctx context.Context, id uint) (domain.ContentItem, error) {
	item, ok := s.items[id]
	if !ok {
		return domain.ContentItem{}, domain.NotFoundError{Resource: "content"}
	}
	return item, nil
}

func (s *stubContentStore) IncrementViewCounts(ctx context.Context, id uint, completed bool) error {
	return nil
}

func (s *stubContentStore) IncrementLikeCount(ctx context.Context, id uint) error { return nil }

func (s *stubContentStore) ListRecent(ctx context.Context, kind domain.Kind, category string, exclude []uint, limit, offset int) ([]domain.ContentItem, error) {
	return s.list(), nil
}

func (s *stubContentStore) ListTrending(ctx context.Context, kind domain.Kind, limit, offset int) ([]domain.ContentItem, error) {
	return s.list(), nil
}

func (s *stubContentStore) list() []domain.ContentItem {
	items := make([]domain.ContentItem, 0, len(s.items))
	for _, item := range s.items {
		items = append(items, item)
	}
	return items
}

type stubHistoryStore struct {
	records map[string][]domain.ViewRecord
}

func (s *stubHistoryStore) Window(ctx context.Context, userID string) ([]domain.ViewRecord, error) {
	return s.records[userID], nil
}

func (s *stubHistoryStore) Record(ctx context.Context, userID string, rec domain.ViewRecord) (bool, error) {
	for _, existing := range s.records[userID] {
		if existing.ContentID == rec.ContentID {
			return true, nil
		}
	}
	s.records[userID] = append(s.records[userID], rec)
	return false, nil
}

func (s *stubHistoryStore) RecordBatch(ctx context.Context, userID string, recs []domain.ViewRecord) (domain.BatchViewResult, []uint, error) {
	var result domain.BatchViewResult
	var recorded []uint
	for _, rec := range recs {
		already, _ := s.Record(ctx, userID, rec)
		if already {
			result.Duplicate++
		} else {
			result.Recorded++
			recorded = append(recorded, rec.ContentID)
		}
	}
	return result, recorded, nil
}

func (s *stubHistoryStore) Reset(ctx context.Context, userID string) error {
	delete(s.records, userID)
	return nil
}

func (s *stubHistoryStore) PruneOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	return 0, nil
}

type stubLedgerStore struct {
	ledgers map[string]domain.InterestLedger
}

func (s *stubLedgerStore) Apply(ctx context.Context, userID string, tags []string, base float64, now time.Time) (domain.InterestLedger, error) {
	ledger, ok := s.ledgers[userID]
	if !ok {
		ledger = domain.InterestLedger{UserID: userID, Entries: map[string]domain.LedgerEntry{}}
	}
	for _, tag := range tags {
		entry := ledger.Entries[tag]
		entry.Tag = tag
		ledger.Entries[tag] = entry.Bump(base, now)
	}
	ledger.TotalInteractions++
	s.ledgers[userID] = ledger
	return ledger, nil
}

func (s *stubLedgerStore) Get(ctx context.Context, userID string) (domain.InterestLedger, error) {
	ledger, ok := s.ledgers[userID]
	if !ok {
		return domain.InterestLedger{}, domain.NotFoundError{Resource: "ledger"}
	}
	return ledger, nil
}

func (s *stubLedgerStore) Decay(ctx context.Context, factor float64, cutoff time.Time, now time.Time) (int64, error) {
	return 0, nil
}

type stubFilterCache struct{}

func (stubFilterCache) Get(ctx context.Context, userID string) ([]uint, bool) { return nil, false }
func (stubFilterCache) Set(ctx context.Context, userID string, ids []uint)    {}
func (stubFilterCache) Invalidate(ctx context.Context, userID string)         {}

type stubTrendingCache struct{}

func (stubTrendingCache) Get(kind domain.Kind) ([]domain.ContentItem, bool) { return nil, false }
func (stubTrendingCache) Set(kind domain.Kind, items []domain.ContentItem)  {}

type stubGateway struct {
	items []domain.ProviderItem
}

func (g *stubGateway) ListLibraryItems(ctx context.Context, lib domain.MediaLibrary) ([]domain.ProviderItem, error) {
	return g.items, nil
}

type stubGuard struct {
	digests map[string]uint64
}

func (g *stubGuard) TryLock(ctx context.Context, library string, ttl time.Duration) (bool, error) {
	return true, nil
}

func (g *stubGuard) Unlock(ctx context.Context, library string) error { return nil }

func (g *stubGuard) GetDigest(ctx context.Context, library string) (uint64, error) {
	return g.digests[library], nil
}

func (g *stubGuard) SetDigest(ctx context.Context, library string, digest uint64) error {
	g.digests[library] = digest
	return nil
}

type stubPublisher struct{}

func (stubPublisher) Publish(ctx context.Context, channel string, event domain.Event) error {
	return nil
}

// stubStreamer forwards events to the session only once a listen
// request has registered, so tests sequence deterministically.
type stubStreamer struct {
	events chan domain.Event
}

func newStubStreamer() *stubStreamer {
	return &stubStreamer{events: make(chan domain.Event)}
}

func (s *stubStreamer) Realtime(ctx context.Context, request <-chan []string, response chan<- domain.Event) {
	var events chan domain.Event
	for {
		select {
		case <-ctx.Done():
			return
		case <-request:
			events = s.events
		case event := <-events:
			select {
			case response <- event:
			case <-ctx.Done():
				return
			}
		}
	}
}

func testServer(t *testing.T) *echo.Echo {
	t.Helper()
	e, _ := testServerStream(t)
	return e
}

func testServerStream(t *testing.T) (*echo.Echo, *stubStreamer) {
	t.Helper()

	content := &stubContentStore{items: map[uint]domain.ContentItem{
		1: {ID: 1, Kind: domain.KindReel, Category: "travel", Tags: []string{"beach"}},
		2: {ID: 2, Kind: domain.KindReel, Category: "food"},
	}}
	history := &stubHistoryStore{records: map[string][]domain.ViewRecord{}}
	ledgers := &stubLedgerStore{ledgers: map[string]domain.InterestLedger{}}

	libraries := []domain.MediaLibrary{{ID: "reels", Kind: domain.KindReel}}

	viewUC := usecase.NewViewUsecase(history, content, stubFilterCache{})
	interestUC := usecase.NewInterestUsecase(ledgers, content)
	feedUC := usecase.NewFeedUsecase(content, ledgers, viewUC, stubTrendingCache{}, usecase.FeedOptions{
		ColdStartThreshold: 5,
		DecayFactor:        0.9,
		DecayPeriod:        30 * 24 * time.Hour,
	})
	reconcileUC := usecase.NewReconcileUsecase(
		content,
		&stubGateway{},
		&stubGuard{digests: map[string]uint64{}},
		stubPublisher{},
		libraries,
		time.Minute,
	)

	streamer := newStubStreamer()
	handler := NewHandler(reconcileUC, viewUC, interestUC, feedUC, streamer)

	e := echo.New()
	identity := middleware.NewIdentityMiddleware()
	e.Use(identity.IdentifyRequester)
	handler.RegisterRoutes(e)
	return e, streamer
}

// --- tests ---

func TestFeedRequiresUser(t *testing.T) {
	e := testServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/feed?kind=reel", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestFeedIdentifiesUserByHeader(t *testing.T) {
	e := testServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/feed?kind=reel", nil)
	req.Header.Set(domain.RequesterIdHeader, "u1")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}

	var result usecase.FeedResult
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("invalid response body: %v", err)
	}
	if !result.IsNewUser {
		t.Fatalf("ledger-less user should get the cold-start feed")
	}
	if len(result.Items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(result.Items))
	}
}

func TestFeedRejectsUnknownKind(t *testing.T) {
	e := testServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/feed?user=u1&kind=podcast", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestRecordViewEndpoint(t *testing.T) {
	e := testServer(t)

	body := `{"userId":"u1","contentId":1,"viewDurationSeconds":50,"totalDurationSeconds":60}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/views", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}

	var result domain.ViewResult
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("invalid response body: %v", err)
	}
	if !result.Success || !result.Completed {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestRecordViewEndpointValidation(t *testing.T) {
	e := testServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/views", strings.NewReader(`{"userId":"u1"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestRecordViewBatchEndpoint(t *testing.T) {
	e := testServer(t)

	body := `{"userId":"u1","views":[{"contentId":1},{"contentId":2},{"contentId":1}]}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/views/batch", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}

	var result domain.BatchViewResult
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("invalid response body: %v", err)
	}
	if result.Recorded != 2 || result.Duplicate != 1 {
		t.Fatalf("unexpected batch result: %+v", result)
	}
}

func TestResetViewsEndpoint(t *testing.T) {
	e := testServer(t)

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/views/u1", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
}

func TestTrackInteractionEndpoint(t *testing.T) {
	e := testServer(t)

	body := `{"userId":"u1","contentId":1,"type":"like"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/interactions", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
}

func TestTrackInteractionUnknownContent(t *testing.T) {
	e := testServer(t)

	body := `{"userId":"u1","contentId":99,"type":"like"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/interactions", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404: %s", rec.Code, rec.Body.String())
	}
}

func TestSyncUnknownLibrary(t *testing.T) {
	e := testServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/sync/nope", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404: %s", rec.Code, rec.Body.String())
	}
}

func TestSyncStatusEndpoint(t *testing.T) {
	e := testServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/sync/status", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
}

func TestRealtimeForwardsEvents(t *testing.T) {
	e, streamer := testServerStream(t)
	srv := httptest.NewServer(e)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/realtime"
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer ws.Close()

	if err := ws.WriteJSON(map[string]any{"type": "listen", "libraries": []string{"reels"}}); err != nil {
		t.Fatalf("listen request failed: %v", err)
	}

	// The streamer only accepts events after the listen request landed,
	// so this send doubles as the synchronization point.
	streamer.events <- domain.Event{Library: "reels", Kind: domain.KindReel, NewCount: 3}

	ws.SetReadDeadline(time.Now().Add(5 * time.Second))
	var event domain.Event
	if err := ws.ReadJSON(&event); err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if event.Library != "reels" || event.NewCount != 3 {
		t.Fatalf("unexpected event: %+v", event)
	}
}

func TestRealtimeClosesCleanly(t *testing.T) {
	e, _ := testServerStream(t)
	srv := httptest.NewServer(e)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/realtime"
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}

	if err := ws.WriteJSON(map[string]any{"type": "listen", "libraries": []string{"reels"}}); err != nil {
		t.Fatalf("listen request failed: %v", err)
	}
	if err := ws.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	ws.Close()
}
