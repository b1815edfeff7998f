package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prismsocial/prism-server/internal/domain"
)

// --- mocks ---

type fakeContentStore struct {
	nextID  uint
	byExt   map[string]*fakeRow
	expired int64

	// one-shot insert failures and simulated unique-index conflicts,
	// keyed by external ID
	insertErrs      map[string]error
	insertConflicts map[string]bool
}

type fakeRow struct {
	id     uint
	active bool
	title  string
}

func newFakeContentStore() *fakeContentStore {
	return &fakeContentStore{
		byExt:           map[string]*fakeRow{},
		insertErrs:      map[string]error{},
		insertConflicts: map[string]bool{},
	}
}

func (s *fakeContentStore) GetMirrorState(ctx context.Context, kind domain.Kind) (map[string]domain.MirrorRef, error) {
	state := map[string]domain.MirrorRef{}
	for ext, row := range s.byExt {
		state[ext] = domain.MirrorRef{ID: row.id, Active: row.active}
	}
	return state, nil
}

func (s *fakeContentStore) Insert(ctx context.Context, lib domain.MediaLibrary, item domain.ProviderItem, expiresAt *time.Time) (uint, error) {
	if err, ok := s.insertErrs[item.ExternalID]; ok {
		delete(s.insertErrs, item.ExternalID)
		return 0, err
	}
	if s.insertConflicts[item.ExternalID] {
		return 0, nil
	}
	if _, exists := s.byExt[item.ExternalID]; exists {
		return 0, nil
	}
	s.nextID++
	s.byExt[item.ExternalID] = &fakeRow{id: s.nextID, active: true, title: item.Title}
	return s.nextID, nil
}

func (s *fakeContentStore) Reactivate(ctx context.Context, id uint) error {
	for _, row := range s.byExt {
		if row.id == id {
			row.active = true
		}
	}
	return nil
}

func (s *fakeContentStore) UpdateVolatile(ctx context.Context, id uint, item domain.ProviderItem) error {
	for _, row := range s.byExt {
		if row.id == id {
			row.title = item.Title
		}
	}
	return nil
}

func (s *fakeContentStore) DeactivateMissing(ctx context.Context, kind domain.Kind, present []string) (int64, error) {
	listed := map[string]bool{}
	for _, ext := range present {
		listed[ext] = true
	}
	var n int64
	for ext, row := range s.byExt {
		if row.active && !listed[ext] {
			row.active = false
			n++
		}
	}
	return n, nil
}

func (s *fakeContentStore) ExpireEphemeral(ctx context.Context, kinds []domain.Kind, now time.Time) (int64, error) {
	return s.expired, nil
}

func (s *fakeContentStore) Get(ctx context.Context, id uint) (domain.ContentItem, error) {
	return domain.ContentItem{}, domain.NotFoundError{Resource: "content"}
}

func (s *fakeContentStore) IncrementViewCounts(ctx context.Context, id uint, completed bool) error {
	return nil
}

func (s *fakeContentStore) IncrementLikeCount(ctx context.Context, id uint) error { return nil }

func (s *fakeContentStore) ListRecent(ctx context.Context, kind domain.Kind, category string, exclude []uint, limit, offset int) ([]domain.ContentItem, error) {
	return nil, nil
}

func (s *fakeContentStore) ListTrending(ctx context.Context, kind domain.Kind, limit, offset int) ([]domain.ContentItem, error) {
	return nil, nil
}

type mockGateway struct {
	listings map[string][]domain.ProviderItem
	err      error
}

func (g *mockGateway) ListLibraryItems(ctx context.Context, lib domain.MediaLibrary) ([]domain.ProviderItem, error) {
	if g.err != nil {
		return nil, g.err
	}
	return g.listings[lib.ID], nil
}

type mockGuard struct {
	locked  bool
	digests map[string]uint64
}

func newMockGuard() *mockGuard {
	return &mockGuard{digests: map[string]uint64{}}
}

func (g *mockGuard) TryLock(ctx context.Context, library string, ttl time.Duration) (bool, error) {
	if g.locked {
		return false, nil
	}
	g.locked = true
	return true, nil
}

func (g *mockGuard) Unlock(ctx context.Context, library string) error {
	g.locked = false
	return nil
}

func (g *mockGuard) GetDigest(ctx context.Context, library string) (uint64, error) {
	return g.digests[library], nil
}

func (g *mockGuard) SetDigest(ctx context.Context, library string, digest uint64) error {
	g.digests[library] = digest
	return nil
}

type mockPublisher struct {
	events []domain.Event
}

func (p *mockPublisher) Publish(ctx context.Context, channel string, event domain.Event) error {
	p.events = append(p.events, event)
	return nil
}

var testLibrary = domain.MediaLibrary{ID: "photos", Kind: domain.KindPhoto, PageSize: 100}

func newTestReconciler(store *fakeContentStore, gw *mockGateway, guard *mockGuard, pub *mockPublisher) *ReconcileUsecase {
	return NewReconcileUsecase(store, gw, guard, pub, []domain.MediaLibrary{testLibrary}, 5*time.Minute)
}

func item(ext, title string) domain.ProviderItem {
	return domain.ProviderItem{ExternalID: ext, Title: title, CreatedAt: time.Now()}
}

// --- tests ---

func TestReconcileIngestsNewItems(t *testing.T) {
	store := newFakeContentStore()
	gw := &mockGateway{listings: map[string][]domain.ProviderItem{
		"photos": {item("a", "A"), item("b", "B")},
	}}
	pub := &mockPublisher{}
	uc := newTestReconciler(store, gw, newMockGuard(), pub)

	result, err := uc.Reconcile(context.Background(), "photos")
	if err != nil {
		t.Fatalf("reconcile failed: %v", err)
	}
	if result.NewCount != 2 {
		t.Fatalf("expected 2 new items, got %d", result.NewCount)
	}
	if result.DeletedCount != 0 {
		t.Fatalf("expected no deletions, got %d", result.DeletedCount)
	}
	if len(pub.events) != 1 {
		t.Fatalf("expected one event, got %d", len(pub.events))
	}
	if pub.events[0].NewCount != 2 {
		t.Fatalf("event newCount = %d, want 2", pub.events[0].NewCount)
	}
}

func TestReconcileIsIdempotent(t *testing.T) {
	store := newFakeContentStore()
	gw := &mockGateway{listings: map[string][]domain.ProviderItem{
		"photos": {item("a", "A"), item("b", "B")},
	}}
	pub := &mockPublisher{}
	uc := newTestReconciler(store, gw, newMockGuard(), pub)

	if _, err := uc.Reconcile(context.Background(), "photos"); err != nil {
		t.Fatalf("first reconcile failed: %v", err)
	}
	second, err := uc.Reconcile(context.Background(), "photos")
	if err != nil {
		t.Fatalf("second reconcile failed: %v", err)
	}

	if second.NewCount != 0 {
		t.Fatalf("second run ingested %d items, want 0", second.NewCount)
	}
	if !second.Unchanged {
		t.Fatalf("expected unchanged listing to short-circuit")
	}
	if len(store.byExt) != 2 {
		t.Fatalf("expected 2 stored items, got %d", len(store.byExt))
	}
	if len(pub.events) != 1 {
		t.Fatalf("expected no second event, got %d total", len(pub.events))
	}
}

func TestReconcileDeactivatesMissing(t *testing.T) {
	store := newFakeContentStore()
	gw := &mockGateway{listings: map[string][]domain.ProviderItem{
		"photos": {item("a", "A"), item("b", "B")},
	}}
	uc := newTestReconciler(store, gw, newMockGuard(), &mockPublisher{})

	if _, err := uc.Reconcile(context.Background(), "photos"); err != nil {
		t.Fatalf("first reconcile failed: %v", err)
	}

	gw.listings["photos"] = []domain.ProviderItem{item("a", "A")}
	result, err := uc.Reconcile(context.Background(), "photos")
	if err != nil {
		t.Fatalf("second reconcile failed: %v", err)
	}

	if result.DeletedCount != 1 {
		t.Fatalf("expected 1 deletion, got %d", result.DeletedCount)
	}
	if store.byExt["b"].active {
		t.Fatalf("expected b to be deactivated")
	}
	if !store.byExt["a"].active {
		t.Fatalf("expected a to stay active")
	}
}

func TestReconcileReactivatesReturnedItems(t *testing.T) {
	store := newFakeContentStore()
	gw := &mockGateway{listings: map[string][]domain.ProviderItem{
		"photos": {item("a", "A")},
	}}
	uc := newTestReconciler(store, gw, newMockGuard(), &mockPublisher{})

	if _, err := uc.Reconcile(context.Background(), "photos"); err != nil {
		t.Fatalf("reconcile failed: %v", err)
	}
	gw.listings["photos"] = nil
	if _, err := uc.Reconcile(context.Background(), "photos"); err != nil {
		t.Fatalf("reconcile failed: %v", err)
	}
	if store.byExt["a"].active {
		t.Fatalf("expected a to be deactivated")
	}

	gw.listings["photos"] = []domain.ProviderItem{item("a", "A")}
	result, err := uc.Reconcile(context.Background(), "photos")
	if err != nil {
		t.Fatalf("reconcile failed: %v", err)
	}
	if result.NewCount != 0 {
		t.Fatalf("reactivation counted as new: %d", result.NewCount)
	}
	if result.Reactivated != 1 {
		t.Fatalf("expected 1 reactivation, got %d", result.Reactivated)
	}
	if !store.byExt["a"].active {
		t.Fatalf("expected a to be active again")
	}
}

func TestReconcileSingleFlight(t *testing.T) {
	guard := newMockGuard()
	guard.locked = true

	uc := newTestReconciler(newFakeContentStore(), &mockGateway{}, guard, &mockPublisher{})

	result, err := uc.Reconcile(context.Background(), "photos")
	if err != nil {
		t.Fatalf("reconcile failed: %v", err)
	}
	if !result.InProgress {
		t.Fatalf("expected in-progress result for overlapping run")
	}
}

func TestReconcileUnknownLibrary(t *testing.T) {
	uc := newTestReconciler(newFakeContentStore(), &mockGateway{}, newMockGuard(), &mockPublisher{})

	_, err := uc.Reconcile(context.Background(), "nope")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestReconcileProviderFailure(t *testing.T) {
	gw := &mockGateway{err: domain.ProviderUnavailableError{Library: "photos", Err: errors.New("boom")}}
	uc := newTestReconciler(newFakeContentStore(), gw, newMockGuard(), &mockPublisher{})

	_, err := uc.Reconcile(context.Background(), "photos")
	if !errors.Is(err, domain.ErrProviderUnavailable) {
		t.Fatalf("expected provider unavailable, got %v", err)
	}

	status := uc.Status()
	if status.TotalRuns != 1 || status.FailedRuns != 1 {
		t.Fatalf("status = %+v, want one failed run", status)
	}
}

func TestReconcileRetriesSkippedItems(t *testing.T) {
	store := newFakeContentStore()
	store.insertErrs["b"] = errors.New("store down")
	gw := &mockGateway{listings: map[string][]domain.ProviderItem{
		"photos": {item("a", "A"), item("b", "B")},
	}}
	uc := newTestReconciler(store, gw, newMockGuard(), &mockPublisher{})

	first, err := uc.Reconcile(context.Background(), "photos")
	if err != nil {
		t.Fatalf("first reconcile failed: %v", err)
	}
	if first.NewCount != 1 || first.Skipped != 1 {
		t.Fatalf("first run: new=%d skipped=%d, want 1/1", first.NewCount, first.Skipped)
	}

	// The listing has not changed, but the skipped item must still be
	// retried: a partial run must not arm the short-circuit.
	second, err := uc.Reconcile(context.Background(), "photos")
	if err != nil {
		t.Fatalf("second reconcile failed: %v", err)
	}
	if second.Unchanged {
		t.Fatalf("partial run armed the short-circuit")
	}
	if second.NewCount != 1 {
		t.Fatalf("second run ingested %d items, want the skipped one", second.NewCount)
	}
	if _, ok := store.byExt["b"]; !ok {
		t.Fatalf("item b never ingested")
	}

	third, err := uc.Reconcile(context.Background(), "photos")
	if err != nil {
		t.Fatalf("third reconcile failed: %v", err)
	}
	if !third.Unchanged {
		t.Fatalf("clean run should arm the short-circuit")
	}
}

func TestReconcileInsertConflictNotNew(t *testing.T) {
	store := newFakeContentStore()
	store.insertConflicts["a"] = true
	gw := &mockGateway{listings: map[string][]domain.ProviderItem{
		"photos": {item("a", "A")},
	}}
	pub := &mockPublisher{}
	uc := newTestReconciler(store, gw, newMockGuard(), pub)

	result, err := uc.Reconcile(context.Background(), "photos")
	if err != nil {
		t.Fatalf("reconcile failed: %v", err)
	}
	if result.NewCount != 0 {
		t.Fatalf("conflicting insert counted as new: %d", result.NewCount)
	}
	if len(pub.events) != 0 {
		t.Fatalf("event published for a lost insert race")
	}
}

func TestListingDigestIgnoresOrder(t *testing.T) {
	a := []domain.ProviderItem{item("a", "A"), item("b", "B")}
	b := []domain.ProviderItem{item("b", "B"), item("a", "A")}

	if listingDigest(a) != listingDigest(b) {
		t.Fatalf("digest should be order independent")
	}
	if listingDigest(a) == listingDigest([]domain.ProviderItem{item("a", "A")}) {
		t.Fatalf("digest should change with content")
	}
}

func TestListingDigestCoversVolatileFields(t *testing.T) {
	base := domain.ProviderItem{ExternalID: "a", Title: "A", Category: "travel", URL: "u"}

	changedDesc := base
	changedDesc.Description = "new description"
	if listingDigest([]domain.ProviderItem{base}) == listingDigest([]domain.ProviderItem{changedDesc}) {
		t.Fatalf("description change should change the digest")
	}

	changedThumb := base
	changedThumb.ThumbnailURL = "thumb2"
	if listingDigest([]domain.ProviderItem{base}) == listingDigest([]domain.ProviderItem{changedThumb}) {
		t.Fatalf("thumbnail change should change the digest")
	}

	changedTags := base
	changedTags.Tags = []string{"beach"}
	if listingDigest([]domain.ProviderItem{base}) == listingDigest([]domain.ProviderItem{changedTags}) {
		t.Fatalf("tag change should change the digest")
	}
}
