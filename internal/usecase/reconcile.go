package usecase

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/zeebo/xxh3"

	"github.com/prismsocial/prism-server/internal/domain"
)

// ReconcileUsecase keeps the primary store an eventually-consistent
// mirror of the provider libraries. Runs are additive-idempotent: a
// truncated run is safe to resume on the next cycle.
type ReconcileUsecase struct {
	repo      ContentRepository
	gateway   ProviderGateway
	guard     SyncGuard
	publisher Publisher

	libraries  []domain.MediaLibrary
	runCeiling time.Duration

	mu             sync.Mutex
	lastRunAt      time.Time
	totalRuns      int64
	failedRuns     int64
	itemsProcessed int64
}

func NewReconcileUsecase(
	repo ContentRepository,
	gateway ProviderGateway,
	guard SyncGuard,
	publisher Publisher,
	libraries []domain.MediaLibrary,
	runCeiling time.Duration,
) *ReconcileUsecase {
	return &ReconcileUsecase{
		repo:       repo,
		gateway:    gateway,
		guard:      guard,
		publisher:  publisher,
		libraries:  libraries,
		runCeiling: runCeiling,
	}
}

// Libraries returns the configured library descriptors.
func (uc *ReconcileUsecase) Libraries() []domain.MediaLibrary {
	return uc.libraries
}

func (uc *ReconcileUsecase) findLibrary(id string) (domain.MediaLibrary, bool) {
	for _, lib := range uc.libraries {
		if lib.ID == id {
			return lib, true
		}
	}
	return domain.MediaLibrary{}, false
}

// Reconcile runs one full-diff synchronization cycle for a library.
// Overlapping invocations for the same library are no-ops: the second
// caller observes InProgress and reads the first run's outcome later.
func (uc *ReconcileUsecase) Reconcile(ctx context.Context, libraryID string) (domain.SyncResult, error) {

	lib, ok := uc.findLibrary(libraryID)
	if !ok {
		return domain.SyncResult{}, domain.NotFoundError{Resource: "library"}
	}

	locked, err := uc.guard.TryLock(ctx, lib.ID, uc.runCeiling)
	if err != nil {
		return domain.SyncResult{}, errors.Wrap(err, "ReconcileUsecase.Reconcile: TryLock")
	}
	if !locked {
		return domain.SyncResult{Library: lib.ID, InProgress: true}, nil
	}
	defer func() {
		if err := uc.guard.Unlock(context.WithoutCancel(ctx), lib.ID); err != nil {
			slog.Error(
				"Failed to release sync lock",
				slog.String("library", lib.ID),
				slog.String("error", err.Error()),
				slog.String("module", "reconcile"),
			)
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, uc.runCeiling)
	defer cancel()

	result, err := uc.runCycle(ctx, lib)
	uc.recordRun(len(result.itemsSeen), err == nil)
	if err != nil {
		return domain.SyncResult{}, err
	}

	if result.out.NewCount > 0 {
		event := domain.Event{
			Library:  lib.ID,
			Kind:     lib.Kind,
			NewCount: result.out.NewCount,
			ItemIDs:  result.newIDs,
			Occurred: time.Now().UTC(),
		}
		channel := domain.EventChannelPrefix + lib.ID
		if err := uc.publisher.Publish(ctx, channel, event); err != nil {
			slog.Error(
				"Failed to publish sync event",
				slog.String("library", lib.ID),
				slog.String("error", err.Error()),
				slog.String("module", "reconcile"),
			)
		}
	}

	return result.out, nil
}

type cycleResult struct {
	out       domain.SyncResult
	newIDs    []uint
	itemsSeen []domain.ProviderItem
}

func (uc *ReconcileUsecase) runCycle(ctx context.Context, lib domain.MediaLibrary) (cycleResult, error) {

	items, err := uc.gateway.ListLibraryItems(ctx, lib)
	if err != nil {
		return cycleResult{}, err
	}

	result := cycleResult{
		out:       domain.SyncResult{Library: lib.ID},
		itemsSeen: items,
	}

	digest := listingDigest(items)
	previous, err := uc.guard.GetDigest(ctx, lib.ID)
	if err == nil && previous != 0 && previous == digest {
		result.out.Unchanged = true
		return result, nil
	}

	state, err := uc.repo.GetMirrorState(ctx, lib.Kind)
	if err != nil {
		return cycleResult{}, errors.Wrap(err, "ReconcileUsecase.runCycle: GetMirrorState")
	}

	// Ingest pass. Runs to completion before the deletion pass so a
	// flaky listing cannot delete an item observed in the same run.
	present := make([]string, 0, len(items))
	for _, item := range items {
		present = append(present, item.ExternalID)

		ref, found := state[item.ExternalID]
		if !found {
			var expiresAt *time.Time
			if lib.Kind.IsEphemeral() {
				exp := item.CreatedAt.Add(lib.ItemTTL())
				expiresAt = &exp
			}
			id, err := uc.repo.Insert(ctx, lib, item, expiresAt)
			if err != nil {
				result.out.Skipped++
				slog.Error(
					"Failed to ingest item",
					slog.String("library", lib.ID),
					slog.String("externalId", item.ExternalID),
					slog.String("error", err.Error()),
					slog.String("module", "reconcile"),
				)
				continue
			}
			if id == 0 {
				// Lost an insert race on (kind, external_id); the row
				// already exists, so it is not new.
				continue
			}
			result.out.NewCount++
			result.newIDs = append(result.newIDs, id)
			continue
		}

		if !ref.Active {
			if err := uc.repo.Reactivate(ctx, ref.ID); err != nil {
				result.out.Skipped++
				continue
			}
			result.out.Reactivated++
		}

		if err := uc.repo.UpdateVolatile(ctx, ref.ID, item); err != nil {
			slog.Warn(
				"Failed to refresh item metadata",
				slog.String("library", lib.ID),
				slog.String("externalId", item.ExternalID),
				slog.String("error", err.Error()),
				slog.String("module", "reconcile"),
			)
		}
	}

	// Deletion pass: full diff against the complete remote set. The
	// provider does not push deletions.
	deleted, err := uc.repo.DeactivateMissing(ctx, lib.Kind, present)
	if err != nil {
		return cycleResult{}, errors.Wrap(err, "ReconcileUsecase.runCycle: DeactivateMissing")
	}
	result.out.DeletedCount = int(deleted)

	// The digest is stored only after a clean cycle. A cycle that
	// skipped items must not short-circuit the next one, or the skipped
	// items would never be retried while the listing stays unchanged.
	if result.out.Skipped == 0 {
		if err := uc.guard.SetDigest(ctx, lib.ID, digest); err != nil {
			slog.Warn(
				"Failed to store listing digest",
				slog.String("library", lib.ID),
				slog.String("error", err.Error()),
				slog.String("module", "reconcile"),
			)
		}
	}

	return result, nil
}

// ForceReconcileAll runs one cycle for every configured library. A
// failure in one library never blocks the others.
func (uc *ReconcileUsecase) ForceReconcileAll(ctx context.Context) map[string]domain.SyncResult {
	results := make(map[string]domain.SyncResult, len(uc.libraries))
	for _, lib := range uc.libraries {
		result, err := uc.Reconcile(ctx, lib.ID)
		if err != nil {
			slog.Error(
				"Reconciliation cycle failed",
				slog.String("library", lib.ID),
				slog.String("error", err.Error()),
				slog.String("module", "reconcile"),
			)
			results[lib.ID] = domain.SyncResult{Library: lib.ID}
			continue
		}
		results[lib.ID] = result
	}
	return results
}

// ExpireEphemeral deactivates ephemeral items past their expiry.
// Pure time-based, no provider round-trip, safe to run often.
func (uc *ReconcileUsecase) ExpireEphemeral(ctx context.Context) (int64, error) {
	return uc.repo.ExpireEphemeral(ctx, domain.EphemeralKinds, time.Now().UTC())
}

// Status reports cumulative reconciliation state.
func (uc *ReconcileUsecase) Status() domain.SyncStatus {
	uc.mu.Lock()
	defer uc.mu.Unlock()

	rate := 0.0
	if uc.totalRuns > 0 {
		rate = float64(uc.totalRuns-uc.failedRuns) / float64(uc.totalRuns)
	}
	return domain.SyncStatus{
		LastRunAt:      uc.lastRunAt,
		TotalRuns:      uc.totalRuns,
		FailedRuns:     uc.failedRuns,
		SuccessRate:    rate,
		ItemsProcessed: uc.itemsProcessed,
	}
}

func (uc *ReconcileUsecase) recordRun(items int, success bool) {
	uc.mu.Lock()
	defer uc.mu.Unlock()
	uc.lastRunAt = time.Now().UTC()
	uc.totalRuns++
	if !success {
		uc.failedRuns++
	}
	uc.itemsProcessed += int64(items)
}

// listingDigest hashes the remote listing so an unchanged listing can
// skip the diff entirely. It must cover every provider-owned field the
// diff propagates, or a change in an uncovered field would never land.
// Items are sorted first, so provider-side ordering churn does not
// defeat the short-circuit.
func listingDigest(items []domain.ProviderItem) uint64 {
	lines := make([]string, 0, len(items))
	for _, item := range items {
		lines = append(lines, strings.Join([]string{
			item.ExternalID,
			item.Title,
			item.Description,
			item.Category,
			item.URL,
			item.ThumbnailURL,
			strings.Join(item.Tags, ","),
		}, "\x1f"))
	}
	sort.Strings(lines)
	return xxh3.HashString(strings.Join(lines, "\x1e"))
}
