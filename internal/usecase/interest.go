package usecase

import (
	"context"
	"log/slog"
	"time"

	"github.com/prismsocial/prism-server/internal/domain"
	"github.com/prismsocial/prism-server/internal/utils"
)

// InteractionInput is one interaction event reported for a user.
type InteractionInput struct {
	ContentID       uint                   `json:"contentId"`
	Type            domain.InteractionType `json:"type"`
	DurationSeconds int                    `json:"durationSeconds"`
}

// LedgerSnapshot is the post-interaction ledger view returned to the
// caller, entries ordered by descending weight.
type LedgerSnapshot struct {
	UserID            string                                 `json:"userId"`
	TotalInteractions int                                    `json:"totalInteractions"`
	Entries           utils.OrderedKVMap[domain.LedgerEntry] `json:"entries"`
}

// InterestUsecase is the only writer of interest ledgers.
type InterestUsecase struct {
	ledger  LedgerRepository
	content ContentRepository
}

func NewInterestUsecase(ledger LedgerRepository, content ContentRepository) *InterestUsecase {
	return &InterestUsecase{
		ledger:  ledger,
		content: content,
	}
}

// TrackInteraction upserts weighted interest for the content's kind,
// category, and tags. TotalInteractions increments once per call, not
// once per tag.
func (uc *InterestUsecase) TrackInteraction(ctx context.Context, userID string, input InteractionInput) (LedgerSnapshot, error) {

	if userID == "" {
		return LedgerSnapshot{}, domain.ValidationError{Field: "userId", Reason: "required"}
	}
	if input.ContentID == 0 {
		return LedgerSnapshot{}, domain.ValidationError{Field: "contentId", Reason: "required"}
	}
	if !input.Type.Valid() {
		return LedgerSnapshot{}, domain.ValidationError{Field: "type", Reason: "unknown interaction type"}
	}

	interactionType := input.Type
	if interactionType == domain.InteractionView && input.DurationSeconds > domain.LongViewSeconds {
		interactionType = domain.InteractionLongView
	}
	base := domain.BaseWeights[interactionType]

	content, err := uc.content.Get(ctx, input.ContentID)
	if err != nil {
		return LedgerSnapshot{}, err
	}

	tags := interactionTags(content)

	if input.Type == domain.InteractionLike {
		if err := uc.content.IncrementLikeCount(ctx, input.ContentID); err != nil {
			slog.Error(
				"Failed to increment like counter",
				slog.String("userId", userID),
				slog.String("error", err.Error()),
				slog.String("module", "interest"),
			)
		}
	}

	ledger, err := uc.ledger.Apply(ctx, userID, tags, base, time.Now().UTC())
	if err != nil {
		return LedgerSnapshot{}, err
	}

	return snapshotOf(ledger), nil
}

// DecayLedgers persists one decay step for stale entries.
func (uc *InterestUsecase) DecayLedgers(ctx context.Context, factor float64, period time.Duration) (int64, error) {
	now := time.Now().UTC()
	return uc.ledger.Decay(ctx, factor, now.Add(-period), now)
}

// interactionTags lists the ledger tags one interaction touches: the
// content kind as a pseudo-tag, its category, and each tag, deduped.
func interactionTags(content domain.ContentItem) []string {
	tags := make([]string, 0, len(content.Tags)+2)
	seen := make(map[string]bool, len(content.Tags)+2)

	add := func(tag string) {
		if tag == "" || seen[tag] {
			return
		}
		seen[tag] = true
		tags = append(tags, tag)
	}

	add(string(content.Kind))
	add(content.Category)
	for _, tag := range content.Tags {
		add(tag)
	}
	return tags
}

func snapshotOf(ledger domain.InterestLedger) LedgerSnapshot {
	order := ledger.TopTags(len(ledger.Entries))
	return LedgerSnapshot{
		UserID:            ledger.UserID,
		TotalInteractions: ledger.TotalInteractions,
		Entries: utils.Ranked(order, func(tag string) domain.LedgerEntry {
			return ledger.Entries[tag]
		}),
	}
}
