package usecase

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"time"

	"github.com/prismsocial/prism-server/internal/domain"
)

const trendingWindow = 200

// FeedOptions tunes the personalization behavior.
type FeedOptions struct {
	ColdStartThreshold int
	DecayFactor        float64
	DecayPeriod        time.Duration
}

// FeedResult is the assembled feed page returned to a caller.
type FeedResult struct {
	Items       []domain.ContentItem `json:"items"`
	IsSmartFeed bool                 `json:"isSmartFeed"`
	IsNewUser   bool                 `json:"isNewUser"`
	Fallback    bool                 `json:"fallback"`
	Page        int                  `json:"page"`
}

// FeedUsecase composes the unseen filter, the relevance ranker, and
// pagination. The only usecase invoked synchronously per request.
type FeedUsecase struct {
	content  ContentRepository
	ledger   LedgerRepository
	filter   FilterProvider
	trending TrendingCache
	opts     FeedOptions
}

func NewFeedUsecase(
	content ContentRepository,
	ledger LedgerRepository,
	filter FilterProvider,
	trending TrendingCache,
	opts FeedOptions,
) *FeedUsecase {
	return &FeedUsecase{
		content:  content,
		ledger:   ledger,
		filter:   filter,
		trending: trending,
		opts:     opts,
	}
}

// GetFeed returns one feed page. Read-only: ranking failures degrade
// to recency ordering instead of surfacing an error.
func (uc *FeedUsecase) GetFeed(ctx context.Context, userID string, kind domain.Kind, page, pageSize int, category string) (FeedResult, error) {

	if !kind.Valid() {
		return FeedResult{}, domain.ValidationError{Field: "kind", Reason: "unknown content kind"}
	}
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}
	offset := (page - 1) * pageSize

	// Category browsing is plain recency, no ranking.
	if category != "" {
		items, err := uc.content.ListRecent(ctx, kind, category, nil, pageSize, offset)
		if err != nil {
			return uc.fallback(ctx, kind, page, pageSize, offset)
		}
		return FeedResult{Items: items, Page: page}, nil
	}

	ledger, err := uc.ledger.Get(ctx, userID)
	coldStart := false
	switch {
	case err == nil:
		coldStart = ledger.TotalInteractions < uc.opts.ColdStartThreshold || ledger.MaxWeight() == 0
	case errors.Is(err, domain.ErrNotFound):
		coldStart = true
	default:
		return uc.fallback(ctx, kind, page, pageSize, offset)
	}

	if coldStart {
		items, err := uc.trendingPage(ctx, kind, pageSize, offset)
		if err != nil {
			return uc.fallback(ctx, kind, page, pageSize, offset)
		}
		return FeedResult{Items: items, IsNewUser: true, Page: page}, nil
	}

	result, err := uc.smartPage(ctx, userID, ledger, kind, page, pageSize)
	if err != nil {
		return uc.fallback(ctx, kind, page, pageSize, offset)
	}
	return result, nil
}

// trendingPage serves the cold-start ordering from a short-lived
// per-kind cache; the window is user-independent.
func (uc *FeedUsecase) trendingPage(ctx context.Context, kind domain.Kind, pageSize, offset int) ([]domain.ContentItem, error) {

	window, ok := uc.trending.Get(kind)
	if !ok {
		var err error
		window, err = uc.content.ListTrending(ctx, kind, trendingWindow, 0)
		if err != nil {
			return nil, err
		}
		uc.trending.Set(kind, window)
	}

	if offset+pageSize <= len(window) {
		return window[offset : offset+pageSize], nil
	}
	if len(window) < trendingWindow {
		// Window is exhaustive; serve whatever remains.
		if offset >= len(window) {
			return []domain.ContentItem{}, nil
		}
		return window[offset:], nil
	}

	// Deep page past the cached window goes straight to the store.
	return uc.content.ListTrending(ctx, kind, pageSize, offset)
}

// smartPage scores a recency candidate window of unseen items against
// the user's ledger and paginates the sorted result.
func (uc *FeedUsecase) smartPage(ctx context.Context, userID string, ledger domain.InterestLedger, kind domain.Kind, page, pageSize int) (FeedResult, error) {

	unseen, err := uc.filter.UnseenFilter(ctx, userID)
	if err != nil {
		return FeedResult{}, err
	}

	// The candidate window grows with the page so deeper pages still
	// rank over fresh material.
	limit := 2 * pageSize * page
	if limit > 400 {
		limit = 400
	}

	candidates, err := uc.content.ListRecent(ctx, kind, "", unseen, limit, 0)
	if err != nil {
		return FeedResult{}, err
	}

	now := time.Now().UTC()
	type scored struct {
		item  domain.ContentItem
		score float64
	}
	ranked := make([]scored, 0, len(candidates))
	for _, item := range candidates {
		s := uc.ScoreRelevance(ledger, item, now)
		ranked = append(ranked, scored{item: item, score: s.Score})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].score != ranked[j].score {
			return ranked[i].score > ranked[j].score
		}
		return ranked[i].item.CreatedAt.After(ranked[j].item.CreatedAt)
	})

	offset := (page - 1) * pageSize
	if offset > len(ranked) {
		offset = len(ranked)
	}
	end := offset + pageSize
	if end > len(ranked) {
		end = len(ranked)
	}

	items := make([]domain.ContentItem, 0, end-offset)
	for _, r := range ranked[offset:end] {
		items = append(items, r.item)
	}

	return FeedResult{Items: items, IsSmartFeed: true, Page: page}, nil
}

// ScoreRelevance computes the 0..100 relevance of one item for a
// ledger. Category matches count double; an empty ledger scores 0.
func (uc *FeedUsecase) ScoreRelevance(ledger domain.InterestLedger, item domain.ContentItem, now time.Time) domain.RelevanceScore {

	weight := func(tag string) float64 {
		entry, ok := ledger.Entries[tag]
		if !ok {
			return 0
		}
		return entry.DecayedWeight(now, uc.opts.DecayFactor, uc.opts.DecayPeriod)
	}

	var matched []domain.ScoreMatch
	raw := 0.0

	if w := weight(item.Category); w > 0 {
		raw += 2 * w
		matched = append(matched, domain.ScoreMatch{Type: "category", Value: item.Category, Weight: w})
	}
	for _, tag := range item.Tags {
		if w := weight(tag); w > 0 {
			raw += w
			matched = append(matched, domain.ScoreMatch{Type: "tag", Value: tag, Weight: w})
		}
	}

	maxEntry := 0.0
	for tag := range ledger.Entries {
		if w := weight(tag); w > maxEntry {
			maxEntry = w
		}
	}
	maxPossible := 3 * maxEntry
	if maxPossible <= 0 {
		return domain.RelevanceScore{Score: 0, Matched: matched}
	}

	score := 100 * raw / maxPossible
	if score > 100 {
		score = 100
	}
	return domain.RelevanceScore{Score: score, Matched: matched}
}

// fallback degrades to plain recency, flagged, never an error.
func (uc *FeedUsecase) fallback(ctx context.Context, kind domain.Kind, page, pageSize, offset int) (FeedResult, error) {
	items, err := uc.content.ListRecent(ctx, kind, "", nil, pageSize, offset)
	if err != nil {
		slog.Error(
			"Feed fallback failed, serving empty page",
			slog.String("kind", string(kind)),
			slog.String("error", err.Error()),
			slog.String("module", "feed"),
		)
		items = []domain.ContentItem{}
	}
	return FeedResult{Items: items, Fallback: true, Page: page}, nil
}
