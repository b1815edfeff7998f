package domain

import (
	"math"
	"time"
)

// InteractionType classifies one user interaction with content.
type InteractionType string

const (
	InteractionView     InteractionType = "view"
	InteractionLongView InteractionType = "long_view"
	InteractionLike     InteractionType = "like"
	InteractionShare    InteractionType = "share"
	InteractionComment  InteractionType = "comment"
	InteractionSave     InteractionType = "save"
)

// BaseWeights are the ledger weights contributed by each interaction
// type. A view longer than LongViewSeconds is promoted to long_view
// before lookup.
var BaseWeights = map[InteractionType]float64{
	InteractionView:     1,
	InteractionLongView: 3,
	InteractionLike:     2,
	InteractionShare:    4,
	InteractionComment:  3,
	InteractionSave:     5,
}

const (
	// LongViewSeconds promotes a view to long_view.
	LongViewSeconds = 30

	// MaxTagWeight clamps every ledger entry weight.
	MaxTagWeight = 10.0
)

func (t InteractionType) Valid() bool {
	_, ok := BaseWeights[t]
	return ok
}

// LedgerEntry is one weighted interest tag of a user.
type LedgerEntry struct {
	Tag              string    `json:"tag"`
	Weight           float64   `json:"weight"`
	InteractionCount int       `json:"interactionCount"`
	LastUpdated      time.Time `json:"lastUpdated"`
}

// InterestLedger accumulates weighted interest tags for one user.
// Weights decay over time; the ledger is never deleted.
type InterestLedger struct {
	UserID            string                 `json:"userId"`
	Entries           map[string]LedgerEntry `json:"entries"`
	TotalInteractions int                    `json:"totalInteractions"`
}

// ClampWeight enforces the [0, MaxTagWeight] invariant.
func ClampWeight(w float64) float64 {
	if w < 0 {
		return 0
	}
	if w > MaxTagWeight {
		return MaxTagWeight
	}
	return w
}

// Bump applies one interaction of the given base weight to an entry,
// returning the updated entry. A fresh entry starts at the base
// weight; an existing one gains a tenth of it.
func (e LedgerEntry) Bump(base float64, now time.Time) LedgerEntry {
	if e.InteractionCount == 0 {
		e.Weight = ClampWeight(base)
	} else {
		e.Weight = ClampWeight(e.Weight + base*0.1)
	}
	e.InteractionCount++
	e.LastUpdated = now
	return e
}

// DecayedWeight returns the entry weight after applying the decay
// factor once per elapsed period since the last update.
func (e LedgerEntry) DecayedWeight(now time.Time, factor float64, period time.Duration) float64 {
	if factor <= 0 || factor >= 1 || period <= 0 {
		return e.Weight
	}
	elapsed := now.Sub(e.LastUpdated)
	if elapsed < period {
		return e.Weight
	}
	periods := float64(elapsed / period)
	return e.Weight * math.Pow(factor, periods)
}

// MaxWeight returns the highest entry weight in the ledger, or 0.
func (l InterestLedger) MaxWeight() float64 {
	max := 0.0
	for _, e := range l.Entries {
		if e.Weight > max {
			max = e.Weight
		}
	}
	return max
}

// TopTags returns up to n tags ordered by descending weight.
func (l InterestLedger) TopTags(n int) []string {
	type kv struct {
		tag    string
		weight float64
	}
	pairs := make([]kv, 0, len(l.Entries))
	for tag, e := range l.Entries {
		pairs = append(pairs, kv{tag, e.Weight})
	}
	for i := 1; i < len(pairs); i++ {
		for j := i; j > 0 && pairs[j].weight > pairs[j-1].weight; j-- {
			pairs[j], pairs[j-1] = pairs[j-1], pairs[j]
		}
	}
	if n > len(pairs) {
		n = len(pairs)
	}
	tags := make([]string, 0, n)
	for _, p := range pairs[:n] {
		tags = append(tags, p.tag)
	}
	return tags
}

// ScoreMatch records one ledger entry that contributed to a relevance
// score.
type ScoreMatch struct {
	Type   string  `json:"type"` // "category" or "tag"
	Value  string  `json:"value"`
	Weight float64 `json:"weight"`
}

// RelevanceScore is the result of scoring one content item against a
// user's ledger.
type RelevanceScore struct {
	Score   float64      `json:"score"`
	Matched []ScoreMatch `json:"matched"`
}
