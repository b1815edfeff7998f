package domain

import "time"

// Kind is the media type of a ContentItem.
type Kind string

const (
	KindReel  Kind = "reel"
	KindVideo Kind = "video"
	KindPhoto Kind = "photo"
	KindStory Kind = "story"
	KindLive  Kind = "live"
)

// EphemeralKinds are deactivated by expiry time instead of by
// provider absence.
var EphemeralKinds = []Kind{KindStory, KindLive}

func (k Kind) IsEphemeral() bool {
	for _, e := range EphemeralKinds {
		if k == e {
			return true
		}
	}
	return false
}

func (k Kind) Valid() bool {
	switch k {
	case KindReel, KindVideo, KindPhoto, KindStory, KindLive:
		return true
	}
	return false
}

// ContentItem is one piece of media mirrored from the storage provider.
// (Kind, ExternalID) is the identity used to detect already-ingested
// items; ID is the local store identity.
type ContentItem struct {
	ID              uint       `json:"id"`
	ExternalID      string     `json:"externalId"`
	Kind            Kind       `json:"kind"`
	Library         string     `json:"library"`
	Title           string     `json:"title"`
	Description     string     `json:"description,omitempty"`
	URL             string     `json:"url"`
	ThumbnailURL    string     `json:"thumbnailUrl,omitempty"`
	Category        string     `json:"category"`
	Tags            []string   `json:"tags"`
	Active          bool       `json:"active"`
	ExpiresAt       *time.Time `json:"expiresAt,omitempty"`
	ViewCount       int64      `json:"viewCount"`
	UniqueViewCount int64      `json:"uniqueViewCount"`
	LikeCount       int64      `json:"likeCount"`
	SizeBytes       int64      `json:"sizeBytes,omitempty"`
	DurationSeconds int        `json:"durationSeconds,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`
}

// ProviderItem is one entry of a provider library listing.
type ProviderItem struct {
	ExternalID      string    `json:"externalId"`
	Title           string    `json:"title"`
	Description     string    `json:"description"`
	URL             string    `json:"url"`
	ThumbnailURL    string    `json:"thumbnailUrl"`
	Category        string    `json:"category"`
	Tags            []string  `json:"tags"`
	SizeBytes       int64     `json:"sizeBytes"`
	DurationSeconds int       `json:"durationSeconds"`
	CreatedAt       time.Time `json:"createdAt"`
}

// MediaLibrary describes one provider library to mirror. Each library
// maps to exactly one content kind.
type MediaLibrary struct {
	ID       string `yaml:"id"`
	Kind     Kind   `yaml:"kind"`
	Endpoint string `yaml:"endpoint"`
	APIKey   string `yaml:"apiKey"`
	PageSize int    `yaml:"pageSize"`

	// TTL applied to ephemeral kinds on ingestion.
	ItemTTLMins int `yaml:"itemTTLMinutes"`
}

// ItemTTL is the expiry applied to ephemeral items on ingestion.
func (l MediaLibrary) ItemTTL() time.Duration {
	return time.Duration(l.ItemTTLMins) * time.Minute
}

// SyncResult is the outcome of one reconciliation run for a library.
type SyncResult struct {
	Library      string `json:"library"`
	NewCount     int    `json:"newCount"`
	DeletedCount int    `json:"deletedCount"`
	Reactivated  int    `json:"reactivated"`
	Skipped      int    `json:"skipped"`
	Unchanged    bool   `json:"unchanged"`
	InProgress   bool   `json:"inProgress"`
}

// SyncStatus is the cumulative reconciliation state across runs.
type SyncStatus struct {
	LastRunAt      time.Time `json:"lastRunAt"`
	TotalRuns      int64     `json:"totalRuns"`
	FailedRuns     int64     `json:"failedRuns"`
	SuccessRate    float64   `json:"successRate"`
	ItemsProcessed int64     `json:"itemsProcessed"`
}

// Event is a change notification published when reconciliation
// ingests net-new content.
type Event struct {
	Library  string    `json:"library"`
	Kind     Kind      `json:"kind"`
	NewCount int       `json:"newCount"`
	ItemIDs  []uint    `json:"itemIds"`
	Occurred time.Time `json:"occurred"`
}

// MirrorRef is the minimal stored-item state the reconciliation diff
// compares a remote listing against.
type MirrorRef struct {
	ID     uint `json:"id"`
	Active bool `json:"active"`
}
