package domain

import "time"

const (
	// HistoryWindow caps the per-user view history. Older entries are
	// evicted FIFO by viewed-at.
	HistoryWindow = 50

	// CompletionRatio marks a view as completed.
	CompletionRatio = 0.8
)

// ViewRecord is one seen-content entry of a user's history window.
type ViewRecord struct {
	ContentID           uint      `json:"contentId"`
	ViewedAt            time.Time `json:"viewedAt"`
	ViewDurationSeconds int       `json:"viewDurationSeconds"`
	Completed           bool      `json:"completed"`
}

// ViewInput is one view event as reported by a client.
type ViewInput struct {
	ContentID            uint `json:"contentId"`
	ViewDurationSeconds  int  `json:"viewDurationSeconds"`
	TotalDurationSeconds int  `json:"totalDurationSeconds"`
}

// Completed reports whether the view covered enough of the content to
// count as a full watch.
func (v ViewInput) IsCompleted() bool {
	return v.TotalDurationSeconds > 0 &&
		float64(v.ViewDurationSeconds)/float64(v.TotalDurationSeconds) >= CompletionRatio
}

// ViewResult is the outcome of recording a single view.
type ViewResult struct {
	Success       bool `json:"success"`
	AlreadyViewed bool `json:"alreadyViewed"`
	Completed     bool `json:"completed"`
	ViewDuration  int  `json:"viewDuration"`
}

// BatchViewResult is the outcome of recording a batch of views.
type BatchViewResult struct {
	Recorded  int `json:"recorded"`
	Duplicate int `json:"duplicate"`
	Evicted   int `json:"evicted"`
}

// WindowOverflow returns the eviction set for a history window: the
// content IDs past the cap, given IDs ordered newest first.
func WindowOverflow(ids []uint) []uint {
	if len(ids) <= HistoryWindow {
		return nil
	}
	return ids[HistoryWindow:]
}
