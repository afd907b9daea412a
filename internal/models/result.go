package models

import "time"

// ResultStatus is the status of one destination's publish attempt.
type ResultStatus string

const (
	ResultStatusPending   ResultStatus = "pending"
	ResultStatusPublished ResultStatus = "published"
	ResultStatusFailed    ResultStatus = "failed"
)

// DestinationResult records the outcome of publishing one content item to
// one destination. Created when dispatch starts and overwritten per latest
// attempt; the database keeps the append-only history.
type DestinationResult struct {
	Destination string       `json:"destination"`
	Status      ResultStatus `json:"status"`
	PostID      string       `json:"post_id,omitempty"`
	PostURL     string       `json:"post_url,omitempty"`
	Error       string       `json:"error,omitempty"`
	Timestamp   time.Time    `json:"timestamp"`
}

// Published reports whether the result carries a destination-confirmed
// identifier. A result is never "published" without one.
func (r *DestinationResult) Published() bool {
	return r.Status == ResultStatusPublished && (r.PostID != "" || r.PostURL != "")
}
