package models

import (
	"time"

	"github.com/google/uuid"
)

// PublishHistory is one append-only record of a publish attempt's outcome.
type PublishHistory struct {
	ID          uuid.UUID    `db:"id" json:"id"`
	ContentID   string       `db:"content_id" json:"content_id"`
	CampaignID  string       `db:"campaign_id" json:"campaign_id"`
	Destination string       `db:"destination" json:"destination"`
	Status      ResultStatus `db:"status" json:"status"`
	PostID      string       `db:"post_id" json:"post_id,omitempty"`
	PostURL     string       `db:"post_url" json:"post_url,omitempty"`
	Error       string       `db:"error" json:"error,omitempty"`
	PublishedAt time.Time    `db:"published_at" json:"published_at"`
}

// PublishHistoryFilter narrows history queries.
type PublishHistoryFilter struct {
	ContentID   string
	Destination string
	Status      ResultStatus
	StartDate   *time.Time
	EndDate     *time.Time
	Limit       int
	Offset      int
}
