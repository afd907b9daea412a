// Package models defines the shared domain types of the social publisher.
package models

// ContentStatus is the lifecycle status of a content item. The authoring
// layer owns the item; the publisher only moves it through
// draft → publishing → published | failed.
type ContentStatus string

const (
	ContentStatusDraft      ContentStatus = "draft"
	ContentStatusPublishing ContentStatus = "publishing"
	ContentStatusPublished  ContentStatus = "published"
	ContentStatusFailed     ContentStatus = "failed"
)

// MediaKind distinguishes images from videos.
type MediaKind string

const (
	MediaKindImage MediaKind = "image"
	MediaKindVideo MediaKind = "video"
)

// MediaOrigin records where a media asset lives.
type MediaOrigin string

const (
	OriginLocalStorage    MediaOrigin = "local-storage"
	OriginRemoteGenerated MediaOrigin = "remote-generated"
	OriginExternal        MediaOrigin = "external"
)

// MediaReference points at an image or video asset. It is immutable once
// attached to a content item; several items may share one reference.
type MediaReference struct {
	URL    string      `json:"url"`
	Kind   MediaKind   `json:"kind"`
	Origin MediaOrigin `json:"origin"`
}

// ContentItem is an authored piece of content to publish. The body may carry
// editor HTML; each destination formats it to its own dialect.
type ContentItem struct {
	ID              string           `json:"id"`
	CampaignID      string           `json:"campaign_id"`
	Title           string           `json:"title"`
	Body            string           `json:"body"`
	Hashtags        []string         `json:"hashtags,omitempty"`
	PrimaryMedia    *MediaReference  `json:"primary_media,omitempty"`
	AdditionalMedia []MediaReference `json:"additional_media,omitempty"`
	Destinations    []string         `json:"destinations"`
	Status          ContentStatus    `json:"status"`
}

// AllMedia returns the primary media followed by the additional references,
// skipping empty URLs.
func (c *ContentItem) AllMedia() []MediaReference {
	refs := make([]MediaReference, 0, 1+len(c.AdditionalMedia))
	if c.PrimaryMedia != nil && c.PrimaryMedia.URL != "" {
		refs = append(refs, *c.PrimaryMedia)
	}
	for _, ref := range c.AdditionalMedia {
		if ref.URL != "" {
			refs = append(refs, ref)
		}
	}
	return refs
}
