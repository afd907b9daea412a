// Package destination defines the contract every publishing target
// implements. Each destination lives in its own subpackage and owns its wire
// protocol; the dispatcher only sees this interface.
package destination

import (
	"context"

	"github.com/jonesrussell/social-publisher/internal/models"
)

// ResolvedMedia is a media reference after URL resolution. Upload marks
// media the destination cannot fetch by URL and must receive as a multipart
// file upload instead.
type ResolvedMedia struct {
	URL    string
	Kind   models.MediaKind
	Upload bool
}

// PublishRequest carries everything one publish attempt needs. Text is
// already formatted for the destination's markup dialect and verified
// against its length limit.
type PublishRequest struct {
	Credentials models.DestinationCredentials
	Text        string
	Media       []ResolvedMedia

	// CaptionLimit is the destination's small-text threshold: text at or
	// below it travels as a media caption in a single request, text above it
	// is sent as a separate message after the media.
	CaptionLimit int
}

// PublishResult identifies the created post.
type PublishResult struct {
	PostID  string
	PostURL string
}

// Client publishes one request to one destination.
type Client interface {
	Name() string
	Publish(ctx context.Context, req PublishRequest) (*PublishResult, error)
}
