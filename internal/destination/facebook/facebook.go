// Package facebook publishes content to a Facebook page via the Graph API.
// Text goes to the page feed; a photo post carries the text as its caption
// since the Graph API accepts long captions.
package facebook

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/jonesrussell/social-publisher/internal/destination"
	"github.com/jonesrussell/social-publisher/internal/httperr"
	"github.com/jonesrussell/social-publisher/internal/logger"
	"github.com/jonesrussell/social-publisher/internal/models"
)

// DefaultAPIBase is the production Graph API endpoint, version pinned.
const DefaultAPIBase = "https://graph.facebook.com/v19.0"

// Config holds the Facebook client knobs.
type Config struct {
	// APIBase overrides the Graph API endpoint, for tests.
	APIBase string
}

// Client publishes to a Facebook page.
type Client struct {
	apiBase    string
	httpClient *http.Client
	logger     logger.Logger
}

// New creates a Facebook client.
func New(cfg Config, httpClient *http.Client, log logger.Logger) *Client {
	apiBase := cfg.APIBase
	if apiBase == "" {
		apiBase = DefaultAPIBase
	}
	return &Client{
		apiBase:    strings.TrimRight(apiBase, "/"),
		httpClient: httpClient,
		logger:     log,
	}
}

// Name implements destination.Client.
func (c *Client) Name() string { return "facebook" }

// Publish creates a feed post, or a photo post when image media is present.
// The Graph API fetches media by URL itself, so no reupload happens here.
func (c *Client) Publish(ctx context.Context, req destination.PublishRequest) (*destination.PublishResult, error) {
	pageID := strings.TrimSpace(req.Credentials.AccountID)
	if pageID == "" {
		return nil, fmt.Errorf("facebook page id is required")
	}

	photoURL := firstImageURL(req.Media)
	var (
		edge   string
		params url.Values
	)
	if photoURL != "" {
		edge = "photos"
		params = url.Values{
			"url":     {photoURL},
			"caption": {req.Text},
		}
	} else {
		edge = "feed"
		params = url.Values{
			"message": {req.Text},
		}
	}
	params.Set("access_token", req.Credentials.Token)

	endpoint := fmt.Sprintf("%s/%s/%s", c.apiBase, pageID, edge)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(params.Encode()))
	if err != nil {
		return nil, fmt.Errorf("build %s request: %w", edge, err)
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("post to %s: %w", edge, err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			c.logger.Warn("Failed to close response body", logger.Error(closeErr))
		}
	}()

	if httpErr := httperr.FromResponse(resp); httpErr != nil {
		return nil, fmt.Errorf("post to %s: %w", edge, httpErr)
	}

	var out struct {
		ID     string `json:"id"`
		PostID string `json:"post_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode %s response: %w", edge, err)
	}

	postID := out.PostID
	if postID == "" {
		postID = out.ID
	}
	if postID == "" {
		return nil, fmt.Errorf("%s response contained no post id", edge)
	}

	return &destination.PublishResult{
		PostID:  postID,
		PostURL: "https://www.facebook.com/" + postID,
	}, nil
}

// firstImageURL returns the first image media URL, if any. Additional images
// are logged and skipped; multi-photo posts need the unpublished-photo flow
// which this publisher does not use.
func firstImageURL(items []destination.ResolvedMedia) string {
	for _, m := range items {
		if m.Kind == models.MediaKindImage && m.URL != "" {
			return m.URL
		}
	}
	return ""
}
