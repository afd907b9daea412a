// Package instagram publishes content to an Instagram business account via
// the Graph API two-phase flow: create a media container, wait for it to be
// ready, then publish it. Instagram requires image media; text-only posts
// are rejected up front.
package instagram

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/jonesrussell/social-publisher/internal/destination"
	"github.com/jonesrussell/social-publisher/internal/httperr"
	"github.com/jonesrussell/social-publisher/internal/logger"
	"github.com/jonesrussell/social-publisher/internal/models"
)

// DefaultAPIBase is the production Graph API endpoint, version pinned.
const DefaultAPIBase = "https://graph.facebook.com/v19.0"

const (
	// containerPollInterval is the delay between container status checks.
	containerPollInterval = 2 * time.Second
	// containerPollAttempts bounds the container wait; processing normally
	// finishes within a few seconds.
	containerPollAttempts = 15
)

// Config holds the Instagram client knobs.
type Config struct {
	// APIBase overrides the Graph API endpoint, for tests.
	APIBase string
	// PollInterval overrides the container status poll interval, for tests.
	PollInterval time.Duration
}

// Client publishes to an Instagram business account.
type Client struct {
	apiBase      string
	pollInterval time.Duration
	httpClient   *http.Client
	logger       logger.Logger
}

// New creates an Instagram client.
func New(cfg Config, httpClient *http.Client, log logger.Logger) *Client {
	apiBase := cfg.APIBase
	if apiBase == "" {
		apiBase = DefaultAPIBase
	}
	pollInterval := cfg.PollInterval
	if pollInterval == 0 {
		pollInterval = containerPollInterval
	}
	return &Client{
		apiBase:      strings.TrimRight(apiBase, "/"),
		pollInterval: pollInterval,
		httpClient:   httpClient,
		logger:       log,
	}
}

// Name implements destination.Client.
func (c *Client) Name() string { return "instagram" }

// Publish runs the container-then-publish flow.
func (c *Client) Publish(ctx context.Context, req destination.PublishRequest) (*destination.PublishResult, error) {
	accountID := strings.TrimSpace(req.Credentials.AccountID)
	if accountID == "" {
		return nil, fmt.Errorf("instagram account id is required")
	}

	imageURL := firstImageURL(req.Media)
	if imageURL == "" {
		return nil, fmt.Errorf("instagram requires image media, text-only posts are unsupported")
	}

	containerID, err := c.createContainer(ctx, req.Credentials.Token, accountID, imageURL, req.Text)
	if err != nil {
		return nil, fmt.Errorf("create media container: %w", err)
	}

	if err := c.waitForContainer(ctx, req.Credentials.Token, containerID); err != nil {
		return nil, err
	}

	postID, err := c.publishContainer(ctx, req.Credentials.Token, accountID, containerID)
	if err != nil {
		return nil, fmt.Errorf("publish media container: %w", err)
	}

	return &destination.PublishResult{
		PostID:  postID,
		PostURL: "https://www.instagram.com/p/" + postID,
	}, nil
}

func (c *Client) createContainer(ctx context.Context, token, accountID, imageURL, caption string) (string, error) {
	params := url.Values{
		"image_url":    {imageURL},
		"caption":      {caption},
		"access_token": {token},
	}
	var out struct {
		ID string `json:"id"`
	}
	if err := c.postForm(ctx, fmt.Sprintf("%s/%s/media", c.apiBase, accountID), params, &out); err != nil {
		return "", err
	}
	if out.ID == "" {
		return "", fmt.Errorf("container response contained no id")
	}
	return out.ID, nil
}

// waitForContainer polls the container until Instagram finishes ingesting
// the media. FINISHED proceeds; ERROR fails with the container's detail; a
// container still processing after the attempt budget fails as timed out.
func (c *Client) waitForContainer(ctx context.Context, token, containerID string) error {
	for attempt := 0; attempt < containerPollAttempts; attempt++ {
		var out struct {
			StatusCode string `json:"status_code"`
			Status     string `json:"status"`
		}
		endpoint := fmt.Sprintf("%s/%s?fields=status_code,status&access_token=%s",
			c.apiBase, containerID, url.QueryEscape(token))
		if err := c.getJSON(ctx, endpoint, &out); err != nil {
			return fmt.Errorf("check container status: %w", err)
		}

		switch out.StatusCode {
		case "FINISHED":
			return nil
		case "ERROR", "EXPIRED":
			detail := out.Status
			if detail == "" {
				detail = out.StatusCode
			}
			return fmt.Errorf("media container failed: %s", detail)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.pollInterval):
		}
	}
	return fmt.Errorf("media container not ready after %d checks", containerPollAttempts)
}

func (c *Client) publishContainer(ctx context.Context, token, accountID, containerID string) (string, error) {
	params := url.Values{
		"creation_id":  {containerID},
		"access_token": {token},
	}
	var out struct {
		ID string `json:"id"`
	}
	if err := c.postForm(ctx, fmt.Sprintf("%s/%s/media_publish", c.apiBase, accountID), params, &out); err != nil {
		return "", err
	}
	if out.ID == "" {
		return "", fmt.Errorf("publish response contained no id")
	}
	return out.ID, nil
}

func (c *Client) postForm(ctx context.Context, endpoint string, params url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(params.Encode()))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return c.do(req, out)
}

func (c *Client) getJSON(ctx context.Context, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, http.NoBody)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			c.logger.Warn("Failed to close response body", logger.Error(closeErr))
		}
	}()

	if httpErr := httperr.FromResponse(resp); httpErr != nil {
		return httpErr
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func firstImageURL(items []destination.ResolvedMedia) string {
	for _, m := range items {
		if m.Kind == models.MediaKindImage && m.URL != "" {
			return m.URL
		}
	}
	return ""
}
