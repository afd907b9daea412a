// Package contentstore is the REST client for the authoring layer's content
// store. The publisher reads content items from it and writes per-destination
// publish results back.
package contentstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/jonesrussell/social-publisher/internal/config"
	"github.com/jonesrussell/social-publisher/internal/httperr"
	"github.com/jonesrussell/social-publisher/internal/logger"
	"github.com/jonesrussell/social-publisher/internal/models"
)

// Client talks to the content store API.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     logger.Logger
}

// New creates a content store client.
func New(cfg config.ContentStoreConfig, log logger.Logger) *Client {
	return &Client{
		baseURL:    strings.TrimRight(cfg.URL, "/"),
		token:      cfg.Token,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     log,
	}
}

// GetContent fetches one content item by id.
func (c *Client) GetContent(ctx context.Context, contentID string) (*models.ContentItem, error) {
	endpoint := fmt.Sprintf("%s/api/v1/content/%s", c.baseURL, contentID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("build content request: %w", err)
	}

	var item models.ContentItem
	if err := c.do(req, &item); err != nil {
		var he *httperr.Error
		if errors.As(err, &he) && he.StatusCode == http.StatusNotFound {
			return nil, fmt.Errorf("content %s: %w", contentID, models.ErrNotFound)
		}
		return nil, fmt.Errorf("get content %s: %w", contentID, err)
	}
	return &item, nil
}

// UpdateDestinationResult writes one destination's outcome back to the store.
// The result's error string must already be redacted. Updates are idempotent
// at the store: writing the same result twice is safe.
func (c *Client) UpdateDestinationResult(ctx context.Context, contentID string, result *models.DestinationResult) error {
	endpoint := fmt.Sprintf("%s/api/v1/content/%s/results/%s", c.baseURL, contentID, result.Destination)

	encoded, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("encode destination result: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, endpoint, bytes.NewReader(encoded))
	if err != nil {
		return fmt.Errorf("build result request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	if err := c.do(req, nil); err != nil {
		return fmt.Errorf("update result for %s/%s: %w", contentID, result.Destination, err)
	}
	return nil
}

// UpdateContentStatus moves the content item's lifecycle status.
func (c *Client) UpdateContentStatus(ctx context.Context, contentID string, status models.ContentStatus) error {
	endpoint := fmt.Sprintf("%s/api/v1/content/%s/status", c.baseURL, contentID)

	encoded, err := json.Marshal(map[string]string{"status": string(status)})
	if err != nil {
		return fmt.Errorf("encode status: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, endpoint, bytes.NewReader(encoded))
	if err != nil {
		return fmt.Errorf("build status request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	if err := c.do(req, nil); err != nil {
		return fmt.Errorf("update status for %s: %w", contentID, err)
	}
	return nil
}

func (c *Client) do(req *http.Request, out any) error {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

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
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
