// Package vk publishes content to a VK community wall. Photos go through
// the three-step wall upload flow: request an upload server, multipart the
// bytes to it, then save and attach the photo to the post.
package vk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/jonesrussell/social-publisher/internal/destination"
	"github.com/jonesrussell/social-publisher/internal/httperr"
	"github.com/jonesrussell/social-publisher/internal/logger"
	"github.com/jonesrussell/social-publisher/internal/media"
	"github.com/jonesrussell/social-publisher/internal/models"
)

// DefaultAPIBase is the production VK API endpoint.
const DefaultAPIBase = "https://api.vk.com"

// apiVersion is the VK API version every call pins.
const apiVersion = "5.131"

// Config holds the VK client knobs.
type Config struct {
	// APIBase overrides the API endpoint, for tests.
	APIBase string
}

// Client publishes to a VK community wall.
type Client struct {
	apiBase    string
	downloader *media.Downloader
	httpClient *http.Client
	logger     logger.Logger
}

// New creates a VK client.
func New(cfg Config, downloader *media.Downloader, httpClient *http.Client, log logger.Logger) *Client {
	apiBase := cfg.APIBase
	if apiBase == "" {
		apiBase = DefaultAPIBase
	}
	return &Client{
		apiBase:    strings.TrimRight(apiBase, "/"),
		downloader: downloader,
		httpClient: httpClient,
		logger:     log,
	}
}

// Name implements destination.Client.
func (c *Client) Name() string { return "vk" }

// Publish uploads any photos and posts to the community wall. VK accepts
// arbitrarily long messages alongside attachments, so there is no split
// dispatch here.
func (c *Client) Publish(ctx context.Context, req destination.PublishRequest) (*destination.PublishResult, error) {
	groupID := normalizeGroupID(req.Credentials.AccountID)
	if groupID == "" {
		return nil, fmt.Errorf("vk group id is required")
	}

	var attachments []string
	for _, m := range req.Media {
		if m.Kind != models.MediaKindImage {
			c.logger.Warn("Skipping non-photo attachment, wall upload supports photos only",
				logger.String("url", m.URL),
				logger.String("kind", string(m.Kind)),
			)
			continue
		}
		attachment, err := c.uploadWallPhoto(ctx, req.Credentials.Token, groupID, m.URL)
		if err != nil {
			return nil, fmt.Errorf("upload wall photo: %w", err)
		}
		attachments = append(attachments, attachment)
	}

	return c.wallPost(ctx, req.Credentials.Token, groupID, req.Text, attachments)
}

// normalizeGroupID strips the "club" screen-name prefix and any leading
// minus so the rest of the flow can apply the owner-id sign convention
// itself.
func normalizeGroupID(id string) string {
	id = strings.TrimSpace(id)
	id = strings.TrimPrefix(id, "club")
	id = strings.TrimPrefix(id, "-")
	return id
}

// uploadWallPhoto runs the three-step photo flow and returns the
// "photo<owner>_<id>" attachment reference.
func (c *Client) uploadWallPhoto(ctx context.Context, token, groupID, mediaURL string) (string, error) {
	uploadURL, err := c.getWallUploadServer(ctx, token, groupID)
	if err != nil {
		return "", err
	}

	var uploaded uploadResponse
	err = c.downloader.WithDownload(ctx, mediaURL, func(localPath string, _ int64) error {
		result, uploadErr := c.uploadFile(ctx, uploadURL, localPath)
		if uploadErr != nil {
			return uploadErr
		}
		uploaded = *result
		return nil
	})
	if err != nil {
		return "", err
	}

	return c.saveWallPhoto(ctx, token, groupID, uploaded)
}

func (c *Client) getWallUploadServer(ctx context.Context, token, groupID string) (string, error) {
	var out struct {
		UploadURL string `json:"upload_url"`
	}
	params := url.Values{"group_id": {groupID}}
	if err := c.callMethod(ctx, token, "photos.getWallUploadServer", params, &out); err != nil {
		return "", err
	}
	if out.UploadURL == "" {
		return "", fmt.Errorf("photos.getWallUploadServer returned no upload url")
	}
	return out.UploadURL, nil
}

// uploadResponse is what the upload server returns; its fields are opaque
// tokens passed verbatim to photos.saveWallPhoto.
type uploadResponse struct {
	Server int             `json:"server"`
	Photo  json.RawMessage `json:"photo"`
	Hash   string          `json:"hash"`
}

// uploadFile multiparts the photo bytes to the upload server.
func (c *Client) uploadFile(ctx context.Context, uploadURL, localPath string) (*uploadResponse, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	file, err := os.Open(localPath)
	if err != nil {
		return nil, fmt.Errorf("open photo file: %w", err)
	}
	part, err := writer.CreateFormFile("photo", filepath.Base(localPath))
	if err == nil {
		_, err = io.Copy(part, file)
	}
	if closeErr := file.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return nil, fmt.Errorf("write photo payload: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("finalize multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, uploadURL, &buf)
	if err != nil {
		return nil, fmt.Errorf("build upload request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("upload photo: %w", err)
	}
	defer c.closeBody(resp)

	if httpErr := httperr.FromResponse(resp); httpErr != nil {
		return nil, fmt.Errorf("upload photo: %w", httpErr)
	}

	var out uploadResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode upload response: %w", err)
	}
	if len(out.Photo) == 0 || string(out.Photo) == `""` || string(out.Photo) == "[]" {
		return nil, fmt.Errorf("upload server returned an empty photo token")
	}
	return &out, nil
}

func (c *Client) saveWallPhoto(ctx context.Context, token, groupID string, uploaded uploadResponse) (string, error) {
	var out []struct {
		ID      int64 `json:"id"`
		OwnerID int64 `json:"owner_id"`
	}
	photoToken := string(uploaded.Photo)
	photoToken = strings.Trim(photoToken, `"`)

	params := url.Values{
		"group_id": {groupID},
		"server":   {fmt.Sprintf("%d", uploaded.Server)},
		"photo":    {photoToken},
		"hash":     {uploaded.Hash},
	}
	if err := c.callMethod(ctx, token, "photos.saveWallPhoto", params, &out); err != nil {
		return "", err
	}
	if len(out) == 0 {
		return "", fmt.Errorf("photos.saveWallPhoto returned no photos")
	}
	return fmt.Sprintf("photo%d_%d", out[0].OwnerID, out[0].ID), nil
}

func (c *Client) wallPost(ctx context.Context, token, groupID, text string, attachments []string) (*destination.PublishResult, error) {
	var out struct {
		PostID int64 `json:"post_id"`
	}
	params := url.Values{
		"owner_id":   {"-" + groupID},
		"from_group": {"1"},
		"message":    {text},
	}
	if len(attachments) > 0 {
		params.Set("attachments", strings.Join(attachments, ","))
	}
	if err := c.callMethod(ctx, token, "wall.post", params, &out); err != nil {
		return nil, fmt.Errorf("wall.post: %w", err)
	}

	return &destination.PublishResult{
		PostID:  fmt.Sprintf("%d", out.PostID),
		PostURL: fmt.Sprintf("https://vk.com/wall-%s_%d", groupID, out.PostID),
	}, nil
}

// apiError is VK's in-band error envelope; the API answers 200 even on
// failure, so the body must be inspected.
type apiError struct {
	Code    int    `json:"error_code"`
	Message string `json:"error_msg"`
}

func (e *apiError) Error() string {
	return fmt.Sprintf("vk api error %d: %s", e.Code, e.Message)
}

// callMethod performs one VK API method call and decodes the "response"
// field into out.
func (c *Client) callMethod(ctx context.Context, token, method string, params url.Values, out any) error {
	params.Set("access_token", token)
	params.Set("v", apiVersion)

	endpoint := fmt.Sprintf("%s/method/%s", c.apiBase, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(params.Encode()))
	if err != nil {
		return fmt.Errorf("build %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}
	defer c.closeBody(resp)

	if httpErr := httperr.FromResponse(resp); httpErr != nil {
		return fmt.Errorf("%s: %w", method, httpErr)
	}

	var envelope struct {
		Error    *apiError       `json:"error"`
		Response json.RawMessage `json:"response"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("decode %s response: %w", method, err)
	}
	if envelope.Error != nil {
		return fmt.Errorf("%s: %w", method, envelope.Error)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(envelope.Response, out); err != nil {
		return fmt.Errorf("decode %s payload: %w", method, err)
	}
	return nil
}

func (c *Client) closeBody(resp *http.Response) {
	if err := resp.Body.Close(); err != nil {
		c.logger.Warn("Failed to close response body", logger.Error(err))
	}
}
