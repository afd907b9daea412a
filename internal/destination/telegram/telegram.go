// Package telegram publishes content to Telegram chats and channels via the
// Bot API.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/jonesrussell/social-publisher/internal/destination"
	"github.com/jonesrussell/social-publisher/internal/httperr"
	"github.com/jonesrussell/social-publisher/internal/logger"
	"github.com/jonesrussell/social-publisher/internal/media"
	"github.com/jonesrussell/social-publisher/internal/models"
	"github.com/jonesrussell/social-publisher/internal/resilience"
)

// DefaultAPIBase is the production Bot API endpoint.
const DefaultAPIBase = "https://api.telegram.org"

// channelPrefix is the Bot API convention for channel/supergroup ids: the
// internal id with "-100" prepended.
const channelPrefix = "-100"

// Config holds the Telegram client knobs.
type Config struct {
	// APIBase overrides the Bot API endpoint, for tests.
	APIBase string
	// ChatIDFallback enables one retry with the alternate chat-id prefix
	// convention when the configured id is rejected.
	ChatIDFallback bool
}

// Client publishes to Telegram. Media the destination cannot fetch by URL is
// downloaded and reuploaded as a multipart file.
type Client struct {
	apiBase        string
	chatIDFallback bool
	downloader     *media.Downloader
	httpClient     *http.Client
	logger         logger.Logger
}

// New creates a Telegram client.
func New(cfg Config, downloader *media.Downloader, httpClient *http.Client, log logger.Logger) *Client {
	apiBase := cfg.APIBase
	if apiBase == "" {
		apiBase = DefaultAPIBase
	}
	return &Client{
		apiBase:        strings.TrimRight(apiBase, "/"),
		chatIDFallback: cfg.ChatIDFallback,
		downloader:     downloader,
		httpClient:     httpClient,
		logger:         log,
	}
}

// Name implements destination.Client.
func (c *Client) Name() string { return "telegram" }

// Publish sends the request as one message, a captioned media message, or a
// media-then-text pair depending on media count and caption fit.
func (c *Client) Publish(ctx context.Context, req destination.PublishRequest) (*destination.PublishResult, error) {
	switch {
	case len(req.Media) == 0:
		msg, err := c.withChatIDFallback(req.Credentials.AccountID, func(chatID string) (*message, error) {
			return c.sendMessage(ctx, req.Credentials.Token, chatID, req.Text)
		})
		if err != nil {
			return nil, err
		}
		return resultFrom(msg), nil
	case len(req.Media) == 1:
		return c.publishSingle(ctx, req)
	default:
		return c.publishGroup(ctx, req)
	}
}

// publishSingle sends one media item. Text within the caption limit rides
// along as the caption; longer text follows as a second message because the
// API rejects long captions.
func (c *Client) publishSingle(ctx context.Context, req destination.PublishRequest) (*destination.PublishResult, error) {
	caption, followUp := splitCaption(req.Text, req.CaptionLimit)

	msg, err := c.withChatIDFallback(req.Credentials.AccountID, func(chatID string) (*message, error) {
		return c.sendMedia(ctx, req.Credentials.Token, chatID, req.Media[0], caption)
	})
	if err != nil {
		return nil, err
	}

	if followUp != "" {
		if _, err := c.withChatIDFallback(req.Credentials.AccountID, func(chatID string) (*message, error) {
			return c.sendMessage(ctx, req.Credentials.Token, chatID, followUp)
		}); err != nil {
			return nil, fmt.Errorf("media sent but text follow-up failed: %w", err)
		}
	}
	return resultFrom(msg), nil
}

// publishGroup sends several media items as an album via sendMediaGroup,
// with the caption on the first item when it fits. An album request cannot
// mix multipart file uploads with URL references, so when any item needs its
// bytes uploaded the album degrades to sequential single sends, which reuse
// the per-item upload and reupload paths.
func (c *Client) publishGroup(ctx context.Context, req destination.PublishRequest) (*destination.PublishResult, error) {
	caption, followUp := splitCaption(req.Text, req.CaptionLimit)

	send := func(chatID string) (*message, error) {
		return c.sendMediaGroup(ctx, req.Credentials.Token, chatID, req.Media, caption)
	}
	if anyNeedsUpload(req.Media) {
		c.logger.Debug("Album contains upload media, sending items individually",
			logger.Int("count", len(req.Media)),
		)
		send = func(chatID string) (*message, error) {
			return c.sendGroupAsSingles(ctx, req.Credentials.Token, chatID, req.Media, caption)
		}
	}

	msg, err := c.withChatIDFallback(req.Credentials.AccountID, send)
	if err != nil {
		return nil, err
	}

	if followUp != "" {
		if _, err := c.withChatIDFallback(req.Credentials.AccountID, func(chatID string) (*message, error) {
			return c.sendMessage(ctx, req.Credentials.Token, chatID, followUp)
		}); err != nil {
			return nil, fmt.Errorf("media group sent but text follow-up failed: %w", err)
		}
	}
	return resultFrom(msg), nil
}

// splitCaption decides single-vs-split dispatch: text within the limit is a
// caption, text above it is sent separately with no caption on the media.
func splitCaption(text string, limit int) (caption, followUp string) {
	if limit > 0 && len([]rune(text)) > limit {
		return "", text
	}
	return text, ""
}

// withChatIDFallback runs fn with the configured chat id, retrying once with
// the alternate "-100" prefix convention when the primary form is rejected
// as a bad chat. The configured id is always tried first.
func (c *Client) withChatIDFallback(chatID string, fn func(chatID string) (*message, error)) (*message, error) {
	msg, err := fn(chatID)
	if err == nil {
		return msg, nil
	}

	alternate := alternateChatID(chatID)
	if !c.chatIDFallback || alternate == "" || !isChatRejection(err) {
		return nil, err
	}

	c.logger.Warn("Chat id rejected, retrying with alternate prefix form",
		logger.String("chat_id", chatID),
		logger.String("alternate", alternate),
	)
	msg, altErr := fn(alternate)
	if altErr != nil {
		// Surface the primary error; the fallback was best-effort.
		return nil, err
	}
	return msg, nil
}

// alternateChatID returns the other prefix convention for a numeric chat id,
// or "" when no alternate exists (usernames, already-ambiguous ids).
func alternateChatID(chatID string) string {
	if strings.HasPrefix(chatID, "@") {
		return ""
	}
	if rest, ok := strings.CutPrefix(chatID, channelPrefix); ok && rest != "" {
		return rest
	}
	if chatID != "" && !strings.HasPrefix(chatID, "-") {
		return channelPrefix + chatID
	}
	return ""
}

// isChatRejection reports whether the API refused the chat id itself rather
// than failing for an unrelated reason.
func isChatRejection(err error) bool {
	var he *httperr.Error
	if !errors.As(err, &he) {
		return false
	}
	if he.StatusCode != http.StatusBadRequest && he.StatusCode != http.StatusForbidden {
		return false
	}
	msg := strings.ToLower(he.Message)
	return strings.Contains(msg, "chat not found") ||
		strings.Contains(msg, "chat_id") ||
		strings.Contains(msg, "kicked") ||
		strings.Contains(msg, "not a member")
}

// message is the subset of the Bot API Message object the publisher needs.
type message struct {
	MessageID int64 `json:"message_id"`
	Chat      struct {
		ID       int64  `json:"id"`
		Username string `json:"username"`
	} `json:"chat"`
}

// apiEnvelope is the Bot API response wrapper.
type apiEnvelope struct {
	OK          bool            `json:"ok"`
	Description string          `json:"description"`
	Result      json.RawMessage `json:"result"`
}

func (c *Client) sendMessage(ctx context.Context, token, chatID, text string) (*message, error) {
	return c.callJSON(ctx, token, "sendMessage", map[string]any{
		"chat_id":    chatID,
		"text":       text,
		"parse_mode": "HTML",
	})
}

// sendMedia sends one photo or video. URL references go as-is; the Bot API
// fetches them itself and rejects hosts it cannot reach, so a rejected
// reference falls back to downloading the bytes and reuploading them as a
// multipart file.
func (c *Client) sendMedia(ctx context.Context, token, chatID string, m destination.ResolvedMedia, caption string) (*message, error) {
	method, field := methodFor(m.Kind)

	if m.Upload {
		return c.uploadMedia(ctx, token, chatID, method, field, m.URL, caption)
	}

	res, err := resilience.Fallback(ctx,
		func(ctx context.Context) (*message, error) {
			params := map[string]any{
				"chat_id":    chatID,
				field:        m.URL,
				"parse_mode": "HTML",
			}
			if caption != "" {
				params["caption"] = caption
			}
			return c.callJSON(ctx, token, method, params)
		},
		func(ctx context.Context) (*message, error) {
			return c.uploadMedia(ctx, token, chatID, method, field, m.URL, caption)
		},
	)
	if err != nil {
		return nil, err
	}
	if res.Source != "primary" {
		c.logger.Warn("URL reference rejected, media reuploaded",
			logger.String("method", method),
			logger.Error(res.PrimaryErr),
		)
	}
	return res.Value, nil
}

// uploadMedia downloads the asset into a scoped temp file and sends it as a
// multipart upload.
func (c *Client) uploadMedia(ctx context.Context, token, chatID, method, field, rawURL, caption string) (*message, error) {
	var msg *message
	err := c.downloader.WithDownload(ctx, rawURL, func(localPath string, _ int64) error {
		fields := map[string]string{
			"chat_id":    chatID,
			"parse_mode": "HTML",
		}
		if caption != "" {
			fields["caption"] = caption
		}
		sent, uploadErr := c.callMultipart(ctx, token, method, field, localPath, fields)
		if uploadErr != nil {
			return uploadErr
		}
		msg = sent
		return nil
	})
	if err != nil {
		return nil, err
	}
	return msg, nil
}

// anyNeedsUpload reports whether any item carries bytes the destination
// cannot fetch by URL.
func anyNeedsUpload(items []destination.ResolvedMedia) bool {
	for _, m := range items {
		if m.Upload {
			return true
		}
	}
	return false
}

// sendGroupAsSingles delivers album items one message at a time, caption on
// the first. The first message anchors the reported post id.
func (c *Client) sendGroupAsSingles(ctx context.Context, token, chatID string, items []destination.ResolvedMedia, caption string) (*message, error) {
	var first *message
	for i, m := range items {
		itemCaption := ""
		if i == 0 {
			itemCaption = caption
		}
		msg, err := c.sendMedia(ctx, token, chatID, m, itemCaption)
		if err != nil {
			if i > 0 {
				return nil, fmt.Errorf("album item %d of %d failed, %d already sent: %w", i+1, len(items), i, err)
			}
			return nil, err
		}
		if first == nil {
			first = msg
		}
	}
	return first, nil
}

// sendMediaGroup sends an album of URL references in one request; callers
// route upload-required items through sendGroupAsSingles instead.
func (c *Client) sendMediaGroup(ctx context.Context, token, chatID string, items []destination.ResolvedMedia, caption string) (*message, error) {
	group := make([]map[string]any, 0, len(items))
	for i, m := range items {
		entry := map[string]any{
			"type":  groupTypeFor(m.Kind),
			"media": m.URL,
		}
		if i == 0 && caption != "" {
			entry["caption"] = caption
			entry["parse_mode"] = "HTML"
		}
		group = append(group, entry)
	}

	params := map[string]any{
		"chat_id": chatID,
		"media":   group,
	}

	raw, err := c.call(ctx, token, "sendMediaGroup", params)
	if err != nil {
		return nil, err
	}
	var msgs []message
	if err := json.Unmarshal(raw, &msgs); err != nil {
		return nil, fmt.Errorf("decode media group response: %w", err)
	}
	if len(msgs) == 0 {
		return nil, fmt.Errorf("media group response contained no messages")
	}
	return &msgs[0], nil
}

func methodFor(kind models.MediaKind) (method, field string) {
	if kind == models.MediaKindVideo {
		return "sendVideo", "video"
	}
	return "sendPhoto", "photo"
}

func groupTypeFor(kind models.MediaKind) string {
	if kind == models.MediaKindVideo {
		return "video"
	}
	return "photo"
}

func (c *Client) callJSON(ctx context.Context, token, method string, params map[string]any) (*message, error) {
	raw, err := c.call(ctx, token, method, params)
	if err != nil {
		return nil, err
	}
	var msg message
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, fmt.Errorf("decode %s response: %w", method, err)
	}
	return &msg, nil
}

// call performs one Bot API request and unwraps the response envelope.
func (c *Client) call(ctx context.Context, token, method string, params map[string]any) (json.RawMessage, error) {
	encoded, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("encode %s request: %w", method, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.methodURL(token, method), bytes.NewReader(encoded))
	if err != nil {
		return nil, fmt.Errorf("build %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")

	return c.do(req, method)
}

// callMultipart performs one Bot API request carrying a file upload.
func (c *Client) callMultipart(ctx context.Context, token, method, fileField, localPath string, fields map[string]string) (*message, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	for name, value := range fields {
		if err := writer.WriteField(name, value); err != nil {
			return nil, fmt.Errorf("write %s field: %w", name, err)
		}
	}

	file, err := os.Open(localPath)
	if err != nil {
		return nil, fmt.Errorf("open media file: %w", err)
	}
	part, err := writer.CreateFormFile(fileField, filepath.Base(localPath))
	if err == nil {
		_, err = io.Copy(part, file)
	}
	if closeErr := file.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return nil, fmt.Errorf("write media payload: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("finalize multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.methodURL(token, method), &buf)
	if err != nil {
		return nil, fmt.Errorf("build %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	raw, err := c.do(req, method)
	if err != nil {
		return nil, err
	}
	var msg message
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, fmt.Errorf("decode %s response: %w", method, err)
	}
	return &msg, nil
}

func (c *Client) do(req *http.Request, method string) (json.RawMessage, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", method, err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			c.logger.Warn("Failed to close response body", logger.Error(closeErr))
		}
	}()

	if httpErr := httperr.FromResponse(resp); httpErr != nil {
		return nil, fmt.Errorf("%s: %w", method, httpErr)
	}

	var envelope apiEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, fmt.Errorf("decode %s envelope: %w", method, err)
	}
	if !envelope.OK {
		return nil, fmt.Errorf("%s rejected: %s", method, envelope.Description)
	}
	return envelope.Result, nil
}

func (c *Client) methodURL(token, method string) string {
	return fmt.Sprintf("%s/bot%s/%s", c.apiBase, token, method)
}

// resultFrom builds the publish result, including a t.me link when the chat
// is addressable (public username or channel internal id).
func resultFrom(msg *message) *destination.PublishResult {
	result := &destination.PublishResult{
		PostID: fmt.Sprintf("%d", msg.MessageID),
	}
	switch {
	case msg.Chat.Username != "":
		result.PostURL = fmt.Sprintf("https://t.me/%s/%d", msg.Chat.Username, msg.MessageID)
	case msg.Chat.ID < 0:
		internal := strings.TrimPrefix(fmt.Sprintf("%d", msg.Chat.ID), channelPrefix)
		internal = strings.TrimPrefix(internal, "-")
		result.PostURL = fmt.Sprintf("https://t.me/c/%s/%d", internal, msg.MessageID)
	}
	return result
}
