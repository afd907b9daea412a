package api

import (
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/jonesrussell/social-publisher/internal/config"
	"github.com/jonesrussell/social-publisher/internal/logger"
)

// MediaProxy streams media from auth-gated origin storage so destinations
// can fetch it through a public URL for the duration of a publish. Only the
// configured storage hosts are reachable through it.
type MediaProxy struct {
	allowedHosts []string
	token        string
	httpClient   *http.Client
	logger       logger.Logger
}

// NewMediaProxy creates a MediaProxy for the configured storage hosts. The
// content store token authenticates against origin storage.
func NewMediaProxy(mediaCfg config.MediaConfig, token string, log logger.Logger) *MediaProxy {
	return &MediaProxy{
		allowedHosts: mediaCfg.StorageHosts,
		token:        token,
		httpClient:   &http.Client{Timeout: mediaCfg.DownloadTimeout},
		logger:       log,
	}
}

// Stream handles GET /media/proxy?url=...
func (p *MediaProxy) Stream(c *gin.Context) {
	rawURL := c.Query("url")
	if rawURL == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "url query parameter is required"})
		return
	}

	parsed, err := url.Parse(rawURL)
	if err != nil || !parsed.IsAbs() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "url must be absolute"})
		return
	}
	if !p.hostAllowed(parsed.Host) {
		// The proxy is not an open relay.
		c.JSON(http.StatusForbidden, gin.H{"error": "host is not proxied"})
		return
	}

	req, err := http.NewRequestWithContext(c.Request.Context(), http.MethodGet, rawURL, http.NoBody)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid url"})
		return
	}
	if p.token != "" {
		req.Header.Set("Authorization", "Bearer "+p.token)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		p.logger.Error("Media proxy fetch failed",
			logger.String("url", rawURL),
			logger.Error(err),
		)
		c.JSON(http.StatusBadGateway, gin.H{"error": "failed to fetch media"})
		return
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			p.logger.Warn("Failed to close proxied body", logger.Error(closeErr))
		}
	}()

	if resp.StatusCode >= http.StatusBadRequest {
		c.JSON(http.StatusBadGateway, gin.H{"error": "origin storage refused the request"})
		return
	}

	c.Header("Content-Type", resp.Header.Get("Content-Type"))
	if length := resp.Header.Get("Content-Length"); length != "" {
		c.Header("Content-Length", length)
	}
	c.Status(http.StatusOK)
	if _, err := io.Copy(c.Writer, resp.Body); err != nil {
		p.logger.Warn("Media proxy stream interrupted",
			logger.String("url", rawURL),
			logger.Error(err),
		)
	}
}

func (p *MediaProxy) hostAllowed(host string) bool {
	for _, allowed := range p.allowedHosts {
		if strings.EqualFold(host, allowed) {
			return true
		}
	}
	return false
}
