// Package media normalizes media references and moves media bytes between
// origin storage and destinations that cannot fetch them directly.
package media

import (
	"net/url"
	"strings"

	"github.com/jonesrussell/social-publisher/internal/config"
	"github.com/jonesrussell/social-publisher/internal/logger"
)

// Resolver turns raw media URLs into URLs a destination can actually fetch.
type Resolver struct {
	baseURL      *url.URL
	storageHosts []string
	proxyPath    string
	logger       logger.Logger
}

// NewResolver creates a Resolver from the media configuration. The base URL
// must have been validated by config loading.
func NewResolver(cfg config.MediaConfig, log logger.Logger) (*Resolver, error) {
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, err
	}
	return &Resolver{
		baseURL:      base,
		storageHosts: cfg.StorageHosts,
		proxyPath:    cfg.ProxyPath,
		logger:       log,
	}, nil
}

// Resolve maps a raw media URL to a destination-fetchable URL.
// Rules, in order: a relative path resolves against the application base
// URL; a URL on an auth-gated storage host is rewritten through the
// streaming proxy; anything else passes through unchanged. Missing or
// malformed input yields an empty string, which callers treat as "no media".
func (r *Resolver) Resolve(rawURL string) string {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return ""
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		r.logger.Warn("Dropping malformed media URL",
			logger.String("url", rawURL),
			logger.Error(err),
		)
		return ""
	}

	if !parsed.IsAbs() {
		resolved := r.baseURL.ResolveReference(parsed)
		r.logger.Debug("Resolved relative media URL",
			logger.String("from", rawURL),
			logger.String("to", resolved.String()),
		)
		return resolved.String()
	}

	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		r.logger.Warn("Dropping media URL with unsupported scheme",
			logger.String("url", rawURL),
			logger.String("scheme", parsed.Scheme),
		)
		return ""
	}

	if r.needsProxy(parsed.Host) {
		return r.proxyURL(rawURL)
	}
	return rawURL
}

// NeedsUpload reports whether a destination that supports multipart uploads
// should receive this media as bytes rather than a URL: relative paths and
// auth-gated storage both require the reupload pipeline.
func (r *Resolver) NeedsUpload(rawURL string) bool {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return false
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	if !parsed.IsAbs() {
		return true
	}
	return r.needsProxy(parsed.Host)
}

// needsProxy reports whether the host is auth-gated origin storage that
// destinations cannot fetch directly.
func (r *Resolver) needsProxy(host string) bool {
	for _, storage := range r.storageHosts {
		if strings.EqualFold(host, storage) {
			return true
		}
	}
	return false
}

// proxyURL rewrites a storage URL to pass through the same-process
// streaming proxy, which makes auth-gated storage publicly fetchable for
// the duration of the request.
func (r *Resolver) proxyURL(rawURL string) string {
	proxied := *r.baseURL
	proxied.Path = r.proxyPath
	q := url.Values{}
	q.Set("url", rawURL)
	proxied.RawQuery = q.Encode()
	return proxied.String()
}
