package media

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"strings"

	"github.com/jonesrussell/social-publisher/internal/config"
	"github.com/jonesrussell/social-publisher/internal/httperr"
	"github.com/jonesrussell/social-publisher/internal/logger"
	"github.com/jonesrussell/social-publisher/internal/metrics"
)

// suspiciousPayloadBytes is the size below which a downloaded media file is
// probably an error page rather than an image.
const suspiciousPayloadBytes = 1024

// Downloader fetches media into scoped temp files for reupload to
// destinations that only accept multipart file uploads.
type Downloader struct {
	client   *http.Client
	tempDir  string
	maxBytes int64
	metrics  *metrics.Metrics
	logger   logger.Logger
}

// NewDownloader creates a Downloader from the media configuration. The
// metrics sink may be nil.
func NewDownloader(cfg config.MediaConfig, m *metrics.Metrics, log logger.Logger) *Downloader {
	return &Downloader{
		client:   &http.Client{Timeout: cfg.DownloadTimeout},
		tempDir:  cfg.TempDir,
		maxBytes: cfg.MaxDownloadBytes,
		metrics:  m,
		logger:   log,
	}
}

// WithDownload downloads rawURL to a temp file, invokes fn with the local
// path and payload size, and removes the file afterwards regardless of the
// outcome. The download is streamed and capped at the configured byte limit.
func (d *Downloader) WithDownload(ctx context.Context, rawURL string, fn func(path string, size int64) error) error {
	return WithTempFile(d.tempDir, suffixFor(rawURL), func(localPath string) error {
		size, err := d.fetch(ctx, rawURL, localPath)
		if err != nil {
			return err
		}
		return fn(localPath, size)
	})
}

func (d *Downloader) fetch(ctx context.Context, rawURL, localPath string) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, http.NoBody)
	if err != nil {
		return 0, fmt.Errorf("build download request: %w", err)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("download media: %w", err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			d.logger.Warn("Failed to close download body", logger.Error(closeErr))
		}
	}()

	if httpErr := httperr.FromResponse(resp); httpErr != nil {
		return 0, fmt.Errorf("download media: %w", httpErr)
	}

	out, err := os.OpenFile(localPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return 0, fmt.Errorf("create temp file: %w", err)
	}

	size, copyErr := io.Copy(out, io.LimitReader(resp.Body, d.maxBytes+1))
	if closeErr := out.Close(); copyErr == nil {
		copyErr = closeErr
	}
	if copyErr != nil {
		return 0, fmt.Errorf("write media payload: %w", copyErr)
	}

	if size > d.maxBytes {
		return 0, fmt.Errorf("media payload exceeds %d byte limit", d.maxBytes)
	}
	if size == 0 {
		return 0, fmt.Errorf("media payload is empty: %s", rawURL)
	}
	if size < suspiciousPayloadBytes {
		d.logger.Warn("Downloaded media is suspiciously small",
			logger.String("url", rawURL),
			logger.Int64("bytes", size),
		)
	}

	if d.metrics != nil {
		d.metrics.MediaDownloads.Inc()
		d.metrics.MediaUploadBytes.Add(float64(size))
	}

	d.logger.Debug("Downloaded media",
		logger.String("url", rawURL),
		logger.Int64("bytes", size),
	)
	return size, nil
}

// suffixFor preserves the URL's file extension so multipart uploads carry a
// recognizable filename.
func suffixFor(rawURL string) string {
	trimmed := rawURL
	if i := strings.IndexAny(trimmed, "?#"); i >= 0 {
		trimmed = trimmed[:i]
	}
	ext := path.Ext(trimmed)
	if ext == "" || len(ext) > 8 {
		return ".bin"
	}
	return ext
}
