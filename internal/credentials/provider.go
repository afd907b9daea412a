// Package credentials fetches per-destination tokens and account ids from
// the auth/token provider at publish time. Credentials are never kept in the
// publisher's own configuration.
package credentials

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/jonesrussell/social-publisher/internal/config"
	"github.com/jonesrussell/social-publisher/internal/httperr"
	"github.com/jonesrussell/social-publisher/internal/logger"
	"github.com/jonesrussell/social-publisher/internal/models"
)

// Provider resolves destination credentials for a campaign.
type Provider interface {
	GetDestinationCredentials(ctx context.Context, destinationName, campaignID string) (*models.DestinationCredentials, error)
}

// HTTPProvider fetches credentials from the token provider API.
type HTTPProvider struct {
	baseURL    string
	httpClient *http.Client
	logger     logger.Logger
}

// NewHTTPProvider creates a provider against the configured endpoint.
func NewHTTPProvider(cfg config.CredentialsConfig, log logger.Logger) *HTTPProvider {
	return &HTTPProvider{
		baseURL:    strings.TrimRight(cfg.URL, "/"),
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     log,
	}
}

// GetDestinationCredentials implements Provider. A provider answer without a
// token maps to ErrMissingCredentials so the dispatcher can mark the
// destination as requiring user action.
func (p *HTTPProvider) GetDestinationCredentials(ctx context.Context, destinationName, campaignID string) (*models.DestinationCredentials, error) {
	endpoint := fmt.Sprintf("%s/api/v1/credentials/%s?%s",
		p.baseURL, destinationName, url.Values{"campaign_id": {campaignID}}.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("build credentials request: %w", err)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get credentials for %s: %w", destinationName, err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			p.logger.Warn("Failed to close response body", logger.Error(closeErr))
		}
	}()

	if httpErr := httperr.FromResponse(resp); httpErr != nil {
		var he *httperr.Error
		if errors.As(httpErr, &he) && he.StatusCode == http.StatusNotFound {
			return nil, fmt.Errorf("%s for campaign %s: %w",
				destinationName, campaignID, models.ErrMissingCredentials)
		}
		return nil, fmt.Errorf("get credentials for %s: %w", destinationName, httpErr)
	}

	var creds models.DestinationCredentials
	if err := json.NewDecoder(resp.Body).Decode(&creds); err != nil {
		return nil, fmt.Errorf("decode credentials: %w", err)
	}
	if creds.Token == "" {
		return nil, fmt.Errorf("%s for campaign %s: %w",
			destinationName, campaignID, models.ErrMissingCredentials)
	}
	return &creds, nil
}
