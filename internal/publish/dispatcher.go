// Package publish dispatches one content item to its destinations. Each
// destination runs in its own goroutine behind a shared per-destination
// circuit breaker, a retry budget, and a rate limiter; one destination's
// failure never blocks or rolls back another's success.
package publish

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/jonesrussell/social-publisher/internal/classify"
	"github.com/jonesrussell/social-publisher/internal/config"
	"github.com/jonesrussell/social-publisher/internal/credentials"
	"github.com/jonesrussell/social-publisher/internal/destination"
	"github.com/jonesrussell/social-publisher/internal/format"
	"github.com/jonesrussell/social-publisher/internal/logger"
	"github.com/jonesrussell/social-publisher/internal/media"
	"github.com/jonesrussell/social-publisher/internal/metrics"
	"github.com/jonesrussell/social-publisher/internal/models"
	"github.com/jonesrussell/social-publisher/internal/resilience"
)

// ContentStore is the slice of the content store API the dispatcher uses.
type ContentStore interface {
	GetContent(ctx context.Context, contentID string) (*models.ContentItem, error)
	UpdateDestinationResult(ctx context.Context, contentID string, result *models.DestinationResult) error
	UpdateContentStatus(ctx context.Context, contentID string, status models.ContentStatus) error
}

// HistoryRecorder appends publish outcomes to the local history store.
type HistoryRecorder interface {
	RecordResult(ctx context.Context, contentID, campaignID string, result *models.DestinationResult) (*models.PublishHistory, error)
}

// Locker serializes publish attempts per content item.
type Locker interface {
	Acquire(ctx context.Context, contentID string) (release func(), err error)
}

// Dispatcher publishes content items.
type Dispatcher struct {
	store        ContentStore
	creds        credentials.Provider
	resolver     *media.Resolver
	formatter    *format.Formatter
	clients      map[string]destination.Client
	destinations map[string]config.DestinationConfig
	breakers     *resilience.BreakerRegistry
	retryCfg     resilience.RetryConfig
	limiters     map[string]*rate.Limiter
	locker       Locker
	history      HistoryRecorder
	metrics      *metrics.Metrics
	logger       logger.Logger
}

// Options carries the dispatcher's collaborators. Locker, History and
// Metrics are optional.
type Options struct {
	Store        ContentStore
	Credentials  credentials.Provider
	Resolver     *media.Resolver
	Clients      []destination.Client
	Destinations map[string]config.DestinationConfig
	Resilience   config.ResilienceConfig
	Locker       Locker
	History      HistoryRecorder
	Metrics      *metrics.Metrics
	Logger       logger.Logger
}

// NewDispatcher wires a Dispatcher from its collaborators.
func NewDispatcher(opts Options) *Dispatcher {
	clients := make(map[string]destination.Client, len(opts.Clients))
	for _, c := range opts.Clients {
		clients[c.Name()] = c
	}

	limiters := make(map[string]*rate.Limiter, len(opts.Destinations))
	for name, cfg := range opts.Destinations {
		rps := cfg.RateLimitRPS
		if rps <= 0 {
			rps = 1
		}
		limiters[name] = rate.NewLimiter(rate.Limit(rps), 1)
	}

	return &Dispatcher{
		store:        opts.Store,
		creds:        opts.Credentials,
		resolver:     opts.Resolver,
		formatter:    newFormatter(opts.Destinations),
		clients:      clients,
		destinations: opts.Destinations,
		breakers: resilience.NewBreakerRegistry(resilience.BreakerConfig{
			FailureThreshold: opts.Resilience.FailureThreshold,
			Timeout:          opts.Resilience.BreakerTimeout,
		}),
		retryCfg: resilience.RetryConfig{
			MaxRetries: opts.Resilience.MaxRetries,
			BaseDelay:  opts.Resilience.RetryBaseDelay,
			MaxDelay:   opts.Resilience.RetryMaxDelay,
		},
		limiters: limiters,
		locker:   opts.Locker,
		history:  opts.History,
		metrics:  opts.Metrics,
		logger:   opts.Logger,
	}
}

// newFormatter builds the per-destination profile table. Telegram is the
// only rich-markup destination; everything else gets plain text.
func newFormatter(destinations map[string]config.DestinationConfig) *format.Formatter {
	profiles := make([]format.Profile, 0, len(destinations))
	for name, cfg := range destinations {
		if name == "telegram" {
			profiles = append(profiles, format.ChatProfile(name, cfg.MaxLength, cfg.CaptionLimit))
			continue
		}
		profiles = append(profiles, format.PlainProfile(name, cfg.MaxLength, cfg.CaptionLimit))
	}
	return format.New(profiles...)
}

// BreakerStates exposes the per-destination breaker states for the status
// endpoint.
func (d *Dispatcher) BreakerStates() map[string]resilience.BreakerState {
	return d.breakers.States()
}

// ResetBreakers closes all destination breakers.
func (d *Dispatcher) ResetBreakers() {
	d.breakers.ResetAll()
}

// Publish delivers one content item to the requested destinations, or to
// the item's own destination list when none are given. Destinations run
// concurrently; the returned slice holds one result per destination in the
// requested order. Partial success is expected and is not an error.
func (d *Dispatcher) Publish(ctx context.Context, contentID string, destinations []string) ([]models.DestinationResult, error) {
	if d.locker != nil {
		release, err := d.locker.Acquire(ctx, contentID)
		if err != nil {
			return nil, err
		}
		defer release()
	}

	item, err := d.store.GetContent(ctx, contentID)
	if err != nil {
		return nil, err
	}

	if len(destinations) == 0 {
		destinations = item.Destinations
	}
	if len(destinations) == 0 {
		return nil, models.ErrContentHasNoDestinations
	}

	if err := d.store.UpdateContentStatus(ctx, contentID, models.ContentStatusPublishing); err != nil {
		d.logger.Warn("Failed to mark content as publishing",
			logger.String("content_id", contentID),
			logger.Error(err),
		)
	}

	results := make([]models.DestinationResult, len(destinations))
	var wg sync.WaitGroup
	for i, dest := range destinations {
		wg.Add(1)
		go func(i int, dest string) {
			defer wg.Done()
			results[i] = d.publishTo(ctx, item, dest)
		}(i, dest)
	}
	wg.Wait()

	d.finalizeStatus(ctx, contentID, results)
	return results, nil
}

// publishTo runs the full pipeline for one destination and always returns a
// result; failures are captured, redacted, and recorded, never propagated as
// a dispatch error.
func (d *Dispatcher) publishTo(ctx context.Context, item *models.ContentItem, dest string) models.DestinationResult {
	start := time.Now()
	result := models.DestinationResult{
		Destination: dest,
		Status:      models.ResultStatusPending,
		Timestamp:   start,
	}

	published, err := d.attempt(ctx, item, dest)
	if err != nil {
		c := classify.Classify(err)
		result.Status = models.ResultStatusFailed
		result.Error = resilience.RedactString(err.Error())
		result.Timestamp = time.Now()
		d.logger.Error("Publish failed",
			logger.String("content_id", item.ID),
			logger.String("destination", dest),
			logger.String("kind", string(c.Kind)),
			logger.Bool("requires_user_action", c.RequiresUserAction),
			logger.String("error", result.Error),
		)
	} else {
		result.Status = models.ResultStatusPublished
		result.PostID = published.PostID
		result.PostURL = published.PostURL
		result.Timestamp = time.Now()
		d.logger.Info("Published",
			logger.String("content_id", item.ID),
			logger.String("destination", dest),
			logger.String("post_id", published.PostID),
			logger.Duration("took", time.Since(start)),
		)
	}

	d.record(ctx, item, &result)
	d.observe(dest, &result, time.Since(start))
	return result
}

// attempt does the per-destination work: config and client checks,
// credentials, media resolution, formatting, then the resilient publish
// call.
func (d *Dispatcher) attempt(ctx context.Context, item *models.ContentItem, dest string) (*destination.PublishResult, error) {
	destCfg, ok := d.destinations[dest]
	if !ok {
		return nil, fmt.Errorf("%q: %w", dest, models.ErrUnknownDestination)
	}
	if !destCfg.Enabled {
		return nil, fmt.Errorf("%q: %w", dest, models.ErrDestinationDisabled)
	}
	client, ok := d.clients[dest]
	if !ok {
		return nil, fmt.Errorf("%q: %w", dest, models.ErrUnknownDestination)
	}

	creds, err := d.creds.GetDestinationCredentials(ctx, dest, item.CampaignID)
	if err != nil {
		return nil, err
	}

	text, err := d.formatText(item, dest)
	if err != nil {
		return nil, err
	}

	req := destination.PublishRequest{
		Credentials:  *creds,
		Text:         text,
		Media:        d.resolveMedia(item),
		CaptionLimit: destCfg.CaptionLimit,
	}

	if limiter, ok := d.limiters[dest]; ok {
		if err := limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit wait: %w", err)
		}
	}

	breaker := d.breakers.Get(dest)
	result, _, err := resilience.Retry(ctx, d.retryCfg, func(ctx context.Context) (*destination.PublishResult, error) {
		var published *destination.PublishResult
		execErr := breaker.Execute(ctx, func(ctx context.Context) error {
			var callErr error
			published, callErr = client.Publish(ctx, req)
			return callErr
		})
		return published, execErr
	})
	return result, err
}

// formatText renders the body for the destination and appends hashtags,
// re-checking the length so tags cannot push the text over the limit.
func (d *Dispatcher) formatText(item *models.ContentItem, dest string) (string, error) {
	text, err := d.formatter.Format(dest, item.Body)
	if err != nil {
		return "", err
	}
	if len(item.Hashtags) > 0 {
		withTags := format.AppendHashtags(text, item.Hashtags)
		profile, _ := d.formatter.Profile(dest)
		if profile.MaxLength > 0 && len([]rune(withTags)) > profile.MaxLength {
			d.logger.Warn("Dropping hashtags, text would exceed destination limit",
				logger.String("destination", dest),
			)
			return text, nil
		}
		text = withTags
	}
	return text, nil
}

// resolveMedia maps the item's media references to destination-fetchable
// URLs. Unresolvable references are dropped, not fatal.
func (d *Dispatcher) resolveMedia(item *models.ContentItem) []destination.ResolvedMedia {
	refs := item.AllMedia()
	resolved := make([]destination.ResolvedMedia, 0, len(refs))
	for _, ref := range refs {
		resolvedURL := d.resolver.Resolve(ref.URL)
		if resolvedURL == "" {
			continue
		}
		resolved = append(resolved, destination.ResolvedMedia{
			URL:    resolvedURL,
			Kind:   ref.Kind,
			Upload: ref.Origin == models.OriginLocalStorage || d.resolver.NeedsUpload(ref.URL),
		})
	}
	return resolved
}

// record writes the outcome to the content store and the history table.
// Both writes are best-effort: losing a status write must not turn a
// successful publish into a failure.
func (d *Dispatcher) record(ctx context.Context, item *models.ContentItem, result *models.DestinationResult) {
	if err := d.store.UpdateDestinationResult(ctx, item.ID, result); err != nil {
		d.logger.Warn("Failed to write destination result to content store",
			logger.String("content_id", item.ID),
			logger.String("destination", result.Destination),
			logger.Error(err),
		)
	}
	if d.history != nil {
		if _, err := d.history.RecordResult(ctx, item.ID, item.CampaignID, result); err != nil {
			d.logger.Warn("Failed to record publish history",
				logger.String("content_id", item.ID),
				logger.String("destination", result.Destination),
				logger.Error(err),
			)
		}
	}
}

func (d *Dispatcher) observe(dest string, result *models.DestinationResult, took time.Duration) {
	if d.metrics == nil {
		return
	}
	d.metrics.PublishAttempts.WithLabelValues(dest, string(result.Status)).Inc()
	d.metrics.PublishDuration.WithLabelValues(dest).Observe(took.Seconds())
	d.metrics.BreakerState.WithLabelValues(dest).Set(float64(d.breakers.Get(dest).State()))
}

// finalizeStatus moves the item to published when at least one destination
// succeeded, failed when none did.
func (d *Dispatcher) finalizeStatus(ctx context.Context, contentID string, results []models.DestinationResult) {
	status := models.ContentStatusFailed
	for i := range results {
		if results[i].Published() {
			status = models.ContentStatusPublished
			break
		}
	}
	if err := d.store.UpdateContentStatus(ctx, contentID, status); err != nil {
		d.logger.Warn("Failed to finalize content status",
			logger.String("content_id", contentID),
			logger.String("status", string(status)),
			logger.Error(err),
		)
	}
}

// IsUserActionable reports whether an error needs caller intervention before
// a retry can succeed. Used by the API layer to choose a response code.
func IsUserActionable(err error) bool {
	if errors.Is(err, models.ErrMissingCredentials) {
		return true
	}
	return classify.Classify(err).RequiresUserAction
}
