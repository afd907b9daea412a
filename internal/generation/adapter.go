// Package generation orchestrates asynchronous media-generation jobs against
// interchangeable provider adapters: submit, poll to completion, extract
// result URLs.
package generation

import (
	"context"
	"errors"
	"fmt"

	"github.com/jonesrussell/social-publisher/internal/models"
)

var (
	// ErrUnknownModel is returned when no adapter serves the requested model.
	ErrUnknownModel = errors.New("unknown generation model")

	// ErrMalformedProviderResponse is returned when a provider response lacks
	// required fields (e.g., no job id on submission). Never retried.
	ErrMalformedProviderResponse = errors.New("malformed provider response")

	// ErrGenerationFailed is returned when the provider reports a job as
	// failed or canceled. The wrapped detail carries the provider's reason.
	ErrGenerationFailed = errors.New("generation job failed")

	// ErrGenerationTimedOut is returned when a job does not complete within
	// the polling budget.
	ErrGenerationTimedOut = errors.New("generation timed out")
)

// JobHandle identifies a submitted job at its provider, including the poll
// and result locations the provider handed back.
type JobHandle struct {
	ID          string
	StatusURL   string
	ResponseURL string
}

// StatusReport is one poll observation. Payload is the decoded result body
// and is only set when Status is completed.
type StatusReport struct {
	Status  models.JobStatus
	Detail  string
	Payload any
}

// Adapter is the per-provider/model contract: build the request shape the
// provider expects, submit it, poll it, and read result URLs out of the
// provider's response shape.
type Adapter interface {
	Model() string
	BuildSubmitRequest(req models.GenerationRequest) (any, error)
	Submit(ctx context.Context, body any) (*JobHandle, error)
	CheckStatus(ctx context.Context, job *JobHandle) (*StatusReport, error)
	ExtractResultURLs(payload any) []string
}

// Registry resolves model ids to adapters.
type Registry struct {
	adapters map[string]Adapter
}

// NewRegistry builds a Registry over the given adapters, keyed by model id.
func NewRegistry(adapters ...Adapter) *Registry {
	m := make(map[string]Adapter, len(adapters))
	for _, a := range adapters {
		m[a.Model()] = a
	}
	return &Registry{adapters: m}
}

// Adapter returns the adapter for a model id.
func (r *Registry) Adapter(model string) (Adapter, error) {
	a, ok := r.adapters[model]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownModel, model)
	}
	return a, nil
}

// Models lists the registered model ids.
func (r *Registry) Models() []string {
	ids := make([]string, 0, len(r.adapters))
	for id := range r.adapters {
		ids = append(ids, id)
	}
	return ids
}

// clampImageCount clamps a requested image count into [min, max]. Out-of-range
// requests are clamped, never rejected.
func clampImageCount(n, min, max int) int {
	if n < min {
		return min
	}
	if n > max {
		return max
	}
	return n
}
