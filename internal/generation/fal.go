package generation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/jonesrussell/social-publisher/internal/httperr"
	"github.com/jonesrussell/social-publisher/internal/logger"
	"github.com/jonesrussell/social-publisher/internal/models"
)

// falModelSpec is one row of the fal.ai model table: the queue path the
// model is served under, its request-shape builder, and the image-count
// range it accepts. Adding a model means adding a row.
type falModelSpec struct {
	path      string
	minImages int
	maxImages int
	buildBody func(req models.GenerationRequest, numImages int) map[string]any
}

// falModels maps public model ids to their queue specs.
var falModels = map[string]falModelSpec{
	"flux/schnell": {
		path:      "fal-ai/flux/schnell",
		minImages: 1,
		maxImages: 6,
		buildBody: fluxBody,
	},
	"flux/dev": {
		path:      "fal-ai/flux/dev",
		minImages: 1,
		maxImages: 6,
		buildBody: fluxBody,
	},
	"fast-sdxl": {
		path:      "fal-ai/fast-sdxl",
		minImages: 1,
		maxImages: 6,
		buildBody: sdxlBody,
	},
}

func fluxBody(req models.GenerationRequest, numImages int) map[string]any {
	body := map[string]any{
		"prompt":     req.Prompt,
		"num_images": numImages,
	}
	if req.Width > 0 && req.Height > 0 {
		body["image_size"] = map[string]any{"width": req.Width, "height": req.Height}
	}
	return body
}

func sdxlBody(req models.GenerationRequest, numImages int) map[string]any {
	body := map[string]any{
		"prompt":     req.Prompt,
		"num_images": numImages,
	}
	if req.NegativePrompt != "" {
		body["negative_prompt"] = req.NegativePrompt
	}
	if req.Width > 0 && req.Height > 0 {
		body["image_size"] = map[string]any{"width": req.Width, "height": req.Height}
	}
	return body
}

// FalAdapter publishes generation jobs to fal.ai's queue API. One adapter
// instance serves one model id.
type FalAdapter struct {
	model   string
	spec    falModelSpec
	baseURL string
	apiKey  string
	client  *http.Client
	logger  logger.Logger
}

// NewFalAdapters creates one adapter per known fal.ai model.
func NewFalAdapters(baseURL, apiKey string, client *http.Client, log logger.Logger) []Adapter {
	adapters := make([]Adapter, 0, len(falModels))
	for model, spec := range falModels {
		adapters = append(adapters, &FalAdapter{
			model:   model,
			spec:    spec,
			baseURL: strings.TrimRight(baseURL, "/"),
			apiKey:  apiKey,
			client:  client,
			logger:  log,
		})
	}
	return adapters
}

// Model returns the public model id this adapter serves.
func (a *FalAdapter) Model() string { return a.model }

// BuildSubmitRequest builds the provider request body, clamping the image
// count to the model's supported range.
func (a *FalAdapter) BuildSubmitRequest(req models.GenerationRequest) (any, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return nil, fmt.Errorf("generation prompt is required")
	}
	numImages := clampImageCount(req.NumImages, a.spec.minImages, a.spec.maxImages)
	if numImages != req.NumImages {
		a.logger.Debug("Clamped requested image count",
			logger.String("model", a.model),
			logger.Int("requested", req.NumImages),
			logger.Int("clamped", numImages),
		)
	}
	return a.spec.buildBody(req, numImages), nil
}

// falSubmitResponse is the queue submission envelope.
type falSubmitResponse struct {
	RequestID   string `json:"request_id"`
	StatusURL   string `json:"status_url"`
	ResponseURL string `json:"response_url"`
	Status      string `json:"status"`
}

// Submit enqueues the job. A response without a request id fails immediately
// as malformed; there is nothing to poll.
func (a *FalAdapter) Submit(ctx context.Context, body any) (*JobHandle, error) {
	endpoint := a.baseURL + "/" + a.spec.path

	var parsed falSubmitResponse
	if err := a.doJSON(ctx, http.MethodPost, endpoint, body, &parsed); err != nil {
		return nil, fmt.Errorf("submit generation job: %w", err)
	}
	if parsed.RequestID == "" {
		return nil, fmt.Errorf("%w: submission returned no request id", ErrMalformedProviderResponse)
	}

	handle := &JobHandle{
		ID:          parsed.RequestID,
		StatusURL:   parsed.StatusURL,
		ResponseURL: parsed.ResponseURL,
	}
	if handle.StatusURL == "" {
		handle.StatusURL = fmt.Sprintf("%s/requests/%s/status", endpoint, parsed.RequestID)
	}
	if handle.ResponseURL == "" {
		handle.ResponseURL = fmt.Sprintf("%s/requests/%s", endpoint, parsed.RequestID)
	}

	a.logger.Info("Submitted generation job",
		logger.String("model", a.model),
		logger.String("request_id", parsed.RequestID),
	)
	return handle, nil
}

// falStatusResponse is the queue status envelope.
type falStatusResponse struct {
	Status string `json:"status"`
	Error  string `json:"error"`
}

// CheckStatus polls the job and, once the provider reports completion,
// fetches the result payload from the response URL.
func (a *FalAdapter) CheckStatus(ctx context.Context, job *JobHandle) (*StatusReport, error) {
	var status falStatusResponse
	if err := a.doJSON(ctx, http.MethodGet, job.StatusURL, nil, &status); err != nil {
		return nil, fmt.Errorf("check generation status: %w", err)
	}

	switch strings.ToUpper(status.Status) {
	case "IN_QUEUE":
		return &StatusReport{Status: models.JobStatusQueued}, nil
	case "IN_PROGRESS":
		return &StatusReport{Status: models.JobStatusRunning}, nil
	case "COMPLETED":
		var payload any
		if err := a.doJSON(ctx, http.MethodGet, job.ResponseURL, nil, &payload); err != nil {
			return nil, fmt.Errorf("fetch generation result: %w", err)
		}
		return &StatusReport{Status: models.JobStatusCompleted, Payload: payload}, nil
	case "FAILED", "CANCELED":
		detail := status.Error
		if detail == "" {
			detail = strings.ToLower(status.Status)
		}
		return &StatusReport{Status: models.JobStatusFailed, Detail: detail}, nil
	default:
		return nil, fmt.Errorf("%w: unexpected job status %q", ErrMalformedProviderResponse, status.Status)
	}
}

// ExtractResultURLs reads media URLs out of the provider's result payload.
func (a *FalAdapter) ExtractResultURLs(payload any) []string {
	return ExtractMediaURLs(payload)
}

// doJSON performs one authenticated JSON round trip against the queue API.
func (a *FalAdapter) doJSON(ctx context.Context, method, endpoint string, body, out any) error {
	var reqBody io.Reader = http.NoBody
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
		reqBody = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reqBody)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Key "+a.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			a.logger.Warn("Failed to close response body", logger.Error(closeErr))
		}
	}()

	if httpErr := httperr.FromResponse(resp); httpErr != nil {
		return httpErr
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedProviderResponse, err)
	}
	return nil
}
