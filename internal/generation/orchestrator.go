package generation

import (
	"context"
	"fmt"
	"time"

	"github.com/jonesrussell/social-publisher/internal/config"
	"github.com/jonesrussell/social-publisher/internal/logger"
	"github.com/jonesrussell/social-publisher/internal/models"
)

// Orchestrator drives a generation job through submit, poll, and extract
// against whichever adapter serves the requested model.
type Orchestrator struct {
	registry     *Registry
	pollInterval time.Duration
	pollBudget   time.Duration
	logger       logger.Logger
}

// NewOrchestrator creates an Orchestrator over a registry using the
// configured polling cadence.
func NewOrchestrator(registry *Registry, cfg config.GenerationConfig, log logger.Logger) *Orchestrator {
	return &Orchestrator{
		registry:     registry,
		pollInterval: cfg.PollInterval,
		pollBudget:   cfg.PollBudget,
		logger:       log,
	}
}

// Models lists the model ids this orchestrator can serve.
func (o *Orchestrator) Models() []string {
	return o.registry.Models()
}

// Generate runs one job to completion and returns the extracted media URLs.
// The poll loop honors both the caller's context and the configured budget;
// a caller that abandons the job cancels the polling with it.
func (o *Orchestrator) Generate(ctx context.Context, req models.GenerationRequest) ([]string, error) {
	adapter, err := o.registry.Adapter(req.Model)
	if err != nil {
		return nil, err
	}

	body, err := adapter.BuildSubmitRequest(req)
	if err != nil {
		return nil, err
	}

	job, err := adapter.Submit(ctx, body)
	if err != nil {
		return nil, err
	}

	payload, err := o.poll(ctx, adapter, job)
	if err != nil {
		return nil, err
	}

	urls := adapter.ExtractResultURLs(payload)
	if len(urls) == 0 {
		return nil, fmt.Errorf("%w: completed job %s yielded no media URLs",
			ErrMalformedProviderResponse, job.ID)
	}

	o.logger.Info("Generation job completed",
		logger.String("model", req.Model),
		logger.String("request_id", job.ID),
		logger.Int("urls", len(urls)),
	)
	return urls, nil
}

// poll waits for the job to finish within the budget. Provider-reported
// failure surfaces immediately with the provider's detail; budget exhaustion
// surfaces as a dedicated timeout error.
func (o *Orchestrator) poll(ctx context.Context, adapter Adapter, job *JobHandle) (any, error) {
	ctx, cancel := context.WithTimeout(ctx, o.pollBudget)
	defer cancel()

	ticker := time.NewTicker(o.pollInterval)
	defer ticker.Stop()

	for {
		report, err := adapter.CheckStatus(ctx, job)
		if err != nil {
			return nil, err
		}

		switch report.Status {
		case models.JobStatusCompleted:
			return report.Payload, nil
		case models.JobStatusFailed:
			return nil, fmt.Errorf("%w: %s", ErrGenerationFailed, report.Detail)
		case models.JobStatusQueued, models.JobStatusRunning:
			o.logger.Debug("Generation job pending",
				logger.String("request_id", job.ID),
				logger.String("status", string(report.Status)),
			)
		}

		select {
		case <-ctx.Done():
			if ctx.Err() == context.DeadlineExceeded {
				return nil, fmt.Errorf("%w: job %s exceeded %s budget",
					ErrGenerationTimedOut, job.ID, o.pollBudget)
			}
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
