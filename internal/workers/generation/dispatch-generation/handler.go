// internal/workers/generation/dispatch-generation/handler.go
package dispatchgeneration

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	apperrors "preset-workers/internal/common/errors"
	"preset-workers/internal/common/generation"
	"preset-workers/internal/common/logger"
	"preset-workers/internal/common/metrics"
	"preset-workers/internal/common/observability"
	"preset-workers/internal/common/validation"
	"preset-workers/internal/presets"
	"preset-workers/pkg/registry"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const TaskType = "dispatch-generation"

var (
	ErrInvalidInput = errors.New("INVALID_INPUT")
)

// Generator is the generation backend as seen by the worker.
type Generator interface {
	Generate(ctx context.Context, req generation.Request) (*generation.Result, error)
}

// Handler forwards paid-tier requests to the generation backend. The gate
// is consulted first so demo sessions never reach it.
type Handler struct {
	config     *Config
	gate       *presets.Gate
	tools      *registry.ToolRegistry
	generator  Generator
	obs        *observability.Observability
	errHandler *apperrors.ErrorHandler
	logger     logger.Logger
}

func NewHandler(config *Config, gate *presets.Gate, tools *registry.ToolRegistry, generator Generator, obs *observability.Observability, log logger.Logger) *Handler {
	if config == nil {
		config = DefaultConfig()
	}
	if tools == nil {
		tools = registry.Default()
	}
	if obs == nil {
		obs = observability.NewNoop()
	}
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	log = log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:     config,
		gate:       gate,
		tools:      tools,
		generator:  generator,
		obs:        obs,
		errHandler: apperrors.NewErrorHandler(log),
		logger:     log,
	}
}

func (h *Handler) Handle(client worker.JobClient, job entities.Job) {
	start := time.Now()
	metrics.WorkerJobsActive.WithLabelValues(TaskType).Inc()
	defer metrics.WorkerJobsActive.WithLabelValues(TaskType).Dec()

	h.logger.Info("processing job", map[string]interface{}{
		"jobKey":      job.Key,
		"workflowKey": job.ProcessInstanceKey,
	})

	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	defer cancel()
	ctx, span := h.obs.StartSpan(ctx, TaskType, attribute.Int64("job.key", job.Key))
	defer span.End()

	input, err := h.parseInput(job)
	if err != nil {
		h.failJob(ctx, client, job, err, start)
		return
	}

	output, err := h.Execute(ctx, input)
	if err != nil {
		h.failJob(ctx, client, job, err, start)
		return
	}

	h.completeJob(ctx, client, job, output)
	metrics.WorkerJobsCompleted.WithLabelValues(TaskType).Inc()
	metrics.WorkerJobDuration.WithLabelValues(TaskType).Observe(time.Since(start).Seconds())
	h.obs.RecordJobProcessed(ctx, TaskType, "completed")
	h.obs.RecordJobDuration(ctx, TaskType, time.Since(start), "completed")
}

func (h *Handler) parseInput(job entities.Job) (*Input, error) {
	vars, err := job.GetVariablesAsMap()
	if err != nil {
		return nil, apperrors.NewInvalidSelectionError(fmt.Sprintf("%v: %v", ErrInvalidInput, err))
	}
	if result := inputSchema.Validate(vars); !result.Valid {
		return nil, apperrors.NewInvalidSelectionError(fmt.Sprintf("%v: %v", ErrInvalidInput, result.GetErrorMessages()))
	}

	var input Input
	if err := json.Unmarshal([]byte(job.Variables), &input); err != nil {
		return nil, apperrors.NewInvalidSelectionError(fmt.Sprintf("%v: %v", ErrInvalidInput, err))
	}
	if input.ImageURL != "" && !validation.ValidateURL(input.ImageURL) {
		return nil, apperrors.NewInvalidSelectionError(fmt.Sprintf("%v: imageUrl is not an absolute http(s) url", ErrInvalidInput))
	}
	return &input, nil
}

// Execute checks the tier, then submits the generation.
func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	profile, ok := h.tools.Profile(input.ToolType)
	if !ok {
		return nil, apperrors.NewUnknownToolTypeError(input.ToolType)
	}
	tool := presets.ToolType(profile.Type)
	tier := presets.ParseTier(input.Tier)

	decision := h.gate.CheckGeneration(tier, presets.GenerationRequest{
		ToolType:    tool,
		SubjectRef:  input.SubjectRef,
		ModifierRef: input.ModifierRef,
		Prompt:      input.Prompt,
		CustomInput: input.CustomInput,
	})
	if !decision.Allowed {
		metrics.GenerationRequests.WithLabelValues(string(tool), "denied").Inc()
		return nil, apperrors.NewGenerationNotPermittedError(string(decision.Reason)).
			WithMetadata("denialReason", string(decision.Reason)).
			WithMetadata("tier", string(tier))
	}

	result, err := h.generator.Generate(ctx, generation.Request{
		Tool:     string(tool),
		ImageURL: input.ImageURL,
		Prompt:   input.Prompt,
		Params:   buildParams(profile, input),
	})
	if err != nil {
		switch {
		case errors.Is(err, generation.ErrGenerationTimeout):
			return nil, apperrors.NewGenerationTimeoutError()
		default:
			return nil, apperrors.NewGenerationFailedError(err)
		}
	}

	return &Output{
		Success:   true,
		ResultURL: result.ResultURL,
		RequestID: result.RequestID,
	}, nil
}

// buildParams names the subject and modifier after the tool's own input
// parameters. Explicit params win.
func buildParams(profile registry.ToolProfile, input *Input) map[string]string {
	params := make(map[string]string, len(input.Params)+2)
	if input.SubjectRef != "" && len(profile.SubjectParams) > 0 {
		params[profile.SubjectParams[0]] = input.SubjectRef
	}
	if input.ModifierRef != "" && len(profile.ModifierParams) > 0 {
		params[profile.ModifierParams[0]] = input.ModifierRef
	}
	for k, v := range input.Params {
		params[k] = v
	}
	return params
}

func (h *Handler) completeJob(ctx context.Context, client worker.JobClient, job entities.Job, output *Output) {
	cmd, err := client.NewCompleteJobCommand().
		JobKey(job.Key).
		VariablesFromObject(output)
	if err != nil {
		h.logger.Error("failed to create complete job command", map[string]interface{}{
			"error": err.Error(),
		})
		return
	}
	if _, err := cmd.Send(ctx); err != nil {
		h.logger.Error("failed to send complete job command", map[string]interface{}{
			"error": err.Error(),
		})
	}
}

func (h *Handler) failJob(ctx context.Context, client worker.JobClient, job entities.Job, err error, start time.Time) {
	trace.SpanFromContext(ctx).RecordError(err)
	stdErr := apperrors.Normalize(err)
	metrics.WorkerJobsFailed.WithLabelValues(TaskType, string(stdErr.Code)).Inc()
	h.obs.RecordJobProcessed(ctx, TaskType, "failed")
	h.obs.RecordJobDuration(ctx, TaskType, time.Since(start), "failed")
	h.errHandler.HandleJobError(ctx, client, job, stdErr)
}
