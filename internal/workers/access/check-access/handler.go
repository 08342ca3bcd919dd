// internal/workers/access/check-access/handler.go
package checkaccess

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	apperrors "preset-workers/internal/common/errors"
	"preset-workers/internal/common/logger"
	"preset-workers/internal/common/metrics"
	"preset-workers/internal/common/observability"
	"preset-workers/internal/presets"
	"preset-workers/pkg/registry"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const TaskType = "check-access"

var (
	ErrInvalidInput = errors.New("INVALID_INPUT")
)

// Handler answers "may this tier do this?" so a process can branch to the
// upgrade prompt before touching the catalog or the generation backend.
type Handler struct {
	config     *Config
	gate       *presets.Gate
	tools      *registry.ToolRegistry
	obs        *observability.Observability
	errHandler *apperrors.ErrorHandler
	logger     logger.Logger
}

func NewHandler(config *Config, gate *presets.Gate, tools *registry.ToolRegistry, obs *observability.Observability, log logger.Logger) *Handler {
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
		obs:        obs,
		errHandler: apperrors.NewErrorHandler(log),
		logger:     log,
	}
}

func (h *Handler) Handle(client worker.JobClient, job entities.Job) {
	start := time.Now()
	metrics.WorkerJobsActive.WithLabelValues(TaskType).Inc()
	defer metrics.WorkerJobsActive.WithLabelValues(TaskType).Dec()

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
	return &input, nil
}

// Execute runs the access gate. A denial is a normal outcome, not an error.
func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	profile, ok := h.tools.Profile(input.ToolType)
	if !ok {
		return nil, apperrors.NewUnknownToolTypeError(input.ToolType)
	}
	tool := presets.ToolType(profile.Type)
	tier := presets.ParseTier(input.Tier)

	action := input.Action
	if action == "" {
		action = ActionResolve
	}

	var decision presets.Decision
	switch action {
	case ActionGenerate:
		decision = h.gate.CheckGeneration(tier, presets.GenerationRequest{
			ToolType:    tool,
			SubjectRef:  input.SubjectRef,
			ModifierRef: input.ModifierRef,
			Prompt:      input.Prompt,
			CustomInput: input.CustomInput,
		})
	default:
		decision = h.gate.Check(tier, presets.Selection{
			ToolType:    tool,
			SubjectRef:  input.SubjectRef,
			ModifierRef: input.ModifierRef,
			CustomInput: input.CustomInput,
		})
	}

	h.logger.Debug("access checked", map[string]interface{}{
		"tier":     string(tier),
		"action":   action,
		"toolType": string(tool),
		"allowed":  decision.Allowed,
		"reason":   string(decision.Reason),
	})

	return &Output{
		Allowed:      decision.Allowed,
		DenialReason: string(decision.Reason),
		Tier:         string(tier),
		Action:       action,
	}, nil
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
