// internal/workers/catalog/resolve-preset/handler.go
package resolvepreset

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

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const TaskType = "resolve-preset"

var (
	ErrInvalidInput = errors.New("INVALID_INPUT")
)

type Handler struct {
	config     *Config
	catalog    *presets.Catalog
	gate       *presets.Gate
	obs        *observability.Observability
	errHandler *apperrors.ErrorHandler
	logger     logger.Logger
}

func NewHandler(config *Config, catalog *presets.Catalog, gate *presets.Gate, obs *observability.Observability, log logger.Logger) *Handler {
	if config == nil {
		config = DefaultConfig()
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
		catalog:    catalog,
		gate:       gate,
		obs:        obs,
		errHandler: apperrors.NewErrorHandler(log),
		logger:     log,
	}
}

func (h *Handler) Handle(client worker.JobClient, job entities.Job) {
	start := time.Now()
	metrics.WorkerJobsActive.WithLabelValues(TaskType).Inc()
	defer metrics.WorkerJobsActive.WithLabelValues(TaskType).Dec()

	h.logger.Debug("processing job", map[string]interface{}{
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
	span.SetAttributes(
		attribute.String("preset.tool", input.ToolType),
		attribute.String("preset.status", output.Status),
	)

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

// Execute gates the selection, then resolves it against the published index
// for its tool and locale, loading the index on first use. A failed load
// resolves against whatever snapshot is left, which may be empty.
func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	tier := presets.ParseTier(input.Tier)
	locale := input.Locale
	if locale == "" {
		locale = h.config.DefaultLocale
	}

	sel := presets.Selection{
		ToolType:    presets.ToolType(input.ToolType),
		SubjectRef:  input.SubjectRef,
		ModifierRef: input.ModifierRef,
		Locale:      locale,
		CustomInput: input.CustomInput,
	}

	decision := h.gate.Check(tier, sel)
	if !decision.Allowed {
		h.logger.Info("selection denied", map[string]interface{}{
			"toolType":    input.ToolType,
			"tier":        string(tier),
			"modifierRef": input.ModifierRef,
			"reason":      string(decision.Reason),
		})
		return &Output{Allowed: false, DenialReason: string(decision.Reason)}, nil
	}

	snap, err := h.catalog.Get(ctx, sel.ToolType, locale)
	output := &Output{Allowed: true, Locale: snap.Locale, CatalogSeq: snap.Seq}
	if err != nil {
		stdErr := apperrors.Normalize(err)
		if stdErr.Code == apperrors.ErrCodeUnknownToolType {
			return nil, stdErr
		}
		output.LoadError = string(stdErr.Code)
	}

	result := presets.Resolve(snap.Index, sel, tier)
	metrics.Resolutions.WithLabelValues(string(sel.ToolType), string(result.Status)).Inc()
	output.Status = string(result.Status)

	if !result.Found() {
		output.PreviewURL = presets.PreviewURL(snap.Index, sel)
		output.Message = presets.NoMatchMessage
		return output, nil
	}

	output.RecordID = result.Record.ID
	output.ResultURL = result.ResultURL
	output.InputURL = result.Record.InputURL
	output.Text = presets.Text(*result.Record, locale)

	h.logger.Debug("selection resolved", map[string]interface{}{
		"toolType": input.ToolType,
		"status":   output.Status,
		"recordId": output.RecordID,
		"seq":      snap.Seq,
	})
	return output, nil
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
