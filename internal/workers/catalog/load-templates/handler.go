// internal/workers/catalog/load-templates/handler.go
package loadtemplates

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

const (
	TaskType = "load-templates"

	StateReady      = "ready"
	StateLoadFailed = "loadFailed"
)

var (
	ErrInvalidInput = errors.New("INVALID_INPUT")
)

type Handler struct {
	config     *Config
	catalog    *presets.Catalog
	obs        *observability.Observability
	errHandler *apperrors.ErrorHandler
	logger     logger.Logger
}

func NewHandler(config *Config, catalog *presets.Catalog, obs *observability.Observability, log logger.Logger) *Handler {
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
	ctx, span := h.obs.StartSpan(ctx, TaskType,
		attribute.Int64("job.key", job.Key),
		attribute.Int64("job.processInstanceKey", job.ProcessInstanceKey),
	)
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

// Execute reloads the pair and publishes the new index. Store failures do
// not fail the job: the output carries state=loadFailed and the snapshot
// that keeps serving. An unknown tool type is returned as an error.
func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	tool := presets.ToolType(input.ToolType)
	snap, err := h.catalog.Load(ctx, tool, input.Locale)

	output := &Output{
		State:    StateReady,
		ToolType: string(snap.Tool),
		Locale:   snap.Locale,
		Records:  snap.Index.Len(),
		Keys:     snap.Index.KeyCount(),
		Skipped:  snap.Skipped,
		Seq:      snap.Seq,
		LoadedAt: snap.LoadedAt,
	}
	if err == nil {
		return output, nil
	}

	stdErr := apperrors.Normalize(err)
	if stdErr.Code == apperrors.ErrCodeUnknownToolType {
		return nil, stdErr
	}

	h.logger.Warn("serving previous snapshot after load failure", map[string]interface{}{
		"toolType":  output.ToolType,
		"locale":    output.Locale,
		"errorCode": string(stdErr.Code),
		"records":   output.Records,
	})
	output.State = StateLoadFailed
	output.ErrorCode = string(stdErr.Code)
	output.Error = stdErr.Details
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
