// internal/workers/access/lookup-tier/handler.go
package lookuptier

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"preset-workers/internal/common/database"
	apperrors "preset-workers/internal/common/errors"
	"preset-workers/internal/common/logger"
	"preset-workers/internal/common/metrics"
	"preset-workers/internal/common/observability"
	"preset-workers/internal/presets"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	TaskType = "lookup-tier"

	cacheKeyPrefix    = "tier:"
	subscriptionQuery = `SELECT user_id, tier, expires_at, is_valid FROM user_subscriptions WHERE user_id = $1`
)

var (
	ErrInvalidInput = errors.New("INVALID_INPUT")
)

// Handler maps a user's subscription row to the tier signal. Rows are
// cached in Redis; the tier itself is derived on every call so an expiry
// takes effect without waiting for the cache.
type Handler struct {
	config     *Config
	db         *sql.DB
	redis      redis.Cmdable
	obs        *observability.Observability
	errHandler *apperrors.ErrorHandler
	logger     logger.Logger
}

func NewHandler(config *Config, db *sql.DB, cache redis.Cmdable, obs *observability.Observability, log logger.Logger) *Handler {
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
		db:         db,
		redis:      cache,
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
	return &input, nil
}

func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	sub, err := h.subscription(ctx, input.UserID)
	if err != nil {
		return nil, err
	}
	if sub == nil {
		if h.config.RequireRecord {
			return nil, apperrors.NewTierNotFoundError(input.UserID)
		}
		return &Output{Tier: string(presets.TierDemo)}, nil
	}

	active := h.active(sub)
	tier := presets.TierDemo
	if active && h.isSubscriberPlan(sub.Plan) {
		tier = presets.TierSubscriber
	}

	return &Output{
		Tier:   string(tier),
		Plan:   sub.Plan,
		Active: active,
	}, nil
}

// subscription reads through the cache. A nil result means no row.
func (h *Handler) subscription(ctx context.Context, userID string) (*Subscription, error) {
	cacheKey := cacheKeyPrefix + userID

	if h.redis != nil {
		val, err := h.redis.Get(ctx, cacheKey).Result()
		switch {
		case err == nil:
			var sub Subscription
			if err := json.Unmarshal([]byte(val), &sub); err == nil {
				return &sub, nil
			}
		case !database.IsMiss(err):
			h.logger.Warn("tier cache read failed", map[string]interface{}{
				"userId": userID,
				"error":  err.Error(),
			})
		}
	}

	var sub Subscription
	var expiresAt sql.NullString
	err := h.db.QueryRowContext(ctx, subscriptionQuery, userID).Scan(
		&sub.UserID, &sub.Plan, &expiresAt, &sub.IsValid,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, apperrors.NewTierLookupFailedError(err)
	}
	sub.ExpiresAt = expiresAt.String

	if h.redis != nil {
		data, _ := json.Marshal(sub)
		if err := h.redis.Set(ctx, cacheKey, data, h.config.CacheTTL).Err(); err != nil {
			h.logger.Warn("tier cache write failed", map[string]interface{}{
				"userId": userID,
				"error":  err.Error(),
			})
		}
	}
	return &sub, nil
}

func (h *Handler) active(sub *Subscription) bool {
	if !sub.IsValid {
		return false
	}
	if sub.ExpiresAt == "" {
		return true
	}
	exp, err := time.Parse(time.RFC3339, sub.ExpiresAt)
	if err != nil {
		h.logger.Debug("unparseable expiry, treating as active", map[string]interface{}{
			"userId":    sub.UserID,
			"expiresAt": sub.ExpiresAt,
		})
		return true
	}
	return time.Now().Before(exp)
}

func (h *Handler) isSubscriberPlan(plan string) bool {
	for _, p := range h.config.SubscriberPlans {
		if strings.EqualFold(p, plan) {
			return true
		}
	}
	return false
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
