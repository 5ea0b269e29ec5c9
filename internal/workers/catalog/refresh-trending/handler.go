package refreshtrending

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"

	"manhwa-recommender/internal/common/errors"
	"manhwa-recommender/internal/common/logger"
	"manhwa-recommender/internal/common/metrics"
	"manhwa-recommender/internal/models"
	"manhwa-recommender/internal/recommend/service"
)

const (
	TaskType = "refresh-trending"
)

type Maintainer interface {
	Trending(ctx context.Context, p service.TrendingParams) (*models.RecommendationResponse, error)
	PurgeExpiredRecords(ctx context.Context) (int64, error)
}

// Handler recomputes the first trending page and drops expired
// recommendation records. Scheduled by a timer-started process.
type Handler struct {
	config     *Config
	maintainer Maintainer
	errors     *errors.ErrorHandler
	logger     logger.Logger
}

func NewHandler(config *Config, maintainer Maintainer, log logger.Logger) *Handler {
	log = log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:     config,
		maintainer: maintainer,
		errors:     errors.NewErrorHandler(log),
		logger:     log,
	}
}

func (h *Handler) Handle(client worker.JobClient, job entities.Job) {
	start := time.Now()
	h.logger.Info("processing job", map[string]interface{}{
		"jobKey":      job.Key,
		"workflowKey": job.ProcessInstanceKey,
	})

	var input Input
	if job.Variables != "" {
		if err := json.Unmarshal([]byte(job.Variables), &input); err != nil {
			h.fail(client, job, errors.NewInvalidRequestError(fmt.Sprintf("parse input: %v", err)))
			return
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	defer cancel()

	output, err := h.execute(ctx, &input)
	if err != nil {
		h.fail(client, job, err)
		return
	}

	h.completeJob(client, job, output)
	metrics.WorkerJobsCompleted.WithLabelValues(TaskType).Inc()
	metrics.WorkerJobDuration.WithLabelValues(TaskType).Observe(time.Since(start).Seconds())
}

func (h *Handler) execute(ctx context.Context, input *Input) (*Output, error) {
	limit := h.config.DefaultLimit
	if input != nil && input.Limit > 0 {
		limit = input.Limit
	}

	resp, err := h.maintainer.Trending(ctx, service.TrendingParams{Limit: limit, Refresh: true})
	if err != nil {
		return nil, err
	}

	// A failed purge leaves the records for the next run.
	purged, err := h.maintainer.PurgeExpiredRecords(ctx)
	if err != nil {
		h.logger.Warn("failed to purge expired recommendation records", map[string]interface{}{
			"error": err,
		})
		purged = 0
	}

	h.logger.Info("trending refreshed", map[string]interface{}{
		"count":  resp.Metadata.Count,
		"total":  resp.Metadata.Total,
		"purged": purged,
	})
	return &Output{
		Count:  resp.Metadata.Count,
		Total:  resp.Metadata.Total,
		Purged: purged,
	}, nil
}

func (h *Handler) fail(client worker.JobClient, job entities.Job, err error) {
	metrics.WorkerJobsFailed.WithLabelValues(TaskType, string(errors.CodeOf(err))).Inc()
	h.errors.HandleJobError(context.Background(), client, job, err)
}

func (h *Handler) completeJob(client worker.JobClient, job entities.Job, output *Output) {
	cmd, err := client.NewCompleteJobCommand().
		JobKey(job.Key).
		VariablesFromObject(output)
	if err != nil {
		h.logger.Error("failed to create complete job command", map[string]interface{}{
			"error": err,
		})
		return
	}
	if _, err := cmd.Send(context.Background()); err != nil {
		h.logger.Error("failed to send complete job command", map[string]interface{}{
			"error": err,
		})
	}
}

func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	return h.execute(ctx, input)
}
