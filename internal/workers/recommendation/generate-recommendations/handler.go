package generaterecommendations

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"

	"manhwa-recommender/internal/common/errors"
	"manhwa-recommender/internal/common/logger"
	"manhwa-recommender/internal/common/metrics"
	"manhwa-recommender/internal/models"
	"manhwa-recommender/internal/recommend/service"
	"manhwa-recommender/internal/resources"
)

const (
	TaskType = "generate-recommendations"
)

type Recommender interface {
	Recommend(ctx context.Context, p service.Params) (*models.RecommendationResponse, error)
	Trending(ctx context.Context, p service.TrendingParams) (*models.RecommendationResponse, error)
}

type Handler struct {
	config      *Config
	recommender Recommender
	sampler     resources.Sampler
	errors      *errors.ErrorHandler
	logger      logger.Logger
}

func NewHandler(config *Config, recommender Recommender, sampler resources.Sampler, log logger.Logger) *Handler {
	log = log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:      config,
		recommender: recommender,
		sampler:     sampler,
		errors:      errors.NewErrorHandler(log),
		logger:      log,
	}
}

func (h *Handler) Handle(client worker.JobClient, job entities.Job) {
	start := time.Now()
	h.logger.Info("processing job", map[string]interface{}{
		"jobKey":      job.Key,
		"workflowKey": job.ProcessInstanceKey,
	})

	var input Input
	if err := json.Unmarshal([]byte(job.Variables), &input); err != nil {
		h.fail(client, job, errors.NewInvalidRequestError(fmt.Sprintf("parse input: %v", err)))
		return
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
	if input == nil {
		return nil, errors.NewInvalidRequestError("input cannot be nil")
	}
	if strings.TrimSpace(input.UserID) == "" {
		return nil, errors.NewInvalidRequestError("userId is required")
	}

	personalized := func(ctx context.Context) (*models.RecommendationResponse, error) {
		return h.recommender.Recommend(ctx, service.Params{
			UserID:  input.UserID,
			Limit:   input.Limit,
			Offset:  input.Offset,
			Genres:  input.Genres,
			Tags:    input.Tags,
			Refresh: input.Refresh,
		})
	}
	trending := func(ctx context.Context) (*models.RecommendationResponse, error) {
		return h.recommender.Trending(ctx, service.TrendingParams{
			Limit:  input.Limit,
			Offset: input.Offset,
		})
	}

	resp, degraded, err := resources.Throttle(ctx, h.sampler, h.config.Throttle, h.logger, personalized, trending)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, errors.NewTimeoutError("recommendation-service", err)
		}
		return nil, err
	}

	return &Output{RecommendationResponse: *resp, Degraded: degraded}, nil
}

// fail reports on a fresh context; the job context may already be expired.
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
	_, err = cmd.Send(context.Background())
	if err != nil {
		h.logger.Error("failed to send complete job command", map[string]interface{}{
			"error": err,
		})
	}
}

func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	return h.execute(ctx, input)
}
