package camunda

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"github.com/camunda/zeebe/clients/go/v8/pkg/zbc"

	"manhwa-recommender/internal/common/config"
	"manhwa-recommender/internal/common/errors"
	"manhwa-recommender/internal/common/logger"
	"manhwa-recommender/internal/common/validation"
	"manhwa-recommender/pkg/registry"
)

// JobHandler completes or fails the job itself.
type JobHandler interface {
	Handle(client worker.JobClient, job entities.Job)
}

// Workers tracks the job workers opened against one client.
type Workers struct {
	client   zbc.Client
	registry *registry.TaskRegistry
	logger   logger.Logger
	workers  []worker.JobWorker
}

func NewWorkers(client zbc.Client, log logger.Logger) *Workers {
	return &Workers{client: client, logger: log}
}

// WithRegistry makes Start validate job variables against each task's
// registered input schema.
func (w *Workers) WithRegistry(reg *registry.TaskRegistry) *Workers {
	w.registry = reg
	return w
}

// Start opens a job worker for taskType unless it is disabled in config.
func (w *Workers) Start(taskType string, wcfg config.WorkerConfig, handler JobHandler) bool {
	if !wcfg.Enabled {
		w.logger.Info("worker disabled", map[string]interface{}{"taskType": taskType})
		return false
	}

	guarded, err := w.guard(taskType, handler)
	if err != nil {
		w.logger.Error("invalid task registration, worker not started", map[string]interface{}{
			"taskType": taskType,
			"error":    err,
		})
		return false
	}

	jw := w.client.NewJobWorker().
		JobType(taskType).
		Handler(guarded.Handle).
		MaxJobsActive(wcfg.MaxJobsActive).
		Timeout(config.GetDuration(wcfg.Timeout)).
		Open()
	w.workers = append(w.workers, jw)

	w.logger.Info("worker started", map[string]interface{}{
		"taskType":      taskType,
		"maxJobsActive": wcfg.MaxJobsActive,
		"timeout_ms":    wcfg.Timeout,
	})
	return true
}

func (w *Workers) guard(taskType string, handler JobHandler) (JobHandler, error) {
	if w.registry == nil {
		return handler, nil
	}
	task, ok := w.registry.Find(taskType)
	if !ok {
		w.logger.Warn("task type is not registered", map[string]interface{}{"taskType": taskType})
		return handler, nil
	}
	input, err := task.InputValidator()
	if err != nil {
		return nil, err
	}
	if input == nil {
		return handler, nil
	}
	return &validatingHandler{next: handler, input: input, errors: errors.NewErrorHandler(w.logger)}, nil
}

func (w *Workers) Count() int {
	return len(w.workers)
}

// Close stops every worker, then the client.
func (w *Workers) Close() error {
	for _, jw := range w.workers {
		jw.Close()
		jw.AwaitClose()
	}
	w.workers = nil
	return w.client.Close()
}

// validatingHandler rejects jobs whose variables do not match the
// registered input schema before they reach the wrapped handler.
type validatingHandler struct {
	next   JobHandler
	input  *validation.SchemaValidator
	errors *errors.ErrorHandler
}

func (v *validatingHandler) Handle(client worker.JobClient, job entities.Job) {
	if err := v.check(job.Variables); err != nil {
		v.errors.HandleJobError(context.Background(), client, job, err)
		return
	}
	v.next.Handle(client, job)
}

func (v *validatingHandler) check(variables string) error {
	if variables == "" {
		variables = "{}"
	}
	var doc interface{}
	if err := json.Unmarshal([]byte(variables), &doc); err != nil {
		return errors.NewInvalidRequestError(fmt.Sprintf("parse variables: %v", err))
	}
	return v.input.Validate(doc)
}
