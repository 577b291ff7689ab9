// internal/common/camunda/worker.go
package camunda

import (
	"context"
	"encoding/json"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"github.com/camunda/zeebe/clients/go/v8/pkg/zbc"

	"donor-dispatch/internal/common/config"
	"donor-dispatch/internal/common/errors"
	"donor-dispatch/internal/common/logger"
	"donor-dispatch/internal/common/metrics"
)

// StartWorker opens a job worker for taskType. It returns nil when the worker
// is disabled in config.
func StartWorker(client zbc.Client, taskType string, wcfg config.WorkerConfig, handler worker.JobHandler, log logger.Logger) worker.JobWorker {
	if !wcfg.Enabled {
		log.Info("worker disabled", map[string]interface{}{"taskType": taskType})
		return nil
	}

	w := client.NewJobWorker().
		JobType(taskType).
		Handler(handler).
		MaxJobsActive(wcfg.MaxJobsActive).
		Timeout(config.GetDuration(wcfg.Timeout)).
		Open()

	log.Info("worker started", map[string]interface{}{
		"taskType":      taskType,
		"maxJobsActive": wcfg.MaxJobsActive,
		"timeout_ms":    wcfg.Timeout,
	})
	return w
}

// Process decodes the job variables, runs exec under timeout and completes the
// job with its output. Failures go through errs so retryable errors fail the
// job and domain errors raise a BPMN error.
func Process[In any, Out any](
	client worker.JobClient,
	job entities.Job,
	taskType string,
	timeout time.Duration,
	log logger.Logger,
	errs *errors.ErrorHandler,
	exec func(context.Context, *In) (*Out, error),
) {
	log.Info("processing job", map[string]interface{}{
		"jobKey":      job.Key,
		"workflowKey": job.ProcessInstanceKey,
	})

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	start := time.Now()

	var input In
	if err := json.Unmarshal([]byte(job.Variables), &input); err != nil {
		fail(ctx, client, job, taskType, errs, errors.NewValidationError("parse input: "+err.Error()))
		return
	}

	output, err := exec(ctx, &input)
	metrics.WorkerJobDuration.WithLabelValues(taskType).Observe(time.Since(start).Seconds())
	if err != nil {
		fail(ctx, client, job, taskType, errs, err)
		return
	}

	cmd, err := client.NewCompleteJobCommand().
		JobKey(job.Key).
		VariablesFromObject(output)
	if err != nil {
		log.Error("failed to create complete job command", map[string]interface{}{"error": err})
		return
	}
	if _, err := cmd.Send(ctx); err != nil {
		log.Error("failed to send complete job command", map[string]interface{}{"error": err})
		return
	}
	metrics.WorkerJobsCompleted.WithLabelValues(taskType).Inc()
}

func fail(ctx context.Context, client worker.JobClient, job entities.Job, taskType string, errs *errors.ErrorHandler, err error) {
	metrics.WorkerJobsFailed.WithLabelValues(taskType, string(errors.AsStandard(err).Code)).Inc()
	errs.HandleJobError(ctx, client, job, err)
}
