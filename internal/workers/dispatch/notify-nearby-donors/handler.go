// internal/workers/dispatch/notify-nearby-donors/handler.go
package notifynearbydonors

import (
	"context"
	stderrors "errors"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"

	"donor-dispatch/internal/common/camunda"
	"donor-dispatch/internal/common/errors"
	"donor-dispatch/internal/common/logger"
	"donor-dispatch/internal/dispatch"
	"donor-dispatch/internal/models"
)

const TaskType = "notify-nearby-donors"

type RequestFinder interface {
	FindByID(ctx context.Context, id string) (*models.BloodRequest, error)
}

// Handler runs a dispatch synchronously inside a BPMN process. When a guard is
// set, a request already dispatched elsewhere completes without new notifications.
type Handler struct {
	config     *Config
	requests   RequestFinder
	dispatcher dispatch.Dispatcher
	guard      dispatch.Guard
	logger     logger.Logger
	errHandler *errors.ErrorHandler
}

func NewHandler(config *Config, requests RequestFinder, dispatcher dispatch.Dispatcher, guard dispatch.Guard, log logger.Logger) *Handler {
	log = log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:     config,
		requests:   requests,
		dispatcher: dispatcher,
		guard:      guard,
		logger:     log,
		errHandler: errors.NewErrorHandler(log),
	}
}

func (h *Handler) Handle(client worker.JobClient, job entities.Job) {
	camunda.Process(client, job, TaskType, h.config.Timeout, h.logger, h.errHandler, h.Execute)
}

func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	if input.RequestID == "" {
		return nil, errors.NewValidationError("requestId is required")
	}

	req, err := h.requests.FindByID(ctx, input.RequestID)
	if err != nil {
		return nil, err
	}

	if h.guard != nil {
		acquired, err := h.guard.Acquire(ctx, req.ID)
		if err != nil {
			h.logger.Warn("Dispatch guard unavailable, dispatching unguarded", map[string]interface{}{
				"requestId": req.ID,
				"error":     err,
			})
		} else if !acquired {
			h.logger.Info("Request already dispatched", map[string]interface{}{"requestId": req.ID})
			return &Output{RequestID: req.ID, AlreadyDispatched: true}, nil
		}
	}

	result := h.dispatcher.Dispatch(ctx, req)
	out := &Output{
		RequestID:            result.RequestID,
		DonorsFound:          result.DonorsFound,
		NotificationsCreated: result.NotificationsCreated,
		Attempted:            result.Attempted,
		DurationMs:           result.Duration.Milliseconds(),
	}
	if result.OK() {
		return out, nil
	}

	if result.NotificationsCreated > 0 {
		// keep the guard: retrying would duplicate the created notifications
		out.Partial = true
		return out, nil
	}

	h.releaseGuard(ctx, req.ID)
	if cause := stderrors.Unwrap(result.Err); cause != nil && errors.IsRetryable(cause) {
		return nil, cause
	}
	return nil, result.Err
}

func (h *Handler) releaseGuard(ctx context.Context, requestID string) {
	if h.guard == nil {
		return
	}
	if err := h.guard.Release(ctx, requestID); err != nil {
		h.logger.Warn("Failed to release dispatch guard", map[string]interface{}{
			"requestId": requestID,
			"error":     err,
		})
	}
}
