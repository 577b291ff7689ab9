// internal/workers/request/update-request-status/handler.go
package updaterequeststatus

import (
	"context"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"

	"donor-dispatch/internal/common/camunda"
	"donor-dispatch/internal/common/errors"
	"donor-dispatch/internal/common/logger"
	"donor-dispatch/internal/models"
	"donor-dispatch/internal/requests"
)

const TaskType = "update-request-status"

type StatusUpdater interface {
	UpdateStatus(ctx context.Context, requestID, callerID string, in requests.StatusUpdate) (*models.BloodRequest, error)
}

type Handler struct {
	config     *Config
	updater    StatusUpdater
	logger     logger.Logger
	errHandler *errors.ErrorHandler
}

func NewHandler(config *Config, updater StatusUpdater, log logger.Logger) *Handler {
	log = log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:     config,
		updater:    updater,
		logger:     log,
		errHandler: errors.NewErrorHandler(log),
	}
}

func (h *Handler) Handle(client worker.JobClient, job entities.Job) {
	camunda.Process(client, job, TaskType, h.config.Timeout, h.logger, h.errHandler, h.Execute)
}

func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	if input.RequestID == "" || input.CallerID == "" {
		return nil, errors.NewValidationError("requestId and callerId are required")
	}

	req, err := h.updater.UpdateStatus(ctx, input.RequestID, input.CallerID, requests.StatusUpdate{
		Status: models.RequestStatus(input.Status),
		Notes:  input.Notes,
	})
	if err != nil {
		return nil, err
	}

	return &Output{
		RequestID:   req.ID,
		Status:      string(req.Status),
		FulfilledBy: req.FulfilledBy,
		FulfilledAt: req.FulfilledAt,
	}, nil
}
