// internal/workers/request/create-blood-request/handler.go
package createbloodrequest

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

const TaskType = "create-blood-request"

type RequestCreator interface {
	CreateAndDispatch(ctx context.Context, requesterID string, in requests.CreateInput) (*models.BloodRequest, error)
}

// Handler persists a new blood request and schedules its donor dispatch. The
// job completes once the request is stored; dispatch outcome is not awaited.
type Handler struct {
	config     *Config
	creator    RequestCreator
	logger     logger.Logger
	errHandler *errors.ErrorHandler
}

func NewHandler(config *Config, creator RequestCreator, log logger.Logger) *Handler {
	log = log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:     config,
		creator:    creator,
		logger:     log,
		errHandler: errors.NewErrorHandler(log),
	}
}

func (h *Handler) Handle(client worker.JobClient, job entities.Job) {
	camunda.Process(client, job, TaskType, h.config.Timeout, h.logger, h.errHandler, h.Execute)
}

func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	req, err := h.creator.CreateAndDispatch(ctx, input.RequesterID, input.CreateInput)
	if err != nil {
		return nil, err
	}

	return &Output{
		RequestID:     req.ID,
		Status:        string(req.Status),
		BloodType:     string(req.BloodType),
		UrgencyLevel:  string(req.Urgency),
		HasLocation:   req.Location != nil,
		AppointmentAt: req.AppointmentAt,
	}, nil
}
