// internal/workers/response/record-donor-response/handler.go
package recorddonorresponse

import (
	"context"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"

	"donor-dispatch/internal/common/camunda"
	"donor-dispatch/internal/common/errors"
	"donor-dispatch/internal/common/logger"
	"donor-dispatch/internal/reconcile"
)

const TaskType = "record-donor-response"

type ResponseRecorder interface {
	RecordResponse(ctx context.Context, requestID, donorID, reaction, message string) (*reconcile.Acknowledgment, error)
}

type Handler struct {
	config     *Config
	recorder   ResponseRecorder
	logger     logger.Logger
	errHandler *errors.ErrorHandler
}

func NewHandler(config *Config, recorder ResponseRecorder, log logger.Logger) *Handler {
	log = log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:     config,
		recorder:   recorder,
		logger:     log,
		errHandler: errors.NewErrorHandler(log),
	}
}

func (h *Handler) Handle(client worker.JobClient, job entities.Job) {
	camunda.Process(client, job, TaskType, h.config.Timeout, h.logger, h.errHandler, h.Execute)
}

// Execute records the donor's reaction. An invalid reaction or unknown request
// raises a BPMN error; store outages fail the job for retry.
func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	ack, err := h.recorder.RecordResponse(ctx, input.RequestID, input.DonorID, input.ResponseType, input.Message)
	if err != nil {
		return nil, err
	}

	return &Output{
		RequestID:            ack.RequestID,
		DonorID:              ack.DonorID,
		ResponseType:         string(ack.Reaction),
		LedgerStatus:         string(ack.Status),
		NewEntry:             ack.NewEntry,
		RespondedAt:          ack.RespondedAt,
		NotificationsCreated: ack.NotificationsCreated,
	}, nil
}
