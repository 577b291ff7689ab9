package updatenotificationstatus

import (
	"context"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"

	"donor-dispatch/internal/common/camunda"
	"donor-dispatch/internal/common/errors"
	"donor-dispatch/internal/common/logger"
	"donor-dispatch/internal/models"
)

const TaskType = "update-notification-status"

type Lifecycle interface {
	MarkRead(ctx context.Context, id, recipientID string) (*models.Notification, error)
	MarkClicked(ctx context.Context, id, recipientID string) (*models.Notification, error)
	Dismiss(ctx context.Context, id, recipientID string) (*models.Notification, error)
	MarkAllRead(ctx context.Context, recipientID string) (int64, error)
	GetUnreadCount(ctx context.Context, recipientID string) (int, error)
}

type Handler struct {
	config     *Config
	lifecycle  Lifecycle
	logger     logger.Logger
	errHandler *errors.ErrorHandler
}

func NewHandler(config *Config, lifecycle Lifecycle, log logger.Logger) *Handler {
	log = log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:     config,
		lifecycle:  lifecycle,
		logger:     log,
		errHandler: errors.NewErrorHandler(log),
	}
}

func (h *Handler) Handle(client worker.JobClient, job entities.Job) {
	camunda.Process(client, job, TaskType, h.config.Timeout, h.logger, h.errHandler, h.Execute)
}

func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	if input.RecipientID == "" {
		return nil, errors.NewValidationError("recipientId is required")
	}

	if input.Event == EventMarkAllRead {
		updated, err := h.lifecycle.MarkAllRead(ctx, input.RecipientID)
		if err != nil {
			return nil, err
		}
		return &Output{Updated: updated, IsRead: true}, nil
	}

	if input.NotificationID == "" {
		return nil, errors.NewValidationError("notificationId is required")
	}

	var apply func(ctx context.Context, id, recipientID string) (*models.Notification, error)
	switch input.Event {
	case EventRead:
		apply = h.lifecycle.MarkRead
	case EventClick:
		apply = h.lifecycle.MarkClicked
	case EventDismiss:
		apply = h.lifecycle.Dismiss
	default:
		return nil, errors.NewValidationError("unsupported event: " + input.Event)
	}

	n, err := apply(ctx, input.NotificationID, input.RecipientID)
	if err != nil {
		return nil, err
	}

	out := &Output{
		NotificationID: n.ID,
		Status:         string(n.Status),
		IsRead:         n.IsRead,
		Updated:        1,
	}
	// the count is informational; a failure here must not undo the transition
	if count, err := h.lifecycle.GetUnreadCount(ctx, input.RecipientID); err == nil {
		out.UnreadCount = count
	} else {
		h.logger.Warn("Failed to count unread notifications", map[string]interface{}{
			"recipientId": input.RecipientID,
			"error":       err,
		})
	}
	return out, nil
}
