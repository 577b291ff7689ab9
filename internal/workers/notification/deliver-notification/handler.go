// internal/workers/notification/deliver-notification/handler.go
package delivernotification

import (
	"context"
	"strings"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"

	"donor-dispatch/internal/common/camunda"
	"donor-dispatch/internal/common/errors"
	"donor-dispatch/internal/common/logger"
	"donor-dispatch/internal/common/metrics"
	"donor-dispatch/internal/models"
)

const TaskType = "deliver-notification"

type NotificationFinder interface {
	FindByID(ctx context.Context, id string) (*models.Notification, error)
}

type UserFinder interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

// Lifecycle persists channel flags and the Sent transition. Channel flags are
// written on their own so reads landing during a send are kept.
type Lifecycle interface {
	SaveChannels(ctx context.Context, n *models.Notification) error
	MarkSent(ctx context.Context, id, recipientID string) (*models.Notification, error)
}

type EmailSender interface {
	SendEmail(ctx context.Context, to, subject, body string) error
}

type SMSSender interface {
	SendSMS(ctx context.Context, phone, message string) error
}

// Handler pushes a stored notification to the email and SMS channels the
// recipient opted into. Channels already marked sent are not sent again, so a
// retried job only repeats the channels that failed.
type Handler struct {
	config        *Config
	notifications NotificationFinder
	users         UserFinder
	lifecycle     Lifecycle
	email         EmailSender
	sms           SMSSender
	logger        logger.Logger
	errHandler    *errors.ErrorHandler
	now           func() time.Time
}

// NewHandler wires the channel senders. email and sms may be nil when the
// corresponding integration is disabled.
func NewHandler(config *Config, notifications NotificationFinder, users UserFinder, lifecycle Lifecycle, email EmailSender, sms SMSSender, log logger.Logger) *Handler {
	log = log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:        config,
		notifications: notifications,
		users:         users,
		lifecycle:     lifecycle,
		email:         email,
		sms:           sms,
		logger:        log,
		errHandler:    errors.NewErrorHandler(log),
		now:           time.Now,
	}
}

func (h *Handler) Handle(client worker.JobClient, job entities.Job) {
	camunda.Process(client, job, TaskType, h.config.Timeout, h.logger, h.errHandler, h.Execute)
}

func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	if input.NotificationID == "" {
		return nil, errors.NewValidationError("notificationId is required")
	}

	n, err := h.notifications.FindByID(ctx, input.NotificationID)
	if err != nil {
		return nil, err
	}

	out := &Output{NotificationID: n.ID, Status: string(n.Status)}
	now := h.now().UTC()
	switch {
	case n.Status.IsTerminal():
		return skip(out, "notification is "+strings.ToLower(string(n.Status))), nil
	case n.IsExpiredAt(now):
		return skip(out, "notification has expired"), nil
	}

	recipient, err := h.users.FindByID(ctx, n.RecipientID)
	if err != nil {
		return nil, err
	}

	log := h.logger.WithFields(map[string]interface{}{
		"notificationId": n.ID,
		"recipientId":    n.RecipientID,
	})

	changed := false
	if h.wantsEmail(n, recipient) {
		if err := h.email.SendEmail(ctx, recipient.Email, n.Title, h.emailBody(n)); err != nil {
			return nil, h.deliveryFailed(ctx, n, changed, "email", err, log)
		}
		markChannelSent(&n.Channels.Email, now)
		metrics.NotificationDeliveries.WithLabelValues("email", "sent").Inc()
		changed = true
	}
	if h.wantsSMS(n, recipient) {
		if err := h.sms.SendSMS(ctx, recipient.Phone, smsText(n)); err != nil {
			return nil, h.deliveryFailed(ctx, n, changed, "sms", err, log)
		}
		markChannelSent(&n.Channels.SMS, now)
		metrics.NotificationDeliveries.WithLabelValues("sms", "sent").Inc()
		changed = true
	}

	out.EmailSent = n.Channels.Email.Sent
	out.SMSSent = n.Channels.SMS.Sent

	if changed {
		if err := h.lifecycle.SaveChannels(ctx, n); err != nil {
			return nil, err
		}
	}

	updated, err := h.lifecycle.MarkSent(ctx, n.ID, n.RecipientID)
	if err != nil {
		return nil, err
	}
	out.Status = string(updated.Status)

	log.Info("Notification delivered", map[string]interface{}{
		"email": out.EmailSent,
		"sms":   out.SMSSent,
	})
	return out, nil
}

func (h *Handler) wantsEmail(n *models.Notification, u *models.User) bool {
	return h.config.EmailEnabled && h.email != nil &&
		n.Channels.Email.Enabled && !n.Channels.Email.Sent && u.Email != ""
}

func (h *Handler) wantsSMS(n *models.Notification, u *models.User) bool {
	return h.config.SMSEnabled && h.sms != nil &&
		n.Channels.SMS.Enabled && !n.Channels.SMS.Sent && u.Phone != ""
}

// deliveryFailed keeps channels sent earlier in this run so a retry skips them.
func (h *Handler) deliveryFailed(ctx context.Context, n *models.Notification, changed bool, channel string, cause error, log logger.Logger) error {
	metrics.NotificationDeliveries.WithLabelValues(channel, "failed").Inc()
	log.Error("Notification delivery failed", map[string]interface{}{
		"channel": channel,
		"error":   cause,
	})
	if changed {
		if err := h.lifecycle.SaveChannels(ctx, n); err != nil {
			log.Warn("Failed to persist partial delivery", map[string]interface{}{"error": err})
		}
	}
	return errors.NewNotificationSendFailedError(channel, cause)
}

func (h *Handler) emailBody(n *models.Notification) string {
	var b strings.Builder
	b.WriteString(n.Message)
	for _, a := range n.Actions {
		if a.URL == "" {
			continue
		}
		b.WriteString("\n\n")
		b.WriteString(a.Label)
		b.WriteString(": ")
		b.WriteString(h.config.BaseURL)
		b.WriteString(a.URL)
	}
	return b.String()
}

func smsText(n *models.Notification) string {
	text := n.Title + ": " + n.Message
	if r := []rune(text); len(r) > maxSMSLength {
		return string(r[:maxSMSLength-3]) + "..."
	}
	return text
}

func markChannelSent(c *models.ChannelState, now time.Time) {
	c.Sent = true
	c.SentAt = &now
}

func skip(out *Output, reason string) *Output {
	out.Skipped = true
	out.SkipReason = reason
	return out
}
