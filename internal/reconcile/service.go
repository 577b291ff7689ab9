// internal/reconcile/service.go
package reconcile

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"donor-dispatch/internal/common/errors"
	"donor-dispatch/internal/common/logger"
	"donor-dispatch/internal/common/metrics"
	"donor-dispatch/internal/dispatch"
	"donor-dispatch/internal/models"
)

// RequestStore loads requests and merges single ledger entries. UpsertLedgerEntry
// must be atomic per (request, donor) and keep the newest RespondedAt.
type RequestStore interface {
	FindByID(ctx context.Context, id string) (*models.BloodRequest, error)
	UpsertLedgerEntry(ctx context.Context, requestID string, entry models.LedgerEntry) (created bool, err error)
}

type UserFinder interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

// Acknowledgment echoes a recorded response back to the responding donor.
type Acknowledgment struct {
	Reaction             models.Reaction     `json:"responseType"`
	Status               models.LedgerStatus `json:"status"`
	NewEntry             bool                `json:"newEntry"`
	RespondedAt          time.Time           `json:"respondedAt"`
	RequestID            string              `json:"requestId"`
	BloodType            models.BloodType    `json:"bloodType"`
	HospitalName         string              `json:"hospitalName"`
	Urgency              models.UrgencyLevel `json:"urgencyLevel"`
	DonorID              string              `json:"donorId"`
	DonorName            string              `json:"donorName"`
	NotificationsCreated int                 `json:"notificationsCreated"`
	Message              string              `json:"message"`
}

// Summary is the requester's view of the ledger.
type Summary struct {
	RequestID  string               `json:"requestId"`
	Responses  []models.LedgerEntry `json:"responses"`
	Total      int                  `json:"total"`
	Confirmed  int                  `json:"confirmed"`
	Interested int                  `json:"interested"`
	Declined   int                  `json:"declined"`
}

type Service struct {
	requests      RequestStore
	users         UserFinder
	notifications dispatch.NotificationWriter
	builder       *dispatch.Builder
	logger        logger.Logger
	tracer        trace.Tracer
	now           func() time.Time
}

func NewService(requests RequestStore, users UserFinder, notifications dispatch.NotificationWriter, builder *dispatch.Builder, log logger.Logger, tracer trace.Tracer) *Service {
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer("")
	}
	return &Service{
		requests:      requests,
		users:         users,
		notifications: notifications,
		builder:       builder,
		logger:        log,
		tracer:        tracer,
		now:           time.Now,
	}
}

// WithClock replaces the time source. Intended for tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// RecordResponse merges the donor's reaction into the request ledger and
// notifies both parties. Validation and lookups happen before any write.
func (s *Service) RecordResponse(ctx context.Context, requestID, donorID, reaction, message string) (*Acknowledgment, error) {
	ctx, span := s.tracer.Start(ctx, "reconcile.record_response", trace.WithAttributes(
		attribute.String("request.id", requestID),
		attribute.String("donor.id", donorID),
		attribute.String("reaction", reaction),
	))
	defer span.End()

	ack, err := s.recordResponse(ctx, requestID, donorID, reaction, message)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return ack, err
}

func (s *Service) recordResponse(ctx context.Context, requestID, donorID, reaction, message string) (*Acknowledgment, error) {
	r, ok := models.ParseReaction(reaction)
	if !ok {
		return nil, errors.NewInvalidReactionError(reaction)
	}
	if requestID == "" || donorID == "" {
		return nil, errors.NewValidationError("requestId and donorId are required")
	}

	req, err := s.requests.FindByID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	donor, err := s.users.FindByID(ctx, donorID)
	if err != nil {
		return nil, err
	}

	log := s.logger.WithFields(map[string]interface{}{
		"requestId": requestID,
		"donorId":   donorID,
		"reaction":  r,
	})

	entry := models.LedgerEntry{
		DonorID:     donorID,
		Status:      r.LedgerStatus(),
		RespondedAt: s.now().UTC(),
	}
	created, err := s.requests.UpsertLedgerEntry(ctx, requestID, entry)
	if err != nil {
		log.Error("Failed to record donor response", map[string]interface{}{"error": err})
		return nil, err
	}
	req.Ledger.Upsert(entry)

	result := "updated"
	if created {
		result = "created"
	}
	metrics.ResponsesRecorded.WithLabelValues(string(r), result).Inc()

	batch := []*models.Notification{
		s.builder.ForRequester(req, donor, r, message),
		s.builder.ForResponder(req, donorID, r),
	}
	inserted, err := s.notifications.InsertMany(ctx, batch)
	if err != nil {
		// the ledger entry stands; repeating the call is safe for the ledger
		log.Error("Failed to create response notifications", map[string]interface{}{
			"created": inserted,
			"error":   err,
		})
		return nil, err
	}

	log.Info("Donor response recorded", map[string]interface{}{
		"status":   entry.Status,
		"newEntry": created,
	})

	return &Acknowledgment{
		Reaction:             r,
		Status:               entry.Status,
		NewEntry:             created,
		RespondedAt:          entry.RespondedAt,
		RequestID:            req.ID,
		BloodType:            req.BloodType,
		HospitalName:         req.HospitalName,
		Urgency:              req.Urgency,
		DonorID:              donor.ID,
		DonorName:            donor.FullName,
		NotificationsCreated: inserted,
		Message:              "Response recorded successfully. The requester has been notified.",
	}, nil
}

// ResponseSummary returns the ledger with per-status counts. Only the requester may view it.
func (s *Service) ResponseSummary(ctx context.Context, requestID, callerID string) (*Summary, error) {
	req, err := s.requests.FindByID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if req.RequesterID != callerID {
		return nil, errors.NewForbiddenError("You can only view responses to your own blood requests")
	}

	return &Summary{
		RequestID:  req.ID,
		Responses:  req.Ledger.Entries(),
		Total:      req.Ledger.Len(),
		Confirmed:  req.Ledger.Count(models.LedgerConfirmed),
		Interested: req.Ledger.Count(models.LedgerContacted),
		Declined:   req.Ledger.Count(models.LedgerDeclined),
	}, nil
}
