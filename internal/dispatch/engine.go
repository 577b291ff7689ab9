// internal/dispatch/engine.go
package dispatch

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
	"donor-dispatch/internal/matching"
	"donor-dispatch/internal/models"
)

// CandidateFinder is the dispatch-eligibility query.
type CandidateFinder interface {
	FindDispatchCandidates(ctx context.Context, bloodType models.BloodType, center *models.GeoPoint, urgency models.UrgencyLevel, excludeID string) ([]matching.Candidate, error)
}

// NotificationWriter persists a batch. It returns how many rows were written
// even when it also returns an error.
type NotificationWriter interface {
	InsertMany(ctx context.Context, notifications []*models.Notification) (int, error)
}

// Result reports one dispatch run. Err is set when the search failed or the
// batch was not fully persisted; it never implies the request is invalid.
type Result struct {
	RequestID            string        `json:"requestId"`
	DonorsFound          int           `json:"donorsFound"`
	NotificationsCreated int           `json:"notificationsCreated"`
	Attempted            int           `json:"attempted"`
	Duration             time.Duration `json:"duration"`
	Err                  error         `json:"-"`
}

func (r Result) OK() bool {
	return r.Err == nil
}

// Engine fans a request out to one notification per candidate.
// Calling Dispatch twice for the same request creates duplicates; see Scheduler
// for the guarded entry point.
type Engine struct {
	finder  CandidateFinder
	builder *Builder
	store   NotificationWriter
	logger  logger.Logger
	tracer  trace.Tracer
}

func NewEngine(finder CandidateFinder, builder *Builder, store NotificationWriter, log logger.Logger, tracer trace.Tracer) *Engine {
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer("")
	}
	return &Engine{finder: finder, builder: builder, store: store, logger: log, tracer: tracer}
}

func (e *Engine) Builder() *Builder {
	return e.builder
}

func (e *Engine) Dispatch(ctx context.Context, req *models.BloodRequest) Result {
	start := time.Now()
	ctx, span := e.tracer.Start(ctx, "dispatch.notify_nearby_donors", trace.WithAttributes(
		attribute.String("request.id", req.ID),
		attribute.String("request.blood_type", string(req.BloodType)),
		attribute.String("request.urgency", string(req.Urgency)),
	))
	defer span.End()

	result := e.dispatch(ctx, req)
	result.Duration = time.Since(start)

	span.SetAttributes(
		attribute.Int("dispatch.donors_found", result.DonorsFound),
		attribute.Int("dispatch.notifications_created", result.NotificationsCreated),
	)
	if result.Err != nil {
		span.RecordError(result.Err)
		span.SetStatus(codes.Error, result.Err.Error())
	}

	e.observe(result)
	return result
}

func (e *Engine) dispatch(ctx context.Context, req *models.BloodRequest) Result {
	log := e.logger.WithFields(map[string]interface{}{
		"requestId": req.ID,
		"bloodType": req.BloodType,
		"urgency":   req.Urgency,
	})

	result := Result{RequestID: req.ID}

	candidates, err := e.finder.FindDispatchCandidates(ctx, req.BloodType, req.Location, req.Urgency, req.RequesterID)
	if err != nil {
		log.Error("Candidate search failed", map[string]interface{}{"error": err})
		result.Err = err
		return result
	}
	result.DonorsFound = len(candidates)

	if len(candidates) == 0 {
		log.Info("No donors found for request", nil)
		return result
	}

	batch := make([]*models.Notification, 0, len(candidates))
	for _, c := range candidates {
		batch = append(batch, e.builder.ForCandidate(req, c))
	}
	result.Attempted = len(batch)

	created, err := e.store.InsertMany(ctx, batch)
	result.NotificationsCreated = created
	if err != nil || created != len(batch) {
		result.Err = errors.NewDispatchPartialFailureError(created, len(batch), err)
		log.Error("Notification batch partially persisted", map[string]interface{}{
			"created":   created,
			"attempted": len(batch),
			"error":     err,
		})
		return result
	}

	log.Info("Notified nearby donors", map[string]interface{}{
		"donorsFound":          result.DonorsFound,
		"notificationsCreated": created,
	})
	return result
}

func (e *Engine) observe(r Result) {
	outcome := "ok"
	switch {
	case r.Err != nil && r.NotificationsCreated > 0:
		outcome = "partial"
	case r.Err != nil:
		outcome = "failed"
	}
	metrics.DispatchRuns.WithLabelValues(outcome).Inc()
	metrics.DispatchDonorsFound.Observe(float64(r.DonorsFound))
	metrics.DispatchNotificationsCreated.Add(float64(r.NotificationsCreated))
}
