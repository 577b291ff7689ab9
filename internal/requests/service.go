// internal/requests/service.go

// Package requests is the request-facing entry point: it creates blood requests,
// hands them to the dispatch scheduler, and manages their externally set status.
package requests

import (
	"context"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"donor-dispatch/internal/common/errors"
	"donor-dispatch/internal/common/logger"
	"donor-dispatch/internal/matching"
	"donor-dispatch/internal/models"
)

type Store interface {
	Create(ctx context.Context, req *models.BloodRequest) error
	FindByID(ctx context.Context, id string) (*models.BloodRequest, error)
	UpdateStatus(ctx context.Context, req *models.BloodRequest) error
	List(ctx context.Context, filter models.RequestFilter) ([]*models.BloodRequest, error)
}

// Scheduler accepts a request for asynchronous dispatch.
type Scheduler interface {
	Schedule(ctx context.Context, req *models.BloodRequest) error
}

type DonorDirectory interface {
	FindDirectoryCandidates(ctx context.Context, bloodType models.BloodType, center *models.GeoPoint, urgency models.UrgencyLevel, district string) ([]matching.Candidate, error)
}

type UserFinder interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

// CreateInput is the payload of a new blood request.
type CreateInput struct {
	BloodGroup      string    `json:"bloodGroup"`
	BloodUnits      int       `json:"bloodUnits"`
	AppointmentDate time.Time `json:"appointmentDate"`
	PhoneNumber     string    `json:"phoneNumber"`
	District        string    `json:"district"`
	HospitalName    string    `json:"hospitalName"`
	Description     string    `json:"description"`
	UrgencyLevel    string    `json:"urgencyLevel,omitempty"`
	IsEmergency     bool      `json:"isEmergency,omitempty"`
	Latitude        *float64  `json:"latitude,omitempty"`
	Longitude       *float64  `json:"longitude,omitempty"`
}

// StatusUpdate sets the externally managed request status.
type StatusUpdate struct {
	Status models.RequestStatus `json:"status"`
	Notes  string               `json:"notes,omitempty"`
}

type Service struct {
	store     Store
	scheduler Scheduler
	directory DonorDirectory
	users     UserFinder
	logger    logger.Logger
	now       func() time.Time
}

func NewService(store Store, scheduler Scheduler, directory DonorDirectory, users UserFinder, log logger.Logger) *Service {
	return &Service{
		store:     store,
		scheduler: scheduler,
		directory: directory,
		users:     users,
		logger:    log,
		now:       time.Now,
	}
}

// WithClock replaces the time source. Intended for tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// CreateAndDispatch validates and persists the request, then schedules donor
// dispatch. Scheduling problems are logged and never fail the creation.
func (s *Service) CreateAndDispatch(ctx context.Context, requesterID string, in CreateInput) (*models.BloodRequest, error) {
	if requesterID == "" {
		return nil, errors.NewValidationError("requester is required")
	}
	location, err := locationOf(in)
	if err != nil {
		return nil, err
	}

	result, err := createSchema.Validate(document(in))
	if err != nil {
		return nil, errors.NewValidationError(err.Error())
	}
	if !result.Valid {
		return nil, errors.NewValidationError(result.Summary())
	}

	now := s.now().UTC()
	if !in.AppointmentDate.After(now) {
		return nil, errors.NewValidationError("Appointment date must be in the future")
	}

	urgency := models.UrgencyMedium
	if in.UrgencyLevel != "" {
		urgency = models.UrgencyLevel(in.UrgencyLevel)
	}

	req := &models.BloodRequest{
		ID:            uuid.New().String(),
		RequesterID:   requesterID,
		BloodType:     models.BloodType(in.BloodGroup),
		Units:         in.BloodUnits,
		AppointmentAt: in.AppointmentDate.UTC(),
		PhoneNumber:   in.PhoneNumber,
		District:      strings.TrimSpace(in.District),
		HospitalName:  strings.TrimSpace(in.HospitalName),
		Description:   strings.TrimSpace(in.Description),
		Urgency:       urgency,
		Location:      location,
		Status:        models.RequestPending,
		Ledger:        models.NewLedger(),
		IsEmergency:   in.IsEmergency,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := s.store.Create(ctx, req); err != nil {
		return nil, err
	}

	log := s.logger.WithFields(map[string]interface{}{
		"requestId": req.ID,
		"bloodType": req.BloodType,
		"urgency":   req.Urgency,
	})
	log.Info("Blood request created", nil)

	if err := s.scheduler.Schedule(ctx, req); err != nil {
		if errors.AsStandard(err).Code == errors.ErrCodeDispatchAlreadyScheduled {
			log.Warn("Donor dispatch already scheduled", nil)
		} else {
			log.Error("Failed to schedule donor dispatch", map[string]interface{}{"error": err})
		}
	}
	return req, nil
}

// Get loads one request with its ledger.
func (s *Service) Get(ctx context.Context, id string) (*models.BloodRequest, error) {
	return s.store.FindByID(ctx, id)
}

// UpdateStatus lets the requester or an admin change the request status.
func (s *Service) UpdateStatus(ctx context.Context, requestID, callerID string, in StatusUpdate) (*models.BloodRequest, error) {
	if !in.Status.Valid() {
		return nil, errors.NewValidationError("unknown request status: " + string(in.Status))
	}

	req, err := s.store.FindByID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if req.RequesterID != callerID {
		caller, err := s.users.FindByID(ctx, callerID)
		if err != nil {
			return nil, err
		}
		if !caller.IsAdmin {
			return nil, errors.NewForbiddenError("You are not authorized to update this request")
		}
	}

	now := s.now().UTC()
	req.Status = in.Status
	if in.Notes != "" {
		req.Notes = in.Notes
	}
	if in.Status == models.RequestFulfilled {
		req.FulfilledBy = callerID
		req.FulfilledAt = &now
	}
	req.UpdatedAt = now

	if err := s.store.UpdateStatus(ctx, req); err != nil {
		return nil, err
	}

	s.logger.Info("Blood request status updated", map[string]interface{}{
		"requestId": req.ID,
		"status":    req.Status,
		"callerId":  callerID,
	})
	return req, nil
}

// List returns requests matching the filter, newest first.
func (s *Service) List(ctx context.Context, filter models.RequestFilter) ([]*models.BloodRequest, error) {
	if filter.BloodType != "" && !filter.BloodType.Valid() {
		return nil, errors.NewInvalidBloodTypeError(string(filter.BloodType))
	}
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, errors.NewValidationError("unknown request status: " + string(filter.Status))
	}
	if filter.Urgency != "" && !filter.Urgency.Valid() {
		return nil, errors.NewValidationError("unknown urgency level: " + string(filter.Urgency))
	}
	return s.store.List(ctx, filter)
}

// SearchCompatibleDonors lists verified donors able to give to bloodGroup,
// most experienced first.
func (s *Service) SearchCompatibleDonors(ctx context.Context, bloodGroup, district string) ([]matching.Candidate, error) {
	if bloodGroup == "" {
		return nil, errors.NewValidationError("Blood group is required")
	}
	bt, ok := models.ParseBloodType(bloodGroup)
	if !ok {
		return nil, errors.NewInvalidBloodTypeError(bloodGroup)
	}
	return s.directory.FindDirectoryCandidates(ctx, bt, nil, "", district)
}

func locationOf(in CreateInput) (*models.GeoPoint, error) {
	for _, v := range []*float64{in.Latitude, in.Longitude} {
		if v != nil && (math.IsNaN(*v) || math.IsInf(*v, 0)) {
			return nil, errors.NewInvalidLocationError(deref(in.Latitude), deref(in.Longitude))
		}
	}
	if in.Latitude == nil || in.Longitude == nil {
		// a lone coordinate is reported by schema validation
		return nil, nil
	}
	p := models.GeoPoint{Lat: *in.Latitude, Lon: *in.Longitude}
	if !p.Valid() {
		return nil, errors.NewInvalidLocationError(p.Lat, p.Lon)
	}
	return &p, nil
}

// document renders the input for schema validation. Zero values of required
// fields are left out so they report as missing.
func document(in CreateInput) map[string]interface{} {
	doc := map[string]interface{}{}
	setString := func(key, v string) {
		if strings.TrimSpace(v) != "" {
			doc[key] = v
		}
	}
	setString("bloodGroup", in.BloodGroup)
	setString("phoneNumber", in.PhoneNumber)
	setString("district", in.District)
	setString("hospitalName", in.HospitalName)
	setString("description", in.Description)
	setString("urgencyLevel", in.UrgencyLevel)
	if in.BloodUnits != 0 {
		doc["bloodUnits"] = in.BloodUnits
	}
	if !in.AppointmentDate.IsZero() {
		doc["appointmentDate"] = in.AppointmentDate.Format(time.RFC3339Nano)
	}
	doc["isEmergency"] = in.IsEmergency
	if in.Latitude != nil {
		doc["latitude"] = *in.Latitude
	}
	if in.Longitude != nil {
		doc["longitude"] = *in.Longitude
	}
	return doc
}

func deref(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}
