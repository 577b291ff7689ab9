// internal/requests/service_test.go
package requests

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "donor-dispatch/internal/common/errors"
	"donor-dispatch/internal/common/logger"
	"donor-dispatch/internal/matching"
	"donor-dispatch/internal/models"
)

var fixedNow = time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)

type fakeStore struct {
	requests  map[string]*models.BloodRequest
	createErr error
	updated   []*models.BloodRequest
	lastQuery models.RequestFilter
}

func newFakeStore() *fakeStore {
	return &fakeStore{requests: map[string]*models.BloodRequest{}}
}

func (f *fakeStore) Create(_ context.Context, req *models.BloodRequest) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.requests[req.ID] = req
	return nil
}

func (f *fakeStore) FindByID(_ context.Context, id string) (*models.BloodRequest, error) {
	r, ok := f.requests[id]
	if !ok {
		return nil, apperrors.NewNotFoundError("Blood request", id)
	}
	cp := *r
	return &cp, nil
}

func (f *fakeStore) UpdateStatus(_ context.Context, req *models.BloodRequest) error {
	f.updated = append(f.updated, req)
	f.requests[req.ID] = req
	return nil
}

func (f *fakeStore) List(_ context.Context, filter models.RequestFilter) ([]*models.BloodRequest, error) {
	f.lastQuery = filter
	return nil, nil
}

type fakeScheduler struct {
	scheduled []*models.BloodRequest
	err       error
}

func (f *fakeScheduler) Schedule(_ context.Context, req *models.BloodRequest) error {
	f.scheduled = append(f.scheduled, req)
	return f.err
}

type fakeDirectory struct {
	bloodType models.BloodType
	district  string
}

func (f *fakeDirectory) FindDirectoryCandidates(_ context.Context, bt models.BloodType, _ *models.GeoPoint, _ models.UrgencyLevel, district string) ([]matching.Candidate, error) {
	f.bloodType, f.district = bt, district
	return []matching.Candidate{{Donor: models.DonorCandidate{ID: "d-1"}}}, nil
}

type fakeUsers map[string]*models.User

func (f fakeUsers) FindByID(_ context.Context, id string) (*models.User, error) {
	u, ok := f[id]
	if !ok {
		return nil, apperrors.NewNotFoundError("User", id)
	}
	return u, nil
}

type fixture struct {
	svc       *Service
	store     *fakeStore
	scheduler *fakeScheduler
	directory *fakeDirectory
}

func newFixture(t *testing.T) *fixture {
	f := &fixture{store: newFakeStore(), scheduler: &fakeScheduler{}, directory: &fakeDirectory{}}
	users := fakeUsers{
		"admin-1": {ID: "admin-1", FullName: "Admin", IsAdmin: true},
		"user-2":  {ID: "user-2", FullName: "Someone Else"},
	}
	f.svc = NewService(f.store, f.scheduler, f.directory, users, logger.NewTestLogger(t)).
		WithClock(func() time.Time { return fixedNow })
	return f
}

func validInput() CreateInput {
	lat, lon := 6.9271, 79.8612
	return CreateInput{
		BloodGroup:      "O-",
		BloodUnits:      2,
		AppointmentDate: fixedNow.Add(48 * time.Hour),
		PhoneNumber:     "+94771234567",
		District:        "Colombo",
		HospitalName:    "National Hospital",
		Description:     "Surgery scheduled",
		Latitude:        &lat,
		Longitude:       &lon,
	}
}

func TestCreateAndDispatch_PersistsThenSchedules(t *testing.T) {
	f := newFixture(t)

	req, err := f.svc.CreateAndDispatch(context.Background(), "requester-1", validInput())

	require.NoError(t, err)
	assert.NotEmpty(t, req.ID)
	assert.Equal(t, models.RequestPending, req.Status)
	assert.Equal(t, models.UrgencyMedium, req.Urgency, "urgency defaults to Medium")
	assert.Equal(t, 0, req.Ledger.Len())
	require.NotNil(t, req.Location)
	assert.Equal(t, fixedNow, req.CreatedAt)
	assert.Contains(t, f.store.requests, req.ID)
	require.Len(t, f.scheduler.scheduled, 1)
	assert.Equal(t, req.ID, f.scheduler.scheduled[0].ID)
}

func TestCreateAndDispatch_SchedulingFailureDoesNotFailCreation(t *testing.T) {
	for _, schedErr := range []error{
		apperrors.NewQueueFullError(10),
		apperrors.NewAlreadyScheduledError("x"),
	} {
		f := newFixture(t)
		f.scheduler.err = schedErr

		req, err := f.svc.CreateAndDispatch(context.Background(), "requester-1", validInput())

		require.NoError(t, err)
		assert.Contains(t, f.store.requests, req.ID)
	}
}

func TestCreateAndDispatch_StoreFailureSkipsScheduling(t *testing.T) {
	f := newFixture(t)
	f.store.createErr = apperrors.NewStoreUnavailableError("create", errors.New("down"))

	_, err := f.svc.CreateAndDispatch(context.Background(), "requester-1", validInput())

	assert.True(t, errors.Is(err, apperrors.ErrStoreUnavailable))
	assert.Empty(t, f.scheduler.scheduled)
}

func TestCreateAndDispatch_Validation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(in *CreateInput)
		wantErr *apperrors.StandardError
		detail  string
	}{
		{"missing blood group", func(in *CreateInput) { in.BloodGroup = "" }, apperrors.ErrValidation, "bloodGroup"},
		{"unknown blood group", func(in *CreateInput) { in.BloodGroup = "C+" }, apperrors.ErrValidation, "bloodGroup"},
		{"zero units", func(in *CreateInput) { in.BloodUnits = 0 }, apperrors.ErrValidation, "bloodUnits"},
		{"too many units", func(in *CreateInput) { in.BloodUnits = 11 }, apperrors.ErrValidation, "bloodUnits"},
		{"bad phone", func(in *CreateInput) { in.PhoneNumber = "0771234567" }, apperrors.ErrValidation, "phoneNumber"},
		{"long description", func(in *CreateInput) { in.Description = strings.Repeat("x", 1001) }, apperrors.ErrValidation, "description"},
		{"blank hospital", func(in *CreateInput) { in.HospitalName = "  " }, apperrors.ErrValidation, "hospitalName"},
		{"unknown urgency", func(in *CreateInput) { in.UrgencyLevel = "Extreme" }, apperrors.ErrValidation, "urgencyLevel"},
		{"appointment in the past", func(in *CreateInput) { in.AppointmentDate = fixedNow.Add(-time.Hour) }, apperrors.ErrValidation, "future"},
		{"appointment now", func(in *CreateInput) { in.AppointmentDate = fixedNow }, apperrors.ErrValidation, "future"},
		{"latitude only", func(in *CreateInput) { in.Longitude = nil }, apperrors.ErrValidation, "longitude"},
		{"latitude out of range", func(in *CreateInput) { v := 91.0; in.Latitude = &v }, apperrors.ErrInvalidLocation, ""},
		{"nan longitude", func(in *CreateInput) { v := math.NaN(); in.Longitude = &v }, apperrors.ErrInvalidLocation, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			in := validInput()
			tt.mutate(&in)

			_, err := f.svc.CreateAndDispatch(context.Background(), "requester-1", in)

			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
			if tt.detail != "" {
				assert.Contains(t, apperrors.AsStandard(err).Details, tt.detail)
			}
			assert.Empty(t, f.store.requests)
			assert.Empty(t, f.scheduler.scheduled)
		})
	}
}

func TestCreateAndDispatch_NoLocationIsAllowed(t *testing.T) {
	f := newFixture(t)
	in := validInput()
	in.Latitude, in.Longitude = nil, nil
	in.UrgencyLevel = "Critical"

	req, err := f.svc.CreateAndDispatch(context.Background(), "requester-1", in)

	require.NoError(t, err)
	assert.Nil(t, req.Location)
	assert.Equal(t, models.UrgencyCritical, req.Urgency)
}

func seedRequest(f *fixture) *models.BloodRequest {
	req := &models.BloodRequest{ID: "req-1", RequesterID: "requester-1", Status: models.RequestPending, Ledger: models.NewLedger()}
	f.store.requests[req.ID] = req
	return req
}

func TestUpdateStatus_Authorization(t *testing.T) {
	tests := []struct {
		name    string
		caller  string
		wantErr *apperrors.StandardError
	}{
		{"requester", "requester-1", nil},
		{"admin", "admin-1", nil},
		{"other user", "user-2", apperrors.ErrForbidden},
		{"unknown caller", "ghost", apperrors.ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			seedRequest(f)

			_, err := f.svc.UpdateStatus(context.Background(), "req-1", tt.caller, StatusUpdate{Status: models.RequestApproved})

			if tt.wantErr != nil {
				assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
				assert.Empty(t, f.store.updated)
				return
			}
			require.NoError(t, err)
			require.Len(t, f.store.updated, 1)
			assert.Equal(t, models.RequestApproved, f.store.updated[0].Status)
		})
	}
}

func TestUpdateStatus_FulfilledRecordsWhoAndWhen(t *testing.T) {
	f := newFixture(t)
	seedRequest(f)

	req, err := f.svc.UpdateStatus(context.Background(), "req-1", "requester-1",
		StatusUpdate{Status: models.RequestFulfilled, Notes: "Received 2 units"})

	require.NoError(t, err)
	assert.Equal(t, "requester-1", req.FulfilledBy)
	require.NotNil(t, req.FulfilledAt)
	assert.Equal(t, fixedNow, *req.FulfilledAt)
	assert.Equal(t, "Received 2 units", req.Notes)
}

func TestUpdateStatus_RejectsUnknownStatus(t *testing.T) {
	f := newFixture(t)
	seedRequest(f)

	_, err := f.svc.UpdateStatus(context.Background(), "req-1", "requester-1", StatusUpdate{Status: "Done"})

	assert.True(t, errors.Is(err, apperrors.ErrValidation))
}

func TestList_ValidatesFilter(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.List(context.Background(), models.RequestFilter{BloodType: "Z+"})
	assert.True(t, errors.Is(err, apperrors.ErrInvalidBloodType))

	_, err = f.svc.List(context.Background(), models.RequestFilter{District: "colombo", Urgency: models.UrgencyHigh})
	require.NoError(t, err)
	assert.Equal(t, "colombo", f.store.lastQuery.District)
}

func TestSearchCompatibleDonors(t *testing.T) {
	f := newFixture(t)

	got, err := f.svc.SearchCompatibleDonors(context.Background(), "ab+", "Kandy")

	require.NoError(t, err)
	assert.Len(t, got, 1)
	assert.Equal(t, models.BloodTypeABPos, f.directory.bloodType)
	assert.Equal(t, "Kandy", f.directory.district)

	_, err = f.svc.SearchCompatibleDonors(context.Background(), "", "")
	assert.True(t, errors.Is(err, apperrors.ErrValidation))

	_, err = f.svc.SearchCompatibleDonors(context.Background(), "XY", "")
	assert.True(t, errors.Is(err, apperrors.ErrInvalidBloodType))
}
