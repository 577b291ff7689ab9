// internal/matching/matching_test.go
package matching

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"donor-dispatch/internal/common/config"
	apperrors "donor-dispatch/internal/common/errors"
	"donor-dispatch/internal/common/logger"
	"donor-dispatch/internal/models"
)

type mockDonorRepository struct {
	FindDonorsFunc func(ctx context.Context, q models.DonorQuery) ([]models.DonorCandidate, error)
	queries        []models.DonorQuery
}

func (m *mockDonorRepository) FindDonors(ctx context.Context, q models.DonorQuery) ([]models.DonorCandidate, error) {
	m.queries = append(m.queries, q)
	if m.FindDonorsFunc != nil {
		return m.FindDonorsFunc(ctx, q)
	}
	return nil, nil
}

func staticDonors(donors ...models.DonorCandidate) *mockDonorRepository {
	return &mockDonorRepository{
		FindDonorsFunc: func(_ context.Context, _ models.DonorQuery) ([]models.DonorCandidate, error) {
			return donors, nil
		},
	}
}

func TestCompatibleDonorTypes(t *testing.T) {
	tests := []struct {
		recipient models.BloodType
		want      []models.BloodType
	}{
		{"A+", []models.BloodType{"A+", "A-", "O+", "O-"}},
		{"A-", []models.BloodType{"A-", "O-"}},
		{"B+", []models.BloodType{"B+", "B-", "O+", "O-"}},
		{"B-", []models.BloodType{"B-", "O-"}},
		{"AB+", models.AllBloodTypes},
		{"AB-", []models.BloodType{"A-", "B-", "AB-", "O-"}},
		{"O+", []models.BloodType{"O+", "O-"}},
		{"O-", []models.BloodType{"O-"}},
		{"Z+", []models.BloodType{"Z+"}},
	}

	for _, tt := range tests {
		t.Run(string(tt.recipient), func(t *testing.T) {
			assert.ElementsMatch(t, tt.want, CompatibleDonorTypes(tt.recipient))
		})
	}
}

func TestCompatibleDonorTypes_Properties(t *testing.T) {
	for _, bt := range models.AllBloodTypes {
		types := CompatibleDonorTypes(bt)
		assert.Contains(t, types, bt, "every type can receive its own type")
		assert.Contains(t, types, models.BloodTypeONeg, "O- is the universal donor")
	}
	assert.ElementsMatch(t, models.AllBloodTypes, RecipientTypes(models.BloodTypeONeg))
	assert.Equal(t, []models.BloodType{models.BloodTypeABPos}, RecipientTypes(models.BloodTypeABPos))
}

func TestCompatibleDonorTypes_ReturnsCopy(t *testing.T) {
	types := CompatibleDonorTypes(models.BloodTypeONeg)
	types[0] = "mutated"
	assert.Equal(t, []models.BloodType{models.BloodTypeONeg}, CompatibleDonorTypes(models.BloodTypeONeg))
}

func TestDistanceKm(t *testing.T) {
	colombo := models.GeoPoint{Lat: 6.9271, Lon: 79.8612}
	kandy := models.GeoPoint{Lat: 7.2906, Lon: 80.6337}

	assert.Equal(t, 0.0, Between(colombo, colombo))
	assert.InDelta(t, Between(colombo, kandy), Between(kandy, colombo), 1e-9)
	assert.InDelta(t, 94.5, Between(colombo, kandy), 1.0)

	// one degree of latitude
	assert.InDelta(t, 111.19, DistanceKm(0, 0, 1, 0), 0.01)
	// antipodal points stay finite
	assert.InDelta(t, math.Pi*EarthRadiusKm, DistanceKm(0, 0, 0, 180), 1e-6)
	assert.True(t, math.IsNaN(DistanceKm(math.NaN(), 0, 0, 0)))
}

func TestPolicyFromConfig(t *testing.T) {
	p := PolicyFromConfig(config.MatchingConfig{
		DefaultRadiusKm: 20,
		RadiusKm:        map[string]float64{"critical": 75, "high": 30, "bogus": 1},
		DefaultPriority: "medium",
		Priority:        map[string]string{"critical": "Critical", "high": "high"},
	})

	assert.Equal(t, 75.0, p.RadiusFor(models.UrgencyCritical))
	assert.Equal(t, 30.0, p.RadiusFor(models.UrgencyHigh))
	assert.Equal(t, 20.0, p.RadiusFor(models.UrgencyLow))
	assert.Equal(t, models.PriorityCritical, p.PriorityFor(models.UrgencyCritical))
	assert.Equal(t, models.PriorityHigh, p.PriorityFor(models.UrgencyHigh))
	assert.Equal(t, models.PriorityMedium, p.PriorityFor(models.UrgencyLow))
}

func TestDefaultPolicy(t *testing.T) {
	p := DefaultPolicy()
	assert.Equal(t, 50.0, p.RadiusFor(models.UrgencyCritical))
	for _, u := range []models.UrgencyLevel{models.UrgencyLow, models.UrgencyMedium, models.UrgencyHigh} {
		assert.Equal(t, 25.0, p.RadiusFor(u))
		assert.Equal(t, models.PriorityHigh, p.PriorityFor(u))
	}
	assert.Equal(t, models.PriorityCritical, p.PriorityFor(models.UrgencyCritical))
}

func TestFindDispatchCandidates_RadiusPolicy(t *testing.T) {
	center := models.GeoPoint{Lat: 0, Lon: 0}
	// ~40 km north of center
	donor := models.DonorCandidate{ID: "d-40km", BloodType: "O-", Available: true, Location: &models.GeoPoint{Lat: 0.36, Lon: 0}}

	tests := []struct {
		name    string
		urgency models.UrgencyLevel
		want    int
	}{
		{"critical reaches 40km", models.UrgencyCritical, 1},
		{"medium stops at 25km", models.UrgencyMedium, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewSearcher(staticDonors(donor), DefaultPolicy(), logger.NewTestLogger(t))
			got, err := s.FindDispatchCandidates(context.Background(), "A+", &center, tt.urgency, "")
			require.NoError(t, err)
			assert.Len(t, got, tt.want)
			if tt.want == 1 {
				assert.True(t, got[0].HasDistance)
				assert.InDelta(t, 40.0, got[0].DistanceKm, 0.1)
			}
		})
	}
}

func TestFindDispatchCandidates_Filters(t *testing.T) {
	center := models.GeoPoint{Lat: 6.9, Lon: 79.8}
	near := &models.GeoPoint{Lat: 6.91, Lon: 79.81}

	repo := staticDonors(
		models.DonorCandidate{ID: "unverified", Available: true, Verified: false, Location: near},
		models.DonorCandidate{ID: "unavailable", Available: false, Verified: true, Location: near},
		models.DonorCandidate{ID: "requester", Available: true, Verified: true, Location: near},
		models.DonorCandidate{ID: "no-location", Available: true, Verified: true},
	)
	s := NewSearcher(repo, DefaultPolicy(), logger.NewNoOpLogger())

	got, err := s.FindDispatchCandidates(context.Background(), "B+", &center, models.UrgencyHigh, "requester")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "unverified", got[0].Donor.ID)

	require.Len(t, repo.queries, 1)
	q := repo.queries[0]
	assert.False(t, q.RequireVerified)
	assert.Equal(t, 25.0, q.RadiusKm)
	assert.ElementsMatch(t, []models.BloodType{"B+", "B-", "O+", "O-"}, q.BloodTypes)
}

func TestFindDispatchCandidates_NoCenter(t *testing.T) {
	repo := staticDonors(
		models.DonorCandidate{ID: "far", Available: true, Location: &models.GeoPoint{Lat: 50, Lon: 50}},
		models.DonorCandidate{ID: "nowhere", Available: true},
	)
	s := NewSearcher(repo, DefaultPolicy(), logger.NewNoOpLogger())

	got, err := s.FindDispatchCandidates(context.Background(), "O+", nil, models.UrgencyLow, "")
	require.NoError(t, err)
	assert.Len(t, got, 2)
	for _, c := range got {
		assert.False(t, c.HasDistance)
		assert.Zero(t, c.DistanceKm)
	}
	assert.Nil(t, repo.queries[0].Center)
}

func TestFindDispatchCandidates_InvalidLocation(t *testing.T) {
	repo := &mockDonorRepository{}
	s := NewSearcher(repo, DefaultPolicy(), logger.NewNoOpLogger())

	for _, p := range []models.GeoPoint{{Lat: 91, Lon: 0}, {Lat: 0, Lon: -181}, {Lat: math.Inf(1), Lon: 0}, {Lat: math.NaN(), Lon: 0}} {
		p := p
		_, err := s.FindDispatchCandidates(context.Background(), "A+", &p, models.UrgencyHigh, "")
		require.Error(t, err)
		assert.True(t, errors.Is(err, apperrors.ErrInvalidLocation))
	}
	assert.Empty(t, repo.queries, "store must not be queried with a malformed center")
}

func TestFindDispatchCandidates_Empty(t *testing.T) {
	s := NewSearcher(staticDonors(), DefaultPolicy(), logger.NewNoOpLogger())
	got, err := s.FindDispatchCandidates(context.Background(), "AB+", &models.GeoPoint{Lat: 1, Lon: 1}, models.UrgencyLow, "")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestFindDispatchCandidates_StoreError(t *testing.T) {
	storeErr := apperrors.NewStoreUnavailableError("find donors", errors.New("connection refused"))
	repo := &mockDonorRepository{
		FindDonorsFunc: func(context.Context, models.DonorQuery) ([]models.DonorCandidate, error) {
			return nil, storeErr
		},
	}
	s := NewSearcher(repo, DefaultPolicy(), logger.NewNoOpLogger())

	_, err := s.FindDispatchCandidates(context.Background(), "A+", nil, models.UrgencyLow, "")
	assert.True(t, errors.Is(err, apperrors.ErrStoreUnavailable))
}

func TestFindDirectoryCandidates_StrictAndSorted(t *testing.T) {
	repo := staticDonors(
		models.DonorCandidate{ID: "few", Available: true, Verified: true, TotalDonations: 1},
		models.DonorCandidate{ID: "unverified", Available: true, Verified: false, TotalDonations: 99},
		models.DonorCandidate{ID: "many", Available: true, Verified: true, TotalDonations: 12},
	)
	s := NewSearcher(repo, DefaultPolicy(), logger.NewNoOpLogger())

	got, err := s.FindDirectoryCandidates(context.Background(), "A-", nil, models.UrgencyMedium, "Colombo")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "many", got[0].Donor.ID)
	assert.Equal(t, "few", got[1].Donor.ID)

	assert.True(t, repo.queries[0].RequireVerified)
	assert.Equal(t, "Colombo", repo.queries[0].District)
}
