// internal/matching/search.go
package matching

import (
	"context"
	"sort"

	"donor-dispatch/internal/common/errors"
	"donor-dispatch/internal/common/logger"
	"donor-dispatch/internal/models"
)

// DonorRepository is the external donor store. Implementations may treat the
// radius as a coarse prefilter; the searcher applies the exact distance check.
type DonorRepository interface {
	FindDonors(ctx context.Context, q models.DonorQuery) ([]models.DonorCandidate, error)
}

// Candidate is a donor eligible for a request together with its distance to
// the request location. DistanceKm is 0 when either side has no coordinates.
type Candidate struct {
	Donor       models.DonorCandidate
	DistanceKm  float64
	HasDistance bool
}

type Searcher struct {
	donors DonorRepository
	policy Policy
	logger logger.Logger
}

func NewSearcher(donors DonorRepository, policy Policy, log logger.Logger) *Searcher {
	return &Searcher{donors: donors, policy: policy, logger: log}
}

func (s *Searcher) Policy() Policy {
	return s.policy
}

// FindDispatchCandidates returns available donors of a compatible type within
// the urgency radius of center. Verification is not required. A nil center
// disables the distance filter. excludeID drops the requester from the result.
func (s *Searcher) FindDispatchCandidates(ctx context.Context, bloodType models.BloodType, center *models.GeoPoint, urgency models.UrgencyLevel, excludeID string) ([]Candidate, error) {
	return s.find(ctx, bloodType, center, urgency, false, "", excludeID)
}

// FindDirectoryCandidates is the strict query used for manual directory search:
// verified and available donors of a compatible type, optionally limited to a
// district, ordered by total donations.
func (s *Searcher) FindDirectoryCandidates(ctx context.Context, bloodType models.BloodType, center *models.GeoPoint, urgency models.UrgencyLevel, district string) ([]Candidate, error) {
	candidates, err := s.find(ctx, bloodType, center, urgency, true, district, "")
	if err != nil {
		return nil, err
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Donor.TotalDonations > candidates[j].Donor.TotalDonations
	})
	return candidates, nil
}

func (s *Searcher) find(ctx context.Context, bloodType models.BloodType, center *models.GeoPoint, urgency models.UrgencyLevel, strict bool, district, excludeID string) ([]Candidate, error) {
	if center != nil && !center.Valid() {
		return nil, errors.NewInvalidLocationError(center.Lat, center.Lon)
	}

	radius := s.policy.RadiusFor(urgency)
	query := models.DonorQuery{
		BloodTypes:      CompatibleDonorTypes(bloodType),
		RequireVerified: strict,
		District:        district,
		Center:          center,
		RadiusKm:        radius,
	}

	donors, err := s.donors.FindDonors(ctx, query)
	if err != nil {
		return nil, err
	}

	candidates := make([]Candidate, 0, len(donors))
	for _, d := range donors {
		if !d.Available || (strict && !d.Verified) || d.ID == excludeID {
			continue
		}
		c := Candidate{Donor: d}
		if center != nil {
			// donors without a usable location cannot satisfy a radius filter
			if d.Location == nil || !d.Location.Valid() {
				continue
			}
			c.DistanceKm = Between(*center, *d.Location)
			c.HasDistance = true
			if c.DistanceKm > radius {
				continue
			}
		}
		candidates = append(candidates, c)
	}

	s.logger.Debug("Candidate search completed", map[string]interface{}{
		"bloodType":  bloodType,
		"urgency":    urgency,
		"radiusKm":   radius,
		"strict":     strict,
		"fetched":    len(donors),
		"candidates": len(candidates),
	})
	return candidates, nil
}
