// internal/store/postgres/donors.go
package postgres

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"math"
	"strings"

	"github.com/lib/pq"

	"donor-dispatch/internal/common/errors"
	"donor-dispatch/internal/models"
)

const kmPerDegreeLat = 111.195

// DonorRepository serves donor projections and user contact data from the users table.
type DonorRepository struct {
	db *sql.DB
}

func NewDonorRepository(db *sql.DB) *DonorRepository {
	return &DonorRepository{db: db}
}

// FindDonors returns available donors of the requested types. When a center is
// set, a latitude/longitude bounding box of the radius narrows the scan; the
// exact great-circle check is left to the caller.
func (r *DonorRepository) FindDonors(ctx context.Context, q models.DonorQuery) ([]models.DonorCandidate, error) {
	types := make([]string, 0, len(q.BloodTypes))
	for _, t := range q.BloodTypes {
		types = append(types, string(t))
	}

	args := []interface{}{pq.Array(types)}
	conds := []string{"is_donor", "is_available", "blood_type = ANY($1)"}
	add := func(cond string, vals ...interface{}) {
		idx := make([]interface{}, len(vals))
		for i, v := range vals {
			args = append(args, v)
			idx[i] = len(args)
		}
		conds = append(conds, fmt.Sprintf(cond, idx...))
	}

	if q.RequireVerified {
		conds = append(conds, "is_verified")
	}
	if q.District != "" {
		add("district ILIKE '%%' || $%d || '%%'", q.District)
	}
	if q.Center != nil && q.RadiusKm > 0 {
		minLat, maxLat, minLon, maxLon, lonBounded := boundingBox(*q.Center, q.RadiusKm)
		add("latitude BETWEEN $%d AND $%d", minLat, maxLat)
		if lonBounded {
			add("longitude BETWEEN $%d AND $%d", minLon, maxLon)
		} else {
			conds = append(conds, "longitude IS NOT NULL")
		}
	}

	query := `
		SELECT id, full_name, blood_type, latitude, longitude, district,
			is_available, is_verified, notify_email, notify_sms, total_donations
		FROM users
		WHERE ` + strings.Join(conds, " AND ") + `
		ORDER BY total_donations DESC, id`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storeError("find donors", err)
	}
	return scanDonors(rows, "find donors")
}

// ListDonors returns every user with a blood type on file. Availability is
// reported as false for users who are no longer registered donors, so a
// copy rebuilt from this list never serves them.
func (r *DonorRepository) ListDonors(ctx context.Context) ([]models.DonorCandidate, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, full_name, blood_type, latitude, longitude, district,
			is_donor AND is_available, is_verified, notify_email, notify_sms, total_donations
		FROM users
		WHERE blood_type IS NOT NULL AND blood_type <> ''
		ORDER BY id`)
	if err != nil {
		return nil, storeError("list donors", err)
	}
	return scanDonors(rows, "list donors")
}

func scanDonors(rows *sql.Rows, operation string) ([]models.DonorCandidate, error) {
	defer rows.Close()

	var donors []models.DonorCandidate
	for rows.Next() {
		var (
			d         models.DonorCandidate
			bloodType string
			lat, lon  sql.NullFloat64
		)
		if err := rows.Scan(&d.ID, &d.FullName, &bloodType, &lat, &lon, &d.District,
			&d.Available, &d.Verified, &d.Preferences.Email, &d.Preferences.SMS, &d.TotalDonations); err != nil {
			return nil, storeError("scan donor", err)
		}
		d.BloodType = models.BloodType(bloodType)
		d.Location = pointFrom(lat, lon)
		donors = append(donors, d)
	}
	if err := rows.Err(); err != nil {
		return nil, storeError(operation, err)
	}
	return donors, nil
}

// boundingBox returns the lat/lon rectangle enclosing a circle of radiusKm.
// lonBounded is false when the box would wrap the antimeridian or a pole.
func boundingBox(c models.GeoPoint, radiusKm float64) (minLat, maxLat, minLon, maxLon float64, lonBounded bool) {
	dLat := radiusKm / kmPerDegreeLat
	minLat = math.Max(-90, c.Lat-dLat)
	maxLat = math.Min(90, c.Lat+dLat)
	if minLat <= -90 || maxLat >= 90 {
		return minLat, maxLat, 0, 0, false
	}

	// widest longitude span of a spherical cap, reached north or south of the center
	angular := radiusKm / kmPerDegreeLat * math.Pi / 180
	ratio := math.Sin(angular) / math.Cos(c.Lat*math.Pi/180)
	if ratio >= 1 {
		return minLat, maxLat, 0, 0, false
	}
	dLon := math.Asin(ratio) * 180 / math.Pi
	minLon, maxLon = c.Lon-dLon, c.Lon+dLon
	if minLon < -180 || maxLon > 180 {
		return minLat, maxLat, 0, 0, false
	}
	return minLat, maxLat, minLon, maxLon, true
}

// UserRepository reads display and contact data for any account.
type UserRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) FindByID(ctx context.Context, id string) (*models.User, error) {
	var u models.User
	err := r.db.QueryRowContext(ctx,
		`SELECT id, full_name, email, phone, is_admin FROM users WHERE id = $1`, id,
	).Scan(&u.ID, &u.FullName, &u.Email, &u.Phone, &u.IsAdmin)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, errors.NewNotFoundError("User", id)
	}
	if err != nil {
		return nil, storeError("find user", err)
	}
	return &u, nil
}
