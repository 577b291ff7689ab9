// internal/store/postgres/requests.go
package postgres

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"donor-dispatch/internal/common/errors"
	"donor-dispatch/internal/models"
)

const requestColumns = `id, requester_id, blood_type, units, appointment_at, phone_number, district,
	hospital_name, description, urgency, latitude, longitude, status, fulfilled_by, fulfilled_at,
	notes, is_emergency, created_at, updated_at`

// RequestRepository stores blood requests and their response ledgers.
type RequestRepository struct {
	db *sql.DB
}

func NewRequestRepository(db *sql.DB) *RequestRepository {
	return &RequestRepository{db: db}
}

func (r *RequestRepository) Create(ctx context.Context, req *models.BloodRequest) error {
	lat, lon := nullPoint(req.Location)
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO blood_requests (`+requestColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)`,
		req.ID, req.RequesterID, string(req.BloodType), req.Units, req.AppointmentAt, req.PhoneNumber, req.District,
		req.HospitalName, req.Description, string(req.Urgency), lat, lon, string(req.Status),
		nullString(req.FulfilledBy), nullTime(req.FulfilledAt), req.Notes, req.IsEmergency, req.CreatedAt, req.UpdatedAt,
	)
	if err != nil {
		return storeError("create blood request", err)
	}
	return nil
}

// FindByID loads the request and its ledger in insertion order.
func (r *RequestRepository) FindByID(ctx context.Context, id string) (*models.BloodRequest, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+requestColumns+` FROM blood_requests WHERE id = $1`, id)
	req, err := scanRequest(row)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, errors.NewNotFoundError("Blood request", id)
	}
	if err != nil {
		return nil, storeError("find blood request", err)
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT donor_id, status, responded_at
		FROM request_donor_responses
		WHERE request_id = $1
		ORDER BY seq`, id)
	if err != nil {
		return nil, storeError("load ledger", err)
	}
	defer rows.Close()

	var entries []models.LedgerEntry
	for rows.Next() {
		var e models.LedgerEntry
		var status string
		if err := rows.Scan(&e.DonorID, &status, &e.RespondedAt); err != nil {
			return nil, storeError("scan ledger entry", err)
		}
		e.Status = models.LedgerStatus(status)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, storeError("load ledger", err)
	}
	req.Ledger = models.NewLedger(entries...)
	return req, nil
}

// UpsertLedgerEntry inserts or replaces the donor's entry in a single statement.
// The conflicting row is locked, so responses from one donor apply in the
// order they reach the database and the last one wins.
func (r *RequestRepository) UpsertLedgerEntry(ctx context.Context, requestID string, entry models.LedgerEntry) (bool, error) {
	var inserted bool
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO request_donor_responses (request_id, donor_id, status, responded_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (request_id, donor_id) DO UPDATE
		SET status = EXCLUDED.status, responded_at = EXCLUDED.responded_at
		RETURNING (xmax = 0)`,
		requestID, entry.DonorID, string(entry.Status), entry.RespondedAt,
	).Scan(&inserted)

	switch {
	case isForeignKeyViolation(err):
		return false, errors.NewNotFoundError("Blood request", requestID)
	case err != nil:
		return false, storeError("upsert ledger entry", err)
	}
	return inserted, nil
}

// UpdateStatus writes the externally managed status fields.
func (r *RequestRepository) UpdateStatus(ctx context.Context, req *models.BloodRequest) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE blood_requests
		SET status = $2, fulfilled_by = $3, fulfilled_at = $4, notes = $5, updated_at = $6
		WHERE id = $1`,
		req.ID, string(req.Status), nullString(req.FulfilledBy), nullTime(req.FulfilledAt), req.Notes, req.UpdatedAt,
	)
	if err != nil {
		return storeError("update request status", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.NewNotFoundError("Blood request", req.ID)
	}
	return nil
}

// List returns requests matching the filter, newest first. Ledgers are not loaded.
func (r *RequestRepository) List(ctx context.Context, f models.RequestFilter) ([]*models.BloodRequest, error) {
	var conds []string
	var args []interface{}
	add := func(cond string, arg interface{}) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if f.RequesterID != "" {
		add("requester_id = $%d", f.RequesterID)
	}
	if f.Status != "" {
		add("status = $%d", string(f.Status))
	}
	if f.BloodType != "" {
		add("blood_type = $%d", string(f.BloodType))
	}
	if f.District != "" {
		add("district ILIKE '%%' || $%d || '%%'", f.District)
	}
	if f.Urgency != "" {
		add("urgency = $%d", string(f.Urgency))
	}

	query := `SELECT ` + requestColumns + ` FROM blood_requests`
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, " AND ")
	}
	query += ` ORDER BY created_at DESC`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storeError("list blood requests", err)
	}
	defer rows.Close()

	var out []*models.BloodRequest
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, storeError("scan blood request", err)
		}
		out = append(out, req)
	}
	if err := rows.Err(); err != nil {
		return nil, storeError("list blood requests", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRequest(s rowScanner) (*models.BloodRequest, error) {
	var (
		req                        models.BloodRequest
		bloodType, urgency, status string
		lat, lon                   sql.NullFloat64
		fulfilledBy                sql.NullString
		fulfilledAt                sql.NullTime
	)
	err := s.Scan(
		&req.ID, &req.RequesterID, &bloodType, &req.Units, &req.AppointmentAt, &req.PhoneNumber, &req.District,
		&req.HospitalName, &req.Description, &urgency, &lat, &lon, &status, &fulfilledBy, &fulfilledAt,
		&req.Notes, &req.IsEmergency, &req.CreatedAt, &req.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	req.BloodType = models.BloodType(bloodType)
	req.Urgency = models.UrgencyLevel(urgency)
	req.Status = models.RequestStatus(status)
	req.Location = pointFrom(lat, lon)
	req.FulfilledBy = fulfilledBy.String
	if fulfilledAt.Valid {
		t := fulfilledAt.Time
		req.FulfilledAt = &t
	}
	return &req, nil
}

func isForeignKeyViolation(err error) bool {
	var pqErr *pq.Error
	return stderrors.As(err, &pqErr) && pqErr.Code == "23503"
}

func nullPoint(p *models.GeoPoint) (sql.NullFloat64, sql.NullFloat64) {
	if p == nil {
		return sql.NullFloat64{}, sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: p.Lat, Valid: true}, sql.NullFloat64{Float64: p.Lon, Valid: true}
}

func pointFrom(lat, lon sql.NullFloat64) *models.GeoPoint {
	if !lat.Valid || !lon.Valid {
		return nil
	}
	return &models.GeoPoint{Lat: lat.Float64, Lon: lon.Float64}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
