package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"donor-dispatch/internal/common/errors"
)

// Schema is applied by EnsureSchema. The ledger is its own table keyed by
// (request_id, donor_id) so one entry per donor holds at the storage level;
// seq preserves first-insertion order across updates.
const Schema = `
CREATE TABLE IF NOT EXISTS users (
	id              TEXT PRIMARY KEY,
	full_name       TEXT NOT NULL,
	email           TEXT NOT NULL DEFAULT '',
	phone           TEXT NOT NULL DEFAULT '',
	is_admin        BOOLEAN NOT NULL DEFAULT FALSE,
	is_donor        BOOLEAN NOT NULL DEFAULT FALSE,
	blood_type      TEXT,
	latitude        DOUBLE PRECISION,
	longitude       DOUBLE PRECISION,
	district        TEXT NOT NULL DEFAULT '',
	is_available    BOOLEAN NOT NULL DEFAULT TRUE,
	is_verified     BOOLEAN NOT NULL DEFAULT FALSE,
	notify_email    BOOLEAN NOT NULL DEFAULT FALSE,
	notify_sms      BOOLEAN NOT NULL DEFAULT FALSE,
	total_donations INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_users_donor_search ON users (blood_type, is_available) WHERE is_donor;

CREATE TABLE IF NOT EXISTS blood_requests (
	id             TEXT PRIMARY KEY,
	requester_id   TEXT NOT NULL,
	blood_type     TEXT NOT NULL,
	units          INTEGER NOT NULL CHECK (units BETWEEN 1 AND 10),
	appointment_at TIMESTAMPTZ NOT NULL,
	phone_number   TEXT NOT NULL,
	district       TEXT NOT NULL,
	hospital_name  TEXT NOT NULL,
	description    TEXT NOT NULL DEFAULT '',
	urgency        TEXT NOT NULL,
	latitude       DOUBLE PRECISION,
	longitude      DOUBLE PRECISION,
	status         TEXT NOT NULL,
	fulfilled_by   TEXT,
	fulfilled_at   TIMESTAMPTZ,
	notes          TEXT NOT NULL DEFAULT '',
	is_emergency   BOOLEAN NOT NULL DEFAULT FALSE,
	created_at     TIMESTAMPTZ NOT NULL,
	updated_at     TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_blood_requests_status ON blood_requests (status, blood_type);

CREATE TABLE IF NOT EXISTS request_donor_responses (
	request_id   TEXT NOT NULL REFERENCES blood_requests (id),
	donor_id     TEXT NOT NULL,
	status       TEXT NOT NULL,
	responded_at TIMESTAMPTZ NOT NULL,
	seq          BIGSERIAL,
	PRIMARY KEY (request_id, donor_id)
);

CREATE TABLE IF NOT EXISTS notifications (
	id                 TEXT PRIMARY KEY,
	recipient_id       TEXT NOT NULL,
	type               TEXT NOT NULL,
	title              VARCHAR(100) NOT NULL,
	message            VARCHAR(500) NOT NULL,
	priority           TEXT NOT NULL,
	related_request_id TEXT,
	related_user_id    TEXT,
	request_latitude   DOUBLE PRECISION,
	request_longitude  DOUBLE PRECISION,
	distance_km        DOUBLE PRECISION NOT NULL DEFAULT 0 CHECK (distance_km >= 0),
	blood_type_needed  TEXT,
	urgency            TEXT,
	status             TEXT NOT NULL,
	is_read            BOOLEAN NOT NULL DEFAULT FALSE,
	read_at            TIMESTAMPTZ,
	sent_at            TIMESTAMPTZ,
	clicked_at         TIMESTAMPTZ,
	dismissed_at       TIMESTAMPTZ,
	channels           JSONB NOT NULL,
	actions            JSONB NOT NULL,
	expires_at         TIMESTAMPTZ NOT NULL,
	created_at         TIMESTAMPTZ NOT NULL,
	updated_at         TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_notifications_recipient ON notifications (recipient_id, is_read, expires_at);
CREATE INDEX IF NOT EXISTS idx_notifications_cleanup ON notifications (expires_at, status);
`

// EnsureSchema creates missing tables and indexes.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

func storeError(operation string, err error) error {
	return errors.NewStoreUnavailableError(operation, err)
}
