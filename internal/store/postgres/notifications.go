// internal/store/postgres/notifications.go
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"donor-dispatch/internal/common/database"
	"donor-dispatch/internal/common/errors"
	"donor-dispatch/internal/models"
)

const notificationColumns = `id, recipient_id, type, title, message, priority, related_request_id,
	related_user_id, request_latitude, request_longitude, distance_km, blood_type_needed, urgency,
	status, is_read, read_at, sent_at, clicked_at, dismissed_at, channels, actions, expires_at,
	created_at, updated_at`

type NotificationRepository struct {
	db *sql.DB
}

func NewNotificationRepository(db *sql.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

// InsertMany writes the batch in one transaction: either every row is created
// or none is, and the returned count reflects that.
func (r *NotificationRepository) InsertMany(ctx context.Context, notifications []*models.Notification) (int, error) {
	if len(notifications) == 0 {
		return 0, nil
	}

	err := database.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO notifications (`+notificationColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16,
				$17, $18, $19, $20, $21, $22, $23, $24)`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, n := range notifications {
			channels, actions, err := marshalJSONColumns(n)
			if err != nil {
				return err
			}
			lat, lon := nullPoint(n.RequestLocation)
			if _, err := stmt.ExecContext(ctx,
				n.ID, n.RecipientID, string(n.Type), n.Title, n.Message, string(n.Priority),
				nullString(n.RelatedRequestID), nullString(n.RelatedUserID), lat, lon, n.DistanceKm,
				nullString(string(n.BloodTypeNeeded)), nullString(string(n.Urgency)),
				string(n.Status), n.IsRead, nullTime(n.ReadAt), nullTime(n.SentAt), nullTime(n.ClickedAt),
				nullTime(n.DismissedAt), channels, actions, n.ExpiresAt, n.CreatedAt, n.UpdatedAt,
			); err != nil {
				return fmt.Errorf("insert notification %s: %w", n.ID, err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, storeError("insert notifications", err)
	}
	return len(notifications), nil
}

func (r *NotificationRepository) FindForRecipient(ctx context.Context, id, recipientID string) (*models.Notification, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+notificationColumns+` FROM notifications WHERE id = $1 AND recipient_id = $2`, id, recipientID)
	n, err := scanNotification(row)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, errors.NewNotFoundError("Notification", id)
	}
	if err != nil {
		return nil, storeError("find notification", err)
	}
	return n, nil
}

// FindByID loads a notification regardless of recipient. Used by delivery.
func (r *NotificationRepository) FindByID(ctx context.Context, id string) (*models.Notification, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+notificationColumns+` FROM notifications WHERE id = $1`, id)
	n, err := scanNotification(row)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, errors.NewNotFoundError("Notification", id)
	}
	if err != nil {
		return nil, storeError("find notification", err)
	}
	return n, nil
}

// UpdateState writes the lifecycle columns. Channel flags are owned by
// UpdateChannels and are left untouched.
func (r *NotificationRepository) UpdateState(ctx context.Context, n *models.Notification) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE notifications
		SET status = $3, is_read = $4, read_at = $5, sent_at = $6, clicked_at = $7,
			dismissed_at = $8, updated_at = $9
		WHERE id = $1 AND recipient_id = $2`,
		n.ID, n.RecipientID, string(n.Status), n.IsRead, nullTime(n.ReadAt), nullTime(n.SentAt),
		nullTime(n.ClickedAt), nullTime(n.DismissedAt), n.UpdatedAt,
	)
	if err != nil {
		return storeError("update notification", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return errors.NewNotFoundError("Notification", n.ID)
	}
	return nil
}

// UpdateChannels writes only the per-channel delivery flags.
func (r *NotificationRepository) UpdateChannels(ctx context.Context, id, recipientID string, channels models.Channels, now time.Time) error {
	encoded, err := json.Marshal(channels)
	if err != nil {
		return storeError("encode notification channels", err)
	}
	res, err := r.db.ExecContext(ctx, `
		UPDATE notifications SET channels = $3, updated_at = $4
		WHERE id = $1 AND recipient_id = $2`,
		id, recipientID, encoded, now,
	)
	if err != nil {
		return storeError("update notification channels", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return errors.NewNotFoundError("Notification", id)
	}
	return nil
}

// MarkAllRead is one scoped UPDATE. Pending and Sent rows move to Read; rows in
// other states only gain the read flag.
func (r *NotificationRepository) MarkAllRead(ctx context.Context, recipientID string, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE notifications
		SET is_read = TRUE,
			read_at = $2,
			status = CASE WHEN status IN ('Pending', 'Sent') THEN 'Read' ELSE status END,
			updated_at = $2
		WHERE recipient_id = $1 AND is_read = FALSE AND expires_at > $2`,
		recipientID, now,
	)
	if err != nil {
		return 0, storeError("mark all read", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, storeError("mark all read", err)
	}
	return affected, nil
}

func (r *NotificationRepository) CountUnread(ctx context.Context, recipientID string, now time.Time) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM notifications
		WHERE recipient_id = $1 AND is_read = FALSE AND expires_at > $2`,
		recipientID, now,
	).Scan(&count)
	if err != nil {
		return 0, storeError("count unread", err)
	}
	return count, nil
}

func (r *NotificationRepository) List(ctx context.Context, f models.NotificationFilter, now time.Time) ([]*models.Notification, error) {
	args := []interface{}{f.RecipientID, now}
	conds := []string{"recipient_id = $1", "expires_at > $2"}
	if f.Type != "" {
		args = append(args, string(f.Type))
		conds = append(conds, fmt.Sprintf("type = $%d", len(args)))
	}
	if f.Status != "" {
		args = append(args, string(f.Status))
		conds = append(conds, fmt.Sprintf("status = $%d", len(args)))
	}
	if f.IsRead != nil {
		args = append(args, *f.IsRead)
		conds = append(conds, fmt.Sprintf("is_read = $%d", len(args)))
	}
	args = append(args, f.Limit, f.Offset)

	query := fmt.Sprintf(`SELECT %s FROM notifications WHERE %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		notificationColumns, strings.Join(conds, " AND "), len(args)-1, len(args))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storeError("list notifications", err)
	}
	defer rows.Close()

	var out []*models.Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, storeError("scan notification", err)
		}
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, storeError("list notifications", err)
	}
	return out, nil
}

func (r *NotificationRepository) StatsByType(ctx context.Context, recipientID string, now time.Time) ([]models.TypeStats, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT type,
			COUNT(*),
			COUNT(*) FILTER (WHERE NOT is_read),
			COUNT(*) FILTER (WHERE priority IN ('High', 'Critical'))
		FROM notifications
		WHERE recipient_id = $1 AND expires_at > $2
		GROUP BY type
		ORDER BY type`,
		recipientID, now,
	)
	if err != nil {
		return nil, storeError("notification stats", err)
	}
	defer rows.Close()

	var stats []models.TypeStats
	for rows.Next() {
		var s models.TypeStats
		var typ string
		if err := rows.Scan(&typ, &s.Total, &s.Unread, &s.HighPriority); err != nil {
			return nil, storeError("scan notification stats", err)
		}
		s.Type = models.NotificationType(typ)
		stats = append(stats, s)
	}
	if err := rows.Err(); err != nil {
		return nil, storeError("notification stats", err)
	}
	return stats, nil
}

// ExpireDue moves every due, non-terminal notification to Expired.
func (r *NotificationRepository) ExpireDue(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE notifications
		SET status = 'Expired', updated_at = $1
		WHERE expires_at <= $1 AND status NOT IN ('Dismissed', 'Expired')`,
		now,
	)
	if err != nil {
		return 0, storeError("expire notifications", err)
	}
	affected, _ := res.RowsAffected()
	return affected, nil
}

func (r *NotificationRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM notifications
		WHERE expires_at < $1 AND status IN ('Dismissed', 'Expired')`,
		now,
	)
	if err != nil {
		return 0, storeError("delete expired notifications", err)
	}
	affected, _ := res.RowsAffected()
	return affected, nil
}

func marshalJSONColumns(n *models.Notification) (channels, actions []byte, err error) {
	channels, err = json.Marshal(n.Channels)
	if err != nil {
		return nil, nil, fmt.Errorf("encode channels: %w", err)
	}
	list := n.Actions
	if list == nil {
		list = []models.ActionButton{}
	}
	actions, err = json.Marshal(list)
	if err != nil {
		return nil, nil, fmt.Errorf("encode actions: %w", err)
	}
	return channels, actions, nil
}

func scanNotification(s rowScanner) (*models.Notification, error) {
	var (
		n                                      models.Notification
		typ, priority, status                  string
		relatedRequest, relatedUser            sql.NullString
		bloodType, urgency                     sql.NullString
		lat, lon                               sql.NullFloat64
		readAt, sentAt, clickedAt, dismissedAt sql.NullTime
		channels, actions                      []byte
	)
	err := s.Scan(
		&n.ID, &n.RecipientID, &typ, &n.Title, &n.Message, &priority, &relatedRequest,
		&relatedUser, &lat, &lon, &n.DistanceKm, &bloodType, &urgency,
		&status, &n.IsRead, &readAt, &sentAt, &clickedAt, &dismissedAt, &channels, &actions, &n.ExpiresAt,
		&n.CreatedAt, &n.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	n.Type = models.NotificationType(typ)
	n.Priority = models.Priority(priority)
	n.Status = models.NotificationStatus(status)
	n.RelatedRequestID = relatedRequest.String
	n.RelatedUserID = relatedUser.String
	n.BloodTypeNeeded = models.BloodType(bloodType.String)
	n.Urgency = models.UrgencyLevel(urgency.String)
	n.RequestLocation = pointFrom(lat, lon)
	n.ReadAt = timePtr(readAt)
	n.SentAt = timePtr(sentAt)
	n.ClickedAt = timePtr(clickedAt)
	n.DismissedAt = timePtr(dismissedAt)

	if len(channels) > 0 {
		if err := json.Unmarshal(channels, &n.Channels); err != nil {
			return nil, fmt.Errorf("decode channels: %w", err)
		}
	}
	if len(actions) > 0 {
		if err := json.Unmarshal(actions, &n.Actions); err != nil {
			return nil, fmt.Errorf("decode actions: %w", err)
		}
	}
	return &n, nil
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}
