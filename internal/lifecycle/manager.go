// internal/lifecycle/manager.go
package lifecycle

import (
	"context"
	"time"

	"donor-dispatch/internal/common/logger"
	"donor-dispatch/internal/common/metrics"
	"donor-dispatch/internal/models"
)

// Store is the notification repository as seen by the lifecycle manager.
// All "live" queries exclude notifications whose expiry is at or before now.
type Store interface {
	FindForRecipient(ctx context.Context, id, recipientID string) (*models.Notification, error)
	UpdateState(ctx context.Context, n *models.Notification) error
	UpdateChannels(ctx context.Context, id, recipientID string, channels models.Channels, now time.Time) error
	MarkAllRead(ctx context.Context, recipientID string, now time.Time) (int64, error)
	CountUnread(ctx context.Context, recipientID string, now time.Time) (int, error)
	List(ctx context.Context, filter models.NotificationFilter, now time.Time) ([]*models.Notification, error)
	StatsByType(ctx context.Context, recipientID string, now time.Time) ([]models.TypeStats, error)
	ExpireDue(ctx context.Context, now time.Time) (int64, error)
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

type Manager struct {
	store  Store
	logger logger.Logger
	now    func() time.Time
}

func NewManager(store Store, log logger.Logger) *Manager {
	return &Manager{store: store, logger: log, now: time.Now}
}

// WithClock replaces the time source. Intended for tests.
func (m *Manager) WithClock(now func() time.Time) *Manager {
	m.now = now
	return m
}

func (m *Manager) MarkRead(ctx context.Context, id, recipientID string) (*models.Notification, error) {
	return m.apply(ctx, id, recipientID, EventRead)
}

// MarkClicked records a click and implies read.
func (m *Manager) MarkClicked(ctx context.Context, id, recipientID string) (*models.Notification, error) {
	return m.apply(ctx, id, recipientID, EventClick)
}

func (m *Manager) Dismiss(ctx context.Context, id, recipientID string) (*models.Notification, error) {
	return m.apply(ctx, id, recipientID, EventDismiss)
}

// MarkSent records delivery; Pending becomes Sent.
func (m *Manager) MarkSent(ctx context.Context, id, recipientID string) (*models.Notification, error) {
	return m.apply(ctx, id, recipientID, EventSent)
}

// SaveChannels persists the delivery flags of n. Status and read state are
// only ever changed through Apply, so a stale snapshot cannot undo them.
func (m *Manager) SaveChannels(ctx context.Context, n *models.Notification) error {
	now := m.now().UTC()
	if err := m.store.UpdateChannels(ctx, n.ID, n.RecipientID, n.Channels, now); err != nil {
		return err
	}
	n.UpdatedAt = now
	return nil
}

func (m *Manager) Get(ctx context.Context, id, recipientID string) (*models.Notification, error) {
	return m.store.FindForRecipient(ctx, id, recipientID)
}

func (m *Manager) apply(ctx context.Context, id, recipientID string, event Event) (*models.Notification, error) {
	n, err := m.store.FindForRecipient(ctx, id, recipientID)
	if err != nil {
		return nil, err
	}

	from := n.Status
	changed, applyErr := Apply(n, event, m.now())
	if changed {
		if err := m.store.UpdateState(ctx, n); err != nil {
			m.logger.Error("Failed to persist notification state", map[string]interface{}{
				"notificationId": id,
				"recipientId":    recipientID,
				"event":          event,
				"error":          err,
			})
			return nil, err
		}
		metrics.NotificationTransitions.WithLabelValues(string(event), string(n.Status)).Inc()
	}
	if applyErr != nil {
		m.logger.Debug("Notification transition rejected", map[string]interface{}{
			"notificationId": id,
			"event":          event,
			"status":         n.Status,
		})
		return n, applyErr
	}

	if changed {
		m.logger.Debug("Notification transitioned", map[string]interface{}{
			"notificationId": id,
			"event":          event,
			"from":           from,
			"to":             n.Status,
		})
	}
	return n, nil
}

// MarkAllRead marks every live unread notification of the recipient in one update.
func (m *Manager) MarkAllRead(ctx context.Context, recipientID string) (int64, error) {
	updated, err := m.store.MarkAllRead(ctx, recipientID, m.now().UTC())
	if err != nil {
		return 0, err
	}
	metrics.NotificationTransitions.WithLabelValues("read_all", string(models.StatusRead)).Add(float64(updated))
	return updated, nil
}

// GetUnreadCount counts unread notifications that have not yet expired.
func (m *Manager) GetUnreadCount(ctx context.Context, recipientID string) (int, error) {
	return m.store.CountUnread(ctx, recipientID, m.now().UTC())
}

// List returns live notifications for the recipient, newest first.
func (m *Manager) List(ctx context.Context, filter models.NotificationFilter) ([]*models.Notification, error) {
	if filter.Limit <= 0 || filter.Limit > 100 {
		filter.Limit = 20
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	return m.store.List(ctx, filter, m.now().UTC())
}

func (m *Manager) Stats(ctx context.Context, recipientID string) ([]models.TypeStats, error) {
	return m.store.StatsByType(ctx, recipientID, m.now().UTC())
}

// CleanupExpired moves due non-terminal notifications to Expired, then deletes
// those past expiry that are dismissed or expired.
func (m *Manager) CleanupExpired(ctx context.Context) (int64, error) {
	now := m.now().UTC()
	expired, err := m.store.ExpireDue(ctx, now)
	if err != nil {
		return 0, err
	}
	deleted, err := m.store.DeleteExpired(ctx, now)
	if err != nil {
		return 0, err
	}
	if expired > 0 || deleted > 0 {
		m.logger.Info("Cleaned up expired notifications", map[string]interface{}{
			"expired": expired,
			"deleted": deleted,
		})
	}
	return deleted, nil
}

// RunCleanup calls CleanupExpired every interval until ctx ends.
func (m *Manager) RunCleanup(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := m.CleanupExpired(ctx); err != nil {
				m.logger.Warn("Notification cleanup failed", map[string]interface{}{"error": err})
			}
		}
	}
}
