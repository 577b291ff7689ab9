package lifecycle

import (
	"time"

	"donor-dispatch/internal/common/errors"
	"donor-dispatch/internal/models"
)

// Event is a lifecycle input applied to a single notification.
type Event string

const (
	EventRead    Event = "read"
	EventClick   Event = "click"
	EventDismiss Event = "dismiss"
	EventSent    Event = "sent"
)

// Apply runs the state machine for one event at time now. Expiry is checked
// first: a due, non-terminal notification becomes Expired before the event is
// considered. changed reports whether n was modified and must be persisted,
// which can be true even when err is non-nil.
//
// Reading a read notification or repeating dismiss/sent is a no-op. Any other
// event on a terminal notification fails with InvalidTransition.
func Apply(n *models.Notification, event Event, now time.Time) (changed bool, err error) {
	now = now.UTC()

	if !n.Status.IsTerminal() && n.IsExpiredAt(now) {
		n.Status = models.StatusExpired
		n.UpdatedAt = now
		changed = true
	}

	switch event {
	case EventRead:
		if n.IsRead {
			return changed, nil
		}
		if n.Status.IsTerminal() {
			return changed, errors.NewInvalidTransitionError(string(event), string(n.Status))
		}
		markRead(n, now)
		return true, nil

	case EventClick:
		if n.Status.IsTerminal() {
			return changed, errors.NewInvalidTransitionError(string(event), string(n.Status))
		}
		if !n.IsRead {
			markRead(n, now)
		}
		n.ClickedAt = &now
		n.Status = models.StatusClicked
		n.UpdatedAt = now
		return true, nil

	case EventDismiss:
		if n.Status == models.StatusDismissed {
			return changed, nil
		}
		if n.Status.IsTerminal() {
			return changed, errors.NewInvalidTransitionError(string(event), string(n.Status))
		}
		n.DismissedAt = &now
		n.Status = models.StatusDismissed
		n.UpdatedAt = now
		return true, nil

	case EventSent:
		if n.Status.IsTerminal() {
			return changed, errors.NewInvalidTransitionError(string(event), string(n.Status))
		}
		if n.SentAt != nil {
			return changed, nil
		}
		n.SentAt = &now
		if n.Status == models.StatusPending {
			n.Status = models.StatusSent
		}
		n.UpdatedAt = now
		return true, nil
	}

	return changed, errors.NewValidationError("unknown lifecycle event: " + string(event))
}

func markRead(n *models.Notification, now time.Time) {
	n.IsRead = true
	n.ReadAt = &now
	n.Status = models.StatusRead
	n.UpdatedAt = now
}
