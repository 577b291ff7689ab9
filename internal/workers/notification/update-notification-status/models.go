// internal/workers/notification/update-notification-status/models.go
package updatenotificationstatus

const (
	EventRead        = "read"
	EventClick       = "click"
	EventDismiss     = "dismiss"
	EventMarkAllRead = "markAllRead"
)

type Input struct {
	NotificationID string `json:"notificationId,omitempty"`
	RecipientID    string `json:"recipientId"`
	Event          string `json:"event"`
}

type Output struct {
	NotificationID string `json:"notificationId,omitempty"`
	Status         string `json:"status,omitempty"`
	IsRead         bool   `json:"isRead"`
	Updated        int64  `json:"updated"`
	UnreadCount    int    `json:"unreadCount"`
}
