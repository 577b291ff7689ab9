// internal/workers/dispatch/notify-nearby-donors/models.go
package notifynearbydonors

type Input struct {
	RequestID string `json:"requestId"`
}

type Output struct {
	RequestID            string `json:"requestId"`
	DonorsFound          int    `json:"donorsFound"`
	NotificationsCreated int    `json:"notificationsCreated"`
	Attempted            int    `json:"attempted"`
	Partial              bool   `json:"partial"`
	AlreadyDispatched    bool   `json:"alreadyDispatched"`
	DurationMs           int64  `json:"durationMs"`
}
