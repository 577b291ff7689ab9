// internal/models/notification.go
package models

import "time"

const (
	MaxTitleLength   = 100
	MaxMessageLength = 500
)

// NotificationType is the closed set of notification kinds.
type NotificationType string

const (
	TypeBloodRequest     NotificationType = "BloodRequest"
	TypeDonationReminder NotificationType = "DonationReminder"
	TypeProfileUpdate    NotificationType = "ProfileUpdate"
	TypeSystemAlert      NotificationType = "SystemAlert"
	TypeBloodBankAlert   NotificationType = "BloodBankAlert"
	TypeEmergencyRequest NotificationType = "EmergencyRequest"
)

// Priority orders notifications for the recipient.
type Priority string

const (
	PriorityLow      Priority = "Low"
	PriorityMedium   Priority = "Medium"
	PriorityHigh     Priority = "High"
	PriorityCritical Priority = "Critical"
)

// NotificationStatus is the lifecycle state of a notification.
type NotificationStatus string

const (
	StatusPending   NotificationStatus = "Pending"
	StatusSent      NotificationStatus = "Sent"
	StatusRead      NotificationStatus = "Read"
	StatusClicked   NotificationStatus = "Clicked"
	StatusDismissed NotificationStatus = "Dismissed"
	StatusExpired   NotificationStatus = "Expired"
)

// IsTerminal reports whether no further transitions are allowed.
func (s NotificationStatus) IsTerminal() bool {
	return s == StatusDismissed || s == StatusExpired
}

// ChannelState tracks one delivery channel.
type ChannelState struct {
	Enabled bool       `json:"enabled"`
	Sent    bool       `json:"sent"`
	SentAt  *time.Time `json:"sentAt,omitempty"`
}

type Channels struct {
	InApp ChannelState `json:"inApp"`
	Push  ChannelState `json:"push"`
	Email ChannelState `json:"email"`
	SMS   ChannelState `json:"sms"`
}

// Action kinds and styles for suggested actions.
const (
	ActionDonate  = "donate"
	ActionView    = "view"
	ActionContact = "contact"
	ActionDismiss = "dismiss"

	StylePrimary   = "primary"
	StyleSecondary = "secondary"
	StyleDanger    = "danger"
)

// ActionButton is a suggested action rendered with the notification.
type ActionButton struct {
	Label  string `json:"label"`
	Action string `json:"action"`
	URL    string `json:"url,omitempty"`
	Style  string `json:"style"`
}

// Notification is a per-recipient message with delivery and engagement state.
type Notification struct {
	ID               string             `json:"id"`
	RecipientID      string             `json:"recipient"`
	Type             NotificationType   `json:"type"`
	Title            string             `json:"title"`
	Message          string             `json:"message"`
	Priority         Priority           `json:"priority"`
	RelatedRequestID string             `json:"relatedRequest,omitempty"`
	RelatedUserID    string             `json:"relatedUser,omitempty"`
	RequestLocation  *GeoPoint          `json:"requestLocation,omitempty"`
	DistanceKm       float64            `json:"distance"`
	BloodTypeNeeded  BloodType          `json:"bloodTypeNeeded,omitempty"`
	Urgency          UrgencyLevel       `json:"urgencyLevel,omitempty"`
	Status           NotificationStatus `json:"status"`
	IsRead           bool               `json:"isRead"`
	ReadAt           *time.Time         `json:"readAt,omitempty"`
	SentAt           *time.Time         `json:"sentAt,omitempty"`
	ClickedAt        *time.Time         `json:"clickedAt,omitempty"`
	DismissedAt      *time.Time         `json:"dismissedAt,omitempty"`
	Channels         Channels           `json:"channels"`
	Actions          []ActionButton     `json:"actionButtons"`
	ExpiresAt        time.Time          `json:"expiresAt"`
	CreatedAt        time.Time          `json:"createdAt"`
	UpdatedAt        time.Time          `json:"updatedAt"`
}

// IsExpiredAt reports whether now has reached the expiration instant.
func (n *Notification) IsExpiredAt(now time.Time) bool {
	return !now.Before(n.ExpiresAt)
}

// NotificationFilter narrows a recipient's notification listing.
type NotificationFilter struct {
	RecipientID string
	Type        NotificationType
	Status      NotificationStatus
	IsRead      *bool
	Limit       int
	Offset      int
}

// TypeStats aggregates a recipient's live notifications of one type.
type TypeStats struct {
	Type         NotificationType `json:"type"`
	Total        int              `json:"total"`
	Unread       int              `json:"unread"`
	HighPriority int              `json:"highPriority"`
}
