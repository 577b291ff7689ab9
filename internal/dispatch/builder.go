// internal/dispatch/builder.go
package dispatch

import (
	"fmt"
	"math"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"donor-dispatch/internal/common/config"
	"donor-dispatch/internal/matching"
	"donor-dispatch/internal/models"
)

// requesterPriority is the requester-side priority for each donor reaction.
var requesterPriority = map[models.Reaction]models.Priority{
	models.ReactionInterested: models.PriorityHigh,
	models.ReactionConfirmed:  models.PriorityCritical,
	models.ReactionDeclined:   models.PriorityMedium,
}

// Builder constructs notifications. It performs no I/O.
type Builder struct {
	policy     matching.Policy
	requestTTL time.Duration
	defaultTTL time.Duration
	now        func() time.Time
	newID      func() string
}

func NewBuilder(policy matching.Policy, cfg config.NotificationConfig) *Builder {
	requestTTL := time.Duration(cfg.RequestExpiryHours) * time.Hour
	if requestTTL <= 0 {
		requestTTL = 24 * time.Hour
	}
	defaultTTL := time.Duration(cfg.DefaultExpiryHours) * time.Hour
	if defaultTTL <= 0 {
		defaultTTL = 168 * time.Hour
	}
	return &Builder{
		policy:     policy,
		requestTTL: requestTTL,
		defaultTTL: defaultTTL,
		now:        time.Now,
		newID:      func() string { return uuid.New().String() },
	}
}

// WithClock replaces the time source. Intended for tests.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

// ExpiresAt is createdAt plus the TTL for the notification type.
func (b *Builder) ExpiresAt(t models.NotificationType, createdAt time.Time) time.Time {
	if t == models.TypeBloodRequest {
		return createdAt.Add(b.requestTTL)
	}
	return createdAt.Add(b.defaultTTL)
}

// New returns a Pending notification with identity, timestamps and expiry set.
// Title and message are truncated to their maximum lengths.
func (b *Builder) New(recipientID string, t models.NotificationType, title, message string, priority models.Priority) *models.Notification {
	now := b.now().UTC()
	return &models.Notification{
		ID:          b.newID(),
		RecipientID: recipientID,
		Type:        t,
		Title:       truncate(title, models.MaxTitleLength),
		Message:     truncate(message, models.MaxMessageLength),
		Priority:    priority,
		Status:      models.StatusPending,
		Channels: models.Channels{
			InApp: models.ChannelState{Enabled: true},
			Push:  models.ChannelState{Enabled: true},
		},
		ExpiresAt: b.ExpiresAt(t, now),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// ForCandidate builds the request alert sent to one donor candidate.
func (b *Builder) ForCandidate(req *models.BloodRequest, c matching.Candidate) *models.Notification {
	distance := 0
	if c.HasDistance && c.DistanceKm > 0 {
		distance = int(math.Round(c.DistanceKm))
	}

	title := fmt.Sprintf("Blood Needed: %s", req.BloodType)
	if req.Urgency == models.UrgencyCritical {
		title = "URGENT: " + title
	}
	where := "nearby"
	if distance > 0 {
		where = fmt.Sprintf("%dkm away", distance)
	}
	message := fmt.Sprintf("Someone %s needs %s blood. Your donation could save a life!", where, req.BloodType)

	n := b.New(c.Donor.ID, models.TypeBloodRequest, title, message, b.policy.PriorityFor(req.Urgency))
	n.RelatedRequestID = req.ID
	n.RelatedUserID = req.RequesterID
	n.RequestLocation = req.Location
	n.DistanceKm = float64(distance)
	n.BloodTypeNeeded = req.BloodType
	n.Urgency = req.Urgency
	n.Channels.Email.Enabled = c.Donor.Preferences.Email
	n.Channels.SMS.Enabled = c.Donor.Preferences.SMS
	n.Actions = []models.ActionButton{
		{Label: "I can donate", Action: models.ActionDonate, URL: requestURL(req.ID), Style: models.StylePrimary},
		{Label: "View details", Action: models.ActionView, URL: requestURL(req.ID), Style: models.StyleSecondary},
	}
	return n
}

// ForRequester tells the requester how a donor reacted. A non-empty donor
// message is quoted at the end.
func (b *Builder) ForRequester(req *models.BloodRequest, donor *models.User, reaction models.Reaction, donorMessage string) *models.Notification {
	var title, message string
	switch reaction {
	case models.ReactionConfirmed:
		title = "Donor Confirmed for Your Request"
		message = fmt.Sprintf("Great news! %s has confirmed to donate %s blood for your request at %s.", donor.FullName, req.BloodType, req.HospitalName)
	case models.ReactionDeclined:
		title = "Donor Declined Your Request"
		message = fmt.Sprintf("%s is unable to donate for your %s blood request at this time.", donor.FullName, req.BloodType)
	default:
		title = "Donor Interested in Your Request"
		message = fmt.Sprintf("%s is interested in donating %s blood for your request at %s.", donor.FullName, req.BloodType, req.HospitalName)
	}
	if donorMessage != "" {
		message += ` Message: "` + donorMessage + `"`
	}

	priority, ok := requesterPriority[reaction]
	if !ok {
		priority = models.PriorityHigh
	}

	n := b.New(req.RequesterID, models.TypeBloodRequest, title, message, priority)
	n.RelatedRequestID = req.ID
	n.RelatedUserID = donor.ID
	n.BloodTypeNeeded = req.BloodType
	n.Urgency = req.Urgency
	n.Channels.Email.Enabled = true

	if reaction == models.ReactionConfirmed {
		n.Actions = []models.ActionButton{
			{Label: "Contact Donor", Action: models.ActionContact, URL: fmt.Sprintf("/donors/%s/contact", donor.ID), Style: models.StylePrimary},
			{Label: "View Request", Action: models.ActionView, URL: requestURL(req.ID), Style: models.StyleSecondary},
		}
	} else {
		n.Actions = []models.ActionButton{
			{Label: "View Request", Action: models.ActionView, URL: requestURL(req.ID), Style: models.StylePrimary},
		}
	}
	return n
}

// ForResponder acknowledges to the donor that their reaction was recorded.
func (b *Builder) ForResponder(req *models.BloodRequest, donorID string, reaction models.Reaction) *models.Notification {
	title := fmt.Sprintf("Response Recorded: %s", reaction.Title())
	message := fmt.Sprintf("Your response to the %s blood request at %s has been recorded.", req.BloodType, req.HospitalName)

	n := b.New(donorID, models.TypeBloodRequest, title, message, models.PriorityMedium)
	n.RelatedRequestID = req.ID
	n.RelatedUserID = req.RequesterID
	n.BloodTypeNeeded = req.BloodType
	n.Actions = []models.ActionButton{
		{Label: "View Request", Action: models.ActionView, URL: requestURL(req.ID), Style: models.StylePrimary},
	}
	return n
}

func requestURL(id string) string {
	return "/blood-requests/" + id
}

func truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max])
}
