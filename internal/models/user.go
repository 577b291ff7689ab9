package models

// User is the display/contact projection of an account.
type User struct {
	ID       string `json:"id"`
	FullName string `json:"fullName"`
	Email    string `json:"email"`
	Phone    string `json:"phone"`
	IsAdmin  bool   `json:"isAdmin"`
}

// ChannelPreferences are the donor's opt-ins for out-of-app channels.
type ChannelPreferences struct {
	Email bool `json:"email"`
	SMS   bool `json:"sms"`
}

// DonorCandidate is the read-only donor projection consumed by matching and dispatch.
type DonorCandidate struct {
	ID             string             `json:"id"`
	FullName       string             `json:"fullName"`
	BloodType      BloodType          `json:"bloodType"`
	Location       *GeoPoint          `json:"location,omitempty"`
	District       string             `json:"district,omitempty"`
	Available      bool               `json:"isAvailable"`
	Verified       bool               `json:"isVerified"`
	Preferences    ChannelPreferences `json:"notificationPreferences"`
	TotalDonations int                `json:"totalDonations"`
}

// DonorQuery is what the donor repository filters on. Radius is in km and only
// applies when Center is set.
type DonorQuery struct {
	BloodTypes      []BloodType
	RequireVerified bool
	District        string
	Center          *GeoPoint
	RadiusKm        float64
}
