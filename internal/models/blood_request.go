// internal/models/blood_request.go
package models

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"
)

// BloodType is one of the eight ABO/Rh groups.
type BloodType string

const (
	BloodTypeAPos  BloodType = "A+"
	BloodTypeANeg  BloodType = "A-"
	BloodTypeBPos  BloodType = "B+"
	BloodTypeBNeg  BloodType = "B-"
	BloodTypeABPos BloodType = "AB+"
	BloodTypeABNeg BloodType = "AB-"
	BloodTypeOPos  BloodType = "O+"
	BloodTypeONeg  BloodType = "O-"
)

// AllBloodTypes lists the closed set in display order.
var AllBloodTypes = []BloodType{
	BloodTypeAPos, BloodTypeANeg, BloodTypeBPos, BloodTypeBNeg,
	BloodTypeABPos, BloodTypeABNeg, BloodTypeOPos, BloodTypeONeg,
}

// ParseBloodType normalizes case and whitespace. ok is false for values outside the closed set.
func ParseBloodType(s string) (BloodType, bool) {
	bt := BloodType(strings.ToUpper(strings.TrimSpace(s)))
	return bt, bt.Valid()
}

func (b BloodType) Valid() bool {
	for _, t := range AllBloodTypes {
		if t == b {
			return true
		}
	}
	return false
}

// UrgencyLevel drives search radius and notification priority.
type UrgencyLevel string

const (
	UrgencyLow      UrgencyLevel = "Low"
	UrgencyMedium   UrgencyLevel = "Medium"
	UrgencyHigh     UrgencyLevel = "High"
	UrgencyCritical UrgencyLevel = "Critical"
)

func (u UrgencyLevel) Valid() bool {
	switch u {
	case UrgencyLow, UrgencyMedium, UrgencyHigh, UrgencyCritical:
		return true
	}
	return false
}

// RequestStatus is the externally managed lifecycle of a blood request.
type RequestStatus string

const (
	RequestPending   RequestStatus = "Pending"
	RequestApproved  RequestStatus = "Approved"
	RequestFulfilled RequestStatus = "Fulfilled"
	RequestCancelled RequestStatus = "Cancelled"
	RequestExpired   RequestStatus = "Expired"
)

func (s RequestStatus) Valid() bool {
	switch s {
	case RequestPending, RequestApproved, RequestFulfilled, RequestCancelled, RequestExpired:
		return true
	}
	return false
}

// GeoPoint is a WGS84 coordinate in degrees.
type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Valid reports whether both coordinates are finite and within range.
func (p GeoPoint) Valid() bool {
	if math.IsNaN(p.Lat) || math.IsNaN(p.Lon) || math.IsInf(p.Lat, 0) || math.IsInf(p.Lon, 0) {
		return false
	}
	return p.Lat >= -90 && p.Lat <= 90 && p.Lon >= -180 && p.Lon <= 180
}

// BloodRequest is a requester's ask for units of a blood type.
type BloodRequest struct {
	ID            string        `json:"id"`
	RequesterID   string        `json:"requesterId"`
	BloodType     BloodType     `json:"bloodType"`
	Units         int           `json:"bloodUnits"`
	AppointmentAt time.Time     `json:"appointmentDate"`
	PhoneNumber   string        `json:"phoneNumber"`
	District      string        `json:"district"`
	HospitalName  string        `json:"hospitalName"`
	Description   string        `json:"description"`
	Urgency       UrgencyLevel  `json:"urgencyLevel"`
	Location      *GeoPoint     `json:"location,omitempty"`
	Status        RequestStatus `json:"status"`
	Ledger        Ledger        `json:"matchedDonors"`
	FulfilledBy   string        `json:"fulfilledBy,omitempty"`
	FulfilledAt   *time.Time    `json:"fulfilledAt,omitempty"`
	Notes         string        `json:"notes,omitempty"`
	IsEmergency   bool          `json:"isEmergency"`
	CreatedAt     time.Time     `json:"createdAt"`
	UpdatedAt     time.Time     `json:"updatedAt"`
}

// RequestFilter narrows request listings. Zero values match everything.
type RequestFilter struct {
	RequesterID string
	Status      RequestStatus
	BloodType   BloodType
	District    string // case-insensitive substring
	Urgency     UrgencyLevel
}

// LedgerStatus is a donor's recorded reaction to a request.
type LedgerStatus string

const (
	LedgerContacted LedgerStatus = "Contacted"
	LedgerConfirmed LedgerStatus = "Confirmed"
	LedgerDeclined  LedgerStatus = "Declined"
)

// LedgerEntry is one donor's reaction to a request.
type LedgerEntry struct {
	DonorID     string       `json:"donor"`
	Status      LedgerStatus `json:"status"`
	RespondedAt time.Time    `json:"contactedAt"`
}

// Ledger holds at most one entry per donor, iterated in first-insertion order.
type Ledger struct {
	entries map[string]*LedgerEntry
	order   []string
}

// NewLedger builds a ledger from stored entries. Later duplicates overwrite earlier ones.
func NewLedger(entries ...LedgerEntry) Ledger {
	var l Ledger
	for _, e := range entries {
		l.Upsert(e)
	}
	return l
}

// Upsert replaces the donor's entry in place or appends a new one.
// It reports whether a new entry was created.
func (l *Ledger) Upsert(e LedgerEntry) bool {
	if l.entries == nil {
		l.entries = make(map[string]*LedgerEntry)
	}
	if existing, ok := l.entries[e.DonorID]; ok {
		existing.Status = e.Status
		existing.RespondedAt = e.RespondedAt
		return false
	}
	entry := e
	l.entries[e.DonorID] = &entry
	l.order = append(l.order, e.DonorID)
	return true
}

// Get returns a copy of the donor's entry.
func (l Ledger) Get(donorID string) (LedgerEntry, bool) {
	e, ok := l.entries[donorID]
	if !ok {
		return LedgerEntry{}, false
	}
	return *e, true
}

func (l Ledger) Len() int {
	return len(l.order)
}

// Entries returns copies in insertion order.
func (l Ledger) Entries() []LedgerEntry {
	out := make([]LedgerEntry, 0, len(l.order))
	for _, id := range l.order {
		out = append(out, *l.entries[id])
	}
	return out
}

// Count returns the number of entries with the given status.
func (l Ledger) Count(status LedgerStatus) int {
	n := 0
	for _, e := range l.entries {
		if e.Status == status {
			n++
		}
	}
	return n
}

func (l Ledger) MarshalJSON() ([]byte, error) {
	return json.Marshal(l.Entries())
}

func (l *Ledger) UnmarshalJSON(data []byte) error {
	var entries []LedgerEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return fmt.Errorf("ledger: %w", err)
	}
	*l = NewLedger(entries...)
	return nil
}

// Reaction is a donor's answer to a blood request.
type Reaction string

const (
	ReactionInterested Reaction = "interested"
	ReactionConfirmed  Reaction = "confirmed"
	ReactionDeclined   Reaction = "declined"
)

// ParseReaction accepts the three reaction values case-insensitively.
func ParseReaction(s string) (Reaction, bool) {
	r := Reaction(strings.ToLower(strings.TrimSpace(s)))
	switch r {
	case ReactionInterested, ReactionConfirmed, ReactionDeclined:
		return r, true
	}
	return "", false
}

// LedgerStatus maps the reaction onto the ledger vocabulary.
func (r Reaction) LedgerStatus() LedgerStatus {
	switch r {
	case ReactionConfirmed:
		return LedgerConfirmed
	case ReactionDeclined:
		return LedgerDeclined
	default:
		return LedgerContacted
	}
}

// Title is the capitalized form used in notification titles.
func (r Reaction) Title() string {
	if r == "" {
		return ""
	}
	return strings.ToUpper(string(r[:1])) + string(r[1:])
}
