// internal/workers/request/create-blood-request/models.go
package createbloodrequest

import (
	"time"

	"donor-dispatch/internal/requests"
)

type Input struct {
	RequesterID string `json:"requesterId"`
	requests.CreateInput
}

type Output struct {
	RequestID     string    `json:"requestId"`
	Status        string    `json:"status"`
	BloodType     string    `json:"bloodType"`
	UrgencyLevel  string    `json:"urgencyLevel"`
	HasLocation   bool      `json:"hasLocation"`
	AppointmentAt time.Time `json:"appointmentDate"`
}
