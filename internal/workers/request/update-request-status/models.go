// internal/workers/request/update-request-status/models.go
package updaterequeststatus

import "time"

type Input struct {
	RequestID string `json:"requestId"`
	CallerID  string `json:"callerId"`
	Status    string `json:"status"`
	Notes     string `json:"notes,omitempty"`
}

type Output struct {
	RequestID   string     `json:"requestId"`
	Status      string     `json:"status"`
	FulfilledBy string     `json:"fulfilledBy,omitempty"`
	FulfilledAt *time.Time `json:"fulfilledAt,omitempty"`
}
