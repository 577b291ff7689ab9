// internal/workers/response/record-donor-response/models.go
package recorddonorresponse

import "time"

type Input struct {
	RequestID    string `json:"requestId"`
	DonorID      string `json:"donorId"`
	ResponseType string `json:"responseType"`
	Message      string `json:"message,omitempty"`
}

type Output struct {
	RequestID            string    `json:"requestId"`
	DonorID              string    `json:"donorId"`
	ResponseType         string    `json:"responseType"`
	LedgerStatus         string    `json:"ledgerStatus"`
	NewEntry             bool      `json:"newEntry"`
	RespondedAt          time.Time `json:"respondedAt"`
	NotificationsCreated int       `json:"notificationsCreated"`
}
