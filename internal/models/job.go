package models

import (
	"time"

	"github.com/google/uuid"
)

// Job status enums.
const (
	JobStatusInProgress = "IN_PROGRESS"
	JobStatusDone       = "DONE"
	JobStatusCancelled  = "CANCELLED"
	JobStatusNoShow     = "NO_SHOW"
)

// Job is one accepted engagement between a pro and a client.
type Job struct {
	ID           uuid.UUID  `json:"id"`
	RequestID    uuid.UUID  `json:"request_id"`
	OfferID      uuid.UUID  `json:"offer_id"`
	AcceptanceID uuid.UUID  `json:"acceptance_id"`
	ProID        uuid.UUID  `json:"pro_id"`
	ClientID     uuid.UUID  `json:"client_id"`
	Price        int64      `json:"price"`
	Status       string     `json:"status"`
	StartedAt    time.Time  `json:"started_at"`
	DoneAt       *time.Time `json:"done_at,omitempty"`
	CancelReason string     `json:"cancel_reason,omitempty"`
	UpdatedAt    time.Time  `json:"updated_at"`
}
