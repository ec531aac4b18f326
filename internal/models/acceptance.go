package models

import (
	"time"

	"github.com/google/uuid"
)

// Acceptance is the immutable record of the winning offer of a request.
type Acceptance struct {
	ID         uuid.UUID `json:"id"`
	OfferID    uuid.UUID `json:"offer_id"`
	RequestID  uuid.UUID `json:"request_id"`
	ProID      uuid.UUID `json:"pro_id"`
	Price      int64     `json:"price"`
	AcceptedAt time.Time `json:"accepted_at"`
}
