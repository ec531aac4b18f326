package models

import (
	"time"

	"github.com/google/uuid"
)

// Offer status enums.
const (
	OfferStatusOffered               = "OFFERED"
	OfferStatusPendingClientApproval = "PENDING_CLIENT_APPROVAL"
	OfferStatusAccepted              = "ACCEPTED"
	OfferStatusMissed                = "MISSED"
	OfferStatusExpired               = "EXPIRED"
	OfferStatusCancelled             = "CANCELLED"
)

// Offer price types.
const (
	PriceTypeFixed    = "FIXED"
	PriceTypeProposed = "PROPOSED"
)

// LiveOfferStatuses are the statuses an offer can still be claimed from.
var LiveOfferStatuses = []string{OfferStatusOffered, OfferStatusPendingClientApproval}

// Offer is one pro's time-boxed opportunity to claim a request.
type Offer struct {
	ID          uuid.UUID  `json:"id"`
	RequestID   uuid.UUID  `json:"request_id"`
	ProID       uuid.UUID  `json:"pro_id"`
	DistanceKm  *float64   `json:"distance_km,omitempty"`
	Price       *int64     `json:"price,omitempty"`
	PriceType   string     `json:"price_type"`
	Status      string     `json:"status"`
	OfferedAt   time.Time  `json:"offered_at"`
	ExpiresAt   time.Time  `json:"expires_at"`
	RespondedAt *time.Time `json:"responded_at,omitempty"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// IsLive reports whether the offer is OFFERED or PENDING_CLIENT_APPROVAL.
func (o *Offer) IsLive() bool {
	return IsLiveOfferStatus(o.Status)
}

// ExpiredAt reports whether the offer's deadline has passed at t.
func (o *Offer) ExpiredAt(t time.Time) bool {
	return !t.Before(o.ExpiresAt)
}
