package models

import (
	"time"

	"github.com/google/uuid"
)

// Request status enums.
const (
	RequestStatusOpen        = "OPEN"
	RequestStatusBroadcasted = "BROADCASTED"
	RequestStatusAssigned    = "ASSIGNED"
	RequestStatusCancelled   = "CANCELLED"
	RequestStatusExpired     = "EXPIRED"
	RequestStatusDone        = "DONE"
)

// Request is one client ask. Once broadcast it is a lead.
type Request struct {
	ID            uuid.UUID  `json:"id"`
	ClientID      uuid.UUID  `json:"client_id"`
	CategoryID    uuid.UUID  `json:"category_id"`
	Latitude      float64    `json:"latitude"`
	Longitude     float64    `json:"longitude"`
	Address       string     `json:"address"`
	Description   string     `json:"description,omitempty"`
	Urgent        bool       `json:"urgent"`
	Status        string     `json:"status"`
	BroadcastedAt *time.Time `json:"broadcasted_at,omitempty"`
	ExpiresAt     *time.Time `json:"expires_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// IsTerminal reports whether the request can no longer change status.
func (r *Request) IsTerminal() bool {
	return IsTerminalRequestStatus(r.Status)
}

// ExpiredAt reports whether the request's own deadline has passed at t.
func (r *Request) ExpiredAt(t time.Time) bool {
	return r.ExpiresAt != nil && !t.Before(*r.ExpiresAt)
}
