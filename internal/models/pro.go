package models

import (
	"time"

	"github.com/google/uuid"
)

// KYC status enums.
const (
	KYCPending  = "PENDING"
	KYCApproved = "APPROVED"
	KYCRejected = "REJECTED"
)

// Pro is a service provider. WalletBalance is a cache of the latest ledger
// balance_after and is only written by the ledger.
type Pro struct {
	ID                  uuid.UUID `json:"id"`
	Name                string    `json:"name"`
	Online              bool      `json:"online"`
	Active              bool      `json:"active"`
	KYCStatus           string    `json:"kyc_status"`
	RatingAvg           float64   `json:"rating_avg"`
	RatingCount         int       `json:"rating_count"`
	WalletBalance       int64     `json:"wallet_balance"`
	LowBalanceThreshold int64     `json:"low_balance_threshold"`
	Latitude            *float64  `json:"latitude,omitempty"`
	Longitude           *float64  `json:"longitude,omitempty"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
}

// ProSearch narrows the candidate pros for a request.
type ProSearch struct {
	CategoryID  uuid.UUID
	MinBalance  int64
	Box         *BoundingBox
	ExcludeBusy bool
	ExcludeIDs  []uuid.UUID
	Limit       int
}
