package notify

import (
	"time"

	"github.com/google/uuid"
)

// Event kinds.
const (
	KindOfferCreated     = "offer_created"
	KindLeadAccepted     = "lead_accepted"
	KindLeadExpired      = "lead_expired"
	KindJobCompleted     = "job_completed"
	KindWalletLowBalance = "wallet_low_balance"
)

// Recipient roles.
const (
	RoleClient = "client"
	RolePro    = "pro"
)

// Event is one notification for a single recipient. Only ids are carried; the
// push gateway fetches details itself.
type Event struct {
	Kind        string     `json:"kind"`
	Role        string     `json:"role"`
	RecipientID uuid.UUID  `json:"recipient_id"`
	RequestID   *uuid.UUID `json:"request_id,omitempty"`
	OfferID     *uuid.UUID `json:"offer_id,omitempty"`
	JobID       *uuid.UUID `json:"job_id,omitempty"`
	Balance     *int64     `json:"balance,omitempty"`
	At          time.Time  `json:"at"`
}

// Channel is the pub/sub channel the event is published on.
func (e Event) Channel(prefix string) string {
	return prefix + ":" + e.Role + ":" + e.RecipientID.String()
}

func ref(id uuid.UUID) *uuid.UUID { return &id }

func OfferCreated(proID, requestID, offerID uuid.UUID, at time.Time) Event {
	return Event{Kind: KindOfferCreated, Role: RolePro, RecipientID: proID, RequestID: ref(requestID), OfferID: ref(offerID), At: at}
}

func LeadAccepted(clientID, requestID, offerID, jobID uuid.UUID, at time.Time) Event {
	return Event{Kind: KindLeadAccepted, Role: RoleClient, RecipientID: clientID, RequestID: ref(requestID),
		OfferID: ref(offerID), JobID: ref(jobID), At: at}
}

func LeadExpired(clientID, requestID uuid.UUID, at time.Time) Event {
	return Event{Kind: KindLeadExpired, Role: RoleClient, RecipientID: clientID, RequestID: ref(requestID), At: at}
}

func JobCompleted(clientID, requestID, jobID uuid.UUID, at time.Time) Event {
	return Event{Kind: KindJobCompleted, Role: RoleClient, RecipientID: clientID, RequestID: ref(requestID), JobID: ref(jobID), At: at}
}

func WalletLowBalance(proID uuid.UUID, balance int64, at time.Time) Event {
	return Event{Kind: KindWalletLowBalance, Role: RolePro, RecipientID: proID, Balance: &balance, At: at}
}
