package models

import "github.com/google/uuid"

// Category workflow types.
const (
	// WorkflowFirstClick: fixed price, the first pro to accept wins.
	WorkflowFirstClick = "FIRST_CLICK"
	// WorkflowLeadOffer: pros propose a price and the client approves one.
	WorkflowLeadOffer = "LEAD_OFFER"
)

// Category is the per-trade configuration read by the engine.
type Category struct {
	ID           uuid.UUID `json:"id"`
	Code         string    `json:"code"`
	Name         string    `json:"name"`
	LeadCost     int64     `json:"lead_cost"`
	MatchLimit   int       `json:"match_limit"`
	WorkflowType string    `json:"workflow_type"`
	Active       bool      `json:"active"`
}

// Negotiated reports whether offers in this category need client approval.
func (c *Category) Negotiated() bool {
	return c.WorkflowType == WorkflowLeadOffer
}
