package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/leadflow/backend/internal/models"
	"github.com/leadflow/backend/internal/services"
)

// OfferService is implemented by *services.Arbiter.
type OfferService interface {
	Accept(ctx context.Context, offerID, proID uuid.UUID) (*services.AcceptResult, error)
	ProposePrice(ctx context.Context, offerID, proID uuid.UUID, price int64) (*models.Offer, error)
	ClientDecision(ctx context.Context, offerID, clientID uuid.UUID, approve bool) (*services.DecisionResult, error)
}

// OfferHandler serves the claim endpoints. Every lost race answers 409 with
// the same body.
type OfferHandler struct {
	Offers    OfferService
	Validator PayloadValidator
	Logger    *slog.Logger
}

// --- POST /api/v1/offers/{id}/accept ---

func (h *OfferHandler) Accept(w http.ResponseWriter, r *http.Request) {
	id, ok := caller(w, r)
	if !ok {
		return
	}
	offerID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	res, err := h.Offers.Accept(r.Context(), offerID, id.ID)
	if err != nil {
		writeError(w, orDefault(h.Logger), "accept offer", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// --- POST /api/v1/offers/{id}/propose ---

type proposeBody struct {
	Price int64 `json:"price"`
}

func (h *OfferHandler) Propose(w http.ResponseWriter, r *http.Request) {
	id, ok := caller(w, r)
	if !ok {
		return
	}
	offerID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var body proposeBody
	if !decodeBody(w, r, h.Validator, services.SchemaProposePrice, &body) {
		return
	}
	offer, err := h.Offers.ProposePrice(r.Context(), offerID, id.ID, body.Price)
	if err != nil {
		writeError(w, orDefault(h.Logger), "propose price", err)
		return
	}
	writeJSON(w, http.StatusOK, offer)
}

// --- POST /api/v1/offers/{id}/decision ---

type decisionBody struct {
	Approve bool `json:"approve"`
}

// Decision lets the client approve or reject a pending proposal.
func (h *OfferHandler) Decision(w http.ResponseWriter, r *http.Request) {
	id, ok := caller(w, r)
	if !ok {
		return
	}
	offerID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var body decisionBody
	if !decodeBody(w, r, h.Validator, services.SchemaClientDecision, &body) {
		return
	}
	res, err := h.Offers.ClientDecision(r.Context(), offerID, id.ID, body.Approve)
	if err != nil {
		writeError(w, orDefault(h.Logger), "client decision", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
