package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/leadflow/backend/internal/auth"
	"github.com/leadflow/backend/internal/models"
	"github.com/leadflow/backend/internal/services"
)

// LeadService is implemented by *services.Broadcaster.
type LeadService interface {
	CreateRequest(ctx context.Context, q *models.Request) error
	SelectAndBroadcast(ctx context.Context, requestID uuid.UUID, opts services.SelectOptions) (*services.BroadcastResult, error)
	CancelRequest(ctx context.Context, requestID, clientID uuid.UUID) (*models.Request, error)
}

// RequestReader is the read side of the request repository.
type RequestReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Request, error)
	ListByClient(ctx context.Context, clientID uuid.UUID, limit int) ([]*models.Request, error)
}

// OfferReader is the read side of the offer repository.
type OfferReader interface {
	ListByRequest(ctx context.Context, requestID uuid.UUID) ([]*models.Offer, error)
	ListLiveByPro(ctx context.Context, proID uuid.UUID, now time.Time) ([]*models.Offer, error)
}

// LeadHandler serves the client request endpoints and the pro offer inbox.
type LeadHandler struct {
	Leads     LeadService
	Requests  RequestReader
	Offers    OfferReader
	Validator PayloadValidator
	Logger    *slog.Logger
	Now       func() time.Time
}

// --- POST /api/v1/requests ---

type createRequestBody struct {
	CategoryID  uuid.UUID `json:"category_id"`
	Latitude    float64   `json:"latitude"`
	Longitude   float64   `json:"longitude"`
	Address     string    `json:"address"`
	Description string    `json:"description"`
	Urgent      bool      `json:"urgent"`
}

// CreateRequest stores an OPEN request for the calling client.
func (h *LeadHandler) CreateRequest(w http.ResponseWriter, r *http.Request) {
	id, ok := caller(w, r)
	if !ok {
		return
	}
	var body createRequestBody
	if !decodeBody(w, r, h.Validator, services.SchemaCreateRequest, &body) {
		return
	}
	q := &models.Request{
		ClientID:    id.ID,
		CategoryID:  body.CategoryID,
		Latitude:    body.Latitude,
		Longitude:   body.Longitude,
		Address:     body.Address,
		Description: body.Description,
		Urgent:      body.Urgent,
	}
	if err := h.Leads.CreateRequest(r.Context(), q); err != nil {
		writeError(w, orDefault(h.Logger), "create request", err)
		return
	}
	writeJSON(w, http.StatusCreated, q)
}

// --- GET /api/v1/requests ---

// ListRequests returns the calling client's requests, newest first.
func (h *LeadHandler) ListRequests(w http.ResponseWriter, r *http.Request) {
	id, ok := caller(w, r)
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	list, err := h.Requests.ListByClient(r.Context(), id.ID, limit)
	if err != nil {
		writeError(w, orDefault(h.Logger), "list requests", err)
		return
	}
	if list == nil {
		list = []*models.Request{}
	}
	writeJSON(w, http.StatusOK, list)
}

// --- GET /api/v1/requests/{id} ---

func (h *LeadHandler) GetRequest(w http.ResponseWriter, r *http.Request) {
	q, ok := h.ownedRequest(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, q)
}

// --- POST /api/v1/requests/{id}/broadcast ---

type broadcastBody struct {
	Limit         int                 `json:"limit"`
	MaxDistanceKm float64             `json:"max_distance_km"`
	BoundingBox   *models.BoundingBox `json:"bounding_box"`
}

// Broadcast sends offers for the request, or tops up an already broadcast one.
func (h *LeadHandler) Broadcast(w http.ResponseWriter, r *http.Request) {
	q, ok := h.ownedRequest(w, r)
	if !ok {
		return
	}
	var body broadcastBody
	if !decodeBody(w, r, h.Validator, services.SchemaBroadcast, &body) {
		return
	}
	if body.BoundingBox != nil && !body.BoundingBox.Valid() {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": "bounding_box is out of range"})
		return
	}
	res, err := h.Leads.SelectAndBroadcast(r.Context(), q.ID, services.SelectOptions{
		Box:           body.BoundingBox,
		MaxDistanceKm: body.MaxDistanceKm,
		Limit:         body.Limit,
	})
	if err != nil {
		writeError(w, orDefault(h.Logger), "broadcast", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// --- POST /api/v1/requests/{id}/cancel ---

func (h *LeadHandler) CancelRequest(w http.ResponseWriter, r *http.Request) {
	id, ok := caller(w, r)
	if !ok {
		return
	}
	requestID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	q, err := h.Leads.CancelRequest(r.Context(), requestID, id.ID)
	if err != nil {
		writeError(w, orDefault(h.Logger), "cancel request", err)
		return
	}
	writeJSON(w, http.StatusOK, q)
}

// --- GET /api/v1/requests/{id}/offers ---

func (h *LeadHandler) ListRequestOffers(w http.ResponseWriter, r *http.Request) {
	q, ok := h.ownedRequest(w, r)
	if !ok {
		return
	}
	offers, err := h.Offers.ListByRequest(r.Context(), q.ID)
	if err != nil {
		writeError(w, orDefault(h.Logger), "list request offers", err)
		return
	}
	if offers == nil {
		offers = []*models.Offer{}
	}
	writeJSON(w, http.StatusOK, offers)
}

// --- GET /api/v1/offers ---

// ListMyOffers returns the calling pro's live, unexpired offers.
func (h *LeadHandler) ListMyOffers(w http.ResponseWriter, r *http.Request) {
	id, ok := caller(w, r)
	if !ok {
		return
	}
	now := time.Now
	if h.Now != nil {
		now = h.Now
	}
	offers, err := h.Offers.ListLiveByPro(r.Context(), id.ID, now())
	if err != nil {
		writeError(w, orDefault(h.Logger), "list offers", err)
		return
	}
	if offers == nil {
		offers = []*models.Offer{}
	}
	writeJSON(w, http.StatusOK, offers)
}

// ownedRequest loads the path request. Clients only see their own; ops see all.
func (h *LeadHandler) ownedRequest(w http.ResponseWriter, r *http.Request) (*models.Request, bool) {
	id, ok := caller(w, r)
	if !ok {
		return nil, false
	}
	requestID, ok := pathID(w, r, "id")
	if !ok {
		return nil, false
	}
	q, err := h.Requests.GetByID(r.Context(), requestID)
	if err != nil {
		writeError(w, orDefault(h.Logger), "load request", err)
		return nil, false
	}
	if id.Role != auth.RoleOps && q.ClientID != id.ID {
		writeError(w, orDefault(h.Logger), "load request", services.ErrNotRequestOwner)
		return nil, false
	}
	return q, true
}
