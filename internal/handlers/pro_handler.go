package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/leadflow/backend/internal/models"
)

// ProReader loads pro profiles.
type ProReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Pro, error)
}

type ProHandler struct {
	Pros   ProReader
	Logger *slog.Logger
}

// --- GET /api/v1/pros/me ---

// Me returns the calling pro's profile with its eligibility inputs.
func (h *ProHandler) Me(w http.ResponseWriter, r *http.Request) {
	id, ok := caller(w, r)
	if !ok {
		return
	}
	p, err := h.Pros.GetByID(r.Context(), id.ID)
	if err != nil {
		writeError(w, orDefault(h.Logger), "get pro", err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}
