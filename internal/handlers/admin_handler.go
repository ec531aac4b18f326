package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/leadflow/backend/internal/services"
)

// Sweeper is implemented by *services.Sweeper.
type Sweeper interface {
	SweepExpired(ctx context.Context) (*services.SweepResult, error)
}

type AdminHandler struct {
	Sweeper Sweeper
	Logger  *slog.Logger
}

// Sweep runs one expiry sweep on demand, next to the periodic job.
func (h *AdminHandler) Sweep(w http.ResponseWriter, r *http.Request) {
	res, err := h.Sweeper.SweepExpired(r.Context())
	if err != nil {
		writeError(w, orDefault(h.Logger), "sweep", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
