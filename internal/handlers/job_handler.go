package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/leadflow/backend/internal/auth"
	"github.com/leadflow/backend/internal/models"
	"github.com/leadflow/backend/internal/services"
)

// JobService is implemented by *services.Lifecycle.
type JobService interface {
	Complete(ctx context.Context, jobID, proID uuid.UUID) (*models.Job, error)
	Cancel(ctx context.Context, jobID, actorID uuid.UUID, reason string) (*models.Job, error)
	MarkNoShow(ctx context.Context, jobID, clientID uuid.UUID) (*models.Job, error)
	SubmitRating(ctx context.Context, jobID, clientID uuid.UUID, stars int, comment string) (*models.Rating, error)
}

// JobReader is the read side of the job repository.
type JobReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Job, error)
	ListByPro(ctx context.Context, proID uuid.UUID, limit int) ([]*models.Job, error)
}

type JobHandler struct {
	Jobs      JobService
	Reader    JobReader
	Validator PayloadValidator
	Logger    *slog.Logger
}

// --- GET /api/v1/jobs ---

// ListJobs returns the calling pro's jobs, newest first.
func (h *JobHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	id, ok := caller(w, r)
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	jobs, err := h.Reader.ListByPro(r.Context(), id.ID, limit)
	if err != nil {
		writeError(w, orDefault(h.Logger), "list jobs", err)
		return
	}
	if jobs == nil {
		jobs = []*models.Job{}
	}
	writeJSON(w, http.StatusOK, jobs)
}

// --- GET /api/v1/jobs/{id} ---

// GetJob is visible to the job's pro, its client and ops.
func (h *JobHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	id, ok := caller(w, r)
	if !ok {
		return
	}
	jobID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	job, err := h.Reader.GetByID(r.Context(), jobID)
	if err != nil {
		writeError(w, orDefault(h.Logger), "get job", err)
		return
	}
	if id.Role != auth.RoleOps && job.ProID != id.ID && job.ClientID != id.ID {
		writeError(w, orDefault(h.Logger), "get job", services.ErrNotJobParticipant)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// --- POST /api/v1/jobs/{id}/complete ---

func (h *JobHandler) Complete(w http.ResponseWriter, r *http.Request) {
	id, ok := caller(w, r)
	if !ok {
		return
	}
	jobID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	job, err := h.Jobs.Complete(r.Context(), jobID, id.ID)
	if err != nil {
		writeError(w, orDefault(h.Logger), "complete job", err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// --- POST /api/v1/jobs/{id}/cancel ---

type cancelJobBody struct {
	Reason string `json:"reason"`
}

func (h *JobHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	id, ok := caller(w, r)
	if !ok {
		return
	}
	jobID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var body cancelJobBody
	if !decodeBody(w, r, h.Validator, services.SchemaJobCancel, &body) {
		return
	}
	job, err := h.Jobs.Cancel(r.Context(), jobID, id.ID, body.Reason)
	if err != nil {
		writeError(w, orDefault(h.Logger), "cancel job", err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// --- POST /api/v1/jobs/{id}/no-show ---

func (h *JobHandler) NoShow(w http.ResponseWriter, r *http.Request) {
	id, ok := caller(w, r)
	if !ok {
		return
	}
	jobID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	job, err := h.Jobs.MarkNoShow(r.Context(), jobID, id.ID)
	if err != nil {
		writeError(w, orDefault(h.Logger), "mark no-show", err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// --- POST /api/v1/jobs/{id}/rating ---

type ratingBody struct {
	Stars   int    `json:"stars"`
	Comment string `json:"comment"`
}

func (h *JobHandler) Rate(w http.ResponseWriter, r *http.Request) {
	id, ok := caller(w, r)
	if !ok {
		return
	}
	jobID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var body ratingBody
	if !decodeBody(w, r, h.Validator, services.SchemaRating, &body) {
		return
	}
	rating, err := h.Jobs.SubmitRating(r.Context(), jobID, id.ID, body.Stars, body.Comment)
	if err != nil {
		writeError(w, orDefault(h.Logger), "submit rating", err)
		return
	}
	writeJSON(w, http.StatusCreated, rating)
}
