package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/leadflow/backend/internal/auth"
	"github.com/leadflow/backend/internal/ledger"
	"github.com/leadflow/backend/internal/middleware"
	"github.com/leadflow/backend/internal/services"
)

const maxBodyBytes = 64 << 10

// PayloadValidator checks a raw body against a named schema.
type PayloadValidator interface {
	Validate(name string, payload []byte) error
}

// errorStatus maps service errors to HTTP status codes. Anything not listed
// is a 500.
var errorStatus = []struct {
	err    error
	status int
}{
	{services.ErrAlreadyResolved, http.StatusConflict},
	{services.ErrOfferExpired, http.StatusConflict},
	{services.ErrInsufficientBalance, http.StatusPaymentRequired},
	{services.ErrNotFound, http.StatusNotFound},
	{ledger.ErrProNotFound, http.StatusNotFound},
	{services.ErrNotOfferOwner, http.StatusForbidden},
	{services.ErrNotRequestOwner, http.StatusForbidden},
	{services.ErrNotJobParticipant, http.StatusForbidden},
	{services.ErrValidation, http.StatusUnprocessableEntity},
	{services.ErrInvalidPrice, http.StatusBadRequest},
	{services.ErrInvalidRating, http.StatusBadRequest},
	{ledger.ErrInvalidAmount, http.StatusBadRequest},
	{services.ErrCategoryInactive, http.StatusBadRequest},
	{services.ErrWorkflowMismatch, http.StatusConflict},
	{services.ErrApprovalRequired, http.StatusConflict},
	{services.ErrNotPending, http.StatusConflict},
	{services.ErrProBusy, http.StatusConflict},
	{services.ErrNoEligiblePros, http.StatusConflict},
	{services.ErrInvalidTransition, http.StatusConflict},
	{services.ErrRatingExists, http.StatusConflict},
	{services.ErrJobNotDone, http.StatusConflict},
	{ledger.ErrDuplicateDebit, http.StatusConflict},
	{ledger.ErrDuplicateCredit, http.StatusConflict},
}

// writeError writes the JSON error body for err. Lost races share one
// message so a pro cannot tell whether the lead expired or someone else won.
func writeError(w http.ResponseWriter, logger *slog.Logger, op string, err error) {
	if errors.Is(err, services.ErrAlreadyResolved) || errors.Is(err, services.ErrOfferExpired) {
		writeJSON(w, http.StatusConflict, map[string]string{"error": services.ErrAlreadyResolved.Error()})
		return
	}
	if errors.Is(err, pgx.ErrNoRows) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": services.ErrNotFound.Error()})
		return
	}
	for _, m := range errorStatus {
		if errors.Is(err, m.err) {
			writeJSON(w, m.status, map[string]string{"error": err.Error()})
			return
		}
	}
	logger.Error(op, "error", err)
	writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// decodeBody validates the body against schema and decodes it into dst. An
// empty body is treated as {}. It writes the error response and returns false
// on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, v PayloadValidator, schema string, dst interface{}) bool {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		http.Error(w, `{"error":"request body too large"}`, http.StatusRequestEntityTooLarge)
		return false
	}
	if len(body) == 0 {
		body = []byte("{}")
	}
	if err := v.Validate(schema, body); err != nil {
		if errors.Is(err, services.ErrValidation) {
			writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": err.Error()})
			return false
		}
		http.Error(w, `{"error":"invalid payload"}`, http.StatusBadRequest)
		return false
	}
	if err := json.Unmarshal(body, dst); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return false
	}
	return true
}

// pathID parses the named UUID path value.
func pathID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue(name))
	if err != nil {
		http.Error(w, `{"error":"invalid `+name+`"}`, http.StatusBadRequest)
		return uuid.Nil, false
	}
	return id, true
}

// caller returns the authenticated identity or writes 401.
func caller(w http.ResponseWriter, r *http.Request) (auth.Identity, bool) {
	id, ok := middleware.IdentityFromCtx(r.Context())
	if !ok {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
	}
	return id, ok
}

func orDefault(l *slog.Logger) *slog.Logger {
	if l == nil {
		return slog.Default()
	}
	return l
}
