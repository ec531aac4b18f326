package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/leadflow/backend/internal/ledger"
	"github.com/leadflow/backend/internal/models"
	"github.com/leadflow/backend/internal/services"
)

// WalletService is implemented by *ledger.Service.
type WalletService interface {
	Credit(ctx context.Context, proID uuid.UUID, amount int64, reason string, ref models.LedgerRef) (*ledger.Posting, error)
	Refund(ctx context.Context, proID uuid.UUID, amount int64, reason string, ref models.LedgerRef) (*ledger.Posting, error)
	Adjust(ctx context.Context, proID uuid.UUID, delta int64, reason string, ref models.LedgerRef) (*ledger.Posting, error)
	Balance(ctx context.Context, proID uuid.UUID) (ledger.Wallet, error)
	History(ctx context.Context, proID uuid.UUID, limit int) ([]*models.WalletTransaction, error)
	Reconcile(ctx context.Context, proID uuid.UUID) (*ledger.Reconciliation, error)
}

// WalletHandler exposes the ledger. Pros read their own wallet; top-ups come
// from the payment service, refunds and adjustments from ops.
type WalletHandler struct {
	Wallets   WalletService
	Validator PayloadValidator
	Logger    *slog.Logger
}

type walletResponse struct {
	Wallet       ledger.Wallet               `json:"wallet"`
	Transactions []*models.WalletTransaction `json:"transactions"`
}

type postingResponse struct {
	Entry          *models.WalletTransaction `json:"entry"`
	BelowThreshold bool                      `json:"below_threshold"`
	Replayed       bool                      `json:"replayed,omitempty"`
}

type walletEntryBody struct {
	Amount      int64      `json:"amount"`
	Reason      string     `json:"reason"`
	ReferenceID *uuid.UUID `json:"reference_id"`
}

// --- GET /api/v1/wallet ---

func (h *WalletHandler) GetWallet(w http.ResponseWriter, r *http.Request) {
	id, ok := caller(w, r)
	if !ok {
		return
	}
	wallet, err := h.Wallets.Balance(r.Context(), id.ID)
	if err != nil {
		writeError(w, orDefault(h.Logger), "wallet balance", err)
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	history, err := h.Wallets.History(r.Context(), id.ID, limit)
	if err != nil {
		writeError(w, orDefault(h.Logger), "wallet history", err)
		return
	}
	if history == nil {
		history = []*models.WalletTransaction{}
	}
	writeJSON(w, http.StatusOK, walletResponse{Wallet: wallet, Transactions: history})
}

// --- POST /api/v1/wallet/{proId}/credits ---

func (h *WalletHandler) Credit(w http.ResponseWriter, r *http.Request) {
	h.post(w, r, "credit", models.RefTypePayment, h.Wallets.Credit)
}

// --- POST /api/v1/wallet/{proId}/refunds ---

func (h *WalletHandler) Refund(w http.ResponseWriter, r *http.Request) {
	h.post(w, r, "refund", models.RefTypeOffer, h.Wallets.Refund)
}

// --- POST /api/v1/wallet/{proId}/adjustments ---

func (h *WalletHandler) Adjust(w http.ResponseWriter, r *http.Request) {
	h.post(w, r, "adjust", models.RefTypeManual, h.Wallets.Adjust)
}

type postFunc func(ctx context.Context, proID uuid.UUID, amount int64, reason string, ref models.LedgerRef) (*ledger.Posting, error)

func (h *WalletHandler) post(w http.ResponseWriter, r *http.Request, op, refType string, fn postFunc) {
	proID, ok := pathID(w, r, "proId")
	if !ok {
		return
	}
	var body walletEntryBody
	if !decodeBody(w, r, h.Validator, services.SchemaWalletEntry, &body) {
		return
	}
	ref := models.LedgerRef{Type: refType, ID: body.ReferenceID}
	if ref.ID == nil {
		ref.Type = models.RefTypeManual
	}
	p, err := fn(r.Context(), proID, body.Amount, body.Reason, ref)
	if err != nil {
		writeError(w, orDefault(h.Logger), op, err)
		return
	}
	status := http.StatusCreated
	if p.Replayed {
		status = http.StatusOK
	} else {
		orDefault(h.Logger).Info("Wallet entry posted", "op", op, "pro_id", proID, "amount", body.Amount,
			"balance_after", p.Entry.BalanceAfter)
	}
	writeJSON(w, status, postingResponse{Entry: p.Entry, BelowThreshold: p.BelowThreshold, Replayed: p.Replayed})
}

// --- GET /api/v1/wallet/{proId}/reconcile ---

// Reconcile answers 200 when consistent and 500 with the figures otherwise.
func (h *WalletHandler) Reconcile(w http.ResponseWriter, r *http.Request) {
	proID, ok := pathID(w, r, "proId")
	if !ok {
		return
	}
	rec, err := h.Wallets.Reconcile(r.Context(), proID)
	if rec != nil {
		status := http.StatusOK
		if !rec.Consistent {
			status = http.StatusInternalServerError
		}
		writeJSON(w, status, rec)
		return
	}
	writeError(w, orDefault(h.Logger), "reconcile", err)
}
