package models

import (
	"time"

	"github.com/google/uuid"
)

// Wallet transaction types.
const (
	WalletTxCredit     = "CREDIT"
	WalletTxDebit      = "DEBIT"
	WalletTxRefund     = "REFUND"
	WalletTxAdjustment = "ADJUSTMENT"
)

// Ledger reference types.
const (
	RefTypeOffer   = "offer"
	RefTypePayment = "payment"
	RefTypeJob     = "job"
	RefTypeManual  = "manual"
)

// LedgerRef identifies the entity that caused a wallet transaction.
type LedgerRef struct {
	Type string
	ID   *uuid.UUID
}

// WalletTransaction is one append-only ledger entry. Amount is a positive
// magnitude for CREDIT, DEBIT and REFUND and a signed delta for ADJUSTMENT.
type WalletTransaction struct {
	ID            uuid.UUID  `json:"id"`
	ProID         uuid.UUID  `json:"pro_id"`
	Type          string     `json:"type"`
	Amount        int64      `json:"amount"`
	Reason        string     `json:"reason"`
	ReferenceType string     `json:"reference_type,omitempty"`
	ReferenceID   *uuid.UUID `json:"reference_id,omitempty"`
	BalanceAfter  int64      `json:"balance_after"`
	CreatedAt     time.Time  `json:"created_at"`
}

// SignedAmount returns the delta this entry applied to the pro's balance.
func (t *WalletTransaction) SignedAmount() int64 {
	return SignedAmount(t.Type, t.Amount)
}

// SignedAmount returns the balance delta of an entry of the given type.
func SignedAmount(txType string, amount int64) int64 {
	if txType == WalletTxDebit {
		return -amount
	}
	return amount
}
