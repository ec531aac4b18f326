package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/leadflow/backend/internal/models"
)

var (
	// ErrInsufficientBalance is returned when the locked balance is below the debit amount.
	ErrInsufficientBalance = errors.New("insufficient wallet balance")
	// ErrDuplicateDebit is returned when the reference was already debited once.
	ErrDuplicateDebit = errors.New("reference already debited")
	// ErrDuplicateCredit is returned when a reference was already credited
	// with a different amount.
	ErrDuplicateCredit = errors.New("reference already credited")
	ErrInvalidAmount   = errors.New("amount must be positive")
	ErrProNotFound     = errors.New("pro not found")
	// ErrLedgerMismatch means the cached balance disagrees with the entries.
	ErrLedgerMismatch = errors.New("wallet balance does not match ledger")
)

// Wallet is the cached balance of one pro.
type Wallet struct {
	ProID               uuid.UUID `json:"pro_id"`
	Balance             int64     `json:"balance"`
	LowBalanceThreshold int64     `json:"low_balance_threshold"`
}

// Posting is the result of one ledger write.
type Posting struct {
	Entry          *models.WalletTransaction
	BelowThreshold bool
	// Replayed is set when the entry already existed and nothing was written.
	Replayed bool
}

// Reconciliation compares the cached balance against the ledger sum.
type Reconciliation struct {
	ProID         uuid.UUID `json:"pro_id"`
	CachedBalance int64     `json:"cached_balance"`
	LedgerBalance int64     `json:"ledger_balance"`
	Consistent    bool      `json:"consistent"`
}

// Store is the persistence the ledger needs. *Repository implements it.
type Store interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	LockWallet(ctx context.Context, tx pgx.Tx, proID uuid.UUID) (Wallet, error)
	SetBalance(ctx context.Context, tx pgx.Tx, proID uuid.UUID, balance int64) error
	Append(ctx context.Context, tx pgx.Tx, e *models.WalletTransaction) error
	Balance(ctx context.Context, proID uuid.UUID) (Wallet, error)
	History(ctx context.Context, proID uuid.UUID, limit int) ([]*models.WalletTransaction, error)
	SignedSum(ctx context.Context, proID uuid.UUID) (int64, error)
	FindEntry(ctx context.Context, txType string, ref models.LedgerRef) (*models.WalletTransaction, error)
}

type Service struct {
	store  Store
	logger *slog.Logger
}

func NewService(store Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, logger: logger}
}

// Lock takes the pro's wallet row lock inside the caller's transaction
// without posting anything.
func (s *Service) Lock(ctx context.Context, tx pgx.Tx, proID uuid.UUID) (Wallet, error) {
	w, err := s.store.LockWallet(ctx, tx, proID)
	if errors.Is(err, pgx.ErrNoRows) {
		return w, ErrProNotFound
	}
	return w, err
}

// Debit runs inside the caller's transaction. It locks the pro row, re-reads
// the balance and appends a DEBIT entry. The caller owns commit and rollback.
func (s *Service) Debit(ctx context.Context, tx pgx.Tx, proID uuid.UUID, amount int64, reason string, ref models.LedgerRef) (*Posting, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	return s.post(ctx, tx, proID, models.WalletTxDebit, amount, reason, ref)
}

// Credit records a top-up confirmed by the payment collaborator. A repeated
// credit for the same reference and amount returns the first entry.
func (s *Service) Credit(ctx context.Context, proID uuid.UUID, amount int64, reason string, ref models.LedgerRef) (*Posting, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	p, err := s.inTx(ctx, proID, models.WalletTxCredit, amount, reason, ref)
	if !errors.Is(err, ErrDuplicateCredit) {
		return p, err
	}
	prev, ferr := s.store.FindEntry(ctx, models.WalletTxCredit, ref)
	if ferr != nil {
		return nil, fmt.Errorf("find credit: %w", ferr)
	}
	if prev.ProID != proID || prev.Amount != amount {
		return nil, ErrDuplicateCredit
	}
	s.logger.Info("Credit replayed", "pro_id", proID, "reference_id", ref.ID)
	return &Posting{Entry: prev, Replayed: true}, nil
}

// Refund returns money to the pro, e.g. after an ops decision on a disputed lead.
func (s *Service) Refund(ctx context.Context, proID uuid.UUID, amount int64, reason string, ref models.LedgerRef) (*Posting, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	return s.inTx(ctx, proID, models.WalletTxRefund, amount, reason, ref)
}

// Adjust applies a signed correction. It cannot take the balance below zero.
func (s *Service) Adjust(ctx context.Context, proID uuid.UUID, delta int64, reason string, ref models.LedgerRef) (*Posting, error) {
	if delta == 0 {
		return nil, ErrInvalidAmount
	}
	return s.inTx(ctx, proID, models.WalletTxAdjustment, delta, reason, ref)
}

func (s *Service) inTx(ctx context.Context, proID uuid.UUID, txType string, amount int64, reason string, ref models.LedgerRef) (*Posting, error) {
	tx, err := s.store.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	p, err := s.post(ctx, tx, proID, txType, amount, reason, ref)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Service) post(ctx context.Context, tx pgx.Tx, proID uuid.UUID, txType string, amount int64, reason string, ref models.LedgerRef) (*Posting, error) {
	w, err := s.store.LockWallet(ctx, tx, proID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrProNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lock wallet: %w", err)
	}

	newBalance := w.Balance + models.SignedAmount(txType, amount)
	if newBalance < 0 {
		return nil, ErrInsufficientBalance
	}

	entry := &models.WalletTransaction{
		ID:            uuid.New(),
		ProID:         proID,
		Type:          txType,
		Amount:        amount,
		Reason:        reason,
		ReferenceType: ref.Type,
		ReferenceID:   ref.ID,
		BalanceAfter:  newBalance,
	}
	if err := s.store.Append(ctx, tx, entry); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			if txType == models.WalletTxCredit {
				return nil, ErrDuplicateCredit
			}
			return nil, ErrDuplicateDebit
		}
		return nil, fmt.Errorf("append ledger entry: %w", err)
	}
	if err := s.store.SetBalance(ctx, tx, proID, newBalance); err != nil {
		return nil, fmt.Errorf("update cached balance: %w", err)
	}

	return &Posting{
		Entry:          entry,
		BelowThreshold: w.LowBalanceThreshold > 0 && newBalance < w.LowBalanceThreshold,
	}, nil
}

func (s *Service) Balance(ctx context.Context, proID uuid.UUID) (Wallet, error) {
	w, err := s.store.Balance(ctx, proID)
	if errors.Is(err, pgx.ErrNoRows) {
		return w, ErrProNotFound
	}
	return w, err
}

func (s *Service) History(ctx context.Context, proID uuid.UUID, limit int) ([]*models.WalletTransaction, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return s.store.History(ctx, proID, limit)
}

// Reconcile checks the cached balance against the sum of signed entries. A
// mismatch is returned together with ErrLedgerMismatch and logged at error level.
func (s *Service) Reconcile(ctx context.Context, proID uuid.UUID) (*Reconciliation, error) {
	w, err := s.Balance(ctx, proID)
	if err != nil {
		return nil, err
	}
	sum, err := s.store.SignedSum(ctx, proID)
	if err != nil {
		return nil, err
	}
	rec := &Reconciliation{
		ProID:         proID,
		CachedBalance: w.Balance,
		LedgerBalance: sum,
		Consistent:    w.Balance == sum,
	}
	if !rec.Consistent {
		s.logger.Error("Ledger mismatch", "pro_id", proID, "cached", w.Balance, "ledger", sum)
		return rec, ErrLedgerMismatch
	}
	return rec, nil
}
