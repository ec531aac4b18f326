package ledger

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/leadflow/backend/internal/models"
)

// Repository is the Postgres side of the wallet ledger. wallet_transactions is
// append-only; pros.wallet_balance caches the latest balance_after.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Begin(ctx context.Context) (pgx.Tx, error) {
	return r.pool.Begin(ctx)
}

// LockWallet locks the pro row and returns its live balance and low-balance threshold.
func (r *Repository) LockWallet(ctx context.Context, tx pgx.Tx, proID uuid.UUID) (Wallet, error) {
	w := Wallet{ProID: proID}
	err := tx.QueryRow(ctx, `
		SELECT wallet_balance, low_balance_threshold FROM pros WHERE id = $1 FOR UPDATE
	`, proID).Scan(&w.Balance, &w.LowBalanceThreshold)
	return w, err
}

func (r *Repository) SetBalance(ctx context.Context, tx pgx.Tx, proID uuid.UUID, balance int64) error {
	_, err := tx.Exec(ctx, `UPDATE pros SET wallet_balance = $2, updated_at = now() WHERE id = $1`, proID, balance)
	return err
}

func (r *Repository) Append(ctx context.Context, tx pgx.Tx, e *models.WalletTransaction) error {
	return tx.QueryRow(ctx, `
		INSERT INTO wallet_transactions (id, pro_id, type, amount, reason, reference_type, reference_id, balance_after)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at
	`, e.ID, e.ProID, e.Type, e.Amount, e.Reason, e.ReferenceType, e.ReferenceID, e.BalanceAfter).Scan(&e.CreatedAt)
}

func (r *Repository) Balance(ctx context.Context, proID uuid.UUID) (Wallet, error) {
	w := Wallet{ProID: proID}
	err := r.pool.QueryRow(ctx, `
		SELECT wallet_balance, low_balance_threshold FROM pros WHERE id = $1
	`, proID).Scan(&w.Balance, &w.LowBalanceThreshold)
	return w, err
}

func (r *Repository) History(ctx context.Context, proID uuid.UUID, limit int) ([]*models.WalletTransaction, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, pro_id, type, amount, reason, reference_type, reference_id, balance_after, created_at
		FROM wallet_transactions WHERE pro_id = $1 ORDER BY created_at DESC, id LIMIT $2
	`, proID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.WalletTransaction
	for rows.Next() {
		var e models.WalletTransaction
		if err := rows.Scan(&e.ID, &e.ProID, &e.Type, &e.Amount, &e.Reason, &e.ReferenceType, &e.ReferenceID,
			&e.BalanceAfter, &e.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, &e)
	}
	return list, rows.Err()
}

// SignedSum is the balance implied by the ledger entries alone.
func (r *Repository) SignedSum(ctx context.Context, proID uuid.UUID) (int64, error) {
	var sum int64
	err := r.pool.QueryRow(ctx, `
		SELECT COALESCE(SUM(CASE WHEN type = 'DEBIT' THEN -amount ELSE amount END), 0)
		FROM wallet_transactions WHERE pro_id = $1
	`, proID).Scan(&sum)
	return sum, err
}

// FindEntry returns the entry of the given type recorded for ref.
func (r *Repository) FindEntry(ctx context.Context, txType string, ref models.LedgerRef) (*models.WalletTransaction, error) {
	var e models.WalletTransaction
	err := r.pool.QueryRow(ctx, `
		SELECT id, pro_id, type, amount, reason, reference_type, reference_id, balance_after, created_at
		FROM wallet_transactions WHERE type = $1 AND reference_type = $2 AND reference_id = $3
	`, txType, ref.Type, ref.ID).Scan(&e.ID, &e.ProID, &e.Type, &e.Amount, &e.Reason, &e.ReferenceType,
		&e.ReferenceID, &e.BalanceAfter, &e.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &e, nil
}
