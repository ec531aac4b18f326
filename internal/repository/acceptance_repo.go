package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/leadflow/backend/internal/models"
)

type AcceptanceRepo struct {
	pool *pgxpool.Pool
}

func NewAcceptanceRepo(pool *pgxpool.Pool) *AcceptanceRepo {
	return &AcceptanceRepo{pool: pool}
}

func (r *AcceptanceRepo) CreateTx(ctx context.Context, tx pgx.Tx, a *models.Acceptance) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO acceptances (id, offer_id, request_id, pro_id, price, accepted_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, a.ID, a.OfferID, a.RequestID, a.ProID, a.Price, a.AcceptedAt)
	return err
}

func (r *AcceptanceRepo) GetByRequestTx(ctx context.Context, tx pgx.Tx, requestID uuid.UUID) (*models.Acceptance, error) {
	var a models.Acceptance
	err := tx.QueryRow(ctx, `
		SELECT id, offer_id, request_id, pro_id, price, accepted_at FROM acceptances WHERE request_id = $1
	`, requestID).Scan(&a.ID, &a.OfferID, &a.RequestID, &a.ProID, &a.Price, &a.AcceptedAt)
	if err != nil {
		return nil, err
	}
	return &a, nil
}
