package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/leadflow/backend/internal/models"
)

type RatingRepo struct {
	pool *pgxpool.Pool
}

func NewRatingRepo(pool *pgxpool.Pool) *RatingRepo {
	return &RatingRepo{pool: pool}
}

// CreateTx inserts a rating. A second rating for the same job fails with a
// unique violation on ratings(job_id).
func (r *RatingRepo) CreateTx(ctx context.Context, tx pgx.Tx, rt *models.Rating) error {
	return tx.QueryRow(ctx, `
		INSERT INTO ratings (id, job_id, pro_id, client_id, stars, comment)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at
	`, rt.ID, rt.JobID, rt.ProID, rt.ClientID, rt.Stars, rt.Comment).Scan(&rt.CreatedAt)
}
