package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/leadflow/backend/internal/models"
)

const jobColumns = `id, request_id, offer_id, acceptance_id, pro_id, client_id, price, status, started_at, done_at,
	cancel_reason, updated_at`

type JobRepo struct {
	pool *pgxpool.Pool
}

func NewJobRepo(pool *pgxpool.Pool) *JobRepo {
	return &JobRepo{pool: pool}
}

func scanJob(row pgx.Row) (*models.Job, error) {
	var j models.Job
	err := row.Scan(&j.ID, &j.RequestID, &j.OfferID, &j.AcceptanceID, &j.ProID, &j.ClientID, &j.Price, &j.Status,
		&j.StartedAt, &j.DoneAt, &j.CancelReason, &j.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &j, nil
}

func (r *JobRepo) CreateTx(ctx context.Context, tx pgx.Tx, j *models.Job) error {
	return tx.QueryRow(ctx, `
		INSERT INTO jobs (id, request_id, offer_id, acceptance_id, pro_id, client_id, price, status, started_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING updated_at
	`, j.ID, j.RequestID, j.OfferID, j.AcceptanceID, j.ProID, j.ClientID, j.Price, j.Status, j.StartedAt).
		Scan(&j.UpdatedAt)
}

func (r *JobRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	return scanJob(r.pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = $1`, id))
}

func (r *JobRepo) GetByIDTx(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Job, error) {
	return scanJob(tx.QueryRow(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = $1 FOR UPDATE`, id))
}

func (r *JobRepo) GetByOfferTx(ctx context.Context, tx pgx.Tx, offerID uuid.UUID) (*models.Job, error) {
	return scanJob(tx.QueryRow(ctx, `SELECT `+jobColumns+` FROM jobs WHERE offer_id = $1`, offerID))
}

func (r *JobRepo) HasInProgressTx(ctx context.Context, tx pgx.Tx, proID uuid.UUID) (bool, error) {
	var busy bool
	err := tx.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM jobs WHERE pro_id = $1 AND status = 'IN_PROGRESS')
	`, proID).Scan(&busy)
	return busy, err
}

// TransitionTx moves the job from IN_PROGRESS to status, stamping done_at for DONE.
func (r *JobRepo) TransitionTx(ctx context.Context, tx pgx.Tx, id uuid.UUID, status, reason string, now time.Time) (bool, error) {
	result, err := tx.Exec(ctx, `
		UPDATE jobs
		SET status = $2, cancel_reason = $3,
		    done_at = CASE WHEN $2 = 'DONE' THEN $4::timestamptz ELSE done_at END,
		    updated_at = now()
		WHERE id = $1 AND status = 'IN_PROGRESS'
	`, id, status, reason, now)
	if err != nil {
		return false, err
	}
	return result.RowsAffected() == 1, nil
}

func (r *JobRepo) ListByPro(ctx context.Context, proID uuid.UUID, limit int) ([]*models.Job, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+jobColumns+` FROM jobs WHERE pro_id = $1 ORDER BY started_at DESC LIMIT $2
	`, proID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, j)
	}
	return list, rows.Err()
}
