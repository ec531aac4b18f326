package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/leadflow/backend/internal/models"
)

const requestColumns = `id, client_id, category_id, latitude, longitude, address, description, urgent,
	status, broadcasted_at, expires_at, created_at, updated_at`

type RequestRepo struct {
	pool *pgxpool.Pool
}

func NewRequestRepo(pool *pgxpool.Pool) *RequestRepo {
	return &RequestRepo{pool: pool}
}

func scanRequest(row pgx.Row) (*models.Request, error) {
	var q models.Request
	err := row.Scan(&q.ID, &q.ClientID, &q.CategoryID, &q.Latitude, &q.Longitude, &q.Address, &q.Description,
		&q.Urgent, &q.Status, &q.BroadcastedAt, &q.ExpiresAt, &q.CreatedAt, &q.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &q, nil
}

func (r *RequestRepo) Create(ctx context.Context, q *models.Request) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO requests (id, client_id, category_id, latitude, longitude, address, description, urgent, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at, updated_at
	`, q.ID, q.ClientID, q.CategoryID, q.Latitude, q.Longitude, q.Address, q.Description, q.Urgent, q.Status).
		Scan(&q.CreatedAt, &q.UpdatedAt)
}

func (r *RequestRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Request, error) {
	return scanRequest(r.pool.QueryRow(ctx, `SELECT `+requestColumns+` FROM requests WHERE id = $1`, id))
}

func (r *RequestRepo) GetByIDTx(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Request, error) {
	return scanRequest(tx.QueryRow(ctx, `SELECT `+requestColumns+` FROM requests WHERE id = $1`, id))
}

// LockTx reads the request and holds its row lock until tx ends. Offer
// inserts for a request happen under this lock.
func (r *RequestRepo) LockTx(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Request, error) {
	return scanRequest(tx.QueryRow(ctx, `SELECT `+requestColumns+` FROM requests WHERE id = $1 FOR UPDATE`, id))
}

// TransitionTx moves the request to status `to` only if it is currently in one
// of `from`. It reports false when another writer got there first.
func (r *RequestRepo) TransitionTx(ctx context.Context, tx pgx.Tx, id uuid.UUID, from []string, to string) (bool, error) {
	result, err := tx.Exec(ctx, `
		UPDATE requests SET status = $3, updated_at = now()
		WHERE id = $1 AND status = ANY($2)
	`, id, from, to)
	if err != nil {
		return false, err
	}
	return result.RowsAffected() == 1, nil
}

// MarkBroadcastedTx is the OPEN -> BROADCASTED compare-and-set.
func (r *RequestRepo) MarkBroadcastedTx(ctx context.Context, tx pgx.Tx, id uuid.UUID, at, expiresAt time.Time) (bool, error) {
	result, err := tx.Exec(ctx, `
		UPDATE requests SET status = 'BROADCASTED', broadcasted_at = $2, expires_at = $3, updated_at = now()
		WHERE id = $1 AND status = 'OPEN'
	`, id, at, expiresAt)
	if err != nil {
		return false, err
	}
	return result.RowsAffected() == 1, nil
}

// ListStaleBroadcasted returns BROADCASTED requests with no acceptance whose
// own deadline passed or that have no live offer left.
func (r *RequestRepo) ListStaleBroadcasted(ctx context.Context, now time.Time, limit int) ([]*models.Request, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+requestColumns+` FROM requests q
		WHERE q.status = 'BROADCASTED'
		  AND NOT EXISTS (SELECT 1 FROM acceptances a WHERE a.request_id = q.id)
		  AND (q.expires_at <= $1 OR NOT EXISTS (
		       SELECT 1 FROM offers o
		       WHERE o.request_id = q.id AND o.status IN ('OFFERED', 'PENDING_CLIENT_APPROVAL')))
		ORDER BY q.expires_at
		LIMIT $2
	`, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.Request
	for rows.Next() {
		q, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, q)
	}
	return list, rows.Err()
}

// ExpireBroadcastedTx re-checks the staleness predicate inside the update so a
// concurrent accept or top-up broadcast wins over the sweep.
func (r *RequestRepo) ExpireBroadcastedTx(ctx context.Context, tx pgx.Tx, id uuid.UUID, now time.Time) (bool, error) {
	result, err := tx.Exec(ctx, `
		UPDATE requests q SET status = 'EXPIRED', updated_at = now()
		WHERE q.id = $1 AND q.status = 'BROADCASTED'
		  AND NOT EXISTS (SELECT 1 FROM acceptances a WHERE a.request_id = q.id)
		  AND (q.expires_at <= $2 OR NOT EXISTS (
		       SELECT 1 FROM offers o
		       WHERE o.request_id = q.id AND o.status IN ('OFFERED', 'PENDING_CLIENT_APPROVAL')))
	`, id, now)
	if err != nil {
		return false, err
	}
	return result.RowsAffected() == 1, nil
}

func (r *RequestRepo) ListByClient(ctx context.Context, clientID uuid.UUID, limit int) ([]*models.Request, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+requestColumns+` FROM requests WHERE client_id = $1 ORDER BY created_at DESC LIMIT $2
	`, clientID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.Request
	for rows.Next() {
		q, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, q)
	}
	return list, rows.Err()
}
