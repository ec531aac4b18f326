package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/leadflow/backend/internal/models"
)

const offerColumns = `id, request_id, pro_id, distance_km, price, price_type, status, offered_at, expires_at,
	responded_at, updated_at`

type OfferRepo struct {
	pool *pgxpool.Pool
}

func NewOfferRepo(pool *pgxpool.Pool) *OfferRepo {
	return &OfferRepo{pool: pool}
}

func scanOffer(row pgx.Row) (*models.Offer, error) {
	var o models.Offer
	err := row.Scan(&o.ID, &o.RequestID, &o.ProID, &o.DistanceKm, &o.Price, &o.PriceType, &o.Status,
		&o.OfferedAt, &o.ExpiresAt, &o.RespondedAt, &o.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func collectOffers(rows pgx.Rows) ([]*models.Offer, error) {
	defer rows.Close()
	var list []*models.Offer
	for rows.Next() {
		o, err := scanOffer(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, o)
	}
	return list, rows.Err()
}

// CreateIfAbsentTx inserts the offer unless the pro already has one for the
// request. It reports whether a row was inserted.
func (r *OfferRepo) CreateIfAbsentTx(ctx context.Context, tx pgx.Tx, o *models.Offer) (bool, error) {
	err := tx.QueryRow(ctx, `
		INSERT INTO offers (id, request_id, pro_id, distance_km, price, price_type, status, offered_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (request_id, pro_id) DO NOTHING
		RETURNING updated_at
	`, o.ID, o.RequestID, o.ProID, o.DistanceKm, o.Price, o.PriceType, o.Status, o.OfferedAt, o.ExpiresAt).
		Scan(&o.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (r *OfferRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Offer, error) {
	return scanOffer(r.pool.QueryRow(ctx, `SELECT `+offerColumns+` FROM offers WHERE id = $1`, id))
}

func (r *OfferRepo) GetByIDTx(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Offer, error) {
	return scanOffer(tx.QueryRow(ctx, `SELECT `+offerColumns+` FROM offers WHERE id = $1`, id))
}

func (r *OfferRepo) ListByRequest(ctx context.Context, requestID uuid.UUID) ([]*models.Offer, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+offerColumns+` FROM offers WHERE request_id = $1 ORDER BY offered_at, id
	`, requestID)
	if err != nil {
		return nil, err
	}
	return collectOffers(rows)
}

// ListLiveByPro returns the pro's unexpired live offers, newest first.
func (r *OfferRepo) ListLiveByPro(ctx context.Context, proID uuid.UUID, now time.Time) ([]*models.Offer, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+offerColumns+` FROM offers
		WHERE pro_id = $1 AND status IN ('OFFERED', 'PENDING_CLIENT_APPROVAL') AND expires_at > $2
		ORDER BY offered_at DESC
	`, proID, now)
	if err != nil {
		return nil, err
	}
	return collectOffers(rows)
}

// ProIDsForRequest lists every pro that already received an offer for the request.
func (r *OfferRepo) ProIDsForRequest(ctx context.Context, requestID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx, `SELECT pro_id FROM offers WHERE request_id = $1`, requestID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *OfferRepo) CountLiveTx(ctx context.Context, tx pgx.Tx, requestID uuid.UUID) (int, error) {
	var n int
	err := tx.QueryRow(ctx, `
		SELECT count(*) FROM offers WHERE request_id = $1 AND status IN ('OFFERED', 'PENDING_CLIENT_APPROVAL')
	`, requestID).Scan(&n)
	return n, err
}

func (r *OfferRepo) CountAcceptedTx(ctx context.Context, tx pgx.Tx, requestID uuid.UUID) (int, error) {
	var n int
	err := tx.QueryRow(ctx, `SELECT count(*) FROM offers WHERE request_id = $1 AND status = 'ACCEPTED'`, requestID).Scan(&n)
	return n, err
}

// AcceptTx is the offer-side compare-and-set of the accept algorithm: status
// must be one of from and the offer must not be past its deadline.
func (r *OfferRepo) AcceptTx(ctx context.Context, tx pgx.Tx, id uuid.UUID, from []string, price int64, now time.Time) (bool, error) {
	result, err := tx.Exec(ctx, `
		UPDATE offers SET status = 'ACCEPTED', price = $3, responded_at = $4, updated_at = now()
		WHERE id = $1 AND status = ANY($2) AND expires_at > $4
	`, id, from, price, now)
	if err != nil {
		return false, err
	}
	return result.RowsAffected() == 1, nil
}

// MissSiblingsTx closes every other live offer of the request as MISSED.
func (r *OfferRepo) MissSiblingsTx(ctx context.Context, tx pgx.Tx, requestID, winnerID uuid.UUID, now time.Time) (int64, error) {
	result, err := tx.Exec(ctx, `
		UPDATE offers SET status = 'MISSED', responded_at = $3, updated_at = now()
		WHERE request_id = $1 AND id <> $2 AND status IN ('OFFERED', 'PENDING_CLIENT_APPROVAL')
	`, requestID, winnerID, now)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}

// CloseLiveTx moves every live offer of the request to status (EXPIRED or CANCELLED).
func (r *OfferRepo) CloseLiveTx(ctx context.Context, tx pgx.Tx, requestID uuid.UUID, status string, now time.Time) (int64, error) {
	result, err := tx.Exec(ctx, `
		UPDATE offers SET status = $2, responded_at = $3, updated_at = now()
		WHERE request_id = $1 AND status IN ('OFFERED', 'PENDING_CLIENT_APPROVAL')
	`, requestID, status, now)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}

// ProposePrice is the OFFERED -> PENDING_CLIENT_APPROVAL compare-and-set.
func (r *OfferRepo) ProposePrice(ctx context.Context, id, proID uuid.UUID, price int64, now time.Time) (bool, error) {
	result, err := r.pool.Exec(ctx, `
		UPDATE offers SET status = 'PENDING_CLIENT_APPROVAL', price = $3, price_type = 'PROPOSED',
		       responded_at = $4, updated_at = now()
		WHERE id = $1 AND pro_id = $2 AND status = 'OFFERED' AND expires_at > $4
		  AND EXISTS (SELECT 1 FROM requests q WHERE q.id = offers.request_id AND q.status = 'BROADCASTED')
	`, id, proID, price, now)
	if err != nil {
		return false, err
	}
	return result.RowsAffected() == 1, nil
}

// ResetProposal returns a rejected proposal to OFFERED while it is still unexpired.
func (r *OfferRepo) ResetProposal(ctx context.Context, id uuid.UUID, now time.Time) (bool, error) {
	result, err := r.pool.Exec(ctx, `
		UPDATE offers SET status = 'OFFERED', price = NULL, responded_at = NULL, updated_at = now()
		WHERE id = $1 AND status = 'PENDING_CLIENT_APPROVAL' AND expires_at > $2
	`, id, now)
	if err != nil {
		return false, err
	}
	return result.RowsAffected() == 1, nil
}

// ExpireLive marks a live offer MISSED once its deadline has passed.
func (r *OfferRepo) ExpireLive(ctx context.Context, id uuid.UUID, now time.Time) (bool, error) {
	result, err := r.pool.Exec(ctx, `
		UPDATE offers SET status = 'MISSED', updated_at = now()
		WHERE id = $1 AND status IN ('OFFERED', 'PENDING_CLIENT_APPROVAL') AND expires_at <= $2
	`, id, now)
	if err != nil {
		return false, err
	}
	return result.RowsAffected() == 1, nil
}

func (r *OfferRepo) ListExpiredLive(ctx context.Context, now time.Time, limit int) ([]*models.Offer, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+offerColumns+` FROM offers
		WHERE status IN ('OFFERED', 'PENDING_CLIENT_APPROVAL') AND expires_at <= $1
		ORDER BY expires_at
		LIMIT $2
	`, now, limit)
	if err != nil {
		return nil, err
	}
	return collectOffers(rows)
}
