package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/leadflow/backend/internal/models"
)

const proColumns = `p.id, p.name, p.online, p.active, p.kyc_status, p.rating_avg, p.rating_count,
	p.wallet_balance, p.low_balance_threshold, p.latitude, p.longitude, p.created_at, p.updated_at`

type ProRepo struct {
	pool *pgxpool.Pool
}

func NewProRepo(pool *pgxpool.Pool) *ProRepo {
	return &ProRepo{pool: pool}
}

func scanPro(row pgx.Row) (*models.Pro, error) {
	var p models.Pro
	err := row.Scan(&p.ID, &p.Name, &p.Online, &p.Active, &p.KYCStatus, &p.RatingAvg, &p.RatingCount,
		&p.WalletBalance, &p.LowBalanceThreshold, &p.Latitude, &p.Longitude, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *ProRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Pro, error) {
	return scanPro(r.pool.QueryRow(ctx, `SELECT `+proColumns+` FROM pros p WHERE p.id = $1`, id))
}

// FindEligible returns the pros passing the hard eligibility predicate, ordered
// by rating_avg desc, rating_count desc, id asc. Limit <= 0 means no limit.
func (r *ProRepo) FindEligible(ctx context.Context, s models.ProSearch) ([]*models.Pro, error) {
	var q strings.Builder
	q.WriteString(`SELECT ` + proColumns + `
		FROM pros p
		JOIN pro_categories pc ON pc.pro_id = p.id AND pc.category_id = $1
		WHERE p.online AND p.active AND p.kyc_status = 'APPROVED' AND p.wallet_balance >= $2`)
	args := []any{s.CategoryID, s.MinBalance}
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if s.Box != nil {
		fmt.Fprintf(&q, ` AND p.latitude BETWEEN %s AND %s`, arg(s.Box.MinLat), arg(s.Box.MaxLat))
		if s.Box.Wraps() {
			fmt.Fprintf(&q, ` AND (p.longitude >= %s OR p.longitude <= %s)`, arg(s.Box.MinLng), arg(s.Box.MaxLng))
		} else {
			fmt.Fprintf(&q, ` AND p.longitude BETWEEN %s AND %s`, arg(s.Box.MinLng), arg(s.Box.MaxLng))
		}
	}
	if len(s.ExcludeIDs) > 0 {
		ids := make([]string, len(s.ExcludeIDs))
		for i, id := range s.ExcludeIDs {
			ids[i] = id.String()
		}
		fmt.Fprintf(&q, ` AND NOT (p.id = ANY(%s::uuid[]))`, arg(ids))
	}
	if s.ExcludeBusy {
		q.WriteString(` AND NOT EXISTS (SELECT 1 FROM jobs j WHERE j.pro_id = p.id AND j.status = 'IN_PROGRESS')`)
	}
	q.WriteString(` ORDER BY p.rating_avg DESC, p.rating_count DESC, p.id ASC`)
	if s.Limit > 0 {
		fmt.Fprintf(&q, ` LIMIT %s`, arg(s.Limit))
	}

	rows, err := r.pool.Query(ctx, q.String(), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.Pro
	for rows.Next() {
		p, err := scanPro(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, p)
	}
	return list, rows.Err()
}

// ApplyRatingTx folds one new star rating into the pro's running average.
func (r *ProRepo) ApplyRatingTx(ctx context.Context, tx pgx.Tx, proID uuid.UUID, stars int) error {
	result, err := tx.Exec(ctx, `
		UPDATE pros
		SET rating_avg = (rating_avg * rating_count + $2) / (rating_count + 1),
		    rating_count = rating_count + 1,
		    updated_at = now()
		WHERE id = $1
	`, proID, stars)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}
