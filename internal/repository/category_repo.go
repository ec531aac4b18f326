package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/patrickmn/go-cache"

	"github.com/leadflow/backend/internal/models"
)

type CategoryRepo struct {
	pool *pgxpool.Pool
}

func NewCategoryRepo(pool *pgxpool.Pool) *CategoryRepo {
	return &CategoryRepo{pool: pool}
}

func (r *CategoryRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Category, error) {
	var c models.Category
	err := r.pool.QueryRow(ctx, `
		SELECT id, code, name, lead_cost, match_limit, workflow_type, active
		FROM categories WHERE id = $1
	`, id).Scan(&c.ID, &c.Code, &c.Name, &c.LeadCost, &c.MatchLimit, &c.WorkflowType, &c.Active)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// CategoryGetter is satisfied by CategoryRepo and by test fakes.
type CategoryGetter interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Category, error)
}

// CachedCategoryRepo keeps category configuration in memory for ttl. Category
// config changes rarely and is read on every broadcast and accept.
type CachedCategoryRepo struct {
	next  CategoryGetter
	cache *cache.Cache
}

func NewCachedCategoryRepo(next CategoryGetter, ttl time.Duration) *CachedCategoryRepo {
	return &CachedCategoryRepo{next: next, cache: cache.New(ttl, 2*ttl)}
}

func (r *CachedCategoryRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Category, error) {
	key := id.String()
	if v, ok := r.cache.Get(key); ok {
		c := *v.(*models.Category)
		return &c, nil
	}
	c, err := r.next.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	stored := *c
	r.cache.SetDefault(key, &stored)
	return c, nil
}

// Invalidate drops one category from the cache.
func (r *CachedCategoryRepo) Invalidate(id uuid.UUID) {
	r.cache.Delete(id.String())
}
