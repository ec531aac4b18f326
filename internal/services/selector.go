package services

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/leadflow/backend/internal/models"
)

// ProFinder is the minimal pro repository interface for eligibility selection.
type ProFinder interface {
	FindEligible(ctx context.Context, s models.ProSearch) ([]*models.Pro, error)
}

// SelectOptions narrows one selection beyond the category defaults.
type SelectOptions struct {
	Box           *models.BoundingBox
	MaxDistanceKm float64
	ExcludeIDs    []uuid.UUID
	Limit         int
}

// Candidate is one eligible pro with its distance to the request, when known.
type Candidate struct {
	Pro        *models.Pro
	DistanceKm *float64
}

// Selector picks the pros that may receive an offer for a request.
type Selector struct {
	Pros ProFinder
	// MaxDistanceKm applies when SelectOptions leaves it zero. Zero disables the filter.
	MaxDistanceKm float64
	// ExcludeBusy drops pros that already hold an IN_PROGRESS job.
	ExcludeBusy bool
}

func NewSelector(pros ProFinder, maxDistanceKm float64, excludeBusy bool) *Selector {
	return &Selector{Pros: pros, MaxDistanceKm: maxDistanceKm, ExcludeBusy: excludeBusy}
}

// Select returns at most min(category.MatchLimit, opts.Limit) candidates,
// ordered by rating_avg desc, rating_count desc, id asc. An empty result is
// not an error. Eligibility is advisory; the debit at accept time is authoritative.
func (s *Selector) Select(ctx context.Context, req *models.Request, cat *models.Category, opts SelectOptions) ([]Candidate, error) {
	limit := cat.MatchLimit
	if opts.Limit > 0 && opts.Limit < limit {
		limit = opts.Limit
	}
	if limit <= 0 {
		return nil, nil
	}

	maxDist := opts.MaxDistanceKm
	if maxDist <= 0 {
		maxDist = s.MaxDistanceKm
	}
	box := opts.Box
	if box == nil && maxDist > 0 {
		box = BoundingBoxAround(req.Latitude, req.Longitude, maxDist)
	}

	search := models.ProSearch{
		CategoryID:  cat.ID,
		MinBalance:  cat.LeadCost,
		Box:         box,
		ExcludeBusy: s.ExcludeBusy,
		ExcludeIDs:  opts.ExcludeIDs,
		Limit:       limit,
	}
	// The distance refinement below can drop rows, so fetch the whole box.
	if maxDist > 0 {
		search.Limit = 0
	}
	pros, err := s.Pros.FindEligible(ctx, search)
	if err != nil {
		return nil, err
	}

	excluded := make(map[uuid.UUID]bool, len(opts.ExcludeIDs))
	for _, id := range opts.ExcludeIDs {
		excluded[id] = true
	}

	candidates := make([]Candidate, 0, len(pros))
	for _, p := range pros {
		if excluded[p.ID] || !isEligible(p, cat) {
			continue
		}
		c := Candidate{Pro: p}
		if p.Latitude != nil && p.Longitude != nil {
			d := DistanceKm(req.Latitude, req.Longitude, *p.Latitude, *p.Longitude)
			c.DistanceKm = &d
			if box != nil && !box.Contains(*p.Latitude, *p.Longitude) {
				continue
			}
			if maxDist > 0 && d > maxDist {
				continue
			}
		} else if box != nil {
			continue
		}
		candidates = append(candidates, c)
	}

	sortCandidates(candidates)
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}
	return candidates, nil
}

func isEligible(p *models.Pro, cat *models.Category) bool {
	return p.Online && p.Active && p.KYCStatus == models.KYCApproved && p.WalletBalance >= cat.LeadCost
}

func sortCandidates(c []Candidate) {
	sort.SliceStable(c, func(i, j int) bool {
		a, b := c[i].Pro, c[j].Pro
		if a.RatingAvg != b.RatingAvg {
			return a.RatingAvg > b.RatingAvg
		}
		if a.RatingCount != b.RatingCount {
			return a.RatingCount > b.RatingCount
		}
		return a.ID.String() < b.ID.String()
	})
}
