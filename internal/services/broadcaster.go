package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/leadflow/backend/internal/metrics"
	"github.com/leadflow/backend/internal/models"
	"github.com/leadflow/backend/internal/notify"
)

// Notifier is the fire-and-forget notification collaborator.
type Notifier interface {
	Notify(ctx context.Context, events ...notify.Event)
}

// BroadcastResult reports the offers a broadcast created.
type BroadcastResult struct {
	Request       *models.Request `json:"request"`
	OffersCreated int             `json:"offers_created"`
	Offers        []*models.Offer `json:"offers"`
}

// Broadcaster turns a request into time-boxed offers for eligible pros.
type Broadcaster struct {
	Deps
	Selector   *Selector
	OfferTTL   time.Duration
	RequestTTL time.Duration
}

func NewBroadcaster(d Deps, selector *Selector, offerTTL, requestTTL time.Duration) *Broadcaster {
	return &Broadcaster{Deps: d.withDefaults(), Selector: selector, OfferTTL: offerTTL, RequestTTL: requestTTL}
}

// CreateRequest stores a new OPEN request for the client.
func (b *Broadcaster) CreateRequest(ctx context.Context, q *models.Request) error {
	cat, err := b.Categories.GetByID(ctx, q.CategoryID)
	if err != nil {
		return notFound(err)
	}
	if !cat.Active {
		return ErrCategoryInactive
	}
	if q.ID == uuid.Nil {
		q.ID = uuid.New()
	}
	q.Status = models.RequestStatusOpen
	return b.Requests.Create(ctx, q)
}

// SelectAndBroadcast creates one OFFERED offer per selected pro. An OPEN
// request becomes BROADCASTED; a BROADCASTED request is topped up to the
// category's match limit. Zero offers from OPEN leaves the request OPEN and
// returns ErrNoEligiblePros.
func (b *Broadcaster) SelectAndBroadcast(ctx context.Context, requestID uuid.UUID, opts SelectOptions) (*BroadcastResult, error) {
	req, err := b.Requests.GetByID(ctx, requestID)
	if err != nil {
		return nil, notFound(err)
	}
	if req.Status != models.RequestStatusOpen && req.Status != models.RequestStatusBroadcasted {
		return nil, ErrAlreadyResolved
	}
	cat, err := b.Categories.GetByID(ctx, req.CategoryID)
	if err != nil {
		return nil, notFound(err)
	}
	if !cat.Active {
		return nil, ErrCategoryInactive
	}

	already, err := b.Offers.ProIDsForRequest(ctx, req.ID)
	if err != nil {
		return nil, fmt.Errorf("list offered pros: %w", err)
	}
	opts.ExcludeIDs = append(opts.ExcludeIDs, already...)
	candidates, err := b.Selector.Select(ctx, req, cat, opts)
	if err != nil {
		return nil, fmt.Errorf("select pros: %w", err)
	}

	tx, err := b.Pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	// Lock the request before inserting offers. An accept or a sweep that
	// resolves it concurrently either waits for this commit or is seen here.
	req, err = b.Requests.LockTx(ctx, tx, requestID)
	if err != nil {
		return nil, notFound(err)
	}
	if req.Status != models.RequestStatusOpen && req.Status != models.RequestStatusBroadcasted {
		return nil, ErrAlreadyResolved
	}

	room := cat.MatchLimit
	if req.Status == models.RequestStatusBroadcasted {
		live, err := b.Offers.CountLiveTx(ctx, tx, req.ID)
		if err != nil {
			return nil, err
		}
		room -= live
	}

	now := b.Now()
	var created []*models.Offer
	for _, c := range candidates {
		if len(created) >= room {
			break
		}
		o := b.newOffer(req, cat, c, now)
		ok, err := b.Offers.CreateIfAbsentTx(ctx, tx, o)
		if err != nil {
			return nil, fmt.Errorf("create offer: %w", err)
		}
		if ok {
			created = append(created, o)
		}
	}

	if req.Status == models.RequestStatusOpen {
		if len(created) == 0 {
			return nil, ErrNoEligiblePros
		}
		expiresAt := now.Add(b.RequestTTL)
		ok, err := b.Requests.MarkBroadcastedTx(ctx, tx, req.ID, now, expiresAt)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, ErrAlreadyResolved
		}
		req.Status = models.RequestStatusBroadcasted
		req.BroadcastedAt = &now
		req.ExpiresAt = &expiresAt
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	metrics.OffersCreated.Add(float64(len(created)))
	b.Logger.Info("Request broadcast", "request_id", req.ID, "offers_created", len(created))

	events := make([]notify.Event, 0, len(created))
	for _, o := range created {
		events = append(events, notify.OfferCreated(o.ProID, req.ID, o.ID, now))
	}
	b.Notifier.Notify(ctx, events...)

	return &BroadcastResult{Request: req, OffersCreated: len(created), Offers: created}, nil
}

func (b *Broadcaster) newOffer(req *models.Request, cat *models.Category, c Candidate, now time.Time) *models.Offer {
	o := &models.Offer{
		ID:         uuid.New(),
		RequestID:  req.ID,
		ProID:      c.Pro.ID,
		DistanceKm: c.DistanceKm,
		Status:     models.OfferStatusOffered,
		OfferedAt:  now,
		ExpiresAt:  now.Add(b.OfferTTL),
	}
	if cat.Negotiated() {
		o.PriceType = models.PriceTypeProposed
	} else {
		price := cat.LeadCost
		o.Price = &price
		o.PriceType = models.PriceTypeFixed
	}
	return o
}

// CancelRequest lets the owning client withdraw an OPEN or BROADCASTED
// request. Live offers are closed as CANCELLED in the same transaction.
func (b *Broadcaster) CancelRequest(ctx context.Context, requestID, clientID uuid.UUID) (*models.Request, error) {
	tx, err := b.Pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	req, err := b.Requests.GetByIDTx(ctx, tx, requestID)
	if err != nil {
		return nil, notFound(err)
	}
	if req.ClientID != clientID {
		return nil, ErrNotRequestOwner
	}
	if req.IsTerminal() {
		return nil, ErrAlreadyResolved
	}
	ok, err := b.Requests.TransitionTx(ctx, tx, req.ID,
		[]string{models.RequestStatusOpen, models.RequestStatusBroadcasted}, models.RequestStatusCancelled)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrAlreadyResolved
	}
	closed, err := b.Offers.CloseLiveTx(ctx, tx, req.ID, models.OfferStatusCancelled, b.Now())
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	b.Logger.Info("Request cancelled", "request_id", req.ID, "offers_cancelled", closed)
	req.Status = models.RequestStatusCancelled
	return req, nil
}
