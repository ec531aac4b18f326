package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/leadflow/backend/internal/ledger"
	"github.com/leadflow/backend/internal/metrics"
	"github.com/leadflow/backend/internal/models"
	"github.com/leadflow/backend/internal/notify"
)

// AcceptResult is the outcome of a winning accept or an approved proposal.
type AcceptResult struct {
	Job        *models.Job               `json:"job"`
	Acceptance *models.Acceptance        `json:"acceptance"`
	Debit      *models.WalletTransaction `json:"debit,omitempty"`
	Replayed   bool                      `json:"replayed"`
}

// DecisionResult is the outcome of a client decision on a proposal. Exactly
// one of Accepted and Offer is set.
type DecisionResult struct {
	Accepted *AcceptResult `json:"accepted,omitempty"`
	Offer    *models.Offer `json:"offer,omitempty"`
}

// Arbiter resolves concurrent claims on a lead. Every claim runs in one
// transaction: the request row flips BROADCASTED -> ASSIGNED and the offer row
// flips to ACCEPTED through conditional updates, so exactly one claimant sees
// an affected row. Rows are always touched request first, then offer, the
// same order the sweeper uses.
type Arbiter struct {
	Deps
	// AllowConcurrentJobs lets a pro win while already holding an IN_PROGRESS job.
	AllowConcurrentJobs bool
}

func NewArbiter(d Deps, allowConcurrentJobs bool) *Arbiter {
	return &Arbiter{Deps: d.withDefaults(), AllowConcurrentJobs: allowConcurrentJobs}
}

// Accept claims a FIRST_CLICK offer for the pro.
func (a *Arbiter) Accept(ctx context.Context, offerID, proID uuid.UUID) (*AcceptResult, error) {
	res, err := a.accept(ctx, offerID, proID)
	a.observe(offerID, err)
	return res, err
}

func (a *Arbiter) accept(ctx context.Context, offerID, proID uuid.UUID) (*AcceptResult, error) {
	tx, err := a.Pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	offer, err := a.Offers.GetByIDTx(ctx, tx, offerID)
	if err != nil {
		return nil, notFound(err)
	}
	if offer.ProID != proID {
		return nil, ErrNotOfferOwner
	}
	if offer.Status == models.OfferStatusAccepted {
		return a.replay(ctx, tx, offer)
	}

	req, err := a.Requests.GetByIDTx(ctx, tx, offer.RequestID)
	if err != nil {
		return nil, notFound(err)
	}
	cat, err := a.Categories.GetByID(ctx, req.CategoryID)
	if err != nil {
		return nil, notFound(err)
	}
	if cat.Negotiated() {
		return nil, ErrApprovalRequired
	}
	if offer.Status != models.OfferStatusOffered || req.Status != models.RequestStatusBroadcasted {
		return nil, ErrAlreadyResolved
	}
	now := a.Now()
	if offer.ExpiredAt(now) || req.ExpiredAt(now) {
		return nil, ErrOfferExpired
	}

	price := cat.LeadCost
	if offer.Price != nil {
		price = *offer.Price
	}
	res, err := a.resolve(ctx, tx, req, offer, []string{models.OfferStatusOffered}, price, now)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	a.afterWin(ctx, req, res, now)
	return res.AcceptResult, nil
}

// replay answers a duplicate accept from the winning pro with the job that
// already exists. Nothing is written and nothing is debited again.
func (a *Arbiter) replay(ctx context.Context, tx pgx.Tx, offer *models.Offer) (*AcceptResult, error) {
	job, err := a.Jobs.GetByOfferTx(ctx, tx, offer.ID)
	if err != nil {
		return nil, notFound(err)
	}
	acc, err := a.Acceptances.GetByRequestTx(ctx, tx, offer.RequestID)
	if err != nil {
		return nil, notFound(err)
	}
	return &AcceptResult{Job: job, Acceptance: acc, Replayed: true}, nil
}

type resolution struct {
	*AcceptResult
	belowThreshold bool
}

// resolve performs the guarded writes of a win inside tx. Any error leaves the
// caller to roll back, which restores the offer and the request.
func (a *Arbiter) resolve(ctx context.Context, tx pgx.Tx, req *models.Request, offer *models.Offer, from []string, price int64, now time.Time) (*resolution, error) {
	if !models.CanTransitionRequest(req.Status, models.RequestStatusAssigned) ||
		!models.CanTransitionOffer(offer.Status, models.OfferStatusAccepted) {
		return nil, ErrAlreadyResolved
	}
	ok, err := a.Requests.TransitionTx(ctx, tx, req.ID,
		[]string{models.RequestStatusBroadcasted}, models.RequestStatusAssigned)
	if err != nil {
		return nil, fmt.Errorf("assign request: %w", err)
	}
	if !ok {
		return nil, ErrAlreadyResolved
	}
	ok, err = a.Offers.AcceptTx(ctx, tx, offer.ID, from, price, now)
	if err != nil {
		return nil, fmt.Errorf("accept offer: %w", err)
	}
	if !ok {
		return nil, ErrAlreadyResolved
	}

	if !a.AllowConcurrentJobs {
		// Two accepts by one pro on different requests share no request row.
		// The wallet lock orders them, so the second sees the first's job.
		if _, err := a.Ledger.Lock(ctx, tx, offer.ProID); err != nil {
			return nil, fmt.Errorf("lock pro: %w", err)
		}
		busy, err := a.Jobs.HasInProgressTx(ctx, tx, offer.ProID)
		if err != nil {
			return nil, err
		}
		if busy {
			return nil, ErrProBusy
		}
	}

	accepted, err := a.Offers.CountAcceptedTx(ctx, tx, req.ID)
	if err != nil {
		return nil, err
	}
	if accepted != 1 {
		metrics.InvariantViolations.WithLabelValues("single_winner").Inc()
		a.Logger.Error("Multiple accepted offers on one request",
			"request_id", req.ID, "offer_id", offer.ID, "accepted", accepted)
		return nil, fmt.Errorf("%w: %d accepted offers on request %s", ErrInvariantViolation, accepted, req.ID)
	}

	res := &resolution{AcceptResult: &AcceptResult{}}
	if price > 0 {
		offerRef := offer.ID
		posting, err := a.Ledger.Debit(ctx, tx, offer.ProID, price, "lead "+req.ID.String(),
			models.LedgerRef{Type: models.RefTypeOffer, ID: &offerRef})
		if errors.Is(err, ledger.ErrDuplicateDebit) {
			metrics.InvariantViolations.WithLabelValues("double_debit").Inc()
			return nil, fmt.Errorf("%w: offer %s already debited", ErrInvariantViolation, offer.ID)
		}
		if err != nil {
			return nil, err
		}
		res.Debit = posting.Entry
		res.belowThreshold = posting.BelowThreshold
	}

	acc := &models.Acceptance{
		ID:         uuid.New(),
		OfferID:    offer.ID,
		RequestID:  req.ID,
		ProID:      offer.ProID,
		Price:      price,
		AcceptedAt: now,
	}
	if err := a.Acceptances.CreateTx(ctx, tx, acc); err != nil {
		return nil, fmt.Errorf("record acceptance: %w", err)
	}
	job := &models.Job{
		ID:           uuid.New(),
		RequestID:    req.ID,
		OfferID:      offer.ID,
		AcceptanceID: acc.ID,
		ProID:        offer.ProID,
		ClientID:     req.ClientID,
		Price:        price,
		Status:       models.JobStatusInProgress,
		StartedAt:    now,
	}
	if err := a.Jobs.CreateTx(ctx, tx, job); err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}
	if _, err := a.Offers.MissSiblingsTx(ctx, tx, req.ID, offer.ID, now); err != nil {
		return nil, fmt.Errorf("close sibling offers: %w", err)
	}

	res.Job = job
	res.Acceptance = acc
	return res, nil
}

func (a *Arbiter) afterWin(ctx context.Context, req *models.Request, res *resolution, now time.Time) {
	if res.Debit != nil {
		metrics.LedgerDebits.Add(float64(res.Debit.Amount))
	}
	a.Logger.Info("Lead accepted", "request_id", req.ID, "offer_id", res.Job.OfferID,
		"pro_id", res.Job.ProID, "job_id", res.Job.ID, "price", res.Job.Price)

	events := []notify.Event{notify.LeadAccepted(req.ClientID, req.ID, res.Job.OfferID, res.Job.ID, now)}
	if res.belowThreshold {
		events = append(events, notify.WalletLowBalance(res.Job.ProID, res.Debit.BalanceAfter, now))
	}
	a.Notifier.Notify(ctx, events...)
}

// ProposePrice records a pro's price on a LEAD_OFFER offer and moves it to
// PENDING_CLIENT_APPROVAL.
func (a *Arbiter) ProposePrice(ctx context.Context, offerID, proID uuid.UUID, price int64) (*models.Offer, error) {
	if price <= 0 {
		return nil, ErrInvalidPrice
	}
	offer, err := a.Offers.GetByID(ctx, offerID)
	if err != nil {
		return nil, notFound(err)
	}
	if offer.ProID != proID {
		return nil, ErrNotOfferOwner
	}
	req, err := a.Requests.GetByID(ctx, offer.RequestID)
	if err != nil {
		return nil, notFound(err)
	}
	cat, err := a.Categories.GetByID(ctx, req.CategoryID)
	if err != nil {
		return nil, notFound(err)
	}
	if !cat.Negotiated() {
		return nil, ErrWorkflowMismatch
	}
	if offer.Status != models.OfferStatusOffered || req.Status != models.RequestStatusBroadcasted {
		return nil, ErrAlreadyResolved
	}
	now := a.Now()
	if offer.ExpiredAt(now) {
		return nil, ErrOfferExpired
	}

	ok, err := a.Offers.ProposePrice(ctx, offerID, proID, price, now)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrAlreadyResolved
	}
	offer.Status = models.OfferStatusPendingClientApproval
	offer.Price = &price
	offer.PriceType = models.PriceTypeProposed
	offer.RespondedAt = &now
	return offer, nil
}

// ClientDecision approves or rejects a pending proposal. Approval runs the
// accept algorithm with the proposed price; rejection returns the offer to
// OFFERED, or MISSED once the offer has expired.
func (a *Arbiter) ClientDecision(ctx context.Context, offerID, clientID uuid.UUID, approve bool) (*DecisionResult, error) {
	if approve {
		res, err := a.approve(ctx, offerID, clientID)
		a.observe(offerID, err)
		if err != nil {
			return nil, err
		}
		return &DecisionResult{Accepted: res}, nil
	}
	offer, err := a.reject(ctx, offerID, clientID)
	if err != nil {
		return nil, err
	}
	return &DecisionResult{Offer: offer}, nil
}

func (a *Arbiter) approve(ctx context.Context, offerID, clientID uuid.UUID) (*AcceptResult, error) {
	tx, err := a.Pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	offer, err := a.Offers.GetByIDTx(ctx, tx, offerID)
	if err != nil {
		return nil, notFound(err)
	}
	req, err := a.Requests.GetByIDTx(ctx, tx, offer.RequestID)
	if err != nil {
		return nil, notFound(err)
	}
	if req.ClientID != clientID {
		return nil, ErrNotRequestOwner
	}
	if offer.Status == models.OfferStatusAccepted {
		return a.replay(ctx, tx, offer)
	}
	if offer.Status == models.OfferStatusOffered {
		return nil, ErrNotPending
	}
	if offer.Status != models.OfferStatusPendingClientApproval || req.Status != models.RequestStatusBroadcasted {
		return nil, ErrAlreadyResolved
	}
	now := a.Now()
	if offer.ExpiredAt(now) || req.ExpiredAt(now) {
		return nil, ErrOfferExpired
	}
	if offer.Price == nil || *offer.Price <= 0 {
		return nil, ErrInvalidPrice
	}

	res, err := a.resolve(ctx, tx, req, offer, []string{models.OfferStatusPendingClientApproval}, *offer.Price, now)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	a.afterWin(ctx, req, res, now)
	return res.AcceptResult, nil
}

func (a *Arbiter) reject(ctx context.Context, offerID, clientID uuid.UUID) (*models.Offer, error) {
	offer, err := a.Offers.GetByID(ctx, offerID)
	if err != nil {
		return nil, notFound(err)
	}
	req, err := a.Requests.GetByID(ctx, offer.RequestID)
	if err != nil {
		return nil, notFound(err)
	}
	if req.ClientID != clientID {
		return nil, ErrNotRequestOwner
	}
	if offer.Status != models.OfferStatusPendingClientApproval {
		if offer.Status == models.OfferStatusOffered {
			return nil, ErrNotPending
		}
		return nil, ErrAlreadyResolved
	}

	now := a.Now()
	if offer.ExpiredAt(now) {
		ok, err := a.Offers.ExpireLive(ctx, offerID, now)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, ErrAlreadyResolved
		}
		offer.Status = models.OfferStatusMissed
		return offer, nil
	}

	ok, err := a.Offers.ResetProposal(ctx, offerID, now)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrAlreadyResolved
	}
	offer.Status = models.OfferStatusOffered
	offer.Price = nil
	offer.RespondedAt = nil
	return offer, nil
}

func (a *Arbiter) observe(offerID uuid.UUID, err error) {
	outcome := "won"
	switch {
	case err == nil:
	case errors.Is(err, ErrAlreadyResolved):
		outcome = "already_resolved"
	case errors.Is(err, ErrInsufficientBalance):
		outcome = "insufficient_balance"
	case errors.Is(err, ErrOfferExpired):
		outcome = "expired"
	case errors.Is(err, ErrInvariantViolation):
		outcome = "invariant_violation"
	case IsRejection(err):
		outcome = "rejected"
	default:
		outcome = "error"
		a.Logger.Error("Accept failed", "offer_id", offerID, "error", err)
	}
	metrics.AcceptOutcomes.WithLabelValues(outcome).Inc()
}
