package services

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/gammazero/workerpool"

	"github.com/leadflow/backend/internal/metrics"
	"github.com/leadflow/backend/internal/models"
	"github.com/leadflow/backend/internal/notify"
)

// SweepResult counts what one sweep reclaimed.
type SweepResult struct {
	OffersExpired   int64 `json:"offers_expired"`
	RequestsExpired int64 `json:"requests_expired"`
	Failures        int64 `json:"failures"`
}

// Sweeper reclaims expired offers and stale requests. It runs as a periodic
// batch job. Every row update is a conditional write, so concurrent sweeps and
// racing accepts are safe; a late sweep simply affects zero rows.
type Sweeper struct {
	Deps
	BatchSize int
	Workers   int
}

func NewSweeper(d Deps, batchSize, workers int) *Sweeper {
	if batchSize <= 0 {
		batchSize = 500
	}
	if workers <= 0 {
		workers = 1
	}
	return &Sweeper{Deps: d.withDefaults(), BatchSize: batchSize, Workers: workers}
}

// SweepExpired moves live offers past their deadline to MISSED, then expires
// BROADCASTED requests that timed out or ran out of live offers. A failing row
// is logged and counted; it never stops the batch.
func (s *Sweeper) SweepExpired(ctx context.Context) (*SweepResult, error) {
	now := s.Now()
	var res SweepResult

	offers, err := s.Offers.ListExpiredLive(ctx, now, s.BatchSize)
	if err != nil {
		return nil, fmt.Errorf("list expired offers: %w", err)
	}
	wp := workerpool.New(s.Workers)
	for _, o := range offers {
		wp.Submit(func() {
			ok, err := s.Offers.ExpireLive(ctx, o.ID, now)
			if err != nil {
				atomic.AddInt64(&res.Failures, 1)
				s.Logger.Warn("Sweep offer failed", "offer_id", o.ID, "error", err)
				return
			}
			if ok {
				atomic.AddInt64(&res.OffersExpired, 1)
			}
		})
	}
	wp.StopWait()

	requests, err := s.Requests.ListStaleBroadcasted(ctx, now, s.BatchSize)
	if err != nil {
		return nil, fmt.Errorf("list stale requests: %w", err)
	}
	wp = workerpool.New(s.Workers)
	for _, q := range requests {
		wp.Submit(func() {
			ok, err := s.expireRequest(ctx, q, now)
			if err != nil {
				atomic.AddInt64(&res.Failures, 1)
				s.Logger.Warn("Sweep request failed", "request_id", q.ID, "error", err)
				return
			}
			if ok {
				atomic.AddInt64(&res.RequestsExpired, 1)
				s.Notifier.Notify(ctx, notify.LeadExpired(q.ClientID, q.ID, now))
			}
		})
	}
	wp.StopWait()

	metrics.SweepExpired.WithLabelValues("offer").Add(float64(res.OffersExpired))
	metrics.SweepExpired.WithLabelValues("request").Add(float64(res.RequestsExpired))
	metrics.SweepFailures.Add(float64(res.Failures))
	if res.OffersExpired+res.RequestsExpired+res.Failures > 0 {
		s.Logger.Info("Sweep finished", "offers_expired", res.OffersExpired,
			"requests_expired", res.RequestsExpired, "failures", res.Failures)
	}
	return &res, nil
}

func (s *Sweeper) expireRequest(ctx context.Context, q *models.Request, now time.Time) (bool, error) {
	tx, err := s.Pool.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer tx.Rollback(ctx)

	// Same lock order as accept and broadcast: request row first. The expiry
	// update then sees any offers a concurrent top-up committed.
	if _, err := s.Requests.LockTx(ctx, tx, q.ID); err != nil {
		return false, err
	}
	ok, err := s.Requests.ExpireBroadcastedTx(ctx, tx, q.ID, now)
	if err != nil || !ok {
		return false, err
	}
	if _, err := s.Offers.CloseLiveTx(ctx, tx, q.ID, models.OfferStatusExpired, now); err != nil {
		return false, err
	}
	if err := tx.Commit(ctx); err != nil {
		return false, err
	}
	return true, nil
}
