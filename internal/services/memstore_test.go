package services

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/leadflow/backend/internal/ledger"
	"github.com/leadflow/backend/internal/models"
	"github.com/leadflow/backend/internal/notify"
)

// ---------------------------------------------------------------------------
// memStore is an in-memory stand-in for Postgres. A transaction holds the
// store mutex from Begin until Commit or Rollback, which makes transactions
// serializable; Rollback restores the snapshot taken at Begin. Methods taking
// a pgx.Tx assume the mutex is held, the others take it themselves.
// ---------------------------------------------------------------------------

type memState struct {
	requests    map[uuid.UUID]models.Request
	offers      map[uuid.UUID]models.Offer
	jobs        map[uuid.UUID]models.Job
	acceptances map[uuid.UUID]models.Acceptance
	ratings     map[uuid.UUID]models.Rating
	pros        map[uuid.UUID]models.Pro
	proCats     map[uuid.UUID]map[uuid.UUID]bool
	ledger      []models.WalletTransaction
}

func (s memState) clone() memState {
	c := memState{
		requests:    make(map[uuid.UUID]models.Request, len(s.requests)),
		offers:      make(map[uuid.UUID]models.Offer, len(s.offers)),
		jobs:        make(map[uuid.UUID]models.Job, len(s.jobs)),
		acceptances: make(map[uuid.UUID]models.Acceptance, len(s.acceptances)),
		ratings:     make(map[uuid.UUID]models.Rating, len(s.ratings)),
		pros:        make(map[uuid.UUID]models.Pro, len(s.pros)),
		proCats:     make(map[uuid.UUID]map[uuid.UUID]bool, len(s.proCats)),
		ledger:      append([]models.WalletTransaction(nil), s.ledger...),
	}
	for k, v := range s.requests {
		c.requests[k] = v
	}
	for k, v := range s.offers {
		c.offers[k] = v
	}
	for k, v := range s.jobs {
		c.jobs[k] = v
	}
	for k, v := range s.acceptances {
		c.acceptances[k] = v
	}
	for k, v := range s.ratings {
		c.ratings[k] = v
	}
	for k, v := range s.pros {
		c.pros[k] = v
	}
	for k, v := range s.proCats {
		m := make(map[uuid.UUID]bool, len(v))
		for ck := range v {
			m[ck] = true
		}
		c.proCats[k] = m
	}
	return c
}

type memStore struct {
	mu    sync.Mutex
	state memState
	// trace records row locks and guarded reads in the order a transaction
	// made them. It is not rolled back.
	trace []string
}

func newMemStore() *memStore {
	return &memStore{state: memState{}.clone()}
}

type memTx struct {
	store *memStore
	snap  memState
	done  bool
}

func (s *memStore) Begin(context.Context) (pgx.Tx, error) {
	s.mu.Lock()
	return &memTx{store: s, snap: s.state.clone()}, nil
}

func (t *memTx) Commit(context.Context) error {
	if t.done {
		return pgx.ErrTxClosed
	}
	t.done = true
	t.store.mu.Unlock()
	return nil
}

func (t *memTx) Rollback(context.Context) error {
	if t.done {
		return pgx.ErrTxClosed
	}
	t.done = true
	t.store.state = t.snap
	t.store.mu.Unlock()
	return nil
}

func (t *memTx) Begin(context.Context) (pgx.Tx, error) { return t, nil }
func (t *memTx) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	return pgconn.NewCommandTag(""), nil
}
func (t *memTx) Query(context.Context, string, ...any) (pgx.Rows, error) { return nil, nil }
func (t *memTx) QueryRow(context.Context, string, ...any) pgx.Row        { return nil }
func (t *memTx) CopyFrom(context.Context, pgx.Identifier, []string, pgx.CopyFromSource) (int64, error) {
	return 0, nil
}
func (t *memTx) SendBatch(context.Context, *pgx.Batch) pgx.BatchResults { return nil }
func (t *memTx) LargeObjects() pgx.LargeObjects                         { return pgx.LargeObjects{} }
func (t *memTx) Prepare(context.Context, string, string) (*pgconn.StatementDescription, error) {
	return nil, nil
}
func (t *memTx) Conn() *pgx.Conn { return nil }

func (s *memStore) locked(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn()
}

func (s *memStore) record(kind string, id uuid.UUID) {
	s.trace = append(s.trace, kind+":"+id.String())
}

// traced returns the recorded events and clears the trace.
func (s *memStore) traced() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.trace
	s.trace = nil
	return out
}

// position returns the index of the first matching trace event, or -1.
func position(trace []string, kind string, id uuid.UUID) int {
	want := kind + ":" + id.String()
	for i, ev := range trace {
		if ev == want {
			return i
		}
	}
	return -1
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

// --- requests ---

func (s *memStore) Create(_ context.Context, q *models.Request) error {
	s.locked(func() {
		q.CreatedAt = time.Now()
		q.UpdatedAt = q.CreatedAt
		s.state.requests[q.ID] = *q
	})
	return nil
}

func (s *memStore) getRequest(id uuid.UUID) (*models.Request, error) {
	q, ok := s.state.requests[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &q, nil
}

func (s *memStore) GetByID(_ context.Context, id uuid.UUID) (*models.Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getRequest(id)
}

func (s *memStore) GetByIDTx(_ context.Context, _ pgx.Tx, id uuid.UUID) (*models.Request, error) {
	return s.getRequest(id)
}

func (s *memStore) LockTx(_ context.Context, _ pgx.Tx, id uuid.UUID) (*models.Request, error) {
	s.record("lock-request", id)
	return s.getRequest(id)
}

func (s *memStore) TransitionTx(_ context.Context, _ pgx.Tx, id uuid.UUID, from []string, to string) (bool, error) {
	q, ok := s.state.requests[id]
	if !ok || !contains(from, q.Status) {
		return false, nil
	}
	q.Status = to
	s.state.requests[id] = q
	return true, nil
}

func (s *memStore) MarkBroadcastedTx(_ context.Context, _ pgx.Tx, id uuid.UUID, at, expiresAt time.Time) (bool, error) {
	q, ok := s.state.requests[id]
	if !ok || q.Status != models.RequestStatusOpen {
		return false, nil
	}
	q.Status = models.RequestStatusBroadcasted
	q.BroadcastedAt = &at
	q.ExpiresAt = &expiresAt
	s.state.requests[id] = q
	return true, nil
}

func (s *memStore) isStale(q models.Request, now time.Time) bool {
	if q.Status != models.RequestStatusBroadcasted {
		return false
	}
	for _, a := range s.state.acceptances {
		if a.RequestID == q.ID {
			return false
		}
	}
	if q.ExpiresAt != nil && !q.ExpiresAt.After(now) {
		return true
	}
	for _, o := range s.state.offers {
		if o.RequestID == q.ID && o.IsLive() {
			return false
		}
	}
	return true
}

func (s *memStore) ListStaleBroadcasted(_ context.Context, now time.Time, limit int) ([]*models.Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var list []*models.Request
	for _, q := range s.state.requests {
		if len(list) < limit && s.isStale(q, now) {
			list = append(list, &q)
		}
	}
	return list, nil
}

func (s *memStore) ExpireBroadcastedTx(_ context.Context, _ pgx.Tx, id uuid.UUID, now time.Time) (bool, error) {
	q, ok := s.state.requests[id]
	if !ok || !s.isStale(q, now) {
		return false, nil
	}
	q.Status = models.RequestStatusExpired
	s.state.requests[id] = q
	return true, nil
}

func (s *memStore) ListByClient(_ context.Context, clientID uuid.UUID, limit int) ([]*models.Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var list []*models.Request
	for _, q := range s.state.requests {
		if q.ClientID == clientID && len(list) < limit {
			list = append(list, &q)
		}
	}
	return list, nil
}

// --- offers (exposed through offerView to avoid method name clashes) ---

type offerView struct{ *memStore }

func (v offerView) CreateIfAbsentTx(_ context.Context, _ pgx.Tx, o *models.Offer) (bool, error) {
	for _, e := range v.state.offers {
		if e.RequestID == o.RequestID && e.ProID == o.ProID {
			return false, nil
		}
	}
	v.record("insert-offer", o.RequestID)
	o.UpdatedAt = o.OfferedAt
	v.state.offers[o.ID] = *o
	return true, nil
}

func (v offerView) get(id uuid.UUID) (*models.Offer, error) {
	o, ok := v.state.offers[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &o, nil
}

func (v offerView) GetByID(_ context.Context, id uuid.UUID) (*models.Offer, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.get(id)
}

func (v offerView) GetByIDTx(_ context.Context, _ pgx.Tx, id uuid.UUID) (*models.Offer, error) {
	return v.get(id)
}

func (v offerView) sorted(keep func(models.Offer) bool) []*models.Offer {
	var list []*models.Offer
	for _, o := range v.state.offers {
		if keep(o) {
			list = append(list, &o)
		}
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID.String() < list[j].ID.String() })
	return list
}

func (v offerView) ListByRequest(_ context.Context, requestID uuid.UUID) ([]*models.Offer, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.sorted(func(o models.Offer) bool { return o.RequestID == requestID }), nil
}

func (v offerView) ListLiveByPro(_ context.Context, proID uuid.UUID, now time.Time) ([]*models.Offer, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.sorted(func(o models.Offer) bool { return o.ProID == proID && o.IsLive() && !o.ExpiredAt(now) }), nil
}

func (v offerView) ProIDsForRequest(_ context.Context, requestID uuid.UUID) ([]uuid.UUID, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	var ids []uuid.UUID
	for _, o := range v.state.offers {
		if o.RequestID == requestID {
			ids = append(ids, o.ProID)
		}
	}
	return ids, nil
}

func (v offerView) count(requestID uuid.UUID, keep func(models.Offer) bool) int {
	n := 0
	for _, o := range v.state.offers {
		if o.RequestID == requestID && keep(o) {
			n++
		}
	}
	return n
}

func (v offerView) CountLiveTx(_ context.Context, _ pgx.Tx, requestID uuid.UUID) (int, error) {
	return v.count(requestID, func(o models.Offer) bool { return o.IsLive() }), nil
}

func (v offerView) CountAcceptedTx(_ context.Context, _ pgx.Tx, requestID uuid.UUID) (int, error) {
	return v.count(requestID, func(o models.Offer) bool { return o.Status == models.OfferStatusAccepted }), nil
}

func (v offerView) AcceptTx(_ context.Context, _ pgx.Tx, id uuid.UUID, from []string, price int64, now time.Time) (bool, error) {
	o, ok := v.state.offers[id]
	if !ok || !contains(from, o.Status) || o.ExpiredAt(now) {
		return false, nil
	}
	o.Status = models.OfferStatusAccepted
	o.Price = &price
	o.RespondedAt = &now
	v.state.offers[id] = o
	return true, nil
}

func (v offerView) closeWhere(keep func(models.Offer) bool, status string, now time.Time) int64 {
	var n int64
	for id, o := range v.state.offers {
		if o.IsLive() && keep(o) {
			o.Status = status
			o.RespondedAt = &now
			v.state.offers[id] = o
			n++
		}
	}
	return n
}

func (v offerView) MissSiblingsTx(_ context.Context, _ pgx.Tx, requestID, winnerID uuid.UUID, now time.Time) (int64, error) {
	return v.closeWhere(func(o models.Offer) bool { return o.RequestID == requestID && o.ID != winnerID },
		models.OfferStatusMissed, now), nil
}

func (v offerView) CloseLiveTx(_ context.Context, _ pgx.Tx, requestID uuid.UUID, status string, now time.Time) (int64, error) {
	return v.closeWhere(func(o models.Offer) bool { return o.RequestID == requestID }, status, now), nil
}

func (v offerView) ProposePrice(_ context.Context, id, proID uuid.UUID, price int64, now time.Time) (bool, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	o, ok := v.state.offers[id]
	if !ok || o.ProID != proID || o.Status != models.OfferStatusOffered || o.ExpiredAt(now) {
		return false, nil
	}
	if v.state.requests[o.RequestID].Status != models.RequestStatusBroadcasted {
		return false, nil
	}
	o.Status = models.OfferStatusPendingClientApproval
	o.Price = &price
	o.PriceType = models.PriceTypeProposed
	o.RespondedAt = &now
	v.state.offers[id] = o
	return true, nil
}

func (v offerView) ResetProposal(_ context.Context, id uuid.UUID, now time.Time) (bool, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	o, ok := v.state.offers[id]
	if !ok || o.Status != models.OfferStatusPendingClientApproval || o.ExpiredAt(now) {
		return false, nil
	}
	o.Status = models.OfferStatusOffered
	o.Price = nil
	o.RespondedAt = nil
	v.state.offers[id] = o
	return true, nil
}

func (v offerView) ExpireLive(_ context.Context, id uuid.UUID, now time.Time) (bool, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	o, ok := v.state.offers[id]
	if !ok || !o.IsLive() || !o.ExpiredAt(now) {
		return false, nil
	}
	o.Status = models.OfferStatusMissed
	v.state.offers[id] = o
	return true, nil
}

func (v offerView) ListExpiredLive(_ context.Context, now time.Time, limit int) ([]*models.Offer, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	list := v.sorted(func(o models.Offer) bool { return o.IsLive() && o.ExpiredAt(now) })
	if len(list) > limit {
		list = list[:limit]
	}
	return list, nil
}

// --- jobs ---

type jobView struct{ *memStore }

func (v jobView) CreateTx(_ context.Context, _ pgx.Tx, j *models.Job) error {
	for _, e := range v.state.jobs {
		if e.RequestID == j.RequestID {
			return &pgconn.PgError{Code: "23505"}
		}
	}
	v.state.jobs[j.ID] = *j
	return nil
}

func (v jobView) get(id uuid.UUID) (*models.Job, error) {
	j, ok := v.state.jobs[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &j, nil
}

func (v jobView) GetByID(_ context.Context, id uuid.UUID) (*models.Job, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.get(id)
}

func (v jobView) GetByIDTx(_ context.Context, _ pgx.Tx, id uuid.UUID) (*models.Job, error) {
	return v.get(id)
}

func (v jobView) GetByOfferTx(_ context.Context, _ pgx.Tx, offerID uuid.UUID) (*models.Job, error) {
	for _, j := range v.state.jobs {
		if j.OfferID == offerID {
			return &j, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (v jobView) HasInProgressTx(_ context.Context, _ pgx.Tx, proID uuid.UUID) (bool, error) {
	v.record("busy-check", proID)
	for _, j := range v.state.jobs {
		if j.ProID == proID && j.Status == models.JobStatusInProgress {
			return true, nil
		}
	}
	return false, nil
}

func (v jobView) TransitionTx(_ context.Context, _ pgx.Tx, id uuid.UUID, status, reason string, now time.Time) (bool, error) {
	j, ok := v.state.jobs[id]
	if !ok || j.Status != models.JobStatusInProgress {
		return false, nil
	}
	j.Status = status
	j.CancelReason = reason
	if status == models.JobStatusDone {
		j.DoneAt = &now
	}
	v.state.jobs[id] = j
	return true, nil
}

func (v jobView) ListByPro(_ context.Context, proID uuid.UUID, limit int) ([]*models.Job, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	var list []*models.Job
	for _, j := range v.state.jobs {
		if j.ProID == proID && len(list) < limit {
			j := j
			list = append(list, &j)
		}
	}
	return list, nil
}

// --- acceptances, ratings ---

type acceptanceView struct{ *memStore }

func (v acceptanceView) CreateTx(_ context.Context, _ pgx.Tx, a *models.Acceptance) error {
	for _, e := range v.state.acceptances {
		if e.RequestID == a.RequestID || e.OfferID == a.OfferID {
			return &pgconn.PgError{Code: "23505"}
		}
	}
	v.state.acceptances[a.ID] = *a
	return nil
}

func (v acceptanceView) GetByRequestTx(_ context.Context, _ pgx.Tx, requestID uuid.UUID) (*models.Acceptance, error) {
	for _, a := range v.state.acceptances {
		if a.RequestID == requestID {
			return &a, nil
		}
	}
	return nil, pgx.ErrNoRows
}

type ratingView struct{ *memStore }

func (v ratingView) CreateTx(_ context.Context, _ pgx.Tx, r *models.Rating) error {
	for _, e := range v.state.ratings {
		if e.JobID == r.JobID {
			return &pgconn.PgError{Code: "23505"}
		}
	}
	r.CreatedAt = time.Now()
	v.state.ratings[r.ID] = *r
	return nil
}

// --- pros ---

func (s *memStore) ApplyRatingTx(_ context.Context, _ pgx.Tx, proID uuid.UUID, stars int) error {
	p, ok := s.state.pros[proID]
	if !ok {
		return pgx.ErrNoRows
	}
	p.RatingAvg = (p.RatingAvg*float64(p.RatingCount) + float64(stars)) / float64(p.RatingCount+1)
	p.RatingCount++
	s.state.pros[proID] = p
	return nil
}

func (s *memStore) FindEligible(_ context.Context, q models.ProSearch) ([]*models.Pro, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	excluded := make(map[uuid.UUID]bool)
	for _, id := range q.ExcludeIDs {
		excluded[id] = true
	}
	busy := make(map[uuid.UUID]bool)
	for _, j := range s.state.jobs {
		if j.Status == models.JobStatusInProgress {
			busy[j.ProID] = true
		}
	}
	var cands []Candidate
	for id, p := range s.state.pros {
		if !s.state.proCats[id][q.CategoryID] || excluded[id] || (q.ExcludeBusy && busy[id]) {
			continue
		}
		if !p.Online || !p.Active || p.KYCStatus != models.KYCApproved || p.WalletBalance < q.MinBalance {
			continue
		}
		if q.Box != nil && (p.Latitude == nil || p.Longitude == nil || !q.Box.Contains(*p.Latitude, *p.Longitude)) {
			continue
		}
		p := p
		cands = append(cands, Candidate{Pro: &p})
	}
	sortCandidates(cands)
	if q.Limit > 0 && len(cands) > q.Limit {
		cands = cands[:q.Limit]
	}
	out := make([]*models.Pro, len(cands))
	for i, c := range cands {
		out[i] = c.Pro
	}
	return out, nil
}

// --- ledger.Store ---

func (s *memStore) LockWallet(_ context.Context, _ pgx.Tx, proID uuid.UUID) (ledger.Wallet, error) {
	s.record("lock-pro", proID)
	return s.wallet(proID)
}

func (s *memStore) wallet(proID uuid.UUID) (ledger.Wallet, error) {
	p, ok := s.state.pros[proID]
	if !ok {
		return ledger.Wallet{}, pgx.ErrNoRows
	}
	return ledger.Wallet{ProID: proID, Balance: p.WalletBalance, LowBalanceThreshold: p.LowBalanceThreshold}, nil
}

func (s *memStore) SetBalance(_ context.Context, _ pgx.Tx, proID uuid.UUID, balance int64) error {
	p := s.state.pros[proID]
	p.WalletBalance = balance
	s.state.pros[proID] = p
	return nil
}

func (s *memStore) Append(_ context.Context, _ pgx.Tx, e *models.WalletTransaction) error {
	if (e.Type == models.WalletTxDebit || e.Type == models.WalletTxCredit) && e.ReferenceID != nil {
		if _, ok := s.findEntry(e.Type, models.LedgerRef{Type: e.ReferenceType, ID: e.ReferenceID}); ok {
			return &pgconn.PgError{Code: "23505"}
		}
	}
	e.CreatedAt = time.Now()
	s.state.ledger = append(s.state.ledger, *e)
	return nil
}

func (s *memStore) findEntry(txType string, ref models.LedgerRef) (models.WalletTransaction, bool) {
	for _, prev := range s.state.ledger {
		if prev.Type == txType && prev.ReferenceType == ref.Type &&
			prev.ReferenceID != nil && ref.ID != nil && *prev.ReferenceID == *ref.ID {
			return prev, true
		}
	}
	return models.WalletTransaction{}, false
}

func (s *memStore) FindEntry(_ context.Context, txType string, ref models.LedgerRef) (*models.WalletTransaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.findEntry(txType, ref)
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &e, nil
}

func (s *memStore) Balance(_ context.Context, proID uuid.UUID) (ledger.Wallet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.wallet(proID)
}

func (s *memStore) History(_ context.Context, proID uuid.UUID, limit int) ([]*models.WalletTransaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.WalletTransaction
	for i := len(s.state.ledger) - 1; i >= 0 && len(out) < limit; i-- {
		if e := s.state.ledger[i]; e.ProID == proID {
			out = append(out, &e)
		}
	}
	return out, nil
}

func (s *memStore) SignedSum(_ context.Context, proID uuid.UUID) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var sum int64
	for _, e := range s.state.ledger {
		if e.ProID == proID {
			sum += e.SignedAmount()
		}
	}
	return sum, nil
}

// ---------------------------------------------------------------------------
// Categories, notifier, clock
// ---------------------------------------------------------------------------

type memCategories struct {
	mu   sync.RWMutex
	cats map[uuid.UUID]models.Category
}

func (m *memCategories) GetByID(_ context.Context, id uuid.UUID) (*models.Category, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.cats[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &c, nil
}

type recNotifier struct {
	mu     sync.Mutex
	events []notify.Event
}

func (r *recNotifier) Notify(_ context.Context, events ...notify.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, events...)
}

func (r *recNotifier) kinds(kind string) []notify.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []notify.Event
	for _, e := range r.events {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// ---------------------------------------------------------------------------
// Fixture
// ---------------------------------------------------------------------------

const (
	testOfferTTL   = 3 * time.Minute
	testRequestTTL = 30 * time.Minute
)

type fixture struct {
	t        *testing.T
	store    *memStore
	cats     *memCategories
	notifier *recNotifier
	clock    *testClock
	ledger   *ledger.Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := newMemStore()
	return &fixture{
		t:        t,
		store:    store,
		cats:     &memCategories{cats: make(map[uuid.UUID]models.Category)},
		notifier: &recNotifier{},
		clock:    &testClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)},
		ledger:   ledger.NewService(store, nil),
	}
}

func (f *fixture) deps() Deps {
	return Deps{
		Pool:        f.store,
		Requests:    f.store,
		Offers:      offerView{f.store},
		Jobs:        jobView{f.store},
		Acceptances: acceptanceView{f.store},
		Ratings:     ratingView{f.store},
		ProRatings:  f.store,
		Categories:  f.cats,
		Ledger:      f.ledger,
		Notifier:    f.notifier,
		Now:         f.clock.Now,
	}
}

func (f *fixture) selector() *Selector { return NewSelector(f.store, 0, false) }

func (f *fixture) broadcaster() *Broadcaster {
	return NewBroadcaster(f.deps(), f.selector(), testOfferTTL, testRequestTTL)
}

func (f *fixture) arbiter() *Arbiter { return NewArbiter(f.deps(), true) }

func (f *fixture) sweeper() *Sweeper { return NewSweeper(f.deps(), 100, 4) }

func (f *fixture) lifecycle() *Lifecycle { return NewLifecycle(f.deps()) }

func (f *fixture) category(leadCost int64, matchLimit int, workflow string) *models.Category {
	c := models.Category{
		ID:           uuid.New(),
		Code:         "cat-" + uuid.NewString()[:8],
		Name:         "Plumbing",
		LeadCost:     leadCost,
		MatchLimit:   matchLimit,
		WorkflowType: workflow,
		Active:       true,
	}
	f.cats.mu.Lock()
	f.cats.cats[c.ID] = c
	f.cats.mu.Unlock()
	return &c
}

type proOpt func(*models.Pro)

func withRating(avg float64, count int) proOpt {
	return func(p *models.Pro) { p.RatingAvg = avg; p.RatingCount = count }
}

func withKYC(status string) proOpt { return func(p *models.Pro) { p.KYCStatus = status } }

func offline() proOpt { return func(p *models.Pro) { p.Online = false } }

func withLocation(lat, lng float64) proOpt {
	return func(p *models.Pro) { p.Latitude = &lat; p.Longitude = &lng }
}

func withThreshold(n int64) proOpt { return func(p *models.Pro) { p.LowBalanceThreshold = n } }

func (f *fixture) pro(name string, balance int64, cat *models.Category, opts ...proOpt) *models.Pro {
	p := models.Pro{
		ID:            uuid.New(),
		Name:          name,
		Online:        true,
		Active:        true,
		KYCStatus:     models.KYCApproved,
		WalletBalance: balance,
	}
	for _, o := range opts {
		o(&p)
	}
	f.store.locked(func() {
		f.store.state.pros[p.ID] = p
		f.store.state.proCats[p.ID] = map[uuid.UUID]bool{cat.ID: true}
	})
	return &p
}

func (f *fixture) request(cat *models.Category) *models.Request {
	f.t.Helper()
	q := &models.Request{ClientID: uuid.New(), CategoryID: cat.ID, Latitude: 52.52, Longitude: 13.405, Address: "Main St 1"}
	if err := f.broadcaster().CreateRequest(context.Background(), q); err != nil {
		f.t.Fatalf("CreateRequest: %v", err)
	}
	return q
}

// broadcast creates a request and broadcasts it, returning the offers by pro.
func (f *fixture) broadcast(cat *models.Category) (*models.Request, map[uuid.UUID]*models.Offer) {
	f.t.Helper()
	q := f.request(cat)
	res, err := f.broadcaster().SelectAndBroadcast(context.Background(), q.ID, SelectOptions{})
	if err != nil {
		f.t.Fatalf("SelectAndBroadcast: %v", err)
	}
	byPro := make(map[uuid.UUID]*models.Offer, len(res.Offers))
	for _, o := range res.Offers {
		byPro[o.ProID] = o
	}
	return res.Request, byPro
}

func (f *fixture) getRequest(id uuid.UUID) models.Request {
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	return f.store.state.requests[id]
}

func (f *fixture) getOffer(id uuid.UUID) models.Offer {
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	return f.store.state.offers[id]
}

func (f *fixture) getPro(id uuid.UUID) models.Pro {
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	return f.store.state.pros[id]
}

func (f *fixture) jobsFor(requestID uuid.UUID) []models.Job {
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	var out []models.Job
	for _, j := range f.store.state.jobs {
		if j.RequestID == requestID {
			out = append(out, j)
		}
	}
	return out
}

func (f *fixture) debitsFor(proID uuid.UUID) []models.WalletTransaction {
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	var out []models.WalletTransaction
	for _, e := range f.store.state.ledger {
		if e.ProID == proID && e.Type == models.WalletTxDebit {
			out = append(out, e)
		}
	}
	return out
}

func (f *fixture) setBalance(proID uuid.UUID, balance int64) {
	f.store.locked(func() {
		p := f.store.state.pros[proID]
		p.WalletBalance = balance
		f.store.state.pros[proID] = p
	})
}
