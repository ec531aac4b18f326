package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/leadflow/backend/internal/auth"
	"github.com/leadflow/backend/internal/ledger"
	"github.com/leadflow/backend/internal/middleware"
	"github.com/leadflow/backend/internal/models"
	"github.com/leadflow/backend/internal/services"
)

// ---------------------------------------------------------------------------
// Mocks
// ---------------------------------------------------------------------------

type stubOffers struct {
	acceptErr  error
	accepted   []uuid.UUID
	proposed   int64
	decision   *bool
	proposeErr error
}

func (s *stubOffers) Accept(_ context.Context, offerID, proID uuid.UUID) (*services.AcceptResult, error) {
	if s.acceptErr != nil {
		return nil, s.acceptErr
	}
	s.accepted = append(s.accepted, offerID)
	return &services.AcceptResult{
		Job: &models.Job{ID: uuid.New(), OfferID: offerID, ProID: proID, Status: models.JobStatusInProgress},
	}, nil
}

func (s *stubOffers) ProposePrice(_ context.Context, offerID, proID uuid.UUID, price int64) (*models.Offer, error) {
	if s.proposeErr != nil {
		return nil, s.proposeErr
	}
	s.proposed = price
	return &models.Offer{ID: offerID, ProID: proID, Price: &price, Status: models.OfferStatusPendingClientApproval}, nil
}

func (s *stubOffers) ClientDecision(_ context.Context, offerID, _ uuid.UUID, approve bool) (*services.DecisionResult, error) {
	s.decision = &approve
	return &services.DecisionResult{Offer: &models.Offer{ID: offerID, Status: models.OfferStatusOffered}}, nil
}

type stubLeads struct {
	created *models.Request
	opts    services.SelectOptions
	err     error
}

func (s *stubLeads) CreateRequest(_ context.Context, q *models.Request) error {
	if s.err != nil {
		return s.err
	}
	q.ID = uuid.New()
	q.Status = models.RequestStatusOpen
	s.created = q
	return nil
}

func (s *stubLeads) SelectAndBroadcast(_ context.Context, requestID uuid.UUID, opts services.SelectOptions) (*services.BroadcastResult, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.opts = opts
	return &services.BroadcastResult{Request: &models.Request{ID: requestID, Status: models.RequestStatusBroadcasted}, OffersCreated: 2}, nil
}

func (s *stubLeads) CancelRequest(_ context.Context, requestID, _ uuid.UUID) (*models.Request, error) {
	return &models.Request{ID: requestID, Status: models.RequestStatusCancelled}, s.err
}

type stubRequests struct {
	requests map[uuid.UUID]*models.Request
	err      error
}

func (s *stubRequests) GetByID(_ context.Context, id uuid.UUID) (*models.Request, error) {
	if s.err != nil {
		return nil, s.err
	}
	q, ok := s.requests[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return q, nil
}

func (s *stubRequests) ListByClient(_ context.Context, clientID uuid.UUID, _ int) ([]*models.Request, error) {
	var out []*models.Request
	for _, q := range s.requests {
		if q.ClientID == clientID {
			out = append(out, q)
		}
	}
	return out, nil
}

type stubOfferReader struct {
	live []*models.Offer
}

func (s *stubOfferReader) ListByRequest(context.Context, uuid.UUID) ([]*models.Offer, error) {
	return nil, nil
}

func (s *stubOfferReader) ListLiveByPro(context.Context, uuid.UUID, time.Time) ([]*models.Offer, error) {
	return s.live, nil
}

type stubJobs struct {
	err error
}

func (s *stubJobs) Complete(_ context.Context, jobID, proID uuid.UUID) (*models.Job, error) {
	return &models.Job{ID: jobID, ProID: proID, Status: models.JobStatusDone}, s.err
}
func (s *stubJobs) Cancel(_ context.Context, jobID, _ uuid.UUID, reason string) (*models.Job, error) {
	return &models.Job{ID: jobID, Status: models.JobStatusCancelled, CancelReason: reason}, s.err
}
func (s *stubJobs) MarkNoShow(_ context.Context, jobID, _ uuid.UUID) (*models.Job, error) {
	return &models.Job{ID: jobID, Status: models.JobStatusNoShow}, s.err
}
func (s *stubJobs) SubmitRating(_ context.Context, jobID, clientID uuid.UUID, stars int, comment string) (*models.Rating, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &models.Rating{ID: uuid.New(), JobID: jobID, ClientID: clientID, Stars: stars, Comment: comment}, nil
}

type stubWallets struct {
	balance  int64
	ledger   int64
	posted   []string
	credited map[uuid.UUID]*ledger.Posting
}

func (s *stubWallets) posting(kind string, proID uuid.UUID, amount int64) (*ledger.Posting, error) {
	if kind != models.WalletTxAdjustment && amount <= 0 {
		return nil, ledger.ErrInvalidAmount
	}
	s.posted = append(s.posted, kind)
	s.balance += amount
	return &ledger.Posting{Entry: &models.WalletTransaction{ProID: proID, Type: kind, Amount: amount, BalanceAfter: s.balance}}, nil
}

func (s *stubWallets) Credit(_ context.Context, proID uuid.UUID, amount int64, _ string, ref models.LedgerRef) (*ledger.Posting, error) {
	if ref.ID != nil {
		if prev, ok := s.credited[*ref.ID]; ok {
			if prev.Entry.Amount != amount {
				return nil, ledger.ErrDuplicateCredit
			}
			return &ledger.Posting{Entry: prev.Entry, Replayed: true}, nil
		}
	}
	p, err := s.posting(models.WalletTxCredit, proID, amount)
	if err == nil && ref.ID != nil {
		if s.credited == nil {
			s.credited = make(map[uuid.UUID]*ledger.Posting)
		}
		s.credited[*ref.ID] = p
	}
	return p, err
}
func (s *stubWallets) Refund(_ context.Context, proID uuid.UUID, amount int64, _ string, _ models.LedgerRef) (*ledger.Posting, error) {
	return s.posting(models.WalletTxRefund, proID, amount)
}
func (s *stubWallets) Adjust(_ context.Context, proID uuid.UUID, delta int64, _ string, _ models.LedgerRef) (*ledger.Posting, error) {
	return s.posting(models.WalletTxAdjustment, proID, delta)
}
func (s *stubWallets) Balance(_ context.Context, proID uuid.UUID) (ledger.Wallet, error) {
	return ledger.Wallet{ProID: proID, Balance: s.balance}, nil
}
func (s *stubWallets) History(context.Context, uuid.UUID, int) ([]*models.WalletTransaction, error) {
	return nil, nil
}
func (s *stubWallets) Reconcile(_ context.Context, proID uuid.UUID) (*ledger.Reconciliation, error) {
	rec := &ledger.Reconciliation{ProID: proID, CachedBalance: s.balance, LedgerBalance: s.ledger, Consistent: s.balance == s.ledger}
	if !rec.Consistent {
		return rec, ledger.ErrLedgerMismatch
	}
	return rec, nil
}

type stubSweeper struct{}

func (stubSweeper) SweepExpired(context.Context) (*services.SweepResult, error) {
	return &services.SweepResult{OffersExpired: 3, RequestsExpired: 1}, nil
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func newTestValidator(t *testing.T) *services.Validator {
	t.Helper()
	v, err := services.NewValidator()
	if err != nil {
		t.Fatalf("NewValidator: %v", err)
	}
	return v
}

// newReq builds a request carrying the identity and the path id.
func newReq(method, body string, who auth.Identity, pathValues ...string) *http.Request {
	var r *http.Request
	if body == "" {
		r = httptest.NewRequest(method, "/", nil)
	} else {
		r = httptest.NewRequest(method, "/", strings.NewReader(body))
	}
	for i := 0; i+1 < len(pathValues); i += 2 {
		r.SetPathValue(pathValues[i], pathValues[i+1])
	}
	if who.ID != uuid.Nil {
		r = r.WithContext(middleware.WithIdentity(r.Context(), who))
	}
	return r
}

func errorBody(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode error body %q: %v", rec.Body.String(), err)
	}
	return body["error"]
}

func pro() auth.Identity    { return auth.Identity{ID: uuid.New(), Role: auth.RolePro} }
func client() auth.Identity { return auth.Identity{ID: uuid.New(), Role: auth.RoleClient} }
