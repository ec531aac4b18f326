package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/leadflow/backend/internal/ledger"
	"github.com/leadflow/backend/internal/models"
)

// TxBeginner abstracts pool.Begin so callers can be tested without a database.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// CategoryRepo resolves category configuration.
type CategoryRepo interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Category, error)
}

// RequestRepo is the request persistence used by the engine.
type RequestRepo interface {
	Create(ctx context.Context, q *models.Request) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Request, error)
	GetByIDTx(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Request, error)
	LockTx(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Request, error)
	TransitionTx(ctx context.Context, tx pgx.Tx, id uuid.UUID, from []string, to string) (bool, error)
	MarkBroadcastedTx(ctx context.Context, tx pgx.Tx, id uuid.UUID, at, expiresAt time.Time) (bool, error)
	ListStaleBroadcasted(ctx context.Context, now time.Time, limit int) ([]*models.Request, error)
	ExpireBroadcastedTx(ctx context.Context, tx pgx.Tx, id uuid.UUID, now time.Time) (bool, error)
	ListByClient(ctx context.Context, clientID uuid.UUID, limit int) ([]*models.Request, error)
}

// OfferRepo is the offer persistence used by the engine.
type OfferRepo interface {
	CreateIfAbsentTx(ctx context.Context, tx pgx.Tx, o *models.Offer) (bool, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.Offer, error)
	GetByIDTx(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Offer, error)
	ListByRequest(ctx context.Context, requestID uuid.UUID) ([]*models.Offer, error)
	ListLiveByPro(ctx context.Context, proID uuid.UUID, now time.Time) ([]*models.Offer, error)
	ProIDsForRequest(ctx context.Context, requestID uuid.UUID) ([]uuid.UUID, error)
	CountLiveTx(ctx context.Context, tx pgx.Tx, requestID uuid.UUID) (int, error)
	CountAcceptedTx(ctx context.Context, tx pgx.Tx, requestID uuid.UUID) (int, error)
	AcceptTx(ctx context.Context, tx pgx.Tx, id uuid.UUID, from []string, price int64, now time.Time) (bool, error)
	MissSiblingsTx(ctx context.Context, tx pgx.Tx, requestID, winnerID uuid.UUID, now time.Time) (int64, error)
	CloseLiveTx(ctx context.Context, tx pgx.Tx, requestID uuid.UUID, status string, now time.Time) (int64, error)
	ProposePrice(ctx context.Context, id, proID uuid.UUID, price int64, now time.Time) (bool, error)
	ResetProposal(ctx context.Context, id uuid.UUID, now time.Time) (bool, error)
	ExpireLive(ctx context.Context, id uuid.UUID, now time.Time) (bool, error)
	ListExpiredLive(ctx context.Context, now time.Time, limit int) ([]*models.Offer, error)
}

// JobRepo is the job persistence used by the arbiter and the lifecycle manager.
type JobRepo interface {
	CreateTx(ctx context.Context, tx pgx.Tx, j *models.Job) error
	GetByIDTx(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Job, error)
	GetByOfferTx(ctx context.Context, tx pgx.Tx, offerID uuid.UUID) (*models.Job, error)
	HasInProgressTx(ctx context.Context, tx pgx.Tx, proID uuid.UUID) (bool, error)
	TransitionTx(ctx context.Context, tx pgx.Tx, id uuid.UUID, status, reason string, now time.Time) (bool, error)
}

// AcceptanceRepo records winners.
type AcceptanceRepo interface {
	CreateTx(ctx context.Context, tx pgx.Tx, a *models.Acceptance) error
	GetByRequestTx(ctx context.Context, tx pgx.Tx, requestID uuid.UUID) (*models.Acceptance, error)
}

// RatingRepo stores client ratings.
type RatingRepo interface {
	CreateTx(ctx context.Context, tx pgx.Tx, r *models.Rating) error
}

// ProRatingRepo folds ratings into the pro aggregate.
type ProRatingRepo interface {
	ApplyRatingTx(ctx context.Context, tx pgx.Tx, proID uuid.UUID, stars int) error
}

// Debiter is the slice of the ledger the arbiter needs. Lock takes the pro's
// wallet row lock, which serializes everything one pro wins.
type Debiter interface {
	Lock(ctx context.Context, tx pgx.Tx, proID uuid.UUID) (ledger.Wallet, error)
	Debit(ctx context.Context, tx pgx.Tx, proID uuid.UUID, amount int64, reason string, ref models.LedgerRef) (*ledger.Posting, error)
}

// Clock returns the current time. Tests replace it to control expiry.
type Clock func() time.Time
