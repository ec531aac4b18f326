package services

import (
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/leadflow/backend/internal/ledger"
)

// Business rejections. Handlers map them to HTTP statuses with errors.Is.
var (
	ErrNotFound = errors.New("not found")
	// ErrAlreadyResolved covers every lost race: another pro won, the request was
	// cancelled or expired, or the offer is no longer live.
	ErrAlreadyResolved     = errors.New("lead no longer available")
	ErrOfferExpired        = errors.New("offer expired")
	ErrInsufficientBalance = ledger.ErrInsufficientBalance
	ErrNotOfferOwner       = errors.New("offer belongs to another pro")
	ErrNotRequestOwner     = errors.New("request belongs to another client")
	ErrNotJobParticipant   = errors.New("not a participant of this job")
	ErrWorkflowMismatch    = errors.New("operation not allowed for this category workflow")
	ErrApprovalRequired    = errors.New("offer requires client approval")
	ErrNotPending          = errors.New("offer has no pending proposal")
	ErrInvalidPrice        = errors.New("price must be positive")
	ErrProBusy             = errors.New("pro already has a job in progress")
	ErrNoEligiblePros      = errors.New("no eligible pros")
	ErrCategoryInactive    = errors.New("category is not active")
	ErrInvalidTransition   = errors.New("invalid status transition")
	ErrInvalidRating       = errors.New("stars must be between 1 and 5")
	ErrRatingExists        = errors.New("job already rated")
	ErrJobNotDone          = errors.New("job is not done")
)

// ErrInvariantViolation means the storage state broke a core invariant, for
// example two ACCEPTED offers on one request. It is never a normal rejection.
var ErrInvariantViolation = errors.New("invariant violation")

// IsRejection reports whether err is an expected business outcome rather than
// an infrastructure failure.
func IsRejection(err error) bool {
	for _, target := range []error{
		ErrNotFound, ErrAlreadyResolved, ErrOfferExpired, ErrInsufficientBalance, ErrNotOfferOwner,
		ErrNotRequestOwner, ErrNotJobParticipant, ErrWorkflowMismatch, ErrApprovalRequired, ErrNotPending,
		ErrInvalidPrice, ErrProBusy, ErrNoEligiblePros, ErrCategoryInactive, ErrInvalidTransition,
		ErrInvalidRating, ErrRatingExists, ErrJobNotDone, ErrValidation,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}
