package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/leadflow/backend/internal/models"
	"github.com/leadflow/backend/internal/notify"
)

// Lifecycle moves accepted jobs to their terminal states and keeps the
// parent request in step. A cancelled job keeps its lead debit.
type Lifecycle struct {
	Deps
}

func NewLifecycle(d Deps) *Lifecycle {
	return &Lifecycle{Deps: d.withDefaults()}
}

// Complete is called by the assigned pro once the work is done.
func (l *Lifecycle) Complete(ctx context.Context, jobID, proID uuid.UUID) (*models.Job, error) {
	job, err := l.finish(ctx, jobID, models.JobStatusDone, "", models.RequestStatusDone, func(j *models.Job) error {
		if j.ProID != proID {
			return ErrNotJobParticipant
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	l.Notifier.Notify(ctx, notify.JobCompleted(job.ClientID, job.RequestID, job.ID, *job.DoneAt))
	return job, nil
}

// Cancel may be called by either the pro or the client of the job.
func (l *Lifecycle) Cancel(ctx context.Context, jobID, actorID uuid.UUID, reason string) (*models.Job, error) {
	return l.finish(ctx, jobID, models.JobStatusCancelled, reason, models.RequestStatusCancelled, func(j *models.Job) error {
		if j.ProID != actorID && j.ClientID != actorID {
			return ErrNotJobParticipant
		}
		return nil
	})
}

// MarkNoShow is reported by the client when the pro never turned up.
func (l *Lifecycle) MarkNoShow(ctx context.Context, jobID, clientID uuid.UUID) (*models.Job, error) {
	return l.finish(ctx, jobID, models.JobStatusNoShow, "no show", models.RequestStatusCancelled, func(j *models.Job) error {
		if j.ClientID != clientID {
			return ErrNotJobParticipant
		}
		return nil
	})
}

func (l *Lifecycle) finish(ctx context.Context, jobID uuid.UUID, status, reason, requestStatus string, authorize func(*models.Job) error) (*models.Job, error) {
	tx, err := l.Pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	job, err := l.Jobs.GetByIDTx(ctx, tx, jobID)
	if err != nil {
		return nil, notFound(err)
	}
	if err := authorize(job); err != nil {
		return nil, err
	}
	if !models.CanTransitionJob(job.Status, status) {
		return nil, ErrInvalidTransition
	}

	now := l.Now()
	ok, err := l.Jobs.TransitionTx(ctx, tx, job.ID, status, reason, now)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrInvalidTransition
	}
	ok, err = l.Requests.TransitionTx(ctx, tx, job.RequestID, []string{models.RequestStatusAssigned}, requestStatus)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: request %s of job %s is not ASSIGNED", ErrInvariantViolation, job.RequestID, job.ID)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	job.Status = status
	job.CancelReason = reason
	if status == models.JobStatusDone {
		job.DoneAt = &now
	}
	l.Logger.Info("Job finished", "job_id", job.ID, "status", status)
	return job, nil
}

// SubmitRating stores the client's rating of a DONE job and updates the pro
// aggregate in the same transaction. Each job can be rated once.
func (l *Lifecycle) SubmitRating(ctx context.Context, jobID, clientID uuid.UUID, stars int, comment string) (*models.Rating, error) {
	if stars < 1 || stars > 5 {
		return nil, ErrInvalidRating
	}
	tx, err := l.Pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	job, err := l.Jobs.GetByIDTx(ctx, tx, jobID)
	if err != nil {
		return nil, notFound(err)
	}
	if job.ClientID != clientID {
		return nil, ErrNotJobParticipant
	}
	if job.Status != models.JobStatusDone {
		return nil, ErrJobNotDone
	}

	r := &models.Rating{
		ID:       uuid.New(),
		JobID:    job.ID,
		ProID:    job.ProID,
		ClientID: clientID,
		Stars:    stars,
		Comment:  comment,
	}
	if err := l.Ratings.CreateTx(ctx, tx, r); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, ErrRatingExists
		}
		return nil, err
	}
	if err := l.ProRatings.ApplyRatingTx(ctx, tx, job.ProID, stars); err != nil {
		return nil, notFound(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return r, nil
}
