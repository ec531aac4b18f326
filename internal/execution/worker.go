package execution

import (
	"context"
	"fmt"
	"time"

	"github.com/riverqueue/river"

	"github.com/leadflow/backend/internal/services"
)

// SweepArgs is the periodic job that expires lapsed offers and requests.
type SweepArgs struct{}

func (SweepArgs) Kind() string { return "sweep_expired" }

// InsertOpts keeps at most one sweep queued or running at a time.
func (SweepArgs) InsertOpts() river.InsertOpts {
	return river.InsertOpts{
		MaxAttempts: 1,
		UniqueOpts:  river.UniqueOpts{ByArgs: true},
	}
}

// Sweeper defines what the worker needs from the expiry sweeper.
type Sweeper interface {
	SweepExpired(ctx context.Context) (*services.SweepResult, error)
}

type SweepWorker struct {
	river.WorkerDefaults[SweepArgs]
	sweeper Sweeper
	timeout time.Duration
}

func NewSweepWorker(s Sweeper, timeout time.Duration) *SweepWorker {
	if timeout <= 0 {
		timeout = time.Minute
	}
	return &SweepWorker{sweeper: s, timeout: timeout}
}

func (w *SweepWorker) Timeout(*river.Job[SweepArgs]) time.Duration { return w.timeout }

func (w *SweepWorker) Work(ctx context.Context, job *river.Job[SweepArgs]) error {
	if _, err := w.sweeper.SweepExpired(ctx); err != nil {
		return fmt.Errorf("sweep expired: %w", err)
	}
	return nil
}

// PeriodicSweep schedules SweepArgs every interval, starting immediately.
func PeriodicSweep(interval time.Duration) *river.PeriodicJob {
	return river.NewPeriodicJob(
		river.PeriodicInterval(interval),
		func() (river.JobArgs, *river.InsertOpts) {
			return SweepArgs{}, nil
		},
		&river.PeriodicJobOpts{RunOnStart: true},
	)
}
