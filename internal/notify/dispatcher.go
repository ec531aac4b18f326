package notify

import (
	"context"
	"log/slog"

	"github.com/riverqueue/river"
	"github.com/riverqueue/river/rivertype"
)

// Inserter is the part of *river.Client the dispatcher uses.
type Inserter interface {
	Insert(ctx context.Context, args river.JobArgs, opts *river.InsertOpts) (*rivertype.JobInsertResult, error)
}

// Dispatcher hands events to the background delivery queue. It is called after
// the core transaction commits; a failed enqueue is logged and dropped.
type Dispatcher struct {
	inserter Inserter
	logger   *slog.Logger
}

func NewDispatcher(inserter Inserter, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{inserter: inserter, logger: logger}
}

func (d *Dispatcher) Notify(ctx context.Context, events ...Event) {
	for _, e := range events {
		if _, err := d.inserter.Insert(ctx, DeliverArgs{Event: e}, nil); err != nil {
			d.logger.Warn("Notification enqueue failed", "kind", e.Kind, "recipient_id", e.RecipientID, "error", err)
		}
	}
}

// Discard drops every event. Used when no delivery backend is configured.
type Discard struct{}

func (Discard) Notify(context.Context, ...Event) {}
