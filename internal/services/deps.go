package services

import (
	"log/slog"
	"time"

	"github.com/leadflow/backend/internal/notify"
)

// Deps are the collaborators shared by the engine services.
type Deps struct {
	Pool        TxBeginner
	Requests    RequestRepo
	Offers      OfferRepo
	Jobs        JobRepo
	Acceptances AcceptanceRepo
	Ratings     RatingRepo
	ProRatings  ProRatingRepo
	Categories  CategoryRepo
	Ledger      Debiter
	Notifier    Notifier
	Now         Clock
	Logger      *slog.Logger
}

func (d Deps) withDefaults() Deps {
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Notifier == nil {
		d.Notifier = notify.Discard{}
	}
	return d
}
