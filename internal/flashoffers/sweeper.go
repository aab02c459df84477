package flashoffers

import (
	"context"
	"time"

	"github.com/clinvia/revenue-engine/internal/clinics"
	"github.com/clinvia/revenue-engine/pkg/logging"
)

type clinicLister interface {
	ListActive(ctx context.Context) ([]clinics.Clinic, error)
}

// Sweeper drives the recovery loop on a timer: expire stale offers first so
// their slots free up, record conversions, then dispatch fresh offers.
type Sweeper struct {
	clinics    clinicLister
	dispatcher *Dispatcher
	interval   time.Duration
	logger     *logging.Logger
}

// NewSweeper creates a sweeper.
func NewSweeper(clinicStore clinicLister, dispatcher *Dispatcher, interval time.Duration, logger *logging.Logger) *Sweeper {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Sweeper{
		clinics:    clinicStore,
		dispatcher: dispatcher,
		interval:   interval,
		logger:     logger,
	}
}

// Start runs the sweep loop. Blocks until the context is cancelled.
func (s *Sweeper) Start(ctx context.Context) {
	s.logger.Info("starting flash offer sweeper", "interval", s.interval.String())

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	// Run once immediately on startup
	s.SweepAll(ctx)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("flash offer sweeper shutting down")
			return
		case <-ticker.C:
			s.SweepAll(ctx)
		}
	}
}

// SweepAll runs one sweep across every active clinic. Per-clinic failures
// are logged and do not stop the pass.
func (s *Sweeper) SweepAll(ctx context.Context) {
	active, err := s.clinics.ListActive(ctx)
	if err != nil {
		s.logger.Error("active clinic listing failed", "error", err)
		return
	}

	for _, c := range active {
		s.sweepClinic(ctx, c.ID)
	}
}

func (s *Sweeper) sweepClinic(ctx context.Context, clinicID string) {
	logger := s.logger.WithClinic(clinicID)

	expired, err := s.dispatcher.ExpireOffers(ctx, clinicID)
	if err != nil {
		logger.Error("expiry sweep failed", "error", err)
	}

	converted, err := s.dispatcher.CheckConversions(ctx, clinicID)
	if err != nil {
		logger.Error("conversion sweep failed", "error", err)
	}

	report, err := s.dispatcher.Dispatch(ctx, clinicID)
	if err != nil {
		logger.Error("dispatch failed", "error", err)
		return
	}

	if expired > 0 || converted > 0 || report.Created > 0 {
		logger.Info("sweep complete",
			"expired", expired, "converted", converted,
			"created", report.Created, "sent", report.Sent, "errors", report.Errors)
	}
}
