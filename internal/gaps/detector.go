// Package gaps scans a clinic's near-term calendar for free windows large
// enough to resell. A gap is any interval of at least one hour inside
// business hours that no confirmed appointment occupies.
package gaps

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/clinvia/revenue-engine/internal/appointments"
	"github.com/clinvia/revenue-engine/internal/clinics"
	"github.com/clinvia/revenue-engine/internal/observability/metrics"
	"github.com/clinvia/revenue-engine/pkg/logging"
)

// minGapDuration is the smallest window worth offering.
const minGapDuration = 60 * time.Minute

// Gap is a bookable free window with its pricing already worked out.
type Gap struct {
	ClinicID           string
	Date               time.Time
	StartAt            time.Time
	EndAt              time.Time
	Duration           time.Duration
	NormalPriceCents   int64
	DiscountPct        int
	DiscountPriceCents int64
	ExpiresAt          time.Time
}

type clinicSource interface {
	Get(ctx context.Context, clinicID string) (*clinics.Clinic, error)
}

type calendarSource interface {
	ListConfirmedBetween(ctx context.Context, clinicID string, from, to time.Time) ([]appointments.Appointment, error)
}

// Detector walks the calendar day by day inside the horizon, clipped to
// business hours, and emits the free intervals between paid appointments.
// Proposed flash offers do not occupy slots; only confirmed statuses do.
type Detector struct {
	clinics     clinicSource
	calendar    calendarSource
	discountPct int
	offerTTL    time.Duration
	metrics     *metrics.OfferMetrics
	logger      *logging.Logger
	now         func() time.Time
}

// NewDetector creates a detector. discountPct is the fixed markdown applied
// to every gap's normal price; offerTTL bounds how long offers for a gap
// stay claimable.
func NewDetector(clinicStore clinicSource, calendar calendarSource, discountPct int, offerTTL time.Duration, om *metrics.OfferMetrics, logger *logging.Logger) *Detector {
	if logger == nil {
		logger = logging.Default()
	}
	return &Detector{
		clinics:     clinicStore,
		calendar:    calendar,
		discountPct: discountPct,
		offerTTL:    offerTTL,
		metrics:     om,
		logger:      logger,
		now:         time.Now,
	}
}

// Detect returns the gaps between now and now+horizonHours, ordered by start
// time. The final day is truncated at the horizon boundary.
func (d *Detector) Detect(ctx context.Context, clinicID string, horizonHours int) ([]Gap, error) {
	clinic, err := d.clinics.Get(ctx, clinicID)
	if err != nil {
		return nil, fmt.Errorf("gaps: load clinic %s: %w", clinicID, err)
	}

	loc := clinic.Location()
	now := d.now().In(loc)
	horizonEnd := now.Add(time.Duration(horizonHours) * time.Hour)
	expiresAt := now.Add(d.offerTTL)

	var out []Gap
	for day := now; !day.After(horizonEnd); day = startOfDay(day, loc).AddDate(0, 0, 1) {
		open, close, err := clinic.HoursOn(day)
		if err != nil {
			return nil, fmt.Errorf("gaps: business hours for %s: %w", clinicID, err)
		}

		windowStart := maxTime(open, now)
		windowEnd := minTime(close, horizonEnd)
		if windowEnd.Sub(windowStart) < minGapDuration {
			continue
		}

		booked, err := d.calendar.ListConfirmedBetween(ctx, clinicID, windowStart, windowEnd)
		if err != nil {
			return nil, fmt.Errorf("gaps: list appointments: %w", err)
		}

		out = append(out, d.dayGaps(clinic, windowStart, windowEnd, booked, expiresAt)...)
	}

	d.metrics.AddGaps(clinicID, len(out))
	d.logger.Debug("gap scan complete", "clinic_id", clinicID, "gaps", len(out))
	return out, nil
}

// dayGaps emits the free intervals of one business day. An empty day yields
// a single full-window gap priced at the clinic base price; otherwise the
// adjacent appointment's price is the normal price for each gap.
func (d *Detector) dayGaps(clinic *clinics.Clinic, windowStart, windowEnd time.Time, booked []appointments.Appointment, expiresAt time.Time) []Gap {
	if len(booked) == 0 {
		return []Gap{d.newGap(clinic.ID, windowStart, windowEnd, clinic.BasePriceCents, expiresAt)}
	}

	sort.Slice(booked, func(i, j int) bool { return booked[i].StartAt.Before(booked[j].StartAt) })

	var out []Gap
	cursor := windowStart
	for _, appt := range booked {
		start := appt.StartAt
		if start.After(windowEnd) {
			start = windowEnd
		}
		if start.Sub(cursor) >= minGapDuration {
			out = append(out, d.newGap(clinic.ID, cursor, start, appt.FinalPriceCents, expiresAt))
		}
		if appt.EndAt.After(cursor) {
			cursor = appt.EndAt
		}
	}

	last := booked[len(booked)-1]
	if windowEnd.Sub(cursor) >= minGapDuration {
		out = append(out, d.newGap(clinic.ID, cursor, windowEnd, last.FinalPriceCents, expiresAt))
	}
	return out
}

func (d *Detector) newGap(clinicID string, start, end time.Time, normalPriceCents int64, expiresAt time.Time) Gap {
	return Gap{
		ClinicID:           clinicID,
		Date:               startOfDay(start, start.Location()),
		StartAt:            start,
		EndAt:              end,
		Duration:           end.Sub(start),
		NormalPriceCents:   normalPriceCents,
		DiscountPct:        d.discountPct,
		DiscountPriceCents: discounted(normalPriceCents, d.discountPct),
		ExpiresAt:          expiresAt,
	}
}

func discounted(priceCents int64, pct int) int64 {
	return priceCents * int64(100-pct) / 100
}

func startOfDay(t time.Time, loc *time.Location) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

func maxTime(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}

func minTime(a, b time.Time) time.Time {
	if a.Before(b) {
		return a
	}
	return b
}
