package flashoffers

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/clinvia/revenue-engine/internal/appointments"
	"github.com/clinvia/revenue-engine/internal/audit"
	"github.com/clinvia/revenue-engine/internal/clinics"
	"github.com/clinvia/revenue-engine/internal/gaps"
	"github.com/clinvia/revenue-engine/internal/notify"
	"github.com/clinvia/revenue-engine/internal/observability/metrics"
	"github.com/clinvia/revenue-engine/internal/patients"
	"github.com/clinvia/revenue-engine/pkg/logging"
)

type gapSource interface {
	Detect(ctx context.Context, clinicID string, horizonHours int) ([]gaps.Gap, error)
}

type leadStore interface {
	ListPriceSensitive(ctx context.Context, clinicID string, limit int) ([]patients.Patient, error)
	SetRecoveryFlags(ctx context.Context, clinicID, patientID string) error
	ClearRecoveryFlags(ctx context.Context, clinicID, patientID string) error
}

type offerAppointments interface {
	Create(ctx context.Context, a *appointments.Appointment) error
	ExpireFlashOffers(ctx context.Context, clinicID string, now time.Time) (int64, error)
}

type campaignStore interface {
	CreateCampaign(ctx context.Context, c *Campaign) (bool, error)
	MarkSent(ctx context.Context, clinicID string, id uuid.UUID) error
	ListConvertible(ctx context.Context, clinicID string) ([]ConvertibleOffer, error)
	MarkConverted(ctx context.Context, clinicID string, id uuid.UUID, valueCents int64) (bool, error)
}

type exclusionWindow interface {
	Active(ctx context.Context, clinicID, patientID string) (bool, error)
	Mark(ctx context.Context, clinicID, patientID string) error
}

type clinicSource interface {
	Get(ctx context.Context, clinicID string) (*clinics.Clinic, error)
}

type auditor interface {
	Record(ctx context.Context, e audit.Entry)
}

// Config bounds a dispatch run.
type Config struct {
	HorizonHours int
	LeadsPerGap  int
}

// Dispatcher matches gaps to price-sensitive leads and creates the
// provisional offers. All three entry points are idempotent: re-running a
// dispatch cannot duplicate campaigns, and the sweeps only touch rows that
// still match their condition.
type Dispatcher struct {
	cfg       Config
	detector  gapSource
	clinics   clinicSource
	leads     leadStore
	appts     offerAppointments
	campaigns campaignStore
	cooldown  exclusionWindow
	sender    notify.Sender
	audit     auditor
	metrics   *metrics.OfferMetrics
	logger    *logging.Logger
	now       func() time.Time
}

// NewDispatcher creates a dispatcher.
func NewDispatcher(cfg Config, detector gapSource, clinicStore clinicSource, leads leadStore, appts offerAppointments, campaigns campaignStore, cooldown exclusionWindow, sender notify.Sender, sink auditor, om *metrics.OfferMetrics, logger *logging.Logger) *Dispatcher {
	if cfg.HorizonHours <= 0 {
		cfg.HorizonHours = 24
	}
	if cfg.LeadsPerGap <= 0 {
		cfg.LeadsPerGap = 5
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Dispatcher{
		cfg:       cfg,
		detector:  detector,
		clinics:   clinicStore,
		leads:     leads,
		appts:     appts,
		campaigns: campaigns,
		cooldown:  cooldown,
		sender:    sender,
		audit:     sink,
		metrics:   om,
		logger:    logger,
		now:       time.Now,
	}
}

// Dispatch scans for gaps and offers each one to a bounded set of leads.
func (d *Dispatcher) Dispatch(ctx context.Context, clinicID string) (Report, error) {
	var report Report

	found, err := d.detector.Detect(ctx, clinicID, d.cfg.HorizonHours)
	if err != nil {
		return report, fmt.Errorf("flashoffers: detect gaps: %w", err)
	}
	report.Gaps = len(found)
	if len(found) == 0 {
		return report, nil
	}

	clinic, err := d.clinics.Get(ctx, clinicID)
	if err != nil {
		return report, fmt.Errorf("flashoffers: load clinic: %w", err)
	}

	queue, err := d.eligibleLeads(ctx, clinicID, d.cfg.LeadsPerGap*len(found))
	if err != nil {
		return report, err
	}
	if len(queue) == 0 {
		d.logger.Info("no eligible leads for dispatch", "clinic_id", clinicID, "gaps", len(found))
		return report, nil
	}

	for _, gap := range found {
		for i := 0; i < d.cfg.LeadsPerGap && len(queue) > 0; i++ {
			lead := queue[0]
			queue = queue[1:]
			if err := d.offerGap(ctx, clinic, gap, lead, &report); err != nil {
				d.logger.Error("offer failed", "clinic_id", clinicID, "patient_id", lead.ID, "error", err)
				report.Errors++
			}
		}
	}

	d.metrics.AddCreated(clinicID, report.Created)
	d.logger.Info("dispatch complete",
		"clinic_id", clinicID, "gaps", report.Gaps, "created", report.Created, "sent", report.Sent, "errors", report.Errors)
	return report, nil
}

// eligibleLeads lists price-sensitive leads and drops anyone still inside
// the recently-offered window.
func (d *Dispatcher) eligibleLeads(ctx context.Context, clinicID string, limit int) ([]patients.Patient, error) {
	candidates, err := d.leads.ListPriceSensitive(ctx, clinicID, limit)
	if err != nil {
		return nil, fmt.Errorf("flashoffers: list leads: %w", err)
	}

	out := candidates[:0]
	for _, p := range candidates {
		active, err := d.cooldown.Active(ctx, clinicID, p.ID)
		if err != nil {
			d.logger.Error("cooldown lookup failed, skipping lead", "patient_id", p.ID, "error", err)
			continue
		}
		if !active {
			out = append(out, p)
		}
	}
	return out, nil
}

// route picks a channel the configured sender can actually deliver. The
// choice happens before any state is written so an undeliverable lead is
// skipped rather than burned.
func (d *Dispatcher) route(lead patients.Patient) (notify.Channel, string, bool) {
	if lead.Phone != "" && d.sender.Supports(notify.ChannelWhatsApp) {
		return notify.ChannelWhatsApp, lead.Phone, true
	}
	if lead.Email != "" && d.sender.Supports(notify.ChannelEmail) {
		return notify.ChannelEmail, lead.Email, true
	}
	return "", "", false
}

func (d *Dispatcher) offerGap(ctx context.Context, clinic *clinics.Clinic, gap gaps.Gap, lead patients.Patient, report *Report) error {
	channel, to, ok := d.route(lead)
	if !ok {
		return fmt.Errorf("no deliverable channel for patient %s", lead.ID)
	}

	expiresAt := gap.ExpiresAt
	appt := &appointments.Appointment{
		ClinicID:        clinic.ID,
		PatientID:       lead.ID,
		ServiceName:     "Flash offer",
		StartAt:         gap.StartAt,
		EndAt:           gap.EndAt,
		FinalPriceCents: gap.DiscountPriceCents,
		IsFlashOffer:    true,
		DiscountPct:     gap.DiscountPct,
		FlashExpiresAt:  &expiresAt,
	}
	if err := d.appts.Create(ctx, appt); err != nil {
		return fmt.Errorf("create offer appointment: %w", err)
	}

	campaign := &Campaign{
		ClinicID:      clinic.ID,
		PatientID:     lead.ID,
		AppointmentID: appt.ID,
		CampaignType:  CampaignTypeFlashOffer,
		Channel:       string(channel),
		Message:       OfferMessage(lead.Name, clinic.Name, gap),
	}
	created, err := d.campaigns.CreateCampaign(ctx, campaign)
	if err != nil {
		return fmt.Errorf("create campaign: %w", err)
	}
	if !created {
		// A campaign already exists for this appointment; nothing to send.
		return nil
	}
	report.Created++

	d.audit.Record(ctx, audit.Entry{
		ClinicID:   clinic.ID,
		Action:     "flash_offer.dispatch",
		EntityType: "pursuit_campaign",
		EntityID:   campaign.ID.String(),
		Actor:      "sweeper",
		Outcome:    audit.OutcomeSuccess,
		Detail:     fmt.Sprintf("offer %s to patient %s", appt.ID, lead.ID),
	})

	if err := d.leads.SetRecoveryFlags(ctx, clinic.ID, lead.ID); err != nil {
		d.logger.Error("recovery flags not set", "patient_id", lead.ID, "error", err)
	}
	if err := d.cooldown.Mark(ctx, clinic.ID, lead.ID); err != nil {
		d.logger.Error("cooldown not marked", "patient_id", lead.ID, "error", err)
	}

	if err := d.sender.Send(ctx, notify.Message{
		To:      to,
		ToName:  lead.Name,
		Channel: channel,
		Subject: OfferSubject(clinic.Name, gap),
		Body:    campaign.Message,
	}); err != nil {
		return fmt.Errorf("send offer: %w", err)
	}
	if err := d.campaigns.MarkSent(ctx, clinic.ID, campaign.ID); err != nil {
		return fmt.Errorf("mark sent: %w", err)
	}
	report.Sent++
	return nil
}

// CheckConversions marks campaigns whose offer got paid, records the
// conversion value, and clears the patient's recovery flags.
func (d *Dispatcher) CheckConversions(ctx context.Context, clinicID string) (int, error) {
	offers, err := d.campaigns.ListConvertible(ctx, clinicID)
	if err != nil {
		return 0, fmt.Errorf("flashoffers: check conversions: %w", err)
	}

	converted := 0
	for _, o := range offers {
		updated, err := d.campaigns.MarkConverted(ctx, clinicID, o.CampaignID, o.FinalPriceCents)
		if err != nil {
			d.logger.Error("conversion not recorded", "campaign_id", o.CampaignID, "error", err)
			continue
		}
		if !updated {
			continue
		}
		converted++

		if err := d.leads.ClearRecoveryFlags(ctx, clinicID, o.PatientID); err != nil {
			d.logger.Error("recovery flags not cleared", "patient_id", o.PatientID, "error", err)
		}
		d.audit.Record(ctx, audit.Entry{
			ClinicID:   clinicID,
			Action:     "flash_offer.convert",
			EntityType: "pursuit_campaign",
			EntityID:   o.CampaignID.String(),
			Actor:      "sweeper",
			Outcome:    audit.OutcomeSuccess,
			Detail:     fmt.Sprintf("value %d cents", o.FinalPriceCents),
		})
	}

	d.metrics.AddConverted(clinicID, converted)
	return converted, nil
}

// ExpireOffers cancels every flash offer whose claim window passed while
// still unpaid. Paid and already-cancelled rows are untouched.
func (d *Dispatcher) ExpireOffers(ctx context.Context, clinicID string) (int64, error) {
	n, err := d.appts.ExpireFlashOffers(ctx, clinicID, d.now().UTC())
	if err != nil {
		return 0, fmt.Errorf("flashoffers: expire offers: %w", err)
	}
	if n > 0 {
		d.metrics.AddExpired(clinicID, int(n))
		d.audit.Record(ctx, audit.Entry{
			ClinicID:   clinicID,
			Action:     "flash_offer.expire",
			EntityType: "appointment",
			EntityID:   clinicID,
			Actor:      "sweeper",
			Outcome:    audit.OutcomeSuccess,
			Detail:     fmt.Sprintf("%d offers expired", n),
		})
	}
	return n, nil
}
