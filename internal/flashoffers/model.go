// Package flashoffers turns detected calendar gaps into time-boxed
// discounted bookings: it picks eligible leads, creates provisional
// appointments, records one pursuit campaign per appointment, and runs the
// conversion and expiry sweeps that close the loop.
package flashoffers

import (
	"time"

	"github.com/google/uuid"
)

// CampaignTypeFlashOffer is the only campaign type the dispatcher emits.
const CampaignTypeFlashOffer = "flash_offer"

// Campaign is one outbound recovery offer and its conversion outcome.
// At most one campaign exists per appointment; the store enforces that
// with a unique constraint. A converted campaign is never mutated again.
type Campaign struct {
	ID                   uuid.UUID
	ClinicID             string
	PatientID            string
	AppointmentID        uuid.UUID
	CampaignType         string
	Channel              string
	Message              string
	Sent                 bool
	SentAt               *time.Time
	Converted            bool
	ConvertedAt          *time.Time
	ConversionValueCents int64
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// Report summarizes one dispatch run.
type Report struct {
	Gaps    int
	Created int
	Sent    int
	Errors  int
}
