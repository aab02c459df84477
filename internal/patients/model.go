package patients

import "time"

// Profile is the psychographic tag used to target outreach.
type Profile string

const (
	ProfilePriceSensitive Profile = "price_sensitive"
	ProfileQualitySeeker  Profile = "quality_seeker"
	ProfileConvenience    Profile = "convenience"
)

// Patient is a clinic's contact. Flash offers target active, price-sensitive
// patients who are not already mid-renewal.
type Patient struct {
	ID          string
	ClinicID    string
	Name        string
	Email       string
	Phone       string
	Profile     Profile
	Active      bool
	InRenewal   bool
	Abandonment bool // set while the patient has an unconverted recovery offer
	Scarcity    bool // set while a time-boxed offer is pending for them
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
