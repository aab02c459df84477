// Package clinics holds the tenant master data the engine reads: business
// hours for gap detection and the preferred gateway for checkout routing.
package clinics

import (
	"fmt"
	"time"
)

// Clinic is a tenant. All other entities are scoped to it by clinic_id.
type Clinic struct {
	ID             string
	Name           string
	Active         bool
	OpenTime       string // "09:00", 24-hour clock
	CloseTime      string // "19:00"
	Timezone       string // IANA name, e.g. "America/Santiago"
	BasePriceCents int64  // default service price for empty-day gaps
	Provider       string // preferred gateway: "mercadopago" or "webpay"
	Environment    string // "sandbox" or "production"
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Location resolves the clinic timezone, defaulting to UTC.
func (c *Clinic) Location() *time.Location {
	if c.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// HoursOn returns the business window for the given calendar day.
func (c *Clinic) HoursOn(day time.Time) (open, close time.Time, err error) {
	loc := c.Location()
	open, err = atClock(day, c.OpenTime, loc)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("clinics: open time: %w", err)
	}
	close, err = atClock(day, c.CloseTime, loc)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("clinics: close time: %w", err)
	}
	if !close.After(open) {
		return time.Time{}, time.Time{}, fmt.Errorf("clinics: close %s is not after open %s", c.CloseTime, c.OpenTime)
	}
	return open, close, nil
}

func atClock(day time.Time, clock string, loc *time.Location) (time.Time, error) {
	parsed, err := time.Parse("15:04", clock)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid clock value %q: %w", clock, err)
	}
	return time.Date(day.Year(), day.Month(), day.Day(), parsed.Hour(), parsed.Minute(), 0, 0, loc), nil
}
