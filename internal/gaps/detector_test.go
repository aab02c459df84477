package gaps

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinvia/revenue-engine/internal/appointments"
	"github.com/clinvia/revenue-engine/internal/clinics"
)

type stubClinics struct{ clinic *clinics.Clinic }

func (s *stubClinics) Get(ctx context.Context, clinicID string) (*clinics.Clinic, error) {
	return s.clinic, nil
}

type stubCalendar struct {
	appts []appointments.Appointment
	calls int
}

func (s *stubCalendar) ListConfirmedBetween(ctx context.Context, clinicID string, from, to time.Time) ([]appointments.Appointment, error) {
	s.calls++
	var out []appointments.Appointment
	for _, a := range s.appts {
		if a.StartAt.Before(to) && a.EndAt.After(from) {
			out = append(out, a)
		}
	}
	return out, nil
}

func dentalClinic() *clinics.Clinic {
	return &clinics.Clinic{
		ID:             "clinic-1",
		Name:           "Centro Dental Norte",
		Active:         true,
		OpenTime:       "09:00",
		CloseTime:      "19:00",
		Timezone:       "UTC",
		BasePriceCents: 30000,
		Provider:       "mercadopago",
	}
}

func bookedAppt(start, end time.Time, priceCents int64) appointments.Appointment {
	return appointments.Appointment{
		ID:              uuid.New(),
		ClinicID:        "clinic-1",
		Status:          appointments.StatusBooked,
		PaymentStatus:   appointments.PaymentFullPaid,
		StartAt:         start,
		EndAt:           end,
		FinalPriceCents: priceCents,
	}
}

func newTestDetector(cal *stubCalendar, now time.Time) *Detector {
	d := NewDetector(&stubClinics{clinic: dentalClinic()}, cal, 20, 12*time.Hour, nil, nil)
	d.now = func() time.Time { return now }
	return d
}

func at(day time.Time, hour int) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), hour, 0, 0, 0, time.UTC)
}

func TestDetectBetweenAppointments(t *testing.T) {
	day := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	cal := &stubCalendar{appts: []appointments.Appointment{
		bookedAppt(at(day, 9), at(day, 10), 50000),
		bookedAppt(at(day, 14), at(day, 15), 40000),
	}}
	d := newTestDetector(cal, at(day, 8))

	gaps, err := d.Detect(context.Background(), "clinic-1", 24)
	require.NoError(t, err)
	require.Len(t, gaps, 2)

	assert.Equal(t, at(day, 10), gaps[0].StartAt)
	assert.Equal(t, at(day, 14), gaps[0].EndAt)
	assert.Equal(t, 4*time.Hour, gaps[0].Duration)
	assert.Equal(t, int64(40000), gaps[0].NormalPriceCents)
	assert.Equal(t, int64(32000), gaps[0].DiscountPriceCents)

	assert.Equal(t, at(day, 15), gaps[1].StartAt)
	assert.Equal(t, at(day, 19), gaps[1].EndAt)
	assert.Equal(t, 4*time.Hour, gaps[1].Duration)
	assert.Equal(t, int64(40000), gaps[1].NormalPriceCents)

	for _, g := range gaps {
		assert.False(t, g.StartAt.Before(at(day, 9)), "gap before opening")
		assert.False(t, g.EndAt.After(at(day, 19)), "gap after closing")
		assert.Equal(t, at(day, 8).Add(12*time.Hour), g.ExpiresAt)
	}
}

func TestDetectEmptyCalendarOneGapPerDay(t *testing.T) {
	day := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	d := newTestDetector(&stubCalendar{}, at(day, 8))

	gaps, err := d.Detect(context.Background(), "clinic-1", 48)
	require.NoError(t, err)
	require.Len(t, gaps, 2)

	for i, g := range gaps {
		expected := day.AddDate(0, 0, i)
		assert.Equal(t, at(expected, 9), g.StartAt)
		assert.Equal(t, at(expected, 19), g.EndAt)
		assert.Equal(t, 10*time.Hour, g.Duration)
		assert.Equal(t, int64(30000), g.NormalPriceCents)
		assert.Equal(t, int64(24000), g.DiscountPriceCents)
	}
}

func TestDetectSkipsSubHourWindows(t *testing.T) {
	day := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	cal := &stubCalendar{appts: []appointments.Appointment{
		bookedAppt(at(day, 9), at(day, 10), 50000),
		bookedAppt(at(day, 10).Add(30*time.Minute), at(day, 19), 50000),
	}}
	d := newTestDetector(cal, at(day, 8))

	gaps, err := d.Detect(context.Background(), "clinic-1", 11)
	require.NoError(t, err)
	assert.Empty(t, gaps)
}

func TestDetectTruncatesAtHorizon(t *testing.T) {
	day := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	d := newTestDetector(&stubCalendar{}, at(day, 8))

	gaps, err := d.Detect(context.Background(), "clinic-1", 5)
	require.NoError(t, err)
	require.Len(t, gaps, 1)
	assert.Equal(t, at(day, 9), gaps[0].StartAt)
	assert.Equal(t, at(day, 13), gaps[0].EndAt)
}

func TestDetectStartsMidDayFromNow(t *testing.T) {
	day := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	d := newTestDetector(&stubCalendar{}, at(day, 16))

	gaps, err := d.Detect(context.Background(), "clinic-1", 2)
	require.NoError(t, err)
	require.Len(t, gaps, 1)
	assert.Equal(t, at(day, 16), gaps[0].StartAt)
	assert.Equal(t, at(day, 18), gaps[0].EndAt)
}

func TestDetectGapsNeverOverlap(t *testing.T) {
	day := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	cal := &stubCalendar{appts: []appointments.Appointment{
		bookedAppt(at(day, 11), at(day, 12), 40000),
		bookedAppt(at(day, 13), at(day, 14), 45000),
	}}
	d := newTestDetector(cal, at(day, 8))

	gaps, err := d.Detect(context.Background(), "clinic-1", 24)
	require.NoError(t, err)
	require.NotEmpty(t, gaps)
	for i := 1; i < len(gaps); i++ {
		assert.False(t, gaps[i].StartAt.Before(gaps[i-1].EndAt), "gaps overlap")
	}
	for _, g := range gaps {
		assert.GreaterOrEqual(t, g.Duration, 60*time.Minute)
	}
}
