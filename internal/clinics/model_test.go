package clinics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHoursOn(t *testing.T) {
	c := &Clinic{OpenTime: "09:00", CloseTime: "19:00"}
	day := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)

	open, close, err := c.HoursOn(day)
	require.NoError(t, err)
	assert.Equal(t, 9, open.Hour())
	assert.Equal(t, 19, close.Hour())
	assert.Equal(t, day.Day(), open.Day())
}

func TestHoursOnInvalid(t *testing.T) {
	day := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)

	_, _, err := (&Clinic{OpenTime: "9am", CloseTime: "19:00"}).HoursOn(day)
	assert.Error(t, err)

	_, _, err = (&Clinic{OpenTime: "19:00", CloseTime: "09:00"}).HoursOn(day)
	assert.ErrorContains(t, err, "not after")
}

func TestLocationFallsBackToUTC(t *testing.T) {
	assert.Equal(t, time.UTC, (&Clinic{}).Location())
	assert.Equal(t, time.UTC, (&Clinic{Timezone: "Mars/Olympus"}).Location())
}
