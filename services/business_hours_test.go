package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"whatsapp-bot/models"
)

func businessHoursTenant(days []models.DayHours) *models.Tenant {
	return &models.Tenant{
		TenantID: "acme",
		BusinessHours: models.BusinessHours{
			Enabled:  true,
			Timezone: "UTC",
			Days:     days,
		},
	}
}

func TestBusinessHoursDisabledAlwaysOpen(t *testing.T) {
	tenant := &models.Tenant{BusinessHours: models.BusinessHours{Enabled: false}}

	// Sunday 03:00
	at := time.Date(2026, 1, 4, 3, 0, 0, 0, time.UTC)
	assert.True(t, IsWithinBusinessHours(tenant, at))
}

func TestBusinessHoursInsideWindow(t *testing.T) {
	tenant := businessHoursTenant([]models.DayHours{
		{Weekday: 1, Open: "09:00", Close: "18:00"},
	})

	// Monday 10:30
	at := time.Date(2026, 1, 5, 10, 30, 0, 0, time.UTC)
	assert.True(t, IsWithinBusinessHours(tenant, at))
}

func TestBusinessHoursBeforeOpen(t *testing.T) {
	tenant := businessHoursTenant([]models.DayHours{
		{Weekday: 1, Open: "09:00", Close: "18:00"},
	})

	at := time.Date(2026, 1, 5, 8, 59, 0, 0, time.UTC)
	assert.False(t, IsWithinBusinessHours(tenant, at))
}

func TestBusinessHoursCloseIsExclusive(t *testing.T) {
	tenant := businessHoursTenant([]models.DayHours{
		{Weekday: 1, Open: "09:00", Close: "18:00"},
	})

	atClose := time.Date(2026, 1, 5, 18, 0, 0, 0, time.UTC)
	assert.False(t, IsWithinBusinessHours(tenant, atClose))

	justBefore := time.Date(2026, 1, 5, 17, 59, 0, 0, time.UTC)
	assert.True(t, IsWithinBusinessHours(tenant, justBefore))
}

func TestBusinessHoursAbsentWeekdayClosed(t *testing.T) {
	tenant := businessHoursTenant([]models.DayHours{
		{Weekday: 1, Open: "09:00", Close: "18:00"},
	})

	// Sunday is not in the schedule
	at := time.Date(2026, 1, 4, 12, 0, 0, 0, time.UTC)
	assert.False(t, IsWithinBusinessHours(tenant, at))
}

func TestBusinessHoursRespectsTimezone(t *testing.T) {
	tenant := businessHoursTenant([]models.DayHours{
		{Weekday: 1, Open: "09:00", Close: "18:00"},
	})
	tenant.BusinessHours.Timezone = "America/Sao_Paulo"

	// Monday 20:00 UTC is 17:00 in São Paulo, still open there
	at := time.Date(2026, 1, 5, 20, 0, 0, 0, time.UTC)
	assert.True(t, IsWithinBusinessHours(tenant, at))

	// Monday 22:00 UTC is 19:00 in São Paulo, closed
	at = time.Date(2026, 1, 5, 22, 0, 0, 0, time.UTC)
	assert.False(t, IsWithinBusinessHours(tenant, at))
}

func TestBusinessHoursUnknownTimezoneFallsBackToUTC(t *testing.T) {
	tenant := businessHoursTenant([]models.DayHours{
		{Weekday: 1, Open: "09:00", Close: "18:00"},
	})
	tenant.BusinessHours.Timezone = "Not/AZone"

	at := time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC)
	assert.True(t, IsWithinBusinessHours(tenant, at))
}

func TestBusinessHoursOvernightWindowWraps(t *testing.T) {
	tenant := businessHoursTenant([]models.DayHours{
		{Weekday: 1, Open: "18:00", Close: "02:00"},
	})

	// Monday 23:00, after opening
	at := time.Date(2026, 1, 5, 23, 0, 0, 0, time.UTC)
	assert.True(t, IsWithinBusinessHours(tenant, at))

	// Monday 01:00, before the wrapped close
	at = time.Date(2026, 1, 5, 1, 0, 0, 0, time.UTC)
	assert.True(t, IsWithinBusinessHours(tenant, at))

	// Monday 12:00, outside both sides
	at = time.Date(2026, 1, 5, 12, 0, 0, 0, time.UTC)
	assert.False(t, IsWithinBusinessHours(tenant, at))

	// Close stays exclusive across midnight
	at = time.Date(2026, 1, 5, 2, 0, 0, 0, time.UTC)
	assert.False(t, IsWithinBusinessHours(tenant, at))
}

func TestBusinessHoursEqualOpenCloseIsClosed(t *testing.T) {
	tenant := businessHoursTenant([]models.DayHours{
		{Weekday: 1, Open: "09:00", Close: "09:00"},
	})

	at := time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)
	assert.False(t, IsWithinBusinessHours(tenant, at))
}

func TestBusinessHoursInvalidClockEntrySkipped(t *testing.T) {
	tenant := businessHoursTenant([]models.DayHours{
		{Weekday: 1, Open: "banana", Close: "18:00"},
	})

	at := time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC)
	assert.False(t, IsWithinBusinessHours(tenant, at))
}

func TestParseClock(t *testing.T) {
	minutes, err := parseClock("09:30")
	assert.NoError(t, err)
	assert.Equal(t, 570, minutes)

	_, err = parseClock("25:00")
	assert.Error(t, err)

	_, err = parseClock("12:75")
	assert.Error(t, err)
}
