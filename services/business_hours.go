package services

import (
	"fmt"
	"log/slog"
	"time"

	"whatsapp-bot/models"
)

// IsWithinBusinessHours reports whether the tenant's service window covers
// the given instant. A disabled schedule is always open; an unknown timezone
// degrades to UTC rather than refusing service.
func IsWithinBusinessHours(tenant *models.Tenant, at time.Time) bool {
	hours := tenant.BusinessHours
	if !hours.Enabled {
		return true
	}

	loc := time.UTC
	if hours.Timezone != "" {
		l, err := time.LoadLocation(hours.Timezone)
		if err != nil {
			slog.Warn("Unknown tenant timezone, evaluating business hours in UTC",
				"tenantID", tenant.TenantID,
				"timezone", hours.Timezone)
		} else {
			loc = l
		}
	}

	local := at.In(loc)
	weekday := int(local.Weekday())

	for _, day := range hours.Days {
		if day.Weekday != weekday {
			continue
		}
		open, err1 := parseClock(day.Open)
		close, err2 := parseClock(day.Close)
		if err1 != nil || err2 != nil {
			slog.Warn("Invalid business hours entry",
				"tenantID", tenant.TenantID,
				"weekday", day.Weekday,
				"open", day.Open,
				"close", day.Close)
			continue
		}

		minutes := local.Hour()*60 + local.Minute()
		if open < close {
			if minutes >= open && minutes < close {
				return true
			}
		} else if open > close {
			// Close before open means the window wraps past midnight; both
			// sides count toward the entry's weekday. Equal open and close
			// is an empty window.
			if minutes >= open || minutes < close {
				return true
			}
		}
	}

	// Weekday absent from the schedule means closed that day
	return false
}

// parseClock converts "HH:MM" to minutes since midnight.
func parseClock(s string) (int, error) {
	var h, m int
	if _, err := fmt.Sscanf(s, "%d:%d", &h, &m); err != nil {
		return 0, err
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, fmt.Errorf("invalid clock value %q", s)
	}
	return h*60 + m, nil
}
