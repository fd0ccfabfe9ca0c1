package domain

import "time"

type ProviderSettings struct {
	ProviderID        string        `json:"provider_id"`
	Timezone          string        `json:"timezone"`
	MinimumNotice     time.Duration `json:"minimum_notice"`
	NotificationEmail string        `json:"notification_email"`
}

// Location falls back to UTC when the stored zone is empty or unknown.
func (p ProviderSettings) Location() *time.Location {
	if p.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(p.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

type BlockedDate struct {
	ProviderID string
	Date       time.Time
	Reason     string
}

// CalendarDay truncates t to midnight UTC of its calendar day in loc, which is
// how blocked dates are stored.
func CalendarDay(t time.Time, loc *time.Location) time.Time {
	local := t.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, time.UTC)
}
