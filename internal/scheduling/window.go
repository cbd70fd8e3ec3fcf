// Package scheduling holds the sending-window and daily quota rules.
// Every function takes the instant to evaluate so callers control the clock.
package scheduling

import (
	"log"
	"slices"
	"time"

	"github.com/unclebandit/outreach-backend/internal/model"
)

// RampUpSchedule is the daily cap for the first days of a campaign.
var RampUpSchedule = []int{20, 30, 40}

// maxSlotSearchDays bounds NextSendingSlot when no sending day matches.
const maxSlotSearchDays = 14

// Location resolves an IANA timezone, falling back to UTC.
func Location(tz string) *time.Location {
	loc, err := time.LoadLocation(tz)
	if err != nil {
		log.Printf("⚠️ unknown timezone %q, using UTC: %v", tz, err)
		return time.UTC
	}
	return loc
}

// IsWithinWindow reports whether at falls on a sending day and inside
// [startHour, endHour) in the workspace timezone.
func IsWithinWindow(s *model.SendingSettings, at time.Time) bool {
	local := at.In(Location(s.Timezone))
	if !slices.Contains(s.SendingDays, int(local.Weekday())) {
		return false
	}
	h := local.Hour()
	return h >= s.StartHour && h < s.EndHour
}

// NextSendingSlot returns the first instant at or after from that lies inside
// the sending window. It returns from unchanged if no slot exists within 14 days.
func NextSendingSlot(s *model.SendingSettings, from time.Time) time.Time {
	loc := Location(s.Timezone)
	cursor := from.In(loc)

	for i := 0; i < maxSlotSearchDays; i++ {
		if slices.Contains(s.SendingDays, int(cursor.Weekday())) {
			if cursor.Hour() < s.StartHour {
				return time.Date(cursor.Year(), cursor.Month(), cursor.Day(), s.StartHour, 0, 0, 0, loc)
			}
			if cursor.Hour() < s.EndHour {
				return cursor
			}
		}
		cursor = time.Date(cursor.Year(), cursor.Month(), cursor.Day()+1, 0, 0, 0, 0, loc)
	}
	return from
}

// DayBounds returns the UTC instants of the local day containing at.
func DayBounds(tz string, at time.Time) (start, end time.Time) {
	local := at.In(Location(tz))
	midnight := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, local.Location())
	next := time.Date(local.Year(), local.Month(), local.Day()+1, 0, 0, 0, 0, local.Location())
	return midnight.UTC(), next.UTC()
}

// RampUpDay is the 1-based local calendar day of a campaign's life,
// counted from its launch. Campaigns not yet launched are on day 1.
func RampUpDay(tz string, launchedAt *time.Time, now time.Time) int {
	if launchedAt == nil {
		return 1
	}
	loc := Location(tz)
	days := calendarDate(now.In(loc)).Sub(calendarDate(launchedAt.In(loc))) / (24 * time.Hour)
	if days < 0 {
		return 1
	}
	return int(days) + 1
}

func calendarDate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// RampUpQuota is the daily cap on the given day of a campaign's life.
func RampUpQuota(s *model.SendingSettings, day int) int {
	if !s.RampUpEnabled {
		return s.DailyQuota
	}
	if day < 1 {
		day = 1
	}
	if day > len(RampUpSchedule) {
		return s.DailyQuota
	}
	return min(RampUpSchedule[day-1], s.DailyQuota)
}
