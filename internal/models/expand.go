package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// DaysBetween returns the inclusive number of calendar days covered by the
// span [start, end]. A zero-length or backwards span counts as one day.
// The comparison is midnight-to-midnight in start's location, rounded so a
// DST transition does not shift the count.
func DaysBetween(start, end time.Time) int {
	s := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, start.Location())
	e := end.In(start.Location())
	e = time.Date(e.Year(), e.Month(), e.Day(), 0, 0, 0, 0, start.Location())

	days := int(e.Sub(s).Round(24*time.Hour)/(24*time.Hour)) + 1
	if days < 1 {
		return 1
	}
	return days
}

// ExpansionDays returns how many daily events the event expands into.
func (e CalendarEvent) ExpansionDays() int {
	end := e.StartDatetime
	if e.EndDatetime != nil {
		end = *e.EndDatetime
	}
	return DaysBetween(e.StartDatetime, end)
}

// ExpandEvent splits a multi-day event into one event per calendar day. Each
// daily copy gets its own single-day start/end (preserving the original
// clock times) and extended properties recording its position in the series
// and a back-reference to the first day's id. A one-day span yields a single
// copy equal to the input aside from the tagging.
//
// The provider has no notion of "repeats once per day with independent
// per-day identity", so this happens before any provider call.
func ExpandEvent(event CalendarEvent) []CalendarEvent {
	total := event.ExpansionDays()

	days := make([]CalendarEvent, 0, total)
	for i := 1; i <= total; i++ {
		day := event
		day.ExtendedProperties = copyProps(event.ExtendedProperties)

		if i > 1 {
			day.ID = uuid.New().String()
			day.GoogleEventID = nil
			day.Etag = nil
			day.StartDatetime = sameClock(event.StartDatetime, i-1)
			if event.EndDatetime != nil {
				end := time.Date(
					day.StartDatetime.Year(), day.StartDatetime.Month(), day.StartDatetime.Day(),
					event.EndDatetime.Hour(), event.EndDatetime.Minute(), event.EndDatetime.Second(), 0,
					event.StartDatetime.Location(),
				)
				day.EndDatetime = &end
			}
		} else if event.EndDatetime != nil && total > 1 {
			// First day's copy is clipped to its own day.
			end := time.Date(
				event.StartDatetime.Year(), event.StartDatetime.Month(), event.StartDatetime.Day(),
				event.EndDatetime.Hour(), event.EndDatetime.Minute(), event.EndDatetime.Second(), 0,
				event.StartDatetime.Location(),
			)
			day.EndDatetime = &end
		}

		if total > 1 {
			day.Title = fmt.Sprintf("%s (Day %d/%d)", event.Title, i, total)
		}

		day.ExtendedProperties[PropDayNumber] = fmt.Sprintf("%d", i)
		day.ExtendedProperties[PropTotalDays] = fmt.Sprintf("%d", total)
		day.ExtendedProperties[PropOriginalEventID] = days0ID(days, day)

		days = append(days, day)
	}

	return days
}

// sameClock returns start shifted forward by offsetDays whole calendar days,
// keeping the clock time.
func sameClock(start time.Time, offsetDays int) time.Time {
	d := start.AddDate(0, 0, offsetDays)
	return time.Date(d.Year(), d.Month(), d.Day(),
		start.Hour(), start.Minute(), start.Second(), 0, start.Location())
}

func days0ID(days []CalendarEvent, current CalendarEvent) string {
	if len(days) == 0 {
		return current.ID
	}
	return days[0].ID
}

func copyProps(props map[string]string) map[string]string {
	out := make(map[string]string, len(props)+3)
	for k, v := range props {
		out[k] = v
	}
	return out
}
