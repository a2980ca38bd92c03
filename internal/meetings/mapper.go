// Package meetings maps booking lifecycle events onto one CRM calendar
// entry per booking.
//
// Entry states are Scheduled, Rescheduled and Canceled. Canceled is
// terminal: once an entry is canceled no later event touches it.
package meetings

import (
	"strings"
	"time"

	"github.com/himplant/crmsync/internal/square"
)

// EventKind is the normalized booking lifecycle event.
type EventKind string

// Event kinds.
const (
	EventCreated  EventKind = "created"
	EventUpdated  EventKind = "updated"
	EventCanceled EventKind = "canceled"
	EventUnknown  EventKind = "unknown"
)

// Status is the calendar entry status written to the CRM.
type Status string

// Entry statuses.
const (
	StatusScheduled   Status = "Scheduled"
	StatusRescheduled Status = "Rescheduled"
	StatusCanceled    Status = "Canceled"
)

// Action is what the upserter does for an event.
type Action string

// Actions.
const (
	ActionNone   Action = "none"
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
)

// Defaults for titles and durations.
const (
	DefaultTitleLabel = "Himplant virtual consultation"
	DefaultDuration   = 30 * time.Minute
	TitleSeparator    = " – "
	dashboardURL      = "https://squareup.com/dashboard/appointments/bookings/"
)

// Entry is the CRM calendar entry for one booking.
type Entry struct {
	ID          string
	ExternalID  string
	Title       string
	Start       time.Time
	End         time.Time
	Status      Status
	Description string
	Owner       string
}

// Decision is the outcome of Decide.
type Decision struct {
	Action Action
	Status Status
}

// Decide applies the transition table to an event and the existing entry
// (nil when none exists).
func Decide(kind EventKind, existing *Entry) Decision {
	if existing != nil && strings.EqualFold(string(existing.Status), string(StatusCanceled)) {
		return Decision{Action: ActionNone, Status: StatusCanceled}
	}
	switch kind {
	case EventCreated:
		if existing != nil {
			return Decision{Action: ActionNone, Status: existing.Status}
		}
		return Decision{Action: ActionCreate, Status: StatusScheduled}
	case EventUpdated:
		if existing != nil {
			return Decision{Action: ActionUpdate, Status: StatusRescheduled}
		}
		return Decision{Action: ActionCreate, Status: StatusScheduled}
	case EventCanceled:
		if existing != nil {
			return Decision{Action: ActionUpdate, Status: StatusCanceled}
		}
		return Decision{Action: ActionNone}
	default:
		d := Decision{Action: ActionNone}
		if existing != nil {
			d.Status = existing.Status
		}
		return d
	}
}

// EffectiveKind promotes a created or updated event to canceled when the
// fetched booking status is already a cancellation. A late created event
// then never resurrects a cancelled booking.
func EffectiveKind(kind EventKind, bookingStatus string) EventKind {
	if (kind == EventCreated || kind == EventUpdated) && square.IsCancelledStatus(bookingStatus) {
		return EventCanceled
	}
	return kind
}

// Title joins the non-empty parts in fixed order: label, service,
// location, customer name.
func Title(label, service, location, fullName string) string {
	parts := make([]string, 0, 4)
	for _, p := range []string{label, service, location, fullName} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, TitleSeparator)
}

// EndTime returns explicitEnd when set, else start plus the booked
// minutes, else start plus def.
func EndTime(start, explicitEnd time.Time, durationMinutes int, def time.Duration) time.Time {
	if !explicitEnd.IsZero() {
		return explicitEnd
	}
	if durationMinutes > 0 {
		return start.Add(time.Duration(durationMinutes) * time.Minute)
	}
	if def <= 0 {
		def = DefaultDuration
	}
	return start.Add(def)
}

// Description renders the entry body from the booking status and id.
func Description(bookingStatus, bookingID string) string {
	return "Square booking status: " + bookingStatus + "\nBooking URL: " + dashboardURL + bookingID
}

// FormatTime renders t the way the CRM expects date-times.
func FormatTime(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05-07:00")
}
