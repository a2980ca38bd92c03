// Package journal records the outcome of every processed webhook delivery.
//
// The journal answers one question for the orchestrator: was this event id
// already applied? It stores metadata only: ids, actions and errors, never
// booking snapshots or customer identity data.
package journal

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Outcome of one delivery.
type Outcome string

// Outcomes.
const (
	OutcomeApplied   Outcome = "applied"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeIgnored   Outcome = "ignored"
	OutcomePending   Outcome = "pending"
	OutcomeFailed    Outcome = "failed"
)

// Entry is one journal row.
type Entry struct {
	ID            uuid.UUID `json:"id"`
	EventID       string    `json:"event_id"`
	EventType     string    `json:"event_type"`
	BookingID     string    `json:"booking_id,omitempty"`
	Outcome       Outcome   `json:"outcome"`
	PersonKind    string    `json:"person_kind,omitempty"`
	PersonID      string    `json:"person_id,omitempty"`
	MeetingID     string    `json:"meeting_id,omitempty"`
	MeetingAction string    `json:"meeting_action,omitempty"`
	DealID        string    `json:"deal_id,omitempty"`
	Error         string    `json:"error,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// Store persists journal entries.
type Store interface {
	// Record stores e, assigning ID and CreatedAt when unset.
	Record(ctx context.Context, e Entry) error
	// Applied reports whether eventID has an applied entry.
	Applied(ctx context.Context, eventID string) (bool, error)
	// Recent returns up to limit entries, newest first.
	Recent(ctx context.Context, limit int) ([]Entry, error)
	// Prune deletes entries created before the cutoff.
	Prune(ctx context.Context, before time.Time) (int64, error)
}

// DefaultRecentLimit caps Recent when limit <= 0.
const DefaultRecentLimit = 50

func prepare(e Entry, now time.Time) Entry {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	e.CreatedAt = e.CreatedAt.UTC()
	return e
}
