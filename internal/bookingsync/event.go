package bookingsync

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/himplant/crmsync/internal/meetings"
	"github.com/himplant/crmsync/internal/syncerr"
)

// InboundEvent is a parsed webhook delivery.
type InboundEvent struct {
	Type       meetings.EventKind
	RawType    string
	EventID    string
	MerchantID string
	BookingID  string
	Payload    []byte
}

type webhookPayload struct {
	MerchantID string `json:"merchant_id"`
	Type       string `json:"type"`
	EventID    string `json:"event_id"`
	Data       struct {
		Type   string `json:"type"`
		ID     string `json:"id"`
		Object struct {
			Booking *struct {
				ID string `json:"id"`
			} `json:"booking"`
		} `json:"object"`
	} `json:"data"`
}

// ParseEvent decodes a webhook body. Types outside the booking lifecycle
// parse fine and carry meetings.EventUnknown.
func ParseEvent(body []byte) (InboundEvent, error) {
	var p webhookPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return InboundEvent{}, syncerr.Validation("parse webhook", err)
	}
	if strings.TrimSpace(p.Type) == "" {
		return InboundEvent{}, syncerr.Validation("parse webhook", errors.New("event type is missing"))
	}

	ev := InboundEvent{
		Type:       KindOf(p.Type),
		RawType:    p.Type,
		EventID:    strings.TrimSpace(p.EventID),
		MerchantID: p.MerchantID,
		Payload:    body,
	}
	bookingID := p.Data.ID
	if p.Data.Object.Booking != nil && p.Data.Object.Booking.ID != "" {
		bookingID = p.Data.Object.Booking.ID
	}
	ev.BookingID = stripVersion(bookingID)
	return ev, nil
}

// KindOf maps a webhook type to an event kind.
func KindOf(eventType string) meetings.EventKind {
	switch strings.ToLower(strings.TrimSpace(eventType)) {
	case "booking.created":
		return meetings.EventCreated
	case "booking.updated":
		return meetings.EventUpdated
	case "booking.canceled", "booking.cancelled":
		return meetings.EventCanceled
	default:
		return meetings.EventUnknown
	}
}

// stripVersion drops the ":<version>" suffix Square appends to data.id.
func stripVersion(id string) string {
	id = strings.TrimSpace(id)
	if i := strings.IndexByte(id, ':'); i >= 0 {
		return id[:i]
	}
	return id
}
