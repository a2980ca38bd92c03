package meetings

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDecide(t *testing.T) {
	scheduled := &Entry{ID: "E1", Status: StatusScheduled}
	rescheduled := &Entry{ID: "E1", Status: StatusRescheduled}
	canceled := &Entry{ID: "E1", Status: StatusCanceled}

	tests := []struct {
		name     string
		kind     EventKind
		existing *Entry
		want     Decision
	}{
		{"created new", EventCreated, nil, Decision{ActionCreate, StatusScheduled}},
		{"created duplicate", EventCreated, scheduled, Decision{ActionNone, StatusScheduled}},
		{"updated existing", EventUpdated, scheduled, Decision{ActionUpdate, StatusRescheduled}},
		{"updated again", EventUpdated, rescheduled, Decision{ActionUpdate, StatusRescheduled}},
		{"updated late create", EventUpdated, nil, Decision{ActionCreate, StatusScheduled}},
		{"canceled existing", EventCanceled, rescheduled, Decision{ActionUpdate, StatusCanceled}},
		{"canceled missing", EventCanceled, nil, Decision{ActionNone, ""}},
		{"canceled repeat", EventCanceled, canceled, Decision{ActionNone, StatusCanceled}},
		{"updated after cancel", EventUpdated, canceled, Decision{ActionNone, StatusCanceled}},
		{"created after cancel", EventCreated, canceled, Decision{ActionNone, StatusCanceled}},
		{"unknown", EventUnknown, nil, Decision{ActionNone, ""}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Decide(tt.kind, tt.existing))
		})
	}
}

func TestEffectiveKind(t *testing.T) {
	assert.Equal(t, EventCanceled, EffectiveKind(EventUpdated, "CANCELLED_BY_CUSTOMER"))
	assert.Equal(t, EventCanceled, EffectiveKind(EventUpdated, "NO_SHOW"))
	assert.Equal(t, EventUpdated, EffectiveKind(EventUpdated, "ACCEPTED"))
	assert.Equal(t, EventCanceled, EffectiveKind(EventCreated, "DECLINED"))
	assert.Equal(t, EventCreated, EffectiveKind(EventCreated, "ACCEPTED"))
	assert.Equal(t, EventUnknown, EffectiveKind(EventUnknown, "CANCELLED_BY_SELLER"))
}

func TestTitle(t *testing.T) {
	assert.Equal(t,
		"Himplant virtual consultation – Consultation – Austin Clinic – Ann Lee",
		Title(DefaultTitleLabel, "Consultation", "Austin Clinic", "Ann Lee"))
	assert.Equal(t, "Himplant virtual consultation – Ann Lee", Title(DefaultTitleLabel, "", " ", "Ann Lee"))
	assert.Equal(t, "", Title("", "", "", ""))
}

func TestEndTime(t *testing.T) {
	start := time.Date(2024, 6, 1, 15, 0, 0, 0, time.UTC)
	explicit := start.Add(2 * time.Hour)

	assert.Equal(t, explicit, EndTime(start, explicit, 45, time.Hour))
	assert.Equal(t, start.Add(45*time.Minute), EndTime(start, time.Time{}, 45, time.Hour))
	assert.Equal(t, start.Add(time.Hour), EndTime(start, time.Time{}, 0, time.Hour))
	assert.Equal(t, start.Add(DefaultDuration), EndTime(start, time.Time{}, 0, 0))
}

func TestDescriptionAndFormatTime(t *testing.T) {
	assert.Equal(t,
		"Square booking status: ACCEPTED\nBooking URL: https://squareup.com/dashboard/appointments/bookings/B1",
		Description("ACCEPTED", "B1"))

	loc := time.FixedZone("EDT", -4*3600)
	assert.Equal(t, "2024-06-01T15:00:00+00:00", FormatTime(time.Date(2024, 6, 1, 11, 0, 0, 0, loc)))
}
