package meetings

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/himplant/crmsync/internal/logger"
	"github.com/himplant/crmsync/internal/zoho"
	"github.com/himplant/crmsync/internal/zoho/zohotest"
)

func testMeeting() Meeting {
	start := time.Date(2024, 6, 1, 15, 0, 0, 0, time.UTC)
	return Meeting{
		ExternalID:    "B1",
		Title:         Title(DefaultTitleLabel, "Consultation", "Austin Clinic", "Ann Lee"),
		Start:         start,
		End:           start.Add(30 * time.Minute),
		BookingStatus: "ACCEPTED",
		PersonModule:  zoho.ModuleLeads,
		PersonID:      "L1",
	}
}

func TestUpsertCreatedTwiceYieldsOneEntry(t *testing.T) {
	crm := zohotest.New()
	u := NewUpserter(logger.Discard(), crm, Fields{})

	first, err := u.Upsert(context.Background(), EventCreated, testMeeting())
	require.NoError(t, err)
	assert.Equal(t, ActionCreate, first.Action)
	assert.Equal(t, StatusScheduled, first.Status)

	second, err := u.Upsert(context.Background(), EventCreated, testMeeting())
	require.NoError(t, err)
	assert.Equal(t, ActionNone, second.Action)
	assert.Equal(t, first.EntryID, second.EntryID)

	entries := crm.Records(zoho.ModuleEvents)
	require.Len(t, entries, 1)
	rec := entries[0]
	assert.Equal(t, "B1", rec["Square_Meeting_ID"])
	assert.Equal(t, "Scheduled", rec["Meeting_Status"])
	assert.Equal(t, "Leads", rec["$se_module"])
	assert.Equal(t, "L1", rec["What_Id"])
	assert.Equal(t, "2024-06-01T15:00:00+00:00", rec["Start_DateTime"])
	assert.Equal(t, "2024-06-01T15:30:00+00:00", rec["End_DateTime"])
	assert.Contains(t, rec["Event_Title"], "Ann Lee")
}

func TestUpsertCreatedThenCanceledTwice(t *testing.T) {
	crm := zohotest.New()
	u := NewUpserter(logger.Discard(), crm, Fields{})

	_, err := u.Upsert(context.Background(), EventCreated, testMeeting())
	require.NoError(t, err)

	canceled, err := u.Upsert(context.Background(), EventCanceled, testMeeting())
	require.NoError(t, err)
	assert.Equal(t, ActionUpdate, canceled.Action)
	assert.Equal(t, StatusCanceled, canceled.Status)

	again, err := u.Upsert(context.Background(), EventCanceled, testMeeting())
	require.NoError(t, err)
	assert.Equal(t, ActionNone, again.Action)

	entries := crm.Records(zoho.ModuleEvents)
	require.Len(t, entries, 1)
	assert.Equal(t, "Canceled", entries[0]["Meeting_Status"])
	assert.Len(t, crm.Calls("update"), 1)
}

func TestUpsertUpdatedReschedules(t *testing.T) {
	crm := zohotest.New()
	u := NewUpserter(logger.Discard(), crm, Fields{})
	_, err := u.Upsert(context.Background(), EventCreated, testMeeting())
	require.NoError(t, err)

	m := testMeeting()
	m.Start = m.Start.Add(24 * time.Hour)
	m.End = m.End.Add(24 * time.Hour)
	res, err := u.Upsert(context.Background(), EventUpdated, m)
	require.NoError(t, err)
	assert.Equal(t, ActionUpdate, res.Action)

	rec := crm.Records(zoho.ModuleEvents)[0]
	assert.Equal(t, "Rescheduled", rec["Meeting_Status"])
	assert.Equal(t, "2024-06-02T15:00:00+00:00", rec["Start_DateTime"])
}

func TestUpsertCanceledWithoutEntryCreatesNothing(t *testing.T) {
	crm := zohotest.New()
	u := NewUpserter(logger.Discard(), crm, Fields{})

	res, err := u.Upsert(context.Background(), EventCanceled, testMeeting())
	require.NoError(t, err)
	assert.Equal(t, ActionNone, res.Action)
	assert.Empty(t, crm.Records(zoho.ModuleEvents))
}

func TestUpsertCustomFields(t *testing.T) {
	crm := zohotest.New()
	u := NewUpserter(logger.Discard(), crm, Fields{Title: "Subject", Status: "Status__c", ExternalID: "Booking_Ref"})

	_, err := u.Upsert(context.Background(), EventCreated, testMeeting())
	require.NoError(t, err)

	rec := crm.Records(zoho.ModuleEvents)[0]
	assert.Equal(t, "B1", rec["Booking_Ref"])
	assert.Equal(t, "Scheduled", rec["Status__c"])
	assert.NotEmpty(t, rec["Subject"])
	assert.Equal(t, "(Booking_Ref:equals:B1)", crm.Calls("search")[0].Criteria)
}
