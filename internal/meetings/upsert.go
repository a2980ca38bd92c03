package meetings

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/himplant/crmsync/internal/zoho"
)

// CRM field defaults.
const (
	DefaultTitleField      = "Event_Title"
	DefaultStatusField     = "Meeting_Status"
	DefaultExternalIDField = "Square_Meeting_ID"
)

// CRM is the record API the upserter needs.
type CRM interface {
	Search(ctx context.Context, module, criteria string) ([]zoho.Record, error)
	Create(ctx context.Context, module string, rec zoho.Record) (string, error)
	Update(ctx context.Context, module, id string, fields zoho.Record) error
}

// Fields names the configurable CRM fields of a calendar entry.
type Fields struct {
	Title      string
	Status     string
	ExternalID string
}

func (f Fields) withDefaults() Fields {
	if f.Title == "" {
		f.Title = DefaultTitleField
	}
	if f.Status == "" {
		f.Status = DefaultStatusField
	}
	if f.ExternalID == "" {
		f.ExternalID = DefaultExternalIDField
	}
	return f
}

// Meeting is the desired state of the entry derived from a booking.
type Meeting struct {
	ExternalID    string
	Title         string
	Start         time.Time
	End           time.Time
	BookingStatus string
	// PersonModule and PersonID link the entry to the resolved person.
	PersonModule string
	PersonID     string
}

// Result reports what Upsert did.
type Result struct {
	Action  Action `json:"action"`
	EntryID string `json:"id,omitempty"`
	Status  Status `json:"status,omitempty"`
}

// Upserter keeps at most one calendar entry per external booking id.
type Upserter struct {
	crm    CRM
	fields Fields
	logger *slog.Logger
}

// NewUpserter builds an upserter; empty field names take the defaults.
func NewUpserter(log *slog.Logger, crm CRM, fields Fields) *Upserter {
	return &Upserter{
		crm:    crm,
		fields: fields.withDefaults(),
		logger: log.With(slog.String("service", "meetings")),
	}
}

// Find returns the entry for externalID, or nil.
func (u *Upserter) Find(ctx context.Context, externalID string) (*Entry, error) {
	records, err := u.crm.Search(ctx, zoho.ModuleEvents, zoho.Equals(u.fields.ExternalID, externalID))
	if err != nil {
		return nil, fmt.Errorf("search calendar entry: %w", err)
	}
	if len(records) == 0 {
		return nil, nil
	}
	if len(records) > 1 {
		u.logger.Warn("multiple calendar entries for booking, using the first",
			slog.String("booking_id", externalID),
			slog.Int("matches", len(records)),
		)
	}
	return u.entryFromRecord(records[0]), nil
}

// Upsert applies kind to the entry of m.ExternalID.
func (u *Upserter) Upsert(ctx context.Context, kind EventKind, m Meeting) (Result, error) {
	existing, err := u.Find(ctx, m.ExternalID)
	if err != nil {
		return Result{}, err
	}
	d := Decide(kind, existing)
	log := u.logger.With(
		slog.String("booking_id", m.ExternalID),
		slog.String("event", string(kind)),
		slog.String("action", string(d.Action)),
	)

	switch d.Action {
	case ActionCreate:
		id, err := u.crm.Create(ctx, zoho.ModuleEvents, u.createRecord(m, d.Status))
		if err != nil {
			return Result{}, fmt.Errorf("create calendar entry: %w", err)
		}
		log.Info("calendar entry created", slog.String("entry_id", id))
		return Result{Action: ActionCreate, EntryID: id, Status: d.Status}, nil

	case ActionUpdate:
		if err := u.crm.Update(ctx, zoho.ModuleEvents, existing.ID, u.updateRecord(m, d.Status)); err != nil {
			return Result{}, fmt.Errorf("update calendar entry: %w", err)
		}
		log.Info("calendar entry updated", slog.String("entry_id", existing.ID), slog.String("status", string(d.Status)))
		return Result{Action: ActionUpdate, EntryID: existing.ID, Status: d.Status}, nil

	default:
		res := Result{Action: ActionNone, Status: d.Status}
		if existing != nil {
			res.EntryID = existing.ID
		}
		log.Debug("calendar entry unchanged")
		return res, nil
	}
}

func (u *Upserter) createRecord(m Meeting, status Status) zoho.Record {
	rec := zoho.Record{
		u.fields.Title:      m.Title,
		"Start_DateTime":    FormatTime(m.Start),
		"End_DateTime":      FormatTime(m.End),
		u.fields.Status:     string(status),
		"Description":       Description(m.BookingStatus, m.ExternalID),
		u.fields.ExternalID: m.ExternalID,
	}
	if m.PersonID != "" {
		rec["$se_module"] = m.PersonModule
		rec["What_Id"] = m.PersonID
	}
	return rec
}

func (u *Upserter) updateRecord(m Meeting, status Status) zoho.Record {
	rec := zoho.Record{
		u.fields.Status: string(status),
		"Description":   Description(m.BookingStatus, m.ExternalID),
	}
	if status == StatusCanceled {
		return rec
	}
	rec[u.fields.Title] = m.Title
	rec["Start_DateTime"] = FormatTime(m.Start)
	rec["End_DateTime"] = FormatTime(m.End)
	return rec
}

func (u *Upserter) entryFromRecord(rec zoho.Record) *Entry {
	e := &Entry{
		ID:          rec.ID(),
		ExternalID:  rec.String(u.fields.ExternalID),
		Title:       rec.String(u.fields.Title),
		Status:      Status(rec.String(u.fields.Status)),
		Description: rec.String("Description"),
	}
	if t, err := time.Parse(time.RFC3339, rec.String("Start_DateTime")); err == nil {
		e.Start = t
	}
	if t, err := time.Parse(time.RFC3339, rec.String("End_DateTime")); err == nil {
		e.End = t
	}
	if owner, ok := rec["Owner"].(map[string]any); ok {
		if id, ok := owner["id"].(string); ok {
			e.Owner = id
		}
	}
	return e
}
