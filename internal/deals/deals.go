// Package deals keeps an optional pipeline deal per booking and moves it
// through stages as the booking changes.
package deals

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/himplant/crmsync/internal/contacts"
	"github.com/himplant/crmsync/internal/meetings"
	"github.com/himplant/crmsync/internal/zoho"
)

// Stage defaults.
const (
	DefaultPipeline         = "Standard"
	DefaultBookedStage      = "Consultation Scheduled"
	DefaultRescheduledStage = "Consultation Rescheduled"
	DefaultLostStage        = "Closed Lost"
)

// CRM is the record API the manager needs.
type CRM interface {
	Search(ctx context.Context, module, criteria string) ([]zoho.Record, error)
	Create(ctx context.Context, module string, rec zoho.Record) (string, error)
	Update(ctx context.Context, module, id string, fields zoho.Record) error
}

// Options configures the pipeline and deduplication.
type Options struct {
	Pipeline         string
	BookedStage      string
	RescheduledStage string
	LostStage        string
	// ExternalIDField, when set, is the deal field holding the booking id.
	// Without it deals are deduplicated by their deterministic name.
	ExternalIDField string
}

// Deal is a pipeline deal tied to one booking.
type Deal struct {
	ID         string
	Name       string
	Pipeline   string
	Stage      string
	Owner      string
	ExternalID string
}

// Input describes the booking side of a deal.
type Input struct {
	BookingID string
	Start     time.Time
	Person    contacts.PersonRef
}

// Result reports what Sync did.
type Result struct {
	Action meetings.Action `json:"action"`
	DealID string          `json:"id,omitempty"`
	Stage  string          `json:"stage,omitempty"`
}

// Manager creates and transitions deals.
type Manager struct {
	crm    CRM
	opts   Options
	logger *slog.Logger
}

// NewManager builds a manager; empty stage names take the defaults.
func NewManager(log *slog.Logger, crm CRM, opts Options) *Manager {
	if opts.Pipeline == "" {
		opts.Pipeline = DefaultPipeline
	}
	if opts.BookedStage == "" {
		opts.BookedStage = DefaultBookedStage
	}
	if opts.RescheduledStage == "" {
		opts.RescheduledStage = DefaultRescheduledStage
	}
	if opts.LostStage == "" {
		opts.LostStage = DefaultLostStage
	}
	return &Manager{
		crm:    crm,
		opts:   opts,
		logger: log.With(slog.String("service", "deals")),
	}
}

// Name is the deterministic deal name for a booking. It depends on the
// booking id only, so a renamed customer still finds the same deal.
func Name(bookingID string) string {
	return "Square booking " + strings.TrimSpace(bookingID)
}

// TargetStage maps an event to the stage the deal should be in.
func (m *Manager) TargetStage(kind meetings.EventKind) string {
	switch kind {
	case meetings.EventCreated:
		return m.opts.BookedStage
	case meetings.EventUpdated:
		return m.opts.RescheduledStage
	case meetings.EventCanceled:
		return m.opts.LostStage
	default:
		return ""
	}
}

// Find returns the deal of a booking, or nil.
func (m *Manager) Find(ctx context.Context, in Input) (*Deal, error) {
	criteria := zoho.Equals("Deal_Name", Name(in.BookingID))
	if m.opts.ExternalIDField != "" {
		criteria = zoho.Equals(m.opts.ExternalIDField, in.BookingID)
	}
	records, err := m.crm.Search(ctx, zoho.ModuleDeals, criteria)
	if err != nil {
		return nil, fmt.Errorf("search deal: %w", err)
	}
	if len(records) == 0 {
		return nil, nil
	}
	rec := records[0]
	d := &Deal{
		ID:       rec.ID(),
		Name:     rec.String("Deal_Name"),
		Pipeline: rec.String("Pipeline"),
		Stage:    rec.String("Stage"),
	}
	if m.opts.ExternalIDField != "" {
		d.ExternalID = rec.String(m.opts.ExternalIDField)
	}
	if owner, ok := rec["Owner"].(map[string]any); ok {
		d.Owner, _ = owner["id"].(string)
	}
	return d, nil
}

// Sync creates or transitions the deal for kind. A created event never
// moves an existing deal, a deal in the lost stage is never moved, and a
// canceled booking with no deal creates nothing.
func (m *Manager) Sync(ctx context.Context, kind meetings.EventKind, in Input) (Result, error) {
	target := m.TargetStage(kind)
	if target == "" {
		return Result{Action: meetings.ActionNone}, nil
	}
	existing, err := m.Find(ctx, in)
	if err != nil {
		return Result{}, err
	}
	log := m.logger.With(slog.String("booking_id", in.BookingID), slog.String("event", string(kind)))

	if existing == nil {
		if kind == meetings.EventCanceled {
			return Result{Action: meetings.ActionNone}, nil
		}
		id, err := m.crm.Create(ctx, zoho.ModuleDeals, m.createRecord(in, target))
		if err != nil {
			return Result{}, fmt.Errorf("create deal: %w", err)
		}
		log.Info("deal created", slog.String("deal_id", id), slog.String("stage", target))
		return Result{Action: meetings.ActionCreate, DealID: id, Stage: target}, nil
	}

	if kind == meetings.EventCreated ||
		strings.EqualFold(existing.Stage, m.opts.LostStage) ||
		strings.EqualFold(existing.Stage, target) {
		return Result{Action: meetings.ActionNone, DealID: existing.ID, Stage: existing.Stage}, nil
	}
	if err := m.crm.Update(ctx, zoho.ModuleDeals, existing.ID, zoho.Record{"Stage": target}); err != nil {
		return Result{}, fmt.Errorf("update deal stage: %w", err)
	}
	log.Info("deal stage changed",
		slog.String("deal_id", existing.ID),
		slog.String("from", existing.Stage),
		slog.String("to", target),
	)
	return Result{Action: meetings.ActionUpdate, DealID: existing.ID, Stage: target}, nil
}

func (m *Manager) createRecord(in Input, stage string) zoho.Record {
	rec := zoho.Record{
		"Deal_Name":   Name(in.BookingID),
		"Pipeline":    m.opts.Pipeline,
		"Stage":       stage,
		"Lead_Source": contacts.DefaultLeadSource,
	}
	if !in.Start.IsZero() {
		rec["Closing_Date"] = in.Start.UTC().Format(time.DateOnly)
	}
	if m.opts.ExternalIDField != "" {
		rec[m.opts.ExternalIDField] = in.BookingID
	}
	// Deals can only look up Contacts; a Lead stays unlinked until converted.
	if in.Person.Kind == contacts.KindContact && in.Person.ID != "" {
		rec["Contact_Name"] = map[string]string{"id": in.Person.ID}
	}
	return rec
}
