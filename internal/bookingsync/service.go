// Package bookingsync turns one verified booking webhook into CRM writes:
// person, calendar entry and optional deal, at most once per delivery.
package bookingsync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/himplant/crmsync/internal/contacts"
	"github.com/himplant/crmsync/internal/deals"
	"github.com/himplant/crmsync/internal/journal"
	"github.com/himplant/crmsync/internal/meetings"
	"github.com/himplant/crmsync/internal/square"
	"github.com/himplant/crmsync/internal/syncerr"
)

// Defaults for fetch retries, timeouts and best-effort names.
const (
	DefaultFetchAttempts = 3
	DefaultFetchDelay    = 2 * time.Second
	DefaultTimeout       = 30 * time.Second
	DefaultLocationName  = "Location"
	DefaultServiceName   = "Service"
	PendingMessage       = "booking not yet available"
)

// Bookings reads booking data.
type Bookings interface {
	GetBooking(ctx context.Context, id string) (square.Booking, error)
	GetCustomer(ctx context.Context, id string) (square.Customer, error)
	GetLocation(ctx context.Context, id string) (square.Location, error)
	GetCatalogObject(ctx context.Context, id string) (square.CatalogObject, error)
}

// PersonResolver finds or creates the CRM person.
type PersonResolver interface {
	Resolve(ctx context.Context, id contacts.Identity) (contacts.PersonRef, error)
}

// MeetingUpserter keeps the calendar entry in sync.
type MeetingUpserter interface {
	Find(ctx context.Context, externalID string) (*meetings.Entry, error)
	Upsert(ctx context.Context, kind meetings.EventKind, m meetings.Meeting) (meetings.Result, error)
}

// DealSyncer keeps the pipeline deal in sync.
type DealSyncer interface {
	Sync(ctx context.Context, kind meetings.EventKind, in deals.Input) (deals.Result, error)
}

// Options tunes the orchestrator.
type Options struct {
	TitleLabel             string
	DefaultDuration        time.Duration
	FetchAttempts          int
	FetchDelay             time.Duration
	Timeout                time.Duration
	PlaceholderEmailDomain string
}

// Result is the JSON summary returned to the webhook sender.
type Result struct {
	OK        bool                `json:"ok"`
	Ignored   string              `json:"ignored,omitempty"`
	Duplicate bool                `json:"duplicate,omitempty"`
	Pending   string              `json:"pending,omitempty"`
	EventID   string              `json:"event_id,omitempty"`
	BookingID string              `json:"booking_id,omitempty"`
	Event     meetings.EventKind  `json:"event,omitempty"`
	Person    *contacts.PersonRef `json:"person,omitempty"`
	Meeting   *meetings.Result    `json:"meeting,omitempty"`
	Deal      *deals.Result       `json:"deal,omitempty"`
}

// Service orchestrates one event at a time per call.
type Service struct {
	bookings Bookings
	people   PersonResolver
	meetings MeetingUpserter
	deals    DealSyncer
	journal  journal.Store
	opts     Options
	sleep    func(ctx context.Context, d time.Duration) error
	logger   *slog.Logger
}

// NewService builds the orchestrator. dealSyncer and store may be nil to
// disable deals and the journal.
func NewService(log *slog.Logger, bookings Bookings, people PersonResolver, upserter MeetingUpserter, dealSyncer DealSyncer, store journal.Store, opts Options) *Service {
	if opts.TitleLabel == "" {
		opts.TitleLabel = meetings.DefaultTitleLabel
	}
	if opts.DefaultDuration <= 0 {
		opts.DefaultDuration = meetings.DefaultDuration
	}
	if opts.FetchAttempts <= 0 {
		opts.FetchAttempts = DefaultFetchAttempts
	}
	if opts.FetchDelay < 0 {
		opts.FetchDelay = DefaultFetchDelay
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	return &Service{
		bookings: bookings,
		people:   people,
		meetings: upserter,
		deals:    dealSyncer,
		journal:  store,
		opts:     opts,
		sleep:    sleepContext,
		logger:   log.With(slog.String("service", "bookingsync")),
	}
}

// Handle processes ev. Outbound calls are detached from ctx cancellation
// and bounded by the configured timeout. The returned error carries a
// syncerr kind; use syncerr.HTTPStatus to map it.
func (s *Service) Handle(ctx context.Context, ev InboundEvent) (Result, error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.Timeout)
	defer cancel()

	log := s.logger.With(
		slog.String("event_id", ev.EventID),
		slog.String("type", ev.RawType),
		slog.String("booking_id", ev.BookingID),
	)
	entry := journal.Entry{EventID: ev.EventID, EventType: ev.RawType, BookingID: ev.BookingID}

	if ev.Type == meetings.EventUnknown {
		log.Info("event ignored")
		entry.Outcome = journal.OutcomeIgnored
		s.record(ctx, entry)
		return Result{OK: true, Ignored: ev.RawType}, nil
	}
	if ev.BookingID == "" {
		return Result{}, syncerr.Validation("handle event", errors.New("booking id is missing"))
	}

	if s.alreadyApplied(ctx, ev.EventID) {
		log.Info("duplicate delivery skipped")
		entry.Outcome = journal.OutcomeDuplicate
		s.record(ctx, entry)
		return Result{OK: true, Duplicate: true, EventID: ev.EventID, BookingID: ev.BookingID}, nil
	}

	res, err := s.apply(ctx, log, ev, &entry)
	if err != nil {
		log.Error("event failed", slog.String("kind", syncerr.KindOf(err).String()), slog.Any("error", err))
		entry.Outcome = journal.OutcomeFailed
		entry.Error = err.Error()
		s.record(ctx, entry)
		return Result{}, err
	}
	if res.Pending != "" {
		entry.Outcome = journal.OutcomePending
	} else {
		entry.Outcome = journal.OutcomeApplied
	}
	s.record(ctx, entry)
	return res, nil
}

func (s *Service) apply(ctx context.Context, log *slog.Logger, ev InboundEvent, entry *journal.Entry) (Result, error) {
	res := Result{OK: true, EventID: ev.EventID, BookingID: ev.BookingID}

	booking, ok, err := fetch(ctx, s, log, "booking", func(ctx context.Context) (square.Booking, error) {
		return s.bookings.GetBooking(ctx, ev.BookingID)
	})
	if err != nil || !ok {
		return pendingOr(res, err)
	}
	if booking.CustomerID == "" {
		return Result{}, syncerr.Validation("handle event", errors.New("booking has no customer"))
	}
	customer, ok, err := fetch(ctx, s, log, "customer", func(ctx context.Context) (square.Customer, error) {
		return s.bookings.GetCustomer(ctx, booking.CustomerID)
	})
	if err != nil || !ok {
		return pendingOr(res, err)
	}

	kind := meetings.EffectiveKind(ev.Type, booking.Status)
	res.Event = kind

	if kind == meetings.EventCanceled {
		existing, err := s.meetings.Find(ctx, ev.BookingID)
		if err != nil {
			return Result{}, fmt.Errorf("find meeting: %w", err)
		}
		if existing == nil || existing.Status == meetings.StatusCanceled {
			return s.cancelWithoutEntry(ctx, log, ev, existing, res, entry)
		}
	}

	identity := contacts.IdentityFromCustomer(customer).WithPlaceholderEmail(booking.ID, s.opts.PlaceholderEmailDomain)
	person, err := s.people.Resolve(ctx, identity)
	if err != nil {
		return Result{}, fmt.Errorf("resolve person: %w", err)
	}
	res.Person = &person
	entry.PersonKind, entry.PersonID = string(person.Kind), person.ID

	start, err := booking.Start()
	if err != nil {
		return Result{}, syncerr.Validation("parse start_at", err)
	}
	meeting := meetings.Meeting{
		ExternalID:    ev.BookingID,
		Title:         meetings.Title(s.opts.TitleLabel, s.serviceName(ctx, log, booking), s.locationName(ctx, log, booking), identity.FullName()),
		Start:         start,
		End:           meetings.EndTime(start, time.Time{}, booking.DurationMinutes(), s.opts.DefaultDuration),
		BookingStatus: booking.Status,
		PersonModule:  string(person.Kind),
		PersonID:      person.ID,
	}
	mres, err := s.meetings.Upsert(ctx, kind, meeting)
	if err != nil {
		return Result{}, fmt.Errorf("upsert meeting: %w", err)
	}
	res.Meeting = &mres
	entry.MeetingID, entry.MeetingAction = mres.EntryID, string(mres.Action)

	if s.deals != nil {
		dres, err := s.deals.Sync(ctx, kind, deals.Input{
			BookingID: ev.BookingID,
			Start:     start,
			Person:    person,
		})
		if err != nil {
			return Result{}, fmt.Errorf("sync deal: %w", err)
		}
		res.Deal = &dres
		entry.DealID = dres.DealID
	}

	log.Info("event applied",
		slog.String("event", string(kind)),
		slog.String("person", string(person.Kind)+"/"+person.ID),
		slog.String("meeting_action", string(mres.Action)),
	)
	return res, nil
}

// cancelWithoutEntry handles a cancel that has no live calendar entry to
// change. No person is resolved, so the event cannot create a Lead.
func (s *Service) cancelWithoutEntry(ctx context.Context, log *slog.Logger, ev InboundEvent, existing *meetings.Entry, res Result, entry *journal.Entry) (Result, error) {
	mres := meetings.Result{Action: meetings.ActionNone}
	if existing != nil {
		mres.EntryID, mres.Status = existing.ID, existing.Status
	}
	res.Meeting = &mres
	entry.MeetingID, entry.MeetingAction = mres.EntryID, string(mres.Action)

	if s.deals != nil {
		dres, err := s.deals.Sync(ctx, meetings.EventCanceled, deals.Input{BookingID: ev.BookingID})
		if err != nil {
			return Result{}, fmt.Errorf("sync deal: %w", err)
		}
		res.Deal = &dres
		entry.DealID = dres.DealID
	}
	log.Info("cancel has no live calendar entry", slog.String("entry_id", mres.EntryID))
	return res, nil
}

// fetch calls get until it succeeds, fails with a non-transient error, or
// the attempts run out. ok is false when the resource stayed unavailable.
func fetch[T any](ctx context.Context, s *Service, log *slog.Logger, what string, get func(context.Context) (T, error)) (T, bool, error) {
	var zero T
	for attempt := 1; ; attempt++ {
		v, err := get(ctx)
		if err == nil {
			return v, true, nil
		}
		if !syncerr.Is(err, syncerr.KindUpstreamUnavailable) {
			return zero, false, fmt.Errorf("fetch %s: %w", what, err)
		}
		if attempt >= s.opts.FetchAttempts {
			log.Warn(what+" not yet available", slog.Int("attempts", attempt), slog.Any("error", err))
			return zero, false, nil
		}
		if err := s.sleep(ctx, s.opts.FetchDelay); err != nil {
			return zero, false, syncerr.Unavailable("fetch "+what, 0, err)
		}
	}
}

func pendingOr(res Result, err error) (Result, error) {
	if err != nil {
		return Result{}, err
	}
	res.Pending = PendingMessage
	return res, nil
}

func (s *Service) locationName(ctx context.Context, log *slog.Logger, b square.Booking) string {
	if b.LocationID == "" {
		return DefaultLocationName
	}
	loc, err := s.bookings.GetLocation(ctx, b.LocationID)
	if err != nil || loc.Name == "" {
		log.Debug("location name unavailable", slog.Any("error", err))
		return DefaultLocationName
	}
	return loc.Name
}

func (s *Service) serviceName(ctx context.Context, log *slog.Logger, b square.Booking) string {
	id := b.ServiceVariationID()
	if id == "" {
		return DefaultServiceName
	}
	obj, err := s.bookings.GetCatalogObject(ctx, id)
	if err != nil || obj.Name() == "" {
		log.Debug("service name unavailable", slog.Any("error", err))
		return DefaultServiceName
	}
	return obj.Name()
}

func (s *Service) alreadyApplied(ctx context.Context, eventID string) bool {
	if s.journal == nil || eventID == "" {
		return false
	}
	ok, err := s.journal.Applied(ctx, eventID)
	if err != nil {
		s.logger.Warn("journal lookup failed", slog.String("event_id", eventID), slog.Any("error", err))
		return false
	}
	return ok
}

func (s *Service) record(ctx context.Context, e journal.Entry) {
	if s.journal == nil || e.EventID == "" {
		return
	}
	if err := s.journal.Record(ctx, e); err != nil {
		s.logger.Warn("journal record failed", slog.String("event_id", e.EventID), slog.Any("error", err))
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
